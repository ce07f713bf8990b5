// Package linkage is an auxiliary linkage-integrity checker: it walks a
// set of installed files, records each ELF binary's NEEDED entries, and
// reports which of those entries no installed library (of the same
// architecture) provides. It is independent of the resolver and merger and
// is typically run as a post-install sanity pass.
package linkage

import (
	"debug/elf"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// Architecture distinguishes ELF binaries that cannot satisfy each other's
// NEEDED entries: a 32-bit ARM library never resolves an x86-64 NEEDED
// entry even if the basenames match.
type Architecture struct {
	Machine elf.Machine
	Class   elf.Class
	Data    elf.Data
}

func architectureOf(f *elf.File) Architecture {
	return Architecture{Machine: f.Machine, Class: f.Class, Data: f.Data}
}

// BrokenLinkage names one NEEDED entry a scanned file could not resolve.
type BrokenLinkage struct {
	File    string
	Missing string
}

// Checker accumulates ELF scan results across a tree of installed files.
// It is safe for concurrent use from multiple goroutines walking disjoint
// parts of a tree, mirroring the reference implementation's internal
// mutex.
type Checker struct {
	Root string
	// CheckLibraries restricts NEEDED tracking to this set of names; empty
	// means track every NEEDED entry and also register every shared
	// library found as a provider.
	CheckLibraries map[string]bool

	mu           sync.Mutex
	seen         map[string]Architecture        // provider path -> its architecture
	symlinks     map[string][]string            // provider path -> symlink paths pointing at it, seen before the provider
	libraries    map[Architecture]map[string]bool // names (basenames and root-relative paths) each architecture provides
	needed       map[Architecture]map[string][]string // name -> files that need it
	extraLibDirs []string
}

// NewChecker constructs a Checker scanning files under root. checkLibraries
// may be nil or empty to track every NEEDED entry found.
func NewChecker(root string, checkLibraries []string) *Checker {
	libs := make(map[string]bool, len(checkLibraries))
	for _, l := range checkLibraries {
		libs[l] = true
	}
	return &Checker{
		Root:           root,
		CheckLibraries: libs,
		seen:           make(map[string]Architecture),
		symlinks:       make(map[string][]string),
		libraries:      make(map[Architecture]map[string]bool),
		needed:         make(map[Architecture]map[string][]string),
	}
}

// looksLikeELFCandidate mirrors the reference heuristic: a ".so", a
// versioned ".so.N" library, or any executable file is worth opening.
func looksLikeELFCandidate(path string, mode os.FileMode) bool {
	base := filepath.Base(path)
	if strings.Contains(base, ".so.") || strings.HasSuffix(base, ".so") {
		return true
	}
	return mode&0o111 != 0
}

// CheckFile opens path and, if it looks like a candidate and is a valid
// ELF executable or shared object, records its NEEDED entries (and, if
// CheckLibraries is empty, registers it as a library provider). It
// reports whether path was recognised as ELF at all; a file that isn't
// ELF, or isn't EXEC/DYN, is not an error.
func (c *Checker) CheckFile(path string) (bool, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return false, errors.Wrapf(err, "linkage: stat %s", path)
	}
	if info.Mode()&os.ModeSymlink != 0 || !info.Mode().IsRegular() {
		return false, nil
	}
	if !looksLikeELFCandidate(path, info.Mode()) {
		return false, nil
	}

	f, err := elf.Open(path)
	if err != nil {
		return false, nil // not a valid ELF file; not an error, just uninteresting
	}
	defer f.Close()

	if f.Type != elf.ET_EXEC && f.Type != elf.ET_DYN {
		return true, nil
	}

	needed, err := f.ImportedLibraries()
	if err != nil {
		return true, errors.Wrapf(err, "linkage: reading NEEDED entries of %s", path)
	}

	arch := architectureOf(f)

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.CheckLibraries) == 0 && f.Type == elf.ET_DYN {
		c.handleLibraryLocked(path, arch)
	}
	for _, name := range needed {
		if len(c.CheckLibraries) != 0 && !c.CheckLibraries[name] {
			continue
		}
		if c.needed[arch] == nil {
			c.needed[arch] = make(map[string][]string)
		}
		c.needed[arch][name] = append(c.needed[arch][name], path)
	}
	return true, nil
}

func (c *Checker) handleLibraryLocked(path string, arch Architecture) {
	c.seen[path] = arch
	if c.libraries[arch] == nil {
		c.libraries[arch] = make(map[string]bool)
	}
	c.libraries[arch][filepath.Base(path)] = true
	c.libraries[arch][c.relToRoot(path)] = true
	for _, link := range c.symlinks[path] {
		c.libraries[arch][filepath.Base(link)] = true
		c.libraries[arch][c.relToRoot(link)] = true
	}
}

func (c *Checker) relToRoot(path string) string {
	rel, err := filepath.Rel(c.Root, path)
	if err != nil {
		return path
	}
	return rel
}

// NoteSymlink records that link points at target, so that a later (or
// earlier) CheckFile registering target as a library also registers
// link's name as an alias. Only meaningful when CheckLibraries is empty;
// a restricted check does not track arbitrary providers at all.
func (c *Checker) NoteSymlink(link, target string) {
	if len(c.CheckLibraries) != 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if arch, ok := c.seen[target]; ok {
		if c.libraries[arch] == nil {
			c.libraries[arch] = make(map[string]bool)
		}
		c.libraries[arch][filepath.Base(link)] = true
		c.libraries[arch][c.relToRoot(link)] = true
		return
	}
	c.symlinks[target] = append(c.symlinks[target], link)
}

// AddExtraLibDir registers an additional directory (outside the scanned
// tree, e.g. a multilib host path) to search for libraries that would
// otherwise be reported missing.
func (c *Checker) AddExtraLibDir(dir string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.extraLibDirs = append(c.extraLibDirs, dir)
}

// Broken resolves every NEEDED entry against the libraries this Checker
// has seen and, for names still missing, against each registered extra
// lib dir, then returns the (file, missing-library) pairs that remain
// unresolved. The result is sorted for determinism.
func (c *Checker) Broken() ([]BrokenLinkage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	type missingKey struct {
		arch Architecture
		name string
	}
	missing := make(map[missingKey]bool)
	for arch, names := range c.needed {
		for name := range names {
			if c.libraries[arch][name] {
				continue
			}
			missing[missingKey{arch, name}] = true
		}
	}

	for _, dir := range c.extraLibDirs {
		for key := range missing {
			candidate := filepath.Join(dir, key.name)
			fi, err := os.Stat(candidate)
			if err != nil || !fi.Mode().IsRegular() {
				continue
			}
			f, err := elf.Open(candidate)
			if err != nil {
				continue
			}
			if f.Type == elf.ET_DYN && architectureOf(f) == key.arch {
				delete(missing, key)
			}
			f.Close()
		}
	}

	var out []BrokenLinkage
	for key := range missing {
		for _, file := range c.needed[key.arch][key.name] {
			out = append(out, BrokenLinkage{File: file, Missing: key.name})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].File != out[j].File {
			return out[i].File < out[j].File
		}
		return out[i].Missing < out[j].Missing
	})
	return out, nil
}
