package environment

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/theckman/go-flock"
)

// World is the line-oriented text file recording the user's explicitly
// requested target set. Reads are lockless snapshots; every mutation is
// serialised behind a scoped file lock held only for the duration of that
// one add/remove, then the new content is written atomically (temp file,
// rename).
type World struct {
	path string
}

// NewWorld opens the world file at path. The file need not exist yet; it is
// created on first mutation.
func NewWorld(path string) *World { return &World{path: path} }

// Entries returns a lockless snapshot of every entry currently recorded.
func (w *World) Entries() ([]string, error) {
	f, err := os.Open(w.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "reading world file %q", w.path)
	}
	defer f.Close()

	var out []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "scanning world file %q", w.path)
	}
	return out, nil
}

// Has reports whether spec is already recorded.
func (w *World) Has(spec string) (bool, error) {
	entries, err := w.Entries()
	if err != nil {
		return false, err
	}
	for _, e := range entries {
		if e == spec {
			return true, nil
		}
	}
	return false, nil
}

// Add idempotently records spec: if it is already present, Add does
// nothing.
func (w *World) Add(spec string) error {
	return w.mutate(func(entries []string) []string {
		for _, e := range entries {
			if e == spec {
				return entries
			}
		}
		return append(entries, spec)
	})
}

// Remove idempotently drops spec: if it is not present, Remove does
// nothing.
func (w *World) Remove(spec string) error {
	return w.mutate(func(entries []string) []string {
		out := entries[:0:0]
		for _, e := range entries {
			if e != spec {
				out = append(out, e)
			}
		}
		return out
	})
}

// mutate acquires the scoped file lock, reads the current entries, applies
// f, and rewrites the file atomically. The lock is released on every exit
// path via defer, including error returns.
func (w *World) mutate(f func([]string) []string) error {
	lockPath := w.path + ".lock"
	lk := flock.NewFlock(lockPath)
	locked, err := lk.TryLock()
	if err != nil {
		return errors.Wrapf(err, "locking world file %q", w.path)
	}
	if !locked {
		return errors.Errorf("world file %q is locked by another process", w.path)
	}
	defer lk.Unlock()

	entries, err := w.Entries()
	if err != nil {
		return err
	}
	newEntries := f(entries)

	return w.atomicRewrite(newEntries)
}

func (w *World) atomicRewrite(entries []string) error {
	dir := filepath.Dir(w.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(w.path)+".tmp-*")
	if err != nil {
		return errors.Wrapf(err, "creating temp file for world rewrite in %q", dir)
	}
	tmpPath := tmp.Name()

	writer := bufio.NewWriter(tmp)
	for _, e := range entries {
		if _, err := writer.WriteString(e + "\n"); err != nil {
			tmp.Close()
			os.Remove(tmpPath)
			return errors.Wrap(err, "writing world file contents")
		}
	}
	if err := writer.Flush(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return errors.Wrap(err, "flushing world file contents")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return errors.Wrap(err, "closing world temp file")
	}
	if err := os.Rename(tmpPath, w.path); err != nil {
		os.Remove(tmpPath)
		return errors.Wrapf(err, "renaming world temp file into place at %q", w.path)
	}
	return nil
}
