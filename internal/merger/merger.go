// Package merger implements atomic per-entry installation of an image
// directory into a live root, with config-file protection, symlink
// rewriting, and reverse-order uninstall. It is invoked by InstallJob and
// UninstallJob to modify the live filesystem; nothing else touches a live
// root.
package merger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/karrick/godirwalk"
	"github.com/pkg/errors"
	shutil "github.com/termie/go-shutil"

	"github.com/solvd/pkgcore/internal/pkgid"
)

// Options controls policy choices check() and merge() make while walking
// an image directory.
type Options struct {
	// AllowEmptyDirs permits an empty source directory other than the
	// image root; without it, an empty directory is an error.
	AllowEmptyDirs bool
	// RewriteSymlinks rewrites a symlink whose target begins with the
	// image directory to be root-relative instead of treating it as an
	// error.
	RewriteSymlinks bool
	// NoChown skips the ownership-fixup step entirely.
	NoChown bool
}

// Hooks bundles the caller-supplied callbacks the merge needs: who owns a
// new entry, whether a regular file overwrite should be config-protected,
// notification of a config-protect rename, and whether an unmerge may
// remove a given path outright.
type Hooks struct {
	// GetNewIDs returns (uid, gid) for the entry at the given source path
	// (the full path inside the image directory); -1 for either means
	// "leave alone". A nil GetNewIDs behaves as
	// if it always returned (-1, -1).
	GetNewIDs func(path string) (uid, gid int)
	// ConfigProtected reports whether an overwrite of dst by src should be
	// config-protected instead of overwritten in place.
	ConfigProtected func(src, dst string) bool
	// UsedConfigProtectPath is invoked with the generated
	// "._cfgNNNN_<name>" path whenever ConfigProtected fires.
	UsedConfigProtectPath func(path string)
	// IgnoreForUnmerge reports whether an unmerge must leave a previously
	// installed path alone (e.g. a user-edited config-protected file).
	IgnoreForUnmerge func(path string) bool
}

// Merger drives one check()/merge() pass over an image directory, or one
// unmerge of previously recorded Contents.
type Merger struct {
	ImageDir        string
	Root            string
	Options         Options
	Hooks           Hooks
	FixMtimesBefore time.Time

	entries pkgid.Contents
}

// New constructs a Merger for one install. root is the live filesystem
// root the image is merged into; imageDir is the staged build output.
func New(imageDir, root string, opts Options, hooks Hooks) *Merger {
	return &Merger{ImageDir: imageDir, Root: root, Options: opts, Hooks: hooks}
}

// Check performs a dry run of the merge: every entry is classified and
// validated (config-protect decisions, empty-dir policy, symlink policy)
// without touching Root.
func (m *Merger) Check() error {
	return m.walk(false)
}

// Merge performs the real merge, returning the Contents it installed (in
// traversal order; Unmerge walks them in reverse).
func (m *Merger) Merge() (pkgid.Contents, error) {
	m.entries = pkgid.Contents{}
	if err := m.walk(true); err != nil {
		return pkgid.Contents{}, err
	}
	return m.entries, nil
}

func (m *Merger) walk(apply bool) error {
	cleanImage := filepath.Clean(m.ImageDir)
	return godirwalk.Walk(cleanImage, &godirwalk.Options{
		Callback: func(osPathname string, de *godirwalk.Dirent) error {
			rel, err := filepath.Rel(cleanImage, osPathname)
			if err != nil {
				return errors.Wrapf(err, "merger: relativizing %s", osPathname)
			}
			if rel == "." {
				return nil // the image root itself is never installed
			}
			return m.visit(osPathname, rel, de, apply)
		},
	})
}

func (m *Merger) visit(srcPath, rel string, de *godirwalk.Dirent, apply bool) error {
	dstPath := filepath.Join(m.Root, rel)

	switch {
	case de.IsSymlink():
		return m.mergeSym(srcPath, dstPath, rel, apply)
	case de.IsDir():
		return m.mergeDir(srcPath, dstPath, rel, apply)
	default:
		if de.ModeType()&os.ModeNamedPipe != 0 || de.ModeType()&os.ModeDevice != 0 || de.ModeType()&os.ModeSocket != 0 {
			return m.mergeMisc(srcPath, dstPath, rel, de, apply)
		}
		return m.mergeFile(srcPath, dstPath, rel, apply)
	}
}

// destKind classifies what (if anything) already exists at dstPath.
type destKind int

const (
	destNothing destKind = iota
	destFile
	destDir
	destSym
	destMisc
)

func classifyDest(dstPath string) (destKind, error) {
	fi, err := os.Lstat(dstPath)
	if os.IsNotExist(err) {
		return destNothing, nil
	}
	if err != nil {
		return destNothing, errors.Wrapf(err, "merger: stat %s", dstPath)
	}
	switch {
	case fi.Mode()&os.ModeSymlink != 0:
		return destSym, nil
	case fi.IsDir():
		return destDir, nil
	case fi.Mode().IsRegular():
		return destFile, nil
	default:
		return destMisc, nil
	}
}

func (m *Merger) mergeFile(srcPath, dstPath, rel string, apply bool) error {
	dk, err := classifyDest(dstPath)
	if err != nil {
		return err
	}
	switch dk {
	case destDir:
		return errors.Errorf("merger: %s: file in image would overwrite a directory", rel)
	case destFile:
		if m.Hooks.ConfigProtected != nil && m.Hooks.ConfigProtected(srcPath, dstPath) {
			protectedPath := configProtectPath(dstPath)
			if apply {
				if err := m.copyInto(srcPath, protectedPath); err != nil {
					return err
				}
				if m.Hooks.UsedConfigProtectPath != nil {
					m.Hooks.UsedConfigProtectPath(protectedPath)
				}
			}
			return nil // config-protected writes are not recorded as owned Contents
		}
		fallthrough
	case destNothing, destSym, destMisc:
		if dk == destSym && apply {
			if err := os.Remove(dstPath); err != nil {
				return errors.Wrapf(err, "merger: removing symlink at %s", dstPath)
			}
		}
		if apply {
			if err := m.copyInto(srcPath, dstPath); err != nil {
				return err
			}
		}
		m.record(pkgid.EntryFile, rel, "")
		return nil
	}
	return nil
}

func (m *Merger) mergeDir(srcPath, dstPath, rel string, apply bool) error {
	empty, err := dirIsEmpty(srcPath)
	if err != nil {
		return err
	}
	if empty && !m.Options.AllowEmptyDirs {
		return errors.Errorf("merger: %s: empty directory not permitted (set AllowEmptyDirs to allow)", rel)
	}

	dk, err := classifyDest(dstPath)
	if err != nil {
		return err
	}
	switch dk {
	case destFile, destMisc:
		return errors.Errorf("merger: %s: directory in image would overwrite a %s", rel, destKindName(dk))
	case destSym:
		if apply {
			if err := os.Remove(dstPath); err != nil {
				return errors.Wrapf(err, "merger: replacing symlink with directory at %s", dstPath)
			}
			if err := os.Mkdir(dstPath, srcMode(srcPath)); err != nil {
				return errors.Wrapf(err, "merger: creating %s", dstPath)
			}
		}
	case destNothing:
		if apply {
			if err := os.Mkdir(dstPath, srcMode(srcPath)); err != nil && !os.IsExist(err) {
				return errors.Wrapf(err, "merger: creating %s", dstPath)
			}
		}
	case destDir:
		// descend: nothing to do here, godirwalk recurses on its own.
	}
	if apply {
		m.fixOwnership(srcPath, dstPath)
	}
	m.record(pkgid.EntryDir, rel, "")
	return nil
}

func (m *Merger) mergeSym(srcPath, dstPath, rel string, apply bool) error {
	target, err := os.Readlink(srcPath)
	if err != nil {
		return errors.Wrapf(err, "merger: reading symlink %s", srcPath)
	}
	if strings.HasPrefix(target, m.ImageDir) {
		if !m.Options.RewriteSymlinks {
			return errors.Errorf("merger: %s: symlink target %q points back into the image directory", rel, target)
		}
		rewritten, err := filepath.Rel(filepath.Dir(dstPath), filepath.Join(m.Root, strings.TrimPrefix(target, m.ImageDir)))
		if err != nil {
			return errors.Wrapf(err, "merger: rewriting symlink target for %s", rel)
		}
		target = rewritten
	}

	dk, err := classifyDest(dstPath)
	if err != nil {
		return err
	}
	if dk == destDir {
		return errors.Errorf("merger: %s: symlink in image would overwrite a directory", rel)
	}
	if apply {
		if dk != destNothing {
			if err := os.Remove(dstPath); err != nil {
				return errors.Wrapf(err, "merger: removing existing entry at %s", dstPath)
			}
		}
		if err := os.Symlink(target, dstPath); err != nil {
			return errors.Wrapf(err, "merger: creating symlink %s", dstPath)
		}
	}
	m.record(pkgid.EntrySym, rel, target)
	return nil
}

func (m *Merger) mergeMisc(srcPath, dstPath, rel string, de *godirwalk.Dirent, apply bool) error {
	dk, err := classifyDest(dstPath)
	if err != nil {
		return err
	}
	if dk == destDir {
		return errors.Errorf("merger: %s: special file in image would overwrite a directory", rel)
	}
	if apply {
		if dk != destNothing {
			if err := os.Remove(dstPath); err != nil {
				return errors.Wrapf(err, "merger: removing existing entry at %s", dstPath)
			}
		}
		if err := cloneSpecial(srcPath, dstPath); err != nil {
			return err
		}
	}
	kind := pkgid.EntryOther
	switch {
	case de.ModeType()&os.ModeNamedPipe != 0:
		kind = pkgid.EntryFIFO
	case de.ModeType()&os.ModeDevice != 0:
		kind = pkgid.EntryDev
	}
	m.record(kind, rel, "")
	return nil
}

func (m *Merger) copyInto(srcPath, dstPath string) error {
	if err := os.MkdirAll(filepath.Dir(dstPath), 0o755); err != nil {
		return errors.Wrapf(err, "merger: creating parent directories for %s", dstPath)
	}
	if err := shutil.CopyFile(srcPath, dstPath, false); err != nil {
		return errors.Wrapf(err, "merger: copying %s to %s", srcPath, dstPath)
	}
	if err := m.fixMtime(dstPath); err != nil {
		return err
	}
	m.fixOwnership(srcPath, dstPath)
	return nil
}

func (m *Merger) fixMtime(dstPath string) error {
	if m.FixMtimesBefore.IsZero() {
		return nil
	}
	fi, err := os.Lstat(dstPath)
	if err != nil {
		return errors.Wrapf(err, "merger: stat %s for mtime fixup", dstPath)
	}
	if fi.ModTime().Before(m.FixMtimesBefore) {
		if err := os.Chtimes(dstPath, m.FixMtimesBefore, m.FixMtimesBefore); err != nil {
			return errors.Wrapf(err, "merger: fixing mtime of %s", dstPath)
		}
	}
	return nil
}

func (m *Merger) fixOwnership(srcPath, dstPath string) {
	if m.Options.NoChown || m.Hooks.GetNewIDs == nil {
		return
	}
	uid, gid := m.Hooks.GetNewIDs(srcPath)
	if uid < 0 && gid < 0 {
		return
	}
	_ = os.Lchown(dstPath, uid, gid) // best-effort: a failed chown is ignored
}

func (m *Merger) record(kind pkgid.EntryKind, rel, symTarget string) {
	m.entries.Add(pkgid.ContentsEntry{Kind: kind, Location: filepath.Join("/", rel), SymTarget: symTarget})
}

func configProtectPath(dstPath string) string {
	dir, base := filepath.Split(dstPath)
	for n := 0; n < 10000; n++ {
		candidate := filepath.Join(dir, fmt.Sprintf("._cfg%04d_%s", n, base))
		if _, err := os.Lstat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
	return filepath.Join(dir, "._cfg9999_"+base)
}

func dirIsEmpty(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, errors.Wrapf(err, "merger: opening %s", path)
	}
	defer f.Close()
	_, err = f.Readdirnames(1)
	if err == nil {
		return false, nil
	}
	return true, nil
}

func srcMode(srcPath string) os.FileMode {
	fi, err := os.Lstat(srcPath)
	if err != nil {
		return 0o755
	}
	return fi.Mode().Perm()
}

func destKindName(dk destKind) string {
	switch dk {
	case destFile:
		return "file"
	case destDir:
		return "directory"
	case destSym:
		return "symlink"
	case destMisc:
		return "special file"
	default:
		return "nothing"
	}
}

func cloneSpecial(srcPath, dstPath string) error {
	fi, err := os.Lstat(srcPath)
	if err != nil {
		return errors.Wrapf(err, "merger: stat %s", srcPath)
	}
	stat, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return errors.Errorf("merger: cannot determine device numbers for %s", srcPath)
	}
	if err := syscall.Mknod(dstPath, uint32(fi.Mode()), int(stat.Rdev)); err != nil {
		return errors.Wrapf(err, "merger: creating special file %s", dstPath)
	}
	return nil
}

// Unmerge removes a previously installed Contents from root, walking
// entries in reverse order: files and symlinks first, directories last
// (and only if they ended up empty), matching the order Merge recorded
// them in.
func Unmerge(root string, contents pkgid.Contents, hooks Hooks) error {
	for _, e := range contents.Reversed() {
		path := filepath.Join(root, e.Location)
		if hooks.IgnoreForUnmerge != nil && hooks.IgnoreForUnmerge(path) {
			continue
		}
		switch e.Kind {
		case pkgid.EntryDir:
			empty, err := dirIsEmpty(path)
			if err != nil {
				if os.IsNotExist(err) {
					continue
				}
				return err
			}
			if !empty {
				continue
			}
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				return errors.Wrapf(err, "unmerge: removing directory %s", path)
			}
		default:
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				return errors.Wrapf(err, "unmerge: removing %s", path)
			}
		}
	}
	return nil
}
