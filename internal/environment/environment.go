// Package environment implements Environment, the process-wide context the
// rest of the engine is threaded through: the ordered repository list, user
// configuration, named package sets, hook directories, mirrors, and the
// reduced-privilege identity used for the build driver.
package environment

import (
	"github.com/pkg/errors"

	"github.com/solvd/pkgcore/internal/depspec"
	"github.com/solvd/pkgcore/internal/name"
	"github.com/solvd/pkgcore/internal/repo"
)

// OutputManager receives user-facing progress text during a resolve or
// merge; Environment holds only a factory for one, since the concrete
// implementation (terminal, log file, ...) is a caller concern.
type OutputManager interface {
	Write(line string)
}

// OutputManagerFactory constructs an OutputManager for one job or resolve
// run.
type OutputManagerFactory func() OutputManager

// ReducedPrivilege names the uid/gid the build driver should drop to, if
// any.
type ReducedPrivilege struct {
	UID int
	GID int
	Set bool
}

// NamedSet is a package set: either the fixed "world"/"everything"
// sets the Environment itself derives, or a user-defined one built from a
// SetSpecTree.
type NamedSet struct {
	Name    name.SetName
	Members []depspec.PackageDepSpec
}

// Environment is process-wide context, constructed once at startup and held
// for the life of the program.
type Environment struct {
	Repositories []repo.Repository

	UserConfig UserConfig
	world      *World

	namedSets map[name.SetName]NamedSet

	HookDirectories []string
	Mirrors         map[string][]string
	Privilege       ReducedPrivilege

	outputFactory OutputManagerFactory
}

// New constructs an Environment from already-loaded configuration. The
// world file at worldPath is opened (not necessarily created) exactly as
// given.
func New(repos []repo.Repository, cfg UserConfig, worldPath string, outFactory OutputManagerFactory) *Environment {
	return &Environment{
		Repositories:    repos,
		UserConfig:      cfg,
		world:           NewWorld(worldPath),
		namedSets:       make(map[name.SetName]NamedSet),
		HookDirectories: cfg.HookDirectories,
		Mirrors:         cfg.Mirrors,
		outputFactory:   outFactory,
	}
}

// World returns the environment's world-set file handle.
func (e *Environment) World() *World { return e.world }

// NewOutputManager constructs one OutputManager via the configured factory,
// or nil if none was configured.
func (e *Environment) NewOutputManager() OutputManager {
	if e.outputFactory == nil {
		return nil
	}
	return e.outputFactory()
}

// RepositoryNamed looks up a repository by name.
func (e *Environment) RepositoryNamed(rn name.RepositoryName) (repo.Repository, bool) {
	for _, r := range e.Repositories {
		if r.Name() == rn {
			return r, true
		}
	}
	return nil, false
}

// DefineSet registers a user-defined named set.
func (e *Environment) DefineSet(s NamedSet) { e.namedSets[s.Name] = s }

// Set looks up a named set by name, including the built-in "world" set
// (read fresh from the world file on every call, since set membership must
// reflect concurrent world-file mutation) and "everything" (every
// repository's installed ids, expressed as name-only specs, one per
// installed id).
func (e *Environment) Set(n name.SetName) (NamedSet, error) {
	switch n.String() {
	case "world":
		return e.worldSet()
	case "everything":
		return e.everythingSet()
	}
	s, ok := e.namedSets[n]
	if !ok {
		return NamedSet{}, errors.Errorf("no such set %q", n)
	}
	return s, nil
}

func (e *Environment) worldSet() (NamedSet, error) {
	entries, err := e.world.Entries()
	if err != nil {
		return NamedSet{}, errors.Wrap(err, "reading world set")
	}
	var members []depspec.PackageDepSpec
	for _, entry := range entries {
		qpn, err := name.NewQualifiedPackageName(entry)
		if err != nil {
			continue // tolerate lines this engine's name grammar can't parse (e.g. set refs)
		}
		members = append(members, depspec.NewPackageDepSpecBuilder(qpn).Build())
	}
	return NamedSet{Name: "world", Members: members}, nil
}

func (e *Environment) everythingSet() (NamedSet, error) {
	var members []depspec.PackageDepSpec
	for _, r := range e.Repositories {
		if _, ok := r.InstalledRoot(); !ok {
			continue
		}
		for _, cat := range r.CategoryNames() {
			for _, pkg := range r.PackageNames(cat) {
				qpn := name.QualifiedPackageName{Category: cat, Package: pkg}
				for range r.PackageIDs(qpn) {
					members = append(members, depspec.NewPackageDepSpecBuilder(qpn).Build())
				}
			}
		}
	}
	return NamedSet{Name: "everything", Members: members}, nil
}
