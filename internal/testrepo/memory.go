// Package testrepo provides reference repo.Repository implementations used
// by tests elsewhere in the module: an in-memory repository holding a
// fixed set of PackageIDs, and a VCS-backed repository whose Sync actually
// checks out or updates a remote.
package testrepo

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/solvd/pkgcore/internal/name"
	"github.com/solvd/pkgcore/internal/pkgid"
	"github.com/solvd/pkgcore/internal/repo"
)

// Memory is an in-memory repo.Repository holding a fixed, directly
// populated set of PackageIDs, in the spirit of paludis's unpackaged
// repository (which serves a single precomputed PackageID out of an
// in-memory sequence rather than reading any on-disk format).
type Memory struct {
	RepoName     name.RepositoryName
	IDs          []pkgid.PackageID
	InstalledAt  string // empty unless this Memory represents an installed root
	SupportsSync bool

	destination *memoryDestination
}

// NewMemory constructs an empty in-memory repository; use Add to populate
// it.
func NewMemory(rn name.RepositoryName) *Memory {
	return &Memory{RepoName: rn}
}

// Add inserts id, returning m for chaining.
func (m *Memory) Add(id pkgid.PackageID) *Memory {
	m.IDs = append(m.IDs, id)
	return m
}

// AsWritableDestination installs a Destination view that records merges
// in-process instead of touching any filesystem, for tests that exercise
// InstallJob wiring without a real image directory.
func (m *Memory) AsWritableDestination(isDefault bool) *Memory {
	m.destination = &memoryDestination{owner: m, isDefault: isDefault}
	return m
}

func (m *Memory) Name() name.RepositoryName { return m.RepoName }

func (m *Memory) HasCategory(c name.CategoryNamePart) bool {
	for _, id := range m.IDs {
		if id.Name.Category == c {
			return true
		}
	}
	return false
}

func (m *Memory) HasPackage(qpn name.QualifiedPackageName) bool {
	for _, id := range m.IDs {
		if id.Name == qpn {
			return true
		}
	}
	return false
}

func (m *Memory) CategoryNames() []name.CategoryNamePart {
	seen := make(map[name.CategoryNamePart]bool)
	var out []name.CategoryNamePart
	for _, id := range m.IDs {
		if !seen[id.Name.Category] {
			seen[id.Name.Category] = true
			out = append(out, id.Name.Category)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (m *Memory) PackageNames(c name.CategoryNamePart) []name.PackageNamePart {
	seen := make(map[name.PackageNamePart]bool)
	var out []name.PackageNamePart
	for _, id := range m.IDs {
		if id.Name.Category == c && !seen[id.Name.Package] {
			seen[id.Name.Package] = true
			out = append(out, id.Name.Package)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (m *Memory) PackageIDs(qpn name.QualifiedPackageName) []pkgid.PackageID {
	var out []pkgid.PackageID
	for _, id := range m.IDs {
		if id.Name == qpn {
			out = append(out, id)
		}
	}
	return out
}

func (m *Memory) SomeIDsMightSupportAction(k repo.ActionKind) bool {
	switch k {
	case repo.ActionInstall, repo.ActionFetch:
		return m.InstalledAt == ""
	case repo.ActionUninstall:
		return m.InstalledAt != ""
	default:
		return true
	}
}

func (m *Memory) SomeIDsMightNotBeMasked() bool { return true }

func (m *Memory) InstalledRoot() (string, bool) {
	if m.InstalledAt == "" {
		return "", false
	}
	return m.InstalledAt, true
}

func (m *Memory) Sync(out repo.SyncOutput) error {
	if !m.SupportsSync {
		return errors.Errorf("repository %s does not support syncing", m.RepoName)
	}
	if out != nil {
		out.Write("nothing to do: in-memory repository is already up to date")
	}
	return nil
}

func (m *Memory) PopulateSets() error { return nil }

func (m *Memory) AsDestination() (repo.Destination, bool) {
	if m.destination == nil {
		return nil, false
	}
	return m.destination, true
}

// memoryDestination records merges against its owning Memory repository
// in-process, without touching any filesystem; used by tests that want to
// observe InstallJob wiring reach a Destination without a real merger run.
type memoryDestination struct {
	owner     *Memory
	isDefault bool
	Merged    []repo.DestinationParams
}

func (d *memoryDestination) IsSuitableDestinationFor(id pkgid.PackageID) bool { return true }
func (d *memoryDestination) IsDefaultDestination() bool                      { return d.isDefault }

func (d *memoryDestination) Merge(params repo.DestinationParams) error {
	d.Merged = append(d.Merged, params)
	d.owner.IDs = append(d.owner.IDs, params.ID)
	return nil
}
