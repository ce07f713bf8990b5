// Package repo implements the Repository interface and the
// Generator/Filter/Selection query pipeline used to pull candidate
// PackageIDs out of one or more repositories.
package repo

import (
	"github.com/pkg/errors"

	"github.com/solvd/pkgcore/internal/depspec"
	"github.com/solvd/pkgcore/internal/mask"
	"github.com/solvd/pkgcore/internal/name"
	"github.com/solvd/pkgcore/internal/pkgid"
)

// ActionKind names the action kinds SomeIDsMightSupportAction asks about.
type ActionKind int

const (
	// ActionFetch is the fetch action.
	ActionFetch ActionKind = iota
	// ActionInstall is the install action.
	ActionInstall
	// ActionUninstall is the uninstall action.
	ActionUninstall
	// ActionInfo is the info action.
	ActionInfo
	// ActionConfig is the config action.
	ActionConfig
	// ActionPretend is the pretend (dry-run) action.
	ActionPretend
)

// SyncOutput receives progress text from Repository.Sync.
type SyncOutput interface {
	Write(line string)
}

// DestinationParams carries what Merge needs to install one id.
type DestinationParams struct {
	ID        pkgid.PackageID
	ImageDir  string
	Replacing []depspec.PackageDepSpec
}

// Destination is the subset of Repository behaviour that applies only to
// repositories capable of receiving installs (e.g. a live installed-root
// repository, never a remote source repository).
type Destination interface {
	IsSuitableDestinationFor(id pkgid.PackageID) bool
	IsDefaultDestination() bool
	Merge(params DestinationParams) error
}

// Repository is an unordered container of PackageIDs, the core engine's only
// abstraction over concrete on-disk/remote package sources.
type Repository interface {
	Name() name.RepositoryName

	HasCategory(c name.CategoryNamePart) bool
	HasPackage(qpn name.QualifiedPackageName) bool
	CategoryNames() []name.CategoryNamePart
	PackageNames(c name.CategoryNamePart) []name.PackageNamePart
	PackageIDs(qpn name.QualifiedPackageName) []pkgid.PackageID

	SomeIDsMightSupportAction(k ActionKind) bool
	SomeIDsMightNotBeMasked() bool

	// InstalledRoot returns (path, true) iff this repository represents a
	// live installed tree.
	InstalledRoot() (string, bool)

	Sync(out SyncOutput) error
	PopulateSets() error

	// AsDestination returns the Destination view of this repository, and
	// whether it has one at all.
	AsDestination() (Destination, bool)
}

// Generator produces an initial, unfiltered candidate sequence of
// PackageIDs from a set of repositories.
type Generator interface {
	Generate(repos []Repository) []pkgid.PackageID
}

// GeneratorFunc adapts a function to a Generator.
type GeneratorFunc func(repos []Repository) []pkgid.PackageID

// Generate implements Generator.
func (f GeneratorFunc) Generate(repos []Repository) []pkgid.PackageID { return f(repos) }

// All generates every PackageID across every package in every repository.
func All() Generator {
	return GeneratorFunc(func(repos []Repository) []pkgid.PackageID {
		var out []pkgid.PackageID
		for _, r := range repos {
			for _, cat := range r.CategoryNames() {
				for _, pkg := range r.PackageNames(cat) {
					out = append(out, r.PackageIDs(name.QualifiedPackageName{Category: cat, Package: pkg})...)
				}
			}
		}
		return out
	})
}

// Package generates every PackageID of a single qualified package name
// across the given repositories.
func Package(qpn name.QualifiedPackageName) Generator {
	return GeneratorFunc(func(repos []Repository) []pkgid.PackageID {
		var out []pkgid.PackageID
		for _, r := range repos {
			if r.HasPackage(qpn) {
				out = append(out, r.PackageIDs(qpn)...)
			}
		}
		return out
	})
}

// InRepository restricts generation to the named repository.
func InRepository(rn name.RepositoryName) Generator {
	return GeneratorFunc(func(repos []Repository) []pkgid.PackageID {
		for _, r := range repos {
			if r.Name() == rn {
				return All().Generate([]Repository{r})
			}
		}
		return nil
	})
}

// Category restricts generation to one category across the given
// repositories, using a per-repository radix index of category names to
// answer the HasCategory-style membership test.
func Category(c name.CategoryNamePart) Generator {
	return GeneratorFunc(func(repos []Repository) []pkgid.PackageID {
		var out []pkgid.PackageID
		for _, r := range repos {
			idx := newCategoryIndex(r)
			if !idx.has(string(c)) {
				continue
			}
			for _, pkg := range r.PackageNames(c) {
				out = append(out, r.PackageIDs(name.QualifiedPackageName{Category: c, Package: pkg})...)
			}
		}
		return out
	})
}

// Matches restricts generation to ids whose qualified name matches spec's
// (possibly wildcarded) name. The spec's version, slot, repository, choice
// and key requirements are not checked here.
func Matches(spec depspec.PackageDepSpec) Generator {
	return GeneratorFunc(func(repos []Repository) []pkgid.PackageID {
		var candidates []pkgid.PackageID
		switch {
		case spec.CategoryWildcard && spec.PackageWildcard:
			candidates = All().Generate(repos)
		case spec.CategoryWildcard:
			for _, r := range repos {
				for _, cat := range r.CategoryNames() {
					qpn := name.QualifiedPackageName{Category: cat, Package: spec.Package}
					if r.HasPackage(qpn) {
						candidates = append(candidates, r.PackageIDs(qpn)...)
					}
				}
			}
		case spec.PackageWildcard:
			candidates = Category(spec.Category).Generate(repos)
		default:
			candidates = Package(spec.QualifiedName()).Generate(repos)
		}
		return candidates
	})
}

// Filter narrows a candidate sequence.
type Filter interface {
	Keep(id pkgid.PackageID) bool
}

// FilterFunc adapts a function to a Filter.
type FilterFunc func(pkgid.PackageID) bool

// Keep implements Filter.
func (f FilterFunc) Keep(id pkgid.PackageID) bool { return f(id) }

// InstalledAtRoot keeps only ids installed at the given root.
func InstalledAtRoot(rootPath string) Filter {
	return FilterFunc(func(id pkgid.PackageID) bool {
		root, ok := id.InstalledRoot()
		return ok && root == rootPath
	})
}

// NotMasked keeps only unmasked ids.
func NotMasked() Filter {
	return FilterFunc(func(id pkgid.PackageID) bool { return !id.Masked() })
}

// WithMask keeps only ids carrying at least one mask of the given kind.
func WithMask(kind mask.Kind) Filter {
	return FilterFunc(func(id pkgid.PackageID) bool {
		for _, m := range id.Masks.Masks {
			if m.Kind == kind {
				return true
			}
		}
		return false
	})
}

// SameSlot keeps only ids sharing the given id's slot (both nil-slot counts
// as the same slot).
func SameSlot(other pkgid.PackageID) Filter {
	return FilterFunc(func(id pkgid.PackageID) bool { return id.SlotOrEmpty() == other.SlotOrEmpty() })
}

// ByFunction adapts an arbitrary predicate.
func ByFunction(pred func(pkgid.PackageID) bool) Filter { return FilterFunc(pred) }

// Apply keeps only ids satisfying every filter, preserving order.
func Apply(ids []pkgid.PackageID, filters ...Filter) []pkgid.PackageID {
	out := make([]pkgid.PackageID, 0, len(ids))
	for _, id := range ids {
		ok := true
		for _, f := range filters {
			if !f.Keep(id) {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, id)
		}
	}
	return out
}

// ShapeError reports a Selection shape's cardinality requirement was
// violated, e.g. RequireExactlyOne given zero or multiple candidates.
type ShapeError struct {
	Shape string
	Count int
}

func (e *ShapeError) Error() string {
	switch {
	case e.Count == 0:
		return e.Shape + ": no candidates found"
	default:
		return e.Shape + ": ambiguous, found multiple candidates"
	}
}

// Select applies the named result shape to a filtered candidate sequence.
func Select(shape string, ids []pkgid.PackageID) ([]pkgid.PackageID, error) {
	switch shape {
	case "AllVersionsSorted":
		out := append([]pkgid.PackageID(nil), ids...)
		sortByVersion(out)
		return out, nil
	case "BestVersionOnly":
		return bestPerNameSlot(ids), nil
	case "RequireExactlyOne":
		if len(ids) != 1 {
			return nil, errors.WithStack(&ShapeError{Shape: shape, Count: len(ids)})
		}
		return ids, nil
	case "SomeArbitraryVersion":
		if len(ids) == 0 {
			return nil, nil
		}
		return ids[:1], nil
	case "AllVersionsGroupedBySlot":
		out := append([]pkgid.PackageID(nil), ids...)
		sortByVersion(out)
		return out, nil
	default:
		return nil, errors.Errorf("unknown selection shape %q", shape)
	}
}

func sortByVersion(ids []pkgid.PackageID) {
	// insertion sort: candidate lists are small enough in practice
	// (one repository's package_ids(qpn)) that O(n^2) is not a concern,
	// and it keeps PackageID.Less as the single source of ordering truth.
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && pkgid.Less(ids[j], ids[j-1]); j-- {
			ids[j], ids[j-1] = ids[j-1], ids[j]
		}
	}
}

func bestPerNameSlot(ids []pkgid.PackageID) []pkgid.PackageID {
	type key struct {
		qpn  string
		slot string
	}
	best := make(map[key]pkgid.PackageID)
	var order []key
	for _, id := range ids {
		k := key{qpn: id.Name.String(), slot: id.SlotOrEmpty().String()}
		cur, ok := best[k]
		if !ok {
			order = append(order, k)
			best[k] = id
			continue
		}
		if pkgid.Less(cur, id) {
			best[k] = id
		}
	}
	out := make([]pkgid.PackageID, 0, len(order))
	for _, k := range order {
		out = append(out, best[k])
	}
	return out
}
