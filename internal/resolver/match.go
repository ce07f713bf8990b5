package resolver

import (
	"github.com/solvd/pkgcore/internal/depspec"
	"github.com/solvd/pkgcore/internal/name"
	"github.com/solvd/pkgcore/internal/pkgid"
)

// Matches reports whether id satisfies spec, per every requirement a
// PackageDepSpec may carry. This is the concrete realisation of spec.md's
// invariant "match(origin, c.spec)" and lives in the resolver package
// (rather than depspec) because it is the one place allowed to depend on
// both depspec and pkgid.
func Matches(spec depspec.PackageDepSpec, id pkgid.PackageID) bool {
	if !spec.CategoryWildcard && spec.Category != id.Name.Category {
		return false
	}
	if !spec.PackageWildcard && spec.Package != id.Name.Package {
		return false
	}
	if !spec.VersionRequirements.Matches(id.Version) {
		return false
	}
	if spec.Slot != nil {
		switch spec.Slot.Kind {
		case depspec.SlotExact:
			if id.Slot == nil || *id.Slot != spec.Slot.Slot {
				return false
			}
		case depspec.SlotAny, depspec.SlotRebuild:
			// both accept any currently-installed/installable slot; a
			// ":=" rebuild requirement is resolved by the caller deriving
			// a concrete slot constraint once the depender's own slot is
			// known, not by Matches itself.
		}
	}
	if spec.InRepository != nil && *spec.InRepository != id.Repository {
		return false
	}
	if spec.FromRepository != nil && !containsRepo(id.Metadata.FromRepositories, *spec.FromRepository) {
		return false
	}
	for _, req := range spec.Choices {
		if !matchesChoice(req, id) {
			return false
		}
	}
	for _, kr := range spec.Keys {
		if id.Metadata.ExtraKeys == nil || id.Metadata.ExtraKeys[kr.Key] != kr.Value {
			return false
		}
	}
	return true
}

func containsRepo(repos []name.RepositoryName, r name.RepositoryName) bool {
	for _, x := range repos {
		if x == r {
			return true
		}
	}
	return false
}

func matchesChoice(req depspec.ChoiceRequirement, id pkgid.PackageID) bool {
	if id.Metadata.Choices == nil {
		return req.Kind == depspec.ChoiceDisabled
	}
	v, ok := id.Metadata.Choices.Find(req.Prefix, req.Name)
	enabled := ok && v.Enabled
	switch req.Kind {
	case depspec.ChoiceEnabled:
		return enabled
	case depspec.ChoiceDisabled:
		return !enabled
	case depspec.ChoiceConditional, depspec.ChoiceEquals:
		// the depending package's own choice state is not in scope here
		// and the resolver passes the spec on unchanged, so a
		// conditional/equals requirement is accepted for any id that has a
		// choice configuration (an id without one satisfies only disabled
		// requirements).
		return true
	default:
		return false
	}
}
