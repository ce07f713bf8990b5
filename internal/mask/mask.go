// Package mask implements Mask, the tagged variant recording a single
// reason a PackageID may not be installed, and the algorithm (Compute) that
// derives the full set of masks applying to an id.
package mask

// Kind discriminates the five Mask variants.
type Kind int

const (
	// KindUser is imposed directly by user configuration.
	KindUser Kind = iota
	// KindUnaccepted means a user-inspected metadata value (keyword,
	// license, ...) is not accepted by user configuration.
	KindUnaccepted
	// KindRepository is imposed by the owning repository itself.
	KindRepository
	// KindUnsupported means the id cannot be used at all, e.g. an
	// unrecognised format version.
	KindUnsupported
	// KindAssociation means an id this one is associated with (e.g. a
	// same-slot dependency) is itself masked.
	KindAssociation
)

func (k Kind) String() string {
	switch k {
	case KindUser:
		return "user"
	case KindUnaccepted:
		return "unaccepted"
	case KindRepository:
		return "repository"
	case KindUnsupported:
		return "unsupported"
	case KindAssociation:
		return "association"
	default:
		return "unknown"
	}
}

// Mask is a single reason a PackageID is not installable.
type Mask struct {
	Kind Kind

	// Token is a short machine-stable identifier, present for KindUser and
	// KindRepository.
	Token string

	// Key is the offending metadata key name, present for KindUnaccepted.
	Key string

	// Comment and MaskFile describe a KindRepository mask's source.
	Comment  string
	MaskFile string

	// Explanation is a free-form description, present for KindUnsupported.
	Explanation string

	// AssociatedSpec names the associated package whose mask propagated
	// here, present for KindAssociation.
	AssociatedSpec string
}

// OverrideReason records why a Mask was overridden. The override is
// recorded alongside the mask; it never removes the mask from display.
type OverrideReason struct {
	Mask   Mask
	Reason string
}

// Set is the full collection of masks applying to one PackageID, together
// with any overrides recorded against them.
type Set struct {
	Masks     []Mask
	Overrides []OverrideReason
}

// Masked reports whether any mask applies: the logical OR spec.md mandates.
func (s Set) Masked() bool { return len(s.Masks) > 0 }

// Overridden reports whether every mask in s has a recorded override.
// A masked-but-fully-overridden id may still be selected by a resolver
// willing to accept overrides; s.Masked() remains true regardless.
func (s Set) Overridden() bool {
	if len(s.Masks) == 0 {
		return false
	}
	for _, m := range s.Masks {
		found := false
		for _, o := range s.Overrides {
			if o.Mask == m {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// AddOverride records that reason overrides m. m need not already be a
// member of s.Masks; callers are expected to pass masks drawn from s.Masks.
func (s *Set) AddOverride(m Mask, reason string) {
	s.Overrides = append(s.Overrides, OverrideReason{Mask: m, Reason: reason})
}

// Inputs bundles everything Compute needs to derive the mask set for one
// id, kept deliberately abstract (plain values and callbacks) so this
// package has no dependency on pkgid or environment.
type Inputs struct {
	// UnsupportedReason is non-empty if the repository could not make
	// sense of the id's metadata at all.
	UnsupportedReason string

	// RepositoryMask is set if the owning repository masks this id.
	RepositoryMask *Mask

	// UserMask is set if user configuration masks this id or a spec
	// matching it.
	UserMask *Mask

	// UnacceptedKeys lists the names of user-inspected metadata keys
	// (keywords, license, ...) whose value user configuration does not
	// accept. Order is preserved in the output.
	UnacceptedKeys []string

	// AssociatedMaskedSpecs lists the textual specs of any associated ids
	// that are themselves masked.
	AssociatedMaskedSpecs []string
}

// Compute derives the Set applying to an id from in, in the order spec.md
// §4.4 lists: unsupported, repository, unaccepted-keys, user, association.
func Compute(in Inputs) Set {
	var out Set

	if in.UnsupportedReason != "" {
		out.Masks = append(out.Masks, Mask{Kind: KindUnsupported, Explanation: in.UnsupportedReason})
	}
	if in.RepositoryMask != nil {
		m := *in.RepositoryMask
		m.Kind = KindRepository
		out.Masks = append(out.Masks, m)
	}
	for _, key := range in.UnacceptedKeys {
		out.Masks = append(out.Masks, Mask{Kind: KindUnaccepted, Key: key})
	}
	if in.UserMask != nil {
		m := *in.UserMask
		m.Kind = KindUser
		out.Masks = append(out.Masks, m)
	}
	for _, spec := range in.AssociatedMaskedSpecs {
		out.Masks = append(out.Masks, Mask{Kind: KindAssociation, AssociatedSpec: spec})
	}

	return out
}
