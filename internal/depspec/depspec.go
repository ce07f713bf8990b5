// Package depspec implements PackageDepSpec and BlockDepSpec, the structured
// package references that spec-tree leaves (see package spectree) carry.
//
// Concrete parsing of a repository format's textual dep-spec grammar is out
// of scope (spec.md §1): this package only holds and builds already-parsed
// specs, via PackageDepSpecBuilder.
package depspec

import (
	"strings"

	"github.com/solvd/pkgcore/internal/name"
	"github.com/solvd/pkgcore/internal/version"
)

// CombineMode says how a VersionRequirements' individual requirements
// combine.
type CombineMode int

const (
	// CombineAnd requires every requirement to hold.
	CombineAnd CombineMode = iota
	// CombineOr requires at least one requirement to hold.
	CombineOr
)

// VersionRequirement pairs a version.Operator with the operand version it
// compares against.
type VersionRequirement struct {
	Op      version.Operator
	Version version.VersionSpec
}

// VersionRequirements is a list of VersionRequirement combined by And or Or.
type VersionRequirements struct {
	Mode  CombineMode
	Reqs  []VersionRequirement
}

// Matches reports whether have satisfies vr.
func (vr VersionRequirements) Matches(have version.VersionSpec) bool {
	if len(vr.Reqs) == 0 {
		return true
	}
	switch vr.Mode {
	case CombineOr:
		for _, r := range vr.Reqs {
			if r.Op.Matches(have, r.Version) {
				return true
			}
		}
		return false
	default: // CombineAnd
		for _, r := range vr.Reqs {
			if !r.Op.Matches(have, r.Version) {
				return false
			}
		}
		return true
	}
}

// SlotRequirementKind distinguishes the three textual forms a slot
// requirement may take: ":slot", ":*", and ":=".
type SlotRequirementKind int

const (
	// SlotExact requires the exact named slot (":slot").
	SlotExact SlotRequirementKind = iota
	// SlotAny matches any slot at all (":*").
	SlotAny
	// SlotRebuild requires "the slot currently selected elsewhere" to be
	// re-derived at resolve time (":=").
	SlotRebuild
)

// SlotRequirement is a ":slot" / ":*" / ":=" constraint on a PackageDepSpec.
type SlotRequirement struct {
	Kind SlotRequirementKind
	Slot name.SlotName // meaningful only when Kind == SlotExact
}

// ChoiceRequirementKind distinguishes the four textual forms of a choice
// (USE flag) requirement.
type ChoiceRequirementKind int

const (
	// ChoiceEnabled requires the flag to be enabled ("[flag]").
	ChoiceEnabled ChoiceRequirementKind = iota
	// ChoiceDisabled requires the flag to be disabled ("[-flag]").
	ChoiceDisabled
	// ChoiceConditional requires the flag to match the depending
	// package's own value for the same flag ("[flag?]").
	ChoiceConditional
	// ChoiceEquals requires the flag's value to equal the depending
	// package's own value for the same flag ("[flag=]").
	ChoiceEquals
)

// ChoiceRequirement is a single "[...]" choice requirement on a
// PackageDepSpec.
type ChoiceRequirement struct {
	Kind   ChoiceRequirementKind
	Prefix name.ChoicePrefixName // empty if unprefixed
	Name   name.UnprefixedChoiceName
}

// KeyRequirement is a "[.key=value]" metadata key-match requirement.
type KeyRequirement struct {
	Key   string
	Value string
}

// PackageDepSpec is a structured package reference: a (possibly wildcarded)
// name, combined with any number of version/slot/repository/choice/key
// requirements.
type PackageDepSpec struct {
	Category name.CategoryNamePart // zero value + CategoryWildcard means "any category"
	Package  name.PackageNamePart  // zero value + PackageWildcard means "any package"

	CategoryWildcard bool
	PackageWildcard  bool

	VersionRequirements VersionRequirements
	Slot                *SlotRequirement

	InRepository            *name.RepositoryName
	FromRepository          *name.RepositoryName
	InstalledAtPath         *string
	InstallableToRepository *name.RepositoryName
	InstallableToPath       *string

	Choices []ChoiceRequirement
	Keys    []KeyRequirement
}

// QualifiedName reports the (category, package) this spec names; whether
// either half is wildcarded is held in CategoryWildcard and PackageWildcard.
func (p PackageDepSpec) QualifiedName() name.QualifiedPackageName {
	return name.QualifiedPackageName{Category: p.Category, Package: p.Package}
}

// String renders p in its canonical form, for error messages and trace
// output.
func (p PackageDepSpec) String() string {
	var b strings.Builder
	if p.CategoryWildcard {
		b.WriteString("*")
	} else {
		b.WriteString(string(p.Category))
	}
	b.WriteString("/")
	if p.PackageWildcard {
		b.WriteString("*")
	} else {
		b.WriteString(string(p.Package))
	}
	for _, r := range p.VersionRequirements.Reqs {
		b.WriteString("-")
		b.WriteString(r.Op.String())
		b.WriteString(r.Version.String())
	}
	if p.Slot != nil {
		b.WriteString(":")
		switch p.Slot.Kind {
		case SlotAny:
			b.WriteString("*")
		case SlotRebuild:
			b.WriteString("=")
		default:
			b.WriteString(string(p.Slot.Slot))
		}
	}
	for _, c := range p.Choices {
		b.WriteString("[")
		if c.Kind == ChoiceDisabled {
			b.WriteString("-")
		}
		if c.Prefix != "" {
			b.WriteString(string(c.Prefix))
			b.WriteString("_")
		}
		b.WriteString(string(c.Name))
		switch c.Kind {
		case ChoiceConditional:
			b.WriteString("?")
		case ChoiceEquals:
			b.WriteString("=")
		}
		b.WriteString("]")
	}
	return b.String()
}

// BlockDepSpec wraps a PackageDepSpec with a block strength: a strong block
// means the matched package must never be installed simultaneously with the
// blocking package, a weak block may be deferred to uninstall ordering.
type BlockDepSpec struct {
	Spec   PackageDepSpec
	Strong bool
}

func (b BlockDepSpec) String() string {
	prefix := "!!"
	if !b.Strong {
		prefix = "!"
	}
	return prefix + b.Spec.String()
}

// PackageDepSpecBuilder incrementally assembles a PackageDepSpec from
// already-parsed parts. It is the only supported way to construct a
// PackageDepSpec outside of copying an existing one, mirroring the
// builder-from-partial-data requirement in spec.md §3.
type PackageDepSpecBuilder struct {
	spec PackageDepSpec
}

// NewPackageDepSpecBuilder starts a builder for the given qualified package
// name.
func NewPackageDepSpecBuilder(q name.QualifiedPackageName) *PackageDepSpecBuilder {
	return &PackageDepSpecBuilder{spec: PackageDepSpec{Category: q.Category, Package: q.Package}}
}

// NewWildcardCategoryBuilder starts a builder for "*/package".
func NewWildcardCategoryBuilder(p name.PackageNamePart) *PackageDepSpecBuilder {
	return &PackageDepSpecBuilder{spec: PackageDepSpec{Package: p, CategoryWildcard: true}}
}

// NewWildcardPackageBuilder starts a builder for "category/*".
func NewWildcardPackageBuilder(c name.CategoryNamePart) *PackageDepSpecBuilder {
	return &PackageDepSpecBuilder{spec: PackageDepSpec{Category: c, PackageWildcard: true}}
}

// Version appends a version requirement, combined with existing
// requirements by mode.
func (b *PackageDepSpecBuilder) Version(op version.Operator, v version.VersionSpec, mode CombineMode) *PackageDepSpecBuilder {
	b.spec.VersionRequirements.Mode = mode
	b.spec.VersionRequirements.Reqs = append(b.spec.VersionRequirements.Reqs, VersionRequirement{Op: op, Version: v})
	return b
}

// Slot sets the slot requirement.
func (b *PackageDepSpecBuilder) Slot(s SlotRequirement) *PackageDepSpecBuilder {
	b.spec.Slot = &s
	return b
}

// InRepository sets the in-repository requirement.
func (b *PackageDepSpecBuilder) InRepository(r name.RepositoryName) *PackageDepSpecBuilder {
	b.spec.InRepository = &r
	return b
}

// FromRepository sets the from-repository requirement.
func (b *PackageDepSpecBuilder) FromRepository(r name.RepositoryName) *PackageDepSpecBuilder {
	b.spec.FromRepository = &r
	return b
}

// Choice appends a choice requirement.
func (b *PackageDepSpecBuilder) Choice(c ChoiceRequirement) *PackageDepSpecBuilder {
	b.spec.Choices = append(b.spec.Choices, c)
	return b
}

// Key appends a key-match requirement.
func (b *PackageDepSpecBuilder) Key(k KeyRequirement) *PackageDepSpecBuilder {
	b.spec.Keys = append(b.spec.Keys, k)
	return b
}

// Build finalises the builder into an immutable PackageDepSpec. The returned
// spec shares no mutable state with the builder.
func (b *PackageDepSpecBuilder) Build() PackageDepSpec {
	out := b.spec
	out.VersionRequirements.Reqs = append([]VersionRequirement(nil), b.spec.VersionRequirements.Reqs...)
	out.Choices = append([]ChoiceRequirement(nil), b.spec.Choices...)
	out.Keys = append([]KeyRequirement(nil), b.spec.Keys...)
	return out
}
