// Package choice implements Choice and Choices, the engine's model of a
// package's USE-flag-like configurable options and their resolved values.
package choice

import (
	"github.com/solvd/pkgcore/internal/name"
)

// Origin records why a ChoiceValue has the value it has, used to decide
// whether a dependency's "[flag?]" conditional should follow the explicit
// profile/user setting or fall back to the choice's default.
type Origin int

const (
	// OriginImplicit means the value came from the package's declared
	// default, with no explicit override.
	OriginImplicit Origin = iota
	// OriginExplicit means a profile, user configuration, or command line
	// request set the value.
	OriginExplicit
)

// ChoiceValue is a single configurable option within a Choice group: a name,
// whether it is enabled, and whether that value is locked (forced or
// masked) against further change.
type ChoiceValue struct {
	Name        name.UnprefixedChoiceName
	Enabled     bool
	Locked      bool
	Origin      Origin
	Description string
}

// QualifiedName returns the value's name prefixed by its Choice group's
// prefix, e.g. "cpu_flags_x86_sse2", or just the unprefixed name if prefix
// is empty.
func (v ChoiceValue) QualifiedName(prefix name.ChoicePrefixName) string {
	if prefix == "" {
		return string(v.Name)
	}
	return string(prefix) + "_" + string(v.Name)
}

// Choice is a named group of related ChoiceValues, e.g. all of the
// "cpu_flags_x86" flags for a single package.
type Choice struct {
	Prefix               name.ChoicePrefixName
	Hidden               bool // not shown in default listings (e.g. build-time-only flags)
	ShowWithNoPrefix      bool // values render unprefixed in textual dep specs
	ConsiderAddedOrChanged bool // participate in ChangedChoices comparisons
	Values               []ChoiceValue
}

// Find returns the value named n within c, and whether it was found.
func (c Choice) Find(n name.UnprefixedChoiceName) (ChoiceValue, bool) {
	for _, v := range c.Values {
		if v.Name == n {
			return v, true
		}
	}
	return ChoiceValue{}, false
}

// Choices is the ordered collection of Choice groups belonging to a single
// PackageID.
type Choices struct {
	Groups []Choice
}

// Find looks up a value by (prefix, name) across every group, returning
// false if no group has that prefix or no value in it has that name.
func (c Choices) Find(prefix name.ChoicePrefixName, n name.UnprefixedChoiceName) (ChoiceValue, bool) {
	for _, g := range c.Groups {
		if g.Prefix != prefix {
			continue
		}
		return g.Find(n)
	}
	return ChoiceValue{}, false
}

// Enabled reports whether the named value is present and enabled.
func (c Choices) Enabled(prefix name.ChoicePrefixName, n name.UnprefixedChoiceName) bool {
	v, ok := c.Find(prefix, n)
	return ok && v.Enabled
}

// ChangedChoices records the subset of Choices that differ in enabled state
// between two PackageIDs of the same QualifiedPackageName, e.g. to decide
// whether a ":=" slot operator dependency needs a rebuild.
type ChangedChoices struct {
	Prefix  name.ChoicePrefixName
	Name    name.UnprefixedChoiceName
	Before  bool
	After   bool
}

// Diff computes the ChangedChoices between "from" and "to", considering
// only groups with ConsiderAddedOrChanged set.
func Diff(from, to Choices) []ChangedChoices {
	var out []ChangedChoices
	for _, g := range to.Groups {
		if !g.ConsiderAddedOrChanged {
			continue
		}
		for _, v := range g.Values {
			oldVal, existed := from.Find(g.Prefix, v.Name)
			oldEnabled := existed && oldVal.Enabled
			if oldEnabled != v.Enabled {
				out = append(out, ChangedChoices{
					Prefix: g.Prefix,
					Name:   v.Name,
					Before: oldEnabled,
					After:  v.Enabled,
				})
			}
		}
	}
	return out
}
