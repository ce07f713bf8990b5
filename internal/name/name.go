// Package name implements the validated newtype strings that name the
// objects the engine reasons about: categories, packages, slots,
// repositories, keywords, sets, and choice prefixes.
//
// Construction from an arbitrary string is fallible: a string that does not
// match the grammar for a given kind produces a *NameError* rather than a
// panic or a silently-truncated value.
package name

import (
	"regexp"

	"github.com/pkg/errors"
)

// NameError reports that a string does not satisfy the grammar required for
// the name kind it was being parsed as.
type NameError struct {
	Kind  string
	Value string
}

func (e *NameError) Error() string {
	return "invalid " + e.Kind + " name: " + fmtQuote(e.Value)
}

func fmtQuote(s string) string {
	return "\"" + s + "\""
}

func newNameError(kind, value string) error {
	return errors.WithStack(&NameError{Kind: kind, Value: value})
}

// namePartGrammar matches a single category/package name part: ASCII
// letters of either case and digits, plus, hyphen, underscore and dot,
// must start with a letter or digit.
var namePartGrammar = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9+_.-]*$`)

// CategoryNamePart names the category component of a qualified package name,
// e.g. "dev-lang" in "dev-lang/python".
type CategoryNamePart string

// NewCategoryNamePart validates s and returns it as a CategoryNamePart.
func NewCategoryNamePart(s string) (CategoryNamePart, error) {
	if !namePartGrammar.MatchString(s) {
		return "", newNameError("category", s)
	}
	return CategoryNamePart(s), nil
}

func (c CategoryNamePart) String() string { return string(c) }

// PackageNamePart names the package component of a qualified package name,
// e.g. "python" in "dev-lang/python".
type PackageNamePart string

// NewPackageNamePart validates s and returns it as a PackageNamePart.
func NewPackageNamePart(s string) (PackageNamePart, error) {
	if !namePartGrammar.MatchString(s) {
		return "", newNameError("package", s)
	}
	return PackageNamePart(s), nil
}

func (p PackageNamePart) String() string { return string(p) }

// QualifiedPackageName is a (category, package) pair, the unit a Repository
// indexes packages by.
type QualifiedPackageName struct {
	Category CategoryNamePart
	Package  PackageNamePart
}

// NewQualifiedPackageName validates and splits "category/package" into its
// parts.
func NewQualifiedPackageName(s string) (QualifiedPackageName, error) {
	idx := -1
	for i, r := range s {
		if r == '/' {
			idx = i
			break
		}
	}
	if idx < 0 {
		return QualifiedPackageName{}, newNameError("qualified package", s)
	}
	cat, err := NewCategoryNamePart(s[:idx])
	if err != nil {
		return QualifiedPackageName{}, err
	}
	pkg, err := NewPackageNamePart(s[idx+1:])
	if err != nil {
		return QualifiedPackageName{}, err
	}
	return QualifiedPackageName{Category: cat, Package: pkg}, nil
}

func (q QualifiedPackageName) String() string {
	return string(q.Category) + "/" + string(q.Package)
}

// Less provides a strict total order over QualifiedPackageName, used for
// deterministic resolver/selection iteration.
func (q QualifiedPackageName) Less(o QualifiedPackageName) bool {
	if q.Category != o.Category {
		return q.Category < o.Category
	}
	return q.Package < o.Package
}

// SlotName names a slot a package version may occupy; packages in distinct
// slots of the same QualifiedPackageName may be installed simultaneously.
type SlotName string

var slotGrammar = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9+_.-]*$`)

// NewSlotName validates s and returns it as a SlotName. The empty string is
// rejected; use a *SlotName to represent "no slot specified".
func NewSlotName(s string) (SlotName, error) {
	if !slotGrammar.MatchString(s) {
		return "", newNameError("slot", s)
	}
	return SlotName(s), nil
}

func (s SlotName) String() string { return string(s) }

// RepositoryName names a Repository within an Environment.
type RepositoryName string

var repoGrammar = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_-]*$`)

// NewRepositoryName validates s and returns it as a RepositoryName.
func NewRepositoryName(s string) (RepositoryName, error) {
	if !repoGrammar.MatchString(s) {
		return "", newNameError("repository", s)
	}
	return RepositoryName(s), nil
}

func (r RepositoryName) String() string { return string(r) }

// KeywordName names an architecture/stability keyword, e.g. "amd64" or
// "~amd64".
type KeywordName string

var keywordGrammar = regexp.MustCompile(`^~?-?[a-zA-Z0-9][a-zA-Z0-9_-]*$|^-\*$`)

// NewKeywordName validates s and returns it as a KeywordName.
func NewKeywordName(s string) (KeywordName, error) {
	if !keywordGrammar.MatchString(s) {
		return "", newNameError("keyword", s)
	}
	return KeywordName(s), nil
}

func (k KeywordName) String() string { return string(k) }

// SetName names a user- or environment-defined package set, e.g. "world" or
// "system". The leading "@" used in textual references is not part of the
// name itself.
type SetName string

var setGrammar = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9+_.-]*$`)

// NewSetName validates s and returns it as a SetName.
func NewSetName(s string) (SetName, error) {
	if !setGrammar.MatchString(s) {
		return "", newNameError("set", s)
	}
	return SetName(s), nil
}

func (s SetName) String() string { return string(s) }

// ChoicePrefixName names the prefix of a prefixed choice group, e.g. "cpu_flags_x86".
type ChoicePrefixName string

// NewChoicePrefixName validates s and returns it as a ChoicePrefixName.
func NewChoicePrefixName(s string) (ChoicePrefixName, error) {
	if !namePartGrammar.MatchString(s) {
		return "", newNameError("choice prefix", s)
	}
	return ChoicePrefixName(s), nil
}

func (c ChoicePrefixName) String() string { return string(c) }

// UnprefixedChoiceName names a choice value without any group prefix, e.g.
// "sse2" within the "cpu_flags_x86" group.
type UnprefixedChoiceName string

var choiceGrammar = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9+_-]*$`)

// NewUnprefixedChoiceName validates s and returns it as an UnprefixedChoiceName.
func NewUnprefixedChoiceName(s string) (UnprefixedChoiceName, error) {
	if !choiceGrammar.MatchString(s) {
		return "", newNameError("choice", s)
	}
	return UnprefixedChoiceName(s), nil
}

func (u UnprefixedChoiceName) String() string { return string(u) }
