// Package version implements VersionSpec, the engine's structured version
// number, and VersionOperator, the comparison operators a PackageDepSpec may
// use against it.
//
// VersionSpec intentionally does not use semver: package versions here follow
// an Exherbo/Gentoo-style grammar (an arbitrary-length sequence of numeric
// parts, an optional alpha/beta/pre/rc/p suffix carrying its own number, and
// an optional "-rN" revision) which semver cannot represent. Comparison is
// therefore hand-rolled against that grammar rather than delegated to a
// semver library.
package version

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// SuffixKind identifies the kind of pre/post-release suffix a VersionSpec
// may carry.
type SuffixKind int

// Suffix kinds, in ascending sort order. noneSuffix is never produced by
// Parse; it is the implicit rank a VersionSpec with no Suffix occupies.
const (
	SuffixAlpha SuffixKind = iota
	SuffixBeta
	SuffixPre
	SuffixRC
	noneSuffix
	SuffixP
)

func (k SuffixKind) String() string {
	switch k {
	case SuffixAlpha:
		return "alpha"
	case SuffixBeta:
		return "beta"
	case SuffixPre:
		return "pre"
	case SuffixRC:
		return "rc"
	case SuffixP:
		return "p"
	default:
		return ""
	}
}

// Suffix is an alpha/beta/pre/rc/p component of a VersionSpec, carrying its
// own numeric component (e.g. "rc2" is {SuffixRC, 2}).
type Suffix struct {
	Kind SuffixKind
	Num  int
}

// VersionSpec is a structured version number: a sequence of numeric parts,
// an optional Suffix, and an optional revision.
type VersionSpec struct {
	raw      string
	parts    []int64
	suffix   *Suffix
	revision int
}

// String returns the canonical textual form of v.
func (v VersionSpec) String() string {
	if v.raw != "" {
		return v.raw
	}
	return "0"
}

// Parse parses s into a VersionSpec, or returns an error if s does not match
// the grammar: DIGITS(.DIGITS)*(_ (alpha|beta|pre|rc|p) DIGITS?)?(-rDIGITS)?
func Parse(s string) (VersionSpec, error) {
	orig := s
	if s == "" {
		return VersionSpec{}, errors.Errorf("empty version string")
	}

	rev := 0
	if i := strings.LastIndex(s, "-r"); i >= 0 {
		numPart := s[i+2:]
		if numPart != "" && allDigits(numPart) {
			n, err := strconv.Atoi(numPart)
			if err != nil {
				return VersionSpec{}, errors.Wrapf(err, "invalid revision in %q", orig)
			}
			rev = n
			s = s[:i]
		}
	}

	var suf *Suffix
	if i := strings.IndexByte(s, '_'); i >= 0 {
		suffixStr := s[i+1:]
		kind, numStr, err := splitSuffixKind(suffixStr)
		if err != nil {
			return VersionSpec{}, errors.Wrapf(err, "invalid version suffix in %q", orig)
		}
		num := 0
		if numStr != "" {
			num, err = strconv.Atoi(numStr)
			if err != nil {
				return VersionSpec{}, errors.Wrapf(err, "invalid suffix number in %q", orig)
			}
		}
		suf = &Suffix{Kind: kind, Num: num}
		s = s[:i]
	}

	if s == "" {
		return VersionSpec{}, errors.Errorf("no numeric component in %q", orig)
	}

	var parts []int64
	for _, p := range strings.Split(s, ".") {
		if !allDigits(p) {
			return VersionSpec{}, errors.Errorf("non-numeric version component %q in %q", p, orig)
		}
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return VersionSpec{}, errors.Wrapf(err, "invalid numeric component in %q", orig)
		}
		parts = append(parts, n)
	}

	return VersionSpec{raw: orig, parts: parts, suffix: suf, revision: rev}, nil
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func splitSuffixKind(s string) (SuffixKind, string, error) {
	kinds := []struct {
		prefix string
		kind   SuffixKind
	}{
		{"alpha", SuffixAlpha},
		{"beta", SuffixBeta},
		{"pre", SuffixPre},
		{"rc", SuffixRC},
		{"p", SuffixP},
	}
	for _, k := range kinds {
		if strings.HasPrefix(s, k.prefix) {
			return k.kind, s[len(k.prefix):], nil
		}
	}
	return 0, "", errors.Errorf("unrecognised suffix kind in %q", s)
}

func partAt(parts []int64, i int) int64 {
	if i < len(parts) {
		return parts[i]
	}
	return 0
}

func (k SuffixKind) rank() SuffixKind {
	return k
}

func suffixRank(s *Suffix) SuffixKind {
	if s == nil {
		return noneSuffix
	}
	return s.Kind.rank()
}

// Compare returns -1, 0, or 1 as a sorts before, equal to, or after b,
// ignoring nothing: full part-by-part, suffix, then revision comparison.
func Compare(a, b VersionSpec) int {
	n := len(a.parts)
	if len(b.parts) > n {
		n = len(b.parts)
	}
	for i := 0; i < n; i++ {
		pa, pb := partAt(a.parts, i), partAt(b.parts, i)
		if pa != pb {
			if pa < pb {
				return -1
			}
			return 1
		}
	}

	ra, rb := suffixRank(a.suffix), suffixRank(b.suffix)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	if a.suffix != nil && b.suffix != nil && a.suffix.Num != b.suffix.Num {
		if a.suffix.Num < b.suffix.Num {
			return -1
		}
		return 1
	}

	if a.revision != b.revision {
		if a.revision < b.revision {
			return -1
		}
		return 1
	}
	return 0
}

// Less reports whether v sorts strictly before o.
func (v VersionSpec) Less(o VersionSpec) bool { return Compare(v, o) < 0 }

// Equal reports whether v and o compare as fully equal (including revision).
func (v VersionSpec) Equal(o VersionSpec) bool { return Compare(v, o) == 0 }

// equalIgnoringRevision reports whether v and o are the same version
// disregarding any -rN suffix, used by the "~" operator.
func equalIgnoringRevision(v, o VersionSpec) bool {
	cp := o
	cp.revision = v.revision
	return Compare(v, cp) == 0
}

// equalToComponentCount reports whether v equals o when both are truncated
// to len(o.parts) numeric components, used by the "=*" operator.
func equalToComponentCount(v, o VersionSpec) bool {
	n := len(o.parts)
	for i := 0; i < n; i++ {
		if partAt(v.parts, i) != partAt(o.parts, i) {
			return false
		}
	}
	return true
}

// Operator is one of the comparison operators a PackageDepSpec version
// requirement may carry.
type Operator int

const (
	// OpLess matches versions strictly less than the operand.
	OpLess Operator = iota
	// OpLessEqual matches versions less than or equal to the operand.
	OpLessEqual
	// OpEqual matches exactly the operand, revision included.
	OpEqual
	// OpEqualStar matches versions equal to the operand when both are
	// truncated to the operand's number of numeric components.
	OpEqualStar
	// OpTilde matches the same version as the operand, any revision.
	OpTilde
	// OpGreaterEqual matches versions greater than or equal to the operand.
	OpGreaterEqual
	// OpGreater matches versions strictly greater than the operand.
	OpGreater
)

func (o Operator) String() string {
	switch o {
	case OpLess:
		return "<"
	case OpLessEqual:
		return "<="
	case OpEqual:
		return "="
	case OpEqualStar:
		return "=*"
	case OpTilde:
		return "~"
	case OpGreaterEqual:
		return ">="
	case OpGreater:
		return ">"
	default:
		return fmt.Sprintf("Operator(%d)", int(o))
	}
}

// Matches reports whether "have" satisfies "o wanted".
func (o Operator) Matches(have, wanted VersionSpec) bool {
	switch o {
	case OpLess:
		return Compare(have, wanted) < 0
	case OpLessEqual:
		return Compare(have, wanted) <= 0
	case OpEqual:
		return Compare(have, wanted) == 0
	case OpEqualStar:
		return equalToComponentCount(have, wanted)
	case OpTilde:
		return equalIgnoringRevision(have, wanted)
	case OpGreaterEqual:
		return Compare(have, wanted) >= 0
	case OpGreater:
		return Compare(have, wanted) > 0
	default:
		return false
	}
}
