// Package pkgid implements PackageID, the engine's immutable handle to one
// version of one package in one repository, its typed metadata-key
// accessors, and Contents, the description of what an installed id left on
// disk.
package pkgid

import (
	"strconv"
	"strings"

	"github.com/solvd/pkgcore/internal/choice"
	"github.com/solvd/pkgcore/internal/mask"
	"github.com/solvd/pkgcore/internal/name"
	"github.com/solvd/pkgcore/internal/spectree"
	"github.com/solvd/pkgcore/internal/version"
)

// EntryKind discriminates the kinds of filesystem entry a Contents may
// record.
type EntryKind int

const (
	// EntryFile is a regular file.
	EntryFile EntryKind = iota
	// EntryDir is a directory.
	EntryDir
	// EntrySym is a symbolic link.
	EntrySym
	// EntryOther is any other regular-ish entry (socket, ...).
	EntryOther
	// EntryFIFO is a named pipe.
	EntryFIFO
	// EntryDev is a device node.
	EntryDev
)

func (k EntryKind) String() string {
	switch k {
	case EntryFile:
		return "file"
	case EntryDir:
		return "dir"
	case EntrySym:
		return "sym"
	case EntryFIFO:
		return "fifo"
	case EntryDev:
		return "dev"
	default:
		return "other"
	}
}

// ContentsEntry is a single filesystem entry an installed PackageID left
// behind.
type ContentsEntry struct {
	Kind EntryKind
	// Location is the absolute, canonical path relative to the owning
	// repository's installed root.
	Location string
	// SymTarget holds the link target; meaningful only when Kind ==
	// EntrySym.
	SymTarget string
}

// Contents is the description of what is present on disk for an installed
// PackageID.
type Contents struct {
	Entries []ContentsEntry
}

// Add appends an entry, preserving insertion order (the merger relies on
// this order to unmerge in reverse).
func (c *Contents) Add(e ContentsEntry) { c.Entries = append(c.Entries, e) }

// Reversed returns a copy of c's entries in reverse order, the order an
// unmerge walks them in.
func (c Contents) Reversed() []ContentsEntry {
	out := make([]ContentsEntry, len(c.Entries))
	for i, e := range c.Entries {
		out[len(c.Entries)-1-i] = e
	}
	return out
}

// Metadata bundles every metadata key a PackageID carries beyond its
// identity tuple. A nil *T key is a key that this id/format does not
// provide, distinct from a present-but-empty value.
type Metadata struct {
	Keywords []name.KeywordName
	Homepage []string

	Dependencies       *spectree.DependencySpecTree
	BuildDependencies  *spectree.DependencySpecTree
	RunDependencies    *spectree.DependencySpecTree
	PostDependencies   *spectree.DependencySpecTree

	Fetches  *spectree.FetchableURISpecTree
	License  *spectree.LicenseSpecTree
	Provide  *spectree.ProvideSpecTree
	Restrict *spectree.PlainTextSpecTree

	Choices *choice.Choices

	FSLocation string // empty if this id has no on-disk source location

	Contents *Contents // nil unless this id is installed

	FromRepositories []name.RepositoryName

	// ExtraKeys holds string-valued metadata keys not otherwise modelled as
	// a dedicated field, for "[.key=value]" dep-spec key-match requirements.
	ExtraKeys map[string]string
}

// PackageID is an immutable handle to one version of one package in one
// repository.
type PackageID struct {
	Repository name.RepositoryName
	Name       name.QualifiedPackageName
	Version    version.VersionSpec
	Slot       *name.SlotName

	Metadata Metadata
	Masks    mask.Set

	// arbitraryLess breaks ties between two ids that otherwise compare
	// equal by (repo, name, version, slot); it is supplied by the owning
	// Repository since only the repository knows a stable total order for
	// its own ids (e.g. declaration order).
	arbitraryLess func(other PackageID) bool
}

// New constructs a PackageID. arbitraryLess may be nil, in which case
// ArbitraryLessThan always reports false (ids are considered tied).
func New(repo name.RepositoryName, qpn name.QualifiedPackageName, v version.VersionSpec, slot *name.SlotName, md Metadata, masks mask.Set, arbitraryLess func(PackageID) bool) PackageID {
	return PackageID{
		Repository:    repo,
		Name:          qpn,
		Version:       v,
		Slot:          slot,
		Metadata:      md,
		Masks:         masks,
		arbitraryLess: arbitraryLess,
	}
}

// SlotOrEmpty returns the id's slot name, or "" if it carries none.
func (id PackageID) SlotOrEmpty() name.SlotName {
	if id.Slot == nil {
		return ""
	}
	return *id.Slot
}

// Equal implements the identity invariant: two ids are equal iff their
// UniquelyIdentifyingSpec strings are equal.
func (id PackageID) Equal(o PackageID) bool {
	return id.UniquelyIdentifyingSpec() == o.UniquelyIdentifyingSpec()
}

// ArbitraryLessThan breaks ties between ids that compare equal on
// (repository, name, version, slot), using the repository-supplied
// comparator if there is one.
func (id PackageID) ArbitraryLessThan(o PackageID) bool {
	if id.arbitraryLess == nil {
		return false
	}
	return id.arbitraryLess(o)
}

// UniquelyIdentifyingSpec renders the (repository, name, version, slot)
// identity tuple as a single canonical string.
func (id PackageID) UniquelyIdentifyingSpec() string {
	var b strings.Builder
	b.WriteString(id.Name.String())
	b.WriteString("-")
	b.WriteString(id.Version.String())
	if id.Slot != nil {
		b.WriteString(":")
		b.WriteString(id.Slot.String())
	}
	b.WriteString("::")
	b.WriteString(id.Repository.String())
	return b.String()
}

func (id PackageID) String() string { return id.UniquelyIdentifyingSpec() }

// Masked reports whether id carries at least one applicable mask.
func (id PackageID) Masked() bool { return id.Masks.Masked() }

// InstalledRoot returns the installed root path for id if it has Contents
// recorded (i.e. it is the record of an installed package), and whether one
// is present.
func (id PackageID) InstalledRoot() (string, bool) {
	if id.Metadata.Contents == nil {
		return "", false
	}
	return id.Metadata.FSLocation, true
}

// keywordStrings renders id's keywords as plain strings, used by mask
// computation to check user acceptance.
func (id PackageID) keywordStrings() []string {
	out := make([]string, len(id.Metadata.Keywords))
	for i, k := range id.Metadata.Keywords {
		out[i] = k.String()
	}
	return out
}

// DependenciesKey returns the id's unified dependency tree, falling back to
// nil if none is set.
func (id PackageID) DependenciesKey() *spectree.DependencySpecTree { return id.Metadata.Dependencies }

// BuildDependenciesKey returns the id's build-time dependency tree.
func (id PackageID) BuildDependenciesKey() *spectree.DependencySpecTree {
	return id.Metadata.BuildDependencies
}

// RunDependenciesKey returns the id's run-time dependency tree.
func (id PackageID) RunDependenciesKey() *spectree.DependencySpecTree {
	return id.Metadata.RunDependencies
}

// PostDependenciesKey returns the id's post-merge dependency tree.
func (id PackageID) PostDependenciesKey() *spectree.DependencySpecTree {
	return id.Metadata.PostDependencies
}

// FetchesKey returns the id's fetch instructions.
func (id PackageID) FetchesKey() *spectree.FetchableURISpecTree { return id.Metadata.Fetches }

// HomepageKey returns the id's homepage URLs.
func (id PackageID) HomepageKey() []string { return id.Metadata.Homepage }

// ChoicesKey returns the id's choice (USE flag) configuration.
func (id PackageID) ChoicesKey() *choice.Choices { return id.Metadata.Choices }

// FSLocationKey returns the on-disk path this id's metadata was sourced
// from, if any.
func (id PackageID) FSLocationKey() string { return id.Metadata.FSLocation }

// ContentsKey returns the id's installed Contents, or nil if not installed.
func (id PackageID) ContentsKey() *Contents { return id.Metadata.Contents }

// FromRepositoriesKey returns the names of repositories id's sources were
// originally imported from (relevant for repositories that mirror another).
func (id PackageID) FromRepositoriesKey() []name.RepositoryName {
	return id.Metadata.FromRepositories
}

// sortKey renders a stable string used only to give deterministic default
// ordering to slices of PackageID in tests and diagnostics; it is not part
// of the identity invariant.
func (id PackageID) sortKey() string {
	return id.Name.String() + "\x00" + id.Version.String() + "\x00" + id.SlotOrEmpty().String() + "\x00" + id.Repository.String()
}

// Less provides a deterministic total order for sorting, name-major:
// ids sort by qualified name, then by version ascending, ties broken by the
// repository-supplied ArbitraryLessThan, then by the raw sort key.
func Less(a, b PackageID) bool {
	if a.Name != b.Name {
		return a.Name.Less(b.Name)
	}
	if !a.Version.Equal(b.Version) {
		return a.Version.Less(b.Version)
	}
	if a.ArbitraryLessThan(b) {
		return true
	}
	if b.ArbitraryLessThan(a) {
		return false
	}
	return a.sortKey() < b.sortKey()
}

// ParseRevisionSuffix is a small helper repositories commonly need when
// synthesising an arbitraryLess from an on-disk filename's trailing
// "-rN": it extracts N, or 0 if absent.
func ParseRevisionSuffix(s string) int {
	i := strings.LastIndex(s, "-r")
	if i < 0 {
		return 0
	}
	n, err := strconv.Atoi(s[i+2:])
	if err != nil {
		return 0
	}
	return n
}
