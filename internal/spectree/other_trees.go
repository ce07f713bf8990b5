package spectree

import "github.com/solvd/pkgcore/internal/name"

// LicenseSpecTree is the shape of a license requirement: leaves are license
// short names combined under All/Any/ExactlyOne/Conditional.
type LicenseSpecTree = Node[string]

// PlainTextSpecTree is the shape of free-form textual conditions (e.g.
// restrict entries) with no further structure on the leaf itself.
type PlainTextSpecTree = Node[string]

// SetSpecTree names other package sets this set is built from.
type SetSpecTree = Node[name.SetName]

// SimpleURISpecTree is a list of plain download URIs with no rename
// capability, used for e.g. manifest-listed digests.
type SimpleURISpecTree = Node[string]

// FetchableURILeaf is a single fetchable URI, optionally renamed on local
// disk and optionally associated with a mirror label (e.g. the "mirror://"
// scheme groups).
type FetchableURILeaf struct {
	URI      string
	Rename   string
	MirrorOf string
}

// FetchableURISpecTree is the shape of a package's fetch instructions.
type FetchableURISpecTree = Node[FetchableURILeaf]

// ProvideLeaf names a virtual package this id additionally satisfies.
type ProvideLeaf struct {
	Virtual name.QualifiedPackageName
}

// ProvideSpecTree is the shape of a package's declared virtual provisions.
type ProvideSpecTree = Node[ProvideLeaf]
