package spectree

import (
	"strings"

	"github.com/solvd/pkgcore/internal/depspec"
	"github.com/solvd/pkgcore/internal/name"
)

// DependencyLabel classifies the dependency leaves that follow it within the
// same All node, until the next label leaf or the end of the node.
type DependencyLabel int

const (
	// LabelBuild marks build-time (DependenciesBuildLabel) dependencies.
	LabelBuild DependencyLabel = iota
	// LabelRun marks run-time (DependenciesRunLabel) dependencies.
	LabelRun
	// LabelPost marks post-merge (DependenciesPostLabel) dependencies.
	LabelPost
	// LabelCompileAgainst marks link-time (DependenciesCompileAgainstLabel)
	// dependencies; these form strict ordering edges like build deps.
	LabelCompileAgainst
	// LabelFetch marks fetch-time (DependenciesFetchLabel) dependencies.
	LabelFetch
	// LabelInstall marks install-time (DependenciesInstallLabel)
	// dependencies.
	LabelInstall
	// LabelSuggestion marks optional suggestions
	// (DependenciesSuggestionLabel), informational only.
	LabelSuggestion
	// LabelRecommendation marks recommended-but-not-required
	// (DependenciesRecommendationLabel) dependencies.
	LabelRecommendation
	// LabelTest marks test-only (DependenciesTestLabel) dependencies.
	LabelTest
)

func (l DependencyLabel) String() string {
	switch l {
	case LabelBuild:
		return "build"
	case LabelRun:
		return "run"
	case LabelPost:
		return "post"
	case LabelCompileAgainst:
		return "compiled-against"
	case LabelFetch:
		return "fetch"
	case LabelInstall:
		return "install"
	case LabelSuggestion:
		return "suggestion"
	case LabelRecommendation:
		return "recommendation"
	case LabelTest:
		return "test"
	default:
		return "unknown"
	}
}

// Strict reports whether a dependency under this label imposes an ordering
// edge that must complete before its depender is installed (build and
// compile-against deps); run/post/suggestion/recommendation/test deps do
// not.
func (l DependencyLabel) Strict() bool {
	return l == LabelBuild || l == LabelCompileAgainst
}

// DependencyLeaf is the leaf type of a DependencySpecTree: exactly one of
// Package, Block, Label, or SetRef is set, except that Alternatives is
// populated only on a synthetic leaf produced by sanitising an Any or
// ExactlyOne node (see Sanitise).
type DependencyLeaf struct {
	Package      *depspec.PackageDepSpec
	Block        *depspec.BlockDepSpec
	Label        *DependencyLabel
	SetRef       *name.SetName
	Alternatives []DependencyLeaf
}

func (l DependencyLeaf) String() string {
	switch {
	case l.Package != nil:
		return l.Package.String()
	case l.Block != nil:
		return l.Block.String()
	case l.Label != nil:
		return l.Label.String() + "?"
	case l.SetRef != nil:
		return "@" + l.SetRef.String()
	case l.Alternatives != nil:
		parts := make([]string, len(l.Alternatives))
		for i, a := range l.Alternatives {
			parts[i] = a.String()
		}
		return "|| ( " + strings.Join(parts, " ") + " )"
	default:
		return "(empty)"
	}
}

// DependencySpecTree is a spec tree of DependencyLeaf, the shape used for
// every run/build/post/etc. dependency declaration a PackageID carries.
type DependencySpecTree = Node[DependencyLeaf]

// SanitisedDependency is one flattened, label-annotated dependency produced
// by Sanitise.
type SanitisedDependency struct {
	ActiveLabels        []DependencyLabel
	Spec                DependencyLeaf
	OriginalSpecAsString string
}

// Sanitise walks tree and produces SanitisedDependencies: Conditional
// subtrees are included iff met; label leaves update the active label set
// for their later siblings within the same All node; Any and ExactlyOne
// nodes are not expanded into their individual alternatives but instead
// collapse to a single SanitisedDependency carrying every alternative, so
// that the resolver can explore them one at a time.
func Sanitise(tree DependencySpecTree, ctx Context) []SanitisedDependency {
	s := &sanitiser{active: nil}
	return s.walk(tree, ctx)
}

type sanitiser struct {
	active []DependencyLabel
}

func (s *sanitiser) walk(n DependencySpecTree, ctx Context) []SanitisedDependency {
	switch n.Kind {
	case KindLeaf:
		return s.leaf(n.Leaf)
	case KindConditional:
		if n.Child == nil || !n.Condition.Met(ctx) {
			return nil
		}
		return s.walk(*n.Child, ctx)
	case KindAny, KindExactlyOne:
		alts := flattenAlternative(n, ctx)
		if len(alts) == 0 {
			return nil
		}
		leaf := DependencyLeaf{Alternatives: alts}
		return []SanitisedDependency{{
			ActiveLabels:         append([]DependencyLabel(nil), s.active...),
			Spec:                 leaf,
			OriginalSpecAsString: leaf.String(),
		}}
	default: // KindAll
		var out []SanitisedDependency
		saved := s.active
		for _, c := range n.Children {
			out = append(out, s.walk(c, ctx)...)
		}
		s.active = saved
		return out
	}
}

func (s *sanitiser) leaf(l DependencyLeaf) []SanitisedDependency {
	if l.Label != nil {
		s.active = []DependencyLabel{*l.Label}
		return nil
	}
	return []SanitisedDependency{{
		ActiveLabels:         append([]DependencyLabel(nil), s.active...),
		Spec:                 l,
		OriginalSpecAsString: l.String(),
	}}
}

// flattenAlternative reduces a single alternative of an Any/ExactlyOne node
// to one representative DependencyLeaf, recursing through nested All nodes
// of simple leaves; a child that is itself Any/ExactlyOne recurses into the
// same collapsing rule.
func flattenAlternative(n DependencySpecTree, ctx Context) []DependencyLeaf {
	var out []DependencyLeaf
	for _, c := range n.Children {
		switch c.Kind {
		case KindLeaf:
			if c.Leaf.Label == nil {
				out = append(out, c.Leaf)
			}
		case KindConditional:
			if c.Child != nil && c.Condition.Met(ctx) {
				out = append(out, collapseSingle(*c.Child, ctx)...)
			}
		case KindAny, KindExactlyOne:
			out = append(out, DependencyLeaf{Alternatives: flattenAlternative(c, ctx)})
		default: // KindAll
			out = append(out, collapseSingle(c, ctx)...)
		}
	}
	return out
}

func collapseSingle(n DependencySpecTree, ctx Context) []DependencyLeaf {
	switch n.Kind {
	case KindLeaf:
		if n.Leaf.Label == nil {
			return []DependencyLeaf{n.Leaf}
		}
		return nil
	case KindConditional:
		if n.Child == nil || !n.Condition.Met(ctx) {
			return nil
		}
		return collapseSingle(*n.Child, ctx)
	case KindAny, KindExactlyOne:
		return []DependencyLeaf{{Alternatives: flattenAlternative(n, ctx)}}
	default:
		var out []DependencyLeaf
		for _, c := range n.Children {
			out = append(out, collapseSingle(c, ctx)...)
		}
		return out
	}
}
