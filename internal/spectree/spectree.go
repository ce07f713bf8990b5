// Package spectree implements the generic spec-tree shape shared by every
// kind of tree the engine walks (dependency, fetchable-URI, license,
// plain-text, provide, and named-set trees): inner nodes All, Any,
// ExactlyOne and Conditional, with kind-specific leaves.
//
// A flattener reduces a tree to its active leaves given a choice
// configuration; an evaluator additionally applies the All/Any/ExactlyOne
// boolean semantics against a leaf predicate.
package spectree

import (
	"github.com/solvd/pkgcore/internal/choice"
	"github.com/solvd/pkgcore/internal/name"
)

// Kind identifies the shape of a Node.
type Kind int

const (
	// KindLeaf carries a single leaf value and no children.
	KindLeaf Kind = iota
	// KindAll requires (for Evaluate) every child to hold; for Flatten it
	// simply concatenates every child's active leaves.
	KindAll
	// KindAny requires at least one child to hold.
	KindAny
	// KindExactlyOne requires exactly one child to hold.
	KindExactlyOne
	// KindConditional gates a single child on a ChoiceCondition.
	KindConditional
)

// ChoiceCondition is the predicate a Conditional node evaluates against a
// choice configuration: a (possibly negated) flag-is-enabled test.
type ChoiceCondition struct {
	Prefix name.ChoicePrefixName
	Name   name.UnprefixedChoiceName
	Negate bool
}

// Met reports whether c holds against ctx.
func (c ChoiceCondition) Met(ctx Context) bool {
	enabled := ctx.Choices.Enabled(c.Prefix, c.Name)
	for _, ch := range ctx.Changed {
		if ch.Prefix == c.Prefix && ch.Name == c.Name {
			enabled = ch.After
		}
	}
	if c.Negate {
		return !enabled
	}
	return enabled
}

// Context is the choice configuration a Conditional node is evaluated
// against: the owning package's current choice values, plus whatever
// ChangedChoices apply to it (e.g. from a ":=" slot-operator rebuild).
type Context struct {
	Choices choice.Choices
	Changed []choice.ChangedChoices
}

// Node is a single node of a spec tree over leaf type L.
type Node[L any] struct {
	Kind      Kind
	Children  []Node[L]       // KindAll, KindAny, KindExactlyOne
	Condition ChoiceCondition // KindConditional
	Child     *Node[L]        // KindConditional
	Leaf      L               // KindLeaf
}

// Leaf builds a leaf node.
func Leaf[L any](v L) Node[L] { return Node[L]{Kind: KindLeaf, Leaf: v} }

// All builds an All node.
func All[L any](children ...Node[L]) Node[L] { return Node[L]{Kind: KindAll, Children: children} }

// Any builds an Any node.
func Any[L any](children ...Node[L]) Node[L] { return Node[L]{Kind: KindAny, Children: children} }

// ExactlyOne builds an ExactlyOne node.
func ExactlyOne[L any](children ...Node[L]) Node[L] {
	return Node[L]{Kind: KindExactlyOne, Children: children}
}

// Conditional builds a Conditional node gating child on cond.
func Conditional[L any](cond ChoiceCondition, child Node[L]) Node[L] {
	return Node[L]{Kind: KindConditional, Condition: cond, Child: &child}
}

// Flatten returns the sequence of active leaves in n for ctx: Conditional
// nodes are included iff their condition is met; All/Any/ExactlyOne nodes
// simply contribute the union of their children's active leaves in
// declaration order, since flattening enumerates leaves rather than judging
// satisfaction (see Evaluate for that).
func Flatten[L any](n Node[L], ctx Context) []L {
	switch n.Kind {
	case KindLeaf:
		return []L{n.Leaf}
	case KindConditional:
		if n.Child == nil || !n.Condition.Met(ctx) {
			return nil
		}
		return Flatten(*n.Child, ctx)
	default: // KindAll, KindAny, KindExactlyOne
		var out []L
		for _, c := range n.Children {
			out = append(out, Flatten(c, ctx)...)
		}
		return out
	}
}

// LeafPredicate judges whether a single leaf is satisfied, e.g. "this
// license is accepted" or "this plain-text condition holds".
type LeafPredicate[L any] func(L) bool

// Evaluate applies All/Any/ExactlyOne boolean semantics, judging leaves with
// pred and skipping Conditional subtrees whose condition is not met (an
// unmet Conditional contributes nothing, i.e. is vacuously satisfied).
func Evaluate[L any](n Node[L], ctx Context, pred LeafPredicate[L]) bool {
	switch n.Kind {
	case KindLeaf:
		return pred(n.Leaf)
	case KindConditional:
		if n.Child == nil || !n.Condition.Met(ctx) {
			return true
		}
		return Evaluate(*n.Child, ctx, pred)
	case KindAny:
		for _, c := range n.Children {
			if Evaluate(c, ctx, pred) {
				return true
			}
		}
		return len(n.Children) == 0
	case KindExactlyOne:
		count := 0
		for _, c := range n.Children {
			if Evaluate(c, ctx, pred) {
				count++
			}
		}
		return count == 1
	default: // KindAll
		for _, c := range n.Children {
			if !Evaluate(c, ctx, pred) {
				return false
			}
		}
		return true
	}
}
