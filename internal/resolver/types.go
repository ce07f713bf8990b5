// Package resolver implements the resolver: Resolvent, Constraint, Reason,
// Decision, Resolution, and the restart-on-conflict resolve algorithm that
// turns a set of targets into an ordered plan.
package resolver

import (
	"github.com/solvd/pkgcore/internal/depspec"
	"github.com/solvd/pkgcore/internal/name"
	"github.com/solvd/pkgcore/internal/pkgid"
	"github.com/solvd/pkgcore/internal/spectree"
)

// DestinationType names where a ChangesToMakeDecision would install to.
type DestinationType int

const (
	// DestinationSlash installs to the live root.
	DestinationSlash DestinationType = iota
	// DestinationChroot installs to an alternate chroot root.
	DestinationChroot
	// DestinationBinaries builds a binary package without installing.
	DestinationBinaries
)

func (d DestinationType) String() string {
	switch d {
	case DestinationChroot:
		return "install_to_chroot"
	case DestinationBinaries:
		return "install_to_binaries"
	default:
		return "install_to_slash"
	}
}

// Resolvent is the unit the resolver makes one decision about: a qualified
// package name, an optional slot (nil means "any slot"), and a destination.
type Resolvent struct {
	QPN         name.QualifiedPackageName
	Slot        *name.SlotName
	Destination DestinationType
}

// Key renders r as a stable map key.
func (r Resolvent) Key() string {
	slot := "*"
	if r.Slot != nil {
		slot = r.Slot.String()
	}
	return r.QPN.String() + ":" + slot + ":" + r.Destination.String()
}

// UseExisting controls how strongly a Constraint prefers an already
// installed id over an installable one.
type UseExisting int

const (
	// UseExistingNever never reuses an installed id to satisfy this
	// constraint.
	UseExistingNever UseExisting = iota
	// UseExistingOnlyIfTransient reuses only a transient installed id.
	UseExistingOnlyIfTransient
	// UseExistingIfSame reuses an installed id identical to the best
	// installable candidate.
	UseExistingIfSame
	// UseExistingIfSameVersion reuses an installed id of the same version
	// as the best installable candidate, ignoring choice differences.
	UseExistingIfSameVersion
	// UseExistingIfPossible reuses any installed id matching the spec at
	// all.
	UseExistingIfPossible
)

// ReasonKind discriminates the six Reason variants.
type ReasonKind int

const (
	// ReasonTarget marks a Resolvent the caller asked for directly.
	ReasonTarget ReasonKind = iota
	// ReasonDependency marks a Resolvent pulled in by another id's
	// dependency.
	ReasonDependency
	// ReasonDependent marks a Resolvent being removed because it depends
	// on something being removed.
	ReasonDependent
	// ReasonWasUsedBy marks a Resolvent retained because other ids still
	// use it.
	ReasonWasUsedBy
	// ReasonPreset marks a preset constraint, carrying an Explanation and an
	// optional Inner reason. Restart preloads keep the Reason of the
	// constraint that triggered the restart and do not use this kind.
	ReasonPreset
	// ReasonSet marks a Resolvent pulled in via a named set.
	ReasonSet
)

// Reason records why a Constraint exists.
type Reason struct {
	Kind ReasonKind

	// ReasonDependency fields.
	FromID        *pkgid.PackageID
	FromResolvent *Resolvent
	SanitisedDep  *spectree.SanitisedDependency
	AlreadyMet    bool

	// ReasonDependent fields.
	IDBeingRemoved *pkgid.PackageID

	// ReasonWasUsedBy fields.
	UsedByIDs []pkgid.PackageID

	// ReasonPreset fields.
	Explanation string
	Inner       *Reason

	// ReasonSet fields.
	Set name.SetName
}

// Constraint is one requirement a Resolvent's decision must satisfy.
// Constraints for the same Resolvent compose by AND.
type Constraint struct {
	Spec             depspec.PackageDepSpec
	NothingIsFineToo bool
	UseExisting      UseExisting
	ToDestinations   []DestinationType
	Reason           Reason
}

// DecisionKind discriminates the six Decision variants.
type DecisionKind int

const (
	// DecisionChangesToMake installs a new or upgraded/downgraded id.
	DecisionChangesToMake DecisionKind = iota
	// DecisionExistingNoChange keeps an already-installed id as is.
	DecisionExistingNoChange
	// DecisionNothingNoChange means the Resolvent needed nothing at all:
	// no candidate was found and every constraint has NothingIsFineToo set.
	// Unmet Conditionals and empty Any alternatives never create a
	// Resolvent, so they do not produce this decision.
	DecisionNothingNoChange
	// DecisionRemove removes one or more installed ids.
	DecisionRemove
	// DecisionBreak deliberately leaves an installed id in a broken state
	// (rare; used when the user explicitly accepts breaking it).
	DecisionBreak
	// DecisionUnableToMake means no candidate satisfied every constraint.
	DecisionUnableToMake
)

// UnsuitableCandidate records one candidate considered and rejected, and
// the constraint it failed.
type UnsuitableCandidate struct {
	ID                 pkgid.PackageID
	ViolatedConstraint Constraint
}

// Decision is the outcome the resolver reaches for one Resolvent.
type Decision struct {
	Kind DecisionKind

	// DecisionChangesToMake fields.
	OriginID    *pkgid.PackageID
	Best        *pkgid.PackageID
	Destination DestinationType
	Replacing   []depspec.PackageDepSpec

	// PreviousID is the installed id this decision replaces, if any; used to
	// tell an upgrade from a downgrade. Set by decide() on
	// DecisionChangesToMake only.
	PreviousID  *pkgid.PackageID
	IsDowngrade bool

	// DecisionExistingNoChange fields.
	ExistingID    *pkgid.PackageID
	IsSame        bool
	IsSameVersion bool
	IsTransient   bool

	// DecisionRemove fields.
	IDsToRemove []pkgid.PackageID

	// DecisionUnableToMake fields.
	UnsuitableCandidates []UnsuitableCandidate

	// Taken distinguishes decisions the resolver will actually execute
	// from informational ones (e.g. an untaken suggestion).
	Taken bool
}

// Resolution is the resolver's complete state for one Resolvent.
type Resolution struct {
	Resolvent   Resolvent
	Constraints []Constraint
	Decision    *Decision
}
