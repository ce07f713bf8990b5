package resolver

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/solvd/pkgcore/internal/choice"
	"github.com/solvd/pkgcore/internal/depspec"
	"github.com/solvd/pkgcore/internal/environment"
	"github.com/solvd/pkgcore/internal/pkgid"
	"github.com/solvd/pkgcore/internal/repo"
	"github.com/solvd/pkgcore/internal/spectree"
)

// DefaultMaxRestarts bounds how many times resolve() may restart itself
// after a SuggestRestart; exceeding it is reported as an error rather than
// looping forever.
const DefaultMaxRestarts = 50

// Tracer receives human-readable trace lines during resolve(), in the style
// of a traceXxx helper: nil is a valid, silent Tracer.
type Tracer func(format string, args ...interface{})

// Resolver runs the resolve algorithm (spec.md §4.5) against an Environment.
type Resolver struct {
	env         *environment.Environment
	trace       Tracer
	maxRestarts int

	targets  []Constraint
	targetResolvents []Resolvent

	resolutions map[string]*Resolution
	order       []Resolvent
	pending     []Resolvent

	preloads map[string]*preloadEntry

	restarts int
}

// preloadEntry remembers both the Resolvent and the constraints a restart
// needs re-applied on the next runOnce, since runOnce discards
// r.resolutions (and with it, the only other place a Resolvent value lives)
// at the start of every attempt.
type preloadEntry struct {
	resolvent   Resolvent
	constraints []Constraint
}

// New constructs a Resolver against env. trace may be nil.
func New(env *environment.Environment, trace Tracer) *Resolver {
	return &Resolver{
		env:         env,
		trace:       trace,
		maxRestarts: DefaultMaxRestarts,
		preloads:    make(map[string]*preloadEntry),
	}
}

func (r *Resolver) tracef(format string, args ...interface{}) {
	if r.trace != nil {
		r.trace(format, args...)
	}
}

// AddTarget seeds a Resolvent for spec with a TargetReason constraint.
func (r *Resolver) AddTarget(spec depspec.PackageDepSpec) {
	rv := resolventFromSpec(spec)
	c := Constraint{Spec: spec, Reason: Reason{Kind: ReasonTarget}}
	r.targets = append(r.targets, c)
	r.targetResolvents = append(r.targetResolvents, rv)
}

func resolventFromSpec(spec depspec.PackageDepSpec) Resolvent {
	rv := Resolvent{QPN: spec.QualifiedName(), Destination: DestinationSlash}
	if spec.Slot != nil && spec.Slot.Kind == depspec.SlotExact {
		s := spec.Slot.Slot
		rv.Slot = &s
	}
	return rv
}

// suggestRestart is the internal control-flow sentinel spec.md describes:
// never surfaces to callers of Resolve.
type suggestRestart struct {
	resolvent  Resolvent
	constraint Constraint
}

func (suggestRestart) Error() string { return "internal: suggest restart" }

// Resolve runs the algorithm to completion, restarting internally as
// needed, and returns the final resolutions in deterministic Resolvent
// order.
func (r *Resolver) Resolve() ([]*Resolution, error) {
	for {
		resolutions, err := r.runOnce()
		if sr, ok := err.(*suggestRestart); ok {
			r.restarts++
			if r.restarts > r.maxRestarts {
				return nil, errors.Errorf("resolve: exceeded %d restarts", r.maxRestarts)
			}
			key := sr.resolvent.Key()
			entry, ok := r.preloads[key]
			if !ok {
				entry = &preloadEntry{resolvent: sr.resolvent}
				r.preloads[key] = entry
			}
			entry.constraints = append(entry.constraints, sr.constraint)
			r.tracef("restart #%d for %s", r.restarts, key)
			continue
		}
		if err != nil {
			return nil, err
		}
		return resolutions, nil
	}
}

func (r *Resolver) runOnce() ([]*Resolution, error) {
	r.resolutions = make(map[string]*Resolution)
	r.order = nil
	r.pending = nil

	for i, c := range r.targets {
		r.addConstraint(r.targetResolvents[i], c)
	}
	for _, entry := range r.preloads {
		for _, c := range entry.constraints {
			r.addConstraint(entry.resolvent, c)
		}
	}

	for len(r.pending) > 0 {
		sort.Slice(r.pending, func(i, j int) bool { return r.pending[i].Key() < r.pending[j].Key() })
		rv := r.pending[0]
		r.pending = r.pending[1:]

		res := r.resolutions[rv.Key()]
		if res.Decision != nil {
			continue
		}
		decision, err := r.decide(rv, res.Constraints)
		if err != nil {
			return nil, err
		}
		res.Decision = &decision
		r.tracef("decided %s: kind=%d", rv.Key(), decision.Kind)

		if err := r.followDependencies(rv, decision); err != nil {
			return nil, err
		}
	}

	out := make([]*Resolution, len(r.order))
	for i, rv := range r.order {
		out[i] = r.resolutions[rv.Key()]
	}
	return out, nil
}

func (r *Resolver) addConstraint(rv Resolvent, c Constraint) {
	key := rv.Key()
	res, ok := r.resolutions[key]
	if !ok {
		res = &Resolution{Resolvent: rv}
		r.resolutions[key] = res
		r.order = append(r.order, rv)
		r.pending = append(r.pending, rv)
		res.Constraints = append(res.Constraints, c)
		return
	}
	res.Constraints = append(res.Constraints, c)

	// If this Resolvent was already decided and the new constraint
	// invalidates that decision, the caller must restart with the
	// constraint preloaded.
	if res.Decision != nil && !decisionSatisfies(*res.Decision, c) {
		panic(&suggestRestart{resolvent: rv, constraint: c})
	}
}

func decisionSatisfies(d Decision, c Constraint) bool {
	switch d.Kind {
	case DecisionChangesToMake:
		return d.Best != nil && Matches(c.Spec, *d.Best)
	case DecisionExistingNoChange:
		return d.ExistingID != nil && Matches(c.Spec, *d.ExistingID)
	case DecisionNothingNoChange:
		return c.NothingIsFineToo
	default:
		return true
	}
}

// followDependencies walks the chosen id's sanitised dependencies (when the
// decision actually chose an id) and derives child Resolvents/constraints.
func (r *Resolver) followDependencies(from Resolvent, d Decision) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			if sr, ok := rec.(*suggestRestart); ok {
				err = sr
				return
			}
			panic(rec)
		}
	}()

	var id *pkgid.PackageID
	switch d.Kind {
	case DecisionChangesToMake:
		id = d.Best
	case DecisionExistingNoChange:
		id = d.ExistingID
	default:
		return nil
	}
	if id == nil || id.Metadata.Dependencies == nil {
		return nil
	}

	ctx := spectree.Context{}
	if id.Metadata.Choices != nil {
		ctx.Choices = *id.Metadata.Choices
	} else {
		ctx.Choices = choice.Choices{}
	}

	deps := spectree.Sanitise(*id.Metadata.Dependencies, ctx)
	for _, dep := range deps {
		interest := interestOf(dep.ActiveLabels)
		if interest != interestTake {
			continue
		}
		r.followOne(from, *id, dep)
	}
	return nil
}

type interest int

const (
	interestTake interest = iota
	interestIgnore
	interestUntaken
)

// interestOf computes "take | ignore | untaken" for a sanitised dependency
// from its active labels: suggestions are untaken by default, every other
// label is taken.
func interestOf(labels []spectree.DependencyLabel) interest {
	for _, l := range labels {
		if l == spectree.LabelSuggestion {
			return interestUntaken
		}
	}
	return interestTake
}

func (r *Resolver) followOne(from Resolvent, fromID pkgid.PackageID, dep spectree.SanitisedDependency) {
	if dep.Spec.Alternatives != nil {
		best := r.findAnyBest(dep.Spec.Alternatives)
		if best == nil {
			return
		}
		r.followLeaf(from, fromID, dep, *best)
		return
	}
	r.followLeaf(from, fromID, dep, dep.Spec)
}

func (r *Resolver) followLeaf(from Resolvent, fromID pkgid.PackageID, dep spectree.SanitisedDependency, leaf spectree.DependencyLeaf) {
	var spec depspec.PackageDepSpec
	switch {
	case leaf.Package != nil:
		spec = *leaf.Package
	case leaf.Block != nil:
		spec = leaf.Block.Spec
	default:
		return
	}

	child := resolventFromSpec(spec)
	fromCopy := from
	c := Constraint{
		Spec: spec,
		Reason: Reason{
			Kind:          ReasonDependency,
			FromID:        &fromID,
			FromResolvent: &fromCopy,
			SanitisedDep:  &dep,
		},
	}
	r.addConstraint(child, c)
}

// findAnyBest scores each alternative and returns the highest, tie-broken
// by declaration order: already-installed > not-masked > masked > no
// candidate at all > a non-package alternative (block or empty leaf).
// There is no user prefer/avoid tier and no would-install-anyway tier.
func (r *Resolver) findAnyBest(alts []spectree.DependencyLeaf) *spectree.DependencyLeaf {
	bestScore := -1
	var best *spectree.DependencyLeaf
	for i := range alts {
		score := r.scoreAlternative(alts[i])
		if score > bestScore {
			bestScore = score
			best = &alts[i]
		}
	}
	return best
}

func (r *Resolver) scoreAlternative(leaf spectree.DependencyLeaf) int {
	if leaf.Package == nil {
		return 0 // blocked / empty alternative
	}
	spec := *leaf.Package
	candidates := repo.Apply(repo.Matches(spec).Generate(r.env.Repositories))
	if len(candidates) == 0 {
		return 1 // blocked: nothing satisfies it at all
	}
	anyInstalled := false
	anyUnmasked := false
	for _, c := range candidates {
		if _, installed := c.InstalledRoot(); installed {
			anyInstalled = true
		}
		if !c.Masked() {
			anyUnmasked = true
		}
	}
	switch {
	case anyInstalled:
		return 5
	case anyUnmasked:
		return 4
	default:
		return 2 // masked
	}
}

// decide implements spec.md's "Deciding" steps for one Resolvent.
func (r *Resolver) decide(rv Resolvent, constraints []Constraint) (Decision, error) {
	existing := r.gatherExisting(rv)
	installable := r.gatherInstallable(rv, constraints)

	var best *pkgid.PackageID
	for i := range installable {
		if best == nil || pkgidLess(*best, installable[i]) {
			c := installable[i]
			best = &c
		}
	}

	if best == nil {
		if len(existing) > 0 {
			e := existing[0]
			return Decision{Kind: DecisionExistingNoChange, ExistingID: &e, IsSame: true, IsSameVersion: true, Taken: true}, nil
		}
		allowNothing := true
		for _, c := range constraints {
			if !c.NothingIsFineToo {
				allowNothing = false
				break
			}
		}
		if allowNothing {
			return Decision{Kind: DecisionNothingNoChange, Taken: true}, nil
		}
		var unsuitable []UnsuitableCandidate
		for _, c := range constraints {
			for _, e := range existing {
				if !Matches(c.Spec, e) {
					unsuitable = append(unsuitable, UnsuitableCandidate{ID: e, ViolatedConstraint: c})
				}
			}
		}
		return Decision{Kind: DecisionUnableToMake, UnsuitableCandidates: unsuitable, Taken: true}, nil
	}

	for _, e := range existing {
		if useExistingAllows(constraints, *best, e) {
			ee := e
			return Decision{
				Kind:          DecisionExistingNoChange,
				ExistingID:    &ee,
				IsSame:        ee.Equal(*best),
				IsSameVersion: ee.Version.Equal(best.Version),
				Taken:         true,
			}, nil
		}
	}

	d := Decision{Kind: DecisionChangesToMake, OriginID: best, Best: best, Destination: rv.Destination, Taken: true}
	if len(existing) > 0 {
		prev := existing[0]
		d.PreviousID = &prev
		d.IsDowngrade = pkgid.Less(*best, prev)
	}
	return d, nil
}

func pkgidLess(a, b pkgid.PackageID) bool { return pkgid.Less(a, b) }

func useExistingAllows(constraints []Constraint, best, existingID pkgid.PackageID) bool {
	for _, c := range constraints {
		switch c.UseExisting {
		case UseExistingIfSame:
			if existingID.Equal(best) {
				return true
			}
		case UseExistingIfSameVersion:
			if existingID.Version.Equal(best.Version) {
				return true
			}
		case UseExistingIfPossible:
			return true
		}
	}
	return false
}

func (r *Resolver) gatherExisting(rv Resolvent) []pkgid.PackageID {
	var out []pkgid.PackageID
	for _, rep := range r.env.Repositories {
		if _, ok := rep.InstalledRoot(); !ok {
			continue
		}
		if !rep.HasPackage(rv.QPN) {
			continue
		}
		for _, id := range rep.PackageIDs(rv.QPN) {
			if rv.Slot != nil && id.SlotOrEmpty() != *rv.Slot {
				continue
			}
			out = append(out, id)
		}
	}
	return out
}

func (r *Resolver) gatherInstallable(rv Resolvent, constraints []Constraint) []pkgid.PackageID {
	candidates := repo.Package(rv.QPN).Generate(r.env.Repositories)
	candidates = repo.Apply(candidates, repo.NotMasked())

	var out []pkgid.PackageID
	for _, id := range candidates {
		if rv.Slot != nil && id.SlotOrEmpty() != *rv.Slot {
			continue
		}
		ok := true
		for _, c := range constraints {
			if !Matches(c.Spec, id) {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, id)
		}
	}
	return out
}
