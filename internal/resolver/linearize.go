package resolver

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/solvd/pkgcore/internal/choice"
	"github.com/solvd/pkgcore/internal/depspec"
	"github.com/solvd/pkgcore/internal/job"
	"github.com/solvd/pkgcore/internal/name"
	"github.com/solvd/pkgcore/internal/pkgid"
	"github.com/solvd/pkgcore/internal/repo"
	"github.com/solvd/pkgcore/internal/spectree"
	"github.com/solvd/pkgcore/internal/version"
)

// arrow is one ordering edge the "compute arrows" step (spec.md §4.5)
// derives between two Resolvents: From is the depender and To is its
// dependency, so To must be settled before From when Strict is set (a
// build or compile-against dependency); a non-strict arrow is advisory
// and never blocks ordering or trips a cycle.
type arrow struct {
	From, To Resolvent
	Strict   bool
}

// Resolved is resolved()'s return value: the classified decisions the
// resolve run reached, plus the linearised JobList the executor consumes.
type Resolved struct {
	Taken        []*Resolution
	Untaken      []*Resolution
	UnableToMake []*Resolution
	Unconfirmed  []*Resolution
	Unorderable  []Resolvent

	Jobs job.List
}

// Resolved classifies resolutions (as returned by Resolve) and linearises
// them into a JobList, implementing the remainder of spec.md's resolve()
// algorithm: compute destinations, compute arrows, linearise into JobList.
func (r *Resolver) Resolved(resolutions []*Resolution) (*Resolved, error) {
	out := &Resolved{}
	byKey := make(map[string]*Resolution, len(resolutions))
	for _, res := range resolutions {
		byKey[res.Resolvent.Key()] = res
		if res.Decision == nil {
			continue
		}
		isChangeOrRemove := res.Decision.Kind == DecisionChangesToMake || res.Decision.Kind == DecisionRemove
		switch {
		case res.Decision.Kind == DecisionUnableToMake:
			out.UnableToMake = append(out.UnableToMake, res)
		case res.Decision.Kind == DecisionBreak:
			out.Unconfirmed = append(out.Unconfirmed, res)
		case res.Decision.Kind == DecisionChangesToMake && res.Decision.IsDowngrade:
			out.Unconfirmed = append(out.Unconfirmed, res)
		case isChangeOrRemove && !res.Decision.Taken:
			out.Untaken = append(out.Untaken, res)
		case isChangeOrRemove:
			out.Taken = append(out.Taken, res)
		}
	}

	arrows := r.computeArrows(resolutions, byKey)
	order, unorderable, err := topoSort(resolutions, arrows)
	if err != nil {
		r.tracef("%s", err)
	}
	out.Unorderable = unorderable

	jobs, err := r.linearise(order, byKey, arrows)
	if err != nil {
		return nil, err
	}
	out.Jobs = jobs
	return out, nil
}

// computeArrows walks every decided Resolvent's chosen id's taken
// dependencies a second time (mirroring followDependencies) to record the
// ordering edges between Resolvents rather than constraints.
func (r *Resolver) computeArrows(resolutions []*Resolution, byKey map[string]*Resolution) []arrow {
	var arrows []arrow
	for _, res := range resolutions {
		if res.Decision == nil {
			continue
		}
		var id *pkgid.PackageID
		switch res.Decision.Kind {
		case DecisionChangesToMake:
			id = res.Decision.Best
		case DecisionExistingNoChange:
			id = res.Decision.ExistingID
		default:
			continue
		}
		if id == nil || id.Metadata.Dependencies == nil {
			continue
		}

		ctx := spectree.Context{}
		if id.Metadata.Choices != nil {
			ctx.Choices = *id.Metadata.Choices
		} else {
			ctx.Choices = choice.Choices{}
		}

		for _, dep := range spectree.Sanitise(*id.Metadata.Dependencies, ctx) {
			if interestOf(dep.ActiveLabels) != interestTake {
				continue
			}
			leaf := dep.Spec
			if leaf.Alternatives != nil {
				best := r.findAnyBest(leaf.Alternatives)
				if best == nil {
					continue
				}
				leaf = *best
			}
			spec := leafSpec(leaf)
			if spec == nil {
				continue
			}
			child := resolventFromSpec(*spec)
			if _, ok := byKey[child.Key()]; !ok {
				continue
			}
			strict := false
			for _, l := range dep.ActiveLabels {
				if l.Strict() {
					strict = true
					break
				}
			}
			arrows = append(arrows, arrow{From: res.Resolvent, To: child, Strict: strict})
		}
	}
	return arrows
}

func leafSpec(leaf spectree.DependencyLeaf) *depspec.PackageDepSpec {
	switch {
	case leaf.Package != nil:
		return leaf.Package
	case leaf.Block != nil:
		return &leaf.Block.Spec
	default:
		return nil
	}
}

// topoSort orders resolutions so that every strict arrow's To settles
// before its From, detecting cycles among strict arrows only: spec.md allows
// post-deps (non-strict arrows) to be satisfied after the depending
// package, so only a strict cycle is unorderable.
func topoSort(resolutions []*Resolution, arrows []arrow) ([]Resolvent, []Resolvent, error) {
	indegree := make(map[string]int)
	adj := make(map[string][]string)
	keyOf := make(map[string]Resolvent)
	for _, res := range resolutions {
		k := res.Resolvent.Key()
		keyOf[k] = res.Resolvent
		if _, ok := indegree[k]; !ok {
			indegree[k] = 0
		}
	}
	for _, a := range arrows {
		if !a.Strict {
			continue
		}
		// From depends on To, so To must come first: an edge To -> From.
		from, to := a.From.Key(), a.To.Key()
		adj[to] = append(adj[to], from)
		indegree[from]++
	}

	var queue []string
	for _, res := range resolutions {
		k := res.Resolvent.Key()
		if indegree[k] == 0 {
			queue = append(queue, k)
		}
	}
	sort.Strings(queue)

	var order []Resolvent
	visited := make(map[string]bool)
	for len(queue) > 0 {
		sort.Strings(queue)
		k := queue[0]
		queue = queue[1:]
		if visited[k] {
			continue
		}
		visited[k] = true
		order = append(order, keyOf[k])
		for _, next := range adj[k] {
			indegree[next]--
			if indegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	if len(order) == len(resolutions) {
		return order, nil, nil
	}

	var unorderable []Resolvent
	for _, res := range resolutions {
		if !visited[res.Resolvent.Key()] {
			unorderable = append(unorderable, res.Resolvent)
		}
	}
	sort.Slice(unorderable, func(i, j int) bool { return unorderable[i].Key() < unorderable[j].Key() })
	return order, unorderable, errors.Errorf("resolve: %d resolvents form an unorderable cycle of strict dependencies", len(unorderable))
}

// linearise turns the topologically ordered, decided Resolvents into a
// job.List: every taken ChangesToMakeDecision becomes a FetchJob followed
// by a RequireAlways-linked InstallJob, every taken RemoveDecision becomes
// an UninstallJob, and strict arrows between Resolvents become
// RequireForSatisfied edges from a dependent's install (or uninstall) job
// back to its dependency's install (or uninstall) job; an arrow whose
// dependency has no job of its own adds no edge.
func (r *Resolver) linearise(order []Resolvent, byKey map[string]*Resolution, arrows []arrow) (job.List, error) {
	var jobs job.List
	installJobOf := make(map[string]int)

	for _, rv := range order {
		res := byKey[rv.Key()]
		if res == nil || res.Decision == nil || !res.Decision.Taken {
			continue
		}
		d := res.Decision
		switch d.Kind {
		case DecisionChangesToMake:
			destPath := ""
			if _, destName, ok := r.destinationFor(*d.Best); ok {
				destPath = destName.String()
			}
			fetchJob := jobs.AddFetch(*d.Best)
			installJob := jobs.AddInstall(*d.Best, destPath, d.Replacing, fetchJob)
			installJobOf[rv.Key()] = installJob
		case DecisionRemove:
			specs := make([]depspec.PackageDepSpec, len(d.IDsToRemove))
			for i, id := range d.IDsToRemove {
				specs[i] = depspec.NewPackageDepSpecBuilder(id.Name).
					Version(version.OpEqual, id.Version, depspec.CombineAnd).
					Build()
			}
			uninstallJob := jobs.AddUninstall(specs)
			installJobOf[rv.Key()] = uninstallJob
		}
	}

	for _, a := range arrows {
		if !a.Strict {
			continue
		}
		fromJob, ok := installJobOf[a.From.Key()]
		if !ok {
			continue
		}
		toJob, ok := installJobOf[a.To.Key()]
		if !ok || toJob >= fromJob {
			continue
		}
		jobs.Requirement(fromJob, toJob, job.RequireForSatisfied)
	}

	if err := job.CheckAcyclic(jobs); err != nil {
		return job.List{}, err
	}
	return jobs, nil
}

// destinationFor picks the Destination a ChangesToMakeDecision with id id
// should merge into: any repository offering a suitable Destination,
// preferring one reporting itself as default.
func (r *Resolver) destinationFor(id pkgid.PackageID) (repo.Destination, name.RepositoryName, bool) {
	var fallback repo.Destination
	var fallbackName name.RepositoryName
	found := false
	for _, rep := range r.env.Repositories {
		dest, ok := rep.AsDestination()
		if !ok || !dest.IsSuitableDestinationFor(id) {
			continue
		}
		if dest.IsDefaultDestination() {
			return dest, rep.Name(), true
		}
		if !found {
			fallback, fallbackName, found = dest, rep.Name(), true
		}
	}
	return fallback, fallbackName, found
}
