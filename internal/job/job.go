// Package job implements the linearised execution plan a resolve produces:
// FetchJob, InstallJob and UninstallJob, the ordering edges between them,
// and the continue-on-failure policy the executor consults when a
// prerequisite fails.
package job

import (
	"github.com/pkg/errors"

	"github.com/solvd/pkgcore/internal/depspec"
	"github.com/solvd/pkgcore/internal/pkgid"
)

// RequirementFlag names what kind of prerequisite edge a JobRequirement
// carries.
type RequirementFlag int

const (
	// RequireForSatisfied: skip the dependent if the prerequisite failed
	// and that failure leaves the dependent's semantic prerequisite unmet.
	RequireForSatisfied RequirementFlag = iota
	// RequireForIndependent: skip the dependent if the prerequisite failed,
	// unless the continue-on-failure policy is permissive enough to ignore
	// it.
	RequireForIndependent
	// RequireAlways: hard prerequisite, e.g. fetch-before-install for the
	// same id.
	RequireAlways
)

func (f RequirementFlag) String() string {
	switch f {
	case RequireForSatisfied:
		return "require_for_satisfied"
	case RequireForIndependent:
		return "require_for_independent"
	case RequireAlways:
		return "require_always"
	default:
		return "unknown"
	}
}

// Requirement is one ordering edge a job carries: it must come after the
// job at index Job in the owning JobList, with the strength Flag gives.
type Requirement struct {
	Job  int
	Flag RequirementFlag
}

// Kind discriminates the three ExecuteJob variants.
type Kind int

const (
	// KindFetch fetches an id's sources/binaries.
	KindFetch Kind = iota
	// KindInstall merges an already-fetched id's image into a destination.
	KindInstall
	// KindUninstall removes one or more installed ids.
	KindUninstall
)

func (k Kind) String() string {
	switch k {
	case KindFetch:
		return "fetch"
	case KindInstall:
		return "install"
	case KindUninstall:
		return "uninstall"
	default:
		return "unknown"
	}
}

// Job is one linearised step of a plan: its Number is its own index in the
// owning JobList, referenced by later jobs' Requirements.
type Job struct {
	Number int
	Kind   Kind

	// FetchJob / InstallJob fields.
	ID          *pkgid.PackageID
	Destination string
	Replacing   []depspec.PackageDepSpec

	// UninstallJob fields.
	Remove []depspec.PackageDepSpec

	Requirements []Requirement
}

// AddRequirement appends a requirement edge pointing at an earlier job.
// j.Number must already be set; a requirement on a job number >= j.Number
// would violate the acyclic invariant and panics rather than silently
// producing an unorderable plan.
func (j *Job) AddRequirement(other int, flag RequirementFlag) {
	if other >= j.Number {
		panic(errors.Errorf("job %d: requirement on job %d violates the acyclic ordering invariant", j.Number, other))
	}
	j.Requirements = append(j.Requirements, Requirement{Job: other, Flag: flag})
}

// List is an ordered, append-only plan: jobs are always appended in
// increasing Number order, matching the topological order their Decisions
// were produced in.
type List struct {
	Jobs []Job
}

// AddFetch appends a FetchJob and returns its number.
func (l *List) AddFetch(id pkgid.PackageID) int {
	n := len(l.Jobs)
	l.Jobs = append(l.Jobs, Job{Number: n, Kind: KindFetch, ID: &id})
	return n
}

// AddInstall appends an InstallJob and returns its number. fetchJob, if >=
// 0, gets a RequireAlways edge from the new job (fetch-before-install for
// the same id).
func (l *List) AddInstall(id pkgid.PackageID, destination string, replacing []depspec.PackageDepSpec, fetchJob int) int {
	n := len(l.Jobs)
	j := Job{Number: n, Kind: KindInstall, ID: &id, Destination: destination, Replacing: replacing}
	l.Jobs = append(l.Jobs, j)
	if fetchJob >= 0 {
		l.Jobs[n].AddRequirement(fetchJob, RequireAlways)
	}
	return n
}

// AddUninstall appends an UninstallJob and returns its number.
func (l *List) AddUninstall(remove []depspec.PackageDepSpec) int {
	n := len(l.Jobs)
	l.Jobs = append(l.Jobs, Job{Number: n, Kind: KindUninstall, Remove: remove})
	return n
}

// Requirement appends a requirement edge from the job numbered `from` to
// the earlier job numbered `to`.
func (l *List) Requirement(from, to int, flag RequirementFlag) {
	l.Jobs[from].AddRequirement(to, flag)
}

// CheckAcyclic verifies the topological invariant SPEC_FULL.md names:
// every Requirement's referenced job number is strictly less than the
// referencing job's own number. AddRequirement already enforces this at
// construction time; CheckAcyclic exists for plans built or mutated by
// means other than the List/Job helpers above (e.g. a test fixture).
func CheckAcyclic(l List) error {
	for _, j := range l.Jobs {
		for _, req := range j.Requirements {
			if req.Job >= j.Number {
				return errors.Errorf("job %d: requirement on job %d violates the acyclic ordering invariant", j.Number, req.Job)
			}
		}
	}
	return nil
}

// Policy names a continue-on-failure policy value.
type Policy int

const (
	// PolicyIfFetchOnly continues past failures in fetch jobs only.
	PolicyIfFetchOnly Policy = iota
	// PolicyNever aborts the whole run as soon as an install or uninstall
	// job requires a prerequisite that failed.
	PolicyNever
	// PolicyIfSatisfied skips a dependent whose failed prerequisite is
	// reached through a RequireForSatisfied requirement; a failure reached
	// through any other flag aborts.
	PolicyIfSatisfied
	// PolicyIfIndependent continues past RequireForIndependent failures
	// too, only RequireAlways failures abort.
	PolicyIfIndependent
	// PolicyAlways never aborts; every failure is merely recorded and its
	// dependents are skipped individually.
	PolicyAlways
)
