// Package executor runs a job.List to completion: FetchJobs may proceed in
// parallel, bounded by a semaphore; InstallJobs and UninstallJobs run
// serially in list order. A continue-on-failure policy decides, on each
// prerequisite failure, whether to skip the dependent job or abort the
// remaining run.
package executor

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/sdboyer/constext"

	"github.com/solvd/pkgcore/internal/depspec"
	"github.com/solvd/pkgcore/internal/job"
	"github.com/solvd/pkgcore/internal/pkgid"
)

// FetchDriver fetches one id's sources or binaries.
type FetchDriver interface {
	Fetch(ctx context.Context, id pkgid.PackageID) error
}

// InstallDriver merges an already-fetched id's image into a destination,
// invoking the external build driver.
type InstallDriver interface {
	Install(ctx context.Context, id pkgid.PackageID, destination string, replacing []depspec.PackageDepSpec) error
}

// UninstallDriver removes one or more installed ids.
type UninstallDriver interface {
	Uninstall(ctx context.Context, remove []depspec.PackageDepSpec) error
}

// Outcome is the final disposition of one Job after Run.
type Outcome int

const (
	// OutcomeSucceeded means the job ran and its driver returned nil.
	OutcomeSucceeded Outcome = iota
	// OutcomeFailed means the job ran and its driver returned an error.
	OutcomeFailed
	// OutcomeSkipped means a failed prerequisite, and the active
	// continue-on-failure policy, kept the job from ever running.
	OutcomeSkipped
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeFailed:
		return "failed"
	case OutcomeSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// JobResult records what happened to one Job.
type JobResult struct {
	Job     job.Job
	Outcome Outcome
	Err     error
}

// Result is the outcome of running a whole job.List.
type Result struct {
	JobResults []JobResult
	// Aborted is true iff a failure the active Policy did not tolerate cut
	// the run short; any job after the abort point is OutcomeSkipped.
	Aborted bool
}

// sem bounds fetch concurrency, in the style of golang-dep's
// CtxWithCmdLimit/acquire: a buffered channel used as a counting
// semaphore, acquired with a select against ctx.Done() so a cancelled run
// never blocks forever waiting for a slot.
type sem chan struct{}

func (s sem) acquire(ctx context.Context) error {
	select {
	case s <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s sem) release() { <-s }

// DefaultMaxParallelFetch bounds how many FetchJobs Run executes at once
// when the Executor does not override it.
const DefaultMaxParallelFetch = 4

// Executor runs a job.List against concrete drivers.
type Executor struct {
	Fetch     FetchDriver
	Install   InstallDriver
	Uninstall UninstallDriver
	Policy    job.Policy

	// MaxParallelFetch bounds concurrent FetchJobs; <= 0 means
	// DefaultMaxParallelFetch.
	MaxParallelFetch int
}

func (e *Executor) maxParallelFetch() int {
	if e.MaxParallelFetch > 0 {
		return e.MaxParallelFetch
	}
	return DefaultMaxParallelFetch
}

// Run executes list to completion or until an intolerable failure aborts
// it. ctx governs the whole run; Run derives its own cancelable child so
// an abort can reach in-flight parallel fetches.
func (e *Executor) Run(ctx context.Context, list job.List) (*Result, error) {
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	n := len(list.Jobs)
	results := make([]JobResult, n)
	done := make([]chan struct{}, n)
	for i := range done {
		done[i] = make(chan struct{})
	}

	fetchSem := make(sem, e.maxParallelFetch())
	var wg sync.WaitGroup

	for i, j := range list.Jobs {
		if j.Kind != job.KindFetch {
			continue
		}
		wg.Add(1)
		go func(i int, j job.Job) {
			defer wg.Done()
			defer close(done[i])

			if err := fetchSem.acquire(runCtx); err != nil {
				results[i] = JobResult{Job: j, Outcome: OutcomeFailed, Err: err}
				return
			}
			defer fetchSem.release()

			jctx, cancelJob := constext.Cons(runCtx, context.Background())
			defer cancelJob()

			err := e.Fetch.Fetch(jctx, *j.ID)
			results[i] = JobResult{Job: j, Outcome: outcomeOf(err), Err: err}
		}(i, j)
	}

	aborted := false
	for i, j := range list.Jobs {
		if j.Kind == job.KindFetch {
			continue
		}
		if aborted {
			results[i] = JobResult{Job: j, Outcome: OutcomeSkipped}
			close(done[i])
			continue
		}

		skip, abortRun := e.evaluateRequirements(runCtx, list, j, results, done)
		if abortRun {
			aborted = true
			cancelRun()
			results[i] = JobResult{Job: j, Outcome: OutcomeSkipped}
			close(done[i])
			continue
		}
		if skip {
			results[i] = JobResult{Job: j, Outcome: OutcomeSkipped}
			close(done[i])
			continue
		}

		var err error
		switch j.Kind {
		case job.KindInstall:
			err = e.Install.Install(runCtx, *j.ID, j.Destination, j.Replacing)
		case job.KindUninstall:
			err = e.Uninstall.Uninstall(runCtx, j.Remove)
		default:
			err = errors.Errorf("job %d: unknown kind %d", j.Number, j.Kind)
		}
		results[i] = JobResult{Job: j, Outcome: outcomeOf(err), Err: err}
		close(done[i])
	}

	wg.Wait()
	return &Result{JobResults: results, Aborted: aborted}, nil
}

func outcomeOf(err error) Outcome {
	if err != nil {
		return OutcomeFailed
	}
	return OutcomeSucceeded
}

// evaluateRequirements waits for every prerequisite j.Requirements names,
// then decides whether j itself must be skipped, or the whole run must
// abort, given the active Policy.
func (e *Executor) evaluateRequirements(ctx context.Context, list job.List, j job.Job, results []JobResult, done []chan struct{}) (skip, abortRun bool) {
	for _, req := range j.Requirements {
		select {
		case <-done[req.Job]:
		case <-ctx.Done():
			return true, false
		}
		prereq := results[req.Job]
		if prereq.Outcome == OutcomeSucceeded {
			continue
		}
		if e.tolerates(list.Jobs[req.Job].Kind, req.Flag) {
			skip = true
			continue
		}
		return false, true
	}
	return skip, false
}

// tolerates reports whether the active Policy permits continuing (by
// skipping just the dependent) past a failure of the given kind reached
// via a requirement of the given flag.
func (e *Executor) tolerates(failedKind job.Kind, flag job.RequirementFlag) bool {
	switch e.Policy {
	case job.PolicyNever:
		return false
	case job.PolicyIfFetchOnly:
		return failedKind == job.KindFetch
	case job.PolicyIfSatisfied:
		return flag == job.RequireForSatisfied
	case job.PolicyIfIndependent:
		return flag == job.RequireForSatisfied || flag == job.RequireForIndependent
	case job.PolicyAlways:
		return true
	default:
		return false
	}
}
