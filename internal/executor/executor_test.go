package executor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/solvd/pkgcore/internal/depspec"
	"github.com/solvd/pkgcore/internal/job"
	"github.com/solvd/pkgcore/internal/mask"
	"github.com/solvd/pkgcore/internal/name"
	"github.com/solvd/pkgcore/internal/pkgid"
	"github.com/solvd/pkgcore/internal/version"
)

func mustID(t *testing.T, qpnStr, vStr string) pkgid.PackageID {
	t.Helper()
	qpn, err := name.NewQualifiedPackageName(qpnStr)
	if err != nil {
		t.Fatal(err)
	}
	v, err := version.Parse(vStr)
	if err != nil {
		t.Fatal(err)
	}
	repo, err := name.NewRepositoryName("gentoo")
	if err != nil {
		t.Fatal(err)
	}
	return pkgid.New(repo, qpn, v, nil, pkgid.Metadata{}, mask.Set{}, nil)
}

type fakeDrivers struct {
	fetchErr   map[string]error
	installErr map[string]error

	mu          sync.Mutex
	concurrent  int32
	maxObserved int32
	fetchDelay  time.Duration
}

func (d *fakeDrivers) Fetch(ctx context.Context, id pkgid.PackageID) error {
	cur := atomic.AddInt32(&d.concurrent, 1)
	defer atomic.AddInt32(&d.concurrent, -1)
	d.mu.Lock()
	if cur > d.maxObserved {
		d.maxObserved = cur
	}
	d.mu.Unlock()
	if d.fetchDelay > 0 {
		time.Sleep(d.fetchDelay)
	}
	if d.fetchErr != nil {
		return d.fetchErr[id.String()]
	}
	return nil
}

func (d *fakeDrivers) Install(ctx context.Context, id pkgid.PackageID, destination string, replacing []depspec.PackageDepSpec) error {
	if d.installErr != nil {
		return d.installErr[id.String()]
	}
	return nil
}

func (d *fakeDrivers) Uninstall(ctx context.Context, remove []depspec.PackageDepSpec) error {
	return nil
}

func TestRunNoDepsTargetSucceeds(t *testing.T) {
	id := mustID(t, "no-deps/target", "1")
	var list job.List
	fetch := list.AddFetch(id)
	list.AddInstall(id, "/", nil, fetch)

	drivers := &fakeDrivers{}
	e := &Executor{Fetch: drivers, Install: drivers, Uninstall: drivers, Policy: job.PolicyNever}

	result, err := e.Run(context.Background(), list)
	if err != nil {
		t.Fatal(err)
	}
	if result.Aborted {
		t.Fatal("did not expect the run to abort")
	}
	for _, r := range result.JobResults {
		if r.Outcome != OutcomeSucceeded {
			t.Errorf("job %d (%s): outcome = %s, want succeeded", r.Job.Number, r.Job.Kind, r.Outcome)
		}
	}
}

func TestRunAbortsOnRequireAlwaysFailureUnderNever(t *testing.T) {
	id := mustID(t, "no-deps/target", "1")
	var list job.List
	fetch := list.AddFetch(id)
	install := list.AddInstall(id, "/", nil, fetch)

	drivers := &fakeDrivers{fetchErr: map[string]error{id.String(): errors.New("network down")}}
	e := &Executor{Fetch: drivers, Install: drivers, Uninstall: drivers, Policy: job.PolicyNever}

	result, err := e.Run(context.Background(), list)
	if err != nil {
		t.Fatal(err)
	}
	if result.JobResults[fetch].Outcome != OutcomeFailed {
		t.Errorf("expected fetch job to be failed, got %s", result.JobResults[fetch].Outcome)
	}
	if result.JobResults[install].Outcome != OutcomeSkipped {
		t.Errorf("expected install job to be skipped after its require_always fetch failed, got %s", result.JobResults[install].Outcome)
	}
	if !result.Aborted {
		t.Error("expected the run to report aborted")
	}
}

func TestContinueOnFailureUninstallChainUnderAlwaysPolicy(t *testing.T) {
	var list job.List
	needsTarget := list.AddUninstall(nil)
	target := list.AddUninstall(nil)
	dep := list.AddUninstall(nil)
	depOfDep := list.AddUninstall(nil)
	list.Requirement(target, needsTarget, job.RequireForSatisfied)
	list.Requirement(dep, target, job.RequireForSatisfied)
	list.Requirement(depOfDep, dep, job.RequireForSatisfied)

	drivers := &fakeDrivers{}
	failing := errors.New("uninstall hook failed")
	e := &Executor{
		Fetch:     drivers,
		Install:   drivers,
		Uninstall: failingUninstallAt(drivers, needsTarget, failing),
		Policy:    job.PolicyAlways,
	}

	result, err := e.Run(context.Background(), list)
	if err != nil {
		t.Fatal(err)
	}
	if result.Aborted {
		t.Error("PolicyAlways should never abort the run")
	}
	if result.JobResults[needsTarget].Outcome != OutcomeFailed {
		t.Fatalf("expected needs-target uninstall to fail, got %s", result.JobResults[needsTarget].Outcome)
	}
	for _, n := range []int{target, dep, depOfDep} {
		if result.JobResults[n].Outcome != OutcomeSkipped {
			t.Errorf("expected job %d to be skipped after its prerequisite failed, got %s", n, result.JobResults[n].Outcome)
		}
	}
}

// failingUninstallAt wraps drivers so the job numbered `at` fails; since
// UninstallDriver.Uninstall does not receive its own job number, the test
// tracks call order instead (jobs run strictly in list order here since
// every job is an UninstallJob, never parallel).
type countingUninstall struct {
	base    *fakeDrivers
	calls   int32
	failAt  int
	failErr error
}

func (c *countingUninstall) Uninstall(ctx context.Context, remove []depspec.PackageDepSpec) error {
	n := int(atomic.AddInt32(&c.calls, 1)) - 1
	if n == c.failAt {
		return c.failErr
	}
	return c.base.Uninstall(ctx, remove)
}

func failingUninstallAt(base *fakeDrivers, at int, err error) UninstallDriver {
	return &countingUninstall{base: base, failAt: at, failErr: err}
}

func TestRunRespectsMaxParallelFetch(t *testing.T) {
	var list job.List
	for i := 0; i < 6; i++ {
		id := mustID(t, "dev-libs/p", "1")
		list.AddFetch(id)
	}

	drivers := &fakeDrivers{fetchDelay: 20 * time.Millisecond}
	e := &Executor{Fetch: drivers, Install: drivers, Uninstall: drivers, Policy: job.PolicyNever, MaxParallelFetch: 2}

	if _, err := e.Run(context.Background(), list); err != nil {
		t.Fatal(err)
	}
	if drivers.maxObserved > 2 {
		t.Errorf("observed %d concurrent fetches, want <= 2", drivers.maxObserved)
	}
}
