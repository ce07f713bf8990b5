package job

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

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

func TestNoDepsTargetJobList(t *testing.T) {
	id := mustID(t, "no-deps/target", "1")
	var l List
	fetch := l.AddFetch(id)
	install := l.AddInstall(id, "/", nil, fetch)

	require.Equal(t, 0, fetch)
	require.Equal(t, 1, install)
	want := []Requirement{{Job: 0, Flag: RequireAlways}}
	if diff := cmp.Diff(want, l.Jobs[1].Requirements); diff != "" {
		t.Fatalf("install job requirements mismatch (-want +got):\n%s", diff)
	}
	require.NoError(t, CheckAcyclic(l))
}

func TestContinueOnFailureUninstallChain(t *testing.T) {
	var l List
	needsTarget := l.AddUninstall(nil)
	target := l.AddUninstall(nil)
	dep := l.AddUninstall(nil)
	depOfDep := l.AddUninstall(nil)

	l.Requirement(target, needsTarget, RequireForSatisfied)
	l.Requirement(dep, target, RequireForSatisfied)
	l.Requirement(depOfDep, dep, RequireForSatisfied)

	if err := CheckAcyclic(l); err != nil {
		t.Fatal(err)
	}
	if l.Jobs[1].Requirements[0].Job != 0 || l.Jobs[2].Requirements[0].Job != 1 || l.Jobs[3].Requirements[0].Job != 2 {
		t.Fatalf("expected the require_for_satisfied chain 0<-1<-2<-3, got %+v", l.Jobs)
	}
}

func TestAddRequirementPanicsOnForwardReference(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected a panic for a requirement on a later job number")
		}
	}()
	j := Job{Number: 0}
	j.AddRequirement(1, RequireAlways)
}

func TestCheckAcyclicCatchesHandBuiltViolation(t *testing.T) {
	l := List{Jobs: []Job{
		{Number: 0, Requirements: []Requirement{{Job: 1, Flag: RequireAlways}}},
		{Number: 1},
	}}
	if err := CheckAcyclic(l); err == nil {
		t.Fatal("expected CheckAcyclic to reject a forward-referencing requirement")
	}
}
