package resolver

import (
	"testing"

	"github.com/solvd/pkgcore/internal/choice"
	"github.com/solvd/pkgcore/internal/depspec"
	"github.com/solvd/pkgcore/internal/environment"
	"github.com/solvd/pkgcore/internal/mask"
	"github.com/solvd/pkgcore/internal/name"
	"github.com/solvd/pkgcore/internal/pkgid"
	"github.com/solvd/pkgcore/internal/repo"
	"github.com/solvd/pkgcore/internal/spectree"
	"github.com/solvd/pkgcore/internal/version"
)

// fakeRepo is a minimal in-memory repo.Repository for resolver tests; it
// supports a fixed set of ids, optionally marking the whole repository as
// an installed root.
type fakeRepo struct {
	repoName  name.RepositoryName
	installed bool
	ids       map[string][]pkgid.PackageID
}

func newFakeRepo(t *testing.T, rn string, installed bool) *fakeRepo {
	t.Helper()
	r := &fakeRepo{ids: make(map[string][]pkgid.PackageID), installed: installed}
	var err error
	r.repoName, err = name.NewRepositoryName(rn)
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func (r *fakeRepo) add(t *testing.T, qpnStr, vStr string, md pkgid.Metadata) pkgid.PackageID {
	t.Helper()
	qpn, err := name.NewQualifiedPackageName(qpnStr)
	if err != nil {
		t.Fatal(err)
	}
	v, err := version.Parse(vStr)
	if err != nil {
		t.Fatal(err)
	}
	id := pkgid.New(r.repoName, qpn, v, nil, md, mask.Set{}, nil)
	r.ids[qpn.String()] = append(r.ids[qpn.String()], id)
	return id
}

func (r *fakeRepo) Name() name.RepositoryName { return r.repoName }
func (r *fakeRepo) HasCategory(c name.CategoryNamePart) bool {
	for _, cat := range r.CategoryNames() {
		if cat == c {
			return true
		}
	}
	return false
}
func (r *fakeRepo) HasPackage(qpn name.QualifiedPackageName) bool {
	_, ok := r.ids[qpn.String()]
	return ok
}
func (r *fakeRepo) CategoryNames() []name.CategoryNamePart {
	seen := map[name.CategoryNamePart]bool{}
	var out []name.CategoryNamePart
	for _, ids := range r.ids {
		if len(ids) == 0 {
			continue
		}
		if !seen[ids[0].Name.Category] {
			seen[ids[0].Name.Category] = true
			out = append(out, ids[0].Name.Category)
		}
	}
	return out
}
func (r *fakeRepo) PackageNames(c name.CategoryNamePart) []name.PackageNamePart {
	var out []name.PackageNamePart
	for _, ids := range r.ids {
		if len(ids) > 0 && ids[0].Name.Category == c {
			out = append(out, ids[0].Name.Package)
		}
	}
	return out
}
func (r *fakeRepo) PackageIDs(qpn name.QualifiedPackageName) []pkgid.PackageID { return r.ids[qpn.String()] }
func (r *fakeRepo) SomeIDsMightSupportAction(k repo.ActionKind) bool           { return true }
func (r *fakeRepo) SomeIDsMightNotBeMasked() bool                              { return true }
func (r *fakeRepo) InstalledRoot() (string, bool) {
	if !r.installed {
		return "", false
	}
	return "/", true
}
func (r *fakeRepo) Sync(out repo.SyncOutput) error          { return nil }
func (r *fakeRepo) PopulateSets() error                     { return nil }
func (r *fakeRepo) AsDestination() (repo.Destination, bool) { return nil, false }

func newTestEnv(repos ...repo.Repository) *environment.Environment {
	return environment.New(repos, environment.UserConfig{}, "", nil)
}

func mustQPN(t *testing.T, s string) name.QualifiedPackageName {
	t.Helper()
	qpn, err := name.NewQualifiedPackageName(s)
	if err != nil {
		t.Fatal(err)
	}
	return qpn
}

func targetSpec(t *testing.T, qpnStr string) depspec.PackageDepSpec {
	t.Helper()
	return depspec.NewPackageDepSpecBuilder(mustQPN(t, qpnStr)).Build()
}

func TestResolveNoDepsTarget(t *testing.T) {
	r := newFakeRepo(t, "gentoo", false)
	r.add(t, "dev-lang/python", "3.9", pkgid.Metadata{})

	env := newTestEnv(r)
	res := New(env, nil)
	res.AddTarget(targetSpec(t, "dev-lang/python"))

	resolutions, err := res.Resolve()
	if err != nil {
		t.Fatal(err)
	}
	if len(resolutions) != 1 {
		t.Fatalf("expected 1 resolution, got %d", len(resolutions))
	}
	d := resolutions[0].Decision
	if d.Kind != DecisionChangesToMake {
		t.Fatalf("expected DecisionChangesToMake, got %d", d.Kind)
	}
	if d.Best == nil || d.Best.Version.String() != "3.9" {
		t.Fatalf("expected python-3.9 chosen, got %v", d.Best)
	}
}

func TestResolveBuildDepsChain(t *testing.T) {
	r := newFakeRepo(t, "gentoo", false)
	bSpec := targetSpec(t, "dev-libs/b")
	depTree := spectree.All(
		spectree.Leaf(spectree.DependencyLeaf{Package: &bSpec}),
	)
	r.add(t, "app-misc/a", "1.0", pkgid.Metadata{Dependencies: &depTree})
	r.add(t, "dev-libs/b", "2.0", pkgid.Metadata{})

	env := newTestEnv(r)
	res := New(env, nil)
	res.AddTarget(targetSpec(t, "app-misc/a"))

	resolutions, err := res.Resolve()
	if err != nil {
		t.Fatal(err)
	}
	if len(resolutions) != 2 {
		t.Fatalf("expected 2 resolutions (a and its dependency b), got %d", len(resolutions))
	}
	byQPN := map[string]*Resolution{}
	for _, res := range resolutions {
		byQPN[res.Resolvent.QPN.String()] = res
	}
	a, ok := byQPN["app-misc/a"]
	if !ok || a.Decision.Kind != DecisionChangesToMake {
		t.Fatalf("expected app-misc/a resolved with changes, got %+v", a)
	}
	b, ok := byQPN["dev-libs/b"]
	if !ok || b.Decision.Kind != DecisionChangesToMake {
		t.Fatalf("expected dev-libs/b pulled in as a dependency, got %+v", b)
	}
	if b.Constraints[0].Reason.Kind != ReasonDependency {
		t.Errorf("expected dev-libs/b's constraint reason to be ReasonDependency, got %d", b.Constraints[0].Reason.Kind)
	}
}

func TestResolveAnyGroupPrefersInstalled(t *testing.T) {
	r := newFakeRepo(t, "gentoo", false)
	installedRepo := newFakeRepo(t, "installed", true)

	cSpec := targetSpec(t, "dev-libs/c")
	dSpec := targetSpec(t, "dev-libs/d")
	anyLeaf := spectree.DependencyLeaf{Alternatives: []spectree.DependencyLeaf{
		{Package: &cSpec},
		{Package: &dSpec},
	}}
	depTree := spectree.All(spectree.Leaf(anyLeaf))
	r.add(t, "app-misc/e", "1.0", pkgid.Metadata{Dependencies: &depTree})
	r.add(t, "dev-libs/c", "1.0", pkgid.Metadata{})
	r.add(t, "dev-libs/d", "1.0", pkgid.Metadata{})
	installedRepo.add(t, "dev-libs/d", "1.0", pkgid.Metadata{Contents: &pkgid.Contents{}, FSLocation: "/"})

	env := newTestEnv(r, installedRepo)
	res := New(env, nil)
	res.AddTarget(targetSpec(t, "app-misc/e"))

	resolutions, err := res.Resolve()
	if err != nil {
		t.Fatal(err)
	}
	var sawD, sawC bool
	for _, rs := range resolutions {
		switch rs.Resolvent.QPN.String() {
		case "dev-libs/d":
			sawD = true
		case "dev-libs/c":
			sawC = true
		}
	}
	if !sawD {
		t.Error("expected the already-installed alternative dev-libs/d to be followed")
	}
	if sawC {
		t.Error("did not expect the non-installed alternative dev-libs/c to be followed")
	}
}

func TestResolveRestartOnConflict(t *testing.T) {
	r := newFakeRepo(t, "gentoo", false)
	r.add(t, "aaa-lang/python", "2.7", pkgid.Metadata{})
	r.add(t, "aaa-lang/python", "3.9", pkgid.Metadata{})

	qpn := mustQPN(t, "aaa-lang/python")
	v27, err := version.Parse("2.7")
	if err != nil {
		t.Fatal(err)
	}
	exactPython27 := depspec.NewPackageDepSpecBuilder(qpn).Version(version.OpEqual, v27, depspec.CombineAnd).Build()
	depTree := spectree.All(spectree.Leaf(spectree.DependencyLeaf{Package: &exactPython27}))
	r.add(t, "zzz-misc/a", "1.0", pkgid.Metadata{Dependencies: &depTree})

	env := newTestEnv(r)
	res := New(env, nil)

	// "aaa-lang/python" sorts first, so the resolver decides it (picking
	// the unconstrained best, 3.9) before "zzz-misc/a" is even considered.
	// Once zzz-misc/a is decided, its dependency demands exactly
	// python-2.7, which conflicts with the already-made 3.9 decision and
	// forces a restart that re-seeds python's resolvent with that
	// constraint preloaded.
	res.AddTarget(targetSpec(t, "aaa-lang/python"))
	res.AddTarget(targetSpec(t, "zzz-misc/a"))

	resolutions, err := res.Resolve()
	if err != nil {
		t.Fatal(err)
	}
	if res.restarts == 0 {
		t.Error("expected at least one restart to have occurred")
	}
	var python *Resolution
	for _, rs := range resolutions {
		if rs.Resolvent.QPN.String() == "aaa-lang/python" {
			python = rs
		}
	}
	if python == nil {
		t.Fatal("expected aaa-lang/python among the resolutions")
	}
	if python.Decision.Best == nil || python.Decision.Best.Version.String() != "2.7" {
		t.Fatalf("expected the restart to settle on python-2.7 satisfying both constraints, got %v", python.Decision.Best)
	}
}

func TestResolveUnableToMake(t *testing.T) {
	r := newFakeRepo(t, "gentoo", false)
	r.add(t, "dev-lang/python", "2.7", pkgid.Metadata{})

	env := newTestEnv(r)
	res := New(env, nil)

	qpn := mustQPN(t, "dev-lang/python")
	v39, err := version.Parse("3.9")
	if err != nil {
		t.Fatal(err)
	}
	impossible := depspec.NewPackageDepSpecBuilder(qpn).Version(version.OpEqual, v39, depspec.CombineAnd).Build()
	res.AddTarget(impossible)

	resolutions, err := res.Resolve()
	if err != nil {
		t.Fatal(err)
	}
	if len(resolutions) != 1 || resolutions[0].Decision.Kind != DecisionUnableToMake {
		t.Fatalf("expected DecisionUnableToMake, got %+v", resolutions)
	}
}

func TestResolveSkipsUnmetConditionalDependency(t *testing.T) {
	r := newFakeRepo(t, "gentoo", false)
	fSpec := targetSpec(t, "dev-libs/f")
	cond := spectree.ChoiceCondition{
		Prefix: "",
		Name:   "threads",
	}
	depTree := spectree.All(
		spectree.Conditional(cond, spectree.Leaf(spectree.DependencyLeaf{Package: &fSpec})),
	)
	r.add(t, "app-misc/g", "1.0", pkgid.Metadata{Dependencies: &depTree, Choices: &choice.Choices{}})

	env := newTestEnv(r)
	res := New(env, nil)
	res.AddTarget(targetSpec(t, "app-misc/g"))

	resolutions, err := res.Resolve()
	if err != nil {
		t.Fatal(err)
	}
	for _, rs := range resolutions {
		if rs.Resolvent.QPN.String() == "dev-libs/f" {
			t.Fatal("did not expect the unmet conditional dependency to be followed at all")
		}
	}
	if len(resolutions) != 1 {
		t.Fatalf("expected only app-misc/g resolved, got %d resolutions", len(resolutions))
	}
}
