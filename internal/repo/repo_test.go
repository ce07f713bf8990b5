package repo

import (
	"testing"

	"github.com/solvd/pkgcore/internal/mask"
	"github.com/solvd/pkgcore/internal/name"
	"github.com/solvd/pkgcore/internal/pkgid"
	"github.com/solvd/pkgcore/internal/version"
)

type fakeRepo struct {
	repoName name.RepositoryName
	ids      map[string][]pkgid.PackageID
}

func newFakeRepo(t *testing.T, rn string, specs ...string) *fakeRepo {
	t.Helper()
	r := &fakeRepo{ids: make(map[string][]pkgid.PackageID)}
	var err error
	r.repoName, err = name.NewRepositoryName(rn)
	if err != nil {
		t.Fatal(err)
	}
	for _, s := range specs {
		// s is "category/package-version"
		idx := len(s) - 1
		for idx >= 0 && s[idx] != '-' {
			idx--
		}
		qpnStr, vStr := s[:idx], s[idx+1:]
		qpn, err := name.NewQualifiedPackageName(qpnStr)
		if err != nil {
			t.Fatal(err)
		}
		v, err := version.Parse(vStr)
		if err != nil {
			t.Fatal(err)
		}
		id := pkgid.New(r.repoName, qpn, v, nil, pkgid.Metadata{}, mask.Set{}, nil)
		r.ids[qpn.String()] = append(r.ids[qpn.String()], id)
	}
	return r
}

func (r *fakeRepo) Name() name.RepositoryName { return r.repoName }
func (r *fakeRepo) HasCategory(c name.CategoryNamePart) bool {
	for _, cats := range r.CategoryNames() {
		if cats == c {
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
func (r *fakeRepo) SomeIDsMightSupportAction(k ActionKind) bool                { return true }
func (r *fakeRepo) SomeIDsMightNotBeMasked() bool                              { return true }
func (r *fakeRepo) InstalledRoot() (string, bool)                             { return "", false }
func (r *fakeRepo) Sync(out SyncOutput) error                                 { return nil }
func (r *fakeRepo) PopulateSets() error                                       { return nil }
func (r *fakeRepo) AsDestination() (Destination, bool)                        { return nil, false }

func TestGeneratorPackageAndSelectBestVersionOnly(t *testing.T) {
	r := newFakeRepo(t, "gentoo", "dev-lang/python-2.7", "dev-lang/python-3.9", "dev-lang/ruby-3.0")
	qpn, _ := name.NewQualifiedPackageName("dev-lang/python")

	ids := Package(qpn).Generate([]Repository{r})
	if len(ids) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(ids))
	}

	best, err := Select("BestVersionOnly", ids)
	if err != nil {
		t.Fatal(err)
	}
	if len(best) != 1 || best[0].Version.String() != "3.9" {
		t.Errorf("BestVersionOnly = %v, want [python-3.9]", best)
	}
}

func TestSelectRequireExactlyOne(t *testing.T) {
	r := newFakeRepo(t, "gentoo", "dev-lang/python-2.7", "dev-lang/python-3.9")
	qpn, _ := name.NewQualifiedPackageName("dev-lang/python")
	ids := Package(qpn).Generate([]Repository{r})

	if _, err := Select("RequireExactlyOne", ids); err == nil {
		t.Error("expected ambiguity error for 2 candidates")
	}

	single, err := Select("RequireExactlyOne", ids[:1])
	if err != nil || len(single) != 1 {
		t.Errorf("unexpected result for single candidate: %v, %v", single, err)
	}
}

func TestFilterNotMasked(t *testing.T) {
	r := newFakeRepo(t, "gentoo", "dev-lang/python-2.7")
	qpn, _ := name.NewQualifiedPackageName("dev-lang/python")
	ids := Package(qpn).Generate([]Repository{r})
	ids[0].Masks = mask.Set{Masks: []mask.Mask{{Kind: mask.KindUser}}}

	filtered := Apply(ids, NotMasked())
	if len(filtered) != 0 {
		t.Errorf("expected masked id filtered out, got %d", len(filtered))
	}
}

func TestAllGeneratorAcrossCategories(t *testing.T) {
	r := newFakeRepo(t, "gentoo", "dev-lang/python-2.7", "sys-apps/baselayout-1.0")
	ids := All().Generate([]Repository{r})
	if len(ids) != 2 {
		t.Fatalf("expected 2 ids across categories, got %d", len(ids))
	}
}
