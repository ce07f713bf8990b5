package testrepo

import (
	"testing"

	"github.com/solvd/pkgcore/internal/mask"
	"github.com/solvd/pkgcore/internal/name"
	"github.com/solvd/pkgcore/internal/pkgid"
	"github.com/solvd/pkgcore/internal/repo"
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
	rn, err := name.NewRepositoryName("test")
	if err != nil {
		t.Fatal(err)
	}
	return pkgid.New(rn, qpn, v, nil, pkgid.Metadata{}, mask.Set{}, nil)
}

func TestMemoryBasicQueries(t *testing.T) {
	rn, err := name.NewRepositoryName("test")
	if err != nil {
		t.Fatal(err)
	}
	m := NewMemory(rn)
	m.Add(mustID(t, "dev-libs/foo", "1.0"))
	m.Add(mustID(t, "dev-libs/foo", "2.0"))
	m.Add(mustID(t, "sys-apps/bar", "1.0"))

	cat, err := name.NewCategoryNamePart("dev-libs")
	if err != nil {
		t.Fatal(err)
	}
	if !m.HasCategory(cat) {
		t.Error("expected dev-libs category to be present")
	}

	qpn, err := name.NewQualifiedPackageName("dev-libs/foo")
	if err != nil {
		t.Fatal(err)
	}
	if ids := m.PackageIDs(qpn); len(ids) != 2 {
		t.Errorf("expected 2 versions of dev-libs/foo, got %d", len(ids))
	}

	if len(m.CategoryNames()) != 2 {
		t.Errorf("expected 2 categories, got %d", len(m.CategoryNames()))
	}
}

func TestMemorySyncRequiresOptIn(t *testing.T) {
	rn, _ := name.NewRepositoryName("test")
	m := NewMemory(rn)
	if err := m.Sync(nil); err == nil {
		t.Fatal("expected Sync to fail when SupportsSync is false")
	}

	m.SupportsSync = true
	if err := m.Sync(nil); err != nil {
		t.Fatalf("expected Sync to succeed once opted in, got %v", err)
	}
}

func TestMemoryInstalledRoot(t *testing.T) {
	rn, _ := name.NewRepositoryName("test")
	m := NewMemory(rn)
	if _, ok := m.InstalledRoot(); ok {
		t.Error("expected no installed root by default")
	}

	m.InstalledAt = "/"
	if root, ok := m.InstalledRoot(); !ok || root != "/" {
		t.Errorf("expected installed root \"/\", got %q, %v", root, ok)
	}
}

func TestMemoryDestinationRecordsMerges(t *testing.T) {
	rn, _ := name.NewRepositoryName("test")
	m := NewMemory(rn).AsWritableDestination(true)

	dest, ok := m.AsDestination()
	if !ok {
		t.Fatal("expected a Destination view after AsWritableDestination")
	}
	if !dest.IsDefaultDestination() {
		t.Error("expected the destination to report itself as default")
	}

	id := mustID(t, "dev-libs/foo", "1.0")
	if err := dest.Merge(repo.DestinationParams{ID: id}); err != nil {
		t.Fatal(err)
	}

	qpn, _ := name.NewQualifiedPackageName("dev-libs/foo")
	if ids := m.PackageIDs(qpn); len(ids) != 1 {
		t.Errorf("expected the merge to land in the owning Memory's id set, got %d ids", len(ids))
	}
}
