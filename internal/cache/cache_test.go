package cache

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/solvd/pkgcore/internal/mask"
	"github.com/solvd/pkgcore/internal/pkgid"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestPutGetRoundTrip(t *testing.T) {
	db := openTestDB(t)
	repo := db.Repository("gentoo")

	md := pkgid.Metadata{Homepage: []string{"https://example.invalid"}}
	ms := mask.Set{Masks: []mask.Mask{{Kind: mask.KindRepository, Token: "testing"}}}

	if err := repo.Put("dev-libs", "foo", "1.0", md, ms); err != nil {
		t.Fatal(err)
	}

	gotMD, gotMS, ok := repo.Get("dev-libs", "foo", "1.0")
	if !ok {
		t.Fatal("expected a cache hit")
	}
	if len(gotMD.Homepage) != 1 || gotMD.Homepage[0] != "https://example.invalid" {
		t.Errorf("unexpected metadata: %+v", gotMD)
	}
	if !gotMS.Masked() || gotMS.Masks[0].Token != "testing" {
		t.Errorf("unexpected mask set: %+v", gotMS)
	}
}

func TestGetMissOnUnknownKey(t *testing.T) {
	db := openTestDB(t)
	repo := db.Repository("gentoo")

	if _, _, ok := repo.Get("dev-libs", "nonexistent", "1.0"); ok {
		t.Error("expected a miss for a never-stored key")
	}
}

func TestRepositoriesAreIsolated(t *testing.T) {
	db := openTestDB(t)
	a := db.Repository("repo-a")
	b := db.Repository("repo-b")

	if err := a.Put("dev-libs", "foo", "1.0", pkgid.Metadata{}, mask.Set{}); err != nil {
		t.Fatal(err)
	}
	if _, _, ok := b.Get("dev-libs", "foo", "1.0"); ok {
		t.Error("expected repo-b's cache to be independent of repo-a's")
	}
}

func TestInvalidateCategoryMasksOlderEntries(t *testing.T) {
	db := openTestDB(t)
	repo := db.Repository("gentoo")

	restoreNow := nowFunc
	defer func() { nowFunc = restoreNow }()

	nowFunc = func() time.Time { return time.Unix(1000, 0) }
	if err := repo.Put("dev-libs", "foo", "1.0", pkgid.Metadata{}, mask.Set{}); err != nil {
		t.Fatal(err)
	}

	nowFunc = func() time.Time { return time.Unix(2000, 0) }
	if err := repo.InvalidateCategory("dev-libs"); err != nil {
		t.Fatal(err)
	}

	if _, _, ok := repo.Get("dev-libs", "foo", "1.0"); ok {
		t.Error("expected the entry to be invalidated by the later category tombstone")
	}
}

func TestInvalidateCategoryDoesNotAffectOtherCategories(t *testing.T) {
	db := openTestDB(t)
	repo := db.Repository("gentoo")

	if err := repo.Put("dev-libs", "foo", "1.0", pkgid.Metadata{}, mask.Set{}); err != nil {
		t.Fatal(err)
	}
	if err := repo.InvalidateCategory("sys-apps"); err != nil {
		t.Fatal(err)
	}

	if _, _, ok := repo.Get("dev-libs", "foo", "1.0"); !ok {
		t.Error("expected an unrelated category's invalidation to leave this entry cached")
	}
}

func TestEntryStoredAfterTombstoneSurvives(t *testing.T) {
	db := openTestDB(t)
	repo := db.Repository("gentoo")

	restoreNow := nowFunc
	defer func() { nowFunc = restoreNow }()

	nowFunc = func() time.Time { return time.Unix(1000, 0) }
	if err := repo.InvalidateCategory("dev-libs"); err != nil {
		t.Fatal(err)
	}

	nowFunc = func() time.Time { return time.Unix(2000, 0) }
	if err := repo.Put("dev-libs", "foo", "1.0", pkgid.Metadata{}, mask.Set{}); err != nil {
		t.Fatal(err)
	}

	if _, _, ok := repo.Get("dev-libs", "foo", "1.0"); !ok {
		t.Error("expected an entry stored after the tombstone to be a hit")
	}
}
