package repo

import (
	"github.com/armon/go-radix"
	"github.com/golang/groupcache/lru"

	"github.com/solvd/pkgcore/internal/pkgid"
)

// categoryIndex is a radix-tree membership index over one repository's
// category names. Category() builds a fresh one for every repository on
// every call, from a single CategoryNames() call, and uses it only for exact
// membership tests.
type categoryIndex struct {
	tree *radix.Tree
}

func newCategoryIndex(r Repository) categoryIndex {
	t := radix.New()
	for _, c := range r.CategoryNames() {
		t.Insert(string(c), struct{}{})
	}
	return categoryIndex{tree: t}
}

func (c categoryIndex) has(name string) bool {
	_, ok := c.tree.Get(name)
	return ok
}

// selectionCache is an LRU of Select results keyed by (shape,
// qualified-name, repo-set epoch). Select and the resolver do not consult
// it, and nothing in this module constructs one.
type selectionCache struct {
	cache *lru.Cache
}

// newSelectionCache builds a cache holding up to maxEntries Select results.
func newSelectionCache(maxEntries int) *selectionCache {
	return &selectionCache{cache: lru.New(maxEntries)}
}

type selectionCacheKey struct {
	shape string
	qpn   string
	epoch uint64
}

func (s *selectionCache) get(shape, qpn string, epoch uint64) ([]pkgid.PackageID, bool) {
	v, ok := s.cache.Get(selectionCacheKey{shape: shape, qpn: qpn, epoch: epoch})
	if !ok {
		return nil, false
	}
	return v.([]pkgid.PackageID), true
}

func (s *selectionCache) put(shape, qpn string, epoch uint64, ids []pkgid.PackageID) {
	s.cache.Add(selectionCacheKey{shape: shape, qpn: qpn, epoch: epoch}, ids)
}
