// Package cache memoizes expensive, purely-derived repository metadata
// (mask computation, parsed dependency metadata) in an on-disk BoltDB file
// keyed per repository, so that a second resolve against the same
// repository snapshot need not recompute it. Entries covered by a newer
// category tombstone (see InvalidateCategory) are treated as cache misses.
package cache

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/boltdb/bolt"
	"github.com/jmank88/nuts"
	"github.com/pkg/errors"
	"github.com/theckman/go-flock"

	"github.com/solvd/pkgcore/internal/mask"
	"github.com/solvd/pkgcore/internal/pkgid"
)

var (
	entriesBucket    = []byte("entries")
	tombstonesBucket = []byte("tombstones")
)

// DB wraps a single BoltDB file holding metadata caches for every
// repository that has been opened against it; each repository gets its
// own top-level bucket, matching the teacher's bucket-per-source layout.
type DB struct {
	bolt *bolt.DB
	path string
}

// Open opens (creating if necessary) the BoltDB file at path.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrapf(err, "cache: creating cache directory for %q", path)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "cache: opening %q", path)
	}
	return &DB{bolt: db, path: path}, nil
}

// Close releases the underlying BoltDB file.
func (d *DB) Close() error {
	return errors.Wrapf(d.bolt.Close(), "cache: closing %q", d.path)
}

// Repository returns a handle scoped to one repository's bucket.
func (d *DB) Repository(name string) *Repository {
	return &Repository{db: d, bucket: []byte("repo:" + name)}
}

// Repository is a metadata cache scoped to one repository.
type Repository struct {
	db     *DB
	bucket []byte
}

// entry is what gets gob-encoded as a bolt value: the computed metadata
// and mask set for one PackageID, stamped with the time it was computed.
type entry struct {
	Metadata pkgid.Metadata
	MaskSet  mask.Set
	StoredAt int64
}

// entryKey builds the bolt key for one (category, package, version)
// triple: a path-like string nuts treats uniformly whether it is used as
// a concrete lookup key or matched against a stored tombstone pattern.
func entryKey(category, pkg, version string) []byte {
	return []byte(fmt.Sprintf("/%s/%s/%s", category, pkg, version))
}

// Put stores md and ms for the given id coordinates, stamped with the
// current time.
func (r *Repository) Put(category, pkg, version string, md pkgid.Metadata, ms mask.Set) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(entry{Metadata: md, MaskSet: ms, StoredAt: nowFunc().Unix()}); err != nil {
		return errors.Wrap(err, "cache: encoding entry")
	}
	return r.db.bolt.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(r.bucket)
		if err != nil {
			return errors.Wrapf(err, "cache: creating bucket %s", r.bucket)
		}
		eb, err := b.CreateBucketIfNotExists(entriesBucket)
		if err != nil {
			return err
		}
		return eb.Put(entryKey(category, pkg, version), buf.Bytes())
	})
}

// Get retrieves a previously stored entry, reporting a miss if none was
// ever stored, or if a tombstone (see InvalidateCategory) postdates it.
func (r *Repository) Get(category, pkg, version string) (pkgid.Metadata, mask.Set, bool) {
	var e entry
	var ok bool
	key := entryKey(category, pkg, version)

	_ = r.db.bolt.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(r.bucket)
		if b == nil {
			return nil
		}
		eb := b.Bucket(entriesBucket)
		if eb == nil {
			return nil
		}
		raw := eb.Get(key)
		if raw == nil {
			return nil
		}
		if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&e); err != nil {
			return nil // a corrupt entry is treated as a miss, never an error
		}

		tb := b.Bucket(tombstonesBucket)
		if tb != nil {
			if tombKey, tombVal := nuts.SeekPathMatch(tb.Cursor(), key); tombKey != nil {
				var tombAt int64
				if _, err := fmt.Sscanf(string(tombVal), "%d", &tombAt); err == nil && tombAt >= e.StoredAt {
					return nil // invalidated after it was cached
				}
			}
		}

		ok = true
		return nil
	})
	return e.Metadata, e.MaskSet, ok
}

// InvalidateCategory marks every entry under category as stale as of now,
// without walking or deleting the individual entries themselves: it
// stores a single wildcard tombstone pattern ("/<category>/*rest") that
// Get's nuts.SeekPathMatch check matches against every concrete
// "/<category>/<package>/<version>" key in this repository's bucket.
func (r *Repository) InvalidateCategory(category string) error {
	lk := flock.NewFlock(r.db.path + ".invalidate.lock")
	locked, err := lk.TryLock()
	if err != nil {
		return errors.Wrapf(err, "cache: locking %q for invalidation", r.db.path)
	}
	if !locked {
		return errors.Errorf("cache: %q is locked by another invalidation", r.db.path)
	}
	defer lk.Unlock()

	pattern := []byte(fmt.Sprintf("/%s/*rest", category))
	stamp := []byte(fmt.Sprintf("%d", nowFunc().Unix()))

	return r.db.bolt.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(r.bucket)
		if err != nil {
			return err
		}
		tb, err := b.CreateBucketIfNotExists(tombstonesBucket)
		if err != nil {
			return err
		}
		if conflict, _ := nuts.SeekPathConflict(tb.Cursor(), pattern); conflict != nil {
			// An overlapping tombstone (e.g. from a concurrent wider
			// invalidation) already covers this category; refresh its
			// timestamp instead of adding a second, redundant pattern.
			return tb.Put(conflict, stamp)
		}
		return tb.Put(pattern, stamp)
	})
}

// nowFunc is a seam for tests; production code always uses time.Now.
var nowFunc = time.Now
