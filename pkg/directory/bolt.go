package directory

import (
	"bytes"
	"fmt"
	"path/filepath"
	"sort"

	bolt "go.etcd.io/bbolt"

	"github.com/arrowhead-f/confsys/pkg/metrics"
)

// DefaultMapSize is the initial mmap reservation for the database file.
const DefaultMapSize = 2 << 30

var bucketEntries = []byte("entries")

// Options holds storage configuration.
type Options struct {
	// MapSize is the initial mmap size in bytes (default 2 GiB).
	MapSize int
}

// BoltDirectory implements Directory on a memory-mapped bbolt database:
// one file, one named bucket, raw byte keys in lexical order, single-writer
// MVCC transactions.
type BoltDirectory struct {
	db *bolt.DB
}

// Open creates or opens the database under dataDir.
func Open(dataDir string, opts *Options) (*BoltDirectory, error) {
	mapSize := DefaultMapSize
	if opts != nil && opts.MapSize > 0 {
		mapSize = opts.MapSize
	}

	dbPath := filepath.Join(dataDir, "directory.db")
	db, err := bolt.Open(dbPath, 0600, &bolt.Options{InitialMmapSize: mapSize})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketEntries)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltDirectory{db: db}, nil
}

// Close closes the database. Views created from this directory become
// unusable.
func (d *BoltDirectory) Close() error {
	return d.db.Close()
}

// Enter returns a view rooted at path.
func (d *BoltDirectory) Enter(path string) Directory {
	return enter(d, path)
}

// Map returns a transform view over this directory.
func (d *BoltDirectory) Map(read, write Transform) Directory {
	return mapped(d, read, write)
}

// Read runs fn in a read-only transaction; the transaction is always
// rolled back when fn returns.
func (d *BoltDirectory) Read(fn func(Reader) error) error {
	return d.db.View(func(tx *bolt.Tx) error {
		return fn(&boltTx{bucket: tx.Bucket(bucketEntries)})
	})
}

// Write runs fn in a read/write transaction, committing iff fn succeeds.
func (d *BoltDirectory) Write(fn func(Writer) error) error {
	err := d.db.Update(func(tx *bolt.Tx) error {
		return fn(&boltTx{bucket: tx.Bucket(bucketEntries)})
	})
	if err != nil {
		metrics.DirectoryAborts.Inc()
		return err
	}
	metrics.DirectoryCommits.Inc()
	return nil
}

// boltTx adapts one bolt transaction bucket to the Reader/Writer handles.
type boltTx struct {
	bucket *bolt.Bucket
}

func (t *boltTx) List(paths []string) ([]Entry, error) {
	folders, exacts := matchSet(paths)

	var entries []Entry
	seen := make(map[string]bool)
	collect := func(k, v []byte) {
		key := string(k)
		if seen[key] {
			return
		}
		seen[key] = true
		// Values alias the mmap and are only valid inside the transaction.
		value := make([]byte, len(v))
		copy(value, v)
		entries = append(entries, Entry{Path: key, Value: value})
	}

	for _, folder := range folders {
		prefix := []byte(folder)
		c := t.bucket.Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			collect(k, v)
		}
	}
	for _, exact := range exacts {
		if v := t.bucket.Get([]byte(exact)); v != nil {
			collect([]byte(exact), v)
		}
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, nil
}

func (t *boltTx) Add(entries []Entry) error {
	for _, entry := range entries {
		key := Normalize(entry.Path)
		if !ValidKey(key) {
			return fmt.Errorf("%w: %q", ErrPathNotFullyQualified, entry.Path)
		}
	}
	for _, entry := range entries {
		if err := t.bucket.Put([]byte(Normalize(entry.Path)), entry.Value); err != nil {
			return err
		}
	}
	return nil
}

func (t *boltTx) Remove(paths []string) error {
	matched, err := t.List(paths)
	if err != nil {
		return err
	}
	for _, entry := range matched {
		if err := t.bucket.Delete([]byte(entry.Path)); err != nil {
			return err
		}
	}
	return nil
}

// matchSet turns a path collection into coalesced folder prefixes and
// exact keys. An empty collection, or one containing an empty path,
// matches everything.
func matchSet(paths []string) (folders, exacts []string) {
	if len(paths) == 0 {
		return []string{"."}, nil
	}
	for _, path := range paths {
		if path == "" || path == "." {
			return []string{"."}, nil
		}
	}
	return coalesce(paths)
}
