// Package store persists all cross-invocation audit state in BoltDB:
// audits, the crawl frontier, page records, analyses, issues, and circuit
// breaker state. Every mutation runs inside a single bolt Update transaction,
// which serializes writers and gives the atomic read-modify-write semantics
// the resumable pipeline depends on.
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketAudits   = []byte("audits")
	bucketFrontier = []byte("frontier")
	bucketPages    = []byte("pages")
	bucketAnalyses = []byte("analyses")
	bucketIssues   = []byte("issues")
	bucketBreakers = []byte("breakers")
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("store: not found")

// Store is the BoltDB-backed persistence layer.
type Store struct {
	db   *bolt.DB
	path string
	now  func() time.Time
}

// Open opens (or creates) the store at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketAudits, bucketFrontier, bucketPages, bucketAnalyses, bucketIssues, bucketBreakers} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}

	return &Store{db: db, path: path, now: time.Now}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// auditBucket returns the nested per-audit bucket under parent, creating it
// when writable is true.
func auditBucket(tx *bolt.Tx, parent []byte, auditID string, writable bool) (*bolt.Bucket, error) {
	root := tx.Bucket(parent)
	if root == nil {
		return nil, fmt.Errorf("bucket %s missing", parent)
	}
	if writable {
		return root.CreateBucketIfNotExists([]byte(auditID))
	}
	b := root.Bucket([]byte(auditID))
	return b, nil
}
