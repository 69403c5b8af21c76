// Package store provides persistence backends for mdvc version history.
// The default backend keeps every document in nested buckets of a single
// embedded bbolt database file; a SQLite backend is available as an alternative.
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Bucket names used by the bbolt backend. Each document gets a nested bucket
// under bucketDocuments holding the per-document buckets below.
var (
	bucketDocuments = []byte("documents")
	bucketVersions  = []byte("versions") // label -> VersionRecord JSON
	bucketOrder     = []byte("order")    // seq (big-endian) -> label
	bucketBranches  = []byte("branches") // name -> Branch JSON
	bucketRefs      = []byte("refs")     // "main" -> head label
	bucketMeta      = []byte("meta")     // bookkeeping such as max label
)

var docBuckets = [][]byte{bucketVersions, bucketOrder, bucketBranches, bucketRefs, bucketMeta}

// Meta key names.
var keyMaxLabel = []byte("max_label")

// BboltStore implements Backend using bbolt.
type BboltStore struct {
	db *bolt.DB
}

// NewBbolt opens or creates a bbolt database at the given path.
func NewBbolt(dbPath string) (*BboltStore, error) {
	dir := filepath.Dir(dbPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketDocuments); err != nil {
			return fmt.Errorf("create bucket %s: %w", bucketDocuments, err)
		}
		return nil
	}); err != nil {
		db.Close()
		return nil, err
	}

	return &BboltStore{db: db}, nil
}

// Close closes the database.
func (s *BboltStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// docBucket returns the bucket of a document, or nil if it has no history.
func docBucket(tx *bolt.Tx, docID string) *bolt.Bucket {
	return tx.Bucket(bucketDocuments).Bucket([]byte(docID))
}

// ensureDocBucket creates the document bucket and its children if needed.
func ensureDocBucket(tx *bolt.Tx, docID string) (*bolt.Bucket, error) {
	if docID == "" {
		return nil, fmt.Errorf("document id is required")
	}
	doc, err := tx.Bucket(bucketDocuments).CreateBucketIfNotExists([]byte(docID))
	if err != nil {
		return nil, fmt.Errorf("create document bucket %s: %w", docID, err)
	}
	for _, name := range docBuckets {
		if _, err := doc.CreateBucketIfNotExists(name); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", name, err)
		}
	}
	return doc, nil
}
