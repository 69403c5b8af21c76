package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/kilupskalvis/mdvc/internal/models"
	bolt "go.etcd.io/bbolt"
)

// seqKey encodes a creation sequence so that cursor order equals creation order.
func seqKey(seq uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, seq)
	return b
}

// SaveVersion atomically stores a record, its sequence and the lineage head.
func (s *BboltStore) SaveVersion(ctx context.Context, rec *models.VersionRecord, expectedHead string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		doc, err := ensureDocBucket(tx, rec.DocumentID)
		if err != nil {
			return err
		}

		versions := doc.Bucket(bucketVersions)
		if versions.Get([]byte(rec.Label)) != nil {
			return fmt.Errorf("version %s: %w", rec.Label, ErrExists)
		}
		meta := doc.Bucket(bucketMeta)
		top := string(meta.Get(keyMaxLabel))
		if top != "" && models.CompareLabels(rec.Label, top) <= 0 {
			return fmt.Errorf("version %s is not above %s: %w", rec.Label, top, ErrConflict)
		}

		// Compare-and-swap on the lineage head
		lineage := rec.Lineage
		if lineage == "" {
			lineage = models.MainLineage
		}
		var branch *models.Branch
		var current string
		if lineage == models.MainLineage {
			current = string(doc.Bucket(bucketRefs).Get([]byte(models.MainLineage)))
		} else {
			data := doc.Bucket(bucketBranches).Get([]byte(lineage))
			if data == nil {
				return fmt.Errorf("branch %s: %w", lineage, ErrNotFound)
			}
			branch = &models.Branch{}
			if err := json.Unmarshal(data, branch); err != nil {
				return fmt.Errorf("unmarshal branch: %w", err)
			}
			current = branch.Head
		}
		if current != expectedHead {
			return fmt.Errorf("%s head is %q, expected %q: %w", lineage, current, expectedHead, ErrConflict)
		}

		order := doc.Bucket(bucketOrder)
		seq, err := order.NextSequence()
		if err != nil {
			return fmt.Errorf("allocate sequence: %w", err)
		}
		rec.Seq = seq
		rec.Lineage = lineage

		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal version: %w", err)
		}
		if err := versions.Put([]byte(rec.Label), data); err != nil {
			return fmt.Errorf("store version: %w", err)
		}
		if err := order.Put(seqKey(seq), []byte(rec.Label)); err != nil {
			return fmt.Errorf("store sequence: %w", err)
		}

		// Advance head
		if branch == nil {
			if err := doc.Bucket(bucketRefs).Put([]byte(models.MainLineage), []byte(rec.Label)); err != nil {
				return fmt.Errorf("update head: %w", err)
			}
		} else {
			branch.Head = rec.Label
			bdata, err := json.Marshal(branch)
			if err != nil {
				return fmt.Errorf("marshal branch: %w", err)
			}
			if err := doc.Bucket(bucketBranches).Put([]byte(lineage), bdata); err != nil {
				return fmt.Errorf("update branch: %w", err)
			}
		}

		if err := meta.Put(keyMaxLabel, []byte(rec.Label)); err != nil {
			return fmt.Errorf("update max label: %w", err)
		}
		return nil
	})
}

// LoadVersion retrieves a version record by label. Returns ErrNotFound if missing.
func (s *BboltStore) LoadVersion(ctx context.Context, docID, label string) (*models.VersionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var rec *models.VersionRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		doc := docBucket(tx, docID)
		if doc == nil {
			return ErrNotFound
		}
		data := doc.Bucket(bucketVersions).Get([]byte(label))
		if data == nil {
			return ErrNotFound
		}
		rec = &models.VersionRecord{}
		return json.Unmarshal(data, rec)
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// ListVersions returns all records of a document ordered by creation sequence.
func (s *BboltStore) ListVersions(ctx context.Context, docID string) ([]*models.VersionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var records []*models.VersionRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		doc := docBucket(tx, docID)
		if doc == nil {
			return nil
		}
		versions := doc.Bucket(bucketVersions)
		return doc.Bucket(bucketOrder).ForEach(func(_, label []byte) error {
			data := versions.Get(label)
			if data == nil {
				return fmt.Errorf("version %s missing from history", label)
			}
			var rec models.VersionRecord
			if err := json.Unmarshal(data, &rec); err != nil {
				return fmt.Errorf("unmarshal version %s: %w", label, err)
			}
			records = append(records, &rec)
			return nil
		})
	})
	return records, err
}

// MaxLabel returns the greatest label stored for a document.
func (s *BboltStore) MaxLabel(ctx context.Context, docID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var top string
	err := s.db.View(func(tx *bolt.Tx) error {
		doc := docBucket(tx, docID)
		if doc == nil {
			return nil
		}
		top = string(doc.Bucket(bucketMeta).Get(keyMaxLabel))
		return nil
	})
	return top, err
}

// GetHead returns the head label of main or of a branch.
func (s *BboltStore) GetHead(ctx context.Context, docID, lineage string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if lineage == "" {
		lineage = models.MainLineage
	}
	var head string
	err := s.db.View(func(tx *bolt.Tx) error {
		doc := docBucket(tx, docID)
		if lineage == models.MainLineage {
			if doc != nil {
				head = string(doc.Bucket(bucketRefs).Get([]byte(models.MainLineage)))
			}
			return nil
		}
		if doc == nil {
			return ErrNotFound
		}
		data := doc.Bucket(bucketBranches).Get([]byte(lineage))
		if data == nil {
			return ErrNotFound
		}
		var branch models.Branch
		if err := json.Unmarshal(data, &branch); err != nil {
			return fmt.Errorf("unmarshal branch: %w", err)
		}
		head = branch.Head
		return nil
	})
	return head, err
}
