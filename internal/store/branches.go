package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/kilupskalvis/mdvc/internal/models"
	bolt "go.etcd.io/bbolt"
)

// CreateBranch stores a new branch. Returns ErrExists if the name is taken.
func (s *BboltStore) CreateBranch(ctx context.Context, branch *models.Branch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		doc, err := ensureDocBucket(tx, branch.DocumentID)
		if err != nil {
			return err
		}
		bucket := doc.Bucket(bucketBranches)

		if bucket.Get([]byte(branch.Name)) != nil {
			return fmt.Errorf("branch '%s': %w", branch.Name, ErrExists)
		}
		if doc.Bucket(bucketVersions).Get([]byte(branch.ForkPoint)) == nil {
			return fmt.Errorf("fork point %s: %w", branch.ForkPoint, ErrNotFound)
		}

		data, err := json.Marshal(branch)
		if err != nil {
			return fmt.Errorf("marshal branch: %w", err)
		}

		return bucket.Put([]byte(branch.Name), data)
	})
}

// GetBranch retrieves a branch by name. Returns ErrNotFound if missing.
func (s *BboltStore) GetBranch(ctx context.Context, docID, name string) (*models.Branch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var branch *models.Branch

	err := s.db.View(func(tx *bolt.Tx) error {
		doc := docBucket(tx, docID)
		if doc == nil {
			return ErrNotFound
		}

		data := doc.Bucket(bucketBranches).Get([]byte(name))
		if data == nil {
			return ErrNotFound
		}

		branch = &models.Branch{}
		return json.Unmarshal(data, branch)
	})

	if err != nil {
		return nil, err
	}
	return branch, nil
}

// ListBranches returns all branches of a document sorted by name.
func (s *BboltStore) ListBranches(ctx context.Context, docID string) ([]*models.Branch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var branches []*models.Branch

	err := s.db.View(func(tx *bolt.Tx) error {
		doc := docBucket(tx, docID)
		if doc == nil {
			return nil
		}

		return doc.Bucket(bucketBranches).ForEach(func(k, v []byte) error {
			var branch models.Branch
			if err := json.Unmarshal(v, &branch); err != nil {
				return fmt.Errorf("unmarshal branch: %w", err)
			}
			branches = append(branches, &branch)
			return nil
		})
	})

	if err != nil {
		return nil, err
	}

	sort.Slice(branches, func(i, j int) bool {
		return branches[i].Name < branches[j].Name
	})

	return branches, nil
}

// DeleteBranch removes a branch. Returns ErrNotFound if it doesn't exist.
// Versions committed on the branch stay in the history.
func (s *BboltStore) DeleteBranch(ctx context.Context, docID, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		doc := docBucket(tx, docID)
		if doc == nil {
			return ErrNotFound
		}

		b := doc.Bucket(bucketBranches)
		if b.Get([]byte(name)) == nil {
			return ErrNotFound
		}

		return b.Delete([]byte(name))
	})
}
