package core

import (
	"context"
	"fmt"

	"github.com/kilupskalvis/mdvc/internal/models"
	"github.com/kilupskalvis/mdvc/internal/store"
)

// history indexes a document's version records by label.
type history map[string]*models.VersionRecord

func loadHistory(ctx context.Context, st store.Backend, docID string) (history, error) {
	records, err := ListVersions(ctx, st, docID)
	if err != nil {
		return nil, err
	}
	h := make(history, len(records))
	for _, rec := range records {
		h[rec.Label] = rec
	}
	return h, nil
}

// ancestors returns label and every version reachable from it over
// parent and merged-from edges.
func (h history) ancestors(label string) map[string]bool {
	seen := make(map[string]bool)
	queue := []string{label}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		if current == "" || seen[current] {
			continue
		}
		rec, ok := h[current]
		if !ok {
			continue
		}
		seen[current] = true

		if rec.ParentLabel != "" {
			queue = append(queue, rec.ParentLabel)
		}
		if rec.MergedFrom != "" {
			queue = append(queue, rec.MergedFrom)
		}
	}

	return seen
}

// mergeBase returns a lowest common ancestor of a and b, or "" if none exists.
// A parent is always created before its child, so the common ancestor with the
// highest sequence cannot be a proper ancestor of another common ancestor.
func (h history) mergeBase(a, b string) string {
	ancestorsA := h.ancestors(a)
	ancestorsB := h.ancestors(b)

	var best *models.VersionRecord
	for label := range ancestorsA {
		if !ancestorsB[label] {
			continue
		}
		rec := h[label]
		if best == nil || rec.Seq > best.Seq {
			best = rec
		}
	}
	if best == nil {
		return ""
	}
	return best.Label
}

// FindMergeBase walks the version graph of a document and returns the lowest
// common ancestor of two labels. Fails with ErrIncompatibleAncestry when a label
// is unknown or the two lineages share no ancestor.
func FindMergeBase(ctx context.Context, st store.Backend, docID, a, b string) (string, error) {
	h, err := loadHistory(ctx, st, docID)
	if err != nil {
		return "", err
	}
	return h.findMergeBase(a, b)
}

func (h history) findMergeBase(a, b string) (string, error) {
	for _, label := range []string{a, b} {
		if _, ok := h[label]; !ok {
			return "", fmt.Errorf("version %s is not in the history: %w", displayLabel(label), ErrIncompatibleAncestry)
		}
	}
	base := h.mergeBase(a, b)
	if base == "" {
		return "", fmt.Errorf("%s and %s: %w", a, b, ErrIncompatibleAncestry)
	}
	return base, nil
}

// IsAncestor reports whether ancestor is reachable from label.
func IsAncestor(ctx context.Context, st store.Backend, docID, ancestor, label string) (bool, error) {
	h, err := loadHistory(ctx, st, docID)
	if err != nil {
		return false, err
	}
	return h.ancestors(label)[ancestor], nil
}
