package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kilupskalvis/mdvc/internal/models"
	"github.com/kilupskalvis/mdvc/internal/store"
)

// CreateVersion stores a full copy of snap as the next version of its document.
// The parent is the current head of opts.Lineage (main by default).
func CreateVersion(ctx context.Context, st store.Backend, snap *models.Snapshot, opts models.VersionOptions) (*models.VersionRecord, error) {
	if snap == nil || snap.ID == "" {
		return nil, fmt.Errorf("snapshot has no document id")
	}
	docID := snap.ID
	lineage := opts.LineageOrMain()

	head, err := st.GetHead(ctx, docID, lineage)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("branch '%s': %w", lineage, ErrBranchNotFound)
		}
		return nil, storageErr("get head", err)
	}
	if opts.ExpectedHead != "" && opts.ExpectedHead != head {
		return nil, fmt.Errorf("%s head is %s, expected %s: %w", lineage, displayLabel(head), opts.ExpectedHead, ErrConcurrentModification)
	}

	top, err := st.MaxLabel(ctx, docID)
	if err != nil {
		return nil, storageErr("max label", err)
	}
	label, err := nextLabel(top, opts)
	if err != nil {
		return nil, err
	}

	stored := snap.Clone()
	stored.Metadata = models.NormalizeMetadata(stored.Metadata)
	stored.VersionLabel = label
	if stored.Content == nil {
		stored.Content = []string{}
	}

	rec := &models.VersionRecord{
		DocumentID:  docID,
		Label:       label,
		ParentLabel: head,
		MergedFrom:  opts.MergedFrom,
		Lineage:     lineage,
		Description: opts.Description,
		CreatedAt:   time.Now().UTC(),
		Snapshot:    stored,
	}

	if err := st.SaveVersion(ctx, rec, head); err != nil {
		switch {
		case errors.Is(err, store.ErrExists):
			return nil, fmt.Errorf("version %s: %w", label, ErrConcurrentModification)
		case errors.Is(err, store.ErrNotFound):
			return nil, fmt.Errorf("branch '%s': %w", lineage, ErrBranchNotFound)
		}
		return nil, storageErr("save version", err)
	}

	slog.DebugContext(ctx, "version created",
		"document", docID,
		"label", label,
		"parent", head,
		"lineage", lineage,
		"merged_from", opts.MergedFrom,
	)

	return rec.Clone(), nil
}

// nextLabel allocates the label for a new version given the greatest existing label.
func nextLabel(top string, opts models.VersionOptions) (string, error) {
	if opts.Label != "" {
		if !models.ValidLabel(opts.Label) {
			return "", fmt.Errorf("label %q is not MAJOR.MINOR.PATCH: %w", opts.Label, ErrInvalidBump)
		}
		if top != "" && models.CompareLabels(opts.Label, top) <= 0 {
			return "", fmt.Errorf("label %s is not greater than %s: %w", opts.Label, top, ErrInvalidBump)
		}
		return opts.Label, nil
	}

	label, err := models.BumpLabel(top, opts.Bump)
	if err != nil {
		return "", fmt.Errorf("%v: %w", err, ErrInvalidBump)
	}
	return label, nil
}

// GetVersion returns the version record with the given label.
func GetVersion(ctx context.Context, st store.Backend, docID, label string) (*models.VersionRecord, error) {
	rec, err := st.LoadVersion(ctx, docID, label)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("version %s: %w", label, ErrVersionNotFound)
		}
		return nil, storageErr("load version", err)
	}
	return rec, nil
}

// ListVersions returns every version of a document in creation order.
func ListVersions(ctx context.Context, st store.Backend, docID string) ([]*models.VersionRecord, error) {
	records, err := st.ListVersions(ctx, docID)
	if err != nil {
		return nil, storageErr("list versions", err)
	}
	return records, nil
}

// Head returns the head label of a lineage, "" for a main lineage with no versions.
func Head(ctx context.Context, st store.Backend, docID, lineage string) (string, error) {
	if lineage == "" {
		lineage = models.MainLineage
	}
	head, err := st.GetHead(ctx, docID, lineage)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", fmt.Errorf("branch '%s': %w", lineage, ErrBranchNotFound)
		}
		return "", storageErr("get head", err)
	}
	return head, nil
}

// Latest returns the most recent version on the main lineage.
func Latest(ctx context.Context, st store.Backend, docID string) (*models.VersionRecord, error) {
	head, err := Head(ctx, st, docID, models.MainLineage)
	if err != nil {
		return nil, err
	}
	if head == "" {
		return nil, fmt.Errorf("document %s has no versions: %w", docID, ErrVersionNotFound)
	}
	return GetVersion(ctx, st, docID, head)
}

// CompareVersions diffs the snapshots stored under two labels.
func CompareVersions(ctx context.Context, st store.Backend, docID, from, to string) (*SnapshotDiff, error) {
	a, err := GetVersion(ctx, st, docID, from)
	if err != nil {
		return nil, err
	}
	b, err := GetVersion(ctx, st, docID, to)
	if err != nil {
		return nil, err
	}
	return DiffSnapshots(a.Snapshot, b.Snapshot), nil
}

func displayLabel(label string) string {
	if label == "" {
		return "(none)"
	}
	return label
}
