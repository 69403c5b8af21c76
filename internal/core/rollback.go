package core

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kilupskalvis/mdvc/internal/models"
	"github.com/kilupskalvis/mdvc/internal/store"
)

// RollbackTo creates a new version whose metadata and content equal the
// snapshot stored at label. History is never truncated. The new version is
// committed on opts.Lineage (main by default).
func RollbackTo(ctx context.Context, st store.Backend, docID, label string, opts models.VersionOptions) (*models.VersionRecord, error) {
	target, err := GetVersion(ctx, st, docID, label)
	if err != nil {
		return nil, err
	}

	snap := target.Snapshot.Clone()
	snap.ID = docID
	if opts.Description == "" {
		opts.Description = fmt.Sprintf("Rollback to %s", label)
	}
	opts.MergedFrom = ""

	rec, err := CreateVersion(ctx, st, snap, opts)
	if err != nil {
		return nil, err
	}

	slog.DebugContext(ctx, "rolled back", "document", docID, "to", label, "label", rec.Label)
	return rec, nil
}
