package core

import (
	"context"
	"testing"

	"github.com/kilupskalvis/mdvc/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRollbackTo(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	v1 := commit(t, st, snap(models.Metadata{"status": "draft"}, "first"), "")
	commit(t, st, snap(models.Metadata{"status": "review"}, "second"), "")
	commit(t, st, snap(models.Metadata{"status": "published"}, "third"), "")

	rec, err := RollbackTo(ctx, st, docID, v1.Label, models.VersionOptions{})
	require.NoError(t, err)
	assert.Equal(t, "1.0.3", rec.Label)
	assert.Equal(t, "1.0.2", rec.ParentLabel)
	assert.Equal(t, "Rollback to 1.0.0", rec.Description)
	assert.True(t, rec.Snapshot.SameState(v1.Snapshot))
	assert.Equal(t, "1.0.3", rec.Snapshot.VersionLabel)

	// History is kept
	list, err := ListVersions(ctx, st, docID)
	require.NoError(t, err)
	assert.Len(t, list, 4)
}

func TestRollbackTo_OnBranch(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	v1 := commit(t, st, snap(nil, "one"), "")
	_, err := CreateBranch(ctx, st, docID, "", "feature")
	require.NoError(t, err)
	f1 := commitOn(t, st, "feature", snap(nil, "feature work"))

	rec, err := RollbackTo(ctx, st, docID, v1.Label, models.VersionOptions{
		Lineage:     "feature",
		Bump:        models.BumpMinor,
		Description: "undo feature work",
	})
	require.NoError(t, err)
	assert.Equal(t, "feature", rec.Lineage)
	assert.Equal(t, f1.Label, rec.ParentLabel)
	assert.Equal(t, "1.1.0", rec.Label)
	assert.Equal(t, "undo feature work", rec.Description)
	assert.Equal(t, []string{"one"}, rec.Snapshot.Content)
}

func TestRollbackTo_UnknownLabel(t *testing.T) {
	st := newTestStore(t)
	commit(t, st, snap(nil, "one"), "")

	_, err := RollbackTo(context.Background(), st, docID, "0.9.0", models.VersionOptions{})
	assert.ErrorIs(t, err, ErrVersionNotFound)
}
