package cli

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/kilupskalvis/mdvc/internal/config"
	"github.com/kilupskalvis/mdvc/internal/core"
	"github.com/kilupskalvis/mdvc/internal/models"
	"github.com/kilupskalvis/mdvc/internal/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestContext(t *testing.T) (*cmdContext, string) {
	t.Helper()
	dir := t.TempDir()
	cfg, err := config.Initialize(dir, "")
	require.NoError(t, err)
	st, err := cfg.OpenStore()
	require.NoError(t, err)
	c := &cmdContext{Config: cfg, Store: st}
	t.Cleanup(c.Close)
	return c, filepath.Join(dir, "guide.md")
}

// setContent rewrites the body of the working file, keeping its frontmatter.
func setContent(t *testing.T, path string, lines ...string) {
	t.Helper()
	snap, err := source.ReadFile(path)
	require.NoError(t, err)
	snap.Content = lines
	require.NoError(t, source.WriteFile(path, snap))
}

func commitWorking(t *testing.T, c *cmdContext, path, branch string) *models.VersionRecord {
	t.Helper()
	rec, err := commitFile(context.Background(), c, path, branch, models.VersionOptions{Description: "edit"})
	require.NoError(t, err)
	return rec
}

// startDraftConflict leaves guide.md in the middle of a conflicted merge of
// feature into draft, where draft was forked from main's head.
func startDraftConflict(t *testing.T, c *cmdContext, path string) string {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, os.WriteFile(path, []byte("---\nstatus: draft\n---\nA\nB\nC\n"), 0644))
	base := commitWorking(t, c, path, "")
	docID := base.DocumentID

	_, err := core.CreateBranch(ctx, c.Store, docID, "", "feature")
	require.NoError(t, err)
	setContent(t, path, "A", "Bm", "C")
	commitWorking(t, c, path, "")
	_, err = core.CreateBranch(ctx, c.Store, docID, "", "draft")
	require.NoError(t, err)
	setContent(t, path, "A", "Bt", "C")
	commitWorking(t, c, path, "feature")
	setContent(t, path, "A", "Bm", "C")

	res, err := startMerge(ctx, c, path, mergeRequest{
		Branch: "feature",
		Into:   "draft",
		Merge:  c.Config.MergeOptions(),
	})
	require.NoError(t, err)
	require.False(t, res.Clean())
	return docID
}

func TestMergeConflictResolveIntoBranch(t *testing.T) {
	ctx := context.Background()
	c, path := newTestContext(t)
	docID := startDraftConflict(t, c, path)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "<<<<<<< mine (1.0.1)\nBm\n=======\nBt\n>>>>>>> theirs (1.0.2)\n")

	pending, err := loadPending(c.Config, docID)
	require.NoError(t, err)
	require.NotNil(t, pending)
	assert.Equal(t, "draft", pending.Target)
	assert.Equal(t, "1.0.1", pending.TargetHead)
	assert.Equal(t, "1.0.2", pending.BranchHead)
	assert.Equal(t, "1.0.0", pending.Base)

	// The conflict file is not an ordinary version
	_, err = commitFile(ctx, c, path, "", models.VersionOptions{Description: "oops"})
	assert.ErrorIs(t, err, errMergePending)
	_, err = startMerge(ctx, c, path, mergeRequest{Branch: "feature", Into: "draft", Merge: c.Config.MergeOptions()})
	assert.ErrorIs(t, err, errMergePending)

	_, _, err = resolveMerge(ctx, c, path, models.VersionOptions{})
	assert.ErrorIs(t, err, core.ErrUnresolvedConflict)

	setContent(t, path, "A", "Bm", "Bt", "C")
	rec, _, err := resolveMerge(ctx, c, path, models.VersionOptions{})
	require.NoError(t, err)
	assert.Equal(t, "draft", rec.Lineage)
	assert.Equal(t, "1.0.1", rec.ParentLabel)
	assert.Equal(t, "1.0.2", rec.MergedFrom)
	assert.Equal(t, []string{"A", "Bm", "Bt", "C"}, rec.Snapshot.Content)

	mainHead, err := core.Head(ctx, c.Store, docID, models.MainLineage)
	require.NoError(t, err)
	assert.Equal(t, "1.0.1", mainHead)
	draft, err := core.GetBranch(ctx, c.Store, docID, "draft")
	require.NoError(t, err)
	assert.Equal(t, rec.Label, draft.Head)

	pending, err = loadPending(c.Config, docID)
	require.NoError(t, err)
	assert.Nil(t, pending)

	working, err := source.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, rec.Snapshot.SameState(working))
}

func TestMergeConflictAbort(t *testing.T) {
	ctx := context.Background()
	c, path := newTestContext(t)
	docID := startDraftConflict(t, c, path)

	pending, err := abortMerge(ctx, c, path)
	require.NoError(t, err)
	assert.Equal(t, "feature", pending.Branch)

	working, err := source.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "Bm", "C"}, working.Content)
	assert.Equal(t, "draft", working.Metadata["status"])

	p, err := loadPending(c.Config, docID)
	require.NoError(t, err)
	assert.Nil(t, p)

	_, err = abortMerge(ctx, c, path)
	assert.Error(t, err, "nothing left to abort")

	// Committing works again once the merge is gone
	setContent(t, path, "A", "Bm", "C", "D")
	rec := commitWorking(t, c, path, "")
	assert.Equal(t, models.MainLineage, rec.Lineage)
}

func TestStartMerge_Targets(t *testing.T) {
	ctx := context.Background()
	c, path := newTestContext(t)

	require.NoError(t, os.WriteFile(path, []byte("A\nB\nC\n"), 0644))
	base := commitWorking(t, c, path, "")
	_, err := core.CreateBranch(ctx, c.Store, base.DocumentID, "", "feature")
	require.NoError(t, err)
	setContent(t, path, "A", "B", "F")
	commitWorking(t, c, path, "feature")
	setContent(t, path, "A", "B", "C")

	_, err = startMerge(ctx, c, path, mergeRequest{Branch: "feature", Into: "main~1", Merge: c.Config.MergeOptions()})
	assert.Error(t, err)

	setContent(t, path, "A", "B", "C", "uncommitted")
	_, err = startMerge(ctx, c, path, mergeRequest{Branch: "feature", Into: "main", Merge: c.Config.MergeOptions()})
	assert.ErrorContains(t, err, "changes not committed")
	setContent(t, path, "A", "B", "C")

	res, err := startMerge(ctx, c, path, mergeRequest{Branch: "feature", Into: base.Label, Merge: c.Config.MergeOptions()})
	require.NoError(t, err)
	require.NotNil(t, res.Record)
	assert.Equal(t, models.MainLineage, res.Record.Lineage)

	working, err := source.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "F"}, working.Content)
}
