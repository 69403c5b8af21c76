package core

import (
	"context"
	"testing"

	"github.com/kilupskalvis/mdvc/internal/models"
	"github.com/kilupskalvis/mdvc/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func commitOn(t *testing.T, st store.Backend, branch string, s *models.Snapshot) *models.VersionRecord {
	t.Helper()
	rec, err := CommitOnBranch(context.Background(), st, docID, branch, s, models.VersionOptions{})
	require.NoError(t, err)
	return rec
}

func TestValidateBranchName(t *testing.T) {
	for _, name := range []string{"feature", "feature/login", "fix-1.2", "v2", "A_b"} {
		assert.NoError(t, ValidateBranchName(name), name)
	}
	for _, name := range []string{"", "main", "-x", ".hidden", "a..b", "a~1", "has space", "1.2.3"} {
		assert.ErrorIs(t, ValidateBranchName(name), ErrInvalidBranchName, name)
	}
}

func TestCreateBranch(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	_, err := CreateBranch(ctx, st, docID, "", "feature")
	assert.ErrorIs(t, err, ErrVersionNotFound, "no versions yet")

	commit(t, st, snap(nil, "a"), "")
	commit(t, st, snap(nil, "b"), "")

	b, err := CreateBranch(ctx, st, docID, "", "feature")
	require.NoError(t, err)
	assert.Equal(t, "1.0.1", b.ForkPoint)
	assert.Equal(t, "1.0.1", b.Head)
	assert.False(t, b.HasCommits())

	b, err = CreateBranch(ctx, st, docID, "1.0.0", "old")
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", b.ForkPoint)

	_, err = CreateBranch(ctx, st, docID, "1.0.0", "feature")
	assert.ErrorIs(t, err, ErrDuplicateBranch)

	_, err = CreateBranch(ctx, st, docID, "3.0.0", "missing")
	assert.ErrorIs(t, err, ErrVersionNotFound)

	_, err = CreateBranch(ctx, st, docID, "1.0.0", "main")
	assert.ErrorIs(t, err, ErrInvalidBranchName)
}

func TestListAndDeleteBranches(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	commit(t, st, snap(nil, "a"), "")

	for _, name := range []string{"zeta", "alpha", "mid"} {
		_, err := CreateBranch(ctx, st, docID, "", name)
		require.NoError(t, err)
	}
	rec := commitOn(t, st, "mid", snap(nil, "m"))

	branches, err := ListBranches(ctx, st, docID)
	require.NoError(t, err)
	require.Len(t, branches, 3)
	assert.Equal(t, "alpha", branches[0].Name)
	assert.Equal(t, "mid", branches[1].Name)
	assert.Equal(t, "zeta", branches[2].Name)

	require.NoError(t, DeleteBranch(ctx, st, docID, "mid"))
	assert.ErrorIs(t, DeleteBranch(ctx, st, docID, "mid"), ErrBranchNotFound)

	_, err = GetBranch(ctx, st, docID, "mid")
	assert.ErrorIs(t, err, ErrBranchNotFound)

	// Versions of a deleted branch stay in the history
	_, err = GetVersion(ctx, st, docID, rec.Label)
	assert.NoError(t, err)
}

func TestCommitOnBranch(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	commit(t, st, snap(nil, "a"), "")
	_, err := CreateBranch(ctx, st, docID, "", "feature")
	require.NoError(t, err)

	f1 := commitOn(t, st, "feature", snap(nil, "f1"))
	assert.Equal(t, "1.0.0", f1.ParentLabel)
	assert.Equal(t, "feature", f1.Lineage)

	f2 := commitOn(t, st, "feature", snap(nil, "f2"))
	assert.Equal(t, f1.Label, f2.ParentLabel)

	b, err := GetBranch(ctx, st, docID, "feature")
	require.NoError(t, err)
	assert.Equal(t, f2.Label, b.Head)
	assert.Equal(t, "1.0.0", b.ForkPoint)
	assert.True(t, b.HasCommits())

	// Main is unaffected
	head, err := Head(ctx, st, docID, models.MainLineage)
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", head)

	_, err = CommitOnBranch(ctx, st, docID, "feature", snap(nil, "stale"), models.VersionOptions{ExpectedHead: f1.Label})
	assert.ErrorIs(t, err, ErrConcurrentModification)

	_, err = CommitOnBranch(ctx, st, docID, "nope", snap(nil, "x"), models.VersionOptions{})
	assert.ErrorIs(t, err, ErrBranchNotFound)

	other := snap(nil, "x")
	other.ID = "another-document"
	_, err = CommitOnBranch(ctx, st, docID, "feature", other, models.VersionOptions{})
	assert.Error(t, err)
}

func TestMergeBranchInto_Clean(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	commit(t, st, snap(models.Metadata{"status": "draft", "title": "Guide"}, "A", "B", "C"), "")
	_, err := CreateBranch(ctx, st, docID, "1.0.0", "feature")
	require.NoError(t, err)
	main1 := commit(t, st, snap(models.Metadata{"status": "review", "title": "Guide"}, "A", "B", "C"), "")
	feat1 := commitOn(t, st, "feature", snap(models.Metadata{"status": "draft", "title": "Guide"}, "A", "B2", "C"))

	res, err := MergeBranchInto(ctx, st, docID, "feature", models.MainLineage, models.DefaultMergeOptions(), models.VersionOptions{})
	require.NoError(t, err)
	require.True(t, res.Clean())
	require.NotNil(t, res.Record)

	rec := res.Record
	assert.Equal(t, main1.Label, rec.ParentLabel)
	assert.Equal(t, feat1.Label, rec.MergedFrom)
	assert.Equal(t, models.MainLineage, rec.Lineage)
	assert.True(t, rec.IsMergeVersion())
	assert.Equal(t, "Merge branch 'feature' into main", rec.Description)
	assert.Equal(t, "1.0.3", rec.Label)
	assert.Equal(t, "review", rec.Snapshot.Metadata["status"])
	assert.Equal(t, []string{"A", "B2", "C"}, rec.Snapshot.Content)
	assert.Equal(t, "1.0.0", res.BaseLabel)
	assert.Equal(t, rec.Label, res.Merged.VersionLabel)

	head, err := Head(ctx, st, docID, models.MainLineage)
	require.NoError(t, err)
	assert.Equal(t, rec.Label, head)

	// The branch is now contained in main
	again, err := MergeBranchInto(ctx, st, docID, "feature", models.MainLineage, models.DefaultMergeOptions(), models.VersionOptions{})
	require.NoError(t, err)
	assert.True(t, again.UpToDate)
	assert.Nil(t, again.Record)
}

func TestMergeBranchInto_ConflictThenResolve(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	commit(t, st, snap(models.Metadata{"status": "draft"}, "A", "B", "C"), "")
	_, err := CreateBranch(ctx, st, docID, "", "feature")
	require.NoError(t, err)
	main1 := commit(t, st, snap(models.Metadata{"status": "review"}, "A", "Bm", "C"), "")
	feat1 := commitOn(t, st, "feature", snap(models.Metadata{"status": "published"}, "A", "Bt", "C"))

	res, err := MergeBranchInto(ctx, st, docID, "feature", "", models.DefaultMergeOptions(), models.VersionOptions{})
	require.NoError(t, err)
	require.False(t, res.Clean())
	assert.Nil(t, res.Record, "conflicted merge commits nothing")
	assert.Equal(t, 2, res.Report.Count())

	head, err := Head(ctx, st, docID, models.MainLineage)
	require.NoError(t, err)
	assert.Equal(t, main1.Label, head)

	doc := RenderConflicts(res, RenderOptions{})
	_, err = CommitResolution(ctx, st, docID, doc, "feature", models.VersionOptions{ExpectedHead: res.MineLabel})
	assert.ErrorIs(t, err, ErrUnresolvedConflict)

	doc.Metadata["status"] = "published"
	doc.Content = []string{"A", "Bm and Bt", "C"}
	rec, err := CommitResolution(ctx, st, docID, doc, "feature", models.VersionOptions{ExpectedHead: res.MineLabel})
	require.NoError(t, err)
	assert.Equal(t, main1.Label, rec.ParentLabel)
	assert.Equal(t, feat1.Label, rec.MergedFrom)
	assert.Equal(t, models.MainLineage, rec.Lineage)
	assert.Equal(t, []string{"A", "Bm and Bt", "C"}, rec.Snapshot.Content)

	again, err := MergeBranchInto(ctx, st, docID, "feature", "", models.DefaultMergeOptions(), models.VersionOptions{})
	require.NoError(t, err)
	assert.True(t, again.UpToDate)
}

func TestMergeBranchInto_Strategy(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	commit(t, st, snap(models.Metadata{"status": "draft"}, "A", "B", "C"), "")
	_, err := CreateBranch(ctx, st, docID, "", "feature")
	require.NoError(t, err)
	commit(t, st, snap(models.Metadata{"status": "review"}, "A", "Bm", "C"), "")
	commitOn(t, st, "feature", snap(models.Metadata{"status": "published"}, "A", "Bt", "C"))

	opts := models.DefaultMergeOptions()
	opts.Strategy = models.ConflictTheirs
	res, err := MergeBranchInto(ctx, st, docID, "feature", models.MainLineage, opts, models.VersionOptions{Bump: models.BumpMinor})
	require.NoError(t, err)
	require.NotNil(t, res.Record)
	assert.Equal(t, 2, res.ResolvedConflicts)
	assert.Equal(t, "1.1.0", res.Record.Label)
	assert.Equal(t, "published", res.Record.Snapshot.Metadata["status"])
	assert.Equal(t, []string{"A", "Bt", "C"}, res.Record.Snapshot.Content)
}

func TestMergeBranchInto_SecondMergeUsesLowestCommonAncestor(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	commit(t, st, snap(nil, "L1", "L2", "L3", "L4", "L5"), "")
	_, err := CreateBranch(ctx, st, docID, "", "feature")
	require.NoError(t, err)
	feat1 := commitOn(t, st, "feature", snap(nil, "L1", "L2", "L3", "L4", "B5"))
	commit(t, st, snap(nil, "M1", "L2", "L3", "L4", "L5"), "")

	first, err := MergeBranchInto(ctx, st, docID, "feature", models.MainLineage, models.DefaultMergeOptions(), models.VersionOptions{})
	require.NoError(t, err)
	require.True(t, first.Clean())
	assert.Equal(t, []string{"M1", "L2", "L3", "L4", "B5"}, first.Record.Snapshot.Content)

	commitOn(t, st, "feature", snap(nil, "L1", "L2", "B3", "L4", "B5"))
	commit(t, st, snap(nil, "M1", "L2", "L3", "L4", "Z5"), "")

	// Against the fork point L5/B5/Z5 would conflict
	second, err := MergeBranchInto(ctx, st, docID, "feature", models.MainLineage, models.DefaultMergeOptions(), models.VersionOptions{})
	require.NoError(t, err)
	require.True(t, second.Clean())
	assert.Equal(t, feat1.Label, second.BaseLabel)
	assert.Equal(t, []string{"M1", "L2", "B3", "L4", "Z5"}, second.Record.Snapshot.Content)
}

func TestMergeBranchInto_UpToDateWithoutCommits(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	commit(t, st, snap(nil, "a"), "")
	_, err := CreateBranch(ctx, st, docID, "", "feature")
	require.NoError(t, err)
	commit(t, st, snap(nil, "b"), "")

	res, err := MergeBranchInto(ctx, st, docID, "feature", models.MainLineage, models.DefaultMergeOptions(), models.VersionOptions{})
	require.NoError(t, err)
	assert.True(t, res.UpToDate)
	assert.Equal(t, []string{"b"}, res.Merged.Content)

	list, err := ListVersions(ctx, st, docID)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestMergeBranchInto_Targets(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	commit(t, st, snap(nil, "A", "B", "C"), "")
	_, err := CreateBranch(ctx, st, docID, "", "feature")
	require.NoError(t, err)
	_, err = CreateBranch(ctx, st, docID, "", "release")
	require.NoError(t, err)
	commit(t, st, snap(nil, "A", "B", "C", "M"), "")
	feat := commitOn(t, st, "feature", snap(nil, "A", "B", "F"))
	rel := commitOn(t, st, "release", snap(nil, "R", "B", "C"))

	_, err = MergeBranchInto(ctx, st, docID, "feature", "feature", models.DefaultMergeOptions(), models.VersionOptions{})
	assert.Error(t, err)

	_, err = MergeBranchInto(ctx, st, docID, "missing", models.MainLineage, models.DefaultMergeOptions(), models.VersionOptions{})
	assert.ErrorIs(t, err, ErrBranchNotFound)

	_, err = MergeBranchInto(ctx, st, docID, "feature", "main~1", models.DefaultMergeOptions(), models.VersionOptions{})
	assert.Error(t, err, "merges land on a head")

	// A label that is not a lineage head
	_, err = MergeBranchInto(ctx, st, docID, "feature", "1.0.0", models.DefaultMergeOptions(), models.VersionOptions{})
	assert.ErrorIs(t, err, ErrConcurrentModification)

	// A label that is the head of release targets release
	res, err := MergeBranchInto(ctx, st, docID, "feature", rel.Label, models.DefaultMergeOptions(), models.VersionOptions{})
	require.NoError(t, err)
	require.NotNil(t, res.Record)
	assert.Equal(t, "release", res.Record.Lineage)
	assert.Equal(t, rel.Label, res.Record.ParentLabel)
	assert.Equal(t, feat.Label, res.Record.MergedFrom)
	assert.Equal(t, []string{"R", "B", "F"}, res.Record.Snapshot.Content)

	b, err := GetBranch(ctx, st, docID, "release")
	require.NoError(t, err)
	assert.Equal(t, res.Record.Label, b.Head)
}

// conflictIntoDraft forks draft from main's head and starts a conflicted merge
// of feature into it.
func conflictIntoDraft(t *testing.T, st store.Backend) *models.MergeResult {
	t.Helper()
	ctx := context.Background()

	commit(t, st, snap(models.Metadata{"status": "draft"}, "A", "B", "C"), "")
	_, err := CreateBranch(ctx, st, docID, "", "feature")
	require.NoError(t, err)
	commit(t, st, snap(models.Metadata{"status": "draft"}, "A", "Bm", "C"), "")
	_, err = CreateBranch(ctx, st, docID, "", "draft")
	require.NoError(t, err)
	commitOn(t, st, "feature", snap(models.Metadata{"status": "draft"}, "A", "Bt", "C"))

	res, err := MergeBranchInto(ctx, st, docID, "feature", "draft", models.DefaultMergeOptions(), models.VersionOptions{})
	require.NoError(t, err)
	require.False(t, res.Clean())
	return res
}

func TestCommitResolution_IntoBranchSharingMainHead(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	res := conflictIntoDraft(t, st)

	assert.Equal(t, "draft", res.Lineage)
	assert.Equal(t, "1.0.1", res.MineLabel)
	assert.Equal(t, "1.0.0", res.BaseLabel)

	// 1.0.1 heads both main and draft
	_, err := MergeBranchInto(ctx, st, docID, "feature", "1.0.1", models.DefaultMergeOptions(), models.VersionOptions{})
	assert.ErrorIs(t, err, ErrAmbiguousTarget)

	doc := RenderConflicts(res, RenderOptions{})
	doc.Content = []string{"A", "Bm", "Bt", "C"}
	rec, err := CommitResolution(ctx, st, docID, doc, "feature", models.VersionOptions{
		Lineage:      res.Lineage,
		ExpectedHead: res.MineLabel,
	})
	require.NoError(t, err)
	assert.Equal(t, "draft", rec.Lineage)
	assert.Equal(t, "1.0.1", rec.ParentLabel)
	assert.Equal(t, "1.0.2", rec.MergedFrom)
	assert.Equal(t, "Merge branch 'feature' into draft (resolved)", rec.Description)

	mainHead, err := Head(ctx, st, docID, models.MainLineage)
	require.NoError(t, err)
	assert.Equal(t, "1.0.1", mainHead, "main is untouched")

	draft, err := GetBranch(ctx, st, docID, "draft")
	require.NoError(t, err)
	assert.Equal(t, rec.Label, draft.Head)
}

func TestCommitResolution_TargetMoved(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	res := conflictIntoDraft(t, st)

	commitOn(t, st, "draft", snap(models.Metadata{"status": "draft"}, "A", "Bm", "C", "D"))

	doc := RenderConflicts(res, RenderOptions{})
	doc.Content = []string{"A", "Bt", "C"}
	_, err := CommitResolution(ctx, st, docID, doc, "feature", models.VersionOptions{
		Lineage:      res.Lineage,
		ExpectedHead: res.MineLabel,
	})
	assert.ErrorIs(t, err, ErrConcurrentModification)

	_, err = CommitResolution(ctx, st, docID, doc, "feature", models.VersionOptions{Lineage: "feature"})
	assert.Error(t, err, "cannot resolve into the merged branch")

	_, err = CommitResolution(ctx, st, docID, doc, "feature", models.VersionOptions{Lineage: "gone"})
	assert.ErrorIs(t, err, ErrBranchNotFound)
}

func TestResolveRef(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	_, _, err := ResolveRef(ctx, st, docID, "main")
	assert.ErrorIs(t, err, ErrVersionNotFound)

	commit(t, st, snap(nil, "a"), "")
	commit(t, st, snap(nil, "b"), "")
	_, err = CreateBranch(ctx, st, docID, "", "feature")
	require.NoError(t, err)
	f := commitOn(t, st, "feature", snap(nil, "f"))

	tests := []struct {
		ref         string
		wantLabel   string
		wantLineage string
	}{
		{"main", "1.0.1", "main"},
		{"", "1.0.1", "main"},
		{"main~1", "1.0.0", ""},
		{"feature", f.Label, "feature"},
		{"feature~2", "1.0.0", ""},
		{"1.0.1", "1.0.1", ""},
		{"main~0", "1.0.1", "main"},
	}
	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			label, lineage, err := ResolveRef(ctx, st, docID, tt.ref)
			require.NoError(t, err)
			assert.Equal(t, tt.wantLabel, label)
			assert.Equal(t, tt.wantLineage, lineage)
		})
	}

	_, _, err = ResolveRef(ctx, st, docID, "main~x")
	assert.Error(t, err)
	_, _, err = ResolveRef(ctx, st, docID, "main~-1")
	assert.Error(t, err)
	_, _, err = ResolveRef(ctx, st, docID, "main~5")
	assert.ErrorIs(t, err, ErrVersionNotFound)
	_, _, err = ResolveRef(ctx, st, docID, "nobranch")
	assert.ErrorIs(t, err, ErrBranchNotFound)
	_, _, err = ResolveRef(ctx, st, docID, "9.9.9")
	assert.ErrorIs(t, err, ErrVersionNotFound)
}
