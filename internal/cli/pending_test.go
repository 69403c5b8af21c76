package cli

import (
	"testing"
	"time"

	"github.com/kilupskalvis/mdvc/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPendingMergeLifecycle(t *testing.T) {
	cfg, err := config.Initialize(t.TempDir(), "")
	require.NoError(t, err)

	p, err := loadPending(cfg, "doc")
	require.NoError(t, err)
	assert.Nil(t, p, "nothing pending yet")

	want := &pendingMerge{
		DocumentID: "doc",
		File:       "guide.md",
		Branch:     "feature",
		BranchHead: "1.0.2",
		Target:     "main",
		TargetHead: "1.0.1",
		Base:       "1.0.0",
		Conflicts:  2,
		CreatedAt:  time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, savePending(cfg, want))

	got, err := loadPending(cfg, "doc")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want.Branch, got.Branch)
	assert.Equal(t, want.TargetHead, got.TargetHead)
	assert.Equal(t, want.Conflicts, got.Conflicts)
	assert.True(t, want.CreatedAt.Equal(got.CreatedAt))

	require.NoError(t, clearPending(cfg, "doc"))
	require.NoError(t, clearPending(cfg, "doc"), "clearing twice is fine")
	p, err = loadPending(cfg, "doc")
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestShortID(t *testing.T) {
	assert.Equal(t, "0b7c3e5a", shortID("0b7c3e5a-2f61-4c3b-9d4e-6a1f2e3d4c5b"))
	assert.Equal(t, "abc", shortID("abc"))
}
