package core

import (
	"testing"

	"github.com/kilupskalvis/mdvc/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func conflictedResult() *models.MergeResult {
	return Merge(
		labeled(snap(models.Metadata{"status": "draft", "title": "T"}, "A", "B", "C"), "1.0.0"),
		labeled(snap(models.Metadata{"status": "review", "title": "T"}, "A", "Bm", "C"), "1.0.1"),
		labeled(snap(models.Metadata{"title": "T"}, "A", "Bt", "C"), "1.0.2"),
		models.DefaultMergeOptions(),
	)
}

func TestRenderConflicts(t *testing.T) {
	res := conflictedResult()
	require.Equal(t, 2, res.Report.Count())

	doc := RenderConflicts(res, RenderOptions{})
	assert.Equal(t, []string{
		"A",
		"<<<<<<< mine (1.0.1)",
		"Bm",
		"=======",
		"Bt",
		">>>>>>> theirs (1.0.2)",
		"C",
	}, doc.Content)

	// Theirs deleted the field, so its side is omitted
	assert.Equal(t, map[string]any{
		MetadataMarkerKey: map[string]any{"base": "draft", "mine": "review"},
	}, doc.Metadata["status"])
	assert.Equal(t, "T", doc.Metadata["title"])

	// The merge result itself is untouched
	assert.Equal(t, []string{"A", "C"}, res.Merged.Content)
	_, ok := res.Merged.Metadata["status"]
	assert.False(t, ok)
}

func TestRenderConflicts_ShowBase(t *testing.T) {
	doc := RenderConflicts(conflictedResult(), RenderOptions{ShowBase: true})
	assert.Equal(t, []string{
		"A",
		"<<<<<<< mine (1.0.1)",
		"Bm",
		"||||||| base (1.0.0)",
		"B",
		"=======",
		"Bt",
		">>>>>>> theirs (1.0.2)",
		"C",
	}, doc.Content)
}

func TestRenderConflicts_HunksAtEdges(t *testing.T) {
	res := Merge(
		snap(nil, "A", "B", "C"),
		snap(nil, "X", "B", "C", "M"),
		snap(nil, "Y", "B", "C", "T"),
		models.DefaultMergeOptions(),
	)
	require.Len(t, res.Report.ContentConflicts, 2)

	doc := RenderConflicts(res, RenderOptions{})
	assert.Equal(t, []string{
		"<<<<<<< mine", "X", "=======", "Y", ">>>>>>> theirs",
		"B", "C",
		"<<<<<<< mine", "M", "=======", "T", ">>>>>>> theirs",
	}, doc.Content)
}

func TestRenderConflicts_CleanResult(t *testing.T) {
	res := Merge(snap(nil, "A"), snap(nil, "A", "B"), snap(nil, "A"), models.DefaultMergeOptions())
	doc := RenderConflicts(res, RenderOptions{ShowBase: true})
	assert.True(t, doc.Equal(res.Merged))

	parsed, err := ParseResolved(doc)
	require.NoError(t, err)
	assert.True(t, parsed.SameState(res.Merged))
}

func TestParseResolved_Unresolved(t *testing.T) {
	doc := RenderConflicts(conflictedResult(), RenderOptions{ShowBase: true})
	_, err := ParseResolved(doc)
	assert.ErrorIs(t, err, ErrUnresolvedConflict)
	assert.Contains(t, err.Error(), "field status")
	assert.Contains(t, err.Error(), "content has 1 conflict block(s)")

	// Content resolved, metadata marker still present
	doc.Content = []string{"A", "Bm", "C"}
	_, err = ParseResolved(doc)
	assert.ErrorIs(t, err, ErrUnresolvedConflict)
}

func TestParseResolved_Resolved(t *testing.T) {
	doc := RenderConflicts(conflictedResult(), RenderOptions{})
	doc.Metadata["status"] = "published"
	doc.Content = []string{"A", "B merged", "C"}

	out, err := ParseResolved(doc)
	require.NoError(t, err)
	assert.Equal(t, "published", out.Metadata["status"])
	assert.Equal(t, []string{"A", "B merged", "C"}, out.Content)

	// Returned snapshot is a copy
	out.Content[0] = "changed"
	assert.Equal(t, "A", doc.Content[0])
}

func TestParseResolved_Malformed(t *testing.T) {
	tests := []struct {
		name    string
		content []string
	}{
		{"unterminated", []string{"<<<<<<< mine", "a", "======="}},
		{"missing separator", []string{"<<<<<<< mine", "a", ">>>>>>> theirs"}},
		{"nested", []string{"<<<<<<< mine", "<<<<<<< mine", "=======", ">>>>>>> theirs"}},
		{"end without begin", []string{"text", ">>>>>>> theirs"}},
		{"base outside block", []string{"||||||| base"}},
		{"base after separator", []string{"<<<<<<< mine", "=======", "||||||| base", ">>>>>>> theirs"}},
		{"repeated separator", []string{"<<<<<<< mine", "=======", "=======", ">>>>>>> theirs"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseResolved(snap(nil, tt.content...))
			assert.ErrorIs(t, err, ErrMalformedMarker)
		})
	}
}

func TestParseResolved_MalformedTakesPrecedence(t *testing.T) {
	doc := snap(
		models.Metadata{"status": map[string]any{MetadataMarkerKey: map[string]any{"mine": "a"}}},
		"<<<<<<< mine", "a", "=======", "b",
	)
	_, err := ParseResolved(doc)
	assert.ErrorIs(t, err, ErrMalformedMarker)
	assert.NotErrorIs(t, err, ErrUnresolvedConflict)
}

func TestParseResolved_OrdinaryText(t *testing.T) {
	doc := snap(models.Metadata{"note": "a <<<<<<< b"},
		"Heading",
		"=======",
		"",
		"<<<<<<<< eight is not a marker",
		"text >>>>>>> inline",
	)
	out, err := ParseResolved(doc)
	require.NoError(t, err)
	assert.Equal(t, doc.Content, out.Content)
}

func TestParseResolved_MetadataMarkers(t *testing.T) {
	tests := []struct {
		name    string
		meta    models.Metadata
		wantErr error
	}{
		{
			"marker lines in string",
			models.Metadata{"summary": "<<<<<<< mine\na\n=======\nb\n>>>>>>> theirs"},
			ErrUnresolvedConflict,
		},
		{
			"nested marker map",
			models.Metadata{"related": map[string]any{"doc": map[string]any{MetadataMarkerKey: map[string]any{"mine": "x"}}}},
			ErrUnresolvedConflict,
		},
		{
			"marker inside list",
			models.Metadata{"tags": []any{"a", "<<<<<<< mine\nb\n=======\nc\n>>>>>>> theirs"}},
			ErrUnresolvedConflict,
		},
		{
			"marker map with extra key",
			models.Metadata{"status": map[string]any{MetadataMarkerKey: map[string]any{"mine": "x"}, "other": 1}},
			ErrMalformedMarker,
		},
		{
			"marker map with unknown side",
			models.Metadata{"status": map[string]any{MetadataMarkerKey: map[string]any{"ours": "x"}}},
			ErrMalformedMarker,
		},
		{
			"marker map without sides",
			models.Metadata{"status": map[string]any{MetadataMarkerKey: "x"}},
			ErrMalformedMarker,
		},
		{
			"broken marker in string",
			models.Metadata{"summary": "<<<<<<< mine\na"},
			ErrMalformedMarker,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseResolved(snap(tt.meta, "body"))
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestParseResolved_Nil(t *testing.T) {
	_, err := ParseResolved(nil)
	assert.Error(t, err)
}
