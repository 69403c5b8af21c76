package core

import (
	"sort"

	"github.com/kilupskalvis/mdvc/internal/models"
)

// ApplyStrategy resolves every conflict in result to one side and returns how
// many were resolved. ConflictAbort leaves the result untouched.
func ApplyStrategy(result *models.MergeResult, strategy models.ConflictStrategy) int {
	if result == nil || !result.Report.HasConflicts() {
		return 0
	}
	if strategy != models.ConflictOurs && strategy != models.ConflictTheirs {
		return 0
	}
	pick := func(c models.MetadataConflict) models.Field {
		if strategy == models.ConflictOurs {
			return c.Mine
		}
		return c.Theirs
	}
	pickLines := func(h models.ContentHunk) []string {
		if strategy == models.ConflictOurs {
			return h.Mine
		}
		return h.Theirs
	}

	resolved := 0
	for key, c := range result.Report.MetadataConflicts {
		result.Merged.Metadata.Set(key, cloneField(pick(c)))
		resolved++
	}

	// Insert from the last hunk backwards so earlier offsets stay valid
	hunks := append([]models.ContentHunk(nil), result.Report.ContentConflicts...)
	sort.SliceStable(hunks, func(i, j int) bool { return hunks[i].Offset > hunks[j].Offset })
	for _, h := range hunks {
		result.Merged.Content = insertLines(result.Merged.Content, h.Offset, pickLines(h))
		resolved++
	}

	result.Report = models.NewConflictReport()
	result.ResolvedConflicts += resolved
	return resolved
}

// insertLines returns lines with ins spliced in before index at.
func insertLines(lines []string, at int, ins []string) []string {
	at = max(0, min(at, len(lines)))
	out := make([]string, 0, len(lines)+len(ins))
	out = append(out, lines[:at]...)
	out = append(out, ins...)
	return append(out, lines[at:]...)
}
