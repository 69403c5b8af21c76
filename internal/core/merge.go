package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kilupskalvis/mdvc/internal/models"
	"github.com/kilupskalvis/mdvc/internal/store"
	"golang.org/x/sync/errgroup"
)

// Merge performs a three-way merge of mine and theirs against their common
// ancestor base. It always returns a result: when the report has conflicts the
// merged snapshot omits the conflicting fields and spans and must not be stored.
func Merge(base, mine, theirs *models.Snapshot, opts models.MergeOptions) *models.MergeResult {
	base, mine, theirs = orEmpty(base), orEmpty(mine), orEmpty(theirs)
	report := models.NewConflictReport()

	id := mine.ID
	if id == "" {
		id = base.ID
	}
	merged := &models.Snapshot{
		ID:           id,
		VersionLabel: mine.VersionLabel,
		Metadata:     mergeMetadata(base.Metadata, mine.Metadata, theirs.Metadata, opts, report),
		Content:      mergeContent(base.Content, mine.Content, theirs.Content, contextLines(opts), report),
	}

	return &models.MergeResult{
		Merged:      merged,
		Report:      report,
		BaseLabel:   base.VersionLabel,
		MineLabel:   mine.VersionLabel,
		TheirsLabel: theirs.VersionLabel,
	}
}

// HasConflicts returns true if either collection of the report is non-empty.
func HasConflicts(report *models.ConflictReport) bool {
	return report.HasConflicts()
}

func orEmpty(s *models.Snapshot) *models.Snapshot {
	if s == nil {
		return &models.Snapshot{Metadata: models.Metadata{}, Content: []string{}}
	}
	return s
}

func contextLines(opts models.MergeOptions) int {
	if opts.ContextLines <= 0 {
		return models.DefaultContextLines
	}
	return opts.ContextLines
}

// mergeMetadata applies the per-field three-way rules in key order.
func mergeMetadata(base, mine, theirs models.Metadata, opts models.MergeOptions, report *models.ConflictReport) models.Metadata {
	ignore := make(map[string]bool, len(opts.IgnoreFields))
	for _, f := range opts.IgnoreFields {
		ignore[f] = true
	}

	keys := make(map[string]struct{})
	for _, m := range []models.Metadata{base, mine, theirs} {
		for k := range m {
			keys[k] = struct{}{}
		}
	}

	merged := make(models.Metadata, len(keys))
	for _, key := range models.SortedKeys(keys) {
		b, m, t := base.Get(key), mine.Get(key), theirs.Get(key)

		switch {
		case ignore[key]:
			merged.Set(key, cloneField(m))
		case m.Equal(t):
			merged.Set(key, cloneField(m))
		case m.Equal(b):
			merged.Set(key, cloneField(t))
		case t.Equal(b):
			merged.Set(key, cloneField(m))
		default:
			if opts.ListPolicy == models.ListUnion {
				if union, ok := unionLists(b, m, t); ok {
					merged[key] = union
					continue
				}
			}
			report.MetadataConflicts[key] = models.MetadataConflict{
				Base:   cloneField(b),
				Mine:   cloneField(m),
				Theirs: cloneField(t),
			}
		}
	}
	return merged
}

func cloneField(f models.Field) models.Field {
	if !f.Present {
		return f
	}
	return models.Present(models.CloneValue(f.Value))
}

// unionLists merges two divergent list values: elements of mine, plus elements
// theirs added, minus elements either side removed relative to base. An absent
// base counts as an empty list. Returns false if a side is not a list.
func unionLists(b, m, t models.Field) ([]any, bool) {
	if !m.Present || !t.Present {
		return nil, false
	}
	mine, ok := models.AsList(m.Value)
	if !ok {
		return nil, false
	}
	theirs, ok := models.AsList(t.Value)
	if !ok {
		return nil, false
	}
	var base []any
	if b.Present {
		if base, ok = models.AsList(b.Value); !ok {
			return nil, false
		}
	}

	out := make([]any, 0, len(mine)+len(theirs))
	for _, v := range mine {
		removedByTheirs := containsValue(base, v) && !containsValue(theirs, v)
		if !removedByTheirs && !containsValue(out, v) {
			out = append(out, models.CloneValue(v))
		}
	}
	for _, v := range theirs {
		addedByTheirs := !containsValue(base, v)
		if addedByTheirs && !containsValue(out, v) {
			out = append(out, models.CloneValue(v))
		}
	}
	return out, true
}

func containsValue(list []any, v any) bool {
	for _, x := range list {
		if models.ValuesEqual(x, v) {
			return true
		}
	}
	return false
}

// chunk is a diff3 region: stable when all three sides agree.
type chunk struct {
	stable             bool
	base, mine, theirs []string
}

// diff3Chunks partitions the three line sequences into alternating stable and
// unstable chunks using the alignments base->mine and base->theirs.
func diff3Chunks(base, mine, theirs []string) []chunk {
	toMine := alignment(len(base), lcsMatches(base, mine, eqString))
	toTheirs := alignment(len(base), lcsMatches(base, theirs, eqString))

	var chunks []chunk
	o, a, b := 0, 0, 0
	for o < len(base) || a < len(mine) || b < len(theirs) {
		k := 0
		for o+k < len(base) && toMine[o+k] == a+k && toTheirs[o+k] == b+k {
			k++
		}
		if k > 0 {
			chunks = append(chunks, chunk{stable: true, base: base[o : o+k], mine: mine[a : a+k], theirs: theirs[b : b+k]})
			o, a, b = o+k, a+k, b+k
			continue
		}

		// Next base line kept by both sides
		next := o
		for next < len(base) && (toMine[next] < 0 || toTheirs[next] < 0) {
			next++
		}
		ea, eb := len(mine), len(theirs)
		if next < len(base) {
			ea, eb = toMine[next], toTheirs[next]
		}
		chunks = append(chunks, chunk{base: base[o:next], mine: mine[a:ea], theirs: theirs[b:eb]})
		o, a, b = next, ea, eb
	}
	return chunks
}

// alignment maps each base index to its matched index, or -1.
func alignment(n int, matches []match) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = -1
	}
	for _, m := range matches {
		out[m.a] = m.b
	}
	return out
}

// mergeContent merges line sequences with diff3. Conflicting spans are left
// out of the returned lines and recorded as hunks at their offset.
func mergeContent(base, mine, theirs []string, context int, report *models.ConflictReport) []string {
	chunks := diff3Chunks(base, mine, theirs)
	merged := make([]string, 0, max(len(mine), len(theirs)))

	for i, c := range chunks {
		switch {
		case c.stable:
			merged = append(merged, c.base...)
		case models.LinesEqual(c.mine, c.base):
			merged = append(merged, c.theirs...)
		case models.LinesEqual(c.theirs, c.base):
			merged = append(merged, c.mine...)
		case models.LinesEqual(c.mine, c.theirs):
			merged = append(merged, c.mine...)
		default:
			hunk := models.ContentHunk{
				Offset:        len(merged),
				ContextBefore: []string{},
				Base:          copyLines(c.base),
				Mine:          copyLines(c.mine),
				Theirs:        copyLines(c.theirs),
				ContextAfter:  []string{},
			}
			if i > 0 && chunks[i-1].stable {
				prev := chunks[i-1].base
				hunk.ContextBefore = copyLines(prev[max(0, len(prev)-context):])
			}
			if i+1 < len(chunks) && chunks[i+1].stable {
				next := chunks[i+1].base
				hunk.ContextAfter = copyLines(next[:min(context, len(next))])
			}
			report.ContentConflicts = append(report.ContentConflicts, hunk)
		}
	}
	return merged
}

// MergeVersions merges two stored versions of a document against their lowest
// common ancestor. Non-abort strategies in opts are applied to the result.
// Nothing is committed.
func MergeVersions(ctx context.Context, st store.Backend, docID, mineLabel, theirsLabel string, opts models.MergeOptions) (*models.MergeResult, error) {
	res, _, err := mergeLabels(ctx, st, docID, mineLabel, theirsLabel, opts)
	return res, err
}

// mergeLabels loads the history and both sides concurrently, then merges.
func mergeLabels(ctx context.Context, st store.Backend, docID, mineLabel, theirsLabel string, opts models.MergeOptions) (*models.MergeResult, history, error) {
	var (
		h            history
		mine, theirs *models.VersionRecord
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		h, err = loadHistory(gctx, st, docID)
		return err
	})
	g.Go(func() error {
		var err error
		mine, err = GetVersion(gctx, st, docID, mineLabel)
		return err
	})
	g.Go(func() error {
		var err error
		theirs, err = GetVersion(gctx, st, docID, theirsLabel)
		return err
	})
	if err := g.Wait(); err != nil {
		if errors.Is(err, ErrVersionNotFound) {
			return nil, nil, fmt.Errorf("%w: %w", ErrIncompatibleAncestry, err)
		}
		return nil, nil, err
	}

	baseLabel, err := h.findMergeBase(mineLabel, theirsLabel)
	if err != nil {
		return nil, nil, err
	}
	base := h[baseLabel]

	res := Merge(base.Snapshot, mine.Snapshot, theirs.Snapshot, opts)
	resolved := ApplyStrategy(res, opts.Strategy)

	slog.DebugContext(ctx, "merge computed",
		"document", docID,
		"base", baseLabel,
		"mine", mineLabel,
		"theirs", theirsLabel,
		"conflicts", res.Report.Count(),
		"resolved", resolved,
	)
	return res, h, nil
}
