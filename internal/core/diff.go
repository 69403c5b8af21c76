package core

import (
	"fmt"

	"github.com/kilupskalvis/mdvc/internal/models"
)

// OpKind is the kind of an edit operation
type OpKind string

const (
	OpEqual  OpKind = "equal"
	OpDelete OpKind = "delete"
	OpInsert OpKind = "insert"
)

// EditOp is a run of lines that are kept, deleted from a, or inserted from b
type EditOp struct {
	Kind  OpKind   `json:"kind"`
	Lines []string `json:"lines"`
}

// ElementOp is a run of list elements that are kept, deleted, or inserted
type ElementOp struct {
	Kind   OpKind `json:"kind"`
	Values []any  `json:"values"`
}

// FieldDiff describes one metadata field whose value differs between two snapshots.
// Elements is set when both values are lists.
type FieldDiff struct {
	Key      string       `json:"key"`
	Old      models.Field `json:"old"`
	New      models.Field `json:"new"`
	Elements []ElementOp  `json:"elements,omitempty"`
}

// SnapshotDiff is the structural delta between two snapshots
type SnapshotDiff struct {
	Metadata []FieldDiff `json:"metadata"`
	Content  []EditOp    `json:"content"`
}

// HasChanges returns true if metadata or content differ
func (d *SnapshotDiff) HasChanges() bool {
	if len(d.Metadata) > 0 {
		return true
	}
	for _, op := range d.Content {
		if op.Kind != OpEqual {
			return true
		}
	}
	return false
}

// LineStats counts inserted and deleted content lines
func (d *SnapshotDiff) LineStats() (added, removed int) {
	for _, op := range d.Content {
		switch op.Kind {
		case OpInsert:
			added += len(op.Lines)
		case OpDelete:
			removed += len(op.Lines)
		}
	}
	return added, removed
}

// DiffSnapshots computes metadata and content differences from a to b.
func DiffSnapshots(a, b *models.Snapshot) *SnapshotDiff {
	return &SnapshotDiff{
		Metadata: DiffMetadata(a.Metadata, b.Metadata),
		Content:  DiffContent(a.Content, b.Content),
	}
}

// DiffMetadata returns one entry per field whose value differs, sorted by key.
// A field missing on one side is reported as absent, which is distinct from null.
func DiffMetadata(a, b models.Metadata) []FieldDiff {
	keys := make(map[string]struct{}, len(a)+len(b))
	for k := range a {
		keys[k] = struct{}{}
	}
	for k := range b {
		keys[k] = struct{}{}
	}

	var diffs []FieldDiff
	for _, key := range models.SortedKeys(keys) {
		oldVal, newVal := a.Get(key), b.Get(key)
		if oldVal.Equal(newVal) {
			continue
		}
		d := FieldDiff{Key: key, Old: oldVal, New: newVal}
		if oldVal.Present && newVal.Present {
			la, okA := models.AsList(oldVal.Value)
			lb, okB := models.AsList(newVal.Value)
			if okA && okB {
				d.Elements = diffElements(la, lb)
			}
		}
		diffs = append(diffs, d)
	}
	return diffs
}

func diffElements(a, b []any) []ElementOp {
	var ops []ElementOp
	for _, seg := range segments(len(a), len(b), lcsMatches(a, b, models.ValuesEqual)) {
		var values []any
		if seg.kind == OpInsert {
			values = b[seg.bStart:seg.bEnd]
		} else {
			values = a[seg.aStart:seg.aEnd]
		}
		ops = append(ops, ElementOp{Kind: seg.kind, Values: cloneValues(values)})
	}
	return ops
}

func cloneValues(values []any) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = models.CloneValue(v)
	}
	return out
}

// DiffContent computes a line edit script from a to b using a longest common
// subsequence alignment. Within a changed region deletions precede insertions.
func DiffContent(a, b []string) []EditOp {
	var ops []EditOp
	for _, seg := range segments(len(a), len(b), lcsMatches(a, b, eqString)) {
		var lines []string
		if seg.kind == OpInsert {
			lines = b[seg.bStart:seg.bEnd]
		} else {
			lines = a[seg.aStart:seg.aEnd]
		}
		ops = append(ops, EditOp{Kind: seg.kind, Lines: copyLines(lines)})
	}
	return ops
}

// ApplyEdits replays an edit script against a and returns the resulting lines.
// Fails if the script does not describe a.
func ApplyEdits(a []string, ops []EditOp) ([]string, error) {
	out := make([]string, 0, len(a))
	pos := 0
	for _, op := range ops {
		switch op.Kind {
		case OpEqual, OpDelete:
			for _, line := range op.Lines {
				if pos >= len(a) || a[pos] != line {
					return nil, fmt.Errorf("edit script does not match input at line %d", pos+1)
				}
				if op.Kind == OpEqual {
					out = append(out, line)
				}
				pos++
			}
		case OpInsert:
			out = append(out, op.Lines...)
		default:
			return nil, fmt.Errorf("unknown edit kind %q", op.Kind)
		}
	}
	if pos != len(a) {
		return nil, fmt.Errorf("edit script covers %d of %d lines", pos, len(a))
	}
	return out, nil
}

// InvertEdits turns an edit script from a to b into one from b to a.
func InvertEdits(ops []EditOp) []EditOp {
	var out []EditOp
	var dels, ins []string
	flush := func() {
		if len(dels) > 0 {
			out = append(out, EditOp{Kind: OpDelete, Lines: dels})
		}
		if len(ins) > 0 {
			out = append(out, EditOp{Kind: OpInsert, Lines: ins})
		}
		dels, ins = nil, nil
	}

	for _, op := range ops {
		switch op.Kind {
		case OpInsert:
			dels = append(dels, op.Lines...)
		case OpDelete:
			ins = append(ins, op.Lines...)
		default:
			flush()
			out = append(out, EditOp{Kind: OpEqual, Lines: copyLines(op.Lines)})
		}
	}
	flush()
	return out
}

func eqString(a, b string) bool { return a == b }

func copyLines(lines []string) []string {
	out := make([]string, len(lines))
	copy(out, lines)
	return out
}

// match pairs an index of a with an index of b holding equal elements.
type match struct {
	a, b int
}

// lcsMatches aligns a and b along a longest common subsequence. Common prefix
// and suffix are matched directly; the middle is solved with a suffix table.
// When two choices keep the same length the element of a is dropped first.
func lcsMatches[T any](a, b []T, eq func(x, y T) bool) []match {
	prefix := 0
	for prefix < len(a) && prefix < len(b) && eq(a[prefix], b[prefix]) {
		prefix++
	}
	suffix := 0
	for suffix < len(a)-prefix && suffix < len(b)-prefix &&
		eq(a[len(a)-1-suffix], b[len(b)-1-suffix]) {
		suffix++
	}

	ma := a[prefix : len(a)-suffix]
	mb := b[prefix : len(b)-suffix]
	n, m := len(ma), len(mb)

	matches := make([]match, 0, prefix+suffix+min(n, m))
	for i := 0; i < prefix; i++ {
		matches = append(matches, match{i, i})
	}

	if n > 0 && m > 0 {
		// table[i*(m+1)+j] is the LCS length of ma[i:] and mb[j:]
		w := m + 1
		table := make([]int, (n+1)*w)
		for i := n - 1; i >= 0; i-- {
			for j := m - 1; j >= 0; j-- {
				if eq(ma[i], mb[j]) {
					table[i*w+j] = table[(i+1)*w+j+1] + 1
				} else {
					table[i*w+j] = max(table[(i+1)*w+j], table[i*w+j+1])
				}
			}
		}

		i, j := 0, 0
		for i < n && j < m {
			switch {
			case eq(ma[i], mb[j]):
				matches = append(matches, match{prefix + i, prefix + j})
				i++
				j++
			case table[(i+1)*w+j] >= table[i*w+j+1]:
				i++
			default:
				j++
			}
		}
	}

	for k := 0; k < suffix; k++ {
		matches = append(matches, match{len(a) - suffix + k, len(b) - suffix + k})
	}
	return matches
}

// segment is a maximal run of one edit kind over index ranges of a and b.
type segment struct {
	kind         OpKind
	aStart, aEnd int
	bStart, bEnd int
}

// segments converts an alignment into runs, deletions before insertions.
func segments(lenA, lenB int, matches []match) []segment {
	var segs []segment
	push := func(s segment) {
		if last := len(segs) - 1; last >= 0 && segs[last].kind == s.kind && s.kind == OpEqual &&
			segs[last].aEnd == s.aStart && segs[last].bEnd == s.bStart {
			segs[last].aEnd = s.aEnd
			segs[last].bEnd = s.bEnd
			return
		}
		segs = append(segs, s)
	}

	i, j := 0, 0
	emitGap := func(toA, toB int) {
		if i < toA {
			push(segment{kind: OpDelete, aStart: i, aEnd: toA, bStart: j, bEnd: j})
		}
		if j < toB {
			push(segment{kind: OpInsert, aStart: toA, aEnd: toA, bStart: j, bEnd: toB})
		}
	}

	for _, mt := range matches {
		emitGap(mt.a, mt.b)
		push(segment{kind: OpEqual, aStart: mt.a, aEnd: mt.a + 1, bStart: mt.b, bEnd: mt.b + 1})
		i, j = mt.a+1, mt.b+1
	}
	emitGap(lenA, lenB)
	return segs
}
