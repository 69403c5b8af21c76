package core

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kilupskalvis/mdvc/internal/models"
)

// Conflict marker prefixes. A marker line is the prefix alone or the prefix
// followed by a space and a label.
const (
	MarkerBegin     = "<<<<<<<"
	MarkerBase      = "|||||||"
	MarkerSeparator = "======="
	MarkerEnd       = ">>>>>>>"
)

// MetadataMarkerKey wraps the three sides of a conflicting metadata field.
const MetadataMarkerKey = "<<<<<<< conflict"

// RenderOptions configures conflict rendering
type RenderOptions struct {
	ShowBase bool // Include the base side of each content hunk (diff3 style)
}

// RenderConflicts builds a conflict resolution document from a merge result.
// Conflicting metadata fields carry a marker map with the base, mine and theirs
// values; content hunks are inlined at their offsets between marker lines.
// A clean result renders as a copy of the merged snapshot.
func RenderConflicts(res *models.MergeResult, opts RenderOptions) *models.Snapshot {
	doc := res.Merged.Clone()
	if doc.Metadata == nil {
		doc.Metadata = models.Metadata{}
	}
	if !res.Report.HasConflicts() {
		return doc
	}

	for _, key := range models.SortedKeys(res.Report.MetadataConflicts) {
		c := res.Report.MetadataConflicts[key]
		sides := make(map[string]any, 3)
		if c.Base.Present {
			sides["base"] = models.CloneValue(c.Base.Value)
		}
		if c.Mine.Present {
			sides["mine"] = models.CloneValue(c.Mine.Value)
		}
		if c.Theirs.Present {
			sides["theirs"] = models.CloneValue(c.Theirs.Value)
		}
		doc.Metadata[key] = map[string]any{MetadataMarkerKey: sides}
	}

	hunks := append([]models.ContentHunk(nil), res.Report.ContentConflicts...)
	sort.SliceStable(hunks, func(i, j int) bool { return hunks[i].Offset < hunks[j].Offset })

	content := make([]string, 0, len(doc.Content))
	next := 0
	for pos := 0; pos <= len(doc.Content); pos++ {
		for next < len(hunks) && hunks[next].Offset <= pos {
			content = append(content, renderHunk(hunks[next], res, opts)...)
			next++
		}
		if pos < len(doc.Content) {
			content = append(content, doc.Content[pos])
		}
	}
	doc.Content = content
	return doc
}

func renderHunk(h models.ContentHunk, res *models.MergeResult, opts RenderOptions) []string {
	lines := make([]string, 0, len(h.Mine)+len(h.Theirs)+len(h.Base)+4)
	lines = append(lines, markerLine(MarkerBegin, "mine", res.MineLabel))
	lines = append(lines, h.Mine...)
	if opts.ShowBase {
		lines = append(lines, markerLine(MarkerBase, "base", res.BaseLabel))
		lines = append(lines, h.Base...)
	}
	lines = append(lines, MarkerSeparator)
	lines = append(lines, h.Theirs...)
	lines = append(lines, markerLine(MarkerEnd, "theirs", res.TheirsLabel))
	return lines
}

func markerLine(marker, side, label string) string {
	if label == "" {
		return marker + " " + side
	}
	return fmt.Sprintf("%s %s (%s)", marker, side, label)
}

// ParseResolved validates an edited conflict resolution document and returns
// the clean snapshot. Fails with ErrMalformedMarker for unbalanced, nested or
// out-of-order markers, which takes precedence over ErrUnresolvedConflict for
// any well-formed marker block still present.
func ParseResolved(doc *models.Snapshot) (*models.Snapshot, error) {
	if doc == nil {
		return nil, fmt.Errorf("no document to parse")
	}

	var malformed, unresolved []string

	scan := scanMarkers(doc.Content)
	if scan.malformed != "" {
		malformed = append(malformed, "content "+scan.malformed)
	}
	if scan.blocks > 0 {
		unresolved = append(unresolved, fmt.Sprintf("content has %d conflict block(s)", scan.blocks))
	}

	for _, key := range models.SortedKeys(doc.Metadata) {
		checkMetadataValue(key, doc.Metadata[key], &malformed, &unresolved)
	}

	if len(malformed) > 0 {
		return nil, fmt.Errorf("%s: %w", strings.Join(malformed, "; "), ErrMalformedMarker)
	}
	if len(unresolved) > 0 {
		return nil, fmt.Errorf("%s: %w", strings.Join(unresolved, "; "), ErrUnresolvedConflict)
	}

	out := doc.Clone()
	out.Metadata = models.NormalizeMetadata(out.Metadata)
	if out.Content == nil {
		out.Content = []string{}
	}
	return out, nil
}

// checkMetadataValue looks for marker maps and marker lines inside strings,
// recursing through lists and maps.
func checkMetadataValue(path string, v any, malformed, unresolved *[]string) {
	switch val := v.(type) {
	case string:
		scan := scanMarkers(models.SplitLines(val))
		if scan.malformed != "" {
			*malformed = append(*malformed, fmt.Sprintf("field %s %s", path, scan.malformed))
		}
		if scan.blocks > 0 {
			*unresolved = append(*unresolved, fmt.Sprintf("field %s has conflict markers", path))
		}
	case map[string]any:
		if sides, ok := val[MetadataMarkerKey]; ok {
			if err := checkMarkerShape(val, sides); err != "" {
				*malformed = append(*malformed, fmt.Sprintf("field %s %s", path, err))
				return
			}
			*unresolved = append(*unresolved, fmt.Sprintf("field %s", path))
			return
		}
		for _, k := range models.SortedKeys(val) {
			checkMetadataValue(path+"."+k, val[k], malformed, unresolved)
		}
	case models.Metadata:
		checkMetadataValue(path, map[string]any(val), malformed, unresolved)
	case []any:
		for i, item := range val {
			checkMetadataValue(fmt.Sprintf("%s[%d]", path, i), item, malformed, unresolved)
		}
	case []string:
		for i, item := range val {
			checkMetadataValue(fmt.Sprintf("%s[%d]", path, i), item, malformed, unresolved)
		}
	}
}

// checkMarkerShape validates a metadata marker map, returning a description
// of the problem or "".
func checkMarkerShape(wrapper map[string]any, sides any) string {
	if len(wrapper) != 1 {
		return "has a conflict marker mixed with other keys"
	}
	m, ok := sides.(map[string]any)
	if !ok {
		if md, isMeta := sides.(models.Metadata); isMeta {
			m, ok = map[string]any(md), true
		}
	}
	if !ok {
		return "has a conflict marker without sides"
	}
	for k := range m {
		switch k {
		case "base", "mine", "theirs":
		default:
			return fmt.Sprintf("has an unknown conflict side %q", k)
		}
	}
	return ""
}

type markerScan struct {
	blocks    int    // well-formed blocks found
	malformed string // first structural problem, "" if none
}

type markerState int

const (
	stateText markerState = iota
	stateMine
	stateBase
	stateTheirs
)

// scanMarkers walks lines with a small state machine over marker lines.
// A separator outside a block is ordinary text.
func scanMarkers(lines []string) markerScan {
	var res markerScan
	state := stateText
	start := 0

	fail := func(i int, msg string) markerScan {
		res.malformed = fmt.Sprintf("line %d: %s", i+1, msg)
		return res
	}

	for i, line := range lines {
		switch {
		case isMarker(line, MarkerBegin):
			if state != stateText {
				return fail(i, "nested conflict marker")
			}
			state, start = stateMine, i
		case isMarker(line, MarkerBase):
			if state != stateMine {
				return fail(i, "base marker outside a conflict block")
			}
			state = stateBase
		case strings.TrimRight(line, " \t") == MarkerSeparator:
			switch state {
			case stateMine, stateBase:
				state = stateTheirs
			case stateTheirs:
				return fail(i, "repeated separator in conflict block")
			}
		case isMarker(line, MarkerEnd):
			if state != stateTheirs {
				return fail(i, "end marker without a matching separator")
			}
			state = stateText
			res.blocks++
		}
	}
	if state != stateText {
		return fail(start, "unterminated conflict block")
	}
	return res
}

func isMarker(line, marker string) bool {
	return line == marker || strings.HasPrefix(line, marker+" ")
}
