package core

import (
	"fmt"
	"strings"

	"github.com/kilupskalvis/mdvc/internal/models"
	"github.com/pmezard/go-difflib/difflib"
)

// UnifiedDiff renders a human-readable unified diff of two line sequences.
// Returns "" when the sequences are equal.
func UnifiedDiff(a, b []string, fromName, toName string, context int) (string, error) {
	if context < 0 {
		context = models.DefaultContextLines
	}
	ud := difflib.UnifiedDiff{
		A:        withNewlines(a),
		B:        withNewlines(b),
		FromFile: fromName,
		ToFile:   toName,
		Context:  context,
	}
	text, err := difflib.GetUnifiedDiffString(ud)
	if err != nil {
		return "", fmt.Errorf("render unified diff: %w", err)
	}
	return text, nil
}

// FormatMetadataDiff renders field differences one per line in key order.
func FormatMetadataDiff(diffs []FieldDiff) string {
	var sb strings.Builder
	for _, d := range diffs {
		switch {
		case !d.Old.Present:
			fmt.Fprintf(&sb, "+ %s: %s\n", d.Key, d.New)
		case !d.New.Present:
			fmt.Fprintf(&sb, "- %s: %s\n", d.Key, d.Old)
		case len(d.Elements) > 0:
			fmt.Fprintf(&sb, "~ %s:", d.Key)
			for _, op := range d.Elements {
				if op.Kind == OpEqual {
					continue
				}
				sign := "+"
				if op.Kind == OpDelete {
					sign = "-"
				}
				for _, v := range op.Values {
					fmt.Fprintf(&sb, " %s%v", sign, models.Present(v))
				}
			}
			sb.WriteString("\n")
		default:
			fmt.Fprintf(&sb, "~ %s: %s -> %s\n", d.Key, d.Old, d.New)
		}
	}
	return sb.String()
}

// withNewlines terminates each line for difflib, which expects them
func withNewlines(lines []string) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = l + "\n"
	}
	return out
}
