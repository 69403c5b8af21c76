package models

import (
	"fmt"
	"reflect"
	"sort"
	"time"
)

// Field is a metadata value that may be absent. Absent is distinct from a present nil.
type Field struct {
	Value   any  `json:"value,omitempty"`
	Present bool `json:"present"`
}

// Absent is the zero Field
var Absent = Field{}

// Present wraps a value as a present field
func Present(v any) Field {
	return Field{Value: v, Present: true}
}

// Equal compares two fields with ValuesEqual
func (f Field) Equal(o Field) bool {
	if f.Present != o.Present {
		return false
	}
	if !f.Present {
		return true
	}
	return ValuesEqual(f.Value, o.Value)
}

// String renders the field for display
func (f Field) String() string {
	if !f.Present {
		return "<absent>"
	}
	if f.Value == nil {
		return "null"
	}
	return fmt.Sprintf("%v", f.Value)
}

// dateLayout is used for dates without a clock component
const dateLayout = "2006-01-02"

// NormalizeMetadata converts decoder-specific value types into the canonical
// forms stored in snapshots: dates become ISO-8601 strings, typed slices and
// maps become []any and map[string]any.
func NormalizeMetadata(m Metadata) Metadata {
	if m == nil {
		return Metadata{}
	}
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = NormalizeValue(v)
	}
	return out
}

// NormalizeValue returns the canonical form of a single metadata value
func NormalizeValue(v any) any {
	switch t := v.(type) {
	case time.Time:
		if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
			return t.Format(dateLayout)
		}
		return t.UTC().Format(time.RFC3339)
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = NormalizeValue(e)
		}
		return out
	case Metadata:
		return map[string]any(NormalizeMetadata(t))
	case map[string]any:
		return map[string]any(NormalizeMetadata(t))
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[fmt.Sprint(k)] = NormalizeValue(e)
		}
		return out
	default:
		return v
	}
}

// CloneValue deep-copies lists and maps; scalars are returned as-is
func CloneValue(v any) any {
	switch t := v.(type) {
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = CloneValue(e)
		}
		return out
	case []string:
		out := make([]string, len(t))
		copy(out, t)
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = CloneValue(e)
		}
		return out
	case Metadata:
		return t.Clone()
	default:
		return v
	}
}

// AsList returns v as a list of elements when it is list-valued
func AsList(v any) ([]any, bool) {
	switch t := v.(type) {
	case []any:
		return t, true
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out, true
	}
	return nil, false
}

// ValuesEqual is deep equality over metadata values. Numbers compare by
// numeric value regardless of Go kind, []string equals an equivalent []any,
// and maps compare key by key.
func ValuesEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && fa == fb
	}
	if la, ok := AsList(a); ok {
		lb, ok := AsList(b)
		if !ok || len(la) != len(lb) {
			return false
		}
		for i := range la {
			if !ValuesEqual(la[i], lb[i]) {
				return false
			}
		}
		return true
	}
	if ma, ok := asMap(a); ok {
		mb, ok := asMap(b)
		if !ok || len(ma) != len(mb) {
			return false
		}
		for k, va := range ma {
			vb, ok := mb[k]
			if !ok || !ValuesEqual(va, vb) {
				return false
			}
		}
		return true
	}
	if ta, ok := a.(time.Time); ok {
		return ValuesEqual(NormalizeValue(ta), NormalizeValue(b))
	}
	if _, ok := b.(time.Time); ok {
		return ValuesEqual(a, NormalizeValue(b))
	}
	return reflect.DeepEqual(a, b)
}

// SortedKeys returns the keys of m in ascending order
func SortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func asMap(v any) (map[string]any, bool) {
	switch t := v.(type) {
	case map[string]any:
		return t, true
	case Metadata:
		return map[string]any(t), true
	}
	return nil, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
