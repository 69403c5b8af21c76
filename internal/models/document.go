// Package models defines the core data structures used throughout mdvc
// including document snapshots, version records, branches, and merge results.
package models

import (
	"strings"

	"github.com/google/uuid"
)

// CustomFieldPrefix marks metadata keys that are opaque pass-through values.
const CustomFieldPrefix = "x-"

// Metadata is the key-value header of a document. Keys are case-sensitive.
type Metadata map[string]any

// Snapshot is the full metadata and content state of a document at one version
type Snapshot struct {
	ID           string   `json:"id"`
	VersionLabel string   `json:"version_label,omitempty"`
	Metadata     Metadata `json:"metadata"`
	Content      []string `json:"content"`
}

// NewSnapshot creates a snapshot with a fresh document ID.
// The body is split into newline-normalized lines.
func NewSnapshot(metadata Metadata, body string) *Snapshot {
	return &Snapshot{
		ID:       uuid.NewString(),
		Metadata: NormalizeMetadata(metadata),
		Content:  SplitLines(body),
	}
}

// Clone returns a deep copy of the snapshot
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	c := &Snapshot{
		ID:           s.ID,
		VersionLabel: s.VersionLabel,
		Metadata:     s.Metadata.Clone(),
	}
	if s.Content != nil {
		c.Content = make([]string, len(s.Content))
		copy(c.Content, s.Content)
	}
	return c
}

// Equal reports whether two snapshots have the same identity, label, metadata and content
func (s *Snapshot) Equal(o *Snapshot) bool {
	if s == nil || o == nil {
		return s == o
	}
	if s.ID != o.ID || s.VersionLabel != o.VersionLabel {
		return false
	}
	return s.SameState(o)
}

// SameState compares metadata and content only, ignoring ID and label.
func (s *Snapshot) SameState(o *Snapshot) bool {
	if !ValuesEqual(map[string]any(s.Metadata), map[string]any(o.Metadata)) {
		return false
	}
	return LinesEqual(s.Content, o.Content)
}

// Body joins the content lines back into a single string
func (s *Snapshot) Body() string {
	return JoinLines(s.Content)
}

// Clone returns a deep copy of the metadata map
func (m Metadata) Clone() Metadata {
	if m == nil {
		return Metadata{}
	}
	c := make(Metadata, len(m))
	for k, v := range m {
		c[k] = CloneValue(v)
	}
	return c
}

// Get returns the field for key, distinguishing absent from null
func (m Metadata) Get(key string) Field {
	v, ok := m[key]
	return Field{Value: v, Present: ok}
}

// Set writes a field; an absent field deletes the key
func (m Metadata) Set(key string, f Field) {
	if !f.Present {
		delete(m, key)
		return
	}
	m[key] = f.Value
}

// IsCustomField reports whether key uses the reserved custom-field prefix
func IsCustomField(key string) bool {
	return strings.HasPrefix(key, CustomFieldPrefix)
}

// SplitLines splits a body into lines, normalizing CRLF and CR line endings.
// A single trailing newline does not produce an empty final line.
func SplitLines(body string) []string {
	if body == "" {
		return []string{}
	}
	body = strings.ReplaceAll(body, "\r\n", "\n")
	body = strings.ReplaceAll(body, "\r", "\n")
	body = strings.TrimSuffix(body, "\n")
	return strings.Split(body, "\n")
}

// JoinLines is the inverse of SplitLines; non-empty bodies end with a newline.
func JoinLines(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}

// LinesEqual compares two line slices element-wise
func LinesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
