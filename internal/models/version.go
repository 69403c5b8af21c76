package models

import "time"

// MainLineage is the reserved name of a document's primary lineage
const MainLineage = "main"

// VersionRecord is an immutable stored snapshot plus lineage metadata
type VersionRecord struct {
	DocumentID  string    `json:"document_id"`
	Label       string    `json:"label"`
	Seq         uint64    `json:"seq"`
	ParentLabel string    `json:"parent_label,omitempty"`
	MergedFrom  string    `json:"merged_from,omitempty"`
	Lineage     string    `json:"lineage"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	Snapshot    *Snapshot `json:"snapshot"`
}

// IsMergeVersion returns true if this version has a secondary merge parent
func (r *VersionRecord) IsMergeVersion() bool {
	return r.MergedFrom != ""
}

// IsInitial returns true for the root version of a history
func (r *VersionRecord) IsInitial() bool {
	return r.ParentLabel == ""
}

// Clone returns a deep copy so callers cannot mutate stored history
func (r *VersionRecord) Clone() *VersionRecord {
	if r == nil {
		return nil
	}
	c := *r
	c.Snapshot = r.Snapshot.Clone()
	return &c
}

// VersionOptions configures version creation
type VersionOptions struct {
	Description  string   // Human-readable change description
	Bump         BumpType // Component to increment; defaults to patch
	Label        string   // Explicit label; overrides Bump when set
	Lineage      string   // Lineage to commit on; defaults to main
	ExpectedHead string   // Optimistic check against the lineage head; empty skips it
	MergedFrom   string   // Secondary parent for merge versions
}

// LineageOrMain returns the lineage name, defaulting to main
func (o VersionOptions) LineageOrMain() string {
	if o.Lineage == "" {
		return MainLineage
	}
	return o.Lineage
}
