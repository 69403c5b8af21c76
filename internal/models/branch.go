package models

import "time"

// Branch is a named lineage forked from a specific version.
// ForkPoint never changes; Head advances as versions are committed on the branch.
type Branch struct {
	DocumentID string    `json:"document_id"`
	Name       string    `json:"name"`
	ForkPoint  string    `json:"fork_point"`
	Head       string    `json:"head"`
	CreatedAt  time.Time `json:"created_at"`
}

// HasCommits reports whether the branch advanced past its fork point
func (b *Branch) HasCommits() bool {
	return b.Head != b.ForkPoint
}
