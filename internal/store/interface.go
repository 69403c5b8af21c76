package store

import (
	"context"
	"errors"

	"github.com/kilupskalvis/mdvc/internal/models"
)

// Sentinel errors for expected conditions.
var (
	ErrNotFound = errors.New("not found")
	ErrExists   = errors.New("already exists")
	ErrConflict = errors.New("conflict")
)

// Backend defines the contract for durable storage of version records and branches.
// All records are scoped by document ID. Implementations must make SaveVersion
// atomic: the record, its creation sequence and the lineage head move together.
type Backend interface {
	// SaveVersion stores rec and advances the head of rec.Lineage to rec.Label.
	// The current head must equal expectedHead ("" for an empty lineage),
	// otherwise ErrConflict. rec.Label must be above every stored label of the
	// document, otherwise ErrConflict. Returns ErrExists if the label is taken and
	// ErrNotFound if rec.Lineage names a branch that does not exist.
	// On success rec.Seq holds the assigned creation sequence.
	SaveVersion(ctx context.Context, rec *models.VersionRecord, expectedHead string) error

	// LoadVersion returns a version record. Returns ErrNotFound if missing.
	LoadVersion(ctx context.Context, docID, label string) (*models.VersionRecord, error)

	// ListVersions returns all records of a document in creation order.
	ListVersions(ctx context.Context, docID string) ([]*models.VersionRecord, error)

	// MaxLabel returns the greatest label in the document's history, "" if empty.
	MaxLabel(ctx context.Context, docID string) (string, error)

	// GetHead returns the head label of a lineage ("" if main has no versions).
	// Returns ErrNotFound for an unknown branch.
	GetHead(ctx context.Context, docID, lineage string) (string, error)

	// Branches
	CreateBranch(ctx context.Context, b *models.Branch) error
	GetBranch(ctx context.Context, docID, name string) (*models.Branch, error)
	ListBranches(ctx context.Context, docID string) ([]*models.Branch, error)
	DeleteBranch(ctx context.Context, docID, name string) error

	// Close releases resources.
	Close() error
}

// Open opens a backend of the given kind at path
func Open(kind, path string) (Backend, error) {
	switch kind {
	case "", KindBbolt:
		return NewBbolt(path)
	case KindSQLite:
		return NewSQLite(path)
	}
	return nil, errors.New("unknown store backend: " + kind)
}

// Backend kinds
const (
	KindBbolt  = "bbolt"
	KindSQLite = "sqlite"
)
