package core

import (
	"errors"
	"fmt"

	"github.com/kilupskalvis/mdvc/internal/store"
)

// Sentinel errors returned by engine operations. Callers test with errors.Is.
var (
	ErrVersionNotFound        = errors.New("version not found")
	ErrInvalidBump            = errors.New("invalid version bump")
	ErrIncompatibleAncestry   = errors.New("no common ancestor")
	ErrDuplicateBranch        = errors.New("branch already exists")
	ErrBranchNotFound         = errors.New("branch not found")
	ErrAmbiguousTarget        = errors.New("ambiguous merge target")
	ErrInvalidBranchName      = errors.New("invalid branch name")
	ErrUnresolvedConflict     = errors.New("unresolved conflict")
	ErrMalformedMarker        = errors.New("malformed conflict marker")
	ErrConcurrentModification = errors.New("concurrent modification")
)

// StorageError reports a backend failure. The operation was not applied.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// storageErr wraps a backend error that is not one of the expected sentinels.
func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	if errors.Is(err, store.ErrConflict) {
		return fmt.Errorf("%s: %w", op, ErrConcurrentModification)
	}
	return &StorageError{Op: op, Err: err}
}
