package repository

import "errors"

// Store-level sentinel errors. Services translate these into their own
// caller-facing failures.
var (
	// ErrNotFound means no row matched the lookup. A row owned by another
	// user reports the same error.
	ErrNotFound = errors.New("record not found")

	// ErrStale means a conditional update matched zero rows because the
	// record left the expected state concurrently.
	ErrStale = errors.New("record changed concurrently")

	// ErrDuplicate means a uniqueness constraint rejected the insert.
	ErrDuplicate = errors.New("record already exists")
)
