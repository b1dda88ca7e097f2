package store

import "errors"

// Sentinel errors for lookups and low-level write conflicts.
var (
	// ErrNotFound is returned by lookups when no matching user exists.
	ErrNotFound = errors.New("user not found")

	// ErrConflict is returned by low-level write paths when a uniqueness
	// constraint rejects the row. Store implementations translate it into
	// the matching duplicate Result code before it reaches callers.
	ErrConflict = errors.New("credential record already exists")
)
