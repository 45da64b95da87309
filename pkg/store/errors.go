package store

import "errors"

var (
	// ErrNotFound is returned when an identity, state, or device has never
	// been observed.
	ErrNotFound = errors.New("store: not found")

	// ErrVersionConflict is returned when a write batch loses a race on an
	// identity's version chain. The batch is rolled back whole; callers
	// re-read the current state and retry.
	ErrVersionConflict = errors.New("store: version conflict")

	// ErrMalformed is returned for upserts or edges that do not name a
	// complete identity key, or that cross device batch boundaries.
	ErrMalformed = errors.New("store: malformed input")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("store: closed")
)
