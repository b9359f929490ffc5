package storage

import "errors"

var (
	// ErrNotFound indicates a missing record; domain packages wrap it
	ErrNotFound = errors.New("storage: not found")

	// ErrConflict indicates a concurrent transaction committed overlapping keys first
	ErrConflict = errors.New("storage: transaction conflict")

	// ErrReadOnly indicates a write attempted through a read-only transaction
	ErrReadOnly = errors.New("storage: read-only transaction")

	// ErrClosed indicates an operation on a closed store
	ErrClosed = errors.New("storage: store closed")

	// ErrAlreadyOpen indicates Open was called twice
	ErrAlreadyOpen = errors.New("storage: store already open")

	// ErrCorrupted indicates a stored record that cannot be decoded
	ErrCorrupted = errors.New("storage: corrupted record")
)
