package storage

import "errors"

// Storage errors shared by all implementations.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when attempting to insert a record
	// with a key that already exists.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrSignatureConsumed is returned when an entry insert references a
	// transaction signature that already admitted some wallet. Consumed
	// signatures are global and permanent: deleting an entry does not
	// release its signature.
	ErrSignatureConsumed = errors.New("transaction signature already consumed")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")
)
