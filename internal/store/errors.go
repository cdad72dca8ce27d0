package store

import (
	"errors"
	"fmt"
)

// Common store errors used across all store implementations.
var (
	// ErrNotFound is returned when a requested entity does not exist in the store.
	// This is a generic version of the entity-specific not found errors
	// (e.g., ErrJobNotFound, ErrRecordNotFound).
	ErrNotFound = errors.New("entity not found")

	// ErrDuplicate is returned when an operation would create a duplicate
	// of a unique entity (e.g., a second record for the same job).
	ErrDuplicate = errors.New("entity already exists")

	// ErrInvalidEntity is returned when an entity fails validation before
	// being stored. Check the wrapped error for specific validation details.
	ErrInvalidEntity = errors.New("invalid entity")

	// ErrUpdateFailed is returned when an update operation fails, for example
	// because the entity does not exist or the update violates constraints.
	ErrUpdateFailed = errors.New("update failed")

	// ErrTransactionFailed is returned when a database transaction fails
	// to commit or when an operation within a transaction fails.
	ErrTransactionFailed = errors.New("transaction failed")

	// ErrNotClaimable is returned when a conditional claim finds the job in a
	// state other than pending or failed. It signals that another worker
	// already owns the job and is expected under at-least-once delivery,
	// so callers treat it as a non-fatal outcome rather than a failure.
	ErrNotClaimable = errors.New("job is not claimable")

	// ErrConflict is returned when a conditional state transition finds the
	// entity in an unexpected state, e.g. retrying a job that is not failed.
	ErrConflict = errors.New("conflicting entity state")

	// Entity-specific "not found" errors

	// ErrJobNotFound indicates that the requested job does not exist in the store.
	ErrJobNotFound = fmt.Errorf("%w: job", ErrNotFound)

	// ErrChunkNotFound indicates that the requested chunk does not exist in the store.
	ErrChunkNotFound = fmt.Errorf("%w: chunk", ErrNotFound)

	// ErrStepNotFound indicates that the requested step record does not exist in the store.
	ErrStepNotFound = fmt.Errorf("%w: step", ErrNotFound)

	// ErrRecordNotFound indicates that the requested processed record does not exist.
	ErrRecordNotFound = fmt.Errorf("%w: record", ErrNotFound)
)

// IsNotFoundError checks if the error is any kind of "not found" error.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflictError checks if the error represents a conditional-update conflict.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrConflict) || errors.Is(err, ErrNotClaimable)
}
