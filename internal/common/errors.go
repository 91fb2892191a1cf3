// Package common defines shared sentinel errors used across the server
// layers. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Request-level errors (rejected before any store access).
	ErrInvalidInput = errors.New("invalid input")
	ErrInvalidToken = errors.New("invalid token")

	// Repository-level errors.
	ErrNotFound         = errors.New("not found")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrCorruptRecord    = errors.New("corrupt record")
	ErrDuplicateKey     = errors.New("duplicate key")

	// Sharding errors. CapacityDrift means a table's column capacity
	// changed between address computation and use; every previously
	// computed bucket address is invalid and a manual rehash is required.
	ErrCapacityDrift = errors.New("bucket capacity drift")

	// Job-level errors.
	ErrSyncInProgress = errors.New("sync already in progress")
)
