// Package counters stores named monotonic counters in the document
// store: the global userID watermark and the per-base nickname suffix
// counters rebuilt by migration.
package counters

import "context"

const UserIDKey = "userID"

// NicknameKey returns the counter key for a base nickname.
func NicknameKey(base string) string {
	return "nickname:" + base
}

type Repository interface {
	// Set writes an authoritative value, replacing whatever is stored.
	Set(ctx context.Context, key string, value int64) error

	// Next atomically increments the counter (initializing absent keys
	// to zero first) and returns the new value. This is the
	// serialization point that makes concurrent allocations safe.
	Next(ctx context.Context, key string) (int64, error)

	// Get returns the current value; absent keys read as zero.
	Get(ctx context.Context, key string) (int64, error)
}
