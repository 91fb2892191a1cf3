// Package auth verifies identity tokens at the boundary. The rest of the
// server only ever sees the verified, lowercased email string.
package auth

import "context"

// Verifier turns a raw bearer token into a verified email address.
type Verifier interface {
	Verify(ctx context.Context, token string) (email string, err error)
}
