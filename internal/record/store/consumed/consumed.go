// Package consumed tracks spent tokens. A token is reserved exactly once; a
// second reservation of the same hash is a replay. Entries expire with the
// token's own lifetime since an expired token can never verify again anyway.
package consumed

import (
	"context"
	"time"
)

// Set is the single-use token tracker shared by all Stage 2 entry points.
type Set interface {
	// Reserve marks a token hash as spent. Returns sentinel.ErrAlreadyUsed
	// when the hash was reserved before.
	Reserve(ctx context.Context, tokenHash string, ttl time.Duration) error
}
