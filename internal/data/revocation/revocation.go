// Package revocation holds the token ids of explicitly logged-out tokens until
// those tokens would have expired anyway.
package revocation

import (
	"context"
	"time"
)

type Set interface {
	// Revoke remembers jti until the given expiry.
	Revoke(ctx context.Context, jti string, until time.Time) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}
