package out

import (
	"context"
	"time"
)

// OAuthStateStore keeps one-time OAuth state values for CSRF protection.
type OAuthStateStore interface {
	StoreState(ctx context.Context, state string, ttl time.Duration) error
	// ValidateState consumes state. A second call with the same value fails.
	ValidateState(ctx context.Context, state string) error
}
