package out

import (
	"context"
	"time"
)

// RunLock keeps two runs of the same pipeline stage from overlapping.
type RunLock interface {
	// TryLock returns ok=false when another holder owns stage.
	TryLock(ctx context.Context, stage string, ttl time.Duration) (release func(), ok bool, err error)
}
