package host

import (
	"context"
	"time"
)

// Settle waits d after a property change so the host can finish its
// asynchronous re-layout. A zero delay only checks ctx.
func Settle(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
