// Package pace holds the context-aware wait shared by the batch stages and the provider retry loop.
package pace

import (
	"context"
	"time"
)

// Sleep pauses for d unless ctx ends first, returning ctx.Err() in that case.
// A non-positive d only reports whether ctx is already done.
func Sleep(ctx context.Context, d time.Duration) error {
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
