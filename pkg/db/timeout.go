package db

import (
	"context"
	"time"
)

// WithTimeout bounds a store call. A non-positive d leaves only cancellation.
func WithTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
