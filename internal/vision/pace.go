package vision

import (
	"context"
	"time"
)

// Pace sleeps for d between two frames. It returns early when ctx is cancelled.
func Pace(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
