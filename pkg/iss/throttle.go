package iss

import (
	"context"
	"sync"
	"time"
)

// throttle spaces out requests by a fixed minimum interval. The service asks
// anonymous clients to keep roughly five requests per second or less.
type throttle struct {
	mu       sync.Mutex
	interval time.Duration
	next     time.Time
}

func newThrottle(interval time.Duration) *throttle {
	if interval <= 0 {
		return nil
	}
	return &throttle{interval: interval}
}

// wait blocks until the next request slot, honoring context cancellation.
func (t *throttle) wait(ctx context.Context) error {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	now := time.Now()
	delay := t.next.Sub(now)
	if delay < 0 {
		delay = 0
	}
	t.next = now.Add(delay + t.interval)
	t.mu.Unlock()

	if delay == 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
