package adapters

import (
	"context"
	"time"
)

// Clock abstracts wall time so windows and backoff can be tested
type Clock interface {
	Now() time.Time
}

// Sleeper blocks for d or until ctx is done
type Sleeper func(ctx context.Context, d time.Duration) error

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the real wall clock
var SystemClock Clock = systemClock{}

// ContextSleep waits on a timer and returns early if ctx is cancelled
func ContextSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
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
