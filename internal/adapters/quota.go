package adapters

import (
	"context"
	"sync"
	"time"

	"github.com/Rajchodisetti/price-alerts/internal/observ"
)

const (
	minuteWindow = time.Minute
	dayWindow    = 24 * time.Hour
)

// DecisionKind is the verdict of a quota admission check
type DecisionKind int

const (
	Allowed DecisionKind = iota
	DeniedDaily
	MustWait
)

func (k DecisionKind) String() string {
	switch k {
	case Allowed:
		return "allowed"
	case DeniedDaily:
		return "denied_daily"
	case MustWait:
		return "must_wait"
	default:
		return "unknown"
	}
}

// Decision is returned by Admit. Wait is only set for MustWait.
type Decision struct {
	Kind DecisionKind
	Wait time.Duration
}

// QuotaUsage is a snapshot of both windows
type QuotaUsage struct {
	MinuteUsed int       `json:"minute_used"`
	MinuteCap  int       `json:"minute_cap"`
	DayUsed    int       `json:"day_used"`
	DayCap     int       `json:"day_cap"`
	DayFreesAt time.Time `json:"day_frees_at,omitempty"` // when the oldest daily call leaves the window
}

// Exhausted reports whether the daily budget is spent
func (u QuotaUsage) Exhausted() bool {
	return u.DayUsed >= u.DayCap
}

// QuotaTracker enforces a global budget of upstream calls over a trailing
// minute and a trailing day. Every admitted call is recorded in both windows
// at the moment it is admitted.
type QuotaTracker struct {
	mu        sync.Mutex
	perMinute int
	daily     int
	minute    []time.Time
	day       []time.Time
	clock     Clock
	sleep     Sleeper
}

// NewQuotaTracker creates a tracker; nil clock or sleeper use the real ones
func NewQuotaTracker(perMinute, daily int, clock Clock, sleep Sleeper) *QuotaTracker {
	if clock == nil {
		clock = SystemClock
	}
	if sleep == nil {
		sleep = ContextSleep
	}
	return &QuotaTracker{
		perMinute: perMinute,
		daily:     daily,
		clock:     clock,
		sleep:     sleep,
	}
}

// Admit checks both windows and, when allowed, reserves one call
func (q *QuotaTracker) Admit() Decision {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.clock.Now()

	q.day = prune(q.day, now, dayWindow)
	if len(q.day) >= q.daily {
		observ.RecordQuotaDecision(DeniedDaily.String())
		return Decision{Kind: DeniedDaily}
	}

	q.minute = prune(q.minute, now, minuteWindow)
	if len(q.minute) > 0 && len(q.minute) >= q.perMinute {
		wait := minuteWindow - now.Sub(q.minute[0])
		if wait > 0 {
			observ.RecordQuotaDecision(MustWait.String())
			return Decision{Kind: MustWait, Wait: wait}
		}
	}

	q.minute = append(q.minute, now)
	q.day = append(q.day, now)
	observ.RecordQuotaDecision(Allowed.String())
	observ.SetQuotaUsage(len(q.minute), len(q.day))
	return Decision{Kind: Allowed}
}

// Acquire blocks through per-minute throttling and returns Allowed or
// DeniedDaily. An error is returned only when ctx ends while waiting.
func (q *QuotaTracker) Acquire(ctx context.Context) (Decision, error) {
	for {
		d := q.Admit()
		if d.Kind != MustWait {
			return d, nil
		}

		observ.Warn("quota_minute_wait", map[string]any{
			"wait_ms": d.Wait.Milliseconds(),
		})
		observ.RecordQuotaWait(d.Wait)

		if err := q.sleep(ctx, d.Wait); err != nil {
			return d, err
		}
	}
}

// Usage returns current window occupancy
func (q *QuotaTracker) Usage() QuotaUsage {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.clock.Now()
	q.day = prune(q.day, now, dayWindow)
	q.minute = prune(q.minute, now, minuteWindow)

	u := QuotaUsage{
		MinuteUsed: len(q.minute),
		MinuteCap:  q.perMinute,
		DayUsed:    len(q.day),
		DayCap:     q.daily,
	}
	if len(q.day) > 0 {
		u.DayFreesAt = q.day[0].Add(dayWindow)
	}
	return u
}

// prune drops timestamps that have left the trailing window. ts is ordered,
// so everything before the first in-window entry goes.
func prune(ts []time.Time, now time.Time, window time.Duration) []time.Time {
	i := 0
	for i < len(ts) && now.Sub(ts[i]) >= window {
		i++
	}
	if i == 0 {
		return ts
	}
	return append(ts[:0], ts[i:]...)
}
