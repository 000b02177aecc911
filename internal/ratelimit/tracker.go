package ratelimit

import (
	"fmt"
	"sync"
	"time"
)

// CheckResult is the outcome of a rate limit check.
type CheckResult struct {
	Exceeded bool
	Key      string
	Current  int
	Limit    int
	Reason   string
}

// Tracker counts events per key. All keys share one window; when it
// expires every counter is reset.
type Tracker struct {
	limit       Limit
	mu          sync.Mutex
	counts      map[string]int
	windowStart time.Time
}

// NewTracker creates a Tracker enforcing limit.
func NewTracker(limit Limit) *Tracker {
	return &Tracker{limit: limit, counts: make(map[string]int)}
}

// Allow records an event for key if it is within the limit.
// An exceeded check does not count.
func (t *Tracker) Allow(key string, now time.Time) CheckResult {
	if !t.limit.Enabled() {
		return CheckResult{Key: key}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if now.Sub(t.windowStart) >= t.limit.Window {
		t.counts = make(map[string]int)
		t.windowStart = now
	}
	count := t.counts[key]
	if count >= t.limit.MaxRequests {
		return CheckResult{
			Exceeded: true,
			Key:      key,
			Current:  count,
			Limit:    t.limit.MaxRequests,
			Reason: fmt.Sprintf("rate limit exceeded: %d/%d events in %s window",
				count, t.limit.MaxRequests, t.limit.Window),
		}
	}
	t.counts[key]++
	return CheckResult{Key: key, Current: count + 1, Limit: t.limit.MaxRequests}
}
