// Package traffic keeps sliding windows of upstream-backed request outcomes.
// Health uses them to detect a degraded provider and an overloaded service.
package traffic

import (
	"sync"
	"time"
)

// Outcome classifies one request for health accounting.
type Outcome int

const (
	// Success is a request whose upstream calls all completed.
	Success Outcome = iota
	// Failure is a request that failed on the upstream side (transport, 5xx, parse).
	Failure
	// Denied is a request rejected by the inbound rate limiter.
	Denied

	numOutcomes
)

// defaultMaxAge bounds how long outcomes are retained.
const defaultMaxAge = 5 * time.Minute

var defaultTracker = NewTracker(defaultMaxAge)

// Record records o on the process-wide tracker.
func Record(o Outcome) {
	defaultTracker.Record(o)
}

// ErrorRate returns (failures, successes+failures) within window on the process-wide tracker.
func ErrorRate(window time.Duration) (failures, total int) {
	return defaultTracker.ErrorRate(window)
}

// DenialCount returns the denials within window on the process-wide tracker.
func DenialCount(window time.Duration) int {
	return defaultTracker.Count(Denied, window)
}

// RequestCount returns all outcomes within window on the process-wide tracker.
func RequestCount(window time.Duration) int {
	return defaultTracker.Total(window)
}

// Reset clears the process-wide tracker. For tests only.
func Reset() {
	defaultTracker.Reset()
}

// Tracker holds one timestamp slice per outcome, oldest first.
type Tracker struct {
	mu     sync.Mutex
	events [numOutcomes][]time.Time
	maxAge time.Duration
	now    func() time.Time
}

// NewTracker returns a Tracker that forgets outcomes older than maxAge.
func NewTracker(maxAge time.Duration) *Tracker {
	if maxAge <= 0 {
		maxAge = defaultMaxAge
	}
	return &Tracker{maxAge: maxAge, now: time.Now}
}

// Record appends o at the current time.
func (t *Tracker) Record(o Outcome) {
	if o < 0 || o >= numOutcomes {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	t.events[o] = append(t.events[o], now)
	t.pruneLocked(now)
}

// Count returns the number of o outcomes within window.
func (t *Tracker) Count(o Outcome, window time.Duration) int {
	if o < 0 || o >= numOutcomes {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return countSince(t.events[o], t.now().Add(-window))
}

// Total returns the number of outcomes of every kind within window.
func (t *Tracker) Total(window time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.now().Add(-window)
	n := 0
	for _, times := range t.events {
		n += countSince(times, cutoff)
	}
	return n
}

// ErrorRate returns (failures, total) within window. Denials are excluded from both.
func (t *Tracker) ErrorRate(window time.Duration) (failures, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.now().Add(-window)
	failures = countSince(t.events[Failure], cutoff)
	return failures, failures + countSince(t.events[Success], cutoff)
}

// Reset clears all outcomes.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.events {
		t.events[i] = nil
	}
}

// countSince counts timestamps not before cutoff. times is sorted ascending.
func countSince(times []time.Time, cutoff time.Time) int {
	for i, ts := range times {
		if !ts.Before(cutoff) {
			return len(times) - i
		}
	}
	return 0
}

func (t *Tracker) pruneLocked(now time.Time) {
	cutoff := now.Add(-t.maxAge)
	for o, times := range t.events {
		i := 0
		for ; i < len(times) && times[i].Before(cutoff); i++ {
		}
		if i > 0 {
			t.events[o] = append(times[:0], times[i:]...)
		}
	}
}
