// Package quota tracks daily provider API budget consumption.
package quota

import "sync"

// Default unit costs for the YouTube Data API v3.
const (
	SearchCost  = 100
	DetailsCost = 1
)

// Tracker is a concurrency-safe budget counter. Reserve commits units
// before the call is made, so concurrent crawls can never overrun the
// ceiling. Once a reservation is refused the tracker stays exhausted
// until Reset, even if smaller requests would still fit.
type Tracker struct {
	mu        sync.Mutex
	limit     int
	used      int
	exhausted bool
}

// NewTracker builds a tracker with the given daily ceiling.
func NewTracker(limit int) *Tracker {
	return &Tracker{limit: limit}
}

// Reserve commits cost units. It returns false, without recording
// anything, when the budget cannot cover the cost.
func (t *Tracker) Reserve(cost int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if cost < 0 {
		return false
	}
	if t.exhausted || t.used+cost > t.limit {
		t.exhausted = true
		return false
	}
	t.used += cost
	return true
}

// Used returns the units committed since the last reset.
func (t *Tracker) Used() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.used
}

// Remaining returns the units still available.
func (t *Tracker) Remaining() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.exhausted {
		return 0
	}
	return t.limit - t.used
}

// Limit returns the configured ceiling.
func (t *Tracker) Limit() int {
	return t.limit
}

// Exhausted reports whether a reservation has been refused since the
// last reset.
func (t *Tracker) Exhausted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.exhausted
}

// Reset clears usage and the exhausted latch.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.used = 0
	t.exhausted = false
}
