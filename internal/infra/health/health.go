// Package health tracks the sweeper's liveness. The sweeper reports each
// run into a Tracker (it implements domain.HealthSink); the API server
// reads the Tracker back out, so liveness is observable without log
// inspection and without process-global state.
package health

import (
	"fmt"
	"sync"
	"time"
)

// DefaultStaleAfter is how long the tracker waits for a successful run
// before declaring the sweeper unhealthy.
const DefaultStaleAfter = 15 * time.Minute

// Status is a point-in-time health snapshot.
type Status struct {
	Healthy bool   `json:"healthy"`
	Detail  string `json:"detail"`
}

// Tracker records the most recent sweeper run report.
type Tracker struct {
	mu         sync.Mutex
	lastRun    time.Time
	lastErr    string
	staleAfter time.Duration
	now        func() time.Time
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithStaleAfter overrides the staleness window.
func WithStaleAfter(d time.Duration) Option {
	return func(t *Tracker) { t.staleAfter = d }
}

// WithClock injects a clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// NewTracker creates a tracker that treats "no report yet" as a fresh
// start: the sweeper has its full staleness window to produce a first run.
func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{
		staleAfter: DefaultStaleAfter,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.lastRun = t.now()
	return t
}

// ReportSuccess records a successful run.
func (t *Tracker) ReportSuccess() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastRun = t.now()
	t.lastErr = ""
}

// ReportError records a failed run with its detail.
func (t *Tracker) ReportError(detail string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastRun = t.now()
	t.lastErr = detail
}

// Check returns the current health status. Unhealthy when the last report
// was an error, or when no successful run arrived within the window.
func (t *Tracker) Check() Status {
	t.mu.Lock()
	defer t.mu.Unlock()

	sinceLast := t.now().Sub(t.lastRun)
	if sinceLast > t.staleAfter {
		return Status{
			Healthy: false,
			Detail:  fmt.Sprintf("sweeper has not run in %.1f minutes", sinceLast.Minutes()),
		}
	}
	if t.lastErr != "" {
		return Status{
			Healthy: false,
			Detail:  fmt.Sprintf("sweeper reported error: %s", t.lastErr),
		}
	}
	return Status{
		Healthy: true,
		Detail:  fmt.Sprintf("sweeper last ran %.1f minutes ago", sinceLast.Minutes()),
	}
}
