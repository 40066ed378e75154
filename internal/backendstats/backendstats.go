// Package backendstats tracks per-backend connection and outcome counters
// for the informational admin status endpoint. Unlike the teacher's
// HealthChecker, which actively probed endpoints on a timer, this tracker
// is purely passive: the Router reports an attempt starting and finishing,
// and nothing here feeds back into routing decisions (spec.md's routing
// stays ordered-list + retry, unaffected by these counters).
package backendstats

import (
	"sync"
	"time"
)

// Status summarizes one backend's recent traffic.
type Status struct {
	Name               string     `json:"name"`
	CurrentConnections int        `json:"current_connections"`
	TotalRequests      int64      `json:"total_requests"`
	TotalErrors        int64      `json:"total_errors"`
	LastError          string     `json:"last_error,omitempty"`
	LastCheckTime      *time.Time `json:"last_check_time,omitempty"`
	AvgLatencyMs       float64    `json:"avg_latency_ms"`
}

type counters struct {
	mu                 sync.Mutex
	currentConnections int
	totalRequests      int64
	totalErrors        int64
	totalLatencyMs     float64
	lastError          string
	lastCheckTime      time.Time
}

func (c *counters) snapshot(name string) Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	avg := 0.0
	if c.totalRequests > 0 {
		avg = c.totalLatencyMs / float64(c.totalRequests)
	}
	var last *time.Time
	if !c.lastCheckTime.IsZero() {
		t := c.lastCheckTime
		last = &t
	}
	return Status{
		Name:               name,
		CurrentConnections: c.currentConnections,
		TotalRequests:      c.totalRequests,
		TotalErrors:        c.totalErrors,
		LastError:          c.lastError,
		LastCheckTime:      last,
		AvgLatencyMs:       avg,
	}
}

// Tracker holds one counters struct per backend name, created on first use.
type Tracker struct {
	mu     sync.Mutex
	byName map[string]*counters
}

// New creates an empty Tracker.
func New() *Tracker {
	return &Tracker{byName: map[string]*counters{}}
}

func (t *Tracker) get(name string) *counters {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.byName[name]
	if !ok {
		c = &counters{}
		t.byName[name] = c
	}
	return c
}

// AttemptStarted records a new in-flight attempt against name.
func (t *Tracker) AttemptStarted(name string) {
	c := t.get(name)
	c.mu.Lock()
	c.currentConnections++
	c.mu.Unlock()
}

// AttemptFinished records an attempt's outcome and latency. errMsg is
// empty on success.
func (t *Tracker) AttemptFinished(name string, errMsg string, latencyMs float64) {
	c := t.get(name)
	c.mu.Lock()
	c.currentConnections--
	c.totalRequests++
	c.totalLatencyMs += latencyMs
	c.lastCheckTime = time.Now()
	if errMsg != "" {
		c.totalErrors++
		c.lastError = errMsg
	}
	c.mu.Unlock()
}

// Snapshot returns a copy-safe status for every backend seen so far, in
// no particular order.
func (t *Tracker) Snapshot() []Status {
	t.mu.Lock()
	names := make([]string, 0, len(t.byName))
	for name := range t.byName {
		names = append(names, name)
	}
	t.mu.Unlock()

	out := make([]Status, 0, len(names))
	for _, name := range names {
		out = append(out, t.get(name).snapshot(name))
	}
	return out
}
