// Package metrics provides process-wide job counters. Counters is injected
// into the orchestrator rather than living as a package global so tests get
// isolated instances.
package metrics

import "sync"

// Counters tracks submitted/succeeded/failed job totals. Safe for
// concurrent use; Snapshot returns an eventually-consistent view.
type Counters struct {
	mu        sync.Mutex
	submitted int64
	succeeded int64
	failed    int64
}

// NewCounters creates a zeroed Counters.
func NewCounters() *Counters {
	return &Counters{}
}

func (c *Counters) IncSubmitted() {
	c.mu.Lock()
	c.submitted++
	c.mu.Unlock()
}

func (c *Counters) IncSucceeded() {
	c.mu.Lock()
	c.succeeded++
	c.mu.Unlock()
}

func (c *Counters) IncFailed() {
	c.mu.Lock()
	c.failed++
	c.mu.Unlock()
}

// Snapshot returns the current counter values keyed by their metric names.
func (c *Counters) Snapshot() map[string]int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return map[string]int64{
		"jobs_submitted": c.submitted,
		"jobs_succeeded": c.succeeded,
		"jobs_failed":    c.failed,
	}
}
