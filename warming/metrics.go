package warming

import "go.uber.org/atomic"

// Metrics counts the outcome of every RunOnce call against a Warmer,
// following the same typed-atomic-counter shape as cachecoordinator.Counters.
type Metrics struct {
	Warmed       atomic.Int64
	SkippedFresh atomic.Int64
	Failures     atomic.Int64
	RateLimited  atomic.Int64
	PlanErrors   atomic.Int64
}

// MetricsSnapshot is a plain-value copy safe to serialize.
type MetricsSnapshot struct {
	Warmed       int64
	SkippedFresh int64
	Failures     int64
	RateLimited  int64
	PlanErrors   int64
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Warmed:       m.Warmed.Load(),
		SkippedFresh: m.SkippedFresh.Load(),
		Failures:     m.Failures.Load(),
		RateLimited:  m.RateLimited.Load(),
		PlanErrors:   m.PlanErrors.Load(),
	}
}
