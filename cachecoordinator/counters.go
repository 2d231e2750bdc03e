package cachecoordinator

import "go.uber.org/atomic"

// Counters are process-wide, best-effort observability counters. They are
// exposed via Snapshot; they never gate behavior.
type Counters struct {
	Hits             atomic.Int64
	Misses           atomic.Int64
	StaleServed      atomic.Int64
	DecryptFailures  atomic.Int64
	StorageFailures  atomic.Int64
}

// CountersSnapshot is a point-in-time, plain-value copy of Counters.
type CountersSnapshot struct {
	Hits            int64
	Misses          int64
	StaleServed     int64
	DecryptFailures int64
	StorageFailures int64
}

func (c *Counters) Snapshot() CountersSnapshot {
	return CountersSnapshot{
		Hits:            c.Hits.Load(),
		Misses:          c.Misses.Load(),
		StaleServed:     c.StaleServed.Load(),
		DecryptFailures: c.DecryptFailures.Load(),
		StorageFailures: c.StorageFailures.Load(),
	}
}
