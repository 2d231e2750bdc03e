// Package monitoring is a hand-rolled, per-process counters struct in the
// source's own idiom (cachemanager.Metrics, invalidation.Metrics): atomic
// counters for the outcomes that matter to a cache worker, exposed via
// Snapshot() and, when wired under Encore, a read-only API endpoint.
// Deliberately not a Prometheus exporter, sliding-window aggregator, anomaly
// detector, or SSE dashboard — none of those appear as a real dependency
// anywhere in the example pack for this shape of service.
package monitoring

import "go.uber.org/atomic"

// Collector implements cacheablefetcher.Observer and httpengine.Observer so
// it can be wired directly onto a Fetcher/Engine pair without either of
// those packages importing monitoring.
type Collector struct {
	Hits            atomic.Int64
	Misses          atomic.Int64
	StaleServed     atomic.Int64
	Bypassed        atomic.Int64
	DecryptFailures atomic.Int64
	RedirectCount   atomic.Int64
	TimeoutCount    atomic.Int64
}

// NewCollector returns a zeroed Collector.
func NewCollector() *Collector {
	return &Collector{}
}

func (c *Collector) ObserveHit()         { c.Hits.Add(1) }
func (c *Collector) ObserveMiss()        { c.Misses.Add(1) }
func (c *Collector) ObserveStaleServed() { c.StaleServed.Add(1) }
func (c *Collector) ObserveBypass()      { c.Bypassed.Add(1) }
func (c *Collector) ObserveRedirect()    { c.RedirectCount.Add(1) }
func (c *Collector) ObserveTimeout()     { c.TimeoutCount.Add(1) }

// ObserveDecryptFailure counts one decrypt failure. cachecoordinator has no
// Observer hook and counts its decrypt failures only in its own
// Counters.DecryptFailures; nothing in this module calls this method, so
// DecryptFailures here stays zero unless an embedder calls it.
func (c *Collector) ObserveDecryptFailure() { c.DecryptFailures.Add(1) }

// Snapshot is a plain-value copy of the counters, safe to serialize.
type Snapshot struct {
	Hits            int64   `json:"hits"`
	Misses          int64   `json:"misses"`
	StaleServed     int64   `json:"stale_served"`
	Bypassed        int64   `json:"bypassed"`
	DecryptFailures int64   `json:"decrypt_failures"`
	RedirectCount   int64   `json:"redirect_count"`
	TimeoutCount    int64   `json:"timeout_count"`
	HitRatio        float64 `json:"hit_ratio"`
}

// Snapshot computes the current counter values plus the derived hit ratio
// (hits / (hits + misses), 0 when there have been no lookups yet).
func (c *Collector) Snapshot() Snapshot {
	hits := c.Hits.Load()
	misses := c.Misses.Load()

	ratio := 0.0
	if total := hits + misses; total > 0 {
		ratio = float64(hits) / float64(total)
	}

	return Snapshot{
		Hits:            hits,
		Misses:          misses,
		StaleServed:     c.StaleServed.Load(),
		Bypassed:        c.Bypassed.Load(),
		DecryptFailures: c.DecryptFailures.Load(),
		RedirectCount:   c.RedirectCount.Load(),
		TimeoutCount:    c.TimeoutCount.Load(),
		HitRatio:        ratio,
	}
}
