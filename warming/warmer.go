// Package warming proactively refills cache records nearing expiry for a
// caller-supplied set of (Connection, CacheProfile) pairs, so a worker serves
// a fresh record instead of falling through to a cold miss or a stale-serve
// extension. It is explicitly not a scheduler: Warmer.RunOnce is called by
// the host's own timer (an Encore cron job in cmd/cacheapi, a simple ticker
// elsewhere, or on-demand) and does not own a schedule itself.
//
// Concurrency and origin protection mirror the source warming/service.go:
// a bounded worker pool processes items concurrently, a golang.org/x/time/rate
// limiter caps requests reaching the origin, and dedup comes for free from
// cacheablefetcher.Fetcher's singleflight.Group — two RunOnce calls warming
// the same id at the same time coalesce onto one upstream fetch.
package warming

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"encore.app/cacheablefetcher"
	"encore.app/cachecoordinator"
	"encore.app/connection"
	"encore.app/internal/obslog"
)

// Item is one (Connection, CacheProfile) pair a caller wants kept warm.
type Item struct {
	Conn    *connection.Connection
	Profile connection.CacheProfile
}

// Config controls a Warmer's origin protection and concurrency.
type Config struct {
	// MaxOriginRPS caps the rate of upstream requests the warmer itself
	// issues. Zero disables warming entirely (RunOnce becomes a no-op);
	// use a large value to effectively disable limiting.
	MaxOriginRPS float64
	// Burst is the token bucket burst size for MaxOriginRPS.
	Burst int
	// Concurrency is the number of worker goroutines draining the task queue.
	Concurrency int
	// NearExpiryWindow: a Fresh record within this long of ExpiresAt is
	// treated as warm-worthy, not skipped. Records already Stale or Miss
	// are always warmed.
	NearExpiryWindow time.Duration
}

func (c Config) withDefaults() Config {
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	if c.Burst <= 0 {
		c.Burst = 1
	}
	if c.NearExpiryWindow <= 0 {
		c.NearExpiryWindow = 30 * time.Second
	}
	return c
}

// Warmer runs warming passes over a caller-supplied item set.
type Warmer struct {
	fetcher     *cacheablefetcher.Fetcher
	coordinator *cachecoordinator.Coordinator
	limiter     *rate.Limiter
	strategy    Strategy
	config      Config
	metrics     *Metrics
}

// New binds a Warmer to the same Fetcher/Coordinator pair a request path
// uses, so a warmed record is indistinguishable from one written by a
// regular cache miss.
func New(fetcher *cacheablefetcher.Fetcher, coordinator *cachecoordinator.Coordinator, cfg Config) *Warmer {
	cfg = cfg.withDefaults()
	return &Warmer{
		fetcher:     fetcher,
		coordinator: coordinator,
		limiter:     rate.NewLimiter(rate.Limit(cfg.MaxOriginRPS), cfg.Burst),
		strategy:    NewNearestExpiryStrategy(),
		config:      cfg,
		metrics:     &Metrics{},
	}
}

// Metrics exposes this Warmer's counters (see Metrics.Snapshot).
func (w *Warmer) Metrics() *Metrics {
	return w.metrics
}

// RunOnce classifies every item (skip/warm), plans an execution order via
// the configured Strategy, then drains the resulting tasks through a bounded
// worker pool. It returns once every task has finished or the context is
// canceled.
func (w *Warmer) RunOnce(ctx context.Context, items []Item) (Summary, error) {
	if w.config.MaxOriginRPS <= 0 {
		return Summary{}, nil
	}
	start := time.Now()
	before := w.metrics.Snapshot()

	candidates := make([]WarmTask, 0, len(items))
	for _, item := range items {
		id, err := w.fetcher.ID(item.Conn, item.Profile)
		if err != nil {
			w.metrics.PlanErrors.Add(1)
			continue
		}

		needsWarm, expiresAt := w.classify(ctx, id)
		if !needsWarm {
			w.metrics.SkippedFresh.Add(1)
			continue
		}

		candidates = append(candidates, WarmTask{ID: id, Item: item, ExpiresAt: expiresAt})
	}

	planned, err := w.strategy.Plan(ctx, candidates)
	if err != nil {
		return Summary{}, err
	}

	pool := newWorkerPool(w, w.config.Concurrency)
	pool.run(ctx, planned)

	after := w.metrics.Snapshot()
	summary := Summary{
		Considered: len(items),
		Warmed:     int(after.Warmed - before.Warmed),
		Failed:     int(after.Failures - before.Failures),
		Skipped:    int(after.SkippedFresh - before.SkippedFresh),
	}

	if _, err := WarmCompletedTopic.Publish(ctx, &WarmCompletedEvent{
		Considered:  summary.Considered,
		Warmed:      summary.Warmed,
		Failed:      summary.Failed,
		Skipped:     summary.Skipped,
		Duration:    time.Since(start),
		CompletedAt: time.Now(),
	}); err != nil {
		obslog.Warn("failed to publish warm-completed event", obslog.Fields{"error": err.Error()})
	}

	return summary, nil
}

// classify reports whether id needs warming right now (Miss, Stale, or Fresh
// but inside the near-expiry window) and, when it does, the ExpiresAt a
// Strategy can sort on. A record with no ExpiresAt yet (Miss) sorts as the
// most urgent — expiresAt 0.
func (w *Warmer) classify(ctx context.Context, id string) (needsWarm bool, expiresAt int64) {
	record, status, err := w.coordinator.Read(ctx, id)
	if err != nil || status != cachecoordinator.Fresh {
		return true, 0
	}
	if time.Until(time.Unix(record.ExpiresAt, 0)) > w.config.NearExpiryWindow {
		return false, record.ExpiresAt
	}
	return true, record.ExpiresAt
}

// warmTask executes one task: acquire a rate-limit token, then fetch. A
// failed Wait (context canceled, or a non-blocking reservation that would
// exceed the deadline) counts as rate-limited, not as an origin failure.
// A Fresh near-expiry record is evicted before the fetch so that GetData
// reaches the origin instead of returning the cached copy; if that fetch
// fails, the record stays evicted.
func (w *Warmer) warmTask(ctx context.Context, task WarmTask) {
	if err := w.limiter.Wait(ctx); err != nil {
		w.metrics.RateLimited.Add(1)
		return
	}
	if task.ExpiresAt > 0 {
		_ = w.coordinator.Evict(ctx, task.ID)
	}

	result, err := w.fetcher.GetData(ctx, task.Item.Conn, task.Item.Profile)
	if err != nil {
		w.metrics.Failures.Add(1)
		obslog.Warn("warming fetch failed", obslog.Fields{"id": task.ID, "host": task.Item.Conn.Host, "error": err.Error()})
		return
	}
	if !result.Response.Success {
		w.metrics.Failures.Add(1)
		return
	}
	w.metrics.Warmed.Add(1)
}

// Summary is RunOnce's result: what happened to the supplied item set.
type Summary struct {
	Considered int
	Warmed     int
	Failed     int
	Skipped    int
}
