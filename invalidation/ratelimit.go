package invalidation

import (
	"sync"
	"sync/atomic"
	"time"
)

// callerLimiter is a per-TriggeredBy token bucket guarding EvictIDs and
// EvictPattern: a single caller issuing a pattern eviction storm (or a buggy
// warming loop looping EvictIDs) can otherwise walk every record in the
// small-item table. Each distinct TriggeredBy value gets its own bucket, so
// one noisy caller never throttles another.
type callerLimiter struct {
	refillRate float64
	bucketSize int64
	buckets    sync.Map // TriggeredBy -> *bucket
}

type bucket struct {
	tokens     int64
	lastRefill int64
	maxTokens  int64
	refillRate float64
}

func newCallerLimiter(refillRate float64, bucketSize int64) *callerLimiter {
	return &callerLimiter{refillRate: refillRate, bucketSize: bucketSize}
}

// allow reports whether the given caller may evict right now, consuming one
// token if so. A nil limiter (a Service built without one) always allows. An
// empty key is never throttled; EvictIDs and EvictPattern replace an empty
// TriggeredBy with "unknown" before calling allow, so such requests share
// the "unknown" bucket.
func (l *callerLimiter) allow(key string) bool {
	if l == nil || key == "" {
		return true
	}
	b := l.getOrCreate(key)
	return b.tryConsume(1)
}

func (l *callerLimiter) getOrCreate(key string) *bucket {
	if b, ok := l.buckets.Load(key); ok {
		return b.(*bucket)
	}
	fresh := &bucket{
		tokens:     l.bucketSize,
		lastRefill: time.Now().UnixNano(),
		maxTokens:  l.bucketSize,
		refillRate: l.refillRate,
	}
	actual, _ := l.buckets.LoadOrStore(key, fresh)
	return actual.(*bucket)
}

func (b *bucket) tryConsume(n int64) bool {
	now := time.Now().UnixNano()
	for {
		current := atomic.LoadInt64(&b.tokens)
		last := atomic.LoadInt64(&b.lastRefill)

		elapsed := time.Duration(now - last)
		refilled := current + int64(b.refillRate*elapsed.Seconds())
		if refilled > b.maxTokens {
			refilled = b.maxTokens
		}
		if refilled < n {
			return false
		}
		if atomic.CompareAndSwapInt64(&b.tokens, current, refilled-n) {
			atomic.StoreInt64(&b.lastRefill, now)
			return true
		}
	}
}
