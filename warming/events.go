package warming

import (
	"time"

	"encore.dev/pubsub"
)

// WarmCompletedTopic mirrors invalidation.CacheEvictionTopic: a Warmer
// publishes one WarmCompletedEvent per RunOnce call so other processes (a
// monitoring dashboard, a deploy pipeline waiting on cache readiness) can
// react without polling Metrics directly.
var WarmCompletedTopic = pubsub.NewTopic[*WarmCompletedEvent](
	"cache-warm-completed",
	pubsub.TopicConfig{
		DeliveryGuarantee: pubsub.AtLeastOnce,
	},
)

// WarmCompletedEvent reports the outcome of one RunOnce call.
type WarmCompletedEvent struct {
	Considered  int           `json:"considered"`
	Warmed      int           `json:"warmed"`
	Failed      int           `json:"failed"`
	Skipped     int           `json:"skipped"`
	Duration    time.Duration `json:"duration"`
	CompletedAt time.Time     `json:"completed_at"`
}
