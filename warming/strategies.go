package warming

import (
	"context"
	"sort"
)

// WarmTask is one planned unit of warming work: an item, the id the
// coordinator already knows it by, and (for Fresh-but-near-expiry items)
// when it currently expires — 0 for a Miss/Stale record.
type WarmTask struct {
	ID        string
	Item      Item
	ExpiresAt int64
}

// Strategy orders a candidate set of WarmTasks before they're handed to the
// worker pool. Plan never drops or adds tasks — RunOnce already filtered the
// candidate set down to what needs warming; Strategy only decides order.
type Strategy interface {
	Name() string
	Plan(ctx context.Context, candidates []WarmTask) ([]WarmTask, error)
}

// NearestExpiryStrategy warms the item closest to falling out of cache
// first, so a bounded worker pool spends its budget on the records most at
// risk of going cold before the ones with more runway.
type NearestExpiryStrategy struct{}

func NewNearestExpiryStrategy() Strategy {
	return &NearestExpiryStrategy{}
}

func (s *NearestExpiryStrategy) Name() string {
	return "nearest-expiry"
}

// Plan sorts candidates so Miss/Stale records (ExpiresAt 0) and the
// soonest-to-expire Fresh records run first — the records most at risk of
// going cold get the worker pool's attention before ones with more runway.
func (s *NearestExpiryStrategy) Plan(ctx context.Context, candidates []WarmTask) ([]WarmTask, error) {
	planned := make([]WarmTask, len(candidates))
	copy(planned, candidates)

	sort.SliceStable(planned, func(i, j int) bool {
		if planned[i].ExpiresAt != planned[j].ExpiresAt {
			return planned[i].ExpiresAt < planned[j].ExpiresAt
		}
		return planned[i].ID < planned[j].ID
	})
	return planned, nil
}
