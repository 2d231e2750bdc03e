package monitoring

import (
	"context"
	"sync"
)

//encore:service
type Service struct {
	collector *Collector
}

var (
	once sync.Once
	svc  *Service
)

func initService() *Service {
	return &Service{collector: NewCollector()}
}

func init() {
	once.Do(func() {
		svc = initService()
	})
}

// SharedCollector returns the process-wide Collector so other packages
// (wired in cmd/cacheapi) can register it as their Observer.
func SharedCollector() *Collector {
	return svc.collector
}

type SnapshotResponse struct {
	Hits            int64   `json:"hits"`
	Misses          int64   `json:"misses"`
	StaleServed     int64   `json:"stale_served"`
	Bypassed        int64   `json:"bypassed"`
	DecryptFailures int64   `json:"decrypt_failures"`
	RedirectCount   int64   `json:"redirect_count"`
	TimeoutCount    int64   `json:"timeout_count"`
	HitRatio        float64 `json:"hit_ratio"`
}

// GetSnapshot returns the current process-wide counters.
//
//encore:api public method=GET path=/monitoring/snapshot
func GetSnapshot(ctx context.Context) (*SnapshotResponse, error) {
	return svc.GetSnapshot(ctx)
}

func (s *Service) GetSnapshot(ctx context.Context) (*SnapshotResponse, error) {
	snap := s.collector.Snapshot()
	return &SnapshotResponse{
		Hits:            snap.Hits,
		Misses:          snap.Misses,
		StaleServed:     snap.StaleServed,
		Bypassed:        snap.Bypassed,
		DecryptFailures: snap.DecryptFailures,
		RedirectCount:   snap.RedirectCount,
		TimeoutCount:    snap.TimeoutCount,
		HitRatio:        snap.HitRatio,
	}, nil
}
