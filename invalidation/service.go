// Package invalidation implements explicit eviction of cache records — the
// "(b) explicit eviction" lifecycle event from the cache record data model —
// with an immutable audit trail of who evicted what and when. A worker
// running standalone never needs this package: the core read/write path in
// cachecoordinator is self-sufficient. It exists for callers that want to
// force a refetch ahead of natural TTL expiry, and for multi-instance
// deployments that want eviction fanned out via pub/sub.
package invalidation

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"encore.dev/pubsub"
	"encore.dev/storage/sqldb"

	"encore.app/cachecoordinator"
)

//encore:service
type Service struct {
	coordinator    *cachecoordinator.Coordinator
	patternMatcher *PatternMatcher
	auditLogger    AuditLoggerInterface
	metrics        *Metrics
	limiter        *callerLimiter
}

// callerEvictionRPS/callerEvictionBurst bound how fast a single TriggeredBy
// caller can issue eviction requests, independent of how many ids or how
// broad a pattern each request carries.
const (
	callerEvictionRPS   = 5.0
	callerEvictionBurst = 10
)

// AuditLoggerInterface defines the interface for audit logging operations.
type AuditLoggerInterface interface {
	Insert(ctx context.Context, log AuditLog) error
	GetRecent(ctx context.Context, limit, offset int, patternFilter string) ([]AuditLog, error)
	GetCount(ctx context.Context, patternFilter string) (int, error)
	GetByRequestID(ctx context.Context, requestID string) ([]AuditLog, error)
}

// Metrics tracks eviction performance counters.
type Metrics struct {
	TotalEvictions   atomic.Int64
	IDEvictions      atomic.Int64
	PatternEvictions atomic.Int64
	AuditWrites      atomic.Int64
	PubSubPublishes  atomic.Int64
	Errors           atomic.Int64
	RateLimited      atomic.Int64
}

var db = sqldb.Named("invalidation_db")

func initService() (*Service, error) {
	auditLogger, err := NewAuditLogger(db)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audit logger: %w", err)
	}

	coord, err := cachecoordinator.NewFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to bind cache coordinator: %w", err)
	}

	return &Service{
		coordinator:    coord,
		patternMatcher: NewPatternMatcher(),
		auditLogger:    auditLogger,
		metrics:        &Metrics{},
		limiter:        newCallerLimiter(callerEvictionRPS, callerEvictionBurst),
	}, nil
}

// noopAuditLogger discards audit entries. It backs NewService when the
// caller has no sqldb database to hand in — useful for embedding the
// eviction path in a process that doesn't run the audit-log migration.
type noopAuditLogger struct{}

func newNoopAuditLogger() AuditLoggerInterface { return noopAuditLogger{} }

func (noopAuditLogger) Insert(ctx context.Context, log AuditLog) error { return nil }

func (noopAuditLogger) GetRecent(ctx context.Context, limit, offset int, patternFilter string) ([]AuditLog, error) {
	return nil, nil
}

func (noopAuditLogger) GetCount(ctx context.Context, patternFilter string) (int, error) {
	return 0, nil
}

func (noopAuditLogger) GetByRequestID(ctx context.Context, requestID string) ([]AuditLog, error) {
	return nil, nil
}

// NewService builds a Service bound to an already-constructed coordinator,
// with a no-op audit logger that records nothing. Callers outside the
// Encore runtime (tests, other in-process embedders) use this instead of the package-level init path, which always
// binds to the environment-configured global coordinator and a real
// sqldb-backed audit logger.
func NewService(coordinator *cachecoordinator.Coordinator) *Service {
	return &Service{
		coordinator:    coordinator,
		patternMatcher: NewPatternMatcher(),
		auditLogger:    newNoopAuditLogger(),
		metrics:        &Metrics{},
		limiter:        newCallerLimiter(callerEvictionRPS, callerEvictionBurst),
	}
}

var svc *Service

func init() {
	var err error
	svc, err = initService()
	if err != nil {
		panic(fmt.Sprintf("failed to initialize invalidation service: %v", err))
	}
}

// EvictionEvent is broadcast to every process sharing this deployment's
// small-table/object-store pair so in-process caches elsewhere (if any)
// learn of the eviction. A single-process worker never subscribes to this;
// it evicts directly and returns.
type EvictionEvent struct {
	Pattern     string    `json:"pattern"`      // empty for exact-id eviction
	MatchedIDs  []string  `json:"matched_ids"`
	TriggeredBy string    `json:"triggered_by"` // "caller", "admin", "warming"
	Timestamp   time.Time `json:"timestamp"`
	RequestID   string    `json:"request_id"`
}

var CacheEvictionTopic = pubsub.NewTopic[*EvictionEvent](
	"cache-eviction",
	pubsub.TopicConfig{
		DeliveryGuarantee: pubsub.AtLeastOnce,
	},
)

type EvictIDsRequest struct {
	IDs         []string `json:"ids"`
	TriggeredBy string   `json:"triggered_by"`
	RequestID   string   `json:"request_id"`
}

type EvictIDsResponse struct {
	Success      bool      `json:"success"`
	EvictedCount int       `json:"evicted_count"`
	IDs          []string  `json:"ids"`
	RequestID    string    `json:"request_id"`
	EvictedAt    time.Time `json:"evicted_at"`
}

type EvictPatternRequest struct {
	// Pattern is a glob or regex matched against fingerprint ids the
	// caller already knows about (e.g. "3f9c*"). Fingerprints
	// themselves are opaque hex; pattern eviction is only useful when the
	// caller tracks its own ids-by-profile index and hands it in via KnownIDs.
	Pattern     string   `json:"pattern"`
	KnownIDs    []string `json:"known_ids"`
	TriggeredBy string   `json:"triggered_by"`
	RequestID   string   `json:"request_id"`
}

type EvictPatternResponse struct {
	Success      bool      `json:"success"`
	Pattern      string    `json:"pattern"`
	MatchedIDs   []string  `json:"matched_ids"`
	EvictedCount int       `json:"evicted_count"`
	RequestID    string    `json:"request_id"`
	EvictedAt    time.Time `json:"evicted_at"`
}

type GetAuditLogsRequest struct {
	Limit   int    `json:"limit"`
	Offset  int    `json:"offset"`
	Pattern string `json:"pattern,omitempty"`
}

type GetAuditLogsResponse struct {
	Logs       []AuditLog `json:"logs"`
	TotalCount int        `json:"total_count"`
	HasMore    bool       `json:"has_more"`
}

type MetricsResponse struct {
	TotalEvictions       int64   `json:"total_evictions"`
	IDEvictions          int64   `json:"id_evictions"`
	PatternEvictions     int64   `json:"pattern_evictions"`
	AuditWrites          int64   `json:"audit_writes"`
	PubSubPublishes      int64   `json:"pubsub_publishes"`
	Errors               int64   `json:"errors"`
	RateLimited          int64   `json:"rate_limited"`
	PatternEvictionRatio float64 `json:"pattern_eviction_ratio"`
}

// EvictIDs evicts specific cache record ids. This is the direct analogue of
// the data model's "(b) explicit eviction" lifecycle event.
//
//encore:api public method=POST path=/invalidate/ids
func EvictIDs(ctx context.Context, req *EvictIDsRequest) (*EvictIDsResponse, error) {
	if svc == nil {
		return nil, errors.New("service not initialized")
	}
	return svc.EvictIDs(ctx, req)
}

func (s *Service) EvictIDs(ctx context.Context, req *EvictIDsRequest) (*EvictIDsResponse, error) {
	startTime := time.Now()

	if len(req.IDs) == 0 {
		return nil, errors.New("ids cannot be empty")
	}
	if req.TriggeredBy == "" {
		req.TriggeredBy = "unknown"
	}
	if req.RequestID == "" {
		req.RequestID = generateRequestID()
	}
	if !s.limiter.allow(req.TriggeredBy) {
		s.metrics.RateLimited.Add(1)
		return nil, fmt.Errorf("eviction rate limit exceeded for caller %q", req.TriggeredBy)
	}

	uniqueIDs := deduplicateIDs(req.IDs)
	for _, id := range uniqueIDs {
		if err := s.coordinator.Evict(ctx, id); err != nil {
			s.metrics.Errors.Add(1)
		}
	}

	event := &EvictionEvent{
		MatchedIDs:  uniqueIDs,
		TriggeredBy: req.TriggeredBy,
		Timestamp:   time.Now(),
		RequestID:   req.RequestID,
	}
	if _, err := CacheEvictionTopic.Publish(ctx, event); err != nil {
		s.metrics.Errors.Add(1)
	} else {
		s.metrics.PubSubPublishes.Add(1)
	}

	go s.writeAudit(formatIDsAsPattern(uniqueIDs), uniqueIDs, req.TriggeredBy, req.RequestID, event.Timestamp, startTime)

	s.metrics.TotalEvictions.Add(1)
	s.metrics.IDEvictions.Add(1)

	return &EvictIDsResponse{
		Success:      true,
		EvictedCount: len(uniqueIDs),
		IDs:          uniqueIDs,
		RequestID:    req.RequestID,
		EvictedAt:    event.Timestamp,
	}, nil
}

// EvictPattern evicts every id in KnownIDs that matches Pattern. Since
// fingerprints are opaque, pattern eviction only works against a
// caller-maintained index of ids, unlike key-addressed caches where the
// cache itself enumerates matching keys.
//
//encore:api public method=POST path=/invalidate/pattern
func EvictPattern(ctx context.Context, req *EvictPatternRequest) (*EvictPatternResponse, error) {
	if svc == nil {
		return nil, errors.New("service not initialized")
	}
	return svc.EvictPattern(ctx, req)
}

func (s *Service) EvictPattern(ctx context.Context, req *EvictPatternRequest) (*EvictPatternResponse, error) {
	startTime := time.Now()

	if req.Pattern == "" {
		return nil, errors.New("pattern cannot be empty")
	}
	if req.TriggeredBy == "" {
		req.TriggeredBy = "unknown"
	}
	if req.RequestID == "" {
		req.RequestID = generateRequestID()
	}
	if !s.limiter.allow(req.TriggeredBy) {
		s.metrics.RateLimited.Add(1)
		return nil, fmt.Errorf("eviction rate limit exceeded for caller %q", req.TriggeredBy)
	}

	matched := s.patternMatcher.Match(req.Pattern, req.KnownIDs)
	for _, id := range matched {
		if err := s.coordinator.Evict(ctx, id); err != nil {
			s.metrics.Errors.Add(1)
		}
	}

	event := &EvictionEvent{
		Pattern:     req.Pattern,
		MatchedIDs:  matched,
		TriggeredBy: req.TriggeredBy,
		Timestamp:   time.Now(),
		RequestID:   req.RequestID,
	}
	if _, err := CacheEvictionTopic.Publish(ctx, event); err != nil {
		s.metrics.Errors.Add(1)
	} else {
		s.metrics.PubSubPublishes.Add(1)
	}

	go s.writeAudit(req.Pattern, matched, req.TriggeredBy, req.RequestID, event.Timestamp, startTime)

	s.metrics.TotalEvictions.Add(1)
	s.metrics.PatternEvictions.Add(1)

	return &EvictPatternResponse{
		Success:      true,
		Pattern:      req.Pattern,
		MatchedIDs:   matched,
		EvictedCount: len(matched),
		RequestID:    req.RequestID,
		EvictedAt:    event.Timestamp,
	}, nil
}

func (s *Service) writeAudit(pattern string, ids []string, triggeredBy, requestID string, ts time.Time, startTime time.Time) {
	auditLog := AuditLog{
		Pattern:     pattern,
		IDs:         ids,
		TriggeredBy: triggeredBy,
		Timestamp:   ts,
		RequestID:   requestID,
		Latency:     time.Since(startTime).Milliseconds(),
	}
	if err := s.auditLogger.Insert(context.Background(), auditLog); err != nil {
		s.metrics.Errors.Add(1)
	} else {
		s.metrics.AuditWrites.Add(1)
	}
}

// GetAuditLogs retrieves eviction audit history with pagination.
//
//encore:api public method=GET path=/audit/logs
func GetAuditLogs(ctx context.Context, req *GetAuditLogsRequest) (*GetAuditLogsResponse, error) {
	if svc == nil {
		return nil, errors.New("service not initialized")
	}
	return svc.GetAuditLogs(ctx, req)
}

func (s *Service) GetAuditLogs(ctx context.Context, req *GetAuditLogsRequest) (*GetAuditLogsResponse, error) {
	if req.Limit <= 0 {
		req.Limit = 50
	}
	if req.Limit > 1000 {
		req.Limit = 1000
	}
	if req.Offset < 0 {
		req.Offset = 0
	}

	logs, err := s.auditLogger.GetRecent(ctx, req.Limit+1, req.Offset, req.Pattern)
	if err != nil {
		s.metrics.Errors.Add(1)
		return nil, fmt.Errorf("failed to fetch audit logs: %w", err)
	}

	hasMore := len(logs) > req.Limit
	if hasMore {
		logs = logs[:req.Limit]
	}

	totalCount, err := s.auditLogger.GetCount(ctx, req.Pattern)
	if err != nil {
		totalCount = len(logs)
	}

	return &GetAuditLogsResponse{
		Logs:       logs,
		TotalCount: totalCount,
		HasMore:    hasMore,
	}, nil
}

// GetMetrics returns the eviction service's counters.
//
//encore:api public method=GET path=/invalidate/metrics
func GetMetrics(ctx context.Context) (*MetricsResponse, error) {
	if svc == nil {
		return nil, errors.New("service not initialized")
	}
	return svc.GetMetrics(ctx)
}

func (s *Service) GetMetrics(ctx context.Context) (*MetricsResponse, error) {
	total := s.metrics.TotalEvictions.Load()
	pattern := s.metrics.PatternEvictions.Load()

	ratio := 0.0
	if total > 0 {
		ratio = float64(pattern) / float64(total)
	}

	return &MetricsResponse{
		TotalEvictions:       total,
		IDEvictions:          s.metrics.IDEvictions.Load(),
		PatternEvictions:     pattern,
		AuditWrites:          s.metrics.AuditWrites.Load(),
		PubSubPublishes:      s.metrics.PubSubPublishes.Load(),
		Errors:               s.metrics.Errors.Load(),
		RateLimited:          s.metrics.RateLimited.Load(),
		PatternEvictionRatio: ratio,
	}, nil
}

func deduplicateIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	result := make([]string, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			result = append(result, id)
		}
	}
	return result
}

func formatIDsAsPattern(ids []string) string {
	if len(ids) == 0 {
		return ""
	}
	if len(ids) == 1 {
		return ids[0]
	}
	return fmt.Sprintf("%d ids", len(ids))
}

func generateRequestID() string {
	return fmt.Sprintf("evict-%d", time.Now().UnixNano())
}
