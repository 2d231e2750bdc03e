package invalidation

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"encore.app/cachecoordinator"
	"encore.app/connection"
	"encore.app/fingerprint"
	"encore.app/storage"
)

// MockAuditLogger provides a test implementation of audit logging.
type MockAuditLogger struct {
	mu   sync.Mutex
	logs []AuditLog
}

func NewMockAuditLogger() *MockAuditLogger {
	return &MockAuditLogger{
		logs: make([]AuditLog, 0),
	}
}

func (m *MockAuditLogger) Insert(ctx context.Context, log AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	
	log.ID = int64(len(m.logs) + 1)
	m.logs = append(m.logs, log)
	return nil
}

func (m *MockAuditLogger) GetRecent(ctx context.Context, limit, offset int, patternFilter string) ([]AuditLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Filter by pattern if provided
	filtered := make([]AuditLog, 0)
	for i := len(m.logs) - 1; i >= 0; i-- {
		log := m.logs[i]
		if patternFilter == "" || log.Pattern == patternFilter {
			filtered = append(filtered, log)
		}
	}

	// Apply pagination
	if offset >= len(filtered) {
		return []AuditLog{}, nil
	}

	end := offset + limit
	if end > len(filtered) {
		end = len(filtered)
	}

	return filtered[offset:end], nil
}

func (m *MockAuditLogger) GetCount(ctx context.Context, patternFilter string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if patternFilter == "" {
		return len(m.logs), nil
	}

	count := 0
	for _, log := range m.logs {
		if log.Pattern == patternFilter {
			count++
		}
	}
	return count, nil
}

func (m *MockAuditLogger) GetByRequestID(ctx context.Context, requestID string) ([]AuditLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([]AuditLog, 0)
	for _, log := range m.logs {
		if log.RequestID == requestID {
			result = append(result, log)
		}
	}
	return result, nil
}

// setupTestService creates a test service with mocks and an in-memory
// cache coordinator backing the records it evicts.
func setupTestService(t *testing.T) *Service {
	t.Helper()
	ci, err := connection.NewCacheInit("T", "B", "bodies", "", nil, fingerprint.SHA256, 1024, 1, "UTC")
	if err != nil {
		t.Fatal(err)
	}
	coord, err := cachecoordinator.New(ci, storage.NewMemorySmallItemTable(0), storage.NewMemoryLargeObjectStore("bodies"))
	if err != nil {
		t.Fatal(err)
	}
	return &Service{
		coordinator:    coord,
		patternMatcher: NewPatternMatcher(),
		auditLogger:    NewMockAuditLogger(),
		metrics:        &Metrics{},
	}
}

// seedRecord writes a cache record directly so eviction tests have
// something real to evict instead of operating on ids with no backing row.
func seedRecord(t *testing.T, svc *Service, id string) {
	t.Helper()
	err := svc.coordinator.Write(context.Background(), cachecoordinator.WriteInput{
		ID:         id,
		StatusCode: 200,
		Body:       []byte("v"),
		Profile:    connection.CacheProfile{DefaultExpirationInSeconds: 3600},
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestPatternMatcher_ExactMatch(t *testing.T) {
	pm := NewPatternMatcher()
	ids := []string{"3f9c2a11", "3f9c2a22", "9b10ff00"}

	matches := pm.Match("3f9c2a11", ids)
	if len(matches) != 1 || matches[0] != "3f9c2a11" {
		t.Errorf("Expected exact match for 3f9c2a11, got %v", matches)
	}
}

func TestPatternMatcher_PrefixWildcard(t *testing.T) {
	pm := NewPatternMatcher()
	ids := []string{
		"3f9c2a11",
		"3f9c2a99",
		"3f9cffee",
		"9b10ff00",
	}

	matches := pm.Match("3f9c2a*", ids)
	if len(matches) != 2 {
		t.Errorf("Expected 2 matches, got %d: %v", len(matches), matches)
	}

	// Verify correct ids matched
	expectedMatches := map[string]bool{
		"3f9c2a11": true,
		"3f9c2a99": true,
	}

	for _, match := range matches {
		if !expectedMatches[match] {
			t.Errorf("Unexpected match: %s", match)
		}
	}
}

func TestPatternMatcher_SuffixWildcard(t *testing.T) {
	pm := NewPatternMatcher()
	ids := []string{
		"3f9c2a11",
		"9b102a11",
		"71ff2a11",
		"3f9cffee",
	}

	matches := pm.Match("*2a11", ids)
	if len(matches) != 3 {
		t.Errorf("Expected 3 matches, got %d: %v", len(matches), matches)
	}
}

func TestPatternMatcher_ContainsWildcard(t *testing.T) {
	pm := NewPatternMatcher()
	ids := []string{
		"3f9c2a11aa",
		"9b102a11bb",
		"71ffeeeecc",
	}

	matches := pm.Match("*2a11*", ids)
	if len(matches) != 2 {
		t.Errorf("Expected 2 matches, got %d: %v", len(matches), matches)
	}
}

func TestPatternMatcher_AllWildcard(t *testing.T) {
	pm := NewPatternMatcher()
	ids := []string{"id1", "id2", "id3"}

	matches := pm.Match("*", ids)
	if len(matches) != 3 {
		t.Errorf("Expected all ids to match, got %d", len(matches))
	}
}

func TestPatternMatcher_RegexPattern(t *testing.T) {
	pm := NewPatternMatcher()
	ids := []string{
		"3f9c2a11",
		"3f9c2a22",
		"3f9czzzz",
		"9b10ff00",
	}

	// Match hex-only ids under the 3f9c prefix
	matches := pm.Match("^3f9c[0-9a-f]+$", ids)
	if len(matches) != 2 {
		t.Errorf("Expected 2 hex matches, got %d: %v", len(matches), matches)
	}
}

func TestPatternMatcher_CacheEfficiency(t *testing.T) {
	pm := NewPatternMatcher()
	ids := []string{"3f9c2a11", "3f9c2a22"}

	// First call compiles regex
	pm.Match("^3f9c[0-9a-f]+$", ids)

	// Check cache
	if pm.CacheSize() != 1 {
		t.Errorf("Expected 1 cached regex, got %d", pm.CacheSize())
	}

	// Second call uses cached regex
	pm.Match("^3f9c[0-9a-f]+$", ids)

	// Should still be 1
	if pm.CacheSize() != 1 {
		t.Errorf("Cache should not grow on reuse, got %d", pm.CacheSize())
	}
}

func TestPatternMatcher_ValidatePattern(t *testing.T) {
	pm := NewPatternMatcher()

	tests := []struct {
		pattern string
		valid   bool
	}{
		{"3f9c*", true},
		{"3f9c[0-9a-f]+", true},
		{"*2a11", true},
		{"", true},        // Empty is valid (matches nothing)
		{"3f9c[", false}, // Invalid regex
	}

	for _, tt := range tests {
		err := pm.ValidatePattern(tt.pattern)
		if (err == nil) != tt.valid {
			t.Errorf("Pattern %q: expected valid=%v, got error=%v", tt.pattern, tt.valid, err)
		}
	}
}

func TestService_EvictIDs(t *testing.T) {
	svc := setupTestService(t)
	ctx := context.Background()
	seedRecord(t, svc, "3f9c2a11")
	seedRecord(t, svc, "9b10ff00")

	req := &EvictIDsRequest{
		IDs:         []string{"3f9c2a11", "9b10ff00"},
		TriggeredBy: "test",
		RequestID:   "test-req-1",
	}

	resp, err := svc.EvictIDs(ctx, req)
	if err != nil {
		t.Fatalf("EvictIDs failed: %v", err)
	}

	if !resp.Success {
		t.Error("Expected success=true")
	}

	if resp.EvictedCount != 2 {
		t.Errorf("Expected 2 evicted, got %d", resp.EvictedCount)
	}

	if resp.RequestID != "test-req-1" {
		t.Errorf("Expected request ID test-req-1, got %s", resp.RequestID)
	}

	if svc.metrics.IDEvictions.Load() != 1 {
		t.Errorf("Expected 1 id-eviction metric, got %d", svc.metrics.IDEvictions.Load())
	}

	if _, status, _ := svc.coordinator.Read(ctx, "3f9c2a11"); status != cachecoordinator.Miss {
		t.Error("expected evicted id to no longer read as a hit")
	}
}

func TestService_EvictIDs_Deduplication(t *testing.T) {
	svc := setupTestService(t)
	ctx := context.Background()
	seedRecord(t, svc, "3f9c2a11")
	seedRecord(t, svc, "9b10ff00")

	req := &EvictIDsRequest{
		IDs:         []string{"3f9c2a11", "3f9c2a11", "9b10ff00"},
		TriggeredBy: "test",
	}

	resp, err := svc.EvictIDs(ctx, req)
	if err != nil {
		t.Fatalf("EvictIDs failed: %v", err)
	}

	if resp.EvictedCount != 2 {
		t.Errorf("Expected 2 unique ids after deduplication, got %d", resp.EvictedCount)
	}
}

func TestService_EvictIDs_EmptyIDs(t *testing.T) {
	svc := setupTestService(t)
	ctx := context.Background()

	req := &EvictIDsRequest{
		IDs:         []string{},
		TriggeredBy: "test",
	}

	_, err := svc.EvictIDs(ctx, req)
	if err == nil {
		t.Error("Expected error for empty ids")
	}
}

func TestService_EvictPattern(t *testing.T) {
	svc := setupTestService(t)
	ctx := context.Background()

	knownIDs := []string{
		"3f9c2a11",
		"3f9c2a22",
		"9b10ff00",
		"71ffeeee",
	}
	for _, id := range knownIDs {
		seedRecord(t, svc, id)
	}

	req := &EvictPatternRequest{
		Pattern:     "3f9c2a*",
		TriggeredBy: "test",
		RequestID:   "test-req-2",
		KnownIDs:    knownIDs,
	}

	resp, err := svc.EvictPattern(ctx, req)
	if err != nil {
		t.Fatalf("EvictPattern failed: %v", err)
	}

	if !resp.Success {
		t.Error("Expected success=true")
	}

	if resp.Pattern != "3f9c2a*" {
		t.Errorf("Expected pattern 3f9c2a*, got %s", resp.Pattern)
	}

	if resp.EvictedCount != 2 {
		t.Errorf("Expected 2 matched ids, got %d", resp.EvictedCount)
	}

	if svc.metrics.PatternEvictions.Load() != 1 {
		t.Errorf("Expected 1 pattern eviction, got %d", svc.metrics.PatternEvictions.Load())
	}
}

func TestService_EvictPattern_EmptyPattern(t *testing.T) {
	svc := setupTestService(t)
	ctx := context.Background()

	req := &EvictPatternRequest{
		Pattern:     "",
		TriggeredBy: "test",
	}

	_, err := svc.EvictPattern(ctx, req)
	if err == nil {
		t.Error("Expected error for empty pattern")
	}
}

func TestService_GetMetrics(t *testing.T) {
	svc := setupTestService(t)
	ctx := context.Background()
	seedRecord(t, svc, "3f9c2a11")
	seedRecord(t, svc, "9b10ff00")

	svc.EvictIDs(ctx, &EvictIDsRequest{
		IDs:         []string{"3f9c2a11"},
		TriggeredBy: "test",
	})

	svc.EvictPattern(ctx, &EvictPatternRequest{
		Pattern:     "9b10*",
		TriggeredBy: "test",
		KnownIDs:    []string{"9b10ff00"},
	})

	metrics, err := svc.GetMetrics(ctx)
	if err != nil {
		t.Fatalf("GetMetrics failed: %v", err)
	}

	if metrics.TotalEvictions != 2 {
		t.Errorf("Expected 2 total evictions, got %d", metrics.TotalEvictions)
	}

	if metrics.IDEvictions != 1 {
		t.Errorf("Expected 1 id eviction, got %d", metrics.IDEvictions)
	}

	if metrics.PatternEvictions != 1 {
		t.Errorf("Expected 1 pattern eviction, got %d", metrics.PatternEvictions)
	}

	expectedRatio := 0.5 // 1 pattern out of 2 total
	if metrics.PatternEvictionRatio != expectedRatio {
		t.Errorf("Expected pattern ratio %.2f, got %.2f", expectedRatio, metrics.PatternEvictionRatio)
	}
}

func TestMockAuditLogger_Insert(t *testing.T) {
	logger := NewMockAuditLogger()
	ctx := context.Background()

	log := AuditLog{
		Pattern:     "3f9c*",
		IDs:         []string{"3f9c2a11"},
		TriggeredBy: "test",
		Timestamp:   time.Now(),
		RequestID:   "req-1",
	}

	err := logger.Insert(ctx, log)
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	// Verify insertion
	logs, err := logger.GetRecent(ctx, 10, 0, "")
	if err != nil {
		t.Fatalf("GetRecent failed: %v", err)
	}

	if len(logs) != 1 {
		t.Errorf("Expected 1 log, got %d", len(logs))
	}

	if logs[0].Pattern != "3f9c*" {
		t.Errorf("Expected pattern 3f9c*, got %s", logs[0].Pattern)
	}
}

func TestMockAuditLogger_GetRecent_Pagination(t *testing.T) {
	logger := NewMockAuditLogger()
	ctx := context.Background()

	// Insert multiple logs
	for i := 0; i < 10; i++ {
		logger.Insert(ctx, AuditLog{
			Pattern:     fmt.Sprintf("id-%d", i),
			IDs:         []string{fmt.Sprintf("id-%d", i)},
			TriggeredBy: "test",
			Timestamp:   time.Now(),
			RequestID:   fmt.Sprintf("req-%d", i),
		})
	}

	// Get first page
	logs, err := logger.GetRecent(ctx, 5, 0, "")
	if err != nil {
		t.Fatalf("GetRecent failed: %v", err)
	}

	if len(logs) != 5 {
		t.Errorf("Expected 5 logs, got %d", len(logs))
	}

	// Get second page
	logs, err = logger.GetRecent(ctx, 5, 5, "")
	if err != nil {
		t.Fatalf("GetRecent failed: %v", err)
	}

	if len(logs) != 5 {
		t.Errorf("Expected 5 logs on second page, got %d", len(logs))
	}
}

func TestMockAuditLogger_GetByRequestID(t *testing.T) {
	logger := NewMockAuditLogger()
	ctx := context.Background()

	// Insert logs with different request IDs
	logger.Insert(ctx, AuditLog{
		Pattern:     "3f9c*",
		RequestID:   "req-1",
		TriggeredBy: "test",
		Timestamp:   time.Now(),
	})

	logger.Insert(ctx, AuditLog{
		Pattern:     "9b10*",
		RequestID:   "req-2",
		TriggeredBy: "test",
		Timestamp:   time.Now(),
	})

	logger.Insert(ctx, AuditLog{
		Pattern:     "71ff*",
		RequestID:   "req-1",
		TriggeredBy: "test",
		Timestamp:   time.Now(),
	})

	// Query by request ID
	logs, err := logger.GetByRequestID(ctx, "req-1")
	if err != nil {
		t.Fatalf("GetByRequestID failed: %v", err)
	}

	if len(logs) != 2 {
		t.Errorf("Expected 2 logs for req-1, got %d", len(logs))
	}

	for _, log := range logs {
		if log.RequestID != "req-1" {
			t.Errorf("Expected request ID req-1, got %s", log.RequestID)
		}
	}
}

func TestConcurrentEvictions(t *testing.T) {
	svc := setupTestService(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	concurrency := 100

	for i := 0; i < concurrency; i++ {
		seedRecord(t, svc, fmt.Sprintf("id-%d", i))
	}

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := &EvictIDsRequest{
				IDs:         []string{fmt.Sprintf("id-%d", i)},
				TriggeredBy: "concurrent-test",
			}
			_, _ = svc.EvictIDs(ctx, req)
		}(i)
	}

	wg.Wait()

	totalEvictions := svc.metrics.TotalEvictions.Load()
	if totalEvictions != int64(concurrency) {
		t.Errorf("Expected %d evictions, got %d", concurrency, totalEvictions)
	}
}

func TestIsWildcard(t *testing.T) {
	tests := []struct {
		pattern  string
		expected bool
	}{
		{"3f9c*", true},
		{"*ff00", true},
		{"*", true},
		{"3f9c2a11", false},
		{"", false},
	}

	for _, tt := range tests {
		result := IsWildcard(tt.pattern)
		if result != tt.expected {
			t.Errorf("IsWildcard(%q) = %v, expected %v", tt.pattern, result, tt.expected)
		}
	}
}

func TestIsRegex(t *testing.T) {
	tests := []struct {
		pattern  string
		expected bool
	}{
		{"3f9c[0-9a-f]+", true},
		{"3f9c(2a11|2a22)", true},
		{"^3f9c.*$", true},
		{"3f9c*", false},
		{"3f9c2a11", false},
	}

	for _, tt := range tests {
		result := IsRegex(tt.pattern)
		if result != tt.expected {
			t.Errorf("IsRegex(%q) = %v, expected %v", tt.pattern, result, tt.expected)
		}
	}
}

func BenchmarkPatternMatcher_PrefixWildcard(b *testing.B) {
	pm := NewPatternMatcher()

	// Generate test ids
	ids := make([]string, 10000)
	for i := 0; i < 10000; i++ {
		ids[i] = fmt.Sprintf("3f9c%04d", i)
	}

	pattern := "3f9c0012*"

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		pm.Match(pattern, ids)
	}
}

func BenchmarkPatternMatcher_RegexCached(b *testing.B) {
	pm := NewPatternMatcher()

	ids := make([]string, 1000)
	for i := 0; i < 1000; i++ {
		ids[i] = fmt.Sprintf("3f9c%04d", i)
	}

	pattern := "^3f9c[0-9]+$"

	// Prime the cache
	pm.Match(pattern, ids)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		pm.Match(pattern, ids)
	}
}

func BenchmarkService_EvictIDs(b *testing.B) {
	ci, err := connection.NewCacheInit("T", "B", "bodies", "", nil, fingerprint.SHA256, 1024, 1, "UTC")
	if err != nil {
		b.Fatal(err)
	}
	coord, err := cachecoordinator.New(ci, storage.NewMemorySmallItemTable(0), storage.NewMemoryLargeObjectStore("bodies"))
	if err != nil {
		b.Fatal(err)
	}
	svc := &Service{coordinator: coord, patternMatcher: NewPatternMatcher(), auditLogger: NewMockAuditLogger(), metrics: &Metrics{}}
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		req := &EvictIDsRequest{
			IDs:         []string{fmt.Sprintf("id-%d", i)},
			TriggeredBy: "benchmark",
		}
		svc.EvictIDs(ctx, req)
	}
}