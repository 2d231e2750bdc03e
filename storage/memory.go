package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"encore.app/cacheerr"
)

// MemorySmallItemTable is an in-process SmallItemBackend. It is the
// reference implementation used by tests and by cmd/cacheapi when no
// external table (DynamoDB, etc.) is configured; production deployments
// supply their own SmallItemBackend over the same interface.
type MemorySmallItemTable struct {
	mu             sync.RWMutex
	rows           map[string]*Record
	maxRecordBytes int
}

// NewMemorySmallItemTable returns a table enforcing maxRecordBytes per row;
// zero means unbounded.
func NewMemorySmallItemTable(maxRecordBytes int) *MemorySmallItemTable {
	return &MemorySmallItemTable{
		rows:           make(map[string]*Record),
		maxRecordBytes: maxRecordBytes,
	}
}

func (t *MemorySmallItemTable) Get(ctx context.Context, id string) (*Record, bool, error) {
	t.mu.RLock()
	rec, ok := t.rows[id]
	t.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if rec.PurgeAt > 0 && rec.PurgeAt <= time.Now().Unix() {
		t.mu.Lock()
		delete(t.rows, id)
		t.mu.Unlock()
		return nil, false, nil
	}
	return rec.Clone(), true, nil
}

func (t *MemorySmallItemTable) Put(ctx context.Context, rec *Record) error {
	if t.maxRecordBytes > 0 && len(rec.Body) > t.maxRecordBytes {
		return cacheerr.New(cacheerr.StorageUnavailable, "MemorySmallItemTable.Put",
			fmt.Errorf("record %d bytes exceeds ceiling of %d bytes", len(rec.Body), t.maxRecordBytes))
	}
	t.mu.Lock()
	t.rows[rec.ID] = rec.Clone()
	t.mu.Unlock()
	return nil
}

func (t *MemorySmallItemTable) Delete(ctx context.Context, id string) error {
	t.mu.Lock()
	delete(t.rows, id)
	t.mu.Unlock()
	return nil
}

// Sweep removes every row whose PurgeAt has passed, emulating the provider's
// background TTL purge. It returns the number of rows removed.
func (t *MemorySmallItemTable) Sweep(ctx context.Context) int {
	now := time.Now().Unix()
	removed := 0
	t.mu.Lock()
	for id, rec := range t.rows {
		if rec.PurgeAt > 0 && rec.PurgeAt <= now {
			delete(t.rows, id)
			removed++
		}
	}
	t.mu.Unlock()
	return removed
}

// MemoryLargeObjectStore is an in-process LargeObjectBackend.
type MemoryLargeObjectStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
	prefix  string
}

// NewMemoryLargeObjectStore returns a store namespacing keys under prefix
// (mirroring "<prefix>/<id>" in a bucket-backed implementation; the prefix
// is cosmetic here since the map itself provides isolation).
func NewMemoryLargeObjectStore(prefix string) *MemoryLargeObjectStore {
	return &MemoryLargeObjectStore{objects: make(map[string][]byte), prefix: prefix}
}

func (s *MemoryLargeObjectStore) Get(ctx context.Context, id string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	body, ok := s.objects[s.key(id)]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(body))
	copy(out, body)
	return out, true, nil
}

func (s *MemoryLargeObjectStore) Put(ctx context.Context, id string, body []byte) error {
	cp := make([]byte, len(body))
	copy(cp, body)
	s.mu.Lock()
	s.objects[s.key(id)] = cp
	s.mu.Unlock()
	return nil
}

func (s *MemoryLargeObjectStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	delete(s.objects, s.key(id))
	s.mu.Unlock()
	return nil
}

func (s *MemoryLargeObjectStore) key(id string) string {
	if s.prefix == "" {
		return id
	}
	return s.prefix + "/" + id
}
