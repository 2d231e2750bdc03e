package cachecoordinator

import (
	"os"
	"strconv"
	"sync"

	"encore.app/connection"
	"encore.app/fingerprint"
	"encore.app/storage"
)

var (
	globalOnce   sync.Once
	globalCoord  *Coordinator
	globalErr    error
)

// NewFromEnv returns the process-wide Coordinator singleton, constructed
// once from environment variables on first call. This mirrors the source
// CacheInit/ClientRequest.init singleton pattern (§9): an explicitly
// constructed context object with a package-level convenience binding for
// callers that prefer a global rather than wiring a *Coordinator through
// every call site themselves.
//
// The backing stores default to in-memory implementations; a production
// deployment constructs its own SmallItemBackend/LargeObjectBackend (backed
// by DynamoDB, S3, or similar) and calls New directly instead of NewFromEnv.
func NewFromEnv() (*Coordinator, error) {
	globalOnce.Do(func() {
		ci, err := connection.NewCacheInit(
			envOr("CACHEDATA_SMALL_TABLE_ID", "cache-records"),
			envOr("CACHEDATA_OBJECT_STORE_ID", "cache-bodies"),
			envOr("CACHEDATA_OBJECT_STORE_PREFIX", "bodies"),
			os.Getenv("CACHEDATA_CIPHER"),
			[]byte(os.Getenv("CACHEDATA_ENCRYPTION_KEY")),
			fingerprint.Algorithm(envOr("CACHEDATA_FINGERPRINT_ALGORITHM", string(fingerprint.SHA256))),
			envIntOr("CACHEDATA_SMALL_TABLE_MAX_KB", 10),
			envIntOr("CACHEDATA_PURGE_AFTER_HOURS", 24),
			envOr("CACHEDATA_TIMEZONE", "UTC"),
		)
		if err != nil {
			globalErr = err
			return
		}

		globalCoord, globalErr = New(ci,
			storage.NewMemorySmallItemTable(ci.SmallTableMaxSizeKB*1024),
			storage.NewMemoryLargeObjectStore(ci.ObjectStorePrefix))
	})
	return globalCoord, globalErr
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
