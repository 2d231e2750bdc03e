package connection

import (
	"strings"
	"time"

	"encore.app/cacheerr"
	"encore.app/fingerprint"
)

// CacheInit is the process-wide configuration shared by every package in
// this module: which storage identifiers to use, the symmetric cipher and
// key, the fingerprint algorithm, and the small-table size ceiling. It is
// constructed once per process (see cachecoordinator.NewFromEnv) and is read-only
// thereafter.
type CacheInit struct {
	SmallTableID           string
	ObjectStoreID          string
	ObjectStorePrefix      string
	CipherID               string
	Key                    []byte
	FingerprintAlgorithm   fingerprint.Algorithm
	SmallTableMaxSizeKB    int
	PurgeAfterHours        int
	Timezone               string

	location *time.Location
}

// CacheInitFromMap builds a CacheInit from a loosely-typed map, accepting the
// aliases DynamoDbMaxCacheSize_kb (legacy small-table size key) alongside the
// canonical smallTableMaxSizeKB.
func CacheInitFromMap(m map[string]interface{}) (*CacheInit, error) {
	ci := &CacheInit{}

	ci.SmallTableID, _ = m["smallTableId"].(string)
	ci.ObjectStoreID, _ = m["objectStoreId"].(string)
	ci.ObjectStorePrefix, _ = m["objectStorePrefix"].(string)
	ci.CipherID, _ = m["cipher"].(string)
	ci.Timezone, _ = m["timezone"].(string)

	if raw, ok := m["key"].([]byte); ok {
		ci.Key = raw
	} else if s, ok := m["key"].(string); ok {
		ci.Key = []byte(s)
	}

	if algo, ok := m["fingerprintAlgorithm"].(string); ok && algo != "" {
		ci.FingerprintAlgorithm = fingerprint.Algorithm(algo)
	} else {
		ci.FingerprintAlgorithm = fingerprint.SHA256
	}

	ci.SmallTableMaxSizeKB = firstInt(m, "smallTableMaxSizeKB", "DynamoDbMaxCacheSize_kb")
	ci.PurgeAfterHours = firstInt(m, "purgeAfterHours")

	return ci.finish()
}

// NewCacheInit builds a CacheInit directly from typed fields, applying the
// same validation as CacheInitFromMap.
func NewCacheInit(smallTableID, objectStoreID, objectStorePrefix, cipherID string, key []byte,
	fpAlgo fingerprint.Algorithm, smallTableMaxSizeKB, purgeAfterHours int, timezone string) (*CacheInit, error) {
	ci := &CacheInit{
		SmallTableID:         smallTableID,
		ObjectStoreID:        objectStoreID,
		ObjectStorePrefix:    objectStorePrefix,
		CipherID:             cipherID,
		Key:                  key,
		FingerprintAlgorithm: fpAlgo,
		SmallTableMaxSizeKB:  smallTableMaxSizeKB,
		PurgeAfterHours:      purgeAfterHours,
		Timezone:             timezone,
	}
	return ci.finish()
}

func (ci *CacheInit) finish() (*CacheInit, error) {
	if ci.SmallTableID == "" {
		return nil, cacheerr.New(cacheerr.InvalidConfiguration, "connection.CacheInit", errMissingSmallTableID)
	}
	if ci.CipherID != "" && len(ci.Key) == 0 {
		return nil, cacheerr.New(cacheerr.InvalidConfiguration, "connection.CacheInit", errMissingEncryptionKey)
	}
	if ci.Timezone == "" {
		ci.Timezone = "UTC"
	}
	loc, err := time.LoadLocation(ci.Timezone)
	if err != nil {
		return nil, cacheerr.New(cacheerr.InvalidConfiguration, "connection.CacheInit", err)
	}
	ci.location = loc
	if ci.FingerprintAlgorithm == "" {
		ci.FingerprintAlgorithm = fingerprint.SHA256
	}
	return ci, nil
}

// Location returns the *time.Location resolved from Timezone.
func (ci *CacheInit) Location() *time.Location { return ci.location }

// Info is the redacted, diagnostic view of a CacheInit: the key is masked,
// matching scenario S6's "key rendered as '************** [buffer]'".
type Info struct {
	SmallTableID        string
	ObjectStoreID       string
	ObjectStorePrefix   string
	CipherID            string
	Key                 string
	FingerprintAlgorithm string
	SmallTableMaxSizeKB int
	PurgeAfterHours     int
	Timezone            string
	OffsetInMinutes     int
}

// Info returns a redacted snapshot suitable for logging or a diagnostics endpoint.
func (ci *CacheInit) Info() Info {
	_, offsetSec := time.Now().In(ci.location).Zone()
	return Info{
		SmallTableID:         ci.SmallTableID,
		ObjectStoreID:        ci.ObjectStoreID,
		ObjectStorePrefix:    ci.ObjectStorePrefix,
		CipherID:             ci.CipherID,
		Key:                  maskKey(ci.Key),
		FingerprintAlgorithm: string(ci.FingerprintAlgorithm),
		SmallTableMaxSizeKB:  ci.SmallTableMaxSizeKB,
		PurgeAfterHours:      ci.PurgeAfterHours,
		Timezone:             ci.Timezone,
		OffsetInMinutes:      offsetSec / 60,
	}
}

func maskKey(key []byte) string {
	if len(key) == 0 {
		return ""
	}
	return strings.Repeat("*", 14) + " [buffer]"
}
