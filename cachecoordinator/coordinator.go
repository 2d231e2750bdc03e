// Package cachecoordinator chooses a storage backend by payload size, reads
// and writes cache records, applies the expiration policy (interval-aligned
// or now+N, reconciled against upstream freshness headers), and
// encrypts/decrypts bodies under the process-wide cipher.
package cachecoordinator

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"encore.app/cacheerr"
	"encore.app/connection"
	"encore.app/internal/obslog"
	"encore.app/storage"
)

// Status classifies a Read outcome.
type Status string

const (
	Fresh Status = "FRESH"
	Stale Status = "STALE"
	Miss  Status = "MISS"
)

// Coordinator is the read/write/expire/encrypt orchestration sitting between
// the Cacheable Fetcher and the two storage backends.
type Coordinator struct {
	smallTable      storage.SmallItemBackend
	objectStore     storage.LargeObjectBackend
	cipher          Cipher
	maxSmallBytes   int
	purgeAfterHours int
	location        *time.Location

	Counters Counters
}

// New binds a Coordinator to its storage backends using the cipher and
// sizing parameters from ci.
func New(ci *connection.CacheInit, smallTable storage.SmallItemBackend, objectStore storage.LargeObjectBackend) (*Coordinator, error) {
	var ciph Cipher
	if ci.CipherID != "" {
		c, err := NewCipher(ci.CipherID, ci.Key)
		if err != nil {
			return nil, err
		}
		ciph = c
	}

	return &Coordinator{
		smallTable:      smallTable,
		objectStore:     objectStore,
		cipher:          ciph,
		maxSmallBytes:   ci.SmallTableMaxSizeKB * 1024,
		purgeAfterHours: ci.PurgeAfterHours,
		location:        ci.Location(),
	}, nil
}

// Read implements §4.E's read path: a dangling EXTERNAL pointer or a
// small-table failure both downgrade to Miss so the caller proceeds to
// upstream; a decryption failure is the one hard error, and the offending
// record is evicted before it is returned.
func (c *Coordinator) Read(ctx context.Context, id string) (*storage.Record, Status, error) {
	pointer, ok, err := c.smallTable.Get(ctx, id)
	if err != nil {
		c.Counters.StorageFailures.Inc()
		obslog.Warn("small-table read failed, downgrading to miss", obslog.Fields{"id": id, "error": err.Error()})
		c.Counters.Misses.Inc()
		return nil, Miss, nil
	}
	if !ok {
		c.Counters.Misses.Inc()
		return nil, Miss, nil
	}

	rec := pointer
	if pointer.Storage == storage.External {
		body, ok, err := c.objectStore.Get(ctx, id)
		if err != nil {
			c.Counters.StorageFailures.Inc()
			obslog.Warn("object-store read failed, downgrading to miss", obslog.Fields{"id": id, "error": err.Error()})
			c.Counters.Misses.Inc()
			return nil, Miss, nil
		}
		if !ok {
			obslog.Warn("dangling external pointer, downgrading to miss", obslog.Fields{"id": id})
			c.Counters.Misses.Inc()
			return nil, Miss, nil
		}
		rec = pointer.Clone()
		rec.Body = encodeStoredBody(body, pointer.Encoding)
	}

	hydrated, err := c.hydrate(rec)
	if err != nil {
		c.Counters.DecryptFailures.Inc()
		obslog.Error("decrypt failure, evicting record", obslog.Fields{"id": id, "error": err.Error()})
		_ = c.Evict(ctx, id)
		return nil, Miss, cacheerr.New(cacheerr.StorageCorrupted, "cachecoordinator.Read", err)
	}

	now := time.Now().Unix()
	if hydrated.ExpiresAt > now {
		c.Counters.Hits.Inc()
		return hydrated, Fresh, nil
	}
	return hydrated, Stale, nil
}

// hydrate returns a Record whose Body is plaintext: rec itself when it is
// not encrypted, otherwise a decrypted copy (rec is left unchanged).
func (c *Coordinator) hydrate(rec *storage.Record) (*storage.Record, error) {
	if rec.Encoding != storage.Encrypted {
		return rec, nil
	}
	if c.cipher == nil {
		return nil, fmt.Errorf("record is encrypted but no cipher is configured")
	}

	ciphertext, err := base64.StdEncoding.DecodeString(rec.Body)
	if err != nil {
		return nil, fmt.Errorf("malformed base64 body: %w", err)
	}
	iv, err := hex.DecodeString(rec.IV)
	if err != nil {
		return nil, fmt.Errorf("malformed iv: %w", err)
	}
	plaintext, err := c.cipher.Decrypt(ciphertext, iv)
	if err != nil {
		return nil, err
	}

	out := rec.Clone()
	out.Body = string(plaintext)
	return out, nil
}

// WriteInput is the fully-formed data a successful upstream fetch produces,
// ready to be persisted through the coordinator.
type WriteInput struct {
	ID              string
	StatusCode      int
	UpstreamHeaders map[string]string
	HeadersToRetain []string
	Body            []byte
	Profile         connection.CacheProfile
}

// Write implements §4.E's write path: encrypt if configured, choose INLINE
// vs EXTERNAL by the size of the stored body (post-encryption, base64 when
// encrypted), and for EXTERNAL write the object
// before the pointer so a crash never exposes a dangling pointer. Storage
// failures are logged and swallowed — the cache is best-effort and must
// never block a successful upstream fetch from reaching the caller.
func (c *Coordinator) Write(ctx context.Context, in WriteInput) error {
	now := time.Now()

	payload := in.Body
	encoding := storage.Plain
	ivHex := ""
	if in.Profile.Encrypt && c.cipher != nil {
		ciphertext, iv, err := c.cipher.Encrypt(in.Body)
		if err != nil {
			obslog.Warn("encryption failed, writing record unencrypted is not permitted; dropping write", obslog.Fields{
				"id": in.ID, "error": err.Error(),
			})
			return nil
		}
		payload = ciphertext
		encoding = storage.Encrypted
		ivHex = hex.EncodeToString(iv)
	}

	expiresAt := computeExpiresAt(now, in.Profile, c.location, in.UpstreamHeaders)
	purgeAt := expiresAt + int64(c.purgeAfterHours)*3600

	rec := &storage.Record{
		ID:         in.ID,
		CreatedAt:  now.Unix(),
		ExpiresAt:  expiresAt,
		PurgeAt:    purgeAt,
		StatusCode: in.StatusCode,
		Headers:    retainHeaders(in.UpstreamHeaders, in.HeadersToRetain),
		Encoding:   encoding,
		IV:         ivHex,
	}

	if stored := encodeStoredBody(payload, encoding); len(stored) <= c.maxSmallBytes {
		rec.Storage = storage.Inline
		rec.Body = stored
		if err := c.smallTable.Put(ctx, rec); err != nil {
			c.Counters.StorageFailures.Inc()
			obslog.Warn("small-table write failed, swallowing (best-effort cache)", obslog.Fields{"id": in.ID, "error": err.Error()})
		}
		return nil
	}

	rec.Storage = storage.External
	rec.Body = ""
	if err := c.objectStore.Put(ctx, in.ID, payload); err != nil {
		c.Counters.StorageFailures.Inc()
		obslog.Warn("object-store write failed, swallowing (best-effort cache)", obslog.Fields{"id": in.ID, "error": err.Error()})
		return nil
	}
	if err := c.smallTable.Put(ctx, rec); err != nil {
		c.Counters.StorageFailures.Inc()
		obslog.Warn("pointer write failed after object write succeeded, swallowing", obslog.Fields{"id": in.ID, "error": err.Error()})
	}
	return nil
}

// ExtendStale implements the error-extension path: on upstream failure with
// a Stale record on hand, set its expiresAt to now + extensionSeconds and
// persist the extension so subsequent readers see the same grace window.
// An encrypted INLINE body is re-encrypted under a fresh IV before it is
// stored.
func (c *Coordinator) ExtendStale(ctx context.Context, stale *storage.Record, extensionSeconds int) *storage.Record {
	extended := stale.Clone()
	extended.ExpiresAt = time.Now().Add(time.Duration(extensionSeconds) * time.Second).Unix()
	c.Counters.StaleServed.Inc()

	persisted := extended.Clone()
	if persisted.Storage == storage.External {
		persisted.Body = ""
	} else if persisted.Encoding == storage.Encrypted && c.cipher != nil {
		ciphertext, iv, err := c.cipher.Encrypt([]byte(extended.Body))
		if err != nil {
			obslog.Warn("failed to re-encrypt stale extension, serving in-memory only", obslog.Fields{"id": stale.ID, "error": err.Error()})
			return extended
		}
		persisted.Body = encodeStoredBody(ciphertext, storage.Encrypted)
		persisted.IV = hex.EncodeToString(iv)
	} else {
		persisted.Body = encodeStoredBody([]byte(extended.Body), extended.Encoding)
	}
	if err := c.smallTable.Put(ctx, persisted); err != nil {
		obslog.Warn("failed to persist stale extension, serving in-memory only", obslog.Fields{"id": stale.ID, "error": err.Error()})
	}
	return extended
}

// Evict removes a record from both backends. Best-effort: errors are logged
// and do not propagate, since an evict that fails still lets the record
// expire naturally via its TTL.
func (c *Coordinator) Evict(ctx context.Context, id string) error {
	if err := c.smallTable.Delete(ctx, id); err != nil {
		obslog.Warn("evict: small-table delete failed", obslog.Fields{"id": id, "error": err.Error()})
	}
	if err := c.objectStore.Delete(ctx, id); err != nil {
		obslog.Warn("evict: object-store delete failed", obslog.Fields{"id": id, "error": err.Error()})
	}
	return nil
}

func retainHeaders(upstream map[string]string, headersToRetain []string) map[string]string {
	out := make(map[string]string, len(headersToRetain)+1)
	wanted := make(map[string]bool, len(headersToRetain)+1)
	for _, h := range headersToRetain {
		wanted[strings.ToLower(h)] = true
	}
	wanted["content-type"] = true

	for k, v := range upstream {
		if wanted[strings.ToLower(k)] {
			out[k] = v
		}
	}
	return out
}

func encodeStoredBody(payload []byte, encoding storage.Encoding) string {
	if encoding == storage.Encrypted {
		return base64.StdEncoding.EncodeToString(payload)
	}
	return string(payload)
}
