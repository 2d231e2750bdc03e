// Package cacheablefetcher is the top-level entry point of the caching
// data-access layer: fingerprint the request, consult the coordinator,
// fall through to the HTTP engine on miss or stale, write through, and
// coalesce concurrent callers for the same fingerprint onto one upstream
// call via golang.org/x/sync/singleflight.
package cacheablefetcher

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"

	"encore.app/cachecoordinator"
	"encore.app/connection"
	"encore.app/fingerprint"
	"encore.app/httpengine"
	"encore.app/internal/obslog"
	"encore.app/storage"
)

// CacheStatus classifies how a CachedResult was produced.
type CacheStatus string

const (
	HIT          CacheStatus = "HIT"
	MISS         CacheStatus = "MISS"
	StaleServed  CacheStatus = "STALE_SERVED"
	Bypass       CacheStatus = "BYPASS"
)

// CachedResult is what GetData returns: the response envelope, how it was
// produced, and (for hits) how long it has been sitting in cache.
type CachedResult struct {
	Response    *httpengine.Response
	CacheStatus CacheStatus
	AgeSeconds  int64
}

// Observer receives a count of every GetData outcome. Optional — nil means
// no one is listening, which is correct for a worker that has no monitoring
// package wired in.
type Observer interface {
	ObserveHit()
	ObserveMiss()
	ObserveStaleServed()
	ObserveBypass()
}

// Fetcher is the orchestration object bound to one Engine and one
// Coordinator. Construct one per process and share it across requests —
// its singleflight.Group is the one mutable structure guarding concurrent
// fetches for the same id.
type Fetcher struct {
	engine      *httpengine.Engine
	coordinator *cachecoordinator.Coordinator
	group       singleflight.Group
	fpAlgorithm fingerprint.Algorithm
	Observer    Observer
}

// New binds a Fetcher to an engine and coordinator.
func New(engine *httpengine.Engine, coordinator *cachecoordinator.Coordinator, fpAlgorithm fingerprint.Algorithm) *Fetcher {
	if fpAlgorithm == "" {
		fpAlgorithm = fingerprint.SHA256
	}
	return &Fetcher{engine: engine, coordinator: coordinator, fpAlgorithm: fpAlgorithm}
}

// GetData implements §4.F's algorithm. Concurrent calls for the same
// (Connection, CacheProfile) pair — same fingerprint — coalesce onto a
// single in-flight execution; every caller receives the same CachedResult.
func (f *Fetcher) GetData(ctx context.Context, conn *connection.Connection, profile connection.CacheProfile) (*CachedResult, error) {
	id, err := f.fingerprintOf(conn, profile)
	if err != nil {
		return nil, err
	}

	v, err, _ := f.group.Do(id, func() (interface{}, error) {
		return f.getDataUncoalesced(ctx, id, conn, profile)
	})
	if err != nil {
		return nil, err
	}
	return v.(*CachedResult), nil
}

// ID computes the fingerprint that GetData would use to key conn/profile in
// the coordinator. Callers that need to inspect or pre-warm a record ahead
// of calling GetData (the warming package) derive the same id this way.
func (f *Fetcher) ID(conn *connection.Connection, profile connection.CacheProfile) (string, error) {
	return f.fingerprintOf(conn, profile)
}

func (f *Fetcher) fingerprintOf(conn *connection.Connection, profile connection.CacheProfile) (string, error) {
	hostID, pathID := profile.HostID, profile.PathID
	if hostID == "" {
		hostID = conn.HostID
	}
	if pathID == "" {
		pathID = conn.PathID
	}
	scope := map[string]interface{}{
		"host":       conn.Host,
		"path":       conn.Path,
		"method":     string(conn.Method),
		"parameters": conn.Parameters,
		"headers":    conn.Headers,
		"body":       conn.Body,
		"hostId":     hostID,
		"pathId":     pathID,
	}
	if conn.Authentication != nil && conn.Authentication.Basic != nil {
		scope["authUser"] = conn.Authentication.Basic.User
	}
	return fingerprint.Hash(f.fpAlgorithm, scope)
}

func (f *Fetcher) getDataUncoalesced(ctx context.Context, id string, conn *connection.Connection, profile connection.CacheProfile) (*CachedResult, error) {
	record, status, err := f.coordinator.Read(ctx, id)
	if err != nil {
		return nil, err
	}

	if status == cachecoordinator.Fresh {
		f.observeHit()
		return hit(record), nil
	}

	resp := f.engine.Send(ctx, conn)

	if resp.Success {
		f.coordinator.Write(ctx, cachecoordinator.WriteInput{
			ID:              id,
			StatusCode:      resp.StatusCode,
			UpstreamHeaders: resp.Headers,
			HeadersToRetain: append(profile.HeadersToRetain, "Content-Type"),
			Body:            []byte(resp.Body),
			Profile:         profile,
		})
		f.observeMiss()
		return &CachedResult{Response: resp, CacheStatus: MISS, AgeSeconds: 0}, nil
	}

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		// UpstreamNotFound-class: propagate verbatim, never cached.
		f.observeBypass()
		return &CachedResult{Response: resp, CacheStatus: Bypass, AgeSeconds: 0}, nil
	}

	if status == cachecoordinator.Stale && record != nil {
		extended := f.coordinator.ExtendStale(ctx, record, profile.DefaultExpirationExtensionOnErrorInSeconds)
		obslog.Warn("upstream failure; serving stale record with extension", obslog.Fields{
			"id": id, "host": conn.Host, "statusCode": resp.StatusCode,
		})
		f.observeStaleServed()
		return staleServed(extended), nil
	}

	f.observeBypass()
	return &CachedResult{Response: resp, CacheStatus: Bypass, AgeSeconds: 0}, nil
}

func (f *Fetcher) observeHit() {
	if f.Observer != nil {
		f.Observer.ObserveHit()
	}
}

func (f *Fetcher) observeMiss() {
	if f.Observer != nil {
		f.Observer.ObserveMiss()
	}
}

func (f *Fetcher) observeStaleServed() {
	if f.Observer != nil {
		f.Observer.ObserveStaleServed()
	}
}

func (f *Fetcher) observeBypass() {
	if f.Observer != nil {
		f.Observer.ObserveBypass()
	}
}

func hit(record *storage.Record) *CachedResult {
	return &CachedResult{
		Response: &httpengine.Response{
			StatusCode: record.StatusCode,
			Success:    record.StatusCode >= 200 && record.StatusCode < 300,
			Message:    successOrFail(record.StatusCode),
			Headers:    record.Headers,
			Body:       record.Body,
		},
		CacheStatus: HIT,
		AgeSeconds:  time.Now().Unix() - record.CreatedAt,
	}
}

func staleServed(record *storage.Record) *CachedResult {
	result := hit(record)
	result.CacheStatus = StaleServed
	return result
}

func successOrFail(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return httpengine.MessageSuccess
	}
	return httpengine.MessageFail
}
