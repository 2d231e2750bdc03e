// Package cacheapi is the thin Encore service that wires the library
// packages (fingerprint, connection, httpengine, storage, cachecoordinator,
// cacheablefetcher) together into one process: a shared Fetcher backed by
// the environment-configured coordinator, a monitoring.Collector registered
// as its Observer, and a public //encore:api endpoint fronting GetData.
//
// It is an example of how a worker embeds this module, not a requirement of
// it — every package here is independently usable without cmd/cacheapi.
package cacheapi

import (
	"context"

	"encore.app/cacheablefetcher"
	"encore.app/cachecoordinator"
	"encore.app/connection"
	"encore.app/fingerprint"
	"encore.app/httpengine"
	"encore.app/monitoring"
)

//encore:service
type Service struct {
	fetcher *cacheablefetcher.Fetcher
}

var svc *Service

func initService() (*Service, error) {
	coord, err := cachecoordinator.NewFromEnv()
	if err != nil {
		return nil, err
	}

	engine := httpengine.New()
	fetcher := cacheablefetcher.New(engine, coord, fingerprint.SHA256)

	collector := monitoring.SharedCollector()
	engine.Observer = collector
	fetcher.Observer = collector

	return &Service{fetcher: fetcher}, nil
}

func init() {
	var err error
	svc, err = initService()
	if err != nil {
		panic(err)
	}
}

// FetchRequest is the wire shape for the public GetData proxy below.
type FetchRequest struct {
	Method      string                 `json:"method"`
	URI         string                 `json:"uri"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"`
	Headers     map[string]string      `json:"headers,omitempty"`
	HostID      string                 `json:"hostId,omitempty"`
	PathID      string                 `json:"pathId,omitempty"`
	TimeoutMS   int                    `json:"timeoutMs,omitempty"`
	ExpirationS int                    `json:"defaultExpirationInSeconds,omitempty"`
}

// FetchResponse mirrors cacheablefetcher.CachedResult for the wire.
type FetchResponse struct {
	StatusCode  int    `json:"statusCode"`
	Success     bool   `json:"success"`
	Message     string `json:"message"`
	Body        string `json:"body"`
	CacheStatus string `json:"cacheStatus"`
	AgeSeconds  int64  `json:"ageSeconds"`
}

// Fetch proxies a caller-described request through the caching data-access
// layer: fingerprint, consult the coordinator, fetch on miss/stale, write
// through, and serve hits straight from cache.
//
//encore:api public method=POST path=/cache/fetch
func Fetch(ctx context.Context, req *FetchRequest) (*FetchResponse, error) {
	conn, err := connection.New(connection.Method(req.Method), "", "", "", req.URI)
	if err != nil {
		return nil, err
	}
	conn.Parameters = req.Parameters
	conn.Headers = req.Headers
	conn.HostID = req.HostID
	conn.PathID = req.PathID
	if req.TimeoutMS > 0 {
		conn.Options.TimeoutMS = req.TimeoutMS
	}

	profile := connection.CacheProfile{
		DefaultExpirationInSeconds: req.ExpirationS,
		HostID:                     req.HostID,
		PathID:                     req.PathID,
	}

	result, err := svc.fetcher.GetData(ctx, conn, profile)
	if err != nil {
		return nil, err
	}

	return &FetchResponse{
		StatusCode:  result.Response.StatusCode,
		Success:     result.Response.Success,
		Message:     result.Response.Message,
		Body:        result.Response.Body,
		CacheStatus: string(result.CacheStatus),
		AgeSeconds:  result.AgeSeconds,
	}, nil
}
