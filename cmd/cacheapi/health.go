package cacheapi

import (
	"encoding/json"
	"net/http"

	"encore.app/monitoring"
	"encore.app/pkg/middleware"
)

var healthHandler = middleware.RequestLogger(http.HandlerFunc(serveHealth))

func serveHealth(w http.ResponseWriter, r *http.Request) {
	snap := monitoring.SharedCollector().Snapshot()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(snap)
}

// Health is a raw (non-JSON-RPC) endpoint outside Encore's usual request
// handling, wrapped in the same request-logging middleware a plain net/http
// deployment of this module would use for its own debug surface.
//
//encore:api public raw method=GET path=/health
func Health(w http.ResponseWriter, req *http.Request) {
	healthHandler.ServeHTTP(w, req)
}
