// Package middleware holds plain net/http middleware for the debug/health
// surface in cmd/cacheapi — the parts of the stack that sit outside Encore's
// own request lifecycle and so need their own request logging.
package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"encore.app/internal/obslog"
)

type contextKey string

const requestIDKey contextKey = "request-id"

// RequestLogger logs every request's method, path, status, duration, and
// byte count through obslog, tagging each with a request id (from
// X-Request-ID if the caller set one, otherwise generated).
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		r = r.WithContext(WithRequestID(r.Context(), requestID))
		w.Header().Set("X-Request-ID", requestID)

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		fields := obslog.Fields{
			"request_id":  requestID,
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      wrapped.statusCode,
			"duration_ms": time.Since(start).Milliseconds(),
			"bytes":       wrapped.bytesWritten,
			"remote_addr": r.RemoteAddr,
		}
		switch {
		case wrapped.statusCode >= 500:
			obslog.Error("request failed", fields)
		case wrapped.statusCode >= 400:
			obslog.Warn("request rejected", fields)
		default:
			obslog.Info("request served", fields)
		}
	})
}

// WithRequestID attaches a request id to ctx.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromCtx retrieves the request id WithRequestID attached, or "".
func RequestIDFromCtx(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
}

func (rw *responseWriter) WriteHeader(statusCode int) {
	rw.statusCode = statusCode
	rw.ResponseWriter.WriteHeader(statusCode)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += n
	return n, err
}

func (rw *responseWriter) Flush() {
	if flusher, ok := rw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}
