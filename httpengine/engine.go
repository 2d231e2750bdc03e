package httpengine

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"encore.app/connection"
	"encore.app/internal/obslog"
)

// defaultMaxRedirects bounds the redirect chain Engine.Send will follow.
const defaultMaxRedirects = 5

// maxTimeoutMS is the upper clamp from the concurrency model (§5): every
// outbound call has a deadline no longer than 300s. The lower bound (8000ms)
// is applied only to a value <= 0 (connection.New starts at 8000, and Send
// replaces a value <= 0 with 8000) — a small positive timeout (as in a timeout test) is honored
// here rather than silently raised, since it is the only way to exercise the
// timeout path deterministically.
const maxTimeoutMS = 300000

// Observer receives counts of notable Send outcomes. It's optional — a nil
// Observer (the zero value) means Send simply doesn't report anywhere, which
// is correct for a worker that doesn't care about aggregate metrics.
type Observer interface {
	ObserveRedirect()
	ObserveTimeout()
}

// Engine executes Connections against their upstream host.
type Engine struct {
	MaxRedirects int
	Transport    http.RoundTripper
	Observer     Observer
}

// New returns an Engine with the default redirect bound and transport.
func New() *Engine {
	return &Engine{MaxRedirects: defaultMaxRedirects, Transport: http.DefaultTransport}
}

func (e *Engine) observeRedirect() {
	if e.Observer != nil {
		e.Observer.ObserveRedirect()
	}
}

func (e *Engine) observeTimeout() {
	if e.Observer != nil {
		e.Observer.ObserveTimeout()
	}
}

// Send executes conn and always returns a structured Response: network
// errors and timeouts never escape as a Go error, matching the "never
// panics to caller" propagation policy.
//
// State machine per request: INIT -> DIALING -> HEADERS_RECEIVED ->
// (BODY_STREAMING -> COMPLETE) | TIMEOUT | ERROR. A 3xx redirect re-enters
// DIALING from HEADERS_RECEIVED. TIMEOUT is terminal regardless of
// in-flight bytes.
func (e *Engine) Send(ctx context.Context, conn *connection.Connection) *Response {
	view := conn.ToObject()

	timeoutMS := conn.Options.TimeoutMS
	if timeoutMS <= 0 {
		timeoutMS = 8000
	}
	if timeoutMS > maxTimeoutMS {
		timeoutMS = maxTimeoutMS
	}
	deadline := time.Duration(timeoutMS) * time.Millisecond

	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	client := &http.Client{
		Transport: e.Transport,
		// Redirects are followed by our own bounded loop, not net/http's.
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	currentURL := buildURL(view, conn.Options)
	var redirects []Redirect
	maxRedirects := e.MaxRedirects
	if maxRedirects == 0 {
		maxRedirects = defaultMaxRedirects
	}

	bodyReader, bodyHeaders := serializeBody(view)
	for k, v := range bodyHeaders {
		if _, exists := view.Headers[k]; !exists {
			view.Headers[k] = v
		}
	}

	for attempt := 0; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, string(view.Method), currentURL, bodyReader)
		if err != nil {
			return responseForPreflightError(err)
		}
		for k, v := range view.Headers {
			req.Header.Set(k, v)
		}

		resp, err := client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				obslog.Warn("outbound request timed out", obslog.Fields{
					"host": view.Host, "timeoutMs": timeoutMS,
				})
				e.observeTimeout()
				return timeoutResponse()
			}
			return networkErrorResponse(err)
		}

		if location := resp.Header.Get("Location"); isRedirect(resp.StatusCode) && attempt < maxRedirects && location != "" {
			resp.Body.Close()
			e.observeRedirect()
			redirects = append(redirects, Redirect{From: currentURL, To: location, StatusCode: resp.StatusCode})
			if resp.StatusCode == http.StatusMovedPermanently {
				obslog.Warn("permanent redirect (301) followed", obslog.Fields{
					"from": currentURL, "to": location,
				})
			}
			currentURL = resolveLocation(currentURL, location)
			bodyReader, _ = serializeBody(view) // re-prepare body for re-dial
			continue
		}

		return finalizeResponse(resp, redirects)
	}
}

func isRedirect(status int) bool {
	switch status {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	default:
		return false
	}
}

func finalizeResponse(resp *http.Response, redirects []Redirect) *Response {
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)

	headers := make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		headers[k] = resp.Header.Get(k)
	}

	r := newResponse(resp.StatusCode, string(data), headers)
	r.Redirects = redirects
	return r
}

func timeoutResponse() *Response {
	return &Response{
		StatusCode: http.StatusGatewayTimeout,
		Success:    false,
		Message:    MessageTimeout,
		Headers:    map[string]string{},
		Body:       "",
	}
}

func networkErrorResponse(err error) *Response {
	return &Response{
		StatusCode: http.StatusBadGateway,
		Success:    false,
		Message:    MessageFail,
		Headers:    map[string]string{},
		Body:       err.Error(),
	}
}

func responseForPreflightError(err error) *Response {
	return &Response{
		StatusCode: 0,
		Success:    false,
		Message:    MessageFail,
		Headers:    map[string]string{},
		Body:       err.Error(),
	}
}

func buildURL(view *connection.NormalizedView, opts connection.Options) string {
	u := string(view.Protocol) + "://" + view.Host + view.Path
	q := buildQuery(view.Parameters, opts)
	if q != "" {
		u += "?" + q
	}
	return u
}

func resolveLocation(base, location string) string {
	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		return location
	}
	idx := strings.Index(base, "://")
	if idx < 0 {
		return location
	}
	schemeHostEnd := idx + 3
	pathStart := strings.Index(base[schemeHostEnd:], "/")
	if pathStart < 0 {
		return base + location
	}
	return base[:schemeHostEnd+pathStart] + location
}

func serializeBody(view *connection.NormalizedView) (io.Reader, map[string]string) {
	if view.Body == nil {
		return nil, nil
	}
	if s, ok := view.Body.(string); ok {
		return strings.NewReader(s), nil
	}

	data, err := json.Marshal(view.Body)
	if err != nil {
		return nil, nil
	}
	return bytes.NewReader(data), map[string]string{"Content-Type": "application/json"}
}
