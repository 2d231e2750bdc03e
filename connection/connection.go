// Package connection defines the typed, immutable description of one
// outbound HTTP call, the per-endpoint caching policy applied to it, and the
// process-wide configuration both are built against.
package connection

import (
	"strings"

	"encore.app/cacheerr"
)

// Method is an outbound HTTP verb.
type Method string

const (
	GET    Method = "GET"
	POST   Method = "POST"
	PUT    Method = "PUT"
	DELETE Method = "DELETE"
	PATCH  Method = "PATCH"
	HEAD   Method = "HEAD"
)

// Protocol is the URI scheme used for an outbound call.
type Protocol string

const (
	HTTP  Protocol = "http"
	HTTPS Protocol = "https"
)

// Options tunes engine-level behavior. It never contributes to the
// fingerprint of a Connection.
type Options struct {
	TimeoutMS                          int
	SeparateDuplicateParameters        bool
	SeparateDuplicateParametersAppendToKey string // "", "[]", "0++", "1++"
	CombinedDuplicateParameterDelimiter string
}

// DefaultOptions returns the spec-mandated defaults.
func DefaultOptions() Options {
	return Options{
		TimeoutMS:                           8000,
		SeparateDuplicateParameters:         false,
		SeparateDuplicateParametersAppendToKey: "",
		CombinedDuplicateParameterDelimiter: ",",
	}
}

// Basic is a basic-auth credential pair.
type Basic struct {
	User string
	Pass string
}

// Authentication augments a Connection with exactly one composition
// strategy. A field counts as configured when it is non-nil; if more than
// one is set, ToObject applies the first of Basic, Parameters, Headers, Body.
type Authentication struct {
	Basic      *Basic
	Parameters map[string]interface{}
	Headers    map[string]string
	Body       interface{}
}

func (a *Authentication) isSet() bool {
	return a != nil && (a.Basic != nil || a.Parameters != nil || a.Headers != nil || a.Body != nil)
}

// Connection is an immutable description of one outbound HTTP call. Treat
// all fields as read-only after construction; ToObject derives a normalized
// view without mutating the receiver.
type Connection struct {
	Method         Method
	Protocol       Protocol
	Host           string
	Path           string
	Parameters     map[string]interface{}
	Headers        map[string]string
	Body           interface{}
	Authentication *Authentication
	Options        Options

	// HostID and PathID are short stable labels a caller may set directly on
	// the Connection for convenience. The fingerprint uses CacheProfile's
	// HostID/PathID when they are non-empty and falls back to these.
	HostID string
	PathID string
}

// New builds a Connection from host/path, applying defaults and lower-casing
// the host. uri, if non-empty, is parsed and used in place of protocol/host/path
// when those are empty.
func New(method Method, protocol Protocol, host, path, uri string) (*Connection, error) {
	c := &Connection{
		Method:   method,
		Protocol: protocol,
		Host:     strings.ToLower(host),
		Path:     path,
		Options:  DefaultOptions(),
	}
	if c.Method == "" {
		c.Method = GET
	}
	if c.Protocol == "" {
		c.Protocol = HTTPS
	}

	if c.Host == "" || c.Path == "" {
		if uri == "" {
			return nil, cacheerr.New(cacheerr.InvalidConnection, "connection.New",
				errNeitherURINorHostPath)
		}
		proto, host, path, err := parseURI(uri)
		if err != nil {
			return nil, cacheerr.New(cacheerr.InvalidConnection, "connection.New", err)
		}
		c.Protocol = proto
		c.Host = strings.ToLower(host)
		c.Path = path
	}

	if !validMethod(c.Method) {
		return nil, cacheerr.New(cacheerr.InvalidConnection, "connection.New", errUnsupportedMethod)
	}
	if !strings.HasPrefix(c.Path, "/") {
		return nil, cacheerr.New(cacheerr.InvalidConnection, "connection.New", errPathNotAbsolute)
	}

	if c.Options.TimeoutMS <= 0 {
		c.Options.TimeoutMS = 8000
	}
	return c, nil
}

func validMethod(m Method) bool {
	switch m {
	case GET, POST, PUT, DELETE, PATCH, HEAD:
		return true
	default:
		return false
	}
}

func parseURI(uri string) (Protocol, string, string, error) {
	rest := uri
	proto := HTTPS
	if strings.HasPrefix(rest, "https://") {
		proto = HTTPS
		rest = strings.TrimPrefix(rest, "https://")
	} else if strings.HasPrefix(rest, "http://") {
		proto = HTTP
		rest = strings.TrimPrefix(rest, "http://")
	} else {
		return "", "", "", errInvalidURI
	}

	idx := strings.IndexByte(rest, '/')
	if idx < 0 {
		return proto, rest, "/", nil
	}
	return proto, rest[:idx], rest[idx:], nil
}

// NormalizedView is the result of folding Authentication into headers,
// parameters, and body per Connection.ToObject. It never shares backing maps
// with the originating Connection.
type NormalizedView struct {
	Method     Method
	Protocol   Protocol
	Host       string
	Path       string
	Parameters map[string]interface{}
	Headers    map[string]string
	Body       interface{}
}

// ToObject folds authentication into headers/parameters/body per its kind,
// without mutating the receiver. Engine.Send consumes this view.
func (c *Connection) ToObject() *NormalizedView {
	v := &NormalizedView{
		Method:     c.Method,
		Protocol:   c.Protocol,
		Host:       c.Host,
		Path:       c.Path,
		Parameters: cloneParams(c.Parameters),
		Headers:    cloneHeaders(c.Headers),
		Body:       c.Body,
	}

	if !c.Authentication.isSet() {
		return v
	}
	auth := c.Authentication

	switch {
	case auth.Basic != nil:
		v.Headers["Authorization"] = "Basic " + basicToken(auth.Basic.User, auth.Basic.Pass)
	case auth.Parameters != nil:
		for k, val := range auth.Parameters {
			v.Parameters[k] = val
		}
	case auth.Headers != nil:
		for k, val := range auth.Headers {
			v.Headers[k] = val
		}
	case auth.Body != nil:
		v.Body = mergeAuthBody(v.Body, auth.Body)
	}

	return v
}

func mergeAuthBody(caller, auth interface{}) interface{} {
	if caller == nil {
		return auth
	}
	callerMap, callerIsMap := caller.(map[string]interface{})
	authMap, authIsMap := auth.(map[string]interface{})
	if callerIsMap && authIsMap {
		merged := make(map[string]interface{}, len(callerMap)+len(authMap))
		for k, v := range callerMap {
			merged[k] = v
		}
		for k, v := range authMap {
			merged[k] = v
		}
		return merged
	}
	// caller body is a string (or anything non-map): auth body replaces it.
	return auth
}

func cloneParams(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneHeaders(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// ToString renders a diagnostic one-liner: "<method> <user?> <protocol>://<host><path>".
// Unset optional fields render the literal string "null", a known quirk
// preserved for compatibility with upstream tooling that greps this output.
func (c *Connection) ToString() string {
	user := "null"
	if c.Authentication != nil && c.Authentication.Basic != nil && c.Authentication.Basic.User != "" {
		user = c.Authentication.Basic.User
	}
	return string(c.Method) + " " + user + " " + string(c.Protocol) + "://" + c.Host + c.Path
}
