// Package cacheerr defines the typed error taxonomy shared across the
// caching data-access layer. The connection, fingerprint, storage and
// cachecoordinator packages return these kinds instead of an ad-hoc error
// string, so callers can branch with errors.As; the invalidation and
// warming services return plain errors.
package cacheerr

import "fmt"

// Kind identifies a class of failure in the cache data-access layer.
type Kind string

const (
	// InvalidConfiguration covers a missing small-table id, a cipher named
	// without an encryption key, or an unknown cipher. Surfaced at init
	// time; fatal. Profiles are not checked at init: a write under a profile
	// with Encrypt set is stored unencrypted when no cipher is configured.
	InvalidConfiguration Kind = "InvalidConfiguration"
	// InvalidConnection covers a Connection with neither uri nor
	// (host,path), or an unsupported method. Synchronous, no I/O performed.
	InvalidConnection Kind = "InvalidConnection"
	// UpstreamTimeout is an engine send that exceeded its deadline.
	UpstreamTimeout Kind = "UpstreamTimeout"
	// UpstreamError is a 5xx response or network error from upstream.
	UpstreamError Kind = "UpstreamError"
	// UpstreamNotFound is a 4xx response, propagated verbatim and not cached.
	UpstreamNotFound Kind = "UpstreamNotFound"
	// StorageUnavailable is a backend read/write failure.
	StorageUnavailable Kind = "StorageUnavailable"
	// DecryptFailure is an integrity/IV mismatch on read. Fail closed.
	DecryptFailure Kind = "DecryptFailure"
	// StorageCorrupted is surfaced to the caller after a DecryptFailure,
	// once the offending record has been evicted.
	StorageCorrupted Kind = "StorageCorrupted"
	// InvalidHashInput is a fingerprint call given an untyped/unsupported value.
	InvalidHashInput Kind = "InvalidHashInput"
)

// Error wraps an underlying error with a Kind and the operation that failed.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is allows errors.Is(err, cacheerr.Sentinel(cacheerr.InvalidConnection))
// style checks: any *Error target matches when its Kind is equal, whether
// or not either side wraps an err.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// New constructs an *Error for the given kind, operation, and cause.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Sentinel returns a comparable *Error with no wrapped cause, suitable as a
// target for errors.Is(err, cacheerr.Sentinel(cacheerr.InvalidConnection)).
func Sentinel(kind Kind) *Error {
	return &Error{Kind: kind}
}
