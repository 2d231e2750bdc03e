// Package storage defines the two interchangeable backends a CacheRecord is
// persisted to: a small-item table with a TTL attribute, and a large-object
// store for bodies that exceed the small table's per-record ceiling.
package storage

// Storage identifies where a record's body actually lives.
type Storage string

const (
	Inline   Storage = "INLINE"
	External Storage = "EXTERNAL"
)

// Encoding identifies whether Body is plaintext or cipher output.
type Encoding string

const (
	Plain     Encoding = "PLAIN"
	Encrypted Encoding = "ENCRYPTED"
)

// Record is the small-table row. When Storage is External, Body is empty and
// the large-object store holds the bytes under the same ID.
type Record struct {
	ID          string
	CreatedAt   int64
	ExpiresAt   int64
	PurgeAt     int64
	Storage     Storage
	StatusCode  int
	Headers     map[string]string
	Encoding    Encoding
	IV          string
	Body        string
}

// Clone returns a deep copy so callers can mutate a returned Record without
// corrupting backend-internal state (relevant to the in-memory backends,
// which would otherwise hand out their own map values by reference).
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	c.Headers = make(map[string]string, len(r.Headers))
	for k, v := range r.Headers {
		c.Headers[k] = v
	}
	return &c
}
