package store

import (
	"fmt"
	"net/http"

	"github.com/kachegate/gatekache/pkg/cachekey"
)

// ResultKind tags the variants of a lookup result.
type ResultKind int

const (
	// NotFound means no entry exists for the key.
	NotFound ResultKind = iota
	// Unusable means an entry exists but needs revalidation (it is stale,
	// or a directive forces validation) and carries no validators, so it
	// cannot be revalidated and cannot be served.
	Unusable
	// Fresh means the entry may be served directly, after range
	// adjustment if the request asked for a range.
	Fresh
	// RequiresValidation means the entry must be revalidated upstream
	// before being served.
	RequiresValidation
)

func (k ResultKind) String() string {
	switch k {
	case NotFound:
		return "NotFound"
	case Unusable:
		return "Unusable"
	case Fresh:
		return "Fresh"
	case RequiresValidation:
		return "RequiresValidation"
	default:
		return fmt.Sprintf("ResultKind(%d)", int(k))
	}
}

// Validators carries the entity-tag and/or last-modified timestamp used to
// build conditional-request headers during revalidation.
type Validators struct {
	ETag         string
	LastModified string
}

// Empty reports whether neither validator is present.
func (v Validators) Empty() bool { return v.ETag == "" && v.LastModified == "" }

// LookupResult is the tagged value delivered by a LookupContext's
// GetHeaders callback.
type LookupResult struct {
	Kind ResultKind

	// Headers and BodyLength are populated for Fresh and RequiresValidation.
	// Headers already has Age set relative to the time of the lookup.
	Headers    http.Header
	BodyLength int64

	// Validators is populated for RequiresValidation.
	Validators Validators
}

// HeadersCallback delivers a LookupResult. Invoked exactly once per
// LookupContext.
type HeadersCallback func(LookupResult)

// BodyCallback delivers a body chunk equal to body[r.First..=r.Last].
type BodyCallback func(chunk []byte)

// TrailersCallback delivers captured trailers, if any were stored.
type TrailersCallback func(http.Header)

// ReadyCallback reports whether an InsertContext is ready to accept the
// next body chunk. false means the backend is aborting ingestion (e.g. a
// quota was exceeded).
type ReadyCallback func(ready bool)

// LookupContext is exclusive to the stream that created it and must not be
// touched from any other goroutine.
type LookupContext interface {
	// GetHeaders asynchronously delivers a LookupResult. Invoked exactly
	// once.
	GetHeaders(cb HeadersCallback)

	// GetBody delivers body[r.First..=r.Last]. May be called multiple
	// times with disjoint, monotonically advancing ranges. Precondition:
	// r.Last < the BodyLength reported by the preceding GetHeaders result.
	GetBody(r AdjustedRange, cb BodyCallback)

	// GetTrailers is optional; backends that never advertise trailers may
	// panic if it's called, per this system's terminal-assertion policy
	// for unsupported trailers.
	GetTrailers(cb TrailersCallback)
}

// InsertContext captures a response being written into the cache. Created
// from a miss or a response-replacing validation.
//
// Commit semantics: commit atomically installs (headers, body) under the
// request's Key, replacing any prior entry. Pre-commit state is invisible
// to lookups. An InsertContext never commits twice; once committed it
// ignores further chunks.
type InsertContext interface {
	// InsertHeaders captures headers; if endStream, commits immediately
	// with an empty body.
	InsertHeaders(headers http.Header, endStream bool)

	// InsertBody appends chunk; if endStream, commits. Otherwise invokes
	// ready(true) to request the next chunk, or ready(false) to abort
	// ingestion (e.g. the entry exceeds a size quota).
	InsertBody(chunk []byte, ready ReadyCallback, endStream bool)

	// InsertTrailers is optional.
	InsertTrailers(trailers http.Header)
}

// CacheInfo is a descriptive record for administrative introspection.
type CacheInfo struct {
	Name       string
	Backend    string
	EntryCount int
}

// Backend is the capability set a pluggable cache storage implementation
// exposes to the filter: staged lookup/insert context construction plus
// five administrative operations. No inheritance is required — this is a
// plain interface, satisfied independently by memstore and redisstore.
type Backend interface {
	// MakeLookupContext opens a lookup for key. req supplies the request
	// headers needed to evaluate Vary-matching and revalidation freshness;
	// it is read-only from the backend's perspective.
	MakeLookupContext(key cachekey.Key, req *http.Request) LookupContext

	// MakeInsertContext opens an insert for key. req supplies the request
	// headers needed to compute the entry's vary identifier at commit time.
	MakeInsertContext(key cachekey.Key, req *http.Request) InsertContext

	// UpdateHeaders refreshes date/validators on the entry at key after a
	// successful 304, without touching the body. Atomic with respect to
	// concurrent lookups of the same key. A no-op if no entry exists.
	UpdateHeaders(key cachekey.Key, newHeaders http.Header) error

	// CacheInfo returns a descriptive record for introspection.
	CacheInfo() CacheInfo

	// Keys returns the hash of every entry currently held, for
	// administrative listing.
	Keys() []uint64

	// Purge removes the entry at hash, if any, reporting whether one was
	// removed.
	Purge(hash uint64) bool

	// Flush removes every entry.
	Flush()
}
