// Package memstore is the in-process reference cache backend: a
// mutex-guarded map keyed by the request fingerprint's hash. Store never
// evicts, per the reference-backend requirement; Bounded is a separate
// backend over its own LRU cache, with an eviction policy for production use.
package memstore

import (
	"net/http"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/kachegate/gatekache/pkg/cachekey"
	"github.com/kachegate/gatekache/pkg/store"
)

// Store is the unbounded reference backend.
type Store struct {
	mu      sync.RWMutex
	entries map[uint64]*store.Entry
	now     func() time.Time
}

var _ store.Backend = (*Store)(nil)

// New creates an empty Store.
func New() *Store {
	return &Store{
		entries: make(map[uint64]*store.Entry),
		now:     time.Now,
	}
}

func (s *Store) get(hash uint64) (*store.Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[hash]
	return e, ok
}

func (s *Store) set(hash uint64, e *store.Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[hash] = e
}

// MakeLookupContext implements store.Backend.
func (s *Store) MakeLookupContext(key cachekey.Key, req *http.Request) store.LookupContext {
	return &lookupContext{backend: s, key: key, req: req}
}

// MakeInsertContext implements store.Backend.
func (s *Store) MakeInsertContext(key cachekey.Key, req *http.Request) store.InsertContext {
	return &insertContext{backend: s, key: key, req: req, headers: make(http.Header)}
}

// UpdateHeaders implements store.Backend. Leaves Content-Range,
// Content-Length, ETag and Vary untouched, matching how a 304 revalidation
// may refresh a cached representation's metadata without invalidating its
// body or identity.
func (s *Store) UpdateHeaders(key cachekey.Key, newHeaders http.Header) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key.Hash()]
	if !ok {
		return nil
	}
	merged := e.Headers.Clone()
	for name, values := range newHeaders {
		switch http.CanonicalHeaderKey(name) {
		case "Content-Range", "Content-Length", "Etag", "Vary":
			continue
		default:
			merged[name] = values
		}
	}
	e.Headers = merged
	return nil
}

// CacheInfo implements store.Backend.
func (s *Store) CacheInfo() store.CacheInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return store.CacheInfo{Name: "memstore", Backend: "memory", EntryCount: len(s.entries)}
}

// Keys implements store.Backend.
func (s *Store) Keys() []uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]uint64, 0, len(s.entries))
	for hash := range s.entries {
		keys = append(keys, hash)
	}
	return keys
}

// Purge implements store.Backend.
func (s *Store) Purge(hash uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[hash]; !ok {
		return false
	}
	delete(s.entries, hash)
	return true
}

// Flush implements store.Backend.
func (s *Store) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[uint64]*store.Entry)
}

// Bounded is a sibling of Store backed by an LRU cache with a byte budget,
// adapted from the teacher's inMemoryCache (pkg/provider/inmemory.go):
// items are evicted oldest-first once the running size total would exceed
// maxSizeBytes.
type Bounded struct {
	mu           sync.Mutex
	inner        *lru.Cache[uint64, *store.Entry]
	maxSizeBytes uint64
	curSize      uint64
}

var _ store.Backend = (*Bounded)(nil)

const entryOverheadBytes = 64

// NewBounded creates a Bounded store capped at maxSizeBytes of estimated
// entry size (headers + body).
func NewBounded(maxSizeBytes uint64) *Bounded {
	b := &Bounded{maxSizeBytes: maxSizeBytes}
	l, _ := lru.NewWithEvict[uint64, *store.Entry](maxInt, b.onEvict)
	b.inner = l
	return b
}

const maxInt = int(^uint(0) >> 1)

func (b *Bounded) onEvict(_ uint64, e *store.Entry) {
	b.curSize -= entrySize(e)
}

func entrySize(e *store.Entry) uint64 {
	size := entryOverheadBytes + uint64(len(e.Body))
	for name, values := range e.Headers {
		size += uint64(len(name))
		for _, v := range values {
			size += uint64(len(v))
		}
	}
	return size
}

func (b *Bounded) get(hash uint64) (*store.Entry, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.inner.Get(hash)
}

func (b *Bounded) set(hash uint64, e *store.Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	size := entrySize(e)
	if old, ok := b.inner.Get(hash); ok {
		b.curSize -= entrySize(old)
	}
	for b.curSize+size > b.maxSizeBytes {
		if _, _, ok := b.inner.RemoveOldest(); !ok {
			break
		}
	}
	b.inner.Add(hash, e)
	b.curSize += size
}

// MakeLookupContext implements store.Backend.
func (b *Bounded) MakeLookupContext(key cachekey.Key, req *http.Request) store.LookupContext {
	return &lookupContext{backend: b, key: key, req: req}
}

// MakeInsertContext implements store.Backend.
func (b *Bounded) MakeInsertContext(key cachekey.Key, req *http.Request) store.InsertContext {
	return &insertContext{backend: b, key: key, req: req, headers: make(http.Header)}
}

// UpdateHeaders implements store.Backend.
func (b *Bounded) UpdateHeaders(key cachekey.Key, newHeaders http.Header) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.inner.Get(key.Hash())
	if !ok {
		return nil
	}
	merged := e.Headers.Clone()
	for name, values := range newHeaders {
		switch http.CanonicalHeaderKey(name) {
		case "Content-Range", "Content-Length", "Etag", "Vary":
			continue
		default:
			merged[name] = values
		}
	}
	b.curSize -= entrySize(e)
	e.Headers = merged
	b.curSize += entrySize(e)
	return nil
}

// CacheInfo implements store.Backend.
func (b *Bounded) CacheInfo() store.CacheInfo {
	b.mu.Lock()
	defer b.mu.Unlock()
	return store.CacheInfo{Name: "memstore", Backend: "memory-bounded", EntryCount: b.inner.Len()}
}

// Keys implements store.Backend.
func (b *Bounded) Keys() []uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.inner.Keys()
}

// Purge implements store.Backend.
func (b *Bounded) Purge(hash uint64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.inner.Remove(hash)
}

// Flush implements store.Backend.
func (b *Bounded) Flush() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.inner.Purge()
}

// backend is the minimal get/set surface lookupContext/insertContext need,
// satisfied by both Store and Bounded.
type backend interface {
	get(hash uint64) (*store.Entry, bool)
	set(hash uint64, e *store.Entry)
}

var _ backend = (*Store)(nil)
var _ backend = (*Bounded)(nil)

func matchesRequest(e *store.Entry, req *http.Request) bool {
	if len(e.VaryNames) == 0 {
		return true
	}
	return store.MatchesVary(e.VaryIdentifier, e.VaryNames, req.Header)
}

func varyNamesFrom(resHeader http.Header) []string {
	v := resHeader.Get("Vary")
	if v == "" {
		return nil
	}
	names := strings.Split(v, ",")
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n != "" {
			out = append(out, n)
		}
	}
	return out
}
