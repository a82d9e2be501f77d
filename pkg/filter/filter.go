// Package filter implements the per-stream cache filter state machine:
// request-path lookup, response-path insertion/validation, and range
// materialization, coordinating with a pluggable store.Backend through the
// dispatcher each stream runs on. Adapted from the teacher's
// middleware.Transport (pkg/server/middleware/httpcache.go), generalized
// from a single synchronous http.RoundTripper hook into the explicit,
// asynchronous-callback state machine this system's backend contract
// requires.
package filter

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kachegate/gatekache/pkg/byterange"
	"github.com/kachegate/gatekache/pkg/cachekey"
	"github.com/kachegate/gatekache/pkg/clockutil"
	"github.com/kachegate/gatekache/pkg/dispatch"
	"github.com/kachegate/gatekache/pkg/metrics"
	"github.com/kachegate/gatekache/pkg/store"
	"github.com/rs/zerolog/log"
)

// State is the per-stream state, exactly one of which the filter occupies
// at any time (§3).
type State int

const (
	Initial State = iota
	LookingUp
	ServingFromCache
	Forwarding
	Validating
	InjectingAfterValidation
	Done
	Destroyed
)

func (s State) String() string {
	switch s {
	case Initial:
		return "Initial"
	case LookingUp:
		return "LookingUp"
	case ServingFromCache:
		return "ServingFromCache"
	case Forwarding:
		return "Forwarding"
	case Validating:
		return "Validating"
	case InjectingAfterValidation:
		return "InjectingAfterValidation"
	case Done:
		return "Done"
	case Destroyed:
		return "Destroyed"
	default:
		return "Unknown"
	}
}

// Downstream is the encoder-side callback surface the filter drives,
// standing in for the surrounding framework's encoder callback handle
// (§6): encode_headers, encode_data, and the watermark notifications that
// gate body emission. A net/http-pipe-backed implementation lives in
// transport.go.
type Downstream interface {
	// EncodeHeaders emits status+header downstream, exactly once per
	// stream, always before any EncodeData call. endStream ends the
	// stream with no body to follow.
	EncodeHeaders(status int, header http.Header, endStream bool)

	// EncodeData emits a body chunk in strict offset order. endStream
	// marks the final chunk.
	EncodeData(chunk []byte, endStream bool)
}

// Config bounds a Filter's behavior: which requests it participates in,
// how it builds keys, and how it chunks bodies.
type Config struct {
	// Cluster scopes the cache key (cachekey.New's cluster argument),
	// letting one backend serve multiple logical upstream clusters.
	Cluster string

	// SelectedHeaders names additional request headers folded into the
	// cache key (cachekey.New's selectedHeaders argument).
	SelectedHeaders []string

	// MaxRanges, if > 0, caps the number of ranges byterange.Parse
	// accepts per request, overriding its default length guard
	// (byte_range_parse_limit, §6).
	MaxRanges int

	// BufferLimit bounds the size of each body chunk streamed to
	// Downstream (encoder_buffer_limit, §4.5.1). Defaults to 32KiB.
	BufferLimit int
}

const defaultBufferLimit = 32 * 1024

// Filter is a per-stream coordinator. One Filter is constructed per
// request and discarded once the stream completes or is destroyed.
type Filter struct {
	cfg        Config
	backend    store.Backend
	policy     *store.Policy
	metrics    *metrics.Metrics
	clock      clockutil.Source
	dispatcher *dispatch.Dispatcher

	mu    sync.Mutex
	state State

	destroyed atomic.Bool

	key   cachekey.Key
	req   *http.Request
	down  Downstream
	start time.Time

	// watermark gates the body-streaming loop; see stream.go.
	watermark int32
	resume    chan struct{}

	// validation bookkeeping, populated when entering Validating.
	cachedHeaders http.Header
	cachedLen     int64
	lookupCtx     store.LookupContext

	// decided closes once the request-path decision (forward, serve from
	// cache, or validate) is final, letting a driver like transport.go wait
	// for it without polling State(). resolveOnce guards against the
	// isDestroyed early-return and the normal lookup-result path both
	// firing.
	decided     chan struct{}
	resolveOnce sync.Once
}

// New constructs a Filter for one stream. backend and policy may be
// shared across many concurrently-active filters; dispatcher is this
// stream's own single-threaded event loop; down receives whatever the
// filter decides to serve directly (cache hits, validation fuses, range
// responses). Forwarding to upstream is the caller's responsibility — the
// filter only decides whether to, and prepares the request for it; see
// transport.go for the net/http integration that drives both halves.
func New(cfg Config, backend store.Backend, policy *store.Policy, m *metrics.Metrics, clock clockutil.Source, dispatcher *dispatch.Dispatcher, down Downstream) *Filter {
	if cfg.BufferLimit <= 0 {
		cfg.BufferLimit = defaultBufferLimit
	}
	return &Filter{
		cfg:        cfg,
		backend:    backend,
		policy:     policy,
		metrics:    m,
		clock:      clock,
		dispatcher: dispatcher,
		down:       down,
		resume:     make(chan struct{}, 1),
		decided:    make(chan struct{}),
	}
}

// resolve marks the request-path decision final. Safe to call more than
// once (only the first call has any effect).
func (f *Filter) resolve() {
	f.resolveOnce.Do(func() { close(f.decided) })
}

// AwaitDecision blocks until the request-path decision is resolved:
// State() is then guaranteed to be one of Forwarding, Validating,
// ServingFromCache, Done (a hit answered by headers alone: an empty body
// or an unsatisfiable range), or Destroyed.
func (f *Filter) AwaitDecision() {
	<-f.decided
}

// DecisionChan exposes the decision-resolved signal as a channel, for
// callers that need to select on it alongside other events (e.g.
// transport.go selecting on request context cancellation).
func (f *Filter) DecisionChan() <-chan struct{} {
	return f.decided
}

// State returns the filter's current state, for tests and introspection.
func (f *Filter) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *Filter) setState(s State) {
	f.mu.Lock()
	f.state = s
	f.mu.Unlock()
}

// isDestroyed is checked before every downstream emission — the filter's
// weak-handle substitute (§5): every posted callback checks this instead
// of dereferencing a handle that might outlive the stream.
func (f *Filter) isDestroyed() bool {
	return f.destroyed.Load()
}

// OnDestroy marks the filter Destroyed. Later-firing posted callbacks
// observe this and become no-ops, per §5's cancellation model.
func (f *Filter) OnDestroy() {
	f.destroyed.Store(true)
	f.setState(Destroyed)
	f.resolve()
}

// OnRequestHeaders is the request-path entry point (§4.5, steps 1-2). req
// is the downstream request; down is where the filter will emit cached
// responses, validation-fused responses, or range-satisfied responses.
// Uncacheable requests and cache misses are forwarded by the caller once
// this returns and State() reports Forwarding/Validating; see
// transport.go for the net/http glue that makes that concrete.
func (f *Filter) OnRequestHeaders(req *http.Request) {
	if f.isDestroyed() {
		f.resolve()
		return
	}

	f.req = req
	f.start = f.clock.Now()

	if f.policy.IsExcludedPath(req.URL.Path) || f.policy.IsExcludedHeader(req.Header) {
		log.Debug().Str("path", req.URL.Path).Msg("filter: excluded, forwarding")
		f.setState(Forwarding)
		f.recordOutcome(metrics.OutcomeBypass)
		f.resolve()
		return
	}

	if !store.IsCacheableRequest(req) {
		log.Debug().Str("path", req.URL.Path).Msg("filter: uncacheable request, forwarding")
		f.setState(Forwarding)
		f.recordOutcome(metrics.OutcomeUncacheable)
		f.resolve()
		return
	}

	f.key = cachekey.New(req, f.cfg.Cluster, f.cfg.SelectedHeaders)
	f.lookupCtx = f.backend.MakeLookupContext(f.key, req)
	f.setState(LookingUp)

	f.dispatcher.Post(func() {
		f.lookupCtx.GetHeaders(f.onLookupResult)
	})
}

// onLookupResult is the lookup callback (§4.5 step 3), always executed on
// the stream's dispatcher.
func (f *Filter) onLookupResult(result store.LookupResult) {
	if f.isDestroyed() {
		f.resolve()
		return
	}

	switch result.Kind {
	case store.NotFound, store.Unusable:
		f.setState(Forwarding)
		f.recordOutcome(metrics.OutcomeMiss)
		f.resolve()

	case store.Fresh:
		f.setState(ServingFromCache)
		f.recordOutcome(metrics.OutcomeHit)
		// Resolve before streaming the body: a caller like transport.go is
		// only waiting to learn the state, not for the whole body to
		// finish — it learns headers are ready via its own Downstream
		// (pipeDownstream.awaitHeaders), a separate rendezvous.
		f.resolve()
		f.serveFromCache(result)

	case store.RequiresValidation:
		f.cachedHeaders = result.Headers
		f.cachedLen = result.BodyLength
		f.injectValidationHeaders(result.Validators, result.Headers)
		f.setState(Validating)
		f.recordOutcome(metrics.OutcomeRevalidated)
		f.resolve()

	default:
		// Backend lookup errors are surfaced as NotFound by a well-behaved
		// backend (§4.5.4); any other unrecognized kind fails open.
		f.setState(Forwarding)
		f.resolve()
	}
}

// injectValidationHeaders adds If-None-Match/If-Modified-Since to the
// outgoing (forwarded) request per §4.5 step 3 / §6's bit-exact header
// rules. Mutates f.req directly: by this point no downstream response has
// been observed yet, so there is nothing to fork, unlike the teacher's
// Transport.injectValidationHeaders which forks a request already shared
// with a prior RoundTrip call.
func (f *Filter) injectValidationHeaders(v store.Validators, cached http.Header) {
	if v.ETag != "" {
		f.req.Header.Set("If-None-Match", v.ETag)
	}
	if v.LastModified != "" {
		f.req.Header.Set("If-Modified-Since", v.LastModified)
	} else if date := cached.Get("Date"); date != "" {
		f.req.Header.Set("If-Modified-Since", date)
	}
}

// OnUpstreamResponseHeaders is the response-path entry point (§4.5
// "Response phase"). Returns the response the caller should ultimately
// deliver downstream (nil when the filter already injected the cached
// body itself after a 304 fuse, in which case the caller's own Downstream
// already has the full response) and whether that response is a
// candidate for StoreIfCacheable.
func (f *Filter) OnUpstreamResponseHeaders(resp *http.Response) (serve *http.Response, needsStore bool) {
	if f.isDestroyed() {
		return resp, false
	}

	switch f.State() {
	case Validating:
		if resp.StatusCode == http.StatusNotModified {
			merged := f.mergeValidation(resp.Header)
			if err := f.backend.UpdateHeaders(f.key, resp.Header); err != nil {
				log.Debug().Err(err).Msg("filter: update headers after validation failed")
			}
			f.setState(InjectingAfterValidation)
			f.streamInjectedCache(merged, f.cachedLen)
			return nil, false
		}
		// Not 304: abandon the cached entry's validity, forward the new
		// response unchanged. If it happens to be cacheable itself, the
		// caller's StoreIfCacheable (response-path insert, §4.5.2) will
		// replace the entry.
		f.setState(Done)
		return resp, true

	case Forwarding:
		f.setState(Done)
		return resp, true

	default:
		return resp, true
	}
}

// mergeValidation merges a 304's fresher Date/validators into the cached
// headers, dropping Age (a validated response is equivalent to a fresh
// one, §4.5 "Response phase").
func (f *Filter) mergeValidation(fresh http.Header) http.Header {
	merged := f.cachedHeaders.Clone()
	merged.Del("Age")
	for name, values := range fresh {
		switch http.CanonicalHeaderKey(name) {
		case "Content-Range", "Content-Length", "Etag", "Vary":
			continue
		default:
			merged[name] = values
		}
	}
	return merged
}

// StoreIfCacheable rewrites resp.Body to a tee that feeds every chunk into
// a fresh InsertContext while the caller streams it downstream unchanged,
// when resp is cacheable (§4.5.2). A no-op otherwise, mirroring the
// teacher's Transport.RoundTrip post-forward cacheability branch
// (pkg/server/middleware/httpcache.go).
func (f *Filter) StoreIfCacheable(resp *http.Response) {
	if f.isDestroyed() || resp.Body == nil {
		return
	}
	if f.req.Method == http.MethodHead {
		return
	}
	if !store.IsCacheableResponse(resp.StatusCode, resp.Header) {
		return
	}
	if f.policy.IsExcludedContent(resp.Header.Get("Content-Type"), resp.ContentLength) {
		return
	}

	insertCtx := f.backend.MakeInsertContext(f.key, f.req)
	insertCtx.InsertHeaders(resp.Header, false)
	resp.Body = newTeeReadCloser(resp.Body, insertCtx)
}

// Abandon deletes any in-progress cached entry for this stream's key, per
// §4.5 "Response phase": a Validating stream whose revalidation comes back
// non-304 abandons the old entry rather than leaving it stale-but-present.
// The caller decides separately whether to replace it via StoreIfCacheable.
func (f *Filter) Abandon() {
	f.backend.Purge(f.key.Hash())
}

// Key returns the cache key this stream was looked up or will be inserted
// under. Only meaningful once OnRequestHeaders has run past the
// uncacheable/excluded short-circuit.
func (f *Filter) Key() cachekey.Key { return f.key }

func (f *Filter) recordOutcome(o metrics.Outcome) {
	if f.metrics != nil {
		f.metrics.RecordOutcome(o)
	}
}
