package filter

import (
	"bytes"
	"io"
	"net/http"
	"sync"

	"github.com/kachegate/gatekache/pkg/clockutil"
	"github.com/kachegate/gatekache/pkg/dispatch"
	"github.com/kachegate/gatekache/pkg/metrics"
	"github.com/kachegate/gatekache/pkg/store"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// Transport is the http.RoundTripper integration point, adapted from the
// teacher's middleware.Transport (pkg/server/middleware/httpcache.go):
// it drives a Filter per request, forwards to Upstream when the filter
// says to, and feeds cacheable responses back into the backend. Unlike
// the teacher's Transport, which buffers the whole response via
// httputil.DumpResponse before deciding what to store, this streams a
// cache hit to the caller through a pipe as the filter's own chunked,
// watermark-gated GetBody loop produces it (§4.5.1).
type Transport struct {
	// Upstream issues the actual network round-trip. Defaults to
	// http.DefaultTransport.
	Upstream http.RoundTripper

	Backend store.Backend
	Policy  *store.Policy
	Metrics *metrics.Metrics
	Clock   clockutil.Source
	Config  Config

	// group coalesces concurrent Forwarding/Validating GET round-trips for
	// the same request URL into a single upstream fetch (§11), generalizing the
	// teacher's hand-rolled requestCoalescer (coalesce.go).
	group singleflight.Group
}

// NewTransport builds a Transport. upstream may be nil, defaulting to
// http.DefaultTransport.
func NewTransport(upstream http.RoundTripper, backend store.Backend, policy *store.Policy, m *metrics.Metrics, clock clockutil.Source, cfg Config) *Transport {
	if upstream == nil {
		upstream = http.DefaultTransport
	}
	if clock == nil {
		clock = clockutil.NewSystem()
	}
	return &Transport{Upstream: upstream, Backend: backend, Policy: policy, Metrics: m, Clock: clock, Config: cfg}
}

var _ http.RoundTripper = (*Transport)(nil)

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	pd := newPipeDownstream()
	dispatcher := dispatch.New(4)
	f := New(t.Config, t.Backend, t.Policy, t.Metrics, t.Clock, dispatcher, pd)

	go func() {
		defer dispatcher.Close()
		f.OnRequestHeaders(req)
	}()

	select {
	case <-f.DecisionChan():
	case <-req.Context().Done():
		f.OnDestroy()
		<-f.DecisionChan()
	}

	switch f.State() {
	case ServingFromCache, Done:
		status, header := pd.awaitHeaders()
		return &http.Response{
			Status:        http.StatusText(status),
			StatusCode:    status,
			Proto:         req.Proto,
			ProtoMajor:    req.ProtoMajor,
			ProtoMinor:    req.ProtoMinor,
			Header:        header,
			Body:          pd.bodyReader(),
			ContentLength: -1,
			Request:       req,
		}, nil

	case Forwarding, Validating:
		return t.forwardAndReconcile(f, req)

	default:
		// Destroyed before the lookup resolved, or an unrecognized state;
		// fail open to a direct upstream round-trip.
		return t.Upstream.RoundTrip(req)
	}
}

// forwardAndReconcile issues the single upstream round-trip a
// Forwarding/Validating stream needs (coalesced by request URL, §11), then
// runs the response through OnUpstreamResponseHeaders to fuse a
// successful 304 with the cached body, replace the entry, or pass the new
// response through untouched.
func (t *Transport) forwardAndReconcile(f *Filter, req *http.Request) (*http.Response, error) {
	resp, err := t.forwardCoalesced(req)
	if err != nil {
		return nil, err
	}

	pd := f.down.(*pipeDownstream)
	var serve *http.Response
	var needsStore bool
	// A fused 304 is streamed into pd synchronously, and pd's writes block
	// until the body is read, so reconcile on another goroutine and return
	// as soon as the fused headers are out.
	done := make(chan struct{})
	go func() {
		serve, needsStore = f.OnUpstreamResponseHeaders(resp)
		close(done)
	}()
	fused := false
	select {
	case <-done:
	case <-pd.headerDone:
		fused = true
	}
	if fused || serve == nil {
		// Fused with the cached body: the filter streams it through its
		// own pipeDownstream.
		status, header := pd.awaitHeaders()
		return &http.Response{
			Status:        http.StatusText(status),
			StatusCode:    status,
			Proto:         req.Proto,
			ProtoMajor:    req.ProtoMajor,
			ProtoMinor:    req.ProtoMinor,
			Header:        header,
			Body:          pd.bodyReader(),
			ContentLength: -1,
			Request:       req,
		}, nil
	}

	if f.State() == Done && needsStore {
		if serve.StatusCode != http.StatusNotModified {
			f.Abandon()
		}
		f.StoreIfCacheable(serve)
	}
	return serve, nil
}

// forwardCoalesced issues req via Upstream, collapsing concurrent GET
// requests for the same URL into one round-trip, mirroring the shape of
// the teacher's requestCoalescer (register in-flight, wake waiters on
// completion) while using singleflight instead of a hand-rolled
// sync.Cond rendezvous.
func (t *Transport) forwardCoalesced(req *http.Request) (*http.Response, error) {
	if req.Method != http.MethodGet || req.Body != nil {
		return t.Upstream.RoundTrip(req)
	}

	key := req.URL.String()
	v, err, shared := t.group.Do(key, func() (interface{}, error) {
		return t.Upstream.RoundTrip(req)
	})
	if err != nil {
		return nil, err
	}
	resp := v.(*http.Response)
	if !shared {
		return resp, nil
	}
	// A shared response's body is a single stream that only the first
	// caller to read it will actually drain; clone headers onto a fresh
	// body for every waiter so each gets its own readable copy.
	return cloneSharedResponse(resp)
}

// cloneSharedResponse gives a singleflight waiter its own copy of a
// response shared with other waiters, since only one caller may safely
// read the original Body.
func cloneSharedResponse(resp *http.Response) (*http.Response, error) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Debug().Err(err).Msg("filter: error reading coalesced response body")
		return nil, err
	}
	clone := *resp
	clone.Body = io.NopCloser(bytes.NewReader(body))
	clone.Header = resp.Header.Clone()
	return &clone, nil
}

// pipeDownstream implements Downstream over an io.Pipe, so a cache-hit
// response can be returned to net/http as soon as headers are ready while
// its body streams lazily, chunk by chunk, as the filter's GetBody loop
// produces them — real backpressure comes for free from io.Pipe's
// unbuffered Write blocking until a Read drains it.
type pipeDownstream struct {
	once       sync.Once
	headerDone chan struct{}
	status     int
	header     http.Header

	pr *io.PipeReader
	pw *io.PipeWriter
}

func newPipeDownstream() *pipeDownstream {
	pr, pw := io.Pipe()
	return &pipeDownstream{headerDone: make(chan struct{}), pr: pr, pw: pw}
}

// EncodeHeaders implements Downstream.
func (p *pipeDownstream) EncodeHeaders(status int, header http.Header, endStream bool) {
	p.status = status
	p.header = header
	p.once.Do(func() { close(p.headerDone) })
	if endStream {
		p.pw.Close()
	}
}

// EncodeData implements Downstream.
func (p *pipeDownstream) EncodeData(chunk []byte, endStream bool) {
	if len(chunk) > 0 {
		if _, err := p.pw.Write(chunk); err != nil {
			return
		}
	}
	if endStream {
		p.pw.Close()
	}
}

func (p *pipeDownstream) awaitHeaders() (int, http.Header) {
	<-p.headerDone
	return p.status, p.header
}

func (p *pipeDownstream) bodyReader() io.ReadCloser { return p.pr }
