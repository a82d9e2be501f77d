package filter

import (
	"fmt"
	"net/http"
	"sync/atomic"

	"github.com/kachegate/gatekache/pkg/byterange"
	"github.com/kachegate/gatekache/pkg/store"
	"github.com/rs/zerolog/log"
)

// OnAboveHighWatermark increments the watermark depth, per §4.5.1. While
// depth > 0 the body-streaming loop issues no new GetBody call: the
// already in-flight callback still completes and is injected, but the
// loop then blocks before requesting the next chunk.
func (f *Filter) OnAboveHighWatermark() {
	atomic.AddInt32(&f.watermark, 1)
}

// OnBelowLowWatermark decrements the watermark depth. Depth never goes
// negative: a low-watermark notification with no matching high-watermark
// is ignored, since depth is defined non-negative (§3 invariants).
func (f *Filter) OnBelowLowWatermark() {
	for {
		cur := atomic.LoadInt32(&f.watermark)
		if cur <= 0 {
			return
		}
		if atomic.CompareAndSwapInt32(&f.watermark, cur, cur-1) {
			if cur-1 == 0 {
				select {
				case f.resume <- struct{}{}:
				default:
					// A resume signal is already pending; streamChunks only
					// ever waits for one at a time.
				}
			}
			return
		}
	}
}

// waitForLowWatermark blocks while the watermark depth is above zero,
// per §4.5.1: "already in-flight callback completes ... when depth
// returns to 0 the streaming loop resumes."
func (f *Filter) waitForLowWatermark() {
	for atomic.LoadInt32(&f.watermark) > 0 {
		<-f.resume
	}
}

// markXCache sets the configured debug header (§12 "X-Cache debug
// header") to HIT or MISS, if enabled.
func (f *Filter) markXCache(header http.Header, hit bool) {
	name := f.policy.XCacheHeader()
	if name == "" {
		return
	}
	if hit {
		header.Set(name, store.XCacheHit)
	} else {
		header.Set(name, store.XCacheMiss)
	}
}

// serveFromCache drives the ServingFromCache branch of §4.5: emit cached
// headers (after range evaluation, §4.5.3) and stream the body with
// watermark backpressure (§4.5.1).
func (f *Filter) serveFromCache(result store.LookupResult) {
	header := result.Headers.Clone()
	f.markXCache(header, true)

	ranges := byterange.Parse(f.req.Method, f.req.Header.Values("Range"), f.cfg.MaxRanges)

	switch {
	case len(ranges) == 1:
		f.serveSingleRange(header, result.BodyLength, ranges[0])
	default:
		// Zero or multiple ranges: serve the full representation. Multiple
		// ranges fall back per §4.5.3 (no multipart support); zero ranges
		// is simply the common no-Range-header case.
		f.streamChunks(http.StatusOK, header, result.BodyLength, store.AdjustedRange{First: 0, Last: uint64(result.BodyLength) - 1}, result.BodyLength > 0)
	}
}

// serveSingleRange implements §4.5.3's single-satisfiable-range and
// unsatisfiable-range cases.
func (f *Filter) serveSingleRange(header http.Header, bodyLength int64, raw byterange.Range) {
	adjusted, ok := store.AdjustRange(raw, bodyLength)
	if !ok {
		header.Set("Content-Range", fmt.Sprintf("bytes */%d", bodyLength))
		header.Del("Content-Length")
		f.setState(Done)
		f.down.EncodeHeaders(http.StatusRequestedRangeNotSatisfiable, header, true)
		return
	}

	length := adjusted.Last - adjusted.First + 1
	header.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", adjusted.First, adjusted.Last, bodyLength))
	header.Set("Content-Length", fmt.Sprintf("%d", length))
	f.streamChunks(http.StatusPartialContent, header, bodyLength, adjusted, true)
}

// streamChunks emits headers then repeatedly calls GetBody over
// non-overlapping sub-ranges of rng, each bounded by the configured
// buffer limit, honoring watermark backpressure between calls (§4.5.1).
// hasBody is false only for the zero-length-body case, where headers
// alone carry end-of-stream.
func (f *Filter) streamChunks(status int, header http.Header, bodyLength int64, rng store.AdjustedRange, hasBody bool) {
	if f.isDestroyed() {
		return
	}
	if !hasBody {
		f.setState(Done)
		f.down.EncodeHeaders(status, header, true)
		return
	}

	f.down.EncodeHeaders(status, header, false)
	f.setState(ServingFromCache)

	limit := uint64(f.cfg.BufferLimit)
	offset := rng.First
	for offset <= rng.Last {
		f.waitForLowWatermark()
		if f.isDestroyed() {
			return
		}

		last := offset + limit - 1
		if last > rng.Last {
			last = rng.Last
		}
		chunk := store.AdjustedRange{First: offset, Last: last}
		end := last == rng.Last
		aborted := false

		// GetBody's callback fires synchronously on both bundled backends,
		// completing before this call returns and preserving the
		// one-chunk-in-flight-at-a-time contract that makes the watermark
		// check above meaningful.
		f.lookupCtx.GetBody(chunk, func(data []byte) {
			if f.isDestroyed() {
				return
			}
			if data == nil {
				log.Debug().Msg("filter: body chunk read failed, resetting stream")
				aborted = true
				return
			}
			f.down.EncodeData(data, end)
		})
		if aborted || f.isDestroyed() {
			f.setState(Done)
			return
		}

		offset = last + 1
	}
}

// streamInjectedCache emits the merged cache headers after a successful
// 304 fuse (§4.5 "Response phase") with ContinueAndDontEndStream
// semantics — the framework is told to continue header encoding without
// ending the stream, then the full cached body follows as injected
// encoded data. Range is not re-evaluated here: the precondition headers
// sent for revalidation apply to the full representation, not a range
// request (§4.5.3 only fires on the Fresh/ServingFromCache path).
func (f *Filter) streamInjectedCache(header http.Header, bodyLength int64) {
	f.markXCache(header, true)
	f.streamChunks(http.StatusOK, header, bodyLength, store.AdjustedRange{First: 0, Last: uint64(bodyLength) - 1}, bodyLength > 0)
}
