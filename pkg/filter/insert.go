package filter

import (
	"io"

	"github.com/kachegate/gatekache/pkg/store"
)

// teeReadCloser streams a response body to its original reader (the proxy
// copying it to the downstream client) while also feeding every chunk
// into a store.InsertContext, committing on EOF. Mirrors the teacher's
// Transport.RoundTrip, which calls StoreResponse only after buffering the
// whole response via httputil.DumpResponse; this streams instead, so a
// large body is never held twice in memory.
type teeReadCloser struct {
	rc      io.ReadCloser
	sink    store.InsertContext
	aborted bool
}

func newTeeReadCloser(rc io.ReadCloser, sink store.InsertContext) *teeReadCloser {
	return &teeReadCloser{rc: rc, sink: sink}
}

func (t *teeReadCloser) Read(p []byte) (int, error) {
	n, err := t.rc.Read(p)
	if n > 0 && !t.aborted {
		endStream := err == io.EOF
		chunk := append([]byte(nil), p[:n]...)
		t.sink.InsertBody(chunk, func(ready bool) {
			if !ready {
				t.aborted = true
			}
		}, endStream)
	}
	if err == io.EOF && n == 0 && !t.aborted {
		t.sink.InsertBody(nil, nil, true)
	}
	return n, err
}

func (t *teeReadCloser) Close() error {
	return t.rc.Close()
}
