package memstore

import (
	"net/http"
	"time"

	"github.com/kachegate/gatekache/pkg/cachekey"
	"github.com/kachegate/gatekache/pkg/store"
)

type lookupContext struct {
	backend backend
	key     cachekey.Key
	req     *http.Request
}

func (l *lookupContext) GetHeaders(cb store.HeadersCallback) {
	entry, ok := l.backend.get(l.key.Hash())
	if !ok || !matchesRequest(entry, l.req) {
		cb(store.LookupResult{Kind: store.NotFound})
		return
	}
	cb(store.Evaluate(entry, l.req.Header, time.Now()))
}

func (l *lookupContext) GetBody(r store.AdjustedRange, cb store.BodyCallback) {
	entry, ok := l.backend.get(l.key.Hash())
	if !ok {
		cb(nil)
		return
	}
	if r.Last >= uint64(len(entry.Body)) || r.First > r.Last {
		cb(nil)
		return
	}
	cb(entry.Body[r.First : r.Last+1])
}

func (l *lookupContext) GetTrailers(cb store.TrailersCallback) {
	cb(nil)
}

type insertContext struct {
	backend   backend
	key       cachekey.Key
	req       *http.Request
	headers   http.Header
	body      []byte
	committed bool
}

func (i *insertContext) InsertHeaders(headers http.Header, endStream bool) {
	i.headers = headers.Clone()
	if endStream {
		i.commit()
	}
}

func (i *insertContext) InsertBody(chunk []byte, ready store.ReadyCallback, endStream bool) {
	if i.committed {
		return
	}
	i.body = append(i.body, chunk...)
	if endStream {
		i.commit()
		return
	}
	if ready != nil {
		ready(true)
	}
}

func (i *insertContext) InsertTrailers(http.Header) {}

func (i *insertContext) commit() {
	if i.committed {
		return
	}
	i.committed = true
	varyNames := varyNamesFrom(i.headers)
	var varyIdentifier string
	if i.req != nil {
		varyIdentifier = identifierFor(varyNames, i.req.Header)
	}
	entry := &store.Entry{
		Headers:        i.headers,
		Body:           i.body,
		VaryNames:      varyNames,
		VaryIdentifier: varyIdentifier,
		StoredAt:       time.Now(),
	}
	i.backend.set(i.key.Hash(), entry)
}

func identifierFor(names []string, reqHeader http.Header) string {
	if len(names) == 0 {
		return ""
	}
	return store.MatchIdentifier(names, reqHeader)
}
