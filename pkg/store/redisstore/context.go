package redisstore

import (
	"net/http"
	"strings"
	"time"

	"github.com/kachegate/gatekache/pkg/cachekey"
	"github.com/kachegate/gatekache/pkg/store"
)

type lookupContext struct {
	store *Store
	key   cachekey.Key
	req   *http.Request
	entry *store.Entry
}

func (l *lookupContext) GetHeaders(cb store.HeadersCallback) {
	entry := l.store.fetch(l.key.Hash())
	if entry == nil || !matchesVary(entry, l.req) {
		cb(store.LookupResult{Kind: store.NotFound})
		return
	}
	l.entry = entry
	cb(store.Evaluate(entry, l.req.Header, time.Now()))
}

func (l *lookupContext) GetBody(r store.AdjustedRange, cb store.BodyCallback) {
	entry := l.entry
	if entry == nil {
		entry = l.store.fetch(l.key.Hash())
	}
	if entry == nil || r.Last >= uint64(len(entry.Body)) || r.First > r.Last {
		cb(nil)
		return
	}
	cb(entry.Body[r.First : r.Last+1])
}

func (l *lookupContext) GetTrailers(cb store.TrailersCallback) {
	cb(nil)
}

func matchesVary(entry *store.Entry, req *http.Request) bool {
	if len(entry.VaryNames) == 0 {
		return true
	}
	return store.MatchesVary(entry.VaryIdentifier, entry.VaryNames, req.Header)
}

type insertContext struct {
	store     *Store
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
	if i.req != nil && len(varyNames) > 0 {
		varyIdentifier = store.MatchIdentifier(varyNames, i.req.Header)
	}
	entry := &store.Entry{
		Headers:        i.headers,
		Body:           i.body,
		VaryNames:      varyNames,
		VaryIdentifier: varyIdentifier,
		StoredAt:       time.Now(),
	}
	i.store.commit(i.key.Hash(), entry)
}

func varyNamesFrom(resHeader http.Header) []string {
	v := resHeader.Get("Vary")
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	names := make([]string, 0, len(parts))
	for _, p := range parts {
		if name := strings.TrimSpace(p); name != "" {
			names = append(names, name)
		}
	}
	return names
}
