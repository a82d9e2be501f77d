package store

import (
	"net/http"

	"github.com/kachegate/gatekache/pkg/cachecontrol"
)

// cacheableStatusCodes is the set of response statuses eligible for
// caching: GET with a successful (2xx) status, full stop.
var cacheableStatusCodes = map[int]struct{}{
	http.StatusOK:                  {},
	http.StatusNonAuthoritativeInfo: {},
	http.StatusNoContent:           {},
	http.StatusPartialContent:      {},
}

// conditionalRequestHeaders bypass the cache outright: a client already
// driving its own conditional/precondition logic is left to the origin.
var conditionalRequestHeaders = []string{
	"If-Range", "If-Match", "If-None-Match", "If-Modified-Since", "If-Unmodified-Since",
}

// Contains reports whether k is a key of m.
func Contains[K comparable, V any](m map[K]V, k K) bool {
	_, ok := m[k]
	return ok
}

// IsCacheableRequest reports whether req is eligible to be served from, or
// to populate, the cache. Per §4.5.2, only GET is cacheable in this core.
func IsCacheableRequest(req *http.Request) bool {
	for _, h := range conditionalRequestHeaders {
		if _, ok := req.Header[h]; ok {
			return false
		}
	}
	if _, ok := req.Header["Authorization"]; ok {
		return false
	}
	return req.Method == http.MethodGet && req.URL.Path != "" && req.Host != ""
}

// IsCacheableResponse reports whether a response to an (already-cacheable)
// request may be stored. Per §4.5.2: cache only a successful-status GET
// response, and never if Cache-Control carries no-store or private, or Vary
// is "*".
func IsCacheableResponse(statusCode int, header http.Header) bool {
	if !Contains(cacheableStatusCodes, statusCode) {
		return false
	}
	if hasWildcardVary(header) {
		return false
	}
	dir := cachecontrol.ParseResponseDirectives(header.Get("Cache-Control"))
	return !dir.NoStore
}
