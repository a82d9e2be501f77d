// Package cachekey builds the request fingerprint used as the cache
// backend's sole map key: authority, method, path, and a configurable set
// of "selected" header fields, compared by exact equality.
package cachekey

import (
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	xxhash "github.com/cespare/xxhash/v2"
)

// Key is the cache key: a request fingerprint. Equality is exact and it is
// stable across the lifetime of a cache entry.
type Key struct {
	Cluster  string
	Method   string
	Scheme   string
	Host     string
	Path     string
	Query    string
	Selected string // canonicalized "name=value" pairs for configured header fields
}

// New builds a Key from req. selectedHeaders names additional request
// headers (beyond authority/method/path/query) that participate in the
// fingerprint — e.g. a gateway that shards by tenant header. Names are
// case-insensitive; order doesn't matter, the result is canonicalized.
func New(req *http.Request, cluster string, selectedHeaders []string) Key {
	k := Key{
		Cluster: cluster,
		Method:  req.Method,
		Host:    req.Host,
		Path:    req.URL.Path,
		Query:   req.URL.Query().Encode(),
		Scheme:  req.URL.Scheme,
	}
	if k.Scheme == "" {
		if req.TLS == nil {
			k.Scheme = "http"
		} else {
			k.Scheme = "https"
		}
	}
	k.Selected = canonicalizeSelected(req.Header, selectedHeaders)
	return k
}

// canonicalizeSelected builds a deterministic "name=value\n..." string from
// the given request header across the named fields, sorted by name so that
// the result doesn't depend on caller-supplied ordering.
func canonicalizeSelected(header http.Header, names []string) string {
	if len(names) == 0 {
		return ""
	}
	sorted := append([]string(nil), names...)
	sort.Strings(sorted)

	var b strings.Builder
	for _, name := range sorted {
		canon := http.CanonicalHeaderKey(name)
		fmt.Fprintf(&b, "%s=%s\n", canon, strings.Join(header.Values(canon), "\r"))
	}
	return b.String()
}

// String renders the key as a canonical URL-shaped string, primarily for
// debugging and admin introspection.
func (k Key) String() string {
	u := url.URL{
		Scheme:   k.Scheme,
		Host:     k.Host,
		Path:     k.Path,
		RawQuery: k.Query,
	}
	return fmt.Sprintf("%s%s %s%s", k.Cluster, k.Method, u.String(), k.Selected)
}

// Hash produces a stable 64-bit hash of the key, consistent across restarts,
// architectures, and builds — suitable for sharding a distributed backend.
func (k Key) Hash() uint64 {
	return xxhash.Sum64String(k.String())
}
