package store

import (
	"net/http"
	"sort"
	"strings"
)

// varyAllowList bounds which request headers an origin is permitted to vary
// a cached representation on. An origin that names a header outside this
// list is treated as varying on everything (see hasWildcardVary) rather
// than trusted to fold an unbounded header space into the cache key.
var varyAllowList = map[string]struct{}{
	"Accept":          {},
	"Accept-Encoding": {},
	"Accept-Language": {},
	"Origin":          {},
}

func allowsHeader(name string) bool {
	_, ok := varyAllowList[http.CanonicalHeaderKey(name)]
	return ok
}

// parseCommaDelimitedHeader splits a comma-delimited header value into its
// trimmed, non-empty fields.
func parseCommaDelimitedHeader(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func hasVary(header http.Header) bool {
	return header.Get("Vary") != ""
}

// hasWildcardVary reports whether the response names "*" in Vary, or names
// any header outside varyAllowList — both are treated as un-cacheable
// variance rather than faithfully reproduced, since this system folds Vary
// into a bounded identifier rather than an unbounded secondary key space.
func hasWildcardVary(header http.Header) bool {
	if !hasVary(header) {
		return false
	}
	for _, name := range parseCommaDelimitedHeader(header.Get("Vary")) {
		if name == "*" || !allowsHeader(name) {
			return true
		}
	}
	return false
}

// varyValues returns the values of reqHeader for each header named in vary,
// in the order named.
func varyValues(vary []string, reqHeader http.Header) []string {
	values := make([]string, 0, len(vary))
	for _, name := range vary {
		values = append(values, reqHeader.Get(name))
	}
	return values
}

// createVaryIdentifier builds the canonical string a cache entry stores
// alongside its response, and that a later request's headers must
// reproduce in order to be served that entry. Header names are sorted so
// that an origin emitting "Vary: A, B" and "Vary: B, A" across two
// responses produces the same identifier.
func createVaryIdentifier(resHeader, reqHeader http.Header) string {
	if !hasVary(resHeader) {
		return ""
	}
	return MatchIdentifier(parseCommaDelimitedHeader(resHeader.Get("Vary")), reqHeader)
}

// MatchIdentifier builds the canonical identifier string for the given
// vary header names against reqHeader's current values. Exported so a
// backend can compute the identifier to store at insert time using the
// exact same canonicalization a later MatchesVary call will use.
func MatchIdentifier(names []string, reqHeader http.Header) string {
	sorted := append([]string(nil), names...)
	sort.Strings(sorted)
	var b strings.Builder
	for _, name := range sorted {
		b.WriteString(http.CanonicalHeaderKey(name))
		b.WriteByte('=')
		b.WriteString(reqHeader.Get(name))
		b.WriteByte('\n')
	}
	return b.String()
}

// MatchesVary reports whether req would be served the representation
// stored under varyIdentifier, given resHeader's Vary declaration at store
// time. Called by a lookup to reject entries that vary on headers the new
// request doesn't reproduce.
func MatchesVary(varyIdentifier string, storedVary []string, reqHeader http.Header) bool {
	if varyIdentifier == "" {
		return true
	}
	return MatchIdentifier(storedVary, reqHeader) == varyIdentifier
}
