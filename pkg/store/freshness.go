package store

import (
	"net/http"
	"strconv"
	"time"

	"github.com/kachegate/gatekache/pkg/cachecontrol"
)

// FreshnessLifetime computes how long a response may be served without
// revalidation, per §4.1: Cache-Control governs whenever it's present at
// all (even a bare "no-cache" collapses it to zero via EffectiveMaxAge),
// falling back to an Expires/Date delta only when the response carries no
// Cache-Control header at all.
func FreshnessLifetime(h http.Header) time.Duration {
	if cc := h.Get("Cache-Control"); cc != "" {
		return cachecontrol.EffectiveMaxAge(cc)
	}
	expiresStr := h.Get("Expires")
	if expiresStr == "" {
		return 0
	}
	expires := cachecontrol.ParseHTTPDate(expiresStr)
	if expires.IsZero() {
		return 0
	}
	date := cachecontrol.ParseHTTPDate(h.Get("Date"))
	if date.IsZero() {
		date = expires
	}
	lifetime := expires.Sub(date)
	if lifetime < 0 {
		return 0
	}
	return lifetime
}

// Evaluate decides whether a stored entry may be served as-is, must be
// revalidated, or is unusable, for a request arriving at "now" against an
// entry committed at entry.StoredAt (the entry's own Age baseline). Adapts the
// freshness/staleness/min-fresh/max-stale decision tree a caching
// intermediary applies on every lookup.
func Evaluate(entry *Entry, reqHeader http.Header, now time.Time) LookupResult {
	age := cachecontrol.CalculateAge(entry.Headers, entry.StoredAt, now)
	lifetime := FreshnessLifetime(entry.Headers)

	reqDir := cachecontrol.ParseRequestDirectives(reqHeader.Get("Cache-Control"))
	resDir := cachecontrol.ParseResponseDirectives(entry.Headers.Get("Cache-Control"))

	validators := Validators{
		ETag:         entry.Headers.Get("ETag"),
		LastModified: entry.Headers.Get("Last-Modified"),
	}

	if reqDir.OnlyIfCached {
		// The caller asked not to go upstream; report what we have as-is
		// rather than forcing a revalidation it explicitly opted out of.
		return makeResult(Fresh, entry, age, validators)
	}

	needsValidation := resDir.MustValidate || reqDir.MustValidate

	if reqDir.MaxAge > 0 && age > reqDir.MaxAge {
		needsValidation = true
	}

	stale := age > lifetime
	if stale {
		if resDir.NoStale || reqDir.MaxStale == 0 {
			needsValidation = true
		} else if age-lifetime > reqDir.MaxStale {
			needsValidation = true
		}
	}

	if reqDir.MinFresh > 0 && lifetime-age < reqDir.MinFresh {
		needsValidation = true
	}

	if !needsValidation {
		return makeResult(Fresh, entry, age, validators)
	}
	if validators.Empty() {
		return makeResult(Unusable, entry, age, validators)
	}
	return makeResult(RequiresValidation, entry, age, validators)
}

func makeResult(kind ResultKind, entry *Entry, age time.Duration, validators Validators) LookupResult {
	headers := entry.Headers.Clone()
	headers.Set("Age", formatAgeSeconds(age))
	return LookupResult{
		Kind:       kind,
		Headers:    headers,
		BodyLength: int64(len(entry.Body)),
		Validators: validators,
	}
}

func formatAgeSeconds(age time.Duration) string {
	secs := int64(age / time.Second)
	if secs < 0 {
		secs = 0
	}
	return strconv.FormatInt(secs, 10)
}
