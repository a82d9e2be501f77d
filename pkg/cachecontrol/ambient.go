package cachecontrol

import (
	"math"
	"net/http"
	"strings"
	"time"
)

// RequestDirectives holds the parsed request Cache-Control header. Unlike
// EffectiveMaxAge, this parser is permissive: it is used for ambient
// cacheability decisions (§4.5.2), not for the strict §4.1 freshness
// calculation, so malformed directives are simply ignored rather than
// invalidating the whole header.
type RequestDirectives struct {
	// MustValidate is true if the 'no-cache' directive is present: a cached
	// response must not be served without successful revalidation.
	MustValidate bool

	// NoStore is true if the 'no-store' directive is present.
	NoStore bool

	// NoTransform is true if the 'no-transform' directive is present.
	NoTransform bool

	// OnlyIfCached is true if the 'only-if-cached' directive is present: the
	// request should be satisfied from cache only, or fail.
	OnlyIfCached bool

	// MaxAge is the client's maximum acceptable response age, or -1 if absent.
	MaxAge time.Duration

	// MinFresh is the minimum freshness lifetime remaining the client will
	// accept, or -1 if absent.
	MinFresh time.Duration

	// MaxStale is how far past expiry the client will accept, or -1 if
	// absent. math.MaxInt64 means "any staleness", for a bare 'max-stale'.
	MaxStale time.Duration
}

func (cc *RequestDirectives) setDefaults() {
	cc.MaxAge = -1
	cc.MinFresh = -1
	cc.MaxStale = -1
}

// ParseRequestDirectives parses a request Cache-Control header value.
func ParseRequestDirectives(header string) RequestDirectives {
	var cc RequestDirectives
	cc.setDefaults()

	for _, directive := range strings.Split(header, ",") {
		name, arg := splitDirective(directive)
		switch name {
		case "no-cache":
			cc.MustValidate = true
		case "no-store":
			cc.NoStore = true
		case "no-transform":
			cc.NoTransform = true
		case "only-if-cached":
			cc.OnlyIfCached = true
		case "max-age":
			cc.MaxAge = parseDeltaSeconds(arg)
		case "min-fresh":
			cc.MinFresh = parseDeltaSeconds(arg)
		case "max-stale":
			if arg != "" {
				cc.MaxStale = parseDeltaSeconds(arg)
			} else {
				cc.MaxStale = math.MaxInt64
			}
		}
	}
	return cc
}

// ResponseDirectives holds the parsed response Cache-Control header for
// ambient cacheability decisions.
type ResponseDirectives struct {
	// MustValidate is true if 'no-cache' is present.
	MustValidate bool

	// NoStore is true if 'no-store' or 'private' is present.
	NoStore bool

	// NoTransform is true if 'no-transform' is present.
	NoTransform bool

	// NoStale is true if 'must-revalidate' or 'proxy-revalidate' is present.
	NoStale bool

	// IsPublic is true if 'public' is present.
	IsPublic bool

	// MaxAge is 's-maxage' if present, else 'max-age' if present, else -1.
	MaxAge time.Duration
}

func (cc *ResponseDirectives) setDefaults() {
	cc.MaxAge = -1
}

// ParseResponseDirectives parses a response Cache-Control header value for
// the ambient (non-strict) fields used alongside EffectiveMaxAge.
func ParseResponseDirectives(header string) ResponseDirectives {
	var cc ResponseDirectives
	cc.setDefaults()

	for _, directive := range strings.Split(header, ",") {
		name, arg := splitDirective(directive)
		switch name {
		case "no-cache":
			cc.MustValidate = true
		case "no-store", "private":
			cc.NoStore = true
		case "no-transform":
			cc.NoTransform = true
		case "must-revalidate", "proxy-revalidate":
			cc.NoStale = true
		case "public":
			cc.IsPublic = true
		case "s-maxage":
			cc.MaxAge = parseDeltaSeconds(arg)
		case "max-age":
			if cc.MaxAge < 0 {
				cc.MaxAge = parseDeltaSeconds(arg)
			}
		}
	}
	return cc
}

// splitDirective splits a single cache-directive into its token and
// optional argument: cache-directive = token [ "=" ( token / quoted-string ) ]
func splitDirective(s string) (name string, arg string) {
	if strings.ContainsRune(s, '=') {
		parts := strings.SplitN(strings.TrimSpace(s), "=", 2)
		return parts[0], parts[1]
	}
	return strings.TrimSpace(s), ""
}

// parseDeltaSeconds parses a delta-seconds directive argument permissively,
// returning -1 for anything that doesn't parse as a non-negative duration.
func parseDeltaSeconds(s string) time.Duration {
	s = strings.Trim(strings.TrimSpace(s), `"'`)
	d, err := time.ParseDuration(s + "s")
	if err != nil || d < 0 {
		return -1
	}
	return d
}

// ParseHTTPDate parses an HTTP-date header value, accepting all three
// formats a recipient must per RFC 7231 §7.1.1.1:
//
//	Sun, 06 Nov 1994 08:49:37 GMT    ; IMF-fixdate (preferred)
//	Sunday, 06-Nov-94 08:49:37 GMT   ; obsolete RFC 850
//	Sun Nov  6 08:49:37 1994         ; ANSI C asctime()
//
// Returns the zero time.Time if s is empty or matches none of them.
func ParseHTTPDate(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	const obsoleteRFC850 = "Monday, 02-Jan-06 15:04:05 GMT" // hard-coded GMT, per spec
	for _, layout := range [...]string{http.TimeFormat, obsoleteRFC850, time.ANSIC} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// CalculateAge computes the current_age of a cached response per
// https://httpwg.org/specs/rfc7234.html#age.calculations, given the response
// headers, the time the response was received, and the current time.
func CalculateAge(headers http.Header, responseTime, now time.Time) time.Duration {
	var apparentAge int64
	if date := ParseHTTPDate(headers.Get("Date")); !date.IsZero() {
		apparentAge = maxInt64(0, int64(responseTime.Sub(date)))
	}

	age, err := time.ParseDuration(headers.Get("Age") + "s")
	if err != nil {
		age = 0
	}
	correctedInitialAge := maxInt64(apparentAge, int64(age))

	residentTime := now.Sub(responseTime)
	return time.Duration(correctedInitialAge + int64(residentTime))
}

func maxInt64(x, y int64) int64 {
	if x < y {
		return y
	}
	return x
}
