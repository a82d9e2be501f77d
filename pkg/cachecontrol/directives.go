// Package cachecontrol implements the Cache-Control directive grammar and
// the RFC 7231 HTTP-date formats used to decide cache freshness.
package cachecontrol

import (
	"math"
	"time"

	"github.com/kachegate/gatekache/internal/numparse"
)

// EffectiveMaxAge parses the raw value of a Cache-Control header and
// returns the effective freshness lifetime.
//
// Directives are scanned left to right:
//   - "no-cache", as a complete token, short-circuits to zero.
//   - "s-maxage=<digits>" sets the lifetime and is sticky: once observed, a
//     later "max-age" is ignored.
//   - "max-age=<digits>" sets the lifetime unless s-maxage already won.
//   - any other token (with or without an argument) is otherwise ignored.
//
// Malformed input — a directive not beginning with a tchar, an unterminated
// quoted-string argument, or stray bytes after a numeric argument before the
// next comma or end of string — returns zero ("validation required").
func EffectiveMaxAge(header string) time.Duration {
	var lifetime time.Duration
	sMaxAgeSet := false

	s := header
	for {
		s = skipOWS(s)
		if s == "" {
			break
		}

		name, rest := token(s)
		if name == "" {
			return 0
		}
		s = rest

		var (
			numOK  bool
			numVal time.Duration
		)

		if len(s) > 0 && s[0] == '=' {
			s = s[1:]
			switch name {
			case "max-age", "s-maxage":
				var d numparse.Digits
				if len(s) > 0 && s[0] == '"' {
					inner, rem, ok := quotedString(s)
					if !ok {
						return 0
					}
					d = numparse.Scan(inner)
					if !d.Ok() || d.Consumed != len(inner) {
						return 0
					}
					s = rem
				} else {
					d = numparse.Scan(s)
					if !d.Ok() {
						return 0
					}
					s = s[d.Consumed:]
					if len(s) > 0 && s[0] != ',' && !numparse.IsSpace(s[0]) {
						return 0
					}
				}
				numVal = secondsToDuration(d)
				numOK = true
			default:
				if len(s) > 0 && s[0] == '"' {
					_, rem, ok := quotedString(s)
					if !ok {
						return 0
					}
					s = rem
				} else {
					t, rem := token(s)
					if t == "" {
						return 0
					}
					s = rem
				}
			}
		}

		switch name {
		case "no-cache":
			return 0
		case "s-maxage":
			if numOK {
				lifetime = numVal
				sMaxAgeSet = true
			}
		case "max-age":
			if numOK && !sMaxAgeSet {
				lifetime = numVal
			}
		}

		s = skipOWS(s)
		if s == "" {
			break
		}
		if s[0] != ',' {
			return 0
		}
		s = s[1:]
	}

	return lifetime
}

// secondsToDuration converts a parsed delta-seconds digit run into a
// time.Duration, saturating to the maximum representable duration on
// overflow, per §4.1's numeric parsing rules.
func secondsToDuration(d numparse.Digits) time.Duration {
	const maxSeconds = uint64(math.MaxInt64) / uint64(time.Second)
	if d.Overflow || d.Value > maxSeconds {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d.Value) * time.Second
}

// skipOWS strips leading ASCII optional whitespace (space, tab).
func skipOWS(s string) string {
	i := 0
	for i < len(s) && numparse.IsSpace(s[i]) {
		i++
	}
	return s[i:]
}
