package store

import "github.com/kachegate/gatekache/pkg/byterange"

// AdjustedRange is a raw range resolved against a known body length: a
// concrete [First, Last] with Last < body length.
type AdjustedRange struct {
	First uint64
	Last  uint64
}

// AdjustRange resolves a raw byterange.Range against bodyLength, per
// §4.5.3. Returns ok=false if the range is unsatisfiable.
//
// Every range is unsatisfiable against an empty body. Otherwise a genuine
// suffix ("-N") truncates to the body when it overruns and is
// unsatisfiable only when it requests zero bytes. An open-ended range
// ("N-", stored suffix-shaped with OpenEnded set) is unsatisfiable as soon
// as its start is at or past the body length — it does not truncate.
func AdjustRange(r byterange.Range, bodyLength int64) (AdjustedRange, bool) {
	if bodyLength <= 0 {
		return AdjustedRange{}, false
	}
	length := uint64(bodyLength)

	if r.IsSuffix() {
		if r.OpenEnded {
			first := r.Last
			if first >= length {
				return AdjustedRange{}, false
			}
			return AdjustedRange{First: first, Last: length - 1}, true
		}
		n := r.Last
		if n == 0 {
			return AdjustedRange{}, false
		}
		if n > length {
			n = length
		}
		return AdjustedRange{First: length - n, Last: length - 1}, true
	}

	if r.First >= length {
		return AdjustedRange{}, false
	}
	last := r.Last
	if last >= length {
		last = length - 1
	}
	return AdjustedRange{First: r.First, Last: last}, true
}
