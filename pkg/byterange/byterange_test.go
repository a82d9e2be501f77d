package byterange

import (
	"math"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse_Boundary(t *testing.T) {
	cases := []struct {
		name   string
		header string
		want   []Range
	}{
		{"single bounded range", "bytes=1-2", []Range{{First: 1, Last: 2}}},
		{"suffix length", "bytes=-500", []Range{{First: math.MaxUint64, Last: 500}}},
		{"open-ended reinterpreted as suffix", "bytes=500-", []Range{{First: math.MaxUint64, Last: 500, OpenEnded: true}}},
		{
			"multiple ranges",
			"bytes=10-20,30-40,50-50,-1",
			[]Range{
				{First: 10, Last: 20},
				{First: 30, Last: 40},
				{First: 50, Last: 50},
				{First: math.MaxUint64, Last: 1},
			},
		},
		{
			"adjacent to sentinel is representable",
			"bytes=18446744073709551614-18446744073709551615",
			[]Range{{First: 18446744073709551614, Last: 18446744073709551615}},
		},
		{"first equal to sentinel is rejected", "bytes=18446744073709551615-18446744073709551616", nil},
		{"trailing non-numeric spec", "bytes=1-2,3-4,a", nil},
		{"double dash is malformed", "bytes=1-2-3", nil},
		{"missing first digits", "bytes=a-", nil},
		{"double leading dash is malformed", "bytes=--2", nil},
		{"trailing double dash is malformed", "bytes=2--", nil},
		{"missing bytes= prefix", "1-2", nil},
		{"empty after prefix", "bytes=", nil},
		{"trailing comma", "bytes=1-2,", nil},
		{"leading comma", "bytes=,1-2", nil},
		{"first greater than last", "bytes=5-2", nil},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Parse(http.MethodGet, []string{tc.header}, 0)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParse_Preconditions(t *testing.T) {
	t.Run("non-GET method yields empty", func(t *testing.T) {
		assert.Nil(t, Parse(http.MethodPost, []string{"bytes=1-2"}, 0))
	})

	t.Run("multiple Range headers yield empty", func(t *testing.T) {
		assert.Nil(t, Parse(http.MethodGet, []string{"bytes=1-2", "bytes=3-4"}, 0))
	})

	t.Run("no Range header yields empty", func(t *testing.T) {
		assert.Nil(t, Parse(http.MethodGet, nil, 0))
	})

	t.Run("oversized header is rejected under the default length guard", func(t *testing.T) {
		huge := "bytes=" + strings.Repeat("1-2,", 30)
		assert.Greater(t, len(huge), defaultByteLimit)
		assert.Nil(t, Parse(http.MethodGet, []string{huge}, 0))
	})
}

func TestParse_MaxRangesOverridesLengthGuard(t *testing.T) {
	// Five short ranges, well under the byte cap, but over a count cap of 2.
	header := "bytes=1-2,3-4,5-6,7-8,9-10"

	t.Run("count cap rejects wholesale when exceeded", func(t *testing.T) {
		assert.Nil(t, Parse(http.MethodGet, []string{header}, 2))
	})

	t.Run("count cap allows when under the limit", func(t *testing.T) {
		got := Parse(http.MethodGet, []string{header}, 10)
		assert.Len(t, got, 5)
	})
}
