package store

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEvaluate_FreshWithinMaxAge(t *testing.T) {
	now := time.Now()
	entry := &Entry{
		Headers:  http.Header{"Cache-Control": []string{"max-age=3600"}},
		Body:     []byte("abc"),
		StoredAt: now.Add(-10 * time.Second),
	}
	res := Evaluate(entry, http.Header{}, now)
	assert.Equal(t, Fresh, res.Kind)
	assert.Equal(t, int64(3), res.BodyLength)
}

func TestEvaluate_StaleWithValidatorsRequiresValidation(t *testing.T) {
	now := time.Now()
	entry := &Entry{
		Headers: http.Header{
			"Cache-Control": []string{"max-age=10"},
			"Etag":          []string{`"abc"`},
		},
		Body:     []byte("abc"),
		StoredAt: now.Add(-20 * time.Second),
	}
	res := Evaluate(entry, http.Header{}, now)
	assert.Equal(t, RequiresValidation, res.Kind)
	assert.Equal(t, `"abc"`, res.Validators.ETag)
}

func TestEvaluate_StaleWithoutValidatorsIsUnusable(t *testing.T) {
	now := time.Now()
	entry := &Entry{
		Headers:  http.Header{"Cache-Control": []string{"max-age=10"}},
		Body:     []byte("abc"),
		StoredAt: now.Add(-20 * time.Second),
	}
	res := Evaluate(entry, http.Header{}, now)
	assert.Equal(t, Unusable, res.Kind)
}

func TestEvaluate_MaxStaleAllowsServingSlightlyStaleEntry(t *testing.T) {
	now := time.Now()
	entry := &Entry{
		Headers:  http.Header{"Cache-Control": []string{"max-age=10"}},
		Body:     []byte("abc"),
		StoredAt: now.Add(-15 * time.Second),
	}
	req := http.Header{"Cache-Control": []string{"max-stale=10"}}
	res := Evaluate(entry, req, now)
	assert.Equal(t, Fresh, res.Kind)
}

func TestEvaluate_NoStaleResponseForbidsMaxStale(t *testing.T) {
	now := time.Now()
	entry := &Entry{
		Headers: http.Header{
			"Cache-Control": []string{"max-age=10, must-revalidate"},
			"Etag":          []string{`"x"`},
		},
		Body:     []byte("abc"),
		StoredAt: now.Add(-15 * time.Second),
	}
	req := http.Header{"Cache-Control": []string{"max-stale=1000"}}
	res := Evaluate(entry, req, now)
	assert.Equal(t, RequiresValidation, res.Kind)
}

func TestEvaluate_MinFreshForcesValidationBeforeExpiry(t *testing.T) {
	now := time.Now()
	entry := &Entry{
		Headers:  http.Header{"Cache-Control": []string{"max-age=10"}, "Etag": []string{`"x"`}},
		Body:     []byte("abc"),
		StoredAt: now.Add(-5 * time.Second),
	}
	req := http.Header{"Cache-Control": []string{"min-fresh=10"}}
	res := Evaluate(entry, req, now)
	assert.Equal(t, RequiresValidation, res.Kind)
}

func TestEvaluate_RequestMaxAgeForcesValidation(t *testing.T) {
	now := time.Now()
	entry := &Entry{
		Headers:  http.Header{"Cache-Control": []string{"max-age=3600"}, "Etag": []string{`"x"`}},
		Body:     []byte("abc"),
		StoredAt: now.Add(-30 * time.Second),
	}
	req := http.Header{"Cache-Control": []string{"max-age=10"}}
	res := Evaluate(entry, req, now)
	assert.Equal(t, RequiresValidation, res.Kind)
}

func TestEvaluate_OnlyIfCachedServesWhateverIsStored(t *testing.T) {
	now := time.Now()
	entry := &Entry{
		Headers:  http.Header{"Cache-Control": []string{"max-age=10"}},
		Body:     []byte("abc"),
		StoredAt: now.Add(-1000 * time.Second),
	}
	req := http.Header{"Cache-Control": []string{"only-if-cached"}}
	res := Evaluate(entry, req, now)
	assert.Equal(t, Fresh, res.Kind)
}

func TestFreshnessLifetime_ExpiresFallback(t *testing.T) {
	date := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	expires := date.Add(2 * time.Hour)
	h := http.Header{
		"Date":    []string{date.Format(http.TimeFormat)},
		"Expires": []string{expires.Format(http.TimeFormat)},
	}
	assert.Equal(t, 2*time.Hour, FreshnessLifetime(h))
}

func TestFreshnessLifetime_CacheControlTakesPrecedenceOverExpires(t *testing.T) {
	h := http.Header{
		"Cache-Control": []string{"max-age=60"},
		"Expires":       []string{time.Now().Add(time.Hour).Format(http.TimeFormat)},
	}
	assert.Equal(t, 60*time.Second, FreshnessLifetime(h))
}

func TestIsCacheableRequest(t *testing.T) {
	get, _ := http.NewRequest(http.MethodGet, "http://example.com/a", nil)
	assert.True(t, IsCacheableRequest(get))

	post, _ := http.NewRequest(http.MethodPost, "http://example.com/a", nil)
	assert.False(t, IsCacheableRequest(post))

	withAuth, _ := http.NewRequest(http.MethodGet, "http://example.com/a", nil)
	withAuth.Header.Set("Authorization", "Bearer t")
	assert.False(t, IsCacheableRequest(withAuth))

	withIfNoneMatch, _ := http.NewRequest(http.MethodGet, "http://example.com/a", nil)
	withIfNoneMatch.Header.Set("If-None-Match", `"x"`)
	assert.False(t, IsCacheableRequest(withIfNoneMatch))
}

func TestIsCacheableResponse(t *testing.T) {
	assert.True(t, IsCacheableResponse(http.StatusOK, http.Header{}))
	assert.False(t, IsCacheableResponse(http.StatusOK, http.Header{"Cache-Control": []string{"no-store"}}))
	assert.False(t, IsCacheableResponse(http.StatusOK, http.Header{"Vary": []string{"*"}}))
	assert.False(t, IsCacheableResponse(http.StatusTeapot, http.Header{}))
}
