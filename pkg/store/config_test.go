package store

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPolicy_XCacheHeader(t *testing.T) {
	p := NewPolicy(&Config{})
	assert.Equal(t, "", p.XCacheHeader())

	p.Update(&Config{XCache: true})
	assert.Equal(t, xCacheDefault, p.XCacheHeader())

	p.Update(&Config{XCache: true, XCacheName: "X-Gatekache"})
	assert.Equal(t, "X-Gatekache", p.XCacheHeader())
}

func TestPolicy_TTLFor(t *testing.T) {
	p := NewPolicy(&Config{
		Timeouts: []Timeout{
			{Path: `^/static/`, TTL: time.Hour},
			{Path: `^/api/`, TTL: 10 * time.Second},
		},
		DefaultTTL: 30 * time.Second,
	})

	ttl, ok := p.TTLFor("/static/app.js")
	assert.True(t, ok)
	assert.Equal(t, time.Hour, ttl)

	ttl, ok = p.TTLFor("/api/users")
	assert.True(t, ok)
	assert.Equal(t, 10*time.Second, ttl)

	_, ok = p.TTLFor("/other")
	assert.False(t, ok)
	assert.Equal(t, 30*time.Second, p.DefaultTTL())
}

func TestPolicy_IsExcludedPath(t *testing.T) {
	p := NewPolicy(&Config{Exclude: &Exclude{Path: []string{`^/admin/`}}})
	assert.True(t, p.IsExcludedPath("/admin/settings"))
	assert.False(t, p.IsExcludedPath("/public"))
}

func TestPolicy_IsExcludedHeader(t *testing.T) {
	p := NewPolicy(&Config{Exclude: &Exclude{Header: map[string]string{"X_Internal": "1"}}})
	h := http.Header{}
	h.Set("X-Internal", "1")
	assert.True(t, p.IsExcludedHeader(h))

	h.Set("X-Internal", "0")
	assert.False(t, p.IsExcludedHeader(h))
}

func TestPolicy_IsExcludedContent(t *testing.T) {
	p := NewPolicy(&Config{Exclude: &Exclude{Content: []Content{
		{Type: "^image/", Size: 1024},
		{Type: "^video/"},
	}}})

	assert.False(t, p.IsExcludedContent("image/png", 512))
	assert.True(t, p.IsExcludedContent("image/png", 2048))
	assert.True(t, p.IsExcludedContent("video/mp4", 10))
	assert.False(t, p.IsExcludedContent("text/html", 10))
	assert.False(t, p.IsExcludedContent("", 10))
}

func TestPolicy_NoExcludeConfigured(t *testing.T) {
	p := NewPolicy(&Config{})
	assert.False(t, p.IsExcludedPath("/anything"))
	assert.False(t, p.IsExcludedHeader(http.Header{}))
	assert.False(t, p.IsExcludedContent("text/html", 10))
}
