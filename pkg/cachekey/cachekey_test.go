package cachekey

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
	req, _ := http.NewRequest(http.MethodGet, "https://example.com/with/path", nil)
	key := New(req, "gatekache-", nil)

	assert.Equal(t, "https", key.Scheme)
	assert.Equal(t, http.MethodGet, key.Method)
	assert.Equal(t, "example.com", key.Host)
	assert.Equal(t, "/with/path", key.Path)
	assert.Equal(t, "", key.Selected)
}

func TestNew_DifferentMethodsDifferentKeys(t *testing.T) {
	get, _ := http.NewRequest(http.MethodGet, "https://example.com/x", nil)
	head, _ := http.NewRequest(http.MethodHead, "https://example.com/x", nil)

	assert.NotEqual(t, New(get, "c-", nil), New(head, "c-", nil))
}

func TestNew_SelectedHeadersFoldIntoKey(t *testing.T) {
	a, _ := http.NewRequest(http.MethodGet, "https://example.com/x", nil)
	a.Header.Set("X-Tenant", "acme")

	b, _ := http.NewRequest(http.MethodGet, "https://example.com/x", nil)
	b.Header.Set("X-Tenant", "globex")

	keyA := New(a, "c-", []string{"X-Tenant"})
	keyB := New(b, "c-", []string{"X-Tenant"})

	assert.NotEqual(t, keyA, keyB)
	assert.NotEqual(t, keyA.Hash(), keyB.Hash())
}

func TestNew_SelectedHeaderOrderIsCanonical(t *testing.T) {
	req, _ := http.NewRequest(http.MethodGet, "https://example.com/x", nil)
	req.Header.Set("X-A", "1")
	req.Header.Set("X-B", "2")

	k1 := New(req, "c-", []string{"X-A", "X-B"})
	k2 := New(req, "c-", []string{"X-B", "X-A"})

	assert.Equal(t, k1, k2)
}

func TestHash_StableAcrossCalls(t *testing.T) {
	req, _ := http.NewRequest(http.MethodGet, "https://example.com/x", nil)
	k := New(req, "c-", nil)

	assert.Equal(t, k.Hash(), k.Hash())
}
