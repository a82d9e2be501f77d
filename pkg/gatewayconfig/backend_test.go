package gatewayconfig

import (
	"testing"

	"github.com/kachegate/gatekache/pkg/store/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildBackend_DefaultsToUnboundedMemory(t *testing.T) {
	b, err := BuildBackend(nil, nil)
	require.NoError(t, err)
	_, ok := b.(*memstore.Store)
	assert.True(t, ok)
}

func TestBuildBackend_BoundedMemory(t *testing.T) {
	b, err := BuildBackend(&BackendConfig{Type: "memory", MaxSizeBytes: 1024}, nil)
	require.NoError(t, err)
	_, ok := b.(*memstore.Bounded)
	assert.True(t, ok)
}

func TestBuildBackend_RejectsUnknownType(t *testing.T) {
	_, err := BuildBackend(&BackendConfig{Type: "bogus"}, nil)
	assert.Error(t, err)
}

func TestBuildBackend_RedisRequiresEndpoint(t *testing.T) {
	_, err := BuildBackend(&BackendConfig{Type: "redis"}, nil)
	assert.Error(t, err)
}
