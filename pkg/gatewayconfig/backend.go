package gatewayconfig

import (
	"fmt"
	"time"

	"github.com/kachegate/gatekache/pkg/store"
	"github.com/kachegate/gatekache/pkg/store/memstore"
	"github.com/kachegate/gatekache/pkg/store/redisstore"
)

// BuildBackend constructs the store.Backend named by cfg. A nil cfg, or a
// Type of "" or "memory", builds an in-memory backend: unbounded if
// MaxSizeBytes is 0, otherwise an LRU-with-byte-budget variant. cache
// supplies the default TTL used for responses with no freshness information
// of their own.
func BuildBackend(cfg *BackendConfig, cache *store.Config) (store.Backend, error) {
	if cfg == nil || cfg.Type == "" || cfg.Type == "memory" {
		if cfg != nil && cfg.MaxSizeBytes > 0 {
			return memstore.NewBounded(cfg.MaxSizeBytes), nil
		}
		return memstore.New(), nil
	}

	if cfg.Type == "redis" {
		var defaultTTL time.Duration
		if cache != nil {
			defaultTTL = cache.DefaultTTL
		}
		return redisstore.New(redisstore.Config{
			Endpoint:   cfg.Redis.Endpoint,
			Username:   cfg.Redis.Username,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			KeyPrefix:  cfg.Redis.KeyPrefix,
			DefaultTTL: defaultTTL,
			MaxTTL:     cfg.Redis.MaxTTL,
		})
	}

	return nil, fmt.Errorf("gatewayconfig: unknown backend type %q", cfg.Type)
}
