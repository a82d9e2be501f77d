// Package redisstore is a distributed cache backend over Redis, for
// deployments sharing one cache across multiple filter instances. Entries
// are gob-encoded (store.Entry.Encode/DecodeEntry) and stored with a TTL
// derived from the response's own freshness lifetime.
package redisstore

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kachegate/gatekache/pkg/cachekey"
	"github.com/kachegate/gatekache/pkg/store"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// ErrNoEndpoint is returned by New when Config.Endpoint is empty.
var ErrNoEndpoint = errors.New("redisstore: no endpoint configured")

// Config holds the Redis connection parameters.
type Config struct {
	// Endpoint is a single address or a comma-separated list of
	// host:port addresses of cluster/sentinel nodes.
	Endpoint string `yaml:"endpoint"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`

	// DefaultTTL is used for entries whose response carries no freshness
	// information of its own.
	DefaultTTL time.Duration `yaml:"default_ttl"`

	// MaxTTL caps the TTL derived from a response's own freshness lifetime.
	// Zero means uncapped.
	MaxTTL time.Duration `yaml:"max_ttl"`

	// KeyPrefix namespaces this store's keys within a shared Redis
	// instance.
	KeyPrefix string `yaml:"key_prefix"`
}

// Store is a Redis-backed cache backend.
type Store struct {
	client redis.UniversalClient
	config Config
}

var _ store.Backend = (*Store)(nil)

// New connects to Redis per config and pings it to fail fast on
// misconfiguration.
func New(config Config) (*Store, error) {
	if config.Endpoint == "" {
		return nil, ErrNoEndpoint
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    strings.Split(config.Endpoint, ","),
		Username: config.Username,
		Password: config.Password,
		DB:       config.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, err
	}
	return NewWithClient(client, config), nil
}

// NewWithClient builds a Store over an already-constructed client, for
// tests driving an in-process miniredis server.
func NewWithClient(client redis.UniversalClient, config Config) *Store {
	return &Store{client: client, config: config}
}

func (s *Store) redisKey(hash uint64) string {
	return s.config.KeyPrefix + strconv.FormatUint(hash, 16)
}

func (s *Store) fetch(hash uint64) *store.Entry {
	raw, err := s.client.Get(context.Background(), s.redisKey(hash)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Error().Err(err).Str("key", s.redisKey(hash)).Msg("redisstore: fetch failed")
		}
		return nil
	}
	entry, err := store.DecodeEntry(raw)
	if err != nil {
		log.Error().Err(err).Str("key", s.redisKey(hash)).Msg("redisstore: decode failed")
		return nil
	}
	return entry
}

func (s *Store) commit(hash uint64, entry *store.Entry) {
	data, err := entry.Encode()
	if err != nil {
		log.Error().Err(err).Msg("redisstore: encode failed")
		return
	}
	ttl := s.ttlFor(entry.Headers)
	if err := s.client.Set(context.Background(), s.redisKey(hash), data, ttl).Err(); err != nil {
		log.Error().Err(err).Str("key", s.redisKey(hash)).Msg("redisstore: store failed")
	}
}

func (s *Store) ttlFor(headers http.Header) time.Duration {
	ttl := store.FreshnessLifetime(headers)
	if ttl <= 0 {
		ttl = s.config.DefaultTTL
	}
	if s.config.MaxTTL > 0 && ttl > s.config.MaxTTL {
		ttl = s.config.MaxTTL
	}
	return ttl
}

// MakeLookupContext implements store.Backend.
func (s *Store) MakeLookupContext(key cachekey.Key, req *http.Request) store.LookupContext {
	return &lookupContext{store: s, key: key, req: req}
}

// MakeInsertContext implements store.Backend.
func (s *Store) MakeInsertContext(key cachekey.Key, req *http.Request) store.InsertContext {
	return &insertContext{store: s, key: key, req: req, headers: make(http.Header)}
}

// UpdateHeaders implements store.Backend.
func (s *Store) UpdateHeaders(key cachekey.Key, newHeaders http.Header) error {
	hash := key.Hash()
	entry := s.fetch(hash)
	if entry == nil {
		return nil
	}
	merged := entry.Headers.Clone()
	for name, values := range newHeaders {
		switch http.CanonicalHeaderKey(name) {
		case "Content-Range", "Content-Length", "Etag", "Vary":
			continue
		default:
			merged[name] = values
		}
	}
	entry.Headers = merged
	s.commit(hash, entry)
	return nil
}

// CacheInfo implements store.Backend.
func (s *Store) CacheInfo() store.CacheInfo {
	ctx := context.Background()
	count := 0
	iter := s.client.Scan(ctx, 0, s.config.KeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		count++
	}
	return store.CacheInfo{Name: "redisstore", Backend: "redis", EntryCount: count}
}

// Keys implements store.Backend. The hash is recovered from the stored key
// string's hex suffix.
func (s *Store) Keys() []uint64 {
	ctx := context.Background()
	var keys []uint64
	iter := s.client.Scan(ctx, 0, s.config.KeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		suffix := strings.TrimPrefix(iter.Val(), s.config.KeyPrefix)
		hash, err := strconv.ParseUint(suffix, 16, 64)
		if err != nil {
			continue
		}
		keys = append(keys, hash)
	}
	return keys
}

// Purge implements store.Backend.
func (s *Store) Purge(hash uint64) bool {
	n, err := s.client.Del(context.Background(), s.redisKey(hash)).Result()
	if err != nil {
		log.Error().Err(err).Str("key", s.redisKey(hash)).Msg("redisstore: purge failed")
		return false
	}
	return n > 0
}

// Flush implements store.Backend. Removes only this store's keys, leaving
// the rest of a shared Redis instance untouched.
func (s *Store) Flush() {
	ctx := context.Background()
	iter := s.client.Scan(ctx, 0, s.config.KeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := s.client.Del(ctx, iter.Val()).Err(); err != nil {
			log.Error().Err(err).Str("key", iter.Val()).Msg("redisstore: flush failed")
		}
	}
}
