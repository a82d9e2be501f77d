// Package gatewayconfig defines the root YAML configuration for the
// gatekache process and a hot-reloading Loader, adapted from the teacher's
// pkg/config package.
package gatewayconfig

import (
	"errors"
	"time"

	"github.com/kachegate/gatekache/pkg/logging"
	"github.com/kachegate/gatekache/pkg/store"
)

var (
	errInvalidListeners = errors.New("gatewayconfig: at least one listener is required")
	errInvalidUpstreams = errors.New("gatewayconfig: at least one upstream is required")
)

// Configuration is the root configuration.
type Configuration struct {
	Listeners Listeners `yaml:"listeners"`
	Upstreams Upstreams `yaml:"upstreams"`

	Cache   *store.Config   `yaml:"cache"`
	Backend *BackendConfig  `yaml:"backend"`
	Cluster *ClusterConfig  `yaml:"cluster"`
	API     *APIConfig      `yaml:"api"`
	Log     *logging.Config `yaml:"logging"`
}

// Validate validates the configuration.
func (c *Configuration) Validate() error {
	return errors.Join(c.Listeners.Validate(), c.Upstreams.Validate())
}

// Listeners maps a listener name to its config.
type Listeners map[string]*Listener

// Listener holds one inbound listener's address.
type Listener struct {
	Addr string `yaml:"addr"`
}

// Validate requires at least one listener.
func (l Listeners) Validate() error {
	if len(l) < 1 {
		return errInvalidListeners
	}
	return nil
}

// Upstreams lists the origins the filter may forward requests to.
type Upstreams []*Upstream

// Upstream holds one forwarding target.
type Upstream struct {
	Name string `yaml:"name"`
	Addr string `yaml:"addr"`
	Path string `yaml:"path"`
}

// Validate requires at least one upstream.
func (u Upstreams) Validate() error {
	if len(u) < 1 {
		return errInvalidUpstreams
	}
	return nil
}

// BackendConfig selects and configures the cache storage backend.
type BackendConfig struct {
	// Type is "memory" (default) or "redis".
	Type string `yaml:"type"`

	// MaxSizeBytes bounds a "memory" backend's total entry size; 0 means
	// unbounded (the never-evicting reference backend).
	MaxSizeBytes uint64 `yaml:"max_size_bytes"`

	Redis RedisConfig `yaml:"redis"`
}

// RedisConfig configures a "redis" backend.
type RedisConfig struct {
	Endpoint  string        `yaml:"endpoint"`
	Username  string        `yaml:"username"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	KeyPrefix string        `yaml:"key_prefix"`
	MaxTTL    time.Duration `yaml:"max_ttl"`
}

// ClusterConfig configures peer topology discovery for cache_info
// aggregation.
type ClusterConfig struct {
	// Enabled turns on Kubernetes Endpoints-based peer discovery.
	Enabled bool `yaml:"enabled"`

	// Namespace and Service identify the Endpoints object to watch.
	Namespace string `yaml:"namespace"`
	Service   string `yaml:"service"`

	// PortName is the named port (as declared on the Service/Endpoints
	// object) to report for each peer, typically the admin API's port.
	PortName string `yaml:"port_name"`
}

// APIConfig configures the administrative API.
type APIConfig struct {
	Port   int    `yaml:"port"`
	Prefix string `yaml:"prefix,omitempty"`
	Debug  bool   `yaml:"debug,omitempty"`
}

// GetPrefix returns the configured API path prefix, defaulting to "/api".
func (a *APIConfig) GetPrefix() string {
	if a != nil && a.Prefix != "" {
		return a.Prefix
	}
	return "/api"
}
