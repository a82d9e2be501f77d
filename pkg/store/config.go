package store

import (
	"net/http"
	"regexp"
	"strings"
	"sync/atomic"
	"time"
)

// xCacheDefault is the default name of the debug header reporting cache
// outcome.
const xCacheDefault = "X-Cache"

// Outcome values reported via the X-Cache debug header.
const (
	XCacheHit  = "HIT"
	XCacheMiss = "MISS"
)

// Config holds the administrative cache policy: debug-header behavior and
// the exclusion rules a path, request header, or response content-type can
// trigger to bypass the cache entirely.
type Config struct {
	// XCache enables the debug header on responses the filter serves from
	// cache (including 304-fused ones); forwarded responses get none.
	XCache bool `yaml:"x_header" json:"x_header"`

	// XCacheName overrides the debug header's name. Defaults to "X-Cache".
	XCacheName string `yaml:"x_header_name" json:"x_header_name"`

	// DefaultTTL is used for a response that carries no freshness
	// information of its own.
	DefaultTTL time.Duration `yaml:"default_ttl" json:"default_ttl"`

	// Timeouts holds per-path TTL overrides, tried in order; the first
	// matching Path regex wins.
	Timeouts []Timeout `yaml:"timeouts" json:"timeouts"`

	// Exclude holds the cache bypass rules.
	Exclude *Exclude `yaml:"exclude" json:"exclude"`
}

// Timeout overrides the TTL for requests whose path matches Path.
type Timeout struct {
	Path    string        `yaml:"path" json:"path"`
	TTL     time.Duration `yaml:"ttl" json:"ttl"`
	matcher *regexp.Regexp
}

// Exclude holds the cache bypass configuration.
type Exclude struct {
	// Path lists regexes matched against the request path; a match bypasses
	// the cache for that request.
	Path []string `yaml:"path" json:"path"`

	// Header maps a request header name to a value; a request carrying
	// that exact header/value pair bypasses the cache.
	Header map[string]string `yaml:"header" json:"header"`

	// Content lists response content-type rules; a matching response is
	// excluded from caching (optionally only once it exceeds Size bytes).
	Content []Content `yaml:"content" json:"content"`

	pathMatchers    []*regexp.Regexp
	contentMatchers []*regexp.Regexp
}

// Content excludes responses by content-type, optionally only above Size
// bytes.
type Content struct {
	Type string `yaml:"type" json:"type"`
	Size int    `yaml:"size,omitempty" json:"size,omitempty"`
}

// Policy wraps a Config behind an atomic pointer so it can be hot-reloaded
// without locking readers, matching the teacher's HttpCache/HttpCacheConfig
// pattern.
type Policy struct {
	config atomic.Pointer[Config]
}

// NewPolicy builds a Policy from an initial Config, compiling its regexes.
func NewPolicy(config *Config) *Policy {
	p := &Policy{}
	if config == nil {
		config = &Config{}
	}
	p.Update(config)
	return p
}

// Update installs a new Config, compiling its path/content regexes first.
// Safe to call concurrently with any Policy method.
func (p *Policy) Update(config *Config) {
	for i, t := range config.Timeouts {
		if r, err := regexp.Compile(t.Path); err == nil {
			config.Timeouts[i].matcher = r
		}
	}
	if config.Exclude != nil {
		config.Exclude.pathMatchers = make([]*regexp.Regexp, 0, len(config.Exclude.Path))
		for _, path := range config.Exclude.Path {
			if r, err := regexp.Compile(path); err == nil {
				config.Exclude.pathMatchers = append(config.Exclude.pathMatchers, r)
			}
		}
		config.Exclude.contentMatchers = make([]*regexp.Regexp, len(config.Exclude.Content))
		for i, c := range config.Exclude.Content {
			if r, err := regexp.Compile(c.Type); err == nil {
				config.Exclude.contentMatchers[i] = r
			}
		}
	}
	p.config.Store(config)
}

func (p *Policy) load() *Config {
	if c := p.config.Load(); c != nil {
		return c
	}
	return &Config{}
}

// Snapshot returns the currently active Config, for administrative
// introspection. The returned value must not be mutated; call Update with
// a new Config to change policy.
func (p *Policy) Snapshot() *Config {
	return p.load()
}

// XCacheHeader returns the debug header name to attach, or "" if disabled.
func (p *Policy) XCacheHeader() string {
	config := p.load()
	if !config.XCache {
		return ""
	}
	if config.XCacheName == "" {
		return xCacheDefault
	}
	return config.XCacheName
}

// TTLFor returns the configured TTL override for path, and whether one
// matched.
func (p *Policy) TTLFor(path string) (time.Duration, bool) {
	config := p.load()
	for _, t := range config.Timeouts {
		if t.matcher != nil && t.matcher.MatchString(path) {
			return t.TTL, true
		}
	}
	return 0, false
}

// DefaultTTL returns the configured default TTL.
func (p *Policy) DefaultTTL() time.Duration {
	return p.load().DefaultTTL
}

// IsExcludedPath reports whether path bypasses the cache.
func (p *Policy) IsExcludedPath(path string) bool {
	config := p.load()
	if config.Exclude == nil {
		return false
	}
	for _, m := range config.Exclude.pathMatchers {
		if m.MatchString(path) {
			return true
		}
	}
	return false
}

// IsExcludedHeader reports whether h carries a configured bypass
// header/value pair.
func (p *Policy) IsExcludedHeader(h http.Header) bool {
	config := p.load()
	if config.Exclude == nil {
		return false
	}
	for k, v := range config.Exclude.Header {
		if h.Get(strings.ReplaceAll(k, "_", "-")) == v {
			return true
		}
	}
	return false
}

// IsExcludedContent reports whether a response of the given content-type
// and length bypasses the cache.
func (p *Policy) IsExcludedContent(contentType string, length int64) bool {
	config := p.load()
	if config.Exclude == nil || contentType == "" {
		return false
	}
	for i, rule := range config.Exclude.Content {
		m := config.Exclude.contentMatchers[i]
		if m == nil || !m.MatchString(contentType) {
			continue
		}
		if rule.Size > 0 {
			return int64(rule.Size) < length
		}
		return true
	}
	return false
}
