package gatewayconfig

import (
	"bytes"
	"context"
	"crypto/md5"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Loader reads a Configuration from a YAML file and, optionally, watches it
// for changes on an interval, publishing hot-reloaded snapshots through an
// atomic pointer.
type Loader struct {
	path          string
	watch         bool
	watchInterval time.Duration

	config atomic.Pointer[Configuration]
	hash   []byte

	// Events fires (non-blocking) whenever Watch picks up a changed file.
	Events chan bool

	done chan struct{}
}

// NewLoader creates a Loader for path and performs the initial load.
func NewLoader(path string, watch bool, interval time.Duration) (*Loader, error) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	l := &Loader{
		path:          path,
		watch:         watch,
		watchInterval: interval,
		Events:        make(chan bool, 1),
		done:          make(chan struct{}),
	}
	if _, err := l.Load(); err != nil {
		return nil, err
	}
	return l, nil
}

// Load reads and parses the configuration file, returning true if its
// contents changed since the last successful load. An unchanged file is not
// re-parsed.
func (l *Loader) Load() (bool, error) {
	raw, err := os.ReadFile(l.path)
	if err != nil {
		return false, fmt.Errorf("gatewayconfig: read %s: %w", l.path, err)
	}

	sum := md5.Sum(raw)
	if l.hash != nil && bytes.Equal(sum[:], l.hash) {
		return false, nil
	}

	var cfg Configuration
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return false, fmt.Errorf("gatewayconfig: parse %s: %w", l.path, err)
	}
	if err := cfg.Validate(); err != nil {
		return false, fmt.Errorf("gatewayconfig: validate %s: %w", l.path, err)
	}

	l.config.Store(&cfg)
	l.hash = sum[:]
	return true, nil
}

// Config returns the most recently loaded configuration.
func (l *Loader) Config() *Configuration {
	return l.config.Load()
}

// Path returns the configuration file path.
func (l *Loader) Path() string {
	return l.path
}

// AutoReload reports whether Watch was requested for this Loader.
func (l *Loader) AutoReload() bool {
	return l.watch
}

// Watch polls the configuration file on watchInterval until ctx is done or
// Close is called, reloading and notifying Events on every change. It is a
// no-op if the Loader was not constructed with watch=true.
func (l *Loader) Watch(ctx context.Context) {
	if !l.watch {
		return
	}

	ticker := time.NewTicker(l.watchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-l.done:
			return
		case <-ticker.C:
			changed, err := l.Load()
			if err != nil {
				log.Error().Err(err).Str("path", l.path).Msg("config reload failed")
				continue
			}
			if changed {
				l.notifyChange()
			}
		}
	}
}

// Close stops an in-progress Watch.
func (l *Loader) Close() {
	select {
	case <-l.done:
	default:
		close(l.done)
	}
}

func (l *Loader) notifyChange() {
	select {
	case l.Events <- true:
	default:
	}
}
