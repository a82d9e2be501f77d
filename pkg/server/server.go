// MIT License
//
// Copyright (c) 2023 kache.io
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httputil"
	"strings"
	"time"

	"github.com/kachegate/gatekache/pkg/clockutil"
	"github.com/kachegate/gatekache/pkg/filter"
	"github.com/kachegate/gatekache/pkg/gatewayconfig"
	"github.com/kachegate/gatekache/pkg/metrics"
	"github.com/kachegate/gatekache/pkg/store"
	"github.com/rs/zerolog/log"
)

const (
	DefaultTimeout                = 30 * time.Second
	ServerGracefulShutdownTimeout = 5 * time.Second
)

var ErrMatchingTarget = fmt.Errorf("no matching target found")

// Server is the reverse proxy cache. Adapted from the teacher's own
// Server: the teacher wired an httputil.ReverseProxy over a hand-rolled
// middleware.Transport/requestCoalescer stack fronting a provider.Provider;
// this wires the same ReverseProxy shape over a filter.Transport fronting a
// store.Backend instead (§4, §11).
type Server struct {
	cfg *gatewayconfig.Configuration

	// proxy forwards requests to targets.
	proxy *httputil.ReverseProxy

	// listeners holds the downstream listeners.
	listeners Listeners

	// targets holds the upstream targets.
	targets Targets

	// backend is the cache storage backend.
	backend store.Backend

	stopCh chan bool
}

// NewServer creates a new configured server. m may be nil.
func NewServer(
	cfg *gatewayconfig.Configuration,
	backend store.Backend,
	policy *store.Policy,
	m *metrics.Metrics,
) (*Server, error) {
	srv := &Server{
		cfg:     cfg,
		backend: backend,
		stopCh:  make(chan bool, 1),
	}

	// Build upstream targets.
	targets, err := NewTargets(cfg.Upstreams)
	if err != nil {
		return nil, err
	}
	srv.targets = targets

	// Build downstream listeners.
	listeners, err := NewListeners(cfg.Listeners, srv)
	if err != nil {
		return nil, err
	}
	srv.listeners = listeners

	filterCfg := filter.Config{Cluster: clusterName(cfg.Cluster)}
	transport := filter.NewTransport(http.DefaultTransport, backend, policy, m, clockutil.NewSystem(), filterCfg)

	// Create the reverse proxy.
	proxy := &httputil.ReverseProxy{
		ErrorHandler: errorHandler,
		Director:     srv.Director(),
		Transport:    transport,
	}
	srv.proxy = proxy

	return srv, nil
}

// clusterName derives the cache-key cluster scope (§3) from the peer
// discovery config, so entries stay segregated per Kubernetes Service even
// without an explicit cluster name field of their own.
func clusterName(cfg *gatewayconfig.ClusterConfig) string {
	if cfg == nil || cfg.Service == "" {
		return ""
	}
	return cfg.Namespace + "/" + cfg.Service
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	timeout := DefaultTimeout
	http.TimeoutHandler(
		s.proxy,
		timeout,
		fmt.Sprintf("Request timeout after %v", timeout),
	).ServeHTTP(w, r)
}

// errorHandler is the proxy error handler.
func errorHandler(w http.ResponseWriter, req *http.Request, err error) {
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, context.Canceled):
		ctx := req.Context()
		cErr := context.Cause(ctx)
		if errors.Is(cErr, ErrMatchingTarget) {
			status = http.StatusServiceUnavailable
			err = cErr
		} else { // client canceled request
			status = http.StatusBadGateway
		}
	case errors.Is(err, io.EOF):
		status = http.StatusBadGateway
	default: // connection error
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			status = http.StatusGatewayTimeout
		}
		var opErr *net.OpError
		if errors.As(err, &opErr) {
			// unknown host or connection refused
			status = http.StatusServiceUnavailable
		}
	}

	logger := log.Ctx(req.Context())
	logger.Debug().Err(err).Msgf("Proxy error: status %d - %s", status, err.Error())

	w.WriteHeader(status)
	if _, wErr := w.Write([]byte(err.Error())); wErr != nil {
		logger.Debug().Err(wErr).Msg("Error writing error")
	}
}

// Director matches the incoming request to a specific target and sets
// the request object to be sent to the matched upstream server.
func (s *Server) Director() func(req *http.Request) {
	return func(req *http.Request) {
		// Find a matching target.
		target, ok := s.targets.MatchTarget(req)
		if !ok {
			log.Error().Str("request", req.URL.String()).Msg("no matching target found for request.")
			ctx, cancel := context.WithCancelCause(req.Context())
			*req = *req.WithContext(ctx)
			cancel(ErrMatchingTarget)
			return
		}
		upstream := target.upstream

		req.URL.Scheme = upstream.Scheme
		req.URL.Host = upstream.Host

		// Path is forwarded as-is.
		req.URL.Path = singleJoiningSlash(upstream.Path, req.URL.Path)

		// Pass host header
		req.Host = req.URL.Host

		// RequestURI should not be set in a HTTP client request
		req.RequestURI = ""

		if _, ok := req.Header["User-Agent"]; !ok {
			req.Header.Set("User-Agent", "gatekache")
		}
	}
}

// Start starts the server.
func (s *Server) Start(ctx context.Context) {
	go func() {
		<-ctx.Done()
		logger := log.Ctx(ctx)
		logger.Info().Msg("Received shutdown...")
		logger.Info().Msg("Stopping server gracefully")
		s.Stop()
	}()

	log.Debug().Msg("Starting server ...")

	s.listeners.Start()
}

// Await blocks until SIGTERM or Stop() is called.
func (s *Server) Await() {
	<-s.stopCh
}

// Stop stops the server.
func (s *Server) Stop() {
	defer log.Info().Msg("Server stopped")

	s.listeners.Stop()

	s.stopCh <- true
}

// Shutdown the server, gracefully. Should be defered after Start().
func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), ServerGracefulShutdownTimeout)
	defer cancel()

	go func(ctx context.Context) {
		<-ctx.Done()
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			panic("Shutdown timeout exeeded, killing gatekache instance")
		}
	}(ctx)

	close(s.stopCh)
}

func singleJoiningSlash(a, b string) string {
	aslash := strings.HasSuffix(a, "/")
	bslash := strings.HasPrefix(b, "/")
	switch {
	case aslash && bslash:
		return a + b[1:]
	case !aslash && !bslash:
		return a + "/" + b
	}
	return a + b
}
