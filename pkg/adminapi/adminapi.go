// Package adminapi exposes the administrative HTTP surface of a filter
// instance: cache introspection (keys, info, config), purge/flush, version,
// and (when enabled) debug/profiling routes. Adapted from the teacher's
// pkg/api package.
package adminapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/kachegate/gatekache/pkg/store"
	"github.com/rs/zerolog/log"
)

// Config configures the administrative API.
type Config struct {
	Port   int
	Prefix string
	ACL    string
	Debug  bool
}

// GetPrefix returns the configured path prefix, defaulting to "/api".
func (c Config) GetPrefix() string {
	if c.Prefix != "" {
		return c.Prefix
	}
	return "/api"
}

// PeerLister lists the other filter instances in a cluster, for
// cache_info aggregation. Implemented by pkg/peers; nil disables the
// "peers" field in cache_info responses.
type PeerLister interface {
	ListPeers(ctx context.Context) ([]string, error)
}

// API is the root administrative API structure.
type API struct {
	config   Config
	backend  store.Backend
	policy   *store.Policy
	peers    PeerLister
	nodeName string

	router   *mux.Router
	ipFilter *IPFilter
}

// New creates an administrative API over backend and policy. peers may be
// nil if cluster peer discovery is disabled.
func New(cfg Config, backend store.Backend, policy *store.Policy, peers PeerLister, nodeName string) (*API, error) {
	filter, err := NewIPFilter(cfg.ACL)
	if err != nil {
		return nil, err
	}

	a := &API{
		config:   cfg,
		backend:  backend,
		policy:   policy,
		peers:    peers,
		nodeName: nodeName,
		router:   mux.NewRouter(),
		ipFilter: filter,
	}
	a.createRoutes()

	if cfg.Debug {
		DebugHandler{}.Append(a.router)
	}

	return a, nil
}

// ServeHTTP serves the administrative API requests.
func (a *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.router.ServeHTTP(w, r)
}

// Run starts the administrative API's own listener.
func (a *API) Run() error {
	addr := fmt.Sprintf(":%d", a.config.Port)
	log.Info().Str("addr", addr).Str("prefix", a.config.GetPrefix()).Msg("starting admin API")
	return http.ListenAndServe(addr, a)
}

func (a *API) route(method, path string, handler http.HandlerFunc) {
	full := a.config.GetPrefix() + path
	a.router.Methods(method).Path(full).HandlerFunc(a.ipFilter.Wrap(handler))
}

func (a *API) createRoutes() {
	a.route(http.MethodGet, "/version", versionHandler)
	a.route(http.MethodGet, "/cache/keys", a.keysHandler)
	a.route(http.MethodDelete, "/cache/keys/purge", a.purgeHandler)
	a.route(http.MethodDelete, "/cache/flush", a.flushHandler)
	a.route(http.MethodGet, "/cache/info", a.infoHandler)
	a.route(http.MethodGet, "/cache/config", a.configHandler)
	a.route(http.MethodPut, "/cache/config", a.configUpdateHandler)
}

// keysHandler lists every entry hash held by the backend, hex-encoded.
func (a *API) keysHandler(w http.ResponseWriter, r *http.Request) {
	hashes := a.backend.Keys()
	keys := make([]string, len(hashes))
	for i, h := range hashes {
		keys[i] = strconv.FormatUint(h, 16)
	}
	writeJSON(w, keys)
}

// purgeHandler deletes the entry named by the "key" query parameter
// (hex-encoded hash, as returned by keysHandler).
func (a *API) purgeHandler(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("key")
	hash, err := strconv.ParseUint(raw, 16, 64)
	if err != nil {
		http.Error(w, "invalid key", http.StatusBadRequest)
		return
	}
	if !a.backend.Purge(hash) {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// flushHandler removes every entry from the backend.
func (a *API) flushHandler(w http.ResponseWriter, r *http.Request) {
	a.backend.Flush()
	w.WriteHeader(http.StatusOK)
}

// cacheInfoResponse is cache_info()'s wire shape: this node's backend
// description plus, if cluster peer discovery is enabled, the other nodes
// sharing this cache.
type cacheInfoResponse struct {
	Node  string          `json:"node"`
	Info  store.CacheInfo `json:"info"`
	Peers []string        `json:"peers,omitempty"`
}

func (a *API) infoHandler(w http.ResponseWriter, r *http.Request) {
	resp := cacheInfoResponse{Node: a.nodeName, Info: a.backend.CacheInfo()}
	if a.peers != nil {
		peers, err := a.peers.ListPeers(r.Context())
		if err != nil {
			log.Warn().Err(err).Msg("listing peers for cache_info")
		} else {
			resp.Peers = peers
		}
	}
	writeJSON(w, resp)
}

func (a *API) configHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, a.policy.Snapshot())
}

func (a *API) configUpdateHandler(w http.ResponseWriter, r *http.Request) {
	var cfg store.Config
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	a.policy.Update(&cfg)
	w.WriteHeader(http.StatusOK)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
