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

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kachegate/gatekache/pkg/adminapi"
	"github.com/kachegate/gatekache/pkg/gatewayconfig"
	"github.com/kachegate/gatekache/pkg/logging"
	"github.com/kachegate/gatekache/pkg/metrics"
	"github.com/kachegate/gatekache/pkg/server"
	"github.com/kachegate/gatekache/pkg/store"
	"github.com/kachegate/gatekache/pkg/utils/version"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

const (
	configFileName = "gatekache.yml"

	configFileOption          = "config.file"
	configAutoReloadOption    = "config.auto-reload"
	configWatchIntervalOption = "config.watch-interval"

	versionOption = "version"
	versionUsage  = "Print application version and exit."
)

func init() {
	prometheus.MustRegister(version.NewCollector("gatekache"))
}

func main() {
	// Cleanup all flags registered via init() methods of 3rd-party libraries.
	flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.ExitOnError)

	var printVersion bool
	flag.BoolVar(&printVersion, versionOption, false, versionUsage)

	var configAutoReload bool
	flag.BoolVar(&configAutoReload, configAutoReloadOption, false, "")

	var configWatchInterval time.Duration
	flag.DurationVar(&configWatchInterval, configWatchIntervalOption, 10*time.Second, "")

	var configFile string
	flag.StringVar(&configFile, configFileOption, configFileName, "")

	flag.Parse()

	if printVersion {
		_, _ = fmt.Fprintln(os.Stdout, version.Print("Gatekache"))
		return
	}

	ldr, err := gatewayconfig.NewLoader(configFile, configAutoReload, configWatchInterval)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "error loading config from %s: %v\n", configFile, err)
		os.Exit(1)
	}
	cfg := ldr.Config()

	logging.Init(cfg.Log)

	log.Info().Msg("gatekache is starting")
	log.Info().Str("config", configFile).Msg("gatekache initializing application")

	backend, err := gatewayconfig.BuildBackend(cfg.Backend, cfg.Cache)
	if err != nil {
		log.Fatal().Err(err).Msg("building cache backend")
	}

	policy := store.NewPolicy(cfg.Cache)

	peerLister, err := gatewayconfig.BuildPeerLister(cfg.Cluster)
	if err != nil {
		log.Fatal().Err(err).Msg("building cluster peer lister")
	}

	m := metrics.New(prometheus.DefaultRegisterer)

	srv, err := server.NewServer(cfg, backend, policy, m)
	if err != nil {
		log.Fatal().Err(err).Msg("initializing proxy server")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv.Start(ctx)
	defer srv.Shutdown()

	if cfg.API != nil && cfg.API.Port != 0 {
		go runAdminAPI(ctx, cfg, backend, policy, peerLister)
	}

	if ldr.AutoReload() {
		defer ldr.Close()
		go ldr.Watch(ctx)
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case <-ldr.Events:
					log.Info().Msg("config file changed, reloading cache policy")
					policy.Update(ldr.Config().Cache)
				}
			}
		}()
	}

	srv.Await()
	log.Info().Msg("gatekache stopped")
}

// runAdminAPI starts the administrative API's own listener on its own port,
// logging and returning on failure rather than crashing the whole process:
// a broken admin surface should never take the data plane down with it.
func runAdminAPI(ctx context.Context, cfg *gatewayconfig.Configuration, backend store.Backend, policy *store.Policy, peerLister adminapi.PeerLister) {
	nodeName, _ := os.Hostname()

	api, err := adminapi.New(adminapi.Config{
		Port:   cfg.API.Port,
		Prefix: cfg.API.GetPrefix(),
		Debug:  cfg.API.Debug,
	}, backend, policy, peerLister, nodeName)
	if err != nil {
		log.Error().Err(err).Msg("initializing admin API")
		return
	}

	if err := api.Run(); err != nil {
		log.Error().Err(err).Msg("admin API stopped")
	}
}
