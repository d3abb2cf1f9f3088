// Copyright 2026 The dreamscapes-sub008 Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package main is the entry point for the dreamscapes generation gateway.
// It loads configuration, wires every component (cache, classifier, circuit
// breaker, provider adapters, manager, prompt composer, extractor, repair
// pipeline, orchestrator, metrics, health monitor) and serves the
// northbound HTTP API until a shutdown signal arrives.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"github.com/girishdigge/dreamscapes-sub008/internal/cache"
	"github.com/girishdigge/dreamscapes-sub008/internal/circuit"
	"github.com/girishdigge/dreamscapes-sub008/internal/classify"
	"github.com/girishdigge/dreamscapes-sub008/internal/config"
	"github.com/girishdigge/dreamscapes-sub008/internal/extractor"
	"github.com/girishdigge/dreamscapes-sub008/internal/health"
	"github.com/girishdigge/dreamscapes-sub008/internal/httpapi"
	"github.com/girishdigge/dreamscapes-sub008/internal/manager"
	"github.com/girishdigge/dreamscapes-sub008/internal/metrics"
	"github.com/girishdigge/dreamscapes-sub008/internal/obslog"
	"github.com/girishdigge/dreamscapes-sub008/internal/orchestrator"
	"github.com/girishdigge/dreamscapes-sub008/internal/prompt"
	"github.com/girishdigge/dreamscapes-sub008/internal/provider"
	"github.com/girishdigge/dreamscapes-sub008/internal/repair"
	"github.com/girishdigge/dreamscapes-sub008/internal/validate"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "path to config.yaml")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dreamscapes-gateway: failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := obslog.Setup(obslog.Config{Level: cfg.Logging.Level, ToFile: false}); err != nil {
		fmt.Fprintf(os.Stderr, "dreamscapes-gateway: failed to configure logging: %v\n", err)
		os.Exit(1)
	}
	log.Infof("dreamscapes-gateway version=%s commit=%s built=%s", Version, Commit, BuildDate)

	if len(cfg.Providers) == 0 {
		log.Fatal("dreamscapes-gateway: no providers configured; set MCP_PROVIDERS")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := wire(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("dreamscapes-gateway: failed to wire components")
	}

	app.monitor.Start(ctx)
	defer app.monitor.Stop()

	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if swept := app.cache.Sweep(); swept > 0 {
					log.Debugf("cache sweep evicted %d expired entries", swept)
				}
			}
		}
	}()

	if app.watcher != nil {
		defer app.watcher.Stop()
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           app.httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Infof("dreamscapes-gateway: listening on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("dreamscapes-gateway: http server failed")
		}
	}()

	<-ctx.Done()
	log.Info("dreamscapes-gateway: shutdown signal received, draining")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("dreamscapes-gateway: http server did not shut down cleanly")
	}
	if err := app.manager.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("dreamscapes-gateway: provider manager did not drain cleanly")
	}
	log.Info("dreamscapes-gateway: shutdown complete")
}

// wiredApp holds every long-lived component so main can drive their
// lifecycle (start/stop) without re-deriving them.
type wiredApp struct {
	manager    *manager.Manager
	monitor    *health.Monitor
	httpServer *httpapi.Server
	watcher    *config.Watcher
	cache      *cache.Cache
}

func wire(ctx context.Context, cfg config.Config) (*wiredApp, error) {
	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	coalescer := obslog.NewCoalescer(obslog.DefaultCoalesceWindow)
	classifier := classify.New(classifierConfig(cfg), func(ce *classify.ClassifiedError) {
		m.RecordClassifiedError(string(ce.Type), string(ce.Severity))

		key := ce.Context.Provider + "/" + string(ce.Type)
		if admit, suppressed := coalescer.Admit(key); admit {
			entry := log.WithFields(log.Fields{
				obslog.FieldProvider: ce.Context.Provider,
				"kind":               string(ce.Type),
				"severity":           string(ce.Severity),
			})
			if suppressed > 0 {
				entry = entry.WithField("coalesced", suppressed)
			}
			entry.Log(obslog.LevelFor(string(ce.Severity)), ce.Message)
		}
	})
	breakers := circuit.NewRegistry(circuitConfig(cfg), func(providerName string, from, to circuit.Phase) {
		m.SetCircuitState(providerName, string(to))
		log.WithField(obslog.FieldProvider, providerName).Infof("circuit: %s -> %s", from, to)
	})

	mgr := manager.New(managerConfig(cfg), breakers, classifier)
	for _, pc := range cfg.Providers {
		adapter := provider.NewHTTPAdapter(provider.HTTPAdapterConfig{
			Name:    pc.Name,
			BaseURL: pc.BaseURL,
			APIKey:  pc.APIKey,
			Model:   pc.Model,
		})
		mgr.Register(pc.Name, adapter, manager.RegisterConfig{
			Priority:      pc.Priority,
			Weight:        pc.Weight,
			MaxConcurrent: pc.MaxConcurrent,
		})
	}

	shared, err := sharedBackend(ctx, cfg.Cache.SharedURL)
	if err != nil {
		return nil, fmt.Errorf("wiring shared cache backend: %w", err)
	}

	draft, standard, high, cinematic := cfg.Cache.CacheTTLDurations()
	c := cache.New(cfg.Cache.MaxSize, cache.TTLPolicy{
		Draft: draft, Standard: standard, High: high, Cinematic: cinematic,
	}, shared)

	composer := prompt.New()

	validator, err := validate.New()
	if err != nil {
		return nil, fmt.Errorf("constructing validator: %w", err)
	}
	pipeline := repair.New(repair.DefaultConfig(), validator)
	extract := extractor.New()

	orch := orchestrator.New(orchestrator.Config{
		RequestDeadline: time.Duration(cfg.Retry.RequestDeadlineMS) * time.Millisecond,
	}, c, composer, mgr, extract, pipeline, m)

	monitor := health.New(health.DefaultConfig(), mgr, mgr.Adapter)

	srv := httpapi.New(orch, mgr, c, monitor, m)

	var watcher *config.Watcher
	if configPath := os.Getenv("CONFIG_PATH"); configPath != "" {
		w, err := config.NewWatcher(configPath)
		if err != nil {
			log.WithError(err).Warn("dreamscapes-gateway: config hot-reload disabled")
		} else {
			w.OnReload(func(newCfg config.Config) {
				breakers.SetConfig(circuitConfig(newCfg))
				classifier.SetConfig(classifierConfig(newCfg))

				d, s, h, cin := newCfg.Cache.CacheTTLDurations()
				c.SetTTLPolicy(cache.TTLPolicy{Draft: d, Standard: s, High: h, Cinematic: cin})

				orch.SetRequestDeadline(time.Duration(newCfg.Retry.RequestDeadlineMS) * time.Millisecond)
				obslog.SetLevel(newCfg.Logging.Level)
				log.Info("dreamscapes-gateway: configuration reloaded")
			})
			watcher = w
		}
	}

	return &wiredApp{manager: mgr, monitor: monitor, httpServer: srv, watcher: watcher, cache: c}, nil
}

func classifierConfig(cfg config.Config) classify.Config {
	defaults := classify.DefaultConfig()
	defaults.MaxRetryAttempts = cfg.Retry.MaxAttempts
	return defaults
}

func circuitConfig(cfg config.Config) circuit.Config {
	defaults := circuit.DefaultConfig()
	defaults.FailureThreshold = cfg.Circuit.FailureThreshold
	defaults.Cooldown = time.Duration(cfg.Circuit.CooldownMS) * time.Millisecond
	return defaults
}

func managerConfig(cfg config.Config) manager.Config {
	return manager.DefaultConfig()
}

// sharedBackend parses SHARED_CACHE_URL's scheme to construct the optional
// second cache tier: postgres:// for the Postgres-backed store, s3:// or
// minio:// for the object-storage-backed store. An empty URL disables the
// shared tier and leaves the gateway running on the in-process LRU alone.
func sharedBackend(ctx context.Context, rawURL string) (cache.SharedBackend, error) {
	if rawURL == "" {
		return nil, nil
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing SHARED_CACHE_URL: %w", err)
	}

	switch strings.ToLower(parsed.Scheme) {
	case "postgres", "postgresql":
		return cache.NewPostgresBackend(ctx, rawURL, "dream_cache")
	case "s3", "minio":
		password, _ := parsed.User.Password()
		bucket := strings.TrimPrefix(parsed.Path, "/")
		return cache.NewObjectBackend(cache.ObjectBackendConfig{
			Endpoint:  parsed.Host,
			AccessKey: parsed.User.Username(),
			SecretKey: password,
			Bucket:    bucket,
			Prefix:    "dreams/",
			UseSSL:    parsed.Scheme == "s3",
		})
	default:
		return nil, fmt.Errorf("unsupported SHARED_CACHE_URL scheme %q", parsed.Scheme)
	}
}
