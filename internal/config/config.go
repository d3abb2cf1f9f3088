// Copyright 2026 The dreamscapes-sub008 Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package config loads the gateway's configuration from a YAML file with
// environment-variable overrides, and hot-reloads the subset of fields
// that are safe to change without dropping in-flight requests.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// ProviderConfig is one entry of MCP_PROVIDERS plus its per-provider
// overrides.
type ProviderConfig struct {
	Name          string        `yaml:"name"`
	APIKey        string        `yaml:"api_key"`
	Model         string        `yaml:"model"`
	BaseURL       string        `yaml:"base_url"`
	TimeoutMS     int           `yaml:"timeout_ms"`
	MaxConcurrent int           `yaml:"max_concurrent"`
	Priority      int           `yaml:"priority"`
	Weight        float64       `yaml:"weight"`
}

// CacheTTLConfig is hot-reloadable.
type CacheTTLConfig struct {
	DraftMinutes     int `yaml:"draft_minutes"`
	StandardMinutes  int `yaml:"standard_minutes"`
	HighMinutes      int `yaml:"high_minutes"`
	CinematicMinutes int `yaml:"cinematic_minutes"`
}

// CacheConfig configures the in-process and optional shared cache tier.
type CacheConfig struct {
	MaxSize       int            `yaml:"max_size"`
	TTL           CacheTTLConfig `yaml:"ttl"`
	SharedURL     string         `yaml:"shared_url"`
}

// CircuitConfig is hot-reloadable.
type CircuitConfig struct {
	FailureThreshold uint32 `yaml:"failure_threshold"`
	CooldownMS       int64  `yaml:"cooldown_ms"`
}

// RetryConfig is hot-reloadable.
type RetryConfig struct {
	MaxAttempts        int   `yaml:"max_attempts"`
	RequestDeadlineMS  int64 `yaml:"request_deadline_ms"`
}

// LoggingConfig is hot-reloadable (level only; destination is fixed at
// startup).
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Config is the gateway's full configuration.
type Config struct {
	Providers []ProviderConfig `yaml:"providers"`
	Cache     CacheConfig      `yaml:"cache"`
	Circuit   CircuitConfig    `yaml:"circuit"`
	Retry     RetryConfig      `yaml:"retry"`
	Logging   LoggingConfig    `yaml:"logging"`
	HTTPAddr  string           `yaml:"http_addr"`
}

// Default returns the built-in defaults, matching the defaults named
// throughout the gateway's component contracts.
func Default() Config {
	return Config{
		Cache: CacheConfig{
			MaxSize: 1000,
			TTL:     CacheTTLConfig{DraftMinutes: 5, StandardMinutes: 30, HighMinutes: 60, CinematicMinutes: 120},
		},
		Circuit: CircuitConfig{FailureThreshold: 5, CooldownMS: 30000},
		Retry:   RetryConfig{MaxAttempts: 3, RequestDeadlineMS: 45000},
		Logging: LoggingConfig{Level: "info"},
		HTTPAddr: ":8080",
	}
}

// Load reads a YAML file at path (if it exists), loads a .env file for
// local development, then applies every recognized environment variable
// override, following the precedence file < .env < process environment.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if data, err := os.ReadFile(path); err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("config: parsing %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
		}
	}

	_ = godotenv.Load()
	applyEnvOverrides(&cfg)

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if raw := os.Getenv("MCP_PROVIDERS"); raw != "" {
		names := strings.Split(raw, ",")
		providers := make([]ProviderConfig, 0, len(names))
		for i, name := range names {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			pc := ProviderConfig{Name: name, Priority: i + 1}
			prefix := strings.ToUpper(name) + "_"
			if v := os.Getenv(prefix + "API_KEY"); v != "" {
				pc.APIKey = v
			}
			if v := os.Getenv(prefix + "MODEL"); v != "" {
				pc.Model = v
			}
			if v := os.Getenv(prefix + "BASE_URL"); v != "" {
				pc.BaseURL = v
			}
			if v, err := strconv.Atoi(os.Getenv(prefix + "TIMEOUT_MS")); err == nil {
				pc.TimeoutMS = v
			}
			if v, err := strconv.Atoi(os.Getenv(prefix + "MAX_CONCURRENT")); err == nil {
				pc.MaxConcurrent = v
			}
			providers = append(providers, pc)
		}
		if len(providers) > 0 {
			cfg.Providers = providers
		}
	}

	if v, err := strconv.Atoi(os.Getenv("CACHE_MAX_SIZE")); err == nil {
		cfg.Cache.MaxSize = v
	}
	if v, err := strconv.Atoi(os.Getenv("CACHE_TTL_DRAFT")); err == nil {
		cfg.Cache.TTL.DraftMinutes = v
	}
	if v, err := strconv.Atoi(os.Getenv("CACHE_TTL_STANDARD")); err == nil {
		cfg.Cache.TTL.StandardMinutes = v
	}
	if v, err := strconv.Atoi(os.Getenv("CACHE_TTL_HIGH")); err == nil {
		cfg.Cache.TTL.HighMinutes = v
	}
	if v, err := strconv.Atoi(os.Getenv("CACHE_TTL_CINEMATIC")); err == nil {
		cfg.Cache.TTL.CinematicMinutes = v
	}
	if v := os.Getenv("SHARED_CACHE_URL"); v != "" {
		cfg.Cache.SharedURL = v
	}

	if v, err := strconv.ParseUint(os.Getenv("CIRCUIT_FAILURE_THRESHOLD"), 10, 32); err == nil {
		cfg.Circuit.FailureThreshold = uint32(v)
	}
	if v, err := strconv.ParseInt(os.Getenv("CIRCUIT_COOLDOWN_MS"), 10, 64); err == nil {
		cfg.Circuit.CooldownMS = v
	}

	if v, err := strconv.Atoi(os.Getenv("MAX_RETRY_ATTEMPTS")); err == nil {
		cfg.Retry.MaxAttempts = v
	}
	if v, err := strconv.ParseInt(os.Getenv("REQUEST_DEADLINE_MS"), 10, 64); err == nil {
		cfg.Retry.RequestDeadlineMS = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
}

// CacheTTLDurations resolves the configured quality-tier TTLs to durations.
func (c CacheConfig) CacheTTLDurations() (draft, standard, high, cinematic time.Duration) {
	return time.Duration(c.TTL.DraftMinutes) * time.Minute,
		time.Duration(c.TTL.StandardMinutes) * time.Minute,
		time.Duration(c.TTL.HighMinutes) * time.Minute,
		time.Duration(c.TTL.CinematicMinutes) * time.Minute
}

// OnReload is invoked with the newly loaded config after every watched
// file change.
type OnReload func(Config)

// Watcher reloads the whole config file on every write or create event and
// passes the result to each registered OnReload handler, without dropping
// in-flight requests. It applies no field filter of its own: which fields
// take effect in place is decided by the handlers.
type Watcher struct {
	path    string
	watcher *fsnotify.Watcher
	stop    chan struct{}

	mu     sync.Mutex
	onLoad []OnReload
}

// NewWatcher starts watching path for changes. A nil/empty path disables
// watching and returns a Watcher whose Stop is a no-op.
func NewWatcher(path string) (*Watcher, error) {
	w := &Watcher{path: path, stop: make(chan struct{})}
	if path == "" {
		return w, nil
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: creating file watcher: %w", err)
	}
	if err := fw.Add(path); err != nil {
		fw.Close()
		return nil, fmt.Errorf("config: watching %s: %w", path, err)
	}
	w.watcher = fw

	go w.loop()
	return w, nil
}

// OnReload registers a callback invoked after every successful hot reload.
func (w *Watcher) OnReload(fn OnReload) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onLoad = append(w.onLoad, fn)
}

func (w *Watcher) loop() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			time.Sleep(100 * time.Millisecond)
			cfg, err := Load(w.path)
			if err != nil {
				log.WithError(err).Warn("config: hot reload failed, keeping previous configuration")
				continue
			}
			w.mu.Lock()
			handlers := append([]OnReload(nil), w.onLoad...)
			w.mu.Unlock()
			for _, h := range handlers {
				h(cfg)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.WithError(err).Warn("config: file watcher error")
		case <-w.stop:
			return
		}
	}
}

// Stop terminates the watcher, if any.
func (w *Watcher) Stop() {
	close(w.stop)
	if w.watcher != nil {
		w.watcher.Close()
	}
}
