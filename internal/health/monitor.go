// Copyright 2026 The dreamscapes-sub008 Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package health runs the background active-probe loop that keeps each
// provider's health status current between requests, ticking on an
// interval, bounding concurrent probes with a semaphore, and publishing
// status-change events so the metrics surface can react without polling.
package health

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/girishdigge/dreamscapes-sub008/internal/manager"
	"github.com/girishdigge/dreamscapes-sub008/internal/provider"
)

// EventKind names one health monitor lifecycle or status event.
type EventKind string

const (
	EventStarted        EventKind = "monitor_started"
	EventStopped         EventKind = "monitor_stopped"
	EventStatusChanged   EventKind = "provider_status_changed"
	EventCycleCompleted  EventKind = "cycle_completed"
)

// Event is one published monitor occurrence, delivered to every registered
// handler without blocking the monitoring loop.
type Event struct {
	Kind      EventKind
	Provider  string
	Timestamp time.Time
	Data      map[string]interface{}
}

// EventHandler receives monitor events; handlers must not block.
type EventHandler func(Event)

// Config tunes the monitor's cadence and concurrency.
type Config struct {
	Interval            time.Duration
	ProbeTimeout        time.Duration
	MaxConcurrentProbes int
}

// DefaultConfig matches the cadence named in the health monitor's contract.
func DefaultConfig() Config {
	return Config{Interval: 30 * time.Second, ProbeTimeout: 5 * time.Second, MaxConcurrentProbes: 8}
}

// providers is the subset of manager.Manager the monitor depends on, kept
// narrow so the monitor can be tested without a full Manager.
type providers interface {
	GetProviderHealth(name string) ([]manager.HealthReport, error)
}

// adapterLookup resolves a provider name to its Adapter for active probing.
type adapterLookup func(name string) (provider.Adapter, bool)

// Monitor runs the periodic active-probe cycle over every registered
// provider and tracks the last known status transition for each.
type Monitor struct {
	cfg      Config
	mgr      providers
	lookup   adapterLookup

	mu            sync.RWMutex
	lastStatus    map[string]manager.Status
	handlers      []EventHandler
	totalCycles   int64
	lastCycleAt   time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

// New constructs a Monitor bound to a provider manager and an adapter
// lookup used for the active TestConnection probe.
func New(cfg Config, mgr providers, lookup adapterLookup) *Monitor {
	if cfg.MaxConcurrentProbes <= 0 {
		cfg.MaxConcurrentProbes = 8
	}
	return &Monitor{
		cfg:        cfg,
		mgr:        mgr,
		lookup:     lookup,
		lastStatus: make(map[string]manager.Status),
		done:       make(chan struct{}),
	}
}

// AddEventHandler registers a handler invoked for every published event.
func (m *Monitor) AddEventHandler(h EventHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, h)
}

func (m *Monitor) emit(e Event) {
	m.mu.RLock()
	handlers := append([]EventHandler(nil), m.handlers...)
	m.mu.RUnlock()
	for _, h := range handlers {
		h(e)
	}
}

// Start launches the background monitoring loop; it returns once the first
// probe cycle has been scheduled, not once it has completed.
func (m *Monitor) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	m.emit(Event{Kind: EventStarted, Timestamp: time.Now(), Data: map[string]interface{}{"interval": m.cfg.Interval.String()}})

	go m.loop(runCtx)
}

// Stop cancels the monitoring loop and waits for it to exit.
func (m *Monitor) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	<-m.done
	m.emit(Event{Kind: EventStopped, Timestamp: time.Now()})
}

func (m *Monitor) loop(ctx context.Context) {
	defer close(m.done)

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.runCycle(ctx)
		}
	}
}

// runCycle probes every provider concurrently, bounded by
// MaxConcurrentProbes, recovering from per-probe panics so one bad adapter
// can never take down the monitoring loop.
func (m *Monitor) runCycle(ctx context.Context) {
	reports, err := m.mgr.GetProviderHealth("")
	if err != nil {
		log.WithError(err).Debug("health monitor: failed to list provider health")
		return
	}

	semaphore := make(chan struct{}, m.cfg.MaxConcurrentProbes)
	var wg sync.WaitGroup

	for _, report := range reports {
		wg.Add(1)
		go func(name string, lastKnown manager.Status) {
			defer func() {
				if r := recover(); r != nil {
					log.WithField("provider", name).Errorf("health monitor: panic in probe: %v", r)
				}
				wg.Done()
				<-semaphore
			}()
			semaphore <- struct{}{}
			m.probeOne(ctx, name, lastKnown)
		}(report.Name, report.Status)
	}
	wg.Wait()

	m.mu.Lock()
	m.totalCycles++
	m.lastCycleAt = time.Now()
	m.mu.Unlock()

	m.emit(Event{Kind: EventCycleCompleted, Timestamp: time.Now(), Data: map[string]interface{}{"providers_checked": len(reports)}})
}

func (m *Monitor) probeOne(ctx context.Context, name string, lastKnown manager.Status) {
	adapter, ok := m.lookup(name)
	if !ok {
		return
	}

	probeCtx, cancel := context.WithTimeout(ctx, m.cfg.ProbeTimeout)
	defer cancel()

	err := adapter.TestConnection(probeCtx)

	current := lastKnown
	if err != nil {
		current = manager.StatusUnhealthy
	}

	m.mu.Lock()
	previous, seen := m.lastStatus[name]
	m.lastStatus[name] = current
	m.mu.Unlock()

	if !seen || previous != current {
		m.emit(Event{
			Kind:      EventStatusChanged,
			Provider:  name,
			Timestamp: time.Now(),
			Data:      map[string]interface{}{"previous": string(previous), "current": string(current)},
		})
	}
}

// Snapshot reports the monitor's own run statistics, independent of any one
// provider's health.
type Snapshot struct {
	TotalCycles int64
	LastCycleAt time.Time
}

// Stats returns the monitor's cycle counters.
func (m *Monitor) Stats() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Snapshot{TotalCycles: m.totalCycles, LastCycleAt: m.lastCycleAt}
}
