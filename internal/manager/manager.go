// Copyright 2026 The dreamscapes-sub008 Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package manager implements the provider registry, selection strategies,
// per-provider admission control, and the fallback-chain dispatch loop that
// sits between the request orchestrator and individual provider adapters.
package manager

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/girishdigge/dreamscapes-sub008/internal/circuit"
	"github.com/girishdigge/dreamscapes-sub008/internal/classify"
	"github.com/girishdigge/dreamscapes-sub008/internal/provider"
)

// Strategy names the selection algorithm.
type Strategy string

const (
	StrategyPriority    Strategy = "priority"
	StrategyRoundRobin  Strategy = "round_robin"
	StrategyWeighted    Strategy = "weighted"
	StrategyPerformance Strategy = "performance"
)

// Status is a provider's coarse health status, independent of its circuit
// state: a provider can be closed yet degraded on a low success rate.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// PerformanceWeights tunes the performance selection strategy's scoring
// function: w1*successRate - w2*avgLatency - w3*load.
type PerformanceWeights struct {
	SuccessRate float64
	AvgLatency  float64
	Load        float64
}

// DefaultPerformanceWeights matches the weighting named in the selection
// rules.
func DefaultPerformanceWeights() PerformanceWeights {
	return PerformanceWeights{SuccessRate: 1.0, AvgLatency: 0.4, Load: 0.3}
}

// registration is one provider's full runtime state.
type registration struct {
	name        string
	adapter     provider.Adapter
	priority    int
	weight      float64
	maxConc     int
	sem         chan struct{}

	mu          sync.Mutex
	totalCalls  int64
	successes   int64
	failures    int64
	latencySum  time.Duration
	latencyN    int64
	status      Status
}

func (r *registration) recordResult(ok bool, latency time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.totalCalls++
	if ok {
		r.successes++
	} else {
		r.failures++
	}
	r.latencySum += latency
	r.latencyN++

	rate := r.successRateLocked()
	switch {
	case rate < 0.5 && r.totalCalls >= 5:
		r.status = StatusUnhealthy
	case rate < 0.85 && r.totalCalls >= 5:
		r.status = StatusDegraded
	default:
		r.status = StatusHealthy
	}
}

func (r *registration) successRateLocked() float64 {
	if r.totalCalls == 0 {
		return 1
	}
	return float64(r.successes) / float64(r.totalCalls)
}

func (r *registration) avgLatencyMs() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.latencyN == 0 {
		return 0
	}
	return float64(r.latencySum.Milliseconds()) / float64(r.latencyN)
}

func (r *registration) load() float64 {
	return float64(len(r.sem)) / float64(cap(r.sem))
}

// HealthReport is the snapshot returned by GetProviderHealth.
type HealthReport struct {
	Name        string
	Status      Status
	IsHealthy   bool
	SuccessRate float64
	AvgLatency  time.Duration
	Load        float64
	Circuit     circuit.State
	Timestamp   time.Time
}

// Config tunes the manager's defaults.
type Config struct {
	Strategy            Strategy
	MaxFallbackHops      int
	DefaultMaxConcurrent int
	AdmissionTimeout     time.Duration
	Weights              PerformanceWeights
}

// DefaultConfig matches the defaults named in the provider manager contract.
func DefaultConfig() Config {
	return Config{
		Strategy:             StrategyPriority,
		MaxFallbackHops:      4,
		DefaultMaxConcurrent: 10,
		AdmissionTimeout:      30 * time.Second,
		Weights:               DefaultPerformanceWeights(),
	}
}

// Manager is the provider registry and fallback-chain dispatcher.
type Manager struct {
	cfg       Config
	breakers  *circuit.Registry
	classifier *classify.Classifier

	mu    sync.RWMutex
	regs  map[string]*registration
	order []string // registration order, for round_robin and priority tie-break
	rrIdx uint64

	shuttingDown atomic.Bool
	inFlight     sync.WaitGroup
}

// New constructs a Manager bound to a circuit breaker registry and error
// classifier shared with the rest of the orchestrator.
func New(cfg Config, breakers *circuit.Registry, classifier *classify.Classifier) *Manager {
	return &Manager{
		cfg:        cfg,
		breakers:   breakers,
		classifier: classifier,
		regs:       make(map[string]*registration),
	}
}

// RegisterConfig is per-provider registration tuning.
type RegisterConfig struct {
	Priority      int
	Weight        float64
	MaxConcurrent int
}

// Register adds a provider to the registry.
func (m *Manager) Register(name string, adapter provider.Adapter, cfg RegisterConfig) {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = m.cfg.DefaultMaxConcurrent
	}
	if cfg.Weight <= 0 {
		cfg.Weight = 1
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.regs[name] = &registration{
		name:     name,
		adapter:  adapter,
		priority: cfg.Priority,
		weight:   cfg.Weight,
		maxConc:  cfg.MaxConcurrent,
		sem:      make(chan struct{}, cfg.MaxConcurrent),
		status:   StatusHealthy,
	}
	m.order = append(m.order, name)
}

// Adapter returns the registered adapter for name, for callers (the health
// monitor's active probe loop) that need direct access to TestConnection
// outside the fallback-chain dispatch path.
func (m *Manager) Adapter(name string) (provider.Adapter, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	reg, ok := m.regs[name]
	if !ok {
		return nil, false
	}
	return reg.adapter, true
}

// Unregister removes a provider from the registry.
func (m *Manager) Unregister(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.regs, name)
	for i, n := range m.order {
		if n == name {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

// ErrNoHealthyProvider is returned when selection finds no eligible
// candidate.
var ErrNoHealthyProvider = errors.New("manager: no healthy provider available")

// ErrShuttingDown is returned when Generate is called after Shutdown.
var ErrShuttingDown = errors.New("manager: refusing new work during shutdown")

// Selection is the result of one select() call.
type Selection struct {
	Provider string
	Reason   string
}

// selectCandidates returns every eligible provider (circuit not open), in
// the priority order the fallback chain should try them.
func (m *Manager) selectCandidates() []*registration {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var eligible []*registration
	for _, name := range m.order {
		r := m.regs[name]
		if m.breakers.State(name).Phase == circuit.PhaseOpen {
			continue
		}
		eligible = append(eligible, r)
	}

	switch m.cfg.Strategy {
	case StrategyRoundRobin:
		if len(eligible) == 0 {
			return eligible
		}
		start := int(atomic.AddUint64(&m.rrIdx, 1)-1) % len(eligible)
		rotated := make([]*registration, 0, len(eligible))
		rotated = append(rotated, eligible[start:]...)
		rotated = append(rotated, eligible[:start]...)
		return rotated
	case StrategyWeighted:
		sort.SliceStable(eligible, func(i, j int) bool { return eligible[i].weight > eligible[j].weight })
		return eligible
	case StrategyPerformance:
		sort.SliceStable(eligible, func(i, j int) bool {
			si, sj := m.score(eligible[i]), m.score(eligible[j])
			if si != sj {
				return si > sj
			}
			if eligible[i].priority != eligible[j].priority {
				return eligible[i].priority < eligible[j].priority
			}
			return eligible[i].name < eligible[j].name
		})
		return eligible
	default: // priority
		sort.SliceStable(eligible, func(i, j int) bool {
			if eligible[i].priority != eligible[j].priority {
				return eligible[i].priority < eligible[j].priority
			}
			return eligible[i].name < eligible[j].name
		})
		return eligible
	}
}

func (m *Manager) score(r *registration) float64 {
	r.mu.Lock()
	rate := r.successRateLocked()
	r.mu.Unlock()
	w := m.cfg.Weights
	return w.SuccessRate*rate - w.AvgLatency*(r.avgLatencyMs()/1000) - w.Load*r.load()
}

// Select returns the top candidate under the configured strategy, or
// ErrNoHealthyProvider if none are eligible.
func (m *Manager) Select() (Selection, error) {
	candidates := m.selectCandidates()
	if len(candidates) == 0 {
		return Selection{}, ErrNoHealthyProvider
	}
	top := candidates[0]
	penalty := ""
	if top.status == StatusDegraded {
		penalty = " (degraded, penalized)"
	}
	return Selection{Provider: top.name, Reason: fmt.Sprintf("strategy=%s%s", m.cfg.Strategy, penalty)}, nil
}

// GenerateResult is the fallback chain's terminal outcome.
type GenerateResult struct {
	Response provider.Response
	Provider string
	Attempts int
}

// Generate drives the fallback chain: select, dispatch through the circuit
// breaker and per-provider semaphore, classify failures, retry or switch
// per strategy, and stop on success or chain exhaustion.
func (m *Manager) Generate(ctx context.Context, req provider.Request) (GenerateResult, error) {
	if m.shuttingDown.Load() {
		return GenerateResult{}, ErrShuttingDown
	}
	m.inFlight.Add(1)
	defer m.inFlight.Done()

	candidates := m.selectCandidates()
	if len(candidates) == 0 {
		return GenerateResult{}, ErrNoHealthyProvider
	}

	maxHops := m.cfg.MaxFallbackHops
	if len(candidates) < maxHops {
		maxHops = len(candidates)
	}

	var lastErr error
	attempt := 0
	for hop := 0; hop < maxHops; hop++ {
		reg := candidates[hop]

		retriedSame := false
		for {
			attempt++

			resp, err := m.dispatch(ctx, reg, req, attempt)
			if err == nil {
				return GenerateResult{Response: resp, Provider: reg.name, Attempts: attempt}, nil
			}

			ce := m.classifier.Classify(err, classifyContext(reg.name, attempt, int(m.breakers.State(reg.name).FailureCount), err))
			lastErr = ce
			if !ce.Retryable {
				break
			}
			select {
			case <-time.After(retryDelay(ce, m.classifier.ConfigSnapshot(), attempt)):
			case <-ctx.Done():
				return GenerateResult{}, ctx.Err()
			}
			// A strategy that leads with a backoff/repair action earns one
			// same-provider retry before the chain switches; a second failure
			// of any kind moves on.
			if shouldRetrySame(ce) && !retriedSame {
				retriedSame = true
				continue
			}
			break
		}
	}

	if lastErr == nil {
		lastErr = ErrNoHealthyProvider
	}
	// Every provider in the chain has now failed; escalate the final
	// classified error accordingly.
	if ce, ok := lastErr.(*classify.ClassifiedError); ok {
		m.classifier.MarkAllProvidersFailed(ce)
	}
	return GenerateResult{Attempts: attempt}, lastErr
}

// classifyContext builds the classifier's call context for a failed
// dispatch: the provider's running consecutive-failure count from its
// circuit breaker (driving the severity escalation thresholds), plus the
// upstream status code and response headers when the failure was an
// HTTP-level error so the status-driven rules (429, 401, 5xx) and
// Retry-After parsing can fire.
func classifyContext(providerName string, attempt, consecutiveFailures int, err error) classify.Context {
	ctx := classify.Context{
		Provider:            providerName,
		Operation:           "generate",
		AttemptNumber:       attempt,
		ConsecutiveFailures: consecutiveFailures,
	}

	var httpErr *provider.HTTPError
	if errors.As(err, &httpErr) {
		ctx.StatusCode = httpErr.StatusCode
		ctx.ResponseData = httpErr.Body
		if len(httpErr.Headers) > 0 {
			headers := make(map[string]string, len(httpErr.Headers))
			for k := range httpErr.Headers {
				headers[k] = httpErr.Headers.Get(k)
			}
			ctx.ResponseHeaders = headers
		}
	}
	return ctx
}

// shouldRetrySame reports whether the classified error's recovery strategy
// opens with an action worth retrying the same provider for (a rate-limit
// wait, an exponential backoff, a parse-repair pass) rather than an
// immediate provider switch.
func shouldRetrySame(ce *classify.ClassifiedError) bool {
	if len(ce.RecoveryStrategy.Actions) == 0 {
		return false
	}
	switch ce.RecoveryStrategy.Actions[0].Kind {
	case classify.ActionRateLimitBackoff, classify.ActionExponentialBackoff, classify.ActionEnhanceParsing:
		return true
	default:
		return false
	}
}

// retryDelay prefers the classified recovery strategy's own timeout (e.g. a
// rate limit's Retry-After) over the generic exponential backoff.
func retryDelay(ce *classify.ClassifiedError, cfg classify.Config, attempt int) time.Duration {
	if len(ce.RecoveryStrategy.Actions) > 0 {
		if ms := ce.RecoveryStrategy.Actions[0].TimeoutMs; ms > 0 {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return classify.Backoff(cfg, attempt)
}

// dispatch acquires the per-provider admission slot, then issues the call
// through the circuit breaker, releasing the slot on every exit path and
// recording the performance sample for every call issued to the breaker.
func (m *Manager) dispatch(ctx context.Context, reg *registration, req provider.Request, attempt int) (provider.Response, error) {
	acquireCtx, cancel := context.WithTimeout(ctx, m.cfg.AdmissionTimeout)
	defer cancel()

	select {
	case reg.sem <- struct{}{}:
	case <-acquireCtx.Done():
		return provider.Response{}, fmt.Errorf("timeout: admission queue exceeded for provider %s", reg.name)
	}
	defer func() { <-reg.sem }()

	if !m.breakers.Allow(reg.name) {
		return provider.Response{}, fmt.Errorf("provider_error: circuit open for provider %s", reg.name)
	}

	start := time.Now()
	var resp provider.Response
	err := m.breakers.Execute(ctx, reg.name, func(ctx context.Context) error {
		var innerErr error
		resp, innerErr = reg.adapter.Generate(ctx, req)
		return innerErr
	})
	latency := time.Since(start)
	reg.recordResult(err == nil, latency)
	return resp, err
}

// GetProviderHealth returns a single provider's health report, or every
// registered provider's if name is empty.
func (m *Manager) GetProviderHealth(name string) ([]HealthReport, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var names []string
	if name != "" {
		if _, ok := m.regs[name]; !ok {
			return nil, fmt.Errorf("manager: unknown provider %q", name)
		}
		names = []string{name}
	} else {
		names = m.order
	}

	reports := make([]HealthReport, 0, len(names))
	for _, n := range names {
		r := m.regs[n]
		r.mu.Lock()
		rate := r.successRateLocked()
		status := r.status
		r.mu.Unlock()
		reports = append(reports, HealthReport{
			Name:        n,
			Status:      status,
			IsHealthy:   status != StatusUnhealthy,
			SuccessRate: rate,
			AvgLatency:  time.Duration(r.avgLatencyMs()) * time.Millisecond,
			Load:        r.load(),
			Circuit:     m.breakers.State(n),
			Timestamp:   time.Now(),
		})
	}
	return reports, nil
}

// Shutdown refuses new Generate calls and waits (bounded by ctx) for
// in-flight ones to drain.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.shuttingDown.Store(true)

	done := make(chan struct{})
	go func() {
		m.inFlight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
