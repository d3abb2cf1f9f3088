// Copyright 2026 The dreamscapes-sub008 Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package circuit gates traffic to a failing provider using a per-provider
// state machine built on sony/gobreaker, matching the closed/open/half_open
// phases and admission rules this gateway's providers must obey.
package circuit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

// Phase mirrors the three-state circuit model.
type Phase string

const (
	PhaseClosed   Phase = "closed"
	PhaseOpen     Phase = "open"
	PhaseHalfOpen Phase = "half_open"
)

// State is a snapshot of one provider's circuit.
type State struct {
	Phase        Phase
	FailureCount uint32
	OpenedAt     *time.Time
	NextProbeAt  *time.Time
}

// ErrOpen is returned when a call is rejected because the circuit is open.
var ErrOpen = errors.New("circuit open")

// Config tunes the failure threshold and cooldown window.
type Config struct {
	FailureThreshold uint32
	Cooldown         time.Duration
	// HalfOpenMaxProbes is always 1 for this gateway's contract (exactly one
	// probe in flight while half_open); kept explicit for clarity at call sites.
	HalfOpenMaxProbes uint32
}

// DefaultConfig matches the defaults named in the circuit breaker rules.
func DefaultConfig() Config {
	return Config{FailureThreshold: 5, Cooldown: 30 * time.Second, HalfOpenMaxProbes: 1}
}

// OnStateChange is invoked whenever any provider's breaker transitions,
// letting the health surface and logger observe circuit events.
type OnStateChange func(provider string, from, to Phase)

// Registry owns one gobreaker.CircuitBreaker per provider.
type Registry struct {
	mu       sync.RWMutex
	cfg      Config
	breakers map[string]*gobreaker.CircuitBreaker
	onChange OnStateChange
	opened   map[string]time.Time
}

// NewRegistry constructs a circuit registry. onChange may be nil.
func NewRegistry(cfg Config, onChange OnStateChange) *Registry {
	return &Registry{
		cfg:      cfg,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		onChange: onChange,
		opened:   make(map[string]time.Time),
	}
}

func toPhase(s gobreaker.State) Phase {
	switch s {
	case gobreaker.StateOpen:
		return PhaseOpen
	case gobreaker.StateHalfOpen:
		return PhaseHalfOpen
	default:
		return PhaseClosed
	}
}

func (r *Registry) breakerFor(provider string) *gobreaker.CircuitBreaker {
	r.mu.RLock()
	b, ok := r.breakers[provider]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[provider]; ok {
		return b
	}

	threshold := r.cfg.FailureThreshold
	settings := gobreaker.Settings{
		Name:        provider,
		MaxRequests: r.cfg.HalfOpenMaxProbes,
		Interval:    0,
		Timeout:     r.cfg.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			r.mu.Lock()
			if to == gobreaker.StateOpen {
				r.opened[name] = time.Now()
			} else if to == gobreaker.StateClosed {
				delete(r.opened, name)
			}
			r.mu.Unlock()
			if r.onChange != nil {
				r.onChange(name, toPhase(from), toPhase(to))
			}
		},
	}
	b = gobreaker.NewCircuitBreaker(settings)
	r.breakers[provider] = b
	return b
}

// SetConfig replaces the registry's failure threshold and cooldown. Existing
// breakers are rebuilt so the new settings apply to the next call through
// each one; their failure counters reset, which is acceptable for an
// operator-driven reconfiguration.
func (r *Registry) SetConfig(cfg Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cfg == r.cfg {
		return
	}
	r.cfg = cfg
	r.breakers = make(map[string]*gobreaker.CircuitBreaker)
	r.opened = make(map[string]time.Time)
}

// Allow reports whether a call is currently admitted for provider, without
// consuming the half-open probe slot; used for fallback-chain exclusion.
func (r *Registry) Allow(provider string) bool {
	return r.breakerFor(provider).State() != gobreaker.StateOpen
}

// Execute runs fn through the named provider's breaker. fn's error, if any,
// is returned unwrapped so the caller can classify it; ErrOpen is returned
// directly when the circuit rejects the call without invoking fn.
func (r *Registry) Execute(ctx context.Context, provider string, fn func(context.Context) error) error {
	b := r.breakerFor(provider)
	_, err := b.Execute(func() (interface{}, error) {
		return nil, fn(ctx)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrOpen
	}
	return err
}

// State returns a snapshot of one provider's circuit.
func (r *Registry) State(provider string) State {
	b := r.breakerFor(provider)
	counts := b.Counts()
	st := State{Phase: toPhase(b.State()), FailureCount: counts.ConsecutiveFailures}

	r.mu.RLock()
	if opened, ok := r.opened[provider]; ok {
		t := opened
		st.OpenedAt = &t
		probe := opened.Add(r.cfg.Cooldown)
		st.NextProbeAt = &probe
	}
	r.mu.RUnlock()

	return st
}
