// Copyright 2026 The dreamscapes-sub008 Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package manager

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/girishdigge/dreamscapes-sub008/internal/circuit"
	"github.com/girishdigge/dreamscapes-sub008/internal/classify"
	"github.com/girishdigge/dreamscapes-sub008/internal/provider"
)

func newTestManager(cfg Config) *Manager {
	breakers := circuit.NewRegistry(circuit.DefaultConfig(), nil)
	classifierCfg := classify.DefaultConfig()
	classifierCfg.BackoffBaseMs = 1
	classifierCfg.BackoffCapMs = 5
	classifier := classify.New(classifierCfg, nil)
	return New(cfg, breakers, classifier)
}

func TestGenerateFallsBackToSecondProvider(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AdmissionTimeout = time.Second
	m := newTestManager(cfg)

	failing := provider.NewMockAdapter("primary")
	failing.Errors = []error{errors.New("network: connection failed")}
	healthy := provider.NewMockAdapter("secondary")
	healthy.Responses = []provider.Response{provider.TextResponse("ok", "")}

	m.Register("primary", failing, RegisterConfig{Priority: 1})
	m.Register("secondary", healthy, RegisterConfig{Priority: 2})

	result, err := m.Generate(context.Background(), provider.Request{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "secondary", result.Provider)
	// The network failure earns one same-provider retry before the chain
	// switches, so the successful secondary call is the third attempt.
	assert.Equal(t, 3, result.Attempts)
	assert.Equal(t, 2, failing.Calls())
}

func TestGenerateExhaustsChainOnNonRetryable(t *testing.T) {
	cfg := DefaultConfig()
	m := newTestManager(cfg)

	bad := provider.NewMockAdapter("only")
	bad.Errors = []error{errors.New("unauthorized: invalid api key")}
	m.Register("only", bad, RegisterConfig{})

	_, err := m.Generate(context.Background(), provider.Request{Prompt: "hi"})
	require.Error(t, err)

	var ce *classify.ClassifiedError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, classify.KindAuthentication, ce.Type)
}

func TestGenerateFeedsBreakerFailureCountToClassifier(t *testing.T) {
	cfg := DefaultConfig()
	m := newTestManager(cfg)

	bad := provider.NewMockAdapter("only")
	bad.Errors = []error{errors.New("unauthorized: invalid api key")}
	m.Register("only", bad, RegisterConfig{})

	_, err := m.Generate(context.Background(), provider.Request{Prompt: "hi"})
	require.Error(t, err)

	var ce *classify.ClassifiedError
	require.ErrorAs(t, err, &ce)
	// The breaker records the failure before classification runs, so the
	// context carries the provider's running consecutive-failure count.
	assert.Equal(t, 1, ce.Context.ConsecutiveFailures)
}

func TestGenerateMarksAllProvidersFailedOnExhaustion(t *testing.T) {
	cfg := DefaultConfig()
	m := newTestManager(cfg)

	bad := provider.NewMockAdapter("only")
	bad.Errors = []error{errors.New("unauthorized: invalid api key")}
	m.Register("only", bad, RegisterConfig{})

	_, err := m.Generate(context.Background(), provider.Request{Prompt: "hi"})
	require.Error(t, err)

	var ce *classify.ClassifiedError
	require.ErrorAs(t, err, &ce)
	assert.True(t, ce.Context.AllProvidersFailed)
	assert.Equal(t, classify.SeverityCritical, ce.Severity)
}

func TestSelectReturnsErrWhenEmpty(t *testing.T) {
	m := newTestManager(DefaultConfig())
	_, err := m.Select()
	assert.ErrorIs(t, err, ErrNoHealthyProvider)
}

func TestShutdownRefusesNewWork(t *testing.T) {
	m := newTestManager(DefaultConfig())
	m.Register("p", provider.NewMockAdapter("p"), RegisterConfig{})

	require.NoError(t, m.Shutdown(context.Background()))

	_, err := m.Generate(context.Background(), provider.Request{})
	assert.ErrorIs(t, err, ErrShuttingDown)
}
