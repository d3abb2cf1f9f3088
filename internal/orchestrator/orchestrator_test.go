// Copyright 2026 The dreamscapes-sub008 Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package orchestrator

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/girishdigge/dreamscapes-sub008/internal/cache"
	"github.com/girishdigge/dreamscapes-sub008/internal/circuit"
	"github.com/girishdigge/dreamscapes-sub008/internal/classify"
	"github.com/girishdigge/dreamscapes-sub008/internal/dream"
	"github.com/girishdigge/dreamscapes-sub008/internal/extractor"
	"github.com/girishdigge/dreamscapes-sub008/internal/manager"
	"github.com/girishdigge/dreamscapes-sub008/internal/metrics"
	"github.com/girishdigge/dreamscapes-sub008/internal/prompt"
	"github.com/girishdigge/dreamscapes-sub008/internal/provider"
	"github.com/girishdigge/dreamscapes-sub008/internal/repair"
	"github.com/girishdigge/dreamscapes-sub008/internal/validate"
)

const validDreamJSON = `{
	"id": "a1",
	"title": "A dusk over the void",
	"style": "ethereal",
	"environment": {"preset": "dusk", "fog": 0.3, "skyColor": "#1a2b3c", "ambientLight": 1.0},
	"structures": [{"id": "s1", "template": "tower", "pos": [0,0,0], "scale": 1.0}],
	"entities": [{"id": "e1", "type": "bird", "count": 10, "params": {"speed":1,"glow":0.2,"size":1,"color":"#ffffff"}}],
	"cinematography": {"durationSec": 20, "shots": [{"type": "establish", "duration": 20}]}
}`

func newTestOrchestrator(t *testing.T, adapter provider.Adapter) *Orchestrator {
	t.Helper()

	breakers := circuit.NewRegistry(circuit.DefaultConfig(), nil)
	classifier := classify.New(classify.DefaultConfig(), nil)
	mgr := manager.New(manager.DefaultConfig(), breakers, classifier)
	mgr.Register("mock", adapter, manager.RegisterConfig{Priority: 1})

	v, err := validate.New()
	require.NoError(t, err)
	pipeline := repair.New(repair.DefaultConfig(), v)

	c := cache.New(10, cache.DefaultTTLPolicy(), nil)
	m := metrics.New(prometheus.NewRegistry())

	cfg := DefaultConfig()
	cfg.RequestDeadline = 5 * time.Second
	return New(cfg, c, prompt.New(), mgr, extractor.New(), pipeline, m)
}

func TestGenerateReturnsAIArtifactOnValidResponse(t *testing.T) {
	mock := provider.NewMockAdapter("mock")
	mock.Responses = []provider.Response{provider.TextResponse(validDreamJSON, "mock-model")}

	o := newTestOrchestrator(t, mock)
	outcome, err := o.Generate(context.Background(), dream.Request{Text: "a dusk over the void"})

	require.NoError(t, err)
	require.NotNil(t, outcome.Artifact)
	assert.Equal(t, dream.SourceAI, outcome.Source)
	assert.False(t, outcome.CacheHit)
	assert.Equal(t, "a1", outcome.Artifact.ID)
}

func TestGenerateExtractsChatShapedProviderResponse(t *testing.T) {
	mock := provider.NewMockAdapter("mock")
	mock.Responses = []provider.Response{{
		Raw: &extractor.RawResponse{Kind: extractor.KindChat, Chat: &extractor.ChatShape{
			Choices: []extractor.ChatChoice{{Message: extractor.ChatMessage{Content: validDreamJSON}}},
		}},
		Model: "mock-model",
	}}

	o := newTestOrchestrator(t, mock)
	outcome, err := o.Generate(context.Background(), dream.Request{Text: "a dusk over the void"})

	require.NoError(t, err)
	require.NotNil(t, outcome.Artifact)
	assert.Equal(t, dream.SourceAI, outcome.Source)
	assert.Equal(t, "a1", outcome.Artifact.ID)
}

func TestGenerateExtractsContentOnlyShapedProviderResponse(t *testing.T) {
	mock := provider.NewMockAdapter("mock")
	mock.Responses = []provider.Response{{
		Raw:   &extractor.RawResponse{Kind: extractor.KindContentOnly, Content: &extractor.ContentShape{Content: validDreamJSON}},
		Model: "mock-model",
	}}

	o := newTestOrchestrator(t, mock)
	outcome, err := o.Generate(context.Background(), dream.Request{Text: "a dusk over the void"})

	require.NoError(t, err)
	require.NotNil(t, outcome.Artifact)
	assert.Equal(t, dream.SourceAI, outcome.Source)
}

func TestGenerateFallsBackWhenChatResponseHasNoChoices(t *testing.T) {
	mock := provider.NewMockAdapter("mock")
	mock.Responses = []provider.Response{{
		Raw:   &extractor.RawResponse{Kind: extractor.KindChat, Chat: &extractor.ChatShape{}},
		Model: "mock-model",
	}}

	o := newTestOrchestrator(t, mock)
	outcome, err := o.Generate(context.Background(), dream.Request{Text: "a dusk over the void"})

	require.NoError(t, err)
	assert.Equal(t, dream.SourceLocalFallback, outcome.Source)
}

func TestGenerateRepairsSlightlyMalformedJSON(t *testing.T) {
	mock := provider.NewMockAdapter("mock")
	fenced := "```json\n" + validDreamJSON + "\n```"
	mock.Responses = []provider.Response{provider.TextResponse(fenced, "mock-model")}

	o := newTestOrchestrator(t, mock)
	outcome, err := o.Generate(context.Background(), dream.Request{Text: "a dusk over the void"})

	require.NoError(t, err)
	assert.Equal(t, dream.SourceAIRepaired, outcome.Source)
}

func TestGenerateSecondCallIsCacheHit(t *testing.T) {
	mock := provider.NewMockAdapter("mock")
	mock.Responses = []provider.Response{provider.TextResponse(validDreamJSON, "mock-model")}

	o := newTestOrchestrator(t, mock)
	req := dream.Request{Text: "a dusk over the void"}

	first, err := o.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, first.CacheHit)

	second, err := o.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, second.CacheHit)
	assert.Equal(t, 1, mock.Calls())
}

func TestGenerateFallsBackToLocalHeuristicWhenProviderAlwaysFails(t *testing.T) {
	mock := provider.NewMockAdapter("mock")
	mock.Errors = []error{errors.New("network: connection failed")}

	o := newTestOrchestrator(t, mock)
	outcome, err := o.Generate(context.Background(), dream.Request{Text: "a dusk over the void"})

	require.NoError(t, err)
	require.NotNil(t, outcome.Artifact)
	assert.Equal(t, dream.SourceLocalFallback, outcome.Source)
	assert.NotEmpty(t, outcome.Artifact.Assumptions)
}

func TestGenerateReturnsSafeFallbackWhenDeadlineAlreadyExceeded(t *testing.T) {
	mock := provider.NewMockAdapter("mock")
	mock.Responses = []provider.Response{provider.TextResponse(validDreamJSON, "mock-model")}

	o := newTestOrchestrator(t, mock)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcome, err := o.Generate(ctx, dream.Request{Text: "a dusk over the void"})
	require.NoError(t, err)
	assert.Equal(t, dream.SourceSafeFallback, outcome.Source)
}

func TestLocalFallbackProducesDeterministicStyleAndDuration(t *testing.T) {
	req := dream.Request{Text: "x", Style: dream.StyleNightmare, Options: dream.Options{Duration: 45}}
	a := localFallback(req)
	assert.Equal(t, dream.StyleNightmare, a.Style)
	assert.Equal(t, 45.0, a.Cinematography.DurationSec)
	assert.Equal(t, dream.SourceLocalFallback, a.Metadata.Source)
	assert.NotEmpty(t, a.ID)
}

func TestSafeFallbackIsAlwaysPopulated(t *testing.T) {
	a := SafeFallback()
	assert.Equal(t, dream.SourceSafeFallback, a.Metadata.Source)
	assert.NotEmpty(t, a.Cinematography.Shots)
	assert.NotEmpty(t, a.ID)
}

func TestGenerateAssignsIDWhenProviderOmitsOne(t *testing.T) {
	noID := strings.Replace(validDreamJSON, `"id": "a1",`, "", 1)
	mock := provider.NewMockAdapter("mock")
	mock.Responses = []provider.Response{provider.TextResponse(noID, "mock-model")}

	o := newTestOrchestrator(t, mock)
	outcome, err := o.Generate(context.Background(), dream.Request{Text: "a dusk over the void"})

	require.NoError(t, err)
	require.NotNil(t, outcome.Artifact)
	assert.NotEmpty(t, outcome.Artifact.ID)
}
