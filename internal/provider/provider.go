// Copyright 2026 The dreamscapes-sub008 Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package provider defines the adapter boundary between the orchestrator
// and a concrete generative backend, and a reference HTTP implementation
// of it.
package provider

import (
	"context"
	"time"

	"github.com/girishdigge/dreamscapes-sub008/internal/extractor"
)

// Request is the normalized generation request handed to an Adapter. The
// orchestrator builds Prompt once per attempt; adapters never see raw
// dream.Request fields.
type Request struct {
	Prompt      string
	Model       string
	Temperature float64
	MaxTokens   int
	TimeoutMS   int
}

// Response is an adapter's raw reply, before extraction or repair. Raw
// carries whatever shape the upstream actually returned, tagged for the
// extractor to normalize; adapters never pre-extract content themselves.
type Response struct {
	Raw          *extractor.RawResponse
	Model        string
	PromptTokens int
	OutputTokens int
	LatencyMS    int64
}

// TextResponse builds a Response whose raw payload is a plain string, the
// shape local/mock backends hand back.
func TextResponse(text, model string) Response {
	return Response{Raw: &extractor.RawResponse{Kind: extractor.KindString, Text: text}, Model: model}
}

// Capabilities describes what an adapter supports, used by the provider
// manager's selection strategies.
type Capabilities struct {
	Name              string
	SupportsStreaming bool
	MaxContextTokens  int
	CostPerKTokens    float64
}

// Adapter is the boundary every backend (HTTP API, local model, mock) must
// satisfy. Generate must respect ctx cancellation/deadline.
type Adapter interface {
	Name() string
	Generate(ctx context.Context, req Request) (Response, error)
	TestConnection(ctx context.Context) error
	Capabilities() Capabilities
}

// Clock abstracts time.Now so latency measurement is mockable in tests.
type Clock func() time.Time
