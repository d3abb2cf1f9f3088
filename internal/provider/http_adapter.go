// Copyright 2026 The dreamscapes-sub008 Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package provider

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	gojson "github.com/goccy/go-json"
	log "github.com/sirupsen/logrus"

	"github.com/girishdigge/dreamscapes-sub008/internal/extractor"
)

// HTTPAdapterConfig configures one OpenAI-compatible chat-completions
// endpoint.
type HTTPAdapterConfig struct {
	Name             string
	BaseURL          string
	APIKey           string
	Model            string
	MaxContextTokens int
	CostPerKTokens   float64
	Client           *http.Client
}

// HTTPAdapter speaks the OpenAI chat-completions wire format over plain
// net/http, the same shape the gateway's executors normalize every local
// and hosted backend into before handing a response back upstream.
type HTTPAdapter struct {
	cfg   HTTPAdapterConfig
	clock Clock
}

// NewHTTPAdapter constructs an HTTPAdapter, defaulting the HTTP client
// timeout the way the reference executors size theirs for long completions.
func NewHTTPAdapter(cfg HTTPAdapterConfig) *HTTPAdapter {
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: 2 * time.Minute}
	}
	return &HTTPAdapter{cfg: cfg, clock: time.Now}
}

func (a *HTTPAdapter) Name() string { return a.cfg.Name }

func (a *HTTPAdapter) Capabilities() Capabilities {
	return Capabilities{
		Name:              a.cfg.Name,
		SupportsStreaming: false,
		MaxContextTokens:  a.cfg.MaxContextTokens,
		CostPerKTokens:    a.cfg.CostPerKTokens,
	}
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// rawChat converts the decoded wire response into the tagged chat shape the
// extractor pattern-matches; content stays untouched here, even when the
// choices array is empty, so a content-free success classifies downstream
// as a parsing failure rather than being papered over by the adapter.
func rawChat(parsed chatCompletionResponse) *extractor.RawResponse {
	chat := &extractor.ChatShape{Choices: make([]extractor.ChatChoice, 0, len(parsed.Choices))}
	for _, choice := range parsed.Choices {
		chat.Choices = append(chat.Choices, extractor.ChatChoice{
			Message: extractor.ChatMessage{Content: choice.Message.Content},
		})
	}
	return &extractor.RawResponse{Kind: extractor.KindChat, Chat: chat}
}

// Generate issues one chat-completions call and converts it into the
// adapter-neutral Response shape.
func (a *HTTPAdapter) Generate(ctx context.Context, req Request) (Response, error) {
	model := req.Model
	if model == "" {
		model = a.cfg.Model
	}

	payload := chatCompletionRequest{
		Model:       model,
		Messages:    []chatMessage{{Role: "user", Content: req.Prompt}},
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	body, err := gojson.Marshal(payload)
	if err != nil {
		return Response{}, fmt.Errorf("provider %s: marshaling request: %w", a.cfg.Name, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("provider %s: building request: %w", a.cfg.Name, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if a.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)
	}

	start := a.clock()
	resp, err := a.cfg.Client.Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("provider %s: request failed: %w", a.cfg.Name, err)
	}
	defer resp.Body.Close()

	latency := a.clock().Sub(start)

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return Response{}, &HTTPError{Provider: a.cfg.Name, StatusCode: resp.StatusCode, Body: string(raw), Headers: resp.Header}
	}

	var parsed chatCompletionResponse
	if err := gojson.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Response{}, fmt.Errorf("provider %s: decoding response: %w", a.cfg.Name, err)
	}

	log.WithFields(log.Fields{"provider": a.cfg.Name, "model": parsed.Model, "latency_ms": latency.Milliseconds()}).Debug("provider generate completed")

	return Response{
		Raw:          rawChat(parsed),
		Model:        parsed.Model,
		PromptTokens: parsed.Usage.PromptTokens,
		OutputTokens: parsed.Usage.CompletionTokens,
		LatencyMS:    latency.Milliseconds(),
	}, nil
}

// TestConnection issues a minimal request to confirm the endpoint is
// reachable and authenticated, used by the health monitor's active probe.
func (a *HTTPAdapter) TestConnection(ctx context.Context) error {
	_, err := a.Generate(ctx, Request{Prompt: "ping", MaxTokens: 1})
	return err
}

// HTTPError carries the upstream status and headers through to the error
// classifier, which needs both to decide retryability and backoff.
type HTTPError struct {
	Provider   string
	StatusCode int
	Body       string
	Headers    http.Header
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("provider %s: http %d: %s", e.Provider, e.StatusCode, e.Body)
}
