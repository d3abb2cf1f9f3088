// Copyright 2026 The dreamscapes-sub008 Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/girishdigge/dreamscapes-sub008/internal/extractor"
)

func TestHTTPAdapterGenerate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"model": "dream-model",
			"choices": [{"message": {"role": "assistant", "content": "{\"title\":\"ok\"}"}}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 5}
		}`))
	}))
	defer server.Close()

	adapter := NewHTTPAdapter(HTTPAdapterConfig{
		Name:    "test-provider",
		BaseURL: server.URL,
		APIKey:  "secret",
		Model:   "dream-model",
	})

	resp, err := adapter.Generate(context.Background(), Request{Prompt: "hello"})
	require.NoError(t, err)
	require.NotNil(t, resp.Raw)
	assert.Equal(t, extractor.KindChat, resp.Raw.Kind)
	require.Len(t, resp.Raw.Chat.Choices, 1)
	assert.Equal(t, "{\"title\":\"ok\"}", resp.Raw.Chat.Choices[0].Message.Content)
	assert.Equal(t, "dream-model", resp.Model)
	assert.Equal(t, 10, resp.PromptTokens)
	assert.Equal(t, 5, resp.OutputTokens)
}

func TestHTTPAdapterGeneratePassesEmptyChoicesThrough(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"model": "dream-model", "choices": []}`))
	}))
	defer server.Close()

	adapter := NewHTTPAdapter(HTTPAdapterConfig{Name: "test-provider", BaseURL: server.URL, Model: "m"})

	resp, err := adapter.Generate(context.Background(), Request{Prompt: "hello"})
	require.NoError(t, err)
	require.NotNil(t, resp.Raw)
	assert.Equal(t, extractor.KindChat, resp.Raw.Kind)
	assert.Empty(t, resp.Raw.Chat.Choices)
}

func TestHTTPAdapterGenerateErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":"rate limited"}`))
	}))
	defer server.Close()

	adapter := NewHTTPAdapter(HTTPAdapterConfig{Name: "test-provider", BaseURL: server.URL, Model: "m"})

	_, err := adapter.Generate(context.Background(), Request{Prompt: "hello"})
	require.Error(t, err)

	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusTooManyRequests, httpErr.StatusCode)
	assert.Equal(t, "30", httpErr.Headers.Get("Retry-After"))
}

func TestMockAdapterScriptedResponses(t *testing.T) {
	mock := NewMockAdapter("mock")
	mock.Responses = []Response{TextResponse("first", ""), TextResponse("second", "")}

	r1, err := mock.Generate(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, "first", r1.Raw.Text)

	r2, err := mock.Generate(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, "second", r2.Raw.Text)

	r3, err := mock.Generate(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, "second", r3.Raw.Text)

	assert.Equal(t, 3, mock.Calls())
}
