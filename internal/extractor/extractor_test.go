// Copyright 2026 The dreamscapes-sub008 Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package extractor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractKindString(t *testing.T) {
	e := New()
	text, ok := e.Extract(&RawResponse{Kind: KindString, Text: "hello"}, "p")
	require.True(t, ok)
	assert.Equal(t, "hello", *text)
}

func TestExtractKindStringEmptyTextFails(t *testing.T) {
	e := New()
	_, ok := e.Extract(&RawResponse{Kind: KindString, Text: ""}, "p")
	assert.False(t, ok)
}

func TestExtractKindChat(t *testing.T) {
	e := New()
	chat := &ChatShape{Choices: []ChatChoice{{Message: ChatMessage{Content: "chat text"}}}}

	text, ok := e.Extract(&RawResponse{Kind: KindChat, Chat: chat}, "p")
	require.True(t, ok)
	assert.Equal(t, "chat text", *text)
}

func TestExtractKindChatNoChoicesFails(t *testing.T) {
	e := New()
	_, ok := e.Extract(&RawResponse{Kind: KindChat, Chat: &ChatShape{}}, "p")
	assert.False(t, ok)
}

func TestExtractKindLegacy(t *testing.T) {
	e := New()
	legacy := &LegacyShape{Choices: []LegacyChoice{{Text: "legacy text"}}}

	text, ok := e.Extract(&RawResponse{Kind: KindLegacy, Legacy: legacy}, "p")
	require.True(t, ok)
	assert.Equal(t, "legacy text", *text)
}

func TestExtractKindContentOnly(t *testing.T) {
	e := New()
	text, ok := e.Extract(&RawResponse{Kind: KindContentOnly, Content: &ContentShape{Content: "streamed"}}, "p")
	require.True(t, ok)
	assert.Equal(t, "streamed", *text)
}

func TestExtractKindCustomRegistered(t *testing.T) {
	e := New()
	e.RegisterCustom("weird-provider", func(shape any) (string, bool) {
		m, ok := shape.(map[string]string)
		if !ok {
			return "", false
		}
		return m["body"], true
	})

	text, ok := e.Extract(&RawResponse{Kind: KindCustom, Custom: map[string]string{"body": "custom text"}}, "weird-provider")
	require.True(t, ok)
	assert.Equal(t, "custom text", *text)
}

func TestExtractKindCustomUnregisteredProviderFails(t *testing.T) {
	e := New()
	_, ok := e.Extract(&RawResponse{Kind: KindCustom, Custom: "anything"}, "unregistered")
	assert.False(t, ok)
}

func TestExtractRecoversFromPanickingCustomFunc(t *testing.T) {
	e := New()
	e.RegisterCustom("flaky", func(shape any) (string, bool) {
		panic("boom")
	})

	text, ok := e.Extract(&RawResponse{Kind: KindCustom, Custom: "x"}, "flaky")
	assert.False(t, ok)
	assert.Nil(t, text)
}

func TestExtractNilResponseFails(t *testing.T) {
	e := New()
	_, ok := e.Extract(nil, "p")
	assert.False(t, ok)
}
