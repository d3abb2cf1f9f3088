// Copyright 2026 The dreamscapes-sub008 Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package extractor normalizes the handful of shapes a provider adapter may
// hand back into a raw string, without ever walking an arbitrary tree or
// panicking on a hostile payload.
package extractor

// RawResponse is the tagged variant a provider adapter returns, replacing
// the duck-typed response bags this subsystem used to tolerate: the
// extractor pattern-matches it exhaustively instead of probing an any-typed
// map for a series of optional keys.
type RawResponse struct {
	// Kind selects which field below is populated.
	Kind Kind
	Text string
	Chat *ChatShape
	Legacy *LegacyShape
	Content *ContentShape
	// Custom lets an adapter register an arbitrary shape extracted via Func.
	Custom any
}

// Kind selects the shape carried by a RawResponse.
type Kind int

const (
	KindString Kind = iota
	KindChat
	KindLegacy
	KindContentOnly
	KindCustom
)

// ChatShape mirrors {choices[0].message.content}.
type ChatShape struct {
	Choices []ChatChoice
}

// ChatChoice is one entry of a chat-style response's choices array.
type ChatChoice struct {
	Message ChatMessage
}

// ChatMessage is the message body of a chat-style choice.
type ChatMessage struct {
	Content string
}

// LegacyShape mirrors {choices[0].text}.
type LegacyShape struct {
	Choices []LegacyChoice
}

// LegacyChoice is one entry of a legacy completion response's choices array.
type LegacyChoice struct {
	Text string
}

// ContentShape mirrors a streaming-collapsed {content}.
type ContentShape struct {
	Content string
}

// CustomFunc extracts text from a provider-specific shape registered via
// RegisterCustom. It must never panic; a panic is recovered by Extract and
// turned into a nil result.
type CustomFunc func(shape any) (string, bool)

// Extractor normalizes RawResponse values to plain strings, and supports
// provider-registered custom shapes per component H's adapter contract.
type Extractor struct {
	custom map[string]CustomFunc
}

// New constructs an Extractor with no custom shapes registered.
func New() *Extractor {
	return &Extractor{custom: make(map[string]CustomFunc)}
}

// RegisterCustom associates a provider name with a shape-extraction function
// used when that provider's RawResponse.Kind is KindCustom.
func (e *Extractor) RegisterCustom(provider string, fn CustomFunc) {
	e.custom[provider] = fn
}

// Extract returns the raw text content of resp, or nil if none could be
// found. It must never throw: malformed or partially-populated shapes, and
// panics from a misbehaving custom extractor, are all absorbed and reported
// as a nil result.
func (e *Extractor) Extract(resp *RawResponse, provider string) (text *string, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			text, ok = nil, false
		}
	}()

	if resp == nil {
		return nil, false
	}

	switch resp.Kind {
	case KindString:
		if resp.Text == "" {
			return nil, false
		}
		s := resp.Text
		return &s, true
	case KindChat:
		if resp.Chat == nil || len(resp.Chat.Choices) == 0 {
			return nil, false
		}
		content := resp.Chat.Choices[0].Message.Content
		if content == "" {
			return nil, false
		}
		return &content, true
	case KindLegacy:
		if resp.Legacy == nil || len(resp.Legacy.Choices) == 0 {
			return nil, false
		}
		content := resp.Legacy.Choices[0].Text
		if content == "" {
			return nil, false
		}
		return &content, true
	case KindContentOnly:
		if resp.Content == nil || resp.Content.Content == "" {
			return nil, false
		}
		return &resp.Content.Content, true
	case KindCustom:
		fn, registered := e.custom[provider]
		if !registered || resp.Custom == nil {
			return nil, false
		}
		content, found := fn(resp.Custom)
		if !found || content == "" {
			return nil, false
		}
		return &content, true
	default:
		return nil, false
	}
}
