// Copyright 2026 The dreamscapes-sub008 Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package provider

import (
	"context"
)

// MockAdapter is a deterministic Adapter for tests:
// it never makes a network call and its behavior is fully scripted.
type MockAdapter struct {
	NameValue string
	Responses []Response
	Errors    []error
	calls     int

	ConnectErr error
	Caps       Capabilities
}

// NewMockAdapter constructs a MockAdapter that returns scripted
// responses/errors in call order, repeating the last entry of a script once
// it is exhausted; with no scripted responses it returns a minimal dream.
func NewMockAdapter(name string) *MockAdapter {
	return &MockAdapter{NameValue: name, Caps: Capabilities{Name: name, MaxContextTokens: 8192}}
}

func (m *MockAdapter) Name() string { return m.NameValue }

func (m *MockAdapter) Capabilities() Capabilities { return m.Caps }

func (m *MockAdapter) TestConnection(ctx context.Context) error { return m.ConnectErr }

// Generate returns the scripted response/error for this call index, or the
// last scripted entry once the script is exhausted.
func (m *MockAdapter) Generate(ctx context.Context, req Request) (Response, error) {
	idx := m.calls
	m.calls++

	if len(m.Errors) > 0 {
		i := idx
		if i >= len(m.Errors) {
			i = len(m.Errors) - 1
		}
		if err := m.Errors[i]; err != nil {
			return Response{}, err
		}
	}

	if len(m.Responses) == 0 {
		return TextResponse(`{"title":"mock dream","style":"ethereal"}`, m.NameValue), nil
	}
	i := idx
	if i >= len(m.Responses) {
		i = len(m.Responses) - 1
	}
	return m.Responses[i], nil
}

// Calls reports how many times Generate has been invoked.
func (m *MockAdapter) Calls() int { return m.calls }
