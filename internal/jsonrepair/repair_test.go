// Copyright 2026 The dreamscapes-sub008 Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package jsonrepair

import (
	"testing"

	gojson "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepairStrictParsePassesThrough(t *testing.T) {
	r := Repair(`{"title":"ok"}`)
	require.False(t, r.Repaired)
	assert.Equal(t, `{"title":"ok"}`, r.Raw)
	assert.Empty(t, r.Notes)
}

func TestRepairStripsMarkdownFence(t *testing.T) {
	r := Repair("Here is the scene:\n```json\n{\"title\":\"dusk\"}\n```")
	require.True(t, r.Repaired)
	assert.Equal(t, `{"title":"dusk"}`, r.Raw)
	assert.Contains(t, r.Notes, "stripped markdown fences / leading prose")
}

func TestRepairStripsLeadingProseWithoutFence(t *testing.T) {
	r := Repair(`Sure, here you go: {"title":"void"}`)
	require.True(t, r.Repaired)
	assert.Equal(t, `{"title":"void"}`, r.Raw)
}

func TestRepairBalancesUnmatchedBrackets(t *testing.T) {
	r := Repair(`{"title":"dusk","structures":[{"id":"a"}`)
	require.True(t, r.Repaired)
	assert.True(t, gjsonValid(r.Raw))
	found := false
	for _, n := range r.Notes {
		if n == "balanced ]} unmatched opener(s)" {
			found = true
		}
	}
	assert.True(t, found, "expected a balancing note, got %v", r.Notes)
}

func TestRepairRemovesTrailingCommas(t *testing.T) {
	r := Repair(`{"title":"dusk","structures":[],}`)
	require.True(t, r.Repaired)
	assert.Equal(t, `{"title":"dusk","structures":[]}`, r.Raw)
}

func TestRepairNormalizesSingleQuotedStrings(t *testing.T) {
	r := Repair(`{'title': 'dusk'}`)
	require.True(t, r.Repaired)
	m, ok := r.Value.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "dusk", m["title"])
}

func TestRepairDoesNotTouchApostrophesInsideDoubleQuotedStrings(t *testing.T) {
	r := Repair(`{"title":"dusk's glow"}`)
	require.False(t, r.Repaired)
	m, ok := r.Value.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "dusk's glow", m["title"])
}

func TestRepairLargestValidPrefixOnTruncatedInput(t *testing.T) {
	r := Repair(`{"title":"dusk","structures":[{"id":"a"},{"id":`)
	require.True(t, r.Repaired)
	found := false
	for _, n := range r.Notes {
		if n == "returned largest valid JSON prefix; input was truncated" {
			found = true
		}
	}
	assert.True(t, found, "expected a truncation note, got %v", r.Notes)
}

func TestRepairStripsNonSchemaTopLevelKeys(t *testing.T) {
	r := Repair(`{"title":"dusk","explanation":"a calm dusk scene"}`)
	require.True(t, r.Repaired)
	assert.NotContains(t, r.Raw, "explanation")
	m, ok := r.Value.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "dusk", m["title"])
	_, hasExplanation := m["explanation"]
	assert.False(t, hasExplanation)
}

func TestRepairExhaustsOnEmptyInput(t *testing.T) {
	r := Repair("")
	assert.Nil(t, r.Value)
	assert.False(t, r.Repaired)
	assert.Contains(t, r.Notes, "all repair strategies exhausted")
}

func gjsonValid(s string) bool {
	var v interface{}
	return gojson.Unmarshal([]byte(s), &v) == nil
}
