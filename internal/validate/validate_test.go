// Copyright 2026 The dreamscapes-sub008 Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package validate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/girishdigge/dreamscapes-sub008/internal/dream"
)

func validArtifact() *dream.Artifact {
	now := time.Now()
	return &dream.Artifact{
		ID:    "a1",
		Title: "A dusk over the void",
		Style: dream.StyleEthereal,
		Environment: dream.Environment{
			Preset:       dream.PresetDusk,
			Fog:          0.3,
			SkyColor:     "#1a2b3c",
			AmbientLight: 1.0,
		},
		Structures: []dream.Structure{
			{ID: "s1", Template: dream.TemplateTower, Pos: dream.Vec3{0, 0, 0}, Scale: 1.0},
		},
		Entities: []dream.Entity{
			{ID: "e1", Type: dream.EntityBird, Count: 10, Params: dream.EntityParams{Speed: 1, Glow: 0.2, Size: 1, Color: "#ffffff"}},
		},
		Cinematography: dream.Cinematography{
			DurationSec: 20,
			Shots:       []dream.Shot{{Type: dream.ShotEstablish, Duration: 20}},
		},
		Metadata: dream.Metadata{Source: dream.SourceAI, GeneratedAt: now},
		Created:  now,
		Modified: now,
	}
}

func TestValidateAcceptsWellFormedArtifact(t *testing.T) {
	v, err := New()
	require.NoError(t, err)

	result := v.Validate(validArtifact())
	assert.True(t, result.Valid, "unexpected errors: %+v", result.Errors)
	assert.Empty(t, result.Errors)
}

func TestValidateRejectsInvalidEnum(t *testing.T) {
	v, err := New()
	require.NoError(t, err)

	a := validArtifact()
	a.Style = "not-a-style"

	result := v.Validate(a)
	assert.False(t, result.Valid)
	assert.NotEmpty(t, result.Errors)
}

func TestValidateRejectsNonHexColor(t *testing.T) {
	v, err := New()
	require.NoError(t, err)

	a := validArtifact()
	a.Environment.SkyColor = "blue"

	result := v.Validate(a)
	assert.False(t, result.Valid)
}

func TestValidateCustomInvariantDurationMismatch(t *testing.T) {
	v, err := New()
	require.NoError(t, err)

	a := validArtifact()
	a.Cinematography.DurationSec = 20
	a.Cinematography.Shots = []dream.Shot{{Type: dream.ShotEstablish, Duration: 5}}

	result := v.Validate(a)
	require.False(t, result.Valid)

	found := false
	for _, fe := range result.Errors {
		if fe.Field == "duration_tolerance" {
			found = true
		}
	}
	assert.True(t, found, "expected duration_tolerance invariant to fire, got %+v", result.Errors)
}

func TestValidateCustomInvariantEntityCountCeiling(t *testing.T) {
	v, err := New()
	require.NoError(t, err)

	a := validArtifact()
	a.Entities = []dream.Entity{
		{ID: "e1", Type: dream.EntityBird, Count: 200, Params: dream.EntityParams{Speed: 1, Glow: 0.2, Size: 1, Color: "#ffffff"}},
		{ID: "e2", Type: dream.EntityFish, Count: 200, Params: dream.EntityParams{Speed: 1, Glow: 0.2, Size: 1, Color: "#ffffff"}},
		{ID: "e3", Type: dream.EntityOrb, Count: 150, Params: dream.EntityParams{Speed: 1, Glow: 0.2, Size: 1, Color: "#ffffff"}},
	}

	result := v.Validate(a)
	require.False(t, result.Valid)

	found := false
	for _, fe := range result.Errors {
		if fe.Field == "entity_count" {
			found = true
		}
	}
	assert.True(t, found, "expected entity_count invariant to fire, got %+v", result.Errors)
}

func TestCompileInvariantRejectsBadExpression(t *testing.T) {
	v, err := New()
	require.NoError(t, err)

	err = v.CompileInvariant("broken", "not valid expr $$$")
	assert.Error(t, err)
}
