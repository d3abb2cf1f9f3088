// Copyright 2026 The dreamscapes-sub008 Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package dream defines the artifact object graph the gateway is ultimately
// responsible for producing: a validated scene specification describing a
// 3D dream environment, its structures and entities, and a camera plan.
package dream

import "time"

// Style is the fixed creative-direction enum for an artifact.
type Style string

const (
	StyleEthereal  Style = "ethereal"
	StyleCyberpunk Style = "cyberpunk"
	StyleSurreal   Style = "surreal"
	StyleFantasy   Style = "fantasy"
	StyleNightmare Style = "nightmare"
)

// DefaultStyle is used when a caller omits style.
const DefaultStyle = StyleEthereal

// EnvironmentPreset is the fixed lighting/atmosphere preset enum.
type EnvironmentPreset string

const (
	PresetDawn       EnvironmentPreset = "dawn"
	PresetDusk       EnvironmentPreset = "dusk"
	PresetNight      EnvironmentPreset = "night"
	PresetVoid       EnvironmentPreset = "void"
	PresetUnderwater EnvironmentPreset = "underwater"
)

// StructureTemplate is the fixed enum of buildable structure kinds.
type StructureTemplate string

const (
	TemplateTower        StructureTemplate = "tower"
	TemplateFloatingIsland StructureTemplate = "floating_island"
	TemplateCrystalSpire StructureTemplate = "crystal_spire"
	TemplateOrganicShell StructureTemplate = "organic_shell"
	TemplateRuinedArch   StructureTemplate = "ruined_arch"
	TemplateStaircase    StructureTemplate = "infinite_staircase"
	TemplateMonolith     StructureTemplate = "monolith"
	TemplatePlatform     StructureTemplate = "platform"
)

// EntityType is the fixed enum of populatable creature/object kinds.
type EntityType string

const (
	EntityBird       EntityType = "bird"
	EntityFish       EntityType = "fish"
	EntityParticle   EntityType = "particle"
	EntityButterfly  EntityType = "butterfly"
	EntityFirefly    EntityType = "firefly"
	EntityShadow     EntityType = "shadow_figure"
	EntityOrb        EntityType = "light_orb"
)

// ShotType is the fixed enum of cinematography shot kinds.
type ShotType string

const (
	ShotEstablish ShotType = "establish"
	ShotOrbit     ShotType = "orbit"
	ShotFlyThrough ShotType = "fly_through"
	ShotCloseUp   ShotType = "close_up"
	ShotPullBack  ShotType = "pull_back"
)

// RenderQuality is the fixed enum for optional render directives.
type RenderQuality string

const (
	QualityDraft  RenderQuality = "draft"
	QualityMedium RenderQuality = "medium"
	QualityHigh   RenderQuality = "high"
)

// Source is the provenance tag recorded in Metadata.Source, authoritative
// for how an artifact was produced.
type Source string

const (
	SourceAI                Source = "ai"
	SourceAIRepaired        Source = "ai_repaired"
	SourceLocalFallback     Source = "local_fallback"
	SourceSafeFallback      Source = "safe_fallback"
	SourceEmergencyFallback Source = "emergency_fallback"
)

// Vec3 is a 3-tuple of coordinates, reused for positions, scales and rotations.
type Vec3 [3]float64

// Environment describes the atmosphere of the scene.
type Environment struct {
	Preset       EnvironmentPreset `json:"preset" validate:"oneof=dawn dusk night void underwater"`
	Fog          float64           `json:"fog" validate:"gte=0,lte=1"`
	SkyColor     string            `json:"skyColor" validate:"hexcolor6"`
	AmbientLight float64           `json:"ambientLight" validate:"gte=0,lte=3"`
}

// Structure is one placed object in the scene.
type Structure struct {
	ID       string            `json:"id" validate:"required"`
	Template StructureTemplate `json:"template" validate:"oneof=tower floating_island crystal_spire organic_shell ruined_arch infinite_staircase monolith platform"`
	Pos      Vec3              `json:"pos" validate:"dive,gte=-1000,lte=1000"`
	Scale    float64           `json:"scale" validate:"gte=0.1,lte=10"`
	Rotation *Vec3             `json:"rotation,omitempty"`
	Features []string          `json:"features,omitempty"`
}

// EntityParams controls per-entity rendering/behavior knobs.
type EntityParams struct {
	Speed float64 `json:"speed" validate:"gte=0.1,lte=10"`
	Glow  float64 `json:"glow" validate:"gte=0,lte=1"`
	Size  float64 `json:"size" validate:"gte=0.1,lte=5"`
	Color string  `json:"color" validate:"hexcolor6"`
}

// Entity is a population of like creatures/objects.
type Entity struct {
	ID     string       `json:"id" validate:"required"`
	Type   EntityType   `json:"type" validate:"oneof=bird fish particle butterfly firefly shadow_figure light_orb"`
	Count  int          `json:"count" validate:"gte=1,lte=200"`
	Params EntityParams `json:"params"`
}

// Shot is one camera movement within the cinematography plan.
type Shot struct {
	Type     ShotType `json:"type" validate:"oneof=establish orbit fly_through close_up pull_back"`
	Target   string   `json:"target,omitempty"`
	Duration float64  `json:"duration" validate:"gte=2,lte=60"`
	StartPos *Vec3    `json:"startPos,omitempty"`
	EndPos   *Vec3    `json:"endPos,omitempty"`
}

// Cinematography is the camera plan for the scene.
type Cinematography struct {
	DurationSec float64 `json:"durationSec" validate:"gte=10,lte=300"`
	Shots       []Shot  `json:"shots" validate:"min=1,max=10,dive"`
}

// Render carries optional output directives; absent unless the caller asked
// for a concrete render target.
type Render struct {
	Res     [2]int        `json:"res" validate:"dive,gte=240,lte=4320"`
	FPS     int           `json:"fps" validate:"oneof=24 30 60"`
	Quality RenderQuality `json:"quality" validate:"omitempty,oneof=draft medium high"`
}

// Metadata records provenance and is authoritative for how an artifact was
// produced, per the wire-format contract in the external interfaces section.
type Metadata struct {
	Source         Source    `json:"source"`
	Provider       string    `json:"provider,omitempty"`
	Model          string    `json:"model,omitempty"`
	GeneratedAt    time.Time `json:"generatedAt"`
	ProcessingTime int64     `json:"processingTime"`
	CacheHit       bool      `json:"cacheHit,omitempty"`
	RepairAttempts int       `json:"repairAttempts,omitempty"`
	RequestID      string    `json:"requestId,omitempty"`
}

// Artifact is the validated dream object returned to callers.
type Artifact struct {
	ID             string          `json:"id" validate:"required"`
	Title          string          `json:"title" validate:"min=1,max=500"`
	Style          Style           `json:"style" validate:"oneof=ethereal cyberpunk surreal fantasy nightmare"`
	Seed           *uint64         `json:"seed,omitempty"`
	Environment    Environment     `json:"environment"`
	Structures     []Structure     `json:"structures" validate:"max=20,dive"`
	Entities       []Entity        `json:"entities" validate:"max=10,dive"`
	Cinematography Cinematography  `json:"cinematography"`
	Render         *Render         `json:"render,omitempty"`
	Assumptions    []string        `json:"assumptions,omitempty"`
	Metadata       Metadata        `json:"metadata"`
	Created        time.Time       `json:"created"`
	Modified       time.Time       `json:"modified"`
}

// AddAssumption records one repair/fallback decision in the audit trail.
func (a *Artifact) AddAssumption(note string) {
	a.Assumptions = append(a.Assumptions, note)
}

// TotalEntityCount sums entity population counts, used by the validator's
// custom-invariant phase to enforce the ≤500 ceiling.
func (a *Artifact) TotalEntityCount() int {
	total := 0
	for _, e := range a.Entities {
		total += e.Count
	}
	return total
}

// ShotDurationSum sums the cinematography shot durations, compared against
// DurationSec under a 2-second tolerance by the validator and repair pipeline.
func (c Cinematography) ShotDurationSum() float64 {
	sum := 0.0
	for _, s := range c.Shots {
		sum += s.Duration
	}
	return sum
}
