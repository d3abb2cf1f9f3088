// Copyright 2026 The dreamscapes-sub008 Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package orchestrator implements the top-level request flow: fingerprint,
// cache lookup, single-flight build (compose → dispatch → extract → repair
// → validate), and the ordered fallback tiers that guarantee every
// returned artifact is schema-valid.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	gojson "github.com/goccy/go-json"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/girishdigge/dreamscapes-sub008/internal/cache"
	"github.com/girishdigge/dreamscapes-sub008/internal/dream"
	"github.com/girishdigge/dreamscapes-sub008/internal/extractor"
	"github.com/girishdigge/dreamscapes-sub008/internal/jsonrepair"
	"github.com/girishdigge/dreamscapes-sub008/internal/manager"
	"github.com/girishdigge/dreamscapes-sub008/internal/metrics"
	"github.com/girishdigge/dreamscapes-sub008/internal/prompt"
	"github.com/girishdigge/dreamscapes-sub008/internal/provider"
	"github.com/girishdigge/dreamscapes-sub008/internal/repair"
)

// Config tunes the orchestrator's own behavior, independent of its
// component dependencies' own configs.
type Config struct {
	RequestDeadline time.Duration
}

// DefaultConfig matches the default named in the orchestrator's contract.
func DefaultConfig() Config {
	return Config{RequestDeadline: 45 * time.Second}
}

// Orchestrator wires the cache, prompt composer, provider manager, response
// extractor, JSON repair ladder, and repair pipeline into one request flow.
// The request deadline is held atomically so it can be hot-reloaded while
// requests are in flight.
type Orchestrator struct {
	deadlineNs atomic.Int64
	cache      *cache.Cache
	composer   *prompt.Composer
	manager    *manager.Manager
	extractor  *extractor.Extractor
	pipeline   *repair.Pipeline
	metrics    *metrics.Metrics
}

// New constructs an Orchestrator from its already-wired components.
func New(cfg Config, c *cache.Cache, composer *prompt.Composer, mgr *manager.Manager, ext *extractor.Extractor, pipeline *repair.Pipeline, m *metrics.Metrics) *Orchestrator {
	o := &Orchestrator{cache: c, composer: composer, manager: mgr, extractor: ext, pipeline: pipeline, metrics: m}
	o.SetRequestDeadline(cfg.RequestDeadline)
	return o
}

// SetRequestDeadline replaces the per-request wall-time bound; requests
// already in flight keep the deadline they started with.
func (o *Orchestrator) SetRequestDeadline(d time.Duration) {
	if d <= 0 {
		d = DefaultConfig().RequestDeadline
	}
	o.deadlineNs.Store(int64(d))
}

// Outcome reports how a Generate call was satisfied.
type Outcome struct {
	Artifact *dream.Artifact
	CacheHit bool
	Source   dream.Source
}

// Generate runs the full request flow for req, bounded by cfg.RequestDeadline,
// and guarantees the returned artifact is schema-valid regardless of how
// many fallback tiers it took to get there.
func (o *Orchestrator) Generate(ctx context.Context, req dream.Request) (Outcome, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, time.Duration(o.deadlineNs.Load()))
	defer cancel()

	fp := dream.Fingerprint(req)
	logger := log.WithField("fingerprint", fp)

	if entry, ok := o.cache.Get(fp); ok {
		o.metrics.CacheHits.WithLabelValues("in_process").Inc()
		o.metrics.ObserveRequest("cache_hit", time.Since(start))
		return Outcome{Artifact: entry.Artifact, CacheHit: true, Source: entry.Source}, nil
	}
	o.metrics.CacheMisses.WithLabelValues("in_process").Inc()

	entry, _, err := o.cache.GetOrBuild(ctx, fp, func(ctx context.Context) (*dream.Artifact, dream.Quality, dream.Source, error) {
		return o.build(ctx, req, logger)
	})
	if err != nil {
		o.metrics.ObserveRequest("error", time.Since(start))
		return Outcome{}, err
	}

	o.metrics.ObserveRequest(string(entry.Source), time.Since(start))
	return Outcome{Artifact: entry.Artifact, CacheHit: false, Source: entry.Source}, nil
}

// build runs the primary path once (compose → dispatch → extract → repair),
// falling through the ordered fallback tiers on exhaustion. It always
// returns a schema-valid artifact.
func (o *Orchestrator) build(ctx context.Context, req dream.Request, logger *log.Entry) (artifact *dream.Artifact, quality dream.Quality, source dream.Source, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.WithField("panic", r).Error("build: recovered from panic, returning safe fallback artifact")
			o.metrics.FallbackTier.WithLabelValues("safe_fallback").Inc()
			artifact, quality, source, err = SafeFallback(), req.Options.Quality, dream.SourceSafeFallback, nil
		}
	}()

	if ctx.Err() != nil {
		o.metrics.FallbackTier.WithLabelValues("safe_fallback").Inc()
		return SafeFallback(), req.Options.Quality, dream.SourceSafeFallback, nil
	}

	artifact, source, err = o.attempt(ctx, req, req.Options.Quality, logger)
	if err == nil {
		o.metrics.FallbackTier.WithLabelValues("primary").Inc()
		return artifact, req.Options.Quality, source, nil
	}
	logger.WithError(err).Warn("primary generation attempt failed, trying simpler-prompt retry")

	simplified := req
	simplified.Options.Quality = dream.QualityDraftReq
	artifact, source, err = o.attempt(ctx, simplified, simplified.Options.Quality, logger)
	if err == nil {
		o.metrics.FallbackTier.WithLabelValues("simplified_retry").Inc()
		return artifact, req.Options.Quality, source, nil
	}
	logger.WithError(err).Warn("simplified-prompt retry failed, falling back to local heuristic artifact")

	o.metrics.FallbackTier.WithLabelValues("local_fallback").Inc()
	return localFallback(req), req.Options.Quality, dream.SourceLocalFallback, nil
}

// attempt runs exactly one compose→dispatch→extract→repair cycle.
func (o *Orchestrator) attempt(ctx context.Context, req dream.Request, quality dream.Quality, logger *log.Entry) (*dream.Artifact, dream.Source, error) {
	composed, err := o.composer.Compose(prompt.Input{
		Text:    req.Text,
		Style:   req.Style,
		Quality: quality,
	})
	if err != nil {
		return nil, "", fmt.Errorf("orchestrator: composing prompt: %w", err)
	}

	dispatchStart := time.Now()
	result, err := o.manager.Generate(ctx, provider.Request{Prompt: composed.Prompt, MaxTokens: 4096})
	if err != nil {
		return nil, "", fmt.Errorf("orchestrator: provider generate: %w", err)
	}
	o.metrics.ObserveProviderDispatch(result.Provider, "success", time.Since(dispatchStart))

	text, ok := o.extractor.Extract(result.Response.Raw, result.Provider)
	if !ok {
		return nil, "", fmt.Errorf("orchestrator: extracting response content from %s", result.Provider)
	}

	repaired := jsonrepair.Repair(*text)
	if repaired.Value == nil {
		return nil, "", fmt.Errorf("orchestrator: repairing json: %s", strings.Join(repaired.Notes, "; "))
	}

	var artifact dream.Artifact
	if err := gojson.Unmarshal([]byte(repaired.Raw), &artifact); err != nil {
		return nil, "", fmt.Errorf("orchestrator: unmarshaling artifact: %w", err)
	}
	ensureID(&artifact)

	pipelineResult := o.pipeline.Run(&artifact)
	o.metrics.RepairAttempts.WithLabelValues(string(pipelineResult.Outcome)).Inc()

	switch pipelineResult.Outcome {
	case repair.OutcomeValid:
		if pipelineResult.Attempts == 0 && !repaired.Repaired {
			artifact.Metadata.Source = dream.SourceAI
		} else {
			artifact.Metadata.Source = dream.SourceAIRepaired
		}
		if repaired.Repaired {
			artifact.AddAssumption("repaired malformed provider JSON: " + strings.Join(repaired.Notes, "; "))
		}
		now := time.Now()
		artifact.Metadata.Provider = result.Provider
		artifact.Metadata.Model = result.Response.Model
		artifact.Metadata.GeneratedAt = now
		artifact.Metadata.ProcessingTime = time.Since(dispatchStart).Milliseconds()
		artifact.Metadata.RepairAttempts = pipelineResult.Attempts
		if artifact.Created.IsZero() {
			artifact.Created = now
		}
		artifact.Modified = now
		return &artifact, artifact.Metadata.Source, nil
	default:
		return nil, "", fmt.Errorf("orchestrator: repair pipeline exhausted: %s", pipelineResult.RegenerationHint)
	}
}

// ensureID mints a globally unique id for a whenever the upstream provider
// didn't supply one, so every artifact the orchestrator returns satisfies
// the schema's required, globally-unique id regardless of source.
func ensureID(a *dream.Artifact) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
}

// structureKeywords maps salient prompt words to the structure template the
// local fallback places for them.
var structureKeywords = []struct {
	word     string
	template dream.StructureTemplate
}{
	{"tower", dream.TemplateTower},
	{"castle", dream.TemplateTower},
	{"island", dream.TemplateFloatingIsland},
	{"crystal", dream.TemplateCrystalSpire},
	{"shell", dream.TemplateOrganicShell},
	{"arch", dream.TemplateRuinedArch},
	{"ruin", dream.TemplateRuinedArch},
	{"stair", dream.TemplateStaircase},
	{"monolith", dream.TemplateMonolith},
	{"ship", dream.TemplatePlatform},
	{"spaceship", dream.TemplatePlatform},
}

// entityKeywords maps salient prompt words to the entity type the local
// fallback populates for them.
var entityKeywords = []struct {
	word string
	typ  dream.EntityType
}{
	{"bird", dream.EntityBird},
	{"fish", dream.EntityFish},
	{"butterfl", dream.EntityButterfly},
	{"firefl", dream.EntityFirefly},
	{"shadow", dream.EntityShadow},
	{"orb", dream.EntityOrb},
	{"light", dream.EntityOrb},
	{"star", dream.EntityParticle},
	{"rain", dream.EntityParticle},
}

// localFallback builds a deterministic, schema-valid artifact directly from
// the input text, used when every upstream provider attempt fails. Salient
// words in the prompt drive which structures and entities appear, so the
// result still reflects the dream the caller described.
func localFallback(req dream.Request) *dream.Artifact {
	style := req.Style
	if style == "" {
		style = dream.DefaultStyle
	}
	duration := req.Options.Duration
	if duration < 10 || duration > 300 {
		duration = 30
	}

	lower := strings.ToLower(req.Text)

	var structures []dream.Structure
	for _, kw := range structureKeywords {
		if len(structures) >= 3 {
			break
		}
		if strings.Contains(lower, kw.word) {
			structures = append(structures, dream.Structure{
				ID:       fmt.Sprintf("s-%s", kw.word),
				Template: kw.template,
				Pos:      dream.Vec3{float64(20 * len(structures)), 10, 0},
				Scale:    1,
				Features: []string{kw.word},
			})
		}
	}
	if len(structures) == 0 {
		structures = append(structures, dream.Structure{
			ID: "s-platform", Template: dream.TemplatePlatform, Pos: dream.Vec3{0, 0, 0}, Scale: 1,
		})
	}

	var entities []dream.Entity
	for _, kw := range entityKeywords {
		if len(entities) >= 2 {
			break
		}
		if strings.Contains(lower, kw.word) {
			entities = append(entities, dream.Entity{
				ID: fmt.Sprintf("e-%s", kw.word), Type: kw.typ, Count: 12,
				Params: dream.EntityParams{Speed: 1, Glow: 0.5, Size: 1, Color: "#aaccee"},
			})
		}
	}

	title := strings.TrimSpace(req.Text)
	if len(title) > 120 {
		title = title[:120]
	}
	if title == "" {
		title = "untitled dream"
	}

	now := time.Now()
	artifact := &dream.Artifact{
		ID:         uuid.NewString(),
		Title:      title,
		Style:      style,
		Seed:       req.Options.Seed,
		Structures: structures,
		Entities:   entities,
		Environment: dream.Environment{
			Preset:   dream.PresetDusk,
			SkyColor: "#1a1a2e",
		},
		Cinematography: dream.Cinematography{
			DurationSec: duration,
			Shots:       splitShots(duration),
		},
		Metadata: dream.Metadata{Source: dream.SourceLocalFallback, GeneratedAt: now},
		Created:  now,
		Modified: now,
	}
	artifact.AddAssumption("generated by local heuristic fallback after provider exhaustion")
	return artifact
}

// splitShots breaks a total duration into establish/orbit shots that each
// respect the per-shot duration ceiling.
func splitShots(total float64) []dream.Shot {
	const maxShot = 60.0
	var shots []dream.Shot
	remaining := total
	for remaining > 0 && len(shots) < 10 {
		d := remaining
		if d > maxShot {
			d = maxShot
		}
		// Never leave a sub-2s remainder for the next shot.
		if left := remaining - d; left > 0 && left < 2 {
			d = remaining - 2
		}
		typ := dream.ShotOrbit
		if len(shots) == 0 {
			typ = dream.ShotEstablish
		}
		shots = append(shots, dream.Shot{Type: typ, Duration: d})
		remaining -= d
	}
	return shots
}

// SafeFallback returns the minimal, always-valid artifact emitted on
// catastrophic failure (e.g. the local fallback itself panics or the
// request deadline is already exceeded before any tier can run).
func SafeFallback() *dream.Artifact {
	now := time.Now()
	artifact := &dream.Artifact{
		ID:    uuid.NewString(),
		Title: "safe fallback dream",
		Style: dream.DefaultStyle,
		Structures: []dream.Structure{
			{ID: "s-platform", Template: dream.TemplatePlatform, Pos: dream.Vec3{0, 0, 0}, Scale: 1},
		},
		Environment: dream.Environment{
			Preset:   dream.PresetVoid,
			SkyColor: "#000000",
		},
		Cinematography: dream.Cinematography{
			DurationSec: 10,
			Shots:       []dream.Shot{{Type: dream.ShotEstablish, Duration: 10}},
		},
		Metadata: dream.Metadata{Source: dream.SourceSafeFallback, GeneratedAt: now},
		Created:  now,
		Modified: now,
	}
	artifact.AddAssumption("generated by the catastrophic-failure safe fallback")
	return artifact
}
