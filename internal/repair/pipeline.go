// Copyright 2026 The dreamscapes-sub008 Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package repair drives the validate→repair→revalidate loop over a dream
// artifact, applying a fixed ladder of repair strategies until the artifact
// validates or the attempt budget is exhausted, the way the gateway's
// cascade manager drives tier escalation until a response is accepted.
package repair

import (
	"fmt"
	"math"

	"github.com/girishdigge/dreamscapes-sub008/internal/dream"
	"github.com/girishdigge/dreamscapes-sub008/internal/validate"
)

// durationTolerance mirrors the validator's duration_tolerance invariant.
const durationTolerance = 2

// Outcome reports how the pipeline left the artifact.
type Outcome string

const (
	OutcomeValid             Outcome = "valid"
	OutcomeNeedsRegeneration Outcome = "needs_regeneration"
	OutcomeExhausted         Outcome = "exhausted"
)

// Result is the pipeline's verdict after running to validity or exhaustion.
type Result struct {
	Outcome           Outcome
	Attempts          int
	RegenerationHint  string
}

// Config tunes the attempt budget.
type Config struct {
	MaxRepairAttempts int
}

// DefaultConfig matches the default named in the repair pipeline rules.
func DefaultConfig() Config {
	return Config{MaxRepairAttempts: 2}
}

// Pipeline owns the validator and runs the strategy ladder.
type Pipeline struct {
	cfg       Config
	validator *validate.Validator
}

// New constructs a Pipeline bound to a validator instance.
func New(cfg Config, validator *validate.Validator) *Pipeline {
	return &Pipeline{cfg: cfg, validator: validator}
}

// strategy is one repair strategy in the fixed application order.
type strategy func(a *dream.Artifact, errs []validate.FieldError) (applied bool, note string)

// Run validates a, applies repair strategies in order on each failing
// revalidation, and stops on the first validation pass or when the attempt
// budget is exhausted. Each successful strategy records one assumption.
func (p *Pipeline) Run(a *dream.Artifact) Result {
	strategies := []strategy{
		fillDefaults,
		reconcileDuration,
		clampNumeric,
		coerceEnums,
		dropOverLimit,
	}

	res := p.validator.Validate(a)
	if res.Valid {
		return Result{Outcome: OutcomeValid, Attempts: 0}
	}

	for attempt := 1; attempt <= p.cfg.MaxRepairAttempts; attempt++ {
		progressed := false
		for _, s := range strategies {
			if applied, note := s(a, res.Errors); applied {
				a.AddAssumption(note)
				progressed = true
			}
		}

		res = p.validator.Validate(a)
		if res.Valid {
			return Result{Outcome: OutcomeValid, Attempts: attempt}
		}
		if !progressed {
			break
		}
	}

	hint := regenerationHint(res.Errors)
	return Result{Outcome: OutcomeNeedsRegeneration, Attempts: p.cfg.MaxRepairAttempts, RegenerationHint: hint}
}

// fillDefaults fills required-but-missing fields (empty title, empty
// environment sky color, missing cinematography) with schema defaults and
// recomputes dependent invariants.
func fillDefaults(a *dream.Artifact, errs []validate.FieldError) (bool, string) {
	applied := false
	if a.Title == "" {
		a.Title = "untitled dream"
		applied = true
	}
	if a.Environment.SkyColor == "" {
		a.Environment.SkyColor = "#1a1a2e"
		applied = true
	}
	if len(a.Cinematography.Shots) == 0 {
		a.Cinematography.Shots = []dream.Shot{{Type: dream.ShotEstablish, Duration: a.Cinematography.DurationSec}}
		applied = true
	}
	if a.Cinematography.DurationSec == 0 {
		a.Cinematography.DurationSec = a.Cinematography.ShotDurationSum()
		applied = true
	}
	if !applied {
		return false, ""
	}
	return true, "filled missing fields with schema defaults"
}

// reconcileDuration recalculates durationSec from the shot sum whenever the
// two diverge past the documented tolerance. When the shot sum itself falls
// outside the valid total-duration range, the shots are rescaled toward a
// valid target instead, so the reconciled pair always satisfies both the
// range constraints and the tolerance.
func reconcileDuration(a *dream.Artifact, errs []validate.FieldError) (bool, string) {
	c := &a.Cinematography
	if len(c.Shots) == 0 {
		return false, ""
	}

	sum := c.ShotDurationSum()
	if c.DurationSec >= 10 && c.DurationSec <= 300 && math.Abs(sum-c.DurationSec) <= durationTolerance {
		return false, ""
	}

	if sum >= 10 && sum <= 300 {
		c.DurationSec = sum
		return true, "recalculated durationSec from the cinematography shot sum"
	}

	target := c.DurationSec
	if target < 10 || target > 300 {
		target, _ = clamp(sum, 10, 300, false)
	}
	factor := target / sum
	for i := range c.Shots {
		c.Shots[i].Duration, _ = clamp(c.Shots[i].Duration*factor, 2, 60, false)
	}
	c.DurationSec = c.ShotDurationSum()
	return true, "rescaled cinematography shots to a valid total duration"
}

// clampNumeric clips numeric fields reported out of range back into their
// valid bounds.
func clampNumeric(a *dream.Artifact, errs []validate.FieldError) (bool, string) {
	applied := false

	a.Environment.Fog, applied = clamp(a.Environment.Fog, 0, 1, applied)
	a.Environment.AmbientLight, applied = clamp(a.Environment.AmbientLight, 0, 3, applied)

	for i := range a.Structures {
		a.Structures[i].Scale, applied = clamp(a.Structures[i].Scale, 0.1, 10, applied)
		for j, coord := range a.Structures[i].Pos {
			clamped, changed := clamp(coord, -1000, 1000, false)
			if changed {
				a.Structures[i].Pos[j] = clamped
				applied = true
			}
		}
	}

	for i := range a.Entities {
		if clamped := clampInt(a.Entities[i].Count, 1, 200); clamped != a.Entities[i].Count {
			a.Entities[i].Count = clamped
			applied = true
		}
		a.Entities[i].Params.Speed, applied = clamp(a.Entities[i].Params.Speed, 0.1, 10, applied)
		a.Entities[i].Params.Glow, applied = clamp(a.Entities[i].Params.Glow, 0, 1, applied)
		a.Entities[i].Params.Size, applied = clamp(a.Entities[i].Params.Size, 0.1, 5, applied)
	}

	for i := range a.Cinematography.Shots {
		a.Cinematography.Shots[i].Duration, applied = clamp(a.Cinematography.Shots[i].Duration, 2, 60, applied)
	}

	if !applied {
		return false, ""
	}
	return true, "clamped out-of-range numeric fields to valid bounds"
}

func clamp(v, lo, hi float64, already bool) (float64, bool) {
	if v < lo {
		return lo, true
	}
	if v > hi {
		return hi, true
	}
	return v, already
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

var enumSynonyms = map[string]dream.Style{
	"dreamy":    dream.StyleEthereal,
	"dream":     dream.StyleEthereal,
	"dark":      dream.StyleNightmare,
	"scary":     dream.StyleNightmare,
	"futuristic": dream.StyleCyberpunk,
	"neon":      dream.StyleCyberpunk,
	"weird":     dream.StyleSurreal,
	"magical":   dream.StyleFantasy,
}

// coerceEnums maps near-synonym style values to the nearest fixed enum.
func coerceEnums(a *dream.Artifact, errs []validate.FieldError) (bool, string) {
	if mapped, ok := enumSynonyms[string(a.Style)]; ok && mapped != a.Style {
		original := a.Style
		a.Style = mapped
		return true, fmt.Sprintf("coerced style %q to nearest enum value %q", original, mapped)
	}
	return false, ""
}

// dropOverLimit discards entries past the documented array ceilings.
func dropOverLimit(a *dream.Artifact, errs []validate.FieldError) (bool, string) {
	applied := false
	note := ""

	if len(a.Structures) > 20 {
		dropped := len(a.Structures) - 20
		a.Structures = a.Structures[:20]
		note = fmt.Sprintf("dropped %d over-limit structure(s)", dropped)
		applied = true
	}
	if len(a.Entities) > 10 {
		dropped := len(a.Entities) - 10
		a.Entities = a.Entities[:10]
		note = fmt.Sprintf("dropped %d over-limit entit(y/ies)", dropped)
		applied = true
	}
	if total := a.TotalEntityCount(); total > 500 {
		excess := total - 500
		for i := len(a.Entities) - 1; i >= 0 && excess > 0; i-- {
			reduce := a.Entities[i].Count
			if reduce > excess {
				reduce = excess
			}
			a.Entities[i].Count -= reduce
			if a.Entities[i].Count < 1 {
				a.Entities[i].Count = 1
			}
			excess -= reduce
		}
		note = "reduced entity counts to satisfy the 500-entity ceiling"
		applied = true
	}
	if len(a.Cinematography.Shots) > 10 {
		a.Cinematography.Shots = a.Cinematography.Shots[:10]
		note = "dropped over-limit cinematography shot(s)"
		applied = true
	}

	return applied, note
}

// regenerationHint summarizes the remaining violations into a short prompt
// addendum the orchestrator can attach when resubmitting to the provider.
func regenerationHint(errs []validate.FieldError) string {
	if len(errs) == 0 {
		return ""
	}
	hint := "The previous response was missing or invalid for: "
	for i, e := range errs {
		if i > 0 {
			hint += ", "
		}
		hint += e.Field
		if i >= 4 {
			hint += ", ..."
			break
		}
	}
	return hint
}
