// Copyright 2026 The dreamscapes-sub008 Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package prompt composes the final provider prompt from a base template,
// style guidance, quality directives, and optional context blocks, and
// truncates it to fit a provider's token budget.
package prompt

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	"github.com/tiktoken-go/tokenizer"

	"github.com/girishdigge/dreamscapes-sub008/internal/dream"
)

// Result is one composed prompt plus the analytics metadata the cache key
// and telemetry need.
type Result struct {
	Prompt          string
	TemplateID      string
	Variant         string
	Fingerprint     string
	EstimatedTokens int
	Truncated       bool
}

// Input is everything the composer needs to build a prompt.
type Input struct {
	Text        string
	Style       dream.Style
	Quality     dream.Quality
	Contexts    []string
	MaxTokens   int
	Model       string
}

var styleGuidance = map[dream.Style]string{
	dream.StyleEthereal:  "Favor soft light, floating forms, and weightless motion.",
	dream.StyleCyberpunk: "Favor neon accents, dense structures, and high-contrast lighting.",
	dream.StyleSurreal:   "Favor impossible geometry and dreamlike scale distortion.",
	dream.StyleFantasy:   "Favor organic, mythic shapes and warm ambient light.",
	dream.StyleNightmare: "Favor oppressive scale, desaturated palettes, and jagged structures.",
}

var qualityDirectives = map[dream.Quality]string{
	dream.QualityDraftReq:     "Produce a minimal, low-detail scene suitable for quick previews.",
	dream.QualityStandardReq:  "Produce a balanced scene with moderate structural and entity detail.",
	dream.QualityHighReq:      "Produce a richly detailed scene with varied structures and entities.",
	dream.QualityCinematicReq: "Produce a highly detailed scene with cinematic camera direction.",
}

const baseTemplate = `You are composing a structured 3D dream scene description.
Describe the following dream in the required JSON schema, staying faithful to its imagery:

%s

Style guidance: %s
Quality directive: %s
%s
Respond with JSON only, no prose before or after it.`

// Composer builds and caches compiled templates by (base, style, quality)
// tuple, and truncates composed context to a provider's token budget.
// Context blocks are not part of the cache key.
type Composer struct {
	mu       sync.RWMutex
	compiled map[string]string

	codec tokenizer.Codec
}

// New constructs a Composer. If the cl100k_base codec cannot be loaded, the
// composer falls back to the word-count heuristic for token estimation.
func New() *Composer {
	c := &Composer{compiled: make(map[string]string)}
	if codec, err := tokenizer.Get(tokenizer.Cl100kBase); err == nil {
		c.codec = codec
	}
	return c
}

// Compose builds the final prompt for in, truncating joined context blocks
// to fit in.MaxTokens (0 disables truncation).
func (c *Composer) Compose(in Input) (Result, error) {
	templateID, variant, template := c.compileTemplate(in.Style, in.Quality)

	contextBlock := ""
	truncated := false
	if len(in.Contexts) > 0 {
		joined := strings.Join(in.Contexts, "\n")
		if in.MaxTokens > 0 {
			reserve := c.countTokens(fmt.Sprintf(template, in.Text, styleGuidance[in.Style], qualityDirectives[in.Quality], "\nAdditional context:\n...[truncated]\n"))
			budget := in.MaxTokens - reserve
			truncatedJoined, wasTruncated := c.truncateToTokens(joined, budget)
			joined = truncatedJoined
			truncated = wasTruncated
		}
		contextBlock = "\nAdditional context:\n" + joined + "\n"
	}

	finalPrompt := fmt.Sprintf(template, in.Text, styleGuidance[in.Style], qualityDirectives[in.Quality], contextBlock)
	tokens := c.countTokens(finalPrompt)

	return Result{
		Prompt:          finalPrompt,
		TemplateID:      templateID,
		Variant:         variant,
		Fingerprint:     fingerprintTemplate(templateID, variant, in.Contexts),
		EstimatedTokens: tokens,
		Truncated:       truncated,
	}, nil
}

// compileTemplate returns the cached template for (style, quality), compiling
// and caching it on first use.
func (c *Composer) compileTemplate(style dream.Style, quality dream.Quality) (templateID, variant, template string) {
	templateID = "dream_base_v1"
	variant = fmt.Sprintf("%s_%s", style, quality)
	key := templateID + ":" + variant

	c.mu.RLock()
	tmpl, ok := c.compiled[key]
	c.mu.RUnlock()
	if ok {
		return templateID, variant, tmpl
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if tmpl, ok := c.compiled[key]; ok {
		return templateID, variant, tmpl
	}
	c.compiled[key] = baseTemplate
	return templateID, variant, baseTemplate
}

// countTokens estimates the token count of text, preferring the tiktoken
// codec and falling back to a word-count heuristic if it failed to load.
func (c *Composer) countTokens(text string) int {
	if c.codec != nil {
		if ids, _, err := c.codec.Encode(text); err == nil {
			return len(ids)
		}
	}
	return int(float64(wordCount(text)) * 1.3)
}

// truncateToTokens trims text from the end until it fits within budget
// tokens, reporting whether any trimming occurred.
func (c *Composer) truncateToTokens(text string, budget int) (string, bool) {
	if budget <= 0 {
		return "", text != ""
	}
	if c.countTokens(text) <= budget {
		return text, false
	}

	lo, hi := 0, len(text)
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if c.countTokens(text[:mid]) <= budget {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return text[:lo] + "...[truncated]", true
}

func wordCount(text string) int {
	return len(strings.Fields(text))
}

func fingerprintTemplate(templateID, variant string, contexts []string) string {
	h := sha256.New()
	h.Write([]byte(templateID))
	h.Write([]byte(variant))
	for _, ctx := range contexts {
		h.Write([]byte(ctx))
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}
