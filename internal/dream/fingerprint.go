package dream

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"
)

// Quality is the generation quality tier, part of the request fingerprint
// and the selector for cache TTL tiers.
type Quality string

const (
	QualityDraftReq     Quality = "draft"
	QualityStandardReq  Quality = "standard"
	QualityHighReq      Quality = "high"
	QualityCinematicReq Quality = "cinematic"
)

// Complexity hints at how elaborate the requested scene should be.
type Complexity string

const (
	ComplexitySimple   Complexity = "simple"
	ComplexityModerate Complexity = "moderate"
	ComplexityComplex  Complexity = "complex"
)

// Options carries the northbound request options recognized by generate().
type Options struct {
	Quality      Quality    `json:"quality,omitempty"`
	Complexity   Complexity `json:"complexity,omitempty"`
	Duration     float64    `json:"duration,omitempty"`
	Seed         *uint64    `json:"seed,omitempty"`
	ProviderHint string     `json:"providerHint,omitempty"`
}

// Request is one incoming generate() call prior to fingerprinting.
type Request struct {
	Text    string  `json:"text" binding:"required"`
	Style   Style   `json:"style,omitempty"`
	Options Options `json:"options,omitempty"`
}

// Fingerprint computes a stable hash over the normalized request so that
// whitespace, prose casing and option ordering never change the result.
// Fingerprints are the cache key and the single-flight coalescing key.
func Fingerprint(r Request) string {
	norm := normalizeText(r.Text)
	style := r.Style
	if style == "" {
		style = DefaultStyle
	}

	parts := []string{
		"text=" + norm,
		"style=" + string(style),
		"quality=" + string(r.Options.Quality),
		"complexity=" + string(r.Options.Complexity),
		"duration=" + strconv.FormatFloat(r.Options.Duration, 'f', -1, 64),
	}
	if r.Options.Seed != nil {
		parts = append(parts, "seed="+strconv.FormatUint(*r.Options.Seed, 10))
	}
	if r.Options.ProviderHint != "" {
		parts = append(parts, "providerHint="+r.Options.ProviderHint)
	}
	sort.Strings(parts)

	h := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return hex.EncodeToString(h[:])
}

// normalizeText collapses internal whitespace runs, trims, and lowercases
// prose so semantically identical prompts hash identically.
func normalizeText(text string) string {
	fields := strings.Fields(text)
	return strings.ToLower(strings.Join(fields, " "))
}
