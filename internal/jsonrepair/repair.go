// Copyright 2026 The dreamscapes-sub008 Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package jsonrepair turns a possibly-malformed string produced by an
// upstream model into valid JSON, trying a ladder of increasingly invasive
// strategies and recording what it had to do.
package jsonrepair

import (
	"fmt"
	"regexp"
	"strings"

	gojson "github.com/goccy/go-json"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// noiseKeys are top-level keys some providers tack onto the scene object
// alongside the schema fields (a trailing rationale, a restated prompt)
// that aren't part of the artifact shape and are stripped before the
// repaired JSON is handed to the unmarshaler.
var noiseKeys = []string{"explanation", "reasoning", "commentary", "note"}

// Result is the outcome of a repair attempt.
type Result struct {
	Value    any
	Raw      string
	Repaired bool
	Notes    []string
}

var (
	reFence         = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")
	reTrailingComma = regexp.MustCompile(`,(\s*[}\]])`)
	reLineComment   = regexp.MustCompile(`//[^\n]*`)
	reBlockComment  = regexp.MustCompile(`(?s)/\*.*?\*/`)
)

// Repair runs the strategy ladder in order, stopping at the first strategy
// that yields valid JSON. It never hallucinates content: every strategy is
// a structural transform of bytes already present in the input.
func Repair(input string) Result {
	notes := []string{}

	// Rung 1: strict parse.
	if _, ok := strictParse(input); ok {
		return finalize(input, false, notes)
	}

	// Rung 2: strip markdown fences and leading prose before the first '{'.
	stripped := stripFencesAndProse(input)
	if stripped != input {
		notes = append(notes, "stripped markdown fences / leading prose")
		if _, ok := strictParse(stripped); ok {
			return finalize(stripped, true, notes)
		}
	}

	// Rung 3: balance unmatched brackets.
	balanced, balancedNote := balanceBrackets(stripped)
	if balancedNote != "" {
		notes = append(notes, balancedNote)
		if _, ok := strictParse(balanced); ok {
			return finalize(balanced, true, notes)
		}
	}

	// Rung 4: trailing commas, quote normalization, comment stripping.
	normalized, normNotes := normalizeLexical(balanced)
	notes = append(notes, normNotes...)
	if _, ok := strictParse(normalized); ok {
		return finalize(normalized, true, notes)
	}

	// Rung 5: largest valid JSON prefix.
	if prefix, note, ok := largestValidPrefix(normalized); ok {
		notes = append(notes, note)
		return finalize(prefix, true, notes)
	}

	return Result{Value: nil, Repaired: false, Notes: append(notes, "all repair strategies exhausted")}
}

// finalize strips known noise keys from valid JSON via sjson before the
// final parse, so a provider's trailing rationale or restated prompt never
// reaches the artifact unmarshaler alongside the schema fields.
func finalize(raw string, repaired bool, notes []string) Result {
	cleaned, cleanedNotes := stripNoiseKeys(raw)
	notes = append(notes, cleanedNotes...)
	if len(cleanedNotes) > 0 {
		repaired = true
	}
	v, _ := strictParse(cleaned)
	return Result{Value: v, Raw: cleaned, Repaired: repaired, Notes: notes}
}

// stripNoiseKeys deletes any top-level noiseKeys present in s using sjson,
// leaving s untouched when none are present.
func stripNoiseKeys(s string) (string, []string) {
	if gjson.Parse(s).Type != gjson.JSON || !strings.HasPrefix(strings.TrimSpace(s), "{") {
		return s, nil
	}

	var notes []string
	out := s
	for _, key := range noiseKeys {
		if gjson.Get(out, key).Exists() {
			next, err := sjson.Delete(out, key)
			if err != nil {
				continue
			}
			out = next
			notes = append(notes, fmt.Sprintf("stripped non-schema top-level key %q", key))
		}
	}
	return out, notes
}

func strictParse(s string) (any, bool) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return nil, false
	}
	var v any
	if err := gojson.Unmarshal([]byte(trimmed), &v); err != nil {
		return nil, false
	}
	return v, true
}

func stripFencesAndProse(s string) string {
	if m := reFence.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	// No fence: drop any prose before the first '{' or '['.
	idxObj := strings.IndexByte(s, '{')
	idxArr := strings.IndexByte(s, '[')
	idx := -1
	switch {
	case idxObj == -1:
		idx = idxArr
	case idxArr == -1:
		idx = idxObj
	default:
		if idxObj < idxArr {
			idx = idxObj
		} else {
			idx = idxArr
		}
	}
	if idx <= 0 {
		return s
	}
	return strings.TrimSpace(s[idx:])
}

// balanceBrackets scans for unmatched '{'/'[' (outside of string literals)
// and appends the matching closers in LIFO order.
func balanceBrackets(s string) (string, string) {
	var stack []byte
	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			if escaped {
				escaped = false
				continue
			}
			if c == '\\' {
				escaped = true
				continue
			}
			if c == '"' {
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			stack = append(stack, c)
		case '}':
			if len(stack) > 0 && stack[len(stack)-1] == '{' {
				stack = stack[:len(stack)-1]
			}
		case ']':
			if len(stack) > 0 && stack[len(stack)-1] == '[' {
				stack = stack[:len(stack)-1]
			}
		}
	}

	if len(stack) == 0 {
		return s, ""
	}

	var closers strings.Builder
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == '{' {
			closers.WriteByte('}')
		} else {
			closers.WriteByte(']')
		}
	}
	return s + closers.String(), "balanced " + closers.String() + " unmatched opener(s)"
}

func normalizeLexical(s string) (string, []string) {
	var notes []string

	withoutBlockComments := reBlockComment.ReplaceAllString(s, "")
	if withoutBlockComments != s {
		notes = append(notes, "removed block comments")
	}
	withoutComments := reLineComment.ReplaceAllString(withoutBlockComments, "")
	if withoutComments != withoutBlockComments {
		notes = append(notes, "removed line comments")
	}

	noTrailingCommas := reTrailingComma.ReplaceAllString(withoutComments, "$1")
	if noTrailingCommas != withoutComments {
		notes = append(notes, "removed trailing commas")
	}

	quoted, changed := singleToDoubleQuotes(noTrailingCommas)
	if changed {
		notes = append(notes, "normalized single-quoted strings")
	}

	return quoted, notes
}

// singleToDoubleQuotes substitutes single-quote string delimiters for
// double-quotes when the text is not already valid JSON and double quotes
// are absent from the relevant span, a conservative heuristic that avoids
// corrupting apostrophes inside already-double-quoted strings.
func singleToDoubleQuotes(s string) (string, bool) {
	if !strings.Contains(s, "'") {
		return s, false
	}
	if gjson.Valid(s) {
		return s, false
	}
	var b strings.Builder
	inDouble := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '"':
			inDouble = !inDouble
			b.WriteByte(c)
		case '\'':
			if inDouble {
				b.WriteByte(c)
			} else {
				b.WriteByte('"')
			}
		default:
			b.WriteByte(c)
		}
	}
	return b.String(), true
}

// largestValidPrefix locates the longest prefix of s that parses as valid
// JSON by probing shrinking suffixes of a balanced-bracket close, marking
// the result as truncated.
func largestValidPrefix(s string) (string, string, bool) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return "", "", false
	}
	for end := len(trimmed); end > 0; end-- {
		candidate := trimmed[:end]
		balanced, _ := balanceBrackets(candidate)
		if gjson.Valid(balanced) {
			return balanced, "returned largest valid JSON prefix; input was truncated", true
		}
	}
	return "", "", false
}
