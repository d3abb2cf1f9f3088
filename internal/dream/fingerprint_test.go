// Copyright 2026 The dreamscapes-sub008 Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dream

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFingerprintIsStableAcrossWhitespaceAndCase(t *testing.T) {
	a := Fingerprint(Request{Text: "A   Dusk   Over The Void"})
	b := Fingerprint(Request{Text: "a dusk over the void"})
	assert.Equal(t, a, b)
}

func TestFingerprintDiffersOnStyle(t *testing.T) {
	a := Fingerprint(Request{Text: "a dusk", Style: StyleEthereal})
	b := Fingerprint(Request{Text: "a dusk", Style: StyleNightmare})
	assert.NotEqual(t, a, b)
}

func TestFingerprintDefaultsStyleWhenEmpty(t *testing.T) {
	a := Fingerprint(Request{Text: "a dusk"})
	b := Fingerprint(Request{Text: "a dusk", Style: DefaultStyle})
	assert.Equal(t, a, b)
}

func TestFingerprintDiffersOnSeed(t *testing.T) {
	var s1, s2 uint64 = 1, 2
	a := Fingerprint(Request{Text: "a dusk", Options: Options{Seed: &s1}})
	b := Fingerprint(Request{Text: "a dusk", Options: Options{Seed: &s2}})
	assert.NotEqual(t, a, b)
}

func TestFingerprintDiffersOnQualityAndComplexity(t *testing.T) {
	base := Request{Text: "a dusk"}
	withQuality := Request{Text: "a dusk", Options: Options{Quality: QualityHighReq}}
	withComplexity := Request{Text: "a dusk", Options: Options{Complexity: ComplexityComplex}}

	assert.NotEqual(t, Fingerprint(base), Fingerprint(withQuality))
	assert.NotEqual(t, Fingerprint(base), Fingerprint(withComplexity))
}

func TestFingerprintIsHex64Chars(t *testing.T) {
	fp := Fingerprint(Request{Text: "a dusk"})
	assert.Len(t, fp, 64)
}

func TestAddAssumptionAppends(t *testing.T) {
	a := &Artifact{}
	a.AddAssumption("filled missing title")
	a.AddAssumption("clamped fog")
	assert.Equal(t, []string{"filled missing title", "clamped fog"}, a.Assumptions)
}

func TestTotalEntityCountSums(t *testing.T) {
	a := &Artifact{Entities: []Entity{{Count: 10}, {Count: 5}, {Count: 3}}}
	assert.Equal(t, 18, a.TotalEntityCount())
}

func TestShotDurationSumSums(t *testing.T) {
	c := Cinematography{Shots: []Shot{{Duration: 10}, {Duration: 5.5}}}
	assert.Equal(t, 15.5, c.ShotDurationSum())
}
