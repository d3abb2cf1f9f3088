// Copyright 2026 The dreamscapes-sub008 Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package validate checks a dream artifact against the schema in two
// phases: structural (types, enums, ranges, regex) and custom invariants
// expressed as compiled expressions, reporting every violation rather than
// stopping at the first.
package validate

import (
	"errors"
	"fmt"
	"regexp"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	validatorpkg "github.com/go-playground/validator/v10"

	"github.com/girishdigge/dreamscapes-sub008/internal/dream"
)

// FieldError is one structured validation failure.
type FieldError struct {
	Field    string
	Message  string
	Expected string
	Actual   string
}

// Result is the outcome of validating an artifact; Valid is true only when
// Errors is empty.
type Result struct {
	Valid  bool
	Errors []FieldError
}

var hexColor = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// invariant is one compiled custom-invariant expression evaluated against an
// environment derived from the artifact.
type invariant struct {
	name    string
	program *vm.Program
}

// Validator runs the structural and custom-invariant phases.
type Validator struct {
	structural *validatorpkg.Validate

	mu         sync.Mutex
	invariants []invariant
}

// New constructs a Validator with the default custom invariants compiled:
// shot-duration sum vs. durationSec (2s tolerance) and total entity count.
// Structure position bounds are checked by the structural phase.
func New() (*Validator, error) {
	structural := validatorpkg.New()
	if err := structural.RegisterValidation("hexcolor6", func(fl validatorpkg.FieldLevel) bool {
		return hexColor.MatchString(fl.Field().String())
	}); err != nil {
		return nil, fmt.Errorf("validate: registering hexcolor6: %w", err)
	}

	v := &Validator{structural: structural}
	defaults := map[string]string{
		"duration_tolerance": `abs(ShotDurationSum - DurationSec) <= 2`,
		"entity_count":       `TotalEntityCount <= 500`,
	}
	for name, src := range defaults {
		if err := v.CompileInvariant(name, src); err != nil {
			return nil, fmt.Errorf("validate: compiling default invariant %q: %w", name, err)
		}
	}
	return v, nil
}

// CompileInvariant compiles and caches a named expr program, mirroring how
// the gateway's condition evaluator caches compiled programs by source
// string so invariants stay configurable without a redeploy.
func (v *Validator) CompileInvariant(name, source string) error {
	env := invariantEnv{}
	program, err := expr.Compile(source, expr.Env(env), expr.AsBool())
	if err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.invariants = append(v.invariants, invariant{name: name, program: program})
	return nil
}

// invariantEnv is the expr evaluation environment for custom invariants.
type invariantEnv struct {
	ShotDurationSum  float64
	DurationSec      float64
	TotalEntityCount int
}

// Validate runs both phases and reports all violations found.
func (v *Validator) Validate(a *dream.Artifact) Result {
	var errs []FieldError

	errs = append(errs, v.structuralErrors(a)...)
	errs = append(errs, v.invariantErrors(a)...)

	return Result{Valid: len(errs) == 0, Errors: errs}
}

// structuralErrors runs the go-playground/validator struct-tag phase
// (types, enums, ranges, regex, array bounds) and translates its
// ValidationErrors into the flat FieldError shape every caller expects.
func (v *Validator) structuralErrors(a *dream.Artifact) []FieldError {
	var errs []FieldError

	err := v.structural.Struct(a)
	if err == nil {
		return errs
	}

	var verrs validatorpkg.ValidationErrors
	if !errors.As(err, &verrs) {
		return append(errs, FieldError{Field: "artifact", Message: err.Error()})
	}

	for _, fe := range verrs {
		errs = append(errs, FieldError{
			Field:    fe.Namespace(),
			Message:  fmt.Sprintf("failed %q constraint", fe.Tag()),
			Expected: fe.Param(),
			Actual:   fmt.Sprintf("%v", fe.Value()),
		})
	}

	return errs
}

func (v *Validator) invariantErrors(a *dream.Artifact) []FieldError {
	env := invariantEnv{
		ShotDurationSum:  a.Cinematography.ShotDurationSum(),
		DurationSec:      a.Cinematography.DurationSec,
		TotalEntityCount: a.TotalEntityCount(),
	}

	v.mu.Lock()
	invariants := make([]invariant, len(v.invariants))
	copy(invariants, v.invariants)
	v.mu.Unlock()

	var errs []FieldError
	for _, inv := range invariants {
		out, err := expr.Run(inv.program, env)
		if err != nil {
			errs = append(errs, FieldError{Field: inv.name, Message: "invariant evaluation failed: " + err.Error()})
			continue
		}
		ok, _ := out.(bool)
		if !ok {
			errs = append(errs, FieldError{
				Field:   inv.name,
				Message: "custom invariant violated",
				Actual:  fmt.Sprintf("shotDurationSum=%v durationSec=%v totalEntityCount=%d", env.ShotDurationSum, env.DurationSec, env.TotalEntityCount),
			})
		}
	}
	return errs
}
