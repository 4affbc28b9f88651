// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package results reads solver artifacts and classifies the number of real
// solutions they describe.
//
// Three parsers cover the supported solver outputs:
//
//   - SummaryParser reads Bertini's real_finite_solutions count.
//   - DictionaryParser reads the PHC dictionary literal and applies the
//     real/imaginary tolerance itself.
//   - CompareParser pairs the Bertini count with a second count taken from
//     finite_solutions for one designated variable.
//
// Artifacts are untrusted: every failure is a *ParseError and nothing read
// from disk is ever executed.
package results

import (
	"bufio"
	"errors"
	"fmt"
	"math"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/AleutianAI/pfsample/cmd/pfsample/internal/solver"
	"github.com/AleutianAI/pfsample/cmd/pfsample/internal/stats"
)

// DefaultTolerance is the default bound on |imag| for a real component.
const DefaultTolerance = 1e-7

// MetadataKeys are the non-variable keys of a PHC solution record.
var MetadataKeys = []string{"res", "err", "multiplicity", "time", "rco"}

// =============================================================================
// Errors
// =============================================================================

// ErrParse is matched by every ParseError.
var ErrParse = errors.New("parse failed")

// ParseError reports a missing or malformed result artifact.
type ParseError struct {
	Trial  int
	Path   string
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	msg := fmt.Sprintf("trial %d: %s: %s", e.Trial, e.Path, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ParseError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrParse) match.
func (e *ParseError) Is(target error) bool { return target == ErrParse }

// =============================================================================
// Parser interface
// =============================================================================

// Parser turns the artifacts of one finished trial into a table key.
type Parser interface {
	Parse(trial int, a solver.Artifacts) (stats.Key, error)
}

// IsReal reports whether a component with imaginary part imag counts as
// real. The bound is inclusive.
func IsReal(imag, tol float64) bool {
	return math.Abs(imag) <= tol
}

// =============================================================================
// SummaryParser
// =============================================================================

// SummaryParser reads a file whose first line is the real-solution count.
type SummaryParser struct{}

// Parse implements Parser using a.Summary.
func (SummaryParser) Parse(trial int, a solver.Artifacts) (stats.Key, error) {
	n, err := readCount(trial, a.Summary)
	if err != nil {
		return stats.Key{}, err
	}
	return stats.Single(n), nil
}

func readCount(trial int, path string) (int, error) {
	fail := func(reason string, err error) (int, error) {
		return 0, &ParseError{Trial: trial, Path: path, Reason: reason, Err: err}
	}
	if path == "" {
		return fail("no summary artifact", nil)
	}
	f, err := os.Open(path)
	if err != nil {
		return fail("cannot open", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return fail("cannot read", err)
		}
		return fail("empty file", nil)
	}
	fields := strings.Fields(sc.Text())
	if len(fields) == 0 {
		return fail("first line is blank", nil)
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil {
		return fail(fmt.Sprintf("first token %q is not an integer", fields[0]), nil)
	}
	if n < 0 {
		return fail(fmt.Sprintf("negative count %d", n), nil)
	}
	return n, nil
}

// =============================================================================
// DictionaryParser
// =============================================================================

// DictionaryParser classifies the solutions listed in a PHC dictionary file.
type DictionaryParser struct {
	// Tol bounds |imag| for a real component.
	Tol float64

	// Variables, when set, must all be present in every solution.
	Variables []string
}

// Parse implements Parser using a.Dictionary.
func (p DictionaryParser) Parse(trial int, a solver.Artifacts) (stats.Key, error) {
	fail := func(reason string, err error) (stats.Key, error) {
		return stats.Key{}, &ParseError{Trial: trial, Path: a.Dictionary, Reason: reason, Err: err}
	}
	if a.Dictionary == "" {
		return fail("no dictionary artifact", nil)
	}
	raw, err := os.ReadFile(a.Dictionary)
	if err != nil {
		return fail("cannot open", err)
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return fail("empty file", nil)
	}
	lit, err := ParseLiteral(string(raw))
	if err != nil {
		return fail("malformed literal", err)
	}
	sols, err := Solutions(lit)
	if err != nil {
		return fail("unexpected structure", err)
	}
	n, err := CountReal(sols, p.Variables, p.Tol)
	if err != nil {
		return fail("bad solution record", err)
	}
	return stats.Single(n), nil
}

// Solutions checks that lit is a sequence of string-keyed mappings.
func Solutions(lit any) ([]map[string]any, error) {
	list, ok := lit.([]any)
	if !ok {
		return nil, fmt.Errorf("top level is %T, want a list", lit)
	}
	out := make([]map[string]any, 0, len(list))
	for i, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("solution %d is %T, want a dictionary", i, item)
		}
		out = append(out, m)
	}
	return out, nil
}

// CountReal returns how many solutions have every non-metadata component
// within tol of the real axis. Each listed variable must be present; every
// non-metadata value must be a number.
func CountReal(sols []map[string]any, variables []string, tol float64) (int, error) {
	count := 0
	for i, sol := range sols {
		for _, v := range variables {
			if _, ok := sol[v]; !ok {
				return 0, fmt.Errorf("solution %d: missing variable %q", i, v)
			}
		}
		allReal := true
		for k, v := range sol {
			if slices.Contains(MetadataKeys, k) {
				continue
			}
			z, ok := v.(complex128)
			if !ok {
				return 0, fmt.Errorf("solution %d: %q is %T, want a number", i, k, v)
			}
			if !IsReal(imag(z), tol) {
				allReal = false
			}
		}
		if allReal {
			count++
		}
	}
	return count, nil
}

// =============================================================================
// CompareParser
// =============================================================================

// CompareParser yields (real count, secondary count) pairs from Bertini
// artifacts.
//
// The secondary count is the number of finite solutions whose Designated
// variable alone is within Tol of the real axis. finite_solutions holds the
// solution count followed by one "re im" pair per variable per solution,
// in the order of Variables.
type CompareParser struct {
	Tol        float64
	Variables  []string
	Designated string
}

// Parse implements Parser using a.Summary and a.Finite.
func (p CompareParser) Parse(trial int, a solver.Artifacts) (stats.Key, error) {
	primary, err := readCount(trial, a.Summary)
	if err != nil {
		return stats.Key{}, err
	}
	fail := func(reason string, err error) (stats.Key, error) {
		return stats.Key{}, &ParseError{Trial: trial, Path: a.Finite, Reason: reason, Err: err}
	}
	idx := slices.Index(p.Variables, p.Designated)
	if idx < 0 {
		return fail(fmt.Sprintf("designated variable %q not among %v", p.Designated, p.Variables), nil)
	}
	if a.Finite == "" {
		return fail("no finite solutions artifact", nil)
	}
	sols, err := ReadFiniteSolutions(a.Finite, len(p.Variables))
	if err != nil {
		return fail("malformed finite solutions", err)
	}
	secondary := 0
	for _, sol := range sols {
		if IsReal(imag(sol[idx]), p.Tol) {
			secondary++
		}
	}
	return stats.PairOf(primary, secondary), nil
}

// ReadFiniteSolutions reads a Bertini solution file: a count, then count
// blocks of vars "re im" lines. Blank lines are ignored.
func ReadFiniteSolutions(path string, vars int) ([][]complex128, error) {
	if vars <= 0 {
		return nil, fmt.Errorf("variable count %d", vars)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	tokens := strings.Fields(string(raw))
	if len(tokens) == 0 {
		return nil, errors.New("empty file")
	}
	count, err := strconv.Atoi(tokens[0])
	if err != nil || count < 0 {
		return nil, fmt.Errorf("bad solution count %q", tokens[0])
	}
	tokens = tokens[1:]
	if need := count * vars * 2; len(tokens) < need {
		return nil, fmt.Errorf("%d solutions of %d variables need %d values, found %d", count, vars, need, len(tokens))
	}

	out := make([][]complex128, count)
	for s := range out {
		sol := make([]complex128, vars)
		for v := range sol {
			base := (s*vars + v) * 2
			re, err := strconv.ParseFloat(tokens[base], 64)
			if err != nil {
				return nil, fmt.Errorf("solution %d variable %d: %w", s, v, err)
			}
			im, err := strconv.ParseFloat(tokens[base+1], 64)
			if err != nil {
				return nil, fmt.Errorf("solution %d variable %d: %w", s, v, err)
			}
			sol[v] = complex(re, im)
		}
		out[s] = sol
	}
	return out, nil
}

// Compile-time interface checks
var (
	_ Parser = SummaryParser{}
	_ Parser = DictionaryParser{}
	_ Parser = CompareParser{}
)
