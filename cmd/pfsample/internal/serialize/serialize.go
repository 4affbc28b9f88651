// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package serialize renders equation systems into solver input text.
//
// Two dialects are supported:
//
//   - Bertini: named functions and a variable group, one assignment per
//     equation, terminated by END;
//   - PolynomialList (PHC): the equation count on the first line, then one
//     semicolon-terminated polynomial per line with no whitespace
//
// Coefficients are written in shortest round-trip exponent form so no
// precision is lost and both solvers' number grammars accept them.
package serialize

import (
	"bufio"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/AleutianAI/pfsample/cmd/pfsample/internal/equations"
)

// Dialect selects the solver input format.
type Dialect int

const (
	// Bertini is the continuation-solver dialect.
	Bertini Dialect = iota

	// PolynomialList is the PHC polynomial-list dialect.
	PolynomialList
)

// String returns the dialect name.
func (d Dialect) String() string {
	switch d {
	case Bertini:
		return "bertini"
	case PolynomialList:
		return "polynomial-list"
	default:
		return "unknown"
	}
}

// ErrSerialization is matched by every SerializationError.
var ErrSerialization = errors.New("serialization failed")

// SerializationError reports a system that cannot be rendered faithfully.
type SerializationError struct {
	Dialect Dialect
	Reason  string
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("serialize %s: %s", e.Dialect, e.Reason)
}

// Is lets errors.Is match ErrSerialization.
func (e *SerializationError) Is(target error) bool { return target == ErrSerialization }

// =============================================================================
// Names
// =============================================================================

// VarX is the name of the real part unknown of bus i (i >= 1).
func VarX(i int) string { return "x" + strconv.Itoa(i) }

// VarY is the name of the imaginary part unknown of bus i (i >= 1).
func VarY(i int) string { return "y" + strconv.Itoa(i) }

// Variables returns x1..x{n-1} followed by y1..y{n-1}, the declaration order
// used by both dialects and by Bertini's solution files.
func Variables(buses int) []string {
	if buses < 2 {
		return nil
	}
	out := make([]string, 0, 2*(buses-1))
	for i := 1; i < buses; i++ {
		out = append(out, VarX(i))
	}
	for i := 1; i < buses; i++ {
		out = append(out, VarY(i))
	}
	return out
}

// FunctionName returns f<i> or g<i>.
func FunctionName(eq equations.Equation) string {
	return eq.Kind.String() + strconv.Itoa(eq.Bus)
}

// Coefficient formats v in shortest round-trip exponent form.
func Coefficient(v float64) string {
	return strconv.FormatFloat(v, 'e', -1, 64)
}

// slack substitution for bus 0
func xName(i int) string {
	if i == 0 {
		return "1"
	}
	return VarX(i)
}

func yName(i int) string {
	if i == 0 {
		return "0"
	}
	return VarY(i)
}

// =============================================================================
// Rendering
// =============================================================================

// Polynomial renders one equation without whitespace.
func Polynomial(eq equations.Equation) string {
	var sb strings.Builder
	i := eq.Bus
	switch eq.Kind {
	case equations.Power:
		sb.WriteString("0")
		for _, t := range eq.Terms {
			j := t.Neighbor
			sb.WriteString("+(")
			sb.WriteString(Coefficient(t.Coeff))
			sb.WriteString(")*(")
			sb.WriteString(xName(j) + "*" + yName(i) + "-" + xName(i) + "*" + yName(j))
			sb.WriteString(")")
		}
	case equations.Normalization:
		sb.WriteString(xName(i) + "^2+" + yName(i) + "^2-1")
	}
	return sb.String()
}

// Polynomials renders every equation, power family first.
func Polynomials(sys equations.System) []string {
	eqs := sys.Equations()
	out := make([]string, len(eqs))
	for k, eq := range eqs {
		out[k] = Polynomial(eq)
	}
	return out
}

// Render produces the complete solver input for sys.
//
// # Description
//
// Lays out the system in the requested dialect. Fails with a
// SerializationError when the system has no equations or the two families
// differ in size.
//
// # Inputs
//
//   - d: Target dialect
//   - sys: Generated system
//
// # Outputs
//
//   - string: Input file contents
//   - error: *SerializationError on a malformed system
func Render(d Dialect, sys equations.System) (string, error) {
	if sys.Len() == 0 {
		return "", &SerializationError{Dialect: d, Reason: "system has no equations"}
	}
	if len(sys.Power) != len(sys.Norm) {
		return "", &SerializationError{Dialect: d, Reason: fmt.Sprintf("family sizes differ: %d power, %d normalization", len(sys.Power), len(sys.Norm))}
	}

	switch d {
	case Bertini:
		return renderBertini(sys), nil
	case PolynomialList:
		return renderPolynomialList(sys), nil
	default:
		return "", &SerializationError{Dialect: d, Reason: "unknown dialect"}
	}
}

func renderBertini(sys equations.System) string {
	eqs := sys.Equations()
	names := make([]string, len(eqs))
	for k, eq := range eqs {
		names[k] = FunctionName(eq)
	}

	var sb strings.Builder
	sb.WriteString("function " + strings.Join(names, ",") + ";\n")
	sb.WriteString("variable_group " + strings.Join(Variables(sys.Buses), ",") + ";\n\n")
	for k, eq := range eqs {
		sb.WriteString(names[k] + " = " + Polynomial(eq) + ";\n")
	}
	sb.WriteString("END;")
	return sb.String()
}

func renderPolynomialList(sys equations.System) string {
	var sb strings.Builder
	sb.WriteString(strconv.Itoa(sys.Len()) + "\n")
	for _, p := range Polynomials(sys) {
		sb.WriteString(p + ";\n")
	}
	return sb.String()
}

// =============================================================================
// Inspection
// =============================================================================

// Declaration is what an input file claims about itself.
type Declaration struct {
	Functions int
	Variables int
	Bodies    int
}

// Inspect re-reads the declared function and variable counts of rendered
// input.
//
// For the polynomial-list dialect the leading count is both the function and
// the variable count, as PHC requires square systems.
func Inspect(d Dialect, text string) (Declaration, error) {
	switch d {
	case Bertini:
		return inspectBertini(text)
	case PolynomialList:
		return inspectPolynomialList(text)
	default:
		return Declaration{}, &SerializationError{Dialect: d, Reason: "unknown dialect"}
	}
}

func inspectBertini(text string) (Declaration, error) {
	var decl Declaration
	sawEnd := false
	sc := bufio.NewScanner(strings.NewReader(text))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch {
		case strings.HasPrefix(line, "function "):
			decl.Functions = countList(strings.TrimPrefix(line, "function "))
		case strings.HasPrefix(line, "variable_group "):
			decl.Variables = countList(strings.TrimPrefix(line, "variable_group "))
		case line == "END;":
			sawEnd = true
		case strings.Contains(line, " = "):
			decl.Bodies++
		}
	}
	if !sawEnd {
		return decl, &SerializationError{Dialect: Bertini, Reason: "missing END; marker"}
	}
	return decl, nil
}

func inspectPolynomialList(text string) (Declaration, error) {
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	count, err := strconv.Atoi(strings.TrimSpace(lines[0]))
	if err != nil {
		return Declaration{}, &SerializationError{Dialect: PolynomialList, Reason: "first line is not an equation count"}
	}
	bodies := 0
	for _, l := range lines[1:] {
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		if !strings.HasSuffix(l, ";") || strings.ContainsAny(l, " \t") {
			return Declaration{}, &SerializationError{Dialect: PolynomialList, Reason: fmt.Sprintf("malformed polynomial line %q", l)}
		}
		bodies++
	}
	return Declaration{Functions: count, Variables: count, Bodies: bodies}, nil
}

func countList(s string) int {
	s = strings.TrimSuffix(strings.TrimSpace(s), ";")
	if s == "" {
		return 0
	}
	return len(strings.Split(s, ","))
}

// Check verifies that text declares exactly the shape of sys.
func Check(d Dialect, text string, sys equations.System) error {
	decl, err := Inspect(d, text)
	if err != nil {
		return err
	}
	want := sys.Len()
	if decl.Functions != want || decl.Variables != sys.Unknowns() || decl.Bodies != want {
		return &SerializationError{
			Dialect: d,
			Reason:  fmt.Sprintf("declared %d functions, %d variables, %d bodies; want %d each", decl.Functions, decl.Variables, decl.Bodies, want),
		}
	}
	return nil
}
