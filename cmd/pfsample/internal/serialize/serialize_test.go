// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package serialize

import (
	"errors"
	"strconv"
	"strings"
	"testing"

	"github.com/AleutianAI/pfsample/cmd/pfsample/internal/equations"
	"github.com/AleutianAI/pfsample/cmd/pfsample/internal/topology"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// fixedK3 is the complete graph on three buses with hand-picked susceptances.
func fixedK3() equations.System {
	b := mat.NewSymDense(3, nil)
	b.SetSym(0, 1, 0.5)
	b.SetSym(0, 2, -1.25e-7)
	b.SetSym(1, 2, 2)
	return equations.System{
		Buses:       3,
		Susceptance: b,
		Power: []equations.Equation{
			{Kind: equations.Power, Bus: 1, Terms: []equations.Term{{Neighbor: 0, Coeff: 0.5}, {Neighbor: 2, Coeff: 2}}},
			{Kind: equations.Power, Bus: 2, Terms: []equations.Term{{Neighbor: 0, Coeff: -1.25e-7}, {Neighbor: 1, Coeff: 2}}},
		},
		Norm: []equations.Equation{
			{Kind: equations.Normalization, Bus: 1},
			{Kind: equations.Normalization, Bus: 2},
		},
	}
}

func TestPolynomial(t *testing.T) {
	sys := fixedK3()

	assert.Equal(t, "0+(5e-01)*(1*y1-x1*0)+(2e+00)*(x2*y1-x1*y2)", Polynomial(sys.Power[0]))
	assert.Equal(t, "0+(-1.25e-07)*(1*y2-x2*0)+(2e+00)*(x1*y2-x2*y1)", Polynomial(sys.Power[1]))
	assert.Equal(t, "x1^2+y1^2-1", Polynomial(sys.Norm[0]))
}

func TestCoefficient_RoundTrips(t *testing.T) {
	for _, v := range []float64{0.1, -0.30000000000000004, 1e-300, 123456789.123456789, -2.5e17} {
		s := Coefficient(v)
		assert.Contains(t, s, "e")
		back, err := strconv.ParseFloat(s, 64)
		require.NoError(t, err)
		assert.Equal(t, v, back)
	}
}

func TestRender_Bertini(t *testing.T) {
	text, err := Render(Bertini, fixedK3())
	require.NoError(t, err)

	want := "function f1,f2,g1,g2;\n" +
		"variable_group x1,x2,y1,y2;\n\n" +
		"f1 = 0+(5e-01)*(1*y1-x1*0)+(2e+00)*(x2*y1-x1*y2);\n" +
		"f2 = 0+(-1.25e-07)*(1*y2-x2*0)+(2e+00)*(x1*y2-x2*y1);\n" +
		"g1 = x1^2+y1^2-1;\n" +
		"g2 = x2^2+y2^2-1;\n" +
		"END;"
	assert.Equal(t, want, text)
}

func TestRender_PolynomialList(t *testing.T) {
	text, err := Render(PolynomialList, fixedK3())
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "4", lines[0])
	for _, l := range lines[1:] {
		assert.True(t, strings.HasSuffix(l, ";"))
		assert.NotContains(t, l, " ")
	}
}

func TestRender_EmptySystem(t *testing.T) {
	for _, d := range []Dialect{Bertini, PolynomialList} {
		_, err := Render(d, equations.System{})
		var serr *SerializationError
		require.True(t, errors.As(err, &serr))
		assert.ErrorIs(t, err, ErrSerialization)
	}
}

func TestRender_DeclarationRoundTrip(t *testing.T) {
	for _, n := range []int{2, 3, 4, 6, 9} {
		g, err := topology.New(n, nil)
		require.NoError(t, err)
		gen, err := equations.NewGenerator(g, equations.StandardNormal(), uint64(n))
		require.NoError(t, err)
		sys := gen.Generate()

		for _, d := range []Dialect{Bertini, PolynomialList} {
			t.Run(d.String()+"/n="+strconv.Itoa(n), func(t *testing.T) {
				text, err := Render(d, sys)
				require.NoError(t, err)

				decl, err := Inspect(d, text)
				require.NoError(t, err)
				assert.Equal(t, 2*(n-1), decl.Functions)
				assert.Equal(t, 2*(n-1), decl.Variables)
				assert.Equal(t, 2*(n-1), decl.Bodies)
				assert.NoError(t, Check(d, text, sys))
			})
		}
	}
}

func TestCheck_DetectsMismatch(t *testing.T) {
	sys := fixedK3()
	text, err := Render(Bertini, sys)
	require.NoError(t, err)

	truncated := strings.Replace(text, "g2 = x2^2+y2^2-1;\n", "", 1)
	assert.ErrorIs(t, Check(Bertini, truncated, sys), ErrSerialization)

	noEnd := strings.TrimSuffix(text, "END;")
	assert.ErrorIs(t, Check(Bertini, noEnd, sys), ErrSerialization)

	assert.ErrorIs(t, Check(PolynomialList, "four\nx;\n", sys), ErrSerialization)
}

func TestVariables(t *testing.T) {
	assert.Equal(t, []string{"x1", "x2", "x3", "y1", "y2", "y3"}, Variables(4))
	assert.Nil(t, Variables(1))
}
