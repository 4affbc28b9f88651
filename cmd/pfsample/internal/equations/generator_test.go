// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package equations

import (
	"math"
	"sync"
	"testing"

	"github.com/AleutianAI/pfsample/cmd/pfsample/internal/topology"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat"
)

func newGraph(t *testing.T, n int, edges []topology.Edge) *topology.Graph {
	t.Helper()
	g, err := topology.New(n, edges)
	require.NoError(t, err)
	return g
}

func TestGenerate_EquationCount(t *testing.T) {
	cases := []struct {
		name  string
		n     int
		edges []topology.Edge
	}{
		{"K2", 2, nil},
		{"K3", 3, nil},
		{"C4", 4, []topology.Edge{{From: 0, To: 1}, {From: 1, To: 2}, {From: 2, To: 3}, {From: 3, To: 0}}},
		{"K7", 7, nil},
		{"path 6", 6, []topology.Edge{{From: 0, To: 1}, {From: 1, To: 2}, {From: 2, To: 3}, {From: 3, To: 4}, {From: 4, To: 5}}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gen, err := NewGenerator(newGraph(t, tc.n, tc.edges), StandardNormal(), 7)
			require.NoError(t, err)

			sys := gen.Generate()
			assert.Equal(t, 2*(tc.n-1), sys.Len())
			assert.Equal(t, 2*(tc.n-1), sys.Unknowns())
			assert.Len(t, sys.Power, tc.n-1)
			assert.Len(t, sys.Norm, tc.n-1)
			assert.Equal(t, 0, sys.Len()%2)
		})
	}
}

func TestGenerate_SusceptanceFollowsTopology(t *testing.T) {
	g := newGraph(t, 4, []topology.Edge{{From: 0, To: 1}, {From: 1, To: 2}, {From: 2, To: 3}, {From: 3, To: 0}})
	gen, err := NewGenerator(g, StandardNormal(), 11)
	require.NoError(t, err)

	sys := gen.Generate()
	adj := g.Adjacency()
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			assert.Equal(t, sys.Susceptance.At(i, j), sys.Susceptance.At(j, i))
			if !adj[i][j] {
				assert.Zero(t, sys.Susceptance.At(i, j), "entry %d,%d off the topology", i, j)
			} else {
				assert.NotZero(t, sys.Susceptance.At(i, j))
			}
		}
	}

	for _, eq := range sys.Power {
		require.Equal(t, Power, eq.Kind)
		assert.Len(t, eq.Terms, len(g.Neighbors(eq.Bus)))
		for _, term := range eq.Terms {
			assert.Equal(t, sys.Susceptance.At(eq.Bus, term.Neighbor), term.Coeff)
		}
	}
}

func TestGenerate_FreshDrawEveryCall(t *testing.T) {
	gen, err := NewGenerator(newGraph(t, 5, nil), StandardNormal(), 3)
	require.NoError(t, err)

	const calls = 50
	first := make([]float64, 0, calls)
	identical := 0
	prev := gen.Generate()
	for c := 0; c < calls; c++ {
		next := gen.Generate()
		if prev.Susceptance.At(0, 1) == next.Susceptance.At(0, 1) {
			identical++
		}
		first = append(first, next.Susceptance.At(0, 1))
		prev = next
	}

	assert.Zero(t, identical)
	assert.Greater(t, stat.StdDev(first, nil), 0.1)
}

func TestGenerate_DeterministicForSeed(t *testing.T) {
	g := newGraph(t, 4, nil)
	a, err := NewGenerator(g, StandardNormal(), 42)
	require.NoError(t, err)
	b, err := NewGenerator(g, StandardNormal(), 42)
	require.NoError(t, err)

	for k := 0; k < 5; k++ {
		sa, sb := a.Generate(), b.Generate()
		assert.True(t, sameMatrix(sa, sb))
	}
}

func TestGenerate_DistributionMoments(t *testing.T) {
	cases := []struct {
		name string
		dist Distribution
	}{
		{"normal shifted", Distribution{Kind: KindNormal, Mean: 2, Variance: 4}},
		{"uniform", Distribution{Kind: KindUniform, Mean: -1, Variance: 0.5}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gen, err := NewGenerator(newGraph(t, 2, nil), tc.dist, 99)
			require.NoError(t, err)

			samples := make([]float64, 20000)
			for i := range samples {
				samples[i] = gen.Generate().Susceptance.At(0, 1)
			}
			mean, variance := stat.MeanVariance(samples, nil)
			assert.InDelta(t, tc.dist.Mean, mean, 0.1)
			assert.InDelta(t, tc.dist.Variance, variance, 0.15*tc.dist.Variance)

			if tc.dist.Kind == KindUniform {
				half := math.Sqrt(3 * tc.dist.Variance)
				for _, v := range samples {
					assert.GreaterOrEqual(t, v, tc.dist.Mean-half)
					assert.LessOrEqual(t, v, tc.dist.Mean+half)
				}
			}
		})
	}
}

func TestGenerate_ZeroVarianceDrawsTheMean(t *testing.T) {
	for _, kind := range []string{KindNormal, KindUniform} {
		t.Run(kind, func(t *testing.T) {
			gen, err := NewGenerator(newGraph(t, 3, nil), Distribution{Kind: kind, Mean: 1.5}, 7)
			require.NoError(t, err)
			sys := gen.Generate()
			assert.Equal(t, 1.5, sys.Susceptance.At(0, 1))
			assert.Equal(t, 1.5, sys.Susceptance.At(1, 2))
		})
	}
}

func TestNewGenerator_RejectsBadDistribution(t *testing.T) {
	g := newGraph(t, 3, nil)

	_, err := NewGenerator(g, Distribution{Kind: "cauchy", Variance: 1}, 1)
	assert.Error(t, err)

	_, err = NewGenerator(g, Distribution{Kind: KindNormal, Variance: -1}, 1)
	assert.Error(t, err)

	_, err = NewGenerator(nil, StandardNormal(), 1)
	assert.Error(t, err)
}

func TestGenerate_ConcurrentCallers(t *testing.T) {
	gen, err := NewGenerator(newGraph(t, 4, nil), StandardNormal(), 5)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for k := 0; k < 25; k++ {
				sys := gen.Generate()
				assert.Equal(t, 6, sys.Len())
			}
		}()
	}
	wg.Wait()
}

func sameMatrix(a, b System) bool {
	for i := 0; i < a.Buses; i++ {
		for j := 0; j < a.Buses; j++ {
			if a.Susceptance.At(i, j) != b.Susceptance.At(i, j) {
				return false
			}
		}
	}
	return true
}
