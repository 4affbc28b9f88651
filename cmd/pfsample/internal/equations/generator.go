// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package equations samples random power-flow polynomial systems.
//
// For a network on n buses with susceptance matrix B the system has 2(n-1)
// equations in the unknowns x_1..x_{n-1}, y_1..y_{n-1}; bus 0 is the slack
// reference fixed at (x_0, y_0) = (1, 0):
//
//	f_i = Σ_j B[i,j]·(x_j·y_i − x_i·y_j)   over neighbours j of bus i
//	g_i = x_i² + y_i² − 1
//
// The Generator is the only place randomness enters the pipeline. It owns a
// single seeded source; every call draws a fresh susceptance matrix.
package equations

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sync"

	"github.com/AleutianAI/pfsample/cmd/pfsample/internal/topology"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// =============================================================================
// System Types
// =============================================================================

// Kind separates the two equation families.
type Kind int

const (
	// Power is the power-balance family f_i.
	Power Kind = iota

	// Normalization is the unit-magnitude family g_i.
	Normalization
)

// String returns the family's function-name prefix.
func (k Kind) String() string {
	if k == Power {
		return "f"
	}
	return "g"
}

// Term is one summand B[i,j]·(x_j·y_i − x_i·y_j) of a power equation.
type Term struct {
	Neighbor int
	Coeff    float64
}

// Equation is one scalar polynomial of the system.
//
// Normalization equations carry no terms; their shape is fixed by Bus.
type Equation struct {
	Kind  Kind
	Bus   int
	Terms []Term
}

// System is one sampled instance.
type System struct {
	// Buses is the network size n.
	Buses int

	// Susceptance is the symmetric matrix drawn for this instance.
	Susceptance *mat.SymDense

	// Power holds f_1..f_{n-1}.
	Power []Equation

	// Norm holds g_1..g_{n-1}.
	Norm []Equation
}

// Equations returns the power family followed by the normalization family.
func (s System) Equations() []Equation {
	out := make([]Equation, 0, len(s.Power)+len(s.Norm))
	out = append(out, s.Power...)
	return append(out, s.Norm...)
}

// Len is the number of scalar equations, always 2(n-1).
func (s System) Len() int { return len(s.Power) + len(s.Norm) }

// Unknowns is the number of variables, always 2(n-1).
func (s System) Unknowns() int {
	if s.Buses < 2 {
		return 0
	}
	return 2 * (s.Buses - 1)
}

// =============================================================================
// Distribution
// =============================================================================

// Distribution kinds.
const (
	KindNormal  = "normal"
	KindUniform = "uniform"
)

// Distribution describes how susceptances are drawn.
//
// Both kinds are parameterised by mean and variance so runs with different
// shapes stay comparable.
type Distribution struct {
	Kind     string
	Mean     float64
	Variance float64
}

// StandardNormal is N(0, 1).
func StandardNormal() Distribution {
	return Distribution{Kind: KindNormal, Mean: 0, Variance: 1}
}

// rander builds the gonum distribution for d, drawing from src.
func (d Distribution) rander(src rand.Source) (distuv.Rander, error) {
	if d.Variance < 0 || math.IsNaN(d.Variance) {
		return nil, fmt.Errorf("variance must be non-negative, got %v", d.Variance)
	}
	sigma := math.Sqrt(d.Variance)
	switch d.Kind {
	case "", KindNormal:
		return distuv.Normal{Mu: d.Mean, Sigma: sigma, Src: src}, nil
	case KindUniform:
		half := math.Sqrt(3) * sigma
		return distuv.Uniform{Min: d.Mean - half, Max: d.Mean + half, Src: src}, nil
	default:
		return nil, fmt.Errorf("unknown distribution %q", d.Kind)
	}
}

// =============================================================================
// Generator
// =============================================================================

// Generator draws random systems over a fixed topology.
//
// # Thread Safety
//
// Generate is safe for concurrent use. Draws are serialized on an internal
// mutex so the sequence produced for a given seed does not depend on how
// many workers call it, only on the order they are served.
type Generator struct {
	graph *topology.Graph

	mu   sync.Mutex
	dist distuv.Rander
}

// NewGenerator returns a Generator seeded once with seed.
//
// # Inputs
//
//   - g: Validated topology
//   - d: Susceptance distribution
//   - seed: Seed for the process-wide source
//
// # Outputs
//
//   - *Generator: Ready generator
//   - error: Non-nil for an unknown kind or negative variance
func NewGenerator(g *topology.Graph, d Distribution, seed uint64) (*Generator, error) {
	if g == nil {
		return nil, fmt.Errorf("nil topology")
	}
	dist, err := d.rander(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	if err != nil {
		return nil, err
	}
	return &Generator{graph: g, dist: dist}, nil
}

// Generate draws a fresh susceptance matrix and builds its system.
func (gen *Generator) Generate() System {
	n := gen.graph.Buses()
	b := mat.NewSymDense(n, nil)

	gen.mu.Lock()
	for _, e := range gen.graph.Edges() {
		b.SetSym(e.From, e.To, gen.dist.Rand())
	}
	gen.mu.Unlock()

	sys := System{
		Buses:       n,
		Susceptance: b,
		Power:       make([]Equation, 0, n-1),
		Norm:        make([]Equation, 0, n-1),
	}
	for i := 1; i < n; i++ {
		neighbors := gen.graph.Neighbors(i)
		terms := make([]Term, 0, len(neighbors))
		for _, j := range neighbors {
			terms = append(terms, Term{Neighbor: j, Coeff: b.At(i, j)})
		}
		sys.Power = append(sys.Power, Equation{Kind: Power, Bus: i, Terms: terms})
		sys.Norm = append(sys.Norm, Equation{Kind: Normalization, Bus: i})
	}
	return sys
}
