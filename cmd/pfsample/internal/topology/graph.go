// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package topology models the bus network that random power-flow systems
// are sampled over.
//
// A Graph is an undirected simple graph on buses 0..n-1. Bus 0 is the slack
// reference whose voltage is fixed at (1, 0) by the equation generator; every
// other bus contributes one power equation and one normalization equation.
//
// # Edge Strings
//
// Edges are given on the command line in one of two forms:
//
//	"0,1:1,2:2,3"   colon-separated i,j pairs (any bus index width)
//	"01,12,23"      compact form, two single-digit bus indices per edge
//
// An empty string selects the complete graph on n buses.
//
// # Thread Safety
//
// A Graph is immutable after New returns and is safe for concurrent reads.
package topology

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
)

// =============================================================================
// Errors
// =============================================================================

// ErrInvalidTopology is the sentinel matched by every InvalidTopologyError.
var ErrInvalidTopology = errors.New("invalid topology")

// InvalidTopologyError reports a graph definition that cannot be sampled.
//
// It is fatal: the trial loop never starts when topology construction fails.
type InvalidTopologyError struct {
	// Buses is the requested bus count.
	Buses int

	// Edge is the offending edge, when the failure is edge-specific.
	Edge *Edge

	// Reason is a short human-readable explanation.
	Reason string
}

// Error implements error.
func (e *InvalidTopologyError) Error() string {
	if e.Edge != nil {
		return fmt.Sprintf("invalid topology (n=%d, edge %d,%d): %s", e.Buses, e.Edge.From, e.Edge.To, e.Reason)
	}
	return fmt.Sprintf("invalid topology (n=%d): %s", e.Buses, e.Reason)
}

// Is lets errors.Is match ErrInvalidTopology.
func (e *InvalidTopologyError) Is(target error) bool {
	return target == ErrInvalidTopology
}

// =============================================================================
// Types
// =============================================================================

// Edge is an undirected connection between two buses.
type Edge struct {
	From int
	To   int
}

// Graph is the validated bus network.
type Graph struct {
	n     int
	edges []Edge
	g     *simple.UndirectedGraph
	adj   [][]bool
}

// =============================================================================
// Construction
// =============================================================================

// Complete returns every pair (i, j) with i < j on n buses.
func Complete(n int) []Edge {
	if n < 2 {
		return nil
	}
	edges := make([]Edge, 0, n*(n-1)/2)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			edges = append(edges, Edge{From: i, To: j})
		}
	}
	return edges
}

// New builds a Graph on n buses.
//
// # Description
//
// Validates every edge against the bus range, rejects self loops and
// duplicate edges (in either orientation), and derives the symmetric
// adjacency matrix. A nil or empty edge list selects the complete graph.
//
// # Inputs
//
//   - n: Bus count, at least 2
//   - edges: Undirected edge list (nil for the complete graph)
//
// # Outputs
//
//   - *Graph: The validated topology
//   - error: *InvalidTopologyError on any violation
//
// # Examples
//
//	g, err := topology.New(4, []topology.Edge{{0, 1}, {1, 2}, {2, 3}, {3, 0}})
//	if err != nil {
//	    return err
//	}
func New(n int, edges []Edge) (*Graph, error) {
	if n < 2 {
		return nil, &InvalidTopologyError{Buses: n, Reason: "at least two buses are required"}
	}
	if len(edges) == 0 {
		edges = Complete(n)
	}

	ug := simple.NewUndirectedGraph()
	for i := 0; i < n; i++ {
		ug.AddNode(simple.Node(int64(i)))
	}

	kept := make([]Edge, 0, len(edges))
	for _, e := range edges {
		e := e
		switch {
		case e.From < 0 || e.From >= n || e.To < 0 || e.To >= n:
			return nil, &InvalidTopologyError{Buses: n, Edge: &e, Reason: fmt.Sprintf("bus index outside [0,%d)", n)}
		case e.From == e.To:
			return nil, &InvalidTopologyError{Buses: n, Edge: &e, Reason: "self loop"}
		case ug.HasEdgeBetween(int64(e.From), int64(e.To)):
			return nil, &InvalidTopologyError{Buses: n, Edge: &e, Reason: "duplicate edge"}
		}
		ug.SetEdge(simple.Edge{F: simple.Node(int64(e.From)), T: simple.Node(int64(e.To))})
		kept = append(kept, e)
	}

	adj := make([][]bool, n)
	for i := range adj {
		adj[i] = make([]bool, n)
	}
	for _, e := range kept {
		adj[e.From][e.To] = true
		adj[e.To][e.From] = true
	}

	return &Graph{n: n, edges: kept, g: ug, adj: adj}, nil
}

// =============================================================================
// Queries
// =============================================================================

// Buses returns the bus count.
func (g *Graph) Buses() int { return g.n }

// Edges returns a copy of the edge list in input order.
func (g *Graph) Edges() []Edge {
	out := make([]Edge, len(g.edges))
	copy(out, g.edges)
	return out
}

// Adjacency returns a copy of the symmetric adjacency matrix.
//
// The diagonal is always false.
func (g *Graph) Adjacency() [][]bool {
	out := make([][]bool, g.n)
	for i := range g.adj {
		out[i] = make([]bool, g.n)
		copy(out[i], g.adj[i])
	}
	return out
}

// Neighbors returns the buses adjacent to bus i in ascending order.
func (g *Graph) Neighbors(i int) []int {
	nodes := graph.NodesOf(g.g.From(int64(i)))
	out := make([]int, 0, len(nodes))
	for _, node := range nodes {
		out = append(out, int(node.ID()))
	}
	sort.Ints(out)
	return out
}

// =============================================================================
// Edge Strings and Identifiers
// =============================================================================

// ParseEdges parses an edge string.
//
// # Description
//
// Accepts the colon form "0,1:1,2" and the compact form "01,12". Whitespace
// around tokens is ignored. An empty string returns nil (complete graph).
//
// # Outputs
//
//   - []Edge: Parsed edges in input order
//   - error: *InvalidTopologyError if the string matches neither form
func ParseEdges(s string) ([]Edge, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	// Without a colon the compact form wins, so "10,11" means the edges
	// (1,0),(1,1). A trailing colon ("10,11:") forces the pair form.
	if !strings.Contains(s, ":") {
		if edges, ok := parseCompactForm(s); ok {
			return edges, nil
		}
	}
	if edges, err := parseColonForm(strings.Trim(s, ":")); err == nil {
		return edges, nil
	}
	return nil, &InvalidTopologyError{Reason: fmt.Sprintf("cannot parse edge string %q", s)}
}

func parseColonForm(s string) ([]Edge, error) {
	parts := strings.Split(s, ":")
	edges := make([]Edge, 0, len(parts))
	for _, part := range parts {
		ends := strings.Split(part, ",")
		if len(ends) != 2 {
			return nil, fmt.Errorf("edge %q is not an i,j pair", part)
		}
		from, err := strconv.Atoi(strings.TrimSpace(ends[0]))
		if err != nil {
			return nil, err
		}
		to, err := strconv.Atoi(strings.TrimSpace(ends[1]))
		if err != nil {
			return nil, err
		}
		edges = append(edges, Edge{From: from, To: to})
	}
	return edges, nil
}

func parseCompactForm(s string) ([]Edge, bool) {
	parts := strings.Split(s, ",")
	edges := make([]Edge, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if len(part) != 2 || part[0] < '0' || part[0] > '9' || part[1] < '0' || part[1] > '9' {
			return nil, false
		}
		edges = append(edges, Edge{From: int(part[0] - '0'), To: int(part[1] - '0')})
	}
	return edges, true
}

// ID returns the graph identifier used in report names.
//
// An explicit custom id wins; otherwise the raw edge string; otherwise K<n>
// for the complete graph.
func ID(custom, edgeString string, n int) string {
	if custom != "" {
		return custom
	}
	if s := strings.TrimSpace(edgeString); s != "" {
		return s
	}
	return "K" + strconv.Itoa(n)
}
