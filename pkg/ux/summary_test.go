// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample() RunSummary {
	return RunSummary{
		Mode:            "classify",
		GraphID:         "K4",
		RunID:           "abcd1234",
		Iters:           10,
		Distribution:    []Row{{"0", 2}, {"2", 5}, {"4", 1}},
		Failures:        []Row{{"solver", 2}, {"parse", 0}},
		ParityAnomalies: 1,
		Mean:            1.75,
		StdDev:          1.28,
		ReportPath:      "Data/real_dist_K4_x",
	}
}

func TestRenderPlain(t *testing.T) {
	out := RenderPlain(sample())
	assert.Contains(t, out, "0 : 2\n2 : 5\n4 : 1\n")
	assert.Contains(t, out, "failures: 2\n  solver: 2\n")
	assert.NotContains(t, out, "parse: 0")
	assert.Contains(t, out, "parity anomalies: 1")
	assert.NotContains(t, out, "Instances found")
}

func TestRenderPlain_FindMode(t *testing.T) {
	s := sample()
	s.FindMode = true
	s.Found = 3
	assert.Contains(t, RenderPlain(s), "Instances found: 3\n")
}

func TestRenderStyled_ContainsRows(t *testing.T) {
	out := RenderStyled(sample())
	for _, want := range []string{"classify K4", "real", "count", "2 failed", "solver 2", "parity anomalies", "report"} {
		assert.Contains(t, out, want)
	}
	assert.Contains(t, out, strings.Repeat("█", 30), "largest count fills the bar")
}

func TestPrintSummary_PlainForNonTerminal(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, PrintSummary(&buf, sample()))
	assert.True(t, strings.HasPrefix(buf.String(), "mode: classify\n"))
	assert.False(t, IsTerminal(&buf))
}

func TestBar(t *testing.T) {
	assert.Equal(t, "", Bar(0, 10, 10))
	assert.Equal(t, "", Bar(3, 0, 10))
	assert.Equal(t, "█", Bar(1, 100, 10), "non-zero counts always show")
	assert.Equal(t, strings.Repeat("█", 10), Bar(10, 10, 10))
	assert.Equal(t, strings.Repeat("█", 5), Bar(5, 10, 10))
}

func TestPrintTable_PlainForNonTerminal(t *testing.T) {
	var buf bytes.Buffer
	err := PrintTable(&buf, []string{"graph", "run"}, [][]string{{"K3", "ab12"}, {"K4", "cd34"}})
	require.NoError(t, err)
	assert.Equal(t, "graph\trun\nK3\tab12\nK4\tcd34\n", buf.String())
}
