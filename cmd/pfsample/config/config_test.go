// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	for _, mode := range []string{"classify", "compare", "find"} {
		assert.NoError(t, cfg.Validate(mode), mode)
	}
	assert.Equal(t, 4, cfg.Run.Buses)
	assert.Equal(t, 1000, cfg.Run.Iters)
	assert.Equal(t, 1e-7, cfg.Run.Tol)
	assert.True(t, cfg.Run.RecordOdd)
}

func TestLoad_EmptyPathIsDefault(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_OverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pfsample.yaml")
	body := `
run:
  buses: 5
  iters: 20
  edges: "0,1:1,2:2,3:3,4:4,0"
solver:
  kind: phc
  timeout: 30s
distribution:
  kind: uniform
  variance: 2
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Run.Buses)
	assert.Equal(t, 20, cfg.Run.Iters)
	assert.Equal(t, "phc", cfg.Solver.Kind)
	assert.Equal(t, 30*time.Second, cfg.Solver.Timeout)
	assert.Equal(t, "uniform", cfg.Distribution.Kind)
	assert.Equal(t, 2.0, cfg.Distribution.Variance)
	// untouched fields keep defaults
	assert.Equal(t, 1e-7, cfg.Run.Tol)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_RejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pfsample.yaml")
	require.NoError(t, os.WriteFile(path, []byte("run:\n  bogus: 1\n"), 0644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_EmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pfsample.yaml")
	require.NoError(t, os.WriteFile(path, nil, 0644))
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mode    string
		mutate  func(*Config)
		wantErr string
	}{
		{"one bus", "classify", func(c *Config) { c.Run.Buses = 1 }, "run.buses"},
		{"zero iters", "classify", func(c *Config) { c.Run.Iters = 0 }, "run.iters"},
		{"negative tol", "classify", func(c *Config) { c.Run.Tol = -1 }, "run.tol"},
		{"bad solver", "classify", func(c *Config) { c.Solver.Kind = "magma" }, "solver.kind"},
		{"bad distribution", "classify", func(c *Config) { c.Distribution.Kind = "cauchy" }, "distribution.kind"},
		{"negative variance", "classify", func(c *Config) { c.Distribution.Variance = -1 }, "distribution.variance"},
		{"bad level", "classify", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"bad exporter", "classify", func(c *Config) { c.Telemetry.MetricExporter = "statsd" }, "telemetry.metric_exporter"},
		{"influx without org", "classify", func(c *Config) { c.Publish.Influx.URL = "http://localhost:8086" }, "publish.influx.org"},
		{"compare with phc", "compare", func(c *Config) { c.Solver.Kind = "phc" }, "compare mode requires"},
		{"unknown mode", "guess", func(c *Config) {}, "unknown mode"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate(tt.mode)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestMarshal_RoundTrips(t *testing.T) {
	cfg := Default()
	cfg.Run.Edges = "0,1:1,2"
	cfg.Solver.Timeout = 90 * time.Second

	data, err := Marshal(cfg)
	require.NoError(t, err)

	got := Default()
	require.NoError(t, Decode(data, &got))
	assert.Equal(t, cfg, got)
}
