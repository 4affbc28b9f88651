// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config holds the pfsample configuration file model.
package config

import (
	"os"
	"time"

	"github.com/AleutianAI/pfsample/cmd/pfsample/internal/telemetry"
)

// Config is the full configuration. Command-line flags override values
// read from the file, which override Default.
type Config struct {
	// Run: trial loop parameters
	Run RunConfig `yaml:"run"`

	// Distribution: susceptance draws
	Distribution DistributionConfig `yaml:"distribution"`

	// Solver: external solver selection and limits
	Solver SolverConfig `yaml:"solver"`

	// Paths: scratch and report directories
	Paths PathsConfig `yaml:"paths"`

	Log       LogConfig        `yaml:"log"`
	Telemetry telemetry.Config `yaml:"telemetry"`

	// Status: live HTTP status server, off when addr is empty
	Status StatusConfig `yaml:"status"`

	// History: run store, off when dir is empty
	History HistoryConfig `yaml:"history"`

	// Publish: optional report destinations
	Publish PublishConfig `yaml:"publish"`
}

type RunConfig struct {
	Buses      int     `yaml:"buses" validate:"gte=2"`
	Iters      int     `yaml:"iters" validate:"gt=0"`
	Tol        float64 `yaml:"tol" validate:"gte=0"`
	Edges      string  `yaml:"edges,omitempty"`    // e.g. "0,1:1,2:2,0"
	GraphID    string  `yaml:"graph_id,omitempty"` // overrides the derived id
	Target     int     `yaml:"target" validate:"gte=0"`
	Designated string  `yaml:"designated"`
	Seed       uint64  `yaml:"seed"` // 0 picks a random seed
	Workers    int     `yaml:"workers" validate:"gte=1,lte=1024"`
	RecordOdd  bool    `yaml:"record_odd"`
	Verbose    bool    `yaml:"verbose"`
}

type DistributionConfig struct {
	Kind     string  `yaml:"kind" validate:"oneof=normal uniform"`
	Mean     float64 `yaml:"mean"`
	Variance float64 `yaml:"variance" validate:"gte=0"`
}

type SolverConfig struct {
	Kind      string        `yaml:"kind" validate:"oneof=bertini phc"`
	Path      string        `yaml:"path,omitempty"`
	Timeout   time.Duration `yaml:"timeout" validate:"gte=0"`
	SpawnRate float64       `yaml:"spawn_rate" validate:"gte=0"`
}

type PathsConfig struct {
	WorkDir    string `yaml:"work_dir" validate:"required"`
	ResultsDir string `yaml:"results_dir" validate:"required"`
}

type LogConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
	Dir   string `yaml:"dir,omitempty"`
	JSON  bool   `yaml:"json"`
}

type StatusConfig struct {
	Addr string `yaml:"addr,omitempty" validate:"omitempty,hostname_port"`
}

type HistoryConfig struct {
	Dir string `yaml:"dir,omitempty"`
}

type PublishConfig struct {
	Plot   bool         `yaml:"plot"`
	GCS    GCSConfig    `yaml:"gcs"`
	Influx InfluxConfig `yaml:"influx"`
}

// GCSConfig uploads reports when Bucket is set.
type GCSConfig struct {
	Bucket          string `yaml:"bucket,omitempty"`
	Prefix          string `yaml:"prefix,omitempty"`
	ProjectID       string `yaml:"project_id,omitempty"`
	CredentialsFile string `yaml:"credentials_file,omitempty"`
}

// InfluxConfig writes per-run points when URL is set.
type InfluxConfig struct {
	URL    string `yaml:"url,omitempty" validate:"omitempty,url"`
	Token  string `yaml:"token,omitempty"`
	Org    string `yaml:"org,omitempty" validate:"required_with=URL"`
	Bucket string `yaml:"bucket,omitempty" validate:"required_with=URL"`
}

// Default returns the built-in configuration.
func Default() Config {
	workDir := os.TempDir()
	return Config{
		Run: RunConfig{
			Buses:      4,
			Iters:      1000,
			Tol:        1e-7,
			Designated: "y1",
			Workers:    1,
			RecordOdd:  true,
		},
		Distribution: DistributionConfig{Kind: "normal", Mean: 0, Variance: 1},
		Solver: SolverConfig{
			Kind:    "bertini",
			Timeout: 10 * time.Minute,
		},
		Paths: PathsConfig{
			WorkDir:    workDir,
			ResultsDir: ".",
		},
		Log:       LogConfig{Level: "info"},
		Telemetry: telemetry.DefaultConfig(),
		Publish: PublishConfig{
			Influx: InfluxConfig{Token: os.Getenv("INFLUXDB_TOKEN")},
			GCS:    GCSConfig{CredentialsFile: os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")},
		},
	}
}
