// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.opentelemetry.io/otel"

	"github.com/AleutianAI/pfsample/cmd/pfsample/config"
	"github.com/AleutianAI/pfsample/cmd/pfsample/internal/equations"
	"github.com/AleutianAI/pfsample/cmd/pfsample/internal/history"
	"github.com/AleutianAI/pfsample/cmd/pfsample/internal/pipeline"
	"github.com/AleutianAI/pfsample/cmd/pfsample/internal/publish"
	"github.com/AleutianAI/pfsample/cmd/pfsample/internal/solver"
	"github.com/AleutianAI/pfsample/cmd/pfsample/internal/stats"
	"github.com/AleutianAI/pfsample/cmd/pfsample/internal/status"
	"github.com/AleutianAI/pfsample/cmd/pfsample/internal/telemetry"
	"github.com/AleutianAI/pfsample/cmd/pfsample/internal/topology"
	"github.com/AleutianAI/pfsample/pkg/logging"
	"github.com/AleutianAI/pfsample/pkg/ux"
	"github.com/AleutianAI/pfsample/pkg/validation"
)

// =============================================================================
// Configuration
// =============================================================================

// loadConfig reads --config and applies the global flags.
func loadConfig(cmd *cobra.Command, g *globalFlags) (config.Config, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return cfg, err
	}
	fl := cmd.Flags()
	if fl.Changed("log-level") {
		cfg.Log.Level = g.logLevel
	}
	if fl.Changed("log-dir") {
		cfg.Log.Dir = g.logDir
	}
	if fl.Changed("log-json") {
		cfg.Log.JSON = g.logJSON
	}
	if fl.Changed("history-dir") {
		cfg.History.Dir = g.historyDir
	}
	return cfg, nil
}

// applySampleFlags copies every flag set on the command line into cfg.
func applySampleFlags(fl *pflag.FlagSet, f *sampleFlags, cfg *config.Config) {
	set := func(name string, apply func()) {
		if fl.Lookup(name) != nil && fl.Changed(name) {
			apply()
		}
	}
	set("buses", func() { cfg.Run.Buses = f.buses })
	set("iters", func() { cfg.Run.Iters = f.iters })
	set("tol", func() { cfg.Run.Tol = f.tol })
	set("edges", func() { cfg.Run.Edges = f.edges })
	set("verbose", func() { cfg.Run.Verbose = f.verbose })
	set("target", func() { cfg.Run.Target = f.target })
	set("graph-id", func() { cfg.Run.GraphID = f.graphID })
	set("designated", func() { cfg.Run.Designated = f.designated })
	set("mu", func() { cfg.Distribution.Mean = f.mu })
	set("var", func() { cfg.Distribution.Variance = f.variance })
	set("distribution", func() { cfg.Distribution.Kind = f.distribution })
	set("solver", func() { cfg.Solver.Kind = f.solver })
	set("solver-path", func() { cfg.Solver.Path = f.solverPath })
	set("timeout", func() { cfg.Solver.Timeout = f.timeout })
	set("spawn-rate", func() { cfg.Solver.SpawnRate = f.spawnRate })
	set("workers", func() { cfg.Run.Workers = f.workers })
	set("seed", func() { cfg.Run.Seed = f.seed })
	set("work-dir", func() { cfg.Paths.WorkDir = f.workDir })
	set("results-dir", func() { cfg.Paths.ResultsDir = f.resultsDir })
	set("drop-odd", func() { cfg.Run.RecordOdd = !f.dropOdd })
	set("plot", func() { cfg.Publish.Plot = f.plot })
	set("serve", func() { cfg.Status.Addr = f.serve })
}

func newLogger(cfg config.Config, cmd *cobra.Command) (*logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	return logging.New(logging.Config{
		Level:   level,
		LogDir:  cfg.Log.Dir,
		Service: "pfsample",
		JSON:    cfg.Log.JSON,
		Output:  cmd.ErrOrStderr(),
	}), nil
}

// =============================================================================
// Sampling
// =============================================================================

func runSample(cmd *cobra.Command, g *globalFlags, f *sampleFlags, mode pipeline.Mode) error {
	cfg, err := loadConfig(cmd, g)
	if err != nil {
		return err
	}
	applySampleFlags(cmd.Flags(), f, &cfg)
	if err := cfg.Validate(string(mode)); err != nil {
		return err
	}

	logger, err := newLogger(cfg, cmd)
	if err != nil {
		return err
	}
	defer logger.Close()
	log := logger.Slog()

	var edges []topology.Edge
	if cfg.Run.Edges != "" {
		if edges, err = topology.ParseEdges(cfg.Run.Edges); err != nil {
			return err
		}
	}
	graphID, err := validation.SanitizeGraphID(topology.ID(cfg.Run.GraphID, cfg.Run.Edges, cfg.Run.Buses))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown, err := telemetry.Init(ctx, cfg.Telemetry.ForServing(cfg.Status.Addr != ""))
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer shutdown(context.WithoutCancel(ctx))

	metrics, err := telemetry.NewMetrics(otel.Meter(telemetry.TracerName))
	if err != nil {
		log.Warn("metrics disabled", "error", err)
	}

	opts := pipeline.Options{
		Mode:  mode,
		Buses: cfg.Run.Buses,
		Edges: edges,
		Iters: cfg.Run.Iters,
		Tol:   cfg.Run.Tol,
		Distribution: equations.Distribution{
			Kind:     cfg.Distribution.Kind,
			Mean:     cfg.Distribution.Mean,
			Variance: cfg.Distribution.Variance,
		},
		Seed:       cfg.Run.Seed,
		Target:     cfg.Run.Target,
		Designated: cfg.Run.Designated,
		RecordOdd:  cfg.Run.RecordOdd,
		Workers:    cfg.Run.Workers,
		Verbose:    cfg.Run.Verbose,
		WorkDir:    cfg.Paths.WorkDir,
		Solver: solver.Config{
			Kind:      solver.Kind(cfg.Solver.Kind),
			Path:      cfg.Solver.Path,
			Timeout:   cfg.Solver.Timeout,
			SpawnRate: cfg.Solver.SpawnRate,
		},
		Logger:  log,
		Metrics: metrics,
	}
	if mode == pipeline.ModeFind {
		opts.FindSink = cmd.OutOrStdout()
	}
	p, err := pipeline.New(opts)
	if err != nil {
		return err
	}

	if cfg.Status.Addr != "" {
		srv := status.New(status.Config{Addr: cfg.Status.Addr, Metrics: telemetry.MetricsHandler(), Logger: log}, p)
		if err := srv.Start(); err != nil {
			return fmt.Errorf("start status server: %w", err)
		}
		defer func() {
			if err := srv.Shutdown(context.WithoutCancel(ctx)); err != nil {
				log.Warn("status server shutdown", "error", err)
			}
		}()
	}

	var spin *ux.Spinner
	if ux.IsTerminal(cmd.ErrOrStderr()) && !cfg.Run.Verbose {
		spin = ux.NewSpinner(cmd.ErrOrStderr(), func() string {
			pr := p.Progress()
			return ux.TrialStatus(string(pr.Mode), graphID, pr.Done, pr.Iters, pr.Summary.FailureTotal)
		})
		spin.Start()
	}

	started := time.Now()
	res, runErr := p.Run(ctx)
	if spin != nil {
		spin.Stop()
	}
	fatal := runErr
	if errors.Is(runErr, context.Canceled) {
		log.Warn("run interrupted; unstarted trials counted as cancelled")
		fatal = nil
	}

	// The report is written even when every trial failed.
	name := stats.ReportName(mode.ReportPrefix(), graphID, started)
	reportPath, err := stats.WriteReportFile(cfg.Paths.ResultsDir, name, res.Summary.Table())
	if err != nil {
		return errors.Join(fatal, fmt.Errorf("write report: %w", err))
	}
	log.Info("report written", "path", reportPath)

	run := runRecord(cfg, mode, graphID, started, res, reportPath)
	publishRun(context.WithoutCancel(ctx), cfg, run, res, log)

	if err := ux.PrintSummary(cmd.OutOrStdout(), summaryOf(run, res)); err != nil {
		return err
	}
	return fatal
}

func runRecord(cfg config.Config, mode pipeline.Mode, graphID string, started time.Time, res pipeline.Result, reportPath string) history.Run {
	failures := make(map[string]int)
	for kind, c := range res.Summary.Failures {
		if c > 0 {
			failures[string(kind)] = c
		}
	}
	return history.Run{
		GraphID:      graphID,
		RunID:        res.RunID,
		Mode:         string(mode),
		Buses:        cfg.Run.Buses,
		Edges:        cfg.Run.Edges,
		Iters:        res.Iters,
		Seed:         res.Seed,
		Solver:       cfg.Solver.Kind,
		Distribution: cfg.Distribution.Kind,
		Mean:         cfg.Distribution.Mean,
		Variance:     cfg.Distribution.Variance,
		StartedAt:    started.UTC(),
		Elapsed:      res.Elapsed,
		Entries:      history.EntriesOf(res.Summary.Table()),
		Failures:     failures,
		ReportPath:   reportPath,
	}
}

// publishRun sends the finished run to every configured destination.
// Failures are logged; the report on disk is the record of the run.
func publishRun(ctx context.Context, cfg config.Config, run history.Run, res pipeline.Result, log *slog.Logger) {
	if cfg.History.Dir != "" {
		if err := saveHistory(ctx, cfg, run, log); err != nil {
			log.Warn("could not store run history", "dir", cfg.History.Dir, "error", err)
		}
	}

	artifacts := []string{run.ReportPath}
	if cfg.Publish.Plot {
		title := fmt.Sprintf("%s %s (%d trials)", run.Mode, run.GraphID, run.Iters)
		png, err := publish.SaveHistogram(run.ReportPath, title, res.Summary.Entries)
		if err != nil {
			log.Warn("could not plot histogram", "error", err)
		} else {
			log.Info("histogram written", "path", png)
			artifacts = append(artifacts, png)
		}
	}

	if c := cfg.Publish.Influx; c.URL != "" {
		sink, err := publish.NewInfluxSink(publish.InfluxConfig{URL: c.URL, Token: c.Token, Org: c.Org, Bucket: c.Bucket})
		if err == nil {
			err = sink.WriteRun(ctx, run)
			sink.Close()
		}
		if err != nil {
			log.Warn("could not write run to influx", "url", c.URL, "error", err)
		}
	}

	if c := cfg.Publish.GCS; c.Bucket != "" {
		up, err := publish.NewGCSUploader(ctx, publish.GCSConfig{
			Bucket:          c.Bucket,
			Prefix:          c.Prefix,
			ProjectID:       c.ProjectID,
			CredentialsFile: c.CredentialsFile,
		}, log)
		if err == nil {
			_, err = up.Upload(ctx, run.GraphID, artifacts...)
			up.Close()
		}
		if err != nil {
			log.Warn("could not upload report", "bucket", c.Bucket, "error", err)
		}
	}
}

func saveHistory(ctx context.Context, cfg config.Config, run history.Run, log *slog.Logger) error {
	store, err := history.Open(history.Config{Dir: cfg.History.Dir, Logger: log})
	if err != nil {
		return err
	}
	if err := store.Put(ctx, run); err != nil {
		store.Close()
		return err
	}
	return store.Close()
}

func summaryOf(run history.Run, res pipeline.Result) ux.RunSummary {
	s := ux.RunSummary{
		Mode:            run.Mode,
		GraphID:         run.GraphID,
		RunID:           run.RunID,
		Iters:           run.Iters,
		ParityAnomalies: res.Summary.ParityAnomalies,
		FindMode:        res.Summary.FindMode,
		Found:           res.Summary.Found,
		Mean:            res.Summary.Mean,
		StdDev:          res.Summary.StdDev,
		ReportPath:      run.ReportPath,
	}
	for _, e := range res.Summary.Entries {
		s.Distribution = append(s.Distribution, ux.Row{Label: e.Key.String(), Count: e.Count})
	}
	for _, kind := range stats.FailureKinds {
		s.Failures = append(s.Failures, ux.Row{Label: string(kind), Count: res.Summary.Failures[kind]})
	}
	return s
}
