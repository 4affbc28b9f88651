// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package pipeline runs the sampling trial loop.
//
// One trial is: acquire a scope, draw a system, serialize it, run the
// solver, parse its artifacts, record the outcome, release the scope. Every
// per-trial failure is classified at the trial boundary and counted; only
// configuration problems detected by New, or a system that cannot be
// serialized faithfully, stop the run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"os"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/pfsample/cmd/pfsample/internal/equations"
	"github.com/AleutianAI/pfsample/cmd/pfsample/internal/lifecycle"
	"github.com/AleutianAI/pfsample/cmd/pfsample/internal/results"
	"github.com/AleutianAI/pfsample/cmd/pfsample/internal/serialize"
	"github.com/AleutianAI/pfsample/cmd/pfsample/internal/solver"
	"github.com/AleutianAI/pfsample/cmd/pfsample/internal/stats"
	"github.com/AleutianAI/pfsample/cmd/pfsample/internal/telemetry"
	"github.com/AleutianAI/pfsample/cmd/pfsample/internal/topology"
)

// =============================================================================
// Options
// =============================================================================

// Mode selects how outcomes are parsed and aggregated.
type Mode string

const (
	// ModeClassify counts real solutions per trial.
	ModeClassify Mode = "classify"

	// ModeCompare pairs the real count with the count of solutions whose
	// designated variable is real. Bertini only.
	ModeCompare Mode = "compare"

	// ModeFind classifies and also emits every system whose real count
	// equals the target.
	ModeFind Mode = "find"
)

// ReportPrefix returns the report file prefix for the mode.
func (m Mode) ReportPrefix() string {
	switch m {
	case ModeCompare:
		return stats.PrefixCompare
	case ModeFind:
		return stats.PrefixFind
	default:
		return stats.PrefixClassify
	}
}

// DefaultDesignated is the variable compare mode checks by default.
const DefaultDesignated = "y1"

// Options configures a Pipeline.
type Options struct {
	Mode Mode

	// Buses is the number of buses; Edges nil means the complete graph.
	Buses int
	Edges []topology.Edge

	// Iters is the number of trials.
	Iters int

	// Tol bounds |imag| for a real component.
	Tol float64

	Distribution equations.Distribution

	// Seed seeds the shared generator. Zero picks a random seed, which is
	// logged so the run can be repeated.
	Seed uint64

	// Target is the real count find mode looks for.
	Target int

	// Designated is the compare-mode variable; empty means y1.
	Designated string

	// RecordOdd keeps odd real counts in the table.
	RecordOdd bool

	// Workers is the number of concurrent trials; less than 1 means 1.
	Workers int

	// Verbose logs progress about every 10% of trials.
	Verbose bool

	// WorkDir holds the per-trial scope directories.
	WorkDir string

	// RunID names the scopes; empty generates one.
	RunID string

	Solver         solver.Config
	ProcessManager solver.ProcessManager

	// FindSink receives matching systems in find mode.
	FindSink io.Writer

	Logger  *slog.Logger
	Metrics *telemetry.Metrics
}

// =============================================================================
// Pipeline
// =============================================================================

// Pipeline is a configured sampling run. A Pipeline runs once.
type Pipeline struct {
	opts      Options
	graph     *topology.Graph
	gen       *equations.Generator
	solver    solver.Solver
	parser    results.Parser
	scopes    *lifecycle.Manager
	agg       *stats.Aggregator
	logger    *slog.Logger
	metrics   *telemetry.Metrics
	variables []string

	done    atomic.Int64
	started atomic.Bool
}

// Result is the outcome of a finished run.
type Result struct {
	RunID   string
	Mode    Mode
	Iters   int
	Seed    uint64
	Elapsed time.Duration
	Summary stats.Summary
}

// New validates opts and prepares a run.
//
// # Description
//
// Everything that can be checked before the first trial is checked here:
// the topology, the trial count, the tolerance, the distribution, the
// solver kind, and the mode/solver combination. Errors from New are fatal.
//
// # Outputs
//
//   - *Pipeline: Ready to Run
//   - error: *topology.InvalidTopologyError or a configuration error
func New(opts Options) (*Pipeline, error) {
	if opts.Iters <= 0 {
		return nil, fmt.Errorf("iters must be positive, got %d", opts.Iters)
	}
	if opts.Tol < 0 {
		return nil, fmt.Errorf("tol must be non-negative, got %g", opts.Tol)
	}
	if opts.Mode == "" {
		opts.Mode = ModeClassify
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Designated == "" {
		opts.Designated = DefaultDesignated
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.RunID == "" {
		opts.RunID = lifecycle.NewRunID()
	}
	if opts.Seed == 0 {
		opts.Seed = rand.Uint64()
	}

	graph, err := topology.New(opts.Buses, opts.Edges)
	if err != nil {
		return nil, err
	}
	gen, err := equations.NewGenerator(graph, opts.Distribution, opts.Seed)
	if err != nil {
		return nil, err
	}
	slv, err := solver.New(opts.Solver, opts.ProcessManager, opts.Logger)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		opts:      opts,
		graph:     graph,
		gen:       gen,
		solver:    slv,
		logger:    opts.Logger.With("run_id", opts.RunID, "mode", string(opts.Mode)),
		metrics:   opts.Metrics,
		variables: serialize.Variables(graph.Buses()),
	}
	if p.parser, err = p.selectParser(); err != nil {
		return nil, err
	}

	p.scopes, err = lifecycle.NewManager(opts.WorkDir, opts.RunID, p.logger)
	if err != nil {
		return nil, err
	}

	aggOpts := stats.Options{RecordOdd: opts.RecordOdd, FindSink: opts.FindSink, Logger: p.logger}
	if opts.Mode == ModeFind {
		target := opts.Target
		aggOpts.Target = &target
	}
	p.agg = stats.NewAggregator(aggOpts)
	return p, nil
}

func (p *Pipeline) selectParser() (results.Parser, error) {
	kind := solver.Kind(p.solver.Name())
	switch p.opts.Mode {
	case ModeClassify, ModeFind:
		if kind == solver.KindPHC {
			return results.DictionaryParser{Tol: p.opts.Tol, Variables: p.variables}, nil
		}
		return results.SummaryParser{}, nil
	case ModeCompare:
		if kind != solver.KindBertini {
			return nil, fmt.Errorf("compare mode requires the %s solver, got %s", solver.KindBertini, kind)
		}
		if !slices.Contains(p.variables, p.opts.Designated) {
			return nil, fmt.Errorf("designated variable %q is not one of %v", p.opts.Designated, p.variables)
		}
		return results.CompareParser{Tol: p.opts.Tol, Variables: p.variables, Designated: p.opts.Designated}, nil
	default:
		return nil, fmt.Errorf("unknown mode %q", p.opts.Mode)
	}
}

// RunID returns the run identifier.
func (p *Pipeline) RunID() string { return p.opts.RunID }

// Graph returns the topology the run samples over.
func (p *Pipeline) Graph() *topology.Graph { return p.graph }

// Progress is a live view of a run.
type Progress struct {
	RunID   string
	Mode    Mode
	Iters   int
	Done    int
	Summary stats.Summary
}

// Progress returns the current totals. Safe to call while Run is active.
func (p *Pipeline) Progress() Progress {
	return Progress{
		RunID:   p.opts.RunID,
		Mode:    p.opts.Mode,
		Iters:   p.opts.Iters,
		Done:    int(p.done.Load()),
		Summary: p.agg.Snapshot(),
	}
}

// Run executes every trial.
//
// # Description
//
// Trials run on up to Workers goroutines. When ctx is cancelled no new
// trials start; every trial that never ran is recorded as cancelled, so
// table entries plus failures always equal Iters. The returned Result is
// complete even when err is non-nil.
//
// # Outputs
//
//   - Result: Final totals
//   - error: ctx's error if cancelled, or the fatal error that stopped
//     the run
func (p *Pipeline) Run(ctx context.Context) (Result, error) {
	if !p.started.CompareAndSwap(false, true) {
		return Result{}, errors.New("pipeline already ran")
	}
	start := time.Now()
	p.logger.Info("run started",
		"buses", p.graph.Buses(),
		"edges", len(p.graph.Edges()),
		"iters", p.opts.Iters,
		"workers", p.opts.Workers,
		"solver", p.solver.Name(),
		"seed", p.opts.Seed,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Workers)
	for i := 0; i < p.opts.Iters; i++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error { return p.trial(gctx, i) })
	}
	runErr := g.Wait()

	for i := 0; i < p.opts.Iters; i++ {
		if !p.agg.Seen(i) {
			if _, err := p.agg.Record(stats.Outcome{Trial: i, Failure: stats.FailureCancelled}); err != nil {
				return Result{}, err
			}
		}
	}
	if runErr == nil {
		runErr = ctx.Err()
	}

	res := Result{
		RunID:   p.opts.RunID,
		Mode:    p.opts.Mode,
		Iters:   p.opts.Iters,
		Seed:    p.opts.Seed,
		Elapsed: time.Since(start),
		Summary: p.agg.Snapshot(),
	}
	p.logger.Info("run finished",
		"elapsed", res.Elapsed.Round(time.Millisecond),
		"recorded", res.Summary.Successes,
		"failed", res.Summary.FailureTotal,
		"parity_anomalies", res.Summary.ParityAnomalies,
	)
	return res, runErr
}

// trial runs and records one trial. Only fatal errors are returned.
func (p *Pipeline) trial(ctx context.Context, i int) error {
	start := time.Now()
	p.metrics.TrialStarted(ctx)

	ctx, span := telemetry.StartSpan(ctx, "pipeline.trial", trace.WithAttributes(
		attribute.Int("trial", i),
		attribute.String("mode", string(p.opts.Mode)),
	))
	defer span.End()
	log := telemetry.LoggerWithTrace(ctx, p.logger.With("trial", i))

	out, fatal := p.execute(ctx, i, log)
	if fatal != nil {
		// Recorded so the sum invariant holds for the partial result.
		out = stats.Outcome{Trial: i, Failure: stats.FailureInternal, Err: fatal}
	}
	rec, err := p.agg.Record(out)
	if err != nil {
		if errors.Is(err, stats.ErrDuplicateTrial) {
			return err
		}
		log.Warn("could not emit found instance", "error", err)
	}

	outcome := "ok"
	if rec.Failure != "" {
		outcome = string(rec.Failure)
		telemetry.RecordError(span, out.Err)
	} else {
		telemetry.SetSpanOK(span)
	}
	if rec.Parity {
		p.metrics.Parity(ctx, string(p.opts.Mode))
	}
	if rec.Found {
		p.metrics.Found(ctx)
		log.Info("instance found", "instance", rec.Instance, "real", out.Key.Real)
	}
	p.metrics.TrialFinished(ctx, string(p.opts.Mode), outcome, time.Since(start))
	p.reportProgress(int(p.done.Add(1)))
	return fatal
}

// execute performs one trial and classifies its result. The error return
// is reserved for failures that must stop the run.
func (p *Pipeline) execute(ctx context.Context, i int, log *slog.Logger) (stats.Outcome, error) {
	failed := func(kind stats.FailureKind, err error) (stats.Outcome, error) {
		return stats.Outcome{Trial: i, Failure: kind, Err: err}, nil
	}
	if err := ctx.Err(); err != nil {
		return failed(stats.FailureCancelled, err)
	}

	scope, err := p.scopes.Acquire(i)
	if err != nil {
		log.Warn("could not create run scope", "error", err)
		return failed(stats.FailureInternal, err)
	}
	defer func() {
		p.metrics.Cleanup(ctx, scope.Release())
	}()

	sys := p.gen.Generate()
	text, err := serialize.Render(p.solver.Dialect(), sys)
	if err == nil {
		err = serialize.Check(p.solver.Dialect(), text, sys)
	}
	if err != nil {
		log.Error("could not serialize system", "error", err)
		return stats.Outcome{}, err
	}

	input := scope.Path(p.solver.InputName())
	if err := os.WriteFile(input, []byte(text), 0640); err != nil {
		log.Warn("could not write solver input", "path", input, "error", err)
		return failed(stats.FailureInternal, err)
	}

	arts, err := p.solver.Solve(ctx, scope, input)
	if err != nil {
		// A killed solver reports its exit status, not the context error.
		if ctx.Err() != nil {
			return failed(stats.FailureCancelled, err)
		}
		var inv *solver.InvocationError
		if errors.As(err, &inv) && inv.Timeout {
			log.Warn("solver timed out", "error", err)
		} else {
			log.Warn("solving system failed", "error", err)
		}
		return failed(stats.FailureSolver, err)
	}

	key, err := p.parser.Parse(i, arts)
	if err != nil {
		log.Warn("could not read solver output", "error", err)
		return failed(stats.FailureParse, err)
	}
	log.Debug("trial classified", "key", key.String())

	out := stats.Outcome{Trial: i, Key: key}
	if p.opts.Mode == ModeFind && key.Real == p.opts.Target {
		out.System = strings.Join(serialize.Polynomials(sys), "\n")
	}
	return out, nil
}

func (p *Pipeline) reportProgress(done int) {
	if !p.opts.Verbose {
		return
	}
	step := max(1, p.opts.Iters/10)
	if done%step == 0 || done == p.opts.Iters {
		p.logger.Info("percent completed",
			"percent", float64(done)/float64(p.opts.Iters)*100,
			"done", done,
			"iters", p.opts.Iters,
		)
	}
}
