// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package solver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/AleutianAI/pfsample/cmd/pfsample/internal/lifecycle"
	"github.com/AleutianAI/pfsample/cmd/pfsample/internal/serialize"
	"github.com/AleutianAI/pfsample/cmd/pfsample/internal/util"
)

// =============================================================================
// Constants
// =============================================================================

// Kind names a supported solver.
type Kind string

const (
	// KindBertini is the homotopy-continuation solver Bertini.
	KindBertini Kind = "bertini"

	// KindPHC is the polyhedral-homotopy solver PHCpack.
	KindPHC Kind = "phc"
)

// Fixed artifact names. Bertini always writes these into its working
// directory, which is why every trial runs in its own scope directory.
const (
	RealFiniteSolutions = "real_finite_solutions"
	FiniteSolutions     = "finite_solutions"
)

const (
	bertiniInput = "input"
	phcInput     = "eqs.txt"
	rootsFile    = "roots.txt"
	phcDict      = "eqs.dic"
)

// =============================================================================
// Types
// =============================================================================

// Artifacts are the absolute paths a solver run may have produced. Fields a
// solver does not produce are empty. Paths are registered with the scope,
// so they are removed on release whether or not the solver wrote them.
type Artifacts struct {
	Input      string
	Roots      string
	Summary    string
	Finite     string
	Dictionary string
}

// Solver runs one external solver against one serialized system.
type Solver interface {
	// Name returns the solver kind as a string.
	Name() string

	// Dialect is the input text format the solver reads.
	Dialect() serialize.Dialect

	// InputName is the file name the input must be written under.
	InputName() string

	// Solve runs the solver on input, which must live in scope.Dir().
	// A non-nil error is always an *InvocationError.
	Solve(ctx context.Context, scope *lifecycle.Scope, input string) (Artifacts, error)
}

// Config selects and bounds a solver.
type Config struct {
	// Kind selects the solver.
	Kind Kind

	// Path is the solver binary. Empty means ./<kind> in the current
	// directory if present, else <kind> on PATH.
	Path string

	// Timeout bounds each invocation. Zero means util.DefaultSolverTimeout;
	// smaller values are raised to util.MinSolverTimeout.
	Timeout time.Duration

	// SpawnRate caps launches per second across all workers. Zero is
	// unlimited.
	SpawnRate float64
}

// New builds the solver described by cfg.
//
// # Description
//
// Resolves the binary path to an absolute path once. A missing binary is
// not an error here; it surfaces on every trial as an InvocationError.
//
// # Inputs
//
//   - cfg: Solver selection and limits
//   - pm: Process manager; nil means DefaultProcessManager
//   - logger: Logger for invocation debug output; nil discards
//
// # Outputs
//
//   - Solver: *Bertini or *PHC
//   - error: Non-nil for an unknown kind
func New(cfg Config, pm ProcessManager, logger *slog.Logger) (Solver, error) {
	if pm == nil {
		pm = NewDefaultProcessManager()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	r := runner{
		kind:     cfg.Kind,
		path:     ResolvePath(cfg.Path, string(cfg.Kind)),
		pm:       pm,
		timeout:  util.SolverTimeout(cfg.Timeout),
		throttle: NewThrottle(cfg.SpawnRate),
		logger:   logger.With("solver", string(cfg.Kind)),
	}
	switch cfg.Kind {
	case KindBertini:
		return &Bertini{runner: r}, nil
	case KindPHC:
		return &PHC{runner: r}, nil
	default:
		return nil, fmt.Errorf("unknown solver %q (want %q or %q)", cfg.Kind, KindBertini, KindPHC)
	}
}

// ResolvePath returns an absolute path for the solver binary.
//
// Paths containing a separator are made absolute. A bare name is looked up
// first in the current directory, then on PATH. An empty path uses
// fallback as the bare name. If nothing is found the current-directory
// candidate is returned, so the failure is reported when spawning.
func ResolvePath(path, fallback string) string {
	if path == "" {
		path = fallback
	}
	if strings.ContainsRune(path, filepath.Separator) {
		if abs, err := filepath.Abs(path); err == nil {
			return abs
		}
		return path
	}
	local, err := filepath.Abs(path)
	if err == nil {
		if info, statErr := os.Stat(local); statErr == nil && !info.IsDir() {
			return local
		}
	}
	if found, lookErr := exec.LookPath(path); lookErr == nil {
		if abs, absErr := filepath.Abs(found); absErr == nil {
			return abs
		}
		return found
	}
	if err == nil {
		return local
	}
	return path
}

// =============================================================================
// Shared runner
// =============================================================================

type runner struct {
	kind     Kind
	path     string
	pm       ProcessManager
	timeout  time.Duration
	throttle *Throttle
	logger   *slog.Logger
}

// Name returns the solver kind.
func (r *runner) Name() string { return string(r.kind) }

// Path returns the resolved binary path.
func (r *runner) Path() string { return r.path }

// invoke runs the binary once inside scope under the per-call timeout.
func (r *runner) invoke(ctx context.Context, scope *lifecycle.Scope, stage string, args ...string) error {
	fail := func(timedOut bool, err error) error {
		return &InvocationError{Trial: scope.Trial, Solver: string(r.kind), Stage: stage, Timeout: timedOut, Err: err}
	}

	if err := r.throttle.Wait(ctx); err != nil {
		return fail(false, err)
	}

	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	_, err := r.pm.Run(runCtx, scope.Dir(), r.path, args...)
	elapsed := time.Since(start)
	if err != nil {
		timedOut := errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil
		return fail(timedOut, err)
	}
	r.logger.Debug("solver finished", "trial", scope.Trial, "stage", stage, "elapsed", elapsed)
	return nil
}

// =============================================================================
// Bertini
// =============================================================================

// Bertini runs `bertini <input> <roots>` in the scope directory. Its real
// solution count lands in real_finite_solutions and the full solution list
// in finite_solutions.
type Bertini struct {
	runner
}

// Dialect implements Solver.
func (b *Bertini) Dialect() serialize.Dialect { return serialize.Bertini }

// InputName implements Solver.
func (b *Bertini) InputName() string { return bertiniInput }

// Solve implements Solver.
func (b *Bertini) Solve(ctx context.Context, scope *lifecycle.Scope, input string) (Artifacts, error) {
	a := Artifacts{
		Input:   input,
		Roots:   scope.Path(rootsFile),
		Summary: scope.Path(RealFiniteSolutions),
		Finite:  scope.Path(FiniteSolutions),
	}
	err := b.invoke(ctx, scope, "", filepath.Base(input), filepath.Base(a.Roots))
	return a, err
}

// =============================================================================
// PHC
// =============================================================================

// PHC runs two passes: `phc -b <input> <roots>` solves in batch mode, then
// `phc -x <input> <dict>` extracts the roots as a dictionary literal.
type PHC struct {
	runner
}

// Dialect implements Solver.
func (p *PHC) Dialect() serialize.Dialect { return serialize.PolynomialList }

// InputName implements Solver.
func (p *PHC) InputName() string { return phcInput }

// Solve implements Solver.
func (p *PHC) Solve(ctx context.Context, scope *lifecycle.Scope, input string) (Artifacts, error) {
	a := Artifacts{
		Input:      input,
		Roots:      scope.Path(rootsFile),
		Dictionary: scope.Path(phcDict),
	}
	in := filepath.Base(input)
	if err := p.invoke(ctx, scope, "solve", "-b", in, filepath.Base(a.Roots)); err != nil {
		return a, err
	}
	err := p.invoke(ctx, scope, "extract", "-x", in, filepath.Base(a.Dictionary))
	return a, err
}

// Compile-time interface checks
var (
	_ Solver = (*Bertini)(nil)
	_ Solver = (*PHC)(nil)
)
