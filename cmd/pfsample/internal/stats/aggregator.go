// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package stats

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"

	"gonum.org/v1/gonum/stat"
)

// ErrDuplicateTrial is returned when a trial is recorded twice.
var ErrDuplicateTrial = errors.New("trial already recorded")

// FailureKind classifies a trial that produced no table entry.
type FailureKind string

const (
	// FailureSolver is a spawn, exit or timeout failure of the solver.
	FailureSolver FailureKind = "solver"

	// FailureParse is a missing or malformed result artifact.
	FailureParse FailureKind = "parse"

	// FailureParity is an odd real count dropped by policy.
	FailureParity FailureKind = "parity"

	// FailureCancelled is a trial cut short or never started because the
	// run was cancelled.
	FailureCancelled FailureKind = "cancelled"

	// FailureInternal is any other per-trial error, such as a scope that
	// could not be created.
	FailureInternal FailureKind = "internal"
)

// FailureKinds lists every kind in report order.
var FailureKinds = []FailureKind{FailureSolver, FailureParse, FailureParity, FailureCancelled, FailureInternal}

// Outcome is the result of one trial.
type Outcome struct {
	// Trial is the trial index.
	Trial int

	// Key is the classified result. Ignored when Failure is set.
	Key Key

	// Failure is empty on success.
	Failure FailureKind

	// Err is the cause of a failure, for logging.
	Err error

	// System is the serialized equation text, emitted in find mode.
	System string
}

// Recorded describes what Record did with an outcome.
type Recorded struct {
	// Parity is set when the real count was odd.
	Parity bool

	// Found is set when the outcome matched the find target.
	Found bool

	// Instance is the running found-instance number when Found is set.
	Instance int

	// Failure is the kind the outcome was counted under, if any.
	Failure FailureKind
}

// Options configures an Aggregator.
type Options struct {
	// RecordOdd keeps odd real counts in the table. When false they are
	// counted as FailureParity instead.
	RecordOdd bool

	// Target enables find mode when non-nil.
	Target *int

	// FindSink receives "Instance k:" blocks in find mode. Nil discards.
	FindSink io.Writer

	// Logger receives parity warnings. Nil discards.
	Logger *slog.Logger
}

// Aggregator accumulates outcomes.
//
// # Thread Safety
//
// Record and Snapshot are safe for concurrent use; Record calls are
// serialized internally.
type Aggregator struct {
	opts Options

	mu       sync.Mutex
	table    Table
	failures map[FailureKind]int
	seen     map[int]struct{}
	parity   int
	found    int
}

// NewAggregator creates an empty Aggregator.
func NewAggregator(opts Options) *Aggregator {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.FindSink == nil {
		opts.FindSink = io.Discard
	}
	return &Aggregator{
		opts:     opts,
		table:    make(Table),
		failures: make(map[FailureKind]int),
		seen:     make(map[int]struct{}),
	}
}

// Record adds one trial outcome.
//
// # Description
//
// Exactly one outcome is accepted per trial index; a second one returns
// ErrDuplicateTrial and changes nothing. Failures go to the per-kind
// counters. Successes go to the table unless the real count is odd and
// odd counts are not recorded. An odd count always logs a parity warning.
//
// # Outputs
//
//   - Recorded: What happened to the outcome
//   - error: ErrDuplicateTrial, or a find-sink write error
func (a *Aggregator) Record(o Outcome) (Recorded, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, dup := a.seen[o.Trial]; dup {
		return Recorded{}, fmt.Errorf("trial %d: %w", o.Trial, ErrDuplicateTrial)
	}
	a.seen[o.Trial] = struct{}{}

	if o.Failure != "" {
		a.failures[o.Failure]++
		return Recorded{Failure: o.Failure}, nil
	}

	var rec Recorded
	if o.Key.Real%2 != 0 {
		rec.Parity = true
		a.parity++
		a.opts.Logger.Warn("parity anomaly: odd real solution count",
			"trial", o.Trial, "real", o.Key.Real, "recorded", a.opts.RecordOdd)
		if !a.opts.RecordOdd {
			a.failures[FailureParity]++
			rec.Failure = FailureParity
			return rec, nil
		}
	}
	a.table[o.Key]++

	if a.opts.Target != nil && o.Key.Real == *a.opts.Target {
		a.found++
		rec.Found = true
		rec.Instance = a.found
		if _, err := fmt.Fprintf(a.opts.FindSink, "Instance %d:\n%s\n\n", a.found, o.System); err != nil {
			return rec, fmt.Errorf("write instance %d: %w", a.found, err)
		}
	}
	return rec, nil
}

// Seen reports whether trial already has an outcome.
func (a *Aggregator) Seen(trial int) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.seen[trial]
	return ok
}

// Summary is a point-in-time view of an Aggregator.
type Summary struct {
	Entries         []Entry
	Failures        map[FailureKind]int
	Successes       int
	FailureTotal    int
	ParityAnomalies int
	Found           int
	FindMode        bool

	// Mean and StdDev describe the recorded real counts.
	Mean   float64
	StdDev float64
}

// Total is successes plus failures, which equals the number of trials
// recorded.
func (s Summary) Total() int { return s.Successes + s.FailureTotal }

// Table rebuilds the frequency table from the entries.
func (s Summary) Table() Table {
	t := make(Table, len(s.Entries))
	for _, e := range s.Entries {
		t[e.Key] = e.Count
	}
	return t
}

// Snapshot returns the current totals.
func (a *Aggregator) Snapshot() Summary {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := Summary{
		Entries:         a.table.Sorted(),
		Failures:        make(map[FailureKind]int, len(a.failures)),
		Successes:       a.table.Sum(),
		ParityAnomalies: a.parity,
		Found:           a.found,
		FindMode:        a.opts.Target != nil,
	}
	for k, c := range a.failures {
		s.Failures[k] = c
		s.FailureTotal += c
	}
	s.Mean, s.StdDev = describe(s.Entries)
	return s
}

// describe returns the weighted mean and sample standard deviation of the
// real counts.
func describe(entries []Entry) (mean, std float64) {
	if len(entries) == 0 {
		return 0, 0
	}
	xs := make([]float64, len(entries))
	ws := make([]float64, len(entries))
	total := 0.0
	for i, e := range entries {
		xs[i] = float64(e.Key.Real)
		ws[i] = float64(e.Count)
		total += ws[i]
	}
	if total < 2 {
		return stat.Mean(xs, ws), 0
	}
	mean, std = stat.MeanStdDev(xs, ws)
	if math.IsNaN(std) {
		std = 0
	}
	return mean, std
}
