// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package history keeps a record of finished runs in an embedded BadgerDB.
//
// Runs are keyed by graph id so that runs over the same topology can be
// merged into one distribution later.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/pfsample/cmd/pfsample/internal/stats"
	"github.com/AleutianAI/pfsample/pkg/validation"
)

// ErrNotFound is returned by Get for an unknown run.
var ErrNotFound = errors.New("run not found")

const keyPrefix = "run/"

// Config configures a Store.
type Config struct {
	// Dir holds the database files. Ignored when InMemory is set.
	Dir string

	// InMemory keeps everything in RAM, for tests.
	InMemory bool

	// Logger receives BadgerDB's own log output. Nil disables it.
	Logger *slog.Logger
}

// Run is one stored run.
type Run struct {
	GraphID      string         `json:"graph_id"`
	RunID        string         `json:"run_id"`
	Mode         string         `json:"mode"`
	Buses        int            `json:"buses"`
	Edges        string         `json:"edges,omitempty"`
	Iters        int            `json:"iters"`
	Seed         uint64         `json:"seed"`
	Solver       string         `json:"solver"`
	Distribution string         `json:"distribution"`
	Mean         float64        `json:"mean"`
	Variance     float64        `json:"variance"`
	StartedAt    time.Time      `json:"started_at"`
	Elapsed      time.Duration  `json:"elapsed"`
	Entries      []Entry        `json:"entries"`
	Failures     map[string]int `json:"failures,omitempty"`
	ReportPath   string         `json:"report_path,omitempty"`
}

// Entry is one stored table row. Keys use the report notation.
type Entry struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// EntriesOf converts a table into stored rows, sorted.
func EntriesOf(t stats.Table) []Entry {
	sorted := t.Sorted()
	out := make([]Entry, len(sorted))
	for i, e := range sorted {
		out[i] = Entry{Key: e.Key.String(), Count: e.Count}
	}
	return out
}

// Table rebuilds the run's frequency table.
func (r Run) Table() (stats.Table, error) {
	t := make(stats.Table, len(r.Entries))
	for _, e := range r.Entries {
		k, err := stats.ParseKey(e.Key)
		if err != nil {
			return nil, fmt.Errorf("run %s: %w", r.RunID, err)
		}
		t[k] += e.Count
	}
	return t, nil
}

// Store persists runs.
//
// # Thread Safety
//
// Safe for concurrent use.
type Store struct {
	db       *badger.DB
	inMemory bool
}

// badgerLogger adapts slog to badger.Logger.
type badgerLogger struct {
	logger *slog.Logger
}

func (l badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l badgerLogger) Infof(format string, args ...any) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

// Open opens or creates the store.
//
// # Outputs
//
//   - *Store: Open store. Caller must Close it.
//   - error: Non-nil if Dir is empty for a persistent store or the database
//     cannot be opened
func Open(cfg Config) (*Store, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Dir == "" {
			return nil, errors.New("history dir is required")
		}
		if err := os.MkdirAll(cfg.Dir, 0750); err != nil {
			return nil, fmt.Errorf("create history directory %s: %w", cfg.Dir, err)
		}
		opts = badger.DefaultOptions(cfg.Dir).WithSyncWrites(true)
	}
	opts = opts.WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	return &Store{db: db, inMemory: cfg.InMemory}, nil
}

// Close compacts the value log once, best effort, and closes the database.
func (s *Store) Close() error {
	if !s.inMemory {
		_ = s.db.RunValueLogGC(0.5)
	}
	return s.db.Close()
}

func runKey(graphID, runID string) []byte {
	return []byte(keyPrefix + graphID + "/" + runID)
}

func graphPrefix(graphID string) []byte {
	if graphID == "" {
		return []byte(keyPrefix)
	}
	return []byte(keyPrefix + graphID + "/")
}

// Put stores r, replacing any run with the same graph and run ids.
func (s *Store) Put(ctx context.Context, r Run) error {
	if r.GraphID == "" || r.RunID == "" {
		return errors.New("graph id and run id are required")
	}
	if err := validation.ValidateGraphID(r.GraphID); err != nil {
		return err
	}
	if strings.Contains(r.RunID, "/") {
		return fmt.Errorf("run id must not contain '/': %q", r.RunID)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode run %s: %w", r.RunID, err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(runKey(r.GraphID, r.RunID), data)
	})
}

// Get returns one run.
func (s *Store) Get(ctx context.Context, graphID, runID string) (Run, error) {
	if err := ctx.Err(); err != nil {
		return Run{}, err
	}
	var r Run
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(runKey(graphID, runID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%s/%s: %w", graphID, runID, ErrNotFound)
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &r)
		})
	})
	return r, err
}

// List returns the runs for graphID, or every run when graphID is empty,
// ordered by graph id then run id.
func (s *Store) List(ctx context.Context, graphID string) ([]Run, error) {
	var runs []Run
	prefix := graphPrefix(graphID)
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{PrefetchValues: true, PrefetchSize: 16, Prefix: prefix})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			err := item.Value(func(val []byte) error {
				var r Run
				if err := json.Unmarshal(val, &r); err != nil {
					return fmt.Errorf("decode %s: %w", item.Key(), err)
				}
				runs = append(runs, r)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return runs, err
}

// Delete removes one run. Deleting an unknown run is not an error.
func (s *Store) Delete(ctx context.Context, graphID, runID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(runKey(graphID, runID))
	})
}

// IncompatibleRunsError is returned by Merge when two runs under one graph
// id were sampled with different settings.
type IncompatibleRunsError struct {
	GraphID string
	RunID   string
	Other   string
	Field   string
	Want    any
	Got     any
}

func (e *IncompatibleRunsError) Error() string {
	return fmt.Sprintf("cannot merge runs for graph %s: run %s has %s %v, run %s has %v",
		e.GraphID, e.Other, e.Field, e.Got, e.RunID, e.Want)
}

// compatible returns the first sampling setting on which a and b differ.
func compatible(a, b Run) (field string, want, got any, ok bool) {
	switch {
	case a.Buses != b.Buses:
		return "buses", a.Buses, b.Buses, false
	case a.Edges != b.Edges:
		return "edges", a.Edges, b.Edges, false
	case a.Solver != b.Solver:
		return "solver", a.Solver, b.Solver, false
	case a.Distribution != b.Distribution:
		return "distribution", a.Distribution, b.Distribution, false
	case a.Mean != b.Mean:
		return "mean", a.Mean, b.Mean, false
	case a.Variance != b.Variance:
		return "variance", a.Variance, b.Variance, false
	}
	return "", nil, nil, true
}

// pairKeyed reports whether t uses (real, secondary) keys. Empty tables
// report ok=false.
func pairKeyed(t stats.Table) (pair, ok bool) {
	for k := range t {
		return k.Pair, true
	}
	return false, false
}

// Merge sums the tables of every run for graphID in the given mode. Runs
// must share their sampling settings; the first mismatch is returned as
// an *IncompatibleRunsError and nothing is merged.
//
// # Outputs
//
//   - stats.Table: Combined table
//   - []Run: The runs that contributed
//   - error: Non-nil if a stored run cannot be read or runs are incompatible
func (s *Store) Merge(ctx context.Context, graphID, mode string) (stats.Table, []Run, error) {
	if graphID == "" {
		return nil, nil, errors.New("graph id is required")
	}
	runs, err := s.List(ctx, graphID)
	if err != nil {
		return nil, nil, err
	}
	var (
		tables   []stats.Table
		used     []Run
		pair     bool
		pairFrom string
	)
	for _, r := range runs {
		if mode != "" && r.Mode != mode {
			continue
		}
		t, err := r.Table()
		if err != nil {
			return nil, nil, err
		}
		if len(used) > 0 {
			if field, want, got, ok := compatible(used[0], r); !ok {
				return nil, nil, &IncompatibleRunsError{
					GraphID: graphID, RunID: used[0].RunID, Other: r.RunID,
					Field: field, Want: want, Got: got,
				}
			}
		}
		if p, ok := pairKeyed(t); ok {
			if pairFrom == "" {
				pair, pairFrom = p, r.RunID
			} else if p != pair {
				return nil, nil, &IncompatibleRunsError{
					GraphID: graphID, RunID: pairFrom, Other: r.RunID,
					Field: "paired keys", Want: pair, Got: p,
				}
			}
		}
		tables = append(tables, t)
		used = append(used, r)
	}
	return stats.Merge(tables...), used, nil
}
