// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package lifecycle owns the temporary files of each solver run.
//
// Every trial acquires a Scope keyed by (run id, trial index). The scope is
// a private directory under the work root; all solver inputs and outputs
// for the trial live inside it, so trials never collide even when several
// runs share a working directory or trials execute in parallel.
//
// Release removes every acquired path and the directory itself. Removal
// failures are logged at warn level and never returned to the trial loop.
package lifecycle

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/google/uuid"
)

// NewRunID returns a short random identifier for one invocation of the
// sampler. It doubles as the seed component of every scope name.
func NewRunID() string {
	return uuid.NewString()[:8]
}

// =============================================================================
// Manager
// =============================================================================

// Manager hands out scopes under a common root.
type Manager struct {
	root   string
	runID  string
	logger *slog.Logger
}

// NewManager returns a Manager rooted at root.
//
// The root directory is created if missing. A nil logger discards warnings.
func NewManager(root, runID string, logger *slog.Logger) (*Manager, error) {
	if runID == "" {
		return nil, errors.New("run id is required")
	}
	if root == "" {
		root = "."
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve work dir %s: %w", root, err)
	}
	if err := os.MkdirAll(abs, 0750); err != nil {
		return nil, fmt.Errorf("create work dir %s: %w", abs, err)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Manager{root: abs, runID: runID, logger: logger}, nil
}

// RunID returns the identifier shared by all scopes of this manager.
func (m *Manager) RunID() string { return m.runID }

// Acquire creates the scope for one trial.
//
// # Description
//
// Creates <root>/pfs_<runID>_<trial>. Acquiring the same trial twice on one
// manager fails, since the directory already exists.
//
// # Outputs
//
//   - *Scope: The trial's scope; the caller must call Release
//   - error: Non-nil if the directory cannot be created
func (m *Manager) Acquire(trial int) (*Scope, error) {
	dir := filepath.Join(m.root, "pfs_"+m.runID+"_"+strconv.Itoa(trial))
	if err := os.Mkdir(dir, 0750); err != nil {
		return nil, fmt.Errorf("acquire scope for trial %d: %w", trial, err)
	}
	return &Scope{
		Trial:  trial,
		RunID:  m.runID,
		dir:    dir,
		paths:  make(map[string]struct{}),
		logger: m.logger.With("trial", trial, "run_id", m.runID),
	}, nil
}

// =============================================================================
// Scope
// =============================================================================

// Scope is the exclusive file namespace of one trial.
//
// # Thread Safety
//
// Path and Release may be called from different goroutines, but a scope is
// normally owned by the single worker running its trial.
type Scope struct {
	// Trial is the trial index this scope belongs to.
	Trial int

	// RunID is the owning manager's run identifier.
	RunID string

	dir    string
	logger *slog.Logger

	mu       sync.Mutex
	paths    map[string]struct{}
	released bool
}

// Dir returns the scope directory. Solvers run with it as working directory.
func (s *Scope) Dir() string { return s.dir }

// Path registers name inside the scope and returns its absolute path.
func (s *Scope) Path(name string) string {
	p := filepath.Join(s.dir, filepath.Base(name))
	s.mu.Lock()
	s.paths[p] = struct{}{}
	s.mu.Unlock()
	return p
}

// Release deletes every registered path, then the directory with anything
// the solver left behind. It returns the number of paths that could not be
// removed; each failure is logged. Calling Release twice is a no-op.
func (s *Scope) Release() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return 0
	}
	s.released = true

	failed := 0
	for p := range s.paths {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("could not remove run artifact", "path", p, "error", err)
			failed++
		}
	}
	if err := os.RemoveAll(s.dir); err != nil {
		s.logger.Warn("could not remove run directory", "path", s.dir, "error", err)
		failed++
	}
	return failed
}
