// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

/*
Package solver runs the external polynomial-system solvers.

Each solver is an opaque binary that reads an input file and leaves result
artifacts on disk. The package only guarantees that the subprocess ran to
completion inside the trial's scope directory, or reports why it did not;
reading the artifacts is the job of package results.

All process execution goes through ProcessManager so that tests can replace
the operating system with MockProcessManager.
*/
package solver

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/AleutianAI/pfsample/cmd/pfsample/internal/util"
)

// -----------------------------------------------------------------------------
// Interface Definition
// -----------------------------------------------------------------------------

// ProcessManager handles external process execution.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use from multiple goroutines.
type ProcessManager interface {
	// Run executes a command synchronously in dir and returns its stdout.
	//
	// # Description
	//
	// Starts name with args, using dir as the working directory, and waits
	// for it to exit. The process is killed when ctx is done.
	//
	// # Inputs
	//
	//   - ctx: Context for cancellation/timeout
	//   - dir: Working directory; empty means the caller's
	//   - name: The executable path
	//   - args: Command arguments (variadic)
	//
	// # Outputs
	//
	//   - []byte: Captured stdout
	//   - error: *util.CommandError if the process failed to start or
	//     exited non-zero
	//
	// # Examples
	//
	//   out, err := pm.Run(ctx, scope.Dir(), "/opt/bin/bertini", "input", "roots")
	Run(ctx context.Context, dir, name string, args ...string) ([]byte, error)
}

// -----------------------------------------------------------------------------
// Implementation
// -----------------------------------------------------------------------------

// DefaultProcessManager implements ProcessManager using os/exec.
type DefaultProcessManager struct{}

// NewDefaultProcessManager creates a new DefaultProcessManager.
func NewDefaultProcessManager() *DefaultProcessManager {
	return &DefaultProcessManager{}
}

// Run executes a command synchronously and returns its output.
func (pm *DefaultProcessManager) Run(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	// Solvers may fork helpers that hold the pipes open after a kill.
	cmd.WaitDelay = 2 * time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		return stdout.Bytes(), util.NewCommandError(commandLine(name, args), exitCode, stderr.String(), err)
	}
	return stdout.Bytes(), nil
}

func commandLine(name string, args []string) string {
	return strings.Join(append([]string{name}, args...), " ")
}

// -----------------------------------------------------------------------------
// Mock Implementation for Testing
// -----------------------------------------------------------------------------

// MockProcessManager is a test double for ProcessManager.
//
// If RunFunc is nil, Run succeeds with no output.
//
// # Examples
//
//	mock := &MockProcessManager{
//	    RunFunc: func(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
//	        return nil, os.WriteFile(filepath.Join(dir, "real_finite_solutions"), []byte("2\n"), 0640)
//	    },
//	}
type MockProcessManager struct {
	// RunFunc is called when Run is invoked.
	RunFunc func(ctx context.Context, dir, name string, args ...string) ([]byte, error)

	// Calls records all invocations for verification.
	Calls []ProcessManagerCall

	mu sync.Mutex
}

// ProcessManagerCall records a single invocation.
type ProcessManagerCall struct {
	Dir  string
	Name string
	Args []string
}

// Run records the call and delegates to RunFunc.
func (m *MockProcessManager) Run(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, ProcessManagerCall{Dir: dir, Name: name, Args: args})
	fn := m.RunFunc
	m.mu.Unlock()
	if fn == nil {
		return nil, nil
	}
	return fn(ctx, dir, name, args...)
}

// GetCalls returns a copy of all recorded calls.
func (m *MockProcessManager) GetCalls() []ProcessManagerCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ProcessManagerCall, len(m.Calls))
	copy(out, m.Calls)
	return out
}

// Reset clears all recorded calls.
func (m *MockProcessManager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = nil
}

// Compile-time interface checks
var (
	_ ProcessManager = (*DefaultProcessManager)(nil)
	_ ProcessManager = (*MockProcessManager)(nil)
)
