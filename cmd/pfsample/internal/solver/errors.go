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
	"errors"
	"fmt"
)

// ErrInvocationFailed is matched by every InvocationError.
var ErrInvocationFailed = errors.New("solver invocation failed")

// InvocationError reports that a solver subprocess could not be spawned,
// exited non-zero, or ran past its timeout. It is recoverable: the trial
// is skipped and the loop continues.
type InvocationError struct {
	// Trial is the trial index.
	Trial int

	// Solver is the solver name ("bertini", "phc").
	Solver string

	// Stage distinguishes the two phc passes ("solve", "extract").
	Stage string

	// Timeout is set when the invocation was killed by its deadline.
	Timeout bool

	// Err is the underlying error, usually a *util.CommandError.
	Err error
}

func (e *InvocationError) Error() string {
	what := e.Solver
	if e.Stage != "" {
		what += " " + e.Stage
	}
	if e.Timeout {
		return fmt.Sprintf("trial %d: %s timed out: %v", e.Trial, what, e.Err)
	}
	return fmt.Sprintf("trial %d: %s failed: %v", e.Trial, what, e.Err)
}

func (e *InvocationError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrInvocationFailed) match.
func (e *InvocationError) Is(target error) bool {
	return target == ErrInvocationFailed
}
