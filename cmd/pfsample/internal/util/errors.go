// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package util

import (
	"fmt"
	"strings"
)

// =============================================================================
// Command Error Type
// =============================================================================

// CommandError wraps an external command failure with stderr context.
//
// # Description
//
// Carries the command line, exit code and trimmed stderr of a failed
// process. ExitCode is -1 when the process never started or was killed.
//
// # Example
//
//	err := NewCommandError("bertini input roots", 1, "parse error", origErr)
//	fmt.Println(err.Error()) // "bertini input roots (exit 1): parse error"
type CommandError struct {
	// Command is the command line that was executed.
	Command string

	// ExitCode is the process exit code (-1 if unknown).
	ExitCode int

	// Stderr contains the standard error output (trimmed).
	Stderr string

	// Wrapped is the underlying error (may be nil).
	Wrapped error
}

// Error returns a formatted error message. Stderr takes priority over the
// wrapped error.
func (e *CommandError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("%s (exit %d): %s", e.Command, e.ExitCode, e.Stderr)
	}
	if e.Wrapped != nil {
		return fmt.Sprintf("%s (exit %d): %v", e.Command, e.ExitCode, e.Wrapped)
	}
	return fmt.Sprintf("%s (exit %d)", e.Command, e.ExitCode)
}

// Unwrap returns the underlying error.
func (e *CommandError) Unwrap() error {
	return e.Wrapped
}

// HasStderr reports whether stderr output was captured.
func (e *CommandError) HasStderr() bool {
	return e.Stderr != ""
}

var _ error = (*CommandError)(nil)

// NewCommandError creates a CommandError. Stderr is trimmed and capped at
// maxStderr bytes so a chatty solver cannot bloat the logs.
func NewCommandError(cmd string, exitCode int, stderr string, wrapped error) *CommandError {
	stderr = strings.TrimSpace(stderr)
	if len(stderr) > maxStderr {
		stderr = stderr[:maxStderr] + "..."
	}
	return &CommandError{
		Command:  cmd,
		ExitCode: exitCode,
		Stderr:   stderr,
		Wrapped:  wrapped,
	}
}

const maxStderr = 2048
