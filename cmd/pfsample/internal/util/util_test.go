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
	"errors"
	"strings"
	"testing"
	"time"
)

func TestEnforceMinTimeout(t *testing.T) {
	tests := []struct {
		name     string
		timeout  time.Duration
		minimum  time.Duration
		expected time.Duration
	}{
		{"zero raised", 0, MinSolverTimeout, MinSolverTimeout},
		{"negative raised", -time.Second, MinSolverTimeout, MinSolverTimeout},
		{"above kept", time.Minute, MinSolverTimeout, time.Minute},
		{"equal kept", MinSolverTimeout, MinSolverTimeout, MinSolverTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EnforceMinTimeout(tt.timeout, tt.minimum); got != tt.expected {
				t.Errorf("EnforceMinTimeout(%v, %v) = %v, want %v", tt.timeout, tt.minimum, got, tt.expected)
			}
		})
	}
}

func TestSolverTimeout(t *testing.T) {
	if got := SolverTimeout(0); got != DefaultSolverTimeout {
		t.Errorf("SolverTimeout(0) = %v, want %v", got, DefaultSolverTimeout)
	}
	if got := SolverTimeout(time.Second); got != MinSolverTimeout {
		t.Errorf("SolverTimeout(1s) = %v, want %v", got, MinSolverTimeout)
	}
	if got := SolverTimeout(time.Hour); got != time.Hour {
		t.Errorf("SolverTimeout(1h) = %v, want 1h", got)
	}
}

func TestCommandError(t *testing.T) {
	base := errors.New("exit status 3")

	err := NewCommandError("phc -b in out", 3, "  bad input\n", base)
	if err.Error() != "phc -b in out (exit 3): bad input" {
		t.Errorf("unexpected message %q", err.Error())
	}
	if !errors.Is(err, base) {
		t.Error("expected wrapped error to be reachable")
	}
	if !err.HasStderr() {
		t.Error("expected stderr")
	}

	noStderr := NewCommandError("bertini", -1, "", base)
	if noStderr.Error() != "bertini (exit -1): exit status 3" {
		t.Errorf("unexpected message %q", noStderr.Error())
	}

	long := NewCommandError("x", 1, strings.Repeat("a", 5000), nil)
	if len(long.Stderr) != maxStderr+3 {
		t.Errorf("stderr not capped: %d", len(long.Stderr))
	}
}
