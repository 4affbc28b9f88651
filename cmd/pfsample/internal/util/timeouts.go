// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package util holds small helpers shared by the sampler packages.
package util

import "time"

// =============================================================================
// Constants
// =============================================================================

// Timeout constants for solver subprocesses.
//
// A misconfigured zero timeout would let a hung solver block its worker
// forever, so every configured value is raised to the minimum.
const (
	// MinSolverTimeout is the absolute minimum for one solver invocation.
	MinSolverTimeout = 5 * time.Second

	// DefaultSolverTimeout bounds one solver invocation when unset.
	DefaultSolverTimeout = 10 * time.Minute

	// MinShutdownTimeout is the minimum grace period for the status server.
	MinShutdownTimeout = 1 * time.Second

	// DefaultShutdownTimeout is the grace period used when unset.
	DefaultShutdownTimeout = 5 * time.Second
)

// EnforceMinTimeout returns timeout, or minimum if timeout is smaller.
//
// # Examples
//
//	EnforceMinTimeout(0, MinSolverTimeout)               // 5s
//	EnforceMinTimeout(time.Minute, MinSolverTimeout)     // 1m
func EnforceMinTimeout(timeout, minimum time.Duration) time.Duration {
	if timeout < minimum {
		return minimum
	}
	return timeout
}

// SolverTimeout returns the effective solver timeout for a configured value.
// Zero means the default.
func SolverTimeout(configured time.Duration) time.Duration {
	if configured == 0 {
		return DefaultSolverTimeout
	}
	return EnforceMinTimeout(configured, MinSolverTimeout)
}
