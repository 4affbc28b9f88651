// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics contains the sampler's instruments. All names use the "pfsample_"
// prefix.
//
// Thread Safety: Safe for concurrent use after creation. A nil *Metrics
// records nothing.
type Metrics struct {
	// TrialsTotal counts finished trials by mode and outcome.
	TrialsTotal metric.Int64Counter

	// TrialDuration records wall-clock time per trial in seconds.
	TrialDuration metric.Float64Histogram

	// TrialsInFlight tracks trials currently running.
	TrialsInFlight metric.Int64UpDownCounter

	// ParityAnomalies counts odd real-solution counts.
	ParityAnomalies metric.Int64Counter

	// InstancesFound counts find-mode matches.
	InstancesFound metric.Int64Counter

	// CleanupFailures counts run artifacts that could not be removed.
	CleanupFailures metric.Int64Counter
}

// NewMetrics registers every instrument with meter.
//
// Example:
//
//	m, err := telemetry.NewMetrics(otel.Meter("pfsample"))
//	if err != nil {
//	    return fmt.Errorf("create metrics: %w", err)
//	}
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.TrialsTotal, err = meter.Int64Counter(
		"pfsample_trials_total",
		metric.WithDescription("Total finished trials"),
		metric.WithUnit("{trial}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create trials_total: %w", err)
	}

	m.TrialDuration, err = meter.Float64Histogram(
		"pfsample_trial_duration_seconds",
		metric.WithDescription("Trial duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300, 600),
	)
	if err != nil {
		return nil, fmt.Errorf("create trial_duration: %w", err)
	}

	m.TrialsInFlight, err = meter.Int64UpDownCounter(
		"pfsample_trials_in_flight",
		metric.WithDescription("Trials currently running"),
		metric.WithUnit("{trial}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create trials_in_flight: %w", err)
	}

	m.ParityAnomalies, err = meter.Int64Counter(
		"pfsample_parity_anomalies_total",
		metric.WithDescription("Odd real-solution counts reported by the solver"),
	)
	if err != nil {
		return nil, fmt.Errorf("create parity_anomalies_total: %w", err)
	}

	m.InstancesFound, err = meter.Int64Counter(
		"pfsample_instances_found_total",
		metric.WithDescription("Systems matching the find target"),
	)
	if err != nil {
		return nil, fmt.Errorf("create instances_found_total: %w", err)
	}

	m.CleanupFailures, err = meter.Int64Counter(
		"pfsample_cleanup_failures_total",
		metric.WithDescription("Run artifacts that could not be removed"),
	)
	if err != nil {
		return nil, fmt.Errorf("create cleanup_failures_total: %w", err)
	}

	return m, nil
}

// TrialStarted marks a trial as running.
func (m *Metrics) TrialStarted(ctx context.Context) {
	if m == nil {
		return
	}
	m.TrialsInFlight.Add(ctx, 1)
}

// TrialFinished records a finished trial. outcome is "ok" or a failure kind.
func (m *Metrics) TrialFinished(ctx context.Context, mode, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("mode", mode),
		attribute.String("outcome", outcome),
	)
	m.TrialsInFlight.Add(ctx, -1)
	m.TrialsTotal.Add(ctx, 1, attrs)
	m.TrialDuration.Record(ctx, d.Seconds(), attrs)
}

// Parity records an odd real-solution count.
func (m *Metrics) Parity(ctx context.Context, mode string) {
	if m == nil {
		return
	}
	m.ParityAnomalies.Add(ctx, 1, metric.WithAttributes(attribute.String("mode", mode)))
}

// Found records a find-mode match.
func (m *Metrics) Found(ctx context.Context) {
	if m == nil {
		return
	}
	m.InstancesFound.Add(ctx, 1)
}

// Cleanup records n artifacts left behind by a released scope.
func (m *Metrics) Cleanup(ctx context.Context, n int) {
	if m == nil || n == 0 {
		return
	}
	m.CleanupFailures.Add(ctx, int64(n))
}
