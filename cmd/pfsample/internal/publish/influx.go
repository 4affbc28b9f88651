// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package publish

import (
	"context"
	"fmt"
	"strconv"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/AleutianAI/pfsample/cmd/pfsample/internal/history"
)

// Measurement names written by InfluxSink.
const (
	MeasurementRun          = "pfsample_run"
	MeasurementDistribution = "pfsample_distribution"
)

// InfluxConfig addresses an InfluxDB v2 bucket.
type InfluxConfig struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

// InfluxSink writes run summaries as points.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
}

// NewInfluxSink creates a blocking writer for cfg.
func NewInfluxSink(cfg InfluxConfig) (*InfluxSink, error) {
	if cfg.URL == "" || cfg.Org == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("influx url, org and bucket are required")
	}
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
	}, nil
}

// Points converts a run into one summary point plus one point per table
// row, all stamped with the run's start time.
func Points(r history.Run) []*write.Point {
	at := r.StartedAt
	successes, failures := 0, 0
	for _, e := range r.Entries {
		successes += e.Count
	}
	for _, c := range r.Failures {
		failures += c
	}

	summary := influxdb2.NewPointWithMeasurement(MeasurementRun).
		AddTag("graph_id", r.GraphID).
		AddTag("mode", r.Mode).
		AddTag("solver", r.Solver).
		AddTag("run_id", r.RunID).
		AddField("buses", r.Buses).
		AddField("iters", r.Iters).
		AddField("successes", successes).
		AddField("failures", failures).
		AddField("elapsed_seconds", r.Elapsed.Seconds()).
		AddField("seed", strconv.FormatUint(r.Seed, 10)).
		SetTime(at)
	for kind, c := range r.Failures {
		summary.AddField("failures_"+kind, c)
	}

	points := []*write.Point{summary}
	for _, e := range r.Entries {
		points = append(points, influxdb2.NewPointWithMeasurement(MeasurementDistribution).
			AddTag("graph_id", r.GraphID).
			AddTag("mode", r.Mode).
			AddTag("run_id", r.RunID).
			AddTag("key", e.Key).
			AddField("count", e.Count).
			SetTime(at))
	}
	return points
}

// WriteRun writes the points for r.
func (s *InfluxSink) WriteRun(ctx context.Context, r history.Run) error {
	if err := s.writeAPI.WritePoint(ctx, Points(r)...); err != nil {
		return fmt.Errorf("write run %s to influx: %w", r.RunID, err)
	}
	return nil
}

// Close releases the client.
func (s *InfluxSink) Close() {
	s.client.Close()
}
