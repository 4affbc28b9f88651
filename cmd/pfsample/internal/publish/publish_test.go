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
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/pfsample/cmd/pfsample/internal/history"
	"github.com/AleutianAI/pfsample/cmd/pfsample/internal/stats"
)

// =============================================================================
// GCS
// =============================================================================

type memObject struct {
	bytes.Buffer
	contentType string
	closed      bool
}

func (m *memObject) Close() error { m.closed = true; return nil }

type memStore struct {
	mu      sync.Mutex
	objects map[string]*memObject
	closed  bool
}

func (s *memStore) NewWriter(_ context.Context, object, contentType string) io.WriteCloser {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.objects == nil {
		s.objects = make(map[string]*memObject)
	}
	o := &memObject{contentType: contentType}
	s.objects[object] = o
	return o
}

func (s *memStore) Close() error { s.closed = true; return nil }

func TestGCSUploader_Upload(t *testing.T) {
	dir := t.TempDir()
	report := filepath.Join(dir, "real_dist_K3_Mar-01-2026_12:00:00")
	image := report + ".png"
	require.NoError(t, os.WriteFile(report, []byte("2 : 5\n"), 0644))
	require.NoError(t, os.WriteFile(image, []byte("png"), 0644))

	store := &memStore{}
	u := newGCSUploader(store, "runs", "pfsample", nil)
	urls, err := u.Upload(context.Background(), "K3", report, image)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"gs://runs/pfsample/K3/real_dist_K3_Mar-01-2026_12:00:00",
		"gs://runs/pfsample/K3/real_dist_K3_Mar-01-2026_12:00:00.png",
	}, urls)

	obj := store.objects["pfsample/K3/real_dist_K3_Mar-01-2026_12:00:00"]
	require.NotNil(t, obj)
	assert.Equal(t, "2 : 5\n", obj.String())
	assert.True(t, obj.closed)
	assert.Contains(t, obj.contentType, "text/plain")
	assert.Equal(t, "image/png", store.objects["pfsample/K3/real_dist_K3_Mar-01-2026_12:00:00.png"].contentType)

	require.NoError(t, u.Close())
	assert.True(t, store.closed)
}

func TestGCSUploader_MissingFile(t *testing.T) {
	u := newGCSUploader(&memStore{}, "runs", "", nil)
	_, err := u.Upload(context.Background(), "K3", filepath.Join(t.TempDir(), "absent"))
	assert.ErrorContains(t, err, "failed to open the local file")
}

func TestNewGCSUploader_Errors(t *testing.T) {
	ctx := context.Background()
	_, err := NewGCSUploader(ctx, GCSConfig{}, nil)
	assert.Error(t, err)

	_, err = NewGCSUploader(ctx, GCSConfig{Bucket: "b", CredentialsFile: "/nonexistent/key.json"}, nil)
	assert.ErrorContains(t, err, "credentials file not found")
}

// =============================================================================
// Influx
// =============================================================================

func sampleRun() history.Run {
	return history.Run{
		GraphID:   "K3",
		RunID:     "ab12cd34",
		Mode:      "classify",
		Buses:     3,
		Iters:     7,
		Solver:    "bertini",
		StartedAt: time.Unix(1_700_000_000, 0),
		Elapsed:   1500 * time.Millisecond,
		Entries:   []history.Entry{{Key: "0", Count: 2}, {Key: "2", Count: 4}},
		Failures:  map[string]int{"solver": 1},
	}
}

func TestPoints(t *testing.T) {
	points := Points(sampleRun())
	require.Len(t, points, 3)
	assert.Equal(t, MeasurementRun, points[0].Name())
	assert.Equal(t, MeasurementDistribution, points[1].Name())

	fields := map[string]any{}
	for _, f := range points[0].FieldList() {
		fields[f.Key] = f.Value
	}
	assert.EqualValues(t, 6, fields["successes"])
	assert.EqualValues(t, 1, fields["failures"])
	assert.EqualValues(t, 1, fields["failures_solver"])
}

func TestInfluxSink_WriteRun(t *testing.T) {
	var (
		mu   sync.Mutex
		body string
		q    string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		mu.Lock()
		body, q = string(data), r.URL.RawQuery
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	sink, err := NewInfluxSink(InfluxConfig{URL: srv.URL, Token: "t", Org: "grid", Bucket: "samples"})
	require.NoError(t, err)
	defer sink.Close()

	require.NoError(t, sink.WriteRun(context.Background(), sampleRun()))
	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, q, "bucket=samples")
	lines := strings.Split(strings.TrimSpace(body), "\n")
	assert.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "pfsample_run,"))
	assert.Contains(t, body, "key=2")
}

func TestInfluxSink_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"code":"invalid","message":"bad bucket"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	sink, err := NewInfluxSink(InfluxConfig{URL: srv.URL, Org: "grid", Bucket: "samples"})
	require.NoError(t, err)
	defer sink.Close()
	assert.Error(t, sink.WriteRun(context.Background(), sampleRun()))
}

func TestNewInfluxSink_RequiresTarget(t *testing.T) {
	_, err := NewInfluxSink(InfluxConfig{URL: "http://localhost:8086"})
	assert.Error(t, err)
}

// =============================================================================
// Plot
// =============================================================================

var pngMagic = []byte("\x89PNG\r\n\x1a\n")

func TestPlotHistogram_PNG(t *testing.T) {
	var buf bytes.Buffer
	entries := []stats.Entry{{Key: stats.Single(0), Count: 3}, {Key: stats.Single(2), Count: 9}}
	require.NoError(t, PlotHistogram(&buf, "K3", entries, "png"))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), pngMagic))
}

func TestPlotHistogram_Empty(t *testing.T) {
	err := PlotHistogram(io.Discard, "K3", nil, "png")
	assert.Error(t, err)
}

func TestSaveHistogram(t *testing.T) {
	report := filepath.Join(t.TempDir(), "compare_K4_Mar-01-2026_12:00:00")
	entries := []stats.Entry{{Key: stats.PairOf(2, 1), Count: 4}}
	out, err := SaveHistogram(report, "K4", entries)
	require.NoError(t, err)
	assert.Equal(t, report+".png", out)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, pngMagic))
}
