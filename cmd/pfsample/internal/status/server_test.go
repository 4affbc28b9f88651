// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package status

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/pfsample/cmd/pfsample/internal/pipeline"
	"github.com/AleutianAI/pfsample/cmd/pfsample/internal/stats"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fixedSource struct{ p pipeline.Progress }

func (f fixedSource) Progress() pipeline.Progress { return f.p }

func sampleProgress() pipeline.Progress {
	return pipeline.Progress{
		RunID: "ab12cd34",
		Mode:  pipeline.ModeFind,
		Iters: 10,
		Done:  4,
		Summary: stats.Summary{
			Entries: []stats.Entry{
				{Key: stats.Single(0), Count: 1},
				{Key: stats.Single(2), Count: 2},
			},
			Failures:     map[stats.FailureKind]int{stats.FailureSolver: 1},
			Successes:    3,
			FailureTotal: 1,
			Found:        2,
			FindMode:     true,
		},
	}
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", path, nil)
	h.ServeHTTP(w, req)
	return w
}

func TestNew_QuietOnStdout(t *testing.T) {
	t.Setenv(gin.EnvGinMode, "")
	var out bytes.Buffer
	prevWriter := gin.DefaultWriter
	gin.DefaultWriter = &out
	gin.SetMode(gin.DebugMode)
	t.Cleanup(func() {
		gin.DefaultWriter = prevWriter
		gin.SetMode(gin.TestMode)
	})

	New(Config{}, fixedSource{sampleProgress()})

	assert.Equal(t, gin.ReleaseMode, gin.Mode())
	assert.Empty(t, out.String())
}

func TestHealthz(t *testing.T) {
	s := New(Config{}, nil)
	w := get(t, s.Handler(), "/healthz")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestStatus_ReportsProgress(t *testing.T) {
	s := New(Config{}, fixedSource{sampleProgress()})
	w := get(t, s.Handler(), "/status")
	require.Equal(t, http.StatusOK, w.Code)

	var v View
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	assert.Equal(t, "ab12cd34", v.RunID)
	assert.Equal(t, "find", v.Mode)
	assert.Equal(t, 40.0, v.Percent)
	assert.Equal(t, 1, v.Failures["solver"])
	assert.Equal(t, 0, v.Failures["parse"])
	require.NotNil(t, v.Found)
	assert.Equal(t, 2, *v.Found)
	assert.Equal(t, []Bucket{{Key: "0", Count: 1}, {Key: "2", Count: 2}}, v.Distribution)
}

func TestStatus_NoSource(t *testing.T) {
	s := New(Config{}, nil)
	w := get(t, s.Handler(), "/status")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRender_ClassifyOmitsFound(t *testing.T) {
	p := sampleProgress()
	p.Summary.FindMode = false
	v := Render(p, time.Second)
	assert.Nil(t, v.Found)
	assert.Equal(t, 1.0, v.UptimeSeconds)
}

func TestMetrics_UsesConfiguredHandler(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "pfsample_trials_total 3\n")
	})
	s := New(Config{Metrics: h}, nil)
	w := get(t, s.Handler(), "/metrics")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "pfsample_trials_total 3")
}

func TestMetrics_DefaultRegistry(t *testing.T) {
	s := New(Config{}, nil)
	w := get(t, s.Handler(), "/metrics")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestStartAndShutdown(t *testing.T) {
	s := New(Config{Addr: "127.0.0.1:0"}, fixedSource{sampleProgress()})
	require.NoError(t, s.Start())
	require.NotEmpty(t, s.Addr())

	resp, err := http.Get("http://" + s.Addr() + "/healthz")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "ok")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.NoError(t, s.Shutdown(ctx))
}

func TestShutdown_NotStarted(t *testing.T) {
	s := New(Config{}, nil)
	assert.NoError(t, s.Shutdown(context.Background()))
	assert.Equal(t, "", s.Addr())
}
