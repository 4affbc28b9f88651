// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package status serves live progress of a run over HTTP.
package status

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/AleutianAI/pfsample/cmd/pfsample/internal/pipeline"
	"github.com/AleutianAI/pfsample/cmd/pfsample/internal/stats"
	"github.com/AleutianAI/pfsample/cmd/pfsample/internal/util"
)

// Source reports the progress of a run.
type Source interface {
	Progress() pipeline.Progress
}

// Config configures a Server.
type Config struct {
	// Addr is the listen address, e.g. ":9464".
	Addr string

	// Metrics serves /metrics. Nil uses the default Prometheus registry.
	Metrics http.Handler

	Logger *slog.Logger
}

// Server exposes /healthz, /status and /metrics.
type Server struct {
	cfg     Config
	source  Source
	engine  *gin.Engine
	srv     *http.Server
	ln      net.Listener
	started time.Time
	done    chan error
}

// View is the /status response body.
type View struct {
	RunID           string         `json:"run_id"`
	Mode            string         `json:"mode"`
	Iters           int            `json:"iters"`
	Done            int            `json:"done"`
	Percent         float64        `json:"percent"`
	Successes       int            `json:"successes"`
	Failures        map[string]int `json:"failures"`
	ParityAnomalies int            `json:"parity_anomalies"`
	Found           *int           `json:"found,omitempty"`
	Mean            float64        `json:"mean"`
	StdDev          float64        `json:"std_dev"`
	Distribution    []Bucket       `json:"distribution"`
	UptimeSeconds   float64        `json:"uptime_seconds"`
}

// Bucket is one frequency table row.
type Bucket struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// New builds a Server. Nothing listens until Start.
func New(cfg Config, src Source) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Metrics == nil {
		cfg.Metrics = promhttp.Handler()
	}
	s := &Server{cfg: cfg, source: src, started: time.Now()}

	// Debug mode prints route tables to stdout, which carries find output.
	if os.Getenv(gin.EnvGinMode) == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(otelgin.Middleware("pfsample"))
	engine.Use(s.logRequests)
	engine.GET("/healthz", s.healthz)
	engine.GET("/status", s.status)
	engine.GET("/metrics", gin.WrapH(cfg.Metrics))
	s.engine = engine
	return s
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.engine }

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	s.ln = ln
	s.srv = &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.done = make(chan error, 1)
	go func() {
		err := s.srv.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		s.done <- err
	}()
	s.cfg.Logger.Info("status server listening", "addr", ln.Addr().String())
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Shutdown stops the server, waiting for in-flight requests. The deadline
// is at least util.MinShutdownTimeout from now.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	timeout := util.DefaultShutdownTimeout
	if dl, ok := ctx.Deadline(); ok {
		timeout = util.EnforceMinTimeout(time.Until(dl), util.MinShutdownTimeout)
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	if err := s.srv.Shutdown(ctx); err != nil {
		return err
	}
	return <-s.done
}

// =============================================================================
// Handlers
// =============================================================================

func (s *Server) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) status(c *gin.Context) {
	if s.source == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no run in progress"})
		return
	}
	c.JSON(http.StatusOK, Render(s.source.Progress(), time.Since(s.started)))
}

func (s *Server) logRequests(c *gin.Context) {
	start := time.Now()
	c.Next()
	s.cfg.Logger.Debug("status request",
		"method", c.Request.Method,
		"path", c.FullPath(),
		"code", c.Writer.Status(),
		"latency", time.Since(start),
	)
}

// Render converts progress into the /status body.
func Render(p pipeline.Progress, uptime time.Duration) View {
	v := View{
		RunID:           p.RunID,
		Mode:            string(p.Mode),
		Iters:           p.Iters,
		Done:            p.Done,
		Successes:       p.Summary.Successes,
		Failures:        make(map[string]int, len(stats.FailureKinds)),
		ParityAnomalies: p.Summary.ParityAnomalies,
		Mean:            p.Summary.Mean,
		StdDev:          p.Summary.StdDev,
		Distribution:    make([]Bucket, 0, len(p.Summary.Entries)),
		UptimeSeconds:   uptime.Seconds(),
	}
	if p.Iters > 0 {
		v.Percent = float64(p.Done) / float64(p.Iters) * 100
	}
	for _, kind := range stats.FailureKinds {
		v.Failures[string(kind)] = p.Summary.Failures[kind]
	}
	if p.Summary.FindMode {
		found := p.Summary.Found
		v.Found = &found
	}
	for _, e := range p.Summary.Entries {
		v.Distribution = append(v.Distribution, Bucket{Key: e.Key.String(), Count: e.Count})
	}
	return v
}
