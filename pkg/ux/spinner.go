// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"fmt"
	"io"
	"sync"
	"time"
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// DefaultSpinnerInterval is the redraw period.
const DefaultSpinnerInterval = 80 * time.Millisecond

// Spinner redraws a one-line status until stopped. Only use it on a
// terminal; it writes carriage returns and erase-line escapes.
type Spinner struct {
	w        io.Writer
	status   func() string
	interval time.Duration

	mu      sync.Mutex
	started bool
	stopped bool
	stop    chan struct{}
	done    chan struct{}
}

// NewSpinner returns a spinner that shows status() on every frame.
func NewSpinner(w io.Writer, status func() string) *Spinner {
	return &Spinner{
		w:        w,
		status:   status,
		interval: DefaultSpinnerInterval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// WithInterval sets the redraw period.
func (s *Spinner) WithInterval(d time.Duration) *Spinner {
	if d > 0 {
		s.interval = d
	}
	return s
}

// Start begins drawing in the background. Later calls do nothing.
func (s *Spinner) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.stopped {
		return
	}
	s.started = true
	go s.run()
}

func (s *Spinner) run() {
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	frame := 0
	for {
		select {
		case <-s.stop:
			fmt.Fprint(s.w, "\r\033[K")
			return
		case <-ticker.C:
			fmt.Fprintf(s.w, "\r\033[K%s %s", Styles.Highlight.Render(spinnerFrames[frame]), s.status())
			frame = (frame + 1) % len(spinnerFrames)
		}
	}
}

// Stop clears the line and waits for the drawing goroutine. Safe to call
// more than once, and before Start.
func (s *Spinner) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	started := s.started
	s.mu.Unlock()

	close(s.stop)
	if started {
		<-s.done
	}
}

// TrialStatus formats a progress line such as "classify K4 [37/1000] 2 failed".
func TrialStatus(mode, graphID string, done, total, failed int) string {
	line := fmt.Sprintf("%s %s [%d/%d]", mode, graphID, done, total)
	if failed > 0 {
		line += fmt.Sprintf(" %d failed", failed)
	}
	return line
}
