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
	"bytes"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestSpinner_DrawsStatusUntilStopped(t *testing.T) {
	var buf bytes.Buffer
	var done atomic.Int64
	s := NewSpinner(&buf, func() string {
		return TrialStatus("classify", "K4", int(done.Add(1)), 10, 0)
	}).WithInterval(2 * time.Millisecond)

	s.Start()
	s.Start()
	time.Sleep(30 * time.Millisecond)
	s.Stop()

	out := buf.String()
	if !strings.Contains(out, "classify K4 [") {
		t.Errorf("status not drawn: %q", out)
	}
	if !strings.HasSuffix(out, "\r\033[K") {
		t.Errorf("line not cleared on stop: %q", out)
	}
}

func TestSpinner_StopWithoutStart(t *testing.T) {
	var buf bytes.Buffer
	s := NewSpinner(&buf, func() string { return "x" })
	s.Stop()
	s.Stop()
	s.Start() // no effect after Stop
	time.Sleep(5 * time.Millisecond)
	if buf.Len() != 0 {
		t.Errorf("unexpected output %q", buf.String())
	}
}

func TestTrialStatus(t *testing.T) {
	if got := TrialStatus("find", "K3", 3, 9, 0); got != "find K3 [3/9]" {
		t.Errorf("got %q", got)
	}
	if got := TrialStatus("find", "K3", 3, 9, 2); got != "find K3 [3/9] 2 failed" {
		t.Errorf("got %q", got)
	}
}
