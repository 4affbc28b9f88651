// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package stats

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Report name prefixes per mode.
const (
	PrefixClassify = "real_dist"
	PrefixCompare  = "compare"
	PrefixFind     = "find"
)

// CheckPrefix rejects anything but the known report prefixes.
func CheckPrefix(prefix string) error {
	switch prefix {
	case PrefixClassify, PrefixCompare, PrefixFind:
		return nil
	}
	return fmt.Errorf("unknown report prefix %q (want %s, %s or %s)",
		prefix, PrefixClassify, PrefixCompare, PrefixFind)
}

// TimestampLayout is the timestamp format embedded in report names.
const TimestampLayout = "Jan-02-2006_15:04:05"

// ReportName returns "<prefix>_<graphID>_<timestamp>".
func ReportName(prefix, graphID string, at time.Time) string {
	return prefix + "_" + graphID + "_" + at.Format(TimestampLayout)
}

// WriteReport writes one "<key> : <count>" line per entry, ascending by key.
// An empty table writes nothing.
func WriteReport(w io.Writer, t Table) error {
	bw := bufio.NewWriter(w)
	for _, e := range t.Sorted() {
		if _, err := fmt.Fprintf(bw, "%s : %d\n", e.Key, e.Count); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteReportFile writes the report to dir/name, creating dir if needed, and
// returns the file path.
func WriteReportFile(dir, name string, t Table) (string, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return "", fmt.Errorf("create results dir %s: %w", dir, err)
	}
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create report %s: %w", path, err)
	}
	if err := WriteReport(f, t); err != nil {
		f.Close()
		return "", fmt.Errorf("write report %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close report %s: %w", path, err)
	}
	return path, nil
}

// ParseReport reads a report written by WriteReport. Blank lines are
// skipped; a key appearing twice is an error.
func ParseReport(r io.Reader) (Table, error) {
	t := make(Table)
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		keyText, countText, ok := strings.Cut(text, ":")
		if !ok {
			return nil, fmt.Errorf("line %d: missing ':' in %q", line, text)
		}
		key, err := ParseKey(keyText)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		count, err := strconv.Atoi(strings.TrimSpace(countText))
		if err != nil || count < 0 {
			return nil, fmt.Errorf("line %d: bad count %q", line, strings.TrimSpace(countText))
		}
		if _, dup := t[key]; dup {
			return nil, fmt.Errorf("line %d: duplicate key %s", line, key)
		}
		t[key] = count
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return t, nil
}

// ReadReportFile parses the report at path.
func ReadReportFile(path string) (Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	t, err := ParseReport(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}
