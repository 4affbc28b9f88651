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
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// Row is one labelled count.
type Row struct {
	Label string
	Count int
}

// RunSummary is everything shown at the end of a run.
type RunSummary struct {
	Mode    string
	GraphID string
	RunID   string
	Iters   int

	// Distribution rows in report order.
	Distribution []Row

	// Failures by kind; zero counts are omitted when rendering.
	Failures []Row

	ParityAnomalies int

	// FindMode enables the found-instances line.
	FindMode bool
	Found    int

	Mean   float64
	StdDev float64

	// ReportPath is where the report was written, if anywhere.
	ReportPath string
}

func (s RunSummary) failureTotal() int {
	n := 0
	for _, f := range s.Failures {
		n += f.Count
	}
	return n
}

// PrintSummary writes the summary to w, styled when w is a terminal.
func PrintSummary(w io.Writer, s RunSummary) error {
	var out string
	if IsTerminal(w) {
		out = RenderStyled(s)
	} else {
		out = RenderPlain(s)
	}
	_, err := io.WriteString(w, out)
	return err
}

// RenderPlain renders the summary as plain text.
func RenderPlain(s RunSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "mode: %s\ngraph: %s\nrun: %s\niters: %d\n", s.Mode, s.GraphID, s.RunID, s.Iters)
	for _, r := range s.Distribution {
		fmt.Fprintf(&b, "%s : %d\n", r.Label, r.Count)
	}
	fmt.Fprintf(&b, "failures: %d\n", s.failureTotal())
	for _, f := range s.Failures {
		if f.Count > 0 {
			fmt.Fprintf(&b, "  %s: %d\n", f.Label, f.Count)
		}
	}
	if s.ParityAnomalies > 0 {
		fmt.Fprintf(&b, "parity anomalies: %d\n", s.ParityAnomalies)
	}
	if len(s.Distribution) > 0 {
		fmt.Fprintf(&b, "mean: %.4g\nstddev: %.4g\n", s.Mean, s.StdDev)
	}
	if s.FindMode {
		fmt.Fprintf(&b, "Instances found: %d\n", s.Found)
	}
	if s.ReportPath != "" {
		fmt.Fprintf(&b, "report: %s\n", s.ReportPath)
	}
	return b.String()
}

// RenderStyled renders the summary as a boxed table with frequency bars.
func RenderStyled(s RunSummary) string {
	header := Styles.Title.Render(s.Mode+" "+s.GraphID) + "  " +
		Styles.Muted.Render(fmt.Sprintf("run %s, %d trials", s.RunID, s.Iters))

	maxCount := 0
	for _, r := range s.Distribution {
		maxCount = max(maxCount, r.Count)
	}
	rows := make([][]string, 0, len(s.Distribution))
	for _, r := range s.Distribution {
		rows = append(rows, []string{r.Label, strconv.Itoa(r.Count), Bar(r.Count, maxCount, 30)})
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(ColorTealDeep)).
		Headers("real", "count", "").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			st := lipgloss.NewStyle().Padding(0, 1)
			switch {
			case row == table.HeaderRow:
				return st.Bold(true).Foreground(ColorTealPrimary)
			case col == 2:
				return st.Foreground(ColorTealBright)
			default:
				return st
			}
		})

	lines := []string{header, t.String()}

	failures := s.failureTotal()
	status := IconSuccess.Render() + " " + Styles.Success.Render("no failed trials")
	if failures > 0 {
		var parts []string
		for _, f := range s.Failures {
			if f.Count > 0 {
				parts = append(parts, fmt.Sprintf("%s %d", f.Label, f.Count))
			}
		}
		status = IconWarning.Render() + " " + Styles.Warning.Render(fmt.Sprintf("%d failed (%s)", failures, strings.Join(parts, ", ")))
	}
	lines = append(lines, status)

	if s.ParityAnomalies > 0 {
		lines = append(lines, IconWarning.Render()+" "+Styles.Warning.Render(fmt.Sprintf("%d parity anomalies", s.ParityAnomalies)))
	}
	if len(s.Distribution) > 0 {
		lines = append(lines, Styles.Muted.Render(fmt.Sprintf("mean %.4g, stddev %.4g", s.Mean, s.StdDev)))
	}
	if s.FindMode {
		lines = append(lines, Styles.Highlight.Render(fmt.Sprintf("Instances found: %d", s.Found)))
	}
	if s.ReportPath != "" {
		lines = append(lines, Styles.Muted.Render("report "+s.ReportPath))
	}
	return Styles.Box.Render(strings.Join(lines, "\n")) + "\n"
}

// PrintTable writes rows under headers: a bordered table on a terminal,
// tab-separated lines otherwise.
func PrintTable(w io.Writer, headers []string, rows [][]string) error {
	if !IsTerminal(w) {
		var b strings.Builder
		b.WriteString(strings.Join(headers, "\t") + "\n")
		for _, r := range rows {
			b.WriteString(strings.Join(r, "\t") + "\n")
		}
		_, err := io.WriteString(w, b.String())
		return err
	}
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(ColorTealDeep)).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return Styles.Bold.Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		})
	_, err := io.WriteString(w, t.Render()+"\n")
	return err
}
