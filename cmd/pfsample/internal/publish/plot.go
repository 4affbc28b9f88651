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
	"fmt"
	"image/color"
	"io"
	"path/filepath"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/AleutianAI/pfsample/cmd/pfsample/internal/stats"
)

const (
	plotWidth  = 6 * vg.Inch
	plotHeight = 4 * vg.Inch
)

// histogram builds a bar chart of the table, one bar per key in report
// order.
func histogram(title string, entries []stats.Entry) (*plot.Plot, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("no recorded trials to plot")
	}
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "real solutions"
	p.Y.Label.Text = "trials"

	values := make(plotter.Values, len(entries))
	labels := make([]string, len(entries))
	for i, e := range entries {
		values[i] = float64(e.Count)
		labels[i] = e.Key.String()
	}
	bars, err := plotter.NewBarChart(values, vg.Points(18))
	if err != nil {
		return nil, err
	}
	bars.Color = color.RGBA{R: 0x3b, G: 0x82, B: 0xf6, A: 0xff}
	bars.LineStyle.Width = vg.Length(0)
	p.Add(bars)
	p.NominalX(labels...)
	return p, nil
}

// PlotHistogram renders the table as an image in the given format ("png",
// "svg" or "pdf").
func PlotHistogram(w io.Writer, title string, entries []stats.Entry, format string) error {
	p, err := histogram(title, entries)
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(plotWidth, plotHeight, format)
	if err != nil {
		return err
	}
	_, err = wt.WriteTo(w)
	return err
}

// SaveHistogram writes the image next to a report: <report>.png.
func SaveHistogram(reportPath, title string, entries []stats.Entry) (string, error) {
	p, err := histogram(title, entries)
	if err != nil {
		return "", err
	}
	out := strings.TrimSuffix(reportPath, filepath.Ext(reportPath)) + ".png"
	if err := p.Save(plotWidth, plotHeight, out); err != nil {
		return "", fmt.Errorf("save histogram: %w", err)
	}
	return out, nil
}
