// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/pfsample/cmd/pfsample/config"
	"github.com/AleutianAI/pfsample/cmd/pfsample/internal/history"
	"github.com/AleutianAI/pfsample/cmd/pfsample/internal/pipeline"
	"github.com/AleutianAI/pfsample/cmd/pfsample/internal/stats"
	"github.com/AleutianAI/pfsample/pkg/ux"
	"github.com/AleutianAI/pfsample/pkg/validation"
)

// mergedSuffix marks reports built from several runs.
const mergedSuffix = "_merged"

// writeMerged writes a merged table as a report and echoes it to stdout.
func writeMerged(cmd *cobra.Command, dir, prefix, graphID string, t stats.Table) error {
	if err := validation.ValidateGraphID(graphID); err != nil {
		return err
	}
	name := stats.ReportName(prefix+mergedSuffix, graphID, time.Now())
	path, err := stats.WriteReportFile(dir, name, t)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := stats.WriteReport(&buf, t); err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprint(out, buf.String())
	fmt.Fprintf(out, "total: %d\nreport: %s\n", t.Sum(), path)
	return nil
}

func newMergeCmd(g *globalFlags) *cobra.Command {
	var (
		graphID    string
		prefix     string
		resultsDir string
	)
	cmd := &cobra.Command{
		Use:   "merge REPORT...",
		Short: "Merge report files from runs over the same graph",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := stats.CheckPrefix(prefix); err != nil {
				return err
			}
			tables := make([]stats.Table, 0, len(args))
			for _, path := range args {
				t, err := stats.ReadReportFile(path)
				if err != nil {
					return err
				}
				tables = append(tables, t)
			}
			return writeMerged(cmd, resultsDir, prefix, graphID, stats.Merge(tables...))
		},
	}
	cmd.Flags().StringVarP(&graphID, "graph-id", "g", "", "Graph identifier of the merged runs")
	cmd.Flags().StringVar(&prefix, "prefix", stats.PrefixClassify, "Report prefix: real_dist, compare or find")
	cmd.Flags().StringVar(&resultsDir, "results-dir", ".", "Directory for the merged report")
	_ = cmd.MarkFlagRequired("graph-id")
	return cmd
}

// =============================================================================
// History
// =============================================================================

func openHistory(cmd *cobra.Command, g *globalFlags) (*history.Store, error) {
	cfg, err := loadConfig(cmd, g)
	if err != nil {
		return nil, err
	}
	if cfg.History.Dir == "" {
		return nil, errors.New("no history directory: set --history-dir or history.dir")
	}
	return history.Open(history.Config{Dir: cfg.History.Dir})
}

func newHistoryCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect and merge stored runs",
	}

	var listGraph string
	list := &cobra.Command{
		Use:   "list",
		Short: "List stored runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := openHistory(cmd, g)
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.List(cmd.Context(), listGraph)
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(runs))
			for _, r := range runs {
				t, err := r.Table()
				if err != nil {
					return err
				}
				rows = append(rows, []string{
					r.GraphID, r.RunID, r.Mode, r.Solver,
					strconv.Itoa(r.Iters), strconv.Itoa(t.Sum()),
					r.StartedAt.Format(time.RFC3339),
				})
			}
			return ux.PrintTable(cmd.OutOrStdout(),
				[]string{"graph", "run", "mode", "solver", "iters", "recorded", "started"}, rows)
		},
	}
	list.Flags().StringVarP(&listGraph, "graph-id", "g", "", "Only runs for this graph")

	var (
		mergeGraph string
		mergeMode  string
		resultsDir string
	)
	merge := &cobra.Command{
		Use:   "merge",
		Short: "Merge every stored run for a graph into one report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			mode := pipeline.Mode(mergeMode)
			switch mode {
			case pipeline.ModeClassify, pipeline.ModeCompare, pipeline.ModeFind:
			default:
				return fmt.Errorf("unknown mode %q", mergeMode)
			}
			store, err := openHistory(cmd, g)
			if err != nil {
				return err
			}
			defer store.Close()

			t, runs, err := store.Merge(cmd.Context(), mergeGraph, mergeMode)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				return fmt.Errorf("no %s runs stored for graph %s", mergeMode, mergeGraph)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "merged %d runs\n", len(runs))
			return writeMerged(cmd, resultsDir, mode.ReportPrefix(), mergeGraph, t)
		},
	}
	merge.Flags().StringVarP(&mergeGraph, "graph-id", "g", "", "Graph identifier")
	merge.Flags().StringVar(&mergeMode, "mode", string(pipeline.ModeClassify), "Mode of the runs to merge")
	merge.Flags().StringVar(&resultsDir, "results-dir", ".", "Directory for the merged report")
	_ = merge.MarkFlagRequired("graph-id")

	var showGraph string
	show := &cobra.Command{
		Use:   "show RUN_ID",
		Short: "Print one stored run and its distribution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openHistory(cmd, g)
			if err != nil {
				return err
			}
			defer store.Close()

			r, err := store.Get(cmd.Context(), showGraph, args[0])
			if errors.Is(err, history.ErrNotFound) {
				return fmt.Errorf("no run %s stored for graph %s", args[0], showGraph)
			}
			if err != nil {
				return err
			}
			return printRun(cmd, r)
		},
	}
	show.Flags().StringVarP(&showGraph, "graph-id", "g", "", "Graph identifier")
	_ = show.MarkFlagRequired("graph-id")

	cmd.AddCommand(list, merge, show)
	return cmd
}

// printRun writes the settings of a stored run followed by its report lines.
func printRun(cmd *cobra.Command, r history.Run) error {
	t, err := r.Table()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "graph: %s
run: %s
mode: %s
solver: %s
buses: %d
",
		r.GraphID, r.RunID, r.Mode, r.Solver, r.Buses)
	if r.Edges != "" {
		fmt.Fprintf(out, "edges: %s
", r.Edges)
	}
	fmt.Fprintf(out, "distribution: %s(mean=%g, variance=%g)
seed: %d
started: %s
",
		r.Distribution, r.Mean, r.Variance, r.Seed, r.StartedAt.Format(time.RFC3339))
	kinds := make([]string, 0, len(r.Failures))
	for kind := range r.Failures {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	for _, kind := range kinds {
		fmt.Fprintf(out, "failed %s: %d
", kind, r.Failures[kind])
	}
	fmt.Fprintf(out, "iters: %d
recorded: %d

", r.Iters, t.Sum())
	return stats.WriteReport(out, t)
}

// =============================================================================
// Config
// =============================================================================

func newConfigCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, g)
			if err != nil {
				return err
			}
			data, err := config.Marshal(cfg)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}
