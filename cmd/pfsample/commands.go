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
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/pfsample/cmd/pfsample/internal/pipeline"
)

// globalFlags are shared by every command.
type globalFlags struct {
	configPath string
	logLevel   string
	logDir     string
	logJSON    bool
	historyDir string
}

// sampleFlags are the trial loop flags. Only flags set on the command line
// override the config file.
type sampleFlags struct {
	buses        int
	iters        int
	tol          float64
	edges        string
	verbose      bool
	target       int
	graphID      string
	designated   string
	mu           float64
	variance     float64
	distribution string
	solver       string
	solverPath   string
	timeout      time.Duration
	spawnRate    float64
	workers      int
	seed         uint64
	workDir      string
	resultsDir   string
	dropOdd      bool
	plot         bool
	serve        string
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:   "pfsample",
		Short: "Sample real solution counts of random power-flow systems",
		Long: `pfsample draws random susceptances over a network topology, solves the
resulting power-flow polynomial system with an external homotopy solver
(Bertini or PHCpack), and reports how often each number of real solutions
occurs.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.StringVar(&g.configPath, "config", "", "YAML config file")
	pf.StringVar(&g.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	pf.StringVar(&g.logDir, "log-dir", "", "Also write JSON logs to this directory")
	pf.BoolVar(&g.logJSON, "log-json", false, "Log JSON to stderr")
	pf.StringVar(&g.historyDir, "history-dir", "", "Run history database directory")

	root.AddCommand(
		newSampleCmd(g, pipeline.ModeClassify,
			"Tally the number of real solutions per trial"),
		newSampleCmd(g, pipeline.ModeCompare,
			"Tally (real solutions, solutions with a real designated variable) pairs"),
		newSampleCmd(g, pipeline.ModeFind,
			"Tally real solutions and print every system hitting --target"),
		newMergeCmd(g),
		newHistoryCmd(g),
		newConfigCmd(g),
	)
	return root
}

func newSampleCmd(g *globalFlags, mode pipeline.Mode, short string) *cobra.Command {
	f := &sampleFlags{}
	cmd := &cobra.Command{
		Use:   string(mode),
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSample(cmd, g, f, mode)
		},
	}

	fl := cmd.Flags()
	fl.IntVarP(&f.buses, "buses", "n", 4, "Number of buses")
	fl.IntVar(&f.iters, "iters", 1000, "Number of trials")
	fl.Float64Var(&f.tol, "tol", 1e-7, "Largest |imag| still counted as real")
	fl.StringVar(&f.edges, "edges", "", `Edge list, e.g. "0,1:1,2:2,0" (default complete graph)`)
	fl.BoolVarP(&f.verbose, "verbose", "v", false, "Log progress about every 10% of trials")
	fl.StringVarP(&f.graphID, "graph-id", "g", "", "Graph identifier for report names")
	fl.Float64Var(&f.mu, "mu", 0, "Susceptance mean")
	fl.Float64Var(&f.variance, "var", 1, "Susceptance variance")
	fl.StringVar(&f.distribution, "distribution", "normal", "Susceptance distribution: normal or uniform")
	fl.StringVar(&f.solver, "solver", "bertini", "Solver: bertini or phc")
	fl.StringVar(&f.solverPath, "solver-path", "", "Solver binary (default ./<solver> or PATH)")
	fl.DurationVar(&f.timeout, "timeout", 10*time.Minute, "Per-invocation solver timeout")
	fl.Float64Var(&f.spawnRate, "spawn-rate", 0, "Max solver launches per second (0 unlimited)")
	fl.IntVar(&f.workers, "workers", 1, "Concurrent trials")
	fl.Uint64Var(&f.seed, "seed", 0, "Random seed (0 picks one)")
	fl.StringVar(&f.workDir, "work-dir", "", "Directory for per-trial scratch space (default temp dir)")
	fl.StringVar(&f.resultsDir, "results-dir", ".", "Directory for reports")
	fl.BoolVar(&f.dropOdd, "drop-odd", false, "Count odd real solution counts as failures instead of recording them")
	fl.BoolVar(&f.plot, "plot", false, "Write a PNG histogram next to the report")
	fl.StringVar(&f.serve, "serve", "", `Serve live status on this address, e.g. ":9464"`)

	switch mode {
	case pipeline.ModeFind:
		fl.IntVar(&f.target, "target", 0, "Real solution count to look for")
	case pipeline.ModeCompare:
		fl.StringVar(&f.designated, "designated", pipeline.DefaultDesignated, "Variable checked for the secondary count")
	}
	return cmd
}
