package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"margincalc/internal/models"
	"margincalc/pkg/config"
	"margincalc/pkg/coverage"
	"margincalc/pkg/export"
	"margincalc/pkg/margin"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "margincalc: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	// Parse command line arguments
	fs := flag.NewFlagSet("margincalc", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "margincalc.yaml", "YAML configuration file (defaults are used if it does not exist)")
	outputFile := fs.String("output", "", "CSV file for the result table (overrides output.file)")
	sysMax := fs.Float64("sys-max", 0, "Systematic error range in mm")
	randMax := fs.Float64("rand-max", 0, "Random error range in mm")
	growMax := fs.Float64("grow-max", 0, "Dose growth range in mm")
	mode := fs.String("mode", "", "Dose growing technique: Dilation or Scaling")
	roi := fs.String("roi", "", "ROI radius in mm as x,y,z (Scaling only)")
	simulations := fs.Int("simulations", 0, "Number of simulations passed to the evaluator")
	fractions := fs.Int("fractions", 0, "Number of fractions passed to the evaluator")
	workers := fs.Int("workers", 0, "Number of error pairs swept concurrently")
	evaluatorKind := fs.String("evaluator", "", "Coverage evaluator: analytic or command")
	evaluatorCmd := fs.String("evaluator-cmd", "", "Program printing a dose population histogram for each query")
	cache := fs.Bool("cache", false, "Memoize repeated evaluator queries")
	dryRun := fs.Bool("dry-run", false, "Print the sweep plan without evaluating coverage")
	show := fs.String("show", "", "Print a previously exported CSV table and exit")
	writeConfig := fs.String("write-config", "", "Write the effective configuration to this path and exit")
	verbose := fs.Bool("verbose", false, "Log every result row")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *show != "" {
		table, err := export.Load(*show)
		if err != nil {
			return err
		}
		printTable(stdout, table)
		printSummary(stdout, margin.Summarize(table))
		return nil
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return err
	}

	// Explicitly set flags override the configuration file
	var flagErr error
	fs.Visit(func(f *flag.Flag) {
		if flagErr != nil {
			return
		}
		switch f.Name {
		case "output":
			cfg.Output.File = *outputFile
		case "sys-max":
			cfg.Sweep.SystematicErrorMax = *sysMax
		case "rand-max":
			cfg.Sweep.RandomErrorMax = *randMax
		case "grow-max":
			cfg.Sweep.GrowthMax = *growMax
		case "mode":
			cfg.Sweep.GrowthMode, flagErr = models.ParseGrowthMode(*mode)
		case "roi":
			var r models.ROIRadius
			r, flagErr = parseROI(*roi)
			cfg.Sweep.ROIRadius.X, cfg.Sweep.ROIRadius.Y, cfg.Sweep.ROIRadius.Z = r.X, r.Y, r.Z
		case "simulations":
			cfg.Sweep.NumberOfSimulations = *simulations
		case "fractions":
			cfg.Sweep.NumberOfFractions = *fractions
		case "workers":
			cfg.Processing.Workers = *workers
		case "evaluator":
			cfg.Evaluator.Kind = *evaluatorKind
		case "evaluator-cmd":
			cfg.Evaluator.Command = *evaluatorCmd
			if !isSet(fs, "evaluator") {
				cfg.Evaluator.Kind = config.EvaluatorCommand
			}
		case "cache":
			cfg.Evaluator.Cache = *cache
		case "verbose":
			cfg.Output.Verbose = *verbose
		}
	})
	if flagErr != nil {
		return flagErr
	}

	if *writeConfig != "" {
		if err := config.SaveConfig(cfg, *writeConfig); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Configuration written to %s\n", *writeConfig)
		return nil
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	level := slog.LevelInfo
	if cfg.Output.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	sweepCfg := cfg.SweepConfiguration()
	plan, err := margin.Plan(sweepCfg)
	if err != nil {
		return err
	}

	fmt.Fprintln(stdout, "================================")
	fmt.Fprintln(stdout, "MARGIN CALCULATION")
	fmt.Fprintln(stdout, "Systematic / random error sweep with dose growth")
	fmt.Fprintln(stdout, "================================")
	fmt.Fprintf(stdout, "Systematic error range: %.1f mm (step %.1f mm)\n", sweepCfg.SystematicErrorMax, sweepCfg.SystematicStep)
	fmt.Fprintf(stdout, "Random error range:     %.1f mm (step %.1f mm)\n", sweepCfg.RandomErrorMax, sweepCfg.RandomStep)
	fmt.Fprintf(stdout, "Dose growth range:      %.1f mm (step %.1f mm, %s)\n", sweepCfg.GrowthMax, sweepCfg.GrowthStep, sweepCfg.GrowthMode)
	if sweepCfg.GrowthMode == models.Scaling {
		fmt.Fprintf(stdout, "ROI radius:             %.1f x %.1f x %.1f mm\n", sweepCfg.ROIRadius.X, sweepCfg.ROIRadius.Y, sweepCfg.ROIRadius.Z)
	}
	fmt.Fprintf(stdout, "Simulations: %d, fractions: %d\n", sweepCfg.NumberOfSimulations, sweepCfg.NumberOfFractions)
	fmt.Fprintf(stdout, "Error pairs: %d, growth steps: %d, evaluations: %d\n\n",
		len(plan.Pairs), len(plan.GrowthIndices), plan.Evaluations())

	if *dryRun {
		for _, pair := range plan.Pairs {
			fmt.Fprintf(stdout, "systematic %s mm, random %s mm\n",
				export.FormatValue(pair.Systematic()), export.FormatValue(pair.Random()))
		}
		return nil
	}

	evaluator, err := buildEvaluator(cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	engine := margin.NewEngine(&margin.Params{
		Workers: cfg.Processing.Workers,
		Logger:  logger,
		Progress: func(done, total int) {
			progress := float64(done) / float64(total) * 100
			fmt.Fprintf(stdout, "\rSweeping error pairs: %.1f%% complete", progress)
		},
	})

	fmt.Fprintf(stdout, "Starting margin sweep with %s evaluator...\n", cfg.Evaluator.Kind)
	startTime := time.Now()
	table, runErr := engine.Run(ctx, sweepCfg, evaluator)
	fmt.Fprintln(stdout) // New line after progress

	if table.Len() > 0 {
		fmt.Fprintln(stdout)
		printTable(stdout, table)
		printSummary(stdout, margin.Summarize(table))

		if cfg.Output.File != "" {
			// Partial tables are exported too; they are a prefix of the full sweep.
			if err := export.Save(cfg.Output.File, table); err != nil {
				logger.Error("export failed", "file", cfg.Output.File, "error", err)
				if runErr == nil {
					return err
				}
			} else {
				fmt.Fprintf(stdout, "Result table saved to: %s\n", cfg.Output.File)
			}
		}
	}

	if runErr != nil {
		return fmt.Errorf("margin sweep failed after %d of %d rows: %w", table.Len(), len(plan.Pairs), runErr)
	}

	fmt.Fprintf(stdout, "\nMargin calculation completed in %.2f seconds (run %s)\n", time.Since(startTime).Seconds(), table.RunID)
	if c, ok := evaluator.(*coverage.Cached); ok {
		hits, misses := c.Stats()
		fmt.Fprintf(stdout, "Evaluator cache: %d hits, %d misses\n", hits, misses)
	}
	return nil
}

func isSet(fs *flag.FlagSet, name string) bool {
	set := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

func parseROI(s string) (models.ROIRadius, error) {
	parts := strings.Split(s, ",")
	if len(parts) == 1 {
		parts = []string{parts[0], parts[0], parts[0]}
	}
	if len(parts) != 3 {
		return models.ROIRadius{}, fmt.Errorf("invalid ROI radius %q: expected x,y,z", s)
	}
	var axes [3]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return models.ROIRadius{}, fmt.Errorf("invalid ROI radius %q: %w", p, err)
		}
		axes[i] = v
	}
	return models.ROIRadius{X: axes[0], Y: axes[1], Z: axes[2]}, nil
}

func buildEvaluator(cfg *config.Config, logger *slog.Logger) (margin.CoverageEvaluator, error) {
	var evaluator margin.CoverageEvaluator
	switch cfg.Evaluator.Kind {
	case config.EvaluatorAnalytic:
		evaluator = coverage.NewAnalytic(cfg.SweepConfiguration().ROIRadius)
	case config.EvaluatorCommand:
		c := coverage.NewCommand(cfg.Evaluator.Command, cfg.Evaluator.Args...)
		c.Logger = logger
		evaluator = c
	default:
		return nil, fmt.Errorf("unknown evaluator kind %q", cfg.Evaluator.Kind)
	}
	if cfg.Evaluator.Cache {
		evaluator = coverage.NewCached(evaluator)
	}
	return evaluator, nil
}

func printTable(w io.Writer, table *models.SweepResultTable) {
	fmt.Fprintf(w, "%-12s %-12s %-8s %-8s %-8s\n", "Systematic", "Random", "P90", "P95", "P99")
	for _, row := range table.Rows {
		fmt.Fprintf(w, "%-12s %-12s %-8s %-8s %-8s\n",
			export.FormatValue(row.SystematicError),
			export.FormatValue(row.RandomError),
			row.P90, row.P95, row.P99)
	}
	fmt.Fprintln(w)
}

func printSummary(w io.Writer, summary margin.Summary) {
	fmt.Fprintf(w, "Margin summary over %d error pairs:\n", summary.Rows)
	fmt.Fprintf(w, "=======================================\n")
	for _, ts := range summary.Thresholds {
		if ts.Found == 0 {
			fmt.Fprintf(w, "P%.0f: not reached within the growth range\n", ts.Threshold*100)
			continue
		}
		fmt.Fprintf(w, "P%.0f: reached in %d/%d pairs, mean %.2f mm, range %.1f-%.1f mm\n",
			ts.Threshold*100, ts.Found, summary.Rows, ts.Mean, ts.Min, ts.Max)
	}
	fmt.Fprintln(w)
}
