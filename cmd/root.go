package cmd

import (
	"context"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ecoscen/ecoscen/scen"
	"github.com/ecoscen/ecoscen/scen/engine"
	"github.com/ecoscen/ecoscen/scen/results"
	"github.com/ecoscen/ecoscen/scen/table"
)

var (
	// CLI flags for the run command
	modelPath     string   // Model definition file
	scenariosPath string   // Scenario table CSV
	outputDir     string   // Directory receiving result CSVs
	saveVars      []string // Result variables to collect
	years         int      // Simulation horizon in years
	workers       int      // Worker count for parallel runs
	parallel      bool     // Run scenarios on a worker pool
	logLevel      string   // Log verbosity level
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "ecoscen",
	Short: "Scenario batch runner for EwE-style ecosystem simulations",
}

func setupLogging() {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		logrus.Fatalf("Invalid log level: %s", logLevel)
	}
	logrus.SetLevel(level)
}

// runCmd executes a scenario batch using parameters from CLI flags
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a scenario batch against a model",
	Run: func(cmd *cobra.Command, args []string) {
		setupLogging()

		if modelPath == "" {
			logrus.Fatalf("Model file not provided. Exiting.")
		}
		if scenariosPath == "" {
			logrus.Fatalf("Scenario table not provided. Exiting.")
		}

		cfg, err := scen.LoadConfig()
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		if workers > 0 {
			cfg.Workers = workers
		}

		tbl, err := table.Load(scenariosPath)
		if err != nil {
			logrus.Fatalf("loading scenario table: %v", err)
		}

		si, err := scen.New(modelPath, cfg, engine.OpenMemorySession)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		defer func() {
			if err := si.Cleanup(); err != nil {
				logrus.Warnf("cleanup: %v", err)
			}
		}()

		if years > 0 {
			if err := si.SetSimulationDuration(years); err != nil {
				logrus.Fatalf("%v", err)
			}
		}

		startTime := time.Now()
		logrus.Infof("Running %d scenario(s) from %s", tbl.NScenarios(), scenariosPath)

		ctx := context.Background()
		var rs *results.ResultSet
		if parallel {
			rs, err = si.RunScenariosParallel(ctx, tbl, saveVars, cfg.Workers)
		} else {
			rs, err = si.RunScenarios(ctx, tbl, saveVars)
		}
		if err != nil {
			logrus.Fatalf("%v", err)
		}

		if len(rs.Failed) > 0 {
			logrus.Warnf("%d scenario(s) failed: %v", len(rs.Failed), rs.Failed)
		}

		if outputDir != "" {
			if err := os.MkdirAll(outputDir, 0o755); err != nil {
				logrus.Fatalf("creating output directory: %v", err)
			}
			if err := rs.WriteCSV(outputDir); err != nil {
				logrus.Fatalf("writing results: %v", err)
			}
		}

		logrus.Infof("Batch complete in %s.", time.Since(startTime).Round(time.Millisecond))
	},
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// init sets up CLI flags and subcommands
func init() {
	runCmd.Flags().StringVar(&modelPath, "model", "", "Model definition file")
	runCmd.Flags().StringVar(&scenariosPath, "scenarios", "", "Scenario table CSV (scenario column plus one column per variable parameter)")
	runCmd.Flags().StringVar(&outputDir, "output", "", "Directory for result CSVs (skipped when empty)")
	runCmd.Flags().StringSliceVar(&saveVars, "save-vars", nil, "Result variables to collect (default set when empty)")
	runCmd.Flags().IntVar(&years, "years", 0, "Simulation horizon in years (model default when 0)")
	runCmd.Flags().IntVar(&workers, "workers", 0, "Worker count for --parallel (one per CPU when 0)")
	runCmd.Flags().BoolVar(&parallel, "parallel", false, "Run scenarios on a worker pool")
	runCmd.Flags().StringVar(&logLevel, "log", "info", "Log level (trace, debug, info, warn, error, fatal, panic)")

	rootCmd.AddCommand(runCmd)
}
