package cmd

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ecoscen/ecoscen/scen"
	"github.com/ecoscen/ecoscen/scen/engine"
	"github.com/ecoscen/ecoscen/scen/results"
)

var (
	paramsSubsystem string   // ecosim, ecotracer, or empty for both
	paramsEnvOnly   bool     // environment scalars only
	paramsPrefixes  []string // per-group field filter
	paramsGroups    []string // group filter (names or 1-based indices)
)

// paramsCmd lists the settable parameter names a model exposes
var paramsCmd = &cobra.Command{
	Use:   "params",
	Short: "List settable parameter names for a model",
	Run: func(cmd *cobra.Command, args []string) {
		setupLogging()

		if modelPath == "" {
			logrus.Fatalf("Model file not provided. Exiting.")
		}
		cfg, err := scen.LoadConfig()
		if err != nil {
			logrus.Fatalf("%v", err)
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

		filter := scen.ParameterFilter{
			EnvOnly:  paramsEnvOnly,
			Prefixes: paramsPrefixes,
			Groups:   paramsGroups,
		}
		switch paramsSubsystem {
		case "":
		case "ecosim":
			s := engine.StageEcosim
			filter.Stage = &s
		case "ecotracer":
			s := engine.StageEcotracer
			filter.Stage = &s
		default:
			logrus.Fatalf("Unknown subsystem %q (want ecosim or ecotracer)", paramsSubsystem)
		}

		names, err := si.AvailableParameterNames(filter)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		for _, n := range names {
			fmt.Println(n)
		}
		logrus.Infof("%d parameter(s)", len(names))
	},
}

// varsCmd lists the result variables a batch can collect
var varsCmd = &cobra.Command{
	Use:   "vars",
	Short: "List collectable result variable names",
	Run: func(cmd *cobra.Command, args []string) {
		setupLogging()
		for _, n := range results.VariableNames() {
			fmt.Println(n)
		}
	},
}

func init() {
	paramsCmd.Flags().StringVar(&modelPath, "model", "", "Model definition file")
	paramsCmd.Flags().StringVar(&paramsSubsystem, "subsystem", "", "Limit to one subsystem (ecosim or ecotracer)")
	paramsCmd.Flags().BoolVar(&paramsEnvOnly, "env", false, "Environment scalars only")
	paramsCmd.Flags().StringSliceVar(&paramsPrefixes, "fields", nil, "Per-group field prefixes or display names")
	paramsCmd.Flags().StringSliceVar(&paramsGroups, "groups", nil, "Group names or 1-based indices")
	paramsCmd.Flags().StringVar(&logLevel, "log", "warn", "Log level")

	rootCmd.AddCommand(paramsCmd)
	rootCmd.AddCommand(varsCmd)
}
