package main

import (
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/quasarUnina/H2QGA/internal/config"
	"github.com/quasarUnina/H2QGA/internal/logging"
	"github.com/quasarUnina/H2QGA/internal/optimization/benchmark"
)

// app carries the state shared by every subcommand.
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	logLevel  string
	logFormat string
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "hqga",
		Short: "Iterative hybrid quantum genetic algorithm",
		Long: `hqga runs the iterative refinement loop of a hybrid quantum/classical
genetic algorithm on benchmark problems, and computes reference optima by
exhaustive grid search.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			a.cfg = cfg

			level := cfg.Logging.Level
			if cmd.Flags().Changed("log-level") {
				level = a.logLevel
			}
			a.logger = logging.New(&logging.Config{Level: level, Format: a.logFormat}, cmd.ErrOrStderr())
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&a.logFormat, "log-format", "console", "Log format (console, json)")

	root.AddCommand(newRunCmd(a), newGridCmd(a), newVersionCmd())
	return root
}

// registerProblemFlags binds the benchmark selection flags of cmd to spec.
func registerProblemFlags(cmd *cobra.Command, spec *benchmark.Spec) {
	cmd.Flags().StringVar(&spec.Problem, "problem", "neg-quadratic", "Benchmark problem "+joinNames())
	cmd.Flags().IntVar(&spec.Dim, "dim", 1, "Number of dimensions when no bounds are given")
	cmd.Flags().Float64SliceVar(&spec.LowerBounds, "lower", nil, "Lower bound of every dimension")
	cmd.Flags().Float64SliceVar(&spec.UpperBounds, "upper", nil, "Upper bound of every dimension")
	cmd.Flags().IntVar(&spec.NumBitCode, "bits", 0, "Bits per dimension (default HQGA_NUM_BIT_CODE)")
}

func joinNames() string {
	return "(" + strings.Join(benchmark.Names(), ", ") + ")"
}
