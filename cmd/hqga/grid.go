package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quasarUnina/H2QGA/internal/optimization/benchmark"
	"github.com/quasarUnina/H2QGA/internal/optimization/gridsearch"
)

func newGridCmd(a *app) *cobra.Command {
	var (
		spec      benchmark.Spec
		numPoints int
	)
	cmd := &cobra.Command{
		Use:   "grid",
		Short: "Find the reference optimum by exhaustive grid search",
		Long: `Evaluates the problem on every point of a grid with --num-solutions
equally spaced values per dimension and prints all points tied for the best
fitness.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			problem, err := spec.Build(a.cfg.HQGA.NumBitCode)
			if err != nil {
				return err
			}
			oracle := gridsearch.NewOracle(a.cfg.Optimization.GridMaxPoints, a.logger)
			res, err := oracle.Optimum(cmd.Context(), problem, numPoints)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "problem: %s\n", problem.Name)
			fmt.Fprintf(out, "optima: %d\n", len(res.Solutions))
			for i, sol := range res.Solutions {
				fmt.Fprintf(out, "  %s fitness=%g\n", problem.Format(sol), res.Fitnesses[i])
			}
			return nil
		},
	}
	registerProblemFlags(cmd, &spec)
	cmd.Flags().IntVar(&numPoints, "num-solutions", 101, "Grid points per dimension, endpoints included")
	return cmd
}
