package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/quasarUnina/H2QGA/internal/optimization"
	"github.com/quasarUnina/H2QGA/internal/optimization/benchmark"
	"github.com/quasarUnina/H2QGA/internal/optimization/genetic"
	"github.com/quasarUnina/H2QGA/internal/optimization/interval"
	"github.com/quasarUnina/H2QGA/internal/optimization/iterative"
	"github.com/quasarUnina/H2QGA/internal/optimization/quantum"
)

// runFile is the layout of a --params file. Flags given on the command line
// take precedence over the file, which takes precedence over the environment.
type runFile struct {
	benchmark.Spec `yaml:",inline"`
	Seed           uint64                    `yaml:"seed"`
	Params         optimization.ParameterSet `yaml:"params"`
}

// runResult is the JSON form of a completed run.
type runResult struct {
	Problem string                     `json:"problem"`
	Label   string                     `json:"label"`
	Seed    uint64                     `json:"seed"`
	Best    *optimization.Individual   `json:"best"`
	Rounds  []*optimization.Individual `json:"rounds"`
}

func loadRunFile(path string, into *runFile) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(into); err != nil && err != io.EOF {
		return optimization.WrapErrorf(err, "reading %s", path).WithComponent("hqga")
	}
	return nil
}

func newRunCmd(a *app) *cobra.Command {
	var (
		flagSet    runFile
		paramsPath string
		output     string
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the iterative refinement loop",
		Long: `Runs --depth refinement rounds of the quantum genetic algorithm, narrowing
the search interval around each round's best solution, and prints the
per-round bests and the global best.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := runFile{
				Spec:   flagSet.Spec,
				Seed:   a.cfg.Optimization.RandomSeed,
				Params: a.cfg.ParameterSet(),
			}
			if paramsPath != "" {
				if err := loadRunFile(paramsPath, &f); err != nil {
					return err
				}
			}
			applyChangedFlags(cmd, &f, &flagSet)

			problem, err := f.Build(a.cfg.HQGA.NumBitCode)
			if err != nil {
				return err
			}
			params, err := f.Params.Refinement()
			if err != nil {
				return err
			}
			circuit, err := quantum.NewCircuit(params.GA().PopSize, problem.ChromosomeLength())
			if err != nil {
				return err
			}

			runner := iterative.NewRunner(
				genetic.NewOptimizer(f.Seed, a.logger),
				interval.Decoder{},
				iterative.WithLogger(a.logger),
			)
			best, rounds, err := runner.Run(cmd.Context(), quantum.NewSimulator(f.Seed), circuit, params, problem)
			if err != nil {
				return err
			}

			res := runResult{Problem: problem.Name, Label: params.String(), Seed: f.Seed, Best: best, Rounds: rounds}
			if output == "json" {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}
			printRun(cmd.OutOrStdout(), problem, res)
			return nil
		},
	}

	registerProblemFlags(cmd, &flagSet.Spec)
	fl := cmd.Flags()
	p := &flagSet.Params
	fl.StringVar(&paramsPath, "params", "", "YAML parameter file")
	fl.StringVarP(&output, "output", "o", "text", "Output format (text, json)")
	fl.Uint64Var(&flagSet.Seed, "seed", 0, "Random seed (default OPT_RANDOM_SEED)")
	fl.IntVar(&p.Depth, "depth", 0, "Refinement rounds (default HQGA_DEPTH)")
	fl.IntVar(&p.PopSize, "pop-size", 0, "Population size (default HQGA_POP_SIZE)")
	fl.IntVar(&p.MaxGen, "max-gen", 0, "Generations per round (default HQGA_MAX_GEN)")
	fl.Float64Var(&p.EpsilonInit, "eps-init", 0, "Rotation step as a fraction of pi (default HQGA_EPSILON_INIT)")
	fl.Float64Var(&p.Epsilon, "epsilon", 0, "Reinforcement decay target (default HQGA_EPSILON)")
	fl.Float64Var(&p.ProbMut, "prob-mut", 0, "Mutation probability (default HQGA_PROB_MUT)")
	fl.StringVar(&p.Elitism, "elitism", "", "Elitism policy: quantistic, deterministic, reinforcement, none (default HQGA_ELITISM)")
	fl.IntVar(&p.NumShots, "shots", 0, "Measurements per circuit execution (default HQGA_NUM_SHOTS)")
	fl.BoolVar(&p.ProgressBar, "progress", false, "Log every generation")
	fl.BoolVar(&p.DrawCircuit, "draw-circuit", false, "Log the circuit diagram")
	fl.BoolVar(&p.Verbose, "verbose", true, "Log narrowed bounds at info level")
	return cmd
}

// applyChangedFlags copies the explicitly set flags from flagSet into f.
func applyChangedFlags(cmd *cobra.Command, f, flagSet *runFile) {
	src, dst := &flagSet.Params, &f.Params
	overrides := map[string]func(){
		"problem":      func() { f.Problem = flagSet.Problem },
		"dim":          func() { f.Dim = flagSet.Dim },
		"lower":        func() { f.LowerBounds = flagSet.LowerBounds },
		"upper":        func() { f.UpperBounds = flagSet.UpperBounds },
		"bits":         func() { f.NumBitCode = flagSet.NumBitCode },
		"seed":         func() { f.Seed = flagSet.Seed },
		"depth":        func() { dst.Depth = src.Depth },
		"pop-size":     func() { dst.PopSize = src.PopSize },
		"max-gen":      func() { dst.MaxGen = src.MaxGen },
		"eps-init":     func() { dst.EpsilonInit = src.EpsilonInit },
		"epsilon":      func() { dst.Epsilon = src.Epsilon },
		"prob-mut":     func() { dst.ProbMut = src.ProbMut },
		"elitism":      func() { dst.Elitism = src.Elitism },
		"shots":        func() { dst.NumShots = src.NumShots },
		"progress":     func() { dst.ProgressBar = src.ProgressBar },
		"draw-circuit": func() { dst.DrawCircuit = src.DrawCircuit },
		"verbose":      func() { dst.Verbose = src.Verbose },
	}
	for name, apply := range overrides {
		if cmd.Flags().Changed(name) {
			apply()
		}
	}
}

func printRun(w io.Writer, problem *optimization.Problem, res runResult) {
	fmt.Fprintf(w, "problem: %s\n", res.Problem)
	fmt.Fprintf(w, "params: %s\n", res.Label)
	for _, r := range res.Rounds {
		fmt.Fprintf(w, "round %d: %s fitness=%g chromosome=%s\n",
			r.Round+1, problem.Format(r.Solution), r.Fitness, r.Chromosome)
	}
	fmt.Fprintf(w, "best: %s fitness=%g chromosome=%s round=%d\n",
		res.Best.Phenotype, res.Best.Fitness, res.Best.Chromosome, res.Best.Round+1)
}
