// Package iterative implements the outer refinement loop of the hybrid
// quantum genetic algorithm: every round runs a full inner genetic search and
// narrows the search interval around the round's best chromosome.
package iterative

import (
	"context"

	"go.uber.org/zap"

	"github.com/quasarUnina/H2QGA/internal/optimization"
	"github.com/quasarUnina/H2QGA/internal/optimization/quantum"
)

const component = "iterative"

// InnerOptimizer runs one complete genetic search on the problem's current bounds.
type InnerOptimizer interface {
	Optimize(ctx context.Context, device quantum.Device, circuit *quantum.Circuit,
		params optimization.GAParameters, problem *optimization.Problem) (*optimization.Evolution, error)
}

// Decoder turns a chromosome and the bounds it was decoded under into the
// bounds of the next round.
type Decoder interface {
	Decode(chr optimization.Chromosome, lower, upper []float64, numBitCode, dim int) ([]float64, []float64, error)
}

// Round describes a completed refinement round.
type Round struct {
	Index     int
	Depth     int
	Best      *optimization.Individual
	Lower     []float64
	Upper     []float64
	NextLower []float64
	NextUpper []float64
}

// Observer is called after every completed round.
type Observer func(Round)

// Runner drives the refinement loop.
type Runner struct {
	inner    InnerOptimizer
	decoder  Decoder
	logger   *zap.Logger
	observer Observer
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger. Narrowed bounds are logged at Info level when
// the parameters are verbose and at Debug level otherwise.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithObserver registers a callback invoked after every round.
func WithObserver(fn Observer) Option {
	return func(r *Runner) { r.observer = fn }
}

// NewRunner creates a refinement loop around inner and decoder.
func NewRunner(inner InnerOptimizer, decoder Decoder, opts ...Option) *Runner {
	r := &Runner{
		inner:   inner,
		decoder: decoder,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.Named(component)
	return r
}

// Run executes params.RefinementDepth() rounds and returns a deep copy of the
// best individual of all rounds together with every round's best, in order.
//
// The global best is replaced only by a strictly better round best, so on
// equal fitness the earliest round wins. Its Solution and Phenotype are
// decoded under the bounds of the round that produced it.
//
// problem.LowerBounds and problem.UpperBounds are restored to their values
// at entry on every return path, including errors and cancellation.
// Cancellation is checked between rounds.
func (r *Runner) Run(ctx context.Context, device quantum.Device, circuit *quantum.Circuit,
	params optimization.RefinementParameters, problem *optimization.Problem) (*optimization.Individual, []*optimization.Individual, error) {
	const op = "Runner.Run"

	depth := params.RefinementDepth()
	if depth < 1 {
		return nil, nil, optimization.InvalidParameterf("depth must be >= 1, got %d", depth).
			WithOperation(op).WithComponent(component)
	}
	if err := problem.Validate(); err != nil {
		return nil, nil, err
	}
	if device == nil || circuit == nil {
		return nil, nil, optimization.InvalidParameterf("device and circuit are required").
			WithOperation(op).WithComponent(component)
	}

	ga := params.GA()
	logger := r.logger.With(zap.String("problem", problem.Name), zap.String("params", params.String()))
	if ga.JobID != "" {
		logger = logger.With(zap.String("job_id", ga.JobID))
	}
	logBounds := logger.Debug
	if ga.Verbose {
		logBounds = logger.Info
	}

	initialLower, initialUpper := problem.Bounds()
	defer problem.SetBounds(initialLower, initialUpper)

	lower, upper := initialLower, initialUpper
	var (
		globalBest           *optimization.Individual
		bestLower, bestUpper []float64
		bests                = make([]*optimization.Individual, 0, depth)
		maximize             = problem.IsMaxProblem()
	)

	logger.Debug("Starting refinement", zap.Int("depth", depth))

	for g := 0; g < depth; g++ {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		circuit.Reset()
		problem.SetBounds(lower, upper)

		evo, err := r.inner.Optimize(ctx, device, circuit, params, problem)
		if err != nil {
			return nil, nil, optimization.WrapErrorf(err, "round %d", g).WithOperation(op).WithComponent(component)
		}
		if evo == nil || evo.Best == nil {
			return nil, nil, optimization.NewErrorf("round %d: inner optimizer returned no best individual", g).
				WithOperation(op).WithComponent(component)
		}
		roundBest := evo.Best
		roundBest.Round = g

		nextLower, nextUpper, err := r.decoder.Decode(roundBest.Chromosome, problem.LowerBounds, problem.UpperBounds,
			problem.NumBitCode, problem.Dim())
		if err != nil {
			return nil, nil, optimization.WrapErrorf(err, "round %d: decoding bounds", g).WithOperation(op).WithComponent(component)
		}
		logBounds("Bounds narrowed",
			zap.Int("round", g),
			zap.Float64s("lower", nextLower),
			zap.Float64s("upper", nextUpper),
		)

		bests = append(bests, roundBest)
		if globalBest == nil || optimization.IsBetter(roundBest.Fitness, globalBest.Fitness, maximize) {
			globalBest = roundBest.Clone()
			bestLower, bestUpper = problem.Bounds()
		}

		if r.observer != nil {
			roundLower, roundUpper := problem.Bounds()
			r.observer(Round{
				Index:     g,
				Depth:     depth,
				Best:      roundBest.Clone(),
				Lower:     roundLower,
				Upper:     roundUpper,
				NextLower: append([]float64(nil), nextLower...),
				NextUpper: append([]float64(nil), nextUpper...),
			})
		}

		lower, upper = nextLower, nextUpper
	}

	values, err := problem.ConvertWithin(globalBest.Chromosome, bestLower, bestUpper)
	if err != nil {
		return nil, nil, optimization.WrapError(err, "converting global best").WithOperation(op).WithComponent(component)
	}
	globalBest.Solution = values
	globalBest.Phenotype = problem.Format(values)

	logger.Info("Refinement completed",
		zap.Int("rounds", depth),
		zap.Int("best_round", globalBest.Round),
		zap.Float64("best_fitness", globalBest.Fitness),
		zap.String("best", globalBest.Phenotype),
	)

	return globalBest, bests, nil
}
