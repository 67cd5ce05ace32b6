// Package gridsearch finds reference optima by exhaustive evaluation of a
// discretized domain.
package gridsearch

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/combin"

	"github.com/quasarUnina/H2QGA/internal/optimization"
)

// DefaultMaxPoints caps the number of grid points evaluated by an Oracle.
const DefaultMaxPoints = 1_000_000

// cancelCheckInterval is the number of evaluations between context checks.
const cancelCheckInterval = 1024

// Result holds every grid point tied for the best fitness, in enumeration
// order, and the fitness of each.
type Result struct {
	Solutions [][]float64 `json:"solutions"`
	Fitnesses []float64   `json:"fitnesses"`
}

// Oracle enumerates the Cartesian product of per-dimension discretizations.
type Oracle struct {
	maxPoints int
	logger    *zap.Logger
}

// NewOracle creates an oracle refusing grids larger than maxPoints
// (DefaultMaxPoints when maxPoints <= 0). A nil logger disables logging.
func NewOracle(maxPoints int, logger *zap.Logger) *Oracle {
	if maxPoints <= 0 {
		maxPoints = DefaultMaxPoints
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Oracle{maxPoints: maxPoints, logger: logger.Named("gridsearch")}
}

// GetOptimum runs a default oracle without cancellation or logging.
func GetOptimum(problem *optimization.Problem, numSolutions int) (*Result, error) {
	return NewOracle(0, nil).Optimum(context.Background(), problem, numSolutions)
}

// Optimum discretizes every dimension of problem into numSolutions equally
// spaced points, endpoints included, and evaluates the objective on every
// combination. Dimension 0 varies slowest. All points whose fitness equals the
// best fitness exactly are returned; no tolerance is applied.
func (o *Oracle) Optimum(ctx context.Context, problem *optimization.Problem, numSolutions int) (*Result, error) {
	const op = "Oracle.Optimum"

	if numSolutions < 2 {
		return nil, optimization.WrapErrorf(fmt.Errorf("%w: %w", optimization.ErrInvalidParameter, optimization.ErrDivisionByZero),
			"num_solutions must be >= 2 to compute a step, got %d", numSolutions).
			WithOperation(op).WithComponent("gridsearch")
	}
	if err := problem.Validate(); err != nil {
		return nil, err
	}

	dim := problem.Dim()
	total := 1
	for d := 0; d < dim; d++ {
		if total > o.maxPoints/numSolutions {
			return nil, optimization.InvalidParameterf("grid of %d^%d points exceeds limit of %d",
				numSolutions, dim, o.maxPoints).WithOperation(op).WithComponent("gridsearch")
		}
		total *= numSolutions
	}

	axes := make([][]float64, dim)
	lens := make([]int, dim)
	for d := 0; d < dim; d++ {
		lb, ub := problem.LowerBounds[d], problem.UpperBounds[d]
		o.logger.Debug("Grid step",
			zap.Int("dimension", d),
			zap.Float64("step", (ub-lb)/float64(numSolutions-1)),
		)
		axes[d] = floats.Span(make([]float64, numSolutions), lb, ub)
		lens[d] = numSolutions
	}

	maximize := problem.IsMaxProblem()
	var (
		points    = make([][]float64, 0, total)
		fitnesses = make([]float64, 0, total)
		bestFit   float64
	)
	idx := make([]int, dim)
	gen := combin.NewCartesianGenerator(lens)
	for n := 0; gen.Next(); n++ {
		if n%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		gen.Product(idx)
		x := make([]float64, dim)
		for d, i := range idx {
			x[d] = axes[d][i]
		}
		fit, err := problem.ComputeFitnessFromReal(x)
		if err != nil {
			return nil, err
		}
		if n == 0 || optimization.IsBetter(fit, bestFit, maximize) {
			bestFit = fit
		}
		points = append(points, x)
		fitnesses = append(fitnesses, fit)
	}

	res := &Result{}
	for i, fit := range fitnesses {
		if fit == bestFit {
			res.Solutions = append(res.Solutions, points[i])
			res.Fitnesses = append(res.Fitnesses, fit)
		}
	}

	o.logger.Debug("Grid search completed",
		zap.String("problem", problem.Name),
		zap.Int("points", len(points)),
		zap.Int("ties", len(res.Solutions)),
		zap.Float64("best_fitness", bestFit),
	)
	return res, nil
}
