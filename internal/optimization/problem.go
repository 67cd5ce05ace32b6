package optimization

import (
	"math"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"
)

// MaxBitsPerDimension bounds NumBitCode so a gene always fits in a uint64 and
// its grid index is exactly representable as a float64.
const MaxBitsPerDimension = 52

// Problem describes a bounded real-valued objective searched through a
// binary encoding of NumBitCode bits per dimension.
//
// LowerBounds and UpperBounds are mutated in place by the refinement loop
// while it runs and restored before it returns.
type Problem struct {
	Name        string            `json:"name" yaml:"name"`
	LowerBounds []float64         `json:"lower_bounds" yaml:"lower_bounds"`
	UpperBounds []float64         `json:"upper_bounds" yaml:"upper_bounds"`
	NumBitCode  int               `json:"num_bit_code" yaml:"num_bit_code"`
	Maximize    bool              `json:"maximize" yaml:"maximize"`
	Objective   ObjectiveFunction `json:"-" yaml:"-"`
}

// NewProblem creates a validated problem. The bound slices are copied.
func NewProblem(name string, lower, upper []float64, numBitCode int, maximize bool, objective ObjectiveFunction) (*Problem, error) {
	p := &Problem{
		Name:        name,
		LowerBounds: append([]float64(nil), lower...),
		UpperBounds: append([]float64(nil), upper...),
		NumBitCode:  numBitCode,
		Maximize:    maximize,
		Objective:   objective,
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate checks the bounds, encoding width and objective.
func (p *Problem) Validate() error {
	const op = "Problem.Validate"
	if p == nil {
		return InvalidParameterf("problem must not be nil").WithOperation(op)
	}
	if p.Objective == nil {
		return InvalidParameterf("problem %q has no objective", p.Name).WithOperation(op)
	}
	if len(p.LowerBounds) == 0 {
		return InvalidParameterf("problem %q has no dimensions", p.Name).WithOperation(op)
	}
	if len(p.LowerBounds) != len(p.UpperBounds) {
		return InvalidParameterf("problem %q: %d lower bounds but %d upper bounds",
			p.Name, len(p.LowerBounds), len(p.UpperBounds)).WithOperation(op)
	}
	for i := range p.LowerBounds {
		lb, ub := p.LowerBounds[i], p.UpperBounds[i]
		if math.IsNaN(lb) || math.IsNaN(ub) || math.IsInf(lb, 0) || math.IsInf(ub, 0) {
			return InvalidParameterf("problem %q: dimension %d has non-finite bounds", p.Name, i).WithOperation(op)
		}
		if lb > ub {
			return InvalidParameterf("problem %q: dimension %d lower bound %v exceeds upper bound %v",
				p.Name, i, lb, ub).WithOperation(op)
		}
	}
	if p.NumBitCode < 1 || p.NumBitCode > MaxBitsPerDimension {
		return InvalidParameterf("problem %q: num_bit_code must be in [1, %d], got %d",
			p.Name, MaxBitsPerDimension, p.NumBitCode).WithOperation(op)
	}
	return nil
}

// Dim returns the number of dimensions.
func (p *Problem) Dim() int { return len(p.LowerBounds) }

// IsMaxProblem reports whether larger fitness values are better.
func (p *Problem) IsMaxProblem() bool { return p.Maximize }

// ChromosomeLength returns the number of bits of an encoded solution.
func (p *Problem) ChromosomeLength() int { return p.Dim() * p.NumBitCode }

// Bounds returns copies of the current bounds.
func (p *Problem) Bounds() (lower, upper []float64) {
	return append([]float64(nil), p.LowerBounds...), append([]float64(nil), p.UpperBounds...)
}

// SetBounds installs copies of lower and upper as the current bounds.
func (p *Problem) SetBounds(lower, upper []float64) {
	p.LowerBounds = append(p.LowerBounds[:0:0], lower...)
	p.UpperBounds = append(p.UpperBounds[:0:0], upper...)
}

// Convert decodes chr into real values under the current bounds.
func (p *Problem) Convert(chr Chromosome) ([]float64, error) {
	return p.ConvertWithin(chr, p.LowerBounds, p.UpperBounds)
}

// ConvertWithin decodes chr into real values under the given bounds. Gene k
// of an n-bit field maps to lb + k*(ub-lb)/(2^n-1), so the all-zero and
// all-one fields land exactly on the bounds.
func (p *Problem) ConvertWithin(chr Chromosome, lower, upper []float64) ([]float64, error) {
	dim := len(lower)
	if len(upper) != dim {
		return nil, InvalidParameterf("bounds length mismatch: %d lower, %d upper", dim, len(upper)).
			WithOperation("Problem.Convert")
	}
	if len(chr) != dim*p.NumBitCode {
		return nil, InvalidParameterf("chromosome has %d bits, want %d", len(chr), dim*p.NumBitCode).
			WithOperation("Problem.Convert")
	}
	levels := float64(uint64(1)<<uint(p.NumBitCode) - 1)
	values := make([]float64, dim)
	for d := 0; d < dim; d++ {
		k := float64(chr.Uint(d*p.NumBitCode, (d+1)*p.NumBitCode))
		values[d] = lower[d] + k*(upper[d]-lower[d])/levels
	}
	return values, nil
}

// ComputeFitness decodes chr under the current bounds and evaluates it.
func (p *Problem) ComputeFitness(chr Chromosome) (float64, []float64, error) {
	values, err := p.Convert(chr)
	if err != nil {
		return 0, nil, err
	}
	fit, err := p.ComputeFitnessFromReal(values)
	return fit, values, err
}

// ComputeFitnessFromReal evaluates the objective at x.
func (p *Problem) ComputeFitnessFromReal(x []float64) (float64, error) {
	fit, err := p.Objective(x)
	if err != nil {
		return 0, WrapErrorf(err, "evaluating %q at %v", p.Name, x).WithOperation("Problem.ComputeFitnessFromReal")
	}
	return fit, nil
}

// Format returns the domain representation of a decoded solution, e.g. "[4, 2.5]".
func (p *Problem) Format(values []float64) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// SameBounds reports whether the problem currently has exactly the given bounds.
func (p *Problem) SameBounds(lower, upper []float64) bool {
	return floats.Same(p.LowerBounds, lower) && floats.Same(p.UpperBounds, upper)
}
