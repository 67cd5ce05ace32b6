// Package benchmark provides named test objectives with their customary
// search domains.
package benchmark

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"

	"github.com/quasarUnina/H2QGA/internal/optimization"
)

// Definition describes a registered benchmark objective.
type Definition struct {
	Name        string
	Description string
	// Lower and Upper are applied to every dimension.
	Lower, Upper float64
	Maximize     bool
	// Optimum is the known best fitness.
	Optimum float64
	Func    func(x []float64) float64
}

var registry = map[string]Definition{
	"sphere": {
		Name:        "sphere",
		Description: "Simple unimodal function",
		Lower:       -5.12,
		Upper:       5.12,
		Func:        Sphere,
	},
	"rastrigin": {
		Name:        "rastrigin",
		Description: "Highly multimodal function",
		Lower:       -5.12,
		Upper:       5.12,
		Func:        Rastrigin,
	},
	"rosenbrock": {
		Name:        "rosenbrock",
		Description: "Valley-shaped function",
		Lower:       -2.048,
		Upper:       2.048,
		Func:        Rosenbrock,
	},
	"ackley": {
		Name:        "ackley",
		Description: "Multimodal with many local optima",
		Lower:       -32.768,
		Upper:       32.768,
		Func:        Ackley,
	},
	"neg-quadratic": {
		Name:        "neg-quadratic",
		Description: "Concave paraboloid peaking at 4 in every dimension",
		Lower:       0,
		Upper:       10,
		Maximize:    true,
		Func:        NegQuadratic,
	},
}

// Names returns the registered benchmark names in lexical order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the definition registered under name.
func Lookup(name string) (Definition, error) {
	def, ok := registry[name]
	if !ok {
		return Definition{}, optimization.WrapErrorf(optimization.ErrUnknownProblem, "%q, available: %v", name, Names()).
			WithComponent("benchmark")
	}
	return def, nil
}

// NewProblem builds a dim-dimensional problem over the benchmark's default
// domain.
func NewProblem(name string, dim, numBitCode int) (*optimization.Problem, error) {
	def, err := Lookup(name)
	if err != nil {
		return nil, err
	}
	if dim < 1 {
		return nil, optimization.InvalidParameterf("dim must be >= 1, got %d", dim).WithComponent("benchmark")
	}
	lower := make([]float64, dim)
	upper := make([]float64, dim)
	for i := range lower {
		lower[i], upper[i] = def.Lower, def.Upper
	}
	return def.Problem(lower, upper, numBitCode)
}

// Spec selects a benchmark and its domain. Explicit bounds override the
// default domain and Dim.
type Spec struct {
	Problem     string    `json:"problem" yaml:"problem"`
	Dim         int       `json:"dim,omitempty" yaml:"dim,omitempty"`
	LowerBounds []float64 `json:"lower_bounds,omitempty" yaml:"lower_bounds,omitempty"`
	UpperBounds []float64 `json:"upper_bounds,omitempty" yaml:"upper_bounds,omitempty"`
	NumBitCode  int       `json:"num_bit_code,omitempty" yaml:"num_bit_code,omitempty"`
}

// Build creates the problem, using defaultBits when NumBitCode is unset and
// a single dimension when neither Dim nor bounds are given.
func (s Spec) Build(defaultBits int) (*optimization.Problem, error) {
	bits := s.NumBitCode
	if bits == 0 {
		bits = defaultBits
	}
	if s.LowerBounds == nil && s.UpperBounds == nil {
		dim := s.Dim
		if dim == 0 {
			dim = 1
		}
		return NewProblem(s.Problem, dim, bits)
	}
	def, err := Lookup(s.Problem)
	if err != nil {
		return nil, err
	}
	return def.Problem(s.LowerBounds, s.UpperBounds, bits)
}

// Problem builds a problem over explicit bounds.
func (d Definition) Problem(lower, upper []float64, numBitCode int) (*optimization.Problem, error) {
	f := d.Func
	return optimization.NewProblem(d.Name, lower, upper, numBitCode, d.Maximize, func(x []float64) (float64, error) {
		return f(x), nil
	})
}

// Sphere is sum(x_i^2).
func Sphere(x []float64) float64 {
	return floats.Dot(x, x)
}

// Rastrigin is 10n + sum(x_i^2 - 10cos(2*pi*x_i)).
func Rastrigin(x []float64) float64 {
	sum := 10 * float64(len(x))
	for _, v := range x {
		sum += v*v - 10*math.Cos(2*math.Pi*v)
	}
	return sum
}

// Rosenbrock is sum(100(x_{i+1} - x_i^2)^2 + (1 - x_i)^2).
func Rosenbrock(x []float64) float64 {
	sum := 0.0
	for i := 0; i < len(x)-1; i++ {
		a := x[i+1] - x[i]*x[i]
		b := 1 - x[i]
		sum += 100*a*a + b*b
	}
	return sum
}

// Ackley has its global minimum 0 at the origin.
func Ackley(x []float64) float64 {
	n := float64(len(x))
	sumSq := floats.Dot(x, x)
	sumCos := 0.0
	for _, v := range x {
		sumCos += math.Cos(2 * math.Pi * v)
	}
	return -20*math.Exp(-0.2*math.Sqrt(sumSq/n)) - math.Exp(sumCos/n) + 20 + math.E
}

// NegQuadratic is -sum((x_i - 4)^2).
func NegQuadratic(x []float64) float64 {
	sum := 0.0
	for _, v := range x {
		sum -= (v - 4) * (v - 4)
	}
	return sum
}
