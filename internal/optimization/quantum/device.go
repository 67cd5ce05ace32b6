package quantum

import (
	"context"
	"math/rand/v2"
	"sync"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/quasarUnina/H2QGA/internal/optimization"
)

// Device executes a circuit and returns one measured chromosome per
// individual.
type Device interface {
	Measure(ctx context.Context, c *Circuit, shots int) ([]optimization.Chromosome, error)
}

// Simulator samples measurement outcomes from the rotation angles of a
// circuit. With more than one shot, the most frequent outcome of each
// individual wins; ties go to the outcome that reached the count first.
type Simulator struct {
	mu  sync.Mutex
	src rand.Source
}

// NewSimulator returns a simulator seeded for reproducible measurements.
func NewSimulator(seed uint64) *Simulator {
	return &Simulator{src: rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)}
}

// Measure samples the circuit shots times.
func (s *Simulator) Measure(ctx context.Context, c *Circuit, shots int) ([]optimization.Chromosome, error) {
	if shots < 1 {
		return nil, optimization.InvalidParameterf("shots must be >= 1, got %d", shots).
			WithOperation("Simulator.Measure")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]optimization.Chromosome, c.PopulationSize())
	for ind := range out {
		counts := make(map[string]int, shots)
		var best optimization.Chromosome
		bestCount := 0
		for shot := 0; shot < shots; shot++ {
			chr := s.sample(c, ind)
			key := chr.String()
			counts[key]++
			if counts[key] > bestCount {
				best, bestCount = chr, counts[key]
			}
		}
		out[ind] = best
	}
	return out, nil
}

func (s *Simulator) sample(c *Circuit, ind int) optimization.Chromosome {
	chr := make(optimization.Chromosome, c.ChromosomeLength())
	for gene := range chr {
		b := distuv.Bernoulli{P: c.Probability(ind, gene), Src: s.src}
		chr[gene] = byte(b.Rand())
	}
	return chr
}
