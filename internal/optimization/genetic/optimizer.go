// Package genetic implements the quantum-assisted genetic search run inside
// every refinement round.
package genetic

import (
	"context"
	"math"
	"math/rand/v2"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/quasarUnina/H2QGA/internal/optimization"
	"github.com/quasarUnina/H2QGA/internal/optimization/quantum"
)

// Optimizer evolves a population of quantum chromosomes. Each generation it
// measures the circuit, evaluates the measured chromosomes, applies the
// elitism policy to the generation's best individual, rotates every other
// individual toward the best chromosome found so far and mutates it.
//
// Rotation steps are expressed as fractions of pi, so an epsilon of 0.5
// moves a qubit halfway between superposition and a basis state.
//
// An Optimizer is not safe for concurrent use.
type Optimizer struct {
	src    rand.Source
	logger *zap.Logger
}

// NewOptimizer creates an optimizer whose mutations are drawn from a source
// seeded with seed. A nil logger disables logging.
func NewOptimizer(seed uint64, logger *zap.Logger) *Optimizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Optimizer{
		src:    rand.NewPCG(seed, ^seed),
		logger: logger.Named("genetic"),
	}
}

// Optimize runs MaxGen generations on circuit and returns the best individual,
// the measured population of every generation and every generation's best.
func (o *Optimizer) Optimize(ctx context.Context, device quantum.Device, circuit *quantum.Circuit,
	params optimization.GAParameters, problem *optimization.Problem) (*optimization.Evolution, error) {
	const op = "Optimizer.Optimize"

	p := params.GA()
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := problem.Validate(); err != nil {
		return nil, err
	}
	if circuit.PopulationSize() != p.PopSize || circuit.ChromosomeLength() != problem.ChromosomeLength() {
		return nil, optimization.InvalidParameterf("circuit is %dx%d, want %dx%d",
			circuit.PopulationSize(), circuit.ChromosomeLength(), p.PopSize, problem.ChromosomeLength()).
			WithOperation(op).WithComponent("genetic")
	}

	logger := o.logger
	if p.JobID != "" {
		logger = logger.With(zap.String("job_id", p.JobID))
	}
	if p.DrawCircuit {
		logger.Info("Circuit", zap.String("diagram", circuit.Draw()))
	}

	decayTarget, decays := params.DecayTarget()
	maximize := problem.IsMaxProblem()

	evo := &optimization.Evolution{
		History: make([][]optimization.Chromosome, 0, p.MaxGen),
		Bests:   make([]*optimization.Individual, 0, p.MaxGen),
	}

	for gen := 0; gen < p.MaxGen; gen++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		population, err := device.Measure(ctx, circuit, p.NumShots)
		if err != nil {
			return nil, optimization.WrapErrorf(err, "measuring generation %d", gen).
				WithOperation(op).WithComponent("genetic")
		}

		generation := make([]optimization.Chromosome, len(population))
		var genBest *optimization.Individual
		eliteIdx := -1
		for i, chr := range population {
			generation[i] = chr.Clone()
			fit, values, err := problem.ComputeFitness(chr)
			if err != nil {
				return nil, err
			}
			if genBest == nil || optimization.IsBetter(fit, genBest.Fitness, maximize) {
				genBest = &optimization.Individual{Chromosome: chr.Clone(), Fitness: fit, Solution: values}
				eliteIdx = i
			}
		}
		evo.History = append(evo.History, generation)
		evo.Bests = append(evo.Bests, genBest.Clone())

		if evo.Best == nil || optimization.IsBetter(genBest.Fitness, evo.Best.Fitness, maximize) {
			evo.Best = genBest.Clone()
		}

		if p.ProgressBar {
			logger.Info("Generation completed",
				zap.Int("generation", gen+1),
				zap.Int("max_gen", p.MaxGen),
				zap.Float64("generation_best", genBest.Fitness),
				zap.Float64("best", evo.Best.Fitness),
			)
		}

		if gen == p.MaxGen-1 {
			break
		}

		eps := p.EpsilonInit
		if decays && p.MaxGen > 1 {
			eps = p.EpsilonInit + (decayTarget-p.EpsilonInit)*float64(gen+1)/float64(p.MaxGen-1)
		}
		o.evolve(circuit, p, eliteIdx, genBest.Chromosome, evo.Best.Chromosome, eps)
	}

	return evo, nil
}

// evolve updates the rotation angles for the next generation.
func (o *Optimizer) evolve(circuit *quantum.Circuit, p optimization.Parameters, eliteIdx int,
	elite, best optimization.Chromosome, eps float64) {
	mutation := distuv.Bernoulli{P: p.ProbMut, Src: o.src}
	for ind := 0; ind < circuit.PopulationSize(); ind++ {
		if ind == eliteIdx && p.Elitism != optimization.ElitismNone {
			for gene := range elite {
				switch p.Elitism {
				case optimization.ElitismDeterministic:
					circuit.SetAngle(ind, gene, float64(best[gene])*math.Pi)
				case optimization.ElitismReinforcement:
					circuit.Rotate(ind, gene, direction(elite[gene])*eps*math.Pi)
				}
			}
			continue
		}
		for gene := range best {
			circuit.Rotate(ind, gene, direction(best[gene])*p.EpsilonInit*math.Pi)
			if mutation.Rand() == 1 {
				circuit.Flip(ind, gene)
			}
		}
	}
}

func direction(bit byte) float64 {
	if bit != 0 {
		return 1
	}
	return -1
}
