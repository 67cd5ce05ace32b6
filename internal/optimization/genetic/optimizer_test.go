package genetic

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/quasarUnina/H2QGA/internal/optimization"
	"github.com/quasarUnina/H2QGA/internal/optimization/quantum"
)

// scriptedDevice returns one fixed population per call.
type scriptedDevice struct {
	generations [][]string
	calls       int
	err         error
}

func (d *scriptedDevice) Measure(_ context.Context, _ *quantum.Circuit, _ int) ([]optimization.Chromosome, error) {
	if d.err != nil {
		return nil, d.err
	}
	gen := d.generations[d.calls%len(d.generations)]
	d.calls++
	out := make([]optimization.Chromosome, len(gen))
	for i, s := range gen {
		chr, err := optimization.ParseChromosome(s)
		if err != nil {
			return nil, err
		}
		out[i] = chr
	}
	return out, nil
}

func identityProblem(t *testing.T, maximize bool) *optimization.Problem {
	t.Helper()
	p, err := optimization.NewProblem("identity", []float64{0}, []float64{3}, 2, maximize,
		func(x []float64) (float64, error) { return x[0], nil })
	require.NoError(t, err)
	return p
}

func newCircuit(t *testing.T, pop, length int) *quantum.Circuit {
	t.Helper()
	c, err := quantum.NewCircuit(pop, length)
	require.NoError(t, err)
	return c
}

func TestOptimizeTracksBest(t *testing.T) {
	device := &scriptedDevice{generations: [][]string{
		{"10", "01", "11"},
		{"00", "11", "10"},
	}}
	params := optimization.NewExtensionsParameters(1, 3, 2, 0.25, 0, optimization.ElitismQuantum)
	opt := NewOptimizer(1, nil)

	evo, err := opt.Optimize(context.Background(), device, newCircuit(t, 3, 2), params, identityProblem(t, false))
	require.NoError(t, err)

	require.Len(t, evo.History, 2)
	require.Len(t, evo.Bests, 2)
	assert.Equal(t, "01", evo.Bests[0].Chromosome.String())
	assert.Equal(t, 1.0, evo.Bests[0].Fitness)
	assert.Equal(t, "00", evo.Bests[1].Chromosome.String())
	assert.Equal(t, "00", evo.Best.Chromosome.String())
	assert.Equal(t, 0.0, evo.Best.Fitness)
	assert.Equal(t, []float64{0}, evo.Best.Solution)

	for _, b := range evo.Bests {
		assert.LessOrEqual(t, evo.Best.Fitness, b.Fitness)
	}
}

func TestOptimizeMaximizeFirstFoundWins(t *testing.T) {
	device := &scriptedDevice{generations: [][]string{
		{"11", "11"},
	}}
	params := optimization.NewExtensionsParameters(1, 2, 3, 0.1, 0, optimization.ElitismQuantum)

	evo, err := NewOptimizer(1, nil).Optimize(context.Background(), device, newCircuit(t, 2, 2), params, identityProblem(t, true))
	require.NoError(t, err)
	assert.Equal(t, 3.0, evo.Best.Fitness)
	assert.NotSame(t, evo.Bests[0], evo.Best)
}

func TestOptimizeElitismPolicies(t *testing.T) {
	half := math.Pi / 2
	tests := []struct {
		name        string
		params      optimization.GAParameters
		eliteAngles []float64
		otherAngles []float64
	}{
		{
			name:        "deterministic pins elite to best bits",
			params:      optimization.NewExtensionsParameters(1, 2, 2, 0.25, 0, optimization.ElitismDeterministic),
			eliteAngles: []float64{0, math.Pi},
			otherAngles: []float64{half - math.Pi/4, half + math.Pi/4},
		},
		{
			name:        "quantistic keeps elite",
			params:      optimization.NewExtensionsParameters(1, 2, 2, 0.25, 0, optimization.ElitismQuantum),
			eliteAngles: []float64{half, half},
			otherAngles: []float64{half - math.Pi/4, half + math.Pi/4},
		},
		{
			name:        "reinforcement rotates elite by decayed epsilon",
			params:      optimization.NewExtensionsReinforcementParameters(1, 2, 2, 0.25, 0.125, 0),
			eliteAngles: []float64{half - math.Pi/8, half + math.Pi/8},
			otherAngles: []float64{half - math.Pi/4, half + math.Pi/4},
		},
		{
			name:        "none treats elite like the others",
			params:      optimization.NewExtensionsParameters(1, 2, 2, 0.25, 0, optimization.ElitismNone),
			eliteAngles: []float64{half - math.Pi/4, half + math.Pi/4},
			otherAngles: []float64{half - math.Pi/4, half + math.Pi/4},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			device := &scriptedDevice{generations: [][]string{{"11", "01"}}}
			circuit := newCircuit(t, 2, 2)

			_, err := NewOptimizer(1, nil).Optimize(context.Background(), device, circuit, tt.params, identityProblem(t, false))
			require.NoError(t, err)

			for gene := 0; gene < 2; gene++ {
				assert.InDelta(t, tt.eliteAngles[gene], circuit.Angle(1, gene), 1e-12, "elite gene %d", gene)
				assert.InDelta(t, tt.otherAngles[gene], circuit.Angle(0, gene), 1e-12, "other gene %d", gene)
			}
		})
	}
}

func TestOptimizeMutationFlipsEveryQubit(t *testing.T) {
	device := &scriptedDevice{generations: [][]string{{"11", "01"}}}
	circuit := newCircuit(t, 2, 2)
	params := optimization.NewExtensionsParameters(1, 2, 2, 0.25, 1, optimization.ElitismQuantum)

	_, err := NewOptimizer(1, nil).Optimize(context.Background(), device, circuit, params, identityProblem(t, false))
	require.NoError(t, err)

	assert.InDelta(t, math.Pi/2+math.Pi/4, circuit.Angle(0, 0), 1e-12)
	assert.InDelta(t, math.Pi/2-math.Pi/4, circuit.Angle(0, 1), 1e-12)
	assert.InDelta(t, math.Pi/2, circuit.Angle(1, 0), 1e-12, "elite must not mutate")
}

func TestOptimizeErrors(t *testing.T) {
	params := optimization.NewExtensionsParameters(1, 2, 2, 0.25, 0, optimization.ElitismQuantum)

	t.Run("device failure", func(t *testing.T) {
		boom := errors.New("backend offline")
		_, err := NewOptimizer(1, nil).Optimize(context.Background(), &scriptedDevice{err: boom},
			newCircuit(t, 2, 2), params, identityProblem(t, false))
		require.Error(t, err)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("circuit mismatch", func(t *testing.T) {
		_, err := NewOptimizer(1, nil).Optimize(context.Background(), &scriptedDevice{},
			newCircuit(t, 3, 2), params, identityProblem(t, false))
		assert.ErrorIs(t, err, optimization.ErrInvalidParameter)
	})

	t.Run("invalid parameters", func(t *testing.T) {
		bad := params
		bad.MaxGen = 0
		_, err := NewOptimizer(1, nil).Optimize(context.Background(), &scriptedDevice{},
			newCircuit(t, 2, 2), bad, identityProblem(t, false))
		assert.ErrorIs(t, err, optimization.ErrInvalidParameter)
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := NewOptimizer(1, nil).Optimize(ctx, &scriptedDevice{generations: [][]string{{"00", "00"}}},
			newCircuit(t, 2, 2), params, identityProblem(t, false))
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestOptimizeProgressLogging(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	params := optimization.NewExtensionsParameters(1, 2, 3, 0.25, 0, optimization.ElitismQuantum,
		optimization.WithProgressBar(true), optimization.WithDrawCircuit(true), optimization.WithJobID("job-7"))
	device := &scriptedDevice{generations: [][]string{{"00", "01"}}}

	_, err := NewOptimizer(1, zap.New(core)).Optimize(context.Background(), device, newCircuit(t, 2, 2), params, identityProblem(t, false))
	require.NoError(t, err)

	assert.Equal(t, 3, logs.FilterMessage("Generation completed").Len())
	require.Equal(t, 1, logs.FilterMessage("Circuit").Len())
	for _, entry := range logs.All() {
		assert.Equal(t, "job-7", entry.ContextMap()["job_id"])
	}
}

func TestOptimizeWithSimulator(t *testing.T) {
	problem := identityProblem(t, false)
	params := optimization.NewExtensionsParameters(1, 4, 5, 0.2, 0.1, optimization.ElitismDeterministic)

	evo, err := NewOptimizer(3, nil).Optimize(context.Background(), quantum.NewSimulator(3),
		newCircuit(t, 4, problem.ChromosomeLength()), params, problem)
	require.NoError(t, err)
	require.Len(t, evo.History, 5)
	for _, gen := range evo.History {
		assert.Len(t, gen, 4)
	}
	for _, b := range evo.Bests {
		assert.LessOrEqual(t, evo.Best.Fitness, b.Fitness)
	}
}
