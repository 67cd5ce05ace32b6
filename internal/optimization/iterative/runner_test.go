package iterative

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
	"github.com/quasarUnina/H2QGA/internal/optimization/genetic"
	"github.com/quasarUnina/H2QGA/internal/optimization/interval"
	"github.com/quasarUnina/H2QGA/internal/optimization/quantum"
)

// scriptedInner returns one scripted individual per round and records the
// bounds and circuit state it was called with.
type scriptedInner struct {
	chromosomes []string
	fitnesses   []float64
	failAt      int
	err         error

	calls       int
	seenLower   [][]float64
	seenUpper   [][]float64
	resetOnCall []bool
	returned    []*optimization.Individual
}

func (s *scriptedInner) Optimize(_ context.Context, _ quantum.Device, circuit *quantum.Circuit,
	_ optimization.GAParameters, problem *optimization.Problem) (*optimization.Evolution, error) {
	i := s.calls
	s.calls++
	l, u := problem.Bounds()
	s.seenLower = append(s.seenLower, l)
	s.seenUpper = append(s.seenUpper, u)
	s.resetOnCall = append(s.resetOnCall, circuit.Angle(0, 0) == math.Pi/2)

	// Leave the circuit dirty so the next round must reset it.
	circuit.SetAngle(0, 0, 0)

	if s.err != nil && i == s.failAt {
		return nil, s.err
	}
	chr, err := optimization.ParseChromosome(s.chromosomes[i%len(s.chromosomes)])
	if err != nil {
		return nil, err
	}
	best := &optimization.Individual{Chromosome: chr, Fitness: s.fitnesses[i%len(s.fitnesses)]}
	s.returned = append(s.returned, best)
	return &optimization.Evolution{Best: best, Bests: []*optimization.Individual{best}}, nil
}

// shiftingDecoder returns arbitrary, non-nested bounds each round.
type shiftingDecoder struct {
	calls  int
	failAt int
	err    error
}

func (d *shiftingDecoder) Decode(_ optimization.Chromosome, lower, upper []float64, _, dim int) ([]float64, []float64, error) {
	d.calls++
	if d.err != nil && d.calls-1 == d.failAt {
		return nil, nil, d.err
	}
	nl := make([]float64, dim)
	nu := make([]float64, dim)
	for i := 0; i < dim; i++ {
		nl[i] = lower[i] + float64(d.calls)
		nu[i] = upper[i] + 2*float64(d.calls)
	}
	return nl, nu, nil
}

func testProblem(t *testing.T, maximize bool) *optimization.Problem {
	t.Helper()
	p, err := optimization.NewProblem("identity", []float64{0}, []float64{3}, 2, maximize,
		func(x []float64) (float64, error) { return x[0], nil })
	require.NoError(t, err)
	return p
}

func testCircuit(t *testing.T) *quantum.Circuit {
	t.Helper()
	c, err := quantum.NewCircuit(1, 2)
	require.NoError(t, err)
	return c
}

func params(depth int) optimization.ExtensionsParameters {
	return optimization.NewExtensionsParameters(depth, 1, 1, 0.1, 0.1, optimization.ElitismQuantum,
		optimization.WithVerbose(false))
}

func TestRunHistoryLengthEqualsDepth(t *testing.T) {
	for depth := 1; depth <= 5; depth++ {
		inner := &scriptedInner{chromosomes: []string{"01"}, fitnesses: []float64{float64(depth)}}
		runner := NewRunner(inner, &shiftingDecoder{})

		best, bests, err := runner.Run(context.Background(), quantum.NewSimulator(1), testCircuit(t), params(depth), testProblem(t, false))
		require.NoError(t, err)
		require.NotNil(t, best)
		assert.Len(t, bests, depth)
		assert.Equal(t, depth, inner.calls)
		for _, reset := range inner.resetOnCall {
			assert.True(t, reset, "circuit must be reset before every round")
		}
	}
}

func TestRunInstallsDecodedBoundsEachRound(t *testing.T) {
	inner := &scriptedInner{chromosomes: []string{"01"}, fitnesses: []float64{1}}
	problem := testProblem(t, false)

	_, _, err := NewRunner(inner, &shiftingDecoder{}).Run(context.Background(), quantum.NewSimulator(1), testCircuit(t), params(3), problem)
	require.NoError(t, err)

	assert.Equal(t, [][]float64{{0}, {1}, {3}}, inner.seenLower)
	assert.Equal(t, [][]float64{{3}, {5}, {9}}, inner.seenUpper)
	assert.Equal(t, []float64{0}, problem.LowerBounds)
	assert.Equal(t, []float64{3}, problem.UpperBounds)
}

func TestRunRestoresBoundsOnEveryPath(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name    string
		inner   *scriptedInner
		decoder *shiftingDecoder
		ctx     func() context.Context
		wantErr error
	}{
		{
			name:    "success",
			inner:   &scriptedInner{chromosomes: []string{"10"}, fitnesses: []float64{2}},
			decoder: &shiftingDecoder{},
			ctx:     context.Background,
		},
		{
			name:    "inner failure",
			inner:   &scriptedInner{chromosomes: []string{"10"}, fitnesses: []float64{2}, failAt: 2, err: boom},
			decoder: &shiftingDecoder{},
			ctx:     context.Background,
			wantErr: boom,
		},
		{
			name:    "decoder failure",
			inner:   &scriptedInner{chromosomes: []string{"10"}, fitnesses: []float64{2}},
			decoder: &shiftingDecoder{failAt: 1, err: boom},
			ctx:     context.Background,
			wantErr: boom,
		},
		{
			name:    "cancelled",
			inner:   &scriptedInner{chromosomes: []string{"10"}, fitnesses: []float64{2}},
			decoder: &shiftingDecoder{},
			ctx: func() context.Context {
				ctx, cancel := context.WithCancel(context.Background())
				cancel()
				return ctx
			},
			wantErr: context.Canceled,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			problem := testProblem(t, false)
			lower, upper := problem.Bounds()

			_, bests, err := NewRunner(tt.inner, tt.decoder).Run(tt.ctx(), quantum.NewSimulator(1), testCircuit(t), params(4), problem)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, bests)
			} else {
				require.NoError(t, err)
			}
			assert.True(t, problem.SameBounds(lower, upper), "bounds must be restored, got %v %v",
				problem.LowerBounds, problem.UpperBounds)
		})
	}
}

func TestRunGlobalBestDominatesRoundBests(t *testing.T) {
	fitnesses := []float64{3, 1, 4, 1, 5, 9, 2, 6}
	for _, maximize := range []bool{true, false} {
		inner := &scriptedInner{chromosomes: []string{"00", "01", "10", "11"}, fitnesses: fitnesses}
		best, bests, err := NewRunner(inner, &shiftingDecoder{}).Run(context.Background(), quantum.NewSimulator(1),
			testCircuit(t), params(len(fitnesses)), testProblem(t, maximize))
		require.NoError(t, err)

		for _, b := range bests {
			if maximize {
				assert.GreaterOrEqual(t, best.Fitness, b.Fitness)
			} else {
				assert.LessOrEqual(t, best.Fitness, b.Fitness)
			}
		}
		if maximize {
			assert.Equal(t, 9.0, best.Fitness)
			assert.Equal(t, 5, best.Round)
		} else {
			assert.Equal(t, 1.0, best.Fitness)
			assert.Equal(t, 1, best.Round, "first of the tied minima wins")
		}
	}
}

func TestRunTieKeepsFirstRound(t *testing.T) {
	inner := &scriptedInner{chromosomes: []string{"00", "01", "10"}, fitnesses: []float64{7}}
	best, bests, err := NewRunner(inner, &shiftingDecoder{}).Run(context.Background(), quantum.NewSimulator(1),
		testCircuit(t), params(3), testProblem(t, true))
	require.NoError(t, err)

	assert.Equal(t, 0, best.Round)
	assert.Equal(t, bests[0].Chromosome, best.Chromosome)
	assert.Equal(t, bests[0].Fitness, best.Fitness)
	assert.NotSame(t, bests[0], best)
}

func TestRunGlobalBestIsDeepCopy(t *testing.T) {
	inner := &scriptedInner{chromosomes: []string{"11", "00"}, fitnesses: []float64{5, 1}}
	best, _, err := NewRunner(inner, &shiftingDecoder{}).Run(context.Background(), quantum.NewSimulator(1),
		testCircuit(t), params(2), testProblem(t, true))
	require.NoError(t, err)

	inner.returned[0].Chromosome[0] = 0
	inner.returned[0].Fitness = -1
	assert.Equal(t, "11", best.Chromosome.String())
	assert.Equal(t, 5.0, best.Fitness)
}

func TestRunPhenotypeUsesProducingRoundBounds(t *testing.T) {
	// Round 0 runs on [0, 3]; round 1 runs on [1, 5] and is worse.
	inner := &scriptedInner{chromosomes: []string{"11", "11"}, fitnesses: []float64{1, 0}}
	best, _, err := NewRunner(inner, &shiftingDecoder{}).Run(context.Background(), quantum.NewSimulator(1),
		testCircuit(t), params(2), testProblem(t, true))
	require.NoError(t, err)

	assert.Equal(t, []float64{3}, best.Solution)
	assert.Equal(t, "[3]", best.Phenotype)
	assert.Equal(t, "11", best.Chromosome.String())
}

func TestRunObserverAndLogging(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	var rounds []Round
	inner := &scriptedInner{chromosomes: []string{"01"}, fitnesses: []float64{1}}
	runner := NewRunner(inner, &shiftingDecoder{},
		WithLogger(zap.New(core)),
		WithObserver(func(r Round) { rounds = append(rounds, r) }),
	)

	p := optimization.NewExtensionsParameters(3, 1, 1, 0.1, 0.1, optimization.ElitismQuantum,
		optimization.WithJobID("job-9"))
	_, _, err := runner.Run(context.Background(), quantum.NewSimulator(1), testCircuit(t), p, testProblem(t, false))
	require.NoError(t, err)

	require.Len(t, rounds, 3)
	for i, r := range rounds {
		assert.Equal(t, i, r.Index)
		assert.Equal(t, 3, r.Depth)
	}
	assert.Equal(t, []float64{1}, rounds[0].NextLower)
	assert.Equal(t, rounds[0].NextLower, rounds[1].Lower)

	narrowed := logs.FilterMessage("Bounds narrowed")
	assert.Equal(t, 3, narrowed.Len(), "verbose parameters log bounds at info level")
	assert.Equal(t, 1, logs.FilterMessage("Refinement completed").Len())
	for _, entry := range narrowed.All() {
		assert.Equal(t, "job-9", entry.ContextMap()["job_id"])
	}
}

func TestRunQuietParametersLogBoundsAtDebug(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	inner := &scriptedInner{chromosomes: []string{"01"}, fitnesses: []float64{1}}
	_, _, err := NewRunner(inner, &shiftingDecoder{}, WithLogger(zap.New(core))).
		Run(context.Background(), quantum.NewSimulator(1), testCircuit(t), params(2), testProblem(t, false))
	require.NoError(t, err)
	assert.Equal(t, 0, logs.FilterMessage("Bounds narrowed").Len())
}

func TestRunInvalidArguments(t *testing.T) {
	inner := &scriptedInner{chromosomes: []string{"01"}, fitnesses: []float64{1}}
	runner := NewRunner(inner, &shiftingDecoder{})
	problem := testProblem(t, false)

	_, _, err := runner.Run(context.Background(), quantum.NewSimulator(1), testCircuit(t), params(0), problem)
	assert.ErrorIs(t, err, optimization.ErrInvalidParameter)

	_, _, err = runner.Run(context.Background(), nil, testCircuit(t), params(1), problem)
	assert.ErrorIs(t, err, optimization.ErrInvalidParameter)

	problem.Objective = nil
	_, _, err = runner.Run(context.Background(), quantum.NewSimulator(1), testCircuit(t), params(1), problem)
	assert.ErrorIs(t, err, optimization.ErrInvalidParameter)
	assert.Equal(t, 0, inner.calls)
}

func TestRunEndToEnd(t *testing.T) {
	// Maximize -(x-4)^2 on [0, 10]; the optimum sits inside the domain.
	problem, err := optimization.NewProblem("neg-quadratic", []float64{0}, []float64{10}, 3, true,
		func(x []float64) (float64, error) { return -(x[0] - 4) * (x[0] - 4), nil })
	require.NoError(t, err)

	p := optimization.NewExtensionsParameters(4, 4, 6, 0.2, 0.1, optimization.ElitismDeterministic,
		optimization.WithNumShots(2))
	circuit, err := quantum.NewCircuit(p.PopSize, problem.ChromosomeLength())
	require.NoError(t, err)

	runner := NewRunner(genetic.NewOptimizer(11, nil), interval.Decoder{})
	best, bests, err := runner.Run(context.Background(), quantum.NewSimulator(11), circuit, p, problem)
	require.NoError(t, err)

	require.Len(t, bests, 4)
	assert.Equal(t, []float64{0}, problem.LowerBounds)
	assert.Equal(t, []float64{10}, problem.UpperBounds)
	require.Len(t, best.Solution, 1)
	assert.GreaterOrEqual(t, best.Solution[0], 0.0)
	assert.LessOrEqual(t, best.Solution[0], 10.0)
	assert.NotEmpty(t, best.Phenotype)
	assert.InDelta(t, -(best.Solution[0]-4)*(best.Solution[0]-4), best.Fitness, 1e-9)
	for _, b := range bests {
		assert.GreaterOrEqual(t, best.Fitness, b.Fitness)
	}
}
