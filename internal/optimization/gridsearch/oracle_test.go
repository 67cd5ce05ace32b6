package gridsearch

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/quasarUnina/H2QGA/internal/optimization"
)

func newProblem(t *testing.T, lower, upper []float64, maximize bool, f optimization.ObjectiveFunction) *optimization.Problem {
	t.Helper()
	p, err := optimization.NewProblem("test", lower, upper, 4, maximize, f)
	require.NoError(t, err)
	return p
}

func TestOptimum1D(t *testing.T) {
	var seen []float64
	p := newProblem(t, []float64{0}, []float64{10}, true, func(x []float64) (float64, error) {
		seen = append(seen, x[0])
		return -(x[0] - 4) * (x[0] - 4), nil
	})

	res, err := GetOptimum(p, 11)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, seen)
	assert.Equal(t, [][]float64{{4}}, res.Solutions)
	assert.Equal(t, []float64{0}, res.Fitnesses)
}

func TestOptimum1DTiesAndDirection(t *testing.T) {
	square := func(x []float64) (float64, error) { return x[0] * x[0], nil }

	res, err := GetOptimum(newProblem(t, []float64{-2}, []float64{2}, true, square), 5)
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{-2}, {2}}, res.Solutions)
	assert.Equal(t, []float64{4, 4}, res.Fitnesses)

	res, err = GetOptimum(newProblem(t, []float64{-2}, []float64{2}, false, square), 5)
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{0}}, res.Solutions)
	assert.Equal(t, []float64{0}, res.Fitnesses)
}

func TestOptimum2D(t *testing.T) {
	var order [][]float64
	p := newProblem(t, []float64{0, -2}, []float64{4, 2}, true, func(x []float64) (float64, error) {
		order = append(order, append([]float64(nil), x...))
		return -((x[0]-2)*(x[0]-2) + (x[1]+1)*(x[1]+1)), nil
	})

	res, err := GetOptimum(p, 5)
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{2, -1}}, res.Solutions)
	assert.Equal(t, []float64{0}, res.Fitnesses)

	require.Len(t, order, 25)
	assert.Equal(t, []float64{0, -2}, order[0])
	assert.Equal(t, []float64{0, -1}, order[1], "dimension 1 varies fastest")
	assert.Equal(t, []float64{1, -2}, order[5])
	assert.Equal(t, []float64{4, 2}, order[24])
}

func TestOptimum3D(t *testing.T) {
	p := newProblem(t, []float64{0, 0, 0}, []float64{2, 2, 2}, false, func(x []float64) (float64, error) {
		sum := 0.0
		for _, v := range x {
			sum += (v - 1) * (v - 1)
		}
		return sum, nil
	})

	res, err := GetOptimum(p, 3)
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{1, 1, 1}}, res.Solutions)
}

func TestOptimumSinglePointFails(t *testing.T) {
	p := newProblem(t, []float64{0}, []float64{10}, true, func(x []float64) (float64, error) { return x[0], nil })

	for _, n := range []int{1, 0, -3} {
		res, err := GetOptimum(p, n)
		require.Error(t, err)
		assert.Nil(t, res)
		assert.True(t, errors.Is(err, optimization.ErrDivisionByZero))
		assert.True(t, errors.Is(err, optimization.ErrInvalidParameter))
	}
}

func TestOptimumErrors(t *testing.T) {
	t.Run("grid too large", func(t *testing.T) {
		p := newProblem(t, []float64{0, 0}, []float64{1, 1}, true, func(x []float64) (float64, error) { return 0, nil })
		_, err := NewOracle(99, nil).Optimum(context.Background(), p, 10)
		assert.ErrorIs(t, err, optimization.ErrInvalidParameter)

		_, err = NewOracle(100, nil).Optimum(context.Background(), p, 10)
		assert.NoError(t, err)
	})

	t.Run("objective failure", func(t *testing.T) {
		boom := errors.New("boom")
		p := newProblem(t, []float64{0}, []float64{1}, true, func(x []float64) (float64, error) { return 0, boom })
		_, err := GetOptimum(p, 3)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("cancelled", func(t *testing.T) {
		p := newProblem(t, []float64{0}, []float64{1}, true, func(x []float64) (float64, error) { return 0, nil })
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := NewOracle(0, nil).Optimum(ctx, p, 3)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("invalid problem", func(t *testing.T) {
		_, err := GetOptimum(&optimization.Problem{}, 3)
		assert.ErrorIs(t, err, optimization.ErrInvalidParameter)
	})
}

func TestOptimumLogsStep(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	p := newProblem(t, []float64{0, 0}, []float64{10, 1}, true, func(x []float64) (float64, error) { return x[0], nil })

	_, err := NewOracle(0, zap.New(core)).Optimum(context.Background(), p, 11)
	require.NoError(t, err)

	steps := logs.FilterMessage("Grid step").All()
	require.Len(t, steps, 2)
	assert.Equal(t, 1.0, steps[0].ContextMap()["step"])
	assert.Equal(t, 0.1, steps[1].ContextMap()["step"])
}
