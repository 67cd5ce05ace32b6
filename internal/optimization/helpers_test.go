package optimization

import (
	"math"
	"testing"
)

// testObjectiveFunc is a simple quadratic objective function for testing
func testObjectiveFunc(x []float64) (float64, error) {
	sum := 0.0
	for _, v := range x {
		sum += v * v
	}
	return sum, nil
}

// assertFloat64SlicesEqual checks if two float64 slices are approximately equal
func assertFloat64SlicesEqual(t *testing.T, got, want []float64, tol float64) {
	t.Helper()

	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(want))
	}

	for i := range got {
		if math.Abs(got[i]-want[i]) > tol {
			t.Fatalf("at index %d: got %v, want %v (tolerance %v)", i, got[i], want[i], tol)
		}
	}
}

func mustChromosome(t *testing.T, s string) Chromosome {
	t.Helper()
	chr, err := ParseChromosome(s)
	if err != nil {
		t.Fatalf("parse chromosome %q: %v", s, err)
	}
	return chr
}
