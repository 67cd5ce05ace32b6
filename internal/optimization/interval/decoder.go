// Package interval narrows per-dimension search intervals from a binary
// chromosome.
package interval

import (
	"github.com/quasarUnina/H2QGA/internal/optimization"
)

// ConvertFromBinToInterval splits every dimension's interval into 2^numBitCode
// equal cells and returns the cell selected by that dimension's bit field.
// The value Problem.Convert decodes from the same field always lies inside the
// returned cell.
func ConvertFromBinToInterval(chr optimization.Chromosome, lower, upper []float64, numBitCode, dim int) ([]float64, []float64, error) {
	const op = "ConvertFromBinToInterval"
	if dim < 1 || len(lower) != dim || len(upper) != dim {
		return nil, nil, optimization.InvalidParameterf("bounds of length %d/%d for %d dimensions",
			len(lower), len(upper), dim).WithOperation(op)
	}
	if numBitCode < 1 || numBitCode > optimization.MaxBitsPerDimension {
		return nil, nil, optimization.InvalidParameterf("num_bit_code must be in [1, %d], got %d",
			optimization.MaxBitsPerDimension, numBitCode).WithOperation(op)
	}
	if len(chr) != numBitCode*dim {
		return nil, nil, optimization.InvalidParameterf("chromosome has %d bits, want %d",
			len(chr), numBitCode*dim).WithOperation(op)
	}

	cells := float64(uint64(1) << uint(numBitCode))
	newLower := make([]float64, dim)
	newUpper := make([]float64, dim)
	for d := 0; d < dim; d++ {
		k := float64(chr.Uint(d*numBitCode, (d+1)*numBitCode))
		width := (upper[d] - lower[d]) / cells
		newLower[d] = lower[d] + k*width
		newUpper[d] = lower[d] + (k+1)*width
		if k+1 == cells {
			newUpper[d] = upper[d]
		}
	}
	return newLower, newUpper, nil
}

// Decoder adapts ConvertFromBinToInterval to the refinement loop.
type Decoder struct{}

// Decode narrows lower/upper around chr.
func (Decoder) Decode(chr optimization.Chromosome, lower, upper []float64, numBitCode, dim int) ([]float64, []float64, error) {
	return ConvertFromBinToInterval(chr, lower, upper, numBitCode, dim)
}
