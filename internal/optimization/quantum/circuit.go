// Package quantum provides a register of single-qubit rotations and a
// sampling simulator used as the measurement device of the genetic search.
package quantum

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/quasarUnina/H2QGA/internal/optimization"
)

// Circuit holds one qubit per gene for every individual of the population.
// Each qubit is described by its RY rotation angle theta in [0, pi]; the
// probability of measuring 1 is sin^2(theta/2).
type Circuit struct {
	popSize int
	length  int
	theta   []float64
}

// NewCircuit creates a circuit for popSize individuals of length genes each,
// already in the reset state.
func NewCircuit(popSize, length int) (*Circuit, error) {
	if popSize < 1 || length < 1 {
		return nil, optimization.InvalidParameterf("circuit needs positive population and length, got %dx%d",
			popSize, length).WithOperation("NewCircuit")
	}
	c := &Circuit{
		popSize: popSize,
		length:  length,
		theta:   make([]float64, popSize*length),
	}
	c.Reset()
	return c, nil
}

// Reset puts every qubit in equal superposition, as after a Hadamard gate.
func (c *Circuit) Reset() {
	for i := range c.theta {
		c.theta[i] = math.Pi / 2
	}
}

// PopulationSize returns the number of quantum individuals.
func (c *Circuit) PopulationSize() int { return c.popSize }

// ChromosomeLength returns the number of qubits per individual.
func (c *Circuit) ChromosomeLength() int { return c.length }

func (c *Circuit) index(ind, gene int) int {
	if ind < 0 || ind >= c.popSize || gene < 0 || gene >= c.length {
		panic(fmt.Sprintf("quantum: qubit (%d, %d) out of range %dx%d", ind, gene, c.popSize, c.length))
	}
	return ind*c.length + gene
}

// Angle returns the rotation angle of a qubit.
func (c *Circuit) Angle(ind, gene int) float64 {
	return c.theta[c.index(ind, gene)]
}

// SetAngle sets the rotation angle of a qubit, clamped to [0, pi].
func (c *Circuit) SetAngle(ind, gene int, theta float64) {
	c.theta[c.index(ind, gene)] = clamp(theta)
}

// Rotate adds delta to the angle of a qubit, clamped to [0, pi].
func (c *Circuit) Rotate(ind, gene int, delta float64) {
	i := c.index(ind, gene)
	c.theta[i] = clamp(c.theta[i] + delta)
}

// Flip applies an X gate, swapping the probabilities of 0 and 1.
func (c *Circuit) Flip(ind, gene int) {
	i := c.index(ind, gene)
	c.theta[i] = math.Pi - c.theta[i]
}

// Probability returns the probability of measuring 1 on a qubit.
func (c *Circuit) Probability(ind, gene int) float64 {
	s := math.Sin(c.Angle(ind, gene) / 2)
	return s * s
}

// Draw renders the circuit, one line per qubit.
func (c *Circuit) Draw() string {
	var b strings.Builder
	for ind := 0; ind < c.popSize; ind++ {
		for gene := 0; gene < c.length; gene++ {
			fmt.Fprintf(&b, "q%d_%d: |0>--RY(%s)--M\n", ind, gene,
				strconv.FormatFloat(c.Angle(ind, gene), 'f', 4, 64))
		}
	}
	return b.String()
}

func clamp(theta float64) float64 {
	return math.Max(0, math.Min(math.Pi, theta))
}
