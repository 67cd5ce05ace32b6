package optimization

import (
	"strings"
)

// ObjectiveFunction defines the function to be optimized
type ObjectiveFunction func([]float64) (float64, error)

// Chromosome is a binary-encoded candidate solution. Every element is 0 or 1.
type Chromosome []byte

// ParseChromosome parses a string of '0' and '1' characters.
func ParseChromosome(s string) (Chromosome, error) {
	chr := make(Chromosome, len(s))
	for i, r := range s {
		switch r {
		case '0':
			chr[i] = 0
		case '1':
			chr[i] = 1
		default:
			return nil, InvalidParameterf("chromosome %q: invalid bit %q at %d", s, r, i)
		}
	}
	return chr, nil
}

// String renders the chromosome as a bit string, e.g. "0110".
func (c Chromosome) String() string {
	var b strings.Builder
	b.Grow(len(c))
	for _, bit := range c {
		if bit != 0 {
			b.WriteByte('1')
		} else {
			b.WriteByte('0')
		}
	}
	return b.String()
}

// MarshalText encodes the chromosome as its bit string.
func (c Chromosome) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText parses a bit string produced by MarshalText.
func (c *Chromosome) UnmarshalText(text []byte) error {
	chr, err := ParseChromosome(string(text))
	if err != nil {
		return err
	}
	*c = chr
	return nil
}

// Clone returns a deep copy of the chromosome.
func (c Chromosome) Clone() Chromosome {
	if c == nil {
		return nil
	}
	return append(Chromosome(nil), c...)
}

// Uint reads bits [from, to) as a big-endian unsigned integer.
func (c Chromosome) Uint(from, to int) uint64 {
	var v uint64
	for _, bit := range c[from:to] {
		v <<= 1
		if bit != 0 {
			v |= 1
		}
	}
	return v
}

// Individual is a measured chromosome together with its fitness.
type Individual struct {
	Chromosome Chromosome `json:"chromosome"`
	Fitness    float64    `json:"fitness"`
	// Solution holds the decoded real values under the bounds of the round
	// that produced the individual.
	Solution []float64 `json:"solution,omitempty"`
	// Phenotype is the domain-level string form, only set on a refinement
	// run's global best.
	Phenotype string `json:"phenotype,omitempty"`
	Round     int    `json:"round"`
}

// Clone returns a deep copy of the individual. The copy shares no memory
// with the receiver.
func (ind *Individual) Clone() *Individual {
	if ind == nil {
		return nil
	}
	out := *ind
	out.Chromosome = ind.Chromosome.Clone()
	if ind.Solution != nil {
		out.Solution = append([]float64(nil), ind.Solution...)
	}
	return &out
}

// Evolution is the outcome of one inner genetic search.
type Evolution struct {
	// Best is the best individual found across all generations.
	Best *Individual
	// History holds the measured population of every generation.
	History [][]Chromosome
	// Bests holds the best individual of every generation.
	Bests []*Individual
}

// IsBetter reports whether candidate strictly improves on incumbent for the
// given optimization direction. Equal values are never better.
func IsBetter(candidate, incumbent float64, maximize bool) bool {
	if maximize {
		return candidate > incumbent
	}
	return candidate < incumbent
}
