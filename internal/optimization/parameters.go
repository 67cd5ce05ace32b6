package optimization

import (
	"strconv"
)

// Elitism policies understood by the inner genetic optimizer.
const (
	ElitismQuantum       = "quantistic"
	ElitismDeterministic = "deterministic"
	ElitismReinforcement = "reinforcement"
	ElitismNone          = "none"
)

// GAParameters is implemented by every parameter container and exposes the
// settings consumed by the inner genetic optimizer.
type GAParameters interface {
	GA() Parameters
	// DecayTarget returns the epsilon the reinforcement policy decays toward.
	DecayTarget() (float64, bool)
}

// RefinementParameters adds the number of outer refinement rounds.
type RefinementParameters interface {
	GAParameters
	RefinementDepth() int
	String() string
}

// Parameters is the base configuration of the inner genetic optimizer.
type Parameters struct {
	PopSize     int     `json:"pop_size" yaml:"pop_size"`
	MaxGen      int     `json:"max_gen" yaml:"max_gen"`
	EpsilonInit float64 `json:"epsilon_init" yaml:"epsilon_init"`
	ProbMut     float64 `json:"prob_mut" yaml:"prob_mut"`
	Elitism     string  `json:"elitism" yaml:"elitism"`
	NumShots    int     `json:"num_shots" yaml:"num_shots"`
	ProgressBar bool    `json:"progress_bar" yaml:"progress_bar"`
	Verbose     bool    `json:"verbose" yaml:"verbose"`
	DrawCircuit bool    `json:"draw_circuit" yaml:"draw_circuit"`
	JobID       string  `json:"job_id,omitempty" yaml:"job_id,omitempty"`
}

// GA returns a copy of the base parameters.
func (p Parameters) GA() Parameters { return p }

// DecayTarget reports no decay target for the base parameters.
func (p Parameters) DecayTarget() (float64, bool) { return 0, false }

// Validate checks the base parameters.
func (p Parameters) Validate() error {
	const op = "Parameters.Validate"
	switch {
	case p.PopSize < 1:
		return InvalidParameterf("pop_size must be >= 1, got %d", p.PopSize).WithOperation(op)
	case p.MaxGen < 1:
		return InvalidParameterf("max_gen must be >= 1, got %d", p.MaxGen).WithOperation(op)
	case p.NumShots < 1:
		return InvalidParameterf("num_shots must be >= 1, got %d", p.NumShots).WithOperation(op)
	case p.ProbMut < 0 || p.ProbMut > 1:
		return InvalidParameterf("prob_mut must be in [0, 1], got %v", p.ProbMut).WithOperation(op)
	case p.EpsilonInit < 0:
		return InvalidParameterf("epsilon_init must be >= 0, got %v", p.EpsilonInit).WithOperation(op)
	}
	switch p.Elitism {
	case ElitismQuantum, ElitismDeterministic, ElitismReinforcement, ElitismNone:
	default:
		return InvalidParameterf("unknown elitism %q", p.Elitism).WithOperation(op)
	}
	return nil
}

func (p Parameters) label(depth int) string {
	return p.Elitism + "_depth_" + strconv.Itoa(depth) +
		"_eps_init_" + formatFloat(p.EpsilonInit) +
		"_prob_mut_" + formatFloat(p.ProbMut)
}

// ReinforcementParameters configures the reinforcement elitism policy, in
// which the elite's rotation decays from EpsilonInit toward Epsilon.
type ReinforcementParameters struct {
	Parameters `yaml:",inline"`
	Epsilon    float64 `json:"epsilon" yaml:"epsilon"`
}

// DecayTarget returns Epsilon.
func (p ReinforcementParameters) DecayTarget() (float64, bool) { return p.Epsilon, true }

// Validate checks the base parameters and the decay target.
func (p ReinforcementParameters) Validate() error {
	if err := p.Parameters.Validate(); err != nil {
		return err
	}
	if p.Epsilon < 0 {
		return InvalidParameterf("epsilon must be >= 0, got %v", p.Epsilon).WithOperation("ReinforcementParameters.Validate")
	}
	return nil
}

// ExtensionsParameters adds the number of refinement rounds to Parameters.
type ExtensionsParameters struct {
	Parameters `yaml:",inline"`
	Depth      int `json:"depth" yaml:"depth"`
}

// RefinementDepth returns Depth.
func (p ExtensionsParameters) RefinementDepth() int { return p.Depth }

// Validate checks the base parameters and the depth.
func (p ExtensionsParameters) Validate() error {
	if p.Depth < 1 {
		return InvalidParameterf("depth must be >= 1, got %d", p.Depth).WithOperation("ExtensionsParameters.Validate")
	}
	return p.Parameters.Validate()
}

// String encodes elitism, depth, initial epsilon and mutation probability,
// e.g. "deterministic_depth_3_eps_init_0.3_prob_mut_0.1".
func (p ExtensionsParameters) String() string {
	return p.label(p.Depth)
}

// ExtensionsReinforcementParameters adds the number of refinement rounds to
// ReinforcementParameters.
type ExtensionsReinforcementParameters struct {
	ReinforcementParameters `yaml:",inline"`
	Depth                   int `json:"depth" yaml:"depth"`
}

// RefinementDepth returns Depth.
func (p ExtensionsReinforcementParameters) RefinementDepth() int { return p.Depth }

// Validate checks the reinforcement parameters and the depth.
func (p ExtensionsReinforcementParameters) Validate() error {
	if p.Depth < 1 {
		return InvalidParameterf("depth must be >= 1, got %d", p.Depth).
			WithOperation("ExtensionsReinforcementParameters.Validate")
	}
	return p.ReinforcementParameters.Validate()
}

// String is the ExtensionsParameters label followed by the decay epsilon.
func (p ExtensionsReinforcementParameters) String() string {
	return p.label(p.Depth) + "_eps_" + formatFloat(p.Epsilon)
}

// ParameterSet is the flat form of both refinement containers, as read from
// request bodies and parameter files. Epsilon is used only by the
// reinforcement policy.
type ParameterSet struct {
	Parameters `yaml:",inline"`
	Depth      int     `json:"depth" yaml:"depth"`
	Epsilon    float64 `json:"epsilon" yaml:"epsilon"`
}

// Refinement returns the validated container selected by Elitism.
func (s ParameterSet) Refinement() (RefinementParameters, error) {
	if s.Elitism == ElitismReinforcement {
		p := ExtensionsReinforcementParameters{
			ReinforcementParameters: ReinforcementParameters{Parameters: s.Parameters, Epsilon: s.Epsilon},
			Depth:                   s.Depth,
		}
		if err := p.Validate(); err != nil {
			return nil, err
		}
		return p, nil
	}
	p := ExtensionsParameters{Parameters: s.Parameters, Depth: s.Depth}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Option customizes the optional fields of a parameter container.
type Option func(*Parameters)

// WithNumShots sets the number of measurements per circuit execution.
func WithNumShots(n int) Option { return func(p *Parameters) { p.NumShots = n } }

// WithProgressBar enables per-generation progress logging.
func WithProgressBar(on bool) Option { return func(p *Parameters) { p.ProgressBar = on } }

// WithVerbose toggles Info-level logging of narrowed bounds.
func WithVerbose(on bool) Option { return func(p *Parameters) { p.Verbose = on } }

// WithDrawCircuit enables logging of the circuit diagram.
func WithDrawCircuit(on bool) Option { return func(p *Parameters) { p.DrawCircuit = on } }

// WithJobID tags the run with an external job identifier.
func WithJobID(id string) Option { return func(p *Parameters) { p.JobID = id } }

// WithElitism overrides the elitism policy.
func WithElitism(policy string) Option { return func(p *Parameters) { p.Elitism = policy } }

func newParameters(popSize, maxGen int, epsilonInit, probMut float64, elitism string, opts []Option) Parameters {
	p := Parameters{
		PopSize:     popSize,
		MaxGen:      maxGen,
		EpsilonInit: epsilonInit,
		ProbMut:     probMut,
		Elitism:     elitism,
		NumShots:    1,
		Verbose:     true,
	}
	for _, opt := range opts {
		opt(&p)
	}
	return p
}

// NewExtensionsParameters builds the standard refinement parameters.
func NewExtensionsParameters(depth, popSize, maxGen int, epsilonInit, probMut float64, elitism string, opts ...Option) ExtensionsParameters {
	return ExtensionsParameters{
		Parameters: newParameters(popSize, maxGen, epsilonInit, probMut, elitism, opts),
		Depth:      depth,
	}
}

// NewExtensionsReinforcementParameters builds the reinforcement refinement
// parameters. Elitism defaults to ElitismReinforcement; use WithElitism to
// override it.
func NewExtensionsReinforcementParameters(depth, popSize, maxGen int, epsilonInit, epsilon, probMut float64, opts ...Option) ExtensionsReinforcementParameters {
	return ExtensionsReinforcementParameters{
		ReinforcementParameters: ReinforcementParameters{
			Parameters: newParameters(popSize, maxGen, epsilonInit, probMut, ElitismReinforcement, opts),
			Epsilon:    epsilon,
		},
		Depth: depth,
	}
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
