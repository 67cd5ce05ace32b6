// Package config loads the service and algorithm configuration from the environment.
package config

import (
	"time"

	"github.com/caarlos0/env/v10"

	"github.com/quasarUnina/H2QGA/internal/logging"
	"github.com/quasarUnina/H2QGA/internal/optimization"
)

type Config struct {
	Environment string `env:"ENV" envDefault:"development"`
	HTTP        struct {
		Port            int           `env:"HTTP_PORT" envDefault:"8080"`
		ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"30s"`
		WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
		IdleTimeout     time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
		ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	}
	Logging struct {
		Level  string `env:"LOG_LEVEL"`
		Format string `env:"LOG_FORMAT" envDefault:"json"`
		Output string `env:"LOG_OUTPUT" envDefault:"stderr"`
	}
	Optimization struct {
		WorkerCount   int    `env:"OPT_WORKER_COUNT" envDefault:"10"`
		RandomSeed    uint64 `env:"OPT_RANDOM_SEED" envDefault:"0"`
		GridMaxPoints int    `env:"GRID_MAX_POINTS" envDefault:"1000000"`
	}
	// HQGA holds the defaults for refinement runs that do not supply their
	// own parameters.
	HQGA struct {
		Depth       int     `env:"HQGA_DEPTH" envDefault:"3"`
		PopSize     int     `env:"HQGA_POP_SIZE" envDefault:"10"`
		MaxGen      int     `env:"HQGA_MAX_GEN" envDefault:"10"`
		EpsilonInit float64 `env:"HQGA_EPSILON_INIT" envDefault:"0.3"`
		Epsilon     float64 `env:"HQGA_EPSILON" envDefault:"0.01"`
		ProbMut     float64 `env:"HQGA_PROB_MUT" envDefault:"0.01"`
		Elitism     string  `env:"HQGA_ELITISM" envDefault:"deterministic"`
		NumShots    int     `env:"HQGA_NUM_SHOTS" envDefault:"1"`
		NumBitCode  int     `env:"HQGA_NUM_BIT_CODE" envDefault:"5"`
	}
}

// Load reads the configuration from the process environment.
func Load() (*Config, error) {
	return load(env.Options{})
}

// LoadFromMap reads the configuration from the given variables only.
func LoadFromMap(vars map[string]string) (*Config, error) {
	return load(env.Options{Environment: vars})
}

func load(opts env.Options) (*Config, error) {
	cfg := &Config{}

	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, optimization.WrapError(err, "parsing environment").WithComponent("config")
	}

	// Set default logging level based on environment
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
		if cfg.Environment == "development" {
			cfg.Logging.Level = "debug"
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the service settings and the default algorithm parameters.
func (c *Config) Validate() error {
	const op = "Config.Validate"
	switch {
	case c.HTTP.Port < 0 || c.HTTP.Port > 65535:
		return optimization.InvalidParameterf("HTTP_PORT out of range: %d", c.HTTP.Port).WithOperation(op)
	case c.Optimization.WorkerCount < 1:
		return optimization.InvalidParameterf("OPT_WORKER_COUNT must be >= 1, got %d", c.Optimization.WorkerCount).WithOperation(op)
	case c.Optimization.GridMaxPoints < 1:
		return optimization.InvalidParameterf("GRID_MAX_POINTS must be >= 1, got %d", c.Optimization.GridMaxPoints).WithOperation(op)
	case c.HQGA.NumBitCode < 1 || c.HQGA.NumBitCode > optimization.MaxBitsPerDimension:
		return optimization.InvalidParameterf("HQGA_NUM_BIT_CODE must be in [1, %d], got %d",
			optimization.MaxBitsPerDimension, c.HQGA.NumBitCode).WithOperation(op)
	}
	_, err := c.Parameters()
	return err
}

// ParameterSet returns the default refinement parameters in flat form.
func (c *Config) ParameterSet() optimization.ParameterSet {
	h := c.HQGA
	return optimization.ParameterSet{
		Parameters: optimization.Parameters{
			PopSize:     h.PopSize,
			MaxGen:      h.MaxGen,
			EpsilonInit: h.EpsilonInit,
			ProbMut:     h.ProbMut,
			Elitism:     h.Elitism,
			NumShots:    h.NumShots,
			Verbose:     true,
		},
		Depth:   h.Depth,
		Epsilon: h.Epsilon,
	}
}

// Parameters returns the default refinement parameters. The reinforcement
// container is used when HQGA_ELITISM selects the reinforcement policy.
func (c *Config) Parameters() (optimization.RefinementParameters, error) {
	return c.ParameterSet().Refinement()
}

// LoggingConfig returns the logger settings.
func (c *Config) LoggingConfig() *logging.Config {
	return &logging.Config{
		Level:  c.Logging.Level,
		Format: c.Logging.Format,
		Output: c.Logging.Output,
	}
}
