package types

import (
	"github.com/mcuadros/go-defaults"
)

func NewEngineOptions() *EngineOptions {
	opts := &EngineOptions{}
	defaults.SetDefaults(opts)
	return opts
}

type EngineOptions struct {
	/**
	 * default: 1000
	 * RunToCompletion gives up on a run after this many steps and marks it
	 * failed. It can be overridden per call with WithMaxSteps.
	 */
	MaxSteps int `default:"1000"`
	/**
	 * default: 16
	 * number of runs SubmitRun drives at the same time.
	 */
	WorkerConcurrency int `default:"16"`
	/**
	 * default: true
	 * save a StepRecord to the store after every step.
	 */
	RecordTrace bool `default:"true"`
	/**
	 * default: false
	 * keep step records in process memory. With neither MemStore nor
	 * PostgresConfig set, no step records are kept.
	 */
	MemStore bool `default:"false"`

	// PostgreSQL store configuration
	// If both MemStore and PostgresConfig are set, PostgresConfig takes precedence
	PostgresConfig *PostgresConfig
}

// PostgresConfig holds PostgreSQL connection configuration
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string // disable, require, verify-ca, verify-full
	// Table holding the step records, empty for the store's default
	Table string
}

type EngineOption func(*EngineOptions)

func SetMaxSteps(steps int) EngineOption {
	return func(opts *EngineOptions) {
		opts.MaxSteps = steps
	}
}

func SetWorkerConcurrency(concurrency int) EngineOption {
	return func(opts *EngineOptions) {
		opts.WorkerConcurrency = concurrency
	}
}

func DisableTrace() EngineOption {
	return func(opts *EngineOptions) {
		opts.RecordTrace = false
	}
}

func EnableMemStore() EngineOption {
	return func(opts *EngineOptions) {
		opts.MemStore = true
	}
}

// WithPostgresConfig configures the engine to keep step records in PostgreSQL
func WithPostgresConfig(config *PostgresConfig) EngineOption {
	return func(opts *EngineOptions) {
		opts.PostgresConfig = config
	}
}

type RunOptions struct {
	MaxSteps int
}

type RunOption func(*RunOptions)

// WithMaxSteps overrides the engine step budget for one RunToCompletion call.
func WithMaxSteps(steps int) RunOption {
	return func(opts *RunOptions) {
		opts.MaxSteps = steps
	}
}

// DefaultMaxSteps is the step budget used when none is configured.
const DefaultMaxSteps = 1000

// NewRunOptions applies opts over the engine-wide defaults. A budget that is
// not positive falls back to the engine one, then to DefaultMaxSteps.
func NewRunOptions(engine *EngineOptions, opts ...RunOption) *RunOptions {
	runOpts := &RunOptions{}
	if engine != nil {
		runOpts.MaxSteps = engine.MaxSteps
	}
	for _, opt := range opts {
		opt(runOpts)
	}
	if runOpts.MaxSteps <= 0 && engine != nil && engine.MaxSteps > 0 {
		runOpts.MaxSteps = engine.MaxSteps
	}
	if runOpts.MaxSteps <= 0 {
		runOpts.MaxSteps = DefaultMaxSteps
	}
	return runOpts
}
