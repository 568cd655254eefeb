package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEngineOptionsDefaults(t *testing.T) {
	opts := NewEngineOptions()
	assert.Equal(t, 1000, opts.MaxSteps)
	assert.Equal(t, 16, opts.WorkerConcurrency)
	assert.True(t, opts.RecordTrace)
	assert.False(t, opts.MemStore)
	assert.Nil(t, opts.PostgresConfig)
}

func TestWithPostgresConfig(t *testing.T) {
	config := &PostgresConfig{
		Host:     "dbhost",
		Port:     5433,
		User:     "user",
		Password: "pass",
		Database: "db",
		SSLMode:  "require",
	}

	opts := NewEngineOptions()
	opt := WithPostgresConfig(config)
	opt(opts)

	assert.NotNil(t, opts.PostgresConfig)
	assert.Equal(t, "dbhost", opts.PostgresConfig.Host)
	assert.Equal(t, 5433, opts.PostgresConfig.Port)
	assert.Equal(t, "require", opts.PostgresConfig.SSLMode)
}

func TestMultipleOptions(t *testing.T) {
	opts := NewEngineOptions()

	EnableMemStore()(opts)
	SetMaxSteps(50)(opts)
	SetWorkerConcurrency(2)(opts)
	DisableTrace()(opts)

	assert.True(t, opts.MemStore)
	assert.Equal(t, 50, opts.MaxSteps)
	assert.Equal(t, 2, opts.WorkerConcurrency)
	assert.False(t, opts.RecordTrace)
}

func TestRunOptions(t *testing.T) {
	engine := NewEngineOptions()
	engine.MaxSteps = 20

	assert.Equal(t, 20, NewRunOptions(engine).MaxSteps)
	assert.Equal(t, 5, NewRunOptions(engine, WithMaxSteps(5)).MaxSteps)
	assert.Equal(t, 20, NewRunOptions(engine, WithMaxSteps(0)).MaxSteps)
	assert.Equal(t, DefaultMaxSteps, NewRunOptions(nil).MaxSteps)

	engine.MaxSteps = -1
	assert.Equal(t, DefaultMaxSteps, NewRunOptions(engine).MaxSteps)
}
