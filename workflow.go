package workflow

import (
	"github.com/juju/errors"

	"github.com/warriorguo/graphflow/registry"
	"github.com/warriorguo/graphflow/runtime"
	"github.com/warriorguo/graphflow/store"
	"github.com/warriorguo/graphflow/store/mem"
	"github.com/warriorguo/graphflow/store/postgres"
	"github.com/warriorguo/graphflow/types"
)

// NewWorkflowEngine creates an engine calling the tools of the given
// registry, configured by opts.
func NewWorkflowEngine(tools *registry.Registry, opts ...types.EngineOption) (types.WorkflowEngine, error) {
	if tools == nil {
		return nil, errors.NotValidf("nil tool registry")
	}

	options := types.NewEngineOptions()
	for _, opt := range opts {
		opt(options)
	}

	s, err := newStore(options)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return runtime.NewWorkflowEngine(s, tools, options), nil
}

func newStore(options *types.EngineOptions) (store.Store, error) {
	// PostgresConfig takes precedence over MemStore
	if options.PostgresConfig != nil {
		pgConfig := &postgres.Config{
			Host:     options.PostgresConfig.Host,
			Port:     options.PostgresConfig.Port,
			User:     options.PostgresConfig.User,
			Password: options.PostgresConfig.Password,
			Database: options.PostgresConfig.Database,
			SSLMode:  options.PostgresConfig.SSLMode,
			Table:    options.PostgresConfig.Table,
		}

		s, err := postgres.NewPostgresStore(pgConfig)
		if err != nil {
			return nil, errors.Annotatef(err, "failed to create PostgreSQL store")
		}
		return s, nil
	}
	if options.MemStore {
		return mem.NewMemStore(), nil
	}
	// no store: runs go on, step records are not kept
	return nil, nil
}
