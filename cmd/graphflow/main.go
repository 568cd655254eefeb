package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/juju/errors"
	log "github.com/sirupsen/logrus"

	workflow "github.com/warriorguo/graphflow"
	"github.com/warriorguo/graphflow/graphdef"
	"github.com/warriorguo/graphflow/httpapi"
	"github.com/warriorguo/graphflow/registry"
	"github.com/warriorguo/graphflow/store/postgres"
	"github.com/warriorguo/graphflow/types"
	"github.com/warriorguo/graphflow/workflows/codereview"
)

const shutdownTimeout = 10 * time.Second

type config struct {
	Addr          string
	GraphsPath    string
	LogLevel      string
	LogFormat     string
	MaxSteps      int
	Workers       int
	PostgresDSN   string
	PostgresTable string
}

func main() {
	cfg, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if err := setupLogging(cfg, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatalf("graphflow: %s", errors.ErrorStack(err))
	}
}

func parseFlags(args []string, output io.Writer) (*config, error) {
	cfg := &config{}
	flagSet := flag.NewFlagSet("graphflow", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.StringVar(&cfg.Addr, "addr", ":8000", "HTTP listen address.")
	flagSet.StringVar(&cfg.GraphsPath, "graphs", "", "Graph definition file or directory (.hcl, .json) to register.")
	flagSet.StringVar(&cfg.LogLevel, "log-level", "info", "Log level: debug, info, warn, error.")
	flagSet.StringVar(&cfg.LogFormat, "log-format", "text", "Log format: text or json.")
	flagSet.IntVar(&cfg.MaxSteps, "max-steps", types.DefaultMaxSteps, "Step budget of a run.")
	flagSet.IntVar(&cfg.Workers, "workers", 16, "Number of runs driven in the background at once.")
	flagSet.StringVar(&cfg.PostgresDSN, "postgres-dsn", "", "Keep step records in PostgreSQL, e.g. \"host=localhost user=postgres dbname=graphflow sslmode=disable\" or a postgres:// URL.")
	flagSet.StringVar(&cfg.PostgresTable, "postgres-table", postgres.DefaultTable, "Table holding the step records.")

	if err := flagSet.Parse(args); err != nil {
		return nil, err
	}
	if flagSet.NArg() > 0 {
		return nil, errors.NotValidf("unexpected arguments %v", flagSet.Args())
	}
	if cfg.MaxSteps <= 0 {
		return nil, errors.NotValidf("-max-steps %d", cfg.MaxSteps)
	}
	if cfg.Workers <= 0 {
		return nil, errors.NotValidf("-workers %d", cfg.Workers)
	}
	return cfg, nil
}

func setupLogging(cfg *config, out io.Writer) error {
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		return errors.NotValidf("-log-level %q", cfg.LogLevel)
	}
	log.SetLevel(level)
	log.SetOutput(out)

	switch strings.ToLower(cfg.LogFormat) {
	case "text":
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	default:
		return errors.NotValidf("-log-format %q", cfg.LogFormat)
	}
	return nil
}

func engineOptions(cfg *config) ([]types.EngineOption, error) {
	opts := []types.EngineOption{
		types.SetMaxSteps(cfg.MaxSteps),
		types.SetWorkerConcurrency(cfg.Workers),
	}
	if cfg.PostgresDSN == "" {
		return append(opts, types.EnableMemStore()), nil
	}

	pg, err := postgres.ParseDSN(cfg.PostgresDSN)
	if err != nil {
		return nil, errors.Annotatef(err, "-postgres-dsn")
	}
	return append(opts, types.WithPostgresConfig(&types.PostgresConfig{
		Host:     pg.Host,
		Port:     pg.Port,
		User:     pg.User,
		Password: pg.Password,
		Database: pg.Database,
		SSLMode:  pg.SSLMode,
		Table:    cfg.PostgresTable,
	})), nil
}

// loadGraphs reads a single graph file or every graph file of a directory.
func loadGraphs(path string) ([]*types.Graph, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.Annotatef(err, "-graphs")
	}
	if info.IsDir() {
		return graphdef.LoadDir(path)
	}
	return graphdef.LoadFile(path)
}

func newEngine(cfg *config, tools *registry.Registry) (types.WorkflowEngine, error) {
	opts, err := engineOptions(cfg)
	if err != nil {
		return nil, errors.Trace(err)
	}
	engine, err := workflow.NewWorkflowEngine(tools, opts...)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if err := registerGraphs(cfg, engine, tools); err != nil {
		engine.Close(context.Background())
		return nil, errors.Trace(err)
	}
	return engine, nil
}

func registerGraphs(cfg *config, engine types.WorkflowEngine, tools *registry.Registry) error {
	if _, err := codereview.Setup(engine, tools); err != nil {
		return errors.Trace(err)
	}
	if cfg.GraphsPath == "" {
		return nil
	}

	graphs, err := loadGraphs(cfg.GraphsPath)
	if err != nil {
		return errors.Trace(err)
	}
	for _, g := range graphs {
		if err := engine.RegisterGraph(g); err != nil {
			return errors.Trace(err)
		}
		log.WithField("graph", g.ID).Info("graph registered")
	}
	return nil
}

func run(ctx context.Context, cfg *config) error {
	tools := registry.New()
	engine, err := newEngine(cfg, tools)
	if err != nil {
		return errors.Trace(err)
	}
	return serve(ctx, cfg, engine, tools)
}

// serve answers the API until ctx ends or the listener fails, and closes
// engine either way.
func serve(ctx context.Context, cfg *config, engine types.WorkflowEngine, tools *registry.Registry) error {
	runCtx, cancelRuns := context.WithCancel(context.Background())
	defer cancelRuns()

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpapi.NewRouter(runCtx, engine, tools),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serverErrCh := make(chan error, 1)
	go func() {
		log.Infof("listening on %s", cfg.Addr)
		serverErrCh <- server.ListenAndServe()
	}()

	var serveErr error
	select {
	case err := <-serverErrCh:
		if !errors.Is(err, http.ErrServerClosed) {
			serveErr = errors.Annotatef(err, "serve %s", cfg.Addr)
		}
	case <-ctx.Done():
		log.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warnf("shutdown server: %v", err)
	}
	// background runs still going when the engine gives up waiting are
	// cancelled and stay where they are
	if err := engine.Close(shutdownCtx); err != nil {
		cancelRuns()
		log.Warnf("close engine: %v", err)
	}
	return serveErr
}
