// Package flowmesh provides a top-level convenience entry point for running
// workflow graphs with minimal boilerplate.
//
// Usage:
//
//	import "github.com/flowmesh/flowmesh"
//
//	mesh, err := flowmesh.New(myInvoker)
//	result, err := mesh.Run(ctx, graph)
//
// This is a thin wrapper around [workflow.Engine] wired from [config.Config];
// use the workflow package directly when you need finer control.
package flowmesh

import (
	"context"
	"fmt"

	"github.com/flowmesh/flowmesh/config"
	"github.com/flowmesh/flowmesh/internal/metrics"
	"github.com/flowmesh/flowmesh/internal/pool"
	"github.com/flowmesh/flowmesh/internal/telemetry"
	"github.com/flowmesh/flowmesh/workflow"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
)

// Mesh bundles an engine with the ambient services built from config.
type Mesh struct {
	engine    *workflow.Engine
	logger    *zap.Logger
	providers *telemetry.Providers
	history   *workflow.RunHistoryStore
}

type options struct {
	cfg        *config.Config
	configPath string
	logger     *zap.Logger
	predicates *workflow.PredicateRegistry
}

// Option configures the mesh created by [New].
type Option func(*options)

// WithConfig uses a pre-built configuration.
func WithConfig(cfg *config.Config) Option {
	return func(o *options) {
		o.cfg = cfg
	}
}

// WithConfigFile loads configuration from a YAML file, with environment
// variable overrides under the FLOWMESH prefix.
func WithConfigFile(path string) Option {
	return func(o *options) {
		o.configPath = path
	}
}

// WithLogger sets a custom zap logger, bypassing the log config.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithPredicates sets the registry resolving edge condition names.
func WithPredicates(reg *workflow.PredicateRegistry) Option {
	return func(o *options) {
		o.predicates = reg
	}
}

// New creates a Mesh around the given invoker. With no options, defaults
// apply: metrics on, telemetry off, concurrency bound to the CPU count.
func New(invoker workflow.Invoker, opts ...Option) (*Mesh, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	cfg := o.cfg
	if cfg == nil {
		loader := config.NewLoader()
		if o.configPath != "" {
			loader = loader.WithConfigPath(o.configPath)
		}
		loaded, err := loader.Load()
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}

	logger := o.logger
	if logger == nil {
		built, err := buildLogger(cfg.Log)
		if err != nil {
			return nil, fmt.Errorf("build logger: %w", err)
		}
		logger = built
	}

	providers, err := telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	history := workflow.NewRunHistoryStore()
	engineOpts := []workflow.EngineOption{
		workflow.WithLogger(logger),
		workflow.WithHistoryStore(history),
		workflow.WithDefaultRetryPolicy(retryPolicy(cfg.Retry)),
		workflow.WithWorkerPool(pool.GoroutinePoolConfig{
			MaxWorkers:  cfg.Pool.MaxWorkers,
			QueueSize:   cfg.Pool.QueueSize,
			IdleTimeout: cfg.Pool.IdleTimeout,
		}),
	}
	if cfg.Metrics.Enabled {
		engineOpts = append(engineOpts,
			workflow.WithMetrics(metrics.NewCollector(cfg.Metrics.Namespace, logger)))
	}
	if o.predicates != nil {
		engineOpts = append(engineOpts, workflow.WithPredicates(o.predicates))
	}

	engine := workflow.NewEngine(workflow.EngineConfig{
		MaxConcurrentNodes: cfg.Engine.MaxConcurrentNodes,
		RunTimeout:         cfg.Engine.RunTimeout,
		DispatchRate:       cfg.Engine.DispatchRate,
		Debug:              cfg.Engine.Debug,
	}, invoker, engineOpts...)

	return &Mesh{
		engine:    engine,
		logger:    logger,
		providers: providers,
		history:   history,
	}, nil
}

// Engine exposes the underlying engine.
func (m *Mesh) Engine() *workflow.Engine {
	return m.engine
}

// Predicates exposes the engine's predicate registry for registration.
func (m *Mesh) Predicates() *workflow.PredicateRegistry {
	return m.engine.Predicates()
}

// History exposes the run history store.
func (m *Mesh) History() *workflow.RunHistoryStore {
	return m.history
}

// Run executes one graph to a terminal state.
func (m *Mesh) Run(ctx context.Context, graph *workflow.Graph, opts ...workflow.RunOption) (*workflow.ExecutionResult, error) {
	return m.engine.Execute(ctx, graph, opts...)
}

// RunDefinition builds a graph from a portable definition and executes it,
// labeling the run with the definition's name.
func (m *Mesh) RunDefinition(ctx context.Context, def *workflow.GraphDefinition, opts ...workflow.RunOption) (*workflow.ExecutionResult, error) {
	graph, err := def.ToGraph()
	if err != nil {
		return nil, err
	}
	opts = append([]workflow.RunOption{workflow.WithRunLabel(def.Name)}, opts...)
	return m.engine.Execute(ctx, graph, opts...)
}

// RunAll executes independent graphs concurrently and returns results in
// input order. The first run-level error cancels the remaining runs.
func (m *Mesh) RunAll(ctx context.Context, graphs []*workflow.Graph) ([]*workflow.ExecutionResult, error) {
	results := make([]*workflow.ExecutionResult, len(graphs))
	g, gctx := errgroup.WithContext(ctx)
	for i, graph := range graphs {
		g.Go(func() error {
			result, err := m.engine.Execute(gctx, graph)
			results[i] = result
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

// Close releases the engine's workers and flushes telemetry.
func (m *Mesh) Close(ctx context.Context) error {
	m.engine.Close()
	return m.providers.Shutdown(ctx)
}

// retryPolicy translates the config retry section into the engine's default
// policy for nodes without one of their own.
func retryPolicy(cfg config.RetryConfig) *workflow.RetryPolicy {
	return &workflow.RetryPolicy{
		MaxAttempts:       cfg.MaxAttempts,
		InitialDelay:      cfg.InitialDelay,
		BackoffMultiplier: cfg.BackoffMultiplier,
		MaxDelay:          cfg.MaxDelay,
		JitterFactor:      cfg.JitterFactor,
	}
}

// buildLogger constructs a zap logger from log config.
func buildLogger(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}

	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.Encoding = cfg.Format
	if len(cfg.OutputPaths) > 0 {
		zc.OutputPaths = cfg.OutputPaths
	}
	zc.DisableCaller = !cfg.EnableCaller
	zc.DisableStacktrace = !cfg.EnableStacktrace

	return zc.Build()
}
