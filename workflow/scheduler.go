package workflow

import (
	"context"
	"runtime"
	"time"

	"github.com/flowmesh/flowmesh/internal/metrics"
	"github.com/flowmesh/flowmesh/internal/pool"
	"github.com/flowmesh/flowmesh/types"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// EngineConfig configures one execution engine.
type EngineConfig struct {
	// MaxConcurrentNodes bounds how many node executions run at once.
	// Zero or negative means runtime.NumCPU().
	MaxConcurrentNodes int `json:"max_concurrent_nodes" yaml:"max_concurrent_nodes"`
	// RunTimeout bounds the whole run. Zero means unbounded.
	RunTimeout time.Duration `json:"run_timeout" yaml:"run_timeout"`
	// DispatchRate limits node dispatches per second. Zero means unlimited.
	DispatchRate float64 `json:"dispatch_rate" yaml:"dispatch_rate"`
	// Debug enables verbose scheduling logs.
	Debug bool `json:"debug" yaml:"debug"`
}

// Engine drives one run at a time over a validated graph: it computes the
// ready set, dispatches ready nodes to the NodeExecutor under the
// concurrency bound, and applies completion events as the sole consumer.
//
// An Engine is safe for sequential reuse; each Execute call creates a fresh
// ExecutionContext.
type Engine struct {
	cfg          EngineConfig
	invoker      Invoker
	predicates   *PredicateRegistry
	executor     *NodeExecutor
	workers      *pool.GoroutinePool
	limiter      *rate.Limiter
	logger       *zap.Logger
	metrics      *metrics.Collector
	history      *RunHistoryStore
	tracer       trace.Tracer
	defaultRetry *RetryPolicy
	poolCfg      *pool.GoroutinePoolConfig
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets a custom logger.
func WithLogger(logger *zap.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithPredicates sets the registry resolving edge condition names.
func WithPredicates(reg *PredicateRegistry) EngineOption {
	return func(e *Engine) {
		e.predicates = reg
	}
}

// WithMetrics sets the Prometheus collector.
func WithMetrics(collector *metrics.Collector) EngineOption {
	return func(e *Engine) {
		e.metrics = collector
	}
}

// WithHistoryStore records finished runs into the given store.
func WithHistoryStore(store *RunHistoryStore) EngineOption {
	return func(e *Engine) {
		e.history = store
	}
}

// WithDefaultRetryPolicy applies a retry policy to nodes that do not carry
// one of their own. Without this option such nodes get a single attempt.
func WithDefaultRetryPolicy(policy *RetryPolicy) EngineOption {
	return func(e *Engine) {
		e.defaultRetry = policy
	}
}

// WithWorkerPool overrides the worker pool sizing derived from
// MaxConcurrentNodes. The concurrency bound still applies regardless of the
// pool size.
func WithWorkerPool(cfg pool.GoroutinePoolConfig) EngineOption {
	return func(e *Engine) {
		e.poolCfg = &cfg
	}
}

// NewEngine creates an execution engine around the injected capability.
func NewEngine(cfg EngineConfig, invoker Invoker, opts ...EngineOption) *Engine {
	e := &Engine{
		cfg:        cfg,
		invoker:    invoker,
		predicates: NewPredicateRegistry(),
		logger:     zap.NewNop(),
		tracer:     otel.Tracer("flowmesh/workflow"),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With(zap.String("component", "engine"))

	if e.cfg.MaxConcurrentNodes <= 0 {
		e.cfg.MaxConcurrentNodes = runtime.NumCPU()
	}
	if e.cfg.DispatchRate > 0 {
		e.limiter = rate.NewLimiter(rate.Limit(e.cfg.DispatchRate), 1)
	}
	e.executor = NewNodeExecutor(invoker, e.logger, e.metrics)
	e.executor.defaultRetry = e.defaultRetry

	poolCfg := pool.GoroutinePoolConfig{
		MaxWorkers:  e.cfg.MaxConcurrentNodes,
		QueueSize:   e.cfg.MaxConcurrentNodes * 4,
		IdleTimeout: time.Minute,
	}
	if e.poolCfg != nil {
		poolCfg = *e.poolCfg
	}
	e.workers = pool.NewGoroutinePool(poolCfg)
	return e
}

// Predicates returns the engine's predicate registry.
func (e *Engine) Predicates() *PredicateRegistry {
	return e.predicates
}

// Close releases the engine's worker pool. The engine must not be used
// afterwards.
func (e *Engine) Close() {
	e.workers.Close()
}

// runOptions carries per-run settings.
type runOptions struct {
	label string
	state map[string]any
}

// RunOption configures one run.
type RunOption func(*runOptions)

// WithRunLabel labels the run in history records.
func WithRunLabel(label string) RunOption {
	return func(o *runOptions) {
		o.label = label
	}
}

// WithInitialState seeds the run's shared state.
func WithInitialState(state map[string]any) RunOption {
	return func(o *runOptions) {
		o.state = state
	}
}

// completion is one node execution result delivered to the dispatch loop.
type completion struct {
	node    *Node
	outcome Outcome
}

// Execute validates the graph, runs it to a terminal state, and returns the
// aggregated result. The returned error is non-nil exactly when the run
// could not produce a result (validation failure, fatal node failure, run
// timeout, or cancellation); per-node failures of tolerated nodes are
// reported only through the result's stats and statuses.
func (e *Engine) Execute(ctx context.Context, graph *Graph, opts ...RunOption) (*ExecutionResult, error) {
	var options runOptions
	for _, opt := range opts {
		opt(&options)
	}

	if issues := graph.Validate(); len(issues) > 0 {
		err := types.NewError(types.ErrInvalidGraph, issues[0].Message)
		if issues[0].Code == IssueCycle {
			err = types.NewError(types.ErrCycleDetected, issues[0].Message)
		}
		return nil, err
	}

	ec := NewExecutionContext(graph, options.state)

	runCtx := ctx
	var cancelTimeout context.CancelFunc
	if e.cfg.RunTimeout > 0 {
		runCtx, cancelTimeout = context.WithTimeout(ctx, e.cfg.RunTimeout)
		defer cancelTimeout()
	}
	runCtx, cancelRun := context.WithCancel(runCtx)
	defer cancelRun()

	runCtx, span := e.tracer.Start(runCtx, "workflow.run",
		trace.WithAttributes(
			attribute.String("run.id", ec.RunID),
			attribute.Int("graph.nodes", graph.NodeCount()),
			attribute.Int("graph.edges", graph.EdgeCount()),
		))
	defer span.End()

	e.logger.Info("run started",
		zap.String("run_id", ec.RunID),
		zap.Int("nodes", graph.NodeCount()),
		zap.Int("max_concurrent", e.cfg.MaxConcurrentNodes),
	)

	var record *RunHistory
	if e.history != nil {
		record = NewRunHistory(ec.RunID, options.label)
	}

	state, runErr := e.dispatchLoop(ctx, runCtx, cancelRun, graph, ec, record)

	// Anything still pending at a terminal state was never warranted.
	for _, id := range graph.NodeIDs() {
		ec.markSkipped(id)
	}

	result := aggregateResult(ec, state, runErr)
	if runErr != nil {
		result.FailedNode = types.GetNodeID(runErr)
	}

	if e.metrics != nil {
		e.metrics.RecordRun(string(state), time.Since(ec.startTime))
	}
	if record != nil {
		record.Complete(state, runErr)
		e.history.Save(record)
	}

	e.logger.Info("run finished",
		zap.String("run_id", ec.RunID),
		zap.String("state", string(state)),
		zap.Duration("duration", time.Since(ec.startTime)),
		zap.Error(runErr),
	)

	return result, runErr
}

// dispatchLoop drives the run until terminal: compute readiness, dispatch
// under the concurrency bound, apply completions, repeat.
func (e *Engine) dispatchLoop(
	parent, runCtx context.Context,
	cancelRun context.CancelFunc,
	graph *Graph,
	ec *ExecutionContext,
	record *RunHistory,
) (RunState, error) {
	completions := make(chan completion, graph.NodeCount()+1)
	running := 0
	stopped := false
	var stopErr error
	var stopState RunState

	// stop halts further dispatching and interrupts in-flight retry waits;
	// current attempts are not forcibly interrupted.
	stop := func(state RunState, err error) {
		if stopped {
			return
		}
		stopped = true
		stopState = state
		stopErr = err
		cancelRun()
	}

	classifyCtxErr := func() {
		if parent.Err() != nil {
			stop(RunStateCancelled,
				types.NewError(types.ErrRunCancelled, "run cancelled").WithCause(parent.Err()))
		} else {
			stop(RunStateFailed,
				types.NewError(types.ErrRunTimeout, "run timeout elapsed"))
		}
	}

	for {
		if !stopped && runCtx.Err() != nil {
			classifyCtxErr()
		}
		if !stopped {
			ready, err := e.readyNodes(runCtx, graph, ec)
			if err != nil {
				stop(RunStateFailed, err)
			} else {
				if e.metrics != nil {
					e.metrics.SetReadyNodes(len(ready))
				}
				for _, node := range ready {
					if running >= e.cfg.MaxConcurrentNodes {
						break
					}
					if e.limiter != nil {
						waitStart := time.Now()
						if err := e.limiter.Wait(runCtx); err != nil {
							break
						}
						if e.metrics != nil {
							e.metrics.RecordDispatchWait(string(node.Kind), time.Since(waitStart))
						}
					}
					e.dispatch(runCtx, node, ec, completions)
					running++
				}
			}
		}

		if running == 0 {
			if stopped {
				return stopState, stopErr
			}
			return e.settle(ec)
		}

		if stopped {
			// Drain in-flight work; runCtx is already cancelled so the
			// executor unwinds promptly.
			c := <-completions
			running--
			e.applyCompletion(c, ec, record, stop)
			continue
		}

		select {
		case c := <-completions:
			running--
			e.applyCompletion(c, ec, record, stop)
		case <-runCtx.Done():
			classifyCtxErr()
		}
	}
}

// dispatch hands one ready node to the worker pool.
func (e *Engine) dispatch(runCtx context.Context, node *Node, ec *ExecutionContext, completions chan<- completion) {
	ec.markRunning(node.ID)
	input := e.buildInput(node, ec)

	if e.cfg.Debug {
		e.logger.Debug("dispatching node",
			zap.String("run_id", ec.RunID),
			zap.String("node_id", node.ID),
			zap.String("kind", string(node.Kind)),
		)
	}

	task := func(taskCtx context.Context) error {
		nodeCtx, span := e.tracer.Start(taskCtx, "workflow.node",
			trace.WithAttributes(
				attribute.String("node.id", node.ID),
				attribute.String("node.kind", string(node.Kind)),
			))
		outcome := e.executor.Execute(nodeCtx, node, input)
		span.End()
		completions <- completion{node: node, outcome: outcome}
		return outcome.Err
	}

	if err := e.workers.Submit(runCtx, task); err != nil {
		// Pool rejection is a scheduler-side failure of the node.
		completions <- completion{node: node, outcome: Outcome{
			Err: types.NewError(types.ErrUnknown, "dispatch rejected").
				WithCause(err).WithNodeID(node.ID),
		}}
	}
}

// applyCompletion applies one node outcome atomically and decides whether
// the run must stop.
func (e *Engine) applyCompletion(c completion, ec *ExecutionContext, record *RunHistory, stop func(RunState, error)) {
	ec.applyOutcome(c.node.ID, c.outcome)
	if record != nil {
		record.RecordNode(c.node, c.outcome)
	}

	if c.outcome.Err == nil {
		if e.cfg.Debug {
			e.logger.Debug("node succeeded",
				zap.String("run_id", ec.RunID),
				zap.String("node_id", c.node.ID),
				zap.Int("attempts", c.outcome.Attempts),
			)
		}
		return
	}

	e.logger.Warn("node failed",
		zap.String("run_id", ec.RunID),
		zap.String("node_id", c.node.ID),
		zap.Int("attempts", c.outcome.Attempts),
		zap.Bool("timed_out", c.outcome.TimedOut),
		zap.Bool("fatal", c.node.fatal()),
		zap.Error(c.outcome.Err),
	)

	if c.node.fatal() {
		stop(RunStateFailed, c.outcome.Err)
	}
}

// settle decides the terminal state once nothing is pending or running. A
// run completes when at least one node succeeded or the graph was trivially
// empty; otherwise nothing produced a result and the run is Failed.
func (e *Engine) settle(ec *ExecutionContext) (RunState, error) {
	executed, failed, _ := ec.counters()
	if executed > 0 || ec.graph.NodeCount() == 0 {
		return RunStateCompleted, nil
	}
	err := types.NewError(types.ErrUnknown, "no node succeeded")
	if failed > 0 {
		for _, id := range ec.graph.NodeIDs() {
			if nodeErr := ec.NodeError(id); nodeErr != nil {
				err = types.NewError(types.Categorize(nodeErr), "no node succeeded").
					WithCause(nodeErr).WithNodeID(id)
				break
			}
		}
	}
	return RunStateFailed, err
}

// readyNodes computes the ready set in node insertion order, marking nodes
// Skipped along the way. Skip marking loops to a fixpoint since skipping a
// node can make its successors skippable.
//
// Edge liveness: an unconditional edge is live when its source Succeeded; a
// conditional edge is live when its source Succeeded and the condition
// evaluates true. An edge is dead when its source reached a terminal state
// without making it live (Skipped, tolerated Failed, or condition false).
//
// An ordinary node is ready when no incoming edge is still pending and at
// least one is live (or it has no incoming edges). A Join requires every
// incoming edge to be live. A node whose incoming edges are all dead is
// Skipped, not Failed: this is expected non-execution.
func (e *Engine) readyNodes(ctx context.Context, graph *Graph, ec *ExecutionContext) ([]*Node, error) {
	for changed := true; changed; {
		changed = false
		for _, id := range graph.NodeIDs() {
			if ec.Status(id) != NodeStatusPending {
				continue
			}
			live, dead, waiting, err := e.resolveEdges(ctx, graph.Incoming(id), ec)
			if err != nil {
				return nil, err
			}
			if waiting > 0 {
				continue
			}
			node, _ := graph.Node(id)
			if !nodeReady(node, live, dead, len(graph.Incoming(id))) {
				ec.markSkipped(id)
				changed = true
			}
		}
	}

	var ready []*Node
	for _, id := range graph.NodeIDs() {
		if ec.Status(id) != NodeStatusPending {
			continue
		}
		live, _, waiting, err := e.resolveEdges(ctx, graph.Incoming(id), ec)
		if err != nil {
			return nil, err
		}
		if waiting > 0 {
			continue
		}
		node, _ := graph.Node(id)
		incoming := len(graph.Incoming(id))
		if incoming == 0 || (node.Kind == NodeKindJoin && live == incoming) || (node.Kind != NodeKindJoin && live > 0) {
			ready = append(ready, node)
		}
	}
	return ready, nil
}

// nodeReady reports whether the node can still become ready given fully
// resolved incoming edges.
func nodeReady(node *Node, live, dead, incoming int) bool {
	if incoming == 0 {
		return true
	}
	if node.Kind == NodeKindJoin {
		return dead == 0 && live == incoming
	}
	return live > 0
}

// resolveEdges classifies incoming edges as live, dead, or still waiting,
// evaluating conditions (once, cached) for edges whose source Succeeded.
func (e *Engine) resolveEdges(ctx context.Context, edges []*Edge, ec *ExecutionContext) (live, dead, waiting int, err error) {
	for _, edge := range edges {
		src := ec.Status(edge.From)
		switch {
		case src == NodeStatusSucceeded && !edge.conditional():
			live++
		case src == NodeStatusSucceeded:
			taken, cached := ec.edgeDecision(edge)
			if !cached {
				taken, err = e.predicates.evaluate(ctx, edge.Condition, ec)
				if err != nil {
					return 0, 0, 0, err
				}
				ec.cacheEdgeDecision(edge, taken)
			}
			if taken {
				live++
			} else {
				dead++
			}
		case src.Terminal():
			dead++
		default:
			waiting++
		}
	}
	return live, dead, waiting, nil
}

// buildInput derives a node's invocation input from the outputs of its live
// predecessors plus the run's shared state.
func (e *Engine) buildInput(node *Node, ec *ExecutionContext) Input {
	values := make(map[string]any)
	for _, edge := range ec.graph.Incoming(node.ID) {
		if ec.Status(edge.From) != NodeStatusSucceeded {
			continue
		}
		if edge.conditional() {
			if taken, ok := ec.edgeDecision(edge); !ok || !taken {
				continue
			}
		}
		if out, ok := ec.Output(edge.From); ok {
			values[edge.From] = out
		}
	}
	return Input{Values: values, State: ec.State()}
}
