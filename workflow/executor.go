package workflow

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/flowmesh/flowmesh/internal/metrics"
	"github.com/flowmesh/flowmesh/types"

	"go.uber.org/zap"
)

// Input carries what a node invocation may read: the outputs of its live
// predecessors keyed by node ID, plus the run's shared state.
type Input struct {
	Values map[string]any
	State  *SharedState
}

// Invoker is the external capability boundary. Every Agent and Transform
// node is executed by handing its input to an injected Invoker; this is the
// seam where LLM calls, tool calls, or arbitrary business logic plug in
// without the engine depending on any of them.
type Invoker interface {
	Invoke(ctx context.Context, node *Node, input Input) (any, error)
}

// InvokerFunc adapts a function to the Invoker interface.
type InvokerFunc func(ctx context.Context, node *Node, input Input) (any, error)

// Invoke implements Invoker.
func (f InvokerFunc) Invoke(ctx context.Context, node *Node, input Input) (any, error) {
	return f(ctx, node, input)
}

// Outcome classifies one node execution after timeout and retry handling.
type Outcome struct {
	// Output is the produced value on success.
	Output any
	// Err is the final error after exhausting attempts, nil on success.
	Err error
	// Attempts is how many attempts were consumed.
	Attempts int
	// TimedOut reports whether the final attempt hit the per-attempt timeout.
	TimedOut bool
	// Duration is wall time spent on the node including retries and waits.
	Duration time.Duration
}

// NodeExecutor wraps the external capability with per-node timeout and retry
// policy and classifies the result. It is the single dispatch point over
// node kinds.
type NodeExecutor struct {
	invoker      Invoker
	logger       *zap.Logger
	metrics      *metrics.Collector
	defaultRetry *RetryPolicy
}

// NewNodeExecutor creates a node executor around the given capability.
// Metrics may be nil.
func NewNodeExecutor(invoker Invoker, logger *zap.Logger, collector *metrics.Collector) *NodeExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NodeExecutor{
		invoker: invoker,
		logger:  logger.With(zap.String("component", "node_executor")),
		metrics: collector,
	}
}

// Execute runs a single node to an Outcome. Structural nodes (Condition,
// Split, Join) succeed immediately and produce no payload; Delay nodes
// suspend for their configured duration; Agent and Transform nodes invoke
// the external capability under the node's timeout and retry policy.
func (e *NodeExecutor) Execute(ctx context.Context, node *Node, input Input) Outcome {
	start := time.Now()
	outcome := e.execute(ctx, node, input)
	outcome.Duration = time.Since(start)
	if e.metrics != nil {
		status := NodeStatusSucceeded
		if outcome.Err != nil {
			status = NodeStatusFailed
		}
		e.metrics.RecordNodeExecution(string(node.Kind), string(status), outcome.Duration)
	}
	return outcome
}

func (e *NodeExecutor) execute(ctx context.Context, node *Node, input Input) Outcome {
	switch node.Kind {
	case NodeKindCondition, NodeKindSplit, NodeKindJoin:
		// Structural markers: nothing to invoke, no payload.
		return Outcome{Attempts: 0}

	case NodeKindDelay:
		return e.executeDelay(ctx, node)

	case NodeKindAgent, NodeKindTransform:
		return e.executeWithRetry(ctx, node, input)

	default:
		return Outcome{
			Err: types.NewError(types.ErrInvalidInput,
				fmt.Sprintf("unknown node kind: %s", node.Kind)).WithNodeID(node.ID),
			Attempts: 1,
		}
	}
}

// executeDelay suspends for the node's configured duration. No retry or
// timeout semantics apply beyond the sleep itself.
func (e *NodeExecutor) executeDelay(ctx context.Context, node *Node) Outcome {
	if node.Delay <= 0 {
		return Outcome{Attempts: 1}
	}
	timer := time.NewTimer(node.Delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return Outcome{
			Err: types.NewError(types.ErrRunCancelled, "delay interrupted").
				WithCause(ctx.Err()).WithNodeID(node.ID),
			Attempts: 1,
		}
	case <-timer.C:
		return Outcome{Attempts: 1}
	}
}

// executeWithRetry drives the attempt loop: sequential attempts, exponential
// backoff with jitter between them, and category-based retry eligibility.
func (e *NodeExecutor) executeWithRetry(ctx context.Context, node *Node, input Input) Outcome {
	policy := node.Retry
	if policy == nil {
		policy = e.defaultRetry
	}
	if policy == nil {
		policy = &RetryPolicy{MaxAttempts: 1}
	}
	maxAttempts := policy.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var lastErr error
	var timedOut bool

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			delay := backoffDelay(policy, attempt)
			e.logger.Debug("retrying node",
				zap.String("node_id", node.ID),
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", maxAttempts),
				zap.Duration("delay", delay),
				zap.Error(lastErr),
			)
			if e.metrics != nil {
				e.metrics.RecordRetry(string(node.Kind))
			}
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return Outcome{
					Err: types.NewError(types.ErrRunCancelled, "retry wait interrupted").
						WithCause(ctx.Err()).WithNodeID(node.ID),
					Attempts: attempt - 1,
					TimedOut: timedOut,
				}
			case <-timer.C:
			}
		}

		output, err, attemptTimedOut := e.invokeOnce(ctx, node, input)
		if err == nil {
			if attempt > 1 {
				e.logger.Info("node succeeded after retry",
					zap.String("node_id", node.ID),
					zap.Int("attempts", attempt),
				)
			}
			return Outcome{Output: output, Attempts: attempt}
		}

		lastErr = err
		timedOut = attemptTimedOut

		code := types.Categorize(err)
		if !policy.retryableFor(code) {
			e.logger.Debug("failure category not retryable",
				zap.String("node_id", node.ID),
				zap.String("category", string(code)),
				zap.Error(err),
			)
			return Outcome{Err: e.failure(node, err), Attempts: attempt, TimedOut: attemptTimedOut}
		}
	}

	e.logger.Warn("node attempts exhausted",
		zap.String("node_id", node.ID),
		zap.Int("attempts", maxAttempts),
		zap.Error(lastErr),
	)
	return Outcome{Err: e.failure(node, lastErr), Attempts: maxAttempts, TimedOut: timedOut}
}

// invokeOnce performs exactly one capability invocation, bounded by the
// node's per-attempt timeout. On timeout the attempt is marked TimedOut and
// counted as a failed attempt; the in-flight call is not forcibly
// interrupted beyond context cancellation.
func (e *NodeExecutor) invokeOnce(ctx context.Context, node *Node, input Input) (any, error, bool) {
	if node.Timeout <= 0 {
		output, err := e.invoker.Invoke(ctx, node, input)
		return output, err, false
	}

	actx, cancel := context.WithTimeout(ctx, node.Timeout)
	defer cancel()

	type result struct {
		output any
		err    error
	}
	done := make(chan result, 1)
	go func() {
		output, err := e.invoker.Invoke(actx, node, input)
		done <- result{output, err}
	}()

	select {
	case res := <-done:
		if res.err != nil && types.Categorize(res.err) == types.ErrTimeout {
			return nil, res.err, true
		}
		return res.output, res.err, res.err != nil && actx.Err() == context.DeadlineExceeded
	case <-actx.Done():
		if ctx.Err() != nil {
			// Parent cancelled, not a per-attempt timeout.
			return nil, types.NewError(types.ErrRunCancelled, "attempt interrupted").
				WithCause(ctx.Err()).WithNodeID(node.ID), false
		}
		return nil, types.NewError(types.ErrTimeout,
			fmt.Sprintf("attempt exceeded timeout %s", node.Timeout)).WithNodeID(node.ID), true
	}
}

// failure normalizes the final error to a structured, node-attributed error.
func (e *NodeExecutor) failure(node *Node, err error) error {
	if serr, ok := err.(*types.Error); ok {
		if serr.NodeID == "" {
			serr.NodeID = node.ID
		}
		return serr
	}
	return types.NewError(types.Categorize(err), "node execution failed").
		WithCause(err).WithNodeID(node.ID)
}

// backoffDelay computes the wait before the given attempt:
// min(maxDelay, initialDelay * multiplier^(attempt-2)), jittered by
// +/- delay*jitterFactor drawn independently per attempt.
func backoffDelay(policy *RetryPolicy, attempt int) time.Duration {
	initial := policy.InitialDelay
	if initial <= 0 {
		initial = time.Second
	}
	multiplier := policy.BackoffMultiplier
	if multiplier < 1.0 {
		multiplier = 2.0
	}

	delay := float64(initial) * math.Pow(multiplier, float64(attempt-2))
	if policy.MaxDelay > 0 && delay > float64(policy.MaxDelay) {
		delay = float64(policy.MaxDelay)
	}
	if policy.JitterFactor > 0 {
		jitter := delay * policy.JitterFactor
		delay += (rand.Float64()*2 - 1) * jitter
	}
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}
