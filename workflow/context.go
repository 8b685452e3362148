package workflow

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// NodeStatus is the per-run lifecycle state of a node.
type NodeStatus string

const (
	// NodeStatusPending means the node has not been dispatched yet.
	NodeStatusPending NodeStatus = "pending"
	// NodeStatusRunning means the node is executing (including retry waits).
	NodeStatusRunning NodeStatus = "running"
	// NodeStatusSucceeded is terminal success.
	NodeStatusSucceeded NodeStatus = "succeeded"
	// NodeStatusFailed is terminal failure after exhausting attempts.
	NodeStatusFailed NodeStatus = "failed"
	// NodeStatusSkipped is terminal, expected non-execution: an unsatisfied
	// condition or an unreachable branch, never a failure.
	NodeStatusSkipped NodeStatus = "skipped"
)

// Terminal reports whether the status is one of the three terminal states.
func (s NodeStatus) Terminal() bool {
	return s == NodeStatusSucceeded || s == NodeStatusFailed || s == NodeStatusSkipped
}

// SharedState is the open key/value bag threaded across a run. Condition
// predicates and node invocations may read and write it concurrently.
type SharedState struct {
	values map[string]any
	mu     sync.RWMutex
}

// NewSharedState creates an empty shared state, optionally seeded.
func NewSharedState(seed map[string]any) *SharedState {
	values := make(map[string]any, len(seed))
	for k, v := range seed {
		values[k] = v
	}
	return &SharedState{values: values}
}

// Get retrieves a workflow variable.
func (s *SharedState) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// Set sets a workflow variable.
func (s *SharedState) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}

// Snapshot returns a copy of all workflow variables.
func (s *SharedState) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// ExecutionContext is the per-run mutable state: node outputs, statuses,
// shared variables, and running stats. It is created fresh for each run and
// never shared across concurrent runs of the same graph.
//
// All completion writes are applied by the scheduler, the sole consumer of
// completion events, so readers never observe a partially-applied node
// completion.
type ExecutionContext struct {
	// RunID uniquely identifies this run.
	RunID string

	graph     *Graph
	state     *SharedState
	startTime time.Time

	mu        sync.RWMutex
	outputs   map[string]any
	status    map[string]NodeStatus
	attempts  map[string]int
	nodeErrs  map[string]error
	decisions map[*Edge]bool

	executed int
	failed   int
	skipped  int
}

// NewExecutionContext creates a fresh context for one run of the graph,
// with every node Pending.
func NewExecutionContext(graph *Graph, seed map[string]any) *ExecutionContext {
	ec := &ExecutionContext{
		RunID:     uuid.NewString(),
		graph:     graph,
		state:     NewSharedState(seed),
		startTime: time.Now(),
		outputs:   make(map[string]any),
		status:    make(map[string]NodeStatus),
		attempts:  make(map[string]int),
		nodeErrs:  make(map[string]error),
		decisions: make(map[*Edge]bool),
	}
	for _, id := range graph.NodeIDs() {
		ec.status[id] = NodeStatusPending
	}
	return ec
}

// State returns the shared key/value bag for this run.
func (ec *ExecutionContext) State() *SharedState {
	return ec.state
}

// Output returns the produced value of a node, if it has one.
func (ec *ExecutionContext) Output(nodeID string) (any, bool) {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	v, ok := ec.outputs[nodeID]
	return v, ok
}

// Status returns the current status of a node.
func (ec *ExecutionContext) Status(nodeID string) NodeStatus {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	return ec.status[nodeID]
}

// Attempts returns how many attempts a node consumed.
func (ec *ExecutionContext) Attempts(nodeID string) int {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	return ec.attempts[nodeID]
}

// NodeError returns the last error of a failed node.
func (ec *ExecutionContext) NodeError(nodeID string) error {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	return ec.nodeErrs[nodeID]
}

// markRunning transitions a node to Running.
func (ec *ExecutionContext) markRunning(nodeID string) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.status[nodeID] = NodeStatusRunning
}

// applyOutcome applies one node completion atomically: status, output,
// attempts, error, and stats counters move together.
func (ec *ExecutionContext) applyOutcome(nodeID string, outcome Outcome) {
	ec.mu.Lock()
	defer ec.mu.Unlock()

	ec.attempts[nodeID] = outcome.Attempts
	if outcome.Err == nil {
		ec.status[nodeID] = NodeStatusSucceeded
		if outcome.Output != nil {
			ec.outputs[nodeID] = outcome.Output
		}
		ec.executed++
		return
	}
	ec.status[nodeID] = NodeStatusFailed
	ec.nodeErrs[nodeID] = outcome.Err
	ec.failed++
}

// markSkipped transitions a pending node to Skipped.
func (ec *ExecutionContext) markSkipped(nodeID string) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	if ec.status[nodeID] == NodeStatusPending {
		ec.status[nodeID] = NodeStatusSkipped
		ec.skipped++
	}
}

// edgeDecision returns the cached evaluation of a conditional edge.
func (ec *ExecutionContext) edgeDecision(edge *Edge) (bool, bool) {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	v, ok := ec.decisions[edge]
	return v, ok
}

// cacheEdgeDecision stores a conditional edge evaluation. Conditions are
// evaluated once per run so readiness recomputation stays deterministic.
func (ec *ExecutionContext) cacheEdgeDecision(edge *Edge, taken bool) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.decisions[edge] = taken
}

// statuses returns a copy of all node statuses.
func (ec *ExecutionContext) statuses() map[string]NodeStatus {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	out := make(map[string]NodeStatus, len(ec.status))
	for k, v := range ec.status {
		out[k] = v
	}
	return out
}

// outputsSnapshot returns a copy of all node outputs.
func (ec *ExecutionContext) outputsSnapshot() map[string]any {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	out := make(map[string]any, len(ec.outputs))
	for k, v := range ec.outputs {
		out[k] = v
	}
	return out
}

// counters returns the executed/failed/skipped counters.
func (ec *ExecutionContext) counters() (executed, failed, skipped int) {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	return ec.executed, ec.failed, ec.skipped
}
