package workflow

import (
	"fmt"
	"time"

	"github.com/flowmesh/flowmesh/types"
)

// NodeKind defines the kind of a workflow graph node.
type NodeKind string

const (
	// NodeKindAgent invokes the external capability (LLM call, business logic).
	NodeKindAgent NodeKind = "agent"
	// NodeKindCondition evaluates predicates on its outgoing edges and
	// produces no payload of its own.
	NodeKindCondition NodeKind = "condition"
	// NodeKindSplit marks the start of independent parallel branches.
	NodeKindSplit NodeKind = "split"
	// NodeKindJoin waits for all of its predecessors to reach a terminal
	// state before becoming ready.
	NodeKindJoin NodeKind = "join"
	// NodeKindTransform invokes the external capability for a data transform.
	NodeKindTransform NodeKind = "transform"
	// NodeKindDelay suspends for a configured duration, then succeeds.
	NodeKindDelay NodeKind = "delay"
)

// FailureMode decides what a node's exhausted failure means for the run.
type FailureMode string

const (
	// FailureModeFatal terminates the run as Failed; unexecuted nodes are
	// marked Skipped.
	FailureModeFatal FailureMode = "fatal"
	// FailureModeTolerate keeps the run going; dependents with no alternative
	// path are transitively Skipped and the failure is reported in stats.
	FailureModeTolerate FailureMode = "tolerate"
)

// RetryPolicy defines per-node retry behavior.
//
// An empty RetryableErrors set means retry on ANY failure category. To retry
// nothing, set MaxAttempts to 1.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int
	// InitialDelay is the delay before the second attempt.
	InitialDelay time.Duration
	// BackoffMultiplier grows the delay between consecutive attempts.
	BackoffMultiplier float64
	// MaxDelay caps the backoff delay.
	MaxDelay time.Duration
	// JitterFactor randomizes each delay by +/- delay*JitterFactor.
	JitterFactor float64
	// RetryableErrors lists the failure categories eligible for retry.
	RetryableErrors []types.ErrorCode
}

// DefaultRetryPolicy returns the retry policy applied when a node opts into
// retries without configuring details.
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:       3,
		InitialDelay:      time.Second,
		BackoffMultiplier: 2.0,
		MaxDelay:          30 * time.Second,
		JitterFactor:      0.25,
	}
}

// retryableFor reports whether a failure category is eligible for retry
// under this policy.
func (p *RetryPolicy) retryableFor(code types.ErrorCode) bool {
	if len(p.RetryableErrors) == 0 {
		return true
	}
	for _, c := range p.RetryableErrors {
		if c == code {
			return true
		}
	}
	return false
}

// Node is a unit of work in the workflow graph. Nodes are immutable once
// added to a graph.
type Node struct {
	// ID is the caller-supplied unique identifier.
	ID string
	// Name and Description are display metadata with no execution semantics.
	Name        string
	Description string
	// Kind selects the node's execution behavior.
	Kind NodeKind
	// Retry configures per-node retry. Nil falls back to the engine's default
	// policy, or a single attempt when no default is configured.
	Retry *RetryPolicy
	// Timeout bounds a single attempt. Zero means unbounded.
	Timeout time.Duration
	// Delay is the suspension duration for Delay nodes.
	Delay time.Duration
	// FailureMode decides whether an exhausted failure is fatal to the run.
	// The zero value is treated as FailureModeFatal.
	FailureMode FailureMode
}

// fatal reports whether this node's failure terminates the run.
func (n *Node) fatal() bool {
	return n.FailureMode != FailureModeTolerate
}

// Edge is a directed dependency between two nodes, optionally gated by a
// named condition predicate. An absent condition means an unconditional edge.
type Edge struct {
	From      string
	To        string
	Condition string
}

// conditional reports whether this edge is gated by a predicate.
func (e *Edge) conditional() bool {
	return e.Condition != ""
}

// Graph owns the set of nodes and edges of a workflow. It is built
// incrementally and conceptually frozen once a run starts; concurrent
// structural mutation during an active run is not supported.
//
// Insertion order of nodes is preserved and used as the deterministic
// tie-break when the scheduler must choose among simultaneously ready nodes.
type Graph struct {
	nodes    map[string]*Node
	order    []string
	outgoing map[string][]*Edge
	incoming map[string][]*Edge
	edges    int
}

// NewGraph creates a new empty graph.
func NewGraph() *Graph {
	return &Graph{
		nodes:    make(map[string]*Node),
		outgoing: make(map[string][]*Edge),
		incoming: make(map[string][]*Edge),
	}
}

// AddNode adds a node to the graph. Adding a node with an already-used ID
// fails and leaves the graph unchanged.
func (g *Graph) AddNode(node *Node) error {
	if node == nil || node.ID == "" {
		return types.NewError(types.ErrInvalidInput, "node must have an ID")
	}
	if _, exists := g.nodes[node.ID]; exists {
		return types.NewError(types.ErrDuplicateNodeID,
			fmt.Sprintf("node ID already exists: %s", node.ID)).WithNodeID(node.ID)
	}
	g.nodes[node.ID] = node
	g.order = append(g.order, node.ID)
	return nil
}

// AddEdge adds a directed edge. Both endpoints must already exist; a missing
// endpoint is a hard error, never a silently-created placeholder. Multiple
// edges between the same ordered pair are permitted. Cycles are NOT rejected
// here: graphs may transiently contain cycles during assembly, and Validate
// reports them before execution.
func (g *Graph) AddEdge(edge *Edge) error {
	if edge == nil || edge.From == "" || edge.To == "" {
		return types.NewError(types.ErrInvalidInput, "edge must have both endpoints")
	}
	if _, exists := g.nodes[edge.From]; !exists {
		return types.NewError(types.ErrUnknownNode,
			fmt.Sprintf("edge references unknown source node: %s", edge.From)).WithNodeID(edge.From)
	}
	if _, exists := g.nodes[edge.To]; !exists {
		return types.NewError(types.ErrUnknownNode,
			fmt.Sprintf("edge references unknown target node: %s", edge.To)).WithNodeID(edge.To)
	}
	g.outgoing[edge.From] = append(g.outgoing[edge.From], edge)
	g.incoming[edge.To] = append(g.incoming[edge.To], edge)
	g.edges++
	return nil
}

// Node retrieves a node by ID.
func (g *Graph) Node(id string) (*Node, bool) {
	node, ok := g.nodes[id]
	return node, ok
}

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int {
	return len(g.nodes)
}

// EdgeCount returns the number of edges.
func (g *Graph) EdgeCount() int {
	return g.edges
}

// NodeIDs returns all node IDs in insertion order.
func (g *Graph) NodeIDs() []string {
	ids := make([]string, len(g.order))
	copy(ids, g.order)
	return ids
}

// Outgoing returns the outgoing edges of a node.
func (g *Graph) Outgoing(id string) []*Edge {
	return g.outgoing[id]
}

// Incoming returns the incoming edges of a node.
func (g *Graph) Incoming(id string) []*Edge {
	return g.incoming[id]
}
