package workflow

import (
	"time"

	"github.com/flowmesh/flowmesh/types"

	"go.uber.org/zap"
)

// GraphBuilder provides a fluent API for constructing workflow graphs.
// Construction errors (duplicate IDs, unknown edge endpoints) are collected
// and surfaced by Build, so call chains stay uninterrupted.
type GraphBuilder struct {
	graph  *Graph
	name   string
	desc   string
	errs   []error
	logger *zap.Logger
}

// NewGraphBuilder creates a new graph builder with the given workflow name.
func NewGraphBuilder(name string) *GraphBuilder {
	return &GraphBuilder{
		graph:  NewGraph(),
		name:   name,
		logger: zap.NewNop(),
	}
}

// WithDescription sets the workflow description.
func (b *GraphBuilder) WithDescription(desc string) *GraphBuilder {
	b.desc = desc
	return b
}

// WithLogger sets a custom logger.
func (b *GraphBuilder) WithLogger(logger *zap.Logger) *GraphBuilder {
	b.logger = logger.With(zap.String("component", "graph_builder"))
	return b
}

// AddNode adds a node and returns a NodeBuilder for configuration.
func (b *GraphBuilder) AddNode(id string, kind NodeKind) *NodeBuilder {
	node := &Node{ID: id, Kind: kind}
	if err := b.graph.AddNode(node); err != nil {
		b.errs = append(b.errs, err)
	}
	return &NodeBuilder{node: node, parent: b}
}

// AddEdge adds an unconditional directed edge between two existing nodes.
func (b *GraphBuilder) AddEdge(from, to string) *GraphBuilder {
	if err := b.graph.AddEdge(&Edge{From: from, To: to}); err != nil {
		b.errs = append(b.errs, err)
	}
	return b
}

// AddConditionalEdge adds a directed edge gated by a named predicate.
func (b *GraphBuilder) AddConditionalEdge(from, to, condition string) *GraphBuilder {
	if err := b.graph.AddEdge(&Edge{From: from, To: to, Condition: condition}); err != nil {
		b.errs = append(b.errs, err)
	}
	return b
}

// Graph returns the graph under construction without validating it.
func (b *GraphBuilder) Graph() *Graph {
	return b.graph
}

// Name returns the workflow name.
func (b *GraphBuilder) Name() string {
	return b.name
}

// Description returns the workflow description.
func (b *GraphBuilder) Description() string {
	return b.desc
}

// Build surfaces any construction error and validates the graph. A non-empty
// issue list fails the build: execution requires a structurally valid graph.
func (b *GraphBuilder) Build(opts ...ValidateOption) (*Graph, error) {
	if len(b.errs) > 0 {
		return nil, b.errs[0]
	}

	issues := b.graph.Validate(opts...)
	if len(issues) > 0 {
		return nil, types.NewError(types.ErrInvalidGraph, issues[0].Message)
	}

	b.logger.Info("workflow graph built",
		zap.String("name", b.name),
		zap.Int("nodes", b.graph.NodeCount()),
		zap.Int("edges", b.graph.EdgeCount()),
	)

	return b.graph, nil
}

// NodeBuilder provides a fluent API for configuring individual nodes.
type NodeBuilder struct {
	node   *Node
	parent *GraphBuilder
}

// WithName sets the node display name.
func (nb *NodeBuilder) WithName(name string) *NodeBuilder {
	nb.node.Name = name
	return nb
}

// WithDescription sets the node description.
func (nb *NodeBuilder) WithDescription(desc string) *NodeBuilder {
	nb.node.Description = desc
	return nb
}

// WithRetry sets the node retry policy.
func (nb *NodeBuilder) WithRetry(policy RetryPolicy) *NodeBuilder {
	nb.node.Retry = &policy
	return nb
}

// WithTimeout bounds a single attempt of the node.
func (nb *NodeBuilder) WithTimeout(timeout time.Duration) *NodeBuilder {
	nb.node.Timeout = timeout
	return nb
}

// WithDelay sets the suspension duration for Delay nodes.
func (nb *NodeBuilder) WithDelay(delay time.Duration) *NodeBuilder {
	nb.node.Delay = delay
	return nb
}

// WithFailureMode decides whether an exhausted failure of this node is fatal
// to the run or tolerated.
func (nb *NodeBuilder) WithFailureMode(mode FailureMode) *NodeBuilder {
	nb.node.FailureMode = mode
	return nb
}

// Done completes node configuration and returns to the GraphBuilder.
func (nb *NodeBuilder) Done() *GraphBuilder {
	return nb.parent
}
