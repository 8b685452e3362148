package workflow

import (
	"fmt"
	"strings"
)

// IssueCode classifies a validation finding.
type IssueCode string

const (
	// IssueUnknownEndpoint reports an edge whose endpoint is missing from the
	// node set. The store already rejects these at AddEdge; Validate re-checks
	// defensively.
	IssueUnknownEndpoint IssueCode = "unknown_endpoint"
	// IssueCycle reports a directed cycle.
	IssueCycle IssueCode = "cycle"
	// IssueDisconnected reports a node with no incoming or outgoing edges.
	// Only raised when RequireConnectivity is set: single-node workflows and
	// fan-in-only terminals are legitimate, so the default is permissive.
	IssueDisconnected IssueCode = "disconnected"
)

// ValidationIssue describes one structural problem found in a graph.
type ValidationIssue struct {
	Code    IssueCode `json:"code"`
	Message string    `json:"message"`
	// Nodes lists the node IDs involved. For a cycle this is the cycle path.
	Nodes []string `json:"nodes,omitempty"`
}

type validateOptions struct {
	requireConnectivity bool
}

// ValidateOption configures graph validation.
type ValidateOption func(*validateOptions)

// RequireConnectivity opts into rejecting nodes that have no incoming or
// outgoing edges.
func RequireConnectivity() ValidateOption {
	return func(o *validateOptions) {
		o.requireConnectivity = true
	}
}

// Validate runs structural checks and returns the issues found; an empty
// list means the graph is valid. Validation has no side effects and is
// idempotent: calling it twice on an unmodified graph yields identical
// results.
func (g *Graph) Validate(opts ...ValidateOption) []ValidationIssue {
	var options validateOptions
	for _, opt := range opts {
		opt(&options)
	}

	var issues []ValidationIssue

	issues = append(issues, g.checkEndpoints()...)

	if cycle := g.findCycle(); cycle != nil {
		issues = append(issues, ValidationIssue{
			Code:    IssueCycle,
			Message: fmt.Sprintf("cycle detected: %s", strings.Join(cycle, " -> ")),
			Nodes:   cycle,
		})
	}

	if options.requireConnectivity && g.NodeCount() > 1 {
		for _, id := range g.order {
			if len(g.incoming[id]) == 0 && len(g.outgoing[id]) == 0 {
				issues = append(issues, ValidationIssue{
					Code:    IssueDisconnected,
					Message: fmt.Sprintf("node has no edges: %s", id),
					Nodes:   []string{id},
				})
			}
		}
	}

	return issues
}

// checkEndpoints re-verifies referential integrity of every edge.
func (g *Graph) checkEndpoints() []ValidationIssue {
	var issues []ValidationIssue
	for _, id := range g.order {
		for _, edge := range g.outgoing[id] {
			if _, ok := g.nodes[edge.From]; !ok {
				issues = append(issues, ValidationIssue{
					Code:    IssueUnknownEndpoint,
					Message: fmt.Sprintf("edge references unknown source node: %s", edge.From),
					Nodes:   []string{edge.From},
				})
			}
			if _, ok := g.nodes[edge.To]; !ok {
				issues = append(issues, ValidationIssue{
					Code:    IssueUnknownEndpoint,
					Message: fmt.Sprintf("edge references unknown target node: %s", edge.To),
					Nodes:   []string{edge.To},
				})
			}
		}
	}
	return issues
}

// findCycle detects a directed cycle via DFS with a recursion-stack marker
// and returns the first cycle found as a node ID path, or nil. Nodes are
// visited in insertion order so repeated calls report the same cycle.
func (g *Graph) findCycle() []string {
	visited := make(map[string]bool)
	onStack := make(map[string]bool)
	var stack []string
	var cycle []string

	var dfs func(id string) bool
	dfs = func(id string) bool {
		visited[id] = true
		onStack[id] = true
		stack = append(stack, id)

		for _, edge := range g.outgoing[id] {
			next := edge.To
			if !visited[next] {
				if dfs(next) {
					return true
				}
			} else if onStack[next] {
				// Back edge: slice the current path from the first
				// occurrence of next to close the cycle.
				for i, n := range stack {
					if n == next {
						cycle = append(append([]string{}, stack[i:]...), next)
						return true
					}
				}
			}
		}

		onStack[id] = false
		stack = stack[:len(stack)-1]
		return false
	}

	for _, id := range g.order {
		if !visited[id] {
			if dfs(id) {
				return cycle
			}
		}
	}
	return nil
}
