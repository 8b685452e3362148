package workflow

import (
	"context"
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestProperty_LinearChainExecutesInOrder(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50

	properties := gopter.NewProperties(parameters)

	properties.Property("every node of a linear chain runs exactly once, in chain order", prop.ForAll(
		func(length int, concurrency int) bool {
			invoker := newScriptInvoker()
			engine := NewEngine(EngineConfig{MaxConcurrentNodes: concurrency}, invoker)
			defer engine.Close()

			builder := NewGraphBuilder("chain")
			ids := make([]string, length)
			for i := 0; i < length; i++ {
				ids[i] = fmt.Sprintf("n%02d", i)
				builder.AddNode(ids[i], NodeKindAgent).Done()
				if i > 0 {
					builder.AddEdge(ids[i-1], ids[i])
				}
			}
			graph, err := builder.Build()
			if err != nil {
				t.Logf("Build failed: %v", err)
				return false
			}

			result, err := engine.Execute(context.Background(), graph)
			if err != nil {
				t.Logf("Execute failed: %v", err)
				return false
			}
			if result.State != RunStateCompleted {
				t.Logf("unexpected state: %s", result.State)
				return false
			}

			order := invoker.invocationOrder()
			if len(order) != length {
				t.Logf("expected %d invocations, got %d", length, len(order))
				return false
			}
			for i, id := range order {
				if id != ids[i] {
					t.Logf("invocation %d: expected %s, got %s", i, ids[i], id)
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 12),
		gen.IntRange(1, 8),
	))

	properties.TestingRun(t)
}

func TestProperty_RandomDAGReachesTerminalState(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50

	properties := gopter.NewProperties(parameters)

	properties.Property("every node of an arbitrary DAG ends terminal and is counted once", prop.ForAll(
		func(nodeCount int, edgeSeed []int, concurrency int) bool {
			invoker := newScriptInvoker()
			engine := NewEngine(EngineConfig{MaxConcurrentNodes: concurrency}, invoker)
			defer engine.Close()

			builder := NewGraphBuilder("random")
			for i := 0; i < nodeCount; i++ {
				builder.AddNode(fmt.Sprintf("n%02d", i), NodeKindAgent).Done()
			}
			// Forward-only edges keep the generated graph acyclic.
			for _, seed := range edgeSeed {
				if nodeCount < 2 {
					break
				}
				from := seed % (nodeCount - 1)
				to := from + 1 + seed%(nodeCount-from-1+1)
				if to >= nodeCount {
					to = nodeCount - 1
				}
				if to > from {
					builder.AddEdge(fmt.Sprintf("n%02d", from), fmt.Sprintf("n%02d", to))
				}
			}
			graph, err := builder.Build()
			if err != nil {
				t.Logf("Build failed: %v", err)
				return false
			}

			result, err := engine.Execute(context.Background(), graph)
			if err != nil {
				t.Logf("Execute failed: %v", err)
				return false
			}

			terminal := 0
			for _, status := range result.Statuses {
				if !status.Terminal() {
					t.Logf("non-terminal status: %s", status)
					return false
				}
				terminal++
			}
			if terminal != nodeCount {
				return false
			}
			counted := result.Stats.NodesExecuted + result.Stats.NodesFailed + result.Stats.NodesSkipped
			if counted != nodeCount {
				t.Logf("stats count %d, expected %d", counted, nodeCount)
				return false
			}
			// No failures were injected, so nothing may be skipped.
			return result.Stats.NodesExecuted == nodeCount
		},
		gen.IntRange(1, 10),
		gen.SliceOfN(12, gen.IntRange(0, 97)),
		gen.IntRange(1, 4),
	))

	properties.TestingRun(t)
}

func TestProperty_CycleAlwaysRejected(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50

	properties := gopter.NewProperties(parameters)

	properties.Property("a ring of any size fails validation with a cycle issue", prop.ForAll(
		func(size int) bool {
			g := NewGraph()
			for i := 0; i < size; i++ {
				if err := g.AddNode(&Node{ID: fmt.Sprintf("n%02d", i), Kind: NodeKindAgent}); err != nil {
					return false
				}
			}
			for i := 0; i < size; i++ {
				edge := &Edge{
					From: fmt.Sprintf("n%02d", i),
					To:   fmt.Sprintf("n%02d", (i+1)%size),
				}
				if err := g.AddEdge(edge); err != nil {
					return false
				}
			}

			issues := g.Validate()
			for _, issue := range issues {
				if issue.Code == IssueCycle {
					return true
				}
			}
			t.Logf("ring of %d not reported as cycle", size)
			return false
		},
		gen.IntRange(1, 15),
	))

	properties.TestingRun(t)
}
