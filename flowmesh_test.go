package flowmesh

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/flowmesh/flowmesh/config"
	"github.com/flowmesh/flowmesh/workflow"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// Each mesh gets its own metrics namespace so promauto's default registry
// never sees a duplicate collector across tests.
var meshNamespaceSeq atomic.Uint64

func newTestMesh(t *testing.T, invoker workflow.Invoker, opts ...Option) *Mesh {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Metrics.Namespace = fmt.Sprintf("flowmesh_facade_%d", meshNamespaceSeq.Add(1))

	opts = append([]Option{
		WithConfig(cfg),
		WithLogger(zaptest.NewLogger(t)),
	}, opts...)

	mesh, err := New(invoker, opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, mesh.Close(context.Background()))
	})
	return mesh
}

func echoInvoker() workflow.Invoker {
	return workflow.InvokerFunc(func(_ context.Context, node *workflow.Node, _ workflow.Input) (any, error) {
		return "out:" + node.ID, nil
	})
}

func TestMesh_RunGraph(t *testing.T) {
	mesh := newTestMesh(t, echoInvoker())

	graph, err := workflow.NewGraphBuilder("pipeline").
		AddNode("extract", workflow.NodeKindAgent).Done().
		AddNode("load", workflow.NodeKindTransform).Done().
		AddEdge("extract", "load").
		Build()
	require.NoError(t, err)

	result, err := mesh.Run(context.Background(), graph)
	require.NoError(t, err)
	assert.Equal(t, workflow.RunStateCompleted, result.State)
	assert.Equal(t, "out:load", result.Outputs["load"])

	// The facade wires a history store by default.
	histories := mesh.History().ListByState(workflow.RunStateCompleted)
	require.Len(t, histories, 1)
	assert.Len(t, histories[0].NodeRecords(), 2)
}

func TestMesh_RunDefinition(t *testing.T) {
	mesh := newTestMesh(t, echoInvoker())

	def := &workflow.GraphDefinition{
		Name: "ingest",
		Nodes: []workflow.NodeDefinition{
			{ID: "fetch", Kind: "agent"},
			{ID: "store", Kind: "transform"},
		},
		Edges: []workflow.EdgeDefinition{
			{From: "fetch", To: "store"},
		},
	}

	result, err := mesh.RunDefinition(context.Background(), def)
	require.NoError(t, err)
	assert.Equal(t, workflow.RunStateCompleted, result.State)

	// Runs started via a definition carry its name as the run label.
	assert.Len(t, mesh.History().ListByLabel("ingest"), 1)
}

func TestMesh_RunDefinitionInvalid(t *testing.T) {
	mesh := newTestMesh(t, echoInvoker())

	def := &workflow.GraphDefinition{Name: "empty"}
	_, err := mesh.RunDefinition(context.Background(), def)
	require.Error(t, err)
}

func TestMesh_RunAll(t *testing.T) {
	mesh := newTestMesh(t, echoInvoker())

	var graphs []*workflow.Graph
	for i := range 3 {
		graph, err := workflow.NewGraphBuilder(fmt.Sprintf("g%d", i)).
			AddNode(fmt.Sprintf("n%d", i), workflow.NodeKindAgent).Done().
			Build()
		require.NoError(t, err)
		graphs = append(graphs, graph)
	}

	results, err := mesh.RunAll(context.Background(), graphs)
	require.NoError(t, err)
	require.Len(t, results, 3)
	for i, result := range results {
		assert.Equal(t, workflow.RunStateCompleted, result.State)
		assert.Contains(t, result.Outputs, fmt.Sprintf("n%d", i))
	}
}

func TestMesh_MetricsDisabled(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Metrics.Enabled = false

	mesh, err := New(echoInvoker(),
		WithConfig(cfg),
		WithLogger(zaptest.NewLogger(t)),
	)
	require.NoError(t, err)
	defer mesh.Close(context.Background())

	graph, err := workflow.NewGraphBuilder("single").
		AddNode("only", workflow.NodeKindAgent).Done().
		Build()
	require.NoError(t, err)

	result, err := mesh.Run(context.Background(), graph)
	require.NoError(t, err)
	assert.Equal(t, workflow.RunStateCompleted, result.State)
}

func TestMesh_PredicateRegistration(t *testing.T) {
	mesh := newTestMesh(t, echoInvoker())
	mesh.Predicates().Register("always", func(_ context.Context, _ *workflow.ExecutionContext) (bool, error) {
		return true, nil
	})

	graph, err := workflow.NewGraphBuilder("cond").
		AddNode("a", workflow.NodeKindAgent).Done().
		AddNode("b", workflow.NodeKindAgent).Done().
		AddConditionalEdge("a", "b", "always").
		Build()
	require.NoError(t, err)

	result, err := mesh.Run(context.Background(), graph)
	require.NoError(t, err)
	assert.Equal(t, workflow.RunStateCompleted, result.State)
	assert.Contains(t, result.Outputs, "b")
}

func TestMesh_BadLogLevel(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Log.Level = "shouting"

	// Validation happens in the loader; handing an invalid config directly
	// still fails at logger construction.
	_, err := New(echoInvoker(), WithConfig(cfg))
	require.Error(t, err)
}
