package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildGraph(t *testing.T, nodes []string, edges [][2]string) *Graph {
	t.Helper()
	g := NewGraph()
	for _, id := range nodes {
		require.NoError(t, g.AddNode(&Node{ID: id, Kind: NodeKindAgent}))
	}
	for _, e := range edges {
		require.NoError(t, g.AddEdge(&Edge{From: e[0], To: e[1]}))
	}
	return g
}

func issueCodes(issues []ValidationIssue) []IssueCode {
	codes := make([]IssueCode, 0, len(issues))
	for _, issue := range issues {
		codes = append(codes, issue.Code)
	}
	return codes
}

func TestValidate_EmptyGraphIsValid(t *testing.T) {
	g := NewGraph()
	assert.Empty(t, g.Validate())
}

func TestValidate_AcyclicGraphIsValid(t *testing.T) {
	g := buildGraph(t,
		[]string{"a", "b", "c", "d"},
		[][2]string{{"a", "b"}, {"a", "c"}, {"b", "d"}, {"c", "d"}},
	)
	assert.Empty(t, g.Validate())
}

func TestValidate_DetectsCycle(t *testing.T) {
	g := buildGraph(t,
		[]string{"a", "b", "c"},
		[][2]string{{"a", "b"}, {"b", "c"}, {"c", "a"}},
	)

	issues := g.Validate()
	require.Len(t, issues, 1)
	assert.Equal(t, IssueCycle, issues[0].Code)
	// Cycle path is closed: first and last node match.
	path := issues[0].Nodes
	require.GreaterOrEqual(t, len(path), 2)
	assert.Equal(t, path[0], path[len(path)-1])
}

func TestValidate_DetectsSelfLoop(t *testing.T) {
	g := buildGraph(t, []string{"a"}, [][2]string{{"a", "a"}})

	issues := g.Validate()
	require.Len(t, issues, 1)
	assert.Equal(t, IssueCycle, issues[0].Code)
	assert.Equal(t, []string{"a", "a"}, issues[0].Nodes)
}

func TestValidate_CycleInOneComponentOnly(t *testing.T) {
	g := buildGraph(t,
		[]string{"a", "b", "x", "y"},
		[][2]string{{"a", "b"}, {"x", "y"}, {"y", "x"}},
	)

	issues := g.Validate()
	require.Len(t, issues, 1)
	assert.Contains(t, issues[0].Nodes, "x")
	assert.Contains(t, issues[0].Nodes, "y")
}

func TestValidate_Idempotent(t *testing.T) {
	g := buildGraph(t,
		[]string{"a", "b", "c"},
		[][2]string{{"a", "b"}, {"b", "c"}, {"c", "a"}},
	)

	first := g.Validate()
	second := g.Validate()
	assert.Equal(t, first, second, "repeated validation of an unmodified graph must be identical")
}

func TestValidate_OrphanAllowedByDefault(t *testing.T) {
	g := buildGraph(t,
		[]string{"a", "b", "island"},
		[][2]string{{"a", "b"}},
	)
	assert.Empty(t, g.Validate())
}

func TestValidate_RequireConnectivityFlagsOrphan(t *testing.T) {
	g := buildGraph(t,
		[]string{"a", "b", "island"},
		[][2]string{{"a", "b"}},
	)

	issues := g.Validate(RequireConnectivity())
	require.Len(t, issues, 1)
	assert.Equal(t, IssueDisconnected, issues[0].Code)
	assert.Equal(t, []string{"island"}, issues[0].Nodes)
}

func TestValidate_RequireConnectivitySingleNodeIsFine(t *testing.T) {
	g := buildGraph(t, []string{"only"}, nil)
	assert.Empty(t, g.Validate(RequireConnectivity()))
}

func TestValidate_ReportsAllIssueKinds(t *testing.T) {
	g := buildGraph(t,
		[]string{"a", "b", "island"},
		[][2]string{{"a", "b"}, {"b", "a"}},
	)

	issues := g.Validate(RequireConnectivity())
	codes := issueCodes(issues)
	assert.Contains(t, codes, IssueCycle)
	assert.Contains(t, codes, IssueDisconnected)
}
