package workflow

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/flowmesh/flowmesh/types"

	"gopkg.in/yaml.v3"
)

// GraphDefinition is the portable form of a workflow graph. It captures the
// structure only; condition names resolve against a PredicateRegistry and
// node work resolves against an Invoker at run time.
type GraphDefinition struct {
	Name        string           `json:"name" yaml:"name"`
	Description string           `json:"description,omitempty" yaml:"description,omitempty"`
	Nodes       []NodeDefinition `json:"nodes" yaml:"nodes"`
	Edges       []EdgeDefinition `json:"edges,omitempty" yaml:"edges,omitempty"`
}

// NodeDefinition is the portable form of one node. Durations are carried as
// integer milliseconds to keep YAML and JSON representations identical.
type NodeDefinition struct {
	ID          string           `json:"id" yaml:"id"`
	Name        string           `json:"name,omitempty" yaml:"name,omitempty"`
	Description string           `json:"description,omitempty" yaml:"description,omitempty"`
	Kind        string           `json:"kind" yaml:"kind"`
	FailureMode string           `json:"failure_mode,omitempty" yaml:"failure_mode,omitempty"`
	TimeoutMs   int64            `json:"timeout_ms,omitempty" yaml:"timeout_ms,omitempty"`
	DelayMs     int64            `json:"delay_ms,omitempty" yaml:"delay_ms,omitempty"`
	Retry       *RetryDefinition `json:"retry,omitempty" yaml:"retry,omitempty"`
}

// RetryDefinition is the portable form of a retry policy.
type RetryDefinition struct {
	MaxAttempts       int      `json:"max_attempts" yaml:"max_attempts"`
	InitialDelayMs    int64    `json:"initial_delay_ms,omitempty" yaml:"initial_delay_ms,omitempty"`
	BackoffMultiplier float64  `json:"backoff_multiplier,omitempty" yaml:"backoff_multiplier,omitempty"`
	MaxDelayMs        int64    `json:"max_delay_ms,omitempty" yaml:"max_delay_ms,omitempty"`
	JitterFactor      float64  `json:"jitter_factor,omitempty" yaml:"jitter_factor,omitempty"`
	RetryableErrors   []string `json:"retryable_errors,omitempty" yaml:"retryable_errors,omitempty"`
}

// EdgeDefinition is the portable form of one edge.
type EdgeDefinition struct {
	From      string `json:"from" yaml:"from"`
	To        string `json:"to" yaml:"to"`
	Condition string `json:"condition,omitempty" yaml:"condition,omitempty"`
}

var validKinds = map[NodeKind]bool{
	NodeKindAgent:     true,
	NodeKindCondition: true,
	NodeKindSplit:     true,
	NodeKindJoin:      true,
	NodeKindTransform: true,
	NodeKindDelay:     true,
}

// ValidateGraphDefinition checks a loaded definition for structural
// problems a Graph could not be built from. Cycle detection is left to
// Graph.Validate after conversion.
func ValidateGraphDefinition(def *GraphDefinition) error {
	if def.Name == "" {
		return fmt.Errorf("workflow name is required")
	}
	if len(def.Nodes) == 0 {
		return fmt.Errorf("workflow must have at least one node")
	}

	nodeIDs := make(map[string]bool)
	for _, node := range def.Nodes {
		if node.ID == "" {
			return fmt.Errorf("node ID is required")
		}
		if nodeIDs[node.ID] {
			return fmt.Errorf("duplicate node ID: %s", node.ID)
		}
		nodeIDs[node.ID] = true

		if node.Kind == "" {
			return fmt.Errorf("node %s: kind is required", node.ID)
		}
		if !validKinds[NodeKind(node.Kind)] {
			return fmt.Errorf("node %s: invalid kind: %s", node.ID, node.Kind)
		}
		switch node.FailureMode {
		case "", string(FailureModeFatal), string(FailureModeTolerate):
		default:
			return fmt.Errorf("node %s: invalid failure mode: %s", node.ID, node.FailureMode)
		}
		if NodeKind(node.Kind) == NodeKindDelay && node.DelayMs <= 0 {
			return fmt.Errorf("node %s: delay node requires positive delay_ms", node.ID)
		}
		if node.Retry != nil && node.Retry.MaxAttempts < 1 {
			return fmt.Errorf("node %s: retry requires max_attempts of at least 1", node.ID)
		}
	}

	for _, edge := range def.Edges {
		if !nodeIDs[edge.From] {
			return fmt.Errorf("edge %s -> %s: source node does not exist", edge.From, edge.To)
		}
		if !nodeIDs[edge.To] {
			return fmt.Errorf("edge %s -> %s: target node does not exist", edge.From, edge.To)
		}
	}

	return nil
}

// ToGraph builds a Graph from the definition, preserving node order.
func (def *GraphDefinition) ToGraph() (*Graph, error) {
	if err := ValidateGraphDefinition(def); err != nil {
		return nil, types.NewError(types.ErrInvalidGraph, err.Error()).WithCause(err)
	}

	g := NewGraph()
	for _, nd := range def.Nodes {
		node := &Node{
			ID:          nd.ID,
			Name:        nd.Name,
			Description: nd.Description,
			Kind:        NodeKind(nd.Kind),
			FailureMode: FailureMode(nd.FailureMode),
			Timeout:     time.Duration(nd.TimeoutMs) * time.Millisecond,
			Delay:       time.Duration(nd.DelayMs) * time.Millisecond,
		}
		if nd.FailureMode == "" {
			node.FailureMode = FailureModeFatal
		}
		if nd.Retry != nil {
			node.Retry = nd.Retry.toPolicy()
		}
		if err := g.AddNode(node); err != nil {
			return nil, err
		}
	}
	for _, ed := range def.Edges {
		if err := g.AddEdge(&Edge{From: ed.From, To: ed.To, Condition: ed.Condition}); err != nil {
			return nil, err
		}
	}
	return g, nil
}

func (rd *RetryDefinition) toPolicy() *RetryPolicy {
	policy := &RetryPolicy{
		MaxAttempts:       rd.MaxAttempts,
		InitialDelay:      time.Duration(rd.InitialDelayMs) * time.Millisecond,
		BackoffMultiplier: rd.BackoffMultiplier,
		MaxDelay:          time.Duration(rd.MaxDelayMs) * time.Millisecond,
		JitterFactor:      rd.JitterFactor,
	}
	for _, code := range rd.RetryableErrors {
		policy.RetryableErrors = append(policy.RetryableErrors, types.ErrorCode(code))
	}
	return policy
}

// FromGraph captures a Graph's structure into a definition.
func FromGraph(g *Graph, name, description string) *GraphDefinition {
	def := &GraphDefinition{
		Name:        name,
		Description: description,
		Nodes:       make([]NodeDefinition, 0, g.NodeCount()),
	}
	for _, id := range g.NodeIDs() {
		node, _ := g.Node(id)
		nd := NodeDefinition{
			ID:          node.ID,
			Name:        node.Name,
			Description: node.Description,
			Kind:        string(node.Kind),
			TimeoutMs:   node.Timeout.Milliseconds(),
			DelayMs:     node.Delay.Milliseconds(),
		}
		if node.FailureMode != "" {
			nd.FailureMode = string(node.FailureMode)
		}
		if node.Retry != nil {
			rd := &RetryDefinition{
				MaxAttempts:       node.Retry.MaxAttempts,
				InitialDelayMs:    node.Retry.InitialDelay.Milliseconds(),
				BackoffMultiplier: node.Retry.BackoffMultiplier,
				MaxDelayMs:        node.Retry.MaxDelay.Milliseconds(),
				JitterFactor:      node.Retry.JitterFactor,
			}
			for _, code := range node.Retry.RetryableErrors {
				rd.RetryableErrors = append(rd.RetryableErrors, string(code))
			}
			nd.Retry = rd
		}
		def.Nodes = append(def.Nodes, nd)
	}
	for _, id := range g.NodeIDs() {
		for _, edge := range g.Outgoing(id) {
			def.Edges = append(def.Edges, EdgeDefinition{
				From:      edge.From,
				To:        edge.To,
				Condition: edge.Condition,
			})
		}
	}
	return def
}

// ToJSON renders the definition as indented JSON.
func (def *GraphDefinition) ToJSON() (string, error) {
	data, err := json.MarshalIndent(def, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal to JSON: %w", err)
	}
	return string(data), nil
}

// ToYAML renders the definition as YAML.
func (def *GraphDefinition) ToYAML() (string, error) {
	data, err := yaml.Marshal(def)
	if err != nil {
		return "", fmt.Errorf("failed to marshal to YAML: %w", err)
	}
	return string(data), nil
}

// FromJSON parses and validates a definition from JSON.
func FromJSON(jsonStr string) (*GraphDefinition, error) {
	var def GraphDefinition
	if err := json.Unmarshal([]byte(jsonStr), &def); err != nil {
		return nil, fmt.Errorf("failed to unmarshal from JSON: %w", err)
	}
	if err := ValidateGraphDefinition(&def); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	return &def, nil
}

// FromYAML parses and validates a definition from YAML.
func FromYAML(yamlStr string) (*GraphDefinition, error) {
	var def GraphDefinition
	if err := yaml.Unmarshal([]byte(yamlStr), &def); err != nil {
		return nil, fmt.Errorf("failed to unmarshal from YAML: %w", err)
	}
	if err := ValidateGraphDefinition(&def); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	return &def, nil
}

// LoadFromJSONFile loads a definition from a JSON file.
func LoadFromJSONFile(filename string) (*GraphDefinition, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return FromJSON(string(data))
}

// LoadFromYAMLFile loads a definition from a YAML file.
func LoadFromYAMLFile(filename string) (*GraphDefinition, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return FromYAML(string(data))
}

// SaveToJSONFile writes the definition to a JSON file.
func (def *GraphDefinition) SaveToJSONFile(filename string) error {
	jsonStr, err := def.ToJSON()
	if err != nil {
		return err
	}
	if err := os.WriteFile(filename, []byte(jsonStr), 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

// SaveToYAMLFile writes the definition to a YAML file.
func (def *GraphDefinition) SaveToYAMLFile(filename string) error {
	yamlStr, err := def.ToYAML()
	if err != nil {
		return err
	}
	if err := os.WriteFile(filename, []byte(yamlStr), 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}
