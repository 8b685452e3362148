package workflow

import (
	"context"
	"fmt"
	"sync"

	"github.com/flowmesh/flowmesh/types"
)

// Predicate evaluates an edge condition against the current execution
// context. The engine treats predicates as opaque boolean producers; there
// is no expression language.
type Predicate func(ctx context.Context, ec *ExecutionContext) (bool, error)

// PredicateRegistry resolves the condition names carried by edges to
// predicate functions. Registries are safe for concurrent use.
type PredicateRegistry struct {
	predicates map[string]Predicate
	mu         sync.RWMutex
}

// NewPredicateRegistry creates an empty predicate registry.
func NewPredicateRegistry() *PredicateRegistry {
	return &PredicateRegistry{
		predicates: make(map[string]Predicate),
	}
}

// Register binds a condition name to a predicate. Re-registering a name
// replaces the previous predicate.
func (r *PredicateRegistry) Register(name string, p Predicate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.predicates[name] = p
}

// Lookup returns the predicate bound to name.
func (r *PredicateRegistry) Lookup(name string) (Predicate, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.predicates[name]
	return p, ok
}

// Names returns all registered condition names.
func (r *PredicateRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.predicates))
	for name := range r.predicates {
		names = append(names, name)
	}
	return names
}

// evaluate resolves and runs the named predicate. A missing or failing
// predicate is a run-level error: edge conditions are part of the graph's
// programming, not of node execution, so they are never retried.
func (r *PredicateRegistry) evaluate(ctx context.Context, name string, ec *ExecutionContext) (bool, error) {
	p, ok := r.Lookup(name)
	if !ok {
		return false, types.NewError(types.ErrConditionEval,
			fmt.Sprintf("no predicate registered for condition %q", name))
	}
	result, err := p(ctx, ec)
	if err != nil {
		return false, types.NewError(types.ErrConditionEval,
			fmt.Sprintf("condition %q evaluation failed", name)).WithCause(err)
	}
	return result, nil
}
