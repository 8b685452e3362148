package workflow

import (
	"time"
)

// RunState is the run-level lifecycle state.
type RunState string

const (
	// RunStatePending means the run has not started.
	RunStatePending RunState = "pending"
	// RunStateRunning means the dispatch loop is active.
	RunStateRunning RunState = "running"
	// RunStateCompleted means the run finished; individual nodes may still
	// have failed or been skipped, reported via Stats.
	RunStateCompleted RunState = "completed"
	// RunStateFailed means the run itself could not produce a result: a
	// fatal node failure or the run-level timeout.
	RunStateFailed RunState = "failed"
	// RunStateCancelled means the run was cancelled by the caller.
	RunStateCancelled RunState = "cancelled"
)

// Terminal reports whether the run state is terminal.
func (s RunState) Terminal() bool {
	return s == RunStateCompleted || s == RunStateFailed || s == RunStateCancelled
}

// Stats is the immutable snapshot of run counters, produced once the run
// reaches a terminal state.
type Stats struct {
	TotalDuration time.Duration `json:"total_duration"`
	NodesExecuted int           `json:"nodes_executed"`
	NodesFailed   int           `json:"nodes_failed"`
	NodesSkipped  int           `json:"nodes_skipped"`
}

// ExecutionResult is what a run hands back to the caller. Err is set only on
// Failed termination; Stats is present on all non-cancelled terminal states.
// Callers can therefore distinguish "completed but some nodes failed" (see
// Stats) from "execution could not produce a result" (see Err) without
// inspecting internals.
type ExecutionResult struct {
	RunID      string                `json:"run_id"`
	State      RunState              `json:"state"`
	Stats      *Stats                `json:"stats,omitempty"`
	Err        error                 `json:"-"`
	FailedNode string                `json:"failed_node,omitempty"`
	Outputs    map[string]any        `json:"outputs,omitempty"`
	Statuses   map[string]NodeStatus `json:"statuses,omitempty"`
}

// aggregateResult produces the terminal snapshot purely from the final
// execution context, with no side effects.
func aggregateResult(ec *ExecutionContext, state RunState, runErr error) *ExecutionResult {
	result := &ExecutionResult{
		RunID:    ec.RunID,
		State:    state,
		Err:      runErr,
		Outputs:  ec.outputsSnapshot(),
		Statuses: ec.statuses(),
	}
	if state != RunStateCancelled {
		executed, failed, skipped := ec.counters()
		result.Stats = &Stats{
			TotalDuration: time.Since(ec.startTime),
			NodesExecuted: executed,
			NodesFailed:   failed,
			NodesSkipped:  skipped,
		}
	}
	return result
}
