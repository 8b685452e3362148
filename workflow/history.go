package workflow

import (
	"sync"
	"time"
)

// NodeRecord captures one finished node execution inside a run.
type NodeRecord struct {
	NodeID   string        `json:"node_id"`
	Kind     NodeKind      `json:"kind"`
	Status   NodeStatus    `json:"status"`
	Attempts int           `json:"attempts"`
	TimedOut bool          `json:"timed_out,omitempty"`
	Duration time.Duration `json:"duration"`
	Output   any           `json:"output,omitempty"`
	Error    string        `json:"error,omitempty"`
}

// RunHistory records what one run did: which nodes executed, in completion
// order, and how the run ended.
type RunHistory struct {
	RunID     string        `json:"run_id"`
	Label     string        `json:"label,omitempty"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`
	State     RunState      `json:"state"`
	Nodes     []*NodeRecord `json:"nodes"`
	Error     string        `json:"error,omitempty"`
	mu        sync.RWMutex
}

// NewRunHistory creates a history record for a run in progress.
func NewRunHistory(runID, label string) *RunHistory {
	return &RunHistory{
		RunID:     runID,
		Label:     label,
		StartTime: time.Now(),
		State:     RunStateRunning,
		Nodes:     make([]*NodeRecord, 0),
	}
}

// RecordNode appends one node completion.
func (h *RunHistory) RecordNode(node *Node, outcome Outcome) {
	h.mu.Lock()
	defer h.mu.Unlock()

	rec := &NodeRecord{
		NodeID:   node.ID,
		Kind:     node.Kind,
		Status:   NodeStatusSucceeded,
		Attempts: outcome.Attempts,
		TimedOut: outcome.TimedOut,
		Duration: outcome.Duration,
		Output:   outcome.Output,
	}
	if outcome.Err != nil {
		rec.Status = NodeStatusFailed
		rec.Error = outcome.Err.Error()
	}
	h.Nodes = append(h.Nodes, rec)
}

// Complete marks the run's terminal state.
func (h *RunHistory) Complete(state RunState, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.EndTime = time.Now()
	h.Duration = h.EndTime.Sub(h.StartTime)
	h.State = state
	if err != nil {
		h.Error = err.Error()
	}
}

// NodeRecords returns a copy of the recorded node completions.
func (h *RunHistory) NodeRecords() []*NodeRecord {
	h.mu.RLock()
	defer h.mu.RUnlock()

	records := make([]*NodeRecord, len(h.Nodes))
	copy(records, h.Nodes)
	return records
}

// NodeRecordByID returns the record for a specific node, or nil.
func (h *RunHistory) NodeRecordByID(nodeID string) *NodeRecord {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, rec := range h.Nodes {
		if rec.NodeID == nodeID {
			return rec
		}
	}
	return nil
}

// RunHistoryStore keeps finished run histories in memory for inspection.
type RunHistoryStore struct {
	histories map[string]*RunHistory
	mu        sync.RWMutex
}

// NewRunHistoryStore creates an empty store.
func NewRunHistoryStore() *RunHistoryStore {
	return &RunHistoryStore{
		histories: make(map[string]*RunHistory),
	}
}

// Save stores a run history, replacing any previous record with the same
// run ID.
func (s *RunHistoryStore) Save(history *RunHistory) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.histories[history.RunID] = history
}

// Get retrieves a run history by run ID.
func (s *RunHistoryStore) Get(runID string) (*RunHistory, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.histories[runID]
	return h, ok
}

// ListByLabel returns all runs recorded under a label.
func (s *RunHistoryStore) ListByLabel(label string) []*RunHistory {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*RunHistory
	for _, h := range s.histories {
		if h.Label == label {
			result = append(result, h)
		}
	}
	return result
}

// ListByState returns all runs that ended in the given state.
func (s *RunHistoryStore) ListByState(state RunState) []*RunHistory {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*RunHistory
	for _, h := range s.histories {
		if h.State == state {
			result = append(result, h)
		}
	}
	return result
}

// ListByTimeRange returns runs that started within [start, end].
func (s *RunHistoryStore) ListByTimeRange(start, end time.Time) []*RunHistory {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*RunHistory
	for _, h := range s.histories {
		if !h.StartTime.Before(start) && !h.StartTime.After(end) {
			result = append(result, h)
		}
	}
	return result
}
