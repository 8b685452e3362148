package workflow

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunHistory_RecordAndComplete(t *testing.T) {
	h := NewRunHistory("run-1", "batch")
	assert.Equal(t, RunStateRunning, h.State)

	h.RecordNode(&Node{ID: "a", Kind: NodeKindAgent}, Outcome{Output: "va", Attempts: 1, Duration: time.Millisecond})
	h.RecordNode(&Node{ID: "b", Kind: NodeKindTransform}, Outcome{Err: errors.New("boom"), Attempts: 2})

	records := h.NodeRecords()
	require.Len(t, records, 2)
	assert.Equal(t, NodeStatusSucceeded, records[0].Status)
	assert.Equal(t, NodeStatusFailed, records[1].Status)
	assert.Equal(t, "boom", records[1].Error)

	h.Complete(RunStateFailed, errors.New("boom"))
	assert.Equal(t, RunStateFailed, h.State)
	assert.Equal(t, "boom", h.Error)
	assert.False(t, h.EndTime.IsZero())
	assert.GreaterOrEqual(t, h.Duration, time.Duration(0))
}

func TestRunHistory_NodeRecordByID(t *testing.T) {
	h := NewRunHistory("run-1", "")
	h.RecordNode(&Node{ID: "a", Kind: NodeKindAgent}, Outcome{Attempts: 1})

	assert.NotNil(t, h.NodeRecordByID("a"))
	assert.Nil(t, h.NodeRecordByID("ghost"))
}

func TestRunHistoryStore_Queries(t *testing.T) {
	store := NewRunHistoryStore()

	old := NewRunHistory("run-old", "batch")
	old.StartTime = time.Now().Add(-2 * time.Hour)
	old.Complete(RunStateCompleted, nil)

	fresh := NewRunHistory("run-fresh", "adhoc")
	fresh.Complete(RunStateFailed, errors.New("down"))

	store.Save(old)
	store.Save(fresh)

	_, ok := store.Get("run-old")
	assert.True(t, ok)
	_, ok = store.Get("missing")
	assert.False(t, ok)

	assert.Len(t, store.ListByState(RunStateCompleted), 1)
	assert.Len(t, store.ListByState(RunStateFailed), 1)
	assert.Len(t, store.ListByLabel("batch"), 1)

	recent := store.ListByTimeRange(time.Now().Add(-time.Hour), time.Now())
	require.Len(t, recent, 1)
	assert.Equal(t, "run-fresh", recent[0].RunID)
}
