package workflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryHistoryStore_SaveAndGet(t *testing.T) {
	store := NewMemoryHistoryStore()

	err := store.Save(&RunHistory{RunID: "r1", Workflow: "wf", Status: RunStatusCompleted})
	require.NoError(t, err)

	history, err := store.Get("r1")
	require.NoError(t, err)
	assert.Equal(t, RunStatusCompleted, history.Status)

	_, err = store.Get("missing")
	assert.Error(t, err)
}

func TestMemoryHistoryStore_RequiresRunID(t *testing.T) {
	store := NewMemoryHistoryStore()
	err := store.Save(&RunHistory{Workflow: "wf"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing run ID")
}

func TestMemoryHistoryStore_ListMostRecentFirst(t *testing.T) {
	store := NewMemoryHistoryStore()
	base := time.Now()

	require.NoError(t, store.Save(&RunHistory{RunID: "old", Workflow: "wf", StartedAt: base.Add(-time.Hour)}))
	require.NoError(t, store.Save(&RunHistory{RunID: "new", Workflow: "wf", StartedAt: base}))
	require.NoError(t, store.Save(&RunHistory{RunID: "other", Workflow: "other-wf", StartedAt: base}))

	runs, err := store.List("wf", 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "new", runs[0].RunID)
	assert.Equal(t, "old", runs[1].RunID)

	all, err := store.List("", 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	limited, err := store.List("wf", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestMemoryHistoryStore_Query(t *testing.T) {
	store := NewMemoryHistoryStore()
	base := time.Now()

	require.NoError(t, store.Save(&RunHistory{RunID: "ok", Workflow: "wf", Status: RunStatusCompleted, StartedAt: base}))
	require.NoError(t, store.Save(&RunHistory{RunID: "bad", Workflow: "wf", Status: RunStatusFailed, StartedAt: base.Add(-time.Minute)}))
	require.NoError(t, store.Save(&RunHistory{RunID: "ancient", Workflow: "wf", Status: RunStatusFailed, StartedAt: base.Add(-time.Hour)}))

	failed, err := store.Query(HistoryFilter{Status: RunStatusFailed})
	require.NoError(t, err)
	require.Len(t, failed, 2)
	assert.Equal(t, "bad", failed[0].RunID)

	recent, err := store.Query(HistoryFilter{Since: base.Add(-5 * time.Minute)})
	require.NoError(t, err)
	require.Len(t, recent, 2)

	window, err := store.Query(HistoryFilter{
		Since: base.Add(-5 * time.Minute),
		Until: base,
	})
	require.NoError(t, err)
	require.Len(t, window, 1)
	assert.Equal(t, "bad", window[0].RunID)
}

func TestMemoryHistoryStore_Delete(t *testing.T) {
	store := NewMemoryHistoryStore()

	require.NoError(t, store.Save(&RunHistory{RunID: "r1"}))
	require.NoError(t, store.Delete("r1"))
	assert.Error(t, store.Delete("r1"))
}

func TestRunHistory_Duration(t *testing.T) {
	start := time.Now()
	history := &RunHistory{StartedAt: start, FinishedAt: start.Add(2 * time.Second)}
	assert.Equal(t, 2*time.Second, history.Duration())

	unfinished := &RunHistory{StartedAt: start}
	assert.Equal(t, time.Duration(0), unfinished.Duration())
}
