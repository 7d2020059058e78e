package workflow

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Mongo tests run only against a real server:
//
//	MONGO_URI=mongodb://localhost:27017 go test ./workflow -run Mongo
func mongoStore(t *testing.T) *MongoCheckpointStore {
	t.Helper()

	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		t.Skip("MONGO_URI not set, skipping mongodb tests")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	collection := "checkpoints_" + uuid.NewString()[:8]
	store, err := ConnectMongoCheckpointStore(ctx, uri, "flowforge_test", collection)
	require.NoError(t, err)
	return store
}

func TestMongoCheckpointStore_SaveAndGet(t *testing.T) {
	store := mongoStore(t)

	cp := &Checkpoint{
		ID:        "cp-1",
		ThreadID:  "t1",
		Version:   1,
		Workflow:  "wf",
		NodeID:    "n1",
		State:     map[string]any{"n1": "out"},
		Completed: []string{"n1"},
		CreatedAt: time.Now(),
	}
	require.NoError(t, store.Save(cp))
	t.Cleanup(func() { _ = store.DeleteThread("t1") })

	got, err := store.Get("t1", 1)
	require.NoError(t, err)
	assert.Equal(t, "cp-1", got.ID)
	assert.Equal(t, "out", got.State["n1"])
}

func TestMongoCheckpointStore_LatestAndList(t *testing.T) {
	store := mongoStore(t)
	t.Cleanup(func() { _ = store.DeleteThread("t1") })

	require.NoError(t, store.Save(&Checkpoint{ThreadID: "t1", Version: 2}))
	require.NoError(t, store.Save(&Checkpoint{ThreadID: "t1", Version: 1}))
	require.NoError(t, store.Save(&Checkpoint{ThreadID: "t1", Version: 3}))

	latest, err := store.Latest("t1")
	require.NoError(t, err)
	assert.Equal(t, 3, latest.Version)

	cps, err := store.List("t1")
	require.NoError(t, err)
	require.Len(t, cps, 3)
	assert.Equal(t, 1, cps[0].Version)
}

func TestMongoCheckpointStore_DeleteFlows(t *testing.T) {
	store := mongoStore(t)

	require.NoError(t, store.Save(&Checkpoint{ThreadID: "t1", Version: 1}))
	require.NoError(t, store.Save(&Checkpoint{ThreadID: "t1", Version: 2}))

	require.NoError(t, store.Delete("t1", 1))
	_, err := store.Get("t1", 1)
	assert.Error(t, err)

	require.NoError(t, store.DeleteThread("t1"))
	_, err = store.Latest("t1")
	assert.Error(t, err)
}

func TestMongoCheckpointStore_ManagerIntegration(t *testing.T) {
	store := mongoStore(t)
	t.Cleanup(func() { _ = store.DeleteThread("t1") })

	manager := NewCheckpointManager(store, nil)

	_, err := manager.Create("t1", "wf", "n1", "in", map[string]any{"n1": "a"}, []string{"n1"})
	require.NoError(t, err)
	cp, err := manager.Create("t1", "wf", "n2", "in", map[string]any{"n1": "a", "n2": "b"}, []string{"n1", "n2"})
	require.NoError(t, err)
	assert.Equal(t, 2, cp.Version)
}
