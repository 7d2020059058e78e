package workflow

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T, opts ...RedisStoreOption) (*RedisCheckpointStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisCheckpointStore(client, opts...), mr
}

func TestRedisCheckpointStore_SaveAndGet(t *testing.T) {
	store, _ := newRedisStore(t)

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

	got, err := store.Get("t1", 1)
	require.NoError(t, err)
	assert.Equal(t, "cp-1", got.ID)
	assert.Equal(t, "out", got.State["n1"])
	assert.Equal(t, []string{"n1"}, got.Completed)
}

func TestRedisCheckpointStore_Latest(t *testing.T) {
	store, _ := newRedisStore(t)

	require.NoError(t, store.Save(&Checkpoint{ThreadID: "t1", Version: 1}))
	require.NoError(t, store.Save(&Checkpoint{ThreadID: "t1", Version: 3}))
	require.NoError(t, store.Save(&Checkpoint{ThreadID: "t1", Version: 2}))

	latest, err := store.Latest("t1")
	require.NoError(t, err)
	assert.Equal(t, 3, latest.Version)
}

func TestRedisCheckpointStore_List(t *testing.T) {
	store, _ := newRedisStore(t)

	require.NoError(t, store.Save(&Checkpoint{ThreadID: "t1", Version: 2}))
	require.NoError(t, store.Save(&Checkpoint{ThreadID: "t1", Version: 1}))

	cps, err := store.List("t1")
	require.NoError(t, err)
	require.Len(t, cps, 2)
	assert.Equal(t, 1, cps[0].Version)
	assert.Equal(t, 2, cps[1].Version)
}

func TestRedisCheckpointStore_Delete(t *testing.T) {
	store, _ := newRedisStore(t)

	require.NoError(t, store.Save(&Checkpoint{ThreadID: "t1", Version: 1}))
	require.NoError(t, store.Delete("t1", 1))

	_, err := store.Get("t1", 1)
	assert.Error(t, err)

	err = store.Delete("t1", 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "checkpoint not found")
}

func TestRedisCheckpointStore_DeleteThread(t *testing.T) {
	store, _ := newRedisStore(t)

	require.NoError(t, store.Save(&Checkpoint{ThreadID: "t1", Version: 1}))
	require.NoError(t, store.Save(&Checkpoint{ThreadID: "t1", Version: 2}))
	require.NoError(t, store.Save(&Checkpoint{ThreadID: "t2", Version: 1}))

	require.NoError(t, store.DeleteThread("t1"))

	_, err := store.Latest("t1")
	assert.Error(t, err)

	// Other threads are untouched.
	_, err = store.Latest("t2")
	assert.NoError(t, err)
}

func TestRedisCheckpointStore_VersionConflict(t *testing.T) {
	store, _ := newRedisStore(t)

	require.NoError(t, store.Save(&Checkpoint{ID: "cp-1", ThreadID: "t1", Version: 1}))

	err := store.Save(&Checkpoint{ID: "cp-2", ThreadID: "t1", Version: 1})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrVersionConflict)

	// Re-saving the same checkpoint (rollback relabeling) still works.
	require.NoError(t, store.Save(&Checkpoint{ID: "cp-1", ThreadID: "t1", Version: 1, Label: "relabeled"}))

	cp, err := store.Get("t1", 1)
	require.NoError(t, err)
	assert.Equal(t, "relabeled", cp.Label)
}

func TestRedisCheckpointStore_TTL(t *testing.T) {
	store, mr := newRedisStore(t, WithTTL(time.Minute))

	require.NoError(t, store.Save(&Checkpoint{ThreadID: "t1", Version: 1}))

	mr.FastForward(2 * time.Minute)

	_, err := store.Get("t1", 1)
	assert.Error(t, err)
}

func TestRedisCheckpointStore_KeyPrefix(t *testing.T) {
	store, mr := newRedisStore(t, WithKeyPrefix("custom:cp"))

	require.NoError(t, store.Save(&Checkpoint{ThreadID: "t1", Version: 1}))
	assert.True(t, mr.Exists("custom:cp:t1:1"))
}

func TestRedisCheckpointStore_ManagerIntegration(t *testing.T) {
	store, _ := newRedisStore(t)
	manager := NewCheckpointManager(store, nil)

	_, err := manager.Create("t1", "wf", "n1", "in", map[string]any{"n1": "a"}, []string{"n1"})
	require.NoError(t, err)
	cp2, err := manager.Create("t1", "wf", "n2", "in", map[string]any{"n1": "a", "n2": "b"}, []string{"n1", "n2"})
	require.NoError(t, err)
	assert.Equal(t, 2, cp2.Version)

	rolled, err := manager.Rollback("t1", 1)
	require.NoError(t, err)
	assert.Equal(t, 3, rolled.Version)
	assert.Equal(t, []string{"n1"}, rolled.Completed)
}
