package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCheckpointStore persists checkpoints in Redis. Each checkpoint is a
// JSON value keyed by thread and version, with a sorted set per thread
// indexing the versions.
type RedisCheckpointStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// RedisStoreOption configures a RedisCheckpointStore.
type RedisStoreOption func(*RedisCheckpointStore)

// WithKeyPrefix overrides the default "flowforge:checkpoint" key prefix.
func WithKeyPrefix(prefix string) RedisStoreOption {
	return func(s *RedisCheckpointStore) {
		s.prefix = prefix
	}
}

// WithTTL expires checkpoints after the given duration. Zero keeps them
// forever.
func WithTTL(ttl time.Duration) RedisStoreOption {
	return func(s *RedisCheckpointStore) {
		s.ttl = ttl
	}
}

// NewRedisCheckpointStore creates a store over an existing Redis client.
func NewRedisCheckpointStore(client *redis.Client, opts ...RedisStoreOption) *RedisCheckpointStore {
	s := &RedisCheckpointStore{
		client: client,
		prefix: "flowforge:checkpoint",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisCheckpointStore) key(threadID string, version int) string {
	return fmt.Sprintf("%s:%s:%d", s.prefix, threadID, version)
}

func (s *RedisCheckpointStore) indexKey(threadID string) string {
	return fmt.Sprintf("%s:%s:versions", s.prefix, threadID)
}

func (s *RedisCheckpointStore) Save(cp *Checkpoint) error {
	if cp.ThreadID == "" {
		return fmt.Errorf("checkpoint missing thread ID")
	}

	ctx := context.Background()

	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("failed to serialize checkpoint: %w", err)
	}

	// Claim the version slot atomically. A taken slot is only overwritten
	// when it holds the same checkpoint (rollback relabeling); otherwise it
	// is a conflict and the manager retries with the next version.
	key := s.key(cp.ThreadID, cp.Version)
	claimed, err := s.client.SetNX(ctx, key, data, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	if !claimed {
		raw, err := s.client.Get(ctx, key).Bytes()
		if err == nil {
			var existing Checkpoint
			if json.Unmarshal(raw, &existing) == nil && existing.ID != cp.ID {
				return fmt.Errorf("thread %s version %d: %w", cp.ThreadID, cp.Version, ErrVersionConflict)
			}
		}
		if err := s.client.Set(ctx, key, data, s.ttl).Err(); err != nil {
			return fmt.Errorf("failed to save checkpoint: %w", err)
		}
	}

	pipe := s.client.TxPipeline()
	pipe.ZAdd(ctx, s.indexKey(cp.ThreadID), redis.Z{
		Score:  float64(cp.Version),
		Member: strconv.Itoa(cp.Version),
	})
	if s.ttl > 0 {
		pipe.Expire(ctx, s.indexKey(cp.ThreadID), s.ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

func (s *RedisCheckpointStore) Get(threadID string, version int) (*Checkpoint, error) {
	ctx := context.Background()

	data, err := s.client.Get(ctx, s.key(threadID, version)).Bytes()
	if err == redis.Nil {
		return nil, fmt.Errorf("checkpoint not found: thread=%s version=%d", threadID, version)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("failed to parse checkpoint: %w", err)
	}
	return &cp, nil
}

func (s *RedisCheckpointStore) Latest(threadID string) (*Checkpoint, error) {
	ctx := context.Background()

	members, err := s.client.ZRevRange(ctx, s.indexKey(threadID), 0, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to query versions: %w", err)
	}
	if len(members) == 0 {
		return nil, fmt.Errorf("no checkpoints for thread %s", threadID)
	}

	version, err := strconv.Atoi(members[0])
	if err != nil {
		return nil, fmt.Errorf("corrupt version index for thread %s: %w", threadID, err)
	}
	return s.Get(threadID, version)
}

func (s *RedisCheckpointStore) List(threadID string) ([]*Checkpoint, error) {
	ctx := context.Background()

	members, err := s.client.ZRange(ctx, s.indexKey(threadID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to query versions: %w", err)
	}

	cps := make([]*Checkpoint, 0, len(members))
	for _, member := range members {
		version, err := strconv.Atoi(member)
		if err != nil {
			continue
		}
		cp, err := s.Get(threadID, version)
		if err != nil {
			// Value expired out from under the index; skip it.
			continue
		}
		cps = append(cps, cp)
	}

	sort.Slice(cps, func(i, j int) bool { return cps[i].Version < cps[j].Version })
	return cps, nil
}

func (s *RedisCheckpointStore) Delete(threadID string, version int) error {
	ctx := context.Background()

	deleted, err := s.client.Del(ctx, s.key(threadID, version)).Result()
	if err != nil {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	if deleted == 0 {
		return fmt.Errorf("checkpoint not found: thread=%s version=%d", threadID, version)
	}

	return s.client.ZRem(ctx, s.indexKey(threadID), strconv.Itoa(version)).Err()
}

func (s *RedisCheckpointStore) DeleteThread(threadID string) error {
	ctx := context.Background()

	members, err := s.client.ZRange(ctx, s.indexKey(threadID), 0, -1).Result()
	if err != nil {
		return fmt.Errorf("failed to query versions: %w", err)
	}
	if len(members) == 0 {
		return fmt.Errorf("no checkpoints for thread %s", threadID)
	}

	keys := make([]string, 0, len(members)+1)
	for _, member := range members {
		version, err := strconv.Atoi(member)
		if err != nil {
			continue
		}
		keys = append(keys, s.key(threadID, version))
	}
	keys = append(keys, s.indexKey(threadID))

	return s.client.Del(ctx, keys...).Err()
}
