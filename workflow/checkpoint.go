package workflow

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrVersionConflict reports that a different checkpoint already occupies a
// thread+version slot. Stores return it from Save so the manager can re-read
// the latest version and retry.
var ErrVersionConflict = errors.New("checkpoint version already exists")

// Checkpoint is a persisted snapshot of a run's progress: which nodes have
// completed and what each produced. A thread groups the checkpoints of one
// logical run; versions within a thread are monotonically increasing.
type Checkpoint struct {
	ID        string         `json:"id"`
	ThreadID  string         `json:"thread_id"`
	Workflow  string         `json:"workflow"`
	Version   int            `json:"version"`
	NodeID    string         `json:"node_id"`
	Input     any            `json:"input,omitempty"`
	State     map[string]any `json:"state"`
	Completed []string       `json:"completed"`
	Label     string         `json:"label,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	Meta      map[string]any `json:"meta,omitempty"`
}

// CheckpointStore persists checkpoints by thread and version.
type CheckpointStore interface {
	Save(cp *Checkpoint) error
	Get(threadID string, version int) (*Checkpoint, error)
	Latest(threadID string) (*Checkpoint, error)
	// List returns a thread's checkpoints in ascending version order.
	List(threadID string) ([]*Checkpoint, error)
	Delete(threadID string, version int) error
	DeleteThread(threadID string) error
}

// CheckpointDiff describes how run state changed between two checkpoints.
type CheckpointDiff struct {
	FromVersion int      `json:"from_version"`
	ToVersion   int      `json:"to_version"`
	Added       []string `json:"added,omitempty"`
	Removed     []string `json:"removed,omitempty"`
	Changed     []string `json:"changed,omitempty"`
}

// CheckpointManager coordinates snapshot creation, time travel, and diffing
// on top of a CheckpointStore.
type CheckpointManager struct {
	store  CheckpointStore
	logger *zap.Logger
}

// NewCheckpointManager creates a manager over the given store.
func NewCheckpointManager(store CheckpointStore, logger *zap.Logger) *CheckpointManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CheckpointManager{
		store:  store,
		logger: logger.With(zap.String("component", "checkpoint_manager")),
	}
}

// Create snapshots the given state as the thread's next version. Concurrent
// creates on one thread are safe: when another writer claims the version
// first, the store reports ErrVersionConflict and Create retries with the
// next one.
func (m *CheckpointManager) Create(threadID, workflow, nodeID string, input any, state map[string]any, completed []string) (*Checkpoint, error) {
	// Copy so later node executions don't mutate the snapshot.
	stateCopy := make(map[string]any, len(state))
	for k, v := range state {
		stateCopy[k] = v
	}

	cp := &Checkpoint{
		ID:        uuid.NewString(),
		ThreadID:  threadID,
		Workflow:  workflow,
		NodeID:    nodeID,
		Input:     input,
		State:     stateCopy,
		Completed: append([]string(nil), completed...),
		CreatedAt: time.Now(),
	}

	for {
		cp.Version = 1
		if latest, err := m.store.Latest(threadID); err == nil {
			cp.Version = latest.Version + 1
		}

		err := m.store.Save(cp)
		if errors.Is(err, ErrVersionConflict) {
			// Lost the race; the conflicting save advanced the thread, so
			// re-reading Latest makes progress.
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to save checkpoint: %w", err)
		}
		break
	}

	m.logger.Debug("checkpoint created",
		zap.String("thread_id", threadID),
		zap.Int("version", cp.Version),
		zap.String("node_id", nodeID),
	)

	return cp, nil
}

// Latest returns a thread's most recent checkpoint.
func (m *CheckpointManager) Latest(threadID string) (*Checkpoint, error) {
	return m.store.Latest(threadID)
}

// Get returns a specific version of a thread's checkpoint.
func (m *CheckpointManager) Get(threadID string, version int) (*Checkpoint, error) {
	return m.store.Get(threadID, version)
}

// History returns a thread's checkpoints in ascending version order.
func (m *CheckpointManager) History(threadID string) ([]*Checkpoint, error) {
	return m.store.List(threadID)
}

// Rollback makes an earlier version the thread's latest by re-saving its
// state as a new version. Earlier history stays intact, so a rollback can
// itself be rolled back.
func (m *CheckpointManager) Rollback(threadID string, version int) (*Checkpoint, error) {
	target, err := m.store.Get(threadID, version)
	if err != nil {
		return nil, fmt.Errorf("rollback target not found: %w", err)
	}

	cp, err := m.Create(threadID, target.Workflow, target.NodeID, target.Input, target.State, target.Completed)
	if err != nil {
		return nil, err
	}
	cp.Label = fmt.Sprintf("rollback to v%d", version)
	if err := m.store.Save(cp); err != nil {
		return nil, fmt.Errorf("failed to save rollback checkpoint: %w", err)
	}

	m.logger.Info("rolled back",
		zap.String("thread_id", threadID),
		zap.Int("from_version", version),
		zap.Int("new_version", cp.Version),
	)

	return cp, nil
}

// Diff compares the state of two versions within a thread.
func (m *CheckpointManager) Diff(threadID string, fromVersion, toVersion int) (*CheckpointDiff, error) {
	from, err := m.store.Get(threadID, fromVersion)
	if err != nil {
		return nil, fmt.Errorf("diff source not found: %w", err)
	}
	to, err := m.store.Get(threadID, toVersion)
	if err != nil {
		return nil, fmt.Errorf("diff target not found: %w", err)
	}

	diff := &CheckpointDiff{FromVersion: fromVersion, ToVersion: toVersion}

	for key, toVal := range to.State {
		fromVal, ok := from.State[key]
		if !ok {
			diff.Added = append(diff.Added, key)
		} else if !reflect.DeepEqual(fromVal, toVal) {
			diff.Changed = append(diff.Changed, key)
		}
	}
	for key := range from.State {
		if _, ok := to.State[key]; !ok {
			diff.Removed = append(diff.Removed, key)
		}
	}

	sort.Strings(diff.Added)
	sort.Strings(diff.Removed)
	sort.Strings(diff.Changed)

	return diff, nil
}

// DeleteThread removes all checkpoints of a thread.
func (m *CheckpointManager) DeleteThread(threadID string) error {
	return m.store.DeleteThread(threadID)
}

// MemoryCheckpointStore keeps checkpoints in memory, the default for demos
// and tests.
type MemoryCheckpointStore struct {
	mu      sync.RWMutex
	threads map[string][]*Checkpoint
}

// NewMemoryCheckpointStore creates an empty in-memory store.
func NewMemoryCheckpointStore() *MemoryCheckpointStore {
	return &MemoryCheckpointStore{threads: make(map[string][]*Checkpoint)}
}

func (s *MemoryCheckpointStore) Save(cp *Checkpoint) error {
	if cp.ThreadID == "" {
		return fmt.Errorf("checkpoint missing thread ID")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// A version slot belongs to one checkpoint: re-saving the same
	// checkpoint (rollback relabeling) replaces in place, a different
	// checkpoint conflicts.
	for i, existing := range s.threads[cp.ThreadID] {
		if existing.Version == cp.Version {
			if existing.ID != cp.ID {
				return fmt.Errorf("thread %s version %d: %w", cp.ThreadID, cp.Version, ErrVersionConflict)
			}
			s.threads[cp.ThreadID][i] = cp
			return nil
		}
	}

	s.threads[cp.ThreadID] = append(s.threads[cp.ThreadID], cp)
	sort.Slice(s.threads[cp.ThreadID], func(i, j int) bool {
		return s.threads[cp.ThreadID][i].Version < s.threads[cp.ThreadID][j].Version
	})
	return nil
}

func (s *MemoryCheckpointStore) Get(threadID string, version int) (*Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, cp := range s.threads[threadID] {
		if cp.Version == version {
			return cp, nil
		}
	}
	return nil, fmt.Errorf("checkpoint not found: thread=%s version=%d", threadID, version)
}

func (s *MemoryCheckpointStore) Latest(threadID string) (*Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cps := s.threads[threadID]
	if len(cps) == 0 {
		return nil, fmt.Errorf("no checkpoints for thread %s", threadID)
	}
	return cps[len(cps)-1], nil
}

func (s *MemoryCheckpointStore) List(threadID string) ([]*Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]*Checkpoint(nil), s.threads[threadID]...), nil
}

func (s *MemoryCheckpointStore) Delete(threadID string, version int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cps := s.threads[threadID]
	for i, cp := range cps {
		if cp.Version == version {
			s.threads[threadID] = append(cps[:i], cps[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("checkpoint not found: thread=%s version=%d", threadID, version)
}

func (s *MemoryCheckpointStore) DeleteThread(threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.threads[threadID]; !ok {
		return fmt.Errorf("no checkpoints for thread %s", threadID)
	}
	delete(s.threads, threadID)
	return nil
}
