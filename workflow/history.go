package workflow

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// RunStatus is the lifecycle state of a workflow run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// NodeRecord captures one node execution inside a run.
type NodeRecord struct {
	NodeID     string        `json:"node_id"`
	Kind       NodeKind      `json:"kind"`
	Output     any           `json:"output,omitempty"`
	Error      string        `json:"error,omitempty"`
	Retries    int           `json:"retries,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Duration   time.Duration `json:"duration"`
}

// RunHistory is the full record of one workflow run.
type RunHistory struct {
	RunID      string       `json:"run_id"`
	Workflow   string       `json:"workflow"`
	Status     RunStatus    `json:"status"`
	Input      any          `json:"input,omitempty"`
	Output     any          `json:"output,omitempty"`
	Error      string       `json:"error,omitempty"`
	Nodes      []NodeRecord `json:"nodes"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
}

// Duration returns the total run duration.
func (h *RunHistory) Duration() time.Duration {
	if h.FinishedAt.IsZero() {
		return 0
	}
	return h.FinishedAt.Sub(h.StartedAt)
}

// HistoryFilter narrows a history query. Zero-value fields match
// everything.
type HistoryFilter struct {
	Workflow string
	Status   RunStatus
	// Since/Until bound StartedAt (inclusive since, exclusive until).
	Since time.Time
	Until time.Time
	Limit int
}

func (f HistoryFilter) matches(h *RunHistory) bool {
	if f.Workflow != "" && h.Workflow != f.Workflow {
		return false
	}
	if f.Status != "" && h.Status != f.Status {
		return false
	}
	if !f.Since.IsZero() && h.StartedAt.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && !h.StartedAt.Before(f.Until) {
		return false
	}
	return true
}

// HistoryStore persists run histories.
type HistoryStore interface {
	Save(history *RunHistory) error
	Get(runID string) (*RunHistory, error)
	// List returns histories for a workflow, most recent first. An empty
	// workflow name matches all runs. limit <= 0 means no limit.
	List(workflow string, limit int) ([]*RunHistory, error)
	// Query returns histories matching the filter, most recent first.
	Query(filter HistoryFilter) ([]*RunHistory, error)
	Delete(runID string) error
}

// MemoryHistoryStore keeps run histories in memory.
type MemoryHistoryStore struct {
	mu   sync.RWMutex
	runs map[string]*RunHistory
}

// NewMemoryHistoryStore creates an empty in-memory history store.
func NewMemoryHistoryStore() *MemoryHistoryStore {
	return &MemoryHistoryStore{runs: make(map[string]*RunHistory)}
}

func (s *MemoryHistoryStore) Save(history *RunHistory) error {
	if history.RunID == "" {
		return fmt.Errorf("run history missing run ID")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[history.RunID] = history
	return nil
}

func (s *MemoryHistoryStore) Get(runID string) (*RunHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history, ok := s.runs[runID]
	if !ok {
		return nil, fmt.Errorf("run history not found: %s", runID)
	}
	return history, nil
}

func (s *MemoryHistoryStore) List(workflow string, limit int) ([]*RunHistory, error) {
	return s.Query(HistoryFilter{Workflow: workflow, Limit: limit})
}

func (s *MemoryHistoryStore) Query(filter HistoryFilter) ([]*RunHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*RunHistory
	for _, history := range s.runs {
		if filter.matches(history) {
			result = append(result, history)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].StartedAt.After(result[j].StartedAt)
	})

	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (s *MemoryHistoryStore) Delete(runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.runs[runID]; !ok {
		return fmt.Errorf("run history not found: %s", runID)
	}
	delete(s.runs, runID)
	return nil
}
