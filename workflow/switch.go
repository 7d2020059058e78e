package workflow

import (
	"context"
	"fmt"
	"sync"
)

// Selector inspects the input and returns the case key to dispatch to.
type Selector interface {
	Select(ctx context.Context, input any) (string, error)
}

// SelectorFunc is the function form of a Selector.
type SelectorFunc func(ctx context.Context, input any) (string, error)

// FuncSelector adapts a function into a Selector.
type FuncSelector struct {
	fn SelectorFunc
}

// NewSelector creates a selector from a function.
func NewSelector(fn SelectorFunc) *FuncSelector {
	return &FuncSelector{fn: fn}
}

func (s *FuncSelector) Select(ctx context.Context, input any) (string, error) {
	return s.fn(ctx, input)
}

// SwitchWorkflow routes each input to exactly one registered case based on
// the selector's key. An optional default case catches unknown keys.
type SwitchWorkflow struct {
	name        string
	description string
	selector    Selector
	cases       map[string]Executor
	defaultCase string
	// mu protects the cases map against concurrent RegisterCase (write) and
	// Execute/Cases (read) calls.
	mu sync.RWMutex
}

// NewSwitchWorkflow creates a conditional switch workflow.
func NewSwitchWorkflow(name, description string, selector Selector) *SwitchWorkflow {
	return &SwitchWorkflow{
		name:        name,
		description: description,
		selector:    selector,
		cases:       make(map[string]Executor),
	}
}

// RegisterCase binds a case key to an executor.
func (w *SwitchWorkflow) RegisterCase(key string, exec Executor) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.cases[key] = exec
}

// SetDefaultCase sets the case used when the selector returns an
// unregistered key.
func (w *SwitchWorkflow) SetDefaultCase(key string) {
	w.defaultCase = key
}

// Execute selects a case and runs it. An unknown key without a usable
// default case is an error.
func (w *SwitchWorkflow) Execute(ctx context.Context, input any) (any, error) {
	key, err := w.selector.Select(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("case selection failed: %w", err)
	}

	w.mu.RLock()
	exec, ok := w.cases[key]
	if !ok {
		if w.defaultCase != "" {
			exec, ok = w.cases[w.defaultCase]
			if !ok {
				w.mu.RUnlock()
				return nil, fmt.Errorf("no executor for case %s (default case %s also missing)", key, w.defaultCase)
			}
		} else {
			w.mu.RUnlock()
			return nil, fmt.Errorf("no executor for case %s", key)
		}
	}
	w.mu.RUnlock()

	result, err := exec.Execute(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("case %s failed: %w", exec.Name(), err)
	}

	return result, nil
}

func (w *SwitchWorkflow) Name() string {
	return w.name
}

func (w *SwitchWorkflow) Description() string {
	return w.description
}

// Cases returns the registered case keys.
func (w *SwitchWorkflow) Cases() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	keys := make([]string, 0, len(w.cases))
	for key := range w.cases {
		keys = append(keys, key)
	}
	return keys
}
