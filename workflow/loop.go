package workflow

import (
	"context"
	"fmt"
)

// ExitCondition decides whether a feedback loop should stop after a turn.
// It receives the 1-based turn number and the body's output for that turn;
// returning true ends the loop.
type ExitCondition func(ctx context.Context, turn int, output any) (bool, error)

// Turn records one iteration of a feedback loop.
type Turn struct {
	Number int `json:"number"`
	Input  any `json:"input"`
	Output any `json:"output"`
}

// TurnObserver is called after each completed loop turn.
type TurnObserver func(turn Turn)

// LoopWorkflow runs its body repeatedly, feeding each turn's output back in
// as the next turn's input, until the exit condition fires or MaxTurns is
// reached. This is the cyclic feedback pattern: the loop edge is the only
// sanctioned cycle in a workflow.
type LoopWorkflow struct {
	name        string
	description string
	body        Executor
	exit        ExitCondition
	maxTurns    int
	observer    TurnObserver
}

// LoopOption configures a LoopWorkflow.
type LoopOption func(*LoopWorkflow)

// WithTurnObserver registers a callback invoked after every turn.
func WithTurnObserver(obs TurnObserver) LoopOption {
	return func(w *LoopWorkflow) {
		w.observer = obs
	}
}

// NewLoopWorkflow creates a feedback loop around body. maxTurns must be
// positive; it is the hard stop that keeps the cycle from running forever
// when the exit condition never fires.
func NewLoopWorkflow(name, description string, body Executor, exit ExitCondition, maxTurns int, opts ...LoopOption) (*LoopWorkflow, error) {
	if body == nil {
		return nil, fmt.Errorf("loop %s requires a body executor", name)
	}
	if exit == nil {
		return nil, fmt.Errorf("loop %s requires an exit condition", name)
	}
	if maxTurns <= 0 {
		return nil, fmt.Errorf("loop %s requires positive max turns, got %d", name, maxTurns)
	}

	w := &LoopWorkflow{
		name:        name,
		description: description,
		body:        body,
		exit:        exit,
		maxTurns:    maxTurns,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Execute runs the loop and returns the output of the final turn.
func (w *LoopWorkflow) Execute(ctx context.Context, input any) (any, error) {
	current := input

	for turn := 1; turn <= w.maxTurns; turn++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		output, err := w.body.Execute(ctx, current)
		if err != nil {
			return nil, fmt.Errorf("loop turn %d (%s) failed: %w", turn, w.body.Name(), err)
		}

		if w.observer != nil {
			w.observer(Turn{Number: turn, Input: current, Output: output})
		}

		done, err := w.exit(ctx, turn, output)
		if err != nil {
			return nil, fmt.Errorf("loop exit condition failed on turn %d: %w", turn, err)
		}
		if done {
			return output, nil
		}

		current = output
	}

	// Exit condition never fired; the turn budget is the result boundary.
	return current, nil
}

func (w *LoopWorkflow) Name() string {
	return w.name
}

func (w *LoopWorkflow) Description() string {
	return w.description
}

// MaxTurns returns the loop's turn budget.
func (w *LoopWorkflow) MaxTurns() int {
	return w.maxTurns
}
