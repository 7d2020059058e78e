package workflow

import (
	"context"
	"fmt"
)

// SequentialWorkflow runs a fixed chain of executors. The output of each
// step becomes the input of the next, and the last output is the workflow
// result.
type SequentialWorkflow struct {
	name        string
	description string
	steps       []Executor
}

// NewSequentialWorkflow creates a chain from the given steps.
func NewSequentialWorkflow(name, description string, steps ...Executor) *SequentialWorkflow {
	return &SequentialWorkflow{
		name:        name,
		description: description,
		steps:       steps,
	}
}

// Execute runs the steps in order. Context cancellation is checked between
// steps, and a step failure aborts the chain with the step index and name
// attached to the error.
func (w *SequentialWorkflow) Execute(ctx context.Context, input any) (any, error) {
	current := input

	for i, step := range w.steps {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		result, err := step.Execute(ctx, current)
		if err != nil {
			return nil, fmt.Errorf("step %d (%s) failed: %w", i+1, step.Name(), err)
		}

		current = result
	}

	return current, nil
}

func (w *SequentialWorkflow) Name() string {
	return w.name
}

func (w *SequentialWorkflow) Description() string {
	return w.description
}

// AddStep appends a step to the chain.
func (w *SequentialWorkflow) AddStep(step Executor) {
	w.steps = append(w.steps, step)
}

// Steps returns the chain's steps.
func (w *SequentialWorkflow) Steps() []Executor {
	return w.steps
}
