package agent

import (
	"context"
	"fmt"

	"github.com/flowforge-ai/flowforge/workflow"
)

// InputMapper converts a workflow value into the message an agent receives.
type InputMapper func(input any) (string, error)

// OutputMapper converts an agent reply into the workflow value passed on.
type OutputMapper func(reply string) (any, error)

// Executor adapts an Agent to the workflow executor contract so agents can
// take part in chains, fan-outs, switches and loops.
type Executor struct {
	agent     Agent
	mapInput  InputMapper
	mapOutput OutputMapper
}

// ExecutorOption configures an agent executor.
type ExecutorOption func(*Executor)

// WithInputMapper overrides the default string passthrough on the way in.
func WithInputMapper(m InputMapper) ExecutorOption {
	return func(e *Executor) {
		e.mapInput = m
	}
}

// WithOutputMapper overrides the default string passthrough on the way out.
func WithOutputMapper(m OutputMapper) ExecutorOption {
	return func(e *Executor) {
		e.mapOutput = m
	}
}

// NewExecutor wraps an agent as a workflow executor.
func NewExecutor(a Agent, opts ...ExecutorOption) *Executor {
	e := &Executor{
		agent: a,
		mapInput: func(input any) (string, error) {
			s, ok := input.(string)
			if !ok {
				return "", fmt.Errorf("agent %s expects string input, got %T", a.Name(), input)
			}
			return s, nil
		},
		mapOutput: func(reply string) (any, error) {
			return reply, nil
		},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Executor) Name() string { return e.agent.Name() }

func (e *Executor) Execute(ctx context.Context, input any) (any, error) {
	message, err := e.mapInput(input)
	if err != nil {
		return nil, err
	}

	reply, err := e.agent.Respond(ctx, message)
	if err != nil {
		return nil, fmt.Errorf("agent %s failed: %w", e.agent.Name(), err)
	}

	return e.mapOutput(reply)
}

// compile-time check
var _ workflow.Executor = (*Executor)(nil)
