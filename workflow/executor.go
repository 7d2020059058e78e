package workflow

import (
	"context"
	"fmt"
)

// Executor is a single unit of work in a workflow: it receives the output of
// the previous step and produces input for the next one.
type Executor interface {
	Execute(ctx context.Context, input any) (any, error)
	// Name returns the executor name used in logs, events and history.
	Name() string
}

// Workflow is a composed, predefined arrangement of executors. Every
// workflow is itself an Executor, so workflows nest.
type Workflow interface {
	Executor
	// Description returns a human-readable workflow description.
	Description() string
}

// ExecutorFunc is the function form of an executor body.
type ExecutorFunc func(ctx context.Context, input any) (any, error)

// FuncExecutor adapts a plain function into an Executor.
type FuncExecutor struct {
	name string
	fn   ExecutorFunc
}

// NewExecutor creates a named executor from a function.
func NewExecutor(name string, fn ExecutorFunc) *FuncExecutor {
	return &FuncExecutor{
		name: name,
		fn:   fn,
	}
}

func (e *FuncExecutor) Execute(ctx context.Context, input any) (any, error) {
	return e.fn(ctx, input)
}

func (e *FuncExecutor) Name() string {
	return e.name
}

// PassthroughExecutor forwards its input unchanged. Useful as a join point
// after a fan-out or as a placeholder while sketching a graph.
type PassthroughExecutor struct{}

func (e *PassthroughExecutor) Name() string { return "passthrough" }

func (e *PassthroughExecutor) Execute(ctx context.Context, input any) (any, error) {
	return input, nil
}

// StringExecutor constrains an executor to string input and output, which is
// what the tutorial agents exchange. Non-string input is an error.
type StringExecutor struct {
	name string
	fn   func(ctx context.Context, input string) (string, error)
}

// NewStringExecutor creates an executor over string messages.
func NewStringExecutor(name string, fn func(ctx context.Context, input string) (string, error)) *StringExecutor {
	return &StringExecutor{name: name, fn: fn}
}

func (e *StringExecutor) Name() string { return e.name }

func (e *StringExecutor) Execute(ctx context.Context, input any) (any, error) {
	s, ok := input.(string)
	if !ok {
		return nil, fmt.Errorf("executor %s expects string input, got %T", e.name, input)
	}
	return e.fn(ctx, s)
}
