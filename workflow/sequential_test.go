package workflow

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func appendExecutor(name, suffix string) Executor {
	return NewStringExecutor(name, func(ctx context.Context, input string) (string, error) {
		return input + suffix, nil
	})
}

func failingExecutor(name string) Executor {
	return NewExecutor(name, func(ctx context.Context, input any) (any, error) {
		return nil, fmt.Errorf("boom")
	})
}

func TestSequentialWorkflow_Order(t *testing.T) {
	wf := NewSequentialWorkflow("pipeline", "three stage pipeline",
		appendExecutor("a", "-a"),
		appendExecutor("b", "-b"),
		appendExecutor("c", "-c"),
	)

	out, err := wf.Execute(context.Background(), "start")
	require.NoError(t, err)
	assert.Equal(t, "start-a-b-c", out)
}

func TestSequentialWorkflow_StepError(t *testing.T) {
	wf := NewSequentialWorkflow("pipeline", "",
		appendExecutor("a", "-a"),
		failingExecutor("b"),
		appendExecutor("c", "-c"),
	)

	_, err := wf.Execute(context.Background(), "start")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "step 2 (b) failed")
}

func TestSequentialWorkflow_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	wf := NewSequentialWorkflow("pipeline", "",
		NewExecutor("canceller", func(ctx context.Context, input any) (any, error) {
			cancel()
			return input, nil
		}),
		appendExecutor("never", "-never"),
	)

	_, err := wf.Execute(ctx, "start")
	require.ErrorIs(t, err, context.Canceled)
}

func TestSequentialWorkflow_AddStep(t *testing.T) {
	wf := NewSequentialWorkflow("pipeline", "")
	wf.AddStep(appendExecutor("a", "-a"))
	wf.AddStep(appendExecutor("b", "-b"))

	require.Len(t, wf.Steps(), 2)

	out, err := wf.Execute(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, "x-a-b", out)
}

func TestSequentialWorkflow_NoSteps(t *testing.T) {
	wf := NewSequentialWorkflow("empty", "")

	out, err := wf.Execute(context.Background(), "untouched")
	require.NoError(t, err)
	assert.Equal(t, "untouched", out)
}
