package workflow

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFanOutWorkflow_AggregatesInBranchOrder(t *testing.T) {
	// The slow branch finishes last but must still come first in the
	// aggregated results.
	slow := NewStringExecutor("slow", func(ctx context.Context, input string) (string, error) {
		time.Sleep(20 * time.Millisecond)
		return input + "-slow", nil
	})
	fast := NewStringExecutor("fast", func(ctx context.Context, input string) (string, error) {
		return input + "-fast", nil
	})

	agg := NewAggregator(func(ctx context.Context, results []BranchResult) (any, error) {
		parts := make([]string, 0, len(results))
		for _, r := range results {
			parts = append(parts, r.Output.(string))
		}
		return strings.Join(parts, "|"), nil
	})

	wf := NewFanOutWorkflow("parallel", "", agg, slow, fast)

	out, err := wf.Execute(context.Background(), "in")
	require.NoError(t, err)
	assert.Equal(t, "in-slow|in-fast", out)
}

func TestFanOutWorkflow_NilAggregatorReturnsRawResults(t *testing.T) {
	wf := NewFanOutWorkflow("parallel", "", nil,
		appendExecutor("a", "-a"),
		appendExecutor("b", "-b"),
	)

	out, err := wf.Execute(context.Background(), "x")
	require.NoError(t, err)

	results, ok := out.([]BranchResult)
	require.True(t, ok)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].Branch)
	assert.Equal(t, "x-a", results[0].Output)
	assert.Equal(t, "b", results[1].Branch)
	assert.Equal(t, "x-b", results[1].Output)
}

func TestFanOutWorkflow_BranchFailureFailsWorkflow(t *testing.T) {
	wf := NewFanOutWorkflow("parallel", "", nil,
		appendExecutor("ok", "-ok"),
		failingExecutor("bad"),
	)

	_, err := wf.Execute(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "branch bad")
}

func TestFanOutWorkflow_NoBranches(t *testing.T) {
	wf := NewFanOutWorkflow("empty", "", nil)

	_, err := wf.Execute(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no branches")
}

func TestFanOutWorkflow_AddBranch(t *testing.T) {
	wf := NewFanOutWorkflow("parallel", "", nil)
	wf.AddBranch(appendExecutor("a", "-a"))
	wf.AddBranch(appendExecutor("b", "-b"))

	assert.Len(t, wf.Branches(), 2)
}
