package workflow

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"pgregory.net/rapid"
)

func TestSequentialWorkflow_ConcatenationProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		suffixes := rapid.SliceOfN(rapid.StringMatching(`[a-z]{1,5}`), 0, 8).Draw(t, "suffixes")
		input := rapid.StringMatching(`[a-z]{0,10}`).Draw(t, "input")

		steps := make([]Executor, len(suffixes))
		for i, suffix := range suffixes {
			steps[i] = appendExecutor(fmt.Sprintf("step-%d", i), suffix)
		}

		wf := NewSequentialWorkflow("chain", "", steps...)
		out, err := wf.Execute(context.Background(), input)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		want := input + strings.Join(suffixes, "")
		if out != want {
			t.Fatalf("got %q, want %q", out, want)
		}
	})
}

func TestLoopWorkflow_TurnCountProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		maxTurns := rapid.IntRange(1, 20).Draw(t, "maxTurns")
		exitAt := rapid.IntRange(1, 30).Draw(t, "exitAt")

		var turns int
		body := NewExecutor("count", func(ctx context.Context, input any) (any, error) {
			turns++
			return input, nil
		})
		exit := func(ctx context.Context, turn int, output any) (bool, error) {
			return turn >= exitAt, nil
		}

		wf, err := NewLoopWorkflow("loop", "", body, exit, maxTurns)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if _, err := wf.Execute(context.Background(), "x"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		want := exitAt
		if maxTurns < exitAt {
			want = maxTurns
		}
		if turns != want {
			t.Fatalf("ran %d turns, want %d", turns, want)
		}
	})
}

func TestFanOutWorkflow_ResultOrderProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 10).Draw(t, "branches")

		branches := make([]Executor, n)
		for i := 0; i < n; i++ {
			branches[i] = NewExecutor(fmt.Sprintf("b%d", i), func(ctx context.Context, input any) (any, error) {
				return i, nil
			})
		}

		wf := NewFanOutWorkflow("fan", "", nil, branches...)
		out, err := wf.Execute(context.Background(), "x")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		results := out.([]BranchResult)
		for i, res := range results {
			if res.Output.(int) != i {
				t.Fatalf("result %d holds branch %v, order not preserved", i, res.Output)
			}
		}
	})
}

func TestCheckpointManager_VersionProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("versions increase by one per create", prop.ForAll(
		func(count int) bool {
			manager := NewCheckpointManager(NewMemoryCheckpointStore(), nil)
			for i := 1; i <= count; i++ {
				cp, err := manager.Create("t", "wf", "n", nil, map[string]any{"n": i}, nil)
				if err != nil || cp.Version != i {
					return false
				}
			}
			history, err := manager.History("t")
			return err == nil && len(history) == count
		},
		gen.IntRange(1, 20),
	))

	properties.Property("rollback preserves rolled-back state", prop.ForAll(
		func(values []string) bool {
			if len(values) < 2 {
				return true
			}
			manager := NewCheckpointManager(NewMemoryCheckpointStore(), nil)
			for _, v := range values {
				if _, err := manager.Create("t", "wf", "n", nil, map[string]any{"v": v}, nil); err != nil {
					return false
				}
			}
			cp, err := manager.Rollback("t", 1)
			if err != nil {
				return false
			}
			return cp.State["v"] == values[0] && cp.Version == len(values)+1
		},
		gen.SliceOf(gen.AlphaString()),
	))

	properties.TestingRun(t)
}
