package workflow

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// BranchResult is the outcome of one fan-out branch.
type BranchResult struct {
	Branch string
	Output any
	Err    error
}

// Aggregator folds the branch results of a fan-out back into a single value
// (the fan-in side of the pattern).
type Aggregator interface {
	Aggregate(ctx context.Context, results []BranchResult) (any, error)
}

// AggregatorFunc is the function form of an Aggregator.
type AggregatorFunc func(ctx context.Context, results []BranchResult) (any, error)

// FuncAggregator adapts a function into an Aggregator.
type FuncAggregator struct {
	fn AggregatorFunc
}

// NewAggregator creates an aggregator from a function.
func NewAggregator(fn AggregatorFunc) *FuncAggregator {
	return &FuncAggregator{fn: fn}
}

func (a *FuncAggregator) Aggregate(ctx context.Context, results []BranchResult) (any, error) {
	return a.fn(ctx, results)
}

// FanOutWorkflow dispatches one input to every branch concurrently, waits
// for all of them, and hands the results to the aggregator. Results are
// delivered in branch registration order regardless of completion order, so
// aggregation is deterministic.
type FanOutWorkflow struct {
	name        string
	description string
	branches    []Executor
	aggregator  Aggregator
}

// NewFanOutWorkflow creates a fan-out/fan-in workflow. A nil aggregator
// makes Execute return the raw []BranchResult.
func NewFanOutWorkflow(name, description string, aggregator Aggregator, branches ...Executor) *FanOutWorkflow {
	return &FanOutWorkflow{
		name:        name,
		description: description,
		branches:    branches,
		aggregator:  aggregator,
	}
}

// Execute fans the input out to all branches, fans results back in, and
// aggregates. Any branch error fails the workflow; errors from all failed
// branches are joined.
func (w *FanOutWorkflow) Execute(ctx context.Context, input any) (any, error) {
	if len(w.branches) == 0 {
		return nil, fmt.Errorf("fan-out %s has no branches", w.name)
	}

	results := make([]BranchResult, len(w.branches))
	g, gctx := errgroup.WithContext(ctx)

	for i, branch := range w.branches {
		g.Go(func() error {
			output, err := branch.Execute(gctx, input)
			results[i] = BranchResult{
				Branch: branch.Name(),
				Output: output,
				Err:    err,
			}
			if err != nil {
				return fmt.Errorf("branch %s failed: %w", branch.Name(), err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		var errs []error
		for _, r := range results {
			if r.Err != nil {
				errs = append(errs, fmt.Errorf("branch %s: %w", r.Branch, r.Err))
			}
		}
		return nil, fmt.Errorf("fan-out %s: %w", w.name, errors.Join(errs...))
	}

	if w.aggregator == nil {
		return results, nil
	}

	aggregated, err := w.aggregator.Aggregate(ctx, results)
	if err != nil {
		return nil, fmt.Errorf("fan-in aggregation failed: %w", err)
	}

	return aggregated, nil
}

func (w *FanOutWorkflow) Name() string {
	return w.name
}

func (w *FanOutWorkflow) Description() string {
	return w.description
}

// AddBranch appends a branch executor.
func (w *FanOutWorkflow) AddBranch(branch Executor) {
	w.branches = append(w.branches, branch)
}

// Branches returns the registered branches.
func (w *FanOutWorkflow) Branches() []Executor {
	return w.branches
}
