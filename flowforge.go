// Package flowforge provides a top-level convenience entry point for the
// workflow toolkit.
//
// Usage:
//
//	import "github.com/flowforge-ai/flowforge"
//
//	wf := flowforge.Sequential("pipeline", stepA, stepB, stepC)
//	out, err := wf.Execute(ctx, "input")
//
// These helpers are thin wrappers over the [workflow] package; use that
// package directly for graphs, checkpoints, and request ports.
package flowforge

import (
	"github.com/flowforge-ai/flowforge/workflow"
)

// Sequential chains executors so each output feeds the next input.
func Sequential(name string, steps ...workflow.Executor) *workflow.SequentialWorkflow {
	return workflow.NewSequentialWorkflow(name, "", steps...)
}

// Parallel runs branches concurrently and folds their results with the
// aggregator. A nil aggregator returns the raw branch results.
func Parallel(name string, aggregator workflow.Aggregator, branches ...workflow.Executor) *workflow.FanOutWorkflow {
	return workflow.NewFanOutWorkflow(name, "", aggregator, branches...)
}

// Loop repeats body until exit returns true or maxTurns is reached.
func Loop(name string, body workflow.Executor, exit workflow.ExitCondition, maxTurns int) (*workflow.LoopWorkflow, error) {
	return workflow.NewLoopWorkflow(name, "", body, exit, maxTurns)
}

// Builder starts a graph workflow definition.
func Builder(name string) *workflow.WorkflowBuilder {
	return workflow.NewWorkflowBuilder(name)
}
