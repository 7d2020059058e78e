package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// GraphWorkflow is a validated workflow graph. It satisfies Workflow by
// running itself on a default in-process runner.
type GraphWorkflow struct {
	name        string
	description string
	graph       *Graph
}

// NewGraphWorkflow wraps a graph. Use WorkflowBuilder.Build to get a
// validated one.
func NewGraphWorkflow(name, description string, graph *Graph) *GraphWorkflow {
	return &GraphWorkflow{
		name:        name,
		description: description,
		graph:       graph,
	}
}

func (w *GraphWorkflow) Name() string        { return w.name }
func (w *GraphWorkflow) Description() string { return w.description }

// Graph returns the underlying graph.
func (w *GraphWorkflow) Graph() *Graph { return w.graph }

// Execute runs the workflow in process with default options.
func (w *GraphWorkflow) Execute(ctx context.Context, input any) (any, error) {
	return NewInProcessRunner(nil).Run(ctx, w, input)
}

// RunOptions configure one workflow run.
type RunOptions struct {
	// RunID identifies the run; generated when empty.
	RunID string
	// ThreadID groups checkpoints across resumed runs; defaults to RunID.
	ThreadID string
	// Checkpoints enables checkpoint nodes and resume.
	Checkpoints *CheckpointManager
	// Resume restores node outputs from a checkpoint; completed nodes are
	// skipped and their recorded outputs reused.
	Resume *Checkpoint
	// Port answers request nodes. A run that reaches a request node without
	// a port fails.
	Port RequestPort
	// History records the run when set.
	History HistoryStore
}

// InProcessRunner executes workflow graphs within the current process,
// node by node from the entry.
type InProcessRunner struct {
	logger *zap.Logger
}

// NewInProcessRunner creates a runner. A nil logger disables logging.
func NewInProcessRunner(logger *zap.Logger) *InProcessRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InProcessRunner{
		logger: logger.With(zap.String("component", "workflow_runner")),
	}
}

// runState is the mutable state of one run.
type runState struct {
	mu        sync.Mutex
	outputs   map[string]any
	completed map[string]bool
	records   []NodeRecord
}

func (s *runState) record(rec NodeRecord, output any, completed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	if completed {
		s.outputs[rec.NodeID] = output
		s.completed[rec.NodeID] = true
	}
}

func (s *runState) snapshot() (map[string]any, []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	outputs := make(map[string]any, len(s.outputs))
	for k, v := range s.outputs {
		outputs[k] = v
	}
	completed := make([]string, 0, len(s.completed))
	for id := range s.completed {
		completed = append(completed, id)
	}
	return outputs, completed
}

// Run executes the workflow with default options.
func (r *InProcessRunner) Run(ctx context.Context, wf *GraphWorkflow, input any) (any, error) {
	return r.RunWithOptions(ctx, wf, input, RunOptions{})
}

// RunWithOptions executes the workflow from its entry node and returns the
// output of the final node on the executed path.
func (r *InProcessRunner) RunWithOptions(ctx context.Context, wf *GraphWorkflow, input any, opts RunOptions) (any, error) {
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	if opts.ThreadID == "" {
		opts.ThreadID = opts.RunID
	}

	state := &runState{
		outputs:   make(map[string]any),
		completed: make(map[string]bool),
	}
	if opts.Resume != nil {
		for id, out := range opts.Resume.State {
			state.outputs[id] = out
		}
		for _, id := range opts.Resume.Completed {
			state.completed[id] = true
		}
		r.logger.Info("resuming from checkpoint",
			zap.String("run_id", opts.RunID),
			zap.String("thread_id", opts.ThreadID),
			zap.Int("version", opts.Resume.Version),
			zap.Int("completed_nodes", len(opts.Resume.Completed)),
		)
	}

	run := &activeRun{
		runner: r,
		wf:     wf,
		opts:   opts,
		state:  state,
		input:  input,
	}

	startedAt := time.Now()
	emitEvent(ctx, RunEvent{Type: EventRunStarted, RunID: opts.RunID, Workflow: wf.Name()})
	r.logger.Info("run started",
		zap.String("run_id", opts.RunID),
		zap.String("workflow", wf.Name()),
	)

	output, err := run.executePath(ctx, wf.graph, wf.graph.Entry(), input, make(map[string]bool))

	history := &RunHistory{
		RunID:      opts.RunID,
		Workflow:   wf.Name(),
		Input:      input,
		Nodes:      state.records,
		StartedAt:  startedAt,
		FinishedAt: time.Now(),
	}

	if err != nil {
		history.Status = RunStatusFailed
		history.Error = err.Error()
		emitEvent(ctx, RunEvent{Type: EventRunFailed, RunID: opts.RunID, Workflow: wf.Name(), Error: err.Error(), Duration: history.Duration()})
		r.logger.Error("run failed",
			zap.String("run_id", opts.RunID),
			zap.Error(err),
		)
	} else {
		history.Status = RunStatusCompleted
		history.Output = output
		emitEvent(ctx, RunEvent{Type: EventRunCompleted, RunID: opts.RunID, Workflow: wf.Name(), Output: output, Duration: history.Duration()})
		r.logger.Info("run completed",
			zap.String("run_id", opts.RunID),
			zap.Duration("duration", history.Duration()),
		)
	}

	if opts.History != nil {
		if saveErr := opts.History.Save(history); saveErr != nil {
			r.logger.Warn("failed to save run history", zap.Error(saveErr))
		}
	}

	return output, err
}

// activeRun carries per-run context through the graph walk.
type activeRun struct {
	runner *InProcessRunner
	wf     *GraphWorkflow
	opts   RunOptions
	state  *runState
	input  any
}

// executePath runs the node and flows its output along the outgoing edges.
// onPath guards against re-entering a node through a feedback edge.
func (a *activeRun) executePath(ctx context.Context, g *Graph, nodeID string, value any, onPath map[string]bool) (any, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	if onPath[nodeID] {
		// Feedback edge; the cycle is realized by the loop node's body,
		// not by walking the graph in circles.
		return value, nil
	}
	onPath[nodeID] = true
	defer delete(onPath, nodeID)

	node, ok := g.Node(nodeID)
	if !ok {
		return nil, fmt.Errorf("node not found: %s", nodeID)
	}

	output, targets, err := a.executeNode(ctx, g, node, value)
	if err != nil {
		return nil, err
	}

	switch len(targets) {
	case 0:
		return output, nil
	case 1:
		return a.executePath(ctx, g, targets[0], output, onPath)
	default:
		return a.executeBranches(ctx, g, targets, output, onPath)
	}
}

// executeBranches runs independent downstream paths concurrently and
// returns their results in edge order.
func (a *activeRun) executeBranches(ctx context.Context, g *Graph, targets []string, value any, onPath map[string]bool) (any, error) {
	results := make([]any, len(targets))
	eg, gctx := errgroup.WithContext(ctx)

	for i, target := range targets {
		// Each branch gets its own path guard seeded with the shared prefix.
		branchPath := make(map[string]bool, len(onPath))
		for id := range onPath {
			branchPath[id] = true
		}

		eg.Go(func() error {
			out, err := a.executePath(gctx, g, target, value, branchPath)
			if err != nil {
				return err
			}
			results[i] = out
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// executeNode runs one node and returns its output and the IDs to continue
// with. A completed node (checkpoint resume) is skipped and its recorded
// output reused.
func (a *activeRun) executeNode(ctx context.Context, g *Graph, node *Node, value any) (any, []string, error) {
	a.state.mu.Lock()
	done := a.state.completed[node.ID]
	prior := a.state.outputs[node.ID]
	a.state.mu.Unlock()

	if done {
		emitEvent(ctx, RunEvent{Type: EventNodeSkipped, RunID: a.opts.RunID, Workflow: a.wf.Name(), NodeID: node.ID, Kind: node.Kind})
		return prior, g.Successors(node.ID), nil
	}

	emitEvent(ctx, RunEvent{Type: EventNodeStarted, RunID: a.opts.RunID, Workflow: a.wf.Name(), NodeID: node.ID, Kind: node.Kind})
	startedAt := time.Now()

	output, targets, retries, err := a.dispatch(ctx, g, node, value)

	rec := NodeRecord{
		NodeID:     node.ID,
		Kind:       node.Kind,
		Retries:    retries,
		StartedAt:  startedAt,
		FinishedAt: time.Now(),
	}
	rec.Duration = rec.FinishedAt.Sub(rec.StartedAt)

	if err != nil {
		output, err = a.applyErrorPolicy(ctx, node, value, err, &rec)
		if err != nil {
			rec.Error = err.Error()
			a.state.record(rec, nil, false)
			emitEvent(ctx, RunEvent{Type: EventNodeFailed, RunID: a.opts.RunID, Workflow: a.wf.Name(), NodeID: node.ID, Kind: node.Kind, Error: err.Error(), Duration: rec.Duration})
			return nil, nil, fmt.Errorf("node %s failed: %w", node.ID, err)
		}
		targets = g.Successors(node.ID)
	}

	rec.Output = output
	a.state.record(rec, output, true)
	emitEvent(ctx, RunEvent{Type: EventNodeCompleted, RunID: a.opts.RunID, Workflow: a.wf.Name(), NodeID: node.ID, Kind: node.Kind, Output: output, Duration: rec.Duration})

	return output, targets, nil
}

// dispatch runs the node body according to its kind. It returns the node
// output, the continuation targets, and how many retries were consumed.
func (a *activeRun) dispatch(ctx context.Context, g *Graph, node *Node, value any) (any, []string, int, error) {
	switch node.Kind {
	case KindExecutor:
		output, retries, err := a.runExecutor(ctx, node, value)
		return output, g.Successors(node.ID), retries, err

	case KindSwitch:
		output, targets, err := a.runSwitch(ctx, g, node, value)
		return output, targets, 0, err

	case KindLoop:
		output, err := a.runLoop(ctx, node, value)
		return output, g.Successors(node.ID), 0, err

	case KindFanOut:
		output, err := a.runFanOut(ctx, g, node, value)
		return output, nil, 0, err

	case KindSubGraph:
		output, err := a.runSubGraph(ctx, node, value)
		return output, g.Successors(node.ID), 0, err

	case KindCheckpoint:
		err := a.runCheckpoint(ctx, node, value)
		return value, g.Successors(node.ID), 0, err

	case KindRequest:
		output, err := a.runRequest(ctx, node, value)
		return output, g.Successors(node.ID), 0, err

	default:
		return nil, nil, 0, fmt.Errorf("unknown node kind: %s", node.Kind)
	}
}

// runExecutor runs a plain executor node, honoring a retry policy.
func (a *activeRun) runExecutor(ctx context.Context, node *Node, value any) (any, int, error) {
	attempts := 1
	if node.OnError != nil && node.OnError.Strategy == ErrorRetry {
		attempts += node.OnError.MaxRetries
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			emitEvent(ctx, RunEvent{Type: EventNodeRetried, RunID: a.opts.RunID, Workflow: a.wf.Name(), NodeID: node.ID,
				Meta: map[string]any{"attempt": attempt}})
			if node.OnError.RetryDelay > 0 {
				select {
				case <-time.After(node.OnError.RetryDelay):
				case <-ctx.Done():
					return nil, attempt, ctx.Err()
				}
			}
		}

		output, err := node.Executor.Execute(ctx, value)
		if err == nil {
			return output, attempt, nil
		}
		lastErr = err
	}

	return nil, attempts - 1, lastErr
}

// runSwitch selects a case and returns the routed continuation targets.
func (a *activeRun) runSwitch(ctx context.Context, g *Graph, node *Node, value any) (any, []string, error) {
	key, err := node.Selector.Select(ctx, value)
	if err != nil {
		return nil, nil, fmt.Errorf("case selection failed: %w", err)
	}

	targets, ok := node.Cases[key]
	if !ok {
		if len(node.DefaultCase) > 0 {
			targets = node.DefaultCase
		} else if len(node.Cases) == 0 {
			// Case-less switch: route along plain edges.
			targets = g.Successors(node.ID)
		} else {
			return nil, nil, fmt.Errorf("no route for case %s", key)
		}
	}

	emitEvent(ctx, RunEvent{Type: EventCaseSelected, RunID: a.opts.RunID, Workflow: a.wf.Name(), NodeID: node.ID,
		Meta: map[string]any{"case": key}})

	return value, targets, nil
}

// runLoop runs the node's body executor in a feedback cycle.
func (a *activeRun) runLoop(ctx context.Context, node *Node, value any) (any, error) {
	current := value

	for turn := 1; turn <= node.Loop.MaxTurns; turn++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		output, err := node.Executor.Execute(ctx, current)
		if err != nil {
			return nil, fmt.Errorf("loop turn %d failed: %w", turn, err)
		}

		emitEvent(ctx, RunEvent{Type: EventLoopTurn, RunID: a.opts.RunID, Workflow: a.wf.Name(), NodeID: node.ID, Output: output,
			Meta: map[string]any{"turn": turn}})

		if node.Loop.Exit != nil {
			done, err := node.Loop.Exit(ctx, turn, output)
			if err != nil {
				return nil, fmt.Errorf("loop exit condition failed on turn %d: %w", turn, err)
			}
			if done {
				return output, nil
			}
		}

		current = output
	}

	return current, nil
}

// runFanOut executes each outgoing path concurrently and aggregates.
func (a *activeRun) runFanOut(ctx context.Context, g *Graph, node *Node, value any) (any, error) {
	targets := g.Successors(node.ID)
	results := make([]BranchResult, len(targets))
	eg, gctx := errgroup.WithContext(ctx)

	for i, target := range targets {
		eg.Go(func() error {
			out, err := a.executePath(gctx, g, target, value, map[string]bool{node.ID: true})
			results[i] = BranchResult{Branch: target, Output: out, Err: err}
			if err != nil {
				return fmt.Errorf("branch %s failed: %w", target, err)
			}
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		var errs []error
		for _, res := range results {
			if res.Err != nil {
				errs = append(errs, fmt.Errorf("branch %s: %w", res.Branch, res.Err))
			}
		}
		return nil, errors.Join(errs...)
	}

	if node.Aggregator == nil {
		return results, nil
	}

	aggregated, err := node.Aggregator.Aggregate(ctx, results)
	if err != nil {
		return nil, fmt.Errorf("fan-in aggregation failed: %w", err)
	}
	return aggregated, nil
}

// runSubGraph runs the nested graph as its own path walk sharing the run's
// options and state namespace.
func (a *activeRun) runSubGraph(ctx context.Context, node *Node, value any) (any, error) {
	sub := node.SubGraph
	if sub.Entry() == "" {
		return nil, fmt.Errorf("subgraph %s has no entry node", node.ID)
	}
	return a.executePath(ctx, sub, sub.Entry(), value, make(map[string]bool))
}

// runCheckpoint snapshots current run state through the checkpoint manager.
func (a *activeRun) runCheckpoint(ctx context.Context, node *Node, value any) error {
	if a.opts.Checkpoints == nil {
		// Checkpoint nodes are inert without a manager; the value passes
		// through untouched.
		return nil
	}

	outputs, completed := a.state.snapshot()
	cp, err := a.opts.Checkpoints.Create(a.opts.ThreadID, a.wf.Name(), node.ID, a.input, outputs, completed)
	if err != nil {
		return fmt.Errorf("checkpoint failed: %w", err)
	}

	emitEvent(ctx, RunEvent{Type: EventCheckpointed, RunID: a.opts.RunID, Workflow: a.wf.Name(), NodeID: node.ID,
		Meta: map[string]any{"version": cp.Version, "thread_id": cp.ThreadID}})
	return nil
}

// runRequest pauses the path and waits on the request port.
func (a *activeRun) runRequest(ctx context.Context, node *Node, value any) (any, error) {
	if a.opts.Port == nil {
		return nil, fmt.Errorf("request node %s reached but no request port configured", node.ID)
	}

	req := InputRequest{
		ID:      uuid.NewString(),
		RunID:   a.opts.RunID,
		NodeID:  node.ID,
		Prompt:  node.Request.Prompt,
		Kind:    node.Request.Kind,
		Options: node.Request.Options,
		Value:   value,
	}

	emitEvent(ctx, RunEvent{Type: EventInputRequested, RunID: a.opts.RunID, Workflow: a.wf.Name(), NodeID: node.ID,
		Meta: map[string]any{"request_id": req.ID, "prompt": req.Prompt}})

	answer, err := a.opts.Port.Request(ctx, req, node.Request.Timeout)
	if err != nil {
		return nil, fmt.Errorf("input request failed: %w", err)
	}

	emitEvent(ctx, RunEvent{Type: EventInputReceived, RunID: a.opts.RunID, Workflow: a.wf.Name(), NodeID: node.ID, Output: answer,
		Meta: map[string]any{"request_id": req.ID}})

	return answer, nil
}

// applyErrorPolicy resolves a node failure against its policy. Retry is
// handled inside runExecutor; here skip substitutes the fallback value.
func (a *activeRun) applyErrorPolicy(ctx context.Context, node *Node, value any, execErr error, rec *NodeRecord) (any, error) {
	if node.OnError == nil || node.OnError.Strategy != ErrorSkip {
		return nil, execErr
	}

	a.runner.logger.Warn("node failed, skipping with fallback",
		zap.String("run_id", a.opts.RunID),
		zap.String("node_id", node.ID),
		zap.Error(execErr),
	)
	emitEvent(ctx, RunEvent{Type: EventNodeSkipped, RunID: a.opts.RunID, Workflow: a.wf.Name(), NodeID: node.ID, Error: execErr.Error()})

	return node.OnError.Fallback, nil
}
