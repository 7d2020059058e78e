package workflow

import (
	"fmt"

	"go.uber.org/zap"
)

// WorkflowBuilder provides a fluent API for constructing graph workflows.
type WorkflowBuilder struct {
	graph  *Graph
	name   string
	desc   string
	logger *zap.Logger
}

// NewWorkflowBuilder creates a builder for a workflow with the given name.
func NewWorkflowBuilder(name string) *WorkflowBuilder {
	return &WorkflowBuilder{
		graph:  NewGraph(),
		name:   name,
		logger: zap.NewNop(),
	}
}

// WithDescription sets the workflow description.
func (b *WorkflowBuilder) WithDescription(desc string) *WorkflowBuilder {
	b.desc = desc
	return b
}

// WithLogger sets a custom logger.
func (b *WorkflowBuilder) WithLogger(logger *zap.Logger) *WorkflowBuilder {
	b.logger = logger.With(zap.String("component", "workflow_builder"))
	return b
}

// AddNode adds a node of the given kind and returns a NodeBuilder for
// configuring it.
func (b *WorkflowBuilder) AddNode(id string, kind NodeKind) *NodeBuilder {
	node := &Node{
		ID:   id,
		Kind: kind,
		Meta: make(map[string]any),
	}
	b.graph.AddNode(node)

	return &NodeBuilder{
		node:   node,
		parent: b,
	}
}

// AddExecutor is shorthand for an executor node with its body configured.
func (b *WorkflowBuilder) AddExecutor(id string, exec Executor) *WorkflowBuilder {
	return b.AddNode(id, KindExecutor).WithExecutor(exec).Done()
}

// AddEdge adds a directed edge between two nodes.
func (b *WorkflowBuilder) AddEdge(from, to string) *WorkflowBuilder {
	b.graph.AddEdge(from, to)
	return b
}

// Chain adds edges connecting the given node IDs in order.
func (b *WorkflowBuilder) Chain(ids ...string) *WorkflowBuilder {
	for i := 0; i+1 < len(ids); i++ {
		b.graph.AddEdge(ids[i], ids[i+1])
	}
	return b
}

// SetEntry sets the entry node.
func (b *WorkflowBuilder) SetEntry(nodeID string) *WorkflowBuilder {
	b.graph.SetEntry(nodeID)
	return b
}

// Build validates the graph and returns a GraphWorkflow.
func (b *WorkflowBuilder) Build() (*GraphWorkflow, error) {
	if err := b.validate(); err != nil {
		return nil, fmt.Errorf("workflow validation failed: %w", err)
	}

	wf := NewGraphWorkflow(b.name, b.desc, b.graph)

	b.logger.Info("workflow built",
		zap.String("name", b.name),
		zap.Int("nodes", len(b.graph.nodes)),
		zap.String("entry", b.graph.entry),
	)

	return wf, nil
}

// validate performs structural validation of the graph.
func (b *WorkflowBuilder) validate() error {
	if len(b.graph.nodes) == 0 {
		return fmt.Errorf("graph has no nodes")
	}

	if b.graph.entry == "" {
		return fmt.Errorf("entry node not set")
	}

	if _, exists := b.graph.Node(b.graph.entry); !exists {
		return fmt.Errorf("entry node does not exist: %s", b.graph.entry)
	}

	for fromID, toIDs := range b.graph.edges {
		if _, exists := b.graph.Node(fromID); !exists {
			return fmt.Errorf("edge references non-existent source node: %s", fromID)
		}
		for _, toID := range toIDs {
			if _, exists := b.graph.Node(toID); !exists {
				return fmt.Errorf("edge references non-existent target node: %s", toID)
			}
		}
	}

	if err := b.detectCycles(); err != nil {
		return err
	}

	if err := b.detectUnreachable(); err != nil {
		return err
	}

	return b.validateNodes()
}

// detectCycles rejects cycles via DFS. The only sanctioned cycle is a
// feedback edge that closes back on a loop node: that is how a cyclic
// feedback pattern is expressed in the graph.
func (b *WorkflowBuilder) detectCycles() error {
	visited := make(map[string]bool)
	recStack := make(map[string]bool)

	for nodeID := range b.graph.nodes {
		if !visited[nodeID] {
			if cycleID, found := b.findCycleDFS(nodeID, visited, recStack); found {
				return fmt.Errorf("cycle detected involving node %s (only feedback edges into loop nodes may close a cycle)", cycleID)
			}
		}
	}

	return nil
}

func (b *WorkflowBuilder) findCycleDFS(nodeID string, visited, recStack map[string]bool) (string, bool) {
	visited[nodeID] = true
	recStack[nodeID] = true

	for _, neighborID := range b.successorsForValidation(nodeID) {
		if !visited[neighborID] {
			if id, found := b.findCycleDFS(neighborID, visited, recStack); found {
				return id, true
			}
		} else if recStack[neighborID] {
			if neighbor, ok := b.graph.Node(neighborID); ok && neighbor.Kind == KindLoop {
				// Feedback edge closing on a loop node.
				continue
			}
			return neighborID, true
		}
	}

	recStack[nodeID] = false
	return "", false
}

// detectUnreachable rejects nodes that no path from the entry can reach.
func (b *WorkflowBuilder) detectUnreachable() error {
	reachable := make(map[string]bool)
	b.markReachable(b.graph.entry, reachable)

	var unreachable []string
	for nodeID := range b.graph.nodes {
		if !reachable[nodeID] {
			unreachable = append(unreachable, nodeID)
		}
	}

	if len(unreachable) > 0 {
		return fmt.Errorf("unreachable nodes detected: %v", unreachable)
	}

	return nil
}

func (b *WorkflowBuilder) markReachable(nodeID string, reachable map[string]bool) {
	if reachable[nodeID] {
		return
	}

	reachable[nodeID] = true

	for _, neighborID := range b.successorsForValidation(nodeID) {
		b.markReachable(neighborID, reachable)
	}
}

// successorsForValidation returns edge targets plus switch case routes,
// which bypass the plain edge list.
func (b *WorkflowBuilder) successorsForValidation(nodeID string) []string {
	successors := append([]string(nil), b.graph.Successors(nodeID)...)

	if node, ok := b.graph.Node(nodeID); ok && node.Kind == KindSwitch {
		for _, targets := range node.Cases {
			successors = append(successors, targets...)
		}
		successors = append(successors, node.DefaultCase...)
	}

	return successors
}

// validateNodes validates per-kind node configuration.
func (b *WorkflowBuilder) validateNodes() error {
	for nodeID, node := range b.graph.nodes {
		switch node.Kind {
		case KindExecutor:
			if node.Executor == nil {
				return fmt.Errorf("executor node %s has no executor configured", nodeID)
			}

		case KindSwitch:
			if node.Selector == nil {
				return fmt.Errorf("switch node %s has no selector configured", nodeID)
			}
			if len(node.Cases) == 0 && len(b.graph.Successors(nodeID)) == 0 {
				return fmt.Errorf("switch node %s has no cases configured", nodeID)
			}

		case KindLoop:
			if node.Loop == nil {
				return fmt.Errorf("loop node %s has no loop configuration", nodeID)
			}
			if node.Loop.MaxTurns <= 0 {
				return fmt.Errorf("loop node %s requires positive max turns", nodeID)
			}
			if node.Executor == nil {
				return fmt.Errorf("loop node %s has no body executor", nodeID)
			}

		case KindFanOut:
			if len(b.graph.Successors(nodeID)) < 2 {
				return fmt.Errorf("fan-out node %s requires at least 2 outgoing edges", nodeID)
			}

		case KindSubGraph:
			if node.SubGraph == nil {
				return fmt.Errorf("subgraph node %s has no subgraph configured", nodeID)
			}

		case KindRequest:
			if node.Request == nil || node.Request.Prompt == "" {
				return fmt.Errorf("request node %s requires a prompt", nodeID)
			}

		case KindCheckpoint:
			// No extra configuration required.

		default:
			return fmt.Errorf("unknown node kind: %s", node.Kind)
		}

		if node.OnError != nil && node.OnError.Strategy == ErrorRetry && node.OnError.MaxRetries <= 0 {
			return fmt.Errorf("node %s retry policy requires positive max retries", nodeID)
		}
	}

	return nil
}

// NodeBuilder provides a fluent API for configuring a single node.
type NodeBuilder struct {
	node   *Node
	parent *WorkflowBuilder
}

// WithExecutor sets the body for an executor node.
func (nb *NodeBuilder) WithExecutor(exec Executor) *NodeBuilder {
	nb.node.Executor = exec
	return nb
}

// WithSelector sets the selector for a switch node.
func (nb *NodeBuilder) WithSelector(sel Selector) *NodeBuilder {
	nb.node.Selector = sel
	return nb
}

// WithAggregator sets the fan-in aggregator for a fan-out node.
func (nb *NodeBuilder) WithAggregator(agg Aggregator) *NodeBuilder {
	nb.node.Aggregator = agg
	return nb
}

// WithCase routes a selector key to successor nodes (switch nodes).
func (nb *NodeBuilder) WithCase(key string, nodeIDs ...string) *NodeBuilder {
	if nb.node.Cases == nil {
		nb.node.Cases = make(map[string][]string)
	}
	nb.node.Cases[key] = nodeIDs
	return nb
}

// WithDefaultCase routes unknown selector keys (switch nodes).
func (nb *NodeBuilder) WithDefaultCase(nodeIDs ...string) *NodeBuilder {
	nb.node.DefaultCase = nodeIDs
	return nb
}

// WithLoop sets the loop configuration for a loop node.
func (nb *NodeBuilder) WithLoop(spec LoopSpec) *NodeBuilder {
	nb.node.Loop = &spec
	return nb
}

// WithSubGraph sets the nested graph for a subgraph node.
func (nb *NodeBuilder) WithSubGraph(sub *Graph) *NodeBuilder {
	nb.node.SubGraph = sub
	return nb
}

// WithRequest sets the request configuration for a request node.
func (nb *NodeBuilder) WithRequest(spec RequestSpec) *NodeBuilder {
	nb.node.Request = &spec
	return nb
}

// WithErrorPolicy sets the node's error handling policy.
func (nb *NodeBuilder) WithErrorPolicy(policy ErrorPolicy) *NodeBuilder {
	nb.node.OnError = &policy
	return nb
}

// WithMeta sets a metadata value.
func (nb *NodeBuilder) WithMeta(key string, value any) *NodeBuilder {
	nb.node.Meta[key] = value
	return nb
}

// Done completes node configuration and returns to the WorkflowBuilder.
func (nb *NodeBuilder) Done() *WorkflowBuilder {
	return nb.parent
}
