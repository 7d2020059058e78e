package workflow

import (
	"time"
)

// NodeKind identifies what a graph node does.
type NodeKind string

const (
	// KindExecutor runs a single executor.
	KindExecutor NodeKind = "executor"
	// KindSwitch routes to one outgoing case based on a selector key.
	KindSwitch NodeKind = "switch"
	// KindLoop re-runs its successor nodes until an exit condition fires.
	KindLoop NodeKind = "loop"
	// KindFanOut runs all successor nodes concurrently and collects results.
	KindFanOut NodeKind = "fanout"
	// KindSubGraph runs a nested graph.
	KindSubGraph NodeKind = "subgraph"
	// KindCheckpoint persists runner state through the checkpoint manager.
	KindCheckpoint NodeKind = "checkpoint"
	// KindRequest pauses the run and waits for external input on the
	// request port.
	KindRequest NodeKind = "request"
)

// ErrorStrategy defines how a node failure is handled.
type ErrorStrategy string

const (
	// ErrorFailFast aborts the run on the first node error.
	ErrorFailFast ErrorStrategy = "fail_fast"
	// ErrorSkip replaces the failed node's output with the fallback value
	// and continues.
	ErrorSkip ErrorStrategy = "skip"
	// ErrorRetry re-runs the node up to MaxRetries times before failing.
	ErrorRetry ErrorStrategy = "retry"
)

// ErrorPolicy configures error handling for one node.
type ErrorPolicy struct {
	Strategy   ErrorStrategy
	MaxRetries int
	RetryDelay time.Duration
	// Fallback is the value substituted for the node output under ErrorSkip.
	Fallback any
}

// LoopSpec configures a loop node. The loop body is the node's outgoing
// edge set, re-executed each turn.
type LoopSpec struct {
	// MaxTurns bounds the cycle; it must be positive.
	MaxTurns int
	// Exit ends the loop when it returns true. A nil Exit loops until
	// MaxTurns.
	Exit ExitCondition
}

// RequestSpec configures a request node.
type RequestSpec struct {
	Prompt  string
	Kind    string
	Options []string
	Timeout time.Duration
}

// Node is a single vertex in a workflow graph.
type Node struct {
	ID   string
	Kind NodeKind
	// Executor runs the node body (executor nodes).
	Executor Executor
	// Selector picks the case key (switch nodes).
	Selector Selector
	// Aggregator folds branch results back into one value (fan-out nodes).
	// Nil leaves the raw []BranchResult as the node output.
	Aggregator Aggregator
	// Cases routes case keys to successor node IDs (switch nodes).
	Cases map[string][]string
	// DefaultCase routes unknown keys (switch nodes).
	DefaultCase []string
	// Loop configures loop nodes.
	Loop *LoopSpec
	// SubGraph is the nested graph (subgraph nodes).
	SubGraph *Graph
	// Request configures request nodes.
	Request *RequestSpec
	// OnError overrides the runner's default fail-fast behavior.
	OnError *ErrorPolicy
	// Meta stores additional node information.
	Meta map[string]any
}

// Graph is the workflow structure: nodes joined by directed edges with a
// single entry node. Cycles are only legal through loop nodes.
type Graph struct {
	nodes map[string]*Node
	// edges maps a node ID to its successor node IDs.
	edges map[string][]string
	entry string
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{
		nodes: make(map[string]*Node),
		edges: make(map[string][]string),
	}
}

// AddNode adds a node to the graph.
func (g *Graph) AddNode(node *Node) {
	g.nodes[node.ID] = node
}

// AddEdge adds a directed edge between two nodes.
func (g *Graph) AddEdge(fromID, toID string) {
	g.edges[fromID] = append(g.edges[fromID], toID)
}

// SetEntry sets the entry node.
func (g *Graph) SetEntry(nodeID string) {
	g.entry = nodeID
}

// Node retrieves a node by ID.
func (g *Graph) Node(nodeID string) (*Node, bool) {
	node, exists := g.nodes[nodeID]
	return node, exists
}

// Successors returns the outgoing edges of a node.
func (g *Graph) Successors(nodeID string) []string {
	return g.edges[nodeID]
}

// Entry returns the entry node ID.
func (g *Graph) Entry() string {
	return g.entry
}

// Nodes returns all nodes keyed by ID.
func (g *Graph) Nodes() map[string]*Node {
	return g.nodes
}

// Edges returns all edges.
func (g *Graph) Edges() map[string][]string {
	return g.edges
}

// Definition is the serializable form of a workflow graph. Runtime values
// (executors, selectors, exit conditions) are referenced by registry name.
type Definition struct {
	Name        string           `json:"name" yaml:"name"`
	Description string           `json:"description" yaml:"description"`
	Entry       string           `json:"entry" yaml:"entry"`
	Nodes       []NodeDefinition `json:"nodes" yaml:"nodes"`
	Meta        map[string]any   `json:"meta,omitempty" yaml:"meta,omitempty"`
}

// NodeDefinition is the serializable form of a Node.
type NodeDefinition struct {
	ID          string              `json:"id" yaml:"id"`
	Kind        string              `json:"kind" yaml:"kind"`
	Executor    string              `json:"executor,omitempty" yaml:"executor,omitempty"`
	Selector    string              `json:"selector,omitempty" yaml:"selector,omitempty"`
	Aggregator  string              `json:"aggregator,omitempty" yaml:"aggregator,omitempty"`
	Next        []string            `json:"next,omitempty" yaml:"next,omitempty"`
	Cases       map[string][]string `json:"cases,omitempty" yaml:"cases,omitempty"`
	DefaultCase []string            `json:"default_case,omitempty" yaml:"default_case,omitempty"`
	Loop        *LoopDefinition     `json:"loop,omitempty" yaml:"loop,omitempty"`
	SubGraph    *Definition         `json:"subgraph,omitempty" yaml:"subgraph,omitempty"`
	Request     *RequestDefinition  `json:"request,omitempty" yaml:"request,omitempty"`
	Meta        map[string]any      `json:"meta,omitempty" yaml:"meta,omitempty"`
}

// LoopDefinition is the serializable form of a LoopSpec.
type LoopDefinition struct {
	MaxTurns int    `json:"max_turns" yaml:"max_turns"`
	Exit     string `json:"exit,omitempty" yaml:"exit,omitempty"`
}

// RequestDefinition is the serializable form of a RequestSpec.
type RequestDefinition struct {
	Prompt  string        `json:"prompt" yaml:"prompt"`
	Kind    string        `json:"kind,omitempty" yaml:"kind,omitempty"`
	Options []string      `json:"options,omitempty" yaml:"options,omitempty"`
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}
