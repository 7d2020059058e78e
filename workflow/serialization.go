package workflow

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Registry resolves the names a Definition references into runtime values.
// Graph structure serializes; executors, selectors, exit conditions, and
// aggregators are code, so a loaded definition looks them up here.
type Registry struct {
	executors   map[string]Executor
	selectors   map[string]Selector
	exits       map[string]ExitCondition
	aggregators map[string]Aggregator
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		executors:   make(map[string]Executor),
		selectors:   make(map[string]Selector),
		exits:       make(map[string]ExitCondition),
		aggregators: make(map[string]Aggregator),
	}
}

// RegisterExecutor binds a name to an executor.
func (r *Registry) RegisterExecutor(name string, exec Executor) *Registry {
	r.executors[name] = exec
	return r
}

// RegisterSelector binds a name to a selector.
func (r *Registry) RegisterSelector(name string, sel Selector) *Registry {
	r.selectors[name] = sel
	return r
}

// RegisterExit binds a name to an exit condition.
func (r *Registry) RegisterExit(name string, exit ExitCondition) *Registry {
	r.exits[name] = exit
	return r
}

// RegisterAggregator binds a name to an aggregator.
func (r *Registry) RegisterAggregator(name string, agg Aggregator) *Registry {
	r.aggregators[name] = agg
	return r
}

// BuildWorkflow materializes a definition into a validated GraphWorkflow,
// resolving component references through the registry.
func BuildWorkflow(def *Definition, reg *Registry) (*GraphWorkflow, error) {
	builder := NewWorkflowBuilder(def.Name).WithDescription(def.Description)

	for _, nd := range def.Nodes {
		nb := builder.AddNode(nd.ID, NodeKind(nd.Kind))

		if nd.Executor != "" {
			exec, ok := reg.executors[nd.Executor]
			if !ok {
				return nil, fmt.Errorf("node %s references unknown executor %s", nd.ID, nd.Executor)
			}
			nb.WithExecutor(exec)
		}

		if nd.Selector != "" {
			sel, ok := reg.selectors[nd.Selector]
			if !ok {
				return nil, fmt.Errorf("node %s references unknown selector %s", nd.ID, nd.Selector)
			}
			nb.WithSelector(sel)
		}

		if nd.Aggregator != "" {
			agg, ok := reg.aggregators[nd.Aggregator]
			if !ok {
				return nil, fmt.Errorf("node %s references unknown aggregator %s", nd.ID, nd.Aggregator)
			}
			nb.WithAggregator(agg)
		}

		for key, targets := range nd.Cases {
			nb.WithCase(key, targets...)
		}
		if len(nd.DefaultCase) > 0 {
			nb.WithDefaultCase(nd.DefaultCase...)
		}

		if nd.Loop != nil {
			spec := LoopSpec{MaxTurns: nd.Loop.MaxTurns}
			if nd.Loop.Exit != "" {
				exit, ok := reg.exits[nd.Loop.Exit]
				if !ok {
					return nil, fmt.Errorf("node %s references unknown exit condition %s", nd.ID, nd.Loop.Exit)
				}
				spec.Exit = exit
			}
			nb.WithLoop(spec)
		}

		if nd.SubGraph != nil {
			subWf, err := BuildWorkflow(nd.SubGraph, reg)
			if err != nil {
				return nil, fmt.Errorf("node %s subgraph: %w", nd.ID, err)
			}
			nb.WithSubGraph(subWf.Graph())
		}

		if nd.Request != nil {
			nb.WithRequest(RequestSpec{
				Prompt:  nd.Request.Prompt,
				Kind:    nd.Request.Kind,
				Options: nd.Request.Options,
				Timeout: nd.Request.Timeout,
			})
		}

		for key, val := range nd.Meta {
			nb.WithMeta(key, val)
		}

		nb.Done()

		for _, next := range nd.Next {
			builder.AddEdge(nd.ID, next)
		}
	}

	builder.SetEntry(def.Entry)
	return builder.Build()
}

// DefinitionOf serializes a workflow's structure. Component references use
// the executor/selector names; exit conditions and aggregators cannot be
// named from the graph alone and come out empty.
func DefinitionOf(wf *GraphWorkflow) *Definition {
	g := wf.Graph()

	def := &Definition{
		Name:        wf.Name(),
		Description: wf.Description(),
		Entry:       g.Entry(),
	}

	ids := make([]string, 0, len(g.Nodes()))
	for id := range g.Nodes() {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		node, _ := g.Node(id)

		nd := NodeDefinition{
			ID:          node.ID,
			Kind:        string(node.Kind),
			Next:        append([]string(nil), g.Successors(id)...),
			Cases:       node.Cases,
			DefaultCase: node.DefaultCase,
			Meta:        node.Meta,
		}

		if node.Executor != nil {
			nd.Executor = node.Executor.Name()
		}
		if node.Loop != nil {
			nd.Loop = &LoopDefinition{MaxTurns: node.Loop.MaxTurns}
		}
		if node.SubGraph != nil {
			nd.SubGraph = DefinitionOf(NewGraphWorkflow(node.ID, "", node.SubGraph))
		}
		if node.Request != nil {
			nd.Request = &RequestDefinition{
				Prompt:  node.Request.Prompt,
				Kind:    node.Request.Kind,
				Options: node.Request.Options,
				Timeout: node.Request.Timeout,
			}
		}

		def.Nodes = append(def.Nodes, nd)
	}

	return def
}

// MarshalYAML serializes a definition to YAML.
func (d *Definition) MarshalYAMLBytes() ([]byte, error) {
	return yaml.Marshal(d)
}

// MarshalJSONBytes serializes a definition to indented JSON.
func (d *Definition) MarshalJSONBytes() ([]byte, error) {
	return json.MarshalIndent(d, "", "  ")
}

// ParseDefinitionYAML parses a YAML definition.
func ParseDefinitionYAML(data []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to parse workflow definition: %w", err)
	}
	return &def, nil
}

// ParseDefinitionJSON parses a JSON definition.
func ParseDefinitionJSON(data []byte) (*Definition, error) {
	var def Definition
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to parse workflow definition: %w", err)
	}
	return &def, nil
}

// LoadDefinition reads a YAML definition from disk.
func LoadDefinition(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow definition: %w", err)
	}
	return ParseDefinitionYAML(data)
}

// SaveDefinition writes a YAML definition to disk.
func SaveDefinition(def *Definition, path string) error {
	data, err := def.MarshalYAMLBytes()
	if err != nil {
		return fmt.Errorf("failed to serialize workflow definition: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
