package workflow

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRegistry() *Registry {
	return NewRegistry().
		RegisterExecutor("upper", appendExecutor("upper", "-U")).
		RegisterExecutor("lower", appendExecutor("lower", "-L")).
		RegisterSelector("by-length", lengthSelector()).
		RegisterExit("two-turns", func(ctx context.Context, turn int, output any) (bool, error) {
			return turn >= 2, nil
		})
}

const chainYAML = `
name: chain
description: a serialized chain
entry: first
nodes:
  - id: first
    kind: executor
    executor: upper
    next: [second]
  - id: second
    kind: executor
    executor: lower
`

func TestBuildWorkflow_FromYAML(t *testing.T) {
	def, err := ParseDefinitionYAML([]byte(chainYAML))
	require.NoError(t, err)
	assert.Equal(t, "chain", def.Name)
	require.Len(t, def.Nodes, 2)

	wf, err := BuildWorkflow(def, testRegistry())
	require.NoError(t, err)

	out, err := wf.Execute(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, "x-U-L", out)
}

func TestBuildWorkflow_UnknownExecutor(t *testing.T) {
	def := &Definition{
		Name:  "bad",
		Entry: "a",
		Nodes: []NodeDefinition{
			{ID: "a", Kind: "executor", Executor: "ghost"},
		},
	}

	_, err := BuildWorkflow(def, testRegistry())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown executor ghost")
}

func TestBuildWorkflow_SwitchAndLoop(t *testing.T) {
	def := &Definition{
		Name:  "routed",
		Entry: "route",
		Nodes: []NodeDefinition{
			{
				ID:       "route",
				Kind:     "switch",
				Selector: "by-length",
				Cases: map[string][]string{
					"long":  {"refine"},
					"short": {"pad"},
				},
			},
			{
				ID:       "refine",
				Kind:     "loop",
				Executor: "upper",
				Loop:     &LoopDefinition{MaxTurns: 5, Exit: "two-turns"},
			},
			{ID: "pad", Kind: "executor", Executor: "lower"},
		},
	}

	wf, err := BuildWorkflow(def, testRegistry())
	require.NoError(t, err)

	out, err := wf.Execute(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "hi-L", out)

	out, err = wf.Execute(context.Background(), "longer input")
	require.NoError(t, err)
	assert.Equal(t, "longer input-U-U", out)
}

func TestBuildWorkflow_FanOutAggregatorByName(t *testing.T) {
	def := &Definition{
		Name:  "split",
		Entry: "fan",
		Nodes: []NodeDefinition{
			{ID: "fan", Kind: "fanout", Aggregator: "join", Next: []string{"left", "right"}},
			{ID: "left", Kind: "executor", Executor: "upper"},
			{ID: "right", Kind: "executor", Executor: "lower"},
		},
	}

	reg := testRegistry().RegisterAggregator("join",
		NewAggregator(func(ctx context.Context, results []BranchResult) (any, error) {
			parts := make([]string, 0, len(results))
			for _, r := range results {
				parts = append(parts, r.Output.(string))
			}
			return strings.Join(parts, "+"), nil
		}))

	wf, err := BuildWorkflow(def, reg)
	require.NoError(t, err)

	out, err := wf.Execute(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, "x-U+x-L", out)
}

func TestBuildWorkflow_UnknownAggregator(t *testing.T) {
	def := &Definition{
		Name:  "bad",
		Entry: "fan",
		Nodes: []NodeDefinition{
			{ID: "fan", Kind: "fanout", Aggregator: "ghost", Next: []string{"left"}},
			{ID: "left", Kind: "executor", Executor: "upper"},
		},
	}

	_, err := BuildWorkflow(def, testRegistry())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown aggregator ghost")
}

func TestDefinitionOf_RoundTrip(t *testing.T) {
	wf, err := NewWorkflowBuilder("chain").
		WithDescription("round trip").
		AddExecutor("first", appendExecutor("upper", "-U")).
		AddExecutor("second", appendExecutor("lower", "-L")).
		Chain("first", "second").
		SetEntry("first").
		Build()
	require.NoError(t, err)

	def := DefinitionOf(wf)
	assert.Equal(t, "chain", def.Name)
	assert.Equal(t, "first", def.Entry)
	require.Len(t, def.Nodes, 2)

	// Node executor references are the executor names, resolvable through
	// a registry on load.
	reg := NewRegistry().
		RegisterExecutor("upper", appendExecutor("upper", "-U")).
		RegisterExecutor("lower", appendExecutor("lower", "-L"))

	rebuilt, err := BuildWorkflow(def, reg)
	require.NoError(t, err)

	out, err := rebuilt.Execute(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, "x-U-L", out)
}

func TestSaveAndLoadDefinition(t *testing.T) {
	def, err := ParseDefinitionYAML([]byte(chainYAML))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "chain.yaml")
	require.NoError(t, SaveDefinition(def, path))

	loaded, err := LoadDefinition(path)
	require.NoError(t, err)
	assert.Equal(t, def.Name, loaded.Name)
	assert.Equal(t, def.Entry, loaded.Entry)
	assert.Len(t, loaded.Nodes, len(def.Nodes))
}

func TestParseDefinitionJSON(t *testing.T) {
	def, err := ParseDefinitionYAML([]byte(chainYAML))
	require.NoError(t, err)

	data, err := def.MarshalJSONBytes()
	require.NoError(t, err)

	parsed, err := ParseDefinitionJSON(data)
	require.NoError(t, err)
	assert.Equal(t, def.Name, parsed.Name)

	_, err = ParseDefinitionJSON([]byte("{not json"))
	assert.Error(t, err)
}
