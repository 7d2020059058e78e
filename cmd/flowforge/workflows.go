package main

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/flowforge-ai/flowforge/agent"
	"github.com/flowforge-ai/flowforge/workflow"
)

// builtinWorkflows returns the demo workflows the host serves. One per
// orchestration pattern, all string in, string out.
func builtinWorkflows() map[string]*workflow.GraphWorkflow {
	return map[string]*workflow.GraphWorkflow{
		"chain":    chainWorkflow(),
		"parallel": parallelWorkflow(),
		"router":   routerWorkflow(),
		"refine":   refineWorkflow(),
	}
}

// defaultRegistry backs `flowforge run --definition`: plain text
// executors and selectors a hand-written YAML graph can reference.
func defaultRegistry() *workflow.Registry {
	text := func(name string, fn func(string) string) workflow.Executor {
		return agent.NewExecutor(agent.NewTransformAgent(name, fn))
	}
	return workflow.NewRegistry().
		RegisterExecutor("echo", text("echo", func(s string) string { return s })).
		RegisterExecutor("uppercase", text("uppercase", strings.ToUpper)).
		RegisterExecutor("lowercase", text("lowercase", strings.ToLower)).
		RegisterExecutor("reverse", text("reverse", func(s string) string {
			runes := []rune(s)
			for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
				runes[i], runes[j] = runes[j], runes[i]
			}
			return string(runes)
		})).
		RegisterExecutor("trim", text("trim", strings.TrimSpace)).
		RegisterSelector("non-empty", workflow.NewSelector(func(ctx context.Context, input any) (string, error) {
			if s, _ := input.(string); strings.TrimSpace(s) != "" {
				return "yes", nil
			}
			return "no", nil
		}))
}

func workflowNames(workflows map[string]*workflow.GraphWorkflow) []string {
	names := make([]string, 0, len(workflows))
	for name := range workflows {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// chainWorkflow runs outline -> draft -> edit sequentially.
func chainWorkflow() *workflow.GraphWorkflow {
	outline := agent.NewExecutor(agent.NewTransformAgent("outliner", func(topic string) string {
		return "outline: " + topic
	}))
	draft := agent.NewExecutor(agent.NewTransformAgent("drafter", func(outline string) string {
		return "draft of [" + outline + "]"
	}))
	edit := agent.NewExecutor(agent.NewTransformAgent("editor", func(draft string) string {
		return strings.TrimSpace(draft) + " (edited)"
	}))

	wf, err := workflow.NewWorkflowBuilder("chain").
		WithDescription("outline, draft, and edit a piece of text in sequence").
		AddExecutor("outline", outline).
		AddExecutor("draft", draft).
		AddExecutor("edit", edit).
		Chain("outline", "draft", "edit").
		SetEntry("outline").
		Build()
	if err != nil {
		panic(fmt.Sprintf("chain workflow: %v", err))
	}
	return wf
}

// parallelWorkflow fans one prompt out to three analysts and merges
// their takes into a report.
func parallelWorkflow() *workflow.GraphWorkflow {
	analyst := func(role string) workflow.Executor {
		return agent.NewExecutor(agent.NewTransformAgent(role, func(prompt string) string {
			return fmt.Sprintf("%s take on %q", role, prompt)
		}))
	}

	merge := workflow.NewAggregator(func(ctx context.Context, results []workflow.BranchResult) (any, error) {
		lines := make([]string, 0, len(results))
		for _, res := range results {
			lines = append(lines, "- "+fmt.Sprint(res.Output))
		}
		return "report:\n" + strings.Join(lines, "\n"), nil
	})

	wf, err := workflow.NewWorkflowBuilder("parallel").
		WithDescription("three analysts review the input concurrently, one report comes back").
		AddNode("spread", workflow.KindFanOut).WithAggregator(merge).Done().
		AddExecutor("risk", analyst("risk")).
		AddExecutor("cost", analyst("cost")).
		AddExecutor("legal", analyst("legal")).
		AddEdge("spread", "risk").
		AddEdge("spread", "cost").
		AddEdge("spread", "legal").
		SetEntry("spread").
		Build()
	if err != nil {
		panic(fmt.Sprintf("parallel workflow: %v", err))
	}
	return wf
}

// routerWorkflow sends urgent messages to an escalation path and the
// rest to a queue.
func routerWorkflow() *workflow.GraphWorkflow {
	selector := workflow.NewSelector(func(ctx context.Context, input any) (string, error) {
		text, ok := input.(string)
		if !ok {
			return "", fmt.Errorf("router expects string input, got %T", input)
		}
		if strings.Contains(strings.ToLower(text), "urgent") {
			return "urgent", nil
		}
		return "routine", nil
	})

	escalate := agent.NewExecutor(agent.NewTransformAgent("escalator", func(m string) string {
		return "ESCALATED: " + m
	}))
	queue := agent.NewExecutor(agent.NewTransformAgent("queuer", func(m string) string {
		return "queued: " + m
	}))

	wf, err := workflow.NewWorkflowBuilder("router").
		WithDescription("route messages by urgency").
		AddNode("route", workflow.KindSwitch).
		WithSelector(selector).
		WithCase("urgent", "escalate").
		WithCase("routine", "queue").
		Done().
		AddExecutor("escalate", escalate).
		AddExecutor("queue", queue).
		SetEntry("route").
		Build()
	if err != nil {
		panic(fmt.Sprintf("router workflow: %v", err))
	}
	return wf
}

// refineWorkflow revises the input until a reviewer approves or the
// turn budget runs out.
func refineWorkflow() *workflow.GraphWorkflow {
	writer := agent.NewTransformAgent("writer", func(draft string) string {
		return strings.TrimSuffix(draft, ".") + ", refined."
	})
	critic := agent.NewReviewAgent("critic",
		func(draft string) bool { return strings.Count(draft, "refined") >= 2 },
		func(draft string) string { return "needs another pass" },
	)

	body := workflow.NewStringExecutor("revise", func(ctx context.Context, draft string) (string, error) {
		revised, err := writer.Respond(ctx, draft)
		if err != nil {
			return "", err
		}
		verdict, err := critic.Respond(ctx, revised)
		if err != nil {
			return "", err
		}
		if agent.ParseVerdict(verdict).Approved {
			return revised + " [APPROVED]", nil
		}
		return revised, nil
	})

	wf, err := workflow.NewWorkflowBuilder("refine").
		WithDescription("writer/critic loop with a bounded turn budget").
		AddNode("loop", workflow.KindLoop).
		WithExecutor(body).
		WithLoop(workflow.LoopSpec{
			MaxTurns: 5,
			Exit: func(ctx context.Context, turn int, output any) (bool, error) {
				text, _ := output.(string)
				return strings.HasSuffix(text, "[APPROVED]"), nil
			},
		}).
		Done().
		SetEntry("loop").
		Build()
	if err != nil {
		panic(fmt.Sprintf("refine workflow: %v", err))
	}
	return wf
}
