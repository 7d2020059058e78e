// Package agent provides the message-based agents the tutorial workflows
// orchestrate. Agents exchange plain strings, so demos stay deterministic
// and runnable without any model backend.
package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Agent turns an incoming message into a reply.
type Agent interface {
	Respond(ctx context.Context, message string) (string, error)
	Name() string
}

// ScriptedAgent replies from a fixed script, one line per call, cycling
// back to the start when the script runs out.
type ScriptedAgent struct {
	name   string
	script []string

	mu   sync.Mutex
	next int
}

// NewScriptedAgent creates an agent that replays the given lines.
func NewScriptedAgent(name string, script ...string) *ScriptedAgent {
	return &ScriptedAgent{name: name, script: script}
}

func (a *ScriptedAgent) Name() string { return a.name }

func (a *ScriptedAgent) Respond(ctx context.Context, message string) (string, error) {
	if len(a.script) == 0 {
		return "", fmt.Errorf("agent %s has an empty script", a.name)
	}

	a.mu.Lock()
	line := a.script[a.next%len(a.script)]
	a.next++
	a.mu.Unlock()

	return line, nil
}

// TransformAgent derives its reply from the incoming message with a
// transform function.
type TransformAgent struct {
	name      string
	transform func(message string) string
}

// NewTransformAgent creates an agent applying fn to every message.
func NewTransformAgent(name string, fn func(message string) string) *TransformAgent {
	return &TransformAgent{name: name, transform: fn}
}

func (a *TransformAgent) Name() string { return a.name }

func (a *TransformAgent) Respond(ctx context.Context, message string) (string, error) {
	return a.transform(message), nil
}

// ReviewVerdict is a reviewer's structured reply.
type ReviewVerdict struct {
	Approved bool
	Feedback string
}

// String renders the verdict the way reviewer agents speak it.
func (v ReviewVerdict) String() string {
	if v.Approved {
		return "APPROVED"
	}
	return "REVISE: " + v.Feedback
}

// ParseVerdict reads a reviewer reply back into a verdict.
func ParseVerdict(reply string) ReviewVerdict {
	if strings.HasPrefix(reply, "APPROVED") {
		return ReviewVerdict{Approved: true}
	}
	return ReviewVerdict{Feedback: strings.TrimPrefix(reply, "REVISE: ")}
}

// ReviewAgent judges a message against a predicate, answering APPROVED or
// REVISE with feedback. It is the critic half of a writer/critic loop.
type ReviewAgent struct {
	name     string
	approve  func(message string) bool
	feedback func(message string) string
}

// NewReviewAgent creates a reviewer. feedback may be nil; a generic note is
// used then.
func NewReviewAgent(name string, approve func(message string) bool, feedback func(message string) string) *ReviewAgent {
	return &ReviewAgent{name: name, approve: approve, feedback: feedback}
}

func (a *ReviewAgent) Name() string { return a.name }

func (a *ReviewAgent) Respond(ctx context.Context, message string) (string, error) {
	if a.approve(message) {
		return ReviewVerdict{Approved: true}.String(), nil
	}

	note := "needs another pass"
	if a.feedback != nil {
		note = a.feedback(message)
	}
	return ReviewVerdict{Feedback: note}.String(), nil
}
