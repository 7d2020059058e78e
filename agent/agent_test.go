package agent

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScriptedAgent_CyclesThroughScript(t *testing.T) {
	a := NewScriptedAgent("bot", "one", "two")

	ctx := context.Background()
	for _, want := range []string{"one", "two", "one"} {
		got, err := a.Respond(ctx, "ignored")
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestScriptedAgent_EmptyScript(t *testing.T) {
	a := NewScriptedAgent("mute")

	_, err := a.Respond(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty script")
}

func TestTransformAgent(t *testing.T) {
	a := NewTransformAgent("upper", strings.ToUpper)

	got, err := a.Respond(context.Background(), "quiet")
	require.NoError(t, err)
	assert.Equal(t, "QUIET", got)
}

func TestReviewAgent_Approves(t *testing.T) {
	a := NewReviewAgent("critic",
		func(m string) bool { return strings.Contains(m, "polished") },
		func(m string) string { return "add polish" },
	)

	reply, err := a.Respond(context.Background(), "a polished draft")
	require.NoError(t, err)
	assert.Equal(t, "APPROVED", reply)
	assert.True(t, ParseVerdict(reply).Approved)
}

func TestReviewAgent_RequestsRevision(t *testing.T) {
	a := NewReviewAgent("critic",
		func(m string) bool { return false },
		func(m string) string { return "too short" },
	)

	reply, err := a.Respond(context.Background(), "draft")
	require.NoError(t, err)
	assert.Equal(t, "REVISE: too short", reply)

	verdict := ParseVerdict(reply)
	assert.False(t, verdict.Approved)
	assert.Equal(t, "too short", verdict.Feedback)
}

func TestReviewAgent_DefaultFeedback(t *testing.T) {
	a := NewReviewAgent("critic", func(m string) bool { return false }, nil)

	reply, err := a.Respond(context.Background(), "draft")
	require.NoError(t, err)
	assert.Equal(t, "REVISE: needs another pass", reply)
}
