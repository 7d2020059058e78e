package workflow

import (
	"context"
	"sync"
	"time"
)

// RunEventType identifies what happened during a workflow run.
type RunEventType string

const (
	EventRunStarted     RunEventType = "run_started"
	EventRunCompleted   RunEventType = "run_completed"
	EventRunFailed      RunEventType = "run_failed"
	EventNodeStarted    RunEventType = "node_started"
	EventNodeCompleted  RunEventType = "node_completed"
	EventNodeFailed     RunEventType = "node_failed"
	EventNodeSkipped    RunEventType = "node_skipped"
	EventNodeRetried    RunEventType = "node_retried"
	EventLoopTurn       RunEventType = "loop_turn"
	EventCaseSelected   RunEventType = "case_selected"
	EventCheckpointed   RunEventType = "checkpointed"
	EventInputRequested RunEventType = "input_requested"
	EventInputReceived  RunEventType = "input_received"
)

// RunEvent is a single observation emitted while a workflow runs.
type RunEvent struct {
	Type      RunEventType   `json:"type"`
	RunID     string         `json:"run_id"`
	Workflow  string         `json:"workflow"`
	NodeID    string         `json:"node_id,omitempty"`
	Kind      NodeKind       `json:"kind,omitempty"`
	Output    any            `json:"output,omitempty"`
	Error     string         `json:"error,omitempty"`
	Duration  time.Duration  `json:"duration,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Meta      map[string]any `json:"meta,omitempty"`
}

// EventSink receives run events. Implementations must be safe for
// concurrent use; fan-out branches emit from multiple goroutines.
type EventSink interface {
	OnEvent(event RunEvent)
}

// EventSinkFunc is the function form of an EventSink.
type EventSinkFunc func(event RunEvent)

func (f EventSinkFunc) OnEvent(event RunEvent) {
	f(event)
}

// ChannelSink buffers events on a channel, for consumers that stream a
// run's progress (a websocket session, a demo printing as it goes).
type ChannelSink struct {
	ch        chan RunEvent
	closeOnce sync.Once
}

// NewChannelSink creates a sink with the given buffer size.
func NewChannelSink(buffer int) *ChannelSink {
	return &ChannelSink{ch: make(chan RunEvent, buffer)}
}

// OnEvent delivers the event, dropping it if the buffer is full. A slow
// consumer must not stall the run.
func (s *ChannelSink) OnEvent(event RunEvent) {
	select {
	case s.ch <- event:
	default:
	}
}

// Events returns the receive side of the sink.
func (s *ChannelSink) Events() <-chan RunEvent {
	return s.ch
}

// Close closes the event channel. Safe to call more than once.
func (s *ChannelSink) Close() {
	s.closeOnce.Do(func() { close(s.ch) })
}

// MultiSink fans one event out to several sinks.
type MultiSink struct {
	sinks []EventSink
}

// NewMultiSink combines sinks into one.
func NewMultiSink(sinks ...EventSink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

func (m *MultiSink) OnEvent(event RunEvent) {
	for _, s := range m.sinks {
		s.OnEvent(event)
	}
}

type eventSinkKey struct{}

// WithEventSink attaches an event sink to the context. Runners emit their
// events to the attached sink; with no sink attached, emission is a no-op.
func WithEventSink(ctx context.Context, sink EventSink) context.Context {
	return context.WithValue(ctx, eventSinkKey{}, sink)
}

// EventSinkFromContext retrieves the attached sink, if any.
func EventSinkFromContext(ctx context.Context) (EventSink, bool) {
	sink, ok := ctx.Value(eventSinkKey{}).(EventSink)
	return sink, ok
}

func emitEvent(ctx context.Context, event RunEvent) {
	if sink, ok := EventSinkFromContext(ctx); ok {
		if event.Timestamp.IsZero() {
			event.Timestamp = time.Now()
		}
		sink.OnEvent(event)
	}
}
