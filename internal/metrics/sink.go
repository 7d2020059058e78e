package metrics

import (
	"github.com/flowforge-ai/flowforge/workflow"
)

// Sink feeds run events into the collector, so any run observed through
// workflow.WithEventSink updates the Prometheus metrics.
type Sink struct {
	collector *Collector
}

// NewSink wraps a collector as a workflow event sink.
func NewSink(collector *Collector) *Sink {
	return &Sink{collector: collector}
}

func (s *Sink) OnEvent(event workflow.RunEvent) {
	switch event.Type {
	case workflow.EventRunCompleted:
		s.collector.RecordRun(event.Workflow, "completed", event.Duration)
	case workflow.EventRunFailed:
		s.collector.RecordRun(event.Workflow, "failed", event.Duration)
	case workflow.EventNodeCompleted:
		s.collector.RecordNode(event.Workflow, string(event.Kind), "completed", event.Duration)
	case workflow.EventNodeFailed:
		s.collector.RecordNode(event.Workflow, string(event.Kind), "failed", event.Duration)
	case workflow.EventCheckpointed:
		s.collector.RecordCheckpoint(event.Workflow)
	case workflow.EventLoopTurn:
		s.collector.RecordLoopTurn(event.Workflow)
	case workflow.EventInputRequested:
		s.collector.RequestOpened()
	case workflow.EventInputReceived:
		s.collector.RequestClosed()
	}
}

var _ workflow.EventSink = (*Sink)(nil)
