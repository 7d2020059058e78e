package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InputRequest is a paused workflow's demand for external input. It carries
// the current value flowing through the graph so responders can see what
// they are being asked about.
type InputRequest struct {
	ID        string         `json:"id"`
	RunID     string         `json:"run_id"`
	NodeID    string         `json:"node_id"`
	Prompt    string         `json:"prompt"`
	Kind      string         `json:"kind,omitempty"`
	Options   []string       `json:"options,omitempty"`
	Value     any            `json:"value,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	Meta      map[string]any `json:"meta,omitempty"`
}

// RequestPort bridges a running workflow and whatever supplies external
// input: a human at a terminal, an HTTP handler, or a scripted responder in
// a demo.
type RequestPort interface {
	// Request blocks until a response arrives, the timeout elapses, or the
	// context is cancelled. A zero timeout means wait indefinitely.
	Request(ctx context.Context, req InputRequest, timeout time.Duration) (any, error)
}

type pendingRequest struct {
	req   InputRequest
	reply chan any
}

// ChannelPort is a channel-backed RequestPort. The workflow side calls
// Request; the responder side drains Pending and calls Respond.
type ChannelPort struct {
	mu      sync.Mutex
	pending chan pendingRequest
	open    map[string]pendingRequest
}

// NewChannelPort creates a port buffering up to size pending requests.
func NewChannelPort(size int) *ChannelPort {
	return &ChannelPort{
		pending: make(chan pendingRequest, size),
		open:    make(map[string]pendingRequest),
	}
}

// Request publishes the request and blocks for its response.
func (p *ChannelPort) Request(ctx context.Context, req InputRequest, timeout time.Duration) (any, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now()
	}

	pr := pendingRequest{req: req, reply: make(chan any, 1)}

	p.mu.Lock()
	p.open[req.ID] = pr
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		delete(p.open, req.ID)
		p.mu.Unlock()
	}()

	select {
	case p.pending <- pr:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case answer := <-pr.reply:
		return answer, nil
	case <-timeoutCh:
		return nil, fmt.Errorf("input request %s timed out after %s", req.ID, timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Pending returns the stream of requests awaiting a response. The stream
// closes when the context is cancelled, which also stops the forwarding
// goroutine.
func (p *ChannelPort) Pending(ctx context.Context) <-chan InputRequest {
	out := make(chan InputRequest)
	go func() {
		defer close(out)
		for {
			select {
			case pr := <-p.pending:
				select {
				case out <- pr.req:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Next blocks until a request is pending or the context is cancelled.
func (p *ChannelPort) Next(ctx context.Context) (InputRequest, error) {
	select {
	case pr := <-p.pending:
		return pr.req, nil
	case <-ctx.Done():
		return InputRequest{}, ctx.Err()
	}
}

// Respond delivers the answer for a pending request by ID.
func (p *ChannelPort) Respond(requestID string, answer any) error {
	p.mu.Lock()
	pr, ok := p.open[requestID]
	p.mu.Unlock()

	if !ok {
		return fmt.Errorf("no pending request with ID %s", requestID)
	}

	select {
	case pr.reply <- answer:
		return nil
	default:
		return fmt.Errorf("request %s already answered", requestID)
	}
}

// AutoResponder answers every request with a function, for tests and demos
// where no human sits at the other end of the port.
type AutoResponder struct {
	fn func(req InputRequest) (any, error)
}

// NewAutoResponder creates a responder backed by fn.
func NewAutoResponder(fn func(req InputRequest) (any, error)) *AutoResponder {
	return &AutoResponder{fn: fn}
}

func (a *AutoResponder) Request(ctx context.Context, req InputRequest, timeout time.Duration) (any, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	return a.fn(req)
}

// Serve drains a ChannelPort with fn until the context is cancelled. It is
// meant to run in its own goroutine alongside the workflow.
func ServePort(ctx context.Context, port *ChannelPort, fn func(req InputRequest) (any, error)) error {
	for {
		req, err := port.Next(ctx)
		if err != nil {
			return err
		}

		answer, err := fn(req)
		if err != nil {
			return fmt.Errorf("responder failed for request %s: %w", req.ID, err)
		}
		if err := port.Respond(req.ID, answer); err != nil {
			return err
		}
	}
}
