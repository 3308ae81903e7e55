//go:generate mockgen -destination transportmock/bus.go -package transportmock . Bus

// Package transport is the action bus between the management client and a
// switch endpoint. It frames MCTP messages over TCP, correlates responses to
// requests by message tag, enforces per-attempt timeouts with retries, and
// owns the pool of message buffers.
package transport

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/xid"

	"github.com/danmuck/cxlctl/internal/protocol/mctp"
)

var (
	ErrTimeout       = errors.New("transport: no response before timeout")
	ErrClosed        = errors.New("transport: connection closed")
	ErrBusy          = errors.New("transport: all message tags in flight")
	ErrPoolExhausted = errors.New("transport: message buffer pool exhausted")
	ErrNotReady      = errors.New("transport: not connected")
)

// Bus submits requests and hands back completed actions.
type Bus interface {
	Submit(ctx context.Context, s Submission) (*Action, error)
	Retire(a *Action)
}

// Submission describes one request to send.
type Submission struct {
	Type    mctp.MessageType
	Payload []byte
	Retries int
	Timeout time.Duration
	// Completed receives the action once it has a response or has failed.
	// Delivery does not block, so the channel should be buffered.
	Completed chan<- *Action
}

// Action correlates one request with its response or failure.
type Action struct {
	ID          xid.ID
	Type        mctp.MessageType
	Tag         uint8
	Retries     int
	Timeout     time.Duration
	SubmittedAt time.Time

	mu          sync.Mutex
	attempts    int
	completedAt time.Time
	req         *Buffer
	rsp         *Buffer
	err         error

	done      chan struct{}
	once      sync.Once
	completed chan<- *Action
}

func newAction(s Submission, req *Buffer) *Action {
	return &Action{
		ID:          xid.New(),
		Type:        s.Type,
		Retries:     s.Retries,
		Timeout:     s.Timeout,
		SubmittedAt: time.Now(),
		req:         req,
		done:        make(chan struct{}),
		completed:   s.Completed,
	}
}

// CompletedAction builds an already completed action around raw request and
// response bytes. It is used to replay captured exchanges through the
// response pipeline.
func CompletedAction(t mctp.MessageType, req, rsp []byte, err error) *Action {
	a := &Action{
		ID:          xid.New(),
		Type:        t,
		SubmittedAt: time.Now(),
		req:         detachedBuffer(req),
		done:        make(chan struct{}),
	}
	if rsp != nil {
		a.rsp = detachedBuffer(rsp)
	}
	a.finish(a.rsp, err)
	return a
}

// Done is closed once the action has completed.
func (a *Action) Done() <-chan struct{} { return a.done }

// Err reports why the action failed, or nil once a response arrived.
func (a *Action) Err() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.err
}

// Request returns the submitted request bytes.
func (a *Action) Request() []byte {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.req == nil {
		return nil
	}
	return a.req.Bytes()
}

// Response returns the response bytes, or nil if none arrived.
func (a *Action) Response() []byte {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.rsp == nil {
		return nil
	}
	return a.rsp.Bytes()
}

func (a *Action) Attempts() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.attempts
}

// Elapsed is the time from submission to completion, or to now if pending.
func (a *Action) Elapsed() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.completedAt.IsZero() {
		return time.Since(a.SubmittedAt)
	}
	return a.completedAt.Sub(a.SubmittedAt)
}

func (a *Action) attempt() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.attempts++
	return a.attempts
}

// finish records the outcome once. It reports false if the action had
// already completed, in which case rsp is not retained.
func (a *Action) finish(rsp *Buffer, err error) bool {
	first := false
	a.once.Do(func() {
		first = true
		a.mu.Lock()
		a.rsp = rsp
		a.err = err
		a.completedAt = time.Now()
		a.mu.Unlock()
		close(a.done)
	})
	return first
}

// release returns both buffers to their pools. It is safe to call twice.
func (a *Action) release() {
	a.mu.Lock()
	req, rsp := a.req, a.rsp
	a.req, a.rsp = nil, nil
	a.mu.Unlock()
	req.Release()
	rsp.Release()
}

// Retired reports whether both buffers have been returned.
func (a *Action) Retired() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.req == nil && a.rsp == nil
}

// ReleaseAction returns the buffers of a to their pools. Buses that keep no
// other per-action state use it as their Retire.
func ReleaseAction(a *Action) {
	if a != nil {
		a.release()
	}
}
