// Package client runs operations against one switch: it submits built
// requests, waits for their completion, and hands the responses to the
// dispatcher.
package client

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/danmuck/cxlctl/internal/action"
	"github.com/danmuck/cxlctl/internal/command"
	"github.com/danmuck/cxlctl/internal/dispatch"
	"github.com/danmuck/cxlctl/internal/protocol/fmapi"
	"github.com/danmuck/cxlctl/internal/render"
	"github.com/danmuck/cxlctl/internal/switchstate"
	"github.com/danmuck/cxlctl/internal/transport"
)

// Session owns the cache of one switch and the path from an operation to
// its dispatched response.
type Session struct {
	sub   *action.Submitter
	disp  *dispatch.Dispatcher
	state *switchstate.State
	out   io.Writer
	log   zerolog.Logger
}

func NewSession(bus transport.Bus, state *switchstate.State, out io.Writer, cfg action.Config) *Session {
	if state == nil {
		state = switchstate.New()
	}
	if out == nil {
		out = io.Discard
	}
	return &Session{
		sub:   action.New(bus, cfg),
		disp:  dispatch.New(bus, state, out),
		state: state,
		out:   out,
		log:   log.With().Str("component", "session").Logger(),
	}
}

func (s *Session) State() *switchstate.State { return s.state }

// Execute builds and runs one operation, printing its response and applying
// it to the cache. The returned error is the one that decides the exit
// status; a command still running in the background is not an error.
func (s *Session) Execute(ctx context.Context, op command.Operation, p command.Params) (*dispatch.Result, error) {
	if op.Local() {
		s.List(s.out)
		return nil, nil
	}
	req, err := command.Build(op, p)
	if err != nil {
		return nil, err
	}
	res, err := s.Run(ctx, req, dispatch.PrintAndApply)
	if err != nil {
		return nil, err
	}
	return res, res.Failure()
}

// Run submits req and dispatches its response once the action completes.
// An action runs until it has a response, fails, or times out; ctx only
// bounds submission.
func (s *Session) Run(ctx context.Context, req command.Request, mode dispatch.Mode) (*dispatch.Result, error) {
	done := make(chan *transport.Action, 1)
	p, err := s.sub.Submit(ctx, req, done)
	if err != nil {
		return nil, err
	}
	select {
	case <-done:
	case <-p.Action.Done():
	}
	res := s.disp.Handle(p, mode)
	s.log.Debug().
		Str("action", p.Action.ID.String()).
		Str("family", res.Family.String()).
		Str("opcode", res.Opcode).
		Uint16("rc", res.ReturnCode).
		Dur("elapsed", p.Action.Elapsed()).
		Msg("action handled")
	return res, nil
}

// List prints the cached port table without contacting the switch.
func (s *Session) List(w io.Writer) {
	var ports []fmapi.PortInfo
	s.state.Read(func(sw *switchstate.Switch) {
		n := int(sw.NumPorts)
		if n == 0 || n > switchstate.MaxPorts {
			n = switchstate.MaxPorts
		}
		ports = make([]fmapi.PortInfo, n)
		for i := range ports {
			ports[i] = sw.Ports[i].PortInfo
		}
	})
	render.Ports(w, ports)
}

// StepError names an initialization step that failed.
type StepError struct {
	Op   command.Operation
	PPID int
	Err  error
}

func (e *StepError) Error() string {
	if e.PPID >= 0 {
		return fmt.Sprintf("client: init %s (ppid %d): %v", e.Op, e.PPID, e.Err)
	}
	return fmt.Sprintf("client: init %s: %v", e.Op, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// cacheErr returns the first cache rejection in res or its tunnel.
func cacheErr(res *dispatch.Result) error {
	for r := res; r != nil; r = r.Tunnel {
		if r.CacheErr != nil {
			return r.CacheErr
		}
	}
	return nil
}
