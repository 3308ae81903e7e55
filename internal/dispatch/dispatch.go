// Package dispatch validates completed actions, decodes their responses
// against the original request, and routes them to printers and the switch
// state cache.
package dispatch

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/danmuck/cxlctl/internal/action"
	"github.com/danmuck/cxlctl/internal/observability"
	"github.com/danmuck/cxlctl/internal/protocol/control"
	"github.com/danmuck/cxlctl/internal/protocol/emapi"
	"github.com/danmuck/cxlctl/internal/protocol/fmapi"
	"github.com/danmuck/cxlctl/internal/protocol/mctp"
	"github.com/danmuck/cxlctl/internal/switchstate"
	"github.com/danmuck/cxlctl/internal/transport"
)

// Retirer returns the buffers of a handled action to the bus.
type Retirer interface {
	Retire(a *transport.Action)
}

// Mode selects what a handled response is used for.
type Mode struct {
	Print bool
	Apply bool
}

var (
	PrintOnly     = Mode{Print: true}
	ApplyOnly     = Mode{Apply: true}
	PrintAndApply = Mode{Print: true, Apply: true}
)

// Result is the outcome of one response. Err holds the validation or remote
// failure of this message only; a tunneled inner message reports on Tunnel.
type Result struct {
	Family     mctp.MessageType
	Opcode     string
	ReturnCode uint16
	InProgress bool
	Ignored    bool
	Object     any
	Err        error
	CacheErr   error
	Tunnel     *Result
}

// Failure returns the error that decides the caller's exit status. A failure
// inside a tunnel counts, a tunnel type mismatch does not.
func (r *Result) Failure() error {
	if r.Err != nil {
		return r.Err
	}
	if r.Tunnel != nil && !errors.Is(r.Tunnel.Err, ErrTunnelTypeMismatch) {
		return r.Tunnel.Failure()
	}
	return nil
}

// Running reports whether the innermost handled command is still running on
// the switch.
func (r *Result) Running() bool {
	if r.Tunnel != nil && r.Tunnel.Err == nil {
		return r.Tunnel.Running()
	}
	return r.InProgress
}

// Dispatcher handles completed actions one at a time. It holds the cache
// lock only while applying a decoded response.
type Dispatcher struct {
	bus   Retirer
	state *switchstate.State
	out   io.Writer
	log   zerolog.Logger
}

func New(bus Retirer, state *switchstate.State, out io.Writer) *Dispatcher {
	if out == nil {
		out = io.Discard
	}
	return &Dispatcher{
		bus:   bus,
		state: state,
		out:   out,
		log:   log.With().Str("component", "dispatch").Logger(),
	}
}

// Handle validates and routes the response of p. The action is retired on
// every path.
func (d *Dispatcher) Handle(p *action.Pending, mode Mode) *Result {
	defer d.bus.Retire(p.Action)

	family := p.Request.MessageType()
	res := &Result{Family: family}

	if err := p.Action.Err(); err != nil {
		if errors.Is(err, transport.ErrTimeout) {
			res.Err = fmt.Errorf("%w: %s after %d attempts", ErrTimeout, family, p.Action.Attempts())
			d.outcome(res, "timeout")
		} else {
			res.Err = err
			d.outcome(res, "failed")
		}
		return res
	}

	b := bytes.Clone(p.Action.Response())
	switch req := p.Request.(type) {
	case *fmapi.Message:
		d.handleFM(req, b, mode, res, nil)
	case *emapi.Message:
		d.handleEM(req, b, mode, res)
	case *control.Message:
		d.handleControl(req, b, mode, res)
	default:
		res.Ignored = true
		d.log.Warn().Str("family", family.String()).Msgf("no handler for %T", p.Request)
		d.outcome(res, "ignored")
	}
	return res
}

// tunnelTarget is the physical port a tunneled component command was sent
// to. Cache updates for logical device state are keyed by it.
type tunnelTarget struct {
	ppid uint8
}

func (d *Dispatcher) handleFM(req *fmapi.Message, b []byte, mode Mode, res *Result, via *tunnelTarget) {
	op := req.Header.Opcode
	res.Opcode = op.String()

	h, err := fmapi.DecodeHeader(b)
	if err != nil {
		d.malformed(res, ErrMalformedHeader, err)
		return
	}
	if h.Category != fmapi.CategoryResponse {
		res.Err = fmt.Errorf("%w: %s category %s", ErrUnexpectedCategory, op, h.Category)
		d.log.Warn().Str("opcode", op.String()).Str("category", h.Category.String()).Msg("discarding non-response message")
		d.outcome(res, "unexpected")
		return
	}
	res.ReturnCode = uint16(h.ReturnCode)
	if !h.ReturnCode.Succeeded() {
		d.remote(res, uint16(h.ReturnCode), h.ReturnCode.String(), mode)
		return
	}
	res.InProgress = h.ReturnCode == fmapi.RCBackgroundOpStarted
	if h.Opcode != op {
		d.log.Warn().
			Str("opcode", op.String()).
			Str("response_opcode", h.Opcode.String()).
			Msg("response opcode differs from request, decoding as request opcode")
	}

	entry, ok := fmHandlers[op]
	kind, known := op.ResponseKind()
	if !ok || !known {
		d.ignore(res)
		return
	}
	payload, err := fmapi.Body(h, b)
	if err != nil {
		d.malformed(res, ErrMalformedPayload, err)
		return
	}
	obj, err := fmapi.Decode(payload, kind, req.Obj)
	if err != nil {
		d.malformed(res, ErrMalformedPayload, err)
		return
	}
	res.Object = obj

	c := &fmCall{req: req.Obj, rsp: obj, hdr: h, via: via}
	if mode.Apply && entry.apply != nil {
		res.CacheErr = d.state.Update(func(sw *switchstate.Switch) error {
			return entry.apply(sw, c)
		})
		if res.CacheErr != nil {
			d.log.Warn().Err(res.CacheErr).Str("opcode", op.String()).Msg("cache update rejected")
		}
	}
	if mode.Print && entry.print != nil {
		entry.print(d.out, c)
	}
	d.outcome(res, successOutcome(res))

	if op == fmapi.OpMPCTMC {
		res.Tunnel = d.unwrap(c, mode)
	}
}

// unwrap runs the inner response of a tunnel management command through the
// same pipeline, decoding it against the inner request.
func (d *Dispatcher) unwrap(c *fmCall, mode Mode) *Result {
	treq := c.req.(*fmapi.MPCTMCReq)
	trsp := c.rsp.(*fmapi.MPCTMCRsp)
	inner := &Result{Family: trsp.Type}
	if trsp.Type != mctp.TypeCXLCCI {
		inner.Err = &TunnelTypeMismatchError{Got: trsp.Type, Want: mctp.TypeCXLCCI}
		d.log.Warn().
			Uint8("ppid", treq.PPID).
			Str("family", trsp.Type.String()).
			Msg("tunneled response has wrong message type")
		if mode.Print {
			fmt.Fprintf(d.out, "Error: Tunneled command had incorrect MCTP Message Type: 0x%02x\n", uint8(trsp.Type))
		}
		d.outcome(inner, "tunnel_mismatch")
		return inner
	}
	d.handleFM(treq.Inner, trsp.Message, mode, inner, &tunnelTarget{ppid: treq.PPID})
	return inner
}

func (d *Dispatcher) handleEM(req *emapi.Message, b []byte, mode Mode, res *Result) {
	op := req.Obj.Opcode()
	res.Opcode = op.String()

	h, err := emapi.DecodeHeader(b)
	if err != nil {
		d.malformed(res, ErrMalformedHeader, err)
		return
	}
	if h.Type != emapi.TypeResponse {
		res.Err = fmt.Errorf("%w: %s type %s", ErrUnexpectedCategory, op, h.Type)
		d.log.Warn().Str("opcode", op.String()).Str("category", h.Type.String()).Msg("discarding non-response message")
		d.outcome(res, "unexpected")
		return
	}
	res.ReturnCode = uint16(h.ReturnCode)
	if h.ReturnCode != emapi.RCSuccess && h.ReturnCode != emapi.RCBackgroundOpStarted {
		d.remote(res, uint16(h.ReturnCode), h.ReturnCode.String(), mode)
		return
	}
	res.InProgress = h.ReturnCode == emapi.RCBackgroundOpStarted
	if h.Opcode != op {
		d.log.Warn().Str("opcode", op.String()).Str("response_opcode", h.Opcode.String()).Msg("response opcode differs from request")
	}

	kind, ok := op.ResponseKind()
	show := emHandlers[op]
	if !ok || op == emapi.OpEvent {
		d.ignore(res)
		return
	}
	payload, err := emapi.Body(h, b)
	if err != nil {
		d.malformed(res, ErrMalformedPayload, err)
		return
	}
	obj, err := emapi.Decode(h, payload, kind)
	if err != nil {
		d.malformed(res, ErrMalformedPayload, err)
		return
	}
	res.Object = obj
	if mode.Print && show != nil {
		show(d.out, obj)
	}
	d.outcome(res, successOutcome(res))
}

func (d *Dispatcher) handleControl(req *control.Message, b []byte, mode Mode, res *Result) {
	cmd := req.Obj.Command()
	res.Opcode = cmd.String()

	h, err := control.DecodeHeader(b)
	if err != nil {
		d.malformed(res, ErrMalformedHeader, err)
		return
	}
	if h.Request {
		res.Err = fmt.Errorf("%w: %s request", ErrUnexpectedCategory, cmd)
		d.log.Warn().Str("opcode", cmd.String()).Msg("discarding control request")
		d.outcome(res, "unexpected")
		return
	}
	if h.Command != cmd {
		d.log.Warn().Str("opcode", cmd.String()).Str("response_opcode", h.Command.String()).Msg("response command differs from request")
	}

	kind, ok := cmd.ResponseKind()
	if !ok {
		d.ignore(res)
		return
	}
	obj, err := control.Decode(b[control.HeaderLen:], kind)
	if err != nil {
		d.malformed(res, ErrMalformedPayload, err)
		return
	}
	res.Object = obj
	if r, ok := obj.(control.Response); ok && r.Completion() != control.CCSuccess {
		cc := r.Completion()
		res.ReturnCode = uint16(cc)
		res.Err = &RemoteError{Family: res.Family, Code: uint16(cc), Name: cc.String()}
		observability.RecordRemoteError(res.Family.String(), uint16(cc))
		d.outcome(res, "remote_error")
		if mode.Print {
			fmt.Fprintf(d.out, "Error: MCTP Control Command %s Failed: %s\n", cmd, cc)
		}
		return
	}
	if mode.Print {
		if show := controlHandlers[cmd]; show != nil {
			show(d.out, obj)
		}
	}
	d.outcome(res, successOutcome(res))
}

func (d *Dispatcher) malformed(res *Result, kind error, err error) {
	res.Err = fmt.Errorf("%w: %s: %w", kind, res.Opcode, err)
	d.log.Warn().Err(err).Str("family", res.Family.String()).Str("opcode", res.Opcode).Msg("malformed response")
	d.outcome(res, "malformed")
}

func (d *Dispatcher) remote(res *Result, code uint16, name string, mode Mode) {
	res.Err = &RemoteError{Family: res.Family, Code: code, Name: name}
	observability.RecordRemoteError(res.Family.String(), code)
	d.log.Info().Str("opcode", res.Opcode).Uint16("rc", code).Msg(name)
	d.outcome(res, "remote_error")
	if mode.Print {
		fmt.Fprintf(d.out, "Error: %s\n", name)
	}
}

func (d *Dispatcher) ignore(res *Result) {
	res.Ignored = true
	d.log.Debug().Str("family", res.Family.String()).Str("opcode", res.Opcode).Msg("no handler for opcode")
	d.outcome(res, "ignored")
}

func (d *Dispatcher) outcome(res *Result, outcome string) {
	observability.RecordResponse(res.Family.String(), outcome)
}

func successOutcome(res *Result) string {
	if res.InProgress {
		return "in_progress"
	}
	return "success"
}
