// Package action finalizes built requests and submits them to the action
// bus.
package action

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/danmuck/cxlctl/internal/command"
	"github.com/danmuck/cxlctl/internal/protocol/control"
	"github.com/danmuck/cxlctl/internal/protocol/emapi"
	"github.com/danmuck/cxlctl/internal/protocol/fmapi"
	"github.com/danmuck/cxlctl/internal/protocol/mctp"
	"github.com/danmuck/cxlctl/internal/transport"
)

const DefaultTimeout = 10 * time.Second

var ErrSubmitFailed = errors.New("action: submit failed")

// SubmitError reports a request the bus did not accept.
type SubmitError struct {
	Family mctp.MessageType
	Err    error
}

func (e *SubmitError) Error() string {
	return fmt.Sprintf("action: submit %s request: %v", e.Family, e.Err)
}

func (e *SubmitError) Unwrap() []error { return []error{ErrSubmitFailed, e.Err} }

// Config holds the submission policy applied to every request.
type Config struct {
	Retries int
	Timeout time.Duration
}

// Pending pairs a submitted request with the action tracking it.
type Pending struct {
	Request command.Request
	Action  *transport.Action
}

// Submitter fills the family header fields the builder leaves open and
// hands the serialized request to the bus.
type Submitter struct {
	bus      transport.Bus
	cfg      Config
	instance atomic.Uint32
	log      zerolog.Logger
}

func New(bus transport.Bus, cfg Config) *Submitter {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	return &Submitter{
		bus: bus,
		cfg: cfg,
		log: log.With().Str("component", "action").Logger(),
	}
}

// Submit finalizes req and submits it. The completed action is delivered on
// done when done is not nil.
func (s *Submitter) Submit(ctx context.Context, req command.Request, done chan<- *transport.Action) (*Pending, error) {
	family := req.MessageType()
	payload, err := s.Encode(req)
	if err != nil {
		return nil, &SubmitError{Family: family, Err: err}
	}

	a, err := s.bus.Submit(ctx, transport.Submission{
		Type:      family,
		Payload:   payload,
		Retries:   s.cfg.Retries,
		Timeout:   s.cfg.Timeout,
		Completed: done,
	})
	if err != nil {
		s.log.Debug().Err(err).Str("family", family.String()).Msg("submit rejected")
		return nil, &SubmitError{Family: family, Err: err}
	}
	if a == nil {
		return nil, &SubmitError{Family: family, Err: transport.ErrNotReady}
	}

	s.log.Debug().
		Str("action", a.ID.String()).
		Str("family", family.String()).
		Int("len", len(payload)).
		Msg("request submitted")
	return &Pending{Request: req, Action: a}, nil
}

// Encode finalizes the header of req in place and serializes it.
func (s *Submitter) Encode(req command.Request) ([]byte, error) {
	switch m := req.(type) {
	case *fmapi.Message:
		if err := fmapi.Finalize(m); err != nil {
			return nil, err
		}
		return fmapi.EncodeMessage(m)
	case *emapi.Message:
		m.Header.Type = emapi.TypeRequest
		m.Header.Tag = 0
		m.Header.ReturnCode = 0
		b, err := emapi.EncodeMessage(m)
		if err != nil {
			return nil, err
		}
		m.Header.Len = uint16(len(b) - emapi.HeaderLen)
		return b, nil
	case *control.Message:
		m.Header.Request = true
		m.Header.Datagram = false
		m.Header.Instance = uint8(s.instance.Add(1)-1) & 0x1F
		return control.EncodeMessage(m)
	default:
		return nil, fmt.Errorf("unsupported request %T", req)
	}
}
