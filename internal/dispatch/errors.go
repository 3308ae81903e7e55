package dispatch

import (
	"errors"
	"fmt"

	"github.com/danmuck/cxlctl/internal/protocol/mctp"
)

var (
	ErrMalformed          = errors.New("dispatch: malformed response")
	ErrMalformedHeader    = fmt.Errorf("%w: bad header", ErrMalformed)
	ErrMalformedPayload   = fmt.Errorf("%w: bad payload", ErrMalformed)
	ErrUnexpectedCategory = errors.New("dispatch: message is not a response")
	ErrRemote             = errors.New("dispatch: remote error")
	ErrTunnelTypeMismatch = errors.New("dispatch: tunneled message type mismatch")
	ErrTimeout            = errors.New("dispatch: no response before timeout")
)

// RemoteError carries a failing return or completion code from the switch.
type RemoteError struct {
	Family mctp.MessageType
	Code   uint16
	Name   string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("dispatch: %s returned 0x%04x (%s)", e.Family, e.Code, e.Name)
}

func (e *RemoteError) Unwrap() error { return ErrRemote }

// TunnelTypeMismatchError reports a tunnel response whose inner message type
// is not the component command interface.
type TunnelTypeMismatchError struct {
	Got  mctp.MessageType
	Want mctp.MessageType
}

func (e *TunnelTypeMismatchError) Error() string {
	return fmt.Sprintf("dispatch: tunneled message type 0x%02x, want 0x%02x", uint8(e.Got), uint8(e.Want))
}

func (e *TunnelTypeMismatchError) Unwrap() error { return ErrTunnelTypeMismatch }
