// Package fmapi implements the CXL Fabric Manager API message family: the
// fixed header, opcode and return-code namespaces, one object type per opcode
// and direction, and the codec between those objects and wire bytes.
package fmapi

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/danmuck/cxlctl/internal/protocol/mctp"
)

const (
	HeaderLen = 12

	MaxPayloadLen = 1<<21 - 1

	lenMask        = 0x1FFFFF
	backgroundFlag = 1 << 23
)

var (
	ErrShortHeader    = errors.New("fmapi: short header")
	ErrShortPayload   = errors.New("fmapi: short payload")
	ErrPayloadTooLong = errors.New("fmapi: payload too long")
	ErrUnknownKind    = errors.New("fmapi: unknown object kind")
	ErrKindMismatch   = errors.New("fmapi: object does not match kind")
	ErrMissingContext = errors.New("fmapi: response decode needs the original request")
	ErrUnknownOpcode  = errors.New("fmapi: unknown opcode")
	ErrInvalidField   = errors.New("fmapi: invalid field")
)

// Category is the message direction carried in the low nibble of byte 0.
type Category uint8

const (
	CategoryRequest  Category = 0
	CategoryResponse Category = 1
)

func (c Category) String() string {
	switch c {
	case CategoryRequest:
		return "request"
	case CategoryResponse:
		return "response"
	default:
		return fmt.Sprintf("category(%d)", uint8(c))
	}
}

// Header is the fixed message header shared by FM API and CCI messages.
type Header struct {
	Category   Category
	Tag        uint8
	Opcode     Opcode
	Len        uint32
	Background bool
	ReturnCode ReturnCode
	ExtStatus  uint16
}

func EncodeHeader(h Header) []byte {
	b := make([]byte, HeaderLen)
	b[0] = byte(h.Category) & 0x0F
	b[1] = h.Tag
	binary.LittleEndian.PutUint16(b[3:5], uint16(h.Opcode))
	v := h.Len & lenMask
	if h.Background {
		v |= backgroundFlag
	}
	b[5] = byte(v)
	b[6] = byte(v >> 8)
	b[7] = byte(v >> 16)
	binary.LittleEndian.PutUint16(b[8:10], uint16(h.ReturnCode))
	binary.LittleEndian.PutUint16(b[10:12], h.ExtStatus)
	return b
}

func DecodeHeader(b []byte) (Header, error) {
	if len(b) < HeaderLen {
		return Header{}, fmt.Errorf("%w: %d bytes", ErrShortHeader, len(b))
	}
	v := uint32(b[5]) | uint32(b[6])<<8 | uint32(b[7])<<16
	return Header{
		Category:   Category(b[0] & 0x0F),
		Tag:        b[1],
		Opcode:     Opcode(binary.LittleEndian.Uint16(b[3:5])),
		Len:        v & lenMask,
		Background: v&backgroundFlag != 0,
		ReturnCode: ReturnCode(binary.LittleEndian.Uint16(b[8:10])),
		ExtStatus:  binary.LittleEndian.Uint16(b[10:12]),
	}, nil
}

// Message is a header plus the typed object it frames.
type Message struct {
	Header Header
	Obj    Object
}

// MessageType reports the MCTP type this message is submitted under.
func (m *Message) MessageType() mctp.MessageType { return mctp.TypeCXLFMAPI }

// NewRequest wraps obj in a request message. Lengths are filled by Finalize.
func NewRequest(obj Object) *Message {
	return &Message{
		Header: Header{Category: CategoryRequest, Opcode: obj.Kind().Opcode()},
		Obj:    obj,
	}
}

// Finalize marks m and any tunneled inner message as requests and sets their
// payload lengths to the serialized size.
func Finalize(m *Message) error {
	if m == nil || m.Obj == nil {
		return fmt.Errorf("%w: nil message", ErrInvalidField)
	}
	if tmc, ok := m.Obj.(*MPCTMCReq); ok {
		if err := Finalize(tmc.Inner); err != nil {
			return err
		}
	}
	payload, err := Encode(m.Obj)
	if err != nil {
		return err
	}
	m.Header.Category = CategoryRequest
	m.Header.Opcode = m.Obj.Kind().Opcode()
	m.Header.Len = uint32(len(payload))
	m.Header.ReturnCode = RCSuccess
	m.Header.Background = false
	return nil
}

// EncodeMessage serializes header and payload. The header length field is
// taken from the encoded payload.
func EncodeMessage(m *Message) ([]byte, error) {
	payload, err := Encode(m.Obj)
	if err != nil {
		return nil, err
	}
	if len(payload) > MaxPayloadLen {
		return nil, ErrPayloadTooLong
	}
	h := m.Header
	h.Opcode = m.Obj.Kind().Opcode()
	h.Len = uint32(len(payload))
	return append(EncodeHeader(h), payload...), nil
}

// DecodeRequestMessage decodes a complete request message, selecting the
// request kind from the header opcode.
func DecodeRequestMessage(b []byte) (*Message, error) {
	h, err := DecodeHeader(b)
	if err != nil {
		return nil, err
	}
	kind, ok := h.Opcode.RequestKind()
	if !ok {
		return nil, fmt.Errorf("%w: 0x%04x", ErrUnknownOpcode, uint16(h.Opcode))
	}
	payload, err := Body(h, b)
	if err != nil {
		return nil, err
	}
	obj, err := Decode(payload, kind, nil)
	if err != nil {
		return nil, err
	}
	return &Message{Header: h, Obj: obj}, nil
}

// Body returns the payload bytes of b as bounded by the header length.
func Body(h Header, b []byte) ([]byte, error) {
	end := HeaderLen + int(h.Len)
	if end > len(b) {
		return nil, fmt.Errorf("%w: header declares %d bytes, have %d", ErrShortPayload, h.Len, len(b)-HeaderLen)
	}
	return b[HeaderLen:end], nil
}
