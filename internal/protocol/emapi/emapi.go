// Package emapi implements the switch emulator API: listing emulated devices
// and connecting or disconnecting them from physical ports.
package emapi

import (
	"errors"
	"fmt"

	"github.com/danmuck/cxlctl/internal/protocol/mctp"
)

const (
	HeaderLen = 8

	MaxNameLen = 255
)

var (
	ErrShortHeader  = errors.New("emapi: short header")
	ErrShortPayload = errors.New("emapi: short payload")
	ErrUnknownKind  = errors.New("emapi: unknown object kind")
	ErrInvalidField = errors.New("emapi: invalid field")
)

// MsgType is the message direction.
type MsgType uint8

const (
	TypeRequest  MsgType = 0
	TypeResponse MsgType = 1
)

func (t MsgType) String() string {
	switch t {
	case TypeRequest:
		return "request"
	case TypeResponse:
		return "response"
	default:
		return fmt.Sprintf("type(%d)", uint8(t))
	}
}

type Opcode uint8

const (
	OpEvent      Opcode = 0x00
	OpListDev    Opcode = 0x01
	OpConnDev    Opcode = 0x02
	OpDisconnDev Opcode = 0x03
)

func (op Opcode) String() string {
	switch op {
	case OpEvent:
		return "Event"
	case OpListDev:
		return "List Devices"
	case OpConnDev:
		return "Connect Device"
	case OpDisconnDev:
		return "Disconnect Device"
	default:
		return fmt.Sprintf("opcode(0x%02x)", uint8(op))
	}
}

type ReturnCode uint8

const (
	RCSuccess             ReturnCode = 0x00
	RCBackgroundOpStarted ReturnCode = 0x01
	RCInvalidInput        ReturnCode = 0x02
	RCUnsupported         ReturnCode = 0x03
	RCInternalError       ReturnCode = 0x04
	RCBusy                ReturnCode = 0x06
)

func (rc ReturnCode) String() string {
	switch rc {
	case RCSuccess:
		return "Success"
	case RCBackgroundOpStarted:
		return "Background Operation Started"
	case RCInvalidInput:
		return "Invalid Input"
	case RCUnsupported:
		return "Unsupported"
	case RCInternalError:
		return "Internal Error"
	case RCBusy:
		return "Busy"
	default:
		return fmt.Sprintf("return code(0x%02x)", uint8(rc))
	}
}

// Header is the fixed emulator API header. A and B carry the arguments of
// requests and, for list responses, the entry count in A.
type Header struct {
	Type       MsgType
	Tag        uint8
	ReturnCode ReturnCode
	Opcode     Opcode
	Len        uint16
	A          uint8
	B          uint8
}

func EncodeHeader(h Header) []byte {
	return []byte{
		byte(h.Type), h.Tag, byte(h.ReturnCode), byte(h.Opcode),
		byte(h.Len), byte(h.Len >> 8), h.A, h.B,
	}
}

func DecodeHeader(b []byte) (Header, error) {
	if len(b) < HeaderLen {
		return Header{}, fmt.Errorf("%w: %d bytes", ErrShortHeader, len(b))
	}
	return Header{
		Type:       MsgType(b[0]),
		Tag:        b[1],
		ReturnCode: ReturnCode(b[2]),
		Opcode:     Opcode(b[3]),
		Len:        uint16(b[4]) | uint16(b[5])<<8,
		A:          b[6],
		B:          b[7],
	}, nil
}

// Message is a header plus its typed object.
type Message struct {
	Header Header
	Obj    Object
}

func (m *Message) MessageType() mctp.MessageType { return mctp.TypeEmulator }

// Kind tags one opcode in one direction.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindEventReq
	KindEventRsp
	KindListDevReq
	KindListDevRsp
	KindConnDevReq
	KindConnDevRsp
	KindDisconnDevReq
	KindDisconnDevRsp
)

// ResponseKind returns the response kind of op.
func (op Opcode) ResponseKind() (Kind, bool) {
	switch op {
	case OpEvent:
		return KindEventRsp, true
	case OpListDev:
		return KindListDevRsp, true
	case OpConnDev:
		return KindConnDevRsp, true
	case OpDisconnDev:
		return KindDisconnDevRsp, true
	default:
		return KindInvalid, false
	}
}

type Object interface {
	Kind() Kind
	Opcode() Opcode
}

type EventReq struct{}
type EventRsp struct{}

// ListDevReq lists every device, or only Device when One is set.
type ListDevReq struct {
	One    bool
	Device uint8
}

// Device is one emulated device.
type Device struct {
	ID   uint8
	Name string
}

type ListDevRsp struct {
	Devices []Device
}

type ConnDevReq struct {
	PPID   uint8
	Device uint8
}

type ConnDevRsp struct{}

type DisconnDevReq struct {
	PPID uint8
	All  bool
}

type DisconnDevRsp struct{}

func (*EventReq) Kind() Kind      { return KindEventReq }
func (*EventRsp) Kind() Kind      { return KindEventRsp }
func (*ListDevReq) Kind() Kind    { return KindListDevReq }
func (*ListDevRsp) Kind() Kind    { return KindListDevRsp }
func (*ConnDevReq) Kind() Kind    { return KindConnDevReq }
func (*ConnDevRsp) Kind() Kind    { return KindConnDevRsp }
func (*DisconnDevReq) Kind() Kind { return KindDisconnDevReq }
func (*DisconnDevRsp) Kind() Kind { return KindDisconnDevRsp }

func (*EventReq) Opcode() Opcode      { return OpEvent }
func (*EventRsp) Opcode() Opcode      { return OpEvent }
func (*ListDevReq) Opcode() Opcode    { return OpListDev }
func (*ListDevRsp) Opcode() Opcode    { return OpListDev }
func (*ConnDevReq) Opcode() Opcode    { return OpConnDev }
func (*ConnDevRsp) Opcode() Opcode    { return OpConnDev }
func (*DisconnDevReq) Opcode() Opcode { return OpDisconnDev }
func (*DisconnDevRsp) Opcode() Opcode { return OpDisconnDev }

// NewRequest wraps obj in a request message.
func NewRequest(obj Object) *Message {
	return &Message{Header: Header{Type: TypeRequest, Opcode: obj.Opcode()}, Obj: obj}
}

// EncodeMessage serializes m. Request arguments travel in header A and B.
func EncodeMessage(m *Message) ([]byte, error) {
	h := m.Header
	h.Opcode = m.Obj.Opcode()
	var payload []byte
	switch o := m.Obj.(type) {
	case *EventReq, *EventRsp, *ConnDevRsp, *DisconnDevRsp:
	case *ListDevReq:
		h.A, h.B = boolByte(o.One), o.Device
	case *ConnDevReq:
		h.A, h.B = o.PPID, o.Device
	case *DisconnDevReq:
		h.A, h.B = o.PPID, boolByte(o.All)
	case *ListDevRsp:
		if len(o.Devices) > 0xFF {
			return nil, fmt.Errorf("%w: %d devices", ErrInvalidField, len(o.Devices))
		}
		h.A = uint8(len(o.Devices))
		for _, d := range o.Devices {
			if len(d.Name) > MaxNameLen {
				return nil, fmt.Errorf("%w: device name %q too long", ErrInvalidField, d.Name)
			}
			payload = append(payload, d.ID, uint8(len(d.Name)))
			payload = append(payload, d.Name...)
		}
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownKind, m.Obj)
	}
	if len(payload) > 0xFFFF {
		return nil, fmt.Errorf("%w: payload %d bytes", ErrInvalidField, len(payload))
	}
	h.Len = uint16(len(payload))
	return append(EncodeHeader(h), payload...), nil
}

// Decode parses the payload of a message with header h as an object of kind.
func Decode(h Header, payload []byte, kind Kind) (Object, error) {
	switch kind {
	case KindEventReq:
		return &EventReq{}, nil
	case KindEventRsp:
		return &EventRsp{}, nil
	case KindListDevReq:
		return &ListDevReq{One: h.A != 0, Device: h.B}, nil
	case KindConnDevReq:
		return &ConnDevReq{PPID: h.A, Device: h.B}, nil
	case KindDisconnDevReq:
		return &DisconnDevReq{PPID: h.A, All: h.B != 0}, nil
	case KindConnDevRsp:
		return &ConnDevRsp{}, nil
	case KindDisconnDevRsp:
		return &DisconnDevRsp{}, nil
	case KindListDevRsp:
		rsp := &ListDevRsp{}
		off := 0
		for i := 0; i < int(h.A); i++ {
			if off+2 > len(payload) {
				return nil, fmt.Errorf("%w: device %d", ErrShortPayload, i)
			}
			id, n := payload[off], int(payload[off+1])
			off += 2
			if off+n > len(payload) {
				return nil, fmt.Errorf("%w: device %d name", ErrShortPayload, i)
			}
			rsp.Devices = append(rsp.Devices, Device{ID: id, Name: string(payload[off : off+n])})
			off += n
		}
		return rsp, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, uint8(kind))
	}
}

// Body returns the payload bytes of b as bounded by the header length.
func Body(h Header, b []byte) ([]byte, error) {
	end := HeaderLen + int(h.Len)
	if end > len(b) {
		return nil, fmt.Errorf("%w: header declares %d bytes, have %d", ErrShortPayload, h.Len, len(b)-HeaderLen)
	}
	return b[HeaderLen:end], nil
}

func boolByte(v bool) uint8 {
	if v {
		return 1
	}
	return 0
}
