// Package control implements the MCTP control message family used to query
// and assign endpoint identity.
package control

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/danmuck/cxlctl/internal/protocol/mctp"
)

const HeaderLen = 2

var (
	ErrShortHeader  = errors.New("control: short header")
	ErrShortPayload = errors.New("control: short payload")
	ErrUnknownKind  = errors.New("control: unknown object kind")
	ErrInvalidField = errors.New("control: invalid field")
)

type Command uint8

const (
	CmdSetEID      Command = 0x01
	CmdGetEID      Command = 0x02
	CmdGetUUID     Command = 0x03
	CmdGetVersion  Command = 0x04
	CmdGetMsgTypes Command = 0x05
)

func (c Command) String() string {
	switch c {
	case CmdSetEID:
		return "Set Endpoint ID"
	case CmdGetEID:
		return "Get Endpoint ID"
	case CmdGetUUID:
		return "Get Endpoint UUID"
	case CmdGetVersion:
		return "Get MCTP Version Support"
	case CmdGetMsgTypes:
		return "Get Message Type Support"
	default:
		return fmt.Sprintf("command(0x%02x)", uint8(c))
	}
}

// CompletionCode is the first byte of every control response body.
type CompletionCode uint8

const (
	CCSuccess        CompletionCode = 0x00
	CCError          CompletionCode = 0x01
	CCInvalidData    CompletionCode = 0x02
	CCInvalidLength  CompletionCode = 0x03
	CCNotReady       CompletionCode = 0x04
	CCUnsupportedCmd CompletionCode = 0x05
)

func (cc CompletionCode) String() string {
	switch cc {
	case CCSuccess:
		return "Success"
	case CCError:
		return "Error"
	case CCInvalidData:
		return "Invalid Data"
	case CCInvalidLength:
		return "Invalid Length"
	case CCNotReady:
		return "Not Ready"
	case CCUnsupportedCmd:
		return "Unsupported Command"
	default:
		return fmt.Sprintf("completion code(0x%02x)", uint8(cc))
	}
}

// Header is the two byte control header.
type Header struct {
	Request  bool
	Datagram bool
	Instance uint8
	Command  Command
}

func EncodeHeader(h Header) []byte {
	b0 := h.Instance & 0x1F
	if h.Request {
		b0 |= 0x80
	}
	if h.Datagram {
		b0 |= 0x40
	}
	return []byte{b0, byte(h.Command)}
}

func DecodeHeader(b []byte) (Header, error) {
	if len(b) < HeaderLen {
		return Header{}, fmt.Errorf("%w: %d bytes", ErrShortHeader, len(b))
	}
	return Header{
		Request:  b[0]&0x80 != 0,
		Datagram: b[0]&0x40 != 0,
		Instance: b[0] & 0x1F,
		Command:  Command(b[1]),
	}, nil
}

// Message is a header plus its typed object.
type Message struct {
	Header Header
	Obj    Object
}

func (m *Message) MessageType() mctp.MessageType { return mctp.TypeControl }

type Kind uint8

const (
	KindInvalid Kind = iota
	KindSetEIDReq
	KindSetEIDRsp
	KindGetEIDReq
	KindGetEIDRsp
	KindGetUUIDReq
	KindGetUUIDRsp
	KindGetVersionReq
	KindGetVersionRsp
	KindGetMsgTypesReq
	KindGetMsgTypesRsp
)

// ResponseKind returns the response kind of c.
func (c Command) ResponseKind() (Kind, bool) {
	switch c {
	case CmdSetEID:
		return KindSetEIDRsp, true
	case CmdGetEID:
		return KindGetEIDRsp, true
	case CmdGetUUID:
		return KindGetUUIDRsp, true
	case CmdGetVersion:
		return KindGetVersionRsp, true
	case CmdGetMsgTypes:
		return KindGetMsgTypesRsp, true
	default:
		return KindInvalid, false
	}
}

type Object interface {
	Kind() Kind
	Command() Command
}

// Response is implemented by every response object.
type Response interface {
	Object
	Completion() CompletionCode
}

// Status carries the completion code shared by all responses.
type Status struct {
	CC CompletionCode
}

func (s Status) Completion() CompletionCode { return s.CC }

// SetEIDOperation selects the set endpoint ID variant.
type SetEIDOperation uint8

const (
	SetEID   SetEIDOperation = 0
	ForceEID SetEIDOperation = 1
)

type SetEIDReq struct {
	Operation SetEIDOperation
	EID       uint8
}

type SetEIDRsp struct {
	Status
	Assignment uint8
	EID        uint8
	PoolSize   uint8
}

type GetEIDReq struct{}

type GetEIDRsp struct {
	Status
	EID            uint8
	EndpointType   uint8
	MediumSpecific uint8
}

type GetUUIDReq struct{}

type GetUUIDRsp struct {
	Status
	UUID uuid.UUID
}

type GetVersionReq struct {
	Type mctp.MessageType
}

// Version is one BCD encoded version entry.
type Version struct {
	Major  uint8
	Minor  uint8
	Update uint8
	Alpha  uint8
}

func (v Version) String() string {
	s := fmt.Sprintf("%d.%d.%d", bcd(v.Major), bcd(v.Minor), bcd(v.Update))
	if v.Alpha != 0 {
		s += string(rune(v.Alpha))
	}
	return s
}

// bcd decodes one version byte. A high nibble of 0xF marks a single digit.
func bcd(b uint8) int {
	if b>>4 == 0xF {
		return int(b & 0x0F)
	}
	return int(b>>4)*10 + int(b&0x0F)
}

type GetVersionRsp struct {
	Status
	Versions []Version
}

type GetMsgTypesReq struct{}

type GetMsgTypesRsp struct {
	Status
	Types []mctp.MessageType
}

func (*SetEIDReq) Kind() Kind      { return KindSetEIDReq }
func (*SetEIDRsp) Kind() Kind      { return KindSetEIDRsp }
func (*GetEIDReq) Kind() Kind      { return KindGetEIDReq }
func (*GetEIDRsp) Kind() Kind      { return KindGetEIDRsp }
func (*GetUUIDReq) Kind() Kind     { return KindGetUUIDReq }
func (*GetUUIDRsp) Kind() Kind     { return KindGetUUIDRsp }
func (*GetVersionReq) Kind() Kind  { return KindGetVersionReq }
func (*GetVersionRsp) Kind() Kind  { return KindGetVersionRsp }
func (*GetMsgTypesReq) Kind() Kind { return KindGetMsgTypesReq }
func (*GetMsgTypesRsp) Kind() Kind { return KindGetMsgTypesRsp }

func (*SetEIDReq) Command() Command      { return CmdSetEID }
func (*SetEIDRsp) Command() Command      { return CmdSetEID }
func (*GetEIDReq) Command() Command      { return CmdGetEID }
func (*GetEIDRsp) Command() Command      { return CmdGetEID }
func (*GetUUIDReq) Command() Command     { return CmdGetUUID }
func (*GetUUIDRsp) Command() Command     { return CmdGetUUID }
func (*GetVersionReq) Command() Command  { return CmdGetVersion }
func (*GetVersionRsp) Command() Command  { return CmdGetVersion }
func (*GetMsgTypesReq) Command() Command { return CmdGetMsgTypes }
func (*GetMsgTypesRsp) Command() Command { return CmdGetMsgTypes }

// NewRequest wraps obj in a request message.
func NewRequest(obj Object) *Message {
	return &Message{Header: Header{Request: true, Command: obj.Command()}, Obj: obj}
}

// EncodeMessage serializes the header and body of m.
func EncodeMessage(m *Message) ([]byte, error) {
	h := m.Header
	h.Command = m.Obj.Command()
	b := EncodeHeader(h)
	switch o := m.Obj.(type) {
	case *GetEIDReq, *GetUUIDReq, *GetMsgTypesReq:
	case *SetEIDReq:
		b = append(b, byte(o.Operation)&0x03, o.EID)
	case *GetVersionReq:
		b = append(b, byte(o.Type))
	case *SetEIDRsp:
		b = append(b, byte(o.CC), o.Assignment, o.EID, o.PoolSize)
	case *GetEIDRsp:
		b = append(b, byte(o.CC), o.EID, o.EndpointType, o.MediumSpecific)
	case *GetUUIDRsp:
		b = append(b, byte(o.CC))
		b = append(b, o.UUID[:]...)
	case *GetVersionRsp:
		if len(o.Versions) > 0xFF {
			return nil, fmt.Errorf("%w: %d versions", ErrInvalidField, len(o.Versions))
		}
		b = append(b, byte(o.CC), uint8(len(o.Versions)))
		for _, v := range o.Versions {
			b = append(b, v.Major, v.Minor, v.Update, v.Alpha)
		}
	case *GetMsgTypesRsp:
		if len(o.Types) > 0xFF {
			return nil, fmt.Errorf("%w: %d types", ErrInvalidField, len(o.Types))
		}
		b = append(b, byte(o.CC), uint8(len(o.Types)))
		for _, t := range o.Types {
			b = append(b, byte(t))
		}
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownKind, m.Obj)
	}
	return b, nil
}

// Decode parses a control body (the bytes after the header) as kind. A
// response body that holds only a failing completion code decodes to a
// response carrying that code.
func Decode(body []byte, kind Kind) (Object, error) {
	need := func(n int) error {
		if len(body) < n {
			return fmt.Errorf("%w: %d bytes, need %d", ErrShortPayload, len(body), n)
		}
		return nil
	}
	switch kind {
	case KindGetEIDReq:
		return &GetEIDReq{}, nil
	case KindGetUUIDReq:
		return &GetUUIDReq{}, nil
	case KindGetMsgTypesReq:
		return &GetMsgTypesReq{}, nil
	case KindSetEIDReq:
		if err := need(2); err != nil {
			return nil, err
		}
		return &SetEIDReq{Operation: SetEIDOperation(body[0] & 0x03), EID: body[1]}, nil
	case KindGetVersionReq:
		if err := need(1); err != nil {
			return nil, err
		}
		return &GetVersionReq{Type: mctp.MessageType(body[0])}, nil
	}

	if err := need(1); err != nil {
		return nil, err
	}
	st := Status{CC: CompletionCode(body[0])}
	if st.CC != CCSuccess {
		switch kind {
		case KindSetEIDRsp:
			return &SetEIDRsp{Status: st}, nil
		case KindGetEIDRsp:
			return &GetEIDRsp{Status: st}, nil
		case KindGetUUIDRsp:
			return &GetUUIDRsp{Status: st}, nil
		case KindGetVersionRsp:
			return &GetVersionRsp{Status: st}, nil
		case KindGetMsgTypesRsp:
			return &GetMsgTypesRsp{Status: st}, nil
		}
	}

	switch kind {
	case KindSetEIDRsp:
		if err := need(4); err != nil {
			return nil, err
		}
		return &SetEIDRsp{Status: st, Assignment: body[1], EID: body[2], PoolSize: body[3]}, nil
	case KindGetEIDRsp:
		if err := need(4); err != nil {
			return nil, err
		}
		return &GetEIDRsp{Status: st, EID: body[1], EndpointType: body[2], MediumSpecific: body[3]}, nil
	case KindGetUUIDRsp:
		if err := need(17); err != nil {
			return nil, err
		}
		id, err := uuid.FromBytes(body[1:17])
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidField, err)
		}
		return &GetUUIDRsp{Status: st, UUID: id}, nil
	case KindGetVersionRsp:
		if err := need(2); err != nil {
			return nil, err
		}
		n := int(body[1])
		if err := need(2 + 4*n); err != nil {
			return nil, err
		}
		rsp := &GetVersionRsp{Status: st}
		for i := 0; i < n; i++ {
			p := body[2+4*i:]
			rsp.Versions = append(rsp.Versions, Version{Major: p[0], Minor: p[1], Update: p[2], Alpha: p[3]})
		}
		return rsp, nil
	case KindGetMsgTypesRsp:
		if err := need(2); err != nil {
			return nil, err
		}
		n := int(body[1])
		if err := need(2 + n); err != nil {
			return nil, err
		}
		rsp := &GetMsgTypesRsp{Status: st}
		for _, t := range body[2 : 2+n] {
			rsp.Types = append(rsp.Types, mctp.MessageType(t))
		}
		return rsp, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, uint8(kind))
	}
}
