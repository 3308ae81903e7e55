package command

import "github.com/danmuck/cxlctl/internal/protocol/fmapi"

// Opt is a parameter that may or may not have been given.
type Opt[T any] struct {
	Value T
	Set   bool
}

func Some[T any](v T) Opt[T] {
	return Opt[T]{Value: v, Set: true}
}

// Or returns the value, or def when unset.
func (o Opt[T]) Or(def T) T {
	if o.Set {
		return o.Value
	}
	return def
}

// Params holds every operation parameter. Each operation reads the subset it
// needs.
type Params struct {
	// PPID is a single physical port. PPIDs holds an expanded list when more
	// than one port was given.
	PPID  Opt[uint8]
	PPIDs []uint8
	All   bool

	VCSID  Opt[uint8]
	VPPBID Opt[uint8]
	LDID   Opt[uint16]
	Num    Opt[uint8]
	Limit  Opt[uint8]

	Register    Opt[uint8]
	ExtRegister Opt[uint8]
	FDBE        Opt[uint8]
	LDBE        Opt[uint8]
	Write       bool
	Data        Opt[uint32]
	InFile      []byte
	Len         Opt[uint16]
	Offset      Opt[uint64]

	PortControl  Opt[fmapi.PortControl]
	UnbindOption Opt[fmapi.UnbindOption]

	AERError  Opt[uint32]
	AERHeader []byte

	Device Opt[uint8]

	Range1       []uint64
	Range2       []uint64
	QoSAllocated []uint8
	QoSLimit     []uint8

	CongestionEnable   bool
	TempThrottle       bool
	EgressModPercent   Opt[uint8]
	EgressSevPercent   Opt[uint8]
	SampleInterval     Opt[uint8]
	ReqCmpBasis        Opt[uint16]
	CompletionInterval Opt[uint8]

	MCTPType Opt[uint8]
	EID      Opt[uint8]
}

// SetPPIDs stores an expanded port list. A single port is stored as a scalar.
func (p *Params) SetPPIDs(ids []uint8) {
	p.PPIDs = nil
	p.PPID = Opt[uint8]{}
	switch len(ids) {
	case 0:
	case 1:
		p.PPID = Some(ids[0])
	default:
		p.PPIDs = append([]uint8(nil), ids...)
	}
}

// dataBytes is the write dword in wire order.
func (p *Params) dataBytes() [4]byte {
	v := p.Data.Value
	return [4]byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}
