// Package switchstate mirrors the topology of one remote CXL switch: its
// identity, physical ports, virtual switches and the logical devices behind
// pooled ports. Every mutation and every read goes through a single lock.
package switchstate

import (
	"errors"
	"fmt"
	"math/bits"
	"sync"

	"github.com/danmuck/cxlctl/internal/protocol/fmapi"
)

const (
	MaxPorts       = 32
	MaxVCSs        = 32
	MaxVPPBs       = 256
	ConfigSpaceLen = 4096
)

var (
	ErrPortOutOfRange = errors.New("switchstate: port id out of range")
	ErrVCSOutOfRange  = errors.New("switchstate: virtual switch id out of range")
	ErrVPPBOutOfRange = errors.New("switchstate: vppb id out of range")
	ErrLDOutOfRange   = errors.New("switchstate: logical device id out of range")
	ErrNotPooled      = errors.New("switchstate: port device is not pooled")
	ErrNoMLD          = errors.New("switchstate: no logical device info for port")
	ErrConfigRange    = errors.New("switchstate: config access beyond config space")
)

// Identity is the switch identification reported by the ISC identify command.
type Identity struct {
	VendorID          uint16
	DeviceID          uint16
	SubsystemVendorID uint16
	SubsystemID       uint16
	SerialNumber      uint64
	MaxMsgSizeN       uint8
}

// BackgroundOp is the last reported background operation status.
type BackgroundOp struct {
	Running    bool
	Percent    uint8
	Opcode     fmapi.Opcode
	ReturnCode fmapi.ReturnCode
	ExtStatus  uint16
}

// Switch is the cached switch. It is only reachable through State.
type Switch struct {
	Identity      Identity
	MsgLimitN     uint8
	BOS           BackgroundOp
	IngressPort   uint8
	NumPorts      uint8
	NumVCSs       uint8
	ActivePorts   [fmapi.BitmaskLen]byte
	ActiveVCSs    [fmapi.BitmaskLen]byte
	NumVPPBs      uint16
	ActiveVPPBs   uint16
	NumHDMDecoder uint8

	Ports [MaxPorts]Port
	VCSs  [MaxVCSs]VirtualSwitch
}

// Port is one physical port. MLD is non-nil only for pooled devices that
// have reported their logical device info.
type Port struct {
	fmapi.PortInfo
	ConfigSpace [ConfigSpaceLen]byte
	MLD         *MLD
}

// Present reports whether a device is attached to the port.
func (p *Port) Present() bool { return p.PRSNT }

// MLD is the logical device state of a multi-logical device. Every per-LD
// slice has exactly Num entries.
type MLD struct {
	MemorySize   uint64
	Num          uint16
	EPC          bool
	TTR          bool
	Granularity  fmapi.Granularity
	ConfigSpace  [][]byte
	Range1       []uint64
	Range2       []uint64
	QoS          fmapi.QoSControl
	BPAvgPercent uint8
	AllocBW      []uint8
	BWLimit      []uint8
}

func (m *MLD) resize(num uint16) {
	n := int(num)
	m.Num = num
	m.ConfigSpace = resize(m.ConfigSpace, n)
	m.Range1 = resize(m.Range1, n)
	m.Range2 = resize(m.Range2, n)
	m.AllocBW = resize(m.AllocBW, n)
	m.BWLimit = resize(m.BWLimit, n)
	for i := range m.ConfigSpace {
		if m.ConfigSpace[i] == nil {
			m.ConfigSpace[i] = make([]byte, ConfigSpaceLen)
		}
	}
}

func resize[T any](s []T, n int) []T {
	if len(s) >= n {
		return s[:n:n]
	}
	out := make([]T, n)
	copy(out, s)
	return out
}

func (m *MLD) clone() *MLD {
	if m == nil {
		return nil
	}
	c := *m
	c.ConfigSpace = make([][]byte, len(m.ConfigSpace))
	for i, b := range m.ConfigSpace {
		if b != nil {
			c.ConfigSpace[i] = append([]byte(nil), b...)
		}
	}
	c.Range1 = append([]uint64(nil), m.Range1...)
	c.Range2 = append([]uint64(nil), m.Range2...)
	c.AllocBW = append([]uint8(nil), m.AllocBW...)
	c.BWLimit = append([]uint8(nil), m.BWLimit...)
	return &c
}

func (m *MLD) checkWindow(start, n int) error {
	if start+n > int(m.Num) {
		return fmt.Errorf("%w: lds %d..%d, device has %d", ErrLDOutOfRange, start, start+n-1, m.Num)
	}
	return nil
}

// VirtualSwitch is one virtual CXL switch and its vPPBs.
type VirtualSwitch struct {
	VCSID    uint8
	State    fmapi.VCSState
	USPID    uint8
	NumVPPBs uint8
	VPPBs    [MaxVPPBs]fmapi.VPPBStatus
}

// State owns the cached Switch and the lock that guards it.
type State struct {
	mu sync.Mutex
	sw Switch
}

func New() *State {
	s := &State{}
	for i := range s.sw.Ports {
		s.sw.Ports[i].PPID = uint8(i)
	}
	for i := range s.sw.VCSs {
		s.sw.VCSs[i].VCSID = uint8(i)
		s.sw.VCSs[i].State = fmapi.VCSInvalid
	}
	return s
}

// Update runs fn with the lock held. fn must not block.
func (s *State) Update(fn func(sw *Switch) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&s.sw)
}

// Read runs fn with the lock held. fn must not retain sw.
func (s *State) Read(fn func(sw *Switch)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.sw)
}

// Snapshot returns a deep copy of the cached switch.
func (s *State) Snapshot() Switch {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.sw
	for i := range c.Ports {
		c.Ports[i].MLD = s.sw.Ports[i].MLD.clone()
	}
	return c
}

// PresentPorts returns the ids of ports with an attached device.
func (sw *Switch) PresentPorts() []uint8 {
	var out []uint8
	for i := range sw.Ports {
		if sw.Ports[i].Present() {
			out = append(out, uint8(i))
		}
	}
	return out
}

// PooledPorts returns the ids of present ports whose device is pooled.
func (sw *Switch) PooledPorts() []uint8 {
	var out []uint8
	for i := range sw.Ports {
		if sw.Ports[i].Present() && sw.Ports[i].DeviceType.Pooled() {
			out = append(out, uint8(i))
		}
	}
	return out
}

// ActivePortCount counts the bits set in the active port mask.
func (sw *Switch) ActivePortCount() int { return countBits(sw.ActivePorts[:]) }

// ActiveVCSCount counts the bits set in the active VCS mask.
func (sw *Switch) ActiveVCSCount() int { return countBits(sw.ActiveVCSs[:]) }

func countBits(mask []byte) int {
	n := 0
	for _, b := range mask {
		n += bits.OnesCount8(b)
	}
	return n
}

func (sw *Switch) port(ppid uint8) (*Port, error) {
	if int(ppid) >= MaxPorts {
		return nil, fmt.Errorf("%w: %d", ErrPortOutOfRange, ppid)
	}
	return &sw.Ports[ppid], nil
}

func (sw *Switch) mld(ppid uint8) (*MLD, error) {
	p, err := sw.port(ppid)
	if err != nil {
		return nil, err
	}
	if p.MLD == nil {
		return nil, fmt.Errorf("%w: port %d", ErrNoMLD, ppid)
	}
	return p.MLD, nil
}
