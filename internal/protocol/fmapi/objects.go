package fmapi

import "github.com/danmuck/cxlctl/internal/protocol/mctp"

// Object is one decoded FM API payload. The concrete type fixes the Kind.
type Object interface {
	Kind() Kind
}

const (
	// PortInfoLen is the size of one port block in a get port response.
	PortInfoLen  = 16
	AERHeaderLen = 32
	BitmaskLen   = 32
	MaxLDMemLen  = 4096
	MaxLDs       = 16
)

// Information and status command set.

type ISCIDReq struct{}

type ISCIDRsp struct {
	VendorID          uint16
	DeviceID          uint16
	SubsystemVendorID uint16
	SubsystemID       uint16
	SerialNumber      uint64
	MaxMsgSizeN       uint8
}

type ISCBOSReq struct{}

type ISCBOSRsp struct {
	Running    bool
	Percent    uint8
	Opcode     Opcode
	ReturnCode ReturnCode
	ExtStatus  uint16
}

type ISCMsgLimitGetReq struct{}

// MsgLimit is a response message size limit expressed as 2^N bytes.
type MsgLimit struct {
	LimitN uint8
}

type ISCMsgLimitGetRsp struct{ MsgLimit }
type ISCMsgLimitSetReq struct{ MsgLimit }
type ISCMsgLimitSetRsp struct{ MsgLimit }

// Physical switch command set.

type PSCIDReq struct{}

type PSCIDRsp struct {
	IngressPort   uint8
	NumPorts      uint8
	NumVCSs       uint8
	ActivePorts   [BitmaskLen]byte
	ActiveVCSs    [BitmaskLen]byte
	NumVPPBs      uint16
	ActiveVPPBs   uint16
	NumHDMDecoder uint8
}

type PSCPortReq struct {
	Ports []uint8
}

// PortInfo is one physical port block.
type PortInfo struct {
	PPID          uint8
	State         PortState
	DeviceVersion DeviceVersion
	DeviceType    DeviceType
	CXLVersions   uint8
	MaxLinkWidth  uint8
	NegLinkWidth  uint8
	LinkSpeeds    uint8
	MaxLinkSpeed  LinkSpeed
	CurLinkSpeed  LinkSpeed
	LTSSM         LTSSM
	FirstLane     uint8
	LaneReversed  bool
	PERST         bool
	PRSNT         bool
	PowerCtrl     bool
	NumLD         uint8
}

// NegotiatedWidth decodes the negotiated link width field. Devices that
// leave it zero report the maximum width.
func (p PortInfo) NegotiatedWidth() uint8 {
	if p.NegLinkWidth == 0 {
		return p.MaxLinkWidth
	}
	return p.NegLinkWidth >> 4
}

type PSCPortRsp struct {
	Ports []PortInfo
}

type PSCPortCtrlReq struct {
	PPID    uint8
	Control PortControl
}

type PSCPortCtrlRsp struct{}

// ConfigAccess addresses one dword of PCIe configuration space.
type ConfigAccess struct {
	Reg  uint8
	Ext  uint8
	FDBE uint8
	Type ConfigType
	Data [4]byte
}

// Offset returns the byte offset of the addressed dword.
func (c ConfigAccess) Offset() int { return int(c.Ext&0x0F)<<8 | int(c.Reg) }

type PSCCfgReq struct {
	PPID uint8
	ConfigAccess
}

// PSCCfgRsp carries the read dword. Data is nil for writes.
type PSCCfgRsp struct {
	Data []byte
}

// Virtual switch command set.

type VSCInfoReq struct {
	VPPBStart uint8
	VPPBLimit uint8
	VCSs      []uint8
}

// VPPBStatus is the binding of one vPPB.
type VPPBStatus struct {
	Status BindStatus
	PPID   uint8
	LDID   uint8
}

// VCSInfo is one virtual switch block. VPPBs holds the window requested by
// VPPBStart and VPPBLimit, not all NumVPPBs entries.
type VCSInfo struct {
	VCSID    uint8
	State    VCSState
	USPID    uint8
	NumVPPBs uint8
	VPPBs    []VPPBStatus
}

type VSCInfoRsp struct {
	VCSs []VCSInfo
}

type VSCBindReq struct {
	VCSID  uint8
	VPPBID uint8
	PPID   uint8
	LDID   uint16
}

type VSCBindRsp struct{}

type VSCUnbindReq struct {
	VCSID  uint8
	VPPBID uint8
	Option UnbindOption
}

type VSCUnbindRsp struct{}

type VSCAERReq struct {
	VCSID  uint8
	VPPBID uint8
	Error  uint32
	Header [AERHeaderLen]byte
}

type VSCAERRsp struct{}

// MLD port command set.

// MPCTMCReq tunnels a complete inner message to the MLD behind PPID.
type MPCTMCReq struct {
	PPID  uint8
	Type  mctp.MessageType
	Inner *Message
}

// MPCTMCRsp carries the raw inner response message.
type MPCTMCRsp struct {
	Type    mctp.MessageType
	Message []byte
}

type MPCCfgReq struct {
	PPID uint8
	LDID uint16
	ConfigAccess
}

type MPCCfgRsp struct {
	Data []byte
}

type MPCMemReq struct {
	PPID   uint8
	LDID   uint16
	FDBE   uint8
	LDBE   uint8
	Type   ConfigType
	Len    uint16
	Offset uint64
	Data   []byte
}

// MPCMemRsp carries read data. Data is nil for writes.
type MPCMemRsp struct {
	Len  uint16
	Data []byte
}

// MLD component command set, carried inside a tunnel.

type MCCInfoReq struct{}

type MCCInfoRsp struct {
	MemorySize uint64
	NumLDs     uint16
	EPC        bool
	TTR        bool
}

type MCCAllocGetReq struct {
	Start uint8
	Limit uint8
}

// LDRange is the pair of allocation range multipliers of one LD.
type LDRange struct {
	Range1 uint64
	Range2 uint64
}

type MCCAllocGetRsp struct {
	Total       uint8
	Granularity Granularity
	Start       uint8
	Ranges      []LDRange
}

// LDAllocations is a window of LD allocation ranges starting at Start.
type LDAllocations struct {
	Start  uint8
	Ranges []LDRange
}

type MCCAllocSetReq struct{ LDAllocations }
type MCCAllocSetRsp struct{ LDAllocations }

// QoSControl holds the MLD QoS telemetry controls.
type QoSControl struct {
	EPCEnable          bool
	TTREnable          bool
	EgressModPercent   uint8
	EgressSevPercent   uint8
	SampleInterval     uint8
	ReqCmpBasis        uint16
	CompletionInterval uint8
}

type MCCQoSCtrlGetReq struct{}
type MCCQoSCtrlGetRsp struct{ QoSControl }
type MCCQoSCtrlSetReq struct{ QoSControl }
type MCCQoSCtrlSetRsp struct{ QoSControl }

type MCCQoSStatReq struct{}

type MCCQoSStatRsp struct {
	BPAvgPercent uint8
}

// BWWindow selects Num LDs starting at Start.
type BWWindow struct {
	Num   uint8
	Start uint8
}

// BWList is a window of per-LD bandwidth fractions, each out of 256.
type BWList struct {
	Start     uint8
	Fractions []uint8
}

type MCCQoSAllocGetReq struct{ BWWindow }
type MCCQoSAllocGetRsp struct{ BWList }
type MCCQoSAllocSetReq struct{ BWList }
type MCCQoSAllocSetRsp struct{ BWList }
type MCCQoSLimitGetReq struct{ BWWindow }
type MCCQoSLimitGetRsp struct{ BWList }
type MCCQoSLimitSetReq struct{ BWList }
type MCCQoSLimitSetRsp struct{ BWList }

func (*ISCIDReq) Kind() Kind          { return KindISCIDReq }
func (*ISCIDRsp) Kind() Kind          { return KindISCIDRsp }
func (*ISCBOSReq) Kind() Kind         { return KindISCBOSReq }
func (*ISCBOSRsp) Kind() Kind         { return KindISCBOSRsp }
func (*ISCMsgLimitGetReq) Kind() Kind { return KindISCMsgLimitGetReq }
func (*ISCMsgLimitGetRsp) Kind() Kind { return KindISCMsgLimitGetRsp }
func (*ISCMsgLimitSetReq) Kind() Kind { return KindISCMsgLimitSetReq }
func (*ISCMsgLimitSetRsp) Kind() Kind { return KindISCMsgLimitSetRsp }
func (*PSCIDReq) Kind() Kind          { return KindPSCIDReq }
func (*PSCIDRsp) Kind() Kind          { return KindPSCIDRsp }
func (*PSCPortReq) Kind() Kind        { return KindPSCPortReq }
func (*PSCPortRsp) Kind() Kind        { return KindPSCPortRsp }
func (*PSCPortCtrlReq) Kind() Kind    { return KindPSCPortCtrlReq }
func (*PSCPortCtrlRsp) Kind() Kind    { return KindPSCPortCtrlRsp }
func (*PSCCfgReq) Kind() Kind         { return KindPSCCfgReq }
func (*PSCCfgRsp) Kind() Kind         { return KindPSCCfgRsp }
func (*VSCInfoReq) Kind() Kind        { return KindVSCInfoReq }
func (*VSCInfoRsp) Kind() Kind        { return KindVSCInfoRsp }
func (*VSCBindReq) Kind() Kind        { return KindVSCBindReq }
func (*VSCBindRsp) Kind() Kind        { return KindVSCBindRsp }
func (*VSCUnbindReq) Kind() Kind      { return KindVSCUnbindReq }
func (*VSCUnbindRsp) Kind() Kind      { return KindVSCUnbindRsp }
func (*VSCAERReq) Kind() Kind         { return KindVSCAERReq }
func (*VSCAERRsp) Kind() Kind         { return KindVSCAERRsp }
func (*MPCTMCReq) Kind() Kind         { return KindMPCTMCReq }
func (*MPCTMCRsp) Kind() Kind         { return KindMPCTMCRsp }
func (*MPCCfgReq) Kind() Kind         { return KindMPCCfgReq }
func (*MPCCfgRsp) Kind() Kind         { return KindMPCCfgRsp }
func (*MPCMemReq) Kind() Kind         { return KindMPCMemReq }
func (*MPCMemRsp) Kind() Kind         { return KindMPCMemRsp }
func (*MCCInfoReq) Kind() Kind        { return KindMCCInfoReq }
func (*MCCInfoRsp) Kind() Kind        { return KindMCCInfoRsp }
func (*MCCAllocGetReq) Kind() Kind    { return KindMCCAllocGetReq }
func (*MCCAllocGetRsp) Kind() Kind    { return KindMCCAllocGetRsp }
func (*MCCAllocSetReq) Kind() Kind    { return KindMCCAllocSetReq }
func (*MCCAllocSetRsp) Kind() Kind    { return KindMCCAllocSetRsp }
func (*MCCQoSCtrlGetReq) Kind() Kind  { return KindMCCQoSCtrlGetReq }
func (*MCCQoSCtrlGetRsp) Kind() Kind  { return KindMCCQoSCtrlGetRsp }
func (*MCCQoSCtrlSetReq) Kind() Kind  { return KindMCCQoSCtrlSetReq }
func (*MCCQoSCtrlSetRsp) Kind() Kind  { return KindMCCQoSCtrlSetRsp }
func (*MCCQoSStatReq) Kind() Kind     { return KindMCCQoSStatReq }
func (*MCCQoSStatRsp) Kind() Kind     { return KindMCCQoSStatRsp }
func (*MCCQoSAllocGetReq) Kind() Kind { return KindMCCQoSAllocGetReq }
func (*MCCQoSAllocGetRsp) Kind() Kind { return KindMCCQoSAllocGetRsp }
func (*MCCQoSAllocSetReq) Kind() Kind { return KindMCCQoSAllocSetReq }
func (*MCCQoSAllocSetRsp) Kind() Kind { return KindMCCQoSAllocSetRsp }
func (*MCCQoSLimitGetReq) Kind() Kind { return KindMCCQoSLimitGetReq }
func (*MCCQoSLimitGetRsp) Kind() Kind { return KindMCCQoSLimitGetRsp }
func (*MCCQoSLimitSetReq) Kind() Kind { return KindMCCQoSLimitSetReq }
func (*MCCQoSLimitSetRsp) Kind() Kind { return KindMCCQoSLimitSetRsp }

// newObject returns a zero object for k.
func newObject(k Kind) Object {
	switch k {
	case KindISCIDReq:
		return &ISCIDReq{}
	case KindISCIDRsp:
		return &ISCIDRsp{}
	case KindISCBOSReq:
		return &ISCBOSReq{}
	case KindISCBOSRsp:
		return &ISCBOSRsp{}
	case KindISCMsgLimitGetReq:
		return &ISCMsgLimitGetReq{}
	case KindISCMsgLimitGetRsp:
		return &ISCMsgLimitGetRsp{}
	case KindISCMsgLimitSetReq:
		return &ISCMsgLimitSetReq{}
	case KindISCMsgLimitSetRsp:
		return &ISCMsgLimitSetRsp{}
	case KindPSCIDReq:
		return &PSCIDReq{}
	case KindPSCIDRsp:
		return &PSCIDRsp{}
	case KindPSCPortReq:
		return &PSCPortReq{}
	case KindPSCPortRsp:
		return &PSCPortRsp{}
	case KindPSCPortCtrlReq:
		return &PSCPortCtrlReq{}
	case KindPSCPortCtrlRsp:
		return &PSCPortCtrlRsp{}
	case KindPSCCfgReq:
		return &PSCCfgReq{}
	case KindPSCCfgRsp:
		return &PSCCfgRsp{}
	case KindVSCInfoReq:
		return &VSCInfoReq{}
	case KindVSCInfoRsp:
		return &VSCInfoRsp{}
	case KindVSCBindReq:
		return &VSCBindReq{}
	case KindVSCBindRsp:
		return &VSCBindRsp{}
	case KindVSCUnbindReq:
		return &VSCUnbindReq{}
	case KindVSCUnbindRsp:
		return &VSCUnbindRsp{}
	case KindVSCAERReq:
		return &VSCAERReq{}
	case KindVSCAERRsp:
		return &VSCAERRsp{}
	case KindMPCTMCReq:
		return &MPCTMCReq{}
	case KindMPCTMCRsp:
		return &MPCTMCRsp{}
	case KindMPCCfgReq:
		return &MPCCfgReq{}
	case KindMPCCfgRsp:
		return &MPCCfgRsp{}
	case KindMPCMemReq:
		return &MPCMemReq{}
	case KindMPCMemRsp:
		return &MPCMemRsp{}
	case KindMCCInfoReq:
		return &MCCInfoReq{}
	case KindMCCInfoRsp:
		return &MCCInfoRsp{}
	case KindMCCAllocGetReq:
		return &MCCAllocGetReq{}
	case KindMCCAllocGetRsp:
		return &MCCAllocGetRsp{}
	case KindMCCAllocSetReq:
		return &MCCAllocSetReq{}
	case KindMCCAllocSetRsp:
		return &MCCAllocSetRsp{}
	case KindMCCQoSCtrlGetReq:
		return &MCCQoSCtrlGetReq{}
	case KindMCCQoSCtrlGetRsp:
		return &MCCQoSCtrlGetRsp{}
	case KindMCCQoSCtrlSetReq:
		return &MCCQoSCtrlSetReq{}
	case KindMCCQoSCtrlSetRsp:
		return &MCCQoSCtrlSetRsp{}
	case KindMCCQoSStatReq:
		return &MCCQoSStatReq{}
	case KindMCCQoSStatRsp:
		return &MCCQoSStatRsp{}
	case KindMCCQoSAllocGetReq:
		return &MCCQoSAllocGetReq{}
	case KindMCCQoSAllocGetRsp:
		return &MCCQoSAllocGetRsp{}
	case KindMCCQoSAllocSetReq:
		return &MCCQoSAllocSetReq{}
	case KindMCCQoSAllocSetRsp:
		return &MCCQoSAllocSetRsp{}
	case KindMCCQoSLimitGetReq:
		return &MCCQoSLimitGetReq{}
	case KindMCCQoSLimitGetRsp:
		return &MCCQoSLimitGetRsp{}
	case KindMCCQoSLimitSetReq:
		return &MCCQoSLimitSetReq{}
	case KindMCCQoSLimitSetRsp:
		return &MCCQoSLimitSetRsp{}
	default:
		return nil
	}
}
