package fmapi

import "fmt"

// Opcode selects the command set and command of an FM API message.
type Opcode uint16

const (
	OpISCID          Opcode = 0x0001
	OpISCBOS         Opcode = 0x0002
	OpISCMsgLimitGet Opcode = 0x0003
	OpISCMsgLimitSet Opcode = 0x0004

	OpPSCID       Opcode = 0x5100
	OpPSCPort     Opcode = 0x5101
	OpPSCPortCtrl Opcode = 0x5102
	OpPSCCfg      Opcode = 0x5103

	OpVSCInfo   Opcode = 0x5200
	OpVSCBind   Opcode = 0x5201
	OpVSCUnbind Opcode = 0x5202
	OpVSCAER    Opcode = 0x5203

	OpMPCTMC Opcode = 0x5300
	OpMPCCfg Opcode = 0x5301
	OpMPCMem Opcode = 0x5302

	OpMCCInfo        Opcode = 0x5400
	OpMCCAllocGet    Opcode = 0x5401
	OpMCCAllocSet    Opcode = 0x5402
	OpMCCQoSCtrlGet  Opcode = 0x5403
	OpMCCQoSCtrlSet  Opcode = 0x5404
	OpMCCQoSStat     Opcode = 0x5405
	OpMCCQoSAllocGet Opcode = 0x5406
	OpMCCQoSAllocSet Opcode = 0x5407
	OpMCCQoSLimitGet Opcode = 0x5408
	OpMCCQoSLimitSet Opcode = 0x5409
)

var opcodeNames = map[Opcode]string{
	OpISCID:          "Identify",
	OpISCBOS:         "Background Operation Status",
	OpISCMsgLimitGet: "Get Response Message Limit",
	OpISCMsgLimitSet: "Set Response Message Limit",
	OpPSCID:          "Identify Switch Device",
	OpPSCPort:        "Get Physical Port State",
	OpPSCPortCtrl:    "Physical Port Control",
	OpPSCCfg:         "Send PPB CXL.io Configuration Request",
	OpVSCInfo:        "Get Virtual CXL Switch Info",
	OpVSCBind:        "Bind vPPB",
	OpVSCUnbind:      "Unbind vPPB",
	OpVSCAER:         "Generate AER Event",
	OpMPCTMC:         "Tunnel Management Command",
	OpMPCCfg:         "Send LD CXL.io Configuration Request",
	OpMPCMem:         "Send LD CXL.io Memory Request",
	OpMCCInfo:        "Get LD Info",
	OpMCCAllocGet:    "Get LD Allocations",
	OpMCCAllocSet:    "Set LD Allocations",
	OpMCCQoSCtrlGet:  "Get QoS Control",
	OpMCCQoSCtrlSet:  "Set QoS Control",
	OpMCCQoSStat:     "Get QoS Status",
	OpMCCQoSAllocGet: "Get QoS Allocated BW",
	OpMCCQoSAllocSet: "Set QoS Allocated BW",
	OpMCCQoSLimitGet: "Get QoS BW Limit",
	OpMCCQoSLimitSet: "Set QoS BW Limit",
}

func (op Opcode) String() string {
	if name, ok := opcodeNames[op]; ok {
		return name
	}
	return fmt.Sprintf("opcode(0x%04x)", uint16(op))
}

// ReturnCode is the completion status carried in every response header.
type ReturnCode uint16

const (
	RCSuccess                 ReturnCode = 0x00
	RCBackgroundOpStarted     ReturnCode = 0x01
	RCInvalidInput            ReturnCode = 0x02
	RCUnsupported             ReturnCode = 0x03
	RCInternalError           ReturnCode = 0x04
	RCRetryRequired           ReturnCode = 0x05
	RCBusy                    ReturnCode = 0x06
	RCMediaDisabled           ReturnCode = 0x07
	RCFWTransferInProgress    ReturnCode = 0x08
	RCFWTransferOutOfOrder    ReturnCode = 0x09
	RCFWAuthFailed            ReturnCode = 0x0A
	RCFWInvalidSlot           ReturnCode = 0x0B
	RCFWActivationFailedRoll  ReturnCode = 0x0C
	RCFWActivationFailedReset ReturnCode = 0x0D
	RCInvalidHandle           ReturnCode = 0x0E
	RCInvalidPhysicalAddress  ReturnCode = 0x0F
	RCInjectPoisonLimit       ReturnCode = 0x10
	RCPermanentMediaFailure   ReturnCode = 0x11
	RCAborted                 ReturnCode = 0x12
	RCInvalidSecurityState    ReturnCode = 0x13
	RCIncorrectPassphrase     ReturnCode = 0x14
	RCUnsupportedMailbox      ReturnCode = 0x15
	RCInvalidPayloadLength    ReturnCode = 0x16
)

var returnCodeNames = [...]string{
	"Success",
	"Background Operation Started",
	"Invalid Input",
	"Unsupported",
	"Internal Error",
	"Retry Required",
	"Busy",
	"Media Disabled",
	"FW Transfer in Progress",
	"FW Transfer Out of Order",
	"FW Authentication Failed",
	"FW Invalid Slot",
	"FW Activation Failed, Rolled Back",
	"FW Activation Failed, Cold Reset Required",
	"Invalid Handle",
	"Invalid Physical Address",
	"Inject Poison Limit Reached",
	"Permanent Media Failure",
	"Aborted",
	"Invalid Security State",
	"Incorrect Passphrase",
	"Unsupported Mailbox",
	"Invalid Payload Length",
}

func (rc ReturnCode) String() string {
	if int(rc) < len(returnCodeNames) {
		return returnCodeNames[rc]
	}
	return fmt.Sprintf("return code(0x%04x)", uint16(rc))
}

// Succeeded reports whether rc is a success or a soft success.
func (rc ReturnCode) Succeeded() bool {
	return rc == RCSuccess || rc == RCBackgroundOpStarted
}

// Kind tags one opcode in one direction. The codec is keyed by Kind.
type Kind uint8

const (
	KindInvalid Kind = iota

	KindISCIDReq
	KindISCIDRsp
	KindISCBOSReq
	KindISCBOSRsp
	KindISCMsgLimitGetReq
	KindISCMsgLimitGetRsp
	KindISCMsgLimitSetReq
	KindISCMsgLimitSetRsp

	KindPSCIDReq
	KindPSCIDRsp
	KindPSCPortReq
	KindPSCPortRsp
	KindPSCPortCtrlReq
	KindPSCPortCtrlRsp
	KindPSCCfgReq
	KindPSCCfgRsp

	KindVSCInfoReq
	KindVSCInfoRsp
	KindVSCBindReq
	KindVSCBindRsp
	KindVSCUnbindReq
	KindVSCUnbindRsp
	KindVSCAERReq
	KindVSCAERRsp

	KindMPCTMCReq
	KindMPCTMCRsp
	KindMPCCfgReq
	KindMPCCfgRsp
	KindMPCMemReq
	KindMPCMemRsp

	KindMCCInfoReq
	KindMCCInfoRsp
	KindMCCAllocGetReq
	KindMCCAllocGetRsp
	KindMCCAllocSetReq
	KindMCCAllocSetRsp
	KindMCCQoSCtrlGetReq
	KindMCCQoSCtrlGetRsp
	KindMCCQoSCtrlSetReq
	KindMCCQoSCtrlSetRsp
	KindMCCQoSStatReq
	KindMCCQoSStatRsp
	KindMCCQoSAllocGetReq
	KindMCCQoSAllocGetRsp
	KindMCCQoSAllocSetReq
	KindMCCQoSAllocSetRsp
	KindMCCQoSLimitGetReq
	KindMCCQoSLimitGetRsp
	KindMCCQoSLimitSetReq
	KindMCCQoSLimitSetRsp

	kindCount
)

// opcodeOrder lists opcodes in Kind order: each contributes a request kind
// followed by its response kind.
var opcodeOrder = [...]Opcode{
	OpISCID, OpISCBOS, OpISCMsgLimitGet, OpISCMsgLimitSet,
	OpPSCID, OpPSCPort, OpPSCPortCtrl, OpPSCCfg,
	OpVSCInfo, OpVSCBind, OpVSCUnbind, OpVSCAER,
	OpMPCTMC, OpMPCCfg, OpMPCMem,
	OpMCCInfo, OpMCCAllocGet, OpMCCAllocSet, OpMCCQoSCtrlGet, OpMCCQoSCtrlSet,
	OpMCCQoSStat, OpMCCQoSAllocGet, OpMCCQoSAllocSet, OpMCCQoSLimitGet, OpMCCQoSLimitSet,
}

func (k Kind) valid() bool { return k > KindInvalid && k < kindCount }

// Opcode returns the opcode k belongs to.
func (k Kind) Opcode() Opcode {
	if !k.valid() {
		return 0
	}
	return opcodeOrder[(k-1)/2]
}

// IsResponse reports whether k is a response kind.
func (k Kind) IsResponse() bool { return k.valid() && (k-1)%2 == 1 }

func (k Kind) String() string {
	if !k.valid() {
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
	dir := "request"
	if k.IsResponse() {
		dir = "response"
	}
	return k.Opcode().String() + " " + dir
}

func (op Opcode) kindIndex() (int, bool) {
	for i, o := range opcodeOrder {
		if o == op {
			return i, true
		}
	}
	return 0, false
}

// RequestKind returns the request kind of op.
func (op Opcode) RequestKind() (Kind, bool) {
	i, ok := op.kindIndex()
	if !ok {
		return KindInvalid, false
	}
	return Kind(1 + 2*i), true
}

// ResponseKind returns the response kind of op.
func (op Opcode) ResponseKind() (Kind, bool) {
	i, ok := op.kindIndex()
	if !ok {
		return KindInvalid, false
	}
	return Kind(2 + 2*i), true
}
