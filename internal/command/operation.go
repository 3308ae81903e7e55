// Package command turns an operator-selected operation and its parameters
// into one typed request of the Control, Emulator or Fabric-Manager family.
// Building never performs I/O.
package command

import "fmt"

// Operation selects one CLI action.
type Operation int

const (
	OpNone Operation = iota
	OpShowIdentity
	OpShowBOS
	OpShowLimit
	OpSetLimit
	OpShowSwitch
	OpShowPort
	OpPortControl
	OpPortConfig
	OpShowVCS
	OpPortBind
	OpPortUnbind
	OpAER
	OpLDConfig
	OpLDMem
	OpShowLDInfo
	OpShowLDAllocations
	OpSetLDAllocations
	OpShowQoSControl
	OpSetQoSControl
	OpShowQoSStatus
	OpShowQoSAllocated
	OpSetQoSAllocated
	OpShowQoSLimit
	OpSetQoSLimit
	OpShowDevices
	OpPortConnect
	OpPortDisconnect
	OpMCTPGetEID
	OpMCTPGetUUID
	OpMCTPGetType
	OpMCTPGetVersion
	OpMCTPSetEID
	OpList
)

var operationNames = map[Operation]string{
	OpNone:              "none",
	OpShowIdentity:      "show identity",
	OpShowBOS:           "show bos",
	OpShowLimit:         "show limit",
	OpSetLimit:          "set limit",
	OpShowSwitch:        "show switch",
	OpShowPort:          "show port",
	OpPortControl:       "port control",
	OpPortConfig:        "port config",
	OpShowVCS:           "show vcs",
	OpPortBind:          "port bind",
	OpPortUnbind:        "port unbind",
	OpAER:               "aer",
	OpLDConfig:          "ld config",
	OpLDMem:             "ld mem",
	OpShowLDInfo:        "show ld info",
	OpShowLDAllocations: "show ld allocations",
	OpSetLDAllocations:  "set ld allocations",
	OpShowQoSControl:    "show qos control",
	OpSetQoSControl:     "set qos control",
	OpShowQoSStatus:     "show qos status",
	OpShowQoSAllocated:  "show qos allocated",
	OpSetQoSAllocated:   "set qos allocated",
	OpShowQoSLimit:      "show qos limit",
	OpSetQoSLimit:       "set qos limit",
	OpShowDevices:       "show dev",
	OpPortConnect:       "port connect",
	OpPortDisconnect:    "port disconnect",
	OpMCTPGetEID:        "mctp get-eid",
	OpMCTPGetUUID:       "mctp get-uuid",
	OpMCTPGetType:       "mctp get-type",
	OpMCTPGetVersion:    "mctp get-ver",
	OpMCTPSetEID:        "mctp set-eid",
	OpList:              "list",
}

func (op Operation) String() string {
	if name, ok := operationNames[op]; ok {
		return name
	}
	return fmt.Sprintf("operation(%d)", int(op))
}

// Local reports whether op is served from the switch state cache without a
// request.
func (op Operation) Local() bool {
	return op == OpList
}

// Tunneled reports whether op is carried to an MLD inside a tunnel command.
func (op Operation) Tunneled() bool {
	switch op {
	case OpShowLDInfo, OpShowLDAllocations, OpSetLDAllocations,
		OpShowQoSControl, OpSetQoSControl, OpShowQoSStatus,
		OpShowQoSAllocated, OpSetQoSAllocated, OpShowQoSLimit, OpSetQoSLimit:
		return true
	default:
		return false
	}
}
