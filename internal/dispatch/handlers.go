package dispatch

import (
	"fmt"
	"io"

	"github.com/danmuck/cxlctl/internal/protocol/control"
	"github.com/danmuck/cxlctl/internal/protocol/emapi"
	"github.com/danmuck/cxlctl/internal/protocol/fmapi"
	"github.com/danmuck/cxlctl/internal/render"
	"github.com/danmuck/cxlctl/internal/switchstate"
)

// fmCall is one decoded FM API exchange. via is set for component commands
// that arrived through a tunnel.
type fmCall struct {
	req fmapi.Object
	rsp fmapi.Object
	hdr fmapi.Header
	via *tunnelTarget
}

// ldPort is the port holding the logical devices a component command
// addressed.
func (c *fmCall) ldPort() (uint8, error) {
	if c.via == nil {
		return 0, fmt.Errorf("%w: %s outside a tunnel", switchstate.ErrNoMLD, c.hdr.Opcode)
	}
	return c.via.ppid, nil
}

type fmHandler struct {
	print func(w io.Writer, c *fmCall)
	apply func(sw *switchstate.Switch, c *fmCall) error
}

// fmHandlers maps each handled opcode to its printer and cache update. GET
// and SET forms share handlers where their responses carry the same object.
// The tunnel opcode has neither; its inner message is dispatched on its own.
var fmHandlers = map[fmapi.Opcode]fmHandler{
	fmapi.OpISCID:          {print: printIdentity, apply: applyIdentity},
	fmapi.OpISCBOS:         {print: printBOS, apply: applyBOS},
	fmapi.OpISCMsgLimitGet: {print: printMsgLimit, apply: applyMsgLimit},
	fmapi.OpISCMsgLimitSet: {print: printMsgLimit, apply: applyMsgLimit},
	fmapi.OpPSCID:          {print: printSwitch, apply: applySwitch},
	fmapi.OpPSCPort:        {print: printPorts, apply: applyPorts},
	fmapi.OpPSCPortCtrl:    {},
	fmapi.OpPSCCfg:         {print: printPortConfig, apply: applyPortConfig},
	fmapi.OpVSCInfo:        {print: printVCSs, apply: applyVCSs},
	fmapi.OpVSCBind:        {print: printBackground("Bind")},
	fmapi.OpVSCUnbind:      {print: printBackground("Unbind")},
	fmapi.OpVSCAER:         {},
	fmapi.OpMPCTMC:         {},
	fmapi.OpMPCCfg:         {print: printLDConfig, apply: applyLDConfig},
	fmapi.OpMPCMem:         {print: printLDMem},
	fmapi.OpMCCInfo:        {print: printLDInfo, apply: applyLDInfo},
	fmapi.OpMCCAllocGet:    {print: printAllocGet, apply: applyAllocGet},
	fmapi.OpMCCAllocSet:    {print: printAllocSet, apply: applyAllocSet},
	fmapi.OpMCCQoSCtrlGet:  {print: printQoSControl, apply: applyQoSControl},
	fmapi.OpMCCQoSCtrlSet:  {print: printQoSControl, apply: applyQoSControl},
	fmapi.OpMCCQoSStat:     {print: printQoSStatus, apply: applyQoSStatus},
	fmapi.OpMCCQoSAllocGet: {print: printBandwidth, apply: applyQoSAllocated},
	fmapi.OpMCCQoSAllocSet: {print: printBandwidth, apply: applyQoSAllocated},
	fmapi.OpMCCQoSLimitGet: {print: printBandwidth, apply: applyQoSLimit},
	fmapi.OpMCCQoSLimitSet: {print: printBandwidth, apply: applyQoSLimit},
}

func printIdentity(w io.Writer, c *fmCall) { render.Identity(w, c.rsp.(*fmapi.ISCIDRsp)) }

func applyIdentity(sw *switchstate.Switch, c *fmCall) error {
	sw.ApplyIdentity(c.rsp.(*fmapi.ISCIDRsp))
	return nil
}

func printBOS(w io.Writer, c *fmCall) { render.BOS(w, c.rsp.(*fmapi.ISCBOSRsp)) }

func applyBOS(sw *switchstate.Switch, c *fmCall) error {
	sw.ApplyBOS(c.rsp.(*fmapi.ISCBOSRsp))
	return nil
}

func msgLimit(o fmapi.Object) fmapi.MsgLimit {
	switch r := o.(type) {
	case *fmapi.ISCMsgLimitGetRsp:
		return r.MsgLimit
	case *fmapi.ISCMsgLimitSetRsp:
		return r.MsgLimit
	}
	return fmapi.MsgLimit{}
}

func printMsgLimit(w io.Writer, c *fmCall) { render.MsgLimit(w, msgLimit(c.rsp)) }

func applyMsgLimit(sw *switchstate.Switch, c *fmCall) error {
	sw.ApplyMsgLimit(msgLimit(c.rsp))
	return nil
}

func printSwitch(w io.Writer, c *fmCall) { render.Switch(w, c.rsp.(*fmapi.PSCIDRsp)) }

func applySwitch(sw *switchstate.Switch, c *fmCall) error {
	sw.ApplySwitchInfo(c.rsp.(*fmapi.PSCIDRsp))
	return nil
}

func printPorts(w io.Writer, c *fmCall) { render.Ports(w, c.rsp.(*fmapi.PSCPortRsp).Ports) }

func applyPorts(sw *switchstate.Switch, c *fmCall) error {
	return sw.ApplyPorts(c.rsp.(*fmapi.PSCPortRsp).Ports)
}

func printPortConfig(w io.Writer, c *fmCall) {
	render.ConfigData(w, c.rsp.(*fmapi.PSCCfgRsp).Data)
}

func applyPortConfig(sw *switchstate.Switch, c *fmCall) error {
	return sw.ApplyPortConfig(c.req.(*fmapi.PSCCfgReq), c.rsp.(*fmapi.PSCCfgRsp))
}

func printVCSs(w io.Writer, c *fmCall) {
	render.VCSs(w, c.rsp.(*fmapi.VSCInfoRsp), c.req.(*fmapi.VSCInfoReq).VPPBStart)
}

func applyVCSs(sw *switchstate.Switch, c *fmCall) error {
	return sw.ApplyVCSs(c.req.(*fmapi.VSCInfoReq), c.rsp.(*fmapi.VSCInfoRsp))
}

func printBackground(operation string) func(io.Writer, *fmCall) {
	return func(w io.Writer, c *fmCall) {
		if c.hdr.ReturnCode == fmapi.RCBackgroundOpStarted {
			render.BackgroundStarted(w, operation)
		}
	}
}

func printLDConfig(w io.Writer, c *fmCall) {
	render.ConfigData(w, c.rsp.(*fmapi.MPCCfgRsp).Data)
}

func applyLDConfig(sw *switchstate.Switch, c *fmCall) error {
	return sw.ApplyLDConfig(c.req.(*fmapi.MPCCfgReq), c.rsp.(*fmapi.MPCCfgRsp))
}

func printLDMem(w io.Writer, c *fmCall) { render.Memory(w, c.rsp.(*fmapi.MPCMemRsp).Data) }

func printLDInfo(w io.Writer, c *fmCall) { render.LDInfo(w, c.rsp.(*fmapi.MCCInfoRsp)) }

func applyLDInfo(sw *switchstate.Switch, c *fmCall) error {
	ppid, err := c.ldPort()
	if err != nil {
		return err
	}
	return sw.ApplyLDInfo(ppid, c.rsp.(*fmapi.MCCInfoRsp))
}

func printAllocGet(w io.Writer, c *fmCall) {
	render.LDAllocations(w, c.rsp.(*fmapi.MCCAllocGetRsp))
}

func applyAllocGet(sw *switchstate.Switch, c *fmCall) error {
	ppid, err := c.ldPort()
	if err != nil {
		return err
	}
	r := c.rsp.(*fmapi.MCCAllocGetRsp)
	g := r.Granularity
	return sw.ApplyLDAllocations(ppid, &g, fmapi.LDAllocations{Start: r.Start, Ranges: r.Ranges})
}

func printAllocSet(w io.Writer, c *fmCall) {
	render.LDAllocationsSet(w, c.rsp.(*fmapi.MCCAllocSetRsp).LDAllocations)
}

func applyAllocSet(sw *switchstate.Switch, c *fmCall) error {
	ppid, err := c.ldPort()
	if err != nil {
		return err
	}
	return sw.ApplyLDAllocations(ppid, nil, c.rsp.(*fmapi.MCCAllocSetRsp).LDAllocations)
}

func qosControl(o fmapi.Object) fmapi.QoSControl {
	switch r := o.(type) {
	case *fmapi.MCCQoSCtrlGetRsp:
		return r.QoSControl
	case *fmapi.MCCQoSCtrlSetRsp:
		return r.QoSControl
	}
	return fmapi.QoSControl{}
}

func printQoSControl(w io.Writer, c *fmCall) { render.QoSControl(w, qosControl(c.rsp)) }

func applyQoSControl(sw *switchstate.Switch, c *fmCall) error {
	ppid, err := c.ldPort()
	if err != nil {
		return err
	}
	return sw.ApplyQoSControl(ppid, qosControl(c.rsp))
}

func printQoSStatus(w io.Writer, c *fmCall) { render.QoSStatus(w, c.rsp.(*fmapi.MCCQoSStatRsp)) }

func applyQoSStatus(sw *switchstate.Switch, c *fmCall) error {
	ppid, err := c.ldPort()
	if err != nil {
		return err
	}
	return sw.ApplyQoSStatus(ppid, c.rsp.(*fmapi.MCCQoSStatRsp))
}

func bandwidth(o fmapi.Object) fmapi.BWList {
	switch r := o.(type) {
	case *fmapi.MCCQoSAllocGetRsp:
		return r.BWList
	case *fmapi.MCCQoSAllocSetRsp:
		return r.BWList
	case *fmapi.MCCQoSLimitGetRsp:
		return r.BWList
	case *fmapi.MCCQoSLimitSetRsp:
		return r.BWList
	}
	return fmapi.BWList{}
}

func printBandwidth(w io.Writer, c *fmCall) { render.Bandwidth(w, bandwidth(c.rsp)) }

func applyQoSAllocated(sw *switchstate.Switch, c *fmCall) error {
	ppid, err := c.ldPort()
	if err != nil {
		return err
	}
	return sw.ApplyQoSAllocated(ppid, bandwidth(c.rsp))
}

func applyQoSLimit(sw *switchstate.Switch, c *fmCall) error {
	ppid, err := c.ldPort()
	if err != nil {
		return err
	}
	return sw.ApplyQoSLimit(ppid, bandwidth(c.rsp))
}

var emHandlers = map[emapi.Opcode]func(io.Writer, emapi.Object){
	emapi.OpListDev: func(w io.Writer, o emapi.Object) { render.Devices(w, o.(*emapi.ListDevRsp)) },
}

var controlHandlers = map[control.Command]func(io.Writer, control.Object){
	control.CmdGetEID:      func(w io.Writer, o control.Object) { render.EID(w, o.(*control.GetEIDRsp).EID) },
	control.CmdSetEID:      func(w io.Writer, o control.Object) { render.EID(w, o.(*control.SetEIDRsp).EID) },
	control.CmdGetUUID:     func(w io.Writer, o control.Object) { render.UUID(w, o.(*control.GetUUIDRsp)) },
	control.CmdGetVersion:  func(w io.Writer, o control.Object) { render.Versions(w, o.(*control.GetVersionRsp)) },
	control.CmdGetMsgTypes: func(w io.Writer, o control.Object) { render.MessageTypes(w, o.(*control.GetMsgTypesRsp)) },
}
