package command

import (
	"errors"
	"fmt"

	"github.com/danmuck/cxlctl/internal/protocol/control"
	"github.com/danmuck/cxlctl/internal/protocol/emapi"
	"github.com/danmuck/cxlctl/internal/protocol/fmapi"
	"github.com/danmuck/cxlctl/internal/protocol/mctp"
	"github.com/danmuck/cxlctl/internal/switchstate"
)

var (
	ErrMissingParameter = errors.New("command: missing parameter")
	ErrNoRequest        = errors.New("command: operation sends no request")
	ErrUnknownOperation = errors.New("command: unknown operation")
	ErrInvalidParameter = errors.New("command: invalid parameter")
)

// MissingParameterError names the parameter an operation could not do
// without.
type MissingParameterError struct {
	Op   Operation
	Name string
}

func (e *MissingParameterError) Error() string {
	return fmt.Sprintf("%s: missing parameter %q", e.Op, e.Name)
}

func (e *MissingParameterError) Unwrap() error { return ErrMissingParameter }

// Request is a built request of one message family: *fmapi.Message,
// *emapi.Message or *control.Message.
type Request interface {
	MessageType() mctp.MessageType
}

type builder func(op Operation, p *Params) (Request, error)

var builders = map[Operation]builder{
	OpShowIdentity:      buildFM(func(*Params) fmapi.Object { return &fmapi.ISCIDReq{} }),
	OpShowBOS:           buildFM(func(*Params) fmapi.Object { return &fmapi.ISCBOSReq{} }),
	OpShowLimit:         buildFM(func(*Params) fmapi.Object { return &fmapi.ISCMsgLimitGetReq{} }),
	OpSetLimit:          buildSetLimit,
	OpShowSwitch:        buildFM(func(*Params) fmapi.Object { return &fmapi.PSCIDReq{} }),
	OpShowPort:          buildShowPort,
	OpPortControl:       buildPortControl,
	OpPortConfig:        buildPortConfig,
	OpShowVCS:           buildShowVCS,
	OpPortBind:          buildBind,
	OpPortUnbind:        buildUnbind,
	OpAER:               buildAER,
	OpLDConfig:          buildLDConfig,
	OpLDMem:             buildLDMem,
	OpShowLDInfo:        buildTunneled(func(*Params) (fmapi.Object, error) { return &fmapi.MCCInfoReq{}, nil }),
	OpShowLDAllocations: buildTunneled(showAllocations),
	OpSetLDAllocations:  buildTunneled(setAllocations),
	OpShowQoSControl:    buildTunneled(func(*Params) (fmapi.Object, error) { return &fmapi.MCCQoSCtrlGetReq{}, nil }),
	OpSetQoSControl:     buildTunneled(setQoSControl),
	OpShowQoSStatus:     buildTunneled(func(*Params) (fmapi.Object, error) { return &fmapi.MCCQoSStatReq{}, nil }),
	OpShowQoSAllocated:  buildTunneled(showQoSAllocated),
	OpSetQoSAllocated:   buildTunneled(setQoSAllocated),
	OpShowQoSLimit:      buildTunneled(showQoSLimit),
	OpSetQoSLimit:       buildTunneled(setQoSLimit),
	OpShowDevices:       buildListDevices,
	OpPortConnect:       buildConnect,
	OpPortDisconnect:    buildDisconnect,
	OpMCTPGetEID:        buildControl(func(*Params) control.Object { return &control.GetEIDReq{} }),
	OpMCTPGetUUID:       buildControl(func(*Params) control.Object { return &control.GetUUIDReq{} }),
	OpMCTPGetType:       buildControl(func(*Params) control.Object { return &control.GetMsgTypesReq{} }),
	OpMCTPGetVersion:    buildGetVersion,
	OpMCTPSetEID:        buildSetEID,
}

// Build constructs the request for op from p. It fails when a required
// parameter is absent or out of range for its field, or when op sends no
// request at all.
func Build(op Operation, p Params) (Request, error) {
	if op.Local() {
		return nil, fmt.Errorf("%w: %s", ErrNoRequest, op)
	}
	b, ok := builders[op]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownOperation, op)
	}
	return b(op, &p)
}

// Tunnel wraps an inner MLD component command addressed at ppid.
func Tunnel(ppid uint8, inner fmapi.Object) *fmapi.Message {
	return fmapi.NewRequest(&fmapi.MPCTMCReq{
		PPID:  ppid,
		Type:  mctp.TypeCXLCCI,
		Inner: fmapi.NewRequest(inner),
	})
}

func missing(op Operation, name string) error {
	return &MissingParameterError{Op: op, Name: name}
}

func buildFM(fn func(*Params) fmapi.Object) builder {
	return func(_ Operation, p *Params) (Request, error) {
		return fmapi.NewRequest(fn(p)), nil
	}
}

func buildControl(fn func(*Params) control.Object) builder {
	return func(_ Operation, p *Params) (Request, error) {
		return control.NewRequest(fn(p)), nil
	}
}

func buildTunneled(fn func(*Params) (fmapi.Object, error)) builder {
	return func(op Operation, p *Params) (Request, error) {
		if !p.PPID.Set {
			return nil, missing(op, "ppid")
		}
		inner, err := fn(p)
		if err != nil {
			var mp *MissingParameterError
			if errors.As(err, &mp) {
				mp.Op = op
				return nil, err
			}
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return Tunnel(p.PPID.Value, inner), nil
	}
}

func buildSetLimit(op Operation, p *Params) (Request, error) {
	if !p.Limit.Set {
		return nil, missing(op, "limit")
	}
	return fmapi.NewRequest(&fmapi.ISCMsgLimitSetReq{MsgLimit: fmapi.MsgLimit{LimitN: p.Limit.Value}}), nil
}

func buildShowPort(op Operation, p *Params) (Request, error) {
	var ports []uint8
	switch {
	case len(p.PPIDs) > 0:
		ports = append(ports, p.PPIDs...)
	case p.PPID.Set:
		ports = []uint8{p.PPID.Value}
	case p.All:
		ports = make([]uint8, switchstate.MaxPorts)
		for i := range ports {
			ports[i] = uint8(i)
		}
	default:
		return nil, missing(op, "ppid")
	}
	return fmapi.NewRequest(&fmapi.PSCPortReq{Ports: ports}), nil
}

func buildPortControl(op Operation, p *Params) (Request, error) {
	if !p.PortControl.Set {
		return nil, missing(op, "action")
	}
	return fmapi.NewRequest(&fmapi.PSCPortCtrlReq{
		PPID:    p.PPID.Or(0),
		Control: p.PortControl.Value,
	}), nil
}

func configAccess(p *Params) fmapi.ConfigAccess {
	c := fmapi.ConfigAccess{
		Reg:  p.Register.Or(0),
		Ext:  p.ExtRegister.Or(0),
		FDBE: p.FDBE.Or(0x1),
		Type: fmapi.ConfigRead,
	}
	if p.Write {
		c.Type = fmapi.ConfigWrite
		c.Data = p.dataBytes()
	}
	return c
}

func buildPortConfig(op Operation, p *Params) (Request, error) {
	if !p.PPID.Set {
		return nil, missing(op, "ppid")
	}
	return fmapi.NewRequest(&fmapi.PSCCfgReq{PPID: p.PPID.Value, ConfigAccess: configAccess(p)}), nil
}

func buildShowVCS(_ Operation, p *Params) (Request, error) {
	return fmapi.NewRequest(&fmapi.VSCInfoReq{
		VPPBStart: 0,
		VPPBLimit: 255,
		VCSs:      []uint8{p.VCSID.Or(0)},
	}), nil
}

func buildBind(_ Operation, p *Params) (Request, error) {
	return fmapi.NewRequest(&fmapi.VSCBindReq{
		VCSID:  p.VCSID.Or(0),
		VPPBID: p.VPPBID.Or(0),
		PPID:   p.PPID.Or(0),
		LDID:   p.LDID.Or(0xFFFF),
	}), nil
}

func buildUnbind(_ Operation, p *Params) (Request, error) {
	return fmapi.NewRequest(&fmapi.VSCUnbindReq{
		VCSID:  p.VCSID.Or(0),
		VPPBID: p.VPPBID.Or(0xFF),
		Option: p.UnbindOption.Or(fmapi.UnbindWait),
	}), nil
}

func buildAER(op Operation, p *Params) (Request, error) {
	if !p.AERError.Set {
		return nil, missing(op, "error")
	}
	if len(p.AERHeader) == 0 {
		return nil, missing(op, "header")
	}
	req := &fmapi.VSCAERReq{
		VCSID:  p.VCSID.Or(0),
		VPPBID: p.VPPBID.Or(0),
		Error:  p.AERError.Value,
	}
	copy(req.Header[:], p.AERHeader)
	return fmapi.NewRequest(req), nil
}

func buildLDConfig(op Operation, p *Params) (Request, error) {
	if !p.PPID.Set {
		return nil, missing(op, "ppid")
	}
	return fmapi.NewRequest(&fmapi.MPCCfgReq{
		PPID:         p.PPID.Value,
		LDID:         p.LDID.Or(0),
		ConfigAccess: configAccess(p),
	}), nil
}

func buildLDMem(op Operation, p *Params) (Request, error) {
	if !p.PPID.Set {
		return nil, missing(op, "ppid")
	}
	if !p.Len.Set {
		return nil, missing(op, "len")
	}
	req := &fmapi.MPCMemReq{
		PPID:   p.PPID.Value,
		LDID:   p.LDID.Or(0),
		FDBE:   p.FDBE.Or(0xF),
		LDBE:   p.LDBE.Or(0xF),
		Type:   fmapi.ConfigRead,
		Len:    p.Len.Value,
		Offset: p.Offset.Or(0),
	}
	if p.Write {
		req.Type = fmapi.ConfigWrite
		src := p.InFile
		if src == nil {
			d := p.dataBytes()
			src = d[:]
		}
		req.Data = make([]byte, req.Len)
		copy(req.Data, src)
	}
	return fmapi.NewRequest(req), nil
}

// ldStart is the first LD of an MCC window. The component command fields
// are 8 bits wide.
func ldStart(p *Params) (uint8, error) {
	id := p.LDID.Or(0)
	if id > 0xFF {
		return 0, fmt.Errorf("%w: ldid %d exceeds 255", ErrInvalidParameter, id)
	}
	return uint8(id), nil
}

func showAllocations(p *Params) (fmapi.Object, error) {
	start, err := ldStart(p)
	if err != nil {
		return nil, err
	}
	return &fmapi.MCCAllocGetReq{Start: start, Limit: p.Num.Or(0)}, nil
}

func setAllocations(p *Params) (fmapi.Object, error) {
	if len(p.Range1) == 0 {
		return nil, missing(OpSetLDAllocations, "rng1")
	}
	if len(p.Range2) == 0 {
		return nil, missing(OpSetLDAllocations, "rng2")
	}
	if len(p.Range1) != len(p.Range2) {
		return nil, fmt.Errorf("%w: rng1 has %d entries, rng2 has %d",
			ErrInvalidParameter, len(p.Range1), len(p.Range2))
	}
	start, err := ldStart(p)
	if err != nil {
		return nil, err
	}
	ranges := make([]fmapi.LDRange, len(p.Range1))
	for i := range p.Range1 {
		ranges[i] = fmapi.LDRange{Range1: p.Range1[i], Range2: p.Range2[i]}
	}
	return &fmapi.MCCAllocSetReq{LDAllocations: fmapi.LDAllocations{
		Start:  start,
		Ranges: ranges,
	}}, nil
}

func setQoSControl(p *Params) (fmapi.Object, error) {
	return &fmapi.MCCQoSCtrlSetReq{QoSControl: fmapi.QoSControl{
		EPCEnable:          p.CongestionEnable,
		TTREnable:          p.TempThrottle,
		EgressModPercent:   p.EgressModPercent.Or(0),
		EgressSevPercent:   p.EgressSevPercent.Or(0),
		SampleInterval:     p.SampleInterval.Or(0),
		ReqCmpBasis:        p.ReqCmpBasis.Or(0),
		CompletionInterval: p.CompletionInterval.Or(0),
	}}, nil
}

func bwWindow(p *Params) (fmapi.BWWindow, error) {
	start, err := ldStart(p)
	return fmapi.BWWindow{Num: p.Num.Or(255), Start: start}, err
}

func bwList(p *Params, fractions []uint8) (fmapi.BWList, error) {
	start, err := ldStart(p)
	return fmapi.BWList{Start: start, Fractions: append([]uint8(nil), fractions...)}, err
}

func showQoSAllocated(p *Params) (fmapi.Object, error) {
	w, err := bwWindow(p)
	if err != nil {
		return nil, err
	}
	return &fmapi.MCCQoSAllocGetReq{BWWindow: w}, nil
}

func showQoSLimit(p *Params) (fmapi.Object, error) {
	w, err := bwWindow(p)
	if err != nil {
		return nil, err
	}
	return &fmapi.MCCQoSLimitGetReq{BWWindow: w}, nil
}

func setQoSAllocated(p *Params) (fmapi.Object, error) {
	if len(p.QoSAllocated) == 0 {
		return nil, missing(OpSetQoSAllocated, "fraction")
	}
	l, err := bwList(p, p.QoSAllocated)
	if err != nil {
		return nil, err
	}
	return &fmapi.MCCQoSAllocSetReq{BWList: l}, nil
}

func setQoSLimit(p *Params) (fmapi.Object, error) {
	if len(p.QoSLimit) == 0 {
		return nil, missing(OpSetQoSLimit, "fraction")
	}
	l, err := bwList(p, p.QoSLimit)
	if err != nil {
		return nil, err
	}
	return &fmapi.MCCQoSLimitSetReq{BWList: l}, nil
}

func buildListDevices(_ Operation, p *Params) (Request, error) {
	req := &emapi.ListDevReq{}
	if p.Device.Set && !p.All {
		req.One = true
		req.Device = p.Device.Value
	}
	return emapi.NewRequest(req), nil
}

func buildConnect(op Operation, p *Params) (Request, error) {
	if !p.PPID.Set {
		return nil, missing(op, "ppid")
	}
	if !p.Device.Set {
		return nil, missing(op, "device")
	}
	return emapi.NewRequest(&emapi.ConnDevReq{PPID: p.PPID.Value, Device: p.Device.Value}), nil
}

func buildDisconnect(op Operation, p *Params) (Request, error) {
	if !p.PPID.Set {
		return nil, missing(op, "ppid")
	}
	return emapi.NewRequest(&emapi.DisconnDevReq{PPID: p.PPID.Value, All: p.All}), nil
}

func buildGetVersion(op Operation, p *Params) (Request, error) {
	if !p.MCTPType.Set {
		return nil, missing(op, "type")
	}
	return control.NewRequest(&control.GetVersionReq{Type: mctp.MessageType(p.MCTPType.Value)}), nil
}

func buildSetEID(op Operation, p *Params) (Request, error) {
	if !p.EID.Set {
		return nil, missing(op, "eid")
	}
	return control.NewRequest(&control.SetEIDReq{Operation: control.SetEID, EID: p.EID.Value}), nil
}
