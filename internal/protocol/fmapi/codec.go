package fmapi

import (
	"fmt"

	"github.com/danmuck/cxlctl/internal/protocol/mctp"
)

// Encode serializes the payload of obj.
func Encode(obj Object) ([]byte, error) {
	w := &writer{}
	switch o := obj.(type) {
	case *ISCIDReq, *ISCBOSReq, *ISCMsgLimitGetReq, *PSCIDReq, *PSCPortCtrlRsp,
		*VSCBindRsp, *VSCUnbindRsp, *VSCAERRsp, *MCCInfoReq, *MCCQoSCtrlGetReq, *MCCQoSStatReq:
	case *ISCIDRsp:
		w.u16(o.VendorID)
		w.u16(o.DeviceID)
		w.u16(o.SubsystemVendorID)
		w.u16(o.SubsystemID)
		w.u64(o.SerialNumber)
		w.u8(o.MaxMsgSizeN)
	case *ISCBOSRsp:
		w.u8(boolBit(o.Running, 0) | o.Percent<<1)
		w.zero(1)
		w.u16(uint16(o.Opcode))
		w.u16(uint16(o.ReturnCode))
		w.u16(o.ExtStatus)
	case *ISCMsgLimitGetRsp:
		w.u8(o.LimitN)
	case *ISCMsgLimitSetReq:
		w.u8(o.LimitN)
	case *ISCMsgLimitSetRsp:
		w.u8(o.LimitN)
	case *PSCIDRsp:
		w.u8(o.IngressPort)
		w.zero(1)
		w.u8(o.NumPorts)
		w.u8(o.NumVCSs)
		w.bytes(o.ActivePorts[:])
		w.bytes(o.ActiveVCSs[:])
		w.u16(o.NumVPPBs)
		w.u16(o.ActiveVPPBs)
		w.u8(o.NumHDMDecoder)
	case *PSCPortReq:
		if err := checkCount("ports", len(o.Ports)); err != nil {
			return nil, err
		}
		w.u8(uint8(len(o.Ports)))
		w.bytes(o.Ports)
	case *PSCPortRsp:
		if err := checkCount("ports", len(o.Ports)); err != nil {
			return nil, err
		}
		w.u8(uint8(len(o.Ports)))
		w.zero(3)
		for _, p := range o.Ports {
			encodePortInfo(w, p)
		}
	case *PSCPortCtrlReq:
		w.u8(o.PPID)
		w.u8(uint8(o.Control))
	case *PSCCfgReq:
		w.u8(o.PPID)
		w.u8(o.Reg)
		w.u8(o.Ext)
		w.u8(o.FDBE)
		w.u8(uint8(o.Type))
		w.zero(3)
		w.bytes(o.Data[:])
	case *PSCCfgRsp:
		w.bytes(o.Data)
	case *VSCInfoReq:
		if err := checkCount("vcss", len(o.VCSs)); err != nil {
			return nil, err
		}
		w.u8(o.VPPBStart)
		w.u8(o.VPPBLimit)
		w.u8(uint8(len(o.VCSs)))
		w.bytes(o.VCSs)
	case *VSCInfoRsp:
		if err := checkCount("vcss", len(o.VCSs)); err != nil {
			return nil, err
		}
		w.u8(uint8(len(o.VCSs)))
		w.zero(3)
		for _, v := range o.VCSs {
			w.u8(v.VCSID)
			w.u8(uint8(v.State))
			w.u8(v.USPID)
			w.u8(v.NumVPPBs)
			for _, e := range v.VPPBs {
				w.u8(uint8(e.Status))
				w.u8(e.PPID)
				w.u8(e.LDID)
				w.zero(1)
			}
		}
	case *VSCBindReq:
		w.u8(o.VCSID)
		w.u8(o.VPPBID)
		w.u8(o.PPID)
		w.zero(1)
		w.u16(o.LDID)
	case *VSCUnbindReq:
		w.u8(o.VCSID)
		w.u8(o.VPPBID)
		w.u8(uint8(o.Option))
	case *VSCAERReq:
		w.u8(o.VCSID)
		w.u8(o.VPPBID)
		w.zero(2)
		w.u32(o.Error)
		w.bytes(o.Header[:])
	case *MPCTMCReq:
		if o.Inner == nil {
			return nil, fmt.Errorf("%w: tunnel without inner message", ErrInvalidField)
		}
		inner, err := EncodeMessage(o.Inner)
		if err != nil {
			return nil, err
		}
		if len(inner) > 0xFFFF {
			return nil, ErrPayloadTooLong
		}
		w.u8(o.PPID)
		w.u8(uint8(o.Type))
		w.u16(uint16(len(inner)))
		w.bytes(inner)
	case *MPCTMCRsp:
		if len(o.Message) > 0xFFFF {
			return nil, ErrPayloadTooLong
		}
		w.u8(uint8(o.Type))
		w.zero(1)
		w.u16(uint16(len(o.Message)))
		w.bytes(o.Message)
	case *MPCCfgReq:
		w.u8(o.PPID)
		w.u16(o.LDID)
		w.u8(o.Reg)
		w.u8(o.Ext)
		w.u8(o.FDBE)
		w.u8(uint8(o.Type))
		w.zero(1)
		w.bytes(o.Data[:])
	case *MPCCfgRsp:
		w.bytes(o.Data)
	case *MPCMemReq:
		if o.Len > MaxLDMemLen {
			return nil, fmt.Errorf("%w: memory length %d exceeds %d", ErrInvalidField, o.Len, MaxLDMemLen)
		}
		if o.Type == ConfigWrite && len(o.Data) != int(o.Len) {
			return nil, fmt.Errorf("%w: write data is %d bytes, length is %d", ErrInvalidField, len(o.Data), o.Len)
		}
		w.u8(o.PPID)
		w.zero(1)
		w.u16(o.LDID)
		w.u8(o.FDBE&0x0F | o.LDBE<<4)
		w.u8(uint8(o.Type))
		w.u16(o.Len)
		w.u64(o.Offset)
		if o.Type == ConfigWrite {
			w.bytes(o.Data)
		}
	case *MPCMemRsp:
		w.u16(o.Len)
		w.zero(2)
		w.bytes(o.Data)
	case *MCCInfoRsp:
		w.u64(o.MemorySize)
		w.u16(o.NumLDs)
		w.u8(boolBit(o.EPC, 0) | boolBit(o.TTR, 1))
	case *MCCAllocGetReq:
		w.u8(o.Start)
		w.u8(o.Limit)
	case *MCCAllocGetRsp:
		if err := checkCount("ranges", len(o.Ranges)); err != nil {
			return nil, err
		}
		w.u8(o.Total)
		w.u8(uint8(o.Granularity))
		w.u8(o.Start)
		w.u8(uint8(len(o.Ranges)))
		encodeRanges(w, o.Ranges)
	case *MCCAllocSetReq:
		if err := encodeAllocations(w, o.LDAllocations); err != nil {
			return nil, err
		}
	case *MCCAllocSetRsp:
		if err := encodeAllocations(w, o.LDAllocations); err != nil {
			return nil, err
		}
	case *MCCQoSCtrlGetRsp:
		encodeQoSControl(w, o.QoSControl)
	case *MCCQoSCtrlSetReq:
		encodeQoSControl(w, o.QoSControl)
	case *MCCQoSCtrlSetRsp:
		encodeQoSControl(w, o.QoSControl)
	case *MCCQoSStatRsp:
		w.u8(o.BPAvgPercent)
	case *MCCQoSAllocGetReq:
		w.u8(o.Num)
		w.u8(o.Start)
	case *MCCQoSLimitGetReq:
		w.u8(o.Num)
		w.u8(o.Start)
	case *MCCQoSAllocGetRsp:
		if err := encodeBWList(w, o.BWList); err != nil {
			return nil, err
		}
	case *MCCQoSAllocSetReq:
		if err := encodeBWList(w, o.BWList); err != nil {
			return nil, err
		}
	case *MCCQoSAllocSetRsp:
		if err := encodeBWList(w, o.BWList); err != nil {
			return nil, err
		}
	case *MCCQoSLimitGetRsp:
		if err := encodeBWList(w, o.BWList); err != nil {
			return nil, err
		}
	case *MCCQoSLimitSetReq:
		if err := encodeBWList(w, o.BWList); err != nil {
			return nil, err
		}
	case *MCCQoSLimitSetRsp:
		if err := encodeBWList(w, o.BWList); err != nil {
			return nil, err
		}
	case nil:
		return nil, fmt.Errorf("%w: nil object", ErrUnknownKind)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownKind, obj)
	}
	return w.b, nil
}

// Decode parses b as an object of the given kind. Responses whose shape
// depends on the request (config and memory accesses, virtual switch info)
// need that request as req; other kinds ignore it.
func Decode(b []byte, kind Kind, req Object) (Object, error) {
	obj := newObject(kind)
	if obj == nil {
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, uint8(kind))
	}
	r := &reader{b: b}
	switch o := obj.(type) {
	case *ISCIDReq, *ISCBOSReq, *ISCMsgLimitGetReq, *PSCIDReq, *PSCPortCtrlRsp,
		*VSCBindRsp, *VSCUnbindRsp, *VSCAERRsp, *MCCInfoReq, *MCCQoSCtrlGetReq, *MCCQoSStatReq:
	case *ISCIDRsp:
		o.VendorID = r.u16()
		o.DeviceID = r.u16()
		o.SubsystemVendorID = r.u16()
		o.SubsystemID = r.u16()
		o.SerialNumber = r.u64()
		o.MaxMsgSizeN = r.u8()
	case *ISCBOSRsp:
		v := r.u8()
		o.Running = v&0x01 != 0
		o.Percent = v >> 1
		r.skip(1)
		o.Opcode = Opcode(r.u16())
		o.ReturnCode = ReturnCode(r.u16())
		o.ExtStatus = r.u16()
	case *ISCMsgLimitGetRsp:
		o.LimitN = r.u8()
	case *ISCMsgLimitSetReq:
		o.LimitN = r.u8()
	case *ISCMsgLimitSetRsp:
		o.LimitN = r.u8()
	case *PSCIDRsp:
		o.IngressPort = r.u8()
		r.skip(1)
		o.NumPorts = r.u8()
		o.NumVCSs = r.u8()
		copy(o.ActivePorts[:], r.take(BitmaskLen))
		copy(o.ActiveVCSs[:], r.take(BitmaskLen))
		o.NumVPPBs = r.u16()
		o.ActiveVPPBs = r.u16()
		o.NumHDMDecoder = r.u8()
	case *PSCPortReq:
		n := int(r.u8())
		o.Ports = r.bytes(n)
	case *PSCPortRsp:
		n := int(r.u8())
		r.skip(3)
		for i := 0; i < n && r.err == nil; i++ {
			o.Ports = append(o.Ports, decodePortInfo(r))
		}
	case *PSCPortCtrlReq:
		o.PPID = r.u8()
		o.Control = PortControl(r.u8())
	case *PSCCfgReq:
		o.PPID = r.u8()
		o.Reg = r.u8()
		o.Ext = r.u8()
		o.FDBE = r.u8()
		o.Type = ConfigType(r.u8())
		r.skip(3)
		copy(o.Data[:], r.take(4))
	case *PSCCfgRsp:
		q, ok := req.(*PSCCfgReq)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingContext, kind)
		}
		if q.Type == ConfigRead {
			o.Data = r.bytes(4)
		}
	case *VSCInfoReq:
		o.VPPBStart = r.u8()
		o.VPPBLimit = r.u8()
		n := int(r.u8())
		o.VCSs = r.bytes(n)
	case *VSCInfoRsp:
		q, ok := req.(*VSCInfoReq)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingContext, kind)
		}
		n := int(r.u8())
		r.skip(3)
		for i := 0; i < n && r.err == nil; i++ {
			v := VCSInfo{
				VCSID:    r.u8(),
				State:    VCSState(r.u8()),
				USPID:    r.u8(),
				NumVPPBs: r.u8(),
			}
			entries := vppbWindow(v.NumVPPBs, q.VPPBStart, q.VPPBLimit)
			for j := 0; j < entries && r.err == nil; j++ {
				e := VPPBStatus{Status: BindStatus(r.u8()), PPID: r.u8(), LDID: r.u8()}
				r.skip(1)
				v.VPPBs = append(v.VPPBs, e)
			}
			o.VCSs = append(o.VCSs, v)
		}
	case *VSCBindReq:
		o.VCSID = r.u8()
		o.VPPBID = r.u8()
		o.PPID = r.u8()
		r.skip(1)
		o.LDID = r.u16()
	case *VSCUnbindReq:
		o.VCSID = r.u8()
		o.VPPBID = r.u8()
		o.Option = UnbindOption(r.u8())
	case *VSCAERReq:
		o.VCSID = r.u8()
		o.VPPBID = r.u8()
		r.skip(2)
		o.Error = r.u32()
		copy(o.Header[:], r.take(AERHeaderLen))
	case *MPCTMCReq:
		o.PPID = r.u8()
		o.Type = mctp.MessageType(r.u8())
		n := int(r.u16())
		inner := r.take(n)
		if r.err == nil {
			m, err := DecodeRequestMessage(inner)
			if err != nil {
				return nil, fmt.Errorf("fmapi: tunnel inner request: %w", err)
			}
			o.Inner = m
		}
	case *MPCTMCRsp:
		o.Type = mctp.MessageType(r.u8())
		r.skip(1)
		n := int(r.u16())
		o.Message = r.bytes(n)
	case *MPCCfgReq:
		o.PPID = r.u8()
		o.LDID = r.u16()
		o.Reg = r.u8()
		o.Ext = r.u8()
		o.FDBE = r.u8()
		o.Type = ConfigType(r.u8())
		r.skip(1)
		copy(o.Data[:], r.take(4))
	case *MPCCfgRsp:
		q, ok := req.(*MPCCfgReq)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingContext, kind)
		}
		if q.Type == ConfigRead {
			o.Data = r.bytes(4)
		}
	case *MPCMemReq:
		o.PPID = r.u8()
		r.skip(1)
		o.LDID = r.u16()
		be := r.u8()
		o.FDBE = be & 0x0F
		o.LDBE = be >> 4
		o.Type = ConfigType(r.u8())
		o.Len = r.u16()
		o.Offset = r.u64()
		if o.Type == ConfigWrite {
			o.Data = r.bytes(int(o.Len))
		}
	case *MPCMemRsp:
		q, ok := req.(*MPCMemReq)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingContext, kind)
		}
		o.Len = r.u16()
		r.skip(2)
		if q.Type == ConfigRead {
			o.Data = r.bytes(int(o.Len))
		}
	case *MCCInfoRsp:
		o.MemorySize = r.u64()
		o.NumLDs = r.u16()
		v := r.u8()
		o.EPC = v&0x01 != 0
		o.TTR = v&0x02 != 0
	case *MCCAllocGetReq:
		o.Start = r.u8()
		o.Limit = r.u8()
	case *MCCAllocGetRsp:
		o.Total = r.u8()
		o.Granularity = Granularity(r.u8())
		o.Start = r.u8()
		o.Ranges = decodeRanges(r, int(r.u8()))
	case *MCCAllocSetReq:
		o.LDAllocations = decodeAllocations(r)
	case *MCCAllocSetRsp:
		o.LDAllocations = decodeAllocations(r)
	case *MCCQoSCtrlGetRsp:
		o.QoSControl = decodeQoSControl(r)
	case *MCCQoSCtrlSetReq:
		o.QoSControl = decodeQoSControl(r)
	case *MCCQoSCtrlSetRsp:
		o.QoSControl = decodeQoSControl(r)
	case *MCCQoSStatRsp:
		o.BPAvgPercent = r.u8()
	case *MCCQoSAllocGetReq:
		o.Num = r.u8()
		o.Start = r.u8()
	case *MCCQoSLimitGetReq:
		o.Num = r.u8()
		o.Start = r.u8()
	case *MCCQoSAllocGetRsp:
		o.BWList = decodeBWList(r)
	case *MCCQoSAllocSetReq:
		o.BWList = decodeBWList(r)
	case *MCCQoSAllocSetRsp:
		o.BWList = decodeBWList(r)
	case *MCCQoSLimitGetRsp:
		o.BWList = decodeBWList(r)
	case *MCCQoSLimitSetReq:
		o.BWList = decodeBWList(r)
	case *MCCQoSLimitSetRsp:
		o.BWList = decodeBWList(r)
	}
	if r.err != nil {
		return nil, fmt.Errorf("%w: decoding %s", r.err, kind)
	}
	return obj, nil
}

// vppbWindow returns how many vPPB entries a VCS block carries for a request
// window of limit entries starting at start.
func vppbWindow(num, start, limit uint8) int {
	if num <= start {
		return 0
	}
	n := int(num - start)
	if int(limit) < n {
		n = int(limit)
	}
	return n
}

func checkCount(name string, n int) error {
	if n > 0xFF {
		return fmt.Errorf("%w: %d %s exceeds 255", ErrInvalidField, n, name)
	}
	return nil
}

func encodePortInfo(w *writer, p PortInfo) {
	w.u8(p.PPID)
	w.u8(uint8(p.State))
	w.u8(uint8(p.DeviceVersion))
	w.zero(1)
	w.u8(uint8(p.DeviceType))
	w.u8(p.CXLVersions)
	w.u8(p.MaxLinkWidth)
	w.u8(p.NegLinkWidth)
	w.u8(p.LinkSpeeds)
	w.u8(uint8(p.MaxLinkSpeed))
	w.u8(uint8(p.CurLinkSpeed))
	w.u8(uint8(p.LTSSM))
	w.u8(p.FirstLane)
	w.u16(uint16(boolBit(p.LaneReversed, 0) | boolBit(p.PERST, 1) | boolBit(p.PRSNT, 2) | boolBit(p.PowerCtrl, 3)))
	w.u8(p.NumLD)
}

func decodePortInfo(r *reader) PortInfo {
	p := PortInfo{
		PPID:          r.u8(),
		State:         PortState(r.u8()),
		DeviceVersion: DeviceVersion(r.u8()),
	}
	r.skip(1)
	p.DeviceType = DeviceType(r.u8())
	p.CXLVersions = r.u8()
	p.MaxLinkWidth = r.u8()
	p.NegLinkWidth = r.u8()
	p.LinkSpeeds = r.u8()
	p.MaxLinkSpeed = LinkSpeed(r.u8())
	p.CurLinkSpeed = LinkSpeed(r.u8())
	p.LTSSM = LTSSM(r.u8())
	p.FirstLane = r.u8()
	flags := r.u16()
	p.LaneReversed = flags&0x1 != 0
	p.PERST = flags&0x2 != 0
	p.PRSNT = flags&0x4 != 0
	p.PowerCtrl = flags&0x8 != 0
	p.NumLD = r.u8()
	return p
}

func encodeRanges(w *writer, ranges []LDRange) {
	for _, rg := range ranges {
		w.u64(rg.Range1)
		w.u64(rg.Range2)
	}
}

func decodeRanges(r *reader, n int) []LDRange {
	var out []LDRange
	for i := 0; i < n && r.err == nil; i++ {
		out = append(out, LDRange{Range1: r.u64(), Range2: r.u64()})
	}
	return out
}

func encodeAllocations(w *writer, a LDAllocations) error {
	if err := checkCount("ranges", len(a.Ranges)); err != nil {
		return err
	}
	w.u8(uint8(len(a.Ranges)))
	w.u8(a.Start)
	w.zero(2)
	encodeRanges(w, a.Ranges)
	return nil
}

func decodeAllocations(r *reader) LDAllocations {
	n := int(r.u8())
	a := LDAllocations{Start: r.u8()}
	r.skip(2)
	a.Ranges = decodeRanges(r, n)
	return a
}

func encodeQoSControl(w *writer, q QoSControl) {
	w.u8(boolBit(q.EPCEnable, 0) | boolBit(q.TTREnable, 1))
	w.u8(q.EgressModPercent)
	w.u8(q.EgressSevPercent)
	w.u8(q.SampleInterval)
	w.u16(q.ReqCmpBasis)
	w.u8(q.CompletionInterval)
}

func decodeQoSControl(r *reader) QoSControl {
	v := r.u8()
	return QoSControl{
		EPCEnable:          v&0x01 != 0,
		TTREnable:          v&0x02 != 0,
		EgressModPercent:   r.u8(),
		EgressSevPercent:   r.u8(),
		SampleInterval:     r.u8(),
		ReqCmpBasis:        r.u16(),
		CompletionInterval: r.u8(),
	}
}

func encodeBWList(w *writer, l BWList) error {
	if err := checkCount("fractions", len(l.Fractions)); err != nil {
		return err
	}
	w.u8(uint8(len(l.Fractions)))
	w.u8(l.Start)
	w.bytes(l.Fractions)
	return nil
}

func decodeBWList(r *reader) BWList {
	n := int(r.u8())
	return BWList{Start: r.u8(), Fractions: r.bytes(n)}
}
