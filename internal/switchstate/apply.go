package switchstate

import (
	"fmt"

	"github.com/danmuck/cxlctl/internal/protocol/fmapi"
)

// The Apply methods copy one decoded response into the cache. Each checks
// every index it will touch before writing, so a rejected response leaves
// the cache unchanged. Call them inside State.Update.

func (sw *Switch) ApplyIdentity(r *fmapi.ISCIDRsp) {
	sw.Identity = Identity{
		VendorID:          r.VendorID,
		DeviceID:          r.DeviceID,
		SubsystemVendorID: r.SubsystemVendorID,
		SubsystemID:       r.SubsystemID,
		SerialNumber:      r.SerialNumber,
		MaxMsgSizeN:       r.MaxMsgSizeN,
	}
}

func (sw *Switch) ApplyBOS(r *fmapi.ISCBOSRsp) {
	sw.BOS = BackgroundOp{
		Running:    r.Running,
		Percent:    r.Percent,
		Opcode:     r.Opcode,
		ReturnCode: r.ReturnCode,
		ExtStatus:  r.ExtStatus,
	}
}

func (sw *Switch) ApplyMsgLimit(l fmapi.MsgLimit) {
	sw.MsgLimitN = l.LimitN
}

func (sw *Switch) ApplySwitchInfo(r *fmapi.PSCIDRsp) {
	sw.IngressPort = r.IngressPort
	sw.NumPorts = r.NumPorts
	sw.NumVCSs = r.NumVCSs
	sw.ActivePorts = r.ActivePorts
	sw.ActiveVCSs = r.ActiveVCSs
	sw.NumVPPBs = r.NumVPPBs
	sw.ActiveVPPBs = r.ActiveVPPBs
	sw.NumHDMDecoder = r.NumHDMDecoder
}

// ApplyPorts stores each port block at the index named by its PPID. A port
// whose device is no longer pooled drops its logical device state.
func (sw *Switch) ApplyPorts(ports []fmapi.PortInfo) error {
	for _, info := range ports {
		if _, err := sw.port(info.PPID); err != nil {
			return err
		}
	}
	for _, info := range ports {
		p := &sw.Ports[info.PPID]
		p.PortInfo = info
		if !info.DeviceType.Pooled() {
			p.MLD = nil
		}
	}
	return nil
}

// ApplyPortConfig caches the dword returned by a config read. Only bytes
// enabled in the request's first dword byte enable are written.
func (sw *Switch) ApplyPortConfig(req *fmapi.PSCCfgReq, rsp *fmapi.PSCCfgRsp) error {
	if req.Type != fmapi.ConfigRead {
		return nil
	}
	p, err := sw.port(req.PPID)
	if err != nil {
		return err
	}
	return writeEnabled(p.ConfigSpace[:], req.ConfigAccess, rsp.Data)
}

func writeEnabled(dst []byte, acc fmapi.ConfigAccess, data []byte) error {
	off := acc.Offset()
	if off+4 > len(dst) {
		return fmt.Errorf("%w: offset 0x%03x", ErrConfigRange, off)
	}
	for n := 0; n < 4 && n < len(data); n++ {
		if acc.FDBE&(1<<n) != 0 {
			dst[off+n] = data[n]
		}
	}
	return nil
}

// ApplyVCSs stores each virtual switch block. vPPB entries land at their
// absolute index, offset by the request's start.
func (sw *Switch) ApplyVCSs(req *fmapi.VSCInfoReq, rsp *fmapi.VSCInfoRsp) error {
	for _, v := range rsp.VCSs {
		if int(v.VCSID) >= MaxVCSs {
			return fmt.Errorf("%w: %d", ErrVCSOutOfRange, v.VCSID)
		}
		if int(req.VPPBStart)+len(v.VPPBs) > MaxVPPBs {
			return fmt.Errorf("%w: vcs %d", ErrVPPBOutOfRange, v.VCSID)
		}
	}
	for _, v := range rsp.VCSs {
		c := &sw.VCSs[v.VCSID]
		c.State = v.State
		c.USPID = v.USPID
		c.NumVPPBs = v.NumVPPBs
		for j, e := range v.VPPBs {
			c.VPPBs[int(req.VPPBStart)+j] = e
		}
	}
	return nil
}

// EnsureMLD returns the logical device state of ppid, allocating it sized to
// num logical devices on first use. A later call with a different num
// resizes every per-LD slice. Ports whose cached device is not pooled
// return ErrNotPooled.
func (sw *Switch) EnsureMLD(ppid uint8, num uint16) (*MLD, error) {
	p, err := sw.port(ppid)
	if err != nil {
		return nil, err
	}
	if !p.DeviceType.Pooled() {
		return nil, fmt.Errorf("%w: port %d is %s", ErrNotPooled, ppid, p.DeviceType)
	}
	if p.MLD == nil {
		p.MLD = &MLD{}
	}
	if p.MLD.Num != num || len(p.MLD.ConfigSpace) != int(num) {
		p.MLD.resize(num)
	}
	return p.MLD, nil
}

func (sw *Switch) ApplyLDInfo(ppid uint8, r *fmapi.MCCInfoRsp) error {
	m, err := sw.EnsureMLD(ppid, r.NumLDs)
	if err != nil {
		return err
	}
	m.MemorySize = r.MemorySize
	m.EPC = r.EPC
	m.TTR = r.TTR
	return nil
}

func (sw *Switch) ApplyLDAllocations(ppid uint8, granularity *fmapi.Granularity, a fmapi.LDAllocations) error {
	m, err := sw.mld(ppid)
	if err != nil {
		return err
	}
	if err := m.checkWindow(int(a.Start), len(a.Ranges)); err != nil {
		return err
	}
	if granularity != nil {
		m.Granularity = *granularity
	}
	for i, rg := range a.Ranges {
		m.Range1[int(a.Start)+i] = rg.Range1
		m.Range2[int(a.Start)+i] = rg.Range2
	}
	return nil
}

func (sw *Switch) ApplyQoSControl(ppid uint8, q fmapi.QoSControl) error {
	m, err := sw.mld(ppid)
	if err != nil {
		return err
	}
	m.QoS = q
	return nil
}

func (sw *Switch) ApplyQoSStatus(ppid uint8, r *fmapi.MCCQoSStatRsp) error {
	m, err := sw.mld(ppid)
	if err != nil {
		return err
	}
	m.BPAvgPercent = r.BPAvgPercent
	return nil
}

func (sw *Switch) ApplyQoSAllocated(ppid uint8, l fmapi.BWList) error {
	m, err := sw.mld(ppid)
	if err != nil {
		return err
	}
	if err := m.checkWindow(int(l.Start), len(l.Fractions)); err != nil {
		return err
	}
	copy(m.AllocBW[l.Start:], l.Fractions)
	return nil
}

func (sw *Switch) ApplyQoSLimit(ppid uint8, l fmapi.BWList) error {
	m, err := sw.mld(ppid)
	if err != nil {
		return err
	}
	if err := m.checkWindow(int(l.Start), len(l.Fractions)); err != nil {
		return err
	}
	copy(m.BWLimit[l.Start:], l.Fractions)
	return nil
}

// ApplyLDConfig caches an LD config read into that LD's config space buffer,
// allocating the buffer on first touch.
func (sw *Switch) ApplyLDConfig(req *fmapi.MPCCfgReq, rsp *fmapi.MPCCfgRsp) error {
	if req.Type != fmapi.ConfigRead {
		return nil
	}
	m, err := sw.mld(req.PPID)
	if err != nil {
		return err
	}
	if err := m.checkWindow(int(req.LDID), 1); err != nil {
		return err
	}
	if m.ConfigSpace[req.LDID] == nil {
		m.ConfigSpace[req.LDID] = make([]byte, ConfigSpaceLen)
	}
	return writeEnabled(m.ConfigSpace[req.LDID], req.ConfigAccess, rsp.Data)
}
