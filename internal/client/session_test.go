package client

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/danmuck/cxlctl/internal/action"
	"github.com/danmuck/cxlctl/internal/command"
	"github.com/danmuck/cxlctl/internal/dispatch"
	"github.com/danmuck/cxlctl/internal/protocol/fmapi"
	"github.com/danmuck/cxlctl/internal/protocol/mctp"
	"github.com/danmuck/cxlctl/internal/switchstate"
	"github.com/danmuck/cxlctl/internal/testutil/testlog"
	"github.com/danmuck/cxlctl/internal/transport"
	"github.com/danmuck/cxlctl/internal/transport/transportmock"
)

// fakeSwitch answers FM API requests in process. It has four ports: an SLD
// on port 0, a four-LD pooled device on port 1, and two empty ports.
type fakeSwitch struct {
	t *testing.T

	mu        sync.Mutex
	fail      map[fmapi.Opcode]fmapi.ReturnCode
	submitted []fmapi.Opcode
}

func newFakeSwitch(t *testing.T) *fakeSwitch {
	return &fakeSwitch{t: t, fail: map[fmapi.Opcode]fmapi.ReturnCode{}}
}

func (f *fakeSwitch) Submit(_ context.Context, s transport.Submission) (*transport.Action, error) {
	require.Equal(f.t, mctp.TypeCXLFMAPI, s.Type)
	m, err := fmapi.DecodeRequestMessage(s.Payload)
	require.NoError(f.t, err)

	f.mu.Lock()
	f.submitted = append(f.submitted, m.Header.Opcode)
	rc, failed := f.fail[m.Header.Opcode]
	f.mu.Unlock()
	if !failed {
		rc = fmapi.RCSuccess
	}

	rsp := f.encode(f.respond(m.Obj), rc)
	a := transport.CompletedAction(s.Type, s.Payload, rsp, nil)
	if s.Completed != nil {
		s.Completed <- a
	}
	return a, nil
}

func (f *fakeSwitch) Retire(a *transport.Action) { transport.ReleaseAction(a) }

func (f *fakeSwitch) encode(obj fmapi.Object, rc fmapi.ReturnCode) []byte {
	b, err := fmapi.EncodeMessage(&fmapi.Message{
		Header: fmapi.Header{Category: fmapi.CategoryResponse, ReturnCode: rc},
		Obj:    obj,
	})
	require.NoError(f.t, err)
	return b
}

func (f *fakeSwitch) port(ppid uint8) fmapi.PortInfo {
	p := fmapi.PortInfo{PPID: ppid, State: fmapi.PortDisabled, MaxLinkWidth: 16}
	switch ppid {
	case 0:
		p.State, p.DeviceType, p.PRSNT = fmapi.PortDSP, fmapi.DeviceType3SLD, true
	case 1:
		p.State, p.DeviceType, p.PRSNT, p.NumLD = fmapi.PortDSP, fmapi.DeviceType3MLD, true, 4
	}
	return p
}

func (f *fakeSwitch) respond(obj fmapi.Object) fmapi.Object {
	switch o := obj.(type) {
	case *fmapi.ISCIDReq:
		return &fmapi.ISCIDRsp{VendorID: 0x1AB4, DeviceID: 0x0001, MaxMsgSizeN: 13}
	case *fmapi.ISCMsgLimitSetReq:
		return &fmapi.ISCMsgLimitSetRsp{MsgLimit: o.MsgLimit}
	case *fmapi.ISCBOSReq:
		return &fmapi.ISCBOSRsp{}
	case *fmapi.PSCIDReq:
		return &fmapi.PSCIDRsp{NumPorts: 4, NumVCSs: 1, NumVPPBs: 8}
	case *fmapi.PSCPortReq:
		rsp := &fmapi.PSCPortRsp{}
		for _, id := range o.Ports {
			rsp.Ports = append(rsp.Ports, f.port(id))
		}
		return rsp
	case *fmapi.PSCCfgReq:
		return &fmapi.PSCCfgRsp{Data: []byte{o.Reg, o.Reg + 1, o.Reg + 2, o.Reg + 3}}
	case *fmapi.VSCInfoReq:
		rsp := &fmapi.VSCInfoRsp{}
		for _, id := range o.VCSs {
			rsp.VCSs = append(rsp.VCSs, fmapi.VCSInfo{
				VCSID:    id,
				State:    fmapi.VCSEnabled,
				NumVPPBs: 2,
				VPPBs: []fmapi.VPPBStatus{
					{Status: fmapi.BindPort, PPID: 0},
					{Status: fmapi.BindLD, PPID: 1, LDID: 2},
				},
			})
		}
		return rsp
	case *fmapi.VSCBindReq:
		return &fmapi.VSCBindRsp{}
	case *fmapi.MPCTMCReq:
		inner := f.encode(f.respond(o.Inner.Obj), fmapi.RCSuccess)
		return &fmapi.MPCTMCRsp{Type: mctp.TypeCXLCCI, Message: inner}
	case *fmapi.MCCInfoReq:
		return &fmapi.MCCInfoRsp{MemorySize: 4 << 30, NumLDs: 4}
	case *fmapi.MCCAllocGetReq:
		rsp := &fmapi.MCCAllocGetRsp{Total: 4, Granularity: fmapi.Granularity1GB, Start: o.Start}
		for i := 0; i < int(o.Limit); i++ {
			rsp.Ranges = append(rsp.Ranges, fmapi.LDRange{Range1: uint64(i), Range2: uint64(i) + 1})
		}
		return rsp
	case *fmapi.MCCQoSCtrlGetReq:
		return &fmapi.MCCQoSCtrlGetRsp{QoSControl: fmapi.QoSControl{EgressModPercent: 10}}
	case *fmapi.MCCQoSAllocGetReq:
		return &fmapi.MCCQoSAllocGetRsp{BWList: fmapi.BWList{Start: o.Start, Fractions: bytes.Repeat([]byte{64}, int(o.Num))}}
	case *fmapi.MCCQoSLimitGetReq:
		return &fmapi.MCCQoSLimitGetRsp{BWList: fmapi.BWList{Start: o.Start, Fractions: bytes.Repeat([]byte{255}, int(o.Num))}}
	case *fmapi.MCCQoSStatReq:
		return &fmapi.MCCQoSStatRsp{BPAvgPercent: 3}
	}
	f.t.Fatalf("fake switch has no response for %T", obj)
	return nil
}

func newSession(t *testing.T, bus transport.Bus) (*Session, *bytes.Buffer) {
	t.Helper()
	testlog.Start(t)
	out := &bytes.Buffer{}
	return NewSession(bus, switchstate.New(), out, action.Config{}), out
}

func TestInitFillsCache(t *testing.T) {
	sw := newFakeSwitch(t)
	s, out := newSession(t, sw)

	require.NoError(t, s.Init(context.Background()))
	assert.Empty(t, out.String())

	c := s.State().Snapshot()
	assert.Equal(t, uint16(0x1AB4), c.Identity.VendorID)
	assert.Equal(t, uint8(13), c.MsgLimitN)
	assert.Equal(t, uint8(4), c.NumPorts)
	assert.Equal(t, fmapi.VCSEnabled, c.VCSs[0].State)
	assert.Equal(t, fmapi.BindLD, c.VCSs[0].VPPBs[1].Status)

	assert.Equal(t, []byte{0, 1, 2, 3}, c.Ports[0].ConfigSpace[0:4])
	assert.Equal(t, []byte{60, 61, 62, 63}, c.Ports[0].ConfigSpace[60:64])
	assert.Zero(t, c.Ports[0].ConfigSpace[64])
	assert.Nil(t, c.Ports[0].MLD)

	mld := c.Ports[1].MLD
	require.NotNil(t, mld)
	assert.Equal(t, uint16(4), mld.Num)
	assert.Equal(t, fmapi.Granularity1GB, mld.Granularity)
	assert.Equal(t, []uint64{0, 1, 2, 3}, mld.Range1)
	assert.Equal(t, []uint8{64, 64, 64, 64}, mld.AllocBW)
	assert.Equal(t, []uint8{255, 255, 255, 255}, mld.BWLimit)
	assert.Equal(t, uint8(10), mld.QoS.EgressModPercent)
	assert.Equal(t, uint8(3), mld.BPAvgPercent)

	// identity, limit, bos, switch, 4 ports, 1 vcs, 2x16 config reads, 6 tunneled
	assert.Len(t, sw.submitted, 4+4+1+32+6)
}

func TestInitSkipsFailedSteps(t *testing.T) {
	sw := newFakeSwitch(t)
	sw.fail[fmapi.OpISCBOS] = fmapi.RCUnsupported
	s, _ := newSession(t, sw)

	err := s.Init(context.Background())
	require.Error(t, err)
	var step *StepError
	require.ErrorAs(t, err, &step)
	assert.Equal(t, command.OpShowBOS, step.Op)

	c := s.State().Snapshot()
	assert.True(t, c.Ports[1].Present())
	assert.NotNil(t, c.Ports[1].MLD)
}

func TestExecutePrintsAndApplies(t *testing.T) {
	s, out := newSession(t, newFakeSwitch(t))

	res, err := s.Execute(context.Background(), command.OpShowIdentity, command.Params{})
	require.NoError(t, err)
	assert.False(t, res.Running())
	assert.Contains(t, out.String(), "PCIe Vendor ID:           0x1ab4")
	assert.Equal(t, uint16(0x1AB4), s.State().Snapshot().Identity.VendorID)
}

func TestExecuteBackgroundIsNotAnError(t *testing.T) {
	sw := newFakeSwitch(t)
	sw.fail[fmapi.OpVSCBind] = fmapi.RCBackgroundOpStarted
	s, out := newSession(t, sw)

	res, err := s.Execute(context.Background(), command.OpPortBind, command.Params{
		VPPBID: command.Some[uint8](2),
		PPID:   command.Some[uint8](5),
	})
	require.NoError(t, err)
	assert.True(t, res.Running())
	assert.Equal(t, "Bind operation started in the background\n", out.String())
}

func TestExecuteMissingParameter(t *testing.T) {
	s, _ := newSession(t, newFakeSwitch(t))
	_, err := s.Execute(context.Background(), command.OpShowLDInfo, command.Params{})
	assert.ErrorIs(t, err, command.ErrMissingParameter)
}

func TestExecuteRemoteError(t *testing.T) {
	sw := newFakeSwitch(t)
	sw.fail[fmapi.OpPSCID] = fmapi.RCInternalError
	s, _ := newSession(t, sw)

	_, err := s.Execute(context.Background(), command.OpShowSwitch, command.Params{})
	var remote *dispatch.RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, uint16(fmapi.RCInternalError), remote.Code)
}

func TestExecuteSubmitRejected(t *testing.T) {
	ctrl := gomock.NewController(t)
	bus := transportmock.NewMockBus(ctrl)
	bus.EXPECT().Submit(gomock.Any(), gomock.Any()).Return(nil, transport.ErrNotReady)
	s, _ := newSession(t, bus)

	_, err := s.Execute(context.Background(), command.OpShowBOS, command.Params{})
	assert.ErrorIs(t, err, action.ErrSubmitFailed)
	assert.ErrorIs(t, err, transport.ErrNotReady)
}

func TestListReadsCacheOnly(t *testing.T) {
	ctrl := gomock.NewController(t)
	bus := transportmock.NewMockBus(ctrl)
	s, out := newSession(t, bus)
	require.NoError(t, s.State().Update(func(sw *switchstate.Switch) error {
		sw.NumPorts = 2
		return sw.ApplyPorts([]fmapi.PortInfo{{PPID: 1, State: fmapi.PortUSP, DeviceType: fmapi.DeviceSwitch, PRSNT: true}})
	}))

	res, err := s.Execute(context.Background(), command.OpList, command.Params{})
	require.NoError(t, err)
	assert.Nil(t, res)
	rows := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, rows, 4)
	assert.True(t, strings.HasPrefix(rows[3], "1    +"))
}
