package dispatch

import (
	"bytes"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danmuck/cxlctl/internal/action"
	"github.com/danmuck/cxlctl/internal/command"
	"github.com/danmuck/cxlctl/internal/protocol/control"
	"github.com/danmuck/cxlctl/internal/protocol/emapi"
	"github.com/danmuck/cxlctl/internal/protocol/fmapi"
	"github.com/danmuck/cxlctl/internal/protocol/mctp"
	"github.com/danmuck/cxlctl/internal/switchstate"
	"github.com/danmuck/cxlctl/internal/testutil/testlog"
	"github.com/danmuck/cxlctl/internal/transport"
)

type retirer struct {
	retired []*transport.Action
}

func (r *retirer) Retire(a *transport.Action) {
	r.retired = append(r.retired, a)
	transport.ReleaseAction(a)
}

type fixture struct {
	bus   *retirer
	state *switchstate.State
	out   *bytes.Buffer
	d     *Dispatcher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	testlog.Start(t)
	f := &fixture{bus: &retirer{}, state: switchstate.New(), out: &bytes.Buffer{}}
	f.d = New(f.bus, f.state, f.out)
	return f
}

func build(t *testing.T, op command.Operation, p command.Params) command.Request {
	t.Helper()
	req, err := command.Build(op, p)
	require.NoError(t, err)
	return req
}

// pending encodes req the way the submitter does and pairs it with rsp in a
// completed action.
func pending(t *testing.T, req command.Request, rsp []byte, err error) *action.Pending {
	t.Helper()
	b, encErr := action.New(nil, action.Config{}).Encode(req)
	require.NoError(t, encErr)
	return &action.Pending{
		Request: req,
		Action:  transport.CompletedAction(req.MessageType(), b, rsp, err),
	}
}

func fmResponse(t *testing.T, obj fmapi.Object, rc fmapi.ReturnCode) []byte {
	t.Helper()
	b, err := fmapi.EncodeMessage(&fmapi.Message{
		Header: fmapi.Header{Category: fmapi.CategoryResponse, ReturnCode: rc},
		Obj:    obj,
	})
	require.NoError(t, err)
	return b
}

func tunnelResponse(t *testing.T, inner fmapi.Object, rc fmapi.ReturnCode) []byte {
	t.Helper()
	return fmResponse(t, &fmapi.MPCTMCRsp{
		Type:    mctp.TypeCXLCCI,
		Message: fmResponse(t, inner, rc),
	}, fmapi.RCSuccess)
}

func pooledPort(t *testing.T, s *switchstate.State, ppid uint8) {
	t.Helper()
	require.NoError(t, s.Update(func(sw *switchstate.Switch) error {
		return sw.ApplyPorts([]fmapi.PortInfo{{
			PPID:       ppid,
			State:      fmapi.PortDSP,
			DeviceType: fmapi.DeviceType3MLD,
			PRSNT:      true,
		}})
	}))
}

func TestShowPortUpdatesPortNamedInPayload(t *testing.T) {
	f := newFixture(t)
	req := build(t, command.OpShowPort, command.Params{PPID: command.Some[uint8](3)})
	msg := req.(*fmapi.Message)
	assert.Equal(t, fmapi.OpPSCPort, msg.Header.Opcode)
	assert.Equal(t, []uint8{3}, msg.Obj.(*fmapi.PSCPortReq).Ports)

	rsp := fmResponse(t, &fmapi.PSCPortRsp{Ports: []fmapi.PortInfo{{
		PPID:         3,
		State:        fmapi.PortDSP,
		DeviceType:   fmapi.DeviceType3SLD,
		MaxLinkWidth: 16,
		PRSNT:        true,
	}}}, fmapi.RCSuccess)
	res := f.d.Handle(pending(t, req, rsp, nil), PrintAndApply)

	require.NoError(t, res.Failure())
	sw := f.state.Snapshot()
	assert.True(t, sw.Ports[3].Present())
	assert.Equal(t, fmapi.DeviceType3SLD, sw.Ports[3].DeviceType)
	assert.False(t, sw.Ports[0].Present())
	assert.Contains(t, f.out.String(), "Port State")
}

func TestNonResponseNeverTouchesCache(t *testing.T) {
	f := newFixture(t)
	req := build(t, command.OpShowSwitch, command.Params{})
	b, err := fmapi.EncodeMessage(&fmapi.Message{
		Header: fmapi.Header{Category: fmapi.CategoryRequest},
		Obj:    &fmapi.PSCIDRsp{NumPorts: 16, NumVCSs: 4},
	})
	require.NoError(t, err)

	before := f.state.Snapshot()
	p := pending(t, req, b, nil)
	res := f.d.Handle(p, PrintAndApply)

	require.ErrorIs(t, res.Err, ErrUnexpectedCategory)
	assert.Equal(t, before, f.state.Snapshot())
	assert.Empty(t, f.out.String())
	assert.True(t, p.Action.Retired())
}

func TestRemoteErrorReportsCode(t *testing.T) {
	f := newFixture(t)
	req := build(t, command.OpShowIdentity, command.Params{})
	rsp := fmResponse(t, &fmapi.ISCIDRsp{VendorID: 0x1AB4}, fmapi.RCBusy)
	res := f.d.Handle(pending(t, req, rsp, nil), PrintAndApply)

	var remote *RemoteError
	require.ErrorAs(t, res.Err, &remote)
	assert.ErrorIs(t, res.Err, ErrRemote)
	assert.Equal(t, uint16(fmapi.RCBusy), remote.Code)
	assert.Zero(t, f.state.Snapshot().Identity.VendorID)
	assert.Equal(t, "Error: "+fmapi.RCBusy.String()+"\n", f.out.String())
}

func TestBackgroundStartedStillApplies(t *testing.T) {
	f := newFixture(t)
	req := build(t, command.OpShowSwitch, command.Params{})
	rsp := fmResponse(t, &fmapi.PSCIDRsp{NumPorts: 16, NumVCSs: 4, NumVPPBs: 64}, fmapi.RCBackgroundOpStarted)
	res := f.d.Handle(pending(t, req, rsp, nil), ApplyOnly)

	require.NoError(t, res.Failure())
	assert.True(t, res.InProgress)
	assert.True(t, res.Running())
	sw := f.state.Snapshot()
	assert.Equal(t, uint8(16), sw.NumPorts)
	assert.Equal(t, uint16(64), sw.NumVPPBs)
}

func TestBindInBackground(t *testing.T) {
	f := newFixture(t)
	req := build(t, command.OpPortBind, command.Params{
		VCSID:  command.Some[uint8](0),
		VPPBID: command.Some[uint8](2),
		PPID:   command.Some[uint8](5),
	})
	bind := req.(*fmapi.Message).Obj.(*fmapi.VSCBindReq)
	assert.Equal(t, uint8(2), bind.VPPBID)
	assert.Equal(t, uint8(5), bind.PPID)

	rsp := fmResponse(t, &fmapi.VSCBindRsp{}, fmapi.RCBackgroundOpStarted)
	res := f.d.Handle(pending(t, req, rsp, nil), PrintAndApply)

	require.NoError(t, res.Failure())
	assert.True(t, res.Running())
	assert.Equal(t, "Bind operation started in the background\n", f.out.String())
}

func TestApplyIsIdempotent(t *testing.T) {
	f := newFixture(t)
	req := build(t, command.OpShowVCS, command.Params{VCSID: command.Some[uint8](1)})
	rsp := fmResponse(t, &fmapi.VSCInfoRsp{VCSs: []fmapi.VCSInfo{{
		VCSID:    1,
		State:    fmapi.VCSEnabled,
		USPID:    0,
		NumVPPBs: 2,
		VPPBs: []fmapi.VPPBStatus{
			{Status: fmapi.BindPort, PPID: 4},
			{Status: fmapi.BindUnbound},
		},
	}}}, fmapi.RCSuccess)

	f.d.Handle(pending(t, req, rsp, nil), ApplyOnly)
	once := f.state.Snapshot()
	f.d.Handle(pending(t, req, rsp, nil), ApplyOnly)
	assert.Equal(t, once, f.state.Snapshot())
	assert.Equal(t, fmapi.BindPort, once.VCSs[1].VPPBs[0].Status)
}

func TestLDInfoAllocatesLogicalDevices(t *testing.T) {
	f := newFixture(t)
	pooledPort(t, f.state, 4)
	req := build(t, command.OpShowLDInfo, command.Params{PPID: command.Some[uint8](4)})
	rsp := tunnelResponse(t, &fmapi.MCCInfoRsp{MemorySize: 8 << 30, NumLDs: 8, EPC: true}, fmapi.RCSuccess)

	res := f.d.Handle(pending(t, req, rsp, nil), PrintAndApply)

	require.NoError(t, res.Failure())
	require.NotNil(t, res.Tunnel)
	assert.NoError(t, res.Tunnel.CacheErr)
	mld := f.state.Snapshot().Ports[4].MLD
	require.NotNil(t, mld)
	assert.Equal(t, uint16(8), mld.Num)
	assert.Len(t, mld.ConfigSpace, 8)
	assert.True(t, mld.EPC)
	assert.Contains(t, f.out.String(), "LD Count                    : 8")
}

func TestLDInfoOnUnpooledPortReportsCacheError(t *testing.T) {
	f := newFixture(t)
	req := build(t, command.OpShowLDInfo, command.Params{PPID: command.Some[uint8](2)})
	rsp := tunnelResponse(t, &fmapi.MCCInfoRsp{NumLDs: 4}, fmapi.RCSuccess)

	res := f.d.Handle(pending(t, req, rsp, nil), ApplyOnly)

	require.NoError(t, res.Failure())
	assert.ErrorIs(t, res.Tunnel.CacheErr, switchstate.ErrNotPooled)
	assert.Nil(t, f.state.Snapshot().Ports[2].MLD)
}

func TestTunnelTypeMismatchKeepsOuterStatus(t *testing.T) {
	f := newFixture(t)
	pooledPort(t, f.state, 1)
	req := build(t, command.OpShowQoSStatus, command.Params{PPID: command.Some[uint8](1)})
	rsp := fmResponse(t, &fmapi.MPCTMCRsp{
		Type:    mctp.TypeEmulator,
		Message: fmResponse(t, &fmapi.MCCQoSStatRsp{BPAvgPercent: 9}, fmapi.RCSuccess),
	}, fmapi.RCSuccess)

	res := f.d.Handle(pending(t, req, rsp, nil), PrintAndApply)

	require.NoError(t, res.Err)
	require.NoError(t, res.Failure())
	var mismatch *TunnelTypeMismatchError
	require.ErrorAs(t, res.Tunnel.Err, &mismatch)
	assert.Equal(t, mctp.TypeEmulator, mismatch.Got)
	assert.Contains(t, f.out.String(), "incorrect MCTP Message Type: 0x70")
}

func TestTunneledRemoteErrorFails(t *testing.T) {
	f := newFixture(t)
	pooledPort(t, f.state, 1)
	req := build(t, command.OpShowQoSControl, command.Params{PPID: command.Some[uint8](1)})
	rsp := tunnelResponse(t, &fmapi.MCCQoSCtrlGetRsp{}, fmapi.RCInvalidInput)

	res := f.d.Handle(pending(t, req, rsp, nil), ApplyOnly)

	require.NoError(t, res.Err)
	assert.ErrorIs(t, res.Failure(), ErrRemote)
}

func TestPortConfigReadHonoursByteEnables(t *testing.T) {
	f := newFixture(t)
	req := build(t, command.OpPortConfig, command.Params{
		PPID:     command.Some[uint8](6),
		Register: command.Some[uint8](0x08),
		FDBE:     command.Some[uint8](0x5),
	})
	rsp := fmResponse(t, &fmapi.PSCCfgRsp{Data: []byte{0x11, 0x22, 0x33, 0x44}}, fmapi.RCSuccess)

	res := f.d.Handle(pending(t, req, rsp, nil), PrintAndApply)

	require.NoError(t, res.Failure())
	cs := f.state.Snapshot().Ports[6].ConfigSpace
	assert.Equal(t, []byte{0x11, 0x00, 0x33, 0x00}, cs[0x08:0x0C])
	assert.Equal(t, "Data: 0x11223344\n", f.out.String())
}

func TestMalformedResponses(t *testing.T) {
	f := newFixture(t)
	req := build(t, command.OpShowSwitch, command.Params{})

	res := f.d.Handle(pending(t, req, []byte{0x01, 0x00}, nil), ApplyOnly)
	assert.ErrorIs(t, res.Err, ErrMalformedHeader)
	assert.ErrorIs(t, res.Err, ErrMalformed)

	rsp := fmResponse(t, &fmapi.PSCIDRsp{NumPorts: 8}, fmapi.RCSuccess)
	res = f.d.Handle(pending(t, req, rsp[:fmapi.HeaderLen+4], nil), ApplyOnly)
	assert.ErrorIs(t, res.Err, ErrMalformedPayload)
	assert.Zero(t, f.state.Snapshot().NumPorts)
}

func TestUnknownOpcodeIgnored(t *testing.T) {
	f := newFixture(t)
	req := &fmapi.Message{
		Header: fmapi.Header{Category: fmapi.CategoryRequest, Opcode: fmapi.Opcode(0x7F00)},
		Obj:    &fmapi.ISCIDReq{},
	}
	rsp := fmResponse(t, &fmapi.ISCIDRsp{VendorID: 1}, fmapi.RCSuccess)
	p := &action.Pending{Request: req, Action: transport.CompletedAction(mctp.TypeCXLFMAPI, nil, rsp, nil)}

	res := f.d.Handle(p, PrintAndApply)

	require.NoError(t, res.Failure())
	assert.True(t, res.Ignored)
	assert.Zero(t, f.state.Snapshot().Identity.VendorID)
}

func TestTimeoutMapsToTaxonomy(t *testing.T) {
	f := newFixture(t)
	req := build(t, command.OpShowBOS, command.Params{})
	p := pending(t, req, nil, transport.ErrTimeout)

	res := f.d.Handle(p, PrintAndApply)

	assert.ErrorIs(t, res.Err, ErrTimeout)
	assert.True(t, p.Action.Retired())
}

func TestEveryPathRetires(t *testing.T) {
	f := newFixture(t)
	req := build(t, command.OpShowIdentity, command.Params{})
	good := fmResponse(t, &fmapi.ISCIDRsp{}, fmapi.RCSuccess)
	bad := fmResponse(t, &fmapi.ISCIDRsp{}, fmapi.RCUnsupported)

	for _, rsp := range [][]byte{good, bad, {0xFF}, nil} {
		p := pending(t, req, rsp, nil)
		f.d.Handle(p, PrintAndApply)
		assert.True(t, p.Action.Retired())
	}
	assert.Len(t, f.bus.retired, 4)
}

func TestEmulatorListDevices(t *testing.T) {
	f := newFixture(t)
	req := build(t, command.OpShowDevices, command.Params{})
	rsp, err := emapi.EncodeMessage(&emapi.Message{
		Header: emapi.Header{Type: emapi.TypeResponse},
		Obj: &emapi.ListDevRsp{Devices: []emapi.Device{
			{ID: 0, Name: "sld0"},
			{ID: 1, Name: "mld1"},
		}},
	})
	require.NoError(t, err)

	res := f.d.Handle(pending(t, req, rsp, nil), PrintOnly)

	require.NoError(t, res.Failure())
	assert.Equal(t, "  0: sld0\n  1: mld1\n", f.out.String())
}

func TestEmulatorRemoteError(t *testing.T) {
	f := newFixture(t)
	req := build(t, command.OpPortConnect, command.Params{
		PPID:   command.Some[uint8](1),
		Device: command.Some[uint8](3),
	})
	rsp, err := emapi.EncodeMessage(&emapi.Message{
		Header: emapi.Header{Type: emapi.TypeResponse, ReturnCode: emapi.RCInvalidInput},
		Obj:    &emapi.ConnDevRsp{},
	})
	require.NoError(t, err)

	res := f.d.Handle(pending(t, req, rsp, nil), PrintOnly)
	assert.ErrorIs(t, res.Err, ErrRemote)
}

func TestControlResponses(t *testing.T) {
	f := newFixture(t)
	id := uuid.MustParse("6f1c2e8a-0d4b-4c55-9a0e-3b7c1d2e4f50")
	req := build(t, command.OpMCTPGetUUID, command.Params{})
	rsp, err := control.EncodeMessage(&control.Message{
		Header: control.Header{Command: control.CmdGetUUID},
		Obj:    &control.GetUUIDRsp{UUID: id},
	})
	require.NoError(t, err)

	res := f.d.Handle(pending(t, req, rsp, nil), PrintOnly)
	require.NoError(t, res.Failure())
	assert.Equal(t, "MCTP UUID: "+id.String()+"\n", f.out.String())

	f.out.Reset()
	req = build(t, command.OpMCTPGetEID, command.Params{})
	rsp, err = control.EncodeMessage(&control.Message{
		Header: control.Header{Command: control.CmdGetEID},
		Obj:    &control.GetEIDRsp{Status: control.Status{CC: control.CCNotReady}},
	})
	require.NoError(t, err)

	res = f.d.Handle(pending(t, req, rsp, nil), PrintOnly)
	var remote *RemoteError
	require.True(t, errors.As(res.Err, &remote))
	assert.Equal(t, uint16(control.CCNotReady), remote.Code)
	assert.Contains(t, f.out.String(), "Error: MCTP Control Command")
}

func TestControlRequestEchoIsUnexpected(t *testing.T) {
	f := newFixture(t)
	req := build(t, command.OpMCTPGetEID, command.Params{})
	b, err := control.EncodeMessage(&control.Message{
		Header: control.Header{Request: true, Command: control.CmdGetEID},
		Obj:    &control.GetEIDReq{},
	})
	require.NoError(t, err)

	res := f.d.Handle(pending(t, req, b, nil), PrintOnly)
	assert.ErrorIs(t, res.Err, ErrUnexpectedCategory)
}
