package fmapi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danmuck/cxlctl/internal/protocol/mctp"
)

func TestHeaderRoundTrip(t *testing.T) {
	in := Header{
		Category:   CategoryResponse,
		Tag:        0x42,
		Opcode:     OpVSCBind,
		Len:        0x1ABCDE,
		Background: true,
		ReturnCode: RCBackgroundOpStarted,
		ExtStatus:  0xBEEF,
	}
	b := EncodeHeader(in)
	require.Len(t, b, HeaderLen)

	out, err := DecodeHeader(b)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestDecodeHeaderShort(t *testing.T) {
	_, err := DecodeHeader(make([]byte, HeaderLen-1))
	require.ErrorIs(t, err, ErrShortHeader)
}

func TestKindTable(t *testing.T) {
	for _, op := range opcodeOrder {
		req, ok := op.RequestKind()
		require.True(t, ok, op.String())
		rsp, ok := op.ResponseKind()
		require.True(t, ok, op.String())

		assert.Equal(t, op, req.Opcode())
		assert.Equal(t, op, rsp.Opcode())
		assert.False(t, req.IsResponse())
		assert.True(t, rsp.IsResponse())
		assert.Equal(t, req, newObject(req).Kind())
		assert.Equal(t, rsp, newObject(rsp).Kind())
	}

	_, ok := Opcode(0x9999).RequestKind()
	assert.False(t, ok)
}

func TestRequestRoundTrip(t *testing.T) {
	var aerHeader [AERHeaderLen]byte
	for i := range aerHeader {
		aerHeader[i] = byte(i)
	}

	cases := []Object{
		&ISCIDReq{},
		&ISCBOSReq{},
		&ISCMsgLimitSetReq{MsgLimit{LimitN: 13}},
		&PSCPortReq{Ports: []uint8{1, 3, 5, 6, 7}},
		&PSCPortCtrlReq{PPID: 2, Control: PortResetPPB},
		&PSCCfgReq{PPID: 4, ConfigAccess: ConfigAccess{Reg: 0x10, Ext: 1, FDBE: 0x1, Type: ConfigWrite, Data: [4]byte{1, 2, 3, 4}}},
		&VSCInfoReq{VPPBStart: 0, VPPBLimit: 255, VCSs: []uint8{0, 1}},
		&VSCBindReq{VCSID: 0, VPPBID: 2, PPID: 5, LDID: 0xFFFF},
		&VSCUnbindReq{VCSID: 1, VPPBID: 3, Option: UnbindManagedHotRemove},
		&VSCAERReq{VCSID: 1, VPPBID: 2, Error: 0xDEADBEEF, Header: aerHeader},
		&MPCCfgReq{PPID: 4, LDID: 2, ConfigAccess: ConfigAccess{Reg: 8, FDBE: 0xF}},
		&MPCMemReq{PPID: 4, LDID: 1, FDBE: 0xF, LDBE: 0xF, Len: 8, Offset: 0x1000},
		&MPCMemReq{PPID: 4, FDBE: 0xF, LDBE: 0x3, Type: ConfigWrite, Len: 4, Data: []byte{9, 8, 7, 6}},
		&MCCAllocGetReq{Start: 1, Limit: 4},
		&MCCAllocSetReq{LDAllocations{Start: 2, Ranges: []LDRange{{1, 2}, {3, 4}}}},
		&MCCQoSCtrlSetReq{QoSControl{EPCEnable: true, EgressModPercent: 10, EgressSevPercent: 25, SampleInterval: 8, ReqCmpBasis: 0x1234, CompletionInterval: 100}},
		&MCCQoSAllocGetReq{BWWindow{Num: 255, Start: 0}},
		&MCCQoSLimitSetReq{BWList{Start: 1, Fractions: []uint8{10, 20, 30}}},
	}

	for _, in := range cases {
		t.Run(in.Kind().String(), func(t *testing.T) {
			b, err := Encode(in)
			require.NoError(t, err)
			out, err := Decode(b, in.Kind(), nil)
			require.NoError(t, err)
			assert.Equal(t, in, out)
		})
	}
}

func TestTunnelRequestRoundTrip(t *testing.T) {
	inner := NewRequest(&MCCAllocGetReq{Start: 0, Limit: 8})
	outer := NewRequest(&MPCTMCReq{PPID: 4, Type: mctp.TypeCXLCCI, Inner: inner})
	require.NoError(t, Finalize(outer))

	assert.Equal(t, CategoryRequest, inner.Header.Category)
	assert.Equal(t, uint32(2), inner.Header.Len)
	assert.Equal(t, uint32(4+HeaderLen+2), outer.Header.Len)

	b, err := EncodeMessage(outer)
	require.NoError(t, err)
	got, err := DecodeRequestMessage(b)
	require.NoError(t, err)
	assert.Equal(t, outer, got)
}

func TestConfigResponseDependsOnRequest(t *testing.T) {
	read := &PSCCfgReq{PPID: 1, ConfigAccess: ConfigAccess{FDBE: 0xF, Type: ConfigRead}}
	write := &PSCCfgReq{PPID: 1, ConfigAccess: ConfigAccess{FDBE: 0xF, Type: ConfigWrite}}
	body := []byte{0x86, 0x80, 0x34, 0x12}

	obj, err := Decode(body, KindPSCCfgRsp, read)
	require.NoError(t, err)
	assert.Equal(t, body, obj.(*PSCCfgRsp).Data)

	obj, err = Decode(nil, KindPSCCfgRsp, write)
	require.NoError(t, err)
	assert.Nil(t, obj.(*PSCCfgRsp).Data)

	_, err = Decode(body, KindPSCCfgRsp, nil)
	require.ErrorIs(t, err, ErrMissingContext)
}

func TestVSCInfoResponseWindow(t *testing.T) {
	rsp := &VSCInfoRsp{VCSs: []VCSInfo{{
		VCSID:    0,
		State:    VCSEnabled,
		USPID:    1,
		NumVPPBs: 4,
		VPPBs: []VPPBStatus{
			{Status: BindPort, PPID: 2},
			{Status: BindLD, PPID: 4, LDID: 1},
		},
	}}}
	b, err := Encode(rsp)
	require.NoError(t, err)

	obj, err := Decode(b, KindVSCInfoRsp, &VSCInfoReq{VPPBStart: 2, VPPBLimit: 255, VCSs: []uint8{0}})
	require.NoError(t, err)
	assert.Equal(t, rsp, obj)

	assert.Equal(t, 0, vppbWindow(4, 4, 10))
	assert.Equal(t, 3, vppbWindow(8, 2, 3))
	assert.Equal(t, 6, vppbWindow(8, 2, 255))
}

func TestMemoryResponse(t *testing.T) {
	req := &MPCMemReq{PPID: 4, Len: 4, Type: ConfigRead}
	b, err := Encode(&MPCMemRsp{Len: 4, Data: []byte{1, 2, 3, 4}})
	require.NoError(t, err)

	obj, err := Decode(b, KindMPCMemRsp, req)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, obj.(*MPCMemRsp).Data)

	_, err = Encode(&MPCMemReq{Len: MaxLDMemLen + 1})
	require.ErrorIs(t, err, ErrInvalidField)
}

func TestDecodeShortPayload(t *testing.T) {
	_, err := Decode([]byte{0x01, 0x02}, KindISCIDRsp, nil)
	require.ErrorIs(t, err, ErrShortPayload)

	_, err = Decode(nil, KindInvalid, nil)
	require.ErrorIs(t, err, ErrUnknownKind)
}

func TestPortInfoFlags(t *testing.T) {
	in := &PSCPortRsp{Ports: []PortInfo{{
		PPID:          3,
		State:         PortDSP,
		DeviceVersion: VersionCXL20,
		DeviceType:    DeviceType3MLD,
		CXLVersions:   0x3,
		MaxLinkWidth:  16,
		NegLinkWidth:  0x80,
		LinkSpeeds:    0x3F,
		MaxLinkSpeed:  5,
		CurLinkSpeed:  5,
		LTSSM:         4,
		LaneReversed:  true,
		PRSNT:         true,
		NumLD:         8,
	}}}
	b, err := Encode(in)
	require.NoError(t, err)
	require.Len(t, b, 4+PortInfoLen)

	out, err := Decode(b, KindPSCPortRsp, &PSCPortReq{Ports: []uint8{3}})
	require.NoError(t, err)
	assert.Equal(t, in, out)
}
