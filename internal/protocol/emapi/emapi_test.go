package emapi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestArgumentsRideInHeader(t *testing.T) {
	b, err := EncodeMessage(NewRequest(&ConnDevReq{PPID: 3, Device: 7}))
	require.NoError(t, err)
	require.Len(t, b, HeaderLen)

	h, err := DecodeHeader(b)
	require.NoError(t, err)
	assert.Equal(t, TypeRequest, h.Type)
	assert.Equal(t, OpConnDev, h.Opcode)
	assert.Equal(t, uint8(3), h.A)
	assert.Equal(t, uint8(7), h.B)

	obj, err := Decode(h, nil, KindConnDevReq)
	require.NoError(t, err)
	assert.Equal(t, &ConnDevReq{PPID: 3, Device: 7}, obj)
}

func TestListDevicesResponse(t *testing.T) {
	in := &ListDevRsp{Devices: []Device{{ID: 0, Name: "t3-mld-512"}, {ID: 4, Name: "nvme"}}}
	b, err := EncodeMessage(&Message{Header: Header{Type: TypeResponse}, Obj: in})
	require.NoError(t, err)

	h, err := DecodeHeader(b)
	require.NoError(t, err)
	assert.Equal(t, uint8(2), h.A)

	payload, err := Body(h, b)
	require.NoError(t, err)
	out, err := Decode(h, payload, KindListDevRsp)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestListDevicesResponseTruncated(t *testing.T) {
	h := Header{Type: TypeResponse, Opcode: OpListDev, A: 1}
	_, err := Decode(h, []byte{0, 10, 'a'}, KindListDevRsp)
	require.ErrorIs(t, err, ErrShortPayload)
}

func TestDecodeHeaderShort(t *testing.T) {
	_, err := DecodeHeader([]byte{1, 2, 3})
	require.ErrorIs(t, err, ErrShortHeader)
}
