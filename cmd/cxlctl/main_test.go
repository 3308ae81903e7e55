package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danmuck/cxlctl/internal/command"
	"github.com/danmuck/cxlctl/internal/config"
	"github.com/danmuck/cxlctl/internal/protocol/fmapi"
	"github.com/danmuck/cxlctl/internal/testutil/testlog"
	"github.com/danmuck/cxlctl/internal/transport"
)

// fakeBus answers identity and BOS requests and records what it saw.
type fakeBus struct {
	t *testing.T

	mu     sync.Mutex
	ops    []fmapi.Opcode
	closed bool
}

func (f *fakeBus) Submit(_ context.Context, s transport.Submission) (*transport.Action, error) {
	m, err := fmapi.DecodeRequestMessage(s.Payload)
	require.NoError(f.t, err)

	f.mu.Lock()
	f.ops = append(f.ops, m.Header.Opcode)
	f.mu.Unlock()

	var rsp fmapi.Object
	switch m.Obj.(type) {
	case *fmapi.ISCIDReq:
		rsp = &fmapi.ISCIDRsp{VendorID: 0x1ab4, DeviceID: 0x2}
	case *fmapi.ISCBOSReq:
		rsp = &fmapi.ISCBOSRsp{Opcode: fmapi.OpVSCBind, Percent: 50, Running: true}
	default:
		f.t.Fatalf("unexpected request %T", m.Obj)
	}
	b, err := fmapi.EncodeMessage(&fmapi.Message{
		Header: fmapi.Header{Category: fmapi.CategoryResponse},
		Obj:    rsp,
	})
	require.NoError(f.t, err)

	a := transport.CompletedAction(s.Type, s.Payload, b, nil)
	if s.Completed != nil {
		s.Completed <- a
	}
	return a, nil
}

func (f *fakeBus) Retire(a *transport.Action) { transport.ReleaseAction(a) }

func (f *fakeBus) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func emptyConfig(t *testing.T) string {
	t.Helper()
	for _, k := range []string{config.EnvAddress, config.EnvPort, config.EnvVerbosity, config.EnvMCTPVerbosity} {
		t.Setenv(k, "")
	}
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, nil, 0o600))
	return path
}

// runApp executes args against a with a config file that holds only
// defaults.
func runApp(t *testing.T, a *app, args ...string) error {
	t.Helper()
	root := a.rootCmd()
	root.SetArgs(append([]string{"--config", emptyConfig(t)}, args...))
	root.SetOut(a.out)
	root.SetErr(a.out)
	return root.ExecuteContext(context.Background())
}

func noDial(t *testing.T) func(context.Context, transport.Config) (bus, error) {
	return func(context.Context, transport.Config) (bus, error) {
		t.Fatalf("unexpected connection attempt")
		return nil, nil
	}
}

func TestOptValueAcceptsDecimalAndHex(t *testing.T) {
	testlog.Start(t)
	var o command.Opt[uint8]
	v := optFlag(&o, 8)
	require.NoError(t, v.Set("0x1f"))
	assert.Equal(t, command.Some(uint8(31)), o)
	require.NoError(t, v.Set("7"))
	assert.Equal(t, uint8(7), o.Value)
	assert.Error(t, v.Set("256"))
	assert.Error(t, v.Set(""))

	var d command.Opt[uint32]
	h := hexFlag(&d, 32)
	require.NoError(t, h.Set("deadbeef"))
	assert.Equal(t, uint32(0xdeadbeef), d.Value)
	require.NoError(t, h.Set("0x10"))
	assert.Equal(t, uint32(0x10), d.Value)
	assert.Equal(t, "0x10", h.String())
}

func TestListValues(t *testing.T) {
	testlog.Start(t)
	var p command.Params
	ports := &portsValue{p: &p}
	require.NoError(t, ports.Set("1,3-4"))
	assert.Equal(t, []uint8{1, 3, 4}, p.PPIDs)
	require.NoError(t, ports.Set("2"))
	assert.Equal(t, command.Some(uint8(2)), p.PPID)
	assert.Nil(t, p.PPIDs)

	fr := &byteListValue{dst: &p.QoSLimit}
	require.NoError(t, fr.Set("1,0x10,255"))
	assert.Equal(t, []uint8{1, 16, 255}, p.QoSLimit)
	assert.Error(t, fr.Set("1,256"))

	rng := &hexListValue{dst: &p.Range1}
	require.NoError(t, rng.Set("1,a,0x10"))
	assert.Equal(t, []uint64{1, 10, 16}, p.Range1)

	var mask uint64
	vb := &verbosityValue{mask: &mask}
	require.NoError(t, vb.Set("0"))
	require.NoError(t, vb.Set("2"))
	assert.Equal(t, uint64(0b101), mask)
	assert.Error(t, vb.Set("64"))
}

func TestMissingParameterFailsBeforeConnecting(t *testing.T) {
	testlog.Start(t)
	var out bytes.Buffer
	a := newApp(&out)
	a.dial = noDial(t)

	err := runApp(t, a, "set", "limit")
	require.ErrorIs(t, err, command.ErrMissingParameter)
	assert.Contains(t, err.Error(), `"limit"`)

	a = newApp(&out)
	a.dial = noDial(t)
	require.ErrorIs(t, runApp(t, a, "show", "ld", "info"), command.ErrMissingParameter)
}

func TestListWithoutInitReadsEmptyCache(t *testing.T) {
	testlog.Start(t)
	var out bytes.Buffer
	a := newApp(&out)
	a.dial = noDial(t)

	require.NoError(t, runApp(t, a, "-N", "list"))
}

func TestShowIdentityPrintsResponse(t *testing.T) {
	testlog.Start(t)
	var out bytes.Buffer
	fb := &fakeBus{t: t}
	var got transport.Config
	a := newApp(&out)
	a.dial = func(_ context.Context, cfg transport.Config) (bus, error) {
		got = cfg
		return fb, nil
	}

	require.NoError(t, runApp(t, a, "-N", "-T", "10.0.0.2", "-P", "3000", "-Z", "0x3", "show", "identity"))
	assert.Contains(t, out.String(), "PCIe Vendor ID:           0x1ab4")
	assert.Equal(t, []fmapi.Opcode{fmapi.OpISCID}, fb.ops)
	assert.True(t, fb.closed)
	assert.Equal(t, "10.0.0.2", got.Address)
	assert.Equal(t, 3000, got.Port)
	assert.Equal(t, uint64(3), got.Verbosity)
}

func TestBackgroundStatusIsNotAFailure(t *testing.T) {
	testlog.Start(t)
	var out bytes.Buffer
	a := newApp(&out)
	a.dial = func(context.Context, transport.Config) (bus, error) { return &fakeBus{t: t}, nil }

	require.NoError(t, runApp(t, a, "-N", "show", "bos"))
	assert.Contains(t, out.String(), "Percent Complete:         50%")
}

func TestExclusiveChoiceFlags(t *testing.T) {
	testlog.Start(t)
	var out bytes.Buffer
	a := newApp(&out)
	a.dial = noDial(t)

	err := runApp(t, a, "port", "unbind", "--wait", "--surprise")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "wait") && strings.Contains(err.Error(), "surprise"), err.Error())
}

func TestConfigInitWritesOnce(t *testing.T) {
	testlog.Start(t)
	var out bytes.Buffer
	path := filepath.Join(t.TempDir(), "cxlctl", "config.toml")

	require.NoError(t, runApp(t, newApp(&out), "config", "init", path))
	assert.Contains(t, out.String(), "wrote "+path)

	cfg, err := config.Load(path, true)
	require.NoError(t, err)
	assert.Equal(t, config.Default().Port, cfg.Port)

	require.Error(t, runApp(t, newApp(&out), "config", "init", path))
	require.NoError(t, runApp(t, newApp(&out), "config", "init", "--force", path))
}

func TestRunReportsExitStatus(t *testing.T) {
	testlog.Start(t)
	cfg := emptyConfig(t)
	var stdout, stderr bytes.Buffer

	assert.Equal(t, 1, run(context.Background(), []string{"--config", cfg, "set", "limit"}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "cxlctl: ")
	assert.Equal(t, 0, run(context.Background(), []string{"--config", cfg, "-N", "list"}, &stdout, &stderr))
}
