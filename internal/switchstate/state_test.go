package switchstate

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danmuck/cxlctl/internal/protocol/fmapi"
)

func pooledPort(ppid uint8, lds uint8) fmapi.PortInfo {
	return fmapi.PortInfo{
		PPID:       ppid,
		State:      fmapi.PortDSP,
		DeviceType: fmapi.DeviceType3MLD,
		PRSNT:      true,
		NumLD:      lds,
	}
}

func TestApplyPortsIndexesByPPID(t *testing.T) {
	s := New()
	err := s.Update(func(sw *Switch) error {
		return sw.ApplyPorts([]fmapi.PortInfo{{PPID: 3, State: fmapi.PortUSP, PRSNT: true}})
	})
	require.NoError(t, err)

	snap := s.Snapshot()
	assert.Equal(t, fmapi.PortUSP, snap.Ports[3].State)
	assert.True(t, snap.Ports[3].Present())
	assert.Equal(t, fmapi.PortDisabled, snap.Ports[0].State)
	assert.Equal(t, []uint8{3}, snap.PresentPorts())
}

func TestApplyPortsRejectsWholeResponse(t *testing.T) {
	s := New()
	err := s.Update(func(sw *Switch) error {
		return sw.ApplyPorts([]fmapi.PortInfo{{PPID: 1, PRSNT: true}, {PPID: MaxPorts}})
	})
	require.ErrorIs(t, err, ErrPortOutOfRange)
	snap := s.Snapshot()
	assert.Empty(t, snap.PresentPorts())
}

func TestLDInfoAllocatesMLD(t *testing.T) {
	s := New()
	require.NoError(t, s.Update(func(sw *Switch) error {
		return sw.ApplyPorts([]fmapi.PortInfo{pooledPort(4, 8)})
	}))
	require.NoError(t, s.Update(func(sw *Switch) error {
		return sw.ApplyLDInfo(4, &fmapi.MCCInfoRsp{MemorySize: 8 << 30, NumLDs: 8, EPC: true})
	}))

	snap := s.Snapshot()
	m := snap.Ports[4].MLD
	require.NotNil(t, m)
	assert.Equal(t, uint16(8), m.Num)
	assert.Len(t, m.ConfigSpace, 8)
	for _, cfg := range m.ConfigSpace {
		assert.Len(t, cfg, ConfigSpaceLen)
	}
	assert.Len(t, m.Range1, 8)
	assert.Len(t, m.AllocBW, 8)
	assert.True(t, m.EPC)
	assert.Equal(t, []uint8{4}, snap.PooledPorts())
}

func TestLDInfoRequiresPooledPort(t *testing.T) {
	s := New()
	err := s.Update(func(sw *Switch) error {
		return sw.ApplyLDInfo(2, &fmapi.MCCInfoRsp{NumLDs: 4})
	})
	require.ErrorIs(t, err, ErrNotPooled)
	assert.Nil(t, s.Snapshot().Ports[2].MLD)
}

func TestPortLosingPooledDeviceDropsMLD(t *testing.T) {
	s := New()
	require.NoError(t, s.Update(func(sw *Switch) error {
		if err := sw.ApplyPorts([]fmapi.PortInfo{pooledPort(1, 2)}); err != nil {
			return err
		}
		if err := sw.ApplyLDInfo(1, &fmapi.MCCInfoRsp{NumLDs: 2}); err != nil {
			return err
		}
		return sw.ApplyPorts([]fmapi.PortInfo{{PPID: 1, DeviceType: fmapi.DeviceType3SLD, PRSNT: true}})
	}))
	assert.Nil(t, s.Snapshot().Ports[1].MLD)
}

func TestLDWindowBeyondCountIsRejected(t *testing.T) {
	s := New()
	require.NoError(t, s.Update(func(sw *Switch) error {
		if err := sw.ApplyPorts([]fmapi.PortInfo{pooledPort(4, 2)}); err != nil {
			return err
		}
		return sw.ApplyLDInfo(4, &fmapi.MCCInfoRsp{NumLDs: 2})
	}))

	err := s.Update(func(sw *Switch) error {
		return sw.ApplyQoSAllocated(4, fmapi.BWList{Start: 1, Fractions: []uint8{10, 20}})
	})
	require.ErrorIs(t, err, ErrLDOutOfRange)
	assert.Equal(t, []uint8{0, 0}, s.Snapshot().Ports[4].MLD.AllocBW)

	err = s.Update(func(sw *Switch) error {
		return sw.ApplyQoSLimit(5, fmapi.BWList{Fractions: []uint8{1}})
	})
	require.ErrorIs(t, err, ErrNoMLD)
}

func TestApplyIsIdempotent(t *testing.T) {
	s := New()
	g := fmapi.Granularity512MB
	apply := func() {
		require.NoError(t, s.Update(func(sw *Switch) error {
			if err := sw.ApplyPorts([]fmapi.PortInfo{pooledPort(4, 2)}); err != nil {
				return err
			}
			if err := sw.ApplyLDInfo(4, &fmapi.MCCInfoRsp{MemorySize: 1 << 30, NumLDs: 2}); err != nil {
				return err
			}
			return sw.ApplyLDAllocations(4, &g, fmapi.LDAllocations{Ranges: []fmapi.LDRange{{Range1: 1, Range2: 2}, {Range1: 3, Range2: 4}}})
		}))
	}

	apply()
	once := s.Snapshot()
	apply()
	assert.Equal(t, once, s.Snapshot())
	assert.Equal(t, []uint64{1, 3}, once.Ports[4].MLD.Range1)
}

func TestPortConfigHonorsByteEnables(t *testing.T) {
	s := New()
	req := &fmapi.PSCCfgReq{PPID: 2, ConfigAccess: fmapi.ConfigAccess{Reg: 0x10, FDBE: 0x5, Type: fmapi.ConfigRead}}
	require.NoError(t, s.Update(func(sw *Switch) error {
		return sw.ApplyPortConfig(req, &fmapi.PSCCfgRsp{Data: []byte{0xAA, 0xBB, 0xCC, 0xDD}})
	}))

	cfg := s.Snapshot().Ports[2].ConfigSpace
	assert.Equal(t, []byte{0xAA, 0x00, 0xCC, 0x00}, cfg[0x10:0x14])

	write := &fmapi.PSCCfgReq{PPID: 2, ConfigAccess: fmapi.ConfigAccess{Reg: 0x10, FDBE: 0xF, Type: fmapi.ConfigWrite}}
	require.NoError(t, s.Update(func(sw *Switch) error {
		return sw.ApplyPortConfig(write, &fmapi.PSCCfgRsp{})
	}))
	assert.Equal(t, cfg, s.Snapshot().Ports[2].ConfigSpace)
}

func TestApplyVCSsOffsetsByStart(t *testing.T) {
	s := New()
	req := &fmapi.VSCInfoReq{VPPBStart: 2, VPPBLimit: 2, VCSs: []uint8{1}}
	rsp := &fmapi.VSCInfoRsp{VCSs: []fmapi.VCSInfo{{
		VCSID: 1, State: fmapi.VCSEnabled, USPID: 0, NumVPPBs: 4,
		VPPBs: []fmapi.VPPBStatus{{Status: fmapi.BindPort, PPID: 5}, {Status: fmapi.BindLD, PPID: 4, LDID: 1}},
	}}}
	require.NoError(t, s.Update(func(sw *Switch) error { return sw.ApplyVCSs(req, rsp) }))

	v := s.Snapshot().VCSs[1]
	assert.Equal(t, fmapi.VCSEnabled, v.State)
	assert.Equal(t, fmapi.BindPort, v.VPPBs[2].Status)
	assert.Equal(t, uint8(5), v.VPPBs[2].PPID)
	assert.Equal(t, fmapi.BindLD, v.VPPBs[3].Status)
	assert.Equal(t, fmapi.BindUnbound, v.VPPBs[0].Status)
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	s := New()
	require.NoError(t, s.Update(func(sw *Switch) error {
		if err := sw.ApplyPorts([]fmapi.PortInfo{pooledPort(0, 1)}); err != nil {
			return err
		}
		return sw.ApplyLDInfo(0, &fmapi.MCCInfoRsp{NumLDs: 1})
	}))

	snap := s.Snapshot()
	snap.Ports[0].MLD.Range1[0] = 99
	assert.Equal(t, uint64(0), s.Snapshot().Ports[0].MLD.Range1[0])
}

func TestConcurrentReadersAndWriters(t *testing.T) {
	s := New()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(ppid uint8) {
			defer wg.Done()
			_ = s.Update(func(sw *Switch) error {
				return sw.ApplyPorts([]fmapi.PortInfo{{PPID: ppid, PRSNT: true}})
			})
		}(uint8(i))
		go func() {
			defer wg.Done()
			s.Read(func(sw *Switch) { _ = sw.PresentPorts() })
		}()
	}
	wg.Wait()
	snap := s.Snapshot()
	assert.Len(t, snap.PresentPorts(), 8)
}

func TestActiveCounts(t *testing.T) {
	s := New()
	rsp := &fmapi.PSCIDRsp{NumPorts: 8, NumVCSs: 2}
	rsp.ActivePorts[0] = 0x0F
	rsp.ActivePorts[1] = 0x01
	rsp.ActiveVCSs[0] = 0x03
	require.NoError(t, s.Update(func(sw *Switch) error {
		sw.ApplySwitchInfo(rsp)
		return nil
	}))
	snap := s.Snapshot()
	assert.Equal(t, 5, snap.ActivePortCount())
	assert.Equal(t, 2, snap.ActiveVCSCount())
}
