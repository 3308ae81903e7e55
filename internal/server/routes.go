package server

import (
	"encoding/hex"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/danmuck/cxlctl/internal/switchstate"
)

// configHeaderLen is how much of a port's config space the detail view shows.
const configHeaderLen = 64

func (s *Server) registerRoutes() {
	s.router.GET("/health", s.health)
	s.router.GET("/switch", s.getSwitch)
	s.router.GET("/ports", s.listPorts)
	s.router.GET("/ports/:ppid", s.getPort)
	s.router.GET("/vcs", s.listVCSs)
	s.router.GET("/vcs/:vcsid", s.getVCS)
	s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(
		prometheus.Gatherers{prometheus.DefaultGatherer, s.registry},
		promhttp.HandlerOpts{},
	)))
}

func (s *Server) health(c *gin.Context) {
	last, err := s.refreshStatus()
	body := gin.H{
		"status": "ok",
		"uptime": time.Since(s.started).String(),
	}
	if !last.IsZero() {
		body["last_refresh"] = last.UTC().Format(time.RFC3339)
	}
	if err != nil {
		body["status"] = "degraded"
		body["refresh_error"] = err.Error()
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) getSwitch(c *gin.Context) {
	var v switchView
	s.state.Read(func(sw *switchstate.Switch) {
		v = newSwitchView(sw)
	})
	c.JSON(http.StatusOK, v)
}

func (s *Server) listPorts(c *gin.Context) {
	var out []portView
	s.state.Read(func(sw *switchstate.Switch) {
		n := int(sw.NumPorts)
		if n == 0 || n > switchstate.MaxPorts {
			n = switchstate.MaxPorts
		}
		out = make([]portView, 0, n)
		for i := 0; i < n; i++ {
			out = append(out, newPortView(&sw.Ports[i], false))
		}
	})
	c.JSON(http.StatusOK, gin.H{"ports": out})
}

func (s *Server) getPort(c *gin.Context) {
	id, ok := pathID(c, "ppid", switchstate.MaxPorts)
	if !ok {
		return
	}
	var v portView
	s.state.Read(func(sw *switchstate.Switch) {
		v = newPortView(&sw.Ports[id], true)
	})
	c.JSON(http.StatusOK, v)
}

func (s *Server) listVCSs(c *gin.Context) {
	var out []vcsView
	s.state.Read(func(sw *switchstate.Switch) {
		n := min(int(sw.NumVCSs), switchstate.MaxVCSs)
		out = make([]vcsView, 0, n)
		for i := 0; i < n; i++ {
			out = append(out, newVCSView(&sw.VCSs[i]))
		}
	})
	c.JSON(http.StatusOK, gin.H{"vcss": out})
}

func (s *Server) getVCS(c *gin.Context) {
	id, ok := pathID(c, "vcsid", switchstate.MaxVCSs)
	if !ok {
		return
	}
	var v vcsView
	s.state.Read(func(sw *switchstate.Switch) {
		v = newVCSView(&sw.VCSs[id])
	})
	c.JSON(http.StatusOK, v)
}

// pathID parses a decimal path parameter and writes the error response
// itself when the id is malformed or not below limit.
func pathID(c *gin.Context, name string, limit int) (int, bool) {
	id, err := strconv.Atoi(c.Param(name))
	if err != nil || id < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	if id >= limit {
		c.JSON(http.StatusNotFound, gin.H{"error": name + " out of range"})
		return 0, false
	}
	return id, true
}

type switchView struct {
	VendorID          uint16  `json:"vendor_id"`
	DeviceID          uint16  `json:"device_id"`
	SubsystemVendorID uint16  `json:"subsystem_vendor_id"`
	SubsystemID       uint16  `json:"subsystem_id"`
	SerialNumber      string  `json:"serial_number"`
	MaxMsgSizeN       uint8   `json:"max_msg_size_n"`
	MsgLimitN         uint8   `json:"msg_limit_n"`
	BOS               bosView `json:"bos"`
	IngressPort       uint8   `json:"ingress_port"`
	NumPorts          uint8   `json:"num_ports"`
	NumVCSs           uint8   `json:"num_vcss"`
	ActivePorts       []int   `json:"active_ports"`
	ActiveVCSs        []int   `json:"active_vcss"`
	NumVPPBs          uint16  `json:"num_vppbs"`
	ActiveVPPBs       uint16  `json:"active_vppbs"`
	NumHDMDecoder     uint8   `json:"num_hdm_decoders"`
	PresentPorts      []int   `json:"present_ports"`
	PooledPorts       []int   `json:"pooled_ports"`
}

type bosView struct {
	Running    bool   `json:"running"`
	Percent    uint8  `json:"percent"`
	Opcode     string `json:"opcode"`
	ReturnCode string `json:"return_code"`
	ExtStatus  uint16 `json:"ext_status"`
}

func newSwitchView(sw *switchstate.Switch) switchView {
	return switchView{
		VendorID:          sw.Identity.VendorID,
		DeviceID:          sw.Identity.DeviceID,
		SubsystemVendorID: sw.Identity.SubsystemVendorID,
		SubsystemID:       sw.Identity.SubsystemID,
		SerialNumber:      "0x" + strconv.FormatUint(sw.Identity.SerialNumber, 16),
		MaxMsgSizeN:       sw.Identity.MaxMsgSizeN,
		MsgLimitN:         sw.MsgLimitN,
		BOS: bosView{
			Running:    sw.BOS.Running,
			Percent:    sw.BOS.Percent,
			Opcode:     sw.BOS.Opcode.String(),
			ReturnCode: sw.BOS.ReturnCode.String(),
			ExtStatus:  sw.BOS.ExtStatus,
		},
		IngressPort:   sw.IngressPort,
		NumPorts:      sw.NumPorts,
		NumVCSs:       sw.NumVCSs,
		ActivePorts:   setBits(sw.ActivePorts[:]),
		ActiveVCSs:    setBits(sw.ActiveVCSs[:]),
		NumVPPBs:      sw.NumVPPBs,
		ActiveVPPBs:   sw.ActiveVPPBs,
		NumHDMDecoder: sw.NumHDMDecoder,
		PresentPorts:  ints(sw.PresentPorts()),
		PooledPorts:   ints(sw.PooledPorts()),
	}
}

type portView struct {
	PPID          uint8    `json:"ppid"`
	Present       bool     `json:"present"`
	State         string   `json:"state"`
	DeviceVersion string   `json:"device_version"`
	DeviceType    string   `json:"device_type"`
	CXLVersions   uint8    `json:"cxl_versions"`
	MaxLinkWidth  uint8    `json:"max_link_width"`
	NegLinkWidth  uint8    `json:"negotiated_link_width"`
	LinkSpeeds    uint8    `json:"link_speeds"`
	MaxLinkSpeed  string   `json:"max_link_speed"`
	CurLinkSpeed  string   `json:"current_link_speed"`
	LTSSM         string   `json:"ltssm"`
	FirstLane     uint8    `json:"first_lane"`
	LaneReversed  bool     `json:"lane_reversed"`
	PERST         bool     `json:"perst"`
	PowerCtrl     bool     `json:"power_ctrl"`
	NumLD         uint8    `json:"num_ld"`
	ConfigHeader  string   `json:"config_header,omitempty"`
	MLD           *mldView `json:"mld,omitempty"`
}

func newPortView(p *switchstate.Port, detail bool) portView {
	v := portView{
		PPID:          p.PPID,
		Present:       p.Present(),
		State:         p.State.String(),
		DeviceVersion: p.DeviceVersion.String(),
		DeviceType:    p.DeviceType.String(),
		CXLVersions:   p.CXLVersions,
		MaxLinkWidth:  p.MaxLinkWidth,
		NegLinkWidth:  p.NegotiatedWidth(),
		LinkSpeeds:    p.LinkSpeeds,
		MaxLinkSpeed:  p.MaxLinkSpeed.String(),
		CurLinkSpeed:  p.CurLinkSpeed.String(),
		LTSSM:         p.LTSSM.String(),
		FirstLane:     p.FirstLane,
		LaneReversed:  p.LaneReversed,
		PERST:         p.PERST,
		PowerCtrl:     p.PowerCtrl,
		NumLD:         p.NumLD,
	}
	if p.MLD != nil {
		v.MLD = newMLDView(p.MLD)
	}
	if detail && v.Present {
		v.ConfigHeader = hex.EncodeToString(p.ConfigSpace[:configHeaderLen])
	}
	return v
}

type mldView struct {
	Num          uint16   `json:"num"`
	MemorySize   uint64   `json:"memory_size"`
	Granularity  string   `json:"granularity"`
	EPC          bool     `json:"epc"`
	TTR          bool     `json:"ttr"`
	Range1       []uint64 `json:"range1"`
	Range2       []uint64 `json:"range2"`
	QoS          qosView  `json:"qos"`
	BPAvgPercent uint8    `json:"bp_avg_percent"`
	AllocBW      []int    `json:"alloc_bw"`
	BWLimit      []int    `json:"bw_limit"`
}

type qosView struct {
	EPCEnable          bool   `json:"epc_enable"`
	TTREnable          bool   `json:"ttr_enable"`
	EgressModPercent   uint8  `json:"egress_moderate_percent"`
	EgressSevPercent   uint8  `json:"egress_severe_percent"`
	SampleInterval     uint8  `json:"sample_interval"`
	ReqCmpBasis        uint16 `json:"req_cmp_basis"`
	CompletionInterval uint8  `json:"completion_interval"`
}

func newMLDView(m *switchstate.MLD) *mldView {
	return &mldView{
		Num:          m.Num,
		MemorySize:   m.MemorySize,
		Granularity:  m.Granularity.String(),
		EPC:          m.EPC,
		TTR:          m.TTR,
		Range1:       append([]uint64{}, m.Range1...),
		Range2:       append([]uint64{}, m.Range2...),
		QoS:          qosView(m.QoS),
		BPAvgPercent: m.BPAvgPercent,
		AllocBW:      ints(m.AllocBW),
		BWLimit:      ints(m.BWLimit),
	}
}

type vcsView struct {
	VCSID    uint8      `json:"vcsid"`
	State    string     `json:"state"`
	USPID    uint8      `json:"usp_id"`
	NumVPPBs uint8      `json:"num_vppbs"`
	VPPBs    []vppbView `json:"vppbs"`
}

type vppbView struct {
	VPPBID int    `json:"vppbid"`
	Status string `json:"status"`
	PPID   uint8  `json:"ppid"`
	LDID   uint8  `json:"ldid"`
}

func newVCSView(v *switchstate.VirtualSwitch) vcsView {
	out := vcsView{
		VCSID:    v.VCSID,
		State:    v.State.String(),
		USPID:    v.USPID,
		NumVPPBs: v.NumVPPBs,
		VPPBs:    make([]vppbView, 0, v.NumVPPBs),
	}
	for i := 0; i < int(v.NumVPPBs); i++ {
		e := v.VPPBs[i]
		out.VPPBs = append(out.VPPBs, vppbView{VPPBID: i, Status: e.Status.String(), PPID: e.PPID, LDID: e.LDID})
	}
	return out
}

// setBits lists the indexes of the bits set in a little-endian bitmask.
func setBits(mask []byte) []int {
	out := []int{}
	for i, b := range mask {
		for bit := 0; bit < 8; bit++ {
			if b&(1<<bit) != 0 {
				out = append(out, i*8+bit)
			}
		}
	}
	return out
}

// ints keeps byte slices from marshaling as base64.
func ints(b []uint8) []int {
	out := make([]int, len(b))
	for i, v := range b {
		out[i] = int(v)
	}
	return out
}
