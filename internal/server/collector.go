package server

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/danmuck/cxlctl/internal/protocol/fmapi"
	"github.com/danmuck/cxlctl/internal/switchstate"
)

// cacheCollector reports gauges computed from the cache at scrape time.
type cacheCollector struct {
	state *switchstate.State

	portsPresent *prometheus.Desc
	vppbsBound   *prometheus.Desc
	mldLDs       *prometheus.Desc
}

func newCacheCollector(state *switchstate.State) *cacheCollector {
	return &cacheCollector{
		state: state,
		portsPresent: prometheus.NewDesc(
			"cxlctl_ports_present",
			"Physical ports with an attached device.",
			nil, nil,
		),
		vppbsBound: prometheus.NewDesc(
			"cxlctl_vppbs_bound",
			"vPPBs bound to a physical port or logical device.",
			nil, nil,
		),
		mldLDs: prometheus.NewDesc(
			"cxlctl_mld_lds",
			"Logical devices reported by a pooled port.",
			[]string{"ppid"}, nil,
		),
	}
}

func (c *cacheCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.portsPresent
	ch <- c.vppbsBound
	ch <- c.mldLDs
}

func (c *cacheCollector) Collect(ch chan<- prometheus.Metric) {
	var (
		present int
		bound   int
		lds     = map[uint8]uint16{}
	)
	c.state.Read(func(sw *switchstate.Switch) {
		present = len(sw.PresentPorts())
		for i := range sw.VCSs {
			v := &sw.VCSs[i]
			for j := 0; j < int(v.NumVPPBs); j++ {
				if isBound(v.VPPBs[j].Status) {
					bound++
				}
			}
		}
		for i := range sw.Ports {
			if m := sw.Ports[i].MLD; m != nil {
				lds[uint8(i)] = m.Num
			}
		}
	})

	ch <- prometheus.MustNewConstMetric(c.portsPresent, prometheus.GaugeValue, float64(present))
	ch <- prometheus.MustNewConstMetric(c.vppbsBound, prometheus.GaugeValue, float64(bound))
	for ppid, n := range lds {
		ch <- prometheus.MustNewConstMetric(c.mldLDs, prometheus.GaugeValue, float64(n), strconv.Itoa(int(ppid)))
	}
}

func isBound(s fmapi.BindStatus) bool {
	return s == fmapi.BindPort || s == fmapi.BindLD
}
