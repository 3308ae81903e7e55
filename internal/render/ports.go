// Package render prints decoded responses and cached switch state for
// operators.
package render

import (
	"fmt"
	"io"
	"strings"

	"github.com/danmuck/cxlctl/internal/protocol/fmapi"
)

type column struct {
	width int
	title string
}

var portColumns = []column{
	{3, "#"},
	{1, "@"},
	{10, "Port State"},
	{6, "Type"},
	{2, "LD"},
	{3, "Ver"},
	{8, "CXL Ver"},
	{3, "MLW"},
	{3, "NLW"},
	{3, "MLS"},
	{3, "CLS"},
	{8, "Speeds"},
	{8, "LTSSM"},
	{2, "LN"},
	{16, "Flags"},
}

const columnGap = 2

// row is a fixed-width line. Cells are written at their column offset and
// may overrun into the gap like the console tables they mirror.
type row []byte

func newRow() row {
	n := 0
	for _, c := range portColumns {
		n += c.width + columnGap
	}
	r := make(row, n+16)
	for i := range r {
		r[i] = ' '
	}
	return r
}

func (r row) put(offset int, s string) {
	copy(r[offset:], s)
}

func (r row) String() string {
	return strings.TrimRight(string(r), " ")
}

func columnOffsets() []int {
	offs := make([]int, len(portColumns))
	at := 0
	for i, c := range portColumns {
		offs[i] = at
		at += c.width + columnGap
	}
	return offs
}

// bitLabels renders bit n of mask as label[n], or a space when clear.
func bitLabels(mask uint8, first byte) string {
	b := make([]byte, 8)
	for n := 0; n < 8; n++ {
		if mask>>n&0x01 != 0 {
			b[n] = first + byte(n)
		} else {
			b[n] = ' '
		}
	}
	return string(b)
}

func flags(p fmapi.PortInfo) string {
	b := []byte("    ")
	if p.LaneReversed {
		b[0] = 'L'
	}
	if p.PERST {
		b[1] = 'R'
	}
	if p.PRSNT {
		b[2] = 'P'
	}
	if p.PowerCtrl {
		b[3] = 'W'
	}
	return string(b)
}

// Ports prints the physical port table. Fields that are meaningless for an
// empty port print as "-".
func Ports(w io.Writer, ports []fmapi.PortInfo) {
	offs := columnOffsets()

	header := newRow()
	rule := newRow()
	for i, c := range portColumns {
		header.put(offs[i], c.title)
		rule.put(offs[i], strings.Repeat("-", c.width))
	}
	fmt.Fprintln(w, header)
	fmt.Fprintln(w, rule)

	for _, p := range ports {
		r := newRow()
		present := func(col int, s string) {
			if p.PRSNT {
				r.put(offs[col], s)
			} else {
				r.put(offs[col], "-")
			}
		}

		r.put(offs[0], fmt.Sprintf("%d", p.PPID))
		if p.PRSNT {
			r.put(offs[1], "+")
		} else {
			r.put(offs[1], "-")
		}
		r.put(offs[2], p.State.String())
		present(3, p.DeviceType.String())
		if p.PRSNT && (p.DeviceType == fmapi.DeviceType3SLD || p.DeviceType.Pooled()) {
			r.put(offs[4], fmt.Sprintf("%d", p.NumLD))
		} else {
			r.put(offs[4], "-")
		}
		present(5, p.DeviceVersion.String())
		present(6, bitLabels(p.CXLVersions, 'A'))
		r.put(offs[7], fmt.Sprintf("%d", p.MaxLinkWidth))
		present(8, fmt.Sprintf("%d", p.NegotiatedWidth()))
		r.put(offs[9], p.MaxLinkSpeed.String())
		present(10, p.CurLinkSpeed.String())
		present(11, bitLabels(p.LinkSpeeds, '0'))
		present(12, p.LTSSM.String())
		present(13, fmt.Sprintf("%d", p.FirstLane))
		r.put(offs[14], flags(p))

		fmt.Fprintln(w, r)
	}
}
