package render

import (
	"encoding/hex"
	"fmt"
	"io"
	"math/bits"

	"github.com/danmuck/cxlctl/internal/protocol/fmapi"
)

func Identity(w io.Writer, r *fmapi.ISCIDRsp) {
	fmt.Fprintf(w, "Show Identity:\n")
	fmt.Fprintf(w, "PCIe Vendor ID:           0x%x\n", r.VendorID)
	fmt.Fprintf(w, "PCIe Device ID:           0x%x\n", r.DeviceID)
	fmt.Fprintf(w, "PCIe Subsystem Vendor ID: 0x%x\n", r.SubsystemVendorID)
	fmt.Fprintf(w, "PCIe Subsystem ID:        0x%x\n", r.SubsystemID)
	fmt.Fprintf(w, "SN:                       0x%x\n", r.SerialNumber)
	fmt.Fprintf(w, "Max Msg Size n of 2^n:    %d - %d B\n", r.MaxMsgSizeN, uint64(1)<<r.MaxMsgSizeN)
}

// BOS prints the background operation status. The opcode shown is the one
// running in the background.
func BOS(w io.Writer, r *fmapi.ISCBOSRsp) {
	fmt.Fprintf(w, "Show Background Operation Status:\n")
	fmt.Fprintf(w, "Background Op. Running:   %d\n", boolInt(r.Running))
	fmt.Fprintf(w, "Percent Complete:         %d%%\n", r.Percent)
	fmt.Fprintf(w, "Command Opcode:           0x%04x - %s\n", uint16(r.Opcode), r.Opcode)
	fmt.Fprintf(w, "Return Code:              0x%04x - %s\n", uint16(r.ReturnCode), r.ReturnCode)
	fmt.Fprintf(w, "Vendor Specific Status:   0x%04x\n", r.ExtStatus)
}

func MsgLimit(w io.Writer, l fmapi.MsgLimit) {
	fmt.Fprintf(w, "Response Msg Limit (n of 2^n):  %d - %d B\n", l.LimitN, uint64(1)<<l.LimitN)
}

func Switch(w io.Writer, r *fmapi.PSCIDRsp) {
	fmt.Fprintf(w, "Show Switch:\n")
	fmt.Fprintf(w, "Ingress Port ID       : %d\n", r.IngressPort)
	fmt.Fprintf(w, "Num Physical Ports    : %d\n", r.NumPorts)
	fmt.Fprintf(w, "Active Physical Ports : %d\n", countBits(r.ActivePorts[:]))
	fmt.Fprintf(w, "Num VCSs              : %d\n", r.NumVCSs)
	fmt.Fprintf(w, "Active VCSs           : %d\n", countBits(r.ActiveVCSs[:]))
	fmt.Fprintf(w, "Num VPPBs             : %d\n", r.NumVPPBs)
	fmt.Fprintf(w, "Num Active VPPBs      : %d\n", r.ActiveVPPBs)
	fmt.Fprintf(w, "Num HDM Decoders      : %d\n", r.NumHDMDecoder)
}

// ConfigData prints a read dword. Writes return no data and print nothing.
func ConfigData(w io.Writer, data []byte) {
	if len(data) < 4 {
		return
	}
	fmt.Fprintf(w, "Data: 0x%02x%02x%02x%02x\n", data[0], data[1], data[2], data[3])
}

// VCSs prints virtual switch blocks. start is the first vPPB of each block.
func VCSs(w io.Writer, r *fmapi.VSCInfoRsp, start uint8) {
	fmt.Fprintf(w, "Show VCS:\n")
	for i, v := range r.VCSs {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "VCS ID  : %d\n", v.VCSID)
		fmt.Fprintf(w, "State   : %s\n", v.State)
		fmt.Fprintf(w, "USP ID  : %d\n", v.USPID)
		fmt.Fprintf(w, "vPPBs   : %d\n", v.NumVPPBs)
		fmt.Fprintln(w)
		fmt.Fprintf(w, "vPPB  PPID LDID Status\n")
		fmt.Fprintf(w, "----  ---- ---- -----------\n")
		for k, b := range v.VPPBs {
			fmt.Fprintf(w, "%4d: %s\n", int(start)+k, vppb(b))
		}
	}
}

func vppb(b fmapi.VPPBStatus) string {
	switch b.Status {
	case fmapi.BindUnbound:
		return fmt.Sprintf("   -    - %s", b.Status)
	case fmapi.BindInProgress:
		return fmt.Sprintf("   ?    ? %s", b.Status)
	case fmapi.BindPort:
		return fmt.Sprintf("%4d    - %s", b.PPID, b.Status)
	case fmapi.BindLD:
		return fmt.Sprintf("%4d %4d %s", b.PPID, b.LDID, b.Status)
	default:
		return ""
	}
}

// BackgroundStarted reports a command still running on the switch.
func BackgroundStarted(w io.Writer, operation string) {
	fmt.Fprintf(w, "%s operation started in the background\n", operation)
}

// Memory dumps LD memory read data.
func Memory(w io.Writer, data []byte) {
	if len(data) == 0 {
		return
	}
	io.WriteString(w, hex.Dump(data))
}

func LDInfo(w io.Writer, r *fmapi.MCCInfoRsp) {
	gib := float64(r.MemorySize) / float64(1<<30)
	fmt.Fprintf(w, "Memory Size                 : 0x%x - %.1f GiB\n", r.MemorySize, gib)
	fmt.Fprintf(w, "LD Count                    : %d\n", r.NumLDs)
	fmt.Fprintf(w, "QoS: Port Congestion        : %d\n", boolInt(r.EPC))
	fmt.Fprintf(w, "QoS: Temporary BW Reduction : %d\n", boolInt(r.TTR))
}

func LDAllocations(w io.Writer, r *fmapi.MCCAllocGetRsp) {
	fmt.Fprintf(w, "Total LDs on Device: %d\n", r.Total)
	fmt.Fprintf(w, "Memory Granularity : %d - %s\n", uint8(r.Granularity), r.Granularity)
	fmt.Fprintf(w, "Start LD ID of list: %d\n", r.Start)
	fmt.Fprintf(w, "Num LDs in list    : %d\n", len(r.Ranges))
	fmt.Fprintln(w)
	ranges(w, r.Start, r.Ranges)
}

func LDAllocationsSet(w io.Writer, a fmapi.LDAllocations) {
	fmt.Fprintf(w, "Number of LDs      : %d\n", len(a.Ranges))
	fmt.Fprintf(w, "Starting LD ID     : %d\n", a.Start)
	fmt.Fprintln(w)
	ranges(w, a.Start, a.Ranges)
}

func ranges(w io.Writer, start uint8, rs []fmapi.LDRange) {
	fmt.Fprintf(w, "LDID  Range1             Range2\n")
	fmt.Fprintf(w, "----  ------------------ ------------------\n")
	for i, r := range rs {
		fmt.Fprintf(w, "%4d: 0x%016x 0x%016x\n", i+int(start), r.Range1, r.Range2)
	}
}

func QoSControl(w io.Writer, q fmapi.QoSControl) {
	fmt.Fprintf(w, "Port Congestion                : %d\n", boolInt(q.EPCEnable))
	fmt.Fprintf(w, "Temporary BW Reduction         : %d\n", boolInt(q.TTREnable))
	fmt.Fprintf(w, "Egress Moderate Pcnt           : %d\n", q.EgressModPercent)
	fmt.Fprintf(w, "Egress Severe Pcnt             : %d\n", q.EgressSevPercent)
	fmt.Fprintf(w, "Backpressure Sample Interval   : %d\n", q.SampleInterval)
	fmt.Fprintf(w, "ReqCmpBasis                    : %d\n", q.ReqCmpBasis)
	fmt.Fprintf(w, "Completion Collection Interval : %d\n", q.CompletionInterval)
}

func QoSStatus(w io.Writer, r *fmapi.MCCQoSStatRsp) {
	fmt.Fprintf(w, "Backpressure Avg Pcnt :  %d\n", r.BPAvgPercent)
}

// Bandwidth prints per-LD bandwidth fractions out of 256.
func Bandwidth(w io.Writer, l fmapi.BWList) {
	fmt.Fprintf(w, "LDID  Val        PCNT\n")
	fmt.Fprintf(w, "----  ---------- ------\n")
	for i, v := range l.Fractions {
		fmt.Fprintf(w, "%4d: %4d / 256 %5.1f%%\n", i+int(l.Start), v, Percent(v))
	}
}

// Percent converts a fraction out of 256 to a percentage.
func Percent(v uint8) float64 {
	return 100.0 * float64(v) / 256.0
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func countBits(mask []byte) int {
	n := 0
	for _, b := range mask {
		n += bits.OnesCount8(b)
	}
	return n
}
