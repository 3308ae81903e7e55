package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/danmuck/cxlctl/internal/command"
	"github.com/danmuck/cxlctl/internal/protocol/fmapi"
)

// maxMemLen bounds one LD memory transaction.
const maxMemLen = 4096

// binder registers the flags of one operation onto its parameters.
type binder func(fs *pflag.FlagSet, p *command.Params)

// opCmd is a leaf command that builds and runs op.
func (a *app) opCmd(use, short string, op command.Operation, binders ...binder) *cobra.Command {
	p := &command.Params{}
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.execute(cmd, op, *p)
		},
	}
	for _, bind := range binders {
		bind(cmd.Flags(), p)
	}
	return cmd
}

func exclusive(cmd *cobra.Command, flags ...string) *cobra.Command {
	cmd.MarkFlagsMutuallyExclusive(flags...)
	return cmd
}

func group(use, short string, children ...*cobra.Command) *cobra.Command {
	cmd := &cobra.Command{Use: use, Short: short}
	cmd.AddCommand(children...)
	return cmd
}

func (a *app) showCmd() *cobra.Command {
	return group("show", "Query switch and device state",
		a.opCmd("identity", "Show switch identity", command.OpShowIdentity),
		a.opCmd("bos", "Show background operation status", command.OpShowBOS),
		a.opCmd("limit", "Show response message limit", command.OpShowLimit),
		a.opCmd("switch", "Show physical switch info", command.OpShowSwitch),
		a.opCmd("port", "Show physical port info", command.OpShowPort, withPorts, withAll("all physical ports")),
		a.opCmd("vcs", "Show virtual switch info", command.OpShowVCS, withVCSID),
		a.opCmd("dev", "Show emulator devices", command.OpShowDevices, withDevice, withAll("all devices")),
		group("ld", "Show logical device state",
			a.opCmd("info", "Show LD info", command.OpShowLDInfo, withPPID),
			a.opCmd("allocations", "Show LD allocations", command.OpShowLDAllocations, withPPID, withLDID, withNum),
		),
		group("qos", "Show QoS state",
			a.opCmd("control", "Show QoS control", command.OpShowQoSControl, withPPID),
			a.opCmd("status", "Show QoS status", command.OpShowQoSStatus, withPPID),
			a.opCmd("allocated", "Show QoS bandwidth allocated", command.OpShowQoSAllocated, withPPID, withLDID, withNum),
			a.opCmd("limit", "Show QoS bandwidth limit", command.OpShowQoSLimit, withPPID, withLDID, withNum),
		),
	)
}

func (a *app) setCmd() *cobra.Command {
	return group("set", "Change switch and device settings",
		a.opCmd("limit", "Set response message limit", command.OpSetLimit, withLimit),
		group("ld", "Change logical device settings",
			a.opCmd("allocations", "Set LD allocations", command.OpSetLDAllocations, withPPID, withLDID, withRanges),
		),
		group("qos", "Change QoS settings",
			a.opCmd("control", "Set QoS control", command.OpSetQoSControl, withPPID, withQoSControl),
			a.opCmd("allocated", "Set QoS bandwidth allocated", command.OpSetQoSAllocated, withPPID, withLDID,
				withFractions(func(p *command.Params) *[]uint8 { return &p.QoSAllocated })),
			a.opCmd("limit", "Set QoS bandwidth limit", command.OpSetQoSLimit, withPPID, withLDID,
				withFractions(func(p *command.Params) *[]uint8 { return &p.QoSLimit })),
		),
	)
}

func (a *app) portCmd() *cobra.Command {
	return group("port", "Operate on physical ports",
		a.opCmd("bind", "Bind a port or LD to a vPPB", command.OpPortBind, withPPID, withLDID, withVCSID, withVPPBID),
		exclusive(a.opCmd("unbind", "Unbind a vPPB", command.OpPortUnbind, withVCSID, withVPPBID, withUnbindOption),
			"wait", "managed", "surprise"),
		a.opCmd("config", "Access port config space", command.OpPortConfig, withPPID, withConfigAccess),
		exclusive(a.opCmd("control", "Control a physical port", command.OpPortControl, withPPID, withPortControl),
			"assert-perst", "deassert-perst", "reset"),
		a.opCmd("connect", "Connect an emulator device to a port", command.OpPortConnect, withPPID, withDevice),
		a.opCmd("disconnect", "Disconnect emulator devices from a port", command.OpPortDisconnect, withPPID, withAll("every device")),
	)
}

func (a *app) ldCmd() *cobra.Command {
	p := &command.Params{}
	var infile string
	mem := &cobra.Command{
		Use:   "mem",
		Short: "Access LD memory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if infile != "" {
				data, err := os.ReadFile(infile)
				if err != nil {
					return fmt.Errorf("read infile: %w", err)
				}
				if len(data) > maxMemLen {
					return fmt.Errorf("infile %s: %d bytes exceeds %d", infile, len(data), maxMemLen)
				}
				p.InFile = data
				p.Write = true
				if !p.Len.Set {
					p.Len = command.Some(uint16(len(data)))
				}
			}
			return a.execute(cmd, command.OpLDMem, *p)
		},
	}
	for _, bind := range []binder{withPPID, withLDID, withMemAccess} {
		bind(mem.Flags(), p)
	}
	mem.Flags().StringVar(&infile, "infile", "", "file with write data")

	return group("ld", "Operate on logical devices",
		a.opCmd("config", "Access LD config space", command.OpLDConfig, withPPID, withLDID, withConfigAccess),
		mem,
	)
}

func (a *app) aerCmd() *cobra.Command {
	return a.opCmd("aer", "Generate an AER event on a vPPB", command.OpAER, withVCSID, withVPPBID, withAER)
}

func (a *app) mctpCmd() *cobra.Command {
	getVer := &cobra.Command{
		Use:   "get-ver TYPE",
		Short: "Get MCTP version support for a message type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := command.ParseUint(args[0], 8)
			if err != nil {
				return err
			}
			return a.execute(cmd, command.OpMCTPGetVersion, command.Params{MCTPType: command.Some(uint8(t))})
		},
	}
	setEID := &cobra.Command{
		Use:   "set-eid EID",
		Short: "Set the remote endpoint id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eid, err := command.ParseUint(args[0], 8)
			if err != nil {
				return err
			}
			return a.execute(cmd, command.OpMCTPSetEID, command.Params{EID: command.Some(uint8(eid))})
		},
	}
	return group("mctp", "MCTP control commands",
		a.opCmd("get-eid", "Get the remote endpoint id", command.OpMCTPGetEID),
		a.opCmd("get-uuid", "Get the remote endpoint UUID", command.OpMCTPGetUUID),
		a.opCmd("get-type", "Get MCTP message type support", command.OpMCTPGetType),
		getVer,
		setEID,
	)
}

func (a *app) listCmd() *cobra.Command {
	return a.opCmd("list", "List cached physical ports", command.OpList)
}

func withPPID(fs *pflag.FlagSet, p *command.Params) {
	fs.VarP(optFlag(&p.PPID, 8), "ppid", "p", "physical port id")
}

func withPorts(fs *pflag.FlagSet, p *command.Params) {
	fs.VarP(&portsValue{p: p}, "ppid", "p", "physical port ids, e.g. 1,3,5-7")
}

func withAll(usage string) binder {
	return func(fs *pflag.FlagSet, p *command.Params) {
		fs.BoolVarP(&p.All, "all", "a", false, usage)
	}
}

func withLDID(fs *pflag.FlagSet, p *command.Params) {
	fs.VarP(optFlag(&p.LDID, 16), "ldid", "l", "logical device id")
}

func withVCSID(fs *pflag.FlagSet, p *command.Params) {
	fs.VarP(optFlag(&p.VCSID, 8), "vcsid", "c", "virtual switch id")
}

func withVPPBID(fs *pflag.FlagSet, p *command.Params) {
	fs.VarP(optFlag(&p.VPPBID, 8), "vppbid", "b", "vPPB id")
}

func withNum(fs *pflag.FlagSet, p *command.Params) {
	fs.VarP(optFlag(&p.Num, 8), "num", "n", "number of LD ids requested")
}

func withLimit(fs *pflag.FlagSet, p *command.Params) {
	fs.VarP(optFlag(&p.Limit, 8), "limit", "n", "response message limit (n of 2^n) [8-20]")
}

func withDevice(fs *pflag.FlagSet, p *command.Params) {
	fs.VarP(optFlag(&p.Device, 8), "dev", "d", "emulator device profile id")
}

func withConfigAccess(fs *pflag.FlagSet, p *command.Params) {
	fs.VarP(optFlag(&p.Register, 8), "register", "r", "register number")
	fs.VarP(optFlag(&p.ExtRegister, 8), "ext-register", "e", "extended register number")
	fs.VarP(optFlag(&p.FDBE, 8), "fdbe", "f", "first dword byte enable")
	fs.BoolVarP(&p.Write, "write", "w", false, "perform a write")
	fs.Var(hexFlag(&p.Data, 32), "data", "write data (up to 4 bytes, hex)")
}

func withMemAccess(fs *pflag.FlagSet, p *command.Params) {
	fs.VarP(optFlag(&p.Len, 16), "length", "n", "transaction length in bytes (up to 4KB)")
	fs.VarP(optFlag(&p.Offset, 64), "offset", "o", "offset in the device memory space")
	fs.VarP(optFlag(&p.FDBE, 8), "fdbe", "f", "first dword byte enable")
	fs.VarP(optFlag(&p.LDBE, 8), "ldbe", "d", "last dword byte enable")
	fs.BoolVarP(&p.Write, "write", "w", false, "perform a write")
	fs.Var(hexFlag(&p.Data, 32), "data", "write data (up to 4 bytes, hex)")
}

func withRanges(fs *pflag.FlagSet, p *command.Params) {
	fs.VarP(&hexListValue{dst: &p.Range1}, "range1", "1", "range 1 allocation multipliers, e.g. 1,2,3")
	fs.VarP(&hexListValue{dst: &p.Range2}, "range2", "2", "range 2 allocation multipliers, e.g. 1,2,3")
}

func withFractions(field func(p *command.Params) *[]uint8) binder {
	return func(fs *pflag.FlagSet, p *command.Params) {
		fs.VarP(&byteListValue{dst: field(p)}, "fraction", "f", "bandwidth fractions [0-255], e.g. 1,2,3")
	}
}

func withQoSControl(fs *pflag.FlagSet, p *command.Params) {
	fs.BoolVarP(&p.CongestionEnable, "congestion", "e", false, "egress port congestion enable")
	fs.BoolVarP(&p.TempThrottle, "temporary", "t", false, "temporary throughput reduction enable")
	fs.VarP(optFlag(&p.EgressModPercent, 8), "moderate", "m", "egress moderate percentage [1-100]")
	fs.VarP(optFlag(&p.EgressSevPercent, 8), "severe", "s", "egress severe percentage [1-100]")
	fs.VarP(optFlag(&p.SampleInterval, 8), "backpressure", "k", "backpressure sample interval x 100 ns [0-15]")
	fs.VarP(optFlag(&p.ReqCmpBasis, 16), "reqcmpbasis", "q", "ReqCmpBasis [0-65535]")
	fs.VarP(optFlag(&p.CompletionInterval, 8), "ccinterval", "i", "completion collection interval [0-255]")
}

func withUnbindOption(fs *pflag.FlagSet, p *command.Params) {
	choice(fs, &p.UnbindOption, fmapi.UnbindWait, "wait", "w", "wait for port link down before unbinding")
	choice(fs, &p.UnbindOption, fmapi.UnbindManagedHotRemove, "managed", "m", "simulate managed hot-remove")
	choice(fs, &p.UnbindOption, fmapi.UnbindSurpriseRemove, "surprise", "s", "simulate surprise hot-remove")
}

func withPortControl(fs *pflag.FlagSet, p *command.Params) {
	choice(fs, &p.PortControl, fmapi.PortAssertPERST, "assert-perst", "a", "assert PERST")
	choice(fs, &p.PortControl, fmapi.PortDeassertPERST, "deassert-perst", "d", "deassert PERST")
	choice(fs, &p.PortControl, fmapi.PortResetPPB, "reset", "r", "reset the PCIe-to-PCIe bridge")
}

func withAER(fs *pflag.FlagSet, p *command.Params) {
	fs.VarP(hexFlag(&p.AERError, 32), "error", "e", "AER error (4 byte hex)")
	fs.VarP(&hexBytesValue{dst: &p.AERHeader}, "tlp-header", "t", "AER TLP header (32 byte hex string)")
}
