package fmapi

import "fmt"

// PortState is the current configuration state of a physical port.
type PortState uint8

const (
	PortDisabled  PortState = 0x0
	PortBinding   PortState = 0x1
	PortUnbinding PortState = 0x2
	PortDSP       PortState = 0x3
	PortUSP       PortState = 0x4
	PortFabric    PortState = 0x5
	PortInvalid   PortState = 0xF
)

func (s PortState) String() string {
	switch s {
	case PortDisabled:
		return "Disabled"
	case PortBinding:
		return "Binding"
	case PortUnbinding:
		return "Unbinding"
	case PortDSP:
		return "DSP"
	case PortUSP:
		return "USP"
	case PortFabric:
		return "Fabric"
	case PortInvalid:
		return "Invalid"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// DeviceType is the type of device attached to a physical port.
type DeviceType uint8

const (
	DeviceNone     DeviceType = 0
	DevicePCIe     DeviceType = 1
	DeviceType1    DeviceType = 2
	DeviceType2    DeviceType = 3
	DeviceType3SLD DeviceType = 4
	DeviceType3MLD DeviceType = 5
	DeviceSwitch   DeviceType = 6
)

func (d DeviceType) String() string {
	switch d {
	case DeviceNone:
		return "None"
	case DevicePCIe:
		return "PCIe"
	case DeviceType1:
		return "T1"
	case DeviceType2:
		return "T2"
	case DeviceType3SLD:
		return "T3"
	case DeviceType3MLD:
		return "T3-MLD"
	case DeviceSwitch:
		return "Switch"
	default:
		return fmt.Sprintf("dev(%d)", uint8(d))
	}
}

// Pooled reports whether the device presents multiple logical devices.
func (d DeviceType) Pooled() bool { return d == DeviceType3MLD }

// DeviceVersion is the connected CXL device version.
type DeviceVersion uint8

const (
	VersionNotCXL DeviceVersion = 0
	VersionCXL11  DeviceVersion = 1
	VersionCXL20  DeviceVersion = 2
)

func (v DeviceVersion) String() string {
	switch v {
	case VersionNotCXL:
		return "-"
	case VersionCXL11:
		return "1.1"
	case VersionCXL20:
		return "2.0"
	default:
		return fmt.Sprintf("v%d", uint8(v))
	}
}

// LinkSpeed is an encoded PCIe generation.
type LinkSpeed uint8

func (s LinkSpeed) String() string {
	switch s {
	case 1:
		return "2.5"
	case 2:
		return "5.0"
	case 3:
		return "8.0"
	case 4:
		return "16"
	case 5:
		return "32"
	case 6:
		return "64"
	default:
		return "-"
	}
}

// LTSSM is the link training state machine state.
type LTSSM uint8

var ltssmNames = [...]string{
	"Detect", "Polling", "Config", "Recovery", "L0", "L0s", "L1", "L2",
	"Disabled", "Loopback", "HotReset",
}

func (l LTSSM) String() string {
	if int(l) < len(ltssmNames) {
		return ltssmNames[l]
	}
	return fmt.Sprintf("ltssm(%d)", uint8(l))
}

// BindStatus is the binding state of one vPPB.
type BindStatus uint8

const (
	BindUnbound    BindStatus = 0
	BindInProgress BindStatus = 1
	BindPort       BindStatus = 2
	BindLD         BindStatus = 3
)

func (b BindStatus) String() string {
	switch b {
	case BindUnbound:
		return "Unbound"
	case BindInProgress:
		return "In progress"
	case BindPort:
		return "Bound Physical Port"
	case BindLD:
		return "Bound LD"
	default:
		return fmt.Sprintf("bind(%d)", uint8(b))
	}
}

// VCSState is the state of a virtual CXL switch.
type VCSState uint8

const (
	VCSDisabled VCSState = 0x00
	VCSEnabled  VCSState = 0x01
	VCSInvalid  VCSState = 0xFF
)

func (s VCSState) String() string {
	switch s {
	case VCSDisabled:
		return "Disabled"
	case VCSEnabled:
		return "Enabled"
	case VCSInvalid:
		return "Invalid"
	default:
		return fmt.Sprintf("vcs(%d)", uint8(s))
	}
}

// UnbindOption selects how an unbind tears down the downstream device.
type UnbindOption uint8

const (
	UnbindWait             UnbindOption = 0
	UnbindManagedHotRemove UnbindOption = 1
	UnbindSurpriseRemove   UnbindOption = 2
)

func (o UnbindOption) String() string {
	switch o {
	case UnbindWait:
		return "Wait"
	case UnbindManagedHotRemove:
		return "Managed Hot Remove"
	case UnbindSurpriseRemove:
		return "Surprise Hot Remove"
	default:
		return fmt.Sprintf("unbind(%d)", uint8(o))
	}
}

// PortControl is a physical port control action.
type PortControl uint8

const (
	PortAssertPERST   PortControl = 0
	PortDeassertPERST PortControl = 1
	PortResetPPB      PortControl = 2
)

func (c PortControl) String() string {
	switch c {
	case PortAssertPERST:
		return "Assert PERST"
	case PortDeassertPERST:
		return "Deassert PERST"
	case PortResetPPB:
		return "Reset PPB"
	default:
		return fmt.Sprintf("control(%d)", uint8(c))
	}
}

// ConfigType is the transaction type of a config or memory access.
type ConfigType uint8

const (
	ConfigRead  ConfigType = 0
	ConfigWrite ConfigType = 1
)

func (t ConfigType) String() string {
	if t == ConfigWrite {
		return "Write"
	}
	return "Read"
}

// Granularity is the memory allocation granularity of an MLD.
type Granularity uint8

const (
	Granularity256MB Granularity = 0
	Granularity512MB Granularity = 1
	Granularity1GB   Granularity = 2
)

// Bytes returns the granule size, or 0 if g is unknown.
func (g Granularity) Bytes() uint64 {
	switch g {
	case Granularity256MB:
		return 256 << 20
	case Granularity512MB:
		return 512 << 20
	case Granularity1GB:
		return 1 << 30
	default:
		return 0
	}
}

func (g Granularity) String() string {
	switch g {
	case Granularity256MB:
		return "256 MB"
	case Granularity512MB:
		return "512 MB"
	case Granularity1GB:
		return "1 GB"
	default:
		return fmt.Sprintf("granularity(%d)", uint8(g))
	}
}
