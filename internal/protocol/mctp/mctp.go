// Package mctp holds the MCTP message type tags shared by every message family
// and the length-prefixed framing used to carry MCTP messages over TCP.
package mctp

import "fmt"

// MessageType is the MCTP message type byte that selects a protocol family.
type MessageType uint8

const (
	TypeControl  MessageType = 0x00
	TypeCXLFMAPI MessageType = 0x07
	TypeCXLCCI   MessageType = 0x08
	TypeEmulator MessageType = 0x70
)

func (t MessageType) String() string {
	switch t {
	case TypeControl:
		return "control"
	case TypeCXLFMAPI:
		return "fmapi"
	case TypeCXLCCI:
		return "cci"
	case TypeEmulator:
		return "emapi"
	default:
		return fmt.Sprintf("type(0x%02x)", uint8(t))
	}
}

// Tags is the number of distinct MCTP message tags a requester may have in flight.
const Tags = 8
