package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/pflag"

	"github.com/danmuck/cxlctl/internal/command"
)

type unsigned interface {
	~uint8 | ~uint16 | ~uint32 | ~uint64
}

// optValue fills a command.Opt from a decimal or 0x-prefixed value. With
// hex set the value is always read as hex.
type optValue[T unsigned] struct {
	opt  *command.Opt[T]
	bits int
	hex  bool
}

func optFlag[T unsigned](opt *command.Opt[T], bits int) *optValue[T] {
	return &optValue[T]{opt: opt, bits: bits}
}

func hexFlag[T unsigned](opt *command.Opt[T], bits int) *optValue[T] {
	return &optValue[T]{opt: opt, bits: bits, hex: true}
}

func (v *optValue[T]) String() string {
	if v.opt == nil || !v.opt.Set {
		return ""
	}
	if v.hex {
		return fmt.Sprintf("0x%x", uint64(v.opt.Value))
	}
	return strconv.FormatUint(uint64(v.opt.Value), 10)
}

func (v *optValue[T]) Set(s string) error {
	n, err := parseValue(s, v.bits, v.hex)
	if err != nil {
		return err
	}
	*v.opt = command.Some(T(n))
	return nil
}

func (v *optValue[T]) Type() string {
	if v.hex {
		return "hex"
	}
	return "uint"
}

func parseValue(s string, bits int, hex bool) (uint64, error) {
	if !hex {
		return command.ParseUint(s, bits)
	}
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	n, err := strconv.ParseUint(s, 16, bits)
	if err != nil {
		return 0, fmt.Errorf("invalid hex value %q: %w", s, err)
	}
	return n, nil
}

// choiceValue is a boolean-looking flag that stores a fixed enum value.
type choiceValue[T any] struct {
	opt   *command.Opt[T]
	value T
}

func (v *choiceValue[T]) String() string {
	if v.opt != nil && v.opt.Set {
		return "true"
	}
	return "false"
}

func (v *choiceValue[T]) Set(s string) error {
	on, err := strconv.ParseBool(s)
	if err != nil {
		return err
	}
	if on {
		*v.opt = command.Some(v.value)
	}
	return nil
}

func (v *choiceValue[T]) Type() string { return "bool" }

func choice[T any](fs *pflag.FlagSet, opt *command.Opt[T], value T, name, short, usage string) {
	f := fs.VarPF(&choiceValue[T]{opt: opt, value: value}, name, short, usage)
	f.NoOptDefVal = "true"
}

// portsValue accepts a port id list such as "1,3,5-7".
type portsValue struct {
	p   *command.Params
	raw string
}

func (v *portsValue) String() string { return v.raw }

func (v *portsValue) Set(s string) error {
	ids, err := command.ParsePortList(s)
	if err != nil {
		return err
	}
	v.raw = s
	v.p.SetPPIDs(ids)
	return nil
}

func (v *portsValue) Type() string { return "list" }

// byteListValue accepts comma separated byte values, decimal or 0x hex.
type byteListValue struct {
	dst *[]uint8
	raw string
}

func (v *byteListValue) String() string { return v.raw }

func (v *byteListValue) Set(s string) error {
	var out []uint8
	for _, part := range strings.Split(s, ",") {
		n, err := command.ParseUint(part, 8)
		if err != nil {
			return err
		}
		out = append(out, uint8(n))
	}
	v.raw = s
	*v.dst = out
	return nil
}

func (v *byteListValue) Type() string { return "list" }

// hexListValue accepts comma separated hex values.
type hexListValue struct {
	dst *[]uint64
	raw string
}

func (v *hexListValue) String() string { return v.raw }

func (v *hexListValue) Set(s string) error {
	vals, err := command.ParseHexCSV(s, 64)
	if err != nil {
		return err
	}
	v.raw = s
	*v.dst = vals
	return nil
}

func (v *hexListValue) Type() string { return "hexlist" }

// hexBytesValue accepts a hex string such as "0x0102ff".
type hexBytesValue struct {
	dst *[]byte
	raw string
}

func (v *hexBytesValue) String() string { return v.raw }

func (v *hexBytesValue) Set(s string) error {
	b, err := command.ParseHexBytes(s)
	if err != nil {
		return err
	}
	v.raw = s
	*v.dst = b
	return nil
}

func (v *hexBytesValue) Type() string { return "hexstring" }

// verbosityValue sets one verbosity bit per use.
type verbosityValue struct {
	mask *uint64
}

func (v *verbosityValue) String() string {
	if v.mask == nil {
		return "0"
	}
	return fmt.Sprintf("0x%x", *v.mask)
}

func (v *verbosityValue) Set(s string) error {
	n, err := command.ParseUint(s, 8)
	if err != nil {
		return err
	}
	if n > 63 {
		return fmt.Errorf("verbosity bit %d out of range (max 63)", n)
	}
	*v.mask |= 1 << n
	return nil
}

func (v *verbosityValue) Type() string { return "bit" }
