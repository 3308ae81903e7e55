package command

import (
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// ParseUint parses a decimal or 0x-prefixed hex value that fits in bits.
func ParseUint(s string, bits int) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty value")
	}
	v, err := strconv.ParseUint(s, 0, bits)
	if err != nil {
		return 0, fmt.Errorf("invalid value %q: %w", s, err)
	}
	return v, nil
}

// ParseIDList expands "1,3,5-7" into a sorted list without duplicates. Each
// id must be at most max.
func ParseIDList(s string, max uint64) ([]uint64, error) {
	seen := make(map[uint64]struct{})
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			return nil, fmt.Errorf("invalid id list %q", s)
		}
		if strings.Contains(part, "-") {
			rangeParts := strings.Split(part, "-")
			if len(rangeParts) != 2 {
				return nil, fmt.Errorf("invalid range format: %s", part)
			}
			start, err := ParseUint(rangeParts[0], 64)
			if err != nil {
				return nil, fmt.Errorf("invalid start index: %s", rangeParts[0])
			}
			end, err := ParseUint(rangeParts[1], 64)
			if err != nil {
				return nil, fmt.Errorf("invalid end index: %s", rangeParts[1])
			}
			if end < start {
				return nil, fmt.Errorf("invalid range %s: end before start", part)
			}
			if end > max {
				return nil, fmt.Errorf("id %d out of range (max %d)", end, max)
			}
			for i := start; ; i++ {
				seen[i] = struct{}{}
				if i == end {
					break
				}
			}
			continue
		}
		index, err := ParseUint(part, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid index: %s", part)
		}
		if index > max {
			return nil, fmt.Errorf("id %d out of range (max %d)", index, max)
		}
		seen[index] = struct{}{}
	}

	ids := make([]uint64, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// ParsePortList is ParseIDList narrowed to 8-bit port ids.
func ParsePortList(s string) ([]uint8, error) {
	ids, err := ParseIDList(s, math.MaxUint8)
	if err != nil {
		return nil, err
	}
	out := make([]uint8, len(ids))
	for i, id := range ids {
		out[i] = uint8(id)
	}
	return out, nil
}

// ParseHexBytes decodes a hex string such as "0x0102ff" into bytes.
func ParseHexBytes(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex string: %w", err)
	}
	return b, nil
}

// ParseHexCSV parses comma separated hex values, with or without a 0x
// prefix, each fitting in bits.
func ParseHexCSV(s string, bits int) ([]uint64, error) {
	var out []uint64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		part = strings.TrimPrefix(strings.TrimPrefix(part, "0x"), "0X")
		if part == "" {
			return nil, fmt.Errorf("invalid hex list %q", s)
		}
		v, err := strconv.ParseUint(part, 16, bits)
		if err != nil {
			return nil, fmt.Errorf("invalid hex value %q: %w", part, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// ParseHexCSV8 is ParseHexCSV for byte values.
func ParseHexCSV8(s string) ([]uint8, error) {
	vals, err := ParseHexCSV(s, 8)
	if err != nil {
		return nil, err
	}
	out := make([]uint8, len(vals))
	for i, v := range vals {
		out[i] = uint8(v)
	}
	return out, nil
}
