package mctp

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	// FixedHeaderLen counts the bytes after the length prefix up to and
	// including the message type.
	FixedHeaderLen = 5
	lengthPrefix   = 4

	Version uint8 = 0x01

	FlagTagOwner uint8 = 0x08
	tagMask      uint8 = 0x07

	MaxBodyLen = 8192
)

var (
	ErrShortHeader    = errors.New("mctp: short transport header")
	ErrBadVersion     = errors.New("mctp: unsupported header version")
	ErrBodyTooLarge   = errors.New("mctp: body too large")
	ErrLengthTooSmall = errors.New("mctp: length smaller than fixed header")
)

// Header is the transport header preceding every message body.
type Header struct {
	Version  uint8
	Dest     uint8
	Source   uint8
	TagOwner bool
	Tag      uint8
	Type     MessageType
}

// Frame is one complete message on the TCP stream.
type Frame struct {
	Header Header
	Body   []byte
}

func ReadFrame(r io.Reader) (Frame, error) {
	var prefix [lengthPrefix]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return Frame{}, ErrShortHeader
		}
		return Frame{}, err
	}
	n := binary.BigEndian.Uint32(prefix[:])
	if n < FixedHeaderLen {
		return Frame{}, ErrLengthTooSmall
	}
	if n-FixedHeaderLen > MaxBodyLen {
		return Frame{}, ErrBodyTooLarge
	}

	var fixed [FixedHeaderLen]byte
	if _, err := io.ReadFull(r, fixed[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return Frame{}, ErrShortHeader
		}
		return Frame{}, err
	}
	h, err := DecodeHeader(fixed[:])
	if err != nil {
		return Frame{}, err
	}

	body := make([]byte, n-FixedHeaderLen)
	if len(body) > 0 {
		if _, err := io.ReadFull(r, body); err != nil {
			return Frame{}, err
		}
	}
	return Frame{Header: h, Body: body}, nil
}

func WriteFrame(w io.Writer, f Frame) error {
	if len(f.Body) > MaxBodyLen {
		return ErrBodyTooLarge
	}
	buf := make([]byte, lengthPrefix+FixedHeaderLen+len(f.Body))
	binary.BigEndian.PutUint32(buf[0:4], uint32(FixedHeaderLen+len(f.Body)))
	h := f.Header
	if h.Version == 0 {
		h.Version = Version
	}
	copy(buf[lengthPrefix:], EncodeHeader(h))
	copy(buf[lengthPrefix+FixedHeaderLen:], f.Body)
	_, err := w.Write(buf)
	return err
}

func EncodeHeader(h Header) []byte {
	flags := h.Tag & tagMask
	if h.TagOwner {
		flags |= FlagTagOwner
	}
	return []byte{h.Version, h.Dest, h.Source, flags, byte(h.Type)}
}

func DecodeHeader(b []byte) (Header, error) {
	if len(b) != FixedHeaderLen {
		return Header{}, fmt.Errorf("mctp: invalid fixed header length: %d", len(b))
	}
	if b[0] != Version {
		return Header{}, fmt.Errorf("%w: %d", ErrBadVersion, b[0])
	}
	return Header{
		Version:  b[0],
		Dest:     b[1],
		Source:   b[2],
		TagOwner: b[3]&FlagTagOwner != 0,
		Tag:      b[3] & tagMask,
		Type:     MessageType(b[4]),
	}, nil
}
