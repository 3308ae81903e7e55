package mctp

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
)

func TestFrameRoundTrip(t *testing.T) {
	in := Frame{
		Header: Header{Dest: 8, Source: 9, TagOwner: true, Tag: 5, Type: TypeCXLFMAPI},
		Body:   []byte{0x01, 0x02, 0x03},
	}

	var buf bytes.Buffer
	if err := WriteFrame(&buf, in); err != nil {
		t.Fatalf("write frame: %v", err)
	}
	if got := binary.BigEndian.Uint32(buf.Bytes()[0:4]); got != FixedHeaderLen+3 {
		t.Fatalf("unexpected length prefix: %d", got)
	}

	out, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	in.Header.Version = Version
	if out.Header != in.Header {
		t.Fatalf("header mismatch: got=%+v want=%+v", out.Header, in.Header)
	}
	if !bytes.Equal(out.Body, in.Body) {
		t.Fatalf("body mismatch: got=%x want=%x", out.Body, in.Body)
	}
}

func TestReadFrameRejectsOversizeBody(t *testing.T) {
	var buf bytes.Buffer
	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], FixedHeaderLen+MaxBodyLen+1)
	buf.Write(prefix[:])

	if _, err := ReadFrame(&buf); !errors.Is(err, ErrBodyTooLarge) {
		t.Fatalf("expected ErrBodyTooLarge, got %v", err)
	}
}

func TestReadFrameRejectsBadVersion(t *testing.T) {
	raw := []byte{0, 0, 0, FixedHeaderLen, 0x02, 0, 0, 0, byte(TypeControl)}
	if _, err := ReadFrame(bytes.NewReader(raw)); !errors.Is(err, ErrBadVersion) {
		t.Fatalf("expected ErrBadVersion, got %v", err)
	}
}

func TestReadFrameShortHeader(t *testing.T) {
	if _, err := ReadFrame(bytes.NewReader([]byte{0, 0})); !errors.Is(err, ErrShortHeader) {
		t.Fatalf("expected ErrShortHeader, got %v", err)
	}
}

func TestWriteFrameRejectsOversizeBody(t *testing.T) {
	err := WriteFrame(&bytes.Buffer{}, Frame{Body: make([]byte, MaxBodyLen+1)})
	if !errors.Is(err, ErrBodyTooLarge) {
		t.Fatalf("expected ErrBodyTooLarge, got %v", err)
	}
}
