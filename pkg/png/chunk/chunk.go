// Package chunk describes the framing unit of a PNG stream: a length, a
// four letter type tag, a payload and a CRC-32 over tag and payload.
package chunk

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

// MaxLength is the largest payload length a chunk header may declare.
const MaxLength = 1<<31 - 1

// HeaderSize is the number of bytes preceding a chunk payload.
const HeaderSize = 8

var (
	ErrLength  = errors.New("chunk: bad length")
	ErrTypeTag = errors.New("chunk: bad type")
)

// Type is a chunk tag packed big-endian, so IHDR reads as 0x49484452.
type Type uint32

// Known chunk types
const (
	IHDR Type = 'I'<<24 | 'H'<<16 | 'D'<<8 | 'R'
	PLTE Type = 'P'<<24 | 'L'<<16 | 'T'<<8 | 'E'
	IDAT Type = 'I'<<24 | 'D'<<16 | 'A'<<8 | 'T'
	IEND Type = 'I'<<24 | 'E'<<16 | 'N'<<8 | 'D'

	TRNS Type = 't'<<24 | 'R'<<16 | 'N'<<8 | 'S'
	CHRM Type = 'c'<<24 | 'H'<<16 | 'R'<<8 | 'M'
	GAMA Type = 'g'<<24 | 'A'<<16 | 'M'<<8 | 'A'
	ICCP Type = 'i'<<24 | 'C'<<16 | 'C'<<8 | 'P'
	SBIT Type = 's'<<24 | 'B'<<16 | 'I'<<8 | 'T'
	SRGB Type = 's'<<24 | 'R'<<16 | 'G'<<8 | 'B'
	CICP Type = 'c'<<24 | 'I'<<16 | 'C'<<8 | 'P'
	MDCV Type = 'm'<<24 | 'D'<<16 | 'C'<<8 | 'V'
	EXIF Type = 'e'<<24 | 'X'<<16 | 'I'<<8 | 'f'
	CLLI Type = 'c'<<24 | 'L'<<16 | 'L'<<8 | 'I'
	TEXT Type = 't'<<24 | 'E'<<16 | 'X'<<8 | 't'
	ZTXT Type = 'z'<<24 | 'T'<<16 | 'X'<<8 | 't'
	ITXT Type = 'i'<<24 | 'T'<<16 | 'X'<<8 | 't'
	BKGD Type = 'b'<<24 | 'K'<<16 | 'G'<<8 | 'D'
	HIST Type = 'h'<<24 | 'I'<<16 | 'S'<<8 | 'T'
	PHYS Type = 'p'<<24 | 'H'<<16 | 'Y'<<8 | 's'
	SPLT Type = 's'<<24 | 'P'<<16 | 'L'<<8 | 'T'
	TIME Type = 't'<<24 | 'I'<<16 | 'M'<<8 | 'E'
	ACTL Type = 'a'<<24 | 'c'<<16 | 'T'<<8 | 'L'
	FCTL Type = 'f'<<24 | 'c'<<16 | 'T'<<8 | 'L'
	FDAT Type = 'f'<<24 | 'd'<<16 | 'A'<<8 | 'T'
	OFFS Type = 'o'<<24 | 'F'<<16 | 'F'<<8 | 's'
	PCAL Type = 'p'<<24 | 'C'<<16 | 'A'<<8 | 'L'
	SCAL Type = 's'<<24 | 'C'<<16 | 'A'<<8 | 'L'
)

const caseBit = 0x20

// TypeOf packs the first four bytes of b.
func TypeOf(b []byte) Type {
	return Type(binary.BigEndian.Uint32(b))
}

// Bytes returns the tag in stream order.
func (t Type) Bytes() [4]byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(t))
	return b
}

func (t Type) byteAt(i int) byte {
	return byte(t >> (24 - 8*i))
}

// Valid reports whether every byte is an ASCII letter once its case bit is
// cleared.
func (t Type) Valid() bool {
	for i := range 4 {
		c := t.byteAt(i) &^ caseBit
		if c < 'A' || c > 'Z' {
			return false
		}
	}
	return true
}

// Critical chunks must be understood to decode the image.
func (t Type) Critical() bool { return t.byteAt(0)&caseBit == 0 }

func (t Type) Ancillary() bool { return !t.Critical() }

// Public chunks are registered in the PNG specification.
func (t Type) Public() bool { return t.byteAt(1)&caseBit == 0 }

// Reserved reports whether the reserved bit (byte 2) is set, which no
// conforming chunk does.
func (t Type) Reserved() bool { return t.byteAt(2)&caseBit != 0 }

// SafeToCopy chunks may be carried over by editors that do not recognize
// them.
func (t Type) SafeToCopy() bool { return t.byteAt(3)&caseBit != 0 }

// String prints letters verbatim and escapes anything else.
func (t Type) String() string {
	b := t.Bytes()
	var sb strings.Builder
	for _, c := range b {
		if (c|caseBit) >= 'a' && (c|caseBit) <= 'z' {
			sb.WriteByte(c)
		} else {
			fmt.Fprintf(&sb, "\\x%02x", c)
		}
	}
	return sb.String()
}

// Header is the 8 byte prefix of every chunk.
type Header struct {
	Length uint32
	Type   Type
}

// ParseHeader decodes and validates a chunk header.
func ParseHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, fmt.Errorf("%w: short header", ErrLength)
	}
	h := Header{
		Length: binary.BigEndian.Uint32(b[0:4]),
		Type:   TypeOf(b[4:8]),
	}
	if h.Length > MaxLength {
		return h, fmt.Errorf("%w: %d", ErrLength, h.Length)
	}
	if !h.Type.Valid() {
		return h, fmt.Errorf("%w: %s", ErrTypeTag, h.Type)
	}
	return h, nil
}

// Put encodes h into the first HeaderSize bytes of b.
func (h Header) Put(b []byte) {
	binary.BigEndian.PutUint32(b[0:4], h.Length)
	binary.BigEndian.PutUint32(b[4:8], uint32(h.Type))
}
