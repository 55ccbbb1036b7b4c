package protocol

import (
	"encoding/binary"
	"errors"
)

// Client packet headers are 4 bytes in every variant, but the field order
// differs between the DC/GC family and the PC build:
//
//	DC/GC: {type u8, flags u8, length u16 LE}
//	PC:    {length u16 LE, type u8, flags u8}
//
// Lengths include the header and may be unpadded on the wire; PadLength
// rounds them up to the header alignment without touching the high byte.

// ErrBadFrame is returned when a decrypted header carries a length smaller
// than the header itself.
var ErrBadFrame = errors.New("protocol: packet length smaller than header")

// ErrCipherMisuse is returned when a packet write is attempted before the
// welcome handshake installed the ciphers.
var ErrCipherMisuse = errors.New("protocol: write before welcome handshake")

// Header is a decoded client packet header.
type Header struct {
	Type   uint8
	Flags  uint8
	Length uint16
}

// ParseHeader decodes the 4 decrypted header bytes for the given variant.
func ParseHeader(hdr []byte, v Variant) (Header, error) {
	if len(hdr) < HeaderSize {
		return Header{}, ErrBadFrame
	}

	var h Header
	if v == VariantPC {
		h.Length = binary.LittleEndian.Uint16(hdr[0:2])
		h.Type = hdr[2]
		h.Flags = hdr[3]
	} else {
		h.Type = hdr[0]
		h.Flags = hdr[1]
		h.Length = binary.LittleEndian.Uint16(hdr[2:4])
	}

	if h.Length < HeaderSize {
		return Header{}, ErrBadFrame
	}
	return h, nil
}

// PutHeader encodes h into hdr for the given variant.
func PutHeader(hdr []byte, h Header, v Variant) {
	if v == VariantPC {
		binary.LittleEndian.PutUint16(hdr[0:2], h.Length)
		hdr[2] = h.Type
		hdr[3] = h.Flags
	} else {
		hdr[0] = h.Type
		hdr[1] = h.Flags
		binary.LittleEndian.PutUint16(hdr[2:4], h.Length)
	}
}

// PadLength rounds length up to a multiple of align (4 or 8) without
// altering the high byte: the mask is 0x10000-align, not ^(align-1). The
// result is an int because a wire length in the last alignment block pads
// to 0x10000, one past what 16 bits can hold.
func PadLength(length, align int) int {
	if length&(align-1) != 0 {
		return (length & (0x10000 - align)) + align
	}
	return length
}
