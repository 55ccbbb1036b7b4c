package gate

import (
	"encoding/binary"
	"errors"
)

// The ship<->shipgate link frames packets with an 8-byte big-endian header:
//
//	{type u16; flags u16; length u16; reserved u16}
//
// Lengths include the header; the wire carries full 8-byte blocks, padded
// with zeros.

const HeaderSize = 8

// Packet types.
const (
	TypeForwardDC  = 0x0001 // forwarded Dreamcast-format packet
	TypeForwardPC  = 0x0003 // forwarded PC-format packet
	TypeLogin      = 0x0010
	TypeCount      = 0x0011
	TypeShipStatus = 0x0012
	TypePing       = 0x0013
	TypeCharData   = 0x0014
	TypeCharReq    = 0x0015
	TypeGMLogin    = 0x0016
	TypeGCBan      = 0x0017
	TypeIPBan      = 0x0018
)

// Header flags.
const (
	FlagResponse = 0x8000
	FlagFailure  = 0x4000
)

// Error codes carried in error/ack packets. Codes other than NoError and
// BadError are scoped to the packet type they answer.
const (
	ErrNoError  = 0x00000000
	ErrBadError = 0x80000000

	ErrLoginBadKey    = 0x00000001
	ErrLoginBadProto  = 0x00000002
	ErrLoginBadMenu   = 0x00000003
	ErrLoginInvalMenu = 0x00000004

	ErrBanNotGM   = 0x00000001
	ErrBanBadType = 0x00000002

	ErrCReqNoData = 0x00000001

	ErrGMLoginNoAccount = 0x00000001
	ErrGMLoginNotGM     = 0x00000002

	ErrFwdUnknownPacket = 0x00000001
)

// Ship flags reported at login and echoed in status broadcasts.
const (
	ShipFlagGMOnly = 0x00000001
	ShipFlagProxy  = 0x00000002
)

// Protocol versions this hub speaks.
const (
	ProtoVersionMin = 1
	ProtoVersionMax = 1
)

// ErrBadFrame is returned when a decrypted header carries a length smaller
// than the header itself.
var ErrBadFrame = errors.New("gate: packet length smaller than header")

// Header is a decoded hub packet header.
type Header struct {
	Type   uint16
	Flags  uint16
	Length uint16
}

// ParseHeader decodes the 8 header bytes.
func ParseHeader(hdr []byte) (Header, error) {
	if len(hdr) < HeaderSize {
		return Header{}, ErrBadFrame
	}

	h := Header{
		Type:   binary.BigEndian.Uint16(hdr[0:2]),
		Flags:  binary.BigEndian.Uint16(hdr[2:4]),
		Length: binary.BigEndian.Uint16(hdr[4:6]),
	}
	if h.Length < HeaderSize {
		return Header{}, ErrBadFrame
	}
	return h, nil
}

// PutHeader encodes h into hdr. The reserved word is zeroed.
func PutHeader(hdr []byte, h Header) {
	binary.BigEndian.PutUint16(hdr[0:2], h.Type)
	binary.BigEndian.PutUint16(hdr[2:4], h.Flags)
	binary.BigEndian.PutUint16(hdr[4:6], h.Length)
	hdr[6] = 0
	hdr[7] = 0
}
