package gate

import (
	"encoding/binary"
	"fmt"

	"github.com/solvane/solvane/internal/crypto"
)

const welcomeMessage = "Shipgate Copyright Solvane Project 2026"

// Welcome [TypeLogin] is sent shipgate to ship, plaintext.
//
// Format (after the 8-byte header):
//
//	[message 64 bytes]            // NUL-padded banner
//	[verMajor u8][verMinor u8][verMicro u8][reserved u8]
//	[gateNonce 4 bytes]           // mixes the ship-to-gate session key
//	[shipNonce 4 bytes]           // mixes the gate-to-ship session key
type Welcome struct {
	VerMajor  uint8
	VerMinor  uint8
	VerMicro  uint8
	GateNonce [crypto.NonceSize]byte
	ShipNonce [crypto.NonceSize]byte
}

// BuildWelcome writes the welcome packet into buf and returns the number of
// bytes written.
func BuildWelcome(buf []byte, w Welcome) int {
	const n = HeaderSize + 64 + 4 + 4 + 4
	PutHeader(buf, Header{Type: TypeLogin, Length: n})
	pos := HeaderSize

	clear(buf[pos : pos+64])
	copy(buf[pos:pos+64], welcomeMessage)
	pos += 64

	buf[pos] = w.VerMajor
	buf[pos+1] = w.VerMinor
	buf[pos+2] = w.VerMicro
	buf[pos+3] = 0
	pos += 4

	copy(buf[pos:], w.GateNonce[:])
	pos += 4
	copy(buf[pos:], w.ShipNonce[:])
	pos += 4

	return pos
}

// Parse decodes a welcome body (header stripped).
func (w *Welcome) Parse(body []byte) error {
	r := NewReader(body)

	if _, err := r.ReadBytes(64); err != nil {
		return fmt.Errorf("reading banner: %w", err)
	}

	ver, err := r.ReadBytes(4)
	if err != nil {
		return fmt.Errorf("reading version: %w", err)
	}
	w.VerMajor, w.VerMinor, w.VerMicro = ver[0], ver[1], ver[2]

	gn, err := r.ReadBytes(4)
	if err != nil {
		return fmt.Errorf("reading gate nonce: %w", err)
	}
	copy(w.GateNonce[:], gn)

	sn, err := r.ReadBytes(4)
	if err != nil {
		return fmt.Errorf("reading ship nonce: %w", err)
	}
	copy(w.ShipNonce[:], sn)

	return nil
}

// LoginReply [TypeLogin | FlagResponse] is sent ship to shipgate, plaintext.
// The shipgate answers with an ack and both sides switch to the session keys.
//
// Format:
//
//	[protoVer u32][flags u32]
//	[name 12 bytes]
//	[shipAddr u32]     // external IPv4, network order
//	[intAddr u32]      // internal IPv4, network order
//	[shipPort u16]     // base port; variant index is added per client
//	[keyIndex u16]     // row in ship_data holding the 128-byte shared key
//	[clients u16][games u16]
//	[menuCode u16]     // 0, or two ASCII letters (lo, hi)
//	[reserved u16]
type LoginReply struct {
	ProtoVer uint32
	Flags    uint32
	Name     string
	ShipAddr uint32
	IntAddr  uint32
	ShipPort uint16
	KeyIndex uint16
	Clients  uint16
	Games    uint16
	MenuCode uint16
}

// BuildLoginReply writes the ship's login response into buf and returns the
// number of bytes written.
func BuildLoginReply(buf []byte, p LoginReply) int {
	const n = HeaderSize + 4 + 4 + 12 + 4 + 4 + 2 + 2 + 2 + 2 + 2 + 2
	PutHeader(buf, Header{Type: TypeLogin, Flags: FlagResponse, Length: n})
	pos := HeaderSize

	binary.BigEndian.PutUint32(buf[pos:], p.ProtoVer)
	binary.BigEndian.PutUint32(buf[pos+4:], p.Flags)
	pos += 8

	clear(buf[pos : pos+12])
	copy(buf[pos:pos+12], p.Name)
	pos += 12

	binary.BigEndian.PutUint32(buf[pos:], p.ShipAddr)
	binary.BigEndian.PutUint32(buf[pos+4:], p.IntAddr)
	pos += 8

	binary.BigEndian.PutUint16(buf[pos:], p.ShipPort)
	binary.BigEndian.PutUint16(buf[pos+2:], p.KeyIndex)
	binary.BigEndian.PutUint16(buf[pos+4:], p.Clients)
	binary.BigEndian.PutUint16(buf[pos+6:], p.Games)
	binary.BigEndian.PutUint16(buf[pos+8:], p.MenuCode)
	binary.BigEndian.PutUint16(buf[pos+10:], 0)
	pos += 12

	return pos
}

// Parse decodes a login reply body (header stripped).
func (p *LoginReply) Parse(body []byte) error {
	r := NewReader(body)
	var err error

	if p.ProtoVer, err = r.ReadUint32(); err != nil {
		return fmt.Errorf("reading proto version: %w", err)
	}
	if p.Flags, err = r.ReadUint32(); err != nil {
		return fmt.Errorf("reading flags: %w", err)
	}
	if p.Name, err = r.ReadFixedString(12); err != nil {
		return fmt.Errorf("reading name: %w", err)
	}
	if p.ShipAddr, err = r.ReadUint32(); err != nil {
		return fmt.Errorf("reading ship addr: %w", err)
	}
	if p.IntAddr, err = r.ReadUint32(); err != nil {
		return fmt.Errorf("reading internal addr: %w", err)
	}
	if p.ShipPort, err = r.ReadUint16(); err != nil {
		return fmt.Errorf("reading ship port: %w", err)
	}
	if p.KeyIndex, err = r.ReadUint16(); err != nil {
		return fmt.Errorf("reading key index: %w", err)
	}
	if p.Clients, err = r.ReadUint16(); err != nil {
		return fmt.Errorf("reading client count: %w", err)
	}
	if p.Games, err = r.ReadUint16(); err != nil {
		return fmt.Errorf("reading game count: %w", err)
	}
	if p.MenuCode, err = r.ReadUint16(); err != nil {
		return fmt.Errorf("reading menu code: %w", err)
	}

	return nil
}

// ValidMenuCode reports whether a menu code is zero or two ASCII letters.
func ValidMenuCode(code uint16) bool {
	if code == 0 {
		return true
	}
	lo, hi := byte(code), byte(code>>8)
	return isLetter(lo) && isLetter(hi)
}

func isLetter(b byte) bool {
	return (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z')
}
