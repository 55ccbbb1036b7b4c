package gate

import (
	"encoding/binary"
	"fmt"
)

// CharDataSize is the size of one character backup blob.
const CharDataSize = 1052

// CharData [TypeCharData] is the ship to shipgate backup store, and with
// FlagResponse the shipgate to ship answer to a CharReq.
//
// Format:
//
//	[guildcard u32][slot u32][data 1052 bytes]
type CharData struct {
	Guildcard uint32
	Slot      uint32
	Data      [CharDataSize]byte
}

// BuildCharData writes a character blob packet into buf and returns the
// number of bytes written.
func BuildCharData(buf []byte, flags uint16, p CharData) int {
	const n = HeaderSize + 8 + CharDataSize
	PutHeader(buf, Header{Type: TypeCharData, Flags: flags, Length: n})
	binary.BigEndian.PutUint32(buf[HeaderSize:], p.Guildcard)
	binary.BigEndian.PutUint32(buf[HeaderSize+4:], p.Slot)
	copy(buf[HeaderSize+8:], p.Data[:])
	return n
}

// Parse decodes a character blob body.
func (p *CharData) Parse(body []byte) error {
	r := NewReader(body)
	var err error

	if p.Guildcard, err = r.ReadUint32(); err != nil {
		return fmt.Errorf("reading guildcard: %w", err)
	}
	if p.Slot, err = r.ReadUint32(); err != nil {
		return fmt.Errorf("reading slot: %w", err)
	}
	data, err := r.ReadBytes(CharDataSize)
	if err != nil {
		return fmt.Errorf("reading character data: %w", err)
	}
	copy(p.Data[:], data)
	return nil
}

// CharReq [TypeCharReq] is the ship to shipgate backup fetch.
//
// Format:
//
//	[guildcard u32][slot u32]
type CharReq struct {
	Guildcard uint32
	Slot      uint32
}

// BuildCharReq writes a character fetch request into buf and returns the
// number of bytes written.
func BuildCharReq(buf []byte, p CharReq) int {
	const n = HeaderSize + 8
	PutHeader(buf, Header{Type: TypeCharReq, Length: n})
	binary.BigEndian.PutUint32(buf[HeaderSize:], p.Guildcard)
	binary.BigEndian.PutUint32(buf[HeaderSize+4:], p.Slot)
	return n
}

// Parse decodes a character fetch body.
func (p *CharReq) Parse(body []byte) error {
	r := NewReader(body)
	var err error

	if p.Guildcard, err = r.ReadUint32(); err != nil {
		return fmt.Errorf("reading guildcard: %w", err)
	}
	if p.Slot, err = r.ReadUint32(); err != nil {
		return fmt.Errorf("reading slot: %w", err)
	}
	return nil
}
