package gate

import (
	"encoding/binary"
	"fmt"
)

// BanReq [TypeGCBan / TypeIPBan] is the ship to shipgate ban request. The
// packet type selects whether Target is a guildcard or an IPv4 address.
//
// Format:
//
//	[requester u32][target u32][until u32][reserved u32]
//	[reason 256 bytes]
type BanReq struct {
	Requester uint32
	Target    uint32
	Until     uint32 // unix timestamp the ban expires at
	Reason    string
}

// BuildBanReq writes a ban request into buf and returns the number of bytes
// written.
func BuildBanReq(buf []byte, typ uint16, p BanReq) int {
	const n = HeaderSize + 16 + 256
	PutHeader(buf, Header{Type: typ, Length: n})
	binary.BigEndian.PutUint32(buf[HeaderSize:], p.Requester)
	binary.BigEndian.PutUint32(buf[HeaderSize+4:], p.Target)
	binary.BigEndian.PutUint32(buf[HeaderSize+8:], p.Until)
	binary.BigEndian.PutUint32(buf[HeaderSize+12:], 0)

	clear(buf[HeaderSize+16 : HeaderSize+272])
	copy(buf[HeaderSize+16:HeaderSize+272], p.Reason)
	return n
}

// Parse decodes a ban request body.
func (p *BanReq) Parse(body []byte) error {
	r := NewReader(body)
	var err error

	if p.Requester, err = r.ReadUint32(); err != nil {
		return fmt.Errorf("reading requester: %w", err)
	}
	if p.Target, err = r.ReadUint32(); err != nil {
		return fmt.Errorf("reading target: %w", err)
	}
	if p.Until, err = r.ReadUint32(); err != nil {
		return fmt.Errorf("reading end date: %w", err)
	}
	if _, err = r.ReadUint32(); err != nil {
		return fmt.Errorf("reading reserved: %w", err)
	}
	if p.Reason, err = r.ReadFixedString(256); err != nil {
		return fmt.Errorf("reading reason: %w", err)
	}
	return nil
}
