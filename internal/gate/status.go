package gate

import (
	"encoding/binary"
	"fmt"
)

// Count [TypeCount] is the ship to shipgate counter update, and the shipgate
// to ship rebroadcast (with ShipID filled in).
//
// Format:
//
//	[clients u16][games u16][shipID u32]
type Count struct {
	Clients uint16
	Games   uint16
	ShipID  uint32
}

// BuildCount writes a counter update into buf and returns the number of
// bytes written.
func BuildCount(buf []byte, p Count) int {
	const n = HeaderSize + 8
	PutHeader(buf, Header{Type: TypeCount, Length: n})
	binary.BigEndian.PutUint16(buf[HeaderSize:], p.Clients)
	binary.BigEndian.PutUint16(buf[HeaderSize+2:], p.Games)
	binary.BigEndian.PutUint32(buf[HeaderSize+4:], p.ShipID)
	return n
}

// Parse decodes a counter update body.
func (p *Count) Parse(body []byte) error {
	r := NewReader(body)
	var err error

	if p.Clients, err = r.ReadUint16(); err != nil {
		return fmt.Errorf("reading client count: %w", err)
	}
	if p.Games, err = r.ReadUint16(); err != nil {
		return fmt.Errorf("reading game count: %w", err)
	}
	if p.ShipID, err = r.ReadUint32(); err != nil {
		return fmt.Errorf("reading ship id: %w", err)
	}
	return nil
}

// ShipStatus [TypeShipStatus] is the shipgate to ship fleet announcement.
// Online=1 adds the ship to the peer's list, Online=0 removes it.
//
// Format:
//
//	[name 12 bytes]
//	[shipID u32][shipAddr u32][intAddr u32]
//	[shipPort u16][online u16]
//	[flags u32]
//	[menuCode u16][reserved u16]
type ShipStatus struct {
	Name     string
	ShipID   uint32
	ShipAddr uint32
	IntAddr  uint32
	ShipPort uint16
	Online   bool
	Flags    uint32
	MenuCode uint16
}

// BuildShipStatus writes a status announcement into buf and returns the
// number of bytes written.
func BuildShipStatus(buf []byte, p ShipStatus) int {
	const n = HeaderSize + 12 + 4 + 4 + 4 + 2 + 2 + 4 + 2 + 2
	PutHeader(buf, Header{Type: TypeShipStatus, Length: n})
	pos := HeaderSize

	clear(buf[pos : pos+12])
	copy(buf[pos:pos+12], p.Name)
	pos += 12

	binary.BigEndian.PutUint32(buf[pos:], p.ShipID)
	binary.BigEndian.PutUint32(buf[pos+4:], p.ShipAddr)
	binary.BigEndian.PutUint32(buf[pos+8:], p.IntAddr)
	pos += 12

	var online uint16
	if p.Online {
		online = 1
	}
	binary.BigEndian.PutUint16(buf[pos:], p.ShipPort)
	binary.BigEndian.PutUint16(buf[pos+2:], online)
	pos += 4

	binary.BigEndian.PutUint32(buf[pos:], p.Flags)
	pos += 4

	binary.BigEndian.PutUint16(buf[pos:], p.MenuCode)
	binary.BigEndian.PutUint16(buf[pos+2:], 0)
	pos += 4

	return pos
}

// Parse decodes a status announcement body.
func (p *ShipStatus) Parse(body []byte) error {
	r := NewReader(body)
	var err error

	if p.Name, err = r.ReadFixedString(12); err != nil {
		return fmt.Errorf("reading name: %w", err)
	}
	if p.ShipID, err = r.ReadUint32(); err != nil {
		return fmt.Errorf("reading ship id: %w", err)
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
	online, err := r.ReadUint16()
	if err != nil {
		return fmt.Errorf("reading online flag: %w", err)
	}
	p.Online = online != 0
	if p.Flags, err = r.ReadUint32(); err != nil {
		return fmt.Errorf("reading flags: %w", err)
	}
	if p.MenuCode, err = r.ReadUint16(); err != nil {
		return fmt.Errorf("reading menu code: %w", err)
	}
	return nil
}
