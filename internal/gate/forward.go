package gate

import (
	"encoding/binary"
	"fmt"
)

// Inner opcodes the shipgate routes by. These are client-packet opcodes as
// they appear in the embedded packet's own header.
const (
	InnerGuildSearch  = 0x40
	InnerDCGuildReply = 0x41
	InnerSimpleMail   = 0x81
)

// Forward [TypeForwardDC / TypeForwardPC] is a game packet crossing ships.
// The envelope carries the origin ship id on the way to the shipgate and the
// resolved target/origin id on the way back out.
//
// Format:
//
//	[shipID u32][reserved u32]
//	[inner packet, variant framing, as received from the client]
type Forward struct {
	ShipID uint32
	Packet []byte
}

// BuildForward writes a forward envelope into buf and returns the number of
// bytes written. typ selects the inner framing (TypeForwardDC/TypeForwardPC).
func BuildForward(buf []byte, typ uint16, p Forward) int {
	n := HeaderSize + 8 + len(p.Packet)
	PutHeader(buf, Header{Type: typ, Length: uint16(n)})
	binary.BigEndian.PutUint32(buf[HeaderSize:], p.ShipID)
	binary.BigEndian.PutUint32(buf[HeaderSize+4:], 0)
	copy(buf[HeaderSize+8:], p.Packet)
	return n
}

// Parse decodes a forward envelope body. The inner packet aliases body, it
// must be copied if retained past the read buffer's reuse.
func (p *Forward) Parse(body []byte) error {
	if len(body) < 8 {
		return fmt.Errorf("forward envelope too short: %d bytes", len(body))
	}
	p.ShipID = binary.BigEndian.Uint32(body[0:4])
	p.Packet = body[8:]
	return nil
}

// InnerOpcode returns the opcode of the embedded packet. DC framing carries
// the opcode in the first header byte, PC framing in the third.
func (p *Forward) InnerOpcode(typ uint16) (uint8, error) {
	if len(p.Packet) < 4 {
		return 0, fmt.Errorf("forwarded packet too short: %d bytes", len(p.Packet))
	}
	if typ == TypeForwardPC {
		return p.Packet[2], nil
	}
	return p.Packet[0], nil
}
