package gate

import (
	"encoding/binary"
	"fmt"
)

// ErrorPkt answers a request with a result code. A code of ErrNoError with
// FlagResponse set is the generic ack; FlagFailure marks rejections. Data
// optionally echoes identifying bytes from the request so the peer can match
// the reply to what it asked.
type ErrorPkt struct {
	Code uint32
	Data []byte
}

// BuildError writes a result packet of the given type and flags into buf and
// returns the number of bytes written.
func BuildError(buf []byte, typ, flags uint16, code uint32, data []byte) int {
	n := HeaderSize + 4 + len(data)
	PutHeader(buf, Header{Type: typ, Flags: flags, Length: uint16(n)})
	binary.BigEndian.PutUint32(buf[HeaderSize:], code)
	copy(buf[HeaderSize+4:], data)
	return n
}

// Parse decodes a result body. Data aliases body.
func (p *ErrorPkt) Parse(body []byte) error {
	if len(body) < 4 {
		return fmt.Errorf("result packet too short: %d bytes", len(body))
	}
	p.Code = binary.BigEndian.Uint32(body[0:4])
	p.Data = body[4:]
	return nil
}

// BuildPing writes a ping packet into buf and returns the number of bytes
// written. Requests carry no flags; replies set FlagResponse and are consumed
// silently to refresh the peer's liveness clock.
func BuildPing(buf []byte, reply bool) int {
	var flags uint16
	if reply {
		flags = FlagResponse
	}
	PutHeader(buf, Header{Type: TypePing, Flags: flags, Length: HeaderSize})
	return HeaderSize
}
