package login

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/solvane/solvane/internal/protocol"
)

// Opcodes the login tier speaks.
const (
	CmdLogin    = 0x93 // client credentials
	CmdLoginAck = 0x92 // verdict, sent before a redirect or a close
	CmdRedirect = 0x19 // ship address handoff
)

// Login verdict codes carried in the ack.
const (
	LoginOK            = 0
	LoginBadCredential = 1
	LoginBanned        = 2
	LoginNoShips       = 3
)

// Request is a parsed login packet. All client-side fields are
// little-endian.
//
// Body layout:
//
//	[tag u32][guildcard u32]
//	[username 32 bytes][password 32 bytes]
type Request struct {
	Tag       uint32
	Guildcard uint32
	Username  string
	Password  string
}

// ParseRequest decodes a login packet body (header stripped).
func ParseRequest(body []byte) (Request, error) {
	const want = 4 + 4 + 32 + 32
	if len(body) < want {
		return Request{}, fmt.Errorf("login packet too short: %d bytes", len(body))
	}

	return Request{
		Tag:       binary.LittleEndian.Uint32(body[0:4]),
		Guildcard: binary.LittleEndian.Uint32(body[4:8]),
		Username:  trimNUL(body[8:40]),
		Password:  trimNUL(body[40:72]),
	}, nil
}

// BuildRequest writes a login packet for the given variant, for tools
// speaking the client side.
func BuildRequest(buf []byte, v protocol.Variant, req Request) int {
	const n = protocol.HeaderSize + 4 + 4 + 32 + 32
	protocol.PutHeader(buf, protocol.Header{Type: CmdLogin, Length: n}, v)
	pos := protocol.HeaderSize
	binary.LittleEndian.PutUint32(buf[pos:], req.Tag)
	binary.LittleEndian.PutUint32(buf[pos+4:], req.Guildcard)
	pos += 8
	clear(buf[pos : pos+64])
	copy(buf[pos:pos+32], req.Username)
	copy(buf[pos+32:pos+64], req.Password)
	return n
}

func trimNUL(b []byte) string {
	return strings.TrimRight(string(b), "\x00")
}

// BuildAck writes the login verdict into buf and returns the number of bytes
// written.
//
// Body layout: [result u32][guildcard u32]
func BuildAck(buf []byte, v protocol.Variant, result, guildcard uint32) int {
	const n = protocol.HeaderSize + 8
	protocol.PutHeader(buf, protocol.Header{Type: CmdLoginAck, Length: n}, v)
	binary.LittleEndian.PutUint32(buf[protocol.HeaderSize:], result)
	binary.LittleEndian.PutUint32(buf[protocol.HeaderSize+4:], guildcard)
	return n
}

// BuildRedirect writes a ship handoff into buf and returns the number of
// bytes written. addr is the IPv4 in network order; it crosses the wire
// unswapped, the port is little-endian like every other client field.
func BuildRedirect(buf []byte, v protocol.Variant, addr uint32, port uint16) int {
	const n = protocol.HeaderSize + 8
	protocol.PutHeader(buf, protocol.Header{Type: CmdRedirect, Length: n}, v)
	binary.BigEndian.PutUint32(buf[protocol.HeaderSize:], addr)
	binary.LittleEndian.PutUint16(buf[protocol.HeaderSize+4:], port)
	buf[protocol.HeaderSize+6] = 0
	buf[protocol.HeaderSize+7] = 0
	return n
}

// ParseRedirect decodes a redirect body, for tools speaking the client side.
func ParseRedirect(body []byte) (addr uint32, port uint16, err error) {
	if len(body) < 8 {
		return 0, 0, fmt.Errorf("redirect too short: %d bytes", len(body))
	}
	return binary.BigEndian.Uint32(body[0:4]), binary.LittleEndian.Uint16(body[4:6]), nil
}
