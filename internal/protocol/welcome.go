package protocol

import "encoding/binary"

// Welcome packet opcodes. The DC/PC family and the GC family use different
// opcodes for the same layout: 64 bytes of copyright text followed by the
// server seed and the client seed, both little-endian.
const (
	WelcomeTypeDC = 0x17
	WelcomeTypeGC = 0x02

	welcomeCopyright = "DreamCast Port Map. Copyright SEGA Enterprises. 1999"
	welcomeSize      = HeaderSize + 64 + 4 + 4
)

// BuildWelcome builds the plaintext welcome packet for a variant.
func BuildWelcome(v Variant, serverSeed, clientSeed uint32) []byte {
	pkt := make([]byte, welcomeSize)

	typ := uint8(WelcomeTypeDC)
	if v.Cipher() == CipherGC {
		typ = WelcomeTypeGC
	}
	PutHeader(pkt, Header{Type: typ, Length: welcomeSize}, v)

	copy(pkt[HeaderSize:HeaderSize+64], welcomeCopyright)
	binary.LittleEndian.PutUint32(pkt[HeaderSize+64:], serverSeed)
	binary.LittleEndian.PutUint32(pkt[HeaderSize+68:], clientSeed)

	return pkt
}

// ParseWelcome extracts the two seeds from a welcome packet. Used by the
// ship's test client and any tool speaking the protocol from the client side.
func ParseWelcome(pkt []byte) (serverSeed, clientSeed uint32, ok bool) {
	if len(pkt) < welcomeSize {
		return 0, 0, false
	}
	serverSeed = binary.LittleEndian.Uint32(pkt[HeaderSize+64:])
	clientSeed = binary.LittleEndian.Uint32(pkt[HeaderSize+68:])
	return serverSeed, clientSeed, true
}
