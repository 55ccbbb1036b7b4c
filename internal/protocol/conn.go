package protocol

import (
	"fmt"
	"io"
	mathrand "math/rand/v2"
	"net"

	"github.com/solvane/solvane/internal/crypto"
)

// MaxPacketSize bounds a single client packet. The length field is 16 bits,
// so nothing larger can be framed anyway.
const MaxPacketSize = 65536

// Conn frames encrypted packets over a client TCP connection. The zero
// ciphers mean the welcome has not been sent yet; writing in that state is a
// CipherMisuse error. Reads and writes each decrypt/encrypt in place with the
// direction's keystream, so the two sides of a Conn may be driven from
// different goroutines but each side must be serialized by the caller (one
// reader goroutine per connection, writes under the session's send path).
type Conn struct {
	nc      net.Conn
	variant Variant

	recv crypto.Stream // client -> server
	send crypto.Stream // server -> client
}

// NewConn wraps an accepted connection for the given variant. Ciphers are
// installed by SendWelcome.
func NewConn(nc net.Conn, v Variant) *Conn {
	return &Conn{nc: nc, variant: v}
}

// Variant returns the protocol variant this connection speaks.
func (c *Conn) Variant() Variant { return c.variant }

// RemoteAddr returns the peer address.
func (c *Conn) RemoteAddr() net.Addr { return c.nc.RemoteAddr() }

// Close closes the underlying connection.
func (c *Conn) Close() error { return c.nc.Close() }

// newStream builds a direction cipher for the connection's variant.
func (c *Conn) newStream(seed uint32) crypto.Stream {
	if c.variant.Cipher() == CipherGC {
		return crypto.NewGCCipher(seed)
	}
	return crypto.NewPCCipher(seed)
}

// SendWelcome writes the plaintext welcome packet carrying both cipher seeds
// and installs the per-direction keystreams. Everything after this call is
// encrypted. Fresh seeds are drawn per connection.
func (c *Conn) SendWelcome() error {
	serverSeed := mathrand.Uint32()
	clientSeed := mathrand.Uint32()

	pkt := BuildWelcome(c.variant, serverSeed, clientSeed)
	if _, err := c.nc.Write(pkt); err != nil {
		return fmt.Errorf("sending welcome: %w", err)
	}

	c.send = c.newStream(serverSeed)
	c.recv = c.newStream(clientSeed)
	return nil
}

// ReadPacket reads one packet into buf and returns the decrypted bytes,
// header included. buf must hold MaxPacketSize bytes.
func (c *Conn) ReadPacket(buf []byte) ([]byte, error) {
	if c.recv == nil {
		return nil, ErrCipherMisuse
	}

	hdr := buf[:HeaderSize]
	if _, err := io.ReadFull(c.nc, hdr); err != nil {
		return nil, fmt.Errorf("reading packet header: %w", err)
	}
	c.recv.Apply(hdr)

	h, err := ParseHeader(hdr, c.variant)
	if err != nil {
		return nil, err
	}

	// The wire always carries full cipher blocks, so read up to the padded
	// length even when the header claims less.
	pktSz := PadLength(int(h.Length), HeaderSize)
	if pktSz > len(buf) {
		return nil, fmt.Errorf("packet size %d exceeds buffer %d", pktSz, len(buf))
	}

	body := buf[HeaderSize:pktSz]
	if _, err := io.ReadFull(c.nc, body); err != nil {
		return nil, fmt.Errorf("reading packet body: %w", err)
	}
	c.recv.Apply(body)

	return buf[:pktSz], nil
}

// WritePacket pads buf[:pktLen] to the header alignment, encrypts it in
// place and writes it out. buf must have room for the padding.
func (c *Conn) WritePacket(buf []byte, pktLen int) error {
	if c.send == nil {
		return ErrCipherMisuse
	}

	padded := PadLength(pktLen, HeaderSize)
	if padded > len(buf) {
		return fmt.Errorf("write packet: buffer too small (need %d, have %d)", padded, len(buf))
	}
	clear(buf[pktLen:padded])

	c.send.Apply(buf[:padded])
	if _, err := c.nc.Write(buf[:padded]); err != nil {
		return fmt.Errorf("writing packet: %w", err)
	}
	return nil
}
