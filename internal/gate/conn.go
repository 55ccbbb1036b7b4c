package gate

import (
	"crypto/rc4"
	"fmt"
	"io"
	"net"

	"github.com/solvane/solvane/internal/crypto"
	"github.com/solvane/solvane/internal/protocol"
)

// MaxPacketSize bounds a single hub packet. The length field is 16 bits.
const MaxPacketSize = 65536

// Conn frames RC4-encrypted packets over a ship<->shipgate TCP connection.
// Until SetSessionKeys is called the link runs in plaintext; the welcome and
// the login reply travel that way, everything after is encrypted. Each
// direction has its own keystream, so reads and writes may be driven from
// different goroutines but each must be serialized by the caller.
type Conn struct {
	nc net.Conn

	recv *rc4.Cipher
	send *rc4.Cipher
}

// NewConn wraps an established hub connection. The link starts in plaintext.
func NewConn(nc net.Conn) *Conn {
	return &Conn{nc: nc}
}

// RemoteAddr returns the peer address.
func (c *Conn) RemoteAddr() net.Addr { return c.nc.RemoteAddr() }

// Close closes the underlying connection.
func (c *Conn) Close() error { return c.nc.Close() }

// SetSessionKeys derives both direction keys from the 128-byte shared key
// and the two login nonces, then switches the link to RC4. recvNonce mixes
// the key for packets this side reads, sendNonce for packets it writes; the
// two ends call this with the nonces swapped.
func (c *Conn) SetSessionKeys(sharedKey []byte, recvNonce, sendNonce [crypto.NonceSize]byte) error {
	recvKey, err := crypto.DeriveSessionKey(sharedKey, recvNonce)
	if err != nil {
		return fmt.Errorf("deriving recv key: %w", err)
	}
	sendKey, err := crypto.DeriveSessionKey(sharedKey, sendNonce)
	if err != nil {
		return fmt.Errorf("deriving send key: %w", err)
	}

	c.recv, err = rc4.NewCipher(recvKey)
	if err != nil {
		return fmt.Errorf("recv cipher: %w", err)
	}
	c.send, err = rc4.NewCipher(sendKey)
	if err != nil {
		return fmt.Errorf("send cipher: %w", err)
	}
	return nil
}

// Encrypted reports whether the session keys have been installed.
func (c *Conn) Encrypted() bool { return c.recv != nil }

// ReadPacket reads one packet into buf and returns the decrypted bytes,
// header included and padded to 8. buf must hold MaxPacketSize bytes.
func (c *Conn) ReadPacket(buf []byte) ([]byte, error) {
	hdr := buf[:HeaderSize]
	if _, err := io.ReadFull(c.nc, hdr); err != nil {
		return nil, fmt.Errorf("reading packet header: %w", err)
	}
	if c.recv != nil {
		c.recv.XORKeyStream(hdr, hdr)
	}

	h, err := ParseHeader(hdr)
	if err != nil {
		return nil, err
	}

	pktSz := protocol.PadLength(int(h.Length), HeaderSize)
	if pktSz > len(buf) {
		return nil, fmt.Errorf("packet size %d exceeds buffer %d", pktSz, len(buf))
	}

	body := buf[HeaderSize:pktSz]
	if _, err := io.ReadFull(c.nc, body); err != nil {
		return nil, fmt.Errorf("reading packet body: %w", err)
	}
	if c.recv != nil {
		c.recv.XORKeyStream(body, body)
	}

	return buf[:pktSz], nil
}

// WritePacket pads buf[:pktLen] to 8 bytes, encrypts it in place when the
// session keys are set and writes it out. buf must have room for the padding.
func (c *Conn) WritePacket(buf []byte, pktLen int) error {
	padded := protocol.PadLength(pktLen, HeaderSize)
	if padded > len(buf) {
		return fmt.Errorf("write packet: buffer too small (need %d, have %d)", padded, len(buf))
	}
	clear(buf[pktLen:padded])

	if c.send != nil {
		c.send.XORKeyStream(buf[:padded], buf[:padded])
	}
	if _, err := c.nc.Write(buf[:padded]); err != nil {
		return fmt.Errorf("writing packet: %w", err)
	}
	return nil
}
