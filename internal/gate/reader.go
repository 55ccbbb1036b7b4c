package gate

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// Reader reads fields out of a hub packet body. All multi-byte values are
// big-endian on this link.
type Reader struct {
	data []byte
	pos  int
}

// NewReader creates a Reader over a packet body (header stripped).
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// ReadUint8 reads 1 byte.
func (r *Reader) ReadUint8() (uint8, error) {
	if r.pos >= len(r.data) {
		return 0, fmt.Errorf("ReadUint8: not enough data (pos=%d, len=%d)", r.pos, len(r.data))
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

// ReadUint16 reads a big-endian uint16.
func (r *Reader) ReadUint16() (uint16, error) {
	if r.pos+2 > len(r.data) {
		return 0, fmt.Errorf("ReadUint16: not enough data (pos=%d, len=%d)", r.pos, len(r.data))
	}
	val := binary.BigEndian.Uint16(r.data[r.pos:])
	r.pos += 2
	return val, nil
}

// ReadUint32 reads a big-endian uint32.
func (r *Reader) ReadUint32() (uint32, error) {
	if r.pos+4 > len(r.data) {
		return 0, fmt.Errorf("ReadUint32: not enough data (pos=%d, len=%d)", r.pos, len(r.data))
	}
	val := binary.BigEndian.Uint32(r.data[r.pos:])
	r.pos += 4
	return val, nil
}

// ReadBytes reads n raw bytes.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("ReadBytes: negative count %d", n)
	}
	if r.pos+n > len(r.data) {
		return nil, fmt.Errorf("ReadBytes: not enough data (pos=%d, need=%d, len=%d)", r.pos, n, len(r.data))
	}
	out := make([]byte, n)
	copy(out, r.data[r.pos:r.pos+n])
	r.pos += n
	return out, nil
}

// ReadFixedString reads an n-byte field holding a NUL-padded ASCII string.
func (r *Reader) ReadFixedString(n int) (string, error) {
	raw, err := r.ReadBytes(n)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(raw), "\x00"), nil
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.data) - r.pos
}
