package crypto

import "encoding/binary"

// Stream is a direction-specific keystream cipher. Both generators used by
// the client protocol family produce 32-bit words that are XORed over the
// byte stream, so encryption and decryption are the same operation. Every
// connection owns two independent instances, one per direction.
type Stream interface {
	// Apply enciphers (or deciphers) data in place.
	Apply(data []byte)
}

// applyWords XORs the generator output over data, 4 bytes per keystream word.
// A trailing partial word consumes one extra word and uses its low bytes
// first; framed packets are always padded to 4 bytes so this only matters for
// callers feeding raw slices.
func applyWords(next func() uint32, data []byte) {
	i := 0
	for ; i+4 <= len(data); i += 4 {
		w := next()
		binary.LittleEndian.PutUint32(data[i:], binary.LittleEndian.Uint32(data[i:])^w)
	}
	if i < len(data) {
		w := next()
		for j := 0; i < len(data); i, j = i+1, j+1 {
			data[i] ^= byte(w >> (8 * j))
		}
	}
}
