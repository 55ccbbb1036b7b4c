package crypto

import (
	"crypto/sha512"
	"fmt"
)

const (
	// SharedKeySize is the size of the per-ship key stored in ship_data.
	SharedKeySize = 128

	// SessionKeySize is the size of a derived RC4 session key.
	SessionKeySize = 64

	// NonceSize is the size of the per-direction nonce exchanged in the
	// shipgate welcome packet.
	NonceSize = 4
)

// DeriveSessionKey mixes a direction nonce into the 128-byte shared key and
// hashes the result, producing the RC4 key for that direction. The nonce is
// XORed over the key repeated every 4 bytes; the session key is the first 64
// bytes of the SHA-512 digest. Both ends must derive the gate and ship keys
// from the same nonces or the session is garbage from the first packet.
func DeriveSessionKey(shared []byte, nonce [NonceSize]byte) ([]byte, error) {
	if len(shared) != SharedKeySize {
		return nil, fmt.Errorf("derive session key: shared key must be %d bytes, got %d",
			SharedKeySize, len(shared))
	}

	mixed := make([]byte, SharedKeySize)
	for i := 0; i < SharedKeySize; i += NonceSize {
		mixed[i+0] = shared[i+0] ^ nonce[0]
		mixed[i+1] = shared[i+1] ^ nonce[1]
		mixed[i+2] = shared[i+2] ^ nonce[2]
		mixed[i+3] = shared[i+3] ^ nonce[3]
	}

	sum := sha512.Sum512(mixed)
	return sum[:SessionKeySize], nil
}
