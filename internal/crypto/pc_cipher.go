package crypto

// PCCipher implements the keystream generator used by the Dreamcast and PC
// clients. It is a 55-element lagged subtractive generator (plus two scratch
// slots) seeded from a single 32-bit value carried in the clear by the
// welcome packet.
//
// The generator must match the client bit for bit: the seeding walk, the two
// mixing passes (24 then 31 subtractions) and the position handling are all
// observable on the wire, so none of it can be simplified.
type PCCipher struct {
	stream [57]uint32
	pos    int
}

// NewPCCipher creates a generator for one direction, seeded with the value
// sent in the welcome packet.
func NewPCCipher(seed uint32) *PCCipher {
	c := &PCCipher{}

	esi := uint32(1)
	ebx := seed
	c.stream[56] = ebx
	c.stream[55] = ebx

	for edi := uint32(0x15); edi <= 0x46E; edi += 0x15 {
		idx := edi % 55
		ebx -= esi
		c.stream[idx] = esi
		esi = ebx
		ebx = c.stream[idx]
	}

	c.mix()
	c.mix()
	c.mix()
	c.mix()
	c.pos = 56

	return c
}

func (c *PCCipher) mix() {
	for i := 1; i <= 24; i++ {
		c.stream[i] -= c.stream[i+31]
	}
	for i := 25; i <= 55; i++ {
		c.stream[i] -= c.stream[i-24]
	}
}

func (c *PCCipher) next() uint32 {
	if c.pos == 56 {
		c.mix()
		c.pos = 1
	}
	w := c.stream[c.pos]
	c.pos++
	return w
}

// Apply enciphers data in place.
func (c *PCCipher) Apply(data []byte) {
	applyWords(c.next, data)
}
