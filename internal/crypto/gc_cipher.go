package crypto

// GCCipher implements the keystream generator used by the GameCube clients
// (all regional builds and Episode 3 share it). The state is a 521-word
// shift-register seeded by folding the output of a 0x5D588B65 linear
// congruential walk, then expanded and mixed three times before use.
type GCCipher struct {
	stream [521]uint32
	offset int
}

// NewGCCipher creates a generator for one direction, seeded with the value
// sent in the welcome packet.
func NewGCCipher(seed uint32) *GCCipher {
	c := &GCCipher{}

	var base uint32
	idx := 0
	for x := 0; x <= 16; x++ {
		for y := 0; y < 32; y++ {
			seed = seed*0x5D588B65 + 1
			base >>= 1
			if seed&0x80000000 != 0 {
				base |= 0x80000000
			} else {
				base &= 0x7FFFFFFF
			}
		}
		c.stream[idx] = base
		idx++
	}

	c.stream[idx-1] = (c.stream[0] >> 9) ^ (c.stream[idx-1] << 23) ^ c.stream[15]

	s1, s2, s3 := 0, 1, idx-1
	for idx != 521 {
		c.stream[idx] = c.stream[s3] ^ (((c.stream[s1] << 23) & 0xFF800000) ^
			((c.stream[s2] >> 9) & 0x007FFFFF))
		idx++
		s1++
		s2++
		s3++
	}

	c.update()
	c.update()
	c.update()
	c.offset = 520

	return c
}

func (c *GCCipher) update() {
	i, j := 0, 489
	for j != 521 {
		c.stream[i] ^= c.stream[j]
		i++
		j++
	}
	j = 0
	for i != 521 {
		c.stream[i] ^= c.stream[j]
		i++
		j++
	}
	c.offset = 0
}

func (c *GCCipher) next() uint32 {
	c.offset++
	if c.offset == 521 {
		c.update()
	}
	return c.stream[c.offset]
}

// Apply enciphers data in place.
func (c *GCCipher) Apply(data []byte) {
	applyWords(c.next, data)
}
