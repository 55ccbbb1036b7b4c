package protocol

import "sync"

// BytePool is a pool of reusable []byte buffers. Each block loop grabs a
// read and a send buffer per packet instead of allocating 64 KiB a time.
type BytePool struct {
	pool sync.Pool
}

// NewBytePool creates a pool whose fresh slices have the given capacity.
func NewBytePool(defaultCap int) *BytePool {
	p := &BytePool{}
	p.pool.New = func() any {
		return make([]byte, 0, defaultCap)
	}
	return p
}

// Get returns a zeroed slice of the requested size, from the pool when
// possible.
func (p *BytePool) Get(size int) []byte {
	b := p.pool.Get().([]byte)
	if cap(b) < size {
		p.pool.Put(b)
		return make([]byte, size)
	}
	b = b[:size]
	clear(b)
	return b
}

// Put returns a slice to the pool.
func (p *BytePool) Put(b []byte) {
	if b == nil {
		return
	}
	p.pool.Put(b[:0])
}
