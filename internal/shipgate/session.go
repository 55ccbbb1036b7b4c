package shipgate

import (
	"sync"
	"time"

	"github.com/solvane/solvane/internal/gate"
)

// session is one connected ship. Reads run on the HandleConn goroutine;
// writes are serialized by writeMu so broadcasts originating on other
// sessions' handlers can interleave safely.
type session struct {
	conn *gate.Conn

	writeMu sync.Mutex
	wbuf    []byte

	seenMu sync.Mutex
	seen   time.Time

	// Identity, filled at login.
	id       uint32
	key      []byte
	name     string
	addr     uint32
	intAddr  uint32
	port     uint16
	flags    uint32
	menuCode uint16
}

func (c *session) touch() {
	c.seenMu.Lock()
	c.seen = time.Now()
	c.seenMu.Unlock()
}

func (c *session) lastSeen() time.Time {
	c.seenMu.Lock()
	defer c.seenMu.Unlock()
	return c.seen
}

// send serializes one outbound packet built by fn into the session's write
// buffer.
func (c *session) send(fn func(buf []byte) int) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	n := fn(c.wbuf)
	return c.conn.WritePacket(c.wbuf, n)
}

func (c *session) sendError(typ, flags uint16, code uint32, data []byte) error {
	return c.send(func(buf []byte) int {
		return gate.BuildError(buf, typ, flags, code, data)
	})
}

func (c *session) sendPing(reply bool) error {
	return c.send(func(buf []byte) int {
		return gate.BuildPing(buf, reply)
	})
}

// status summarizes the session for fleet announcements.
func (c *session) status(online bool) gate.ShipStatus {
	return gate.ShipStatus{
		Name:     c.name,
		ShipID:   c.id,
		ShipAddr: c.addr,
		IntAddr:  c.intAddr,
		ShipPort: c.port,
		Online:   online,
		Flags:    c.flags,
		MenuCode: c.menuCode,
	}
}
