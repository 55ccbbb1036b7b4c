package ship

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/solvane/solvane/internal/protocol"
)

// BlacklistSize is the number of guildcard slots in a client's blacklist.
const BlacklistSize = 30

// Client flag bits. Kept in an atomic word so the block loop and the room
// machinery can test them without taking the client mutex.
const (
	ClientFlagDisconnected = 0x00000001
	ClientFlagTypeShip     = 0x00000002 // ship-select session, not a block session
	ClientFlagSentMOTD     = 0x00000004
	ClientFlagLoggedIn     = 0x00000008
	ClientFlagShowDCPCOnGC = 0x00000010
	ClientFlagBursting     = 0x00000020
)

// Player is the character record behind a block session. The room machinery
// reads it under the owning client's mutex.
type Player struct {
	Name           string
	Level          uint32
	ChallengeTimes [9]uint32 // completion time per stage, 0 = not cleared
	Inventory      []Item
}

// Item is one inventory entry as the legit checker sees it.
type Item struct {
	Data [4]uint32
}

// Client is one session on a ship block. The connection goroutine owns the
// struct; rooms hold non-owning references and coordinate through the room
// mutex. The client's own mutex guards the player record.
type Client struct {
	conn    *protocol.Conn
	variant protocol.Variant

	Guildcard uint32
	Privilege uint8
	Language  uint8
	ClientID  int

	flags atomic.Uint32

	// Guarded by mu.
	mu        sync.Mutex
	player    *Player
	blacklist [BlacklistSize]uint32
	ignored   []uint32
	autoreply []byte

	// Owned by the room machinery, guarded by the current room's mutex.
	curLobby *Lobby
	joinTime time.Time
	arrow    uint8

	block *Block

	lastMessage atomic.Int64

	sendMu sync.Mutex
	sendBuf []byte
}

// NewClient wraps a welcomed connection as a block session.
func NewClient(conn *protocol.Conn, b *Block) *Client {
	c := &Client{
		conn:    conn,
		variant: conn.Variant(),
		block:   b,
		sendBuf: make([]byte, protocol.MaxPacketSize),
	}
	c.Touch()
	return c
}

// Variant returns the client's protocol variant.
func (c *Client) Variant() protocol.Variant { return c.variant }

// Block returns the block this session is attached to, nil for ship-select
// sessions.
func (c *Client) Block() *Block { return c.block }

// Lobby returns the room the client is currently in, nil if none. Callers
// racing against room changes must confirm membership under the room lock.
func (c *Client) Lobby() *Lobby { return c.curLobby }

// SetFlag sets a client flag bit.
func (c *Client) SetFlag(flag uint32) {
	for {
		old := c.flags.Load()
		if c.flags.CompareAndSwap(old, old|flag) {
			return
		}
	}
}

// ClearFlag clears a client flag bit.
func (c *Client) ClearFlag(flag uint32) {
	for {
		old := c.flags.Load()
		if c.flags.CompareAndSwap(old, old&^flag) {
			return
		}
	}
}

// HasFlag reports whether a client flag bit is set.
func (c *Client) HasFlag(flag uint32) bool {
	return c.flags.Load()&flag != 0
}

// Disconnected reports whether the session is marked for harvest.
func (c *Client) Disconnected() bool { return c.HasFlag(ClientFlagDisconnected) }

// Disconnect marks the session for harvest at the end of the current tick.
func (c *Client) Disconnect() { c.SetFlag(ClientFlagDisconnected) }

// Touch refreshes the last-message timestamp.
func (c *Client) Touch() { c.lastMessage.Store(time.Now().Unix()) }

// IdleSince returns the last-message timestamp.
func (c *Client) IdleSince() time.Time { return time.Unix(c.lastMessage.Load(), 0) }

// SetPlayer installs the character record for a block session.
func (c *Client) SetPlayer(p *Player) {
	c.mu.Lock()
	c.player = p
	c.mu.Unlock()
}

// WithPlayer runs fn with the player record under the client mutex. fn must
// not call back into the client.
func (c *Client) WithPlayer(fn func(*Player)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.player != nil {
		fn(c.player)
	}
}

// Level returns the character's level, 0 when no record is attached.
func (c *Client) Level() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.player == nil {
		return 0
	}
	return c.player.Level
}

// BlacklistAdd records a guildcard the client refuses mail and search from.
// Adding to a full list evicts nothing and reports false.
func (c *Client) BlacklistAdd(gc uint32) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, slot := range c.blacklist {
		if slot == gc {
			return true
		}
		if slot == 0 {
			c.blacklist[i] = gc
			return true
		}
	}
	return false
}

// HasBlacklisted reports whether the client has blacklisted a guildcard.
func (c *Client) HasBlacklisted(gc uint32) bool {
	if gc == 0 {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, slot := range c.blacklist {
		if slot == gc {
			return true
		}
	}
	return false
}

// Ignore adds a guildcard to the in-session ignore list.
func (c *Client) Ignore(gc uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, g := range c.ignored {
		if g == gc {
			return
		}
	}
	c.ignored = append(c.ignored, gc)
}

// Unignore removes a guildcard from the ignore list.
func (c *Client) Unignore(gc uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, g := range c.ignored {
		if g == gc {
			c.ignored = append(c.ignored[:i], c.ignored[i+1:]...)
			return
		}
	}
}

// IsIgnoring reports whether the client is ignoring a guildcard.
func (c *Client) IsIgnoring(gc uint32) bool {
	if gc == 0 {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, g := range c.ignored {
		if g == gc {
			return true
		}
	}
	return false
}

// Autoreply returns the stored autoreply text, nil when unset.
func (c *Client) Autoreply() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.autoreply
}

// storeAutoreply keeps an owned copy of the autoreply text.
func (c *Client) storeAutoreply(text []byte) {
	owned := make([]byte, len(text))
	copy(owned, text)
	c.mu.Lock()
	c.autoreply = owned
	c.mu.Unlock()
}

// ClearAutoreply drops the stored autoreply.
func (c *Client) ClearAutoreply() {
	c.mu.Lock()
	c.autoreply = nil
	c.mu.Unlock()
}

// Send writes one packet to the client. Packets race from the block loop and
// from room broadcasts, so writes are serialized per client.
func (c *Client) Send(pkt []byte) error {
	if c.Disconnected() {
		return nil
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	n := copy(c.sendBuf, pkt)
	if err := c.conn.WritePacket(c.sendBuf, n); err != nil {
		c.Disconnect()
		return fmt.Errorf("sending to %d: %w", c.Guildcard, err)
	}
	return nil
}

// Close tears down the underlying connection, unblocking the read loop.
func (c *Client) Close() error { return c.conn.Close() }

// Addr returns the peer address as a string.
func (c *Client) Addr() string {
	if c.conn == nil {
		return ""
	}
	return c.conn.RemoteAddr().String()
}
