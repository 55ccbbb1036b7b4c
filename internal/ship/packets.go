package ship

import (
	"encoding/binary"

	"github.com/solvane/solvane/internal/protocol"
)

// Client-facing notification opcodes.
const (
	cmdGameJoin       = 0x64
	cmdLobbyJoin      = 0x67
	cmdLobbyAddPlayer = 0x68
	cmdLobbyLeave     = 0x69
)

// sendChatNotice pushes a server line into the client's chat window.
func (b *Block) sendChatNotice(c *Client, text string) {
	msg := "\tE" + text
	n := protocol.HeaderSize + 8 + len(msg) + 1
	pkt := make([]byte, n)
	protocol.PutHeader(pkt, protocol.Header{Type: CmdChat, Length: uint16(n)}, c.Variant())
	// padding u32, then source guildcard 0 = server
	copy(pkt[protocol.HeaderSize+8:], msg)
	if err := c.Send(pkt); err != nil {
		b.log.Debug("chat notice dropped", "guildcard", c.Guildcard, "err", err)
	}
}

// sendLobbyJoin tells the mover it is now in a default lobby.
func (b *Block) sendLobbyJoin(c *Client, l *Lobby) {
	const n = protocol.HeaderSize + 8
	pkt := make([]byte, n)
	protocol.PutHeader(pkt, protocol.Header{Type: cmdLobbyJoin, Flags: uint8(l.numClients), Length: n}, c.Variant())
	pkt[protocol.HeaderSize] = uint8(c.ClientID)
	pkt[protocol.HeaderSize+1] = uint8(l.leaderID)
	pkt[protocol.HeaderSize+2] = uint8(l.ID)
	pkt[protocol.HeaderSize+3] = uint8(b.ID)
	binary.LittleEndian.PutUint16(pkt[protocol.HeaderSize+4:], uint16(l.Event))
	if err := c.Send(pkt); err != nil {
		b.log.Debug("lobby join dropped", "guildcard", c.Guildcard, "err", err)
	}
}

// sendGameJoin tells the mover it is now in a game, carrying the parameters
// it needs to generate the same maps as everyone else.
func (b *Block) sendGameJoin(c *Client, l *Lobby) {
	const n = protocol.HeaderSize + 12 + 32*4
	pkt := make([]byte, n)
	protocol.PutHeader(pkt, protocol.Header{Type: cmdGameJoin, Flags: uint8(l.numClients), Length: n}, c.Variant())
	p := protocol.HeaderSize
	pkt[p] = uint8(c.ClientID)
	pkt[p+1] = uint8(l.leaderID)
	pkt[p+2] = l.Difficulty
	pkt[p+3] = boolByte(l.Battle)
	pkt[p+4] = boolByte(l.Challenge)
	pkt[p+5] = l.Section
	pkt[p+6] = l.Event
	pkt[p+7] = l.Episode
	binary.LittleEndian.PutUint32(pkt[p+8:], l.RandSeed)
	p += 12
	for i, m := range l.Maps {
		binary.LittleEndian.PutUint32(pkt[p+i*4:], m)
	}
	if err := c.Send(pkt); err != nil {
		b.log.Debug("game join dropped", "guildcard", c.Guildcard, "err", err)
	}
}

// sendLobbyAddPlayer announces an arrival to a room the caller does not
// hold locked.
func (b *Block) sendLobbyAddPlayer(l *Lobby, c *Client) {
	l.mu.Lock()
	l.sendAddPlayerLocked(c)
	l.mu.Unlock()
}

// sendAddPlayerLocked tells the other members a client arrived.
func (l *Lobby) sendAddPlayerLocked(src *Client) {
	const n = protocol.HeaderSize + 8
	for _, c := range l.clients {
		if c == nil || c == src {
			continue
		}
		pkt := make([]byte, n)
		protocol.PutHeader(pkt, protocol.Header{Type: cmdLobbyAddPlayer, Flags: 1, Length: n}, c.Variant())
		pkt[protocol.HeaderSize] = uint8(src.ClientID)
		pkt[protocol.HeaderSize+1] = uint8(l.leaderID)
		binary.LittleEndian.PutUint32(pkt[protocol.HeaderSize+4:], src.Guildcard)
		_ = c.Send(pkt)
	}
}

// sendLeaveLocked tells the remaining members a client left and who leads
// now.
func (l *Lobby) sendLeaveLocked(src *Client, oldID int) {
	const n = protocol.HeaderSize + 4
	for _, c := range l.clients {
		if c == nil || c == src {
			continue
		}
		pkt := make([]byte, n)
		protocol.PutHeader(pkt, protocol.Header{Type: cmdLobbyLeave, Flags: uint8(oldID), Length: n}, c.Variant())
		pkt[protocol.HeaderSize] = uint8(oldID)
		pkt[protocol.HeaderSize+1] = uint8(l.leaderID)
		_ = c.Send(pkt)
	}
}

func boolByte(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
