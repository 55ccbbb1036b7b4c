package ship

import (
	"github.com/solvane/solvane/internal/protocol"
)

// In-room packet opcodes.
const (
	CmdGameBcast     = 0x60 // subcommand broadcast to the whole room
	CmdGameOne       = 0x62 // subcommand to one client id
	CmdGameDOne      = 0x6D // extended subcommand to one client id
	CmdDoneBurst     = 0x6F // bursting client finished loading
	CmdChat          = 0x06
	CmdGuildSearch   = 0x40
	CmdGuildReply    = 0x41
	CmdSimpleMail    = 0x81
	CmdSetBlacklist  = 0xC6
	CmdSetAutoreply  = 0xC7
	CmdClearAutoreply = 0xC8
)

// HandleGameCommand routes an in-room subcommand packet. While the room is
// bursting, the three game-command opcodes are queued instead of dispatched
// and anything else is rejected.
func HandleGameCommand(src *Client, pkt []byte) error {
	l := src.curLobby
	if l == nil {
		return ErrNotInLobby
	}
	h, err := protocol.ParseHeader(pkt, src.Variant())
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.flags&LobbyFlagBursting != 0 {
		return l.enqueueLocked(src, h.Type, pkt)
	}

	switch h.Type {
	case CmdGameBcast:
		return l.dispatchBcastLocked(src, pkt)
	case CmdGameOne, CmdGameDOne:
		return l.dispatchOneLocked(src, pkt)
	default:
		return protocol.ErrBadFrame
	}
}

// enqueueLocked is EnqueuePkt with the room lock already held.
func (l *Lobby) enqueueLocked(src *Client, op uint8, pkt []byte) error {
	switch op {
	case CmdGameBcast, CmdGameOne, CmdGameDOne:
	default:
		return ErrBurstQueue
	}

	owned := make([]byte, len(pkt))
	copy(owned, pkt)
	l.queue = append(l.queue, queuedPkt{src: src, op: op, pkt: owned})
	return nil
}

// dispatchBcastLocked relays a subcommand to every other member. Game
// subcommands do not honour the ignore list; chat does (igcheck).
func (l *Lobby) dispatchBcastLocked(src *Client, pkt []byte) error {
	return l.sendToAllLocked(src, pkt, false)
}

// dispatchOneLocked relays a targeted subcommand to the client id named in
// the header flags byte. A vanished target is not an error.
func (l *Lobby) dispatchOneLocked(src *Client, pkt []byte) error {
	h, err := protocol.ParseHeader(pkt, src.Variant())
	if err != nil {
		return err
	}

	target := int(h.Flags)
	if target < 0 || target >= l.maxClients {
		return protocol.ErrBadFrame
	}
	dst := l.clients[target]
	if dst == nil || dst == src {
		return nil
	}
	return sendRehdr(dst, h, pkt)
}

// sendToAllLocked delivers pkt to every member except the source, skipping
// recipients that blacklisted the sender and, when igcheck is set, those
// ignoring the sender.
func (l *Lobby) sendToAllLocked(src *Client, pkt []byte, igcheck bool) error {
	srcGC := src.Guildcard
	h, err := protocol.ParseHeader(pkt, src.Variant())
	if err != nil {
		return err
	}

	for _, c := range l.clients {
		if c == nil || c == src {
			continue
		}
		if c.HasBlacklisted(srcGC) {
			continue
		}
		if igcheck && c.IsIgnoring(srcGC) {
			continue
		}
		// Delivery failures mark the recipient disconnected; they don't
		// abort the broadcast.
		_ = sendRehdr(c, h, pkt)
	}
	return nil
}

// sendRehdr sends pkt to dst with the 4-byte header re-encoded for the
// recipient's variant; the body crosses variants unchanged.
func sendRehdr(dst *Client, h protocol.Header, pkt []byte) error {
	out := make([]byte, len(pkt))
	copy(out, pkt)
	protocol.PutHeader(out, h, dst.Variant())
	return dst.Send(out)
}

// SendChat relays a chat line to the room, honouring ignore lists.
func (l *Lobby) SendChat(src *Client, pkt []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sendToAllLocked(src, pkt, true)
}
