package ship

import (
	"log/slog"
	"sync"
)

// firstGameID is the first room id games may use; lower ids belong to the
// block's permanent lobbies.
const firstGameID = 0x12

// Block is one client-handling unit of a ship. Each block runs its own
// accept/read loop; the room set is partitioned by block, so cross-block
// traffic goes through the shipgate.
type Block struct {
	ID   int
	ship *Ship
	log  *slog.Logger

	mu      sync.Mutex
	lobbies []*Lobby
	clients map[*Client]struct{}
}

// NewBlock creates a block with its permanent lobbies.
func NewBlock(s *Ship, id int, lobbies int, event uint8, log *slog.Logger) *Block {
	b := &Block{
		ID:      id,
		ship:    s,
		log:     log.With("block", id),
		clients: make(map[*Client]struct{}),
	}
	for i := 1; i <= lobbies; i++ {
		b.lobbies = append(b.lobbies, NewDefaultLobby(b, uint32(i), event))
	}
	return b
}

// Ship returns the owning ship.
func (b *Block) Ship() *Ship { return b.ship }

// GetLobby returns the room with the given id, nil when it does not exist.
func (b *Block) GetLobby(id uint32) *Lobby {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, l := range b.lobbies {
		if l.ID == id {
			return l
		}
	}
	return nil
}

// Lobbies returns a snapshot of the block's room list.
func (b *Block) Lobbies() []*Lobby {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*Lobby, len(b.lobbies))
	copy(out, b.lobbies)
	return out
}

func (b *Block) addLobby(l *Lobby) {
	b.mu.Lock()
	b.lobbies = append(b.lobbies, l)
	b.mu.Unlock()
}

func (b *Block) removeLobby(l *Lobby) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, x := range b.lobbies {
		if x == l {
			b.lobbies = append(b.lobbies[:i], b.lobbies[i+1:]...)
			return
		}
	}
}

// nextGameID picks the first unused room id at or above firstGameID.
func (b *Block) nextGameID() uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := uint32(firstGameID)
	for {
		taken := false
		for _, l := range b.lobbies {
			if l.ID == id {
				taken = true
				break
			}
		}
		if !taken {
			return id
		}
		id++
	}
}

// AddClient registers a session with the block.
func (b *Block) AddClient(c *Client) {
	b.mu.Lock()
	b.clients[c] = struct{}{}
	b.mu.Unlock()
	b.ship.IncClients()
}

// RemoveClient drops a session from the block and pulls it out of its room.
func (b *Block) RemoveClient(c *Client) {
	b.mu.Lock()
	_, present := b.clients[c]
	delete(b.clients, c)
	b.mu.Unlock()

	if present {
		RemovePlayer(c)
		b.ship.DecClients()
	}
}

// NumClients returns how many sessions the block currently holds.
func (b *Block) NumClients() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// ForEachClient runs fn over the block's sessions.
func (b *Block) ForEachClient(fn func(c *Client)) {
	b.mu.Lock()
	snapshot := make([]*Client, 0, len(b.clients))
	for c := range b.clients {
		snapshot = append(snapshot, c)
	}
	b.mu.Unlock()

	for _, c := range snapshot {
		fn(c)
	}
}

// FindClient returns the block session logged in with a guildcard.
func (b *Block) FindClient(gc uint32) *Client {
	b.mu.Lock()
	defer b.mu.Unlock()
	for c := range b.clients {
		if c.Guildcard == gc && !c.Disconnected() {
			return c
		}
	}
	return nil
}

// Harvest disconnect-marked sessions: collect under the lock, then tear
// down outside it (safe-remove pattern). Closing the connection unblocks a
// session whose read loop is parked waiting for a packet that will never
// come.
func (b *Block) Harvest() []*Client {
	b.mu.Lock()
	var dead []*Client
	for c := range b.clients {
		if c.Disconnected() {
			dead = append(dead, c)
		}
	}
	b.mu.Unlock()

	for _, c := range dead {
		b.RemoveClient(c)
		c.Close()
	}
	return dead
}
