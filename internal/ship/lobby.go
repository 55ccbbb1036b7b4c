package ship

import (
	"errors"
	"fmt"
	mathrand "math/rand/v2"
	"sync"
	"time"

	"github.com/solvane/solvane/internal/protocol"
)

// Room capacities.
const (
	LobbyMaxClients = 12
	GameMaxClients  = 4
)

// Room types.
const (
	LobbyTypeDefault = 0x00000001
	LobbyTypeGame    = 0x00000002
)

// Room flags. Not mutually exclusive.
const (
	LobbyFlagBursting    = 0x00000001
	LobbyFlagQuesting    = 0x00000002
	LobbyFlagQuestSel    = 0x00000004
	LobbyFlagTempUnavail = 0x00000008
	LobbyFlagLegitMode   = 0x00000010
	LobbyFlagLegitCheck  = 0x00000020
)

// requiredLevel is the minimum character level per difficulty
// (Normal, Hard, Very Hard, Ultimate).
var requiredLevel = [4]uint32{1, 20, 40, 80}

// Admission errors returned by ChangeLobby, reported to the user via chat.
var (
	ErrLobbyFull     = errors.New("ship: lobby is full")
	ErrUnavailable   = errors.New("ship: lobby is temporarily unavailable")
	ErrBusyBurst     = errors.New("ship: a player is bursting into the lobby")
	ErrQuestActive   = errors.New("ship: a quest is in progress")
	ErrQuestSel      = errors.New("ship: a quest is being selected")
	ErrLevelTooLow   = errors.New("ship: character level too low")
	ErrLevelTooHigh  = errors.New("ship: character level too high")
	ErrVersionGate   = errors.New("ship: client version cannot join this game")
	ErrLegitFail     = errors.New("ship: inventory failed the legit check")
	ErrLobbyCorrupt  = errors.New("ship: lobby membership inconsistent")
	ErrBurstQueue    = errors.New("ship: unexpected packet type during burst")
	ErrNotInLobby    = errors.New("ship: client is not in a lobby")
)

// queuedPkt is one in-room subcommand held back while a player bursts.
type queuedPkt struct {
	src *Client
	op  uint8
	pkt []byte // owned copy
}

// Lobby is a room: a default lobby or a game. All mutable state is guarded
// by mu; methods suffixed Locked expect it held. Operations spanning two
// rooms lock the lower room id first.
type Lobby struct {
	mu sync.Mutex

	ID    uint32
	Type  uint32
	flags uint32

	maxClients int
	numClients int
	leaderID   int

	block *Block

	Difficulty uint8
	Battle     bool
	Challenge  bool
	V2         bool
	Section    uint8
	Event      uint8
	Episode    uint8

	maxChal          uint8
	legitCheckPassed int
	legitCheckDone   int

	Variant  protocol.Variant // base variant of a game
	MinLevel uint32
	MaxLevel uint32
	RandSeed uint32

	Name   string
	Passwd string
	Maps   [32]uint32

	clients []*Client

	queue     []queuedPkt
	createdAt time.Time
}

// mapVariantCounts drives the random map-variant roll per episode.
var mapVariantCounts = [2][32]uint32{
	{1, 1, 1, 5, 1, 5, 3, 2, 3, 2, 3, 2, 3, 2, 3, 2, 3, 2, 3, 2, 3, 2, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1},
	{1, 1, 2, 1, 2, 1, 2, 1, 2, 1, 1, 3, 1, 3, 1, 3, 2, 2, 1, 3, 2, 2, 2, 2, 1, 1, 1, 1, 1, 1, 1, 1},
}

// NewDefaultLobby creates one of a block's permanent lobbies.
func NewDefaultLobby(b *Block, id uint32, event uint8) *Lobby {
	return &Lobby{
		ID:         id,
		Type:       LobbyTypeDefault,
		maxClients: LobbyMaxClients,
		block:      b,
		MinLevel:   0,
		MaxLevel:   9001,
		Event:      event,
		Name:       fmt.Sprintf("BLOCK%02d-%02d", b.ID, id),
		clients:    make([]*Client, LobbyMaxClients),
		createdAt:  time.Now(),
	}
}

// GameParams carries the creation request for a game room.
type GameParams struct {
	Name       string
	Passwd     string
	Difficulty uint8
	Battle     bool
	Challenge  bool
	V2         bool
	Variant    protocol.Variant
	Section    uint8
	Event      uint8
	Episode    uint8
}

// NewGame creates a game room, registers it on the block and bumps the
// ship's game counter.
func NewGame(b *Block, p GameParams) *Lobby {
	episode := p.Episode
	if p.Variant < protocol.VariantGC {
		episode = 1
	}

	variant := p.Variant
	if variant == protocol.VariantDCv2 && !p.V2 {
		variant = protocol.VariantDCv1
	}

	l := &Lobby{
		ID:         b.nextGameID(),
		Type:       LobbyTypeGame,
		maxClients: GameMaxClients,
		leaderID:   1,
		block:      b,
		Difficulty: p.Difficulty,
		Battle:     p.Battle,
		Challenge:  p.Challenge,
		V2:         p.V2,
		Variant:    variant,
		Section:    p.Section,
		Event:      p.Event,
		Episode:    episode,
		maxChal:    0xFF,
		MinLevel:   requiredLevel[p.Difficulty&3],
		MaxLevel:   9001,
		RandSeed:   mathrand.Uint32(),
		Name:       p.Name,
		Passwd:     p.Passwd,
		clients:    make([]*Client, GameMaxClients),
		createdAt:  time.Now(),
	}

	if episode == 0 {
		episode = 1
	}
	for i := range 32 {
		if n := mapVariantCounts[episode-1][i]; n != 1 {
			l.Maps[i] = mathrand.Uint32() % n
		}
	}

	b.addLobby(l)
	b.ship.IncGames()
	return l
}

// Flags returns the current flag set.
func (l *Lobby) Flags() uint32 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.flags
}

// SetFlag sets room flags.
func (l *Lobby) SetFlag(flag uint32) {
	l.mu.Lock()
	l.flags |= flag
	l.mu.Unlock()
}

// ClearFlag clears room flags.
func (l *Lobby) ClearFlag(flag uint32) {
	l.mu.Lock()
	l.flags &^= flag
	l.mu.Unlock()
}

// NumClients returns the current occupancy.
func (l *Lobby) NumClients() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.numClients
}

// LeaderID returns the current leader slot.
func (l *Lobby) LeaderID() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.leaderID
}

// MaxChallenge returns the highest challenge stage the room can start.
func (l *Lobby) MaxChallenge() uint8 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.maxChal
}

// challengeLevel computes a member's first unfinished challenge stage + 1.
func challengeLevel(c *Client) uint8 {
	var lev uint8
	c.WithPlayer(func(p *Player) {
		i := 0
		for i < len(p.ChallengeTimes) && p.ChallengeTimes[i] != 0 {
			i++
		}
		lev = uint8(i) + 1
	})
	return lev
}

// findMaxChallengeLocked recomputes maxChal across current members.
func (l *Lobby) findMaxChallengeLocked() uint8 {
	if !l.Challenge {
		return 0
	}

	minLev := uint8(0xFF)
	for _, c := range l.clients {
		if c == nil {
			continue
		}
		if lev := challengeLevel(c); lev < minLev {
			minLev = lev
		}
	}
	if minLev == 0xFF {
		return 0
	}
	return minLev
}

// addClientLocked seats a client. Slots 1..max-1 fill first; slot 0 is
// reserved last because its colour marks the leader in the lobby UI.
func (l *Lobby) addClientLocked(c *Client) error {
	if l.numClients >= l.maxClients {
		return ErrLobbyFull
	}

	var clev uint8
	if l.Challenge {
		clev = challengeLevel(c)
	}

	seat := -1
	for i := 1; i < l.maxClients; i++ {
		if l.clients[i] == nil {
			seat = i
			break
		}
	}
	if seat == -1 {
		if l.clients[0] != nil {
			return ErrLobbyCorrupt
		}
		seat = 0
	}

	l.clients[seat] = c
	c.curLobby = l
	c.ClientID = seat
	c.arrow = 0
	c.joinTime = time.Now()
	l.numClients++

	// A member at a lower challenge level drags the whole room down.
	if l.Challenge && l.maxChal > clev {
		l.maxChal = clev
	}
	return nil
}

// electLeaderLocked picks the member with the earliest join time, skipping
// the departing leader's slot. Returns -1 when nobody remains.
func (l *Lobby) electLeaderLocked() int {
	earliestIdx := -1
	var earliest time.Time

	for i, c := range l.clients {
		if i == l.leaderID || c == nil {
			continue
		}
		if earliestIdx == -1 || c.joinTime.Before(earliest) {
			earliestIdx = i
			earliest = c.joinTime
		}
	}
	return earliestIdx
}

// removeClientLocked unseats a client. The bool result reports whether the
// room should be destroyed (games only, at zero occupancy).
func (l *Lobby) removeClientLocked(c *Client, clientID int) (destroy bool, err error) {
	if clientID < 0 || clientID >= l.maxClients || l.clients[clientID] != c {
		return false, ErrLobbyCorrupt
	}

	if clientID == l.leaderID {
		if newLeader := l.electLeaderLocked(); newLeader == -1 {
			l.leaderID = 0
		} else {
			l.leaderID = newLeader
		}
	}

	l.clients[clientID] = nil
	l.numClients--

	if l.Challenge {
		l.maxChal = l.findMaxChallengeLocked()
	}

	if c.curLobby == l {
		c.curLobby = nil
		c.ClientID = 0
	}

	return l.Type == LobbyTypeGame && l.numClients == 0, nil
}

// admitLocked runs the admission gates in order.
func (l *Lobby) admitLocked(c *Client) error {
	if l.flags&LobbyFlagTempUnavail != 0 {
		return ErrUnavailable
	}
	if l.flags&LobbyFlagBursting != 0 {
		return ErrBusyBurst
	}
	if l.flags&LobbyFlagQuesting != 0 {
		return ErrQuestActive
	}
	if l.flags&LobbyFlagQuestSel != 0 {
		return ErrQuestSel
	}

	level := c.Level() + 1
	if l.MinLevel > level {
		return ErrLevelTooLow
	}
	if l.MaxLevel < level {
		return ErrLevelTooHigh
	}

	if c.Variant() == protocol.VariantDCv1 && l.V2 {
		return ErrVersionGate
	}

	if l.Type == LobbyTypeGame && l.flags&LobbyFlagLegitMode != 0 &&
		!l.checkClientLegitLocked(c) {
		return ErrLegitFail
	}

	return nil
}

// checkClientLegitLocked validates a client's inventory against the ship's
// item limits for the client's item version.
func (l *Lobby) checkClientLegitLocked(c *Client) bool {
	limits := l.block.ship.Limits()
	if limits == nil || l.flags&(LobbyFlagLegitMode|LobbyFlagLegitCheck) == 0 {
		return true
	}

	version := itemVersion(c.Variant())
	ok := true
	c.WithPlayer(func(p *Player) {
		for _, item := range p.Inventory {
			if !limits.CheckItem(item, version) {
				ok = false
				return
			}
		}
	})
	return ok
}

// StartLegitCheck begins a leader-commanded legit check: the room becomes
// temporarily unavailable while members are validated.
func (l *Lobby) StartLegitCheck() {
	l.mu.Lock()
	l.flags |= LobbyFlagLegitCheck | LobbyFlagTempUnavail
	l.legitCheckPassed = 0
	l.legitCheckDone = 0
	l.mu.Unlock()
}

// ReportLegitResult records one member's validation verdict. When every
// member has reported, the check finishes: all-passed flips the room into
// legit mode with a chat notice to everyone, otherwise the leader is told.
func (l *Lobby) ReportLegitResult(passed bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.flags&LobbyFlagLegitCheck == 0 {
		return
	}

	l.legitCheckDone++
	if passed {
		l.legitCheckPassed++
	}
	if l.legitCheckDone < l.numClients {
		return
	}
	l.finishLegitCheckLocked()
}

func (l *Lobby) finishLegitCheckLocked() {
	if l.legitCheckPassed == l.numClients {
		l.flags |= LobbyFlagLegitMode
		for _, c := range l.clients {
			if c != nil {
				l.block.sendChatNotice(c, "Legit mode active.")
			}
		}
	} else if leader := l.clients[l.leaderID]; leader != nil {
		l.block.sendChatNotice(leader, "Team legit check failed!")
	}

	l.flags &^= LobbyFlagLegitCheck | LobbyFlagTempUnavail
}

// EnqueuePkt holds back an in-room subcommand while a player bursts. Only
// the three game-command opcodes may be queued; the copy is owned by the
// queue.
func (l *Lobby) EnqueuePkt(src *Client, pkt []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.flags&LobbyFlagBursting == 0 {
		return ErrBurstQueue
	}
	h, err := protocol.ParseHeader(pkt, src.Variant())
	if err != nil {
		return err
	}
	return l.enqueueLocked(src, h.Type, pkt)
}

// HandleDoneBurst clears the burst flag and drains the packet queue in
// arrival order through the normal dispatchers. A dispatch failure stops
// dispatching but the queue is freed in full either way.
func (l *Lobby) HandleDoneBurst() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.flags &^= LobbyFlagBursting

	var firstErr error
	for _, q := range l.queue {
		if firstErr != nil {
			continue
		}
		switch q.op {
		case CmdGameBcast:
			firstErr = l.dispatchBcastLocked(q.src, q.pkt)
		case CmdGameOne, CmdGameDOne:
			firstErr = l.dispatchOneLocked(q.src, q.pkt)
		default:
			firstErr = ErrBurstQueue
		}
	}
	l.queue = nil
	return firstErr
}

// QueueLen returns the number of packets currently held back.
func (l *Lobby) QueueLen() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// destroyLocked tears the room down: drains the queue, unregisters it from
// the block and decrements the ship's game counter. The mutex is unlocked
// exactly once on the way out.
func (l *Lobby) destroyLocked(remove bool) {
	l.queue = nil

	if remove {
		l.block.removeLobby(l)
		if l.Type == LobbyTypeGame {
			l.block.ship.DecGames()
		}
	}

	l.mu.Unlock()
}

// Destroy tears the room down from an unlocked context.
func (l *Lobby) Destroy() {
	l.mu.Lock()
	l.destroyLocked(true)
}

// ForEachClient runs fn over current members under the room lock.
func (l *Lobby) ForEachClient(fn func(slot int, c *Client)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, c := range l.clients {
		if c != nil {
			fn(i, c)
		}
	}
}

// ClientBySlot returns the member seated in a slot, nil when empty.
func (l *Lobby) ClientBySlot(slot int) *Client {
	l.mu.Lock()
	defer l.mu.Unlock()
	if slot < 0 || slot >= l.maxClients {
		return nil
	}
	return l.clients[slot]
}
