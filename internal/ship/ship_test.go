package ship

import (
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solvane/solvane/internal/config"
	"github.com/solvane/solvane/internal/gate"
	"github.com/solvane/solvane/internal/protocol"
)

func statusOnline(id uint32, name string) gate.ShipStatus {
	return gate.ShipStatus{Name: name, ShipID: id, ShipPort: 12000, Online: true}
}

func countFor(id uint32, clients, games uint16) gate.Count {
	return gate.Count{ShipID: id, Clients: clients, Games: games}
}

func testShip(t *testing.T) *Ship {
	t.Helper()
	cfg := config.DefaultShipServer()
	cfg.Blocks = 1
	cfg.LobbiesPerBlock = 3
	return New(cfg, 0, nil, slog.New(slog.DiscardHandler))
}

// newTestClient builds a client over a pipe. The peer side is drained into a
// byte counter so sends never block and delivery can be observed.
func newTestClient(t *testing.T, b *Block, v protocol.Variant, gc uint32) (*Client, *atomic.Int64) {
	t.Helper()

	srv, cli := net.Pipe()
	t.Cleanup(func() {
		srv.Close()
		cli.Close()
	})

	var counter atomic.Int64
	go func() {
		buf := make([]byte, 4096)
		for {
			n, err := cli.Read(buf)
			counter.Add(int64(n))
			if err != nil {
				return
			}
		}
	}()

	conn := protocol.NewConn(srv, v)
	require.NoError(t, conn.SendWelcome())

	// Exclude the welcome handshake bytes so the counter observes only
	// packet delivery.
	require.Eventually(t, func() bool { return counter.Load() > 0 }, time.Second, time.Millisecond)
	counter.Store(0)

	c := NewClient(conn, b)
	c.Guildcard = gc
	return c, &counter
}

func gamePkt(v protocol.Variant, op, flags uint8, size int) []byte {
	pkt := make([]byte, size)
	protocol.PutHeader(pkt, protocol.Header{Type: op, Flags: flags, Length: uint16(size)}, v)
	return pkt
}

func TestAddToAny_SlotAssignment(t *testing.T) {
	s := testShip(t)
	b := s.Blocks()[0]

	var clients []*Client
	for i := 0; i < LobbyMaxClients; i++ {
		c, _ := newTestClient(t, b, protocol.VariantGC, uint32(1000+i))
		require.NoError(t, AddToAny(c))
		clients = append(clients, c)
	}

	l := b.GetLobby(1)
	require.Equal(t, LobbyMaxClients, l.NumClients())

	// Slots 1..11 fill first; slot 0 goes to the last arrival.
	for i := 0; i < LobbyMaxClients-1; i++ {
		assert.Equal(t, i+1, clients[i].ClientID)
	}
	assert.Equal(t, 0, clients[LobbyMaxClients-1].ClientID)

	// The full lobby spills the next arrival into lobby 2.
	c, _ := newTestClient(t, b, protocol.VariantGC, 2000)
	require.NoError(t, AddToAny(c))
	assert.Equal(t, b.GetLobby(2), c.Lobby())
}

func TestAddToAny_DCv1SkipsHighLobbies(t *testing.T) {
	s := testShip(t)
	cfg := s.Config()
	cfg.LobbiesPerBlock = 15
	s = New(cfg, 0, nil, slog.New(slog.DiscardHandler))
	b := s.Blocks()[0]

	// Fill lobbies 1..10 completely.
	for id := uint32(1); id <= 10; id++ {
		l := b.GetLobby(id)
		for i := 0; i < LobbyMaxClients; i++ {
			c, _ := newTestClient(t, b, protocol.VariantGC, uint32(id*100+uint32(i)))
			require.NoError(t, AddToAny(c))
			require.Equal(t, l, c.Lobby())
		}
	}

	c, _ := newTestClient(t, b, protocol.VariantDCv1, 9999)
	assert.ErrorIs(t, AddToAny(c), ErrLobbyFull)

	c2, _ := newTestClient(t, b, protocol.VariantGC, 9998)
	require.NoError(t, AddToAny(c2))
	assert.Equal(t, b.GetLobby(11), c2.Lobby())
}

func TestLeaderElection(t *testing.T) {
	s := testShip(t)
	b := s.Blocks()[0]

	game := NewGame(b, GameParams{Name: "Alpha", Variant: protocol.VariantDCv2, V2: true})

	var members []*Client
	for i := 0; i < 3; i++ {
		c, _ := newTestClient(t, b, protocol.VariantDCv2, uint32(1+i))
		game.mu.Lock()
		require.NoError(t, game.addClientLocked(c))
		game.mu.Unlock()
		members = append(members, c)
		time.Sleep(2 * time.Millisecond)
	}

	// First arrival took slot 1, the pre-set leader slot.
	require.Equal(t, 1, members[0].ClientID)
	require.Equal(t, 1, game.LeaderID())

	// When the leader leaves, the earliest remaining member takes over.
	require.NoError(t, RemovePlayer(members[0]))
	assert.Equal(t, members[1].ClientID, game.LeaderID())

	require.NoError(t, RemovePlayer(members[1]))
	assert.Equal(t, members[2].ClientID, game.LeaderID())
}

func TestAdmissionGates(t *testing.T) {
	tests := []struct {
		name    string
		v1      bool
		level   uint32
		setup   func(l *Lobby)
		wantErr error
	}{
		{
			name:    "temporarily unavailable",
			setup:   func(l *Lobby) { l.SetFlag(LobbyFlagTempUnavail) },
			wantErr: ErrUnavailable,
		},
		{
			name:    "unavailable outranks burst",
			setup:   func(l *Lobby) { l.SetFlag(LobbyFlagTempUnavail | LobbyFlagBursting) },
			wantErr: ErrUnavailable,
		},
		{
			name:    "bursting",
			setup:   func(l *Lobby) { l.SetFlag(LobbyFlagBursting) },
			wantErr: ErrBusyBurst,
		},
		{
			name:    "quest in progress",
			setup:   func(l *Lobby) { l.SetFlag(LobbyFlagQuesting) },
			wantErr: ErrQuestActive,
		},
		{
			name:    "quest selection",
			setup:   func(l *Lobby) { l.SetFlag(LobbyFlagQuestSel) },
			wantErr: ErrQuestSel,
		},
		{
			name:    "level below hard requirement",
			level:   18,
			wantErr: ErrLevelTooLow,
		},
		{
			name:  "level exactly at requirement",
			level: 19,
		},
		{
			name:    "v1 client into v2 game",
			v1:      true,
			level:   50,
			wantErr: ErrVersionGate,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := testShip(t)
			b := s.Blocks()[0]
			game := NewGame(b, GameParams{
				Name:       "Gated",
				Difficulty: 1, // Hard: level 20 required
				Variant:    protocol.VariantDCv2,
				V2:         true,
			})
			if tt.setup != nil {
				tt.setup(game)
			}

			variant := protocol.VariantDCv2
			if tt.v1 {
				variant = protocol.VariantDCv1
			}
			c, _ := newTestClient(t, b, variant, 42)
			require.NoError(t, AddToAny(c))
			c.SetPlayer(&Player{Name: "Tester", Level: tt.level})

			err := ChangeLobby(c, game)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, b.GetLobby(1), c.Lobby(), "refused client stays put")
			} else {
				require.NoError(t, err)
				assert.Equal(t, game, c.Lobby())
				assert.True(t, c.HasFlag(ClientFlagBursting))
				assert.NotZero(t, game.Flags()&LobbyFlagBursting)
			}
		})
	}
}

func TestAdmission_GameFull(t *testing.T) {
	s := testShip(t)
	b := s.Blocks()[0]
	game := NewGame(b, GameParams{Name: "Full", Variant: protocol.VariantDCv2, V2: true})

	for i := 0; i < GameMaxClients; i++ {
		c, _ := newTestClient(t, b, protocol.VariantDCv2, uint32(10+i))
		game.mu.Lock()
		require.NoError(t, game.addClientLocked(c))
		game.mu.Unlock()
	}

	c, _ := newTestClient(t, b, protocol.VariantDCv2, 99)
	require.NoError(t, AddToAny(c))
	assert.ErrorIs(t, ChangeLobby(c, game), ErrLobbyFull)
}

func TestAdmission_LegitMode(t *testing.T) {
	s := testShip(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "limits.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"name: test\nbanned:\n  - code: 0x000341\n    versions: [v2]\n"), 0o644))
	limits, err := LoadLimits(path)
	require.NoError(t, err)
	s.SetLimits(limits)

	b := s.Blocks()[0]
	game := NewGame(b, GameParams{Name: "Legit", Variant: protocol.VariantDCv2, V2: true})
	game.SetFlag(LobbyFlagLegitMode)

	bad, _ := newTestClient(t, b, protocol.VariantDCv2, 7)
	require.NoError(t, AddToAny(bad))
	bad.SetPlayer(&Player{Level: 50, Inventory: []Item{{Data: [4]uint32{0x000341}}}})
	assert.ErrorIs(t, ChangeLobby(bad, game), ErrLegitFail)

	// The same inventory is fine on a version the entry does not name.
	good, _ := newTestClient(t, b, protocol.VariantGC, 8)
	require.NoError(t, AddToAny(good))
	good.SetPlayer(&Player{Level: 50, Inventory: []Item{{Data: [4]uint32{0x000341}}}})
	assert.NoError(t, ChangeLobby(good, game))
}

func TestBurstQueue(t *testing.T) {
	s := testShip(t)
	b := s.Blocks()[0]
	game := NewGame(b, GameParams{Name: "Burst", Variant: protocol.VariantDCv2, V2: true})

	a, _ := newTestClient(t, b, protocol.VariantDCv2, 1)
	game.mu.Lock()
	require.NoError(t, game.addClientLocked(a))
	game.mu.Unlock()

	game.SetFlag(LobbyFlagBursting)

	// Game subcommands queue during a burst, in arrival order.
	require.NoError(t, HandleGameCommand(a, gamePkt(a.Variant(), CmdGameBcast, 0, 8)))
	require.NoError(t, HandleGameCommand(a, gamePkt(a.Variant(), CmdGameOne, 0, 8)))
	assert.Equal(t, 2, game.QueueLen())

	// Anything else is rejected outright.
	assert.ErrorIs(t, HandleGameCommand(a, gamePkt(a.Variant(), CmdChat, 0, 8)), ErrBurstQueue)
	assert.Equal(t, 2, game.QueueLen())

	require.NoError(t, game.HandleDoneBurst())
	assert.Zero(t, game.QueueLen())
	assert.Zero(t, game.Flags()&LobbyFlagBursting)
}

func TestBurstQueue_DispatchErrorFreesQueue(t *testing.T) {
	s := testShip(t)
	b := s.Blocks()[0]
	game := NewGame(b, GameParams{Name: "Burst", Variant: protocol.VariantDCv2, V2: true})

	a, _ := newTestClient(t, b, protocol.VariantDCv2, 1)
	game.mu.Lock()
	require.NoError(t, game.addClientLocked(a))
	game.mu.Unlock()

	game.SetFlag(LobbyFlagBursting)

	// Target slot 9 is out of range for a 4-seat game.
	require.NoError(t, HandleGameCommand(a, gamePkt(a.Variant(), CmdGameOne, 9, 8)))
	require.NoError(t, HandleGameCommand(a, gamePkt(a.Variant(), CmdGameBcast, 0, 8)))

	err := game.HandleDoneBurst()
	assert.ErrorIs(t, err, protocol.ErrBadFrame)
	assert.Zero(t, game.QueueLen(), "queue is freed even when dispatch fails")
}

func TestChangeLobby_EmptyGameDestroyed(t *testing.T) {
	s := testShip(t)
	b := s.Blocks()[0]

	c, _ := newTestClient(t, b, protocol.VariantDCv2, 1)
	require.NoError(t, AddToAny(c))

	game := NewGame(b, GameParams{Name: "Doomed", Variant: protocol.VariantDCv2, V2: true})
	gameID := game.ID
	require.GreaterOrEqual(t, gameID, uint32(firstGameID))

	_, games := s.Counts()
	require.Equal(t, uint16(1), games)

	require.NoError(t, ChangeLobby(c, game))
	require.NoError(t, game.HandleDoneBurst())
	c.ClearFlag(ClientFlagBursting)

	// Leaving as the last member tears the game down.
	require.NoError(t, ChangeLobby(c, b.GetLobby(1)))
	assert.Nil(t, b.GetLobby(gameID))

	_, games = s.Counts()
	assert.Zero(t, games)
}

func TestChallengeLevels(t *testing.T) {
	s := testShip(t)
	b := s.Blocks()[0]
	game := NewGame(b, GameParams{
		Name:      "Chal",
		Challenge: true,
		Variant:   protocol.VariantDCv2,
		V2:        true,
	})
	require.Equal(t, uint8(0xFF), game.MaxChallenge())

	// Veteran: stages 1 and 2 cleared, so stage 3 is next.
	vet, _ := newTestClient(t, b, protocol.VariantDCv2, 1)
	vet.SetPlayer(&Player{ChallengeTimes: [9]uint32{120, 95}})
	game.mu.Lock()
	require.NoError(t, game.addClientLocked(vet))
	game.mu.Unlock()
	assert.Equal(t, uint8(3), game.MaxChallenge())

	// A fresh member drags the room down to stage 1.
	fresh, _ := newTestClient(t, b, protocol.VariantDCv2, 2)
	fresh.SetPlayer(&Player{})
	game.mu.Lock()
	require.NoError(t, game.addClientLocked(fresh))
	game.mu.Unlock()
	assert.Equal(t, uint8(1), game.MaxChallenge())

	// And leaving restores the veteran's ceiling.
	require.NoError(t, RemovePlayer(fresh))
	assert.Equal(t, uint8(3), game.MaxChallenge())
}

func TestDispatch_SkipsBlacklistAndIgnore(t *testing.T) {
	s := testShip(t)
	b := s.Blocks()[0]

	src, _ := newTestClient(t, b, protocol.VariantGC, 1)
	hater, hated := newTestClient(t, b, protocol.VariantGC, 2)
	bystander, seen := newTestClient(t, b, protocol.VariantGC, 3)
	require.NoError(t, AddToAny(src))
	require.NoError(t, AddToAny(hater))
	require.NoError(t, AddToAny(bystander))

	require.True(t, hater.BlacklistAdd(src.Guildcard))
	before := hated.Load()

	require.NoError(t, HandleGameCommand(src, gamePkt(src.Variant(), CmdGameBcast, 0, 8)))

	require.Eventually(t, func() bool { return seen.Load() > 0 }, time.Second, 5*time.Millisecond,
		"bystander receives the broadcast")
	assert.Equal(t, before, hated.Load(), "blacklisting recipient is skipped")

	// Game subcommands cross the ignore list; chat does not.
	bystander.Ignore(src.Guildcard)
	mark := seen.Load()
	require.NoError(t, HandleGameCommand(src, gamePkt(src.Variant(), CmdGameBcast, 0, 8)))
	require.Eventually(t, func() bool { return seen.Load() > mark }, time.Second, 5*time.Millisecond)

	mark = seen.Load()
	l := src.Lobby()
	require.NoError(t, l.SendChat(src, gamePkt(src.Variant(), CmdChat, 0, 16)))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, mark, seen.Load(), "chat honours the ignore list")
}

func TestDispatch_TargetedSubcommand(t *testing.T) {
	s := testShip(t)
	b := s.Blocks()[0]

	src, _ := newTestClient(t, b, protocol.VariantGC, 1)
	dst, got := newTestClient(t, b, protocol.VariantGC, 2)
	other, notGot := newTestClient(t, b, protocol.VariantGC, 3)
	require.NoError(t, AddToAny(src))
	require.NoError(t, AddToAny(dst))
	require.NoError(t, AddToAny(other))

	before := notGot.Load()
	pkt := gamePkt(src.Variant(), CmdGameOne, uint8(dst.ClientID), 8)
	require.NoError(t, HandleGameCommand(src, pkt))

	require.Eventually(t, func() bool { return got.Load() > 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, before, notGot.Load())

	// A vanished target is dropped silently.
	empty := gamePkt(src.Variant(), CmdGameOne, 11, 8)
	assert.NoError(t, HandleGameCommand(src, empty))

	// An out-of-range slot is a protocol error.
	bad := gamePkt(src.Variant(), CmdGameOne, 200, 8)
	assert.ErrorIs(t, HandleGameCommand(src, bad), protocol.ErrBadFrame)
}

func TestLegitCheckFlow(t *testing.T) {
	s := testShip(t)
	b := s.Blocks()[0]
	game := NewGame(b, GameParams{Name: "Legit", Variant: protocol.VariantDCv2, V2: true})

	for i := 0; i < 2; i++ {
		c, _ := newTestClient(t, b, protocol.VariantDCv2, uint32(1+i))
		game.mu.Lock()
		require.NoError(t, game.addClientLocked(c))
		game.mu.Unlock()
	}

	game.StartLegitCheck()
	require.NotZero(t, game.Flags()&LobbyFlagLegitCheck)
	require.NotZero(t, game.Flags()&LobbyFlagTempUnavail)

	game.ReportLegitResult(true)
	require.NotZero(t, game.Flags()&LobbyFlagLegitCheck, "check pends until all report")

	game.ReportLegitResult(true)
	flags := game.Flags()
	assert.NotZero(t, flags&LobbyFlagLegitMode)
	assert.Zero(t, flags&(LobbyFlagLegitCheck|LobbyFlagTempUnavail))
}

func TestLegitCheckFlow_Failure(t *testing.T) {
	s := testShip(t)
	b := s.Blocks()[0]
	game := NewGame(b, GameParams{Name: "Legit", Variant: protocol.VariantDCv2, V2: true})

	for i := 0; i < 2; i++ {
		c, _ := newTestClient(t, b, protocol.VariantDCv2, uint32(1+i))
		game.mu.Lock()
		require.NoError(t, game.addClientLocked(c))
		game.mu.Unlock()
	}

	game.StartLegitCheck()
	game.ReportLegitResult(true)
	game.ReportLegitResult(false)

	flags := game.Flags()
	assert.Zero(t, flags&LobbyFlagLegitMode)
	assert.Zero(t, flags&(LobbyFlagLegitCheck|LobbyFlagTempUnavail))
}

func TestLimits_CheckItem(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "limits.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: sample
banned:
  - code: 0x000341
    versions: [v2]
  - code: 0x000800
`), 0o644))

	limits, err := LoadLimits(path)
	require.NoError(t, err)
	assert.Equal(t, "sample", limits.Name)

	v2Only := Item{Data: [4]uint32{0x000341}}
	assert.False(t, limits.CheckItem(v2Only, ItemVersionV2))
	assert.True(t, limits.CheckItem(v2Only, ItemVersionV1))
	assert.True(t, limits.CheckItem(v2Only, ItemVersionGC))

	// High bytes past the item code don't dodge the entry.
	assert.False(t, limits.CheckItem(Item{Data: [4]uint32{0xAB000341}}, ItemVersionV2))

	// No versions named bans everywhere.
	everywhere := Item{Data: [4]uint32{0x000800}}
	assert.False(t, limits.CheckItem(everywhere, ItemVersionV1))
	assert.False(t, limits.CheckItem(everywhere, ItemVersionGC))

	assert.True(t, limits.CheckItem(Item{Data: [4]uint32{0x000104}}, ItemVersionV2))
}

func TestConvertPCMessage(t *testing.T) {
	utf16 := func(s string) []byte {
		out := make([]byte, 0, len(s)*2)
		for _, r := range s {
			out = append(out, byte(r), byte(r>>8))
		}
		return out
	}

	got, err := ConvertPCMessage(utf16("\tEHello"))
	require.NoError(t, err)
	assert.Equal(t, []byte("\tEHello"), got)

	// And back again for a PC recipient.
	back, err := ConvertToPCMessage(got)
	require.NoError(t, err)
	assert.Equal(t, utf16("\tEHello"), back)
}

func TestClient_Autoreply(t *testing.T) {
	s := testShip(t)
	b := s.Blocks()[0]

	c, _ := newTestClient(t, b, protocol.VariantGC, 1)
	require.NoError(t, c.SetAutoreply([]byte("\tEAFK, back soon")))
	assert.Equal(t, []byte("\tEAFK, back soon"), c.Autoreply())

	c.ClearAutoreply()
	assert.Nil(t, c.Autoreply())

	// PC autoreplies arrive as UTF-16LE and are stored transcoded.
	pc, _ := newTestClient(t, b, protocol.VariantPC, 2)
	require.NoError(t, pc.SetAutoreply([]byte{0x09, 0x00, 'E', 0x00, 'H', 0x00, 'i', 0x00}))
	assert.Equal(t, []byte("\tEHi"), pc.Autoreply())
}

func TestClient_BlacklistCapacity(t *testing.T) {
	s := testShip(t)
	b := s.Blocks()[0]
	c, _ := newTestClient(t, b, protocol.VariantGC, 1)

	for i := 0; i < BlacklistSize; i++ {
		require.True(t, c.BlacklistAdd(uint32(100+i)))
	}
	assert.False(t, c.BlacklistAdd(9999), "a full blacklist evicts nothing")
	assert.True(t, c.BlacklistAdd(100), "re-adding an entry is fine")
	assert.True(t, c.HasBlacklisted(129))
	assert.False(t, c.HasBlacklisted(0), "guildcard zero never matches")
}

func TestShip_FleetTable(t *testing.T) {
	s := testShip(t)

	s.UpdateFleet(statusOnline(3, "Vega"))
	s.UpdateFleet(statusOnline(5, "Rigel"))
	require.Len(t, s.Fleet(), 2)

	s.UpdateFleetCounts(countFor(3, 17, 4))
	for _, fs := range s.Fleet() {
		if fs.ShipID == 3 {
			assert.Equal(t, uint16(17), fs.Clients)
			assert.Equal(t, uint16(4), fs.Games)
		}
	}

	// Counts for unknown ships are dropped.
	s.UpdateFleetCounts(countFor(9, 1, 1))
	assert.Len(t, s.Fleet(), 2)

	off := statusOnline(3, "Vega")
	off.Online = false
	s.UpdateFleet(off)
	assert.Len(t, s.Fleet(), 1)
}

func TestHarvest_ClosesMarkedSessions(t *testing.T) {
	s := testShip(t)
	b := s.Blocks()[0]

	alive, _ := newTestClient(t, b, protocol.VariantGC, 100)
	dead, _ := newTestClient(t, b, protocol.VariantGC, 200)
	b.AddClient(alive)
	b.AddClient(dead)
	require.NoError(t, AddToAny(dead))

	dead.Disconnect()
	got := b.Harvest()

	require.Len(t, got, 1)
	assert.Same(t, dead, got[0])
	assert.Equal(t, 1, b.NumClients())
	assert.Nil(t, dead.Lobby(), "harvest pulls the session out of its room")
	assert.False(t, alive.Disconnected())

	// The close unblocks a read parked on the dead connection.
	buf := make([]byte, protocol.MaxPacketSize)
	_, err := dead.conn.ReadPacket(buf)
	assert.Error(t, err)
}

func TestDispatch_DoneBurstOnlyFromBurstingClient(t *testing.T) {
	s := testShip(t)
	b := s.Blocks()[0]
	game := NewGame(b, GameParams{Name: "Burst", Variant: protocol.VariantDCv2, V2: true})

	burster, _ := newTestClient(t, b, protocol.VariantDCv2, 1)
	other, _ := newTestClient(t, b, protocol.VariantDCv2, 2)
	game.mu.Lock()
	require.NoError(t, game.addClientLocked(burster))
	require.NoError(t, game.addClientLocked(other))
	game.mu.Unlock()

	game.SetFlag(LobbyFlagBursting)
	burster.SetFlag(ClientFlagBursting)
	require.NoError(t, HandleGameCommand(burster, gamePkt(burster.Variant(), CmdGameBcast, 0, 8)))

	srv := NewServer(s, slog.New(slog.DiscardHandler))

	// Another member's done-burst neither clears the flag nor drains.
	require.NoError(t, srv.dispatch(other, gamePkt(other.Variant(), CmdDoneBurst, 0, protocol.HeaderSize)))
	assert.Equal(t, 1, game.QueueLen())
	assert.NotZero(t, game.Flags()&LobbyFlagBursting)

	// The bursting client's does.
	require.NoError(t, srv.dispatch(burster, gamePkt(burster.Variant(), CmdDoneBurst, 0, protocol.HeaderSize)))
	assert.Zero(t, game.QueueLen())
	assert.Zero(t, game.Flags()&LobbyFlagBursting)
	assert.False(t, burster.HasFlag(ClientFlagBursting))
}
