package ship

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/solvane/solvane/internal/config"
	"github.com/solvane/solvane/internal/gate"
	"github.com/solvane/solvane/internal/script"
)

// Ship owns the blocks of one ship server and the counters the shipgate
// cares about.
type Ship struct {
	cfg  config.ShipServer
	log  *slog.Logger
	hook script.Hook

	blocks []*Block

	clients atomic.Int32
	games   atomic.Int32

	limits atomic.Pointer[Limits]

	// gatelink is set once the shipgate session is up; count changes are
	// pushed to it.
	gateMu   sync.Mutex
	gatelink *GateLink

	// fleet mirrors the shipgate's view of the other ships, keyed by ship id.
	fleetMu sync.Mutex
	fleet   map[uint32]FleetShip
}

// FleetShip is one entry of the fleet table: a status announcement plus the
// latest counter report for that ship.
type FleetShip struct {
	gate.ShipStatus
	Clients uint16
	Games   uint16
}

// New builds a ship with its blocks. The event byte decorates the permanent
// lobbies on every block.
func New(cfg config.ShipServer, event uint8, hook script.Hook, log *slog.Logger) *Ship {
	if hook == nil {
		hook = script.NopHook{}
	}
	s := &Ship{
		cfg:   cfg,
		log:   log.With("ship", cfg.Name),
		hook:  hook,
		fleet: make(map[uint32]FleetShip),
	}
	for i := 1; i <= cfg.Blocks; i++ {
		s.blocks = append(s.blocks, NewBlock(s, i, cfg.LobbiesPerBlock, event, s.log))
	}
	return s
}

// Config returns the ship's configuration.
func (s *Ship) Config() config.ShipServer { return s.cfg }

// Hook returns the event hook, never nil.
func (s *Ship) Hook() script.Hook { return s.hook }

// Blocks returns the ship's blocks.
func (s *Ship) Blocks() []*Block { return s.blocks }

// Block returns the block with the given 1-based id, nil when out of range.
func (s *Ship) Block(id int) *Block {
	if id < 1 || id > len(s.blocks) {
		return nil
	}
	return s.blocks[id-1]
}

// Counts returns the current client and game totals.
func (s *Ship) Counts() (clients, games uint16) {
	return uint16(s.clients.Load()), uint16(s.games.Load())
}

func (s *Ship) IncClients() {
	s.clients.Add(1)
	s.notifyCounts()
}

func (s *Ship) DecClients() {
	s.clients.Add(-1)
	s.notifyCounts()
}

func (s *Ship) IncGames() {
	s.games.Add(1)
	s.notifyCounts()
}

func (s *Ship) DecGames() {
	s.games.Add(-1)
	s.notifyCounts()
}

// notifyCounts pushes the new totals to the shipgate, if connected.
func (s *Ship) notifyCounts() {
	s.gateMu.Lock()
	g := s.gatelink
	s.gateMu.Unlock()
	if g == nil {
		return
	}
	clients, games := s.Counts()
	if err := g.SendCount(clients, games); err != nil {
		s.log.Warn("count update failed", "err", err)
	}
}

// SetGateLink attaches the shipgate session used for count updates and
// cross-ship traffic.
func (s *Ship) SetGateLink(g *GateLink) {
	s.gateMu.Lock()
	s.gatelink = g
	s.gateMu.Unlock()
}

// Gate returns the attached shipgate session, nil when offline.
func (s *Ship) Gate() *GateLink {
	s.gateMu.Lock()
	defer s.gateMu.Unlock()
	return s.gatelink
}

// SetLimits installs the item limits used by legit checks. A nil limits
// disables checking.
func (s *Ship) SetLimits(l *Limits) { s.limits.Store(l) }

// Limits returns the installed item limits, nil when none are loaded.
func (s *Ship) Limits() *Limits { return s.limits.Load() }

// FindClient searches every block for a logged-in guildcard.
func (s *Ship) FindClient(gc uint32) *Client {
	for _, b := range s.blocks {
		if c := b.FindClient(gc); c != nil {
			return c
		}
	}
	return nil
}

// UpdateFleet records the state of another ship as reported by the shipgate.
// A ship reported offline is dropped from the table.
func (s *Ship) UpdateFleet(st gate.ShipStatus) {
	s.fleetMu.Lock()
	defer s.fleetMu.Unlock()
	if !st.Online {
		delete(s.fleet, st.ShipID)
		return
	}
	prev := s.fleet[st.ShipID]
	prev.ShipStatus = st
	s.fleet[st.ShipID] = prev
}

// UpdateFleetCounts folds a count report into the fleet table. Counts for a
// ship we have not seen a status for yet are ignored.
func (s *Ship) UpdateFleetCounts(cnt gate.Count) {
	s.fleetMu.Lock()
	defer s.fleetMu.Unlock()
	st, ok := s.fleet[cnt.ShipID]
	if !ok {
		return
	}
	st.Clients = cnt.Clients
	st.Games = cnt.Games
	s.fleet[cnt.ShipID] = st
}

// Fleet returns a snapshot of the known ships.
func (s *Ship) Fleet() []FleetShip {
	s.fleetMu.Lock()
	defer s.fleetMu.Unlock()
	out := make([]FleetShip, 0, len(s.fleet))
	for _, st := range s.fleet {
		out = append(out, st)
	}
	return out
}
