// Package shipgate implements the hub daemon: it authenticates ships,
// relays cross-ship traffic and keeps the fleet tables in the database.
package shipgate

import (
	"context"
	"fmt"
	"log/slog"
	mathrand "math/rand/v2"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/solvane/solvane/internal/config"
	"github.com/solvane/solvane/internal/crypto"
	"github.com/solvane/solvane/internal/db"
	"github.com/solvane/solvane/internal/gate"
)

// ShipStore is the fleet persistence surface.
type ShipStore interface {
	ShipKey(ctx context.Context, idx uint16) (key []byte, mainMenu bool, err error)
	InsertOnline(ctx context.Context, s db.OnlineShip) error
	DeleteOnline(ctx context.Context, shipID uint32) error
	UpdateCounts(ctx context.Context, shipID uint32, players, games uint16) error
}

// AccountStore resolves guildcards to accounts for GM auth and bans.
type AccountStore interface {
	AccountIDByGuildcard(ctx context.Context, guildcard uint32) (int64, error)
	GMAccount(ctx context.Context, accountID int64, username string) (*db.Account, error)
	PrivilegedAccountID(ctx context.Context, guildcard uint32) (int64, error)
}

// CharacterStore keeps character backups.
type CharacterStore interface {
	Store(ctx context.Context, guildcard, slot uint32, data []byte) error
	Fetch(ctx context.Context, guildcard, slot uint32) ([]byte, error)
}

// BanStore records bans requested by privileged GMs.
type BanStore interface {
	InsertGuildcardBan(ctx context.Context, setBy int64, guildcard uint32, until int64, reason string) error
	InsertIPBan(ctx context.Context, setBy int64, addr uint32, until int64, reason string) error
}

// Hub protocol version advertised in the welcome.
const (
	VerMajor = 1
	VerMinor = 0
	VerMicro = 0
)

// Server is the shipgate hub.
type Server struct {
	cfg config.Shipgate
	log *slog.Logger

	ships    ShipStore
	accounts AccountStore
	chars    CharacterStore
	bans     BanStore

	mu    sync.Mutex
	fleet map[uint32]*session
}

// NewServer wires the hub over its stores.
func NewServer(cfg config.Shipgate, ships ShipStore, accounts AccountStore, chars CharacterStore, bans BanStore, log *slog.Logger) *Server {
	return &Server{
		cfg:      cfg,
		log:      log,
		ships:    ships,
		accounts: accounts,
		chars:    chars,
		bans:     bans,
		fleet:    make(map[uint32]*session),
	}
}

// Serve accepts ship connections until ctx is cancelled and runs the
// liveness sweep alongside.
func (s *Server) Serve(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.BindAddress, s.cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.acceptLoop(ctx, ln) })
	g.Go(func() error { return s.sweepLoop(ctx) })
	return g.Wait()
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener) error {
	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	for {
		nc, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("accept: %w", err)
		}
		go s.HandleConn(ctx, nc)
	}
}

// sweepLoop pings silent ships and drops the ones that stay silent past
// twice the configured timeout.
func (s *Server) sweepLoop(ctx context.Context) error {
	iv := s.cfg.Timeout
	if iv <= 0 {
		iv = time.Minute
	}
	t := time.NewTicker(iv)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-t.C:
			for _, sess := range s.sessions() {
				silent := now.Sub(sess.lastSeen())
				switch {
				case silent > 2*iv:
					s.log.Warn("dropping silent ship", "ship", sess.name, "silent", silent)
					sess.conn.Close()
				case silent > iv:
					_ = sess.sendPing(false)
				}
			}
		}
	}
}

func (s *Server) sessions() []*session {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*session, 0, len(s.fleet))
	for _, sess := range s.fleet {
		out = append(out, sess)
	}
	return out
}

// register adds a logged-in ship to the fleet table, displacing any stale
// session holding the same id.
func (s *Server) register(sess *session) {
	s.mu.Lock()
	old := s.fleet[sess.id]
	s.fleet[sess.id] = sess
	s.mu.Unlock()
	if old != nil {
		old.conn.Close()
	}
}

// unregister removes a ship, returning false when a newer session already
// displaced it.
func (s *Server) unregister(sess *session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fleet[sess.id] != sess {
		return false
	}
	delete(s.fleet, sess.id)
	return true
}

// broadcast sends a build-once packet to every ship except the one named.
func (s *Server) broadcast(except uint32, build func(buf []byte) int) {
	for _, sess := range s.sessions() {
		if sess.id == except {
			continue
		}
		if err := sess.send(build); err != nil {
			s.log.Debug("broadcast send failed", "ship", sess.name, "err", err)
		}
	}
}

// shipByID returns the session for a ship id, nil when offline.
func (s *Server) shipByID(id uint32) *session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fleet[id]
}

// HandleConn runs one ship session from welcome to disconnect.
func (s *Server) HandleConn(ctx context.Context, nc net.Conn) {
	defer nc.Close()

	log := s.log.With("remote", nc.RemoteAddr())

	sess := &session{
		conn: gate.NewConn(nc),
		wbuf: make([]byte, gate.MaxPacketSize),
	}
	sess.touch()

	stop := context.AfterFunc(ctx, func() { nc.Close() })
	defer stop()

	if err := s.welcomeShip(ctx, sess); err != nil {
		log.Info("ship login failed", "err", err)
		return
	}
	log = log.With("ship", sess.name, "ship_id", sess.id)
	log.Info("ship online", "port", sess.port)

	defer s.shipDown(ctx, sess, log)

	rbuf := make([]byte, gate.MaxPacketSize)
	for {
		pkt, err := sess.conn.ReadPacket(rbuf)
		if err != nil {
			if ctx.Err() == nil {
				log.Info("ship connection lost", "err", err)
			}
			return
		}
		sess.touch()

		if err := s.handlePacket(ctx, sess, pkt); err != nil {
			log.Warn("dropping ship", "err", err)
			return
		}
	}
}

// welcomeShip performs the nonce handshake and the login exchange, installs
// the session keys and announces the ship to the fleet.
func (s *Server) welcomeShip(ctx context.Context, sess *session) error {
	var gateNonce, shipNonce [crypto.NonceSize]byte
	fillNonce(&gateNonce)
	fillNonce(&shipNonce)

	err := sess.send(func(buf []byte) int {
		return gate.BuildWelcome(buf, gate.Welcome{
			VerMajor:  VerMajor,
			VerMinor:  VerMinor,
			VerMicro:  VerMicro,
			GateNonce: gateNonce,
			ShipNonce: shipNonce,
		})
	})
	if err != nil {
		return fmt.Errorf("sending welcome: %w", err)
	}

	rbuf := make([]byte, gate.MaxPacketSize)
	pkt, err := sess.conn.ReadPacket(rbuf)
	if err != nil {
		return fmt.Errorf("reading login: %w", err)
	}
	h, err := gate.ParseHeader(pkt)
	if err != nil {
		return err
	}
	if h.Type != gate.TypeLogin || h.Flags&gate.FlagResponse == 0 {
		return fmt.Errorf("expected login reply, got 0x%04x", h.Type)
	}

	var reply gate.LoginReply
	if err := reply.Parse(pkt[gate.HeaderSize:h.Length]); err != nil {
		return fmt.Errorf("parsing login reply: %w", err)
	}

	if code := s.vetLogin(ctx, sess, reply); code != gate.ErrNoError {
		_ = sess.sendError(gate.TypeLogin, gate.FlagResponse|gate.FlagFailure, code, nil)
		return fmt.Errorf("login rejected: code 0x%08x", code)
	}

	// The gate reads ship traffic mixed with its own nonce and writes
	// traffic mixed with the ship's.
	if err := sess.conn.SetSessionKeys(sess.key, gateNonce, shipNonce); err != nil {
		return fmt.Errorf("installing session keys: %w", err)
	}
	if err := sess.sendError(gate.TypeLogin, gate.FlagResponse, gate.ErrNoError, nil); err != nil {
		return fmt.Errorf("sending login ack: %w", err)
	}

	row := db.OnlineShip{
		ShipID:   sess.id,
		Name:     sess.name,
		Players:  reply.Clients,
		Games:    reply.Games,
		IP:       sess.addr,
		IntIP:    sess.intAddr,
		Port:     sess.port,
		GMOnly:   reply.Flags&gate.ShipFlagGMOnly != 0,
		MenuCode: sess.menuCode,
	}
	if err := s.ships.InsertOnline(ctx, row); err != nil {
		return fmt.Errorf("registering online ship: %w", err)
	}

	s.register(sess)

	// Tell the fleet about the new ship and catch the new ship up.
	st := sess.status(true)
	s.broadcast(sess.id, func(buf []byte) int { return gate.BuildShipStatus(buf, st) })
	for _, other := range s.sessions() {
		if other.id == sess.id {
			continue
		}
		ost := other.status(true)
		if err := sess.send(func(buf []byte) int { return gate.BuildShipStatus(buf, ost) }); err != nil {
			return fmt.Errorf("sending fleet catch-up: %w", err)
		}
	}
	return nil
}

// vetLogin validates a login reply and fills the session identity on
// success.
func (s *Server) vetLogin(ctx context.Context, sess *session, reply gate.LoginReply) uint32 {
	if reply.ProtoVer < gate.ProtoVersionMin || reply.ProtoVer > gate.ProtoVersionMax {
		return gate.ErrLoginBadProto
	}
	if !gate.ValidMenuCode(reply.MenuCode) {
		return gate.ErrLoginInvalMenu
	}

	key, mainMenu, err := s.ships.ShipKey(ctx, reply.KeyIndex)
	if err != nil {
		return gate.ErrLoginBadKey
	}
	if reply.MenuCode == 0 && !mainMenu {
		return gate.ErrLoginBadMenu
	}

	sess.id = uint32(reply.KeyIndex)
	sess.key = key
	sess.name = reply.Name
	sess.addr = reply.ShipAddr
	sess.intAddr = reply.IntAddr
	sess.port = reply.ShipPort
	sess.flags = reply.Flags
	sess.menuCode = reply.MenuCode
	return gate.ErrNoError
}

// shipDown cleans up after a session ends: fleet table, online_ships row,
// ship-down broadcast.
func (s *Server) shipDown(ctx context.Context, sess *session, log *slog.Logger) {
	if sess.id == 0 && sess.name == "" {
		return // never logged in
	}
	if !s.unregister(sess) {
		return // displaced by a newer session; it owns the row now
	}

	if err := s.ships.DeleteOnline(ctx, sess.id); err != nil {
		log.Warn("removing online ship failed", "err", err)
	}

	st := sess.status(false)
	s.broadcast(sess.id, func(buf []byte) int { return gate.BuildShipStatus(buf, st) })
	log.Info("ship offline")
}

func fillNonce(n *[crypto.NonceSize]byte) {
	v := mathrand.Uint32()
	n[0] = byte(v)
	n[1] = byte(v >> 8)
	n[2] = byte(v >> 16)
	n[3] = byte(v >> 24)
}
