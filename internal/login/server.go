package login

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/solvane/solvane/internal/config"
	"github.com/solvane/solvane/internal/db"
	"github.com/solvane/solvane/internal/netaddr"
	"github.com/solvane/solvane/internal/protocol"
)

// AccountStore is the account lookup surface the login flow needs.
type AccountStore interface {
	AccountByUsername(ctx context.Context, username string) (*db.Account, error)
}

// BanStore answers whether a guildcard or address is currently banned.
type BanStore interface {
	IsGuildcardBanned(ctx context.Context, guildcard uint32, now int64) (bool, error)
	IsIPBanned(ctx context.Context, addr uint32, now int64) (bool, error)
}

// ShipList lists the fleet for ship selection and the web counter.
type ShipList interface {
	ListOnline(ctx context.Context) ([]db.OnlineShip, error)
}

// ErrNoShips is returned when the fleet has nothing the account may join.
var ErrNoShips = errors.New("login: no eligible ship online")

// readBufs recycles per-session read buffers across the listeners.
var readBufs = protocol.NewBytePool(protocol.MaxPacketSize)

// Server is the login tier: per-variant listeners that authenticate a client
// and hand it off to a ship, plus the web counter port.
type Server struct {
	cfg config.LoginServer
	log *slog.Logger

	accounts AccountStore
	bans     BanStore
	ships    ShipList

	net netaddr.Network

	sessions atomic.Int32
}

// NewServer wires the login tier. netw decides which ship address a client
// is redirected to.
func NewServer(cfg config.LoginServer, accounts AccountStore, bans BanStore, ships ShipList, netw netaddr.Network, log *slog.Logger) *Server {
	return &Server{
		cfg:      cfg,
		log:      log,
		accounts: accounts,
		bans:     bans,
		ships:    ships,
		net:      netw,
	}
}

// variantPorts maps each listener to the variant it serves. The DC port also
// serves EU GameCube 60Hz clients; the handshake is identical so the DC
// variant stands in for both.
func (s *Server) variantPorts() map[protocol.Variant]int {
	return map[protocol.Variant]int{
		protocol.VariantGCJP10: s.cfg.PortGCJP10,
		protocol.VariantGCJP11: s.cfg.PortGCJP11,
		protocol.VariantGC:     s.cfg.PortGC,
		protocol.VariantDCv2:   s.cfg.PortDC,
		protocol.VariantGCEU50: s.cfg.PortGCEU50,
		protocol.VariantPC:     s.cfg.PortPC,
	}
}

// Serve runs every listener until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for v, port := range s.variantPorts() {
		v, addr := v, fmt.Sprintf("%s:%d", s.cfg.BindAddress, port)
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("listening on %s: %w", addr, err)
		}
		g.Go(func() error { return s.acceptLoop(ctx, ln, v) })
	}

	webAddr := fmt.Sprintf("%s:%d", s.cfg.BindAddress, s.cfg.PortWeb)
	wln, err := net.Listen("tcp", webAddr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", webAddr, err)
	}
	g.Go(func() error { return s.webLoop(ctx, wln) })

	return g.Wait()
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener, v protocol.Variant) error {
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
		go s.HandleConn(ctx, nc, v)
	}
}

// webLoop answers the counter port: the fleet-wide client count as a
// little-endian 32-bit integer, then close.
func (s *Server) webLoop(ctx context.Context, ln net.Listener) error {
	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	for {
		nc, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("web accept: %w", err)
		}
		go func() {
			defer nc.Close()
			if err := s.WriteCount(ctx, nc); err != nil {
				s.log.Debug("web counter failed", "err", err)
			}
		}()
	}
}

// WriteCount writes the current fleet-wide client count to w.
func (s *Server) WriteCount(ctx context.Context, w net.Conn) error {
	ships, err := s.ships.ListOnline(ctx)
	if err != nil {
		return fmt.Errorf("listing ships for counter: %w", err)
	}

	var total uint32
	for _, ship := range ships {
		total += uint32(ship.Players)
	}

	var out [4]byte
	binary.LittleEndian.PutUint32(out[:], total)
	if _, err := w.Write(out[:]); err != nil {
		return fmt.Errorf("writing counter: %w", err)
	}
	return nil
}

// HandleConn runs one login session: welcome, credentials, redirect, close.
func (s *Server) HandleConn(ctx context.Context, nc net.Conn, v protocol.Variant) {
	defer nc.Close()

	s.sessions.Add(1)
	defer s.sessions.Add(-1)

	log := s.log.With("remote", nc.RemoteAddr(), "variant", v.String())

	if s.cfg.IdleTimeout > 0 {
		_ = nc.SetDeadline(time.Now().Add(s.cfg.IdleTimeout))
	}

	conn := protocol.NewConn(nc, v)
	if err := conn.SendWelcome(); err != nil {
		log.Debug("welcome failed", "err", err)
		return
	}

	buf := readBufs.Get(protocol.MaxPacketSize)
	defer readBufs.Put(buf)
	for {
		pkt, err := conn.ReadPacket(buf)
		if err != nil {
			log.Debug("read failed", "err", err)
			return
		}
		h, err := protocol.ParseHeader(pkt, v)
		if err != nil {
			log.Debug("bad header", "err", err)
			return
		}
		if h.Type != CmdLogin {
			log.Debug("unexpected opcode before login", "opcode", fmt.Sprintf("0x%02x", h.Type))
			continue
		}

		req, err := ParseRequest(pkt[protocol.HeaderSize:h.Length])
		if err != nil {
			log.Debug("bad login packet", "err", err)
			return
		}
		s.finishLogin(ctx, conn, log, v, req, clientAddr(nc))
		return
	}
}

// finishLogin runs authentication and either redirects the client to a ship
// or acks the failure. The session ends either way.
func (s *Server) finishLogin(ctx context.Context, conn *protocol.Conn, log *slog.Logger, v protocol.Variant, req Request, client netip.Addr) {
	out := make([]byte, 64)

	acc, result, err := s.Authenticate(ctx, req, client)
	if err != nil {
		log.Error("authentication error", "username", req.Username, "err", err)
		result = LoginBadCredential
	}
	if result != LoginOK {
		log.Info("login refused", "username", req.Username, "result", result)
		n := BuildAck(out, v, uint32(result), req.Guildcard)
		_ = conn.WritePacket(out, n)
		return
	}

	addr, port, err := s.PickShip(ctx, acc, v, client)
	if err != nil {
		log.Info("no ship available", "username", req.Username, "err", err)
		n := BuildAck(out, v, LoginNoShips, req.Guildcard)
		_ = conn.WritePacket(out, n)
		return
	}

	n := BuildAck(out, v, LoginOK, req.Guildcard)
	if err := conn.WritePacket(out, n); err != nil {
		log.Debug("ack write failed", "err", err)
		return
	}
	n = BuildRedirect(out, v, netaddr.ToWire(addr), port)
	if err := conn.WritePacket(out, n); err != nil {
		log.Debug("redirect write failed", "err", err)
		return
	}
	log.Info("redirected", "guildcard", req.Guildcard, "ship_addr", addr.String(), "port", port)
}

// Authenticate checks credentials and the ban tables, returning the account
// and a login verdict code.
func (s *Server) Authenticate(ctx context.Context, req Request, client netip.Addr) (*db.Account, int, error) {
	acc, err := s.accounts.AccountByUsername(ctx, req.Username)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, LoginBadCredential, nil
		}
		return nil, 0, fmt.Errorf("looking up account: %w", err)
	}
	if db.HashPassword(req.Password, acc.Regtime) != acc.Password {
		return nil, LoginBadCredential, nil
	}

	now := time.Now().Unix()
	if banned, err := s.bans.IsGuildcardBanned(ctx, req.Guildcard, now); err != nil {
		return nil, 0, fmt.Errorf("checking guildcard ban: %w", err)
	} else if banned {
		return nil, LoginBanned, nil
	}
	if client.IsValid() {
		if banned, err := s.bans.IsIPBanned(ctx, netaddr.ToWire(client), now); err != nil {
			return nil, 0, fmt.Errorf("checking address ban: %w", err)
		} else if banned {
			return nil, LoginBanned, nil
		}
	}
	return acc, LoginOK, nil
}

// PickShip selects a destination ship and resolves the address and port the
// client should connect to. GM-only ships are skipped for unprivileged
// accounts.
func (s *Server) PickShip(ctx context.Context, acc *db.Account, v protocol.Variant, client netip.Addr) (netip.Addr, uint16, error) {
	ships, err := s.ships.ListOnline(ctx)
	if err != nil {
		return netip.Addr{}, 0, fmt.Errorf("listing ships: %w", err)
	}

	ship := ChooseShip(ships, acc.Privlevel)
	if ship == nil {
		return netip.Addr{}, 0, ErrNoShips
	}

	addr := s.net.SelectShipAddr(client, netaddr.FromWire(ship.IP), netaddr.FromWire(ship.IntIP))
	return addr, ship.Port + v.PortOffset(), nil
}

// ChooseShip returns the first ship the account may join, nil when none.
func ChooseShip(ships []db.OnlineShip, privlevel int32) *db.OnlineShip {
	for i := range ships {
		if ships[i].GMOnly && privlevel <= 0 {
			continue
		}
		return &ships[i]
	}
	return nil
}

// Sessions returns how many login sessions are currently in flight.
func (s *Server) Sessions() int { return int(s.sessions.Load()) }

func clientAddr(nc net.Conn) netip.Addr {
	ap, err := netip.ParseAddrPort(nc.RemoteAddr().String())
	if err != nil {
		return netip.Addr{}
	}
	addr := ap.Addr()
	if addr.Is4In6() {
		addr = addr.Unmap()
	}
	return addr
}
