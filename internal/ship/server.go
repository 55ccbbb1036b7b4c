package ship

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/solvane/solvane/internal/gate"
	"github.com/solvane/solvane/internal/protocol"
	"github.com/solvane/solvane/internal/script"
)

// Client-facing request opcodes handled by the block loop.
const (
	CmdLobbyChange = 0x84
	CmdKeepalive   = 0x05
)

// readBufs recycles per-connection read buffers across the block loops.
var readBufs = protocol.NewBytePool(protocol.MaxPacketSize)

// sweepInterval paces the harvest of disconnect-marked sessions.
const sweepInterval = 15 * time.Second

// Server accepts client connections for a ship. The ship-select listeners
// sit at BasePort+variant; each block gets its own listener set above that.
type Server struct {
	ship *Ship
	log  *slog.Logger
}

// NewServer wraps a ship for serving.
func NewServer(s *Ship, log *slog.Logger) *Server {
	return &Server{ship: s, log: log}
}

// blockPort returns the port a block's listener uses for a variant. Block 0
// is the ship-select tier.
func (s *Server) blockPort(block int, v protocol.Variant) int {
	return s.ship.Config().BasePort + block*int(protocol.VariantCount) + int(v)
}

// Serve runs every listener until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	cfg := s.ship.Config()

	g, ctx := errgroup.WithContext(ctx)
	for v := protocol.Variant(0); v < protocol.VariantCount; v++ {
		for block := 0; block <= cfg.Blocks; block++ {
			v, block := v, block
			addr := fmt.Sprintf("%s:%d", cfg.BindAddress, s.blockPort(block, v))
			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("listening on %s: %w", addr, err)
			}
			g.Go(func() error {
				return s.acceptLoop(ctx, ln, v, block)
			})
		}
	}
	g.Go(func() error { return s.sweepLoop(ctx) })
	return g.Wait()
}

// sweepLoop periodically harvests sessions another goroutine marked
// disconnected (legit-check failures, script hooks) whose own read loop is
// parked and would otherwise only notice at the idle timeout.
func (s *Server) sweepLoop(ctx context.Context) error {
	t := time.NewTicker(sweepInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			for _, b := range s.ship.Blocks() {
				if dead := b.Harvest(); len(dead) > 0 {
					s.log.Debug("harvested sessions", "block", b.ID, "count", len(dead))
				}
			}
		}
	}
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener, v protocol.Variant, block int) error {
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
		go s.handleConn(ctx, nc, v, block)
	}
}

func (s *Server) handleConn(ctx context.Context, nc net.Conn, v protocol.Variant, block int) {
	defer nc.Close()

	log := s.log.With("addr", nc.RemoteAddr(), "variant", v.String(), "block", block)

	conn := protocol.NewConn(nc, v)
	if err := conn.SendWelcome(); err != nil {
		log.Debug("welcome failed", "err", err)
		return
	}

	b := s.ship.Block(block)
	c := NewClient(conn, b)
	if b == nil {
		c.SetFlag(ClientFlagTypeShip)
		s.ship.Hook().OnEvent(script.EventShipLogin, HandleOf(c))
		defer s.ship.Hook().OnEvent(script.EventShipLogout, HandleOf(c))
	} else {
		b.AddClient(c)
		s.ship.Hook().OnEvent(script.EventBlockLogin, HandleOf(c))
		defer func() {
			s.ship.Hook().OnEvent(script.EventBlockLogout, HandleOf(c))
			b.RemoveClient(c)
		}()
	}

	idle := s.ship.Config().IdleTimeout
	buf := readBufs.Get(protocol.MaxPacketSize)
	defer readBufs.Put(buf)
	for {
		if idle > 0 {
			_ = nc.SetReadDeadline(c.IdleSince().Add(idle))
		}
		pkt, err := conn.ReadPacket(buf)
		if err != nil {
			var nerr net.Error
			if errors.As(err, &nerr) && nerr.Timeout() {
				log.Info("idle timeout")
			} else if ctx.Err() == nil {
				log.Debug("read failed", "err", err)
			}
			c.Disconnect()
			return
		}
		c.Touch()

		if err := s.dispatch(c, pkt); err != nil {
			log.Debug("dropping client", "err", err)
			c.Disconnect()
			return
		}
		if c.Disconnected() {
			return
		}
	}
}

// dispatch routes one client packet. Returning an error drops the session.
func (s *Server) dispatch(c *Client, pkt []byte) error {
	h, err := protocol.ParseHeader(pkt, c.Variant())
	if err != nil {
		return err
	}

	switch h.Type {
	case CmdKeepalive:
		return nil

	case CmdGameBcast, CmdGameOne, CmdGameDOne:
		return HandleGameCommand(c, pkt)

	case CmdDoneBurst:
		l := c.Lobby()
		if l == nil {
			return ErrNotInLobby
		}
		// Only the client that is actually bursting may end the burst.
		if !c.HasFlag(ClientFlagBursting) {
			return nil
		}
		c.ClearFlag(ClientFlagBursting)
		return l.HandleDoneBurst()

	case CmdChat:
		l := c.Lobby()
		if l == nil {
			return ErrNotInLobby
		}
		return l.SendChat(c, pkt)

	case CmdLobbyChange:
		return s.handleLobbyChange(c, pkt[protocol.HeaderSize:])

	case CmdSetBlacklist:
		s.handleBlacklist(c, pkt[protocol.HeaderSize:])
		return nil

	case CmdSetAutoreply:
		return c.SetAutoreply(pkt[protocol.HeaderSize:])

	case CmdClearAutoreply:
		c.ClearAutoreply()
		return nil

	case CmdGuildSearch, CmdSimpleMail, CmdGuildReply:
		s.routePersonal(c, h.Type, pkt)
		return nil

	default:
		s.log.Debug("unhandled opcode", "opcode", fmt.Sprintf("0x%02x", h.Type))
		return nil
	}
}

// handleLobbyChange moves the client to the lobby named in the menu
// selection body: [menuID u32][itemID u32], little-endian.
func (s *Server) handleLobbyChange(c *Client, body []byte) error {
	if len(body) < 8 {
		return protocol.ErrBadFrame
	}
	id := binary.LittleEndian.Uint32(body[4:8])

	b := c.Block()
	if b == nil {
		return ErrNotInLobby
	}
	req := b.GetLobby(id)
	if req == nil {
		return ErrNotInLobby
	}
	if err := ChangeLobby(c, req); err != nil {
		// An admission refusal is answered, not fatal.
		b.sendChatNotice(c, admitMessage(err))
		return nil
	}
	return nil
}

// admitMessage maps an admission error onto the line shown to the client.
func admitMessage(err error) string {
	switch {
	case errors.Is(err, ErrLobbyFull):
		return "That team is full."
	case errors.Is(err, ErrUnavailable):
		return "That team is not available."
	case errors.Is(err, ErrBusyBurst):
		return "A player is bursting, try again."
	case errors.Is(err, ErrQuestActive):
		return "A quest is in progress."
	case errors.Is(err, ErrQuestSel):
		return "The team is selecting a quest."
	case errors.Is(err, ErrLevelTooLow):
		return "Your level is too low."
	case errors.Is(err, ErrLevelTooHigh):
		return "Your level is too high."
	case errors.Is(err, ErrVersionGate):
		return "Your game version cannot join this team."
	case errors.Is(err, ErrLegitFail):
		return "Your items failed the legit check."
	default:
		return "Cannot join that team."
	}
}

// handleBlacklist replaces the client's blacklist with the 30 guildcard
// slots from the request body.
func (s *Server) handleBlacklist(c *Client, body []byte) {
	for i := 0; i < BlacklistSize && (i+1)*4 <= len(body); i++ {
		gc := binary.LittleEndian.Uint32(body[i*4:])
		if gc != 0 {
			c.BlacklistAdd(gc)
		}
	}
}

// routePersonal handles guild search, guild reply and simple mail: deliver
// locally when the target is on this ship, otherwise hand it to the
// shipgate for fan-out.
func (s *Server) routePersonal(c *Client, op uint8, pkt []byte) {
	destOff := 0
	switch op {
	case CmdSimpleMail:
		destOff = dcMailDestOff
		if c.Variant() == protocol.VariantPC {
			destOff = pcMailDestOff
		}
	case CmdGuildSearch:
		destOff = searchTargetOff
	case CmdGuildReply:
		destOff = replySearcherOff
	}
	if len(pkt) < destOff+4 {
		return
	}
	dest := binary.LittleEndian.Uint32(pkt[destOff:])

	if dst := s.ship.FindClient(dest); dst != nil {
		if op == CmdSimpleMail && dst.HasBlacklisted(c.Guildcard) {
			return
		}
		_ = dst.Send(pkt)
		return
	}

	g := s.ship.Gate()
	if g == nil {
		return
	}
	typ := uint16(gate.TypeForwardDC)
	if c.Variant() == protocol.VariantPC {
		typ = gate.TypeForwardPC
	}
	if err := g.ForwardPacket(typ, pkt); err != nil {
		s.log.Warn("forward to shipgate failed", "err", err)
	}
}
