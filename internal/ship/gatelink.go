package ship

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"sync"
	"time"

	"github.com/solvane/solvane/internal/gate"
	"github.com/solvane/solvane/internal/netaddr"
)

// Offsets of the destination guildcard inside forwarded packets, counted
// from the start of the embedded packet.
const (
	dcMailDestOff    = 28 // hdr(4) + tag(4) + sender gc(4) + name(16)
	pcMailDestOff    = 44 // hdr(4) + tag(4) + sender gc(4) + utf-16 name(32)
	searchTargetOff  = 12 // hdr(4) + tag(4) + searcher gc(4)
	replySearcherOff = 8  // hdr(4) + tag(4)
)

// GateLink is the ship side of the shipgate session. Reads run on the Run
// goroutine; writes are serialized by writeMu so any goroutine may send.
type GateLink struct {
	ship *Ship
	log  *slog.Logger
	conn *gate.Conn

	shipID uint32

	writeMu sync.Mutex
	wbuf    []byte
}

// DialGate connects to the shipgate, completes the welcome/login handshake
// and installs the session keys. The returned link is attached to the ship;
// call Run to start consuming inbound traffic.
func DialGate(ctx context.Context, s *Ship, key []byte, log *slog.Logger) (*GateLink, error) {
	cfg := s.Config()

	var d net.Dialer
	nc, err := d.DialContext(ctx, "tcp", cfg.ShipgateAddr)
	if err != nil {
		return nil, fmt.Errorf("dialing shipgate %s: %w", cfg.ShipgateAddr, err)
	}

	g := &GateLink{
		ship:   s,
		log:    log.With("shipgate", cfg.ShipgateAddr),
		conn:   gate.NewConn(nc),
		shipID: uint32(cfg.KeyIndex),
		wbuf:   make([]byte, gate.MaxPacketSize),
	}

	if err := g.handshake(cfg.Name, key); err != nil {
		nc.Close()
		return nil, err
	}

	s.SetGateLink(g)
	return g, nil
}

func (g *GateLink) handshake(name string, key []byte) error {
	cfg := g.ship.Config()

	rbuf := make([]byte, gate.MaxPacketSize)
	pkt, err := g.conn.ReadPacket(rbuf)
	if err != nil {
		return fmt.Errorf("reading welcome: %w", err)
	}
	h, err := gate.ParseHeader(pkt)
	if err != nil {
		return err
	}
	if h.Type != gate.TypeLogin || h.Flags&gate.FlagResponse != 0 {
		return fmt.Errorf("unexpected packet 0x%04x during handshake", h.Type)
	}

	var w gate.Welcome
	if err := w.Parse(pkt[gate.HeaderSize:h.Length]); err != nil {
		return fmt.Errorf("parsing welcome: %w", err)
	}

	ext, err := netip.ParseAddr(cfg.ExternalAddr)
	if err != nil {
		return fmt.Errorf("parsing external address: %w", err)
	}
	intAddr := ext
	if cfg.InternalAddr != "" {
		if intAddr, err = netip.ParseAddr(cfg.InternalAddr); err != nil {
			return fmt.Errorf("parsing internal address: %w", err)
		}
	}

	var flags uint32
	if cfg.GMOnly {
		flags |= gate.ShipFlagGMOnly
	}
	if cfg.Proxy {
		flags |= gate.ShipFlagProxy
	}

	clients, games := g.ship.Counts()
	reply := gate.LoginReply{
		ProtoVer: gate.ProtoVersionMax,
		Flags:    flags,
		Name:     name,
		ShipAddr: netaddr.ToWire(ext),
		IntAddr:  netaddr.ToWire(intAddr),
		ShipPort: uint16(cfg.BasePort),
		KeyIndex: uint16(cfg.KeyIndex),
		Clients:  clients,
		Games:    games,
		MenuCode: encodeMenuCode(cfg.MenuCode),
	}
	n := gate.BuildLoginReply(g.wbuf, reply)
	if err := g.conn.WritePacket(g.wbuf, n); err != nil {
		return fmt.Errorf("sending login reply: %w", err)
	}

	// Everything after the login reply runs under the session keys. The
	// gate's ack arrives encrypted and is consumed by the read loop.
	if err := g.conn.SetSessionKeys(key, w.ShipNonce, w.GateNonce); err != nil {
		return fmt.Errorf("installing session keys: %w", err)
	}
	return nil
}

// encodeMenuCode packs a two-letter ship list code, "" meaning the main menu.
func encodeMenuCode(s string) uint16 {
	if len(s) < 2 {
		return 0
	}
	return uint16(s[0]) | uint16(s[1])<<8
}

// Run consumes inbound shipgate traffic until the connection drops or ctx is
// done. It also drives the keepalive ping at the configured interval.
func (g *GateLink) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { g.conn.Close() })
	defer stop()
	defer g.ship.SetGateLink(nil)

	pingStop := make(chan struct{})
	defer close(pingStop)
	go g.pingLoop(pingStop)

	rbuf := make([]byte, gate.MaxPacketSize)
	for {
		pkt, err := g.conn.ReadPacket(rbuf)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("shipgate read: %w", err)
		}
		if err := g.handlePacket(pkt); err != nil {
			return err
		}
	}
}

func (g *GateLink) pingLoop(stop <-chan struct{}) {
	iv := g.ship.Config().PingInterval
	if iv <= 0 {
		iv = 30 * time.Second
	}
	t := time.NewTicker(iv)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			if err := g.SendPing(false); err != nil {
				g.log.Warn("ping failed", "err", err)
				return
			}
		}
	}
}

func (g *GateLink) handlePacket(pkt []byte) error {
	h, err := gate.ParseHeader(pkt)
	if err != nil {
		return err
	}
	body := pkt[gate.HeaderSize:h.Length]

	switch h.Type {
	case gate.TypeLogin:
		// Ack for our login reply.
		var e gate.ErrorPkt
		if err := e.Parse(body); err != nil {
			return fmt.Errorf("parsing login ack: %w", err)
		}
		if h.Flags&gate.FlagFailure != 0 || e.Code != gate.ErrNoError {
			return fmt.Errorf("shipgate rejected login: code 0x%08x", e.Code)
		}
		g.log.Info("registered with shipgate", "ship_id", g.shipID)

	case gate.TypeShipStatus:
		var st gate.ShipStatus
		if err := st.Parse(body); err != nil {
			return fmt.Errorf("parsing ship status: %w", err)
		}
		g.ship.UpdateFleet(st)

	case gate.TypeCount:
		var cnt gate.Count
		if err := cnt.Parse(body); err != nil {
			return fmt.Errorf("parsing count: %w", err)
		}
		g.ship.UpdateFleetCounts(cnt)

	case gate.TypeForwardDC, gate.TypeForwardPC:
		if h.Flags&gate.FlagFailure != 0 {
			var e gate.ErrorPkt
			if err := e.Parse(body); err == nil {
				g.log.Warn("forward rejected", "code", e.Code)
			}
			return nil
		}
		var fw gate.Forward
		if err := fw.Parse(body); err != nil {
			return fmt.Errorf("parsing forward: %w", err)
		}
		g.deliverForward(h.Type, &fw)

	case gate.TypeCharData:
		// Short response packets are acks for a store we sent; full-size
		// ones carry a restored backup.
		if h.Flags&gate.FlagResponse != 0 && len(body) < 8+gate.CharDataSize {
			var e gate.ErrorPkt
			if err := e.Parse(body); err != nil {
				return fmt.Errorf("parsing character ack: %w", err)
			}
			if h.Flags&gate.FlagFailure != 0 {
				g.log.Warn("character backup rejected", "code", e.Code)
			}
			return nil
		}
		var cd gate.CharData
		if err := cd.Parse(body); err != nil {
			return fmt.Errorf("parsing character data: %w", err)
		}
		g.deliverCharData(&cd, h.Flags)

	case gate.TypeCharReq:
		// Failure answer to a backup fetch: no stored data.
		if h.Flags&gate.FlagFailure != 0 {
			g.log.Debug("no character backup on file")
		}

	case gate.TypeGMLogin:
		var rep gate.GMReply
		if err := rep.Parse(body); err != nil {
			return fmt.Errorf("parsing gm reply: %w", err)
		}
		g.deliverGMReply(&rep)

	case gate.TypePing:
		if h.Flags&gate.FlagResponse == 0 {
			return g.SendPing(true)
		}

	case gate.TypeGCBan, gate.TypeIPBan:
		if h.Flags&gate.FlagFailure != 0 {
			var e gate.ErrorPkt
			if err := e.Parse(body); err == nil {
				g.log.Warn("ban request rejected", "code", e.Code)
			}
		}

	default:
		g.log.Warn("unhandled shipgate packet", "type", fmt.Sprintf("0x%04x", h.Type))
	}
	return nil
}

// deliverForward routes a cross-ship packet to the local client it names.
// A vanished target is dropped; the origin ship already got its ack.
func (g *GateLink) deliverForward(typ uint16, fw *gate.Forward) {
	op, err := fw.InnerOpcode(typ)
	if err != nil {
		g.log.Warn("bad forwarded packet", "err", err)
		return
	}

	var destOff int
	switch op {
	case gate.InnerSimpleMail:
		destOff = dcMailDestOff
		if typ == gate.TypeForwardPC {
			destOff = pcMailDestOff
		}
	case gate.InnerGuildSearch:
		destOff = searchTargetOff
	case gate.InnerDCGuildReply:
		destOff = replySearcherOff
	default:
		g.log.Warn("unroutable forwarded packet", "opcode", fmt.Sprintf("0x%02x", op))
		return
	}

	if len(fw.Packet) < destOff+4 {
		g.log.Warn("forwarded packet truncated", "opcode", fmt.Sprintf("0x%02x", op))
		return
	}
	dest := binary.LittleEndian.Uint32(fw.Packet[destOff:])

	c := g.ship.FindClient(dest)
	if c == nil {
		g.log.Debug("forward target not here", "guildcard", dest)
		return
	}
	if err := c.Send(fw.Packet); err != nil {
		g.log.Debug("forward delivery failed", "guildcard", dest, "err", err)
	}
}

// deliverCharData hands a restored character backup to the waiting client.
func (g *GateLink) deliverCharData(cd *gate.CharData, flags uint16) {
	if flags&gate.FlagResponse == 0 {
		// Stores originate here; the gate never pushes one unasked.
		return
	}
	c := g.ship.FindClient(cd.Guildcard)
	if c == nil {
		return
	}
	if b := c.Block(); b != nil {
		b.sendChatNotice(c, "Character data restored.")
	}
}

// deliverGMReply applies a GM login verdict to the requesting client.
func (g *GateLink) deliverGMReply(rep *gate.GMReply) {
	b := g.ship.Block(int(rep.Block))
	if b == nil {
		return
	}
	c := b.FindClient(rep.Guildcard)
	if c == nil {
		return
	}
	if rep.Allowed && gate.ValidPrivilege(rep.Privilege) {
		c.Privilege = rep.Privilege
		b.sendChatNotice(c, "GM login successful.")
	} else {
		b.sendChatNotice(c, "GM login failed.")
	}
}

// send serializes one outbound packet built by fn into the shared write
// buffer.
func (g *GateLink) send(fn func(buf []byte) int) error {
	g.writeMu.Lock()
	defer g.writeMu.Unlock()
	n := fn(g.wbuf)
	return g.conn.WritePacket(g.wbuf, n)
}

// SendCount reports the ship's current totals.
func (g *GateLink) SendCount(clients, games uint16) error {
	return g.send(func(buf []byte) int {
		return gate.BuildCount(buf, gate.Count{Clients: clients, Games: games, ShipID: g.shipID})
	})
}

// SendPing sends a keepalive request, or a reply when answering one.
func (g *GateLink) SendPing(reply bool) error {
	return g.send(func(buf []byte) int {
		return gate.BuildPing(buf, reply)
	})
}

// ForwardPacket ships a client packet to the hub for cross-ship routing.
// typ picks the embedded framing (TypeForwardDC or TypeForwardPC).
func (g *GateLink) ForwardPacket(typ uint16, inner []byte) error {
	return g.send(func(buf []byte) int {
		return gate.BuildForward(buf, typ, gate.Forward{ShipID: g.shipID, Packet: inner})
	})
}

// StoreCharData uploads a character backup.
func (g *GateLink) StoreCharData(gc, slot uint32, data []byte) error {
	var cd gate.CharData
	cd.Guildcard = gc
	cd.Slot = slot
	copy(cd.Data[:], data)
	return g.send(func(buf []byte) int {
		return gate.BuildCharData(buf, 0, cd)
	})
}

// RequestCharData asks for a stored character backup.
func (g *GateLink) RequestCharData(gc, slot uint32) error {
	return g.send(func(buf []byte) int {
		return gate.BuildCharReq(buf, gate.CharReq{Guildcard: gc, Slot: slot})
	})
}

// RequestGMLogin asks the hub to verify GM credentials for a client on the
// given block.
func (g *GateLink) RequestGMLogin(gc uint32, block int, username, password string) error {
	return g.send(func(buf []byte) int {
		return gate.BuildGMLogin(buf, gate.GMLogin{
			Guildcard: gc,
			Block:     uint32(block),
			Username:  username,
			Password:  password,
		})
	})
}

// RequestBan asks the hub to record a guildcard or IP ban. typ is TypeGCBan
// or TypeIPBan.
func (g *GateLink) RequestBan(typ uint16, requester, target, until uint32, reason string) error {
	return g.send(func(buf []byte) int {
		return gate.BuildBanReq(buf, typ, gate.BanReq{
			Requester: requester,
			Target:    target,
			Until:     until,
			Reason:    reason,
		})
	})
}
