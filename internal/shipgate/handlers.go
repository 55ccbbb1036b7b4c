package shipgate

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/solvane/solvane/internal/db"
	"github.com/solvane/solvane/internal/gate"
)

// handlePacket dispatches one decrypted ship packet. A returned error drops
// the session.
func (s *Server) handlePacket(ctx context.Context, sess *session, pkt []byte) error {
	h, err := gate.ParseHeader(pkt)
	if err != nil {
		return err
	}
	body := pkt[gate.HeaderSize:h.Length]

	switch h.Type {
	case gate.TypePing:
		if h.Flags&gate.FlagResponse != 0 {
			return nil // liveness clock already touched
		}
		return sess.sendPing(true)

	case gate.TypeCount:
		return s.handleCount(ctx, sess, body)

	case gate.TypeForwardDC, gate.TypeForwardPC:
		return s.handleForward(sess, h, body)

	case gate.TypeCharData:
		if h.Flags&gate.FlagResponse != 0 {
			return nil
		}
		return s.handleCharStore(ctx, sess, body)

	case gate.TypeCharReq:
		return s.handleCharFetch(ctx, sess, body)

	case gate.TypeGMLogin:
		return s.handleGMLogin(ctx, sess, body)

	case gate.TypeGCBan, gate.TypeIPBan:
		return s.handleBan(ctx, sess, h.Type, body)

	default:
		s.log.Debug("unhandled ship packet",
			"type", fmt.Sprintf("0x%04x", h.Type), "ship", sess.name)
		return nil
	}
}

// handleCount persists a ship's counter update and rebroadcasts it with the
// origin id filled in.
func (s *Server) handleCount(ctx context.Context, sess *session, body []byte) error {
	var cnt gate.Count
	if err := cnt.Parse(body); err != nil {
		return fmt.Errorf("parsing count: %w", err)
	}

	if err := s.ships.UpdateCounts(ctx, sess.id, cnt.Clients, cnt.Games); err != nil {
		s.log.Warn("persisting ship counts failed", "ship", sess.name, "err", err)
	}

	out := gate.Count{Clients: cnt.Clients, Games: cnt.Games, ShipID: sess.id}
	s.broadcast(sess.id, func(buf []byte) int { return gate.BuildCount(buf, out) })
	return nil
}

// handleForward routes a cross-ship client packet. Guild searches and simple
// mail fan out to the whole fleet except the origin and proxy ships; a guild
// search reply goes straight back to the ship named in the envelope.
func (s *Server) handleForward(sess *session, h gate.Header, body []byte) error {
	var fw gate.Forward
	if err := fw.Parse(body); err != nil {
		return fmt.Errorf("parsing forward: %w", err)
	}

	op, err := fw.InnerOpcode(h.Type)
	if err != nil {
		return fmt.Errorf("reading forwarded opcode: %w", err)
	}

	// The outbound envelope names the origin so replies can find their way
	// back.
	out := gate.Forward{ShipID: sess.id, Packet: fw.Packet}

	switch op {
	case gate.InnerGuildSearch, gate.InnerSimpleMail:
		for _, other := range s.sessions() {
			if other.id == sess.id || other.flags&gate.ShipFlagProxy != 0 {
				continue
			}
			if err := other.send(func(buf []byte) int {
				return gate.BuildForward(buf, h.Type, out)
			}); err != nil {
				s.log.Debug("forward fan-out failed", "ship", other.name, "err", err)
			}
		}
		return nil

	case gate.InnerDCGuildReply:
		dest := s.shipByID(fw.ShipID)
		if dest == nil {
			s.log.Debug("reply target ship offline", "ship_id", fw.ShipID)
			return nil
		}
		if err := dest.send(func(buf []byte) int {
			return gate.BuildForward(buf, h.Type, out)
		}); err != nil {
			s.log.Debug("reply delivery failed", "ship", dest.name, "err", err)
		}
		return nil

	default:
		echo := fw.Packet
		if len(echo) > 8 {
			echo = echo[:8]
		}
		return sess.sendError(h.Type, gate.FlagResponse|gate.FlagFailure,
			gate.ErrFwdUnknownPacket, echo)
	}
}

// handleCharStore replaces the stored backup for a guildcard/slot pair and
// acks with the pair echoed.
func (s *Server) handleCharStore(ctx context.Context, sess *session, body []byte) error {
	var cd gate.CharData
	if err := cd.Parse(body); err != nil {
		return fmt.Errorf("parsing character data: %w", err)
	}

	echo := charEcho(cd.Guildcard, cd.Slot)
	if err := s.chars.Store(ctx, cd.Guildcard, cd.Slot, cd.Data[:]); err != nil {
		s.log.Warn("storing character backup failed", "guildcard", cd.Guildcard, "err", err)
		return sess.sendError(gate.TypeCharData,
			gate.FlagResponse|gate.FlagFailure, gate.ErrBadError, echo)
	}
	return sess.sendError(gate.TypeCharData, gate.FlagResponse, gate.ErrNoError, echo)
}

// handleCharFetch answers a backup request with the stored blob, or a no-data
// failure.
func (s *Server) handleCharFetch(ctx context.Context, sess *session, body []byte) error {
	var req gate.CharReq
	if err := req.Parse(body); err != nil {
		return fmt.Errorf("parsing character request: %w", err)
	}

	echo := charEcho(req.Guildcard, req.Slot)
	data, err := s.chars.Fetch(ctx, req.Guildcard, req.Slot)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return sess.sendError(gate.TypeCharReq,
				gate.FlagResponse|gate.FlagFailure, gate.ErrCReqNoData, echo)
		}
		s.log.Error("fetching character backup failed", "guildcard", req.Guildcard, "err", err)
		return sess.sendError(gate.TypeCharReq,
			gate.FlagResponse|gate.FlagFailure, gate.ErrBadError, echo)
	}

	var cd gate.CharData
	cd.Guildcard = req.Guildcard
	cd.Slot = req.Slot
	copy(cd.Data[:], data)
	return sess.send(func(buf []byte) int {
		return gate.BuildCharData(buf, gate.FlagResponse, cd)
	})
}

func charEcho(guildcard, slot uint32) []byte {
	var b [8]byte
	binary.BigEndian.PutUint32(b[0:4], guildcard)
	binary.BigEndian.PutUint32(b[4:8], slot)
	return b[:]
}

// handleGMLogin verifies GM credentials against the account tied to the
// guildcard. The stored privlevel is the privilege bitmask handed back to
// the ship; zero or an inconsistent mask denies the login.
func (s *Server) handleGMLogin(ctx context.Context, sess *session, body []byte) error {
	var req gate.GMLogin
	if err := req.Parse(body); err != nil {
		return fmt.Errorf("parsing gm login: %w", err)
	}

	deny := func() error {
		return sess.send(func(buf []byte) int {
			return gate.BuildGMReply(buf, gate.GMReply{
				Guildcard: req.Guildcard,
				Block:     req.Block,
			})
		})
	}

	accID, err := s.accounts.AccountIDByGuildcard(ctx, req.Guildcard)
	if err != nil {
		if !errors.Is(err, db.ErrNotFound) {
			s.log.Error("gm account lookup failed", "guildcard", req.Guildcard, "err", err)
		}
		return deny()
	}

	acc, err := s.accounts.GMAccount(ctx, accID, req.Username)
	if err != nil {
		if !errors.Is(err, db.ErrNotFound) {
			s.log.Error("gm account lookup failed", "guildcard", req.Guildcard, "err", err)
		}
		return deny()
	}
	if db.HashPassword(req.Password, acc.Regtime) != acc.Password {
		return deny()
	}

	priv := uint8(acc.Privlevel)
	if priv == 0 || !gate.ValidPrivilege(priv) {
		return deny()
	}

	return sess.send(func(buf []byte) int {
		return gate.BuildGMReply(buf, gate.GMReply{
			Guildcard: req.Guildcard,
			Block:     req.Block,
			Allowed:   true,
			Privilege: priv,
		})
	})
}

// handleBan records a ban requested from a ship. Only guildcards tied to a
// privileged account may set bans.
func (s *Server) handleBan(ctx context.Context, sess *session, typ uint16, body []byte) error {
	var req gate.BanReq
	if err := req.Parse(body); err != nil {
		return fmt.Errorf("parsing ban request: %w", err)
	}

	setBy, err := s.accounts.PrivilegedAccountID(ctx, req.Requester)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return sess.sendError(typ, gate.FlagResponse|gate.FlagFailure,
				gate.ErrBanNotGM, nil)
		}
		s.log.Error("ban requester lookup failed", "guildcard", req.Requester, "err", err)
		return sess.sendError(typ, gate.FlagResponse|gate.FlagFailure,
			gate.ErrBadError, nil)
	}

	switch typ {
	case gate.TypeGCBan:
		err = s.bans.InsertGuildcardBan(ctx, setBy, req.Target, int64(req.Until), req.Reason)
	case gate.TypeIPBan:
		err = s.bans.InsertIPBan(ctx, setBy, req.Target, int64(req.Until), req.Reason)
	default:
		return sess.sendError(typ, gate.FlagResponse|gate.FlagFailure,
			gate.ErrBanBadType, nil)
	}
	if err != nil {
		s.log.Error("recording ban failed", "target", req.Target, "err", err)
		return sess.sendError(typ, gate.FlagResponse|gate.FlagFailure,
			gate.ErrBadError, nil)
	}

	s.log.Info("ban recorded", "ship", sess.name, "requester", req.Requester,
		"target", req.Target, "until", req.Until)
	return sess.sendError(typ, gate.FlagResponse, gate.ErrNoError, nil)
}
