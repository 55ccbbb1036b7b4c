package gate

import (
	"encoding/binary"
	"fmt"
)

// Privilege bits carried in GM replies.
const (
	PrivLocalGM    = 0x00000001
	PrivGlobalGM   = 0x00000002
	PrivLocalRoot  = 0x00000004
	PrivGlobalRoot = 0x00000008
)

// GMLogin [TypeGMLogin] is the ship to shipgate GM credential check.
//
// Format:
//
//	[guildcard u32][block u32]
//	[username 32 bytes][password 32 bytes]
type GMLogin struct {
	Guildcard uint32
	Block     uint32
	Username  string
	Password  string
}

// BuildGMLogin writes a GM login request into buf and returns the number of
// bytes written.
func BuildGMLogin(buf []byte, p GMLogin) int {
	const n = HeaderSize + 8 + 32 + 32
	PutHeader(buf, Header{Type: TypeGMLogin, Length: n})
	binary.BigEndian.PutUint32(buf[HeaderSize:], p.Guildcard)
	binary.BigEndian.PutUint32(buf[HeaderSize+4:], p.Block)

	clear(buf[HeaderSize+8 : HeaderSize+72])
	copy(buf[HeaderSize+8:HeaderSize+40], p.Username)
	copy(buf[HeaderSize+40:HeaderSize+72], p.Password)
	return n
}

// Parse decodes a GM login body.
func (p *GMLogin) Parse(body []byte) error {
	r := NewReader(body)
	var err error

	if p.Guildcard, err = r.ReadUint32(); err != nil {
		return fmt.Errorf("reading guildcard: %w", err)
	}
	if p.Block, err = r.ReadUint32(); err != nil {
		return fmt.Errorf("reading block: %w", err)
	}
	if p.Username, err = r.ReadFixedString(32); err != nil {
		return fmt.Errorf("reading username: %w", err)
	}
	if p.Password, err = r.ReadFixedString(32); err != nil {
		return fmt.Errorf("reading password: %w", err)
	}
	return nil
}

// GMReply [TypeGMLogin | FlagResponse] is the shipgate to ship verdict.
//
// Format:
//
//	[guildcard u32][block u32]
//	[allowed u8][privilege u8][reserved u16]
type GMReply struct {
	Guildcard uint32
	Block     uint32
	Allowed   bool
	Privilege uint8
}

// BuildGMReply writes a GM login verdict into buf and returns the number of
// bytes written.
func BuildGMReply(buf []byte, p GMReply) int {
	const n = HeaderSize + 8 + 4
	flags := uint16(FlagResponse)
	if !p.Allowed {
		flags |= FlagFailure
	}
	PutHeader(buf, Header{Type: TypeGMLogin, Flags: flags, Length: n})
	binary.BigEndian.PutUint32(buf[HeaderSize:], p.Guildcard)
	binary.BigEndian.PutUint32(buf[HeaderSize+4:], p.Block)

	var allowed uint8
	if p.Allowed {
		allowed = 1
	}
	buf[HeaderSize+8] = allowed
	buf[HeaderSize+9] = p.Privilege
	buf[HeaderSize+10] = 0
	buf[HeaderSize+11] = 0
	return n
}

// Parse decodes a GM verdict body.
func (p *GMReply) Parse(body []byte) error {
	r := NewReader(body)
	var err error

	if p.Guildcard, err = r.ReadUint32(); err != nil {
		return fmt.Errorf("reading guildcard: %w", err)
	}
	if p.Block, err = r.ReadUint32(); err != nil {
		return fmt.Errorf("reading block: %w", err)
	}
	allowed, err := r.ReadUint8()
	if err != nil {
		return fmt.Errorf("reading verdict: %w", err)
	}
	p.Allowed = allowed != 0
	if p.Privilege, err = r.ReadUint8(); err != nil {
		return fmt.Errorf("reading privilege: %w", err)
	}
	return nil
}

// ValidPrivilege reports whether a privilege bitmask is self-consistent:
// global GM requires local GM, and the two root bits come as a pair.
func ValidPrivilege(priv uint8) bool {
	if priv&PrivGlobalGM != 0 && priv&PrivLocalGM == 0 {
		return false
	}
	if priv&PrivLocalRoot != 0 && priv&PrivGlobalRoot == 0 {
		return false
	}
	if priv&PrivGlobalRoot != 0 && priv&PrivLocalRoot == 0 {
		return false
	}
	return true
}
