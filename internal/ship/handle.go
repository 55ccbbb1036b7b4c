package ship

import "github.com/solvane/solvane/internal/script"

// scriptHandle exposes a client to event hooks without handing them the
// struct itself.
type scriptHandle struct {
	c *Client
}

// HandleOf wraps a client for use with script hooks.
func HandleOf(c *Client) script.Handle { return scriptHandle{c: c} }

func (h scriptHandle) Guildcard() uint32 { return h.c.Guildcard }
func (h scriptHandle) Version() int      { return int(h.c.Variant()) }
func (h scriptHandle) Privilege() uint8  { return h.c.Privilege }
func (h scriptHandle) Addr() string      { return h.c.Addr() }
func (h scriptHandle) ClientID() int     { return h.c.ClientID }

func (h scriptHandle) IsOnBlock() bool {
	return h.c.Block() != nil && !h.c.HasFlag(ClientFlagTypeShip)
}

func (h scriptHandle) Send(pkt []byte) error { return h.c.Send(pkt) }
func (h scriptHandle) Disconnect()           { h.c.Disconnect() }
