package ship

import "github.com/solvane/solvane/internal/protocol"

// AddToAny seats a client in the first default lobby with room. DCv1
// clients cannot see lobbies past 10.
func AddToAny(c *Client) error {
	b := c.Block()
	for _, l := range b.Lobbies() {
		if c.Variant() == protocol.VariantDCv1 && l.ID > 10 {
			continue
		}

		l.mu.Lock()
		if l.Type == LobbyTypeDefault && l.numClients < l.maxClients {
			if err := l.addClientLocked(c); err == nil {
				l.mu.Unlock()
				return nil
			}
		}
		l.mu.Unlock()
	}
	return ErrLobbyFull
}

// ChangeLobby moves a client into the requested room, running the admission
// gates with both rooms locked. When two rooms are involved the lower room
// id is locked first. A client with no room yet is seated in any default
// lobby instead.
func ChangeLobby(c *Client, req *Lobby) error {
	l := c.curLobby
	if l == nil {
		if err := AddToAny(c); err != nil {
			return err
		}
		nl := c.curLobby
		nl.block.sendLobbyJoin(c, nl)
		nl.block.sendLobbyAddPlayer(nl, c)
		return nil
	}

	oldID := c.ClientID

	first, second := l, req
	if l != req && req.ID < l.ID {
		first, second = req, l
	}
	first.mu.Lock()
	if l != req {
		second.mu.Lock()
	}

	destroyOld := false
	err := func() error {
		if err := req.admitLocked(c); err != nil {
			return err
		}

		if l != req {
			if err := req.addClientLocked(c); err != nil {
				return err
			}
			var err error
			destroyOld, err = l.removeClientLocked(c, oldID)
			if err != nil {
				return err
			}
		}

		// The old room learns the requester left...
		l.sendLeaveLocked(c, oldID)

		// ...the client learns where it landed...
		if req.Type == LobbyTypeDefault {
			req.block.sendLobbyJoin(c, req)
		} else {
			req.block.sendGameJoin(c, req)
			req.flags |= LobbyFlagBursting
			c.SetFlag(ClientFlagBursting)
		}

		// ...and the new room learns it arrived.
		req.sendAddPlayerLocked(c)
		return nil
	}()

	// Unlock in reverse order; destroying the old room consumes its unlock.
	if l == req {
		l.mu.Unlock()
		return err
	}
	if second == l {
		if destroyOld {
			l.destroyLocked(true)
		} else {
			second.mu.Unlock()
		}
		first.mu.Unlock()
	} else {
		second.mu.Unlock()
		if destroyOld {
			l.destroyLocked(true)
		} else {
			first.mu.Unlock()
		}
	}
	return err
}

// RemovePlayer pulls a client out of its room without seating it anywhere,
// for instance on disconnect.
func RemovePlayer(c *Client) error {
	l := c.curLobby
	if l == nil {
		return nil
	}

	l.mu.Lock()

	clientID := c.ClientID
	destroy, err := l.removeClientLocked(c, clientID)
	if err != nil {
		l.mu.Unlock()
		return err
	}

	l.sendLeaveLocked(c, clientID)
	c.curLobby = nil

	if destroy {
		l.destroyLocked(true)
	} else {
		l.mu.Unlock()
	}
	return nil
}
