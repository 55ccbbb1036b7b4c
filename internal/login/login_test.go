package login

import (
	"context"
	"encoding/binary"
	"io"
	"log/slog"
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solvane/solvane/internal/config"
	"github.com/solvane/solvane/internal/crypto"
	"github.com/solvane/solvane/internal/db"
	"github.com/solvane/solvane/internal/netaddr"
	"github.com/solvane/solvane/internal/protocol"
)

type fakeAccounts map[string]*db.Account

func (f fakeAccounts) AccountByUsername(_ context.Context, username string) (*db.Account, error) {
	if acc, ok := f[username]; ok {
		return acc, nil
	}
	return nil, db.ErrNotFound
}

// fakeBans records enddates: 0 is permanent, anything else expires.
type fakeBans struct {
	gc map[uint32]int64
	ip map[uint32]int64
}

func bannedAt(table map[uint32]int64, key uint32, now int64) bool {
	end, ok := table[key]
	if !ok {
		return false
	}
	return end == 0 || end > now
}

func (f fakeBans) IsGuildcardBanned(_ context.Context, gc uint32, now int64) (bool, error) {
	return bannedAt(f.gc, gc, now), nil
}

func (f fakeBans) IsIPBanned(_ context.Context, addr uint32, now int64) (bool, error) {
	return bannedAt(f.ip, addr, now), nil
}

type fakeShips []db.OnlineShip

func (f fakeShips) ListOnline(context.Context) ([]db.OnlineShip, error) {
	return f, nil
}

func testAccount(password string) *db.Account {
	const regtime = 1234567890
	return &db.Account{
		AccountID: 1,
		Username:  "ash",
		Password:  db.HashPassword(password, regtime),
		Regtime:   regtime,
		Privlevel: 0,
	}
}

func testServer(accounts AccountStore, bans BanStore, ships ShipList) *Server {
	return NewServer(config.DefaultLoginServer(), accounts, bans, ships,
		netaddr.Network{}, slog.New(slog.DiscardHandler))
}

func TestAuthenticate(t *testing.T) {
	now := time.Now().Unix()
	client := netip.MustParseAddr("198.51.100.7")

	tests := []struct {
		name    string
		req     Request
		bans    fakeBans
		want    int
		wantAcc bool
	}{
		{
			name:    "valid credentials",
			req:     Request{Guildcard: 42, Username: "ash", Password: "hunter2"},
			want:    LoginOK,
			wantAcc: true,
		},
		{
			name: "wrong password",
			req:  Request{Guildcard: 42, Username: "ash", Password: "letmein"},
			want: LoginBadCredential,
		},
		{
			name: "unknown user",
			req:  Request{Guildcard: 42, Username: "gary", Password: "hunter2"},
			want: LoginBadCredential,
		},
		{
			name: "guildcard permanently banned",
			req:  Request{Guildcard: 42, Username: "ash", Password: "hunter2"},
			bans: fakeBans{gc: map[uint32]int64{42: 0}},
			want: LoginBanned,
		},
		{
			name: "guildcard ban expired",
			req:  Request{Guildcard: 42, Username: "ash", Password: "hunter2"},
			bans: fakeBans{gc: map[uint32]int64{42: now - 3600}},
			want: LoginOK, wantAcc: true,
		},
		{
			name: "address banned",
			req:  Request{Guildcard: 42, Username: "ash", Password: "hunter2"},
			bans: fakeBans{ip: map[uint32]int64{netaddr.ToWire(client): now + 3600}},
			want: LoginBanned,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := testServer(fakeAccounts{"ash": testAccount("hunter2")}, tt.bans, fakeShips{})
			acc, got, err := s.Authenticate(context.Background(), tt.req, client)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantAcc, acc != nil)
		})
	}
}

func TestChooseShip(t *testing.T) {
	fleet := []db.OnlineShip{
		{ShipID: 1, Name: "Staff", GMOnly: true},
		{ShipID: 2, Name: "Vega"},
	}

	ship := ChooseShip(fleet, 0)
	require.NotNil(t, ship)
	assert.Equal(t, uint32(2), ship.ShipID, "GM-only ship skipped for plain accounts")

	ship = ChooseShip(fleet, 1)
	require.NotNil(t, ship)
	assert.Equal(t, uint32(1), ship.ShipID, "GM accounts may land on GM-only ships")

	assert.Nil(t, ChooseShip(nil, 0))
	assert.Nil(t, ChooseShip([]db.OnlineShip{{GMOnly: true}}, 0))
}

func TestPickShip_PortOffset(t *testing.T) {
	ext := netip.MustParseAddr("203.0.113.9")
	fleet := fakeShips{{
		ShipID: 1,
		Name:   "Vega",
		IP:     netaddr.ToWire(ext),
		IntIP:  netaddr.ToWire(netip.MustParseAddr("10.0.0.9")),
		Port:   12000,
	}}
	s := testServer(fakeAccounts{"ash": testAccount("hunter2")}, fakeBans{}, fleet)

	client := netip.MustParseAddr("198.51.100.7")
	addr, port, err := s.PickShip(context.Background(), testAccount("hunter2"), protocol.VariantPC, client)
	require.NoError(t, err)
	assert.Equal(t, ext, addr)
	assert.Equal(t, uint16(12000)+protocol.VariantPC.PortOffset(), port)

	// A client arriving from the ship's own external address gets the
	// internal one.
	addr, _, err = s.PickShip(context.Background(), testAccount("hunter2"), protocol.VariantPC, ext)
	require.NoError(t, err)
	assert.Equal(t, netip.MustParseAddr("10.0.0.9"), addr)

	empty := testServer(fakeAccounts{"ash": testAccount("hunter2")}, fakeBans{}, fakeShips{})
	_, _, err = empty.PickShip(context.Background(), testAccount("hunter2"), protocol.VariantPC, client)
	assert.ErrorIs(t, err, ErrNoShips)
}

func TestWriteCount(t *testing.T) {
	fleet := fakeShips{
		{ShipID: 1, Players: 12},
		{ShipID: 2, Players: 30},
	}
	s := testServer(fakeAccounts{}, fakeBans{}, fleet)

	srv, cli := net.Pipe()
	defer cli.Close()

	go func() {
		defer srv.Close()
		_ = s.WriteCount(context.Background(), srv)
	}()

	var out [4]byte
	_, err := io.ReadFull(cli, out[:])
	require.NoError(t, err)
	assert.Equal(t, uint32(42), binary.LittleEndian.Uint32(out[:]))
}

// clientSide drives the client half of a login session over a pipe.
type clientSide struct {
	t    *testing.T
	nc   net.Conn
	v    protocol.Variant
	recv crypto.Stream
	send crypto.Stream
}

func newClientSide(t *testing.T, nc net.Conn, v protocol.Variant) *clientSide {
	t.Helper()

	wbuf := make([]byte, protocol.HeaderSize+64+4+4)
	_, err := io.ReadFull(nc, wbuf)
	require.NoError(t, err)

	serverSeed, clientSeed, ok := protocol.ParseWelcome(wbuf)
	require.True(t, ok)
	require.NotEqual(t, serverSeed, clientSeed)

	return &clientSide{
		t:    t,
		nc:   nc,
		v:    v,
		recv: crypto.NewPCCipher(serverSeed),
		send: crypto.NewPCCipher(clientSeed),
	}
}

func (c *clientSide) write(pkt []byte) {
	c.t.Helper()
	c.send.Apply(pkt)
	_, err := c.nc.Write(pkt)
	require.NoError(c.t, err)
}

func (c *clientSide) read() (protocol.Header, []byte) {
	c.t.Helper()

	hdr := make([]byte, protocol.HeaderSize)
	_, err := io.ReadFull(c.nc, hdr)
	require.NoError(c.t, err)
	c.recv.Apply(hdr)

	h, err := protocol.ParseHeader(hdr, c.v)
	require.NoError(c.t, err)

	body := make([]byte, protocol.PadLength(int(h.Length), protocol.HeaderSize)-protocol.HeaderSize)
	_, err = io.ReadFull(c.nc, body)
	require.NoError(c.t, err)
	c.recv.Apply(body)
	return h, body
}

func TestHandleConn_FullSession(t *testing.T) {
	ext := netip.MustParseAddr("203.0.113.9")
	fleet := fakeShips{{
		ShipID: 1,
		Name:   "Vega",
		IP:     netaddr.ToWire(ext),
		IntIP:  netaddr.ToWire(netip.MustParseAddr("10.0.0.9")),
		Port:   12000,
	}}
	s := testServer(fakeAccounts{"ash": testAccount("hunter2")}, fakeBans{}, fleet)

	srv, cli := net.Pipe()
	defer cli.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.HandleConn(context.Background(), srv, protocol.VariantDCv2)
	}()

	c := newClientSide(t, cli, protocol.VariantDCv2)

	req := make([]byte, 128)
	n := BuildRequest(req, protocol.VariantDCv2, Request{
		Guildcard: 42,
		Username:  "ash",
		Password:  "hunter2",
	})
	c.write(req[:n])

	h, body := c.read()
	require.Equal(t, uint8(CmdLoginAck), h.Type)
	assert.Equal(t, uint32(LoginOK), binary.LittleEndian.Uint32(body[0:4]))
	assert.Equal(t, uint32(42), binary.LittleEndian.Uint32(body[4:8]))

	h, body = c.read()
	require.Equal(t, uint8(CmdRedirect), h.Type)
	addr, port, err := ParseRedirect(body)
	require.NoError(t, err)
	assert.Equal(t, netaddr.ToWire(ext), addr)
	assert.Equal(t, uint16(12000)+protocol.VariantDCv2.PortOffset(), port)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("session did not close after redirect")
	}
}

func TestHandleConn_BadPassword(t *testing.T) {
	s := testServer(fakeAccounts{"ash": testAccount("hunter2")}, fakeBans{}, fakeShips{})

	srv, cli := net.Pipe()
	defer cli.Close()
	go s.HandleConn(context.Background(), srv, protocol.VariantDCv2)

	c := newClientSide(t, cli, protocol.VariantDCv2)

	req := make([]byte, 128)
	n := BuildRequest(req, protocol.VariantDCv2, Request{
		Guildcard: 42,
		Username:  "ash",
		Password:  "wrong",
	})
	c.write(req[:n])

	h, body := c.read()
	require.Equal(t, uint8(CmdLoginAck), h.Type)
	assert.Equal(t, uint32(LoginBadCredential), binary.LittleEndian.Uint32(body[0:4]))
}

func TestRequestRoundTrip(t *testing.T) {
	buf := make([]byte, 128)
	in := Request{Tag: 0x10001, Guildcard: 777, Username: "misty", Password: "togepi"}
	n := BuildRequest(buf, protocol.VariantGC, in)

	out, err := ParseRequest(buf[protocol.HeaderSize:n])
	require.NoError(t, err)
	assert.Equal(t, in, out)

	_, err = ParseRequest(buf[protocol.HeaderSize : protocol.HeaderSize+16])
	assert.Error(t, err)
}
