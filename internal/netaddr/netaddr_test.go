package netaddr

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSelectShipAddr(t *testing.T) {
	n := Network{
		LocalAddr: netip.MustParseAddr("192.168.1.10"),
		Netmask:   netip.MustParseAddr("255.255.255.0"),
		Override:  netip.MustParseAddr("203.0.113.5"),
	}

	external := netip.MustParseAddr("198.51.100.20")
	internal := netip.MustParseAddr("10.0.0.7")

	tests := []struct {
		name     string
		client   netip.Addr
		external netip.Addr
		want     netip.Addr
	}{
		{
			name:     "client behind ship NAT",
			client:   external,
			external: external,
			want:     internal,
		},
		{
			name:     "client on gate LAN, ship behind same public addr",
			client:   netip.MustParseAddr("192.168.1.55"),
			external: n.Override,
			want:     internal,
		},
		{
			name:     "client elsewhere",
			client:   netip.MustParseAddr("8.8.8.8"),
			external: external,
			want:     external,
		},
		{
			name:     "client off-LAN even though ship shares our public addr",
			client:   netip.MustParseAddr("192.168.2.55"),
			external: n.Override,
			want:     n.Override,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := n.SelectShipAddr(tt.client, tt.external, internal)
			assert.Equal(t, tt.want, got)

			// The rule is a pure function of its inputs.
			assert.Equal(t, got, n.SelectShipAddr(tt.client, tt.external, internal))
		})
	}
}

func TestWireRoundTrip(t *testing.T) {
	a := netip.MustParseAddr("192.168.1.10")
	assert.Equal(t, uint32(0xC0A8010A), ToWire(a))
	assert.Equal(t, a, FromWire(0xC0A8010A))
}
