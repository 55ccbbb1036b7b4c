package netaddr

import (
	"encoding/binary"
	"fmt"
	"net"
	"net/netip"
)

// Network describes the server's position in the network, used to answer
// "which address do I hand this client" for ship redirects. Override is the
// configured public address of the host (what external peers see); LocalAddr
// and Netmask describe the LAN the daemon actually sits on.
type Network struct {
	LocalAddr netip.Addr
	Netmask   netip.Addr
	Override  netip.Addr
}

// SelectShipAddr picks the address a client should connect to for a ship
// with the given external and internal addresses:
//
//   - the client connects from the ship's external address: both are behind
//     the same NAT, hand out the internal address;
//   - the ship's external address is our own public address and the client
//     is on our LAN: the ship is on this LAN too, hand out the internal
//     address;
//   - otherwise the external address.
func (n Network) SelectShipAddr(client, external, internal netip.Addr) netip.Addr {
	if client == external {
		return internal
	}
	if n.Override.IsValid() && external == n.Override &&
		client.Is4() && n.LocalAddr.Is4() && n.Netmask.Is4() &&
		masked(client, n.Netmask) == masked(n.LocalAddr, n.Netmask) {
		return internal
	}
	return external
}

func masked(addr, mask netip.Addr) netip.Addr {
	a := addr.As4()
	m := mask.As4()
	for i := range a {
		a[i] &= m[i]
	}
	return netip.AddrFrom4(a)
}

// ToWire converts an IPv4 address to its 32-bit network-order wire form.
func ToWire(a netip.Addr) uint32 {
	b := a.As4()
	return binary.BigEndian.Uint32(b[:])
}

// FromWire converts a 32-bit network-order value back to an address.
func FromWire(v uint32) netip.Addr {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return netip.AddrFrom4(b)
}

// Discover finds the host's first non-loopback IPv4 address and its netmask.
func Discover() (addr, mask netip.Addr, err error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return netip.Addr{}, netip.Addr{}, fmt.Errorf("listing interfaces: %w", err)
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipnet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			ip4 := ipnet.IP.To4()
			if ip4 == nil {
				continue
			}

			addr = netip.AddrFrom4([4]byte(ip4))
			m := ipnet.Mask
			if len(m) == 16 {
				m = m[12:]
			}
			mask = netip.AddrFrom4([4]byte(m))
			return addr, mask, nil
		}
	}

	return netip.Addr{}, netip.Addr{}, fmt.Errorf("no usable IPv4 interface found")
}
