//go:build !linux

package route

import (
	"fmt"
	"net"
	"net/netip"

	"github.com/tkjaer/rawping/pkg/iface"
)

// get asks the kernel for a source address by connecting a UDP socket,
// which selects a route without sending anything.
func get(ip netip.Addr) (Route, error) {
	c, err := net.DialUDP("udp4", nil, net.UDPAddrFromAddrPort(netip.AddrPortFrom(ip, 9)))
	if err != nil {
		return Route{}, fmt.Errorf("route lookup for %s: %w", ip, err)
	}
	defer c.Close()

	src := c.LocalAddr().(*net.UDPAddr).AddrPort().Addr().Unmap()
	intf, err := iface.ByAddr(src)
	if err != nil {
		return Route{}, fmt.Errorf("route lookup for %s: %w", ip, err)
	}
	return Route{Destination: ip, Source: src, Interface: intf}, nil
}
