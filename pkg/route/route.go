package route

import (
	"fmt"
	"net"
	"net/netip"
)

// Route is the kernel's choice of path towards an IPv4 destination.
type Route struct {
	Destination netip.Addr
	Gateway     netip.Addr // Invalid when the destination is on-link
	Source      netip.Addr
	Interface   *net.Interface
}

// Get returns the route the kernel would use to reach ip.
func Get(ip netip.Addr) (Route, error) {
	ip = ip.Unmap()
	if !ip.Is4() {
		return Route{}, fmt.Errorf("route lookup for %v: not an IPv4 address", ip)
	}
	return get(ip)
}
