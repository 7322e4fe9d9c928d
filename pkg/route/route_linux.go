//go:build linux

package route

import (
	"errors"
	"fmt"
	"net"
	"net/netip"

	"github.com/jsimonetti/rtnetlink"
	"golang.org/x/sys/unix"
)

// fetchRouteMessages asks the kernel (RTM_GETROUTE) for the route to ip.
// Variable for mocking in tests.
var fetchRouteMessages = func(ip netip.Addr) ([]rtnetlink.RouteMessage, error) {
	c, err := rtnetlink.Dial(nil)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	return c.Route.Get(&rtnetlink.RouteMessage{
		Family:     unix.AF_INET,
		Table:      unix.RT_TABLE_MAIN,
		Attributes: rtnetlink.RouteAttributes{Dst: ip.AsSlice()},
	})
}

// interfaceByIndex is net.InterfaceByIndex. Variable for mocking in tests.
var interfaceByIndex = net.InterfaceByIndex

// routeFromMessages converts the kernel answer for ip into a Route.
func routeFromMessages(ip netip.Addr, msgs []rtnetlink.RouteMessage) (Route, error) {
	switch len(msgs) {
	case 0:
		return Route{}, errors.New("kernel returned no route")
	case 1:
	default:
		return Route{}, fmt.Errorf("kernel returned %d routes", len(msgs))
	}
	m := msgs[0]
	if m.Family != unix.AF_INET {
		return Route{}, fmt.Errorf("unexpected address family %d", m.Family)
	}

	dst, ok := netip.AddrFromSlice(m.Attributes.Dst)
	if !ok || dst.Unmap() != ip {
		return Route{}, fmt.Errorf("route destination %v does not match %s", m.Attributes.Dst, ip)
	}
	src, ok := netip.AddrFromSlice(m.Attributes.Src)
	if !ok {
		return Route{}, fmt.Errorf("failed to parse source address: %v", m.Attributes.Src)
	}
	gw, _ := netip.AddrFromSlice(m.Attributes.Gateway)

	intf, err := interfaceByIndex(int(m.Attributes.OutIface))
	if err != nil {
		return Route{}, fmt.Errorf("failed to get interface by index %d: %w", m.Attributes.OutIface, err)
	}
	if intf.Flags&net.FlagUp == 0 {
		return Route{}, fmt.Errorf("interface %s is down", intf.Name)
	}
	return Route{
		Destination: ip,
		Gateway:     gw.Unmap(),
		Source:      src.Unmap(),
		Interface:   intf,
	}, nil
}

func get(ip netip.Addr) (Route, error) {
	msgs, err := fetchRouteMessages(ip)
	if err != nil {
		return Route{}, fmt.Errorf("route lookup for %s: %w", ip, err)
	}
	r, err := routeFromMessages(ip, msgs)
	if err != nil {
		return Route{}, fmt.Errorf("route lookup for %s: %w", ip, err)
	}
	return r, nil
}
