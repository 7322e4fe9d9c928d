package iface

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
)

var ErrNoIPv4 = errors.New("no IPv4 address")

// Variables for mocking in tests.
var (
	interfaceByName = net.InterfaceByName
	interfaces      = net.Interfaces
	addrsOf         = func(i *net.Interface) ([]net.Addr, error) { return i.Addrs() }
)

// IPv4Addr returns the first IPv4 address configured on the named
// interface. Link-local addresses are used only if nothing else is present.
func IPv4Addr(name string) (netip.Addr, error) {
	intf, err := interfaceByName(name)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("interface %s: %w", name, err)
	}
	if intf.Flags&net.FlagUp == 0 {
		return netip.Addr{}, fmt.Errorf("interface %s is down", name)
	}
	addrs, err := addrsOf(intf)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("interface %s: %w", name, err)
	}

	var fallback netip.Addr
	for _, a := range addrs {
		ip, ok := ipv4Of(a)
		if !ok {
			continue
		}
		if ip.IsLinkLocalUnicast() {
			if !fallback.IsValid() {
				fallback = ip
			}
			continue
		}
		return ip, nil
	}
	if fallback.IsValid() {
		return fallback, nil
	}
	return netip.Addr{}, fmt.Errorf("interface %s: %w", name, ErrNoIPv4)
}

// ByAddr returns the interface that has addr configured.
func ByAddr(addr netip.Addr) (*net.Interface, error) {
	addr = addr.Unmap()
	all, err := interfaces()
	if err != nil {
		return nil, err
	}
	for i := range all {
		addrs, err := addrsOf(&all[i])
		if err != nil {
			continue
		}
		for _, a := range addrs {
			if ip, ok := ipv4Of(a); ok && ip == addr {
				return &all[i], nil
			}
		}
	}
	return nil, fmt.Errorf("no interface has address %s", addr)
}

func ipv4Of(a net.Addr) (netip.Addr, bool) {
	var ip net.IP
	switch v := a.(type) {
	case *net.IPNet:
		ip = v.IP
	case *net.IPAddr:
		ip = v.IP
	default:
		return netip.Addr{}, false
	}
	addr, ok := netip.AddrFromSlice(ip)
	if !ok {
		return netip.Addr{}, false
	}
	addr = addr.Unmap()
	return addr, addr.Is4()
}
