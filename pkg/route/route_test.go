package route

import (
	"net/netip"
	"testing"
)

func TestGet_RejectsNonIPv4(t *testing.T) {
	for _, s := range []string{"2001:db8::1", "fe80::1"} {
		if _, err := Get(netip.MustParseAddr(s)); err == nil {
			t.Errorf("Get(%s) error = nil, want error", s)
		}
	}
	if _, err := Get(netip.Addr{}); err == nil {
		t.Error("Get(zero) error = nil, want error")
	}
}

func TestGet_Loopback(t *testing.T) {
	// Result depends on the host, only check consistency.
	r, err := Get(netip.MustParseAddr("127.0.0.1"))
	if err != nil {
		t.Skipf("no route to loopback: %v", err)
	}
	if r.Interface == nil {
		t.Error("Get() returned route with nil interface")
	}
	if r.Source.IsValid() && !r.Source.Is4() {
		t.Errorf("Get() source %v is not IPv4", r.Source)
	}
}
