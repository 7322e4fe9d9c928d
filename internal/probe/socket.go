package probe

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"os"
	"time"

	"github.com/tkjaer/rawping/internal/packet"
	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
)

// Mode selects the kind of ICMP socket used for probing.
type Mode int

const (
	// ModeRaw uses a raw ICMP socket and requires elevated privilege.
	ModeRaw Mode = iota
	// ModeDatagram uses an unprivileged ICMP datagram socket where the
	// platform allows it (net.ipv4.ping_group_range on Linux).
	ModeDatagram
)

func (m Mode) String() string {
	switch m {
	case ModeRaw:
		return "raw"
	case ModeDatagram:
		return "datagram"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

func (m Mode) network() string {
	if m == ModeDatagram {
		return "udp4"
	}
	return "ip4:icmp"
}

// maxRecv holds the largest IPv4 datagram, so a reply to the largest
// accepted payload is never cut short.
const maxRecv = 0xffff

var (
	ErrPermissionDenied = errors.New("permission denied")
	errReadTimeout      = errors.New("read timeout")
	errShortBuffer      = errors.New("reply larger than read buffer")
)

// SocketError wraps any socket-open failure other than a permission problem.
type SocketError struct {
	Op  string
	Err error
}

func (e *SocketError) Error() string { return fmt.Sprintf("socket %s: %v", e.Op, e.Err) }

func (e *SocketError) Unwrap() error { return e.Err }

// Conn is one ICMP socket, used for a single probe.
type Conn interface {
	// WriteTo sends an ICMP message to dst.
	WriteTo(b []byte, dst netip.Addr) error
	// ReadReply waits at most timeout for a packet and copies it into buf
	// as IPv4 header + ICMP message. It returns errReadTimeout when the wait
	// expires.
	ReadReply(buf []byte, timeout time.Duration) (int, error)
	// KernelFiltered reports whether the kernel only delivers replies to
	// this socket's own requests, rewriting the echo identifier.
	KernelFiltered() bool
	Close() error
}

// Opener creates probe sockets.
type Opener interface {
	Open(mode Mode, bind netip.Addr) (Conn, error)
}

// SocketOpener opens real ICMP sockets.
type SocketOpener struct{}

func (SocketOpener) Open(mode Mode, bind netip.Addr) (Conn, error) {
	addr := "0.0.0.0"
	if bind.IsValid() {
		addr = bind.String()
	}
	c, err := icmp.ListenPacket(mode.network(), addr)
	if err != nil {
		return nil, classifyOpenError(mode, err)
	}

	p := c.IPv4PacketConn()
	if err := p.SetControlMessage(ipv4.FlagTTL|ipv4.FlagDst, true); err != nil {
		// Not fatal: replies are still matched, the TTL just reads as 0.
		slog.Debug("Failed to enable IPv4 control messages", "mode", mode, "error", err)
	}
	return &icmpConn{c: c, p: p, mode: mode, bind: bind, rbuf: make([]byte, maxRecv)}, nil
}

// classifyOpenError maps a permission failure to ErrPermissionDenied with
// guidance for the socket mode in use.
func classifyOpenError(mode Mode, err error) error {
	if errors.Is(err, os.ErrPermission) {
		hint := "raw ICMP sockets require root or CAP_NET_RAW (try --unprivileged)"
		if mode == ModeDatagram {
			hint = "datagram ICMP sockets require a group id within net.ipv4.ping_group_range"
		}
		return fmt.Errorf("%w: %s: %v", ErrPermissionDenied, hint, err)
	}
	return &SocketError{Op: "open", Err: err}
}

type icmpConn struct {
	c    *icmp.PacketConn
	p    *ipv4.PacketConn
	mode Mode
	bind netip.Addr
	rbuf []byte
}

func (c *icmpConn) WriteTo(b []byte, dst netip.Addr) error {
	var addr net.Addr = &net.IPAddr{IP: dst.AsSlice()}
	if c.mode == ModeDatagram {
		addr = &net.UDPAddr{IP: dst.AsSlice()}
	}
	_, err := c.c.WriteTo(b, addr)
	return err
}

func (c *icmpConn) ReadReply(buf []byte, timeout time.Duration) (int, error) {
	if err := c.p.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return 0, err
	}
	n, cm, peer, err := c.p.ReadFrom(c.rbuf)
	if err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return 0, errReadTimeout
		}
		return 0, err
	}

	src := addrFromNet(peer)
	dst := c.bind
	var ttl uint8
	if cm != nil {
		ttl = uint8(cm.TTL)
		if a, ok := netip.AddrFromSlice(cm.Dst); ok {
			dst = a.Unmap()
		}
	}
	raw, err := packet.WrapIPv4(src, dst, ttl, c.rbuf[:n])
	if err != nil {
		return 0, err
	}
	if len(raw) > len(buf) {
		return 0, fmt.Errorf("%w: %d > %d", errShortBuffer, len(raw), len(buf))
	}
	return copy(buf, raw), nil
}

func (c *icmpConn) KernelFiltered() bool { return c.mode == ModeDatagram }

func (c *icmpConn) Close() error { return c.c.Close() }

func addrFromNet(a net.Addr) netip.Addr {
	var ip net.IP
	switch v := a.(type) {
	case *net.IPAddr:
		ip = v.IP
	case *net.UDPAddr:
		ip = v.IP
	}
	addr, _ := netip.AddrFromSlice(ip)
	return addr.Unmap()
}
