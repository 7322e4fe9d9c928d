package resolve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// DefaultCacheTTL is how long a successful name lookup is reused.
const DefaultCacheTTL = 5 * time.Minute

var ErrUnknownHost = errors.New("unknown host")

// UnknownHostError is returned when a destination cannot be resolved.
type UnknownHostError struct {
	Host string
	Err  error
}

func (e *UnknownHostError) Error() string {
	return fmt.Sprintf("unknown host %s: %v", e.Host, e.Err)
}

func (e *UnknownHostError) Unwrap() error { return e.Err }

func (e *UnknownHostError) Is(target error) bool { return target == ErrUnknownHost }

// Detail returns the lookup failure reason without the host name.
func (e *UnknownHostError) Detail() string {
	var dnsErr *net.DNSError
	if errors.As(e.Err, &dnsErr) {
		return dnsErr.Err
	}
	if e.Err == nil {
		return "no address"
	}
	return e.Err.Error()
}

// lookupIPv4 performs the name lookup. Variable for mocking in tests.
var lookupIPv4 = func(ctx context.Context, host string) ([]netip.Addr, error) {
	return net.DefaultResolver.LookupNetIP(ctx, "ip4", host)
}

// Resolver turns destinations into IPv4 addresses, caching name lookups.
type Resolver struct {
	cache *ttlcache.Cache[string, netip.Addr]
}

// New returns a Resolver whose cache entries live for ttl.
func New(ttl time.Duration) *Resolver {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Resolver{
		cache: ttlcache.New(
			ttlcache.WithTTL[string, netip.Addr](ttl),
			ttlcache.WithDisableTouchOnHit[string, netip.Addr](),
		),
	}
}

// Resolve returns destination itself when it is an IPv4 literal, otherwise
// the first IPv4 address the name resolves to.
func (r *Resolver) Resolve(ctx context.Context, destination string) (netip.Addr, error) {
	if addr, ok := parseIPv4Literal(destination); ok {
		return addr, nil
	}

	if item := r.cache.Get(destination); item != nil {
		slog.Debug("Resolver cache hit", "host", destination, "addr", item.Value())
		return item.Value(), nil
	}

	addrs, err := lookupIPv4(ctx, destination)
	if err != nil {
		return netip.Addr{}, &UnknownHostError{Host: destination, Err: err}
	}
	for _, a := range addrs {
		if a = a.Unmap(); a.Is4() {
			r.cache.Set(destination, a, ttlcache.DefaultTTL)
			slog.Debug("Resolved host", "host", destination, "addr", a)
			return a, nil
		}
	}
	return netip.Addr{}, &UnknownHostError{Host: destination, Err: errors.New("no IPv4 address")}
}

// IsIPv4Literal reports whether s is four dot-separated integers in [0,255].
func IsIPv4Literal(s string) bool {
	_, ok := parseIPv4Literal(s)
	return ok
}

func parseIPv4Literal(s string) (netip.Addr, bool) {
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return netip.Addr{}, false
	}
	var b [4]byte
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || n > 255 {
			return netip.Addr{}, false
		}
		b[i] = byte(n)
	}
	return netip.AddrFrom4(b), true
}
