package probe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/netip"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/tkjaer/rawping/internal/packet"
	"github.com/tkjaer/rawping/internal/resolve"
	"github.com/tkjaer/rawping/internal/shared"
	"github.com/tkjaer/rawping/pkg/route"
)

const (
	DefaultSize     = 55
	DefaultTimeout  = 1 * time.Second
	DefaultInterval = 1 * time.Second
)

// State is the lifecycle position of a Session.
type State int

const (
	StateCreated State = iota
	StateResolved
	StateRunning
	StateFinished
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateResolved:
		return "resolved"
	case StateRunning:
		return "running"
	case StateFinished:
		return "finished"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Resolver maps a destination string to an IPv4 address.
type Resolver interface {
	Resolve(ctx context.Context, destination string) (netip.Addr, error)
}

// Observer receives a session's event stream. Implementations shared by
// concurrent sessions must be safe for concurrent use.
type Observer interface {
	// Line is called for every human-readable output line, in order.
	Line(info shared.SessionInfo, line string)
	// Probe is called once per completed probe.
	Probe(info shared.SessionInfo, r shared.ProbeResult)
	// Finish is called exactly once with the final summary.
	Finish(s *shared.Summary)
}

type nopObserver struct{}

func (nopObserver) Line(shared.SessionInfo, string)              {}
func (nopObserver) Probe(shared.SessionInfo, shared.ProbeResult) {}
func (nopObserver) Finish(*shared.Summary)                       {}

var defaultResolver = resolve.New(resolve.DefaultCacheTTL)

// Config holds the parameters of one session. Use DefaultConfig as a
// starting point.
type Config struct {
	Count        uint          // Probes to send, 0 = until deadline or cancellation
	Deadline     time.Duration // Stop once cumulative RTT reaches this, 0 = none
	Size         int           // Payload bytes
	Timeout      time.Duration // Per-probe reply timeout
	Interval     time.Duration // Target spacing between probe starts
	Bind         netip.Addr    // Optional local source address
	Mode         Mode
	ID           uint16 // ICMP identifier, 0 = random
	SkipChecksum bool   // Accept replies with a bad ICMP checksum
	RunID        string // Copied into SessionInfo

	Logger      *slog.Logger
	Clock       clockwork.Clock
	Opener      Opener
	Resolver    Resolver
	Observer    Observer
	RouteLookup func(netip.Addr) (route.Route, error)
}

// DefaultConfig returns the stock ping parameters.
func DefaultConfig() Config {
	return Config{
		Size:     DefaultSize,
		Timeout:  DefaultTimeout,
		Interval: DefaultInterval,
		Mode:     ModeRaw,
	}
}

func (c *Config) validate() error {
	switch {
	case c.Size < 0 || c.Size > packet.MaxPayload:
		return fmt.Errorf("packet size must be between 0 and %d", packet.MaxPayload)
	case c.Timeout < 0:
		return errors.New("timeout must not be negative")
	case c.Interval < 0:
		return errors.New("interval must not be negative")
	case c.Deadline < 0:
		return errors.New("deadline must not be negative")
	case c.Mode != ModeRaw && c.Mode != ModeDatagram:
		return fmt.Errorf("unknown socket mode %v", c.Mode)
	case c.Bind.IsValid() && !c.Bind.Unmap().Is4():
		return fmt.Errorf("bind address %v is not IPv4", c.Bind)
	}
	return nil
}

func (c *Config) setDefaults() {
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	c.Bind = c.Bind.Unmap()
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.Opener == nil {
		c.Opener = SocketOpener{}
	}
	if c.Resolver == nil {
		c.Resolver = defaultResolver
	}
	if c.Observer == nil {
		c.Observer = nopObserver{}
	}
	if c.RouteLookup == nil {
		c.RouteLookup = route.Get
	}
}

// Session owns one destination's ping run.
type Session struct {
	cfg         Config
	log         *slog.Logger
	clock       clockwork.Clock
	destination string
	addr        netip.Addr
	id          uint16
	seq         uint16
	iterations  uint
	state       State
	resolveErr  error

	info    shared.SessionInfo
	stats   Stats
	results []shared.ProbeResult
	output  []string
	started time.Time
}

// NewSession validates cfg and resolves destination. A resolution failure
// does not return an error: the session moves straight to StateFinished and
// Run reports it in the summary.
func NewSession(ctx context.Context, destination string, cfg Config) (*Session, error) {
	if destination == "" {
		return nil, errors.New("destination is required")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.setDefaults()

	s := &Session{
		cfg:         cfg,
		log:         cfg.Logger.With("destination", destination),
		clock:       cfg.Clock,
		destination: destination,
		id:          cfg.ID,
		state:       StateCreated,
	}
	if s.id == 0 {
		s.id = rand.N(uint16(0xffff)) + 1
	}
	s.started = s.clock.Now()
	s.info = shared.SessionInfo{
		RunID:       cfg.RunID,
		Destination: destination,
		Identifier:  s.id,
		Mode:        cfg.Mode.String(),
		PacketSize:  cfg.Size,
		TimeoutMs:   cfg.Timeout.Milliseconds(),
	}

	addr, err := cfg.Resolver.Resolve(ctx, destination)
	if err != nil {
		s.log.Debug("Resolution failed", "error", err)
		s.resolveErr = err
		s.state = StateFinished
		s.emit(fmt.Sprintf("PING: Unknown host: %s (%s)", destination, unknownHostDetail(err)))
		return s, nil
	}
	s.addr = addr
	s.info.DestinationIP = addr.String()
	s.state = StateResolved
	return s, nil
}

func unknownHostDetail(err error) string {
	var uhe *resolve.UnknownHostError
	if errors.As(err, &uhe) {
		return uhe.Detail()
	}
	return err.Error()
}

// State returns the current lifecycle state.
func (s *Session) State() State { return s.state }

// Identifier returns the ICMP identifier used by this session.
func (s *Session) Identifier() uint16 { return s.id }

// Addr returns the resolved destination address.
func (s *Session) Addr() netip.Addr { return s.addr }

// Stats returns a copy of the running tally.
func (s *Session) Stats() Stats { return s.stats }

// Run probes the destination until the count or deadline is reached or ctx
// is cancelled, and always returns a summary. The error is non-nil only for
// terminal failures: unknown host, socket permission or socket open errors.
func (s *Session) Run(ctx context.Context) (*shared.Summary, error) {
	if s.resolveErr != nil {
		return s.finish(s.resolveErr, nil), s.resolveErr
	}
	if s.state != StateResolved {
		return nil, fmt.Errorf("session is %v, cannot run", s.state)
	}

	s.state = StateRunning
	s.describeSource()
	s.emit(fmt.Sprintf("PING %s (%s): %d data bytes", s.destination, s.addr, s.cfg.Size))
	s.log.Debug("Starting probe loop",
		"addr", s.addr,
		"id", s.id,
		"mode", s.cfg.Mode,
		"count", s.cfg.Count,
		"deadline", s.cfg.Deadline,
	)

	var terminal, cancelled error
	for {
		if ctx.Err() != nil {
			cancelled = context.Cause(ctx)
			break
		}

		start := s.clock.Now()
		res, err := s.probe()
		if err != nil {
			terminal = err
			s.emit(err.Error())
			break
		}
		s.results = append(s.results, res)
		s.cfg.Observer.Probe(s.info, res)

		s.seq++ // wraps to 0 after 65535
		s.iterations++
		if s.cfg.Count > 0 && s.iterations >= s.cfg.Count {
			break
		}
		if s.cfg.Deadline > 0 && s.stats.Sum >= s.cfg.Deadline {
			break
		}

		if wait := pause(s.cfg.Interval, s.clock.Since(start)); wait > 0 {
			select {
			case <-ctx.Done():
			case <-s.clock.After(wait):
			}
		}
	}

	return s.finish(terminal, cancelled), terminal
}

// pause returns how long to sleep so that probes start roughly every
// interval.
func pause(interval, spent time.Duration) time.Duration {
	return max(interval-spent, 0)
}

func (s *Session) describeSource() {
	if s.cfg.Bind.IsValid() {
		s.info.Source = s.cfg.Bind.String()
		return
	}
	r, err := s.cfg.RouteLookup(s.addr)
	if err != nil {
		s.log.Debug("Route lookup failed", "error", err)
		return
	}
	if r.Source.IsValid() {
		s.info.Source = r.Source.String()
	}
	if r.Interface != nil {
		s.info.Interface = r.Interface.Name
	}
}

// probe runs one send/receive cycle on a fresh socket. Only socket-open
// failures are returned as errors.
func (s *Session) probe() (shared.ProbeResult, error) {
	seq := s.seq
	conn, err := s.cfg.Opener.Open(s.cfg.Mode, s.cfg.Bind)
	if err != nil {
		return shared.ProbeResult{}, err
	}
	defer conn.Close()

	pkt, err := packet.BuildEchoRequest(s.id, seq, s.cfg.Size)
	if err != nil {
		return shared.ProbeResult{}, err
	}

	res := shared.ProbeResult{Seq: seq, SentAt: s.clock.Now()}
	if err := conn.WriteTo(pkt, s.addr); err != nil {
		s.log.Debug("Send failed", "seq", seq, "error", err)
		res.Outcome = shared.OutcomeSendError
		res.Error = err.Error()
		res.Line = fmt.Sprintf("General failure (%v)", err)
		s.emit(res.Line)
		return res, nil
	}
	s.stats.recordSent()

	reply, err := s.awaitReply(conn, seq)
	if err != nil {
		s.log.Debug("Receive failed", "seq", seq, "error", err)
		res.Error = err.Error()
	}
	if reply == nil {
		res.Outcome = shared.OutcomeTimeout
		res.Line = "Request timed out."
		s.emit(res.Line)
		return res, nil
	}

	rtt := reply.ReceivedAt.Sub(res.SentAt)
	s.stats.recordReply(rtt)

	res.Outcome = shared.OutcomeSuccess
	res.RTT = ms(rtt)
	res.Reply = reply
	res.Line = fmt.Sprintf("%d bytes from %s: icmp_seq=%d ttl=%d time=%.1f ms",
		reply.PayloadSize, s.fromInfo(reply.IP.Src), reply.ICMP.Seq, reply.IP.TTL, res.RTT)
	s.emit(res.Line)
	return res, nil
}

func (s *Session) fromInfo(src netip.Addr) string {
	if src.String() == s.destination {
		return s.destination
	}
	return fmt.Sprintf("%s (%s)", s.destination, src)
}

// awaitReply waits up to the probe timeout for the reply to seq. Packets
// that do not match are dropped and the wait resumes with whatever time is
// left. A nil reply with a nil error means the timeout expired.
func (s *Session) awaitReply(conn Conn, seq uint16) (*packet.Reply, error) {
	buf := make([]byte, maxRecv)
	deadline := s.clock.Now().Add(s.cfg.Timeout)

	for {
		remaining := deadline.Sub(s.clock.Now())
		if remaining <= 0 {
			return nil, nil
		}
		n, err := conn.ReadReply(buf, remaining)
		if errors.Is(err, errReadTimeout) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		receivedAt := s.clock.Now()

		reply, err := packet.DecodeReply(buf[:n])
		if err != nil {
			s.log.Debug("Dropping undecodable packet", "error", err)
			continue
		}
		if !s.matches(conn, reply, buf[packet.IPv4HeaderLen:n], seq) {
			continue
		}
		reply.ReceivedAt = receivedAt
		return reply, nil
	}
}

func (s *Session) matches(conn Conn, reply *packet.Reply, icmp []byte, seq uint16) bool {
	switch {
	case !reply.ICMP.IsEchoReply():
		s.log.Debug("Dropping non echo reply", "type", reply.ICMP.Type, "code", reply.ICMP.Code)
		return false
	case !conn.KernelFiltered() && reply.ICMP.ID != s.id:
		s.log.Debug("Dropping reply with foreign identifier", "id", reply.ICMP.ID, "want", s.id)
		return false
	case reply.ICMP.Seq != seq:
		s.log.Debug("Dropping reply with stale sequence", "seq", reply.ICMP.Seq, "want", seq)
		return false
	case !s.cfg.SkipChecksum && !packet.Valid(icmp):
		s.log.Debug("Dropping reply with bad checksum", "seq", reply.ICMP.Seq, "checksum", reply.ICMP.Checksum)
		return false
	}
	return true
}

func (s *Session) emit(line string) {
	s.output = append(s.output, line)
	s.cfg.Observer.Line(s.info, line)
}

// finish emits the closing statistics and builds the summary.
func (s *Session) finish(terminal, cancelled error) *shared.Summary {
	stats := Summarize(s.stats)
	if s.resolveErr == nil {
		for _, l := range stats.Lines(s.destination) {
			s.emit(l)
		}
	}
	if cancelled != nil {
		s.emit(fmt.Sprintf("(terminated: %v)", cancelled))
	}
	s.state = StateFinished

	sum := &shared.Summary{
		SessionInfo: s.info,
		Statistics:  stats,
		Probes:      s.results,
		Output:      s.output,
		Status:      shared.StatusFailed,
		Interrupted: cancelled != nil,
		Started:     s.started,
		Finished:    s.clock.Now(),
	}
	if terminal == nil && stats.Received > 0 {
		sum.Status = shared.StatusOK
	}
	if terminal != nil {
		sum.Error = terminal.Error()
	}
	s.log.Debug("Session finished", "sent", stats.Sent, "received", stats.Received, "status", sum.Status)
	s.cfg.Observer.Finish(sum)
	return sum
}

// Ping runs a short session against destination. Zero Count, Size and
// Interval take the stock values (3 probes, DefaultSize, DefaultInterval);
// use NewSession for an empty payload or back-to-back probes.
func Ping(ctx context.Context, destination string, cfg Config) (*shared.Summary, error) {
	if cfg.Count == 0 {
		cfg.Count = 3
	}
	if cfg.Size == 0 {
		cfg.Size = DefaultSize
	}
	if cfg.Interval == 0 {
		cfg.Interval = DefaultInterval
	}
	s, err := NewSession(ctx, destination, cfg)
	if err != nil {
		return nil, err
	}
	return s.Run(ctx)
}
