package shared

import (
	"fmt"
	"time"

	"github.com/tkjaer/rawping/internal/packet"
)

// Outcome is the result class of a single probe.
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeTimeout   Outcome = "timeout"
	OutcomeSendError Outcome = "send_error"
)

// Status codes reported in Summary.Status.
const (
	StatusOK     = 0
	StatusFailed = 1
)

// SessionInfo describes a session at the moment it starts probing.
type SessionInfo struct {
	RunID         string `json:"run_id,omitempty"` // Shared by all sessions of one invocation
	Destination   string `json:"destination"`
	DestinationIP string `json:"destination_ip"`
	Source        string `json:"source,omitempty"`    // Bind address or route source
	Interface     string `json:"interface,omitempty"` // Outgoing interface, if known
	Identifier    uint16 `json:"identifier"`
	Mode          string `json:"mode"`        // raw or datagram
	PacketSize    int    `json:"packet_size"` // Payload bytes
	TimeoutMs     int64  `json:"timeout_ms"`
}

// ProbeResult is the immutable outcome of one probe.
type ProbeResult struct {
	Seq     uint16        `json:"seq"`
	Outcome Outcome       `json:"outcome"`
	RTT     float64       `json:"rtt_ms,omitempty"` // Milliseconds, success only
	Reply   *packet.Reply `json:"reply,omitempty"`
	Error   string        `json:"error,omitempty"`
	SentAt  time.Time     `json:"sent_at"`
	Line    string        `json:"-"` // Human-readable rendering
}

// Statistics is the aggregated view of a run. RTT fields are nil when no
// reply was received.
type Statistics struct {
	Sent     int      `json:"sent"`
	Received int      `json:"received"`
	Lost     int      `json:"lost"`
	LossPct  float64  `json:"loss_pct"`
	MinRTT   *float64 `json:"min_rtt_ms,omitempty"`
	AvgRTT   *float64 `json:"avg_rtt_ms,omitempty"`
	MaxRTT   *float64 `json:"max_rtt_ms,omitempty"`
}

// Lines renders the closing statistics block for destination.
func (s Statistics) Lines(destination string) []string {
	lines := []string{
		fmt.Sprintf("--- %s ping statistics ---", destination),
		fmt.Sprintf("%d packets transmitted, %d packets received, %0.1f%% packet loss", s.Sent, s.Received, s.LossPct),
	}
	if s.MinRTT != nil && s.AvgRTT != nil && s.MaxRTT != nil {
		lines = append(lines, fmt.Sprintf("round-trip (ms)  min/avg/max = %0.3f/%0.3f/%0.3f", *s.MinRTT, *s.AvgRTT, *s.MaxRTT))
	}
	return lines
}

// Summary is the final record of a session. It is produced on every
// terminal path, including resolution failure and cancellation.
type Summary struct {
	SessionInfo
	Statistics

	Probes      []ProbeResult `json:"probes"`
	Output      []string      `json:"output"`
	Status      int           `json:"status"`
	Error       string        `json:"error,omitempty"`
	Interrupted bool          `json:"interrupted,omitempty"`
	Started     time.Time     `json:"started"`
	Finished    time.Time     `json:"finished"`
}
