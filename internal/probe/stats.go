package probe

import (
	"time"

	"github.com/tkjaer/rawping/internal/shared"
)

// Stats is the running tally of a session. Min and Max are meaningful only
// when Received > 0.
type Stats struct {
	Sent     int
	Received int
	Min      time.Duration
	Max      time.Duration
	Sum      time.Duration
}

func (s *Stats) recordSent() {
	s.Sent++
}

func (s *Stats) recordReply(rtt time.Duration) {
	if s.Received == 0 || rtt < s.Min {
		s.Min = rtt
	}
	if rtt > s.Max {
		s.Max = rtt
	}
	s.Sum += rtt
	s.Received++
}

// Summarize turns a tally into loss and RTT statistics. A run with nothing
// sent reports 100% loss.
func Summarize(s Stats) shared.Statistics {
	out := shared.Statistics{
		Sent:     s.Sent,
		Received: s.Received,
		Lost:     s.Sent - s.Received,
		LossPct:  100,
	}
	if s.Sent > 0 {
		out.LossPct = float64(s.Sent-s.Received) / float64(s.Sent) * 100
	}
	if s.Received > 0 {
		minRTT := ms(s.Min)
		avgRTT := ms(s.Sum) / float64(s.Received)
		maxRTT := ms(s.Max)
		out.MinRTT, out.AvgRTT, out.MaxRTT = &minRTT, &avgRTT, &maxRTT
	}
	return out
}

// ms converts a duration to fractional milliseconds.
func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
