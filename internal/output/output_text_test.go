package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/tkjaer/rawping/internal/shared"
)

// playback feeds a summary's lines and finish event to o.
func playback(o Output, s *shared.Summary) {
	for _, l := range s.Output {
		o.Line(s.SessionInfo, l)
	}
	o.Finish(s)
}

func sampleSummary(id uint16, dest string) *shared.Summary {
	probe := "55 bytes from " + dest + ": icmp_seq=0 ttl=64 time=1.0 ms"
	return &shared.Summary{
		SessionInfo: shared.SessionInfo{Destination: dest, DestinationIP: dest, Identifier: id},
		Probes:      []shared.ProbeResult{{Outcome: shared.OutcomeSuccess, Line: probe}},
		Output: []string{
			"PING " + dest + " (" + dest + "): 55 data bytes",
			probe,
			"--- " + dest + " ping statistics ---",
			"1 packets transmitted, 1 packets received, 0.0% packet loss",
		},
	}
}

func TestTextOutput(t *testing.T) {
	tests := []struct {
		name     string
		quiet    bool
		buffered bool
		want     []string
	}{
		{
			name: "streaming",
			want: []string{
				"PING 192.0.2.1 (192.0.2.1): 55 data bytes",
				"55 bytes from 192.0.2.1: icmp_seq=0 ttl=64 time=1.0 ms",
				"--- 192.0.2.1 ping statistics ---",
				"1 packets transmitted, 1 packets received, 0.0% packet loss",
			},
		},
		{
			name:  "quiet",
			quiet: true,
			want: []string{
				"PING 192.0.2.1 (192.0.2.1): 55 data bytes",
				"--- 192.0.2.1 ping statistics ---",
				"1 packets transmitted, 1 packets received, 0.0% packet loss",
			},
		},
		{
			name:     "buffered",
			buffered: true,
			want: []string{
				"PING 192.0.2.1 (192.0.2.1): 55 data bytes",
				"55 bytes from 192.0.2.1: icmp_seq=0 ttl=64 time=1.0 ms",
				"--- 192.0.2.1 ping statistics ---",
				"1 packets transmitted, 1 packets received, 0.0% packet loss",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			o := NewTextOutput(&buf, tt.quiet, tt.buffered)
			playback(o, sampleSummary(1, "192.0.2.1"))

			got := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("output mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestTextOutput_BufferedKeepsSessionsTogether(t *testing.T) {
	var buf bytes.Buffer
	o := NewTextOutput(&buf, false, true)
	a := sampleSummary(1, "192.0.2.1")
	b := sampleSummary(2, "192.0.2.2")

	// Interleave the two sessions' lines.
	for i := range a.Output {
		o.Line(a.SessionInfo, a.Output[i])
		o.Line(b.SessionInfo, b.Output[i])
	}
	o.Finish(b)
	o.Finish(a)

	got := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	want := append(append([]string{}, b.Output...), a.Output...)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}
}
