package output

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"github.com/tkjaer/rawping/internal/shared"
)

func TestPrometheusOutput_Probe(t *testing.T) {
	p := NewPrometheusOutput("test")
	info := shared.SessionInfo{Destination: "example.test", DestinationIP: "192.0.2.1"}

	p.Probe(info, shared.ProbeResult{Outcome: shared.OutcomeSuccess, RTT: 2.5})
	p.Probe(info, shared.ProbeResult{Outcome: shared.OutcomeSuccess, RTT: 7.5})
	p.Probe(info, shared.ProbeResult{Outcome: shared.OutcomeTimeout})
	p.Probe(info, shared.ProbeResult{Outcome: shared.OutcomeSendError})

	require.Equal(t, 3.0, testutil.ToFloat64(p.sent.WithLabelValues("example.test", "192.0.2.1")))
	require.Equal(t, 2.0, testutil.ToFloat64(p.received.WithLabelValues("example.test", "192.0.2.1")))
	require.Equal(t, 1.0, testutil.ToFloat64(p.outcomes.WithLabelValues("example.test", "192.0.2.1", "timeout")))
	require.Equal(t, 1.0, testutil.ToFloat64(p.outcomes.WithLabelValues("example.test", "192.0.2.1", "send_error")))
	require.Equal(t, 1, testutil.CollectAndCount(p.rtt), "one RTT series per destination")
}

func TestPrometheusOutput_Finish(t *testing.T) {
	tests := []struct {
		name       string
		summary    *shared.Summary
		wantLoss   float64
		wantStatus float64
	}{
		{
			name: "partial loss",
			summary: &shared.Summary{
				SessionInfo: shared.SessionInfo{Destination: "192.0.2.1", DestinationIP: "192.0.2.1"},
				Statistics:  shared.Statistics{Sent: 4, Received: 3, Lost: 1, LossPct: 25},
				Status:      shared.StatusOK,
			},
			wantLoss:   0.25,
			wantStatus: 0,
		},
		{
			name: "all lost",
			summary: &shared.Summary{
				SessionInfo: shared.SessionInfo{Destination: "192.0.2.1", DestinationIP: "192.0.2.1"},
				Statistics:  shared.Statistics{Sent: 2, Lost: 2, LossPct: 100},
				Status:      shared.StatusFailed,
			},
			wantLoss:   1,
			wantStatus: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPrometheusOutput("test")
			p.Finish(tt.summary)
			require.Equal(t, tt.wantLoss, testutil.ToFloat64(p.loss.WithLabelValues("192.0.2.1", "192.0.2.1")))
			require.Equal(t, tt.wantStatus, testutil.ToFloat64(p.status.WithLabelValues("192.0.2.1", "192.0.2.1")))
		})
	}
}

func TestPrometheusOutput_Registry(t *testing.T) {
	p := NewPrometheusOutput("v1.2.3")
	p.Probe(shared.SessionInfo{Destination: "a", DestinationIP: "192.0.2.1"}, shared.ProbeResult{Outcome: shared.OutcomeTimeout})

	families, err := p.Registry().Gather()
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	require.True(t, names["rawping_build_info"])
	require.True(t, names["rawping_packets_sent_total"])
	require.True(t, names["rawping_probes_total"])
	require.NoError(t, p.Close())
}
