package output

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/tkjaer/rawping/internal/shared"
)

// PrometheusOutput keeps per-destination probe metrics in its own registry.
type PrometheusOutput struct {
	registry *prometheus.Registry

	sent     *prometheus.CounterVec
	received *prometheus.CounterVec
	outcomes *prometheus.CounterVec
	rtt      *prometheus.HistogramVec
	loss     *prometheus.GaugeVec
	status   *prometheus.GaugeVec
}

// NewPrometheusOutput registers the rawping metrics, plus a build info
// gauge for version, on a fresh registry.
func NewPrometheusOutput(version string) *PrometheusOutput {
	labels := []string{"destination", "destination_ip"}
	p := &PrometheusOutput{
		registry: prometheus.NewRegistry(),
		sent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rawping_packets_sent_total",
				Help: "Echo requests handed to the kernel",
			},
			labels,
		),
		received: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rawping_packets_received_total",
				Help: "Matching echo replies received",
			},
			labels,
		),
		outcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rawping_probes_total",
				Help: "Completed probes by outcome (success, timeout, send_error)",
			},
			append(labels, "outcome"),
		),
		rtt: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rawping_rtt_seconds",
				Help:    "Round-trip time of successful probes",
				Buckets: prometheus.ExponentialBuckets(0.0001, 2, 16),
			},
			labels,
		),
		loss: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "rawping_packet_loss_ratio",
				Help: "Loss ratio of the last finished session (0 to 1)",
			},
			labels,
		),
		status: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "rawping_session_status",
				Help: "Exit status of the last finished session (0 = replies received)",
			},
			labels,
		),
	}

	buildInfo := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rawping_build_info",
			Help: "Build information of rawping",
		},
		[]string{"version"},
	)
	buildInfo.WithLabelValues(version).Set(1)

	p.registry.MustRegister(p.sent, p.received, p.outcomes, p.rtt, p.loss, p.status, buildInfo)
	return p
}

// Registry returns the registry to expose, e.g. through promhttp.HandlerFor.
func (p *PrometheusOutput) Registry() *prometheus.Registry { return p.registry }

func (p *PrometheusOutput) Line(shared.SessionInfo, string) {
	// No-op, metrics come from structured events
}

func (p *PrometheusOutput) Probe(info shared.SessionInfo, r shared.ProbeResult) {
	dst, ip := info.Destination, info.DestinationIP
	p.outcomes.WithLabelValues(dst, ip, string(r.Outcome)).Inc()
	if r.Outcome == shared.OutcomeSendError {
		return
	}
	p.sent.WithLabelValues(dst, ip).Inc()
	if r.Outcome == shared.OutcomeSuccess {
		p.received.WithLabelValues(dst, ip).Inc()
		p.rtt.WithLabelValues(dst, ip).Observe(r.RTT / 1000)
	}
}

func (p *PrometheusOutput) Finish(s *shared.Summary) {
	dst, ip := s.Destination, s.DestinationIP
	p.loss.WithLabelValues(dst, ip).Set(s.LossPct / 100)
	p.status.WithLabelValues(dst, ip).Set(float64(s.Status))
}

func (p *PrometheusOutput) Close() error { return nil }
