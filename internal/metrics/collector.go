package watchmetrics

import (
	"net/netip"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// -------------------------------------------------------------------------
// Prometheus Metric Constants
// -------------------------------------------------------------------------

const (
	namespace = "bgpwatch"
	subsystem = "watcher"
)

// Label names for watcher metrics.
const (
	labelTarget   = "target"
	labelPeerAddr = "peer_addr"
)

// -------------------------------------------------------------------------
// Collector: Prometheus watcher metrics
// -------------------------------------------------------------------------

// Collector holds the Prometheus metrics of a convergence run. They mirror
// the per-tick progress line so a run can be graphed while it is in
// progress.
type Collector struct {
	// Peers is the number of peers in the latest snapshot.
	Peers *prometheus.GaugeVec

	// Stabilized is 1 while the stabilization window is stable, else 0.
	Stabilized *prometheus.GaugeVec

	// Elapsed is the time since the firewall was opened, in seconds.
	Elapsed *prometheus.GaugeVec

	// ConvergenceTime is the elapsed time at the first stable tick. It
	// stays unset until the router has converged once.
	ConvergenceTime *prometheus.GaugeVec

	// Samples counts successful snapshots.
	Samples *prometheus.CounterVec

	// ProbeFailures counts snapshots that could not be taken.
	ProbeFailures *prometheus.CounterVec

	// PeerUpdatesSent and PeerUpdatesReceived expose the per-peer
	// cumulative UPDATE counters from the latest snapshot.
	PeerUpdatesSent     *prometheus.GaugeVec
	PeerUpdatesReceived *prometheus.GaugeVec
}

// NewCollector creates a Collector with all metrics registered against reg.
// If reg is nil, prometheus.DefaultRegisterer is used.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := newMetrics()

	reg.MustRegister(
		c.Peers,
		c.Stabilized,
		c.Elapsed,
		c.ConvergenceTime,
		c.Samples,
		c.ProbeFailures,
		c.PeerUpdatesSent,
		c.PeerUpdatesReceived,
	)

	return c
}

// newMetrics creates all metric vectors without registering them.
func newMetrics() *Collector {
	targetLabels := []string{labelTarget}
	peerLabels := []string{labelTarget, labelPeerAddr}

	return &Collector{
		Peers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "peers",
			Help:      "Number of peers in the latest counter snapshot.",
		}, targetLabels),

		Stabilized: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "stabilized",
			Help:      "1 when the last samples carried identical update counters, 0 otherwise.",
		}, targetLabels),

		Elapsed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "elapsed_seconds",
			Help:      "Seconds since BGP traffic was unblocked.",
		}, targetLabels),

		ConvergenceTime: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "convergence_seconds",
			Help:      "Elapsed seconds at the first stabilized sample.",
		}, targetLabels),

		Samples: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "samples_total",
			Help:      "Total counter snapshots taken.",
		}, targetLabels),

		ProbeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "probe_failures_total",
			Help:      "Total failed attempts to take a counter snapshot.",
		}, targetLabels),

		PeerUpdatesSent: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "peer_updates_sent",
			Help:      "Cumulative BGP UPDATE messages sent to the peer.",
		}, peerLabels),

		PeerUpdatesReceived: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "peer_updates_received",
			Help:      "Cumulative BGP UPDATE messages received from the peer.",
		}, peerLabels),
	}
}

// -------------------------------------------------------------------------
// Recording
// -------------------------------------------------------------------------

// RecordSample updates the run-level gauges after a successful sample.
func (c *Collector) RecordSample(target string, peers int, elapsed time.Duration, stabilized bool) {
	c.Samples.WithLabelValues(target).Inc()
	c.Peers.WithLabelValues(target).Set(float64(peers))
	c.Elapsed.WithLabelValues(target).Set(elapsed.Seconds())

	v := 0.0
	if stabilized {
		v = 1
	}
	c.Stabilized.WithLabelValues(target).Set(v)
}

// RecordPeer sets the per-peer UPDATE counters.
func (c *Collector) RecordPeer(target string, peer netip.Addr, sent, received uint64) {
	c.PeerUpdatesSent.WithLabelValues(target, peer.String()).Set(float64(sent))
	c.PeerUpdatesReceived.WithLabelValues(target, peer.String()).Set(float64(received))
}

// ForgetPeers drops the per-peer series of a target, so peers that vanished
// from the router do not linger with stale values.
func (c *Collector) ForgetPeers(target string) {
	c.PeerUpdatesSent.DeletePartialMatch(prometheus.Labels{labelTarget: target})
	c.PeerUpdatesReceived.DeletePartialMatch(prometheus.Labels{labelTarget: target})
}

// RecordConvergence stores the elapsed time at the first stable sample.
func (c *Collector) RecordConvergence(target string, elapsed time.Duration) {
	c.ConvergenceTime.WithLabelValues(target).Set(elapsed.Seconds())
}

// IncProbeFailures increments the failed-sample counter.
func (c *Collector) IncProbeFailures(target string) {
	c.ProbeFailures.WithLabelValues(target).Inc()
}
