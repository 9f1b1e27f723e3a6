package syncengine

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the engine's optional prometheus instrumentation. A nil
// *Metrics is valid everywhere it's used (every method checks for a nil
// receiver) so a host application that doesn't wire a registry pays nothing.
type Metrics struct {
	messagesCreated  prometheus.Counter
	messagesApplied  prometheus.Counter
	messagesSkipped  prometheus.Counter
	decryptFailures  prometheus.Counter
	syncCycles       prometheus.Counter
	divergentMinutes prometheus.Gauge
}

// NewMetrics registers the engine's counters/gauges on reg and returns a
// Metrics ready to pass to NewEngine.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		messagesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledgersync_messages_created_total",
			Help: "Local mutations turned into outbound envelopes.",
		}),
		messagesApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledgersync_messages_applied_total",
			Help: "Remote envelopes applied to the local replica.",
		}),
		messagesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledgersync_messages_skipped_total",
			Help: "Remote envelopes skipped as already-applied duplicates.",
		}),
		decryptFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledgersync_decrypt_failures_total",
			Help: "Envelopes dropped due to AES-GCM authentication failure.",
		}),
		syncCycles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledgersync_sync_cycles_total",
			Help: "processSyncResponse invocations.",
		}),
		divergentMinutes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ledgersync_divergent_minute_bucket",
			Help: "Most recent merkle divergence minute bucket (ms since epoch) found by BuildIncrementalSyncRequest, or 0 when in sync.",
		}),
	}
	reg.MustRegister(m.messagesCreated, m.messagesApplied, m.messagesSkipped,
		m.decryptFailures, m.syncCycles, m.divergentMinutes)
	return m
}

func (m *Metrics) incCreated() {
	if m != nil {
		m.messagesCreated.Inc()
	}
}

func (m *Metrics) incApplied() {
	if m != nil {
		m.messagesApplied.Inc()
	}
}

func (m *Metrics) incSkipped() {
	if m != nil {
		m.messagesSkipped.Inc()
	}
}

func (m *Metrics) incDecryptFailure() {
	if m != nil {
		m.decryptFailures.Inc()
	}
}

func (m *Metrics) incSyncCycle() {
	if m != nil {
		m.syncCycles.Inc()
	}
}

func (m *Metrics) setDivergentMinute(ms int64) {
	if m != nil {
		m.divergentMinutes.Set(float64(ms))
	}
}
