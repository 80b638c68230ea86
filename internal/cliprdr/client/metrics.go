package client

import "github.com/prometheus/client_golang/prometheus"

// Metrics tracks CLIPRDR-specific Prometheus metrics. All methods are safe
// to call on a nil receiver, so a session that is not wired to a
// registerer pays no instrumentation cost beyond a nil check.
type Metrics struct {
	FormatDataBytesTotal *prometheus.CounterVec
}

// NewMetrics creates CLIPRDR metrics and registers them against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		FormatDataBytesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cliprdr_format_data_bytes_total",
				Help: "Total FORMAT_DATA_RESPONSE bytes delivered, by direction",
			},
			[]string{"direction"}, // "local_to_remote", "remote_to_local"
		),
	}
	reg.MustRegister(m.FormatDataBytesTotal)
	return m
}

// RecordFormatDataBytes records n bytes delivered in the given direction.
func (m *Metrics) RecordFormatDataBytes(direction string, n int) {
	if m == nil {
		return
	}
	m.FormatDataBytesTotal.WithLabelValues(direction).Add(float64(n))
}

// NullMetrics returns nil, a no-op Metrics collector.
func NullMetrics() *Metrics {
	return nil
}
