package control

import "github.com/prometheus/client_golang/prometheus"

// metrics holds the Dispatcher's Prometheus instrumentation, grounded on
// this lineage's use of prometheus/client_golang alongside
// grpc-ecosystem/go-grpc-prometheus for RPC-layer counters: one counter
// vector keyed by request kind and outcome, one histogram vector keyed by
// request kind, per SPEC_FULL.md §6's metrics wiring.
type metrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

func newMetrics(registerer prometheus.Registerer) *metrics {
	m := &metrics{
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vaultd_control_requests_total",
			Help: "Total Control Requests processed by the Dispatcher, by kind and outcome.",
		}, []string{"request", "outcome"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "vaultd_control_request_duration_seconds",
			Help: "Control Request handling latency, by kind.",
		}, []string{"request"}),
	}

	if registerer != nil {
		registerer.MustRegister(m.requestsTotal, m.requestDuration)
	}

	return m
}

func (m *metrics) observe(request string, outcome string, seconds float64) {
	m.requestsTotal.WithLabelValues(request, outcome).Inc()
	m.requestDuration.WithLabelValues(request).Observe(seconds)
}

const (
	outcomeSuccess = "success"
	outcomeError   = "error"
)
