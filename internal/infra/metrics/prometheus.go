package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the server's HTTP collectors on a private registry.
type Metrics struct {
	Registry *prometheus.Registry

	HTTPRequests *prometheus.CounterVec
	HTTPLatency  *prometheus.HistogramVec
}

func New(namespace string) *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		HTTPLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}

	m.Registry.MustRegister(
		m.HTTPRequests,
		m.HTTPLatency,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) ObserveHTTP(route, method string, status int, elapsed time.Duration) {
	m.HTTPRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.HTTPLatency.WithLabelValues(route, method).Observe(elapsed.Seconds())
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// SyncMetrics counts the cart cache's traffic in a client process. It
// implements cartsync.Recorder.
type SyncMetrics struct {
	Registry *prometheus.Registry

	SyncRequests  *prometheus.CounterVec
	SyncCoalesced prometheus.Counter
	SyncRollbacks prometheus.Counter
}

func NewSync(namespace string) *SyncMetrics {
	m := &SyncMetrics{
		Registry: prometheus.NewRegistry(),
		SyncRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cart_sync_requests_total",
			Help:      "Cart sync requests sent to the backend by operation and outcome.",
		}, []string{"op", "outcome"}),
		SyncCoalesced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cart_sync_coalesced_total",
			Help:      "Local cart changes folded into an in-flight request.",
		}),
		SyncRollbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cart_sync_rollbacks_total",
			Help:      "Optimistic cart changes reverted after a failed request.",
		}),
	}

	m.Registry.MustRegister(m.SyncRequests, m.SyncCoalesced, m.SyncRollbacks)
	return m
}

func (m *SyncMetrics) SyncRequest(op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.SyncRequests.WithLabelValues(op, outcome).Inc()
}

func (m *SyncMetrics) Coalesced() {
	m.SyncCoalesced.Inc()
}

func (m *SyncMetrics) RolledBack() {
	m.SyncRollbacks.Inc()
}

// WriteTextfile dumps the counters in the text exposition format, for
// pickup by node_exporter's textfile collector.
func (m *SyncMetrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.Registry)
}
