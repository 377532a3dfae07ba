package metrics

import (
	"net/http"
	"time"

	"antrian-klinik/internal/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics implements queue.Recorder and realtime.Recorder.
type Metrics struct {
	registry *prometheus.Registry

	operations    *prometheus.CounterVec
	latency       *prometheus.HistogramVec
	delivered     prometheus.Counter
	dropped       prometheus.Counter
	subscriptions prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "antrian",
			Name:      "operations_total",
			Help:      "Queue operations by name and result code.",
		}, []string{"operation", "result"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "antrian",
			Name:      "operation_duration_seconds",
			Help:      "Time spent applying a queue operation.",
			Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1},
		}, []string{"operation"}),
		delivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "antrian",
			Name:      "broadcast_delivered_total",
			Help:      "Push messages queued to subscribers.",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "antrian",
			Name:      "broadcast_dropped_total",
			Help:      "Push messages dropped for slow subscribers.",
		}),
		subscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "antrian",
			Name:      "subscriptions",
			Help:      "Active queue subscriptions.",
		}),
	}
	m.registry.MustRegister(
		m.operations, m.latency, m.delivered, m.dropped, m.subscriptions,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) ObserveOperation(op models.Operation, result string, elapsed time.Duration) {
	m.operations.WithLabelValues(string(op), result).Inc()
	m.latency.WithLabelValues(string(op)).Observe(elapsed.Seconds())
}

func (m *Metrics) BroadcastDelivered(n int) { m.delivered.Add(float64(n)) }

func (m *Metrics) BroadcastDropped() { m.dropped.Inc() }

func (m *Metrics) SubscriptionsChanged(delta int) { m.subscriptions.Add(float64(delta)) }

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
