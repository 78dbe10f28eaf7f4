// Package metrics provides Prometheus instrumentation for the core
// pipeline, grounded on the teacher-pack's metrics collector
// (Siddhant-K-code-distill/pkg/metrics/metrics.go) and the call-site
// locations of the teacher's own worker metrics (pkg/worker/metrics.go):
// queue depth, batch size, batch latency, and endpoint load/unload
// counts.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every Prometheus collector the core exposes.
type Metrics struct {
	QueueDepth      *prometheus.GaugeVec
	BatchesTotal    *prometheus.CounterVec
	BatchSize       *prometheus.HistogramVec
	BatchLatency    *prometheus.HistogramVec
	RequestsTotal   *prometheus.CounterVec
	RequestErrors   *prometheus.CounterVec
	EndpointLoads   *prometheus.CounterVec
	EndpointUnloads *prometheus.CounterVec
	ActiveEndpoints prometheus.Gauge

	registry *prometheus.Registry
}

// New creates and registers every collector.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector())
	reg.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	m := &Metrics{
		QueueDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "amdinfer_queue_depth",
				Help: "Current depth of an endpoint's ingress queue.",
			},
			[]string{"endpoint"},
		),
		BatchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "amdinfer_batches_total",
				Help: "Total batches assembled by an endpoint's batchers.",
			},
			[]string{"endpoint"},
		),
		BatchSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "amdinfer_batch_size",
				Help:    "Distribution of assembled batch sizes.",
				Buckets: []float64{1, 2, 4, 8, 16, 32, 64, 128},
			},
			[]string{"endpoint"},
		),
		BatchLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "amdinfer_batch_latency_seconds",
				Help:    "Time spent inside a worker's doRun for one batch.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"endpoint"},
		),
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "amdinfer_requests_total",
				Help: "Total inference requests submitted per endpoint.",
			},
			[]string{"endpoint"},
		),
		RequestErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "amdinfer_request_errors_total",
				Help: "Total inference requests that completed with an error response.",
			},
			[]string{"endpoint", "kind"},
		),
		EndpointLoads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "amdinfer_endpoint_loads_total",
				Help: "Total workerLoad calls per worker name.",
			},
			[]string{"worker"},
		),
		EndpointUnloads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "amdinfer_endpoint_unloads_total",
				Help: "Total workerUnload calls per endpoint name.",
			},
			[]string{"worker"},
		),
		ActiveEndpoints: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "amdinfer_active_endpoints",
				Help: "Number of workerLoad calls not yet matched by a workerUnload; a shared endpoint counts once per load.",
			},
		),
		registry: reg,
	}

	reg.MustRegister(
		m.QueueDepth, m.BatchesTotal, m.BatchSize, m.BatchLatency,
		m.RequestsTotal, m.RequestErrors, m.EndpointLoads, m.EndpointUnloads,
		m.ActiveEndpoints,
	)
	return m
}

// Handler serves the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordBatch records one assembled-and-executed batch for endpoint.
func (m *Metrics) RecordBatch(endpoint string, size int, latency time.Duration) {
	m.BatchesTotal.WithLabelValues(endpoint).Inc()
	m.BatchSize.WithLabelValues(endpoint).Observe(float64(size))
	m.BatchLatency.WithLabelValues(endpoint).Observe(latency.Seconds())
}

// RecordRequest records one submitted request. Error responses are
// recorded separately, by RecordRequestError.
func (m *Metrics) RecordRequest(endpoint string) {
	m.RequestsTotal.WithLabelValues(endpoint).Inc()
}

// RecordRequestError records a failed request's error kind.
func (m *Metrics) RecordRequestError(endpoint, kind string) {
	m.RequestErrors.WithLabelValues(endpoint, kind).Inc()
}

// RecordLoad/RecordUnload track workerLoad/workerUnload call volume and
// the number of loads not yet matched by an unload. RecordLoad is keyed
// by worker name, RecordUnload by endpoint name.
func (m *Metrics) RecordLoad(worker string) {
	m.EndpointLoads.WithLabelValues(worker).Inc()
	m.ActiveEndpoints.Inc()
}

func (m *Metrics) RecordUnload(worker string) {
	m.EndpointUnloads.WithLabelValues(worker).Inc()
	m.ActiveEndpoints.Dec()
}

// SetQueueDepth publishes an endpoint's current ingress queue depth.
func (m *Metrics) SetQueueDepth(endpoint string, depth int) {
	m.QueueDepth.WithLabelValues(endpoint).Set(float64(depth))
}
