// Package observability provides Prometheus metrics for the application.
package observability

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics aggregates all metric groups behind one registry.
type Metrics struct {
	Detection *DetectionMetrics
	HTTP      *HTTPMetrics

	registry *prometheus.Registry
}

// NewMetrics creates the registry with Go runtime collectors plus the
// application metric groups.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	detection, err := NewDetectionMetrics(registry)
	if err != nil {
		return nil, err
	}
	httpMetrics, err := NewHTTPMetrics(registry)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		Detection: detection,
		HTTP:      httpMetrics,
		registry:  registry,
	}, nil
}

// Registry exposes the underlying registry for the /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// DetectionMetrics contains all Prometheus metrics related to model inference.
type DetectionMetrics struct {
	InferenceDuration *prometheus.HistogramVec
	DetectionsTotal   *prometheus.CounterVec
	InferenceErrors   prometheus.Counter
	ModelLoadedGauge  prometheus.Gauge
}

// NewDetectionMetrics creates and registers the inference metric group.
func NewDetectionMetrics(registry *prometheus.Registry) (*DetectionMetrics, error) {
	m := &DetectionMetrics{
		InferenceDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "treedetect_inference_duration_seconds",
				Help:    "Time taken to run one model inference",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 10), // 10ms to ~10s
			},
			[]string{"model_version"},
		),
		DetectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "treedetect_detections_total",
				Help: "Total number of detections partitioned by label.",
			},
			[]string{"label"},
		),
		InferenceErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "treedetect_inference_errors_total",
				Help: "Total number of failed inference attempts.",
			},
		),
		ModelLoadedGauge: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "treedetect_model_loaded",
				Help: "Whether the detection model is loaded (1) or not (0).",
			},
		),
	}

	for _, c := range []prometheus.Collector{
		m.InferenceDuration, m.DetectionsTotal, m.InferenceErrors, m.ModelLoadedGauge,
	} {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register detection metrics: %w", err)
		}
	}
	return m, nil
}

// HTTPMetrics contains metrics for the ML backend's HTTP surface.
type HTTPMetrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// NewHTTPMetrics creates and registers the HTTP metric group.
func NewHTTPMetrics(registry *prometheus.Registry) (*HTTPMetrics, error) {
	m := &HTTPMetrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "treedetect_http_requests_total",
				Help: "HTTP requests partitioned by method, path and status code.",
			},
			[]string{"method", "path", "code"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "treedetect_http_request_duration_seconds",
				Help:    "HTTP request latency partitioned by path.",
				Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
			},
			[]string{"path"},
		),
	}

	for _, c := range []prometheus.Collector{m.RequestsTotal, m.RequestDuration} {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register HTTP metrics: %w", err)
		}
	}
	return m, nil
}
