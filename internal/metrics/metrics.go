// Package metrics holds the Prometheus collectors shared by the capture
// service and the HTTP layer.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// HTTP instrumentation metrics
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scancam_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "handler"},
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scancam_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "handler", "code"},
	)

	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "scancam_http_requests_in_flight",
			Help: "Current number of HTTP requests being served",
		},
	)

	// Capture metrics
	CaptureDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scancam_capture_duration_seconds",
			Help:    "Time from acquiring the camera gate to a finished image",
			Buckets: []float64{0.05, 0.1, 0.2, 0.5, 1, 1.5, 2, 3, 5, 10},
		},
		[]string{"mode", "status"},
	)

	GateWait = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scancam_gate_wait_seconds",
			Help:    "Time spent waiting for exclusive camera access",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"mode"},
	)

	ImageBytes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scancam_image_bytes",
			Help:    "Size of encoded JPEG images",
			Buckets: prometheus.ExponentialBuckets(8<<10, 2, 10),
		},
		[]string{"mode"},
	)

	CaptureFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scancam_capture_failures_total",
			Help: "Failed captures by mode and failing stage",
		},
		[]string{"mode", "stage"},
	)
)

func init() {
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestsInFlight)
	prometheus.MustRegister(CaptureDuration)
	prometheus.MustRegister(GateWait)
	prometheus.MustRegister(ImageBytes)
	prometheus.MustRegister(CaptureFailures)
}
