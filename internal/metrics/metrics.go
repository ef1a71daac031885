package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Pipeline Prometheus metrics.
var (
	PagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pdftranscript",
			Name:      "pages_total",
			Help:      "Pages processed, by extraction method",
		},
		[]string{"method"},
	)

	RunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pdftranscript",
			Name:      "runs_total",
			Help:      "Extraction runs, by outcome",
		},
		[]string{"outcome"},
	)

	OCRRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pdftranscript",
			Name:      "ocr_requests_total",
			Help:      "OCR provider calls, by provider and status",
		},
		[]string{"provider", "status"},
	)

	OCRRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pdftranscript",
			Name:      "ocr_request_duration_seconds",
			Help:      "OCR provider call duration in seconds",
			Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"provider"},
	)

	RasterPayloadBytes = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "pdftranscript",
			Name:      "raster_payload_bytes",
			Help:      "Base64 payload size of images submitted to OCR",
			Buckets:   prometheus.ExponentialBuckets(64*1024, 2, 8),
		},
	)

	ReductionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pdftranscript",
			Name:      "size_reductions_total",
			Help:      "Oversized renders, by which candidate was kept",
		},
		[]string{"kept"}, // "reduced" / "original" / "error"
	)
)

var registerOnce sync.Once

// Register registers the pipeline metrics with the default registry. Safe to call more than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			PagesTotal,
			RunsTotal,
			OCRRequestsTotal,
			OCRRequestDuration,
			RasterPayloadBytes,
			ReductionsTotal,
		)
	})
}
