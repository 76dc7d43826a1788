package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	Extractions    *prometheus.CounterVec
	FramesSaved    prometheus.Counter
	FramesDecoded  prometheus.Counter
	Downloads      *prometheus.CounterVec
	ActiveSessions prometheus.Gauge

	*PerformanceMetrics
}

func InitializeMetrics(registry prometheus.Registerer, constLabels prometheus.Labels) *Metrics {
	metrics := &Metrics{
		Extractions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "extractions_total",
			Help:        "Number of extraction requests by outcome",
			ConstLabels: constLabels,
		}, []string{"status"}),
		FramesSaved: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "frames_saved_total",
			Help:        "Number of JPEG frames written",
			ConstLabels: constLabels,
		}),
		FramesDecoded: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "frames_decoded_total",
			Help:        "Number of source frames decoded",
			ConstLabels: constLabels,
		}),
		Downloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "downloads_total",
			Help:        "Number of served downloads",
			ConstLabels: constLabels,
		}, []string{"type"}), // frame, preview, archive
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "active_sessions",
			Help:        "Number of sessions holding files on disk",
			ConstLabels: constLabels,
		}),
	}

	registry.MustRegister(
		metrics.Extractions,
		metrics.FramesSaved,
		metrics.FramesDecoded,
		metrics.Downloads,
		metrics.ActiveSessions,
	)

	metrics.PerformanceMetrics = InitializePerformanceMetrics(registry, constLabels)

	return metrics
}

// New registers all metrics on a fresh registry.
func New() (*Metrics, *prometheus.Registry) {
	registry := prometheus.NewRegistry()
	return InitializeMetrics(registry, nil), registry
}
