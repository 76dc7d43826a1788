package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type PerformanceMetrics struct {
	StageDuration   *prometheus.HistogramVec
	VideoSizeBytes  *prometheus.HistogramVec
	ArchiveBytes    prometheus.Histogram
	ThumbnailCached *prometheus.CounterVec
}

func InitializePerformanceMetrics(registry prometheus.Registerer, constLabels prometheus.Labels) *PerformanceMetrics {
	metrics := &PerformanceMetrics{
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "stage_duration_seconds",
			Help:        "Pipeline stage duration in seconds",
			ConstLabels: constLabels,
			Buckets:     []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"stage"}), // ingest, extract, archive, upload

		VideoSizeBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "video_size_bytes",
			Help:        "Uploaded video size in bytes",
			ConstLabels: constLabels,
			Buckets:     []float64{1048576, 10485760, 104857600, 1073741824}, // 1MB to 1GB
		}, []string{"format"}),

		ArchiveBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "archive_size_bytes",
			Help:        "Frame archive size in bytes",
			ConstLabels: constLabels,
			Buckets:     []float64{102400, 1048576, 10485760, 104857600, 1073741824}, // 100KB to 1GB
		}),

		ThumbnailCached: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "thumbnails_served_total",
			Help:        "Preview thumbnails served, by cache outcome",
			ConstLabels: constLabels,
		}, []string{"cache"}), // hit, miss
	}

	registry.MustRegister(
		metrics.StageDuration,
		metrics.VideoSizeBytes,
		metrics.ArchiveBytes,
		metrics.ThumbnailCached,
	)

	return metrics
}

// TimeStage measures the execution time of one pipeline stage
func TimeStage[T any](fn func() (T, error), stage string, metrics *PerformanceMetrics) (T, error) {
	start := time.Now()
	result, err := fn()
	duration := time.Since(start).Seconds()

	if metrics != nil {
		metrics.StageDuration.WithLabelValues(stage).Observe(duration)
	}

	return result, err
}
