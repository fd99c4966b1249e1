package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wavebuddy_frames_read_total",
		Help: "Camera frames read by the pipeline",
	})

	metricEstimate = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "wavebuddy_pose_estimate_ms",
		Help:    "Pose model latency per frame",
		Buckets: prometheus.ExponentialBuckets(5, 1.6, 12),
	})

	metricActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "wavebuddy_pipeline_active",
		Help: "1 while the pipeline runs at the active frame rate",
	})
)
