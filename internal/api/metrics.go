package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	wsConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "docchat_ws_connections_active",
		Help: "Number of open socket connections",
	})

	wsRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docchat_ws_requests_total",
		Help: "Total socket requests by type",
	}, []string{"type"})

	// uploadsTotal counts uploads by result and attachment kind.
	uploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docchat_uploads_total",
		Help: "Total file uploads by result and kind",
	}, []string{"result", "kind"})

	uploadBytes = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "docchat_upload_bytes",
		Help:    "Size of accepted uploads in bytes",
		Buckets: prometheus.ExponentialBuckets(1024, 4, 10), // 1KiB to ~256MiB
	})

	cleanupPublishFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "docchat_cleanup_publish_failures_total",
		Help: "Total storage cleanup tasks that could not be published",
	})
)
