package chat

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// chatTurnsTotal counts chat turns by outcome.
	chatTurnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docchat_chat_turns_total",
		Help: "Total chat turns by result",
	}, []string{"result"})

	streamDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "docchat_stream_duration_seconds",
		Help:    "Time from stream start to the last chunk, by provider",
		Buckets: prometheus.ExponentialBuckets(0.25, 2, 10), // 0.25s to ~2m
	}, []string{"provider"})

	streamChunks = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "docchat_stream_chunks",
		Help:    "Number of chunks relayed per response",
		Buckets: []float64{1, 5, 10, 50, 100, 500, 1000},
	})

	titleFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "docchat_title_failures_total",
		Help: "Total title generations that failed",
	})

	activeConversations = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "docchat_active_conversations",
		Help: "Conversations with a chat turn running or waiting",
	})

	attachmentLoadFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docchat_attachment_load_failures_total",
		Help: "Total attachments that could not be loaded from storage, by kind",
	}, []string{"kind"})
)

const (
	resultOk         = "ok"
	resultRejected   = "rejected"
	resultModelError = "model_error"
	resultStoreError = "store_error"
	resultDisconnect = "disconnected"
)
