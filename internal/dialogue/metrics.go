package dialogue

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricGestures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wavebuddy_gestures_detected_total",
		Help: "Gestures recognised on detection ticks",
	}, []string{"gesture"})

	metricExchanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wavebuddy_exchanges_total",
		Help: "Completed exchanges by source and outcome",
	}, []string{"source", "outcome"})

	metricDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wavebuddy_triggers_dropped_total",
		Help: "Triggers ignored because an exchange was in flight",
	}, []string{"source"})

	metricEcho = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wavebuddy_self_echo_discards_total",
		Help: "Transcripts discarded as the assistant's own speech",
	})

	metricChatLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "wavebuddy_chat_latency_ms",
		Help:    "Time from prompt to chat reply",
		Buckets: prometheus.ExponentialBuckets(100, 1.6, 10),
	})

	metricSpeakDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "wavebuddy_speak_duration_ms",
		Help:    "Time from speech start to completion signal",
		Buckets: prometheus.ExponentialBuckets(250, 1.6, 10),
	})

	metricStateTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wavebuddy_state_transitions_total",
		Help: "Dialogue controller state transitions",
	}, []string{"from", "to"})
)
