// Package metrics declares the process-wide Prometheus collectors for the
// voice pipeline. Exposed on a bare /metrics handler only — no JSON
// stats/admin surface is built on top of these (that surface is out of
// scope; see SPEC_FULL.md §1).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CallsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gateway_calls_active",
		Help: "Currently active call sessions",
	})

	CallsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_calls_total",
		Help: "Total calls processed",
	})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gateway_stage_duration_seconds",
		Help:    "Per-stage latency (asr_batch, llm, tts)",
		Buckets: []float64{0.05, 0.1, 0.2, 0.3, 0.5, 0.8, 1.0, 2.0, 5.0},
	}, []string{"stage"})

	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_errors_total",
		Help: "Error counts by stage and error kind",
	}, []string{"stage", "kind"})

	EgressFramesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_egress_frames_total",
		Help: "Total 320-byte frames written to PBX sockets",
	})

	EgressFramesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_egress_frames_dropped_total",
		Help: "Frames discarded without being sent, by reason (gentle, hard, send_error)",
	}, []string{"reason"})

	BargeInTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_barge_in_total",
		Help: "Barge-in interruptions by kind",
	}, []string{"kind"}) // "gentle" | "hard"

	ASRReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_asr_reconnects_total",
		Help: "ASR socket reconnect attempts",
	})

	LLMFirstTokenSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gateway_llm_first_token_seconds",
		Help:    "Latency from LLM request to first token",
		Buckets: []float64{0.1, 0.2, 0.3, 0.5, 0.8, 1.0, 1.5, 2.0, 3.0},
	})

	CallsBilled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_calls_billed_total",
		Help: "Calls for which billCall succeeded",
	})

	CreditsCharged = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_credits_charged_total",
		Help: "Cumulative credits charged across call time and messaging",
	})

	MessagesDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_messages_dispatched_total",
		Help: "Messaging dispatch attempts by outcome",
	}, []string{"outcome"}) // "sent" | "failed"
)
