// Argus - Multi-Camera Risk Detection and Alerting
// Copyright 2026 D. Almeida (argus-vision)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/argus-vision/argus

// Package metrics provides Prometheus instrumentation for the pipeline:
// session lifecycle, admission control, frame sampling, detector calls,
// alerting and clip recording. Collectors are package-level promauto values
// served on /metrics by the control-surface HTTP server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Session metrics
	SessionsByState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "argus_sessions",
			Help: "Number of camera sessions per lifecycle state",
		},
		[]string{"state"},
	)

	SessionTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "argus_session_transitions_total",
			Help: "Total session state transitions",
		},
		[]string{"from", "to"},
	)

	AdmissionQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "argus_admission_queue_depth",
			Help: "Start requests waiting for a free stream slot",
		},
	)

	SessionReconnects = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "argus_session_reconnects_total",
			Help: "Total reconnect attempts per camera",
		},
		[]string{"camera_id"},
	)

	// Resolver metrics
	ResolveAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "argus_resolve_attempts_total",
			Help: "Stream source resolution attempts by outcome",
		},
		[]string{"outcome"}, // "ok", "error", "timeout"
	)

	ResolveCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "argus_resolve_cache_hits_total",
			Help: "Resolutions served from the TTL cache",
		},
	)

	// Sampler metrics
	FramesSampled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "argus_frames_sampled_total",
			Help: "Frames delivered to the detection stage",
		},
		[]string{"camera_id"},
	)

	FramesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "argus_frames_dropped_total",
			Help: "Frames discarded to hold the configured analysis rate",
		},
		[]string{"camera_id"},
	)

	// Detector metrics
	DetectorCallDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "argus_detector_call_duration_seconds",
			Help:    "Latency of one detector invocation",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
	)

	DetectorErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "argus_detector_errors_total",
			Help: "Detector invocations that failed (swallowed per-frame)",
		},
	)

	DetectionQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "argus_detection_queue_depth",
			Help: "Pending requests in the shared detection worker pool",
		},
	)

	// Alerting metrics
	AlertsFired = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "argus_alerts_fired_total",
			Help: "Alerts fired after sustain and cooldown gating",
		},
		[]string{"type", "priority"},
	)

	AlertsSuppressed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "argus_alerts_suppressed_total",
			Help: "Qualifying detection runs suppressed by an active cooldown",
		},
		[]string{"type"},
	)

	// Recorder metrics
	ClipsWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "argus_clips_written_total",
			Help: "Clips persisted by trigger kind",
		},
		[]string{"kind"}, // "alert", "continuous"
	)

	ClipWriteErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "argus_clip_write_errors_total",
			Help: "Clip persistence failures (alerts still fire without a clip)",
		},
	)

	// Historical analysis metrics
	HistoricalRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "argus_historical_runs_total",
			Help: "Historical analysis runs by outcome",
		},
		[]string{"outcome"}, // "completed", "failed", "canceled"
	)

	// Broadcast metrics
	EventsBroadcast = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "argus_events_broadcast_total",
			Help: "Events pushed to the websocket broadcast surface",
		},
		[]string{"type"}, // "alert", "session_state"
	)

	WebsocketClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "argus_websocket_clients",
			Help: "Connected websocket clients",
		},
	)
)
