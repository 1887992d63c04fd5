// Argus - Multi-Camera Risk Detection and Alerting
// Copyright 2026 D. Almeida (argus-vision)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/argus-vision/argus

// Package alerting turns raw per-frame detections into debounced alerts.
//
// The engine keeps one sustain window per (camera, risk type) pair. A window
// opens when a detection at or above the rule's confidence threshold appears,
// extends while every subsequent frame keeps qualifying, and closes the
// moment a frame does not. An alert fires when a window has been open for
// the rule's minimum duration and the pair is not in cooldown; firing starts
// the cooldown and resets the window, so an ongoing event re-alerts at most
// once per cooldown period.
//
// DETERMINISM: the engine is driven entirely by frame timestamps, never the
// wall clock, so replaying recorded footage yields identical alerts.
package alerting

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/argus-vision/argus/internal/config"
	"github.com/argus-vision/argus/internal/logging"
	"github.com/argus-vision/argus/internal/metrics"
	"github.com/argus-vision/argus/internal/models"
)

type stateKey struct {
	cameraID string
	riskType models.RiskType
}

// window is one open sustain window plus the pair's cooldown clock.
type window struct {
	open  bool
	since time.Time

	// Confidence aggregates over the window. Cooldown suppression still
	// updates these: the strongest observation is never lost.
	maxConf  float64
	sumConf  float64
	lastConf float64
	samples  int

	cooldownUntil time.Time

	// suppressed marks that this window already counted one cooldown
	// suppression, so a long window is not counted once per frame.
	suppressed bool
}

func (w *window) observe(conf float64) {
	if conf > w.maxConf {
		w.maxConf = conf
	}
	w.sumConf += conf
	w.lastConf = conf
	w.samples++
}

func (w *window) aggregate(mode string) float64 {
	switch mode {
	case "mean":
		if w.samples == 0 {
			return 0
		}
		return w.sumConf / float64(w.samples)
	case "last":
		return w.lastConf
	default:
		return w.maxConf
	}
}

// Engine evaluates detections against the rules table. Safe for concurrent
// use by every camera session and by historical runs (historical runs use
// their own Engine instance so replay state never mixes with live state).
type Engine struct {
	rules config.AlertingConfig

	mu        sync.Mutex
	windows   map[stateKey]*window
	overrides map[string]map[models.RiskType]float64
}

// NewEngine creates an engine over the configured rules table.
func NewEngine(rules config.AlertingConfig) *Engine {
	return &Engine{
		rules:     rules,
		windows:   make(map[stateKey]*window),
		overrides: make(map[string]map[models.RiskType]float64),
	}
}

// SetOverrides installs per-camera confidence threshold overrides, as
// requested on monitoring start. Passing nil clears them.
func (e *Engine) SetOverrides(cameraID string, overrides map[models.RiskType]float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(overrides) == 0 {
		delete(e.overrides, cameraID)
		return
	}
	copied := make(map[models.RiskType]float64, len(overrides))
	for k, v := range overrides {
		copied[k] = v
	}
	e.overrides[cameraID] = copied
}

// ResetCamera drops all sustain windows for a camera. Called when its
// session stops: a window must never span two sessions.
func (e *Engine) ResetCamera(cameraID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for key := range e.windows {
		if key.cameraID == cameraID {
			delete(e.windows, key)
		}
	}
	delete(e.overrides, cameraID)
}

// Process evaluates one frame's detections and returns any alerts that
// fired. Risk types are fully independent: a weapon window neither extends
// nor resets a fire window.
func (e *Engine) Process(frame models.Frame, detections []models.Detection) []models.Alert {
	// Best confidence per type in this frame. Several boxes of one type in
	// one frame count as a single observation at the strongest confidence.
	best := make(map[models.RiskType]float64, len(detections))
	for _, d := range detections {
		if d.Confidence > best[d.Type] {
			best[d.Type] = d.Confidence
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	var alerts []models.Alert
	for name, rule := range e.rules.Rules {
		riskType := models.RiskType(name)
		conf, seen := best[riskType]
		threshold := e.thresholdLocked(frame.CameraID, riskType, rule)

		key := stateKey{cameraID: frame.CameraID, riskType: riskType}
		w := e.windows[key]
		if w == nil {
			w = &window{}
			e.windows[key] = w
		}

		if !seen || conf < threshold {
			// Sustain requires every frame to qualify; one miss closes
			// the window. The cooldown clock survives the close.
			w.open = false
			continue
		}

		if !w.open {
			*w = window{open: true, since: frame.Timestamp, cooldownUntil: w.cooldownUntil}
		}
		w.observe(conf)

		if frame.Timestamp.Sub(w.since) < rule.MinDuration {
			continue
		}

		if frame.Timestamp.Before(w.cooldownUntil) {
			if !w.suppressed {
				w.suppressed = true
				metrics.AlertsSuppressed.WithLabelValues(string(riskType)).Inc()
				logging.Debug().
					Str("camera_id", frame.CameraID).
					Str("type", string(riskType)).
					Time("cooldown_until", w.cooldownUntil).
					Msg("sustained detection suppressed by cooldown")
			}
			continue
		}

		alert := models.Alert{
			ID:          uuid.NewString(),
			CameraID:    frame.CameraID,
			Type:        riskType,
			Confidence:  w.aggregate(rule.Aggregation),
			Priority:    models.Priority(rule.Priority),
			CreatedAt:   frame.Timestamp,
			WindowStart: w.since,
		}
		alerts = append(alerts, alert)
		metrics.AlertsFired.WithLabelValues(string(riskType), rule.Priority).Inc()
		logging.Info().
			Str("alert_id", alert.ID).
			Str("camera_id", alert.CameraID).
			Str("type", string(alert.Type)).
			Float64("confidence", alert.Confidence).
			Str("priority", string(alert.Priority)).
			Msg("alert fired")

		// Firing starts the cooldown and closes the window. An event that
		// keeps going must sustain a fresh window past the cooldown to
		// re-alert.
		cooldownUntil := frame.Timestamp.Add(rule.Cooldown)
		*w = window{cooldownUntil: cooldownUntil}
	}
	return alerts
}

// thresholdLocked resolves the effective confidence threshold. Caller must
// hold e.mu.
func (e *Engine) thresholdLocked(cameraID string, riskType models.RiskType, rule config.RuleConfig) float64 {
	if per, ok := e.overrides[cameraID]; ok {
		if t, ok := per[riskType]; ok {
			return t
		}
	}
	return rule.ConfidenceThreshold
}
