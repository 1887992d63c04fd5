// Argus - Multi-Camera Risk Detection and Alerting
// Copyright 2026 D. Almeida (argus-vision)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/argus-vision/argus

package models

import "time"

// RiskType identifies the class of risk a detection or alert refers to.
type RiskType string

const (
	RiskViolence RiskType = "violence"
	RiskWeapon   RiskType = "weapon"
	RiskCrowd    RiskType = "crowd"
	RiskFire     RiskType = "fire"
	RiskTraffic  RiskType = "traffic"
)

// KnownRiskTypes lists the risk types Argus ships default alert rules for.
// The rules table is configuration; additional types can be added there
// without code changes.
func KnownRiskTypes() []RiskType {
	return []RiskType{RiskViolence, RiskWeapon, RiskCrowd, RiskFire, RiskTraffic}
}

// Priority is the operator-facing severity of an alert, derived from the
// rules table, never computed ad hoc.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// BoundingBox locates a detection within a frame, in pixel coordinates.
type BoundingBox struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Frame is one sampled video frame. Data holds the JPEG-encoded image so the
// rest of the pipeline stays independent of the capture backend.
type Frame struct {
	CameraID  string
	Seq       int64
	Timestamp time.Time
	Width     int
	Height    int
	Data      []byte
}

// Detection is a single typed finding on a single frame. Detections are
// ephemeral: they are never persisted individually, only aggregated into
// alerts or a historical timeline.
type Detection struct {
	CameraID   string      `json:"camera_id"`
	Timestamp  time.Time   `json:"timestamp"`
	Type       RiskType    `json:"type"`
	Confidence float64     `json:"confidence"`
	Box        BoundingBox `json:"box"`
}

// Alert is a debounced, operator-visible event. Immutable after creation;
// retention is the storage collaborator's concern.
type Alert struct {
	ID         string    `json:"id"`
	CameraID   string    `json:"camera_id"`
	Type       RiskType  `json:"type"`
	Confidence float64   `json:"confidence"`
	Priority   Priority  `json:"priority"`
	CreatedAt  time.Time `json:"created_at"`

	// WindowStart is the beginning of the sustaining window that fired
	// this alert.
	WindowStart time.Time `json:"window_start"`

	// ClipID references the evidence clip, empty when recording failed or
	// is disabled. A missing clip never suppresses the alert.
	ClipID string `json:"clip_id,omitempty"`
}

// Clip is a persisted video segment. TriggerAlertID is empty for segments
// produced by continuous recording.
type Clip struct {
	ID             string    `json:"id"`
	CameraID       string    `json:"camera_id"`
	Start          time.Time `json:"start"`
	End            time.Time `json:"end"`
	TriggerAlertID string    `json:"trigger_alert_id,omitempty"`
	StoragePath    string    `json:"storage_path"`
}

// TimelineEntry is one row of a historical analysis result: either a raw
// detection or a would-be alert, ordered by timestamp.
type TimelineEntry struct {
	Timestamp  time.Time `json:"timestamp"`
	Type       RiskType  `json:"type"`
	Confidence float64   `json:"confidence"`

	// Alert marks entries where the rule engine would have fired a live
	// alert at this instant.
	Alert bool `json:"alert"`
}
