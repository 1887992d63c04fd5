// Argus - Multi-Camera Risk Detection and Alerting
// Copyright 2026 D. Almeida (argus-vision)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/argus-vision/argus

package models

import "time"

// SessionState is the lifecycle state of one camera session.
type SessionState string

const (
	SessionIdle         SessionState = "idle"
	SessionQueued       SessionState = "queued"
	SessionResolving    SessionState = "resolving"
	SessionStreaming    SessionState = "streaming"
	SessionReconnecting SessionState = "reconnecting"
	SessionStopped      SessionState = "stopped"
	SessionError        SessionState = "error"
)

// Broadcast event types emitted on the event surface.
const (
	EventTypeAlert        = "alert"
	EventTypeSessionState = "session_state"
)

// SessionStateEvent is broadcast on every session state transition. No
// transition is swallowed: operators can always account for a camera.
type SessionStateEvent struct {
	CameraID  string       `json:"camera_id"`
	State     SessionState `json:"state"`
	Previous  SessionState `json:"previous"`
	Reason    string       `json:"reason,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}

// SessionStatus is the control-surface view of one camera session.
type SessionStatus struct {
	CameraID    string       `json:"camera_id"`
	State       SessionState `json:"state"`
	Since       time.Time    `json:"since"`
	LastFrameAt time.Time    `json:"last_frame_at,omitempty"`
	Failures    int          `json:"failures"`
	Reconnects  int          `json:"reconnects"`
	SourceInUse int          `json:"source_in_use"`
	QueuePos    int          `json:"queue_pos,omitempty"`
	LastError   string       `json:"last_error,omitempty"`
	ZoneRisk    int          `json:"zone_risk"`
}
