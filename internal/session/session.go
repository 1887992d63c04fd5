// Argus - Multi-Camera Risk Detection and Alerting
// Copyright 2026 D. Almeida (argus-vision)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/argus-vision/argus

package session

import (
	"sync"
	"time"

	"github.com/argus-vision/argus/internal/models"
	"github.com/argus-vision/argus/internal/recorder"
	"github.com/argus-vision/argus/internal/sampler"
)

// session is one camera's monitoring lifecycle. The orchestrator owns the
// map of sessions; each running session has exactly one goroutine driving
// its state machine.
type session struct {
	cam      models.Camera
	zoneRisk int
	enqueued time.Time

	// types restricts which risk types this session reports. Nil means
	// every configured rule applies.
	types map[models.RiskType]bool

	cancel func()
	rec    *recorder.Recorder
	smp    *sampler.Sampler

	mu         sync.Mutex
	state      models.SessionState
	since      time.Time
	lastFrame  time.Time
	failures   int
	reconnects int
	sourceUsed int
	lastError  string
}

func (s *session) currentState() models.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *session) setLastFrame(ts time.Time) {
	s.mu.Lock()
	s.lastFrame = ts
	s.mu.Unlock()
}

// wantsType reports whether this session analyzes the given risk type.
func (s *session) wantsType(t models.RiskType) bool {
	if s.types == nil {
		return true
	}
	return s.types[t]
}

func (s *session) status(queuePos int) models.SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return models.SessionStatus{
		CameraID:    s.cam.ID,
		State:       s.state,
		Since:       s.since,
		LastFrameAt: s.lastFrame,
		Failures:    s.failures,
		Reconnects:  s.reconnects,
		SourceInUse: s.sourceUsed,
		QueuePos:    queuePos,
		LastError:   s.lastError,
		ZoneRisk:    s.zoneRisk,
	}
}
