// Argus - Multi-Camera Risk Detection and Alerting
// Copyright 2026 D. Almeida (argus-vision)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/argus-vision/argus

// Package session orchestrates per-camera monitoring sessions: admission
// under the global stream ceiling, the connect/stream/reconnect state
// machine, and the fan-in from detection results to alerts, clips and
// broadcasts.
//
// Admission is priority-ordered: when the ceiling is reached, new start
// requests wait in a queue sorted by conflict-zone risk (highest first),
// ties broken by request order. Queueing is a normal outcome, never an
// error.
package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/argus-vision/argus/internal/alerting"
	"github.com/argus-vision/argus/internal/catalog"
	"github.com/argus-vision/argus/internal/config"
	"github.com/argus-vision/argus/internal/detect"
	"github.com/argus-vision/argus/internal/logging"
	"github.com/argus-vision/argus/internal/metrics"
	"github.com/argus-vision/argus/internal/models"
	"github.com/argus-vision/argus/internal/recorder"
	"github.com/argus-vision/argus/internal/sampler"
)

// Resolver is what the orchestrator needs from stream resolution.
type Resolver interface {
	Resolve(ctx context.Context, cam models.Camera) (models.StreamHandle, error)
	Invalidate(cameraID string)
}

// DetectorPool is the shared detection stage.
type DetectorPool interface {
	Submit(frame models.Frame) bool
	Results() <-chan detect.Result
}

// Broadcaster pushes events to connected operators. Nil disables
// broadcasting.
type Broadcaster interface {
	BroadcastAlert(alert models.Alert)
	BroadcastSessionState(ev models.SessionStateEvent)
}

// AlertSink persists fired alerts. Nil disables persistence.
type AlertSink interface {
	SaveAlert(ctx context.Context, alert models.Alert) error
	AttachClip(ctx context.Context, alertID, clipID string) error
}

// StartOutcome reports what happened to one camera in a start request.
type StartOutcome string

const (
	StartAccepted       StartOutcome = "accepted"
	StartQueued         StartOutcome = "queued"
	StartAlreadyRunning StartOutcome = "already_running"
	StartUnknownCamera  StartOutcome = "unknown_camera"
	StartDisabled       StartOutcome = "disabled"
)

// Orchestrator owns every camera session. One mutex guards the session map,
// the admission queue and the active-stream count together, so the ceiling
// invariant cannot be violated by interleaved starts and stops.
type Orchestrator struct {
	cfg       config.Config
	catalog   *catalog.Catalog
	resolver  Resolver
	pool      DetectorPool
	engine    *alerting.Engine
	notifier  alerting.Notifier
	alerts    AlertSink
	clips     recorder.ClipStore
	encoder   recorder.Encoder
	broadcast Broadcaster
	openFunc  sampler.OpenFunc

	baseCtx    context.Context
	baseCancel func()

	mu       sync.Mutex
	sessions map[string]*session
	queue    []*session
	active   int
}

// Options carries the orchestrator's collaborators. Resolver, pool and
// engine are required; the rest are optional.
type Options struct {
	Catalog   *catalog.Catalog
	Resolver  Resolver
	Pool      DetectorPool
	Engine    *alerting.Engine
	Notifier  alerting.Notifier
	Alerts    AlertSink
	Clips     recorder.ClipStore
	Encoder   recorder.Encoder
	Broadcast Broadcaster

	// OpenFunc overrides the capture backend, for tests.
	OpenFunc sampler.OpenFunc
}

// NewOrchestrator assembles the orchestrator.
func NewOrchestrator(cfg config.Config, opts Options) *Orchestrator {
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		cfg:        cfg,
		catalog:    opts.Catalog,
		resolver:   opts.Resolver,
		pool:       opts.Pool,
		engine:     opts.Engine,
		notifier:   opts.Notifier,
		alerts:     opts.Alerts,
		clips:      opts.Clips,
		encoder:    opts.Encoder,
		broadcast:  opts.Broadcast,
		openFunc:   opts.OpenFunc,
		baseCtx:    ctx,
		baseCancel: cancel,
		sessions:   make(map[string]*session),
	}
}

// StartCameras requests monitoring for the given cameras. types restricts
// the analyzed risk types (nil means all); overrides raises or lowers
// confidence thresholds for this run. The returned map reports the outcome
// per camera id.
func (o *Orchestrator) StartCameras(ids []string, types []models.RiskType, overrides map[models.RiskType]float64) map[string]StartOutcome {
	outcomes := make(map[string]StartOutcome, len(ids))

	var typeSet map[models.RiskType]bool
	if len(types) > 0 {
		typeSet = make(map[models.RiskType]bool, len(types))
		for _, t := range types {
			typeSet[t] = true
		}
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	for _, id := range ids {
		cam, ok := o.catalog.Camera(id)
		if !ok {
			outcomes[id] = StartUnknownCamera
			continue
		}
		if !cam.Enabled {
			outcomes[id] = StartDisabled
			continue
		}
		if existing, ok := o.sessions[id]; ok {
			switch state := existing.currentState(); state {
			case models.SessionStopped, models.SessionError:
				// Restartable: replace the terminal session.
				metrics.SessionsByState.WithLabelValues(string(state)).Dec()
			default:
				outcomes[id] = StartAlreadyRunning
				continue
			}
		}

		s := &session{
			cam:      cam,
			zoneRisk: o.catalog.ZoneRisk(cam),
			enqueued: time.Now(),
			types:    typeSet,
			state:    models.SessionQueued,
			since:    time.Now(),
		}
		s.rec = recorder.New(o.cfg.Recorder, cam.ID, o.cfg.Sampler.FPS, o.clips, o.encoder)
		s.rec.OnClip = o.clipPersisted
		s.smp = sampler.New(o.cfg.Sampler, cam.ID, o.openFunc)

		o.engine.SetOverrides(cam.ID, overrides)
		o.sessions[id] = s
		o.queue = append(o.queue, s)
		metrics.SessionsByState.WithLabelValues(string(models.SessionQueued)).Inc()
		outcomes[id] = StartQueued
	}

	o.admitLocked()

	// Sessions admitted immediately report accepted rather than queued.
	stillQueued := make(map[*session]bool, len(o.queue))
	for _, s := range o.queue {
		stillQueued[s] = true
	}
	for id, outcome := range outcomes {
		if outcome != StartQueued {
			continue
		}
		if s, ok := o.sessions[id]; ok && !stillQueued[s] {
			outcomes[id] = StartAccepted
		}
	}
	return outcomes
}

// StopCameras cancels the given sessions. Unknown ids are ignored; stopping
// is idempotent.
func (o *Orchestrator) StopCameras(ids []string) {
	o.mu.Lock()
	var toStop []*session
	for _, id := range ids {
		s, ok := o.sessions[id]
		if !ok {
			continue
		}
		if s.currentState() == models.SessionQueued {
			o.removeFromQueueLocked(s)
			o.transitionLocked(s, models.SessionStopped, "stopped before admission")
			continue
		}
		toStop = append(toStop, s)
	}
	o.mu.Unlock()

	for _, s := range toStop {
		if s.cancel != nil {
			s.cancel()
		}
	}
}

// Serve runs the result dispatcher and the status loop until the context is
// canceled, then stops every session. Implements suture.Service.
func (o *Orchestrator) Serve(ctx context.Context) error {
	interval := o.cfg.Sessions.StatusInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			o.shutdown()
			return ctx.Err()
		case res := <-o.pool.Results():
			o.handleResult(res)
		case <-ticker.C:
			o.logStatus()
		}
	}
}

// shutdown cancels all sessions and waits for none to remain streaming.
func (o *Orchestrator) shutdown() {
	o.baseCancel()

	o.mu.Lock()
	ids := make([]string, 0, len(o.sessions))
	for id := range o.sessions {
		ids = append(ids, id)
	}
	o.mu.Unlock()
	o.StopCameras(ids)
}

// admitLocked promotes queued sessions while the ceiling allows, highest
// zone risk first, then request order. Caller must hold o.mu.
func (o *Orchestrator) admitLocked() {
	sort.SliceStable(o.queue, func(i, j int) bool {
		if o.queue[i].zoneRisk != o.queue[j].zoneRisk {
			return o.queue[i].zoneRisk > o.queue[j].zoneRisk
		}
		return o.queue[i].enqueued.Before(o.queue[j].enqueued)
	})

	for len(o.queue) > 0 && o.active < o.cfg.Sessions.MaxConcurrentStreams {
		s := o.queue[0]
		o.queue = o.queue[1:]
		o.active++

		ctx, cancel := context.WithCancel(o.baseCtx)
		s.cancel = cancel
		go o.runSession(ctx, s)
	}
	metrics.AdmissionQueueDepth.Set(float64(len(o.queue)))
}

func (o *Orchestrator) removeFromQueueLocked(s *session) {
	for i, queued := range o.queue {
		if queued == s {
			o.queue = append(o.queue[:i], o.queue[i+1:]...)
			break
		}
	}
	metrics.AdmissionQueueDepth.Set(float64(len(o.queue)))
}

// runSession drives one camera's state machine until stopped or failed out.
func (o *Orchestrator) runSession(ctx context.Context, s *session) {
	defer o.release(s)

	backoff := o.cfg.Sessions.InitialBackoff
	consecutive := 0

	for {
		o.transition(s, models.SessionResolving, "")
		handle, err := o.resolver.Resolve(ctx, s.cam)
		if err != nil {
			if ctx.Err() != nil {
				o.transition(s, models.SessionStopped, "")
				return
			}
			consecutive++
			s.mu.Lock()
			s.failures++
			s.lastError = err.Error()
			s.mu.Unlock()

			if consecutive >= o.cfg.Sessions.MaxReconnectAttempts {
				o.transition(s, models.SessionError, err.Error())
				return
			}
			o.transition(s, models.SessionReconnecting, err.Error())
			if !sleepCtx(ctx, backoff) {
				o.transition(s, models.SessionStopped, "")
				return
			}
			backoff = nextBackoff(backoff, o.cfg.Sessions.MaxBackoff)
			continue
		}

		s.mu.Lock()
		s.sourceUsed = handle.SourceUsed
		s.mu.Unlock()
		o.transition(s, models.SessionStreaming, "")
		consecutive = 0
		backoff = o.cfg.Sessions.InitialBackoff

		pumpCtx, pumpCancel := context.WithCancel(ctx)
		go o.pumpFrames(pumpCtx, s)
		err = s.smp.Run(ctx, handle)
		pumpCancel()

		if ctx.Err() != nil {
			o.transition(s, models.SessionStopped, "")
			return
		}

		// Playback failed on a handle resolution considered good: drop
		// the cached resolution and reconnect from scratch.
		o.resolver.Invalidate(s.cam.ID)
		metrics.SessionReconnects.WithLabelValues(s.cam.ID).Inc()
		consecutive++
		errMsg := "stream ended"
		if err != nil {
			errMsg = err.Error()
		}
		s.mu.Lock()
		s.reconnects++
		s.failures++
		s.lastError = errMsg
		s.mu.Unlock()

		if consecutive >= o.cfg.Sessions.MaxReconnectAttempts {
			o.transition(s, models.SessionError, "reconnect attempts exhausted")
			return
		}
		o.transition(s, models.SessionReconnecting, errMsg)
		if !sleepCtx(ctx, backoff) {
			o.transition(s, models.SessionStopped, "")
			return
		}
		backoff = nextBackoff(backoff, o.cfg.Sessions.MaxBackoff)
	}
}

// pumpFrames moves sampled frames into the recorder and the detection pool.
func (o *Orchestrator) pumpFrames(ctx context.Context, s *session) {
	for {
		select {
		case <-ctx.Done():
			return
		case f := <-s.smp.Frames():
			s.setLastFrame(f.Timestamp)
			s.rec.Observe(f)
			o.pool.Submit(f)
		}
	}
}

// handleResult routes one detection result through the rule engine and fans
// fired alerts out to persistence, notification, recording and broadcast.
func (o *Orchestrator) handleResult(res detect.Result) {
	o.mu.Lock()
	s := o.sessions[res.Frame.CameraID]
	o.mu.Unlock()
	if s == nil {
		return
	}

	detections := res.Detections
	if s.types != nil {
		detections = detections[:0:0]
		for _, d := range res.Detections {
			if s.wantsType(d.Type) {
				detections = append(detections, d)
			}
		}
	}

	for _, alert := range o.engine.Process(res.Frame, detections) {
		o.publishAlert(s, alert)
	}
}

func (o *Orchestrator) publishAlert(s *session, alert models.Alert) {
	s.rec.Trigger(alert)

	if o.alerts != nil {
		ctx, cancel := context.WithTimeout(o.baseCtx, 5*time.Second)
		if err := o.alerts.SaveAlert(ctx, alert); err != nil {
			logging.Error().Str("alert_id", alert.ID).Err(err).Msg("alert persistence failed")
		}
		cancel()
	}
	if o.notifier != nil {
		go o.notifier.Notify(o.baseCtx, alert)
	}
	if o.broadcast != nil {
		o.broadcast.BroadcastAlert(alert)
		metrics.EventsBroadcast.WithLabelValues(models.EventTypeAlert).Inc()
	}
}

// clipPersisted links finished evidence clips back to their alerts.
func (o *Orchestrator) clipPersisted(clip models.Clip) {
	if o.alerts == nil || clip.TriggerAlertID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.alerts.AttachClip(ctx, clip.TriggerAlertID, clip.ID); err != nil {
		logging.Error().Str("clip_id", clip.ID).Err(err).Msg("clip attachment failed")
	}
}

// release returns a session's stream slot and admits the next queued
// session. Runs exactly once per admitted session.
func (o *Orchestrator) release(s *session) {
	s.rec.Flush()
	o.engine.ResetCamera(s.cam.ID)

	o.mu.Lock()
	o.active--
	o.admitLocked()
	o.mu.Unlock()
}

// transition moves a session to a new state, updating metrics and
// broadcasting the change.
func (o *Orchestrator) transition(s *session, to models.SessionState, reason string) {
	o.mu.Lock()
	o.transitionLocked(s, to, reason)
	o.mu.Unlock()
}

func (o *Orchestrator) transitionLocked(s *session, to models.SessionState, reason string) {
	s.mu.Lock()
	from := s.state
	if from == to {
		s.mu.Unlock()
		return
	}
	s.state = to
	s.since = time.Now()
	s.mu.Unlock()

	metrics.SessionsByState.WithLabelValues(string(from)).Dec()
	metrics.SessionsByState.WithLabelValues(string(to)).Inc()
	metrics.SessionTransitions.WithLabelValues(string(from), string(to)).Inc()

	logging.Info().
		Str("camera_id", s.cam.ID).
		Str("from", string(from)).
		Str("to", string(to)).
		Str("reason", reason).
		Msg("session state changed")

	if o.broadcast != nil {
		o.broadcast.BroadcastSessionState(models.SessionStateEvent{
			CameraID:  s.cam.ID,
			State:     to,
			Previous:  from,
			Reason:    reason,
			Timestamp: time.Now(),
		})
		metrics.EventsBroadcast.WithLabelValues(models.EventTypeSessionState).Inc()
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func nextBackoff(cur, max time.Duration) time.Duration {
	next := cur * 2
	if next > max {
		return max
	}
	return next
}
