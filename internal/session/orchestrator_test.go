// Argus - Multi-Camera Risk Detection and Alerting
// Copyright 2026 D. Almeida (argus-vision)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/argus-vision/argus

package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/argus-vision/argus/internal/alerting"
	"github.com/argus-vision/argus/internal/catalog"
	"github.com/argus-vision/argus/internal/config"
	"github.com/argus-vision/argus/internal/detect"
	"github.com/argus-vision/argus/internal/models"
	"github.com/argus-vision/argus/internal/sampler"
)

const testCamerasYAML = `
cameras:
  - id: cam-low
    latitude: 1.0
    longitude: 1.0
    stream_url: rtsp://example/low
    enabled: true
  - id: cam-high
    latitude: 11.0
    longitude: 11.0
    stream_url: rtsp://example/high
    enabled: true
  - id: cam-mid
    latitude: 21.0
    longitude: 21.0
    stream_url: rtsp://example/mid
    enabled: true
  - id: cam-off
    stream_url: rtsp://example/off
    enabled: false
`

const testZonesYAML = `
zones:
  - name: low
    risk_level: 2
    polygon: [{lat: 0, lon: 0}, {lat: 0, lon: 2}, {lat: 2, lon: 2}, {lat: 2, lon: 0}]
  - name: high
    risk_level: 9
    polygon: [{lat: 10, lon: 10}, {lat: 10, lon: 12}, {lat: 12, lon: 12}, {lat: 12, lon: 10}]
  - name: mid
    risk_level: 5
    polygon: [{lat: 20, lon: 20}, {lat: 20, lon: 22}, {lat: 22, lon: 22}, {lat: 22, lon: 20}]
`

type fakeResolver struct {
	mu          sync.Mutex
	err         error
	invalidated []string
}

func (r *fakeResolver) Resolve(_ context.Context, cam models.Camera) (models.StreamHandle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return models.StreamHandle{}, r.err
	}
	return models.StreamHandle{CameraID: cam.ID, MediaURL: "rtsp://resolved/" + cam.ID}, nil
}

func (r *fakeResolver) Invalidate(cameraID string) {
	r.mu.Lock()
	r.invalidated = append(r.invalidated, cameraID)
	r.mu.Unlock()
}

type fakePool struct {
	mu        sync.Mutex
	submitted []models.Frame
	results   chan detect.Result
}

func newFakePool() *fakePool {
	return &fakePool{results: make(chan detect.Result, 16)}
}

func (p *fakePool) Submit(f models.Frame) bool {
	p.mu.Lock()
	p.submitted = append(p.submitted, f)
	p.mu.Unlock()
	return true
}

func (p *fakePool) Results() <-chan detect.Result { return p.results }

type fakeBroadcaster struct {
	mu     sync.Mutex
	alerts []models.Alert
	states []models.SessionStateEvent
}

func (b *fakeBroadcaster) BroadcastAlert(a models.Alert) {
	b.mu.Lock()
	b.alerts = append(b.alerts, a)
	b.mu.Unlock()
}

func (b *fakeBroadcaster) BroadcastSessionState(ev models.SessionStateEvent) {
	b.mu.Lock()
	b.states = append(b.states, ev)
	b.mu.Unlock()
}

type fakeSink struct {
	mu       sync.Mutex
	saved    []models.Alert
	attached map[string]string
}

func (s *fakeSink) SaveAlert(_ context.Context, a models.Alert) error {
	s.mu.Lock()
	s.saved = append(s.saved, a)
	s.mu.Unlock()
	return nil
}

func (s *fakeSink) AttachClip(_ context.Context, alertID, clipID string) error {
	s.mu.Lock()
	if s.attached == nil {
		s.attached = make(map[string]string)
	}
	s.attached[alertID] = clipID
	s.mu.Unlock()
	return nil
}

type nullClipStore struct{}

func (nullClipStore) Put(_ context.Context, clip models.Clip, _ string) (string, error) {
	return "clips/" + clip.ID, nil
}

type nullEncoder struct{}

func (nullEncoder) Encode(string, float64, []models.Frame) error { return nil }

// blockingOpen yields captures whose Next blocks until the test finishes,
// keeping sessions in the streaming state.
func blockingOpen(t *testing.T) sampler.OpenFunc {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	return func(string) (sampler.Capture, error) {
		return &blockingCapture{release: release}, nil
	}
}

type blockingCapture struct{ release chan struct{} }

func (c *blockingCapture) Next() ([]byte, int, int, error) {
	<-c.release
	return nil, 0, 0, errors.New("released")
}
func (c *blockingCapture) Close() error { return nil }

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	dir := t.TempDir()
	camPath := filepath.Join(dir, "cameras.yaml")
	zonePath := filepath.Join(dir, "zones.yaml")
	if err := os.WriteFile(camPath, []byte(testCamerasYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(zonePath, []byte(testZonesYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	cat, err := catalog.Load(camPath, zonePath)
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	return cat
}

func testOrchestratorConfig(t *testing.T) config.Config {
	cfg := config.Config{}
	cfg.Sessions = config.SessionsConfig{
		MaxConcurrentStreams: 2,
		InitialBackoff:       5 * time.Millisecond,
		MaxBackoff:           20 * time.Millisecond,
		MaxReconnectAttempts: 3,
		StatusInterval:       time.Hour,
	}
	cfg.Sampler = config.SamplerConfig{FPS: 30, StallTimeout: time.Minute, ChannelDepth: 8}
	cfg.Recorder = config.RecorderConfig{PrerollSeconds: 10, SegmentSeconds: 60, WorkDir: t.TempDir()}
	cfg.Alerting = config.AlertingConfig{Rules: map[string]config.RuleConfig{
		string(models.RiskWeapon): {
			ConfidenceThreshold: 0.8,
			MinDuration:         time.Second,
			Cooldown:            30 * time.Second,
			Priority:            "critical",
			Aggregation:         "max",
		},
	}}
	return cfg
}

func newTestOrchestrator(t *testing.T, cfg config.Config, resolver Resolver, pool DetectorPool) (*Orchestrator, *fakeBroadcaster, *fakeSink) {
	t.Helper()
	broadcast := &fakeBroadcaster{}
	sink := &fakeSink{}
	o := NewOrchestrator(cfg, Options{
		Catalog:   testCatalog(t),
		Resolver:  resolver,
		Pool:      pool,
		Engine:    alerting.NewEngine(cfg.Alerting),
		Alerts:    sink,
		Clips:     nullClipStore{},
		Encoder:   nullEncoder{},
		Broadcast: broadcast,
		OpenFunc:  blockingOpen(t),
	})
	t.Cleanup(o.baseCancel)
	return o, broadcast, sink
}

// waitState polls until the camera reaches the state or the deadline hits.
func waitState(t *testing.T, o *Orchestrator, cameraID string, want models.SessionState) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		o.mu.Lock()
		s := o.sessions[cameraID]
		o.mu.Unlock()
		if s != nil && s.currentState() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("camera %s never reached state %s", cameraID, want)
}

func TestCeilingQueuesExcessStarts(t *testing.T) {
	o, _, _ := newTestOrchestrator(t, testOrchestratorConfig(t), &fakeResolver{}, newFakePool())

	outcomes := o.StartCameras([]string{"cam-low", "cam-high", "cam-mid"}, nil, nil)

	queued := 0
	for _, outcome := range outcomes {
		if outcome == StartQueued {
			queued++
		}
	}
	if queued != 1 {
		t.Fatalf("queued = %d, want 1 (ceiling 2, three starts)", queued)
	}

	snap := o.Status()
	if snap.ActiveStreams != 2 {
		t.Errorf("active streams = %d, want 2", snap.ActiveStreams)
	}
	if snap.QueueDepth != 1 {
		t.Errorf("queue depth = %d, want 1", snap.QueueDepth)
	}
}

func TestQueueOrderedByZoneRisk(t *testing.T) {
	cfg := testOrchestratorConfig(t)
	cfg.Sessions.MaxConcurrentStreams = 1
	o, _, _ := newTestOrchestrator(t, cfg, &fakeResolver{}, newFakePool())

	o.StartCameras([]string{"cam-low", "cam-high", "cam-mid"}, nil, nil)

	// cam-high (zone risk 9) takes the only slot; cam-mid (5) queues ahead
	// of cam-low (2) despite being requested after it.
	waitState(t, o, "cam-high", models.SessionStreaming)

	o.mu.Lock()
	var order []string
	for _, s := range o.queue {
		order = append(order, s.cam.ID)
	}
	o.mu.Unlock()

	if len(order) != 2 || order[0] != "cam-mid" || order[1] != "cam-low" {
		t.Errorf("queue order = %v, want [cam-mid cam-low]", order)
	}
}

func TestStopReleasesSlotToQueued(t *testing.T) {
	cfg := testOrchestratorConfig(t)
	cfg.Sessions.MaxConcurrentStreams = 1
	o, _, _ := newTestOrchestrator(t, cfg, &fakeResolver{}, newFakePool())

	o.StartCameras([]string{"cam-high", "cam-low"}, nil, nil)
	waitState(t, o, "cam-high", models.SessionStreaming)

	o.StopCameras([]string{"cam-high"})
	waitState(t, o, "cam-high", models.SessionStopped)
	waitState(t, o, "cam-low", models.SessionStreaming)
}

func TestUnknownAndDisabledCameras(t *testing.T) {
	o, _, _ := newTestOrchestrator(t, testOrchestratorConfig(t), &fakeResolver{}, newFakePool())

	outcomes := o.StartCameras([]string{"cam-ghost", "cam-off"}, nil, nil)
	if outcomes["cam-ghost"] != StartUnknownCamera {
		t.Errorf("cam-ghost = %s, want unknown_camera", outcomes["cam-ghost"])
	}
	if outcomes["cam-off"] != StartDisabled {
		t.Errorf("cam-off = %s, want disabled", outcomes["cam-off"])
	}
}

func TestResolverFailureExhaustsIntoError(t *testing.T) {
	o, broadcast, _ := newTestOrchestrator(t, testOrchestratorConfig(t),
		&fakeResolver{err: errors.New("all sources down")}, newFakePool())

	o.StartCameras([]string{"cam-low"}, nil, nil)
	waitState(t, o, "cam-low", models.SessionError)

	broadcast.mu.Lock()
	defer broadcast.mu.Unlock()
	sawReconnecting := false
	for _, ev := range broadcast.states {
		if ev.CameraID == "cam-low" && ev.State == models.SessionReconnecting {
			sawReconnecting = true
		}
	}
	if !sawReconnecting {
		t.Error("no reconnecting transition broadcast before error")
	}
}

func TestErroredSessionIsRestartable(t *testing.T) {
	resolver := &fakeResolver{err: errors.New("down")}
	o, _, _ := newTestOrchestrator(t, testOrchestratorConfig(t), resolver, newFakePool())

	o.StartCameras([]string{"cam-low"}, nil, nil)
	waitState(t, o, "cam-low", models.SessionError)

	resolver.mu.Lock()
	resolver.err = nil
	resolver.mu.Unlock()

	outcomes := o.StartCameras([]string{"cam-low"}, nil, nil)
	if outcomes["cam-low"] == StartAlreadyRunning {
		t.Fatal("errored session refused restart")
	}
	waitState(t, o, "cam-low", models.SessionStreaming)
}

func TestAlertFanout(t *testing.T) {
	pool := newFakePool()
	o, broadcast, sink := newTestOrchestrator(t, testOrchestratorConfig(t), &fakeResolver{}, pool)

	o.StartCameras([]string{"cam-low"}, nil, nil)
	waitState(t, o, "cam-low", models.SessionStreaming)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go o.Serve(ctx)

	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i <= 2; i++ {
		frame := models.Frame{CameraID: "cam-low", Timestamp: base.Add(time.Duration(i) * 500 * time.Millisecond)}
		pool.results <- detect.Result{
			Frame: frame,
			Detections: []models.Detection{{
				CameraID: "cam-low", Timestamp: frame.Timestamp,
				Type: models.RiskWeapon, Confidence: 0.9,
			}},
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		sink.mu.Lock()
		n := len(sink.saved)
		sink.mu.Unlock()
		if n > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.saved) != 1 {
		t.Fatalf("persisted %d alerts, want 1", len(sink.saved))
	}
	if sink.saved[0].Type != models.RiskWeapon || sink.saved[0].CameraID != "cam-low" {
		t.Errorf("persisted alert = %+v", sink.saved[0])
	}

	broadcast.mu.Lock()
	defer broadcast.mu.Unlock()
	if len(broadcast.alerts) != 1 {
		t.Errorf("broadcast %d alerts, want 1", len(broadcast.alerts))
	}
}

func TestDetectionTypeFilter(t *testing.T) {
	pool := newFakePool()
	cfg := testOrchestratorConfig(t)
	cfg.Alerting.Rules[string(models.RiskFire)] = config.RuleConfig{
		ConfidenceThreshold: 0.5,
		MinDuration:         time.Second,
		Cooldown:            time.Minute,
		Priority:            "high",
	}
	o, _, sink := newTestOrchestrator(t, cfg, &fakeResolver{}, pool)

	// Session restricted to weapon only: fire detections must be ignored.
	o.StartCameras([]string{"cam-low"}, []models.RiskType{models.RiskWeapon}, nil)
	waitState(t, o, "cam-low", models.SessionStreaming)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go o.Serve(ctx)

	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i <= 3; i++ {
		frame := models.Frame{CameraID: "cam-low", Timestamp: base.Add(time.Duration(i) * 500 * time.Millisecond)}
		pool.results <- detect.Result{
			Frame: frame,
			Detections: []models.Detection{{
				CameraID: "cam-low", Timestamp: frame.Timestamp,
				Type: models.RiskFire, Confidence: 0.9,
			}},
		}
	}

	time.Sleep(100 * time.Millisecond)
	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.saved) != 0 {
		t.Errorf("persisted %d alerts for a filtered type, want 0", len(sink.saved))
	}
}

func TestStreamingSessionsSubmitFrames(t *testing.T) {
	pool := newFakePool()
	cfg := testOrchestratorConfig(t)

	// Captures that deliver frames immediately.
	o, _, _ := newTestOrchestrator(t, cfg, &fakeResolver{}, pool)
	o.openFunc = func(string) (sampler.Capture, error) {
		return &framingCapture{}, nil
	}

	o.StartCameras([]string{"cam-low"}, nil, nil)
	waitState(t, o, "cam-low", models.SessionStreaming)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		pool.mu.Lock()
		n := len(pool.submitted)
		pool.mu.Unlock()
		if n >= 2 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("no frames reached the detection pool")
}

type framingCapture struct{}

func (framingCapture) Next() ([]byte, int, int, error) {
	time.Sleep(time.Millisecond)
	return []byte{0xff}, 320, 240, nil
}
func (framingCapture) Close() error { return nil }
