// Argus - Multi-Camera Risk Detection and Alerting
// Copyright 2026 D. Almeida (argus-vision)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/argus-vision/argus

package historical

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/argus-vision/argus/internal/config"
	"github.com/argus-vision/argus/internal/models"
	"github.com/argus-vision/argus/internal/sampler"
)

// scriptCapture replays a fixed-rate file of n frames.
type scriptCapture struct {
	total   int
	fps     float64
	decoded int
}

func (c *scriptCapture) Next() ([]byte, int, int, error) {
	if c.decoded >= c.total {
		return nil, 0, 0, sampler.ErrSourceExhausted
	}
	c.decoded++
	return []byte{byte(c.decoded)}, 320, 240, nil
}

func (c *scriptCapture) Close() error        { return nil }
func (c *scriptCapture) FPS() float64        { return c.fps }
func (c *scriptCapture) PosSeconds() float64 { return float64(c.decoded) / c.fps }

// confDetector reports one detection per frame at a fixed confidence.
type confDetector struct {
	riskType models.RiskType
	conf     float64
}

func (d confDetector) Detect(_ context.Context, f *models.Frame) ([]models.Detection, error) {
	return []models.Detection{{
		CameraID:   f.CameraID,
		Timestamp:  f.Timestamp,
		Type:       d.riskType,
		Confidence: d.conf,
	}}, nil
}

type fakeTimelineStore struct {
	mu   sync.Mutex
	runs map[string][]models.TimelineEntry
}

func (s *fakeTimelineStore) SaveTimeline(_ context.Context, runID, _ string, entries []models.TimelineEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runs == nil {
		s.runs = make(map[string][]models.TimelineEntry)
	}
	s.runs[runID] = entries
	return nil
}

func crowdRules() config.AlertingConfig {
	return config.AlertingConfig{Rules: map[string]config.RuleConfig{
		string(models.RiskCrowd): {
			ConfidenceThreshold: 0.6,
			MinDuration:         10 * time.Second,
			Cooldown:            300 * time.Second,
			Priority:            "medium",
			Aggregation:         "max",
		},
	}}
}

func tempVideo(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "footage.mp4")
	if err := os.WriteFile(path, []byte("stub"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func newTestAnalyzer(t *testing.T, rules config.AlertingConfig, det confDetector, store TimelineStore, fileSeconds int) *Analyzer {
	t.Helper()
	open := func(string) (sampler.FileCapture, error) {
		return &scriptCapture{total: fileSeconds * 10, fps: 10}, nil
	}
	return New(
		config.HistoricalConfig{MaxConcurrentRuns: 2, ResultTTL: time.Hour},
		config.SamplerConfig{FPS: 2, StallTimeout: time.Minute, ChannelDepth: 8},
		rules, det, store, open,
	)
}

func waitDone(t *testing.T, a *Analyzer, id string) Run {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		r, ok := a.Poll(id)
		if !ok {
			t.Fatalf("run %s vanished", id)
		}
		switch r.Status {
		case StatusCompleted, StatusFailed, StatusCanceled:
			return r
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("run %s never finished", id)
	return Run{}
}

func TestShortBurstRecordsDetectionsWithoutAlerts(t *testing.T) {
	// 5 seconds of crowd at 0.7 against a 10s minimum duration: plenty of
	// raw detections, zero alert marks.
	a := newTestAnalyzer(t, crowdRules(), confDetector{models.RiskCrowd, 0.7}, nil, 5)

	id, err := a.Submit(tempVideo(t), "cam-01", nil)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	r := waitDone(t, a, id)

	if r.Status != StatusCompleted {
		t.Fatalf("status = %s (%s), want completed", r.Status, r.Error)
	}
	// 5s at native 10 fps sampled to 2 fps: 10 frames, one detection each.
	if len(r.Timeline) != 10 {
		t.Fatalf("timeline entries = %d, want 10 raw detections", len(r.Timeline))
	}
	for _, e := range r.Timeline {
		if e.Alert {
			t.Errorf("entry at %s marked as alert despite 10s min duration", e.Timestamp)
		}
		if e.Type != models.RiskCrowd || e.Confidence != 0.7 {
			t.Errorf("entry = %+v", e)
		}
	}
}

func TestSustainedDetectionMarksAlertEntry(t *testing.T) {
	// 15 seconds of sustained crowd: the 10s threshold is crossed once.
	store := &fakeTimelineStore{}
	a := newTestAnalyzer(t, crowdRules(), confDetector{models.RiskCrowd, 0.8}, store, 15)

	id, err := a.Submit(tempVideo(t), "cam-01", nil)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	r := waitDone(t, a, id)

	if r.Status != StatusCompleted {
		t.Fatalf("status = %s (%s)", r.Status, r.Error)
	}

	var alertEntries []models.TimelineEntry
	for _, e := range r.Timeline {
		if e.Alert {
			alertEntries = append(alertEntries, e)
		}
	}
	if len(alertEntries) != 1 {
		t.Fatalf("alert entries = %d, want 1", len(alertEntries))
	}
	// Media offset of the firing instant is >= 10s into the file.
	if off := alertEntries[0].Timestamp.Sub(time.Unix(0, 0).UTC()); off < 10*time.Second {
		t.Errorf("alert at media offset %s, want >= 10s", off)
	}

	// Timeline ordered by timestamp.
	for i := 1; i < len(r.Timeline); i++ {
		if r.Timeline[i].Timestamp.Before(r.Timeline[i-1].Timestamp) {
			t.Fatal("timeline not ordered by timestamp")
		}
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.runs[id]) != len(r.Timeline) {
		t.Errorf("persisted %d entries, want %d", len(store.runs[id]), len(r.Timeline))
	}
}

func TestTypeRestrictionFiltersTimeline(t *testing.T) {
	a := newTestAnalyzer(t, crowdRules(), confDetector{models.RiskCrowd, 0.8}, nil, 5)

	// Analysis restricted to weapon: every crowd detection is discarded.
	id, err := a.Submit(tempVideo(t), "cam-01", []models.RiskType{models.RiskWeapon})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	r := waitDone(t, a, id)

	if r.Status != StatusCompleted {
		t.Fatalf("status = %s", r.Status)
	}
	if len(r.Timeline) != 0 {
		t.Errorf("timeline entries = %d, want 0 under type restriction", len(r.Timeline))
	}
}

func TestSubmitRejectsMissingFile(t *testing.T) {
	a := newTestAnalyzer(t, crowdRules(), confDetector{models.RiskCrowd, 0.8}, nil, 5)
	if _, err := a.Submit("/nonexistent/footage.mp4", "cam-01", nil); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestPollUnknownRun(t *testing.T) {
	a := newTestAnalyzer(t, crowdRules(), confDetector{models.RiskCrowd, 0.8}, nil, 5)
	if _, ok := a.Poll("no-such-run"); ok {
		t.Fatal("unknown run id reported as found")
	}
}

func TestFinishedRunsExpireAfterTTL(t *testing.T) {
	a := newTestAnalyzer(t, crowdRules(), confDetector{models.RiskCrowd, 0.8}, nil, 1)
	a.cfg.ResultTTL = 10 * time.Millisecond

	id, err := a.Submit(tempVideo(t), "cam-01", nil)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitDone(t, a, id)

	time.Sleep(30 * time.Millisecond)
	if _, ok := a.Poll(id); ok {
		t.Error("finished run still pollable past the result TTL")
	}
}
