// Argus - Multi-Camera Risk Detection and Alerting
// Copyright 2026 D. Almeida (argus-vision)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/argus-vision/argus

package recorder

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/argus-vision/argus/internal/config"
	"github.com/argus-vision/argus/internal/models"
)

var t0 = time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)

type fakeEncoder struct {
	mu    sync.Mutex
	calls []int // frame counts per encode
	err   error
}

func (e *fakeEncoder) Encode(_ string, _ float64, frames []models.Frame) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return e.err
	}
	e.calls = append(e.calls, len(frames))
	return nil
}

type fakeStore struct {
	mu    sync.Mutex
	clips []models.Clip
	err   error
}

func (s *fakeStore) Put(_ context.Context, clip models.Clip, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	s.clips = append(s.clips, clip)
	return "clips/" + clip.ID + ".mp4", nil
}

func recorderConfig() config.RecorderConfig {
	return config.RecorderConfig{
		PrerollSeconds:  10,
		PostrollSeconds: 5,
		SegmentSeconds:  60,
		WorkDir:         "",
	}
}

func newTestRecorder(t *testing.T, cfg config.RecorderConfig, store *fakeStore, enc *fakeEncoder) *Recorder {
	t.Helper()
	cfg.WorkDir = t.TempDir()
	return New(cfg, "cam-01", 2, store, enc)
}

// observeRange feeds frames at 2 fps over [from, to].
func observeRange(r *Recorder, from, to time.Duration) {
	seq := int64(0)
	for off := from; off <= to; off += 500 * time.Millisecond {
		seq++
		r.Observe(models.Frame{
			CameraID:  "cam-01",
			Seq:       seq,
			Timestamp: t0.Add(off),
			Data:      []byte{0xff},
		})
	}
}

func TestTriggerCutsPrerollAndPostroll(t *testing.T) {
	store := &fakeStore{}
	enc := &fakeEncoder{}
	r := newTestRecorder(t, recorderConfig(), store, enc)

	// 20s of footage; alert at t=15s.
	observeRange(r, 0, 15*time.Second)
	r.Trigger(models.Alert{ID: "alert-1", CameraID: "cam-01", CreatedAt: t0.Add(15 * time.Second)})
	observeRange(r, 15500*time.Millisecond, 21*time.Second)
	r.Flush()

	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.clips) != 1 {
		t.Fatalf("persisted %d clips, want 1", len(store.clips))
	}
	clip := store.clips[0]
	if clip.TriggerAlertID != "alert-1" {
		t.Errorf("TriggerAlertID = %q", clip.TriggerAlertID)
	}
	if want := t0.Add(5 * time.Second); !clip.Start.Equal(want) {
		t.Errorf("clip start = %s, want trigger minus 10s preroll", clip.Start)
	}

	// Preroll window [5s,15s] at 2 fps is 21 frames; postroll [15.5s,20s]
	// adds 10 more.
	enc.mu.Lock()
	defer enc.mu.Unlock()
	if len(enc.calls) != 1 || enc.calls[0] != 31 {
		t.Errorf("encoded frame counts = %v, want [31]", enc.calls)
	}
}

func TestStorageFailureLosesFootageOnly(t *testing.T) {
	store := &fakeStore{err: errors.New("bucket unavailable")}
	enc := &fakeEncoder{}
	r := newTestRecorder(t, recorderConfig(), store, enc)

	observeRange(r, 0, 2*time.Second)
	r.Trigger(models.Alert{ID: "alert-1", CameraID: "cam-01", CreatedAt: t0.Add(2 * time.Second)})

	// Flush must return normally; the failure is logged, not raised.
	r.Flush()

	var clips int
	store.mu.Lock()
	clips = len(store.clips)
	store.mu.Unlock()
	if clips != 0 {
		t.Errorf("persisted %d clips past a store failure", clips)
	}
}

func TestRingDropsFramesPastPreroll(t *testing.T) {
	store := &fakeStore{}
	enc := &fakeEncoder{}
	r := newTestRecorder(t, recorderConfig(), store, enc)

	// 60s of footage, then a trigger: only the last 10s are available.
	observeRange(r, 0, 60*time.Second)
	r.Trigger(models.Alert{ID: "alert-1", CameraID: "cam-01", CreatedAt: t0.Add(60 * time.Second)})
	r.Flush()

	enc.mu.Lock()
	defer enc.mu.Unlock()
	if len(enc.calls) != 1 {
		t.Fatalf("encodes = %d, want 1", len(enc.calls))
	}
	// 10s window at 2 fps: 21 frames inclusive.
	if enc.calls[0] != 21 {
		t.Errorf("encoded %d frames, want 21 (ring bounded by preroll)", enc.calls[0])
	}
}

func TestOverlappingTriggersProduceSeparateClips(t *testing.T) {
	store := &fakeStore{}
	enc := &fakeEncoder{}
	r := newTestRecorder(t, recorderConfig(), store, enc)

	observeRange(r, 0, 4*time.Second)
	r.Trigger(models.Alert{ID: "alert-1", CameraID: "cam-01", CreatedAt: t0.Add(4 * time.Second)})
	observeRange(r, 4500*time.Millisecond, 6*time.Second)
	r.Trigger(models.Alert{ID: "alert-2", CameraID: "cam-01", CreatedAt: t0.Add(6 * time.Second)})
	observeRange(r, 6500*time.Millisecond, 12*time.Second)
	r.Flush()

	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.clips) != 2 {
		t.Fatalf("persisted %d clips, want 2", len(store.clips))
	}
	ids := map[string]bool{}
	for _, c := range store.clips {
		ids[c.TriggerAlertID] = true
	}
	if !ids["alert-1"] || !ids["alert-2"] {
		t.Errorf("clip triggers = %v, want both alerts", ids)
	}
}

func TestContinuousSegmentsRollOver(t *testing.T) {
	cfg := recorderConfig()
	cfg.Continuous = true
	cfg.SegmentSeconds = 10
	store := &fakeStore{}
	enc := &fakeEncoder{}
	r := newTestRecorder(t, cfg, store, enc)

	// 25s of footage: two full 10s segments roll over, the 5s tail is
	// flushed.
	observeRange(r, 0, 25*time.Second)
	r.Flush()

	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.clips) != 3 {
		t.Fatalf("persisted %d segments, want 3", len(store.clips))
	}
	for _, c := range store.clips {
		if c.TriggerAlertID != "" {
			t.Errorf("continuous segment %s carries a trigger alert", c.ID)
		}
	}
}

func TestOnClipCallback(t *testing.T) {
	store := &fakeStore{}
	enc := &fakeEncoder{}
	r := newTestRecorder(t, recorderConfig(), store, enc)

	var mu sync.Mutex
	var got []models.Clip
	r.OnClip = func(c models.Clip) {
		mu.Lock()
		got = append(got, c)
		mu.Unlock()
	}

	observeRange(r, 0, 2*time.Second)
	r.Trigger(models.Alert{ID: "alert-1", CameraID: "cam-01", CreatedAt: t0.Add(2 * time.Second)})
	r.Flush()

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 {
		t.Fatalf("callback ran %d times, want 1", len(got))
	}
	if got[0].StoragePath == "" {
		t.Error("callback clip missing storage path")
	}
}

func TestNilStoreDisablesPersistence(t *testing.T) {
	enc := &fakeEncoder{}
	cfg := recorderConfig()
	cfg.WorkDir = t.TempDir()

	// Sessions may run without a clip store; triggering must not panic in
	// the persist goroutine.
	r := New(cfg, "cam-01", 2, nil, enc)

	observeRange(r, 0, 3*time.Second)
	r.Trigger(models.Alert{ID: "alert-1", CameraID: "cam-01", CreatedAt: t0.Add(3 * time.Second)})
	r.Flush()

	enc.mu.Lock()
	defer enc.mu.Unlock()
	if len(enc.calls) != 0 {
		t.Errorf("encoder ran %d times, want 0 with persistence disabled", len(enc.calls))
	}
}
