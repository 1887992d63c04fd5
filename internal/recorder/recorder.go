// Argus - Multi-Camera Risk Detection and Alerting
// Copyright 2026 D. Almeida (argus-vision)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/argus-vision/argus

// Package recorder maintains per-camera rolling frame buffers and cuts
// evidence clips around alerts. A clip spans the configured preroll before
// the trigger through the postroll after it. Clip persistence is strictly
// best effort: a storage failure loses footage, never the alert.
package recorder

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/argus-vision/argus/internal/config"
	"github.com/argus-vision/argus/internal/logging"
	"github.com/argus-vision/argus/internal/metrics"
	"github.com/argus-vision/argus/internal/models"
)

// ClipStore persists a finished clip file and returns its storage path.
type ClipStore interface {
	Put(ctx context.Context, clip models.Clip, localPath string) (storagePath string, err error)
}

// Encoder writes a frame sequence to a video file at path.
type Encoder interface {
	Encode(path string, fps float64, frames []models.Frame) error
}

// pendingClip is a triggered clip still collecting postroll frames.
type pendingClip struct {
	clip   models.Clip
	frames []models.Frame
}

// Recorder buffers one camera's sampled frames. Observe is called for every
// frame the sampler emits; Trigger cuts a clip around an alert.
type Recorder struct {
	cfg      config.RecorderConfig
	cameraID string
	fps      float64
	store    ClipStore
	enc      Encoder

	// OnClip, when set, receives every successfully persisted clip.
	OnClip func(models.Clip)

	mu      sync.Mutex
	ring    []models.Frame
	pending []*pendingClip
	segment *pendingClip
	wg      sync.WaitGroup
}

// New creates a recorder for one camera. fps is the sampling rate, used as
// the encoded clip's frame rate so playback runs in real time.
func New(cfg config.RecorderConfig, cameraID string, fps float64, store ClipStore, enc Encoder) *Recorder {
	if enc == nil {
		enc = gocvEncoder{}
	}
	return &Recorder{
		cfg:      cfg,
		cameraID: cameraID,
		fps:      fps,
		store:    store,
		enc:      enc,
	}
}

// Observe feeds one sampled frame into the rolling buffer, any pending
// clips, and the continuous segment when enabled.
func (r *Recorder) Observe(frame models.Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.ring = append(r.ring, frame)
	r.trimRingLocked(frame.Timestamp)

	remaining := r.pending[:0]
	for _, p := range r.pending {
		if frame.Timestamp.After(p.clip.End) {
			r.finalizeLocked(p, "alert")
			continue
		}
		p.frames = append(p.frames, frame)
		remaining = append(remaining, p)
	}
	r.pending = remaining

	if r.cfg.Continuous {
		r.observeSegmentLocked(frame)
	}
}

// Trigger starts an evidence clip for an alert: everything already buffered
// inside the preroll window plus the next postroll seconds of frames. The
// clip is finalized asynchronously once the postroll has elapsed.
func (r *Recorder) Trigger(alert models.Alert) {
	start := alert.CreatedAt.Add(-time.Duration(r.cfg.PrerollSeconds) * time.Second)
	end := alert.CreatedAt.Add(time.Duration(r.cfg.PostrollSeconds) * time.Second)

	p := &pendingClip{clip: models.Clip{
		ID:             uuid.NewString(),
		CameraID:       r.cameraID,
		Start:          start,
		End:            end,
		TriggerAlertID: alert.ID,
	}}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, f := range r.ring {
		if !f.Timestamp.Before(start) && !f.Timestamp.After(alert.CreatedAt) {
			p.frames = append(p.frames, f)
		}
	}
	r.pending = append(r.pending, p)

	logging.Info().
		Str("camera_id", r.cameraID).
		Str("clip_id", p.clip.ID).
		Str("alert_id", alert.ID).
		Int("preroll_frames", len(p.frames)).
		Msg("clip recording triggered")
}

// Flush finalizes every pending clip and open segment with the frames
// collected so far, then waits for persistence to finish. Called on session
// stop.
func (r *Recorder) Flush() {
	r.mu.Lock()
	for _, p := range r.pending {
		r.finalizeLocked(p, "alert")
	}
	r.pending = nil
	if r.segment != nil && len(r.segment.frames) > 0 {
		r.finalizeLocked(r.segment, "continuous")
		r.segment = nil
	}
	r.mu.Unlock()

	r.wg.Wait()
}

// trimRingLocked drops frames older than the preroll window.
func (r *Recorder) trimRingLocked(now time.Time) {
	horizon := now.Add(-time.Duration(r.cfg.PrerollSeconds) * time.Second)
	cut := 0
	for cut < len(r.ring) && r.ring[cut].Timestamp.Before(horizon) {
		cut++
	}
	if cut > 0 {
		r.ring = append(r.ring[:0], r.ring[cut:]...)
	}
}

// observeSegmentLocked appends to the continuous segment, rolling it over
// once it reaches the configured duration.
func (r *Recorder) observeSegmentLocked(frame models.Frame) {
	if r.segment == nil {
		r.segment = &pendingClip{clip: models.Clip{
			ID:       uuid.NewString(),
			CameraID: r.cameraID,
			Start:    frame.Timestamp,
		}}
	}
	r.segment.frames = append(r.segment.frames, frame)

	segLen := time.Duration(r.cfg.SegmentSeconds) * time.Second
	if frame.Timestamp.Sub(r.segment.clip.Start) >= segLen {
		r.finalizeLocked(r.segment, "continuous")
		r.segment = nil
	}
}

// finalizeLocked hands a clip to the async encode-and-store path. Caller
// must hold r.mu. A nil store means clip persistence is disabled for this
// session; buffering still runs so the session wiring stays uniform.
func (r *Recorder) finalizeLocked(p *pendingClip, kind string) {
	if len(p.frames) == 0 || r.store == nil {
		return
	}
	p.clip.End = p.frames[len(p.frames)-1].Timestamp

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.persist(p, kind)
	}()
}

func (r *Recorder) persist(p *pendingClip, kind string) {
	localPath := filepath.Join(r.cfg.WorkDir, fmt.Sprintf("%s.mp4", p.clip.ID))
	if err := os.MkdirAll(r.cfg.WorkDir, 0o755); err != nil {
		r.persistFailed(p, kind, err)
		return
	}
	defer os.Remove(localPath)

	if err := r.enc.Encode(localPath, r.fps, p.frames); err != nil {
		r.persistFailed(p, kind, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	storagePath, err := r.store.Put(ctx, p.clip, localPath)
	if err != nil {
		r.persistFailed(p, kind, err)
		return
	}
	p.clip.StoragePath = storagePath

	metrics.ClipsWritten.WithLabelValues(kind).Inc()
	logging.Info().
		Str("camera_id", r.cameraID).
		Str("clip_id", p.clip.ID).
		Str("storage_path", storagePath).
		Int("frames", len(p.frames)).
		Msg("clip persisted")

	if r.OnClip != nil {
		r.OnClip(p.clip)
	}
}

func (r *Recorder) persistFailed(p *pendingClip, kind string, err error) {
	metrics.ClipWriteErrors.Inc()
	logging.Error().
		Str("camera_id", r.cameraID).
		Str("clip_id", p.clip.ID).
		Str("kind", kind).
		Err(err).
		Msg("clip persistence failed, footage lost")
}
