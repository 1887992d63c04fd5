// Argus - Multi-Camera Risk Detection and Alerting
// Copyright 2026 D. Almeida (argus-vision)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/argus-vision/argus

// Package historical analyzes recorded footage with the same sampling,
// detection and rule machinery as live monitoring. A run produces a
// timeline: every raw detection in media order, with the instants where the
// rule engine would have fired a live alert marked. Raw detections are
// always recorded, even when nothing sustains long enough to alert.
//
// Timeline timestamps encode media position as an offset from the Unix
// epoch: a detection 83 seconds into the file carries timestamp
// 1970-01-01T00:01:23Z. Runs are pollable in memory until the result TTL
// and persisted to the timeline store on completion.
package historical

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/argus-vision/argus/internal/alerting"
	"github.com/argus-vision/argus/internal/config"
	"github.com/argus-vision/argus/internal/detect"
	"github.com/argus-vision/argus/internal/logging"
	"github.com/argus-vision/argus/internal/metrics"
	"github.com/argus-vision/argus/internal/models"
	"github.com/argus-vision/argus/internal/sampler"
)

// RunStatus is the lifecycle state of one analysis run.
type RunStatus string

const (
	StatusQueued    RunStatus = "queued"
	StatusRunning   RunStatus = "running"
	StatusCompleted RunStatus = "completed"
	StatusFailed    RunStatus = "failed"
	StatusCanceled  RunStatus = "canceled"
)

// Run is the pollable view of one analysis.
type Run struct {
	ID          string                 `json:"id"`
	CameraID    string                 `json:"camera_id"`
	FilePath    string                 `json:"file_path"`
	Types       []models.RiskType      `json:"types,omitempty"`
	Status      RunStatus              `json:"status"`
	SubmittedAt time.Time              `json:"submitted_at"`
	FinishedAt  time.Time              `json:"finished_at,omitempty"`
	Error       string                 `json:"error,omitempty"`
	Timeline    []models.TimelineEntry `json:"timeline,omitempty"`
}

// TimelineStore persists completed timelines. Nil disables persistence.
type TimelineStore interface {
	SaveTimeline(ctx context.Context, runID, cameraID string, entries []models.TimelineEntry) error
}

// run is the internal state behind a Run snapshot.
type run struct {
	Run
	cancel func()
}

// Analyzer executes historical analysis runs with bounded concurrency.
type Analyzer struct {
	cfg        config.HistoricalConfig
	samplerCfg config.SamplerConfig
	rules      config.AlertingConfig
	detector   detect.Detector
	store      TimelineStore
	openFile   sampler.OpenFileFunc

	sem chan struct{}

	mu   sync.Mutex
	runs map[string]*run
}

// New creates an analyzer. A nil openFile falls back to the OpenCV file
// capture.
func New(cfg config.HistoricalConfig, samplerCfg config.SamplerConfig, rules config.AlertingConfig,
	detector detect.Detector, store TimelineStore, openFile sampler.OpenFileFunc) *Analyzer {
	slots := cfg.MaxConcurrentRuns
	if slots < 1 {
		slots = 1
	}
	return &Analyzer{
		cfg:        cfg,
		samplerCfg: samplerCfg,
		rules:      rules,
		detector:   detector,
		store:      store,
		openFile:   openFile,
		sem:        make(chan struct{}, slots),
		runs:       make(map[string]*run),
	}
}

// Submit registers a new analysis run and returns its id. The run executes
// asynchronously; excess runs wait for a concurrency slot in submit order.
func (a *Analyzer) Submit(filePath, cameraID string, types []models.RiskType) (string, error) {
	if _, err := os.Stat(filePath); err != nil {
		return "", fmt.Errorf("analysis source: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &run{
		Run: Run{
			ID:          uuid.NewString(),
			CameraID:    cameraID,
			FilePath:    filePath,
			Types:       types,
			Status:      StatusQueued,
			SubmittedAt: time.Now(),
		},
		cancel: cancel,
	}

	a.mu.Lock()
	a.pruneLocked()
	a.runs[r.ID] = r
	a.mu.Unlock()

	go a.execute(ctx, r)

	logging.Info().
		Str("run_id", r.ID).
		Str("camera_id", cameraID).
		Str("file", filePath).
		Msg("historical analysis submitted")
	return r.ID, nil
}

// Poll returns the current snapshot of a run.
func (a *Analyzer) Poll(id string) (Run, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pruneLocked()
	r, ok := a.runs[id]
	if !ok {
		return Run{}, false
	}
	snap := r.Run
	snap.Timeline = append([]models.TimelineEntry(nil), r.Timeline...)
	return snap, true
}

// Cancel aborts a queued or running analysis.
func (a *Analyzer) Cancel(id string) bool {
	a.mu.Lock()
	r, ok := a.runs[id]
	a.mu.Unlock()
	if !ok {
		return false
	}
	r.cancel()
	return true
}

// execute drives one run to completion.
func (a *Analyzer) execute(ctx context.Context, r *run) {
	select {
	case a.sem <- struct{}{}:
		defer func() { <-a.sem }()
	case <-ctx.Done():
		a.finish(r, StatusCanceled, nil, ctx.Err())
		return
	}
	a.setStatus(r, StatusRunning)

	var wanted map[models.RiskType]bool
	if len(r.Types) > 0 {
		wanted = make(map[models.RiskType]bool, len(r.Types))
		for _, t := range r.Types {
			wanted[t] = true
		}
	}

	// A fresh engine per run: replay state never touches live state, and
	// two runs over the same camera id cannot interfere.
	engine := alerting.NewEngine(a.rules)
	source := sampler.NewFileSource(r.FilePath, a.samplerCfg.FPS, a.openFile)
	base := time.Unix(0, 0).UTC()

	var entries []models.TimelineEntry
	err := source.Each(ctx, r.CameraID, base, func(frame models.Frame) error {
		detections, err := a.detector.Detect(ctx, &frame)
		if err != nil {
			// Same stance as live: one bad frame never kills the run.
			metrics.DetectorErrors.Inc()
			logging.Warn().Str("run_id", r.ID).Int64("seq", frame.Seq).Err(err).
				Msg("detector call failed during historical run")
			return nil
		}

		if wanted != nil {
			kept := detections[:0:0]
			for _, d := range detections {
				if wanted[d.Type] {
					kept = append(kept, d)
				}
			}
			detections = kept
		}

		for _, d := range detections {
			entries = append(entries, models.TimelineEntry{
				Timestamp:  d.Timestamp,
				Type:       d.Type,
				Confidence: d.Confidence,
			})
		}
		for _, alert := range engine.Process(frame, detections) {
			entries = append(entries, models.TimelineEntry{
				Timestamp:  alert.CreatedAt,
				Type:       alert.Type,
				Confidence: alert.Confidence,
				Alert:      true,
			})
		}
		return nil
	})

	if err != nil {
		if ctx.Err() != nil {
			a.finish(r, StatusCanceled, entries, err)
			return
		}
		a.finish(r, StatusFailed, entries, err)
		return
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})

	if a.store != nil {
		storeCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := a.store.SaveTimeline(storeCtx, r.ID, r.CameraID, entries); err != nil {
			logging.Error().Str("run_id", r.ID).Err(err).Msg("timeline persistence failed")
		}
	}
	a.finish(r, StatusCompleted, entries, nil)
}

func (a *Analyzer) setStatus(r *run, status RunStatus) {
	a.mu.Lock()
	r.Status = status
	a.mu.Unlock()
}

func (a *Analyzer) finish(r *run, status RunStatus, entries []models.TimelineEntry, err error) {
	a.mu.Lock()
	r.Status = status
	r.Timeline = entries
	r.FinishedAt = time.Now()
	if err != nil {
		r.Error = err.Error()
	}
	a.mu.Unlock()

	metrics.HistoricalRuns.WithLabelValues(string(status)).Inc()
	logging.Info().
		Str("run_id", r.ID).
		Str("status", string(status)).
		Int("timeline_entries", len(entries)).
		Msg("historical analysis finished")
}

// pruneLocked drops finished runs past the result TTL. Caller must hold
// a.mu.
func (a *Analyzer) pruneLocked() {
	if a.cfg.ResultTTL <= 0 {
		return
	}
	horizon := time.Now().Add(-a.cfg.ResultTTL)
	for id, r := range a.runs {
		switch r.Status {
		case StatusCompleted, StatusFailed, StatusCanceled:
			if r.FinishedAt.Before(horizon) {
				delete(a.runs, id)
			}
		}
	}
}
