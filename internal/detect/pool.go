// Argus - Multi-Camera Risk Detection and Alerting
// Copyright 2026 D. Almeida (argus-vision)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/argus-vision/argus

package detect

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/argus-vision/argus/internal/config"
	"github.com/argus-vision/argus/internal/logging"
	"github.com/argus-vision/argus/internal/metrics"
	"github.com/argus-vision/argus/internal/models"
)

// Result pairs a frame with what the detector found on it. Frames with zero
// detections still produce a Result so the rule engine can observe gaps.
type Result struct {
	Frame      models.Frame
	Detections []models.Detection
}

// Pool is the detection worker pool shared by every camera session. It
// bounds concurrent detector calls and the pending queue; a detector error
// on one frame is logged and swallowed so the next frame is never blocked
// behind it.
//
// Frames are sharded to workers by camera id, one queue per worker, so all
// frames of one camera run on the same worker in submission order. The rule
// engine's sustain windows assume monotone frame timestamps per camera;
// sharding keeps that holding even with several workers.
type Pool struct {
	cfg      config.DetectorConfig
	detector Detector
	shards   []chan models.Frame
	out      chan Result
}

// NewPool creates the pool. A gpu-affine detector shares one device
// context, so its worker count is forced to one regardless of configuration.
func NewPool(cfg config.DetectorConfig, detector Detector) *Pool {
	queue := cfg.QueueDepth
	if queue <= 0 {
		queue = 16
	}
	p := &Pool{
		cfg:      cfg,
		detector: detector,
		out:      make(chan Result, queue),
	}
	p.shards = make([]chan models.Frame, p.workers())
	for i := range p.shards {
		p.shards[i] = make(chan models.Frame, queue)
	}
	return p
}

// shard maps a camera to its worker queue.
func (p *Pool) shard(cameraID string) chan models.Frame {
	h := fnv.New32a()
	h.Write([]byte(cameraID))
	return p.shards[h.Sum32()%uint32(len(p.shards))]
}

// Submit offers a frame to the pool without blocking. It reports false when
// the camera's shard queue is full; the caller drops the frame, consistent
// with the sampler's drop-never-queue stance.
func (p *Pool) Submit(frame models.Frame) bool {
	select {
	case p.shard(frame.CameraID) <- frame:
		metrics.DetectionQueueDepth.Set(float64(p.queued()))
		return true
	default:
		metrics.FramesDropped.WithLabelValues(frame.CameraID).Inc()
		return false
	}
}

// queued is the total pending frame count across shards.
func (p *Pool) queued() int {
	total := 0
	for _, ch := range p.shards {
		total += len(ch)
	}
	return total
}

// Results is the detection outcome stream, ordered per camera.
func (p *Pool) Results() <-chan Result { return p.out }

// workers resolves the effective worker count under device affinity.
func (p *Pool) workers() int {
	if p.cfg.Device == "gpu" {
		return 1
	}
	if p.cfg.Workers < 1 {
		return 1
	}
	return p.cfg.Workers
}

// Run serves the pool until the context is canceled. Implements
// suture.Service.
func (p *Pool) Run(ctx context.Context) error {
	n := p.workers()
	logging.Info().
		Int("workers", n).
		Str("device", p.cfg.Device).
		Msg("detection pool starting")

	var wg sync.WaitGroup
	for _, shard := range p.shards {
		wg.Add(1)
		go func(in <-chan models.Frame) {
			defer wg.Done()
			p.worker(ctx, in)
		}(shard)
	}
	wg.Wait()
	return ctx.Err()
}

func (p *Pool) worker(ctx context.Context, in <-chan models.Frame) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-in:
			metrics.DetectionQueueDepth.Set(float64(p.queued()))
			p.detect(ctx, frame)
		}
	}
}

// detect runs one detector call. Errors are terminal for this frame only.
func (p *Pool) detect(ctx context.Context, frame models.Frame) {
	callCtx := ctx
	if p.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, p.cfg.RequestTimeout)
		defer cancel()
	}

	start := time.Now()
	detections, err := p.detector.Detect(callCtx, &frame)
	metrics.DetectorCallDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.DetectorErrors.Inc()
		logging.Warn().
			Str("camera_id", frame.CameraID).
			Int64("seq", frame.Seq).
			Err(err).
			Msg("detector call failed, frame skipped")
		return
	}

	select {
	case p.out <- Result{Frame: frame, Detections: detections}:
	case <-ctx.Done():
	}
}
