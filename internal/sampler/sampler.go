// Argus - Multi-Camera Risk Detection and Alerting
// Copyright 2026 D. Almeida (argus-vision)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/argus-vision/argus

// Package sampler decodes video sources and emits frames at the configured
// analysis rate. The decoder runs at the source's native pace in its own
// goroutine; the sampling loop takes the freshest decoded frame at each
// analysis tick and discards everything in between. Frames are dropped,
// never queued: detection always sees the most recent view of the scene.
//
// All capture-backend code (OpenCV via gocv) is confined to this package and
// the recorder. Frames leave here JPEG-encoded.
package sampler

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/argus-vision/argus/internal/config"
	"github.com/argus-vision/argus/internal/logging"
	"github.com/argus-vision/argus/internal/metrics"
	"github.com/argus-vision/argus/internal/models"
)

// StreamReadError reports that an open stream stopped yielding frames: a
// decode failure, a closed connection, or a stall past the configured
// timeout. The session reacts by invalidating the resolved handle and
// re-entering resolution.
type StreamReadError struct {
	CameraID string
	Cause    error
}

func (e *StreamReadError) Error() string {
	return fmt.Sprintf("sampler: stream read failed for camera %s: %v", e.CameraID, e.Cause)
}

func (e *StreamReadError) Unwrap() error { return e.Cause }

// Capture is one open video source delivering JPEG-encoded frames.
type Capture interface {
	// Next blocks until the next decoded frame. It returns an error when
	// the source is exhausted or unreadable.
	Next() (data []byte, width, height int, err error)
	Close() error
}

// OpenFunc opens a capture for a resolved media URL.
type OpenFunc func(mediaURL string) (Capture, error)

// Sampler drives one camera's frame flow. One Sampler per session; Run is
// called once per connection attempt and returns when the stream fails or
// the context is canceled.
type Sampler struct {
	cfg      config.SamplerConfig
	cameraID string
	open     OpenFunc

	out chan models.Frame
	seq atomic.Int64
}

// New creates a Sampler for a camera. A nil open falls back to the OpenCV
// live capture.
func New(cfg config.SamplerConfig, cameraID string, open OpenFunc) *Sampler {
	if open == nil {
		open = OpenLive
	}
	depth := cfg.ChannelDepth
	if depth <= 0 {
		depth = 1
	}
	return &Sampler{
		cfg:      cfg,
		cameraID: cameraID,
		open:     open,
		out:      make(chan models.Frame, depth),
	}
}

// Frames is the sampled frame channel. It stays open across reconnects;
// the session owns the Sampler's lifetime.
func (s *Sampler) Frames() <-chan models.Frame { return s.out }

type decoded struct {
	data          []byte
	width, height int
	err           error
}

// Run opens the handle's media URL and samples it until the context is
// canceled or the stream fails. A stream failure returns *StreamReadError;
// cancellation returns ctx.Err().
func (s *Sampler) Run(ctx context.Context, handle models.StreamHandle) error {
	capture, err := s.open(handle.MediaURL)
	if err != nil {
		return &StreamReadError{CameraID: s.cameraID, Cause: err}
	}

	// Run owns the capture. Closing it on the way out forces a decoder
	// blocked inside Next to return, so a stalled stream never leaks the
	// goroutine or the open handle past the stop.
	stop := make(chan struct{})
	defer func() {
		close(stop)
		capture.Close()
	}()

	// Single-producer freshest-frame slot. The decoder replaces a stale
	// undelivered frame instead of blocking behind the sampling tick.
	fresh := make(chan decoded, 1)
	go func() {
		for {
			select {
			case <-stop:
				return
			default:
			}

			data, w, h, err := capture.Next()
			d := decoded{data: data, width: w, height: h, err: err}
			select {
			case fresh <- d:
			default:
				select {
				case <-fresh:
					metrics.FramesDropped.WithLabelValues(s.cameraID).Inc()
				default:
				}
				fresh <- d
			}
			if err != nil {
				return
			}
		}
	}()

	limiter := rate.NewLimiter(rate.Limit(s.cfg.FPS), 1)
	stall := time.NewTimer(s.cfg.StallTimeout)
	defer stall.Stop()

	var lastTS time.Time
	for {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}

		if !stall.Stop() {
			select {
			case <-stall.C:
			default:
			}
		}
		stall.Reset(s.cfg.StallTimeout)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stall.C:
			return &StreamReadError{
				CameraID: s.cameraID,
				Cause:    fmt.Errorf("no frame decoded within %s", s.cfg.StallTimeout),
			}
		case d := <-fresh:
			if d.err != nil {
				return &StreamReadError{CameraID: s.cameraID, Cause: d.err}
			}

			// Wall-clock timestamps with a strictly-increasing guard:
			// downstream sustain windows assume monotone frame times.
			ts := time.Now()
			if !ts.After(lastTS) {
				ts = lastTS.Add(time.Millisecond)
			}
			lastTS = ts

			frame := models.Frame{
				CameraID:  s.cameraID,
				Seq:       s.seq.Add(1),
				Timestamp: ts,
				Width:     d.width,
				Height:    d.height,
				Data:      d.data,
			}

			select {
			case s.out <- frame:
				metrics.FramesSampled.WithLabelValues(s.cameraID).Inc()
			default:
				// Detection is behind; drop rather than queue.
				metrics.FramesDropped.WithLabelValues(s.cameraID).Inc()
				logging.Debug().
					Str("camera_id", s.cameraID).
					Int64("seq", frame.Seq).
					Msg("frame dropped, detection backlog full")
			}
		}
	}
}
