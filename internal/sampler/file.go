// Argus - Multi-Camera Risk Detection and Alerting
// Copyright 2026 D. Almeida (argus-vision)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/argus-vision/argus

package sampler

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/argus-vision/argus/internal/models"
)

// FileCapture extends Capture with the media metadata historical analysis
// needs to map frames onto a timeline.
type FileCapture interface {
	Capture

	// FPS is the container's declared frame rate, 0 when unknown.
	FPS() float64

	// PosSeconds is the media position of the most recently decoded frame.
	PosSeconds() float64
}

// OpenFileFunc opens a finite local source.
type OpenFileFunc func(path string) (FileCapture, error)

// FileSource samples a recorded file at the analysis rate. Unlike the live
// sampler it is paced by media time, not wall clock: a one-hour recording is
// analyzed as fast as decode allows, and frame timestamps are the run base
// plus each frame's media offset.
type FileSource struct {
	path string
	fps  float64
	open OpenFileFunc
}

// NewFileSource creates a file source sampling at fps. A nil open falls
// back to the OpenCV file capture.
func NewFileSource(path string, fps float64, open OpenFileFunc) *FileSource {
	if open == nil {
		open = OpenFile
	}
	return &FileSource{path: path, fps: fps, open: open}
}

// Each decodes the file start to finish and calls fn for every sampled
// frame. Each call opens a fresh capture, so a source is restartable. A nil
// return means the whole file was consumed; fn's first error aborts the run.
func (f *FileSource) Each(ctx context.Context, cameraID string, base time.Time, fn func(models.Frame) error) error {
	capture, err := f.open(f.path)
	if err != nil {
		return &StreamReadError{CameraID: cameraID, Cause: err}
	}
	defer capture.Close()

	native := capture.FPS()
	if native <= 0 {
		native = f.fps
	}
	stride := int(math.Round(native / f.fps))
	if stride < 1 {
		stride = 1
	}

	var (
		decodedCount int
		seq          int64
		lastTS       time.Time
	)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		data, w, h, err := capture.Next()
		if err != nil {
			if errors.Is(err, ErrSourceExhausted) {
				return nil
			}
			return &StreamReadError{CameraID: cameraID, Cause: err}
		}

		decodedCount++
		if (decodedCount-1)%stride != 0 {
			continue
		}

		ts := base.Add(time.Duration(capture.PosSeconds() * float64(time.Second)))
		if !ts.After(lastTS) {
			ts = lastTS.Add(time.Millisecond)
		}
		lastTS = ts

		seq++
		frame := models.Frame{
			CameraID:  cameraID,
			Seq:       seq,
			Timestamp: ts,
			Width:     w,
			Height:    h,
			Data:      data,
		}
		if err := fn(frame); err != nil {
			return err
		}
	}
}
