// Argus - Multi-Camera Risk Detection and Alerting
// Copyright 2026 D. Almeida (argus-vision)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/argus-vision/argus

package sampler

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"gocv.io/x/gocv"
)

// ErrSourceExhausted marks the normal end of a finite source (a local file).
// Live sources never return it.
var ErrSourceExhausted = errors.New("sampler: source exhausted")

var errCaptureClosed = errors.New("sampler: capture closed")

// gocvCapture wraps an OpenCV VideoCapture. The decode buffer is kept at one
// frame so reads track the live edge instead of replaying a driver backlog.
type gocvCapture struct {
	mu     sync.Mutex
	cap    *gocv.VideoCapture
	mat    gocv.Mat
	live   bool
	closed atomic.Bool
}

// OpenLive opens a live stream (RTSP, HLS, SRT) for sampling.
func OpenLive(mediaURL string) (Capture, error) {
	cap, err := gocv.OpenVideoCapture(mediaURL)
	if err != nil {
		return nil, fmt.Errorf("open stream %s: %w", mediaURL, err)
	}
	cap.Set(gocv.VideoCaptureBufferSize, 1)
	return &gocvCapture{cap: cap, mat: gocv.NewMat(), live: true}, nil
}

// OpenFile opens a local video file. Next returns ErrSourceExhausted after
// the last frame.
func OpenFile(path string) (FileCapture, error) {
	cap, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, fmt.Errorf("open file %s: %w", path, err)
	}
	return &gocvCapture{cap: cap, mat: gocv.NewMat()}, nil
}

// Next implements Capture.
func (c *gocvCapture) Next() ([]byte, int, int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return nil, 0, 0, errCaptureClosed
	}
	if ok := c.cap.Read(&c.mat); !ok || c.mat.Empty() {
		// A concurrent Close releases the underlying capture, which makes
		// a blocked Read return false.
		if c.closed.Load() {
			return nil, 0, 0, errCaptureClosed
		}
		if c.live {
			return nil, 0, 0, errors.New("stream read returned no frame")
		}
		return nil, 0, 0, ErrSourceExhausted
	}

	buf, err := gocv.IMEncode(".jpg", c.mat)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()

	data := make([]byte, len(buf.GetBytes()))
	copy(data, buf.GetBytes())
	return data, c.mat.Cols(), c.mat.Rows(), nil
}

// FPS reports the source's native frame rate, or 0 when the container does
// not declare one.
func (c *gocvCapture) FPS() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed.Load() {
		return 0
	}
	return c.cap.Get(gocv.VideoCaptureFPS)
}

// PosSeconds reports the current media position.
func (c *gocvCapture) PosSeconds() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed.Load() {
		return 0
	}
	return c.cap.Get(gocv.VideoCapturePosMsec) / 1000
}

// Close implements Capture. It may be called while another goroutine is
// blocked in Next: releasing the underlying capture first, outside the read
// lock, forces the pending read to return.
func (c *gocvCapture) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := c.cap.Close()

	// Free the decode buffer once the reader is out.
	c.mu.Lock()
	c.mat.Close()
	c.mu.Unlock()
	return err
}
