// Argus - Multi-Camera Risk Detection and Alerting
// Copyright 2026 D. Almeida (argus-vision)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/argus-vision/argus

package recorder

import (
	"errors"
	"fmt"

	"gocv.io/x/gocv"

	"github.com/argus-vision/argus/internal/models"
)

// gocvEncoder decodes the buffered JPEG frames and writes an MP4. The
// output frame rate is the sampling rate, so a clip sampled at 2 fps plays
// back over the same wall-clock span it covered.
type gocvEncoder struct{}

func (gocvEncoder) Encode(path string, fps float64, frames []models.Frame) error {
	if len(frames) == 0 {
		return errors.New("no frames to encode")
	}
	if fps <= 0 {
		fps = 1
	}

	first, err := gocv.IMDecode(frames[0].Data, gocv.IMReadColor)
	if err != nil {
		return fmt.Errorf("decode first frame: %w", err)
	}
	width, height := first.Cols(), first.Rows()
	first.Close()

	writer, err := gocv.VideoWriterFile(path, "mp4v", fps, width, height, true)
	if err != nil {
		return fmt.Errorf("open video writer: %w", err)
	}
	defer writer.Close()

	for i := range frames {
		mat, err := gocv.IMDecode(frames[i].Data, gocv.IMReadColor)
		if err != nil {
			return fmt.Errorf("decode frame %d: %w", i, err)
		}
		err = writer.Write(mat)
		mat.Close()
		if err != nil {
			return fmt.Errorf("write frame %d: %w", i, err)
		}
	}
	return nil
}
