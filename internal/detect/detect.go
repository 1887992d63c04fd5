// Argus - Multi-Camera Risk Detection and Alerting
// Copyright 2026 D. Almeida (argus-vision)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/argus-vision/argus

// Package detect defines the injected detection capability and the shared
// worker pool that feeds frames to it. Argus ships no models of its own:
// detection is an interface, and the default adapter calls an external HTTP
// inference service.
package detect

import (
	"context"

	"github.com/argus-vision/argus/internal/config"
	"github.com/argus-vision/argus/internal/models"
)

// Detector analyzes one frame. Implementations must be safe for concurrent
// calls unless they declare gpu affinity, in which case the pool serializes
// access for them.
type Detector interface {
	Detect(ctx context.Context, frame *models.Frame) ([]models.Detection, error)
}

// Noop is a detector that finds nothing. Used for dry runs when no inference
// endpoint is configured.
type Noop struct{}

func (Noop) Detect(context.Context, *models.Frame) ([]models.Detection, error) {
	return nil, nil
}

// FromConfig builds the configured detector: the HTTP adapter when an
// endpoint is set, otherwise Noop.
func FromConfig(cfg config.DetectorConfig) Detector {
	if cfg.Endpoint == "" {
		return Noop{}
	}
	return NewHTTPDetector(cfg, nil)
}
