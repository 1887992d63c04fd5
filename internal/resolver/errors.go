// Argus - Multi-Camera Risk Detection and Alerting
// Copyright 2026 D. Almeida (argus-vision)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/argus-vision/argus

package resolver

import (
	"fmt"
	"strings"
	"time"
)

// Attempt records one source probe during a resolution, for the operator-
// visible attempt trail.
type Attempt struct {
	URL      string        `json:"url"`
	Err      string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// ResolutionError reports that every source of a camera failed. The
// orchestrator treats it as transient and retries with backoff; it never
// removes the camera.
type ResolutionError struct {
	CameraID string
	Attempts []Attempt
}

func (e *ResolutionError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s: %s", a.URL, a.Err))
	}
	return fmt.Sprintf("resolver: all %d sources failed for camera %s (%s)",
		len(e.Attempts), e.CameraID, strings.Join(parts, "; "))
}
