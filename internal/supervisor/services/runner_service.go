// Argus - Multi-Camera Risk Detection and Alerting
// Copyright 2026 D. Almeida (argus-vision)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/argus-vision/argus

package services

import "context"

// RunnerService adapts any context-driven run loop to suture.Service. The
// websocket hub (RunWithContext), the session orchestrator (Serve) and the
// detector pool (Run) all fit this shape.
type RunnerService struct {
	name string
	run  func(ctx context.Context) error
}

// NewRunnerService wraps a run loop under the given service name.
func NewRunnerService(name string, run func(ctx context.Context) error) *RunnerService {
	return &RunnerService{name: name, run: run}
}

// Serve implements suture.Service.
func (s *RunnerService) Serve(ctx context.Context) error {
	return s.run(ctx)
}

// String names the service in suture logs.
func (s *RunnerService) String() string { return s.name }
