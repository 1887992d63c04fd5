// Argus - Multi-Camera Risk Detection and Alerting
// Copyright 2026 D. Almeida (argus-vision)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/argus-vision/argus

package supervisor

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/argus-vision/argus/internal/logging"
	"github.com/argus-vision/argus/internal/supervisor/services"
)

func TestTreeRunsServicesInAllLayers(t *testing.T) {
	tree := NewTree(logging.NewSlogLogger(), DefaultTreeConfig())

	var started atomic.Int32
	loop := func(ctx context.Context) error {
		started.Add(1)
		<-ctx.Done()
		return ctx.Err()
	}
	tree.AddPipelineService(services.NewRunnerService("pipeline-loop", loop))
	tree.AddMessagingService(services.NewRunnerService("messaging-loop", loop))
	tree.AddAPIService(services.NewRunnerService("api-loop", loop))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := tree.ServeBackground(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for started.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := started.Load(); got != 3 {
		t.Fatalf("started services = %d, want 3", got)
	}

	cancel()
	select {
	case <-errCh:
	case <-time.After(2 * time.Second):
		t.Fatal("tree never stopped after cancel")
	}
}

func TestTreeAppliesDefaultsForZeroConfig(t *testing.T) {
	tree := NewTree(logging.NewSlogLogger(), TreeConfig{})
	if tree.config.FailureThreshold != 5.0 {
		t.Errorf("FailureThreshold = %v", tree.config.FailureThreshold)
	}
	if tree.config.ShutdownTimeout != 10*time.Second {
		t.Errorf("ShutdownTimeout = %v", tree.config.ShutdownTimeout)
	}
}
