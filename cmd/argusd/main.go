// Argus - Multi-Camera Risk Detection and Alerting
// Copyright 2026 D. Almeida (argus-vision)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/argus-vision/argus

// Package main is the entry point for the argusd daemon.
//
// Argus monitors live camera feeds for high-risk situations: weapons,
// violence, crowd formation and fire. It resolves camera stream URLs,
// samples frames at a configured analysis rate, runs them through a
// pluggable detection backend, evaluates sustained detections against the
// alert rules table, records evidence clips around every alert and pushes
// alerts plus session state to operators over websocket, MQTT, NATS and
// webhooks.
//
// Startup order:
//
//  1. Configuration: Koanf v2 layered load (defaults, YAML file, ARGUS_ env)
//  2. Catalog: read-only camera and conflict-zone records
//  3. Stores: DuckDB alert/timeline store and MinIO clip store (optional)
//  4. Pipeline: resolver, detector pool, rule engine, notifier chain
//  5. Supervision: suture tree running the pool, the orchestrator, the
//     websocket hub and the HTTP server
//
// Shutdown on SIGINT/SIGTERM is graceful: sessions stop, pending clips
// flush and the HTTP server drains within the configured timeout.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/argus-vision/argus/internal/alerting"
	"github.com/argus-vision/argus/internal/api"
	"github.com/argus-vision/argus/internal/catalog"
	"github.com/argus-vision/argus/internal/config"
	"github.com/argus-vision/argus/internal/detect"
	"github.com/argus-vision/argus/internal/historical"
	"github.com/argus-vision/argus/internal/logging"
	"github.com/argus-vision/argus/internal/recorder"
	"github.com/argus-vision/argus/internal/resolver"
	"github.com/argus-vision/argus/internal/session"
	"github.com/argus-vision/argus/internal/storage"
	"github.com/argus-vision/argus/internal/supervisor"
	"github.com/argus-vision/argus/internal/supervisor/services"
	ws "github.com/argus-vision/argus/internal/websocket"
)

func main() {
	// Optional .env for local development; real deployments set the
	// environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("cameras_path", cfg.Catalog.CamerasPath).
		Int("max_streams", cfg.Sessions.MaxConcurrentStreams).
		Float64("sample_fps", cfg.Sampler.FPS).
		Msg("starting argusd")

	cat, err := catalog.Load(cfg.Catalog.CamerasPath, cfg.Catalog.ZonesPath)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to load camera catalog")
	}
	logging.Info().Int("cameras", len(cat.Cameras())).Msg("camera catalog loaded")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Alert persistence is optional; without it alerts are broadcast and
	// notified but not queryable.
	var alertStore *storage.AlertStore
	if cfg.Database.Enabled {
		alertStore, err = storage.OpenAlertStore(cfg.Database)
		if err != nil {
			logging.Fatal().Err(err).Msg("failed to open alert store")
		}
		defer func() {
			if err := alertStore.Close(); err != nil {
				logging.Error().Err(err).Msg("error closing alert store")
			}
		}()
		logging.Info().Str("path", cfg.Database.Path).Msg("alert store opened")
	} else {
		logging.Info().Msg("alert persistence disabled")
	}

	// Clips go to MinIO when configured, otherwise to the local filesystem.
	var clipStore recorder.ClipStore
	if cfg.Storage.Enabled {
		minioStore, err := storage.NewMinIOClipStore(ctx, cfg.Storage)
		if err != nil {
			logging.Fatal().Err(err).Msg("failed to connect to clip storage")
		}
		clipStore = minioStore
		logging.Info().
			Str("endpoint", cfg.Storage.Endpoint).
			Str("bucket", cfg.Storage.Bucket).
			Msg("object clip storage enabled")
	} else {
		clipStore = &storage.FSClipStore{Dir: cfg.Recorder.WorkDir + "/archive"}
		logging.Info().Str("dir", cfg.Recorder.WorkDir+"/archive").Msg("filesystem clip storage enabled")
	}

	detector := detect.FromConfig(cfg.Detector)
	pool := detect.NewPool(cfg.Detector, detector)
	engine := alerting.NewEngine(cfg.Alerting)
	notifier := alerting.NewFanout(cfg.Notify)
	res := resolver.New(cfg.Resolver, nil)
	hub := ws.NewHub()

	opts := session.Options{
		Catalog:   cat,
		Resolver:  res,
		Pool:      pool,
		Engine:    engine,
		Notifier:  notifier,
		Clips:     clipStore,
		Broadcast: hub,
	}
	if alertStore != nil {
		opts.Alerts = alertStore
	}
	orch := session.NewOrchestrator(*cfg, opts)

	var timelineStore historical.TimelineStore
	if alertStore != nil {
		timelineStore = alertStore
	}
	analyzer := historical.New(cfg.Historical, cfg.Sampler, cfg.Alerting, detector, timelineStore, nil)

	handlers := api.NewHandlers(orch, alertStore, analyzer, hub)
	router := api.NewRouter(cfg.Server, handlers)
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.Setup(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	treeCfg := supervisor.DefaultTreeConfig()
	treeCfg.ShutdownTimeout = cfg.Server.ShutdownTimeout
	tree := supervisor.NewTree(logging.NewSlogLogger(), treeCfg)

	tree.AddPipelineService(services.NewRunnerService("detector-pool", pool.Run))
	tree.AddPipelineService(services.NewRunnerService("session-orchestrator", orch.Serve))
	tree.AddMessagingService(services.NewRunnerService("websocket-hub", hub.RunWithContext))
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))
	logging.Info().Str("addr", server.Addr).Msg("services added to supervisor tree")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("received shutdown signal")
		cancel()
	}()

	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("context canceled, waiting for supervisor to finish")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("supervisor tree error")
		}
	}
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("service failed to stop within timeout")
	}

	logging.Info().Msg("argusd stopped")
}
