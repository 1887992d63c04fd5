// Argus - Multi-Camera Risk Detection and Alerting
// Copyright 2026 D. Almeida (argus-vision)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/argus-vision/argus

// Package resolver turns a camera's declared sources into a decodable
// StreamHandle. Resolution tries the primary source first and each backup in
// declared order; the first success wins. Successful resolutions are cached
// per camera with a TTL, and a playback error reported by the session
// invalidates the cache entry immediately.
//
// A per-camera circuit breaker keeps a flapping camera from being probed on
// every reconnect tick while its sources are down.
package resolver

import (
	"context"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/argus-vision/argus/internal/config"
	"github.com/argus-vision/argus/internal/logging"
	"github.com/argus-vision/argus/internal/metrics"
	"github.com/argus-vision/argus/internal/models"
)

// Resolver resolves camera sources into stream handles.
type Resolver struct {
	cfg    config.ResolverConfig
	prober Prober
	now    func() time.Time

	mu       sync.Mutex
	cache    map[string]models.StreamHandle
	breakers map[string]*gobreaker.CircuitBreaker[models.StreamHandle]
}

// New creates a Resolver. A nil prober gets the default HTTP/RTSP prober.
func New(cfg config.ResolverConfig, prober Prober) *Resolver {
	if prober == nil {
		prober = NewDefaultProber(nil)
	}
	return &Resolver{
		cfg:      cfg,
		prober:   prober,
		now:      time.Now,
		cache:    make(map[string]models.StreamHandle),
		breakers: make(map[string]*gobreaker.CircuitBreaker[models.StreamHandle]),
	}
}

// Resolve returns a usable StreamHandle for the camera. A cache hit skips
// all network probes. On failure the returned error is a *ResolutionError
// carrying the full attempt trail, or the breaker's open-state error when
// the camera is in cooldown after repeated failures.
func (r *Resolver) Resolve(ctx context.Context, cam models.Camera) (models.StreamHandle, error) {
	now := r.now()

	r.mu.Lock()
	if h, ok := r.cache[cam.ID]; ok && !h.Expired(now) {
		r.mu.Unlock()
		metrics.ResolveCacheHits.Inc()
		logging.Debug().Str("camera_id", cam.ID).Msg("resolution served from cache")
		return h, nil
	}
	breaker := r.breakerFor(cam.ID)
	r.mu.Unlock()

	handle, err := breaker.Execute(func() (models.StreamHandle, error) {
		return r.resolveFresh(ctx, cam)
	})
	if err != nil {
		return models.StreamHandle{}, err
	}

	r.mu.Lock()
	r.cache[cam.ID] = handle
	r.mu.Unlock()
	return handle, nil
}

// resolveFresh probes every source in declared order. The primary is always
// attempted first on a fresh resolution, even if a backup served the
// previous session: the declared primary is never silently abandoned.
func (r *Resolver) resolveFresh(ctx context.Context, cam models.Camera) (models.StreamHandle, error) {
	overall, cancel := context.WithTimeout(ctx, r.cfg.TotalTimeout)
	defer cancel()

	sources := cam.Sources()
	attempts := make([]Attempt, 0, len(sources))

	for i, src := range sources {
		start := r.now()

		attemptCtx, attemptCancel := context.WithTimeout(overall, r.cfg.AttemptTimeout)
		mediaURL, err := r.prober.Probe(attemptCtx, src)
		attemptCancel()

		if err == nil {
			metrics.ResolveAttempts.WithLabelValues("ok").Inc()
			now := r.now()
			logging.Info().
				Str("camera_id", cam.ID).
				Int("source_index", i).
				Int("attempts", len(attempts)+1).
				Msg("stream resolved")
			return models.StreamHandle{
				CameraID:   cam.ID,
				MediaURL:   mediaURL,
				SourceUsed: i,
				ResolvedAt: now,
				ExpiresAt:  now.Add(r.cfg.CacheTTL),
			}, nil
		}

		attempts = append(attempts, Attempt{
			URL:      src,
			Err:      err.Error(),
			Duration: r.now().Sub(start),
		})
		metrics.ResolveAttempts.WithLabelValues("error").Inc()
		logging.Warn().
			Str("camera_id", cam.ID).
			Str("source", src).
			Err(err).
			Msg("source attempt failed")

		if overall.Err() != nil {
			// Overall budget exhausted; stop trying further backups.
			metrics.ResolveAttempts.WithLabelValues("timeout").Inc()
			break
		}
	}

	return models.StreamHandle{}, &ResolutionError{CameraID: cam.ID, Attempts: attempts}
}

// Invalidate drops the cached handle for a camera. Sessions call this when
// playback fails on a handle that resolution considered good.
func (r *Resolver) Invalidate(cameraID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.cache[cameraID]; ok {
		delete(r.cache, cameraID)
		logging.Debug().Str("camera_id", cameraID).Msg("cached resolution invalidated")
	}
}

// breakerFor returns the camera's breaker, creating it on first use.
// Caller must hold r.mu.
func (r *Resolver) breakerFor(cameraID string) *gobreaker.CircuitBreaker[models.StreamHandle] {
	if b, ok := r.breakers[cameraID]; ok {
		return b
	}

	threshold := r.cfg.ConsecutiveFailures
	if threshold == 0 {
		threshold = 5
	}
	b := gobreaker.NewCircuitBreaker[models.StreamHandle](gobreaker.Settings{
		Name:        "resolve-" + cameraID,
		MaxRequests: 1,
		Timeout:     r.cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("resolver breaker state changed")
		},
	})
	r.breakers[cameraID] = b
	return b
}
