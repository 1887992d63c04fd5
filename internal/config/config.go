// Argus - Multi-Camera Risk Detection and Alerting
// Copyright 2026 D. Almeida (argus-vision)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/argus-vision/argus

// Package config holds all Argus configuration, loaded with Koanf v2 in
// layered order (highest priority wins):
//
//  1. Built-in defaults (structs provider)
//  2. Optional YAML config file (config.yaml, or ARGUS_CONFIG_PATH)
//  3. Environment variables with the ARGUS_ prefix
//
// The alert rules table, sampling rate, resolver timeouts, recorder windows
// and the stream concurrency ceiling are all configuration rather than
// package constants, so deployments can tune them without rebuilding.
//
// Config is immutable after Load() and safe for concurrent reads.
package config

import (
	"time"

	"github.com/argus-vision/argus/internal/models"
)

// Config is the root configuration object.
type Config struct {
	Catalog    CatalogConfig    `koanf:"catalog"`
	Resolver   ResolverConfig   `koanf:"resolver"`
	Sampler    SamplerConfig    `koanf:"sampler"`
	Detector   DetectorConfig   `koanf:"detector"`
	Alerting   AlertingConfig   `koanf:"alerting"`
	Recorder   RecorderConfig   `koanf:"recorder"`
	Sessions   SessionsConfig   `koanf:"sessions"`
	Historical HistoricalConfig `koanf:"historical"`
	Storage    StorageConfig    `koanf:"storage"`
	Database   DatabaseConfig   `koanf:"database"`
	Notify     NotifyConfig     `koanf:"notify"`
	Server     ServerConfig     `koanf:"server"`
	Logging    LoggingConfig    `koanf:"logging"`
}

// CatalogConfig locates the read-only camera and conflict-zone catalogs.
type CatalogConfig struct {
	// CamerasPath is the YAML file with camera records.
	CamerasPath string `koanf:"cameras_path" validate:"required"`

	// ZonesPath is the YAML file with conflict-zone polygons. Optional:
	// without zones every camera gets admission risk 0.
	ZonesPath string `koanf:"zones_path"`
}

// ResolverConfig tunes stream resolution and its cache.
type ResolverConfig struct {
	// AttemptTimeout bounds each single source attempt.
	AttemptTimeout time.Duration `koanf:"attempt_timeout"`

	// TotalTimeout bounds one whole resolution (primary + all backups).
	TotalTimeout time.Duration `koanf:"total_timeout"`

	// CacheTTL is how long a successful resolution stays valid. A playback
	// error invalidates the entry immediately regardless of TTL.
	CacheTTL time.Duration `koanf:"cache_ttl"`

	// Breaker settings for the per-camera circuit breaker over source
	// probes. After ConsecutiveFailures failures the breaker opens for
	// BreakerCooldown before allowing a half-open probe.
	ConsecutiveFailures uint32        `koanf:"consecutive_failures"`
	BreakerCooldown     time.Duration `koanf:"breaker_cooldown"`
}

// SamplerConfig tunes frame sampling.
type SamplerConfig struct {
	// FPS is the analysis rate in frames per second, 1-30.
	FPS float64 `koanf:"fps" validate:"gte=1,lte=30"`

	// StallTimeout is how long a live source may deliver no frames before
	// the session treats it as a stream-read failure.
	StallTimeout time.Duration `koanf:"stall_timeout"`

	// ChannelDepth bounds the frame channel between sampler and detector
	// pool. Frames beyond capacity are dropped, never queued.
	ChannelDepth int `koanf:"channel_depth"`
}

// DetectorConfig describes the injected detection capability.
type DetectorConfig struct {
	// Endpoint is the HTTP inference service URL. Empty disables the
	// remote adapter (a no-op detector is used, useful for dry runs).
	Endpoint string `koanf:"endpoint"`

	// Device is the declared device affinity: cpu or gpu. A gpu detector
	// shares one device context, so the worker pool serializes access.
	Device string `koanf:"device" validate:"omitempty,oneof=cpu gpu"`

	// Workers bounds the detection worker pool shared by all sessions.
	Workers int `koanf:"workers" validate:"gte=1"`

	// RequestTimeout bounds one inference call.
	RequestTimeout time.Duration `koanf:"request_timeout"`

	// QueueDepth bounds pending detection requests across all sessions.
	QueueDepth int `koanf:"queue_depth"`
}

// RuleConfig is one row of the alert rules table.
type RuleConfig struct {
	ConfidenceThreshold float64       `koanf:"confidence_threshold" validate:"gte=0,lte=1"`
	MinDuration         time.Duration `koanf:"min_duration"`
	Cooldown            time.Duration `koanf:"cooldown"`
	Priority            string        `koanf:"priority" validate:"oneof=low medium high critical"`

	// Aggregation picks how confidence is reported over the sustaining
	// window: max (default), mean or last.
	Aggregation string `koanf:"aggregation" validate:"omitempty,oneof=max mean last"`
}

// AlertingConfig holds the rules table keyed by risk type.
type AlertingConfig struct {
	Rules map[string]RuleConfig `koanf:"rules" validate:"dive"`
}

// RecorderConfig tunes the clip recorder.
type RecorderConfig struct {
	// PrerollSeconds is the rolling pre-trigger buffer length
	// (ALERT_CLIP_SECONDS).
	PrerollSeconds int `koanf:"preroll_seconds" validate:"gte=1"`

	// PostrollSeconds is how much footage after the trigger goes into the
	// clip.
	PostrollSeconds int `koanf:"postroll_seconds" validate:"gte=0"`

	// Continuous enables alert-independent recording with fixed-duration
	// segment rollover.
	Continuous     bool `koanf:"continuous"`
	SegmentSeconds int  `koanf:"segment_seconds" validate:"gte=1"`

	// WorkDir is the local scratch directory clips are encoded into
	// before upload.
	WorkDir string `koanf:"work_dir"`
}

// SessionsConfig tunes the orchestrator.
type SessionsConfig struct {
	// MaxConcurrentStreams is the global ceiling on sessions in the
	// streaming state. Excess start requests queue in priority order.
	MaxConcurrentStreams int `koanf:"max_concurrent_streams" validate:"gte=1"`

	// Reconnect backoff: delay doubles from InitialBackoff up to
	// MaxBackoff; after MaxReconnectAttempts the session goes to error and
	// requires an explicit operator restart.
	InitialBackoff       time.Duration `koanf:"initial_backoff"`
	MaxBackoff           time.Duration `koanf:"max_backoff"`
	MaxReconnectAttempts int           `koanf:"max_reconnect_attempts" validate:"gte=1"`

	// StatusInterval is how often aggregate status (with process CPU/RSS)
	// is logged and exported.
	StatusInterval time.Duration `koanf:"status_interval"`
}

// HistoricalConfig tunes offline analysis runs.
type HistoricalConfig struct {
	// MaxConcurrentRuns bounds simultaneous file analyses.
	MaxConcurrentRuns int `koanf:"max_concurrent_runs" validate:"gte=1"`

	// ResultTTL is how long finished runs stay pollable in memory.
	ResultTTL time.Duration `koanf:"result_ttl"`
}

// StorageConfig configures the MinIO clip store.
type StorageConfig struct {
	Enabled       bool   `koanf:"enabled"`
	Endpoint      string `koanf:"endpoint"`
	AccessKey     string `koanf:"access_key"`
	SecretKey     string `koanf:"secret_key"`
	Bucket        string `koanf:"bucket"`
	UseSSL        bool   `koanf:"use_ssl"`
	PublicBaseURL string `koanf:"public_base_url"`
}

// DatabaseConfig configures the DuckDB alert/timeline store.
type DatabaseConfig struct {
	Enabled bool `koanf:"enabled"`

	// Path is the DuckDB database file; empty means in-memory.
	Path string `koanf:"path"`
}

// NotifyConfig configures the alert notifier chain. Every notifier is
// optional and failures never block the pipeline.
type NotifyConfig struct {
	Webhook WebhookNotifyConfig `koanf:"webhook"`
	MQTT    MQTTNotifyConfig    `koanf:"mqtt"`
	NATS    NATSNotifyConfig    `koanf:"nats"`
}

// WebhookNotifyConfig configures the generic webhook notifier.
type WebhookNotifyConfig struct {
	Enabled     bool              `koanf:"enabled"`
	URL         string            `koanf:"url"`
	Headers     map[string]string `koanf:"headers"`
	RateLimitMs int               `koanf:"rate_limit_ms"`
}

// MQTTNotifyConfig configures the MQTT notifier.
type MQTTNotifyConfig struct {
	Enabled   bool   `koanf:"enabled"`
	Host      string `koanf:"host"`
	Port      int    `koanf:"port"`
	Username  string `koanf:"username"`
	Password  string `koanf:"password"`
	ClientID  string `koanf:"client_id"`
	BaseTopic string `koanf:"base_topic"`
}

// NATSNotifyConfig configures the NATS notifier.
type NATSNotifyConfig struct {
	Enabled     bool   `koanf:"enabled"`
	URL         string `koanf:"url"`
	SubjectBase string `koanf:"subject_base"`
}

// ServerConfig configures the control-surface HTTP server.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port" validate:"gte=1,lte=65535"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	// RateLimit is requests per minute per client IP (httprate). Zero
	// disables limiting.
	RateLimit int `koanf:"rate_limit"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"omitempty,oneof=trace debug info warn error"`
	Format string `koanf:"format" validate:"omitempty,oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// defaultConfig returns a Config with all defaults applied. Defaults are
// layered first; the config file and environment override them.
func defaultConfig() *Config {
	return &Config{
		Catalog: CatalogConfig{
			CamerasPath: "cameras.yaml",
			ZonesPath:   "",
		},
		Resolver: ResolverConfig{
			AttemptTimeout:      10 * time.Second,
			TotalTimeout:        45 * time.Second,
			CacheTTL:            5 * time.Minute,
			ConsecutiveFailures: 5,
			BreakerCooldown:     30 * time.Second,
		},
		Sampler: SamplerConfig{
			FPS:          2,
			StallTimeout: 15 * time.Second,
			ChannelDepth: 8,
		},
		Detector: DetectorConfig{
			Endpoint:       "",
			Device:         "cpu",
			Workers:        4,
			RequestTimeout: 5 * time.Second,
			QueueDepth:     64,
		},
		Alerting: AlertingConfig{
			Rules: DefaultRules(),
		},
		Recorder: RecorderConfig{
			PrerollSeconds:  30,
			PostrollSeconds: 15,
			Continuous:      false,
			SegmentSeconds:  300,
			WorkDir:         "/tmp/argus-clips",
		},
		Sessions: SessionsConfig{
			MaxConcurrentStreams: 16,
			InitialBackoff:       time.Second,
			MaxBackoff:           30 * time.Second,
			MaxReconnectAttempts: 5,
			StatusInterval:       30 * time.Second,
		},
		Historical: HistoricalConfig{
			MaxConcurrentRuns: 2,
			ResultTTL:         time.Hour,
		},
		Storage: StorageConfig{
			Enabled:  false,
			Endpoint: "localhost:9000",
			Bucket:   "argus-clips",
		},
		Database: DatabaseConfig{
			Enabled: false,
			Path:    "argus.db",
		},
		Notify: NotifyConfig{
			Webhook: WebhookNotifyConfig{RateLimitMs: 500},
			MQTT: MQTTNotifyConfig{
				Host:      "localhost",
				Port:      1883,
				ClientID:  "argusd",
				BaseTopic: "argus/alerts",
			},
			NATS: NATSNotifyConfig{
				URL:         "nats://127.0.0.1:4222",
				SubjectBase: "argus.alerts",
			},
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8710,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			RateLimit:       120,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// DefaultRules returns the shipped alert rules table. Keys are risk types
// (models.RiskType values); deployments override or extend the table in
// configuration.
func DefaultRules() map[string]RuleConfig {
	return map[string]RuleConfig{
		string(models.RiskWeapon): {
			ConfidenceThreshold: 0.8,
			MinDuration:         1 * time.Second,
			Cooldown:            30 * time.Second,
			Priority:            string(models.PriorityCritical),
			Aggregation:         "max",
		},
		string(models.RiskViolence): {
			ConfidenceThreshold: 0.7,
			MinDuration:         3 * time.Second,
			Cooldown:            60 * time.Second,
			Priority:            string(models.PriorityHigh),
			Aggregation:         "max",
		},
		string(models.RiskCrowd): {
			ConfidenceThreshold: 0.6,
			MinDuration:         10 * time.Second,
			Cooldown:            300 * time.Second,
			Priority:            string(models.PriorityMedium),
			Aggregation:         "max",
		},
		string(models.RiskFire): {
			ConfidenceThreshold: 0.6,
			MinDuration:         2 * time.Second,
			Cooldown:            120 * time.Second,
			Priority:            string(models.PriorityHigh),
			Aggregation:         "max",
		},
	}
}
