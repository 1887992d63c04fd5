// Argus - Multi-Camera Risk Detection and Alerting
// Copyright 2026 D. Almeida (argus-vision)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/argus-vision/argus

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists where the config file is searched, in order.
// The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/argus/config.yaml",
	"/etc/argus/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "ARGUS_CONFIG_PATH"

// Load loads configuration using Koanf v2 with layered sources:
//
//  1. Defaults: built-in sensible defaults
//  2. Config file: optional YAML file (if one exists)
//  3. Environment variables: override any setting
//
// Precedence is ENV > file > defaults.
func Load() (*Config, error) {
	k := koanf.New(".")

	// Layer 1: defaults from struct
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: optional config file
	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: environment variables (highest priority)
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile returns the path of the first config file found, or "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envTransformFunc maps environment variable names to koanf config paths.
//
// ARGUS_-prefixed variables address sections directly:
//   - ARGUS_LOG_LEVEL            -> logging.level
//   - ARGUS_SERVER_PORT          -> server.port
//   - ARGUS_SAMPLER_FPS          -> sampler.fps
//
// A handful of bare legacy names from earlier deployments are honored too
// (ALERT_CLIP_SECONDS, MAX_CONCURRENT_STREAMS, MINIO_*).
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	// Legacy names kept for compatibility with existing deployments.
	legacy := map[string]string{
		"alert_clip_seconds":     "recorder.preroll_seconds",
		"max_concurrent_streams": "sessions.max_concurrent_streams",
		"minio_endpoint":         "storage.endpoint",
		"minio_access_key":       "storage.access_key",
		"minio_secret_key":       "storage.secret_key",
		"minio_bucket":           "storage.bucket",
		"minio_use_ssl":          "storage.use_ssl",
	}
	if path, ok := legacy[key]; ok {
		return path
	}

	if !strings.HasPrefix(key, "argus_") {
		// Not ours: return something no koanf key matches.
		return ""
	}
	key = strings.TrimPrefix(key, "argus_")

	// Section prefixes whose remainder is a single key with underscores
	// preserved (e.g. argus_catalog_cameras_path -> catalog.cameras_path).
	sections := []string{
		"catalog", "resolver", "sampler", "detector", "recorder",
		"sessions", "historical", "storage", "database", "server",
		"logging",
	}
	for _, s := range sections {
		if strings.HasPrefix(key, s+"_") {
			return s + "." + strings.TrimPrefix(key, s+"_")
		}
	}

	// Nested notifier sections: argus_notify_mqtt_host -> notify.mqtt.host
	for _, n := range []string{"webhook", "mqtt", "nats"} {
		prefix := "notify_" + n + "_"
		if strings.HasPrefix(key, prefix) {
			return "notify." + n + "." + strings.TrimPrefix(key, prefix)
		}
	}

	// Shorthand log settings: argus_log_level, argus_log_format.
	if strings.HasPrefix(key, "log_") {
		return "logging." + strings.TrimPrefix(key, "log_")
	}

	return ""
}
