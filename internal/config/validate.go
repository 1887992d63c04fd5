// Argus - Multi-Camera Risk Detection and Alerting
// Copyright 2026 D. Almeida (argus-vision)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/argus-vision/argus

package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/argus-vision/argus/internal/models"
)

// validate is the shared validator instance. Struct tag rules cover the
// single-field constraints; Validate adds the cross-field checks tags cannot
// express.
var validate = validator.New()

// Validate checks the configuration for errors that would make the service
// misbehave at runtime. It is called by Load after unmarshaling.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if c.Resolver.AttemptTimeout <= 0 {
		return fmt.Errorf("resolver.attempt_timeout must be positive")
	}
	if c.Resolver.TotalTimeout < c.Resolver.AttemptTimeout {
		return fmt.Errorf(
			"resolver.total_timeout (%s) must be at least attempt_timeout (%s)",
			c.Resolver.TotalTimeout, c.Resolver.AttemptTimeout,
		)
	}

	if c.Sessions.MaxBackoff < c.Sessions.InitialBackoff {
		return fmt.Errorf(
			"sessions.max_backoff (%s) must be at least initial_backoff (%s)",
			c.Sessions.MaxBackoff, c.Sessions.InitialBackoff,
		)
	}

	for name, rule := range c.Alerting.Rules {
		if rule.MinDuration < 0 {
			return fmt.Errorf("alerting.rules.%s.min_duration must not be negative", name)
		}
		if rule.Cooldown <= 0 {
			return fmt.Errorf("alerting.rules.%s.cooldown must be positive", name)
		}
	}

	if c.Storage.Enabled {
		if c.Storage.Endpoint == "" {
			return fmt.Errorf("storage.endpoint is required when storage is enabled")
		}
		if c.Storage.AccessKey == "" || c.Storage.SecretKey == "" {
			return fmt.Errorf("storage.access_key and storage.secret_key are required when storage is enabled")
		}
	}

	if c.Notify.MQTT.Enabled && c.Notify.MQTT.Host == "" {
		return fmt.Errorf("notify.mqtt.host is required when the MQTT notifier is enabled")
	}
	if c.Notify.NATS.Enabled && c.Notify.NATS.URL == "" {
		return fmt.Errorf("notify.nats.url is required when the NATS notifier is enabled")
	}
	if c.Notify.Webhook.Enabled && c.Notify.Webhook.URL == "" {
		return fmt.Errorf("notify.webhook.url is required when the webhook notifier is enabled")
	}

	return nil
}

// Rule returns the configured rule for a risk type and whether one exists.
func (a AlertingConfig) Rule(t models.RiskType) (RuleConfig, bool) {
	r, ok := a.Rules[string(t)]
	return r, ok
}
