// Argus - Multi-Camera Risk Detection and Alerting
// Copyright 2026 D. Almeida (argus-vision)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/argus-vision/argus

package alerting

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/goccy/go-json"
	"github.com/nats-io/nats.go"

	"github.com/argus-vision/argus/internal/config"
	"github.com/argus-vision/argus/internal/logging"
	"github.com/argus-vision/argus/internal/models"
)

// Notifier delivers one fired alert to an external consumer. Delivery is
// best effort: a failing notifier is logged and never blocks the pipeline
// or the other notifiers.
type Notifier interface {
	Notify(ctx context.Context, alert models.Alert) error
	Name() string
}

// Fanout delivers to every configured notifier, logging failures
// individually.
type Fanout struct {
	notifiers []Notifier
}

// NewFanout assembles the notifier chain from configuration. An empty chain
// is valid: alerts are still stored and broadcast.
func NewFanout(cfg config.NotifyConfig) *Fanout {
	f := &Fanout{}
	if cfg.Webhook.Enabled {
		f.notifiers = append(f.notifiers, NewWebhookNotifier(cfg.Webhook, nil))
	}
	if cfg.MQTT.Enabled {
		f.notifiers = append(f.notifiers, NewMQTTNotifier(cfg.MQTT))
	}
	if cfg.NATS.Enabled {
		f.notifiers = append(f.notifiers, NewNATSNotifier(cfg.NATS))
	}
	return f
}

// Notify implements Notifier over the whole chain. Always returns nil: the
// chain absorbs individual failures.
func (f *Fanout) Notify(ctx context.Context, alert models.Alert) error {
	for _, n := range f.notifiers {
		if err := n.Notify(ctx, alert); err != nil {
			logging.Error().
				Str("notifier", n.Name()).
				Str("alert_id", alert.ID).
				Err(err).
				Msg("alert notification failed")
		}
	}
	return nil
}

func (f *Fanout) Name() string { return "fanout" }

// WebhookNotifier POSTs the alert as JSON to a configured URL, with a
// minimum interval between deliveries to protect slow receivers. Notify is
// safe for concurrent use; the orchestrator delivers each alert from its
// own goroutine.
type WebhookNotifier struct {
	cfg    config.WebhookNotifyConfig
	client *http.Client

	mu       sync.Mutex
	nextSlot time.Time
}

func NewWebhookNotifier(cfg config.WebhookNotifyConfig, client *http.Client) *WebhookNotifier {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &WebhookNotifier{cfg: cfg, client: client}
}

func (w *WebhookNotifier) Name() string { return "webhook" }

func (w *WebhookNotifier) Notify(ctx context.Context, alert models.Alert) error {
	if w.cfg.RateLimitMs > 0 {
		interval := time.Duration(w.cfg.RateLimitMs) * time.Millisecond

		// Each delivery reserves its send slot under the lock, so
		// concurrent alerts space out one interval apart instead of
		// racing the shared timestamp.
		w.mu.Lock()
		now := time.Now()
		slot := w.nextSlot
		if slot.Before(now) {
			slot = now
		}
		w.nextSlot = slot.Add(interval)
		w.mu.Unlock()

		if wait := time.Until(slot); wait > 0 {
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	body, err := json.Marshal(alert)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range w.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)
	}
	return nil
}

// MQTTNotifier publishes alerts to {base_topic}/{camera_id}/{type}. The
// connection is lazy and re-established by the paho client's auto-reconnect.
type MQTTNotifier struct {
	cfg    config.MQTTNotifyConfig
	client mqtt.Client
}

func NewMQTTNotifier(cfg config.MQTTNotifyConfig) *MQTTNotifier {
	opts := mqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.Port)).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetAutoReconnect(true).
		SetConnectRetry(true)
	return &MQTTNotifier{cfg: cfg, client: mqtt.NewClient(opts)}
}

func (m *MQTTNotifier) Name() string { return "mqtt" }

func (m *MQTTNotifier) Notify(ctx context.Context, alert models.Alert) error {
	if !m.client.IsConnected() {
		token := m.client.Connect()
		if !token.WaitTimeout(5 * time.Second) {
			return fmt.Errorf("mqtt connect timeout")
		}
		if err := token.Error(); err != nil {
			return fmt.Errorf("mqtt connect: %w", err)
		}
	}

	payload, err := json.Marshal(alert)
	if err != nil {
		return err
	}

	topic := fmt.Sprintf("%s/%s/%s", m.cfg.BaseTopic, alert.CameraID, alert.Type)
	token := m.client.Publish(topic, 1, false, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("mqtt publish timeout on %s", topic)
	}
	return token.Error()
}

// NATSNotifier publishes alerts to {subject_base}.{camera_id}.{type}.
type NATSNotifier struct {
	cfg config.NATSNotifyConfig

	mu   sync.Mutex
	conn *nats.Conn
}

func NewNATSNotifier(cfg config.NATSNotifyConfig) *NATSNotifier {
	return &NATSNotifier{cfg: cfg}
}

func (n *NATSNotifier) Name() string { return "nats" }

// connection returns the shared NATS connection, dialing on first use. The
// lock keeps concurrent deliveries from racing the lazy dial and leaking
// duplicate connections.
func (n *NATSNotifier) connection() (*nats.Conn, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.conn != nil && !n.conn.IsClosed() {
		return n.conn, nil
	}
	conn, err := nats.Connect(n.cfg.URL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	n.conn = conn
	return conn, nil
}

func (n *NATSNotifier) Notify(_ context.Context, alert models.Alert) error {
	conn, err := n.connection()
	if err != nil {
		return err
	}

	payload, err := json.Marshal(alert)
	if err != nil {
		return err
	}

	subject := fmt.Sprintf("%s.%s.%s", n.cfg.SubjectBase, alert.CameraID, alert.Type)
	return conn.Publish(subject, payload)
}
