// Argus - Multi-Camera Risk Detection and Alerting
// Copyright 2026 D. Almeida (argus-vision)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/argus-vision/argus

// Package storage holds the default persistence adapters: a DuckDB store
// for alerts and historical timelines, and a MinIO store for evidence
// clips. Both sit behind interfaces; deployments that own their storage
// replace them without touching the pipeline.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/argus-vision/argus/internal/config"
	"github.com/argus-vision/argus/internal/logging"
	"github.com/argus-vision/argus/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS alerts (
	id           VARCHAR PRIMARY KEY,
	camera_id    VARCHAR NOT NULL,
	type         VARCHAR NOT NULL,
	confidence   DOUBLE  NOT NULL,
	priority     VARCHAR NOT NULL,
	created_at   TIMESTAMP NOT NULL,
	window_start TIMESTAMP NOT NULL,
	clip_id      VARCHAR
);

CREATE TABLE IF NOT EXISTS timeline_entries (
	run_id     VARCHAR NOT NULL,
	camera_id  VARCHAR NOT NULL,
	ts         TIMESTAMP NOT NULL,
	type       VARCHAR NOT NULL,
	confidence DOUBLE  NOT NULL,
	is_alert   BOOLEAN NOT NULL
);
`

// AlertStore persists alerts and historical timelines in DuckDB. An empty
// path opens an in-memory database, which is what the tests and dry runs
// use.
type AlertStore struct {
	db *sql.DB
}

// OpenAlertStore opens (or creates) the database and applies the schema.
func OpenAlertStore(cfg config.DatabaseConfig) (*AlertStore, error) {
	path := cfg.Path
	if path == "" {
		path = ":memory:"
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	logging.Info().Str("path", path).Msg("alert store opened")
	return &AlertStore{db: db}, nil
}

// Close releases the database handle.
func (s *AlertStore) Close() error { return s.db.Close() }

// SaveAlert inserts one fired alert. Alerts are immutable except for the
// clip reference, which arrives later when recording finishes.
func (s *AlertStore) SaveAlert(ctx context.Context, alert models.Alert) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO alerts (id, camera_id, type, confidence, priority, created_at, window_start, clip_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		alert.ID, alert.CameraID, string(alert.Type), alert.Confidence,
		string(alert.Priority), alert.CreatedAt, alert.WindowStart,
		nullable(alert.ClipID),
	)
	if err != nil {
		return fmt.Errorf("insert alert %s: %w", alert.ID, err)
	}
	return nil
}

// AttachClip links a persisted clip to its trigger alert.
func (s *AlertStore) AttachClip(ctx context.Context, alertID, clipID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE alerts SET clip_id = ? WHERE id = ?`, clipID, alertID)
	if err != nil {
		return fmt.Errorf("attach clip to alert %s: %w", alertID, err)
	}
	return nil
}

// AlertFilter narrows ListAlerts. Zero values mean "no constraint".
type AlertFilter struct {
	CameraID string
	Type     models.RiskType
	Since    time.Time
	Until    time.Time
	Limit    int
}

// ListAlerts returns matching alerts, newest first.
func (s *AlertStore) ListAlerts(ctx context.Context, filter AlertFilter) ([]models.Alert, error) {
	var (
		conds []string
		args  []any
	)
	if filter.CameraID != "" {
		conds = append(conds, "camera_id = ?")
		args = append(args, filter.CameraID)
	}
	if filter.Type != "" {
		conds = append(conds, "type = ?")
		args = append(args, string(filter.Type))
	}
	if !filter.Since.IsZero() {
		conds = append(conds, "created_at >= ?")
		args = append(args, filter.Since)
	}
	if !filter.Until.IsZero() {
		conds = append(conds, "created_at <= ?")
		args = append(args, filter.Until)
	}

	query := `SELECT id, camera_id, type, confidence, priority, created_at, window_start, COALESCE(clip_id, '')
		FROM alerts`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC"
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(" LIMIT %d", limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

	var alerts []models.Alert
	for rows.Next() {
		var a models.Alert
		var riskType, priority string
		if err := rows.Scan(&a.ID, &a.CameraID, &riskType, &a.Confidence,
			&priority, &a.CreatedAt, &a.WindowStart, &a.ClipID); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		a.Type = models.RiskType(riskType)
		a.Priority = models.Priority(priority)
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// SaveTimeline persists a completed historical run's timeline in one
// transaction.
func (s *AlertStore) SaveTimeline(ctx context.Context, runID, cameraID string, entries []models.TimelineEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin timeline tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO timeline_entries (run_id, camera_id, ts, type, confidence, is_alert)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare timeline insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx, runID, cameraID, e.Timestamp,
			string(e.Type), e.Confidence, e.Alert); err != nil {
			return fmt.Errorf("insert timeline entry: %w", err)
		}
	}
	return tx.Commit()
}

// Timeline loads a persisted run's timeline, ordered by timestamp.
func (s *AlertStore) Timeline(ctx context.Context, runID string) ([]models.TimelineEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ts, type, confidence, is_alert
		FROM timeline_entries WHERE run_id = ? ORDER BY ts`, runID)
	if err != nil {
		return nil, fmt.Errorf("load timeline %s: %w", runID, err)
	}
	defer rows.Close()

	var entries []models.TimelineEntry
	for rows.Next() {
		var e models.TimelineEntry
		var riskType string
		if err := rows.Scan(&e.Timestamp, &riskType, &e.Confidence, &e.Alert); err != nil {
			return nil, fmt.Errorf("scan timeline entry: %w", err)
		}
		e.Type = models.RiskType(riskType)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
