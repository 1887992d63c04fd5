// Argus - Multi-Camera Risk Detection and Alerting
// Copyright 2026 D. Almeida (argus-vision)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/argus-vision/argus

package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/argus-vision/argus/internal/historical"
	"github.com/argus-vision/argus/internal/models"
	"github.com/argus-vision/argus/internal/session"
	"github.com/argus-vision/argus/internal/storage"
	"github.com/argus-vision/argus/internal/websocket"
)

// Monitor is the orchestrator surface the API drives.
type Monitor interface {
	StartCameras(ids []string, types []models.RiskType, overrides map[models.RiskType]float64) map[string]session.StartOutcome
	StopCameras(ids []string)
	Status() session.Snapshot
}

// Historian runs offline footage analysis.
type Historian interface {
	Submit(filePath, cameraID string, types []models.RiskType) (string, error)
	Poll(id string) (historical.Run, bool)
	Cancel(id string) bool
}

// Handlers holds the dependencies behind every endpoint.
type Handlers struct {
	monitor  Monitor
	alerts   *storage.AlertStore
	analyzer Historian
	hub      *websocket.Hub
	validate *validator.Validate
}

// NewHandlers wires the endpoint dependencies. alerts may be nil when the
// database is disabled; the alert query endpoints then return 503.
func NewHandlers(monitor Monitor, alerts *storage.AlertStore, analyzer Historian, hub *websocket.Hub) *Handlers {
	return &Handlers{
		monitor:  monitor,
		alerts:   alerts,
		analyzer: analyzer,
		hub:      hub,
		validate: validator.New(),
	}
}

// StartRequest is the body of POST /api/v1/monitor/start.
type StartRequest struct {
	CameraIDs           []string           `json:"camera_ids" validate:"required,min=1,dive,required"`
	DetectionTypes      []string           `json:"detection_types" validate:"omitempty,dive,required"`
	ConfidenceOverrides map[string]float64 `json:"confidence_overrides" validate:"omitempty,dive,gte=0,lte=1"`
}

// StopRequest is the body of POST /api/v1/monitor/stop.
type StopRequest struct {
	CameraIDs []string `json:"camera_ids" validate:"required,min=1,dive,required"`
}

// HistoricalRequest is the body of POST /api/v1/historical.
type HistoricalRequest struct {
	FilePath       string   `json:"file_path" validate:"required"`
	CameraID       string   `json:"camera_id" validate:"required"`
	DetectionTypes []string `json:"detection_types" validate:"omitempty,dive,required"`
}

// parseRiskTypes converts and validates detection type names. An empty input
// means all types.
func parseRiskTypes(raw []string) ([]models.RiskType, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	known := make(map[models.RiskType]bool)
	for _, t := range models.KnownRiskTypes() {
		known[t] = true
	}
	types := make([]models.RiskType, 0, len(raw))
	for _, s := range raw {
		t := models.RiskType(s)
		if !known[t] {
			return nil, fmt.Errorf("unknown detection type %q", s)
		}
		types = append(types, t)
	}
	return types, nil
}

// MonitorStart starts monitoring sessions for the requested cameras. The
// per-camera outcome map distinguishes accepted, queued, already running,
// unknown and disabled cameras; queueing is not an error.
func (h *Handlers) MonitorStart(w http.ResponseWriter, r *http.Request) {
	rw := newResponseWriter(w, r)

	var req StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rw.BadRequest("invalid JSON body: " + err.Error())
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		rw.ValidationError("invalid start request", err.Error())
		return
	}
	types, err := parseRiskTypes(req.DetectionTypes)
	if err != nil {
		rw.ValidationError("invalid start request", err.Error())
		return
	}
	var overrides map[models.RiskType]float64
	if len(req.ConfidenceOverrides) > 0 {
		overrides = make(map[models.RiskType]float64, len(req.ConfidenceOverrides))
		for name, v := range req.ConfidenceOverrides {
			t := models.RiskType(name)
			overrides[t] = v
		}
	}

	outcomes := h.monitor.StartCameras(req.CameraIDs, types, overrides)
	rw.Accepted(map[string]interface{}{"cameras": outcomes})
}

// MonitorStop stops running or queued sessions.
func (h *Handlers) MonitorStop(w http.ResponseWriter, r *http.Request) {
	rw := newResponseWriter(w, r)

	var req StopRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rw.BadRequest("invalid JSON body: " + err.Error())
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		rw.ValidationError("invalid stop request", err.Error())
		return
	}

	h.monitor.StopCameras(req.CameraIDs)
	rw.Accepted(map[string]interface{}{"stopping": req.CameraIDs})
}

// MonitorStatus returns the aggregate session snapshot, including queue
// positions and process CPU/RSS.
func (h *Handlers) MonitorStatus(w http.ResponseWriter, r *http.Request) {
	newResponseWriter(w, r).Success(h.monitor.Status())
}

// Alerts lists persisted alerts, newest first. Filters: camera_id, type,
// since, until (RFC3339), limit.
func (h *Handlers) Alerts(w http.ResponseWriter, r *http.Request) {
	rw := newResponseWriter(w, r)
	if h.alerts == nil {
		rw.ServiceUnavailable("alert persistence is disabled")
		return
	}

	filter := storage.AlertFilter{
		CameraID: r.URL.Query().Get("camera_id"),
		Type:     models.RiskType(r.URL.Query().Get("type")),
	}
	if s := r.URL.Query().Get("since"); s != "" {
		ts, err := time.Parse(time.RFC3339, s)
		if err != nil {
			rw.BadRequest("invalid since timestamp, want RFC3339")
			return
		}
		filter.Since = ts
	}
	if s := r.URL.Query().Get("until"); s != "" {
		ts, err := time.Parse(time.RFC3339, s)
		if err != nil {
			rw.BadRequest("invalid until timestamp, want RFC3339")
			return
		}
		filter.Until = ts
	}
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			rw.BadRequest("invalid limit")
			return
		}
		filter.Limit = n
	}

	alerts, err := h.alerts.ListAlerts(r.Context(), filter)
	if err != nil {
		rw.InternalError("alert query failed")
		return
	}
	rw.Success(map[string]interface{}{"alerts": alerts, "count": len(alerts)})
}

// HistoricalSubmit queues an offline analysis run over a footage file.
func (h *Handlers) HistoricalSubmit(w http.ResponseWriter, r *http.Request) {
	rw := newResponseWriter(w, r)

	var req HistoricalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rw.BadRequest("invalid JSON body: " + err.Error())
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		rw.ValidationError("invalid historical request", err.Error())
		return
	}
	types, err := parseRiskTypes(req.DetectionTypes)
	if err != nil {
		rw.ValidationError("invalid historical request", err.Error())
		return
	}

	id, err := h.analyzer.Submit(req.FilePath, req.CameraID, types)
	if err != nil {
		rw.BadRequest(err.Error())
		return
	}
	rw.Accepted(map[string]interface{}{"run_id": id})
}

// HistoricalStatus polls one analysis run, including its timeline once the
// run completes.
func (h *Handlers) HistoricalStatus(w http.ResponseWriter, r *http.Request) {
	rw := newResponseWriter(w, r)

	id := chi.URLParam(r, "id")
	run, ok := h.analyzer.Poll(id)
	if !ok {
		rw.NotFound("unknown analysis run")
		return
	}
	rw.Success(run)
}

// HistoricalCancel aborts a queued or running analysis.
func (h *Handlers) HistoricalCancel(w http.ResponseWriter, r *http.Request) {
	rw := newResponseWriter(w, r)

	id := chi.URLParam(r, "id")
	if !h.analyzer.Cancel(id) {
		rw.NotFound("unknown analysis run")
		return
	}
	rw.Accepted(map[string]interface{}{"run_id": id, "canceling": true})
}

// HealthLive reports process liveness.
func (h *Handlers) HealthLive(w http.ResponseWriter, r *http.Request) {
	newResponseWriter(w, r).Success(map[string]string{"status": "alive"})
}

// HealthReady reports readiness: the orchestrator must be wired.
func (h *Handlers) HealthReady(w http.ResponseWriter, r *http.Request) {
	rw := newResponseWriter(w, r)
	if h.monitor == nil {
		rw.ServiceUnavailable("orchestrator not ready")
		return
	}
	rw.Success(map[string]interface{}{
		"status":            "ready",
		"websocket_clients": h.hub.ClientCount(),
	})
}

// WebSocket upgrades the connection and attaches it to the event hub.
func (h *Handlers) WebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.ServeWS(h.hub, w, r)
}
