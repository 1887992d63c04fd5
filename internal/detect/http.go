// Argus - Multi-Camera Risk Detection and Alerting
// Copyright 2026 D. Almeida (argus-vision)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/argus-vision/argus

package detect

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/argus-vision/argus/internal/config"
	"github.com/argus-vision/argus/internal/models"
)

// HTTPDetector calls an external inference service: one POST per frame with
// the JPEG body, one JSON detection list back.
//
// Request:  POST {endpoint}/detect?camera_id={id}  body: image/jpeg
// Response: {"detections": [{"type": "...", "confidence": 0.92,
//
//	"box": {"x":..,"y":..,"width":..,"height":..}}]}
type HTTPDetector struct {
	cfg    config.DetectorConfig
	client *http.Client
}

// NewHTTPDetector creates the adapter. A nil client gets a default without
// a global timeout; the per-call deadline comes from the pool's context.
func NewHTTPDetector(cfg config.DetectorConfig, client *http.Client) *HTTPDetector {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPDetector{cfg: cfg, client: client}
}

type inferenceResponse struct {
	Detections []struct {
		Type       string             `json:"type"`
		Confidence float64            `json:"confidence"`
		Box        models.BoundingBox `json:"box"`
	} `json:"detections"`
}

// Detect implements Detector.
func (d *HTTPDetector) Detect(ctx context.Context, frame *models.Frame) ([]models.Detection, error) {
	url := fmt.Sprintf("%s/detect?camera_id=%s", d.cfg.Endpoint, frame.CameraID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(frame.Data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "image/jpeg")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("inference call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("inference service returned HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}

	var parsed inferenceResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode inference response: %w", err)
	}

	detections := make([]models.Detection, 0, len(parsed.Detections))
	for _, det := range parsed.Detections {
		detections = append(detections, models.Detection{
			CameraID:   frame.CameraID,
			Timestamp:  frame.Timestamp,
			Type:       models.RiskType(det.Type),
			Confidence: det.Confidence,
			Box:        det.Box,
		})
	}
	return detections, nil
}
