// Argus - Multi-Camera Risk Detection and Alerting
// Copyright 2026 D. Almeida (argus-vision)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/argus-vision/argus

package models

import (
	"strings"
	"time"
)

// Camera is one catalog entry. The catalog is owned by an external
// collaborator; Argus only reads these records and never mutates them.
type Camera struct {
	ID         string   `json:"id" koanf:"id"`
	Name       string   `json:"name" koanf:"name"`
	Zone       string   `json:"zone" koanf:"zone"`
	Latitude   float64  `json:"latitude" koanf:"latitude"`
	Longitude  float64  `json:"longitude" koanf:"longitude"`
	StreamURL  string   `json:"stream_url" koanf:"stream_url"`
	BackupURLs []string `json:"backup_urls,omitempty" koanf:"backup_urls"`

	// RiskLevel is the camera's declared risk classification. It is
	// informational only; admission priority comes from the conflict zone
	// the camera sits in, not from this field.
	RiskLevel int  `json:"risk_level" koanf:"risk_level"`
	Enabled   bool `json:"enabled" koanf:"enabled"`
}

// Sources returns the ordered list of source URLs to attempt during
// resolution: primary first, then backups in declared order. Blank entries
// are skipped.
func (c Camera) Sources() []string {
	out := make([]string, 0, 1+len(c.BackupURLs))
	if u := strings.TrimSpace(c.StreamURL); u != "" {
		out = append(out, u)
	}
	for _, b := range c.BackupURLs {
		if u := strings.TrimSpace(b); u != "" {
			out = append(out, u)
		}
	}
	return out
}

// ConflictZone is a read-only polygon with an associated risk level, used
// only to prioritize which cameras get scarce stream slots when the
// concurrency ceiling is reached.
type ConflictZone struct {
	Name      string   `json:"name" koanf:"name"`
	RiskLevel int      `json:"risk_level" koanf:"risk_level"`
	Polygon   []LatLon `json:"polygon" koanf:"polygon"`
}

// LatLon is a geographic coordinate pair in degrees.
type LatLon struct {
	Lat float64 `json:"lat" koanf:"lat"`
	Lon float64 `json:"lon" koanf:"lon"`
}

// Contains reports whether the point lies inside the zone polygon, using the
// even-odd ray casting rule. Zones with fewer than three vertices contain
// nothing.
func (z ConflictZone) Contains(lat, lon float64) bool {
	n := len(z.Polygon)
	if n < 3 {
		return false
	}
	inside := false
	j := n - 1
	for i := 0; i < n; i++ {
		pi, pj := z.Polygon[i], z.Polygon[j]
		if (pi.Lat > lat) != (pj.Lat > lat) &&
			lon < (pj.Lon-pi.Lon)*(lat-pi.Lat)/(pj.Lat-pi.Lat)+pi.Lon {
			inside = !inside
		}
		j = i
	}
	return inside
}

// StreamHandle is a resolved, decodable media reference for one camera.
// A handle is owned exclusively by the session that resolved it and must be
// re-resolved once expired.
type StreamHandle struct {
	CameraID   string    `json:"camera_id"`
	MediaURL   string    `json:"media_url"`
	SourceUsed int       `json:"source_used"` // index into Camera.Sources()
	ResolvedAt time.Time `json:"resolved_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Expired reports whether the handle has outlived its resolution TTL.
func (h StreamHandle) Expired(now time.Time) bool {
	return !h.ExpiresAt.IsZero() && now.After(h.ExpiresAt)
}
