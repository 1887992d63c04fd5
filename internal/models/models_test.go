// Argus - Multi-Camera Risk Detection and Alerting
// Copyright 2026 D. Almeida (argus-vision)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/argus-vision/argus

package models

import (
	"testing"
	"time"
)

func TestCameraSources(t *testing.T) {
	tests := []struct {
		name   string
		camera Camera
		want   []string
	}{
		{
			name:   "primary only",
			camera: Camera{StreamURL: "rtsp://a/1"},
			want:   []string{"rtsp://a/1"},
		},
		{
			name: "primary then backups in declared order",
			camera: Camera{
				StreamURL:  "rtsp://a/1",
				BackupURLs: []string{"rtsp://b/1", "rtsp://c/1"},
			},
			want: []string{"rtsp://a/1", "rtsp://b/1", "rtsp://c/1"},
		},
		{
			name: "blank entries skipped",
			camera: Camera{
				StreamURL:  "  ",
				BackupURLs: []string{"", "rtsp://b/1"},
			},
			want: []string{"rtsp://b/1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.camera.Sources()
			if len(got) != len(tt.want) {
				t.Fatalf("Sources() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("Sources()[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestConflictZoneContains(t *testing.T) {
	square := ConflictZone{
		Name:      "test-square",
		RiskLevel: 5,
		Polygon: []LatLon{
			{Lat: 0, Lon: 0},
			{Lat: 0, Lon: 10},
			{Lat: 10, Lon: 10},
			{Lat: 10, Lon: 0},
		},
	}

	tests := []struct {
		name     string
		lat, lon float64
		want     bool
	}{
		{"center", 5, 5, true},
		{"outside north", 11, 5, false},
		{"outside east", 5, 11, false},
		{"near corner inside", 0.5, 0.5, true},
		{"far away", -20, -20, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := square.Contains(tt.lat, tt.lon); got != tt.want {
				t.Errorf("Contains(%v, %v) = %v, want %v", tt.lat, tt.lon, got, tt.want)
			}
		})
	}
}

func TestConflictZoneDegeneratePolygon(t *testing.T) {
	z := ConflictZone{Polygon: []LatLon{{Lat: 0, Lon: 0}, {Lat: 1, Lon: 1}}}
	if z.Contains(0.5, 0.5) {
		t.Error("two-vertex zone must contain nothing")
	}
}

func TestStreamHandleExpired(t *testing.T) {
	now := time.Now()
	h := StreamHandle{ExpiresAt: now.Add(time.Minute)}
	if h.Expired(now) {
		t.Error("handle expired before TTL elapsed")
	}
	if !h.Expired(now.Add(2 * time.Minute)) {
		t.Error("handle not expired after TTL elapsed")
	}

	zero := StreamHandle{}
	if zero.Expired(now) {
		t.Error("zero ExpiresAt must never expire")
	}
}
