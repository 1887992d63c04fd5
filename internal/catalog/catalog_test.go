// Argus - Multi-Camera Risk Detection and Alerting
// Copyright 2026 D. Almeida (argus-vision)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/argus-vision/argus

package catalog

import (
	"os"
	"path/filepath"
	"testing"
)

const camerasYAML = `
cameras:
  - id: cam-01
    name: Market square north
    zone: old-town
    latitude: 5.0
    longitude: 5.0
    stream_url: rtsp://example/cam1
    backup_urls:
      - https://mirror.example/cam1.m3u8
    risk_level: 3
    enabled: true
  - id: cam-02
    name: Ring road overpass
    latitude: 50.0
    longitude: 50.0
    stream_url: rtsp://example/cam2
    enabled: true
`

const zonesYAML = `
zones:
  - name: old-town
    risk_level: 8
    polygon:
      - {lat: 0, lon: 0}
      - {lat: 0, lon: 10}
      - {lat: 10, lon: 10}
      - {lat: 10, lon: 0}
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadCatalog(t *testing.T) {
	dir := t.TempDir()
	camPath := writeFile(t, dir, "cameras.yaml", camerasYAML)
	zonePath := writeFile(t, dir, "zones.yaml", zonesYAML)

	cat, err := Load(camPath, zonePath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	cams := cat.Cameras()
	if len(cams) != 2 {
		t.Fatalf("got %d cameras, want 2", len(cams))
	}
	if cams[0].ID != "cam-01" || cams[1].ID != "cam-02" {
		t.Errorf("cameras not sorted by id: %v, %v", cams[0].ID, cams[1].ID)
	}

	cam, ok := cat.Camera("cam-01")
	if !ok {
		t.Fatal("cam-01 not found")
	}
	if got := cam.Sources(); len(got) != 2 {
		t.Errorf("cam-01 sources = %d, want 2 (primary + backup)", len(got))
	}
}

func TestZoneRisk(t *testing.T) {
	dir := t.TempDir()
	camPath := writeFile(t, dir, "cameras.yaml", camerasYAML)
	zonePath := writeFile(t, dir, "zones.yaml", zonesYAML)

	cat, err := Load(camPath, zonePath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	inZone, _ := cat.Camera("cam-01")
	if risk := cat.ZoneRisk(inZone); risk != 8 {
		t.Errorf("ZoneRisk(cam-01) = %d, want 8", risk)
	}

	outside, _ := cat.Camera("cam-02")
	if risk := cat.ZoneRisk(outside); risk != 0 {
		t.Errorf("ZoneRisk(cam-02) = %d, want 0", risk)
	}
}

func TestLoadWithoutZones(t *testing.T) {
	dir := t.TempDir()
	camPath := writeFile(t, dir, "cameras.yaml", camerasYAML)

	cat, err := Load(camPath, "")
	if err != nil {
		t.Fatalf("Load without zones: %v", err)
	}
	cam, _ := cat.Camera("cam-01")
	if risk := cat.ZoneRisk(cam); risk != 0 {
		t.Errorf("risk without zones = %d, want 0", risk)
	}
}

func TestLoadRejectsBadCatalogs(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "entry without id",
			yaml: "cameras:\n  - name: nameless\n    stream_url: rtsp://x\n",
		},
		{
			name: "duplicate id",
			yaml: "cameras:\n  - id: a\n    stream_url: rtsp://x\n  - id: a\n    stream_url: rtsp://y\n",
		},
		{
			name: "camera without sources",
			yaml: "cameras:\n  - id: a\n    name: no sources\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			path := writeFile(t, dir, "cameras.yaml", tt.yaml)
			if _, err := Load(path, ""); err == nil {
				t.Error("expected load error, got nil")
			}
		})
	}
}

func TestReloadKeepsSnapshotOnError(t *testing.T) {
	dir := t.TempDir()
	camPath := writeFile(t, dir, "cameras.yaml", camerasYAML)

	cat, err := Load(camPath, "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	// Corrupt the file, then reload: the old snapshot must survive.
	writeFile(t, dir, "cameras.yaml", "cameras:\n  - name: broken\n")
	if err := cat.Reload(); err == nil {
		t.Fatal("expected reload error")
	}
	if _, ok := cat.Camera("cam-01"); !ok {
		t.Error("previous snapshot lost after failed reload")
	}
}
