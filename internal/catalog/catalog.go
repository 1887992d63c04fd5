// Argus - Multi-Camera Risk Detection and Alerting
// Copyright 2026 D. Almeida (argus-vision)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/argus-vision/argus

// Package catalog loads the camera and conflict-zone catalogs. Both are
// owned by an external collaborator: Argus reads them at startup and on
// demand, and never writes back.
//
// File format (YAML):
//
//	cameras:
//	  - id: cam-017
//	    name: Market square north
//	    zone: old-town
//	    latitude: 36.2021
//	    longitude: 37.1343
//	    stream_url: rtsp://example/cam17
//	    backup_urls: ["https://mirror.example/cam17.m3u8"]
//	    risk_level: 3
//	    enabled: true
//
//	zones:
//	  - name: old-town
//	    risk_level: 8
//	    polygon: [{lat: 36.19, lon: 37.12}, ...]
package catalog

import (
	"fmt"
	"sort"
	"sync"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/argus-vision/argus/internal/logging"
	"github.com/argus-vision/argus/internal/models"
)

// Catalog is the in-memory view of the camera and zone files. Safe for
// concurrent reads; Reload swaps the whole snapshot under the lock.
type Catalog struct {
	camerasPath string
	zonesPath   string

	mu      sync.RWMutex
	cameras map[string]models.Camera
	zones   []models.ConflictZone
}

// Load reads the catalog files and returns a ready Catalog. The zones path
// may be empty; cameras outside every zone get admission risk 0.
func Load(camerasPath, zonesPath string) (*Catalog, error) {
	c := &Catalog{
		camerasPath: camerasPath,
		zonesPath:   zonesPath,
		cameras:     make(map[string]models.Camera),
	}
	if err := c.Reload(); err != nil {
		return nil, err
	}
	return c, nil
}

// Reload re-reads the catalog files, replacing the current snapshot. On
// error the previous snapshot stays in place.
func (c *Catalog) Reload() error {
	cameras, err := loadCameras(c.camerasPath)
	if err != nil {
		return err
	}

	var zones []models.ConflictZone
	if c.zonesPath != "" {
		zones, err = loadZones(c.zonesPath)
		if err != nil {
			return err
		}
	}

	c.mu.Lock()
	c.cameras = cameras
	c.zones = zones
	c.mu.Unlock()

	logging.Info().
		Int("cameras", len(cameras)).
		Int("zones", len(zones)).
		Msg("catalog loaded")
	return nil
}

func loadCameras(path string) (map[string]models.Camera, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to read camera catalog %s: %w", path, err)
	}

	var records struct {
		Cameras []models.Camera `koanf:"cameras"`
	}
	if err := k.Unmarshal("", &records); err != nil {
		return nil, fmt.Errorf("failed to parse camera catalog %s: %w", path, err)
	}

	cameras := make(map[string]models.Camera, len(records.Cameras))
	for _, cam := range records.Cameras {
		if cam.ID == "" {
			return nil, fmt.Errorf("camera catalog %s: entry without id", path)
		}
		if _, dup := cameras[cam.ID]; dup {
			return nil, fmt.Errorf("camera catalog %s: duplicate id %q", path, cam.ID)
		}
		if len(cam.Sources()) == 0 {
			return nil, fmt.Errorf("camera catalog %s: camera %q has no source URL", path, cam.ID)
		}
		cameras[cam.ID] = cam
	}
	return cameras, nil
}

func loadZones(path string) ([]models.ConflictZone, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to read zone catalog %s: %w", path, err)
	}

	var records struct {
		Zones []models.ConflictZone `koanf:"zones"`
	}
	if err := k.Unmarshal("", &records); err != nil {
		return nil, fmt.Errorf("failed to parse zone catalog %s: %w", path, err)
	}
	return records.Zones, nil
}

// Camera returns the catalog entry for an id.
func (c *Catalog) Camera(id string) (models.Camera, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cam, ok := c.cameras[id]
	return cam, ok
}

// Cameras returns all catalog entries sorted by id.
func (c *Catalog) Cameras() []models.Camera {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]models.Camera, 0, len(c.cameras))
	for _, cam := range c.cameras {
		out = append(out, cam)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ZoneRisk returns the highest risk level among the zones containing the
// camera's coordinates, or 0 when no zone contains it. Used only for
// admission ordering when the stream ceiling is reached.
func (c *Catalog) ZoneRisk(cam models.Camera) int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	risk := 0
	for _, z := range c.zones {
		if z.Contains(cam.Latitude, cam.Longitude) && z.RiskLevel > risk {
			risk = z.RiskLevel
		}
	}
	return risk
}
