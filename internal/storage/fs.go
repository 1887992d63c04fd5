// Argus - Multi-Camera Risk Detection and Alerting
// Copyright 2026 D. Almeida (argus-vision)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/argus-vision/argus

package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/argus-vision/argus/internal/models"
)

// FSClipStore keeps clips on the local filesystem, mirroring the object
// store's camera/date layout. The default when no object store is
// configured.
type FSClipStore struct {
	Dir string
}

// Put implements recorder.ClipStore.
func (s *FSClipStore) Put(_ context.Context, clip models.Clip, localPath string) (string, error) {
	rel := filepath.Join(clip.CameraID, clip.Start.UTC().Format("2006/01/02"),
		fmt.Sprintf("%s.mp4", clip.ID))
	dest := filepath.Join(s.Dir, rel)

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("create clip directory: %w", err)
	}
	if err := os.Rename(localPath, dest); err != nil {
		// Rename fails across filesystems; fall back to a copy.
		if err := copyFile(localPath, dest); err != nil {
			return "", fmt.Errorf("store clip %s: %w", clip.ID, err)
		}
	}
	return dest, nil
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
