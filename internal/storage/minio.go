// Argus - Multi-Camera Risk Detection and Alerting
// Copyright 2026 D. Almeida (argus-vision)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/argus-vision/argus

package storage

import (
	"context"
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/argus-vision/argus/internal/config"
	"github.com/argus-vision/argus/internal/logging"
	"github.com/argus-vision/argus/internal/models"
)

// MinIOClipStore persists evidence clips in an S3-compatible bucket,
// keyed by camera and date so retention tooling can prune by prefix.
type MinIOClipStore struct {
	client *minio.Client
	cfg    config.StorageConfig
}

// NewMinIOClipStore connects to the object store and ensures the bucket
// exists.
func NewMinIOClipStore(ctx context.Context, cfg config.StorageConfig) (*MinIOClipStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("connect object store %s: %w", cfg.Endpoint, err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
		logging.Info().Str("bucket", cfg.Bucket).Msg("clip bucket created")
	}

	return &MinIOClipStore{client: client, cfg: cfg}, nil
}

// Put implements recorder.ClipStore: uploads the local file and returns the
// clip's addressable path (a public URL when one is configured).
func (s *MinIOClipStore) Put(ctx context.Context, clip models.Clip, localPath string) (string, error) {
	objectName := fmt.Sprintf("%s/%s/%s.mp4",
		clip.CameraID, clip.Start.UTC().Format("2006/01/02"), clip.ID)

	_, err := s.client.FPutObject(ctx, s.cfg.Bucket, objectName, localPath,
		minio.PutObjectOptions{ContentType: "video/mp4"})
	if err != nil {
		return "", fmt.Errorf("upload clip %s: %w", clip.ID, err)
	}

	if s.cfg.PublicBaseURL != "" {
		return fmt.Sprintf("%s/%s/%s", s.cfg.PublicBaseURL, s.cfg.Bucket, objectName), nil
	}
	return fmt.Sprintf("%s/%s", s.cfg.Bucket, objectName), nil
}
