// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package publish sends finished reports to optional destinations: a GCS
// bucket, an InfluxDB bucket, and a histogram image.
package publish

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"os"
	"path"
	"path/filepath"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// objectStore opens writers for objects in one bucket.
type objectStore interface {
	NewWriter(ctx context.Context, object, contentType string) io.WriteCloser
	Close() error
}

type gcsStore struct {
	client *storage.Client
	bucket string
}

func (s gcsStore) NewWriter(ctx context.Context, object, contentType string) io.WriteCloser {
	w := s.client.Bucket(s.bucket).Object(object).NewWriter(ctx)
	w.ContentType = contentType
	w.CacheControl = "no-cache, no-store, must-revalidate"
	return w
}

func (s gcsStore) Close() error { return s.client.Close() }

// GCSConfig selects the bucket and credentials.
type GCSConfig struct {
	Bucket          string
	Prefix          string
	ProjectID       string
	CredentialsFile string // empty uses application default credentials
}

// GCSUploader copies report artifacts into a bucket.
type GCSUploader struct {
	store  objectStore
	bucket string
	prefix string
	logger *slog.Logger
}

// NewGCSUploader creates a storage client for cfg.Bucket.
func NewGCSUploader(ctx context.Context, cfg GCSConfig, logger *slog.Logger) (*GCSUploader, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("gcs bucket is required")
	}
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		if _, err := os.Stat(cfg.CredentialsFile); err != nil {
			return nil, fmt.Errorf("credentials file not found at path: %s: %w", cfg.CredentialsFile, err)
		}
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	if cfg.ProjectID != "" {
		opts = append(opts, option.WithQuotaProject(cfg.ProjectID))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS storage client: %w", err)
	}
	return newGCSUploader(gcsStore{client: client, bucket: cfg.Bucket}, cfg.Bucket, cfg.Prefix, logger), nil
}

func newGCSUploader(store objectStore, bucket, prefix string, logger *slog.Logger) *GCSUploader {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &GCSUploader{store: store, bucket: bucket, prefix: prefix, logger: logger}
}

// ObjectName returns the object a local file is uploaded to:
// <prefix>/<graphID>/<base name>.
func (u *GCSUploader) ObjectName(graphID, localPath string) string {
	return path.Join(u.prefix, graphID, filepath.Base(localPath))
}

// Upload copies each local file under the graph's prefix and returns the
// gs:// URLs written.
func (u *GCSUploader) Upload(ctx context.Context, graphID string, localPaths ...string) ([]string, error) {
	urls := make([]string, 0, len(localPaths))
	for _, p := range localPaths {
		object := u.ObjectName(graphID, p)
		if err := u.uploadFile(ctx, p, object); err != nil {
			return urls, err
		}
		url := fmt.Sprintf("gs://%s/%s", u.bucket, object)
		u.logger.Info("uploaded report artifact", "path", p, "url", url)
		urls = append(urls, url)
	}
	return urls, nil
}

func (u *GCSUploader) uploadFile(ctx context.Context, localPath, object string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open the local file: %s: %w", localPath, err)
	}
	defer f.Close()

	ct := "text/plain; charset=utf-8" // reports carry no extension
	if ext := filepath.Ext(localPath); ext != "" {
		if ct = mime.TypeByExtension(ext); ct == "" {
			ct = "application/octet-stream"
		}
	}
	w := u.store.NewWriter(ctx, object, ct)
	if _, err := io.Copy(w, f); err != nil {
		w.Close()
		return fmt.Errorf("failed to copy %s to GCS object %s: %w", localPath, object, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close GCS writer for %s: %w", object, err)
	}
	return nil
}

// Close releases the storage client.
func (u *GCSUploader) Close() error {
	return u.store.Close()
}
