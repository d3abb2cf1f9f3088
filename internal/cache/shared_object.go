// Copyright 2026 The dreamscapes-sub008 Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/girishdigge/dreamscapes-sub008/internal/dream"
)

// ObjectBackend is a SharedBackend over an S3-compatible object store,
// used instead of PostgresBackend when SHARED_CACHE_URL names an s3 bucket.
// Entries are stored as one compressed object per fingerprint.
type ObjectBackend struct {
	client *minio.Client
	bucket string
	prefix string
}

// ObjectBackendConfig configures the S3-compatible endpoint.
type ObjectBackendConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
	UseSSL    bool
}

// NewObjectBackend constructs a minio-backed shared cache tier.
func NewObjectBackend(cfg ObjectBackendConfig) (*ObjectBackend, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("cache: constructing minio client: %w", err)
	}
	return &ObjectBackend{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

func (b *ObjectBackend) key(fingerprint string) string {
	if b.prefix == "" {
		return fingerprint
	}
	return b.prefix + "/" + fingerprint
}

// Get fetches and decompresses the object for fingerprint.
func (b *ObjectBackend) Get(ctx context.Context, fingerprint string) (*Entry, bool, error) {
	obj, err := b.client.GetObject(ctx, b.bucket, b.key(fingerprint), minio.GetObjectOptions{})
	if err != nil {
		return nil, false, nil
	}
	defer obj.Close()

	compressed, err := io.ReadAll(obj)
	if err != nil {
		var resp minio.ErrorResponse
		if errors.As(err, &resp) && resp.Code == "NoSuchKey" {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("cache: reading shared object: %w", err)
	}

	artifact, err := decodeArtifact(compressed)
	if err != nil {
		return nil, false, err
	}

	stat, err := b.client.StatObject(ctx, b.bucket, b.key(fingerprint), minio.StatObjectOptions{})
	createdAt := time.Now()
	source := dream.SourceAI
	if err == nil {
		createdAt = stat.LastModified
		if s, ok := stat.UserMetadata["Source"]; ok {
			source = dream.Source(s)
		}
	}

	return &Entry{Fingerprint: fingerprint, Artifact: artifact, CreatedAt: createdAt, Source: source}, true, nil
}

// Put compresses and uploads entry, tagging it with its provenance so Get
// can recover Source without a separate metadata store.
func (b *ObjectBackend) Put(ctx context.Context, entry *Entry) error {
	compressed, err := encodeArtifact(entry.Artifact)
	if err != nil {
		return err
	}

	_, err = b.client.PutObject(ctx, b.bucket, b.key(entry.Fingerprint), bytes.NewReader(compressed), int64(len(compressed)),
		minio.PutObjectOptions{
			ContentType:  "application/octet-stream",
			UserMetadata: map[string]string{"Source": string(entry.Source)},
		})
	return err
}

// Delete removes the object for fingerprint.
func (b *ObjectBackend) Delete(ctx context.Context, fingerprint string) error {
	return b.client.RemoveObject(ctx, b.bucket, b.key(fingerprint), minio.RemoveObjectOptions{})
}
