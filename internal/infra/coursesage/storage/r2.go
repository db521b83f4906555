// Package storage adapts Cloudflare R2 / any S3-compatible endpoint to the
// coursesage ObjectStorage contract (§6): whole-object byte reads of
// already-uploaded course PDFs.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/yanqian/ai-helloworld/internal/domain/coursesage"
)

// R2Storage reads objects from R2 via the S3-compatible API.
type R2Storage struct {
	client *minio.Client
	logger *slog.Logger
}

// NewR2Storage constructs the storage adapter.
func NewR2Storage(endpoint, accessKey, secretKey, region string, logger *slog.Logger) (*R2Storage, error) {
	cleanEndpoint := sanitizeEndpoint(endpoint)
	useSSL := strings.HasPrefix(strings.ToLower(endpoint), "https")
	client, err := minio.New(cleanEndpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure:       useSSL,
		Region:       region,
		BucketLookup: minio.BucketLookupPath,
	})
	if err != nil {
		return nil, fmt.Errorf("init r2 client: %w", err)
	}
	return &R2Storage{client: client, logger: logger.With("component", "object_storage", "backend", "r2")}, nil
}

// Get implements coursesage.ObjectStorage.
func (s *R2Storage) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, coursesage.WrapTransient("object storage get failed", err)
	}
	defer obj.Close()

	if _, statErr := obj.Stat(); statErr != nil {
		return nil, coursesage.WrapInput("object not found", statErr)
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, obj); err != nil {
		return nil, coursesage.WrapTransient("object storage read failed", err)
	}
	return buf.Bytes(), nil
}

var _ coursesage.ObjectStorage = (*R2Storage)(nil)

// sanitizeEndpoint removes schemes and paths to satisfy minio.New expectations.
func sanitizeEndpoint(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return raw
	}
	raw = strings.TrimPrefix(strings.TrimPrefix(raw, "https://"), "http://")
	if strings.Contains(raw, "/") {
		parts := strings.Split(raw, "/")
		raw = parts[0]
	}
	return raw
}
