package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/nitu-designer/lehangas/internal/platform/config"
)

// MinIOStore implements BlobStore on an S3-compatible endpoint.
type MinIOStore struct {
	client *minio.Client
	bucket string
	urlTTL time.Duration
}

// NewMinIOStore connects to the endpoint and creates the bucket when it is missing.
func NewMinIOStore(ctx context.Context, cfg config.StorageConfig) (*MinIOStore, error) {
	endpoint := strings.TrimSpace(cfg.MinIO.Endpoint)
	if endpoint == "" {
		return nil, errors.New("storage: minio endpoint is required")
	}
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinIO.AccessKey, cfg.MinIO.SecretKey, ""),
		Secure: cfg.MinIO.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("storage: minio client: %w", err)
	}
	store, err := NewMinIOStoreFromClient(client, cfg.Bucket, cfg.SignedURLTTL)
	if err != nil {
		return nil, err
	}
	if err := store.ensureBucket(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

// NewMinIOStoreFromClient wraps an existing client.
func NewMinIOStoreFromClient(client *minio.Client, bucket string, urlTTL time.Duration) (*MinIOStore, error) {
	if client == nil {
		return nil, errors.New("storage: minio client is required")
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errors.New("storage: bucket name is required")
	}
	if urlTTL <= 0 {
		urlTTL = defaultURLTTL
	}
	return &MinIOStore{client: client, bucket: bucket, urlTTL: urlTTL}, nil
}

var _ BlobStore = (*MinIOStore)(nil)

func (s *MinIOStore) ensureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("storage: check bucket %s: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("storage: create bucket %s: %w", s.bucket, err)
	}
	return nil
}

// Upload writes data to the bucket.
func (s *MinIOStore) Upload(ctx context.Context, path string, data []byte, contentType string) (string, error) {
	_, err := s.client.PutObject(ctx, s.bucket, path, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("storage: put %s: %w", path, err)
	}
	return s.ResolveURL(ctx, path)
}

// Delete removes the object. S3 semantics make deleting a missing key a success.
func (s *MinIOStore) Delete(ctx context.Context, path string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, path, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("storage: remove %s: %w", path, err)
	}
	return nil
}

// List enumerates objects under prefix.
func (s *MinIOStore) List(ctx context.Context, prefix string) ([]Object, error) {
	var out []Object
	for info := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if info.Err != nil {
			return nil, fmt.Errorf("storage: list %s: %w", prefix, info.Err)
		}
		out = append(out, Object{
			Path:        info.Key,
			Size:        info.Size,
			ContentType: info.ContentType,
			Updated:     info.LastModified,
		})
	}
	return out, nil
}

// Copy duplicates src to dst with a server-side copy.
func (s *MinIOStore) Copy(ctx context.Context, src, dst string) error {
	if src == dst {
		return nil
	}
	_, err := s.client.CopyObject(ctx,
		minio.CopyDestOptions{Bucket: s.bucket, Object: dst},
		minio.CopySrcOptions{Bucket: s.bucket, Object: src},
	)
	if isNoSuchKey(err) {
		return fmt.Errorf("storage: copy %s: %w", src, ErrObjectNotFound)
	}
	if err != nil {
		return fmt.Errorf("storage: copy %s to %s: %w", src, dst, err)
	}
	return nil
}

// Exists reports whether path is present.
func (s *MinIOStore) Exists(ctx context.Context, path string) (bool, error) {
	_, err := s.client.StatObject(ctx, s.bucket, path, minio.StatObjectOptions{})
	if isNoSuchKey(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("storage: stat %s: %w", path, err)
	}
	return true, nil
}

// ResolveURL returns a presigned GET URL.
func (s *MinIOStore) ResolveURL(ctx context.Context, path string) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, path, s.urlTTL, url.Values{})
	if err != nil {
		return "", fmt.Errorf("storage: presign %s: %w", path, err)
	}
	return u.String(), nil
}

// Ping checks bucket access. Used by readiness checks.
func (s *MinIOStore) Ping(ctx context.Context) error {
	_, err := s.client.BucketExists(ctx, s.bucket)
	return err
}

func isNoSuchKey(err error) bool {
	if err == nil {
		return false
	}
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NoSuchObject"
}
