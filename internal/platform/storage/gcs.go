package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
)

// GCSStore implements BlobStore on a Cloud Storage bucket.
type GCSStore struct {
	client *gcs.Client
	bucket string
	urlTTL time.Duration
}

// NewGCSStore binds the store to bucket. Signed URLs use the client's credentials.
func NewGCSStore(client *gcs.Client, bucket string, urlTTL time.Duration) (*GCSStore, error) {
	if client == nil {
		return nil, errors.New("storage: gcs client is required")
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errors.New("storage: bucket name is required")
	}
	if urlTTL <= 0 {
		urlTTL = defaultURLTTL
	}
	return &GCSStore{client: client, bucket: bucket, urlTTL: urlTTL}, nil
}

var _ BlobStore = (*GCSStore)(nil)

// Upload writes data to the bucket.
func (s *GCSStore) Upload(ctx context.Context, path string, data []byte, contentType string) (string, error) {
	w := s.client.Bucket(s.bucket).Object(path).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("storage: write %s: %w", path, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("storage: finalize %s: %w", path, err)
	}
	return s.ResolveURL(ctx, path)
}

// Delete removes the object; a missing object is not an error.
func (s *GCSStore) Delete(ctx context.Context, path string) error {
	err := s.client.Bucket(s.bucket).Object(path).Delete(ctx)
	if err != nil && !errors.Is(err, gcs.ErrObjectNotExist) {
		return fmt.Errorf("storage: delete %s: %w", path, err)
	}
	return nil
}

// List enumerates objects under prefix.
func (s *GCSStore) List(ctx context.Context, prefix string) ([]Object, error) {
	it := s.client.Bucket(s.bucket).Objects(ctx, &gcs.Query{Prefix: prefix})
	var out []Object
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("storage: list %s: %w", prefix, err)
		}
		out = append(out, Object{
			Path:        attrs.Name,
			Size:        attrs.Size,
			ContentType: attrs.ContentType,
			Updated:     attrs.Updated,
		})
	}
}

// Copy duplicates src to dst inside the bucket using a server-side rewrite.
func (s *GCSStore) Copy(ctx context.Context, src, dst string) error {
	if src == dst {
		return nil
	}
	bucket := s.client.Bucket(s.bucket)
	_, err := bucket.Object(dst).CopierFrom(bucket.Object(src)).Run(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) || isHTTPNotFound(err) {
		return fmt.Errorf("storage: copy %s: %w", src, ErrObjectNotFound)
	}
	if err != nil {
		return fmt.Errorf("storage: copy %s to %s: %w", src, dst, err)
	}
	return nil
}

// Exists reports whether path is present.
func (s *GCSStore) Exists(ctx context.Context, path string) (bool, error) {
	_, err := s.client.Bucket(s.bucket).Object(path).Attrs(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("storage: stat %s: %w", path, err)
	}
	return true, nil
}

// ResolveURL returns a V4 signed GET URL.
func (s *GCSStore) ResolveURL(_ context.Context, path string) (string, error) {
	url, err := s.client.Bucket(s.bucket).SignedURL(path, &gcs.SignedURLOptions{
		Method:  http.MethodGet,
		Expires: time.Now().Add(s.urlTTL),
		Scheme:  gcs.SigningSchemeV4,
	})
	if err != nil {
		return "", fmt.Errorf("storage: sign %s: %w", path, err)
	}
	return url, nil
}

// Ping checks bucket access. Used by readiness checks.
func (s *GCSStore) Ping(ctx context.Context) error {
	_, err := s.client.Bucket(s.bucket).Attrs(ctx)
	return err
}

func isHTTPNotFound(err error) bool {
	var apiErr interface{ HTTPCode() int }
	return errors.As(err, &apiErr) && apiErr.HTTPCode() == http.StatusNotFound
}
