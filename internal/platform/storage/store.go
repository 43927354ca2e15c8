// Package storage keeps legacy product image objects in a bucket (Cloud Storage or MinIO).
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrObjectNotFound is returned when the requested object does not exist.
var ErrObjectNotFound = errors.New("storage: object not found")

// Object describes a stored blob.
type Object struct {
	Path        string
	Size        int64
	ContentType string
	Updated     time.Time
}

// BlobStore is the object storage contract used by uploads and category migrations.
type BlobStore interface {
	// Upload writes data at path and returns a URL that resolves to it.
	Upload(ctx context.Context, path string, data []byte, contentType string) (string, error)
	// Delete removes path. Deleting a missing object succeeds.
	Delete(ctx context.Context, path string) error
	// List returns every object whose path starts with prefix, in lexical order.
	List(ctx context.Context, prefix string) ([]Object, error)
	// Copy duplicates src to dst. A missing source yields ErrObjectNotFound.
	Copy(ctx context.Context, src, dst string) error
	// Exists reports whether path is present.
	Exists(ctx context.Context, path string) (bool, error)
	// ResolveURL returns a time-limited download URL for path.
	ResolveURL(ctx context.Context, path string) (string, error)
}

const defaultURLTTL = 15 * time.Minute
