package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-process BlobStore for tests and local development.
type MemoryStore struct {
	mu      sync.Mutex
	baseURL string
	objects map[string]memoryObject
	now     func() time.Time
}

type memoryObject struct {
	data        []byte
	contentType string
	updated     time.Time
}

// NewMemoryStore returns an empty store whose URLs start with baseURL.
func NewMemoryStore(baseURL string) *MemoryStore {
	return &MemoryStore{
		baseURL: strings.TrimRight(baseURL, "/"),
		objects: make(map[string]memoryObject),
		now:     time.Now,
	}
}

var _ BlobStore = (*MemoryStore)(nil)

// Upload stores a copy of data.
func (s *MemoryStore) Upload(ctx context.Context, path string, data []byte, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	s.objects[path] = memoryObject{data: append([]byte(nil), data...), contentType: contentType, updated: s.now()}
	s.mu.Unlock()
	return s.ResolveURL(ctx, path)
}

// Delete removes path.
func (s *MemoryStore) Delete(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.objects, path)
	s.mu.Unlock()
	return nil
}

// List returns objects under prefix sorted by path.
func (s *MemoryStore) List(ctx context.Context, prefix string) ([]Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Object
	for path, obj := range s.objects {
		if strings.HasPrefix(path, prefix) {
			out = append(out, Object{Path: path, Size: int64(len(obj.data)), ContentType: obj.contentType, Updated: obj.updated})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// Copy duplicates src to dst.
func (s *MemoryStore) Copy(ctx context.Context, src, dst string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[src]
	if !ok {
		return fmt.Errorf("storage: copy %s: %w", src, ErrObjectNotFound)
	}
	obj.updated = s.now()
	s.objects[dst] = obj
	return nil
}

// Exists reports whether path is present.
func (s *MemoryStore) Exists(ctx context.Context, path string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	_, ok := s.objects[path]
	s.mu.Unlock()
	return ok, nil
}

// ResolveURL joins the base URL and path.
func (s *MemoryStore) ResolveURL(_ context.Context, path string) (string, error) {
	return s.baseURL + "/" + path, nil
}

// Bytes returns the stored content of path.
func (s *MemoryStore) Bytes(path string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[path]
	return obj.data, ok
}
