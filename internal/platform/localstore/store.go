// Package localstore persists small per-shopper values such as the favorites list.
package localstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nitu-designer/lehangas/internal/platform/config"
)

// ErrClosed is returned by stores used after Close.
var ErrClosed = errors.New("localstore: store closed")

// Store is a string key/value store. Get reports whether the key existed.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// Backend is a Store that owns resources.
type Backend interface {
	Store
	Close() error
}

// New opens the backend selected by cfg.Backend.
func New(ctx context.Context, cfg config.LocalStoreConfig) (Backend, error) {
	switch cfg.Backend {
	case config.LocalStoreFile:
		return OpenFile(cfg.FilePath)
	case config.LocalStoreRedis:
		return NewRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	default:
		return nil, fmt.Errorf("localstore: unknown backend %q", cfg.Backend)
	}
}

// Namespace scopes every key of store under prefix ("<prefix>:<key>").
func Namespace(store Store, prefix string) Store {
	return namespaced{store: store, prefix: strings.TrimSuffix(prefix, ":") + ":"}
}

type namespaced struct {
	store  Store
	prefix string
}

func (n namespaced) Get(ctx context.Context, key string) (string, bool, error) {
	return n.store.Get(ctx, n.prefix+key)
}

func (n namespaced) Set(ctx context.Context, key, value string) error {
	return n.store.Set(ctx, n.prefix+key, value)
}
