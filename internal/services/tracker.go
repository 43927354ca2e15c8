package services

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"sync"

	"github.com/nitu-designer/lehangas/internal/platform/localstore"
)

// FavoritesKey is the local store key holding the favorites JSON array.
const FavoritesKey = "favorites"

// Tracker keeps a shopper's selection (memory only) and favorites (persisted on every toggle).
// Both are ordered by toggle time and independent of each other.
type Tracker struct {
	store localstore.Store

	mu        sync.Mutex
	selection []string
	favorites []string
}

// NewTracker reads the persisted favorites once. A missing or unreadable value starts empty.
func NewTracker(ctx context.Context, store localstore.Store) (*Tracker, error) {
	if store == nil {
		return nil, errors.New("tracker: local store is required")
	}
	t := &Tracker{store: store}
	raw, ok, err := store.Get(ctx, FavoritesKey)
	if err != nil {
		return nil, err
	}
	if ok && raw != "" {
		var favorites []string
		if json.Unmarshal([]byte(raw), &favorites) == nil {
			t.favorites = dedupe(favorites)
		}
	}
	return t, nil
}

// ToggleSelect adds key to the selection or removes it, and reports whether it is now selected.
func (t *Tracker) ToggleSelect(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	var selected bool
	t.selection, selected = toggle(t.selection, key)
	return selected
}

// ToggleFavorite flips key in the favorites and persists the list. When the write fails the toggle is
// undone and a store write error is returned.
func (t *Tracker) ToggleFavorite(ctx context.Context, key string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	previous := t.favorites
	next, favorited := toggle(slices.Clone(previous), key)
	raw, err := json.Marshal(nonNil(next))
	if err != nil {
		return slices.Contains(previous, key), storeWriteError("tracker.toggleFavorite", err)
	}
	if err := t.store.Set(ctx, FavoritesKey, string(raw)); err != nil {
		return slices.Contains(previous, key), storeWriteError("tracker.toggleFavorite", err)
	}
	t.favorites = next
	return favorited, nil
}

// ClearSelection empties the selection.
func (t *Tracker) ClearSelection() {
	t.mu.Lock()
	t.selection = nil
	t.mu.Unlock()
}

// Selection returns the selected keys in toggle order.
func (t *Tracker) Selection() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return nonNil(slices.Clone(t.selection))
}

// Favorites returns the favorited keys in toggle order.
func (t *Tracker) Favorites() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return nonNil(slices.Clone(t.favorites))
}

// IsSelected reports whether key is in the selection.
func (t *Tracker) IsSelected(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Contains(t.selection, key)
}

// IsFavorite reports whether key is a favorite.
func (t *Tracker) IsFavorite(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Contains(t.favorites, key)
}

func toggle(list []string, key string) ([]string, bool) {
	if idx := slices.Index(list, key); idx >= 0 {
		return slices.Delete(list, idx, idx+1), false
	}
	return append(list, key), true
}

func dedupe(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v != "" && !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	return out
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
