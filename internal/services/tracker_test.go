package services

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/nitu-designer/lehangas/internal/platform/localstore"
)

type failingStore struct {
	localstore.Store
	setErr error
}

func (s failingStore) Set(ctx context.Context, key, value string) error {
	if s.setErr != nil {
		return s.setErr
	}
	return s.Store.Set(ctx, key, value)
}

func TestTrackerSelectionAndFavoritesAreIndependent(t *testing.T) {
	ctx := context.Background()
	tracker, err := NewTracker(ctx, localstore.NewMemory())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !tracker.ToggleSelect("a") || !tracker.ToggleSelect("b") {
		t.Fatalf("expected keys to become selected")
	}
	if tracker.IsFavorite("a") {
		t.Fatalf("selection must not favorite")
	}
	favorited, err := tracker.ToggleFavorite(ctx, "b")
	if err != nil || !favorited {
		t.Fatalf("expected favorite, got %v %v", favorited, err)
	}
	if tracker.ToggleSelect("b") {
		t.Fatalf("expected b to be deselected")
	}
	if !tracker.IsFavorite("b") {
		t.Fatalf("deselecting must not unfavorite")
	}
	if got := tracker.Selection(); !reflect.DeepEqual(got, []string{"a"}) {
		t.Fatalf("unexpected selection %v", got)
	}
	tracker.ClearSelection()
	if got := tracker.Selection(); len(got) != 0 || got == nil {
		t.Fatalf("expected empty non-nil selection, got %#v", got)
	}
}

func TestTrackerFavoritesSurviveReload(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "local.json")
	store, err := localstore.OpenFile(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	tracker, err := NewTracker(ctx, store)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, key := range []string{"x", "y", "z"} {
		if _, err := tracker.ToggleFavorite(ctx, key); err != nil {
			t.Fatalf("toggle %s: %v", key, err)
		}
	}
	if _, err := tracker.ToggleFavorite(ctx, "y"); err != nil {
		t.Fatalf("toggle y: %v", err)
	}
	tracker.ToggleSelect("x")
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := localstore.OpenFile(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	fresh, err := NewTracker(ctx, reopened)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := fresh.Favorites(); !reflect.DeepEqual(got, []string{"x", "z"}) {
		t.Fatalf("expected favorites in toggle order, got %v", got)
	}
	if got := fresh.Selection(); len(got) != 0 {
		t.Fatalf("expected selection to start empty, got %v", got)
	}
}

func TestTrackerRevertsFavoriteWhenWriteFails(t *testing.T) {
	ctx := context.Background()
	backing := localstore.NewMemory()
	store := &failingStore{Store: backing}
	tracker, err := NewTracker(ctx, store)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := tracker.ToggleFavorite(ctx, "a"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	store.setErr = errors.New("disk full")
	favorited, err := tracker.ToggleFavorite(ctx, "a")
	if !IsKind(err, ErrorKindStoreWriteFailed) {
		t.Fatalf("expected store write failure, got %v", err)
	}
	if !favorited || !tracker.IsFavorite("a") {
		t.Fatalf("expected favorite to be kept after failed removal")
	}
	if _, err := tracker.ToggleFavorite(ctx, "b"); err == nil {
		t.Fatalf("expected failure")
	}
	if tracker.IsFavorite("b") {
		t.Fatalf("expected failed add to be reverted")
	}
	raw, _, _ := backing.Get(ctx, FavoritesKey)
	if raw != `["a"]` {
		t.Fatalf("expected persisted favorites unchanged, got %s", raw)
	}
}

func TestTrackerIgnoresCorruptFavorites(t *testing.T) {
	ctx := context.Background()
	store := localstore.NewMemory()
	if err := store.Set(ctx, FavoritesKey, "{not json"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	tracker, err := NewTracker(ctx, store)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := tracker.Favorites(); len(got) != 0 {
		t.Fatalf("expected empty favorites, got %v", got)
	}
}

func TestSessionRegistryReusesAndSweepsSessions(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	store := localstore.NewMemory()
	recorder := &eventRecorder{}
	registry, err := NewSessionRegistry(SessionRegistryDeps{
		Store:       store,
		IdleTimeout: time.Hour,
		Clock:       func() time.Time { return now },
		Logger:      recorder.log,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	alice, err := registry.Session(ctx, "alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if category, term := alice.Filter(); category != "All" || term != "" {
		t.Fatalf("unexpected default filter %q %q", category, term)
	}
	alice.SetCategoryFilter("Bridal")
	alice.SetSearchTerm("  red  ")
	if _, err := alice.Tracker.ToggleFavorite(ctx, "k1"); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	again, _ := registry.Session(ctx, "alice")
	if again != alice {
		t.Fatalf("expected the same session")
	}
	bob, _ := registry.Session(ctx, "bob")
	if bob.Tracker.IsFavorite("k1") {
		t.Fatalf("expected favorites scoped per shopper")
	}

	now = now.Add(30 * time.Minute)
	if _, err := registry.Session(ctx, "bob"); err != nil {
		t.Fatalf("touch: %v", err)
	}
	now = now.Add(45 * time.Minute)
	if evicted := registry.Sweep(ctx); evicted != 1 || registry.Len() != 1 {
		t.Fatalf("expected alice evicted, got %d evicted and %d live", evicted, registry.Len())
	}
	if !recorder.has("session.evicted") {
		t.Fatalf("expected eviction to be logged")
	}

	restored, _ := registry.Session(ctx, "alice")
	if restored == alice {
		t.Fatalf("expected a new session after eviction")
	}
	if !restored.Tracker.IsFavorite("k1") {
		t.Fatalf("expected favorites restored from the store")
	}
	if category, _ := restored.Filter(); category != "All" {
		t.Fatalf("expected filter reset, got %q", category)
	}

	if _, err := registry.Session(ctx, " "); !IsKind(err, ErrorKindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
