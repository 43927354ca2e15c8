package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/nitu-designer/lehangas/internal/domain"
	"github.com/nitu-designer/lehangas/internal/platform/localstore"
)

const defaultSessionIdleTimeout = 2 * time.Hour

// ShopperSession is one shopper's view state: the category filter, the search term and the tracker.
type ShopperSession struct {
	ID      string
	Tracker *Tracker

	mu       sync.RWMutex
	category string
	term     string
	lastSeen time.Time
}

// SetCategoryFilter selects the category shown to the shopper. An empty name resets to "All".
func (s *ShopperSession) SetCategoryFilter(name string) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = domain.AllCategoryName
	}
	s.mu.Lock()
	s.category = name
	s.mu.Unlock()
}

// SetSearchTerm stores the free-text search term as typed. CatalogView.FilteredProducts normalises it.
func (s *ShopperSession) SetSearchTerm(text string) {
	s.mu.Lock()
	s.term = text
	s.mu.Unlock()
}

// Filter returns the selected category and search term.
func (s *ShopperSession) Filter() (category, term string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.category, s.term
}

func (s *ShopperSession) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *ShopperSession) idleSince(now time.Time) time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return now.Sub(s.lastSeen)
}

// SessionRegistryDeps bundles collaborators for the session registry.
type SessionRegistryDeps struct {
	Store       localstore.Store
	IdleTimeout time.Duration
	Clock       func() time.Time
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

// SessionRegistry keeps live shopper sessions in memory. Favorites live in the local store under the
// shopper's namespace, so they survive eviction; the selection does not.
type SessionRegistry struct {
	store  localstore.Store
	idle   time.Duration
	clock  func() time.Time
	logger func(ctx context.Context, event string, fields map[string]any)

	mu       sync.Mutex
	sessions map[string]*ShopperSession
}

var _ SessionService = (*SessionRegistry)(nil)

func NewSessionRegistry(deps SessionRegistryDeps) (*SessionRegistry, error) {
	if deps.Store == nil {
		return nil, errors.New("session registry: local store is required")
	}
	idle := deps.IdleTimeout
	if idle <= 0 {
		idle = defaultSessionIdleTimeout
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &SessionRegistry{
		store:    deps.Store,
		idle:     idle,
		clock:    clock,
		logger:   logger,
		sessions: make(map[string]*ShopperSession),
	}, nil
}

// NewShopperID returns a fresh opaque shopper id.
func NewShopperID() string {
	return ulid.Make().String()
}

// Session returns the live session for shopperID, creating it and loading favorites on first use.
func (r *SessionRegistry) Session(ctx context.Context, shopperID string) (*ShopperSession, error) {
	shopperID = strings.TrimSpace(shopperID)
	if shopperID == "" {
		return nil, validationError("session.get", "shopper id is required")
	}
	now := r.clock()

	r.mu.Lock()
	existing, ok := r.sessions[shopperID]
	r.mu.Unlock()
	if ok {
		existing.touch(now)
		return existing, nil
	}

	tracker, err := NewTracker(ctx, localstore.Namespace(r.store, "shopper:"+shopperID))
	if err != nil {
		return nil, err
	}
	created := &ShopperSession{
		ID:       shopperID,
		Tracker:  tracker,
		category: domain.AllCategoryName,
		lastSeen: now,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.sessions[shopperID]; ok {
		existing.touch(now)
		return existing, nil
	}
	r.sessions[shopperID] = created
	return created, nil
}

// Sweep drops sessions idle for longer than the idle timeout and returns how many were evicted.
func (r *SessionRegistry) Sweep(ctx context.Context) int {
	now := r.clock()
	r.mu.Lock()
	evicted := 0
	for id, session := range r.sessions {
		if session.idleSince(now) > r.idle {
			delete(r.sessions, id)
			evicted++
		}
	}
	live := len(r.sessions)
	r.mu.Unlock()

	if evicted > 0 {
		r.logger(ctx, "session.evicted", map[string]any{"evicted": evicted, "live": live})
	}
	return evicted
}

// Len reports the number of live sessions.
func (r *SessionRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
