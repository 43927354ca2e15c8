package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/securecookie"

	"github.com/nitu-designer/lehangas/internal/platform/config"
	"github.com/nitu-designer/lehangas/internal/platform/httpx"
	"github.com/nitu-designer/lehangas/internal/platform/requestctx"
	"github.com/nitu-designer/lehangas/internal/services"
)

const (
	defaultShopperCookieName = "storefront_shopper"
	shopperCookieMaxAge      = 365 * 24 * time.Hour
	minCookieHashKeyBytes    = 32
)

// ShopperCookie issues and verifies the signed cookie carrying the opaque shopper id.
type ShopperCookie struct {
	codec  *securecookie.SecureCookie
	name   string
	secure bool
	newID  func() string
}

// NewShopperCookie validates the cookie keys. The block key is optional; when set the value is
// also encrypted.
func NewShopperCookie(cfg config.SessionConfig) (*ShopperCookie, error) {
	hashKey := []byte(cfg.HashKey)
	if len(hashKey) < minCookieHashKeyBytes {
		return nil, errors.New("session cookie: hash key must be at least 32 bytes")
	}
	var blockKey []byte
	if cfg.BlockKey != "" {
		blockKey = []byte(cfg.BlockKey)
		switch len(blockKey) {
		case 16, 24, 32:
		default:
			return nil, errors.New("session cookie: block key must be 16, 24 or 32 bytes")
		}
	}
	name := strings.TrimSpace(cfg.CookieName)
	if name == "" {
		name = defaultShopperCookieName
	}
	codec := securecookie.New(hashKey, blockKey)
	codec.MaxAge(int(shopperCookieMaxAge / time.Second))
	return &ShopperCookie{codec: codec, name: name, secure: cfg.SecureCookie, newID: services.NewShopperID}, nil
}

// Middleware stores the shopper id in the request context, issuing a fresh cookie when the request
// has none or its signature does not verify.
func (c *ShopperCookie) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := c.read(r)
		if !ok {
			id = c.newID()
			encoded, err := c.codec.Encode(c.name, id)
			if err != nil {
				httpx.WriteError(r.Context(), w, httpx.NewError("session_error", "could not issue session", http.StatusInternalServerError))
				return
			}
			http.SetCookie(w, &http.Cookie{
				Name:     c.name,
				Value:    encoded,
				Path:     "/",
				MaxAge:   int(shopperCookieMaxAge / time.Second),
				HttpOnly: true,
				Secure:   c.secure,
				SameSite: http.SameSiteLaxMode,
			})
		}
		next.ServeHTTP(w, r.WithContext(requestctx.WithShopper(r.Context(), id)))
	})
}

func (c *ShopperCookie) read(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(c.name)
	if err != nil {
		return "", false
	}
	var id string
	if err := c.codec.Decode(c.name, cookie.Value, &id); err != nil || strings.TrimSpace(id) == "" {
		return "", false
	}
	return id, true
}

// SessionHandlers expose per-shopper filter, selection, favorites and sharing.
type SessionHandlers struct {
	sessions services.SessionService
	catalog  services.CatalogService
	share    services.ShareService
	limiter  rateLimiter
}

// SessionOption customises SessionHandlers.
type SessionOption func(*SessionHandlers)

// WithShareRateLimit caps share requests per shopper within the window. Non-positive values disable it.
func WithShareRateLimit(limit int, window time.Duration) SessionOption {
	return func(h *SessionHandlers) {
		h.limiter = newSimpleRateLimiter(limit, window, nil)
	}
}

// NewSessionHandlers constructs shopper session handlers.
func NewSessionHandlers(sessions services.SessionService, catalog services.CatalogService, share services.ShareService, opts ...SessionOption) *SessionHandlers {
	h := &SessionHandlers{sessions: sessions, catalog: catalog, share: share}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers session endpoints. The group must run behind ShopperCookie.Middleware.
func (h *SessionHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.getSession)
	r.Put("/filter", h.updateFilter)
	r.Get("/products", h.listProducts)
	r.Post("/selection/toggle", h.toggleSelection)
	r.Delete("/selection", h.clearSelection)
	r.Post("/favorites/toggle", h.toggleFavorite)
	r.Post("/share", h.shareSelection)
}

type sessionResponse struct {
	ShopperID string   `json:"shopperId"`
	Category  string   `json:"category"`
	Term      string   `json:"term"`
	Selection []string `json:"selection"`
	Favorites []string `json:"favorites"`
}

func newSessionResponse(s *services.ShopperSession) sessionResponse {
	category, term := s.Filter()
	return sessionResponse{
		ShopperID: s.ID,
		Category:  category,
		Term:      term,
		Selection: s.Tracker.Selection(),
		Favorites: s.Tracker.Favorites(),
	}
}

func (h *SessionHandlers) session(w http.ResponseWriter, r *http.Request) (*services.ShopperSession, bool) {
	ctx := r.Context()
	if h.sessions == nil {
		serviceUnavailable(ctx, w, "session")
		return nil, false
	}
	id := requestctx.ShopperID(ctx)
	if id == "" {
		httpx.WriteError(ctx, w, httpx.NewError("session_required", "shopper session missing", http.StatusUnauthorized))
		return nil, false
	}
	session, err := h.sessions.Session(ctx, id)
	if err != nil {
		writeServiceError(ctx, w, err, "session")
		return nil, false
	}
	return session, true
}

func (h *SessionHandlers) getSession(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	httpx.WriteJSON(w, http.StatusOK, newSessionResponse(session))
}

type filterRequest struct {
	Category *string `json:"category"`
	Term     *string `json:"term"`
}

func (h *SessionHandlers) updateFilter(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	var req filterRequest
	if err := decodeJSONBody(r, &req); err != nil {
		invalidRequest(r.Context(), w, err.Error())
		return
	}
	if req.Category != nil {
		session.SetCategoryFilter(*req.Category)
	}
	if req.Term != nil {
		session.SetSearchTerm(*req.Term)
	}
	httpx.WriteJSON(w, http.StatusOK, newSessionResponse(session))
}

func (h *SessionHandlers) listProducts(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	if h.catalog == nil {
		serviceUnavailable(r.Context(), w, "catalog")
		return
	}
	category, term := session.Filter()
	products := h.catalog.FilteredProducts(category, term)
	out := make([]productResponse, 0, len(products))
	for _, p := range products {
		resp := newProductResponse(p)
		selected := session.Tracker.IsSelected(p.Key())
		favorite := session.Tracker.IsFavorite(p.Key())
		resp.Selected = &selected
		resp.Favorite = &favorite
		out = append(out, resp)
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"category": category,
		"term":     term,
		"products": out,
	})
}

type toggleRequest struct {
	Key string `json:"key"`
}

func decodeToggle(r *http.Request) (string, error) {
	var req toggleRequest
	if err := decodeJSONBody(r, &req); err != nil {
		return "", err
	}
	key := strings.TrimSpace(req.Key)
	if key == "" {
		return "", errors.New("key is required")
	}
	return key, nil
}

func (h *SessionHandlers) toggleSelection(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	key, err := decodeToggle(r)
	if err != nil {
		invalidRequest(r.Context(), w, err.Error())
		return
	}
	selected := session.Tracker.ToggleSelect(key)
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"key":       key,
		"selected":  selected,
		"selection": session.Tracker.Selection(),
	})
}

func (h *SessionHandlers) clearSelection(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	session.Tracker.ClearSelection()
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"selection": session.Tracker.Selection(),
	})
}

func (h *SessionHandlers) toggleFavorite(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	key, err := decodeToggle(r)
	if err != nil {
		invalidRequest(ctx, w, err.Error())
		return
	}
	favorite, err := session.Tracker.ToggleFavorite(ctx, key)
	if err != nil {
		writeServiceError(ctx, w, err, "favorites")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"key":       key,
		"favorite":  favorite,
		"favorites": session.Tracker.Favorites(),
	})
}

type shareRequest struct {
	Keys []string `json:"keys"`
}

func (h *SessionHandlers) shareSelection(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	if h.share == nil {
		serviceUnavailable(ctx, w, "share")
		return
	}
	if h.limiter != nil && !h.limiter.Allow(session.ID) {
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many share requests", http.StatusTooManyRequests))
		return
	}
	var req shareRequest
	if r.ContentLength != 0 {
		if err := decodeJSONBody(r, &req); err != nil {
			invalidRequest(ctx, w, err.Error())
			return
		}
	}
	keys := req.Keys
	if len(keys) == 0 {
		keys = session.Tracker.Selection()
	}
	link, err := h.share.Share(ctx, keys)
	if err != nil {
		writeServiceError(ctx, w, err, "share")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, newShareLinkResponse(link))
}
