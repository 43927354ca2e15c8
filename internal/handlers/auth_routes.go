package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nitu-designer/lehangas/internal/platform/auth"
	"github.com/nitu-designer/lehangas/internal/platform/httpx"
	"github.com/nitu-designer/lehangas/internal/services"
)

// AuthHandlers exposes admin sign-in and sign-out.
type AuthHandlers struct {
	authn *auth.Authenticator
	auth  services.AuthService
}

// NewAuthHandlers constructs auth handlers.
func NewAuthHandlers(authn *auth.Authenticator, svc services.AuthService) *AuthHandlers {
	return &AuthHandlers{authn: authn, auth: svc}
}

// Routes registers auth endpoints. Logout requires a verified token.
func (h *AuthHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/login", h.login)
	r.Group(func(protected chi.Router) {
		if h.authn != nil {
			protected.Use(h.authn.RequireFirebaseAuth())
		}
		protected.Post("/logout", h.logout)
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandlers) login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.auth == nil {
		serviceUnavailable(ctx, w, "auth")
		return
	}
	var req loginRequest
	if err := decodeJSONBody(r, &req); err != nil {
		invalidRequest(ctx, w, err.Error())
		return
	}
	session, err := h.auth.SignIn(ctx, req.Email, req.Password)
	if err != nil {
		writeServiceError(ctx, w, err, "account")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, session)
}

func (h *AuthHandlers) logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.auth == nil {
		serviceUnavailable(ctx, w, "auth")
		return
	}
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity.UID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}
	if err := h.auth.SignOut(ctx, identity.UID); err != nil {
		writeServiceError(ctx, w, err, "account")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
