package services

import (
	"context"
	"errors"
	"strings"

	"github.com/nitu-designer/lehangas/internal/platform/auth"
)

// TokenRevoker invalidates a user's refresh tokens.
type TokenRevoker interface {
	RevokeRefreshTokens(ctx context.Context, uid string) error
}

// AuthServiceDeps bundles collaborators for admin sign-in.
type AuthServiceDeps struct {
	Passwords auth.PasswordVerifier
	Revoker   TokenRevoker
	Notifier  *auth.StateNotifier
	Logger    func(ctx context.Context, event string, fields map[string]any)
}

type authService struct {
	passwords auth.PasswordVerifier
	revoker   TokenRevoker
	notifier  *auth.StateNotifier
	logger    func(ctx context.Context, event string, fields map[string]any)
}

// NewAuthService wires password sign-in and token revocation. A nil notifier gets a private one.
func NewAuthService(deps AuthServiceDeps) (AuthService, error) {
	if deps.Passwords == nil {
		return nil, errors.New("auth service: password verifier is required")
	}
	if deps.Revoker == nil {
		return nil, errors.New("auth service: token revoker is required")
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = auth.NewStateNotifier()
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &authService{passwords: deps.Passwords, revoker: deps.Revoker, notifier: notifier, logger: logger}, nil
}

func (s *authService) SignIn(ctx context.Context, email, password string) (auth.Session, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return auth.Session{}, validationError("auth.signIn", "email and password are required")
	}
	session, err := s.passwords.VerifyPassword(ctx, email, password)
	if err != nil {
		if !errors.Is(err, auth.ErrInvalidCredentials) {
			s.logger(ctx, "auth.sign_in_failed", map[string]any{"error": err})
		}
		return auth.Session{}, err
	}
	s.logger(ctx, "auth.signed_in", map[string]any{"uid": session.UID})
	s.notifier.Publish(auth.StateChange{UID: session.UID, Email: session.Email, SignedIn: true})
	return session, nil
}

func (s *authService) SignOut(ctx context.Context, uid string) error {
	uid = strings.TrimSpace(uid)
	if uid == "" {
		return validationError("auth.signOut", "uid is required")
	}
	if err := s.revoker.RevokeRefreshTokens(ctx, uid); err != nil {
		return err
	}
	s.logger(ctx, "auth.signed_out", map[string]any{"uid": uid})
	s.notifier.Publish(auth.StateChange{UID: uid, SignedIn: false})
	return nil
}

func (s *authService) OnAuthChange(fn func(auth.StateChange)) func() {
	return s.notifier.Subscribe(fn)
}
