package services

import (
	"context"
	"errors"
	"testing"

	"github.com/nitu-designer/lehangas/internal/platform/auth"
)

type stubPasswords struct {
	session auth.Session
	err     error
}

func (s stubPasswords) VerifyPassword(ctx context.Context, email, password string) (auth.Session, error) {
	return s.session, s.err
}

type stubRevoker struct {
	revoked []string
	err     error
}

func (s *stubRevoker) RevokeRefreshTokens(ctx context.Context, uid string) error {
	if s.err != nil {
		return s.err
	}
	s.revoked = append(s.revoked, uid)
	return nil
}

func TestAuthServiceNotifiesListeners(t *testing.T) {
	revoker := &stubRevoker{}
	svc, err := NewAuthService(AuthServiceDeps{
		Passwords: stubPasswords{session: auth.Session{UID: "u1", Email: "owner@example.com", IDToken: "tok"}},
		Revoker:   revoker,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var changes []auth.StateChange
	unsubscribe := svc.OnAuthChange(func(c auth.StateChange) { changes = append(changes, c) })

	session, err := svc.SignIn(context.Background(), " owner@example.com ", "secret")
	if err != nil || session.IDToken != "tok" {
		t.Fatalf("unexpected sign in result %+v %v", session, err)
	}
	if err := svc.SignOut(context.Background(), "u1"); err != nil {
		t.Fatalf("unexpected sign out error: %v", err)
	}
	if len(revoker.revoked) != 1 || revoker.revoked[0] != "u1" {
		t.Fatalf("expected refresh tokens revoked, got %v", revoker.revoked)
	}
	if len(changes) != 2 || !changes[0].SignedIn || changes[1].SignedIn || changes[0].UID != "u1" {
		t.Fatalf("unexpected changes %+v", changes)
	}

	unsubscribe()
	unsubscribe()
	if _, err := svc.SignIn(context.Background(), "owner@example.com", "secret"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(changes) != 2 {
		t.Fatalf("expected no delivery after unsubscribe")
	}
}

func TestAuthServiceSignInFailures(t *testing.T) {
	svc, err := NewAuthService(AuthServiceDeps{
		Passwords: stubPasswords{err: auth.ErrInvalidCredentials},
		Revoker:   &stubRevoker{},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.SignIn(context.Background(), "", "x"); !IsKind(err, ErrorKindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := svc.SignIn(context.Background(), "a@b.c", "wrong"); !errors.Is(err, auth.ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
}

func TestAuthServiceSignOutPropagatesRevokeError(t *testing.T) {
	svc, err := NewAuthService(AuthServiceDeps{
		Passwords: stubPasswords{},
		Revoker:   &stubRevoker{err: errors.New("unavailable")},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var changes int
	svc.OnAuthChange(func(auth.StateChange) { changes++ })
	if err := svc.SignOut(context.Background(), "u1"); err == nil {
		t.Fatalf("expected error")
	}
	if changes != 0 {
		t.Fatalf("expected no notification on failed sign out")
	}
}
