package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/api/googleapi"
	identitytoolkit "google.golang.org/api/identitytoolkit/v3"
	"google.golang.org/api/option"
)

// ErrInvalidCredentials is returned when the email/password pair is rejected.
var ErrInvalidCredentials = errors.New("auth: invalid email or password")

// Session is the result of a successful password sign-in.
type Session struct {
	UID          string    `json:"uid"`
	Email        string    `json:"email"`
	IDToken      string    `json:"idToken"`
	RefreshToken string    `json:"refreshToken"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// PasswordVerifier exchanges email and password for Firebase tokens.
type PasswordVerifier interface {
	VerifyPassword(ctx context.Context, email, password string) (Session, error)
}

// PasswordSignIn talks to the Identity Toolkit relying-party API with the project's web API key.
type PasswordSignIn struct {
	service *identitytoolkit.Service
	now     func() time.Time
}

// NewPasswordSignIn builds the identity toolkit client. Extra client options (endpoint, HTTP client)
// are appended after the API key.
func NewPasswordSignIn(ctx context.Context, apiKey string, opts ...option.ClientOption) (*PasswordSignIn, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("auth: firebase web api key is required for password sign-in")
	}
	clientOpts := append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)
	service, err := identitytoolkit.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("auth: initialise identity toolkit: %w", err)
	}
	return &PasswordSignIn{service: service, now: time.Now}, nil
}

// VerifyPassword signs the user in and returns fresh tokens.
func (p *PasswordSignIn) VerifyPassword(ctx context.Context, email, password string) (Session, error) {
	if p == nil || p.service == nil {
		return Session{}, errors.New("auth: password sign-in not configured")
	}
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return Session{}, ErrInvalidCredentials
	}

	resp, err := p.service.Relyingparty.VerifyPassword(&identitytoolkit.IdentitytoolkitRelyingpartyVerifyPasswordRequest{
		Email:             email,
		Password:          password,
		ReturnSecureToken: true,
	}).Context(ctx).Do()
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusBadRequest {
			return Session{}, ErrInvalidCredentials
		}
		return Session{}, fmt.Errorf("auth: verify password: %w", err)
	}

	return Session{
		UID:          resp.LocalId,
		Email:        resp.Email,
		IDToken:      resp.IdToken,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    p.now().Add(time.Duration(resp.ExpiresIn) * time.Second),
	}, nil
}
