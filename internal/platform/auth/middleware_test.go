package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	firebaseauth "firebase.google.com/go/v4/auth"
)

type stubTokenVerifier struct {
	token    *firebaseauth.Token
	err      error
	received string
}

func (s *stubTokenVerifier) VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error) {
	s.received = idToken
	if s.err != nil {
		return nil, s.err
	}
	return s.token, nil
}

func TestRequireFirebaseAuth_AllowsValidToken(t *testing.T) {
	verifier := &stubTokenVerifier{
		token: &firebaseauth.Token{
			UID:      "uid-123",
			Claims:   map[string]interface{}{"email": " owner@nitu.example "},
			Firebase: firebaseauth.FirebaseInfo{SignInProvider: "password"},
		},
	}
	authn := NewAuthenticator(verifier)

	handlerCalled := false
	handler := authn.RequireFirebaseAuth()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
		identity, ok := IdentityFromContext(r.Context())
		if !ok {
			t.Fatalf("expected identity in context")
		}
		if identity.UID != "uid-123" {
			t.Fatalf("unexpected uid: %s", identity.UID)
		}
		if identity.Email != "owner@nitu.example" {
			t.Fatalf("unexpected email %q", identity.Email)
		}
		if identity.SignInProvider != "password" {
			t.Fatalf("unexpected provider %q", identity.SignInProvider)
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "bearer token-value")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", rr.Code)
	}
	if !handlerCalled {
		t.Fatalf("expected handler to be called")
	}
	if verifier.received != "token-value" {
		t.Fatalf("expected verifier to receive token-value, got %s", verifier.received)
	}
}

func TestRequireFirebaseAuth_Rejections(t *testing.T) {
	cases := []struct {
		name     string
		header   string
		verifier TokenVerifier
		code     string
	}{
		{name: "missing header", header: "", verifier: &stubTokenVerifier{}, code: "unauthenticated"},
		{name: "wrong scheme", header: "Basic abc", verifier: &stubTokenVerifier{}, code: "unauthenticated"},
		{name: "no verifier", header: "Bearer abc", verifier: nil, code: "unauthenticated"},
		{name: "expired", header: "Bearer abc", verifier: &stubTokenVerifier{err: ErrTokenExpired}, code: "token_expired"},
		{name: "invalid", header: "Bearer abc", verifier: &stubTokenVerifier{err: ErrTokenInvalid}, code: "invalid_token"},
		{name: "other", header: "Bearer abc", verifier: &stubTokenVerifier{err: errors.New("boom")}, code: "invalid_token"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := NewAuthenticator(tc.verifier).RequireFirebaseAuth()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
				t.Fatalf("handler should not execute")
			}))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", rr.Code)
			}
			var body map[string]interface{}
			if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
				t.Fatalf("expected JSON body: %v", err)
			}
			if body["error"] != tc.code {
				t.Fatalf("expected %s, got %v", tc.code, body["error"])
			}
		})
	}
}

func TestBearerToken(t *testing.T) {
	if token, ok := BearerToken("Bearer  abc "); !ok || token != "abc" {
		t.Fatalf("unexpected token %q %v", token, ok)
	}
	if _, ok := BearerToken("Bearer "); ok {
		t.Fatalf("expected empty token to be rejected")
	}
}

func TestStateNotifier(t *testing.T) {
	notifier := NewStateNotifier()
	var got []string

	unsubscribeFirst := notifier.Subscribe(func(c StateChange) { got = append(got, "first:"+c.UID) })
	notifier.Subscribe(func(c StateChange) { got = append(got, "second:"+c.UID) })

	notifier.Publish(StateChange{UID: "a", SignedIn: true})
	unsubscribeFirst()
	unsubscribeFirst()
	notifier.Publish(StateChange{UID: "b"})

	want := []string{"first:a", "second:a", "second:b"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}
