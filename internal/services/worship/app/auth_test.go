package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret"

func signToken(t *testing.T, method jwt.SigningMethod, key any, claims jwt.RegisteredClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func validClaims(subject string) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    "hymnal",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
}

func TestNewJWTAuthenticatorRequiresSecret(t *testing.T) {
	if _, err := NewJWTAuthenticator("  ", ""); err == nil {
		t.Fatal("expected error for empty secret")
	}
}

func TestJWTAuthenticatorAcceptsValidToken(t *testing.T) {
	auth, err := NewJWTAuthenticator(testSecret, "hymnal")
	if err != nil {
		t.Fatalf("new authenticator: %v", err)
	}
	token := signToken(t, jwt.SigningMethodHS256, []byte(testSecret), validClaims("user-1"))

	userID, err := auth.Authenticate(context.Background(), token)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if userID != "user-1" {
		t.Fatalf("expected user-1, got %q", userID)
	}
}

func TestJWTAuthenticatorRejectsBadTokens(t *testing.T) {
	auth, err := NewJWTAuthenticator(testSecret, "hymnal")
	if err != nil {
		t.Fatalf("new authenticator: %v", err)
	}

	expired := validClaims("user-1")
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
	otherIssuer := validClaims("user-1")
	otherIssuer.Issuer = "someone-else"

	tests := []struct {
		name  string
		token string
	}{
		{name: "wrong secret", token: signToken(t, jwt.SigningMethodHS256, []byte("other"), validClaims("user-1"))},
		{name: "wrong algorithm", token: signToken(t, jwt.SigningMethodHS512, []byte(testSecret), validClaims("user-1"))},
		{name: "expired", token: signToken(t, jwt.SigningMethodHS256, []byte(testSecret), expired)},
		{name: "issuer", token: signToken(t, jwt.SigningMethodHS256, []byte(testSecret), otherIssuer)},
		{name: "no subject", token: signToken(t, jwt.SigningMethodHS256, []byte(testSecret), validClaims(""))},
		{name: "garbage", token: "not-a-token"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := auth.Authenticate(context.Background(), tc.token); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestJWTAuthenticatorHonorsCanceledContext(t *testing.T) {
	auth, err := NewJWTAuthenticator(testSecret, "")
	if err != nil {
		t.Fatalf("new authenticator: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	token := signToken(t, jwt.SigningMethodHS256, []byte(testSecret), validClaims("user-1"))
	if _, err := auth.Authenticate(ctx, token); err == nil {
		t.Fatal("expected context error")
	}
}

func TestAccessTokenFromRequest(t *testing.T) {
	cookieReq := httptest.NewRequest(http.MethodGet, "/ws", nil)
	cookieReq.AddCookie(&http.Cookie{Name: tokenCookieName, Value: "cookie-token"})
	cookieReq.Header.Set("Authorization", "Bearer header-token")
	if got := accessTokenFromRequest(cookieReq); got != "cookie-token" {
		t.Fatalf("expected cookie token, got %q", got)
	}

	bearerReq := httptest.NewRequest(http.MethodGet, "/ws", nil)
	bearerReq.Header.Set("Authorization", "bearer header-token")
	if got := accessTokenFromRequest(bearerReq); got != "header-token" {
		t.Fatalf("expected header token, got %q", got)
	}

	basicReq := httptest.NewRequest(http.MethodGet, "/ws", nil)
	basicReq.Header.Set("Authorization", "Basic abc")
	if got := accessTokenFromRequest(basicReq); got != "" {
		t.Fatalf("expected no token, got %q", got)
	}

	if got := accessTokenFromRequest(nil); got != "" {
		t.Fatalf("expected no token for nil request, got %q", got)
	}
}
