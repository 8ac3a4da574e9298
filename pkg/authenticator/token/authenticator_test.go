package token

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/porthorian/simpleauth"
	oerrors "github.com/porthorian/simpleauth/pkg/errors"
	"github.com/porthorian/simpleauth/pkg/store/memory"
)

var testKey = []byte("test-signing-key")

func signToken(t *testing.T, key []byte, claims jwt.MapClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func newTestAuthenticator(t *testing.T, config Config) *Authenticator {
	t.Helper()
	if config.Key == nil {
		config.Key = testKey
	}
	a, err := New(config)
	if err != nil {
		t.Fatalf("new authenticator: %v", err)
	}
	return a
}

func TestAuthenticateValidToken(t *testing.T) {
	a := newTestAuthenticator(t, Config{Issuer: "simpleauth-test"})
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	raw := signToken(t, testKey, jwt.MapClaims{
		"sub":  "user-1",
		"iss":  "simpleauth-test",
		"exp":  exp.Unix(),
		"role": "admin",
	})

	content, err := a.Authenticate(context.Background(), simpleauth.Credentials{CredentialToken: raw})
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if content[ContentSubject] != "user-1" {
		t.Fatalf("unexpected subject: %v", content[ContentSubject])
	}
	if content[ContentExpiresAt] != exp.Unix() {
		t.Fatalf("unexpected expiry: %v", content[ContentExpiresAt])
	}
	if content[ContentToken] != raw {
		t.Fatal("expected the raw token to be kept for restore")
	}
	claims, _ := content[ContentClaims].(map[string]any)
	if claims["role"] != "admin" {
		t.Fatalf("expected custom claims, got %v", claims)
	}
	if _, ok := claims["sub"]; ok {
		t.Fatal("expected registered claims to be excluded from custom claims")
	}
}

func TestAuthenticateRejectsBadTokens(t *testing.T) {
	a := newTestAuthenticator(t, Config{Issuer: "simpleauth-test"})
	future := time.Now().Add(time.Hour).Unix()

	tests := []struct {
		name  string
		token string
		code  oerrors.Code
	}{
		{name: "missing", token: "", code: oerrors.CodeInvalidCredentials},
		{name: "garbage", token: "not-a-jwt", code: oerrors.CodeInvalidToken},
		{name: "wrong key", token: signToken(t, []byte("other"), jwt.MapClaims{"sub": "u", "iss": "simpleauth-test", "exp": future}), code: oerrors.CodeInvalidToken},
		{name: "expired", token: signToken(t, testKey, jwt.MapClaims{"sub": "u", "iss": "simpleauth-test", "exp": time.Now().Add(-time.Hour).Unix()}), code: oerrors.CodeInvalidToken},
		{name: "no expiry", token: signToken(t, testKey, jwt.MapClaims{"sub": "u", "iss": "simpleauth-test"}), code: oerrors.CodeInvalidToken},
		{name: "wrong issuer", token: signToken(t, testKey, jwt.MapClaims{"sub": "u", "iss": "elsewhere", "exp": future}), code: oerrors.CodeInvalidToken},
		{name: "no subject", token: signToken(t, testKey, jwt.MapClaims{"iss": "simpleauth-test", "exp": future}), code: oerrors.CodeInvalidToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := a.Authenticate(context.Background(), simpleauth.Credentials{CredentialToken: tt.token})
			if !oerrors.IsCode(err, tt.code) {
				t.Fatalf("expected code %s, got %v", tt.code, err)
			}
		})
	}
}

func TestRestoreReverifiesPersistedToken(t *testing.T) {
	now := time.Now()
	a := newTestAuthenticator(t, Config{})
	a.now = func() time.Time { return now }

	raw := signToken(t, testKey, jwt.MapClaims{"sub": "user-1", "exp": now.Add(time.Minute).Unix()})
	content, err := a.Restore(context.Background(), simpleauth.Content{ContentToken: raw})
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if content[ContentSubject] != "user-1" {
		t.Fatalf("unexpected content: %v", content)
	}

	a.now = func() time.Time { return now.Add(2 * time.Minute) }
	if _, err := a.Restore(context.Background(), simpleauth.Content{ContentToken: raw}); !oerrors.IsCode(err, oerrors.CodeInvalidToken) {
		t.Fatalf("expected expired token to fail restore, got %v", err)
	}
	if _, err := a.Restore(context.Background(), simpleauth.Content{}); !errors.Is(err, ErrMissingToken) {
		t.Fatalf("expected ErrMissingToken, got %v", err)
	}
}

func TestReplacePushesUpdateToSession(t *testing.T) {
	ctx := context.Background()
	config := Config{Key: testKey}
	a := newTestAuthenticator(t, config)
	registry, err := simpleauth.NewRegistry(Factory(config))
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}

	s, err := simpleauth.New(ctx, simpleauth.Config{Store: memory.NewAdapter(), Registry: registry})
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	defer s.Close()

	exp := time.Now().Add(time.Hour).Unix()
	first := signToken(t, testKey, jwt.MapClaims{"sub": "user-1", "exp": exp})
	if err := s.Authenticate(ctx, a, simpleauth.Credentials{CredentialToken: first}); err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if s.AuthenticatorName() != "github.com/porthorian/simpleauth/pkg/authenticator/token.Authenticator" {
		t.Fatalf("unexpected authenticator name %q", s.AuthenticatorName())
	}

	second := signToken(t, testKey, jwt.MapClaims{"sub": "user-1", "exp": exp + 60, "scope": "write"})
	if err := a.Replace(ctx, second); err != nil {
		t.Fatalf("replace: %v", err)
	}
	if value, _ := s.Get(ContentToken); value != second {
		t.Fatal("expected the session to pick up the replaced token")
	}

	if err := a.Replace(ctx, "garbage"); err == nil {
		t.Fatal("expected invalid replacement to fail")
	}
	if value, _ := s.Get(ContentToken); value != second {
		t.Fatal("expected a failed replace to leave the session alone")
	}
}

func TestNewValidatesConfig(t *testing.T) {
	if _, err := New(Config{}); !errors.Is(err, ErrMissingKey) {
		t.Fatalf("expected ErrMissingKey, got %v", err)
	}
	if _, err := New(Config{Key: testKey, Leeway: time.Hour}); !errors.Is(err, ErrInvalidLeeway) {
		t.Fatalf("expected ErrInvalidLeeway, got %v", err)
	}
	if Factory(Config{})() != nil {
		t.Fatal("expected invalid factory config to yield nil")
	}
}
