// Package token implements a bearer-token strategy: the credentials carry a
// signed JWT, the session content carries the verified claims, and restore
// re-verifies the persisted token so expired sessions are dropped on start.
package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/porthorian/simpleauth"
	oerrors "github.com/porthorian/simpleauth/pkg/errors"
)

const (
	CredentialToken = "token"

	ContentToken     = "token"
	ContentSubject   = "subject"
	ContentExpiresAt = "expires_at"
	ContentClaims    = "claims"
)

var (
	ErrMissingKey    = errors.New("token authenticator: signing key is required")
	ErrInvalidLeeway = errors.New("token authenticator: leeway must be between 0 and 2m")
	ErrMissingToken  = oerrors.New(oerrors.CodeInvalidCredentials, "token authenticator: token is required")
)

type Config struct {
	// Key verifies HS256 signatures.
	Key      []byte
	Issuer   string
	Audience string
	Leeway   time.Duration
}

type Authenticator struct {
	simpleauth.Updates

	config Config
	now    func() time.Time
}

var _ simpleauth.Authenticator = (*Authenticator)(nil)

func New(config Config) (*Authenticator, error) {
	if len(config.Key) == 0 {
		return nil, ErrMissingKey
	}
	if config.Leeway < 0 || config.Leeway > 2*time.Minute {
		return nil, ErrInvalidLeeway
	}
	return &Authenticator{config: config, now: time.Now}, nil
}

// Factory returns a registry factory building authenticators with config.
// config must already be valid.
func Factory(config Config) simpleauth.Factory {
	return func() simpleauth.Authenticator {
		a, err := New(config)
		if err != nil {
			return nil
		}
		return a
	}
}

func (a *Authenticator) Authenticate(ctx context.Context, credentials simpleauth.Credentials) (simpleauth.Content, error) {
	raw := credentials[CredentialToken]
	if raw == "" {
		return nil, ErrMissingToken
	}
	return a.verify(raw)
}

func (a *Authenticator) Restore(ctx context.Context, data simpleauth.Content) (simpleauth.Content, error) {
	raw, _ := data[ContentToken].(string)
	if raw == "" {
		return nil, ErrMissingToken
	}
	return a.verify(raw)
}

// Invalidate always succeeds; a bearer token has no server side to notify.
func (a *Authenticator) Invalidate(ctx context.Context, content simpleauth.Content) error {
	return nil
}

// Replace verifies a newly issued token and pushes its content to the bound
// session, e.g. after the application obtained a fresh token out of band.
func (a *Authenticator) Replace(ctx context.Context, raw string) error {
	if raw == "" {
		return ErrMissingToken
	}
	content, err := a.verify(raw)
	if err != nil {
		return err
	}
	a.Emit(content)
	return nil
}

func (a *Authenticator) verify(raw string) (simpleauth.Content, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	}
	if a.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(a.config.Leeway))
	}
	if a.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(a.config.Issuer))
	}
	if a.config.Audience != "" {
		options = append(options, jwt.WithAudience(a.config.Audience))
	}

	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return a.config.Key, nil
	}, options...)
	if err != nil {
		return nil, oerrors.Wrap(oerrors.CodeInvalidToken, "token authenticator: invalid token", err)
	}
	if !parsed.Valid {
		return nil, oerrors.New(oerrors.CodeInvalidToken, "token authenticator: invalid token")
	}

	subject, err := claims.GetSubject()
	if err != nil || subject == "" {
		return nil, oerrors.New(oerrors.CodeInvalidToken, "token authenticator: token has no subject")
	}
	expiresAt, err := claims.GetExpirationTime()
	if err != nil || expiresAt == nil {
		return nil, oerrors.New(oerrors.CodeInvalidToken, fmt.Sprintf("token authenticator: token has no expiry: %v", err))
	}

	custom := map[string]any{}
	for key, value := range claims {
		switch key {
		case "sub", "exp", "iat", "nbf", "iss", "aud", "jti":
			continue
		}
		custom[key] = value
	}

	return simpleauth.Content{
		ContentToken:     raw,
		ContentSubject:   subject,
		ContentExpiresAt: expiresAt.Unix(),
		ContentClaims:    custom,
	}, nil
}
