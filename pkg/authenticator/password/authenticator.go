// Package password implements a local username and password strategy backed
// by a fixed table of PBKDF2 hashes.
package password

import (
	"context"
	"errors"
	"time"

	"github.com/porthorian/simpleauth"
	oerrors "github.com/porthorian/simpleauth/pkg/errors"
)

const (
	CredentialIdentification = "identification"
	CredentialPassword       = "password"

	ContentIdentification  = "identification"
	ContentAuthenticatedAt = "authenticated_at"
)

var (
	ErrNoUsers           = errors.New("password authenticator: at least one user is required")
	ErrMissingCredential = oerrors.New(oerrors.CodeInvalidCredentials, "password authenticator: identification and password are required")
	ErrMismatch          = oerrors.New(oerrors.CodeInvalidCredentials, "password authenticator: identification or password is incorrect")
	ErrUnknownUser       = oerrors.New(oerrors.CodeRestoreFailed, "password authenticator: persisted identification is no longer known")
)

type Config struct {
	// Users maps an identification to its encoded hash.
	Users  map[string]string
	Hasher Hasher
}

type Authenticator struct {
	simpleauth.Updates

	users  map[string]string
	hasher Hasher
	now    func() time.Time
}

var _ simpleauth.Authenticator = (*Authenticator)(nil)

func New(config Config) (*Authenticator, error) {
	if len(config.Users) == 0 {
		return nil, ErrNoUsers
	}
	hasher := config.Hasher
	if hasher == nil {
		hasher = NewPBKDF2Hasher(DefaultPBKDF2Options())
	}

	users := make(map[string]string, len(config.Users))
	for identification, hash := range config.Users {
		users[identification] = hash
	}
	return &Authenticator{users: users, hasher: hasher, now: time.Now}, nil
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
	identification := credentials[CredentialIdentification]
	secret := credentials[CredentialPassword]
	if identification == "" || secret == "" {
		return nil, ErrMissingCredential
	}

	hash, ok := a.users[identification]
	if !ok {
		return nil, ErrMismatch
	}
	matched, err := a.hasher.Verify(secret, hash)
	if err != nil {
		return nil, oerrors.Wrap(oerrors.CodeUnknown, "password authenticator: failed to verify password", err)
	}
	if !matched {
		return nil, ErrMismatch
	}

	return simpleauth.Content{
		ContentIdentification:  identification,
		ContentAuthenticatedAt: a.now().UTC().Format(time.RFC3339),
	}, nil
}

// Restore keeps the session only while its identification is still listed.
func (a *Authenticator) Restore(ctx context.Context, data simpleauth.Content) (simpleauth.Content, error) {
	identification, _ := data[ContentIdentification].(string)
	if identification == "" {
		return nil, ErrUnknownUser
	}
	if _, ok := a.users[identification]; !ok {
		return nil, ErrUnknownUser
	}
	return data.Clone(), nil
}

func (a *Authenticator) Invalidate(ctx context.Context, content simpleauth.Content) error {
	return nil
}
