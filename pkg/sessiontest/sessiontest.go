// Package sessiontest provides a scriptable Authenticator for exercising
// Session flows in tests.
package sessiontest

import (
	"context"
	"sync"

	"github.com/porthorian/simpleauth"
)

// Behavior scripts the outcome of one Authenticator method. A nil Err
// resolves with Content.
type Behavior struct {
	Content simpleauth.Content
	Err     error
	// Gate, when set, blocks the call until it is closed or ctx is done.
	Gate chan struct{}
}

// Authenticator records every call it receives and answers with the scripted
// behaviors. Update pushes partial content to whichever session is subscribed.
type Authenticator struct {
	simpleauth.Updates

	mu           sync.Mutex
	restore      Behavior
	authenticate Behavior
	invalidate   Behavior

	restoreCalls      []simpleauth.Content
	authenticateCalls []simpleauth.Credentials
	invalidateCalls   []simpleauth.Content
}

var _ simpleauth.Authenticator = (*Authenticator)(nil)

func New() *Authenticator {
	return &Authenticator{}
}

// Resolving returns an Authenticator whose every method succeeds with content.
func Resolving(content simpleauth.Content) *Authenticator {
	a := New()
	a.SetRestore(Behavior{Content: content})
	a.SetAuthenticate(Behavior{Content: content})
	return a
}

// Rejecting returns an Authenticator whose every method fails with err.
func Rejecting(err error) *Authenticator {
	a := New()
	a.SetRestore(Behavior{Err: err})
	a.SetAuthenticate(Behavior{Err: err})
	a.SetInvalidate(Behavior{Err: err})
	return a
}

func (a *Authenticator) SetRestore(b Behavior) {
	a.mu.Lock()
	a.restore = b
	a.mu.Unlock()
}

func (a *Authenticator) SetAuthenticate(b Behavior) {
	a.mu.Lock()
	a.authenticate = b
	a.mu.Unlock()
}

func (a *Authenticator) SetInvalidate(b Behavior) {
	a.mu.Lock()
	a.invalidate = b
	a.mu.Unlock()
}

func (a *Authenticator) Restore(ctx context.Context, data simpleauth.Content) (simpleauth.Content, error) {
	a.mu.Lock()
	a.restoreCalls = append(a.restoreCalls, data.Clone())
	b := a.restore
	a.mu.Unlock()
	return b.run(ctx)
}

func (a *Authenticator) Authenticate(ctx context.Context, credentials simpleauth.Credentials) (simpleauth.Content, error) {
	a.mu.Lock()
	a.authenticateCalls = append(a.authenticateCalls, credentials)
	b := a.authenticate
	a.mu.Unlock()
	return b.run(ctx)
}

func (a *Authenticator) Invalidate(ctx context.Context, content simpleauth.Content) error {
	a.mu.Lock()
	a.invalidateCalls = append(a.invalidateCalls, content.Clone())
	b := a.invalidate
	a.mu.Unlock()
	_, err := b.run(ctx)
	return err
}

// Update emits a session update as the real authenticator would.
func (a *Authenticator) Update(update simpleauth.Content) {
	a.Emit(update)
}

func (a *Authenticator) RestoreCalls() []simpleauth.Content {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]simpleauth.Content(nil), a.restoreCalls...)
}

func (a *Authenticator) AuthenticateCalls() []simpleauth.Credentials {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]simpleauth.Credentials(nil), a.authenticateCalls...)
}

func (a *Authenticator) InvalidateCalls() []simpleauth.Content {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]simpleauth.Content(nil), a.invalidateCalls...)
}

func (b Behavior) run(ctx context.Context) (simpleauth.Content, error) {
	if b.Gate != nil {
		select {
		case <-b.Gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if b.Err != nil {
		return nil, b.Err
	}
	return b.Content.Clone(), nil
}

// Other is a distinct authenticator type, for tests that rebind a session to
// a second strategy and check the persisted factory name changes with it.
type Other struct {
	Authenticator
}

var _ simpleauth.Authenticator = (*Other)(nil)

func NewOther() *Other {
	return &Other{}
}
