package simpleauth

import (
	"context"

	"github.com/porthorian/simpleauth/pkg/event"
)

// AuthenticatorFactoryKey is the store key naming the factory that rebuilds
// the bound authenticator on restore. It never appears in Content.
const AuthenticatorFactoryKey = "authenticatorFactoryName"

type Content map[string]any

type Credentials map[string]string

// Authenticator verifies credentials and produces the session content. Any
// type satisfying it can be bound to a Session.
type Authenticator interface {
	// Restore revalidates previously persisted content after a restart.
	Restore(ctx context.Context, data Content) (Content, error)
	// Authenticate exchanges credentials for session content.
	Authenticate(ctx context.Context, credentials Credentials) (Content, error)
	// Invalidate ends the session. An error vetoes the invalidation.
	Invalidate(ctx context.Context, content Content) error
	// SubscribeUpdates registers a handler for partial content updates the
	// authenticator may push at any time while it is bound. Updates emitted
	// before the session has finished binding, including from inside
	// SubscribeUpdates itself, are ignored.
	SubscribeUpdates(handler func(Content)) event.Subscription
}

// FactoryNamer lets an authenticator choose the name it is persisted under
// instead of its fully qualified Go type name.
type FactoryNamer interface {
	FactoryName() string
}

// Updates provides the SubscribeUpdates half of Authenticator. Embed it and
// call Emit to push content changes to the bound session.
type Updates struct {
	emitter event.Emitter[Content]
}

func (u *Updates) SubscribeUpdates(handler func(Content)) event.Subscription {
	return u.emitter.Subscribe(handler)
}

func (u *Updates) Emit(update Content) {
	u.emitter.Emit(update.Clone())
}

// Subscribers reports how many sessions currently listen for updates.
func (u *Updates) Subscribers() int {
	return u.emitter.Len()
}

func (c Content) Clone() Content {
	cloned := make(Content, len(c))
	for key, value := range c {
		cloned[key] = value
	}
	return cloned
}

func (c Content) merge(update Content) {
	for key, value := range update {
		c[key] = value
	}
}
