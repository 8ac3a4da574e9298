package simpleauth

import (
	"context"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	oerrors "github.com/porthorian/simpleauth/pkg/errors"
	"github.com/porthorian/simpleauth/pkg/event"
	"github.com/porthorian/simpleauth/pkg/metrics"
	"github.com/porthorian/simpleauth/pkg/store"
)

type Config struct {
	// Store persists the session. When nil it is built from Runtime.
	Store store.Store
	// Registry resolves persisted factory names during restore.
	Registry *Registry
	Logger   logr.Logger
	Metrics  metrics.Recorder
	Runtime  RuntimeConfig
	// RestoreTimeout bounds the initial restore, including the store read and
	// the authenticator's Restore. Defaults to DefaultRestoreTimeout.
	RestoreTimeout time.Duration
}

const DefaultRestoreTimeout = 30 * time.Second

// Session tracks whether the application is authenticated and with what
// content. It is bound to at most one Authenticator at a time.
type Session struct {
	id       string
	store    store.Store
	registry *Registry
	logger   logr.Logger
	metrics  metrics.Recorder
	events   event.Emitter[Event]

	closeResource  func() error
	restored       chan struct{}
	restoreTimeout time.Duration

	mu      sync.Mutex
	binding *binding
	content Content
	pending bool
}

// binding ties a session to one authenticator and its update subscription.
type binding struct {
	authenticator Authenticator
	name          string
	subscription  event.Subscription
}

// New builds a Session and starts restoring it from the store. Restore runs
// once in the background, bounded by RestoreTimeout; Ready and Wait report
// when it has settled. Authenticate, Invalidate and Close wait for it on
// their own.
func New(ctx context.Context, config Config) (*Session, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	closeResource, resolved, err := config.initialize(ctx)
	if err != nil {
		return nil, err
	}

	s := &Session{
		id:             uuid.NewString(),
		store:          resolved.Store,
		registry:       resolved.Registry,
		metrics:        resolved.Metrics,
		closeResource:  closeResource,
		restored:       make(chan struct{}),
		restoreTimeout: resolved.RestoreTimeout,
		content:        Content{},
	}
	s.logger = resolved.Logger.WithValues("session_id", s.id)

	go s.restore(context.WithoutCancel(ctx))
	return s, nil
}

func (s *Session) ID() string {
	return s.id
}

// Ready is closed once the initial restore has settled.
func (s *Session) Ready() <-chan struct{} {
	return s.restored
}

func (s *Session) Wait(ctx context.Context) error {
	select {
	case <-s.restored:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) IsAuthenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.binding != nil
}

// Authenticator returns the bound authenticator, or nil when unauthenticated.
func (s *Session) Authenticator() Authenticator {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.binding == nil {
		return nil
	}
	return s.binding.authenticator
}

func (s *Session) AuthenticatorName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.binding == nil {
		return ""
	}
	return s.binding.name
}

// Content returns a copy of the current content. It is empty when unauthenticated.
func (s *Session) Content() Content {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.content.Clone()
}

func (s *Session) Get(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.content[key]
	return value, ok
}

// Subscribe registers a handler for session lifecycle events.
func (s *Session) Subscribe(handler func(Event)) event.Subscription {
	return s.events.Subscribe(handler)
}

// Authenticate binds authenticator when it accepts credentials. On failure the
// session is left exactly as it was and the authenticator's error is returned
// unchanged.
func (s *Session) Authenticate(ctx context.Context, authenticator Authenticator, credentials Credentials) error {
	if authenticator == nil {
		return oerrors.ErrNilAuthenticator
	}
	if err := s.Wait(ctx); err != nil {
		return err
	}
	if err := s.begin(); err != nil {
		s.metrics.ObserveOperation(metrics.OperationAuthenticate, metrics.OutcomeRejected)
		return err
	}

	content, err := authenticator.Authenticate(ctx, credentials)
	if err != nil {
		s.finish()
		s.logger.Info("authentication failed", "error", err.Error())
		s.metrics.ObserveOperation(metrics.OperationAuthenticate, metrics.OutcomeFailed)
		s.events.Emit(Event{Type: EventAuthenticationFailed, Err: err})
		return err
	}

	name := NameOf(authenticator)
	if _, ok := s.registry.Factory(name); !ok {
		s.logger.Info("authenticator factory is not registered, session will not survive a restart", "authenticator", name)
	}

	next := s.subscribe(authenticator, name)

	s.mu.Lock()
	s.install(next, content)
	s.pending = false
	snapshot := s.content.Clone()
	persistErr := s.persist(ctx)
	s.mu.Unlock()

	s.logger.Info("session authenticated", "authenticator", name)
	s.metrics.ObserveOperation(metrics.OperationAuthenticate, metrics.OutcomeSucceeded)
	s.metrics.SetAuthenticated(true)
	s.events.Emit(Event{Type: EventAuthenticationSucceeded, Content: snapshot})
	return persistErr
}

// Invalidate asks the bound authenticator to end the session. A nil return
// from an unbound session means there was nothing to invalidate. When the
// authenticator refuses, nothing about the session changes.
func (s *Session) Invalidate(ctx context.Context) error {
	if err := s.Wait(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	if s.pending {
		s.mu.Unlock()
		s.metrics.ObserveOperation(metrics.OperationInvalidate, metrics.OutcomeRejected)
		return oerrors.ErrOperationInProgress
	}
	if s.binding == nil {
		s.mu.Unlock()
		s.metrics.ObserveOperation(metrics.OperationInvalidate, metrics.OutcomeSkipped)
		return nil
	}
	s.pending = true
	current := s.binding
	content := s.content.Clone()
	s.mu.Unlock()

	if err := current.authenticator.Invalidate(ctx, content); err != nil {
		s.finish()
		s.logger.Info("invalidation vetoed by authenticator", "authenticator", current.name, "error", err.Error())
		s.metrics.ObserveOperation(metrics.OperationInvalidate, metrics.OutcomeFailed)
		s.events.Emit(Event{Type: EventInvalidationFailed, Err: err})
		return err
	}

	s.mu.Lock()
	if s.binding == current {
		s.unbind()
	}
	s.pending = false
	clearErr := s.clear(ctx)
	s.mu.Unlock()

	s.logger.Info("session invalidated", "authenticator", current.name)
	s.metrics.ObserveOperation(metrics.OperationInvalidate, metrics.OutcomeSucceeded)
	s.metrics.SetAuthenticated(false)
	s.events.Emit(Event{Type: EventInvalidationSucceeded})
	return clearErr
}

// Close drops the update subscription and releases stores built from
// Runtime. Persisted data is left in place so a later process can restore it.
func (s *Session) Close() error {
	<-s.restored

	s.mu.Lock()
	if s.binding != nil {
		s.binding.subscription.Unsubscribe()
	}
	closeResource := s.closeResource
	s.closeResource = nil
	s.mu.Unlock()

	if closeResource == nil {
		return nil
	}
	if err := closeResource(); err != nil {
		return oerrors.Wrap(oerrors.CodeUnknown, "failed to close session resources", err)
	}
	return nil
}

func (s *Session) restore(base context.Context) {
	defer close(s.restored)

	ctx, cancel := context.WithTimeout(base, s.restoreTimeout)
	defer cancel()

	data, err := s.store.Restore(ctx)
	if err != nil {
		s.failRestore(base, "", oerrors.Wrap(oerrors.CodeStorageUnavailable, "failed to read session store", err))
		return
	}

	name, _ := data[AuthenticatorFactoryKey].(string)
	if name == "" {
		s.logger.V(1).Info("no persisted session to restore")
		s.metrics.ObserveOperation(metrics.OperationRestore, metrics.OutcomeSkipped)
		return
	}

	factory, ok := s.registry.Factory(name)
	if !ok {
		s.failRestore(base, name, oerrors.ErrUnknownAuthenticator)
		return
	}
	authenticator := factory()
	if authenticator == nil {
		s.failRestore(base, name, oerrors.ErrNilAuthenticator)
		return
	}

	stored := Content(data).Clone()
	delete(stored, AuthenticatorFactoryKey)

	content, err := authenticator.Restore(ctx, stored)
	if err != nil {
		s.failRestore(base, name, oerrors.Wrap(oerrors.CodeRestoreFailed, "authenticator rejected persisted session", err))
		return
	}

	next := s.subscribe(authenticator, name)

	s.mu.Lock()
	s.install(next, content)
	snapshot := s.content.Clone()
	if err := s.persist(ctx); err != nil {
		s.logger.Error(err, "failed to persist restored session")
	}
	s.mu.Unlock()

	s.logger.Info("session restored", "authenticator", name)
	s.metrics.ObserveOperation(metrics.OperationRestore, metrics.OutcomeSucceeded)
	s.metrics.SetAuthenticated(true)
	s.events.Emit(Event{Type: EventRestored, Content: snapshot})
}

// failRestore clears the store under its own timeout; the restore deadline
// may already have passed.
func (s *Session) failRestore(base context.Context, name string, err error) {
	s.logger.Info("session restore failed, clearing store", "authenticator", name, "error", err.Error())

	ctx, cancel := context.WithTimeout(base, s.restoreTimeout)
	defer cancel()

	s.mu.Lock()
	if clearErr := s.clear(ctx); clearErr != nil {
		s.logger.Error(clearErr, "failed to clear store after restore failure")
	}
	s.mu.Unlock()

	s.metrics.ObserveOperation(metrics.OperationRestore, metrics.OutcomeFailed)
	s.events.Emit(Event{Type: EventRestoreFailed, Err: err})
}

func (s *Session) begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending {
		return oerrors.ErrOperationInProgress
	}
	s.pending = true
	return nil
}

func (s *Session) finish() {
	s.mu.Lock()
	s.pending = false
	s.mu.Unlock()
}

// subscribe must be called without mu held, so an authenticator may emit
// from inside SubscribeUpdates. Updates reaching the binding before install
// makes it current are dropped by handleUpdate.
func (s *Session) subscribe(authenticator Authenticator, name string) *binding {
	next := &binding{
		authenticator: authenticator,
		name:          name,
	}
	next.subscription = authenticator.SubscribeUpdates(func(update Content) {
		s.handleUpdate(next, update)
	})
	return next
}

// install must be called with mu held. The previous subscription is torn down
// in the same critical section that replaces the binding, so no stale update
// can land afterwards.
func (s *Session) install(next *binding, content Content) {
	if s.binding != nil {
		s.binding.subscription.Unsubscribe()
	}
	s.binding = next
	s.content = content.Clone()
}

// unbind must be called with mu held.
func (s *Session) unbind() {
	s.binding.subscription.Unsubscribe()
	s.binding = nil
	s.content = Content{}
}

func (s *Session) handleUpdate(from *binding, update Content) {
	s.mu.Lock()
	if s.binding != from {
		s.mu.Unlock()
		s.metrics.ObserveOperation(metrics.OperationUpdate, metrics.OutcomeSkipped)
		return
	}

	s.content.merge(update)
	snapshot := s.content.Clone()
	err := s.persist(context.Background())
	s.mu.Unlock()

	if err != nil {
		s.logger.Error(err, "failed to persist session update")
	}
	s.logger.V(1).Info("session content updated", "authenticator", from.name, "keys", len(update))
	s.metrics.ObserveOperation(metrics.OperationUpdate, metrics.OutcomeSucceeded)
	s.events.Emit(Event{Type: EventUpdated, Content: snapshot})
}

// persist must be called with mu held and a binding present.
func (s *Session) persist(ctx context.Context) error {
	data := make(map[string]any, len(s.content)+1)
	for key, value := range s.content {
		data[key] = value
	}
	data[AuthenticatorFactoryKey] = s.binding.name

	if err := s.store.Persist(ctx, data); err != nil {
		return oerrors.Wrap(oerrors.CodeStorageUnavailable, "failed to persist session", err)
	}
	return nil
}

// clear must be called with mu held.
func (s *Session) clear(ctx context.Context) error {
	if err := s.store.Clear(ctx); err != nil {
		return oerrors.Wrap(oerrors.CodeStorageUnavailable, "failed to clear session store", err)
	}
	return nil
}
