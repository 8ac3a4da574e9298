// Package event provides a small typed observer used for authenticator update
// notifications and session lifecycle events.
package event

import (
	"sync"
	"sync/atomic"
)

type Handler[T any] func(T)

// Subscription is returned by Subscribe. Unsubscribe is idempotent; once it
// returns, the handler is never invoked by a later Emit.
type Subscription interface {
	Unsubscribe()
}

// Emitter fans a value out to every registered handler. The zero value is
// ready to use. Handlers run synchronously on the emitting goroutine.
type Emitter[T any] struct {
	mu       sync.RWMutex
	nextID   uint64
	handlers map[uint64]*subscription[T]
}

type subscription[T any] struct {
	emitter *Emitter[T]
	id      uint64
	handler Handler[T]
	closed  atomic.Bool
}

func (e *Emitter[T]) Subscribe(handler Handler[T]) Subscription {
	if handler == nil {
		return noopSubscription{}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.handlers == nil {
		e.handlers = map[uint64]*subscription[T]{}
	}
	e.nextID++
	sub := &subscription[T]{
		emitter: e,
		id:      e.nextID,
		handler: handler,
	}
	e.handlers[sub.id] = sub
	return sub
}

func (e *Emitter[T]) Emit(value T) {
	e.mu.RLock()
	subs := make([]*subscription[T], 0, len(e.handlers))
	for _, sub := range e.handlers {
		subs = append(subs, sub)
	}
	e.mu.RUnlock()

	for _, sub := range subs {
		if sub.closed.Load() {
			continue
		}
		sub.handler(value)
	}
}

// Len reports the number of live subscriptions.
func (e *Emitter[T]) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.handlers)
}

func (s *subscription[T]) Unsubscribe() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}

	s.emitter.mu.Lock()
	delete(s.emitter.handlers, s.id)
	s.emitter.mu.Unlock()
}

type noopSubscription struct{}

func (noopSubscription) Unsubscribe() {}
