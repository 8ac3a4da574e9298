package simpleauth

import (
	"errors"
	"reflect"
	"sync"
)

// Factory builds a fresh, fully configured authenticator for restore.
type Factory func() Authenticator

type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

var (
	ErrNilFactory    = errors.New("simpleauth: factory is nil")
	ErrEmptyName     = errors.New("simpleauth: factory name is empty")
	ErrDuplicateName = errors.New("simpleauth: factory already registered")
)

// NewRegistry registers each factory under the name of the authenticator it builds.
func NewRegistry(factories ...Factory) (*Registry, error) {
	r := &Registry{
		factories: map[string]Factory{},
	}

	for _, factory := range factories {
		if err := r.Register(factory); err != nil {
			return nil, err
		}
	}

	return r, nil
}

// Register builds one instance to learn its name, then stores the factory under it.
func (r *Registry) Register(factory Factory) error {
	if factory == nil {
		return ErrNilFactory
	}

	prototype := factory()
	if prototype == nil {
		return ErrNilFactory
	}
	return r.RegisterNamed(NameOf(prototype), factory)
}

func (r *Registry) RegisterNamed(name string, factory Factory) error {
	if factory == nil {
		return ErrNilFactory
	}
	if name == "" {
		return ErrEmptyName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.factories == nil {
		r.factories = map[string]Factory{}
	}
	if _, exists := r.factories[name]; exists {
		return ErrDuplicateName
	}

	r.factories[name] = factory
	return nil
}

func (r *Registry) Factory(name string) (Factory, bool) {
	if r == nil {
		return nil, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	factory, ok := r.factories[name]
	return factory, ok
}

func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	return names
}

// NameOf returns the name an authenticator is persisted under: its
// FactoryName when it implements FactoryNamer, otherwise the fully qualified
// name of its type with pointers stripped, e.g.
// "github.com/porthorian/simpleauth/pkg/authenticator/token.Authenticator".
func NameOf(authenticator Authenticator) string {
	if authenticator == nil {
		return ""
	}
	if namer, ok := authenticator.(FactoryNamer); ok {
		if name := namer.FactoryName(); name != "" {
			return name
		}
	}

	t := reflect.TypeOf(authenticator)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.PkgPath() == "" {
		return t.String()
	}
	return t.PkgPath() + "." + t.Name()
}
