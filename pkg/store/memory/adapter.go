package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/porthorian/simpleauth/pkg/store"
)

// Adapter keeps session data in process memory. Nothing survives a restart,
// which makes it the natural backend for tests and short-lived tools.
type Adapter struct {
	mu   sync.RWMutex
	data map[string]any
}

var _ store.Store = (*Adapter)(nil)

func NewAdapter() *Adapter {
	return &Adapter{
		data: map[string]any{},
	}
}

func (a *Adapter) Persist(ctx context.Context, data map[string]any) error {
	normalized, err := store.Normalize(data)
	if err != nil {
		return fmt.Errorf("memory store: encode data: %w", err)
	}

	a.mu.Lock()
	a.data = normalized
	a.mu.Unlock()
	return nil
}

func (a *Adapter) Restore(ctx context.Context) (map[string]any, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return store.Clone(a.data), nil
}

func (a *Adapter) Clear(ctx context.Context) error {
	a.mu.Lock()
	a.data = map[string]any{}
	a.mu.Unlock()
	return nil
}
