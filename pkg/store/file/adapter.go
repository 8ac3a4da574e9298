// Package file stores session data as a JSON document on local disk, the
// process-restart equivalent of browser local storage.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/porthorian/simpleauth/pkg/store"
)

const fileMode = 0o600

var ErrEmptyPath = errors.New("file store: path is required")

type Adapter struct {
	mu   sync.Mutex
	path string
}

var _ store.Store = (*Adapter)(nil)

func NewAdapter(path string) (*Adapter, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}
	return &Adapter{path: filepath.Clean(path)}, nil
}

func (a *Adapter) Path() string {
	return a.path
}

func (a *Adapter) Persist(ctx context.Context, data map[string]any) error {
	encoded, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("file store: encode data: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(a.path), 0o700); err != nil {
		return fmt.Errorf("file store: create directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(a.path), "."+filepath.Base(a.path)+".*")
	if err != nil {
		return fmt.Errorf("file store: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(encoded); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("file store: write temp file: %w", err)
	}
	if err := tmp.Chmod(fileMode); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("file store: chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("file store: close temp file: %w", err)
	}

	if err := os.Rename(tmpName, a.path); err != nil {
		return fmt.Errorf("file store: replace %s: %w", a.path, err)
	}
	return nil
}

func (a *Adapter) Restore(ctx context.Context) (map[string]any, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	raw, err := os.ReadFile(a.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("file store: read %s: %w", a.path, err)
	}
	if len(raw) == 0 {
		return map[string]any{}, nil
	}

	data := map[string]any{}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("file store: decode %s: %w", a.path, err)
	}
	return data, nil
}

func (a *Adapter) Clear(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := os.Remove(a.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("file store: remove %s: %w", a.path, err)
	}
	return nil
}
