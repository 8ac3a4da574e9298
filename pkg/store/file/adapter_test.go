package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestPersistSurvivesNewAdapter(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "session.json")

	first, err := NewAdapter(path)
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	if err := first.Persist(ctx, map[string]any{"authenticatorFactoryName": "example.Authenticator", "key": "value"}); err != nil {
		t.Fatalf("persist: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat persisted file: %v", err)
	}
	if info.Mode().Perm() != fileMode {
		t.Fatalf("expected mode %o, got %o", fileMode, info.Mode().Perm())
	}

	second, _ := NewAdapter(path)
	data, err := second.Restore(ctx)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if data["key"] != "value" || data["authenticatorFactoryName"] != "example.Authenticator" {
		t.Fatalf("unexpected restored data: %v", data)
	}
}

func TestRestoreMissingFileIsEmpty(t *testing.T) {
	adapter, _ := NewAdapter(filepath.Join(t.TempDir(), "missing.json"))

	data, err := adapter.Restore(context.Background())
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if len(data) != 0 {
		t.Fatalf("expected empty data, got %v", data)
	}
}

func TestClearRemovesFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "session.json")
	adapter, _ := NewAdapter(path)

	if err := adapter.Persist(ctx, map[string]any{"key": "value"}); err != nil {
		t.Fatalf("persist: %v", err)
	}
	if err := adapter.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if err := adapter.Clear(ctx); err != nil {
		t.Fatalf("second clear should be a no-op: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected file to be removed, stat err: %v", err)
	}
}

func TestRestoreCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("write corrupt file: %v", err)
	}

	adapter, _ := NewAdapter(path)
	if _, err := adapter.Restore(context.Background()); err == nil {
		t.Fatal("expected decode error for corrupt file")
	}
}

func TestNewAdapterRequiresPath(t *testing.T) {
	if _, err := NewAdapter(""); err != ErrEmptyPath {
		t.Fatalf("expected ErrEmptyPath, got %v", err)
	}
}
