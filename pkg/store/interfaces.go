package store

import (
	"context"
	"encoding/json"
)

// Store persists the session's data between process restarts.
type Store interface {
	// Persist replaces whatever was stored before with data.
	Persist(ctx context.Context, data map[string]any) error
	// Restore returns the persisted data, or an empty map when nothing is stored.
	Restore(ctx context.Context) (map[string]any, error)
	// Clear removes every persisted key.
	Clear(ctx context.Context) error
}

// Clone returns a shallow copy of data. A nil input yields an empty map.
func Clone(data map[string]any) map[string]any {
	cloned := make(map[string]any, len(data))
	for key, value := range data {
		cloned[key] = value
	}
	return cloned
}

// Normalize round-trips data through JSON so every backend hands back the
// same value shapes (float64 numbers, []any slices, map[string]any objects).
func Normalize(data map[string]any) (map[string]any, error) {
	encoded, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	decoded := map[string]any{}
	if err := json.Unmarshal(encoded, &decoded); err != nil {
		return nil, err
	}
	return decoded, nil
}
