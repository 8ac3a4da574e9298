package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/porthorian/simpleauth/pkg/store"
	goredis "github.com/redis/go-redis/v9"
)

const DefaultKey = "simpleauth:session"

var ErrNilClient = errors.New("redis store: client is nil")

type Config struct {
	Client *goredis.Client
	// Key names the redis hash holding the session. Defaults to DefaultKey.
	Key string
}

// Adapter stores each session attribute as a JSON-encoded field of one redis hash.
type Adapter struct {
	client *goredis.Client
	key    string
}

var _ store.Store = (*Adapter)(nil)

func NewAdapter(config Config) (*Adapter, error) {
	if config.Client == nil {
		return nil, ErrNilClient
	}
	if config.Key == "" {
		config.Key = DefaultKey
	}

	return &Adapter{
		client: config.Client,
		key:    config.Key,
	}, nil
}

func (a *Adapter) Key() string {
	return a.key
}

func (a *Adapter) Persist(ctx context.Context, data map[string]any) error {
	fields := make(map[string]any, len(data))
	for key, value := range data {
		encoded, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("redis store: encode field %q: %w", key, err)
		}
		fields[key] = string(encoded)
	}

	_, err := a.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Del(ctx, a.key)
		if len(fields) > 0 {
			pipe.HSet(ctx, a.key, fields)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis store: persist %s: %w", a.key, err)
	}
	return nil
}

func (a *Adapter) Restore(ctx context.Context) (map[string]any, error) {
	fields, err := a.client.HGetAll(ctx, a.key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis store: restore %s: %w", a.key, err)
	}

	data := make(map[string]any, len(fields))
	for key, raw := range fields {
		var value any
		if err := json.Unmarshal([]byte(raw), &value); err != nil {
			return nil, fmt.Errorf("redis store: decode field %q: %w", key, err)
		}
		data[key] = value
	}
	return data, nil
}

func (a *Adapter) Clear(ctx context.Context) error {
	if err := a.client.Del(ctx, a.key).Err(); err != nil {
		return fmt.Errorf("redis store: clear %s: %w", a.key, err)
	}
	return nil
}
