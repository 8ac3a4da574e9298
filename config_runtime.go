package simpleauth

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	goredis "github.com/redis/go-redis/v9"

	oerrors "github.com/porthorian/simpleauth/pkg/errors"
	"github.com/porthorian/simpleauth/pkg/metrics"
	filestore "github.com/porthorian/simpleauth/pkg/store/file"
	memorystore "github.com/porthorian/simpleauth/pkg/store/memory"
	"github.com/porthorian/simpleauth/pkg/store/postgres"
	redisstore "github.com/porthorian/simpleauth/pkg/store/redis"
)

type StoreBackend string

const (
	StoreBackendNone     StoreBackend = "none"
	StoreBackendMemory   StoreBackend = "memory"
	StoreBackendFile     StoreBackend = "file"
	StoreBackendRedis    StoreBackend = "redis"
	StoreBackendPostgres StoreBackend = "postgres"
)

type RuntimeConfig struct {
	Store StoreConfig
}

type StoreConfig struct {
	Backend  StoreBackend
	File     FileStoreConfig
	Redis    RedisStoreConfig
	Postgres PostgresStoreConfig
}

type FileStoreConfig struct {
	Path string
}

type RedisStoreConfig struct {
	Address     string
	Username    string
	Password    string
	Database    int
	Key         string
	DialTimeout time.Duration
}

type PostgresStoreConfig struct {
	DriverName      string
	DSN             string
	Namespace       string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	PingTimeout     time.Duration
	OpenDB          func(driverName string, dsn string) (*sql.DB, error)
}

// initialize fills in defaults and, when no Store was supplied, builds one
// from Runtime. The returned closer releases whatever initialize opened.
func (c Config) initialize(ctx context.Context) (func() error, Config, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	config := c
	config.Logger = resolveLogger(config.Logger)
	if config.Metrics == nil {
		config.Metrics = metrics.Noop{}
	}
	if config.Registry == nil {
		config.Registry = &Registry{}
	}
	if config.RestoreTimeout <= 0 {
		config.RestoreTimeout = DefaultRestoreTimeout
	}

	if config.Store != nil {
		return noopCloser, config, nil
	}

	closeStore, config, err := initializeStore(ctx, config)
	if err != nil {
		return nil, Config{}, err
	}
	if config.Store == nil {
		_ = closeStore()
		return nil, Config{}, oerrors.ErrMissingStore
	}

	return joinClosers(closeStore), config, nil
}

func initializeStore(ctx context.Context, config Config) (func() error, Config, error) {
	backend := config.Runtime.Store.Backend
	if backend == "" {
		backend = StoreBackendNone
	}

	switch backend {
	case StoreBackendNone:
		return noopCloser, config, nil
	case StoreBackendMemory:
		config.Store = memorystore.NewAdapter()
		config.Logger.V(1).Info("initialized memory store backend")
		return noopCloser, config, nil
	case StoreBackendFile:
		return initializeFileStore(config)
	case StoreBackendRedis:
		return initializeRedisStore(ctx, config)
	case StoreBackendPostgres:
		return initializePostgresStore(ctx, config)
	default:
		return nil, Config{}, oerrors.New(oerrors.CodeInvalidConfig, fmt.Sprintf("simpleauth config: unsupported runtime.store.backend %q", backend))
	}
}

func initializeFileStore(config Config) (func() error, Config, error) {
	adapter, err := filestore.NewAdapter(config.Runtime.Store.File.Path)
	if err != nil {
		return nil, Config{}, oerrors.Wrap(oerrors.CodeInvalidConfig, "simpleauth config: runtime.store.file.path is required", err)
	}

	config.Store = adapter
	config.Logger.V(1).Info("initialized file store backend", "path", adapter.Path())
	return noopCloser, config, nil
}

func initializeRedisStore(ctx context.Context, config Config) (func() error, Config, error) {
	redisConfig := config.Runtime.Store.Redis
	if redisConfig.Address == "" {
		return nil, Config{}, oerrors.New(oerrors.CodeInvalidConfig, "simpleauth config: runtime.store.redis.address is required")
	}
	if redisConfig.DialTimeout <= 0 {
		redisConfig.DialTimeout = 5 * time.Second
	}

	client := goredis.NewClient(&goredis.Options{
		Addr:        redisConfig.Address,
		Username:    redisConfig.Username,
		Password:    redisConfig.Password,
		DB:          redisConfig.Database,
		DialTimeout: redisConfig.DialTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, redisConfig.DialTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, Config{}, oerrors.Wrap(oerrors.CodeStorageUnavailable, "simpleauth config: failed to ping redis", err)
	}

	adapter, err := redisstore.NewAdapter(redisstore.Config{
		Client: client,
		Key:    redisConfig.Key,
	})
	if err != nil {
		_ = client.Close()
		return nil, Config{}, err
	}

	config.Store = adapter
	config.Runtime.Store.Redis = redisConfig
	config.Logger.V(1).Info("initialized redis store backend", "address", redisConfig.Address, "database", redisConfig.Database, "key", adapter.Key())
	return client.Close, config, nil
}

func initializePostgresStore(ctx context.Context, config Config) (func() error, Config, error) {
	pgConfig := config.Runtime.Store.Postgres
	if pgConfig.DSN == "" {
		return nil, Config{}, oerrors.New(oerrors.CodeInvalidConfig, "simpleauth config: runtime.store.postgres.dsn is required")
	}

	if pgConfig.DriverName == "" {
		pgConfig.DriverName = "pgx"
	}
	if pgConfig.PingTimeout <= 0 {
		pgConfig.PingTimeout = 5 * time.Second
	}
	if pgConfig.OpenDB == nil {
		pgConfig.OpenDB = sql.Open
	}

	db, err := pgConfig.OpenDB(pgConfig.DriverName, pgConfig.DSN)
	if err != nil {
		return nil, Config{}, oerrors.Wrap(oerrors.CodeStorageUnavailable, "simpleauth config: failed to open postgres database", err)
	}

	if pgConfig.MaxOpenConns > 0 {
		db.SetMaxOpenConns(pgConfig.MaxOpenConns)
	}
	if pgConfig.MaxIdleConns > 0 {
		db.SetMaxIdleConns(pgConfig.MaxIdleConns)
	}
	if pgConfig.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(pgConfig.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pgConfig.PingTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, Config{}, oerrors.Wrap(oerrors.CodeStorageUnavailable, "simpleauth config: failed to ping postgres database", err)
	}

	adapter, err := postgres.NewAdapter(db, pgConfig.Namespace)
	if err != nil {
		_ = db.Close()
		return nil, Config{}, oerrors.Wrap(oerrors.CodeStorageUnavailable, "simpleauth config: failed to initialize postgres store", err)
	}

	config.Store = adapter
	config.Runtime.Store.Postgres = pgConfig
	config.Logger.V(1).Info("initialized postgres store backend", "driver", pgConfig.DriverName, "namespace", adapter.Namespace(), "max_open_conns", pgConfig.MaxOpenConns)
	return joinClosers(db.Close, adapter.Close), config, nil
}

func joinClosers(closers ...func() error) func() error {
	return func() error {
		var errs []error

		for i := len(closers) - 1; i >= 0; i-- {
			if closers[i] == nil {
				continue
			}
			if err := closers[i](); err != nil {
				errs = append(errs, err)
			}
		}

		return stderrors.Join(errs...)
	}
}

func noopCloser() error {
	return nil
}
