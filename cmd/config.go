package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/go-logr/logr"
	"github.com/go-logr/stdr"
	"github.com/joeshaw/envdecode"

	"github.com/porthorian/simpleauth"
)

// cliConfig is read from SIMPLEAUTH_* variables; flags override it.
type cliConfig struct {
	Store       string `env:"SIMPLEAUTH_STORE,default=file"`
	StorePath   string `env:"SIMPLEAUTH_STORE_PATH,default=.simpleauth/session.json"`
	RedisAddr   string `env:"SIMPLEAUTH_REDIS_ADDR"`
	RedisKey    string `env:"SIMPLEAUTH_REDIS_KEY"`
	DatabaseURL string `env:"SIMPLEAUTH_DATABASE_URL"`
	Namespace   string `env:"SIMPLEAUTH_NAMESPACE"`
	TokenSecret string `env:"SIMPLEAUTH_TOKEN_SECRET"`
	TokenIssuer string `env:"SIMPLEAUTH_TOKEN_ISSUER"`
	UsersFile   string `env:"SIMPLEAUTH_USERS_FILE"`
	Verbosity   int    `env:"SIMPLEAUTH_VERBOSITY"`
}

func loadCLIConfig() (cliConfig, error) {
	var cfg cliConfig
	err := envdecode.Decode(&cfg)
	if err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return defaultCLIConfig(cfg), fmt.Errorf("decode SIMPLEAUTH_* environment: %w", err)
	}
	return defaultCLIConfig(cfg), nil
}

func defaultCLIConfig(cfg cliConfig) cliConfig {
	if strings.TrimSpace(cfg.Store) == "" {
		cfg.Store = string(simpleauth.StoreBackendFile)
	}
	if strings.TrimSpace(cfg.StorePath) == "" {
		cfg.StorePath = ".simpleauth/session.json"
	}
	return cfg
}

func (c *cliConfig) runtime() simpleauth.RuntimeConfig {
	return simpleauth.RuntimeConfig{
		Store: simpleauth.StoreConfig{
			Backend: simpleauth.StoreBackend(strings.ToLower(strings.TrimSpace(c.Store))),
			File: simpleauth.FileStoreConfig{
				Path: c.StorePath,
			},
			Redis: simpleauth.RedisStoreConfig{
				Address: c.RedisAddr,
				Key:     c.RedisKey,
			},
			Postgres: simpleauth.PostgresStoreConfig{
				DSN:       c.DatabaseURL,
				Namespace: c.Namespace,
			},
		},
	}
}

func (c *cliConfig) logger(w io.Writer) logr.Logger {
	stdr.SetVerbosity(c.Verbosity)
	return stdr.New(log.New(w, "", log.LstdFlags))
}

// loadUsers reads a JSON object mapping identification to encoded hash, as
// printed by hash-password.
func loadUsers(path string) (map[string]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read users file: %w", err)
	}

	users := map[string]string{}
	if err := json.Unmarshal(raw, &users); err != nil {
		return nil, fmt.Errorf("decode users file %q: %w", path, err)
	}
	return users, nil
}
