package cmd

import (
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	migratedatabase "github.com/golang-migrate/migrate/v4/database"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/joeshaw/envdecode"
	"github.com/lib/pq"
	"github.com/spf13/cobra"
)

const (
	defaultMigrationsTable = "simpleauth.schema_migrations"
	defaultMigrationsPath  = "pkg/store/postgres/migrations"
)

type migrateConfig struct {
	DatabaseURL     string `env:"SIMPLEAUTH_MIGRATE_DATABASE_URL"`
	MigrationsTable string `env:"SIMPLEAUTH_MIGRATE_MIGRATIONS_TABLE"`
	MigrationsPath  string `env:"SIMPLEAUTH_MIGRATE_MIGRATIONS_PATH"`
}

func newMigrateCommand(root *cliConfig, rootEnvErr error) *cobra.Command {
	var cfg migrateConfig
	envErr := envdecode.Decode(&cfg)
	if errors.Is(envErr, envdecode.ErrNoTargetFieldsAreSet) {
		envErr = nil
	}
	if envErr != nil {
		envErr = fmt.Errorf("decode SIMPLEAUTH_MIGRATE_* environment: %w", envErr)
	}

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the postgres session store schema",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return errors.Join(rootEnvErr, envErr)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	migrateCmd.PersistentFlags().StringVar(&cfg.DatabaseURL, "migrate-database-url", cfg.DatabaseURL, "Database URL for migrations. Falls back to --database-url. Env: SIMPLEAUTH_MIGRATE_DATABASE_URL.")
	migrateCmd.PersistentFlags().StringVar(&cfg.MigrationsTable, "migrations-table", cfg.MigrationsTable, "Version table as table or schema.table. Env: SIMPLEAUTH_MIGRATE_MIGRATIONS_TABLE.")
	migrateCmd.PersistentFlags().StringVar(&cfg.MigrationsPath, "migrations-path", cfg.MigrationsPath, "Path or source URL for migration files. Env: SIMPLEAUTH_MIGRATE_MIGRATIONS_PATH.")

	resolve := func() migrateConfig {
		resolved := cfg
		if strings.TrimSpace(resolved.DatabaseURL) == "" {
			resolved.DatabaseURL = root.DatabaseURL
		}
		return resolved
	}

	migrateCmd.AddCommand(&cobra.Command{
		Use:   "up [steps]",
		Short: "Apply pending schema migrations",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			steps, hasSteps, err := parseMigrationStepsArg(args)
			if err != nil {
				return err
			}

			return withMigrationRunner(cmd, resolve(), func(runner *migrate.Migrate, source string, table migrationsTableSpec) error {
				if hasSteps {
					err = runner.Steps(steps)
				} else {
					err = runner.Up()
				}

				applied, done := stepsCompleted(err, steps, hasSteps)
				switch {
				case done && applied == 0:
					cmd.Println("No schema changes to apply.")
				case done && hasSteps:
					cmd.Printf("Applied %d migration step(s) from %s\n", applied, source)
				case done:
					cmd.Printf("Applied all pending migrations from %s\n", source)
				default:
					return fmt.Errorf("apply migrations: %w", err)
				}
				return nil
			})
		},
	})

	migrateCmd.AddCommand(&cobra.Command{
		Use:   "down <steps>",
		Short: "Roll back schema migrations by step count",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			steps, _, err := parseMigrationStepsArg(args)
			if err != nil {
				return err
			}

			return withMigrationRunner(cmd, resolve(), func(runner *migrate.Migrate, source string, table migrationsTableSpec) error {
				err := runner.Steps(-steps)
				if isDroppedMigrationsTableError(err, table) {
					cmd.Printf("Rolled back %d migration step(s) from %s\n", steps, source)
					cmd.Println("Migration tracking table was removed by rollback and will be recreated on the next run.")
					return nil
				}

				rolledBack, done := stepsCompleted(err, steps, true)
				switch {
				case done && rolledBack == 0:
					cmd.Println("No schema changes to roll back.")
				case done:
					cmd.Printf("Rolled back %d migration step(s) from %s\n", rolledBack, source)
				default:
					return fmt.Errorf("rollback migrations: %w", err)
				}
				return nil
			})
		},
	})

	migrateCmd.AddCommand(&cobra.Command{
		Use:   "force <version>",
		Short: "Force-set migration version (-1 for nil version)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := parseForceVersionArg(args[0])
			if err != nil {
				return err
			}

			return withMigrationRunner(cmd, resolve(), func(runner *migrate.Migrate, _ string, _ migrationsTableSpec) error {
				if err := runner.Force(version); err != nil {
					return fmt.Errorf("force migration version: %w", err)
				}
				cmd.Printf("Forced migration version to %d.\n", version)
				return nil
			})
		},
	})

	return migrateCmd
}

func withMigrationRunner(cmd *cobra.Command, cfg migrateConfig, run func(*migrate.Migrate, string, migrationsTableSpec) error) error {
	databaseURL := strings.TrimSpace(cfg.DatabaseURL)
	if databaseURL == "" {
		return errors.New("missing database URL: set --migrate-database-url, --database-url or SIMPLEAUTH_MIGRATE_DATABASE_URL")
	}

	table, err := parseMigrationsTableSpec(firstNonEmpty(cfg.MigrationsTable, defaultMigrationsTable))
	if err != nil {
		return err
	}
	if err := ensureMigrationsSchemaExists(databaseURL, table); err != nil {
		return err
	}
	databaseURL, err = applyMigrationsTable(databaseURL, table)
	if err != nil {
		return err
	}
	source, err := resolveMigrationsSourceURL(firstNonEmpty(cfg.MigrationsPath, defaultMigrationsPath))
	if err != nil {
		return err
	}

	runner, err := migrate.New(source, databaseURL)
	if err != nil {
		return fmt.Errorf("create migrate runner: %w", err)
	}
	defer func() {
		sourceErr, databaseErr := runner.Close()
		if closeErr := errors.Join(sourceErr, databaseErr); closeErr != nil {
			cmd.PrintErrf("warning: failed to close migration runner cleanly: %v\n", closeErr)
		}
	}()

	return run(runner, source, table)
}

// stepsCompleted reports how many of requested steps ran when err is nil or
// only says the migration boundary was reached. Without a step count a nil
// err counts as one or more steps.
func stepsCompleted(err error, requested int, counted bool) (int, bool) {
	if err == nil {
		if !counted {
			return 1, true
		}
		return requested, true
	}
	// golang-migrate reports a step command at the boundary as bare
	// os.ErrNotExist.
	if errors.Is(err, migrate.ErrNoChange) || err == os.ErrNotExist {
		return 0, true
	}

	var shortLimit migrate.ErrShortLimit
	if counted && errors.As(err, &shortLimit) {
		completed := requested - int(shortLimit.Short)
		if completed < 0 {
			completed = 0
		}
		return completed, true
	}
	return 0, false
}

func parseMigrationStepsArg(args []string) (int, bool, error) {
	if len(args) == 0 {
		return 0, false, nil
	}

	steps, err := strconv.Atoi(strings.TrimSpace(args[0]))
	if err != nil || steps <= 0 {
		return 0, false, fmt.Errorf("invalid migration steps %q: expected a positive integer", args[0])
	}
	return steps, true, nil
}

func parseForceVersionArg(arg string) (int, error) {
	version, err := strconv.Atoi(strings.TrimSpace(arg))
	if err != nil || version < -1 {
		return 0, fmt.Errorf("invalid force version %q: expected an integer >= -1", arg)
	}
	return version, nil
}

type migrationsTableSpec struct {
	Schema string
	Table  string
}

// qualified returns the quoted identifier golang-migrate and postgres use for
// the table.
func (s migrationsTableSpec) qualified() string {
	if s.Schema == "" {
		return pq.QuoteIdentifier(s.Table)
	}
	return pq.QuoteIdentifier(s.Schema) + "." + pq.QuoteIdentifier(s.Table)
}

// parseMigrationsTableSpec accepts table or schema.table, each part
// optionally double quoted.
func parseMigrationsTableSpec(value string) (migrationsTableSpec, error) {
	parts := strings.Split(strings.TrimSpace(value), ".")
	for i, part := range parts {
		parts[i] = strings.Trim(strings.TrimSpace(part), `"`)
		if parts[i] == "" {
			return migrationsTableSpec{}, fmt.Errorf("invalid migrations table %q", value)
		}
	}

	switch len(parts) {
	case 1:
		return migrationsTableSpec{Table: parts[0]}, nil
	case 2:
		return migrationsTableSpec{Schema: parts[0], Table: parts[1]}, nil
	default:
		return migrationsTableSpec{}, fmt.Errorf("invalid migrations table %q: expected table or schema.table", value)
	}
}

func applyMigrationsTable(databaseURL string, table migrationsTableSpec) (string, error) {
	parsed, err := url.Parse(databaseURL)
	if err != nil {
		return "", fmt.Errorf("parse database url: %w", err)
	}

	query := parsed.Query()
	if strings.TrimSpace(query.Get("x-migrations-table")) != "" {
		return databaseURL, nil
	}
	if table.Schema == "" {
		query.Set("x-migrations-table", table.Table)
	} else {
		query.Set("x-migrations-table", table.qualified())
		query.Set("x-migrations-table-quoted", "true")
	}

	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}

func ensureMigrationsSchemaExists(databaseURL string, table migrationsTableSpec) error {
	if table.Schema == "" {
		return nil
	}

	parsed, err := url.Parse(databaseURL)
	if err != nil {
		return fmt.Errorf("parse database url: %w", err)
	}

	db, err := sql.Open("postgres", migrate.FilterCustomQuery(parsed).String())
	if err != nil {
		return fmt.Errorf("open database for schema bootstrap: %w", err)
	}
	defer db.Close()

	if _, err := db.Exec("CREATE SCHEMA IF NOT EXISTS " + pq.QuoteIdentifier(table.Schema)); err != nil {
		return fmt.Errorf("ensure migrations schema %q exists: %w", table.Schema, err)
	}
	return nil
}

func resolveMigrationsSourceURL(pathOrURL string) (string, error) {
	pathOrURL = strings.TrimSpace(pathOrURL)
	if strings.Contains(pathOrURL, "://") {
		return pathOrURL, nil
	}

	absPath, err := filepath.Abs(pathOrURL)
	if err != nil {
		return "", fmt.Errorf("resolve migrations path %q: %w", pathOrURL, err)
	}
	return "file://" + filepath.ToSlash(absPath), nil
}

// isDroppedMigrationsTableError spots the final down migration dropping the
// schema that holds the version table, which makes the trailing TRUNCATE fail.
func isDroppedMigrationsTableError(err error, table migrationsTableSpec) bool {
	var dbErr *migratedatabase.Error
	if !errors.As(err, &dbErr) || dbErr == nil {
		return false
	}

	query := strings.TrimSpace(string(dbErr.Query))
	if !strings.HasPrefix(strings.ToUpper(query), "TRUNCATE ") || !strings.Contains(query, table.qualified()) {
		return false
	}

	var pqErr *pq.Error
	if errors.As(dbErr.OrigErr, &pqErr) {
		return pqErr.Code == "3F000"
	}
	message := strings.ToLower(dbErr.Error())
	return strings.Contains(message, "schema") && strings.Contains(message, "does not exist")
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
