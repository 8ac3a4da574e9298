package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/porthorian/simpleauth/pkg/store"
)

const DefaultNamespace = "default"

const (
	deleteNamespaceQuery = `DELETE FROM simpleauth.session_entry WHERE namespace = $1`

	putEntryQuery = `
INSERT INTO simpleauth.session_entry (
  namespace, key, value, date_modified
) VALUES ($1, $2, $3, $4)
`

	listEntriesQuery = `
SELECT
  key, value
FROM simpleauth.session_entry
WHERE namespace = $1
`
)

// Adapter stores session attributes as rows of simpleauth.session_entry,
// one row per key, scoped by namespace so several applications can share a
// database. The schema lives in the migrations directory next to this file.
type Adapter struct {
	db        *sql.DB
	namespace string

	stmts preparedStatements
}

type preparedStatements struct {
	deleteNamespace *sql.Stmt
	putEntry        *sql.Stmt
	listEntries     *sql.Stmt
}

type prepareStatementSpec struct {
	label  string
	query  string
	assign func(*preparedStatements, *sql.Stmt)
}

var prepareStatementSpecs = []prepareStatementSpec{
	{
		label: "delete namespace",
		query: deleteNamespaceQuery,
		assign: func(ps *preparedStatements, stmt *sql.Stmt) {
			ps.deleteNamespace = stmt
		},
	},
	{
		label: "put entry",
		query: putEntryQuery,
		assign: func(ps *preparedStatements, stmt *sql.Stmt) {
			ps.putEntry = stmt
		},
	},
	{
		label: "list entries",
		query: listEntriesQuery,
		assign: func(ps *preparedStatements, stmt *sql.Stmt) {
			ps.listEntries = stmt
		},
	},
}

var (
	ErrNilDB                 = errors.New("postgres store: db is nil")
	ErrAdapterNotInitialized = errors.New("postgres store: adapter not initialized")
)

var _ store.Store = (*Adapter)(nil)

func NewAdapter(db *sql.DB, namespace string) (*Adapter, error) {
	if namespace == "" {
		namespace = DefaultNamespace
	}

	adapter := &Adapter{
		db:        db,
		namespace: namespace,
	}

	if err := adapter.prepareStatements(); err != nil {
		_ = adapter.Close()
		return nil, err
	}

	return adapter, nil
}

func (a *Adapter) Namespace() string {
	return a.namespace
}

// Close releases prepared statements. The *sql.DB belongs to the caller.
func (a *Adapter) Close() error {
	if a == nil {
		return nil
	}

	return closeStatements(
		a.stmts.deleteNamespace,
		a.stmts.putEntry,
		a.stmts.listEntries,
	)
}

func (a *Adapter) Persist(ctx context.Context, data map[string]any) error {
	if err := a.requirePreparedStatements(); err != nil {
		return err
	}

	encoded := make(map[string][]byte, len(data))
	for key, value := range data {
		raw, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("postgres store: encode key %q: %w", key, err)
		}
		encoded[key] = raw
	}

	return a.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.StmtContext(ctx, a.stmts.deleteNamespace).ExecContext(ctx, a.namespace); err != nil {
			return fmt.Errorf("postgres store: delete namespace %q: %w", a.namespace, err)
		}

		now := time.Now().UTC()
		put := tx.StmtContext(ctx, a.stmts.putEntry)
		for key, raw := range encoded {
			if _, err := put.ExecContext(ctx, a.namespace, key, raw, now); err != nil {
				return fmt.Errorf("postgres store: put key %q: %w", key, err)
			}
		}
		return nil
	})
}

func (a *Adapter) Restore(ctx context.Context) (map[string]any, error) {
	if err := a.requirePreparedStatements(); err != nil {
		return nil, err
	}

	rows, err := a.stmts.listEntries.QueryContext(ctx, a.namespace)
	if err != nil {
		return nil, fmt.Errorf("postgres store: list namespace %q: %w", a.namespace, err)
	}
	defer rows.Close()

	data := map[string]any{}
	for rows.Next() {
		key, value, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		data[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres store: iterate namespace %q: %w", a.namespace, err)
	}
	return data, nil
}

func (a *Adapter) Clear(ctx context.Context) error {
	if err := a.requirePreparedStatements(); err != nil {
		return err
	}

	if _, err := a.stmts.deleteNamespace.ExecContext(ctx, a.namespace); err != nil {
		return fmt.Errorf("postgres store: clear namespace %q: %w", a.namespace, err)
	}
	return nil
}

func (a *Adapter) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	db, err := a.requireDB()
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

func (a *Adapter) prepareStatements() (err error) {
	db, err := a.requireDB()
	if err != nil {
		return err
	}

	prepared := make([]*sql.Stmt, 0, len(prepareStatementSpecs))
	defer func() {
		if err != nil {
			_ = closeStatements(prepared...)
		}
	}()

	for _, spec := range prepareStatementSpecs {
		stmt, prepErr := db.Prepare(spec.query)
		if prepErr != nil {
			err = fmt.Errorf("postgres store: prepare %s statement: %w", spec.label, prepErr)
			return err
		}
		prepared = append(prepared, stmt)
		spec.assign(&a.stmts, stmt)
	}
	return nil
}

func (a *Adapter) requirePreparedStatements() error {
	if _, err := a.requireDB(); err != nil {
		return err
	}

	if a.stmts.deleteNamespace == nil || a.stmts.putEntry == nil || a.stmts.listEntries == nil {
		return ErrAdapterNotInitialized
	}
	return nil
}

func (a *Adapter) requireDB() (*sql.DB, error) {
	if a == nil || a.db == nil {
		return nil, ErrNilDB
	}
	return a.db, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (string, any, error) {
	var (
		key string
		raw []byte
	)
	if err := row.Scan(&key, &raw); err != nil {
		return "", nil, fmt.Errorf("postgres store: scan entry: %w", err)
	}

	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return "", nil, fmt.Errorf("postgres store: decode key %q: %w", key, err)
	}
	return key, value, nil
}

func closeStatements(stmts ...*sql.Stmt) error {
	var errs []error
	for _, stmt := range stmts {
		if stmt == nil {
			continue
		}
		if err := stmt.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
