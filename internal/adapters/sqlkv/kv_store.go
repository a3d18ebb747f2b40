// Package sqlkv stores session values in a SQL table keyed by (scope, key).
// It runs on SQLite (modernc.org/sqlite) and PostgreSQL (pgx stdlib).
package sqlkv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/dark4shadow/soft-animal-platform/internal/data/dbx"
	apperrors "github.com/dark4shadow/soft-animal-platform/internal/errors"
	"github.com/dark4shadow/soft-animal-platform/internal/migrate"
	"github.com/dark4shadow/soft-animal-platform/internal/ports"
)

var _ ports.KeyValueStore = (*KVStore)(nil)

// Options configures a KVStore.
type Options struct {
	DB      *sql.DB
	Dialect dbx.Dialect
	Scope   string
}

// KVStore implements ports.KeyValueStore on the session_kv table.
type KVStore struct {
	db      *sql.DB
	dialect dbx.Dialect
	scope   string
}

// New creates a KVStore. The schema must already exist (see Migrate).
func New(opts Options) (*KVStore, error) {
	if opts.DB == nil {
		return nil, errors.New("sqlkv: db is required")
	}
	switch opts.Dialect {
	case dbx.DialectSQLite, dbx.DialectPostgres:
	default:
		return nil, fmt.Errorf("sqlkv: unsupported dialect %q", opts.Dialect)
	}
	scope := strings.TrimSpace(opts.Scope)
	if scope == "" {
		scope = "soft-animal"
	}
	return &KVStore{db: opts.DB, dialect: opts.Dialect, scope: scope}, nil
}

// Migrate creates the session_kv table for the dialect.
func Migrate(ctx context.Context, db *sql.DB, dialect dbx.Dialect) error {
	return migrate.Run(ctx, db, dialect)
}

func (s *KVStore) q(query string) string { return dbx.Rebind(s.dialect, query) }

func (s *KVStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx,
		s.q(`SELECT value FROM session_kv WHERE scope = ? AND key = ?`),
		s.scope, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get session_kv[%s]: %w", key, apperrors.MapDBError(err))
	}
	return value, true, nil
}

// SetAll upserts every entry in a single transaction.
func (s *KVStore) SetAll(ctx context.Context, entries map[string][]byte) error {
	if len(entries) == 0 {
		return nil
	}
	upsert := s.q(`
		INSERT INTO session_kv (scope, key, value) VALUES (?, ?, ?)
		ON CONFLICT (scope, key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`)
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		for k, v := range entries {
			if v == nil {
				v = []byte{}
			}
			if _, err := tx.ExecContext(ctx, upsert, s.scope, k, v); err != nil {
				return fmt.Errorf("set session_kv[%s]: %w", k, err)
			}
		}
		return nil
	})
	if err != nil {
		return apperrors.MapDBError(err)
	}
	return nil
}

// DeleteAll removes keys in a single transaction.
func (s *KVStore) DeleteAll(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	del := s.q(`DELETE FROM session_kv WHERE scope = ? AND key = ?`)
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		for _, k := range keys {
			if _, err := tx.ExecContext(ctx, del, s.scope, k); err != nil {
				return fmt.Errorf("delete session_kv[%s]: %w", k, err)
			}
		}
		return nil
	})
	if err != nil {
		return apperrors.MapDBError(err)
	}
	return nil
}
