package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	_ "modernc.org/sqlite"             // registers the "sqlite" driver

	"github.com/dark4shadow/soft-animal-platform/config"
	"github.com/dark4shadow/soft-animal-platform/internal/adapters/memory"
	redisadapter "github.com/dark4shadow/soft-animal-platform/internal/adapters/redis"
	"github.com/dark4shadow/soft-animal-platform/internal/adapters/sqlkv"
	"github.com/dark4shadow/soft-animal-platform/internal/data/dbx"
	"github.com/dark4shadow/soft-animal-platform/internal/ports"
	"github.com/dark4shadow/soft-animal-platform/internal/session"
)

// SessionBackendConfig contains what OpenSessionStore needs.
type SessionBackendConfig struct {
	Config *config.AppConfig
	Logger *slog.Logger
}

// SessionBackend is an opened session store plus the cleanup for its connections.
type SessionBackend struct {
	Store *session.Store
	KV    ports.KeyValueStore
	close func() error
}

// Close releases the backend's connections. Safe on a zero value.
func (b *SessionBackend) Close() error {
	if b == nil || b.close == nil {
		return nil
	}
	return b.close()
}

// OpenSessionStore connects the configured key-value backend and wraps it in a session.Store.
func OpenSessionStore(ctx context.Context, cfg SessionBackendConfig) (*SessionBackend, error) {
	if cfg.Config == nil {
		return nil, errors.New("session backend config is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	appCfg := cfg.Config

	kv, closeFn, err := openKV(ctx, appCfg, logger)
	if err != nil {
		return nil, err
	}
	logger.InfoContext(ctx, "session backend ready",
		"backend", appCfg.Session.Backend,
		"scope", appCfg.Session.Scope,
	)

	store := session.New(session.Options{
		KV:               kv,
		Logger:           logger,
		RejectExpiredJWT: appCfg.Session.RejectExpiredJWT,
	})
	return &SessionBackend{Store: store, KV: kv, close: closeFn}, nil
}

func openKV(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) (ports.KeyValueStore, func() error, error) {
	dbCfg := DatabaseConfig{DBConfig: cfg.Postgres, RedisConfig: cfg.Redis, Logger: logger}

	switch cfg.Session.Backend {
	case config.SessionBackendMemory:
		return memory.NewKVStore(), nil, nil

	case config.SessionBackendRedis:
		client, err := ConnectRedis(ctx, dbCfg)
		if err != nil {
			return nil, nil, fmt.Errorf("connect redis: %w", err)
		}
		return redisadapter.NewKVStore(client, cfg.Session.Scope), client.Close, nil

	case config.SessionBackendPostgres:
		db, err := ConnectDB(ctx, dbCfg)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		return openSQLKV(ctx, sqlBackend{
			db:      db,
			dialect: dbx.DialectPostgres,
			scope:   cfg.Session.Scope,
			migrate: cfg.Postgres.RunMigrationsOnStart,
			logger:  logger,
		})

	default:
		db, err := OpenSQLite(ctx, cfg.Session.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return openSQLKV(ctx, sqlBackend{
			db:      db,
			dialect: dbx.DialectSQLite,
			scope:   cfg.Session.Scope,
			migrate: true,
			logger:  logger,
		})
	}
}

type sqlBackend struct {
	db      *sql.DB
	dialect dbx.Dialect
	scope   string
	migrate bool
	logger  *slog.Logger
}

func openSQLKV(ctx context.Context, b sqlBackend) (ports.KeyValueStore, func() error, error) {
	fail := func(err error) (ports.KeyValueStore, func() error, error) {
		if closeErr := b.db.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("close database: %w", closeErr))
		}
		return nil, nil, err
	}

	if b.migrate {
		if err := RunMigrations(ctx, b.db, b.dialect, b.logger); err != nil {
			return fail(err)
		}
	}
	kv, err := sqlkv.New(sqlkv.Options{DB: b.db, Dialect: b.dialect, Scope: b.scope})
	if err != nil {
		return fail(err)
	}
	return kv, b.db.Close, nil
}

// OpenSQLite opens the session database file. The pool holds one connection,
// which also keeps a ":memory:" database shared across queries.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open(dbx.DialectSQLite.DriverName(), path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if pingErr := db.PingContext(ctx); pingErr != nil {
		if closeErr := db.Close(); closeErr != nil {
			pingErr = errors.Join(pingErr, fmt.Errorf("close sqlite: %w", closeErr))
		}
		return nil, fmt.Errorf("ping sqlite: %w", pingErr)
	}
	return db, nil
}
