package bootstrap

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dark4shadow/soft-animal-platform/config"
	"github.com/dark4shadow/soft-animal-platform/internal/adapters/memory"
	domainauth "github.com/dark4shadow/soft-animal-platform/internal/domain/auth"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sessionConfig(backend config.SessionBackend, path string) *config.AppConfig {
	cfg := &config.AppConfig{
		Session: config.SessionConfig{
			Backend:    backend,
			SQLitePath: path,
			Scope:      "test",
		},
	}
	cfg.Session.Sanitize()
	return cfg
}

func TestOpenSessionStore_RequiresConfig(t *testing.T) {
	_, err := OpenSessionStore(context.Background(), SessionBackendConfig{})
	require.Error(t, err)
}

func TestOpenSessionStore_Memory(t *testing.T) {
	backend, err := OpenSessionStore(context.Background(), SessionBackendConfig{
		Config: sessionConfig(config.SessionBackendMemory, ""),
		Logger: quietLogger(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, backend.Close()) })

	assert.IsType(t, &memory.KVStore{}, backend.KV)
	_, ok := backend.Store.Read(context.Background())
	assert.False(t, ok)
}

func TestOpenSessionStore_SQLiteSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "session.db")
	cfg := SessionBackendConfig{Config: sessionConfig(config.SessionBackendSQLite, path), Logger: quietLogger()}

	first, err := OpenSessionStore(ctx, cfg)
	require.NoError(t, err)
	sess := domainauth.Session{
		Token: "tok",
		User:  domainauth.User{ID: "7", Name: "Iryna", UserType: domainauth.RoleShelter},
	}
	require.NoError(t, first.Store.Write(ctx, sess))
	require.NoError(t, first.Close())

	second, err := OpenSessionStore(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, second.Close()) })

	got, ok := second.Store.Read(ctx)
	require.True(t, ok)
	assert.Equal(t, "tok", got.Token)
	assert.Equal(t, "7", got.User.ID)
	assert.Equal(t, domainauth.RoleShelter, got.User.UserType)
}

func TestOpenSQLite_InMemory(t *testing.T) {
	db, err := OpenSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, RunMigrations(context.Background(), db, "sqlite", quietLogger()))
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM session_kv`).Scan(&n))
	assert.Zero(t, n)
}

func TestSessionBackend_CloseZeroValue(t *testing.T) {
	var b *SessionBackend
	assert.NoError(t, b.Close())
	assert.NoError(t, (&SessionBackend{}).Close())
}
