package config

import (
	"fmt"
	"strings"
)

// SessionBackend selects where the token/user pair is persisted.
type SessionBackend string

const (
	SessionBackendMemory   SessionBackend = "memory"
	SessionBackendSQLite   SessionBackend = "sqlite"
	SessionBackendPostgres SessionBackend = "postgres"
	SessionBackendRedis    SessionBackend = "redis"
)

// UnmarshalText implements encoding.TextUnmarshaler for SessionBackend.
// Unknown values are kept so Sanitize can fall back with a clear default.
func (b *SessionBackend) UnmarshalText(text []byte) error {
	*b = SessionBackend(strings.ToLower(strings.TrimSpace(string(text))))
	return nil
}

// Valid reports whether b names a supported backend.
func (b SessionBackend) Valid() bool {
	switch b {
	case SessionBackendMemory, SessionBackendSQLite, SessionBackendPostgres, SessionBackendRedis:
		return true
	default:
		return false
	}
}

// ParseSessionBackend parses a backend name.
func ParseSessionBackend(s string) (SessionBackend, error) {
	b := SessionBackend(strings.ToLower(strings.TrimSpace(s)))
	if !b.Valid() {
		return "", fmt.Errorf("invalid session backend: %q (valid options: memory, sqlite, postgres, redis)", s)
	}
	return b, nil
}

// SessionConfig controls session persistence.
type SessionConfig struct {
	Backend    SessionBackend `env:"BACKEND"     envDefault:"sqlite"`
	SQLitePath string         `env:"SQLITE_PATH" envDefault:"soft-animal-session.db"`

	// Scope namespaces the stored keys, like a browser origin.
	Scope string `env:"SCOPE" envDefault:"soft-animal"`

	// RejectExpiredJWT drops restored sessions whose JWT exp is in the past.
	RejectExpiredJWT bool `env:"REJECT_EXPIRED_JWT" envDefault:"true"`
}

// Sanitize falls back to sqlite on an unknown backend and fills empty values.
func (c *SessionConfig) Sanitize() {
	if !c.Backend.Valid() {
		c.Backend = SessionBackendSQLite
	}
	if c.SQLitePath = strings.TrimSpace(c.SQLitePath); c.SQLitePath == "" {
		c.SQLitePath = "soft-animal-session.db"
	}
	if c.Scope = strings.TrimSpace(c.Scope); c.Scope == "" {
		c.Scope = "soft-animal"
	}
}
