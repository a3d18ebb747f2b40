package config

import (
	"log/slog"
	"testing"
	"time"

	env "github.com/caarlos0/env/v11"
)

func parseWith(t *testing.T, vars map[string]string) AppConfig {
	t.Helper()
	var cfg AppConfig
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: vars}); err != nil {
		t.Fatalf("parse: %v", err)
	}
	cfg.Sanitize()
	return cfg
}

func TestAppConfig_Defaults(t *testing.T) {
	t.Setenv("NODE_ENV", "")
	cfg := parseWith(t, map[string]string{})

	if cfg.API.BaseURL != "http://localhost:5000/api" {
		t.Errorf("API.BaseURL = %q", cfg.API.BaseURL)
	}
	if cfg.API.Timeout != 15*time.Second {
		t.Errorf("API.Timeout = %v", cfg.API.Timeout)
	}
	if cfg.API.PhoneRegion != "UA" {
		t.Errorf("API.PhoneRegion = %q", cfg.API.PhoneRegion)
	}
	if cfg.Session.Backend != SessionBackendSQLite {
		t.Errorf("Session.Backend = %q", cfg.Session.Backend)
	}
	if !cfg.Session.RejectExpiredJWT {
		t.Error("Session.RejectExpiredJWT should default to true")
	}
	if cfg.HTTP.Addr != ":8080" {
		t.Errorf("HTTP.Addr = %q", cfg.HTTP.Addr)
	}
	if cfg.Postgres.Port != 5432 || cfg.Postgres.Name != "softanimal" {
		t.Errorf("Postgres = %+v", cfg.Postgres)
	}
	if cfg.IsDev {
		t.Error("IsDev should default to false")
	}
}

func TestAppConfig_Prefixes(t *testing.T) {
	cfg := parseWith(t, map[string]string{
		"API_BASE_URL":         " https://api.example.org/api/ ",
		"API_LOGIN_TOKEN_PATH": "data.accessToken",
		"API_PHONE_REGION":     "pl",
		"SESSION_BACKEND":      "Redis",
		"SESSION_SCOPE":        "tenant-a",
		"DB_HOST":              "db.internal",
		"REDIS_DB":             "3",
		"REDIS_CLUSTER_NODES":  "r1:6379,r2:6379",
		"HTTP_ADDR":            "127.0.0.1:9000",
		"LOG_LEVEL":            " DEBUG ",
	})

	if cfg.API.BaseURL != "https://api.example.org/api" {
		t.Errorf("API.BaseURL = %q", cfg.API.BaseURL)
	}
	if cfg.API.LoginTokenPath != "data.accessToken" {
		t.Errorf("API.LoginTokenPath = %q", cfg.API.LoginTokenPath)
	}
	if cfg.API.PhoneRegion != "PL" {
		t.Errorf("API.PhoneRegion = %q", cfg.API.PhoneRegion)
	}
	if cfg.Session.Backend != SessionBackendRedis {
		t.Errorf("Session.Backend = %q", cfg.Session.Backend)
	}
	if cfg.Session.Scope != "tenant-a" {
		t.Errorf("Session.Scope = %q", cfg.Session.Scope)
	}
	if cfg.Postgres.Host != "db.internal" {
		t.Errorf("Postgres.Host = %q", cfg.Postgres.Host)
	}
	if cfg.Redis.DB != 3 || len(cfg.Redis.ClusterNodes) != 2 {
		t.Errorf("Redis = %+v", cfg.Redis)
	}
	if cfg.HTTP.Addr != "127.0.0.1:9000" {
		t.Errorf("HTTP.Addr = %q", cfg.HTTP.Addr)
	}
	if cfg.SlogLevel() != slog.LevelDebug {
		t.Errorf("SlogLevel = %v", cfg.SlogLevel())
	}
}

func TestAPIConfig_SanitizeClampsTimeout(t *testing.T) {
	tests := []struct {
		in, want time.Duration
	}{
		{0, time.Second},
		{500 * time.Millisecond, time.Second},
		{30 * time.Second, 30 * time.Second},
		{10 * time.Minute, 2 * time.Minute},
	}
	for _, tt := range tests {
		c := APIConfig{Timeout: tt.in}
		c.Sanitize()
		if c.Timeout != tt.want {
			t.Errorf("Sanitize(%v) = %v, want %v", tt.in, c.Timeout, tt.want)
		}
	}
}

func TestSessionConfig_SanitizeFallsBack(t *testing.T) {
	c := SessionConfig{Backend: "cassandra", SQLitePath: "  ", Scope: ""}
	c.Sanitize()

	if c.Backend != SessionBackendSQLite {
		t.Errorf("Backend = %q", c.Backend)
	}
	if c.SQLitePath != "soft-animal-session.db" {
		t.Errorf("SQLitePath = %q", c.SQLitePath)
	}
	if c.Scope != "soft-animal" {
		t.Errorf("Scope = %q", c.Scope)
	}
}

func TestParseSessionBackend(t *testing.T) {
	tests := []struct {
		input   string
		want    SessionBackend
		wantErr bool
	}{
		{input: "memory", want: SessionBackendMemory},
		{input: " SQLite ", want: SessionBackendSQLite},
		{input: "postgres", want: SessionBackendPostgres},
		{input: "REDIS", want: SessionBackendRedis},
		{input: "", wantErr: true},
		{input: "etcd", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseSessionBackend(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseSessionBackend(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseSessionBackend(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSlogLevel(t *testing.T) {
	tests := []struct {
		level string
		dev   bool
		want  slog.Level
	}{
		{"debug", false, slog.LevelDebug},
		{"info", false, slog.LevelInfo},
		{"info", true, slog.LevelDebug},
		{"warn", false, slog.LevelWarn},
		{"warning", false, slog.LevelWarn},
		{"error", true, slog.LevelError},
		{"chatty", false, slog.LevelInfo},
	}
	for _, tt := range tests {
		c := AppConfig{LogLevel: tt.level, IsDev: tt.dev}
		if got := c.SlogLevel(); got != tt.want {
			t.Errorf("SlogLevel(%q, dev=%v) = %v, want %v", tt.level, tt.dev, got, tt.want)
		}
	}
}

func TestDetectDevMode(t *testing.T) {
	t.Setenv("NODE_ENV", "development")
	c := AppConfig{}
	c.Sanitize()
	if !c.IsDev {
		t.Error("NODE_ENV=development should enable dev mode")
	}
}
