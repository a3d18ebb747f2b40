package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dark4shadow/soft-animal-platform/config"
	domainauth "github.com/dark4shadow/soft-animal-platform/internal/domain/auth"
)

func fakeBackend(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/auth/login":
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body["password"] != "secret1" {
				w.WriteHeader(http.StatusUnauthorized)
				_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "message": "bad password"})
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"success": true,
				"token":   "cli-token",
				"user": map[string]any{
					"id": "42", "name": "Sofia", "email": body["email"], "userType": "shelter", "shelterId": "s-1",
				},
			})
		case "/api/auth/forgot-password":
			_ = json.NewEncoder(w).Encode(map[string]any{"success": true})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newCommandContext(t *testing.T, apiURL, dbPath, input string) (*commandContext, *bytes.Buffer) {
	t.Helper()
	cfg := config.AppConfig{
		API:     config.APIConfig{BaseURL: apiURL},
		Session: config.SessionConfig{Backend: config.SessionBackendSQLite, SQLitePath: dbPath},
	}
	cfg.Sanitize()

	var out bytes.Buffer
	return &commandContext{
		Ctx:    context.Background(),
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Config: cfg,
		In:     bufio.NewReader(strings.NewReader(input)),
		Out:    &out,
	}, &out
}

func pipedStdin(t *testing.T) {
	t.Helper()
	prev := isTerminal
	isTerminal = func(int) bool { return false }
	t.Cleanup(func() { isTerminal = prev })
}

func TestLoginWhoAmILogout(t *testing.T) {
	pipedStdin(t)
	srv := fakeBackend(t)
	dbPath := filepath.Join(t.TempDir(), "session.db")

	cmdCtx, out := newCommandContext(t, srv.URL+"/api", dbPath, "secret1\n")
	require.NoError(t, runLogin(cmdCtx, []string{"--email", "sofia@example.com"}))
	assert.Contains(t, out.String(), "Signed in as Sofia <sofia@example.com> (shelter)")

	cmdCtx, out = newCommandContext(t, srv.URL+"/api", dbPath, "")
	require.NoError(t, runWhoAmI(cmdCtx, []string{"--json"}))
	var snap domainauth.Snapshot
	require.NoError(t, json.Unmarshal(out.Bytes(), &snap))
	require.NotNil(t, snap.CurrentUser)
	assert.Equal(t, "42", snap.CurrentUser.ID)
	assert.Equal(t, domainauth.PhaseAuthenticated, snap.Phase)

	cmdCtx, out = newCommandContext(t, srv.URL+"/api", dbPath, "")
	require.NoError(t, runLogout(cmdCtx, nil))
	assert.Contains(t, out.String(), "Signed out.")

	cmdCtx, out = newCommandContext(t, srv.URL+"/api", dbPath, "")
	require.NoError(t, runWhoAmI(cmdCtx, nil))
	assert.Contains(t, out.String(), "Not signed in.")
}

func TestLogin_WrongPassword(t *testing.T) {
	pipedStdin(t)
	srv := fakeBackend(t)
	cmdCtx, _ := newCommandContext(t, srv.URL+"/api", filepath.Join(t.TempDir(), "s.db"), "wrong-pass\n")

	err := runLogin(cmdCtx, []string{"--email", "sofia@example.com"})
	require.Error(t, err)
	assert.Equal(t, "Invalid email or password.", userMessage(err))
}

func TestPasswd_RequiresSession(t *testing.T) {
	pipedStdin(t)
	srv := fakeBackend(t)
	cmdCtx, _ := newCommandContext(t, srv.URL+"/api", filepath.Join(t.TempDir(), "s.db"), "")

	err := runPasswd(cmdCtx, nil)
	require.Error(t, err)
	assert.Contains(t, userMessage(err), "sign in")
}

func TestForgotPassword_PromptsForEmail(t *testing.T) {
	srv := fakeBackend(t)
	cmdCtx, out := newCommandContext(t, srv.URL+"/api", filepath.Join(t.TempDir(), "s.db"), "sofia@example.com\n")

	require.NoError(t, runForgotPassword(cmdCtx, nil))
	assert.Contains(t, out.String(), "reset link is on its way")
}

func TestSessionClear(t *testing.T) {
	srv := fakeBackend(t)
	dbPath := filepath.Join(t.TempDir(), "s.db")

	cmdCtx, _ := newCommandContext(t, srv.URL+"/api", dbPath, "n\n")
	require.Error(t, runSessionClear(cmdCtx, nil), "declining aborts")

	cmdCtx, out := newCommandContext(t, srv.URL+"/api", dbPath, "")
	require.NoError(t, runSessionClear(cmdCtx, []string{"--yes"}))
	assert.Contains(t, out.String(), "Session cleared.")
}

func TestParseRegisterFlags(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr bool
	}{
		{name: "minimal", args: []string{"--name", "Ann", "--email", "ann@example.com"}},
		{name: "shelter", args: []string{"--name", "Paws", "--email", "p@example.com", "--type", "Shelter"}},
		{name: "missing email", args: []string{"--name", "Ann"}, wantErr: true},
		{name: "bad type", args: []string{"--name", "Ann", "--email", "a@b.c", "--type", "cat"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseRegisterFlags(tt.args)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParseProfileFlags_RequiresChange(t *testing.T) {
	_, err := parseProfileFlags(nil)
	require.Error(t, err)

	opts, err := parseProfileFlags([]string{"--name", "New"})
	require.NoError(t, err)
	assert.Equal(t, "New", opts.Fields.Name)
}

func TestReadAttachment(t *testing.T) {
	dir := t.TempDir()
	png := filepath.Join(dir, "me.png")
	require.NoError(t, os.WriteFile(png, []byte("\x89PNG\r\n\x1a\nrest"), 0o600))

	att, err := readAttachment(png)
	require.NoError(t, err)
	assert.Equal(t, "avatar", att.FieldName)
	assert.Equal(t, "me.png", att.FileName)
	assert.Equal(t, "image/png", att.ContentType)

	noExt := filepath.Join(dir, "avatar")
	require.NoError(t, os.WriteFile(noExt, []byte("\x89PNG\r\n\x1a\nrest"), 0o600))
	att, err = readAttachment(noExt)
	require.NoError(t, err)
	assert.Equal(t, "image/png", att.ContentType)

	_, err = readAttachment(filepath.Join(dir, "missing.png"))
	require.Error(t, err)
}

func TestPrintUsageListsCommands(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printUsage(&buf))
	for name := range commands() {
		assert.Contains(t, buf.String(), name)
	}
}
