// Package session persists the authenticated token/user pair on top of a
// key/value backend. Reads never fail: anything unusable is treated as "no session"
// and removed.
package session

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	domainauth "github.com/dark4shadow/soft-animal-platform/internal/domain/auth"
	apperrors "github.com/dark4shadow/soft-animal-platform/internal/errors"
	"github.com/dark4shadow/soft-animal-platform/internal/ports"
)

// Storage keys. Backends namespace them by scope.
const (
	KeyToken = "token"
	KeyUser  = "user"
)

var (
	_ ports.SessionStore  = (*Store)(nil)
	_ ports.SessionLoader = (*Store)(nil)
)

// Options configures a Store.
type Options struct {
	KV     ports.KeyValueStore
	Logger *slog.Logger
	Now    func() time.Time
	// RejectExpiredJWT drops sessions whose token is a JWT with a past exp claim.
	RejectExpiredJWT bool
}

// Store implements ports.SessionStore.
type Store struct {
	mu            sync.Mutex
	kv            ports.KeyValueStore
	logger        *slog.Logger
	now           func() time.Time
	rejectExpired bool
}

// New creates a Store over opts.KV.
func New(opts Options) *Store {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Store{
		kv:            opts.KV,
		logger:        logger.With("component", "session_store"),
		now:           now,
		rejectExpired: opts.RejectExpiredJWT,
	}
}

// Read loads the persisted session, or (nil, false) when there is none or it
// cannot be read.
func (s *Store) Read(ctx context.Context) (*domainauth.Session, bool) {
	sess, err := s.Load(ctx)
	if err != nil || sess == nil {
		return nil, false
	}
	return sess, true
}

// Load is Read with storage failures reported. A half-present pair, an
// undecodable user or an invalid record is corrupted: both keys are cleared
// and (nil, nil) returned. An empty store performs no writes.
func (s *Store) Load(ctx context.Context) (*domainauth.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rawToken, hasToken, err := s.kv.Get(ctx, KeyToken)
	if err != nil {
		s.logger.WarnContext(ctx, "session storage unavailable", "error", err)
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "session storage unavailable")
	}
	rawUser, hasUser, err := s.kv.Get(ctx, KeyUser)
	if err != nil {
		s.logger.WarnContext(ctx, "session storage unavailable", "error", err)
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "session storage unavailable")
	}

	if !hasToken && !hasUser {
		return nil, nil
	}
	if hasToken != hasUser {
		s.heal(ctx, apperrors.CorruptedSession("token and user must be stored together"))
		return nil, nil
	}

	token := strings.TrimSpace(string(rawToken))
	if token == "" {
		s.heal(ctx, apperrors.CorruptedSession("stored token is empty"))
		return nil, nil
	}

	var user domainauth.User
	if err := json.Unmarshal(rawUser, &user); err != nil {
		s.heal(ctx, apperrors.Wrap(err, apperrors.ErrCodeCorruptedSession, "stored user is not valid JSON"))
		return nil, nil
	}
	if !user.Validate() {
		s.heal(ctx, apperrors.CorruptedSession("stored user has an invalid shape"))
		return nil, nil
	}
	user.Normalize()

	if s.rejectExpired && TokenExpired(token, s.now()) {
		s.logger.InfoContext(ctx, "stored session token expired", "user_id", user.ID)
		if err := s.kv.DeleteAll(ctx, KeyToken, KeyUser); err != nil {
			s.logger.WarnContext(ctx, "failed to clear expired session", "error", err)
		}
		return nil, nil
	}

	return &domainauth.Session{Token: token, User: user}, nil
}

func (s *Store) heal(ctx context.Context, cause error) {
	s.logger.WarnContext(ctx, "discarding corrupted session", "error", cause)
	if err := s.kv.DeleteAll(ctx, KeyToken, KeyUser); err != nil {
		s.logger.WarnContext(ctx, "failed to clear corrupted session", "error", err)
	}
}

// Write persists token and user as one unit.
func (s *Store) Write(ctx context.Context, sess domainauth.Session) error {
	sess.Token = strings.TrimSpace(sess.Token)
	if !sess.Valid() {
		return apperrors.Validation("session requires a token and a valid user")
	}
	sess.User.Normalize()

	userJSON, err := json.Marshal(sess.User)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "encode session user")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.kv.SetAll(ctx, map[string][]byte{
		KeyToken: []byte(sess.Token),
		KeyUser:  userJSON,
	}); err != nil {
		return wrapStorage(err, "persist session")
	}
	return nil
}

// Clear removes both keys. Clearing an empty store succeeds.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.kv.DeleteAll(ctx, KeyToken, KeyUser); err != nil {
		return wrapStorage(err, "clear session")
	}
	return nil
}

// Token returns the stored bearer token, or "" when absent or unreadable.
func (s *Store) Token(ctx context.Context) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, ok, err := s.kv.Get(ctx, KeyToken)
	if err != nil || !ok {
		return ""
	}
	return strings.TrimSpace(string(raw))
}

func wrapStorage(err error, msg string) error {
	if code := apperrors.GetCode(err); code != "" {
		return apperrors.Wrap(err, code, msg)
	}
	return apperrors.Wrap(err, apperrors.ErrCodeInternal, msg)
}
