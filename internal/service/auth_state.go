package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	domainauth "github.com/dark4shadow/soft-animal-platform/internal/domain/auth"
	apperrors "github.com/dark4shadow/soft-animal-platform/internal/errors"
	"github.com/dark4shadow/soft-animal-platform/internal/ports"
)

// AuthStateOptions groups dependencies for AuthState.
type AuthStateOptions struct {
	Store  ports.SessionStore
	Client ports.AuthClient
	Logger *slog.Logger
	Now    func() time.Time
}

// AuthState is the in-memory authentication state of one client process.
//
// Every login, register, logout and invalidation bumps a generation counter.
// A backend response is applied only if its generation is still current, so a
// logout can never be undone by a login that was in flight when it happened.
// Session transitions (generation check, storage write, state update) are
// serialized by commitMu; mu guards the fields read by Snapshot.
type AuthState struct {
	store  ports.SessionStore
	client ports.AuthClient
	logger *slog.Logger
	now    func() time.Time

	commitMu sync.Mutex

	mu          sync.Mutex
	user        *domainauth.User
	token       string
	errMsg      string
	pending     int
	initialized bool
	gen         uint64
	subs        map[int]chan domainauth.Snapshot
	nextSub     int

	initGroup singleflight.Group
	initDone  bool
}

// NewAuthState constructs an AuthState in the uninitialized phase.
func NewAuthState(opts AuthStateOptions) *AuthState {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &AuthState{
		store:  opts.Store,
		client: opts.Client,
		logger: logger.With("component", "auth_state"),
		now:    now,
		subs:   make(map[int]chan domainauth.Snapshot),
	}
}

// Init restores the persisted session. It runs once per AuthState; concurrent
// callers share the same run and later calls return the current snapshot.
// When storage cannot be read the state settles anonymous and the next Init
// tries again.
func (s *AuthState) Init(ctx context.Context) domainauth.Snapshot {
	s.mu.Lock()
	if s.initDone {
		snap := s.snapshotLocked()
		s.mu.Unlock()
		return snap
	}
	s.mu.Unlock()

	v, _, _ := s.initGroup.Do("init", func() (any, error) {
		s.mu.Lock()
		if s.initDone {
			snap := s.snapshotLocked()
			s.mu.Unlock()
			return snap, nil
		}
		gen := s.gen
		s.pending++
		s.publishLocked()
		s.mu.Unlock()

		start := s.now()
		sess, err := s.load(ctx)

		s.mu.Lock()
		defer s.mu.Unlock()
		s.pending--
		s.initialized = true
		switch {
		case s.gen != gen:
			s.initDone = true
			s.logger.DebugContext(ctx, "restored session superseded by a newer operation")
		case err != nil:
			s.user = nil
			s.token = ""
			s.logger.WarnContext(ctx, "session restore failed, will retry", "error", err)
		case sess != nil:
			s.initDone = true
			u := sess.User.Clone()
			s.user = &u
			s.token = sess.Token
			s.logger.InfoContext(ctx, "session restored",
				"user_id", u.ID, "role", u.UserType, "duration", s.now().Sub(start))
		default:
			s.initDone = true
			s.user = nil
			s.token = ""
			s.logger.DebugContext(ctx, "no stored session")
		}
		s.publishLocked()
		return s.snapshotLocked(), nil
	})
	return v.(domainauth.Snapshot)
}

func (s *AuthState) load(ctx context.Context) (*domainauth.Session, error) {
	if l, ok := s.store.(ports.SessionLoader); ok {
		return l.Load(ctx)
	}
	sess, _ := s.store.Read(ctx)
	return sess, nil
}

// Snapshot returns a copy of the current state.
func (s *AuthState) Snapshot() domainauth.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Subscribe returns a channel that receives the latest snapshot after every
// change. Slow readers only ever see the most recent value. The returned
// func unsubscribes and closes the channel.
func (s *AuthState) Subscribe() (<-chan domainauth.Snapshot, func()) {
	ch := make(chan domainauth.Snapshot, 1)

	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	ch <- s.snapshotLocked()
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subs, id)
			close(ch)
		})
	}
}

// Login authenticates against the backend and persists the session.
func (s *AuthState) Login(ctx context.Context, email, password string) (domainauth.User, error) {
	gen := s.begin(true)
	defer s.end()

	res, err := s.client.Login(ctx, email, password)
	return s.commitAuth(ctx, gen, "login", res, err)
}

// Register creates an account and signs it in.
func (s *AuthState) Register(ctx context.Context, reg domainauth.Registration) (domainauth.User, error) {
	gen := s.begin(true)
	defer s.end()

	res, err := s.client.Register(ctx, reg)
	return s.commitAuth(ctx, gen, "register", res, err)
}

// Logout clears the session immediately. Pending logins are discarded when they resolve.
func (s *AuthState) Logout(ctx context.Context) error {
	return s.reset(ctx, "logged out")
}

// Invalidate forces the anonymous state after the backend rejected token.
// A token that no longer belongs to the current session is ignored, so a late
// 401 for a previous session cannot sign out the one that replaced it.
func (s *AuthState) Invalidate(ctx context.Context, token string) error {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	s.mu.Lock()
	current := s.token
	s.mu.Unlock()
	if token == "" || (token != current && token != s.store.Token(ctx)) {
		s.logger.DebugContext(ctx, "stale unauthorized response ignored")
		return nil
	}
	return s.resetLocked(ctx, "session invalidated")
}

// UpdateProfile sends the update and stores the backend's canonical user record.
func (s *AuthState) UpdateProfile(ctx context.Context, upd domainauth.ProfileUpdate) (domainauth.User, error) {
	gen := s.begin(false)
	defer s.end()

	s.mu.Lock()
	current := s.user
	s.mu.Unlock()
	if current == nil {
		err := apperrors.NotAuthenticated("sign in to update your profile")
		s.fail(gen, err)
		return domainauth.User{}, err
	}

	updated, err := s.client.UpdateProfile(ctx, current.ID, upd)

	s.commitMu.Lock()
	defer s.commitMu.Unlock()
	if err != nil {
		// A 401 has already reset the state through Invalidate; fail is a no-op then.
		s.fail(gen, err)
		return domainauth.User{}, err
	}
	if !s.sameSession(gen, current.ID) {
		s.logger.DebugContext(ctx, "profile update result discarded", "user_id", current.ID)
		return domainauth.User{}, apperrors.Canceled("profile update superseded")
	}
	return s.storeUser(ctx, gen, updated)
}

// ChangePassword never touches the current user or storage.
func (s *AuthState) ChangePassword(ctx context.Context, currentPassword, newPassword string) error {
	gen := s.begin(false)
	defer s.end()

	s.mu.Lock()
	authed := s.user != nil
	s.mu.Unlock()
	if !authed {
		err := apperrors.NotAuthenticated("sign in to change your password")
		s.fail(gen, err)
		return err
	}

	if err := s.client.ChangePassword(ctx, currentPassword, newPassword); err != nil {
		s.fail(gen, err)
		return err
	}
	return nil
}

// UpdateCurrentUser replaces the local user record without a backend call,
// e.g. after the donation stats changed. The session's user id is kept.
func (s *AuthState) UpdateCurrentUser(ctx context.Context, u domainauth.User) (domainauth.User, error) {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	s.mu.Lock()
	current := s.user
	gen := s.gen
	s.mu.Unlock()
	if current == nil {
		return domainauth.User{}, apperrors.NotAuthenticated("no signed-in user to update")
	}

	u.ID = current.ID
	return s.storeUser(ctx, gen, u)
}

// storeUser persists u with the current token and publishes it. Callers hold commitMu.
func (s *AuthState) storeUser(ctx context.Context, gen uint64, u domainauth.User) (domainauth.User, error) {
	u.Normalize()
	if !u.Validate() {
		err := apperrors.ValidationField("userType", "user record is not valid")
		s.fail(gen, err)
		return domainauth.User{}, err
	}

	s.mu.Lock()
	token := s.token
	s.mu.Unlock()

	if err := s.store.Write(ctx, domainauth.Session{Token: token, User: u}); err != nil {
		s.logger.ErrorContext(ctx, "persist user failed", "user_id", u.ID, "error", err)
		s.fail(gen, err)
		return domainauth.User{}, err
	}

	s.mu.Lock()
	stored := u.Clone()
	s.user = &stored
	s.publishLocked()
	s.mu.Unlock()
	return u.Clone(), nil
}

func (s *AuthState) commitAuth(ctx context.Context, gen uint64, op string, res ports.AuthResult, err error) (domainauth.User, error) {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	if !s.isCurrent(gen) {
		s.logger.DebugContext(ctx, "auth result discarded", "op", op)
		return domainauth.User{}, apperrors.Canceled(op + " superseded")
	}
	if err != nil {
		s.logger.InfoContext(ctx, "auth failed", "op", op, "code", apperrors.GetCode(err))
		s.fail(gen, err)
		return domainauth.User{}, err
	}

	u := res.User.Clone()
	u.Normalize()
	if werr := s.store.Write(ctx, domainauth.Session{Token: res.Token, User: u}); werr != nil {
		s.logger.ErrorContext(ctx, "persist session failed", "op", op, "error", werr)
		s.fail(gen, werr)
		return domainauth.User{}, werr
	}

	s.mu.Lock()
	stored := u.Clone()
	s.user = &stored
	s.token = res.Token
	s.initialized = true
	s.initDone = true
	s.publishLocked()
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "signed in", "op", op, "user_id", u.ID, "role", u.UserType)
	return u, nil
}

func (s *AuthState) reset(ctx context.Context, reason string) error {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()
	return s.resetLocked(ctx, reason)
}

// resetLocked settles the anonymous state. Callers hold commitMu.
func (s *AuthState) resetLocked(ctx context.Context, reason string) error {
	s.mu.Lock()
	s.gen++
	var userID string
	if s.user != nil {
		userID = s.user.ID
	}
	s.user = nil
	s.token = ""
	s.errMsg = ""
	s.initialized = true
	s.initDone = true
	s.publishLocked()
	s.mu.Unlock()

	err := s.store.Clear(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "clear session failed", "error", err)
	}
	s.logger.InfoContext(ctx, reason, "user_id", userID)
	return err
}

// begin marks an operation in flight and clears the error. newSession bumps the generation.
func (s *AuthState) begin(newSession bool) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if newSession {
		s.gen++
	}
	s.pending++
	s.errMsg = ""
	s.publishLocked()
	return s.gen
}

func (s *AuthState) end() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending--
	s.publishLocked()
}

// fail records a user-facing message unless the operation was superseded.
func (s *AuthState) fail(gen uint64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return
	}
	s.errMsg = apperrors.UserMessage(err)
	s.publishLocked()
}

func (s *AuthState) isCurrent(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen == gen
}

func (s *AuthState) sameSession(gen uint64, userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen == gen && s.user != nil && s.user.ID == userID
}

func (s *AuthState) snapshotLocked() domainauth.Snapshot {
	snap := domainauth.Snapshot{Error: s.errMsg}
	if s.user != nil {
		u := s.user.Clone()
		snap.CurrentUser = &u
		snap.IsAuthenticated = true
	}
	switch {
	case !s.initialized && s.pending == 0:
		snap.Phase = domainauth.PhaseUninitialized
		snap.Loading = true
	case s.pending > 0:
		snap.Phase = domainauth.PhaseLoading
		snap.Loading = true
	case s.user != nil:
		snap.Phase = domainauth.PhaseAuthenticated
	default:
		snap.Phase = domainauth.PhaseAnonymous
	}
	return snap
}

// publishLocked hands the latest snapshot to every subscriber without blocking.
func (s *AuthState) publishLocked() {
	if len(s.subs) == 0 {
		return
	}
	snap := s.snapshotLocked()
	for _, ch := range s.subs {
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}
