package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/mock/gomock"

	"github.com/dark4shadow/soft-animal-platform/internal/adapters/memory"
	domainauth "github.com/dark4shadow/soft-animal-platform/internal/domain/auth"
	apperrors "github.com/dark4shadow/soft-animal-platform/internal/errors"
	"github.com/dark4shadow/soft-animal-platform/internal/guard"
	"github.com/dark4shadow/soft-animal-platform/internal/mocks"
	authmocks "github.com/dark4shadow/soft-animal-platform/internal/mocks/auth"
	"github.com/dark4shadow/soft-animal-platform/internal/ports"
	"github.com/dark4shadow/soft-animal-platform/internal/session"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newState(store ports.SessionStore, client ports.AuthClient) *AuthState {
	return NewAuthState(AuthStateOptions{Store: store, Client: client, Logger: quietLogger()})
}

func volunteer(id, name string) domainauth.User {
	return domainauth.User{ID: id, Name: name, Email: id + "@example.com", UserType: domainauth.RoleVolunteer}
}

// assertSettled checks the core invariant of a snapshot.
func assertSettled(t *testing.T, snap domainauth.Snapshot) {
	t.Helper()
	assert.Equal(t, snap.CurrentUser != nil, snap.IsAuthenticated, "isAuthenticated must mirror currentUser")
}

func TestAuthState_BeforeInit(t *testing.T) {
	state := newState(authmocks.NewMemorySessionStore(), authmocks.NewMockAuthClient())

	snap := state.Snapshot()
	assert.Equal(t, domainauth.PhaseUninitialized, snap.Phase)
	assert.True(t, snap.Loading, "guards must not redirect before the session is restored")
	assert.Equal(t, guard.ShowLoading, guard.Decide(snap, nil))
}

func TestAuthState_Init_EmptyStore(t *testing.T) {
	client := authmocks.NewMockAuthClient()
	state := newState(authmocks.NewMemorySessionStore(), client)

	snap := state.Init(context.Background())

	assert.Equal(t, domainauth.PhaseAnonymous, snap.Phase)
	assert.False(t, snap.Loading)
	assert.Nil(t, snap.CurrentUser)
	assertSettled(t, snap)
	assert.Zero(t, client.Calls("Login"))
	assert.Zero(t, client.Calls("UpdateProfile"))
}

func TestAuthState_Init_RestoresStoredSession(t *testing.T) {
	ctx := context.Background()
	kv := memory.NewKVStore()
	require.NoError(t, kv.SetAll(ctx, map[string][]byte{
		session.KeyToken: []byte("abc"),
		session.KeyUser:  []byte(`{"id":"1","name":"X","userType":"volunteer"}`),
	}))
	client := authmocks.NewMockAuthClient()
	state := newState(session.New(session.Options{KV: kv, Logger: quietLogger()}), client)

	snap := state.Init(ctx)

	require.NotNil(t, snap.CurrentUser)
	assert.Equal(t, "X", snap.CurrentUser.Name)
	assert.Equal(t, domainauth.PhaseAuthenticated, snap.Phase)
	assert.True(t, snap.IsAuthenticated)
	assert.False(t, snap.Loading)
	assert.Zero(t, client.Calls("Login"))
}

func TestAuthState_Init_CorruptedSessionIsCleared(t *testing.T) {
	ctx := context.Background()
	kv := memory.NewKVStore()
	require.NoError(t, kv.SetAll(ctx, map[string][]byte{
		session.KeyToken: []byte("abc"),
		session.KeyUser:  []byte("not-json"),
	}))
	state := newState(session.New(session.Options{KV: kv, Logger: quietLogger()}), authmocks.NewMockAuthClient())

	snap := state.Init(ctx)

	assert.Equal(t, domainauth.PhaseAnonymous, snap.Phase)
	assert.Empty(t, snap.Error, "corruption is healed silently")
	assert.Zero(t, kv.Len(), "storage is cleared as a side effect")
}

func TestAuthState_Init_RunsOnce(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockSessionStore(ctrl)
	stored := &domainauth.Session{Token: "abc", User: volunteer("1", "X")}
	store.EXPECT().Read(gomock.Any()).Return(stored, true).Times(1)

	state := newState(store, authmocks.NewMockAuthClient())

	var wg sync.WaitGroup
	snaps := make([]domainauth.Snapshot, 8)
	for i := range snaps {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			snaps[i] = state.Init(context.Background())
		}(i)
	}
	wg.Wait()

	for _, snap := range snaps {
		assert.Empty(t, cmp.Diff(snaps[0], snap))
	}
	again := state.Init(context.Background())
	assert.Empty(t, cmp.Diff(snaps[0], again), "later calls return the current state")
}

func TestAuthState_Init_MakesNoBackendCalls(t *testing.T) {
	stores := map[string]ports.SessionStore{
		"empty store":    authmocks.NewMemorySessionStore(),
		"stored session": authmocks.NewMemorySessionStoreWith(domainauth.Session{Token: "abc", User: volunteer("1", "X")}),
	}
	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			// No expectations: any backend call fails the test.
			state := newState(store, mocks.NewMockAuthClient(ctrl))

			snap := state.Init(context.Background())
			assert.False(t, snap.Loading)
			assert.Empty(t, snap.Error)
			assertSettled(t, snap)
		})
	}
}

func TestAuthState_Init_RetriesAfterStorageError(t *testing.T) {
	ctx := context.Background()
	store := authmocks.NewMemorySessionStoreWith(domainauth.Session{Token: "abc", User: volunteer("1", "X")})
	store.SetReadErr(errors.New("keychain locked"))
	state := newState(store, authmocks.NewMockAuthClient())

	snap := state.Init(ctx)
	assert.Equal(t, domainauth.PhaseAnonymous, snap.Phase)
	assert.False(t, snap.Loading)
	assert.Zero(t, store.Clears(), "an unreadable store is left alone")

	store.SetReadErr(nil)
	snap = state.Init(ctx)
	require.NotNil(t, snap.CurrentUser)
	assert.Equal(t, "1", snap.CurrentUser.ID)
	assert.Equal(t, domainauth.PhaseAuthenticated, snap.Phase)

	store.SetReadErr(errors.New("keychain locked"))
	again := state.Init(ctx)
	assert.Empty(t, cmp.Diff(snap, again), "a restored session is not read again")
}

func TestAuthState_Login_Success(t *testing.T) {
	ctx := context.Background()
	kv := memory.NewKVStore()
	store := session.New(session.Options{KV: kv, Logger: quietLogger()})
	client := &authmocks.MockAuthClient{
		LoginFunc: func(_ context.Context, email, password string) (ports.AuthResult, error) {
			assert.Equal(t, "a@b.com", email)
			assert.Equal(t, "secret", password)
			return ports.AuthResult{Token: "t1", User: domainauth.User{ID: "2", UserType: domainauth.RoleShelter}}, nil
		},
	}
	state := newState(store, client)
	state.Init(ctx)

	u, err := state.Login(ctx, "a@b.com", "secret")
	require.NoError(t, err)
	assert.Equal(t, "2", u.ID)

	snap := state.Snapshot()
	assert.Equal(t, domainauth.PhaseAuthenticated, snap.Phase)
	assert.False(t, snap.Loading)
	assertSettled(t, snap)

	sess, ok := store.Read(ctx)
	require.True(t, ok)
	assert.Equal(t, "t1", sess.Token)
	assert.Equal(t, "2", sess.User.ID)
	assert.Equal(t, domainauth.RoleShelter, sess.User.UserType)

	assert.Equal(t, guard.Render, guard.Decide(snap, guard.Role(domainauth.RoleShelter)))
	assert.Equal(t, guard.RedirectHome, guard.Decide(snap, guard.Role(domainauth.RoleVolunteer)))
}

func TestAuthState_Login_FailureKeepsPriorState(t *testing.T) {
	ctx := context.Background()
	prior := domainauth.Session{Token: "old", User: volunteer("1", "Prior")}
	store := authmocks.NewMemorySessionStoreWith(prior)
	client := &authmocks.MockAuthClient{
		LoginFunc: func(context.Context, string, string) (ports.AuthResult, error) {
			return ports.AuthResult{}, apperrors.InvalidCredentials("bad password")
		},
	}
	state := newState(store, client)
	state.Init(ctx)

	_, err := state.Login(ctx, "a@b.com", "wrong1")
	require.Error(t, err)
	assert.True(t, apperrors.IsInvalidCredentials(err))

	snap := state.Snapshot()
	require.NotNil(t, snap.CurrentUser)
	assert.Equal(t, "Prior", snap.CurrentUser.Name)
	assert.Equal(t, "Invalid email or password.", snap.Error)
	assert.False(t, snap.Loading)
	assert.Equal(t, "old", store.Token(ctx))
	assert.Zero(t, store.Writes())
}

func TestAuthState_Login_StorageFailure(t *testing.T) {
	ctx := context.Background()
	store := authmocks.NewMemorySessionStore()
	store.WriteErr = apperrors.Internal("disk full")
	state := newState(store, authmocks.NewMockAuthClient())
	state.Init(ctx)

	_, err := state.Login(ctx, "a@b.com", "secret")
	require.Error(t, err)

	snap := state.Snapshot()
	assert.Nil(t, snap.CurrentUser, "memory never runs ahead of storage")
	assert.NotEmpty(t, snap.Error)
	assertSettled(t, snap)
}

func TestAuthState_Register(t *testing.T) {
	ctx := context.Background()
	store := authmocks.NewMemorySessionStore()
	state := newState(store, authmocks.NewMockAuthClient())
	state.Init(ctx)

	u, err := state.Register(ctx, domainauth.Registration{
		Name: "Happy Paws", Email: "paws@example.com", Password: "secret1", UserType: domainauth.RoleShelter,
	})
	require.NoError(t, err)
	assert.Equal(t, domainauth.RoleShelter, u.UserType)
	assert.True(t, state.Snapshot().HasRole(domainauth.RoleShelter))
	assert.Equal(t, "mock-token", store.Token(ctx))
}

func TestAuthState_LogoutDuringPendingLogin(t *testing.T) {
	tests := []struct {
		name   string
		result ports.AuthResult
		err    error
	}{
		{name: "login succeeds late", result: ports.AuthResult{Token: "late", User: volunteer("9", "Late")}},
		{name: "login fails late", err: apperrors.InvalidCredentials("nope")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer goleak.VerifyNone(t)
			ctx := context.Background()
			store := authmocks.NewMemorySessionStore()

			started := make(chan struct{})
			release := make(chan struct{})
			client := &authmocks.MockAuthClient{
				LoginFunc: func(context.Context, string, string) (ports.AuthResult, error) {
					close(started)
					<-release
					return tt.result, tt.err
				},
			}
			state := newState(store, client)
			state.Init(ctx)

			done := make(chan error, 1)
			go func() {
				_, err := state.Login(ctx, "a@b.com", "secret")
				done <- err
			}()

			<-started
			assert.True(t, state.Snapshot().Loading)
			require.NoError(t, state.Logout(ctx))
			close(release)
			err := <-done

			require.Error(t, err)
			assert.True(t, apperrors.IsCanceled(err), "superseded login reports canceled, got %v", err)

			snap := state.Snapshot()
			assert.Equal(t, domainauth.PhaseAnonymous, snap.Phase)
			assert.Nil(t, snap.CurrentUser)
			assert.Empty(t, snap.Error)
			assert.False(t, snap.Loading)
			_, ok := store.Read(ctx)
			assert.False(t, ok, "storage stays empty")
			assert.Zero(t, store.Writes())
		})
	}
}

func TestAuthState_NewerLoginWins(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := context.Background()
	store := authmocks.NewMemorySessionStore()

	firstStarted := make(chan struct{})
	releaseFirst := make(chan struct{})
	client := &authmocks.MockAuthClient{
		LoginFunc: func(_ context.Context, email, _ string) (ports.AuthResult, error) {
			if email == "first@example.com" {
				close(firstStarted)
				<-releaseFirst
				return ports.AuthResult{Token: "t-first", User: volunteer("1", "First")}, nil
			}
			return ports.AuthResult{Token: "t-second", User: volunteer("2", "Second")}, nil
		},
	}
	state := newState(store, client)
	state.Init(ctx)

	done := make(chan error, 1)
	go func() {
		_, err := state.Login(ctx, "first@example.com", "secret")
		done <- err
	}()
	<-firstStarted

	_, err := state.Login(ctx, "second@example.com", "secret")
	require.NoError(t, err)
	assert.True(t, state.Snapshot().Loading, "first login is still in flight")

	close(releaseFirst)
	assert.True(t, apperrors.IsCanceled(<-done))

	snap := state.Snapshot()
	require.NotNil(t, snap.CurrentUser)
	assert.Equal(t, "Second", snap.CurrentUser.Name)
	assert.False(t, snap.Loading)
	assert.Equal(t, "t-second", store.Token(ctx))
}

func TestAuthState_InvalidateIgnoresStaleToken(t *testing.T) {
	ctx := context.Background()
	store := authmocks.NewMemorySessionStoreWith(domainauth.Session{Token: "tok-b", User: volunteer("b", "B")})
	state := newState(store, authmocks.NewMockAuthClient())
	state.Init(ctx)

	require.NoError(t, state.Invalidate(ctx, "tok-a"))
	assert.Equal(t, domainauth.PhaseAuthenticated, state.Snapshot().Phase)
	assert.Equal(t, "tok-b", store.Token(ctx))
	assert.Zero(t, store.Clears())

	require.NoError(t, state.Invalidate(ctx, ""))
	assert.Equal(t, domainauth.PhaseAuthenticated, state.Snapshot().Phase)

	require.NoError(t, state.Invalidate(ctx, "tok-b"))
	assert.Equal(t, domainauth.PhaseAnonymous, state.Snapshot().Phase)
	assert.Empty(t, store.Token(ctx))
}

func TestAuthState_LateUnauthorizedKeepsNewerSession(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := context.Background()
	store := authmocks.NewMemorySessionStore()
	started := make(chan struct{})
	release := make(chan struct{})
	var state *AuthState
	client := &authmocks.MockAuthClient{
		LoginFunc: func(_ context.Context, email, _ string) (ports.AuthResult, error) {
			if email == "a@example.com" {
				return ports.AuthResult{Token: "tok-a", User: volunteer("a", "A")}, nil
			}
			return ports.AuthResult{Token: "tok-b", User: volunteer("b", "B")}, nil
		},
		UpdateProfileFunc: func(ctx context.Context, _ string, _ domainauth.ProfileUpdate) (domainauth.User, error) {
			close(started)
			<-release
			// The request went out with A's token; the HTTP client reports it on 401.
			_ = state.Invalidate(ctx, "tok-a")
			return domainauth.User{}, apperrors.NotAuthenticated("token expired")
		},
	}
	state = newState(store, client)
	state.Init(ctx)
	_, err := state.Login(ctx, "a@example.com", "secret1")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := state.UpdateProfile(ctx, domainauth.FieldsUpdate(domainauth.ProfileFields{Name: "New"}))
		done <- err
	}()
	<-started
	require.NoError(t, state.Logout(ctx))
	_, err = state.Login(ctx, "b@example.com", "secret1")
	require.NoError(t, err)
	close(release)
	assert.True(t, apperrors.IsNotAuthenticated(<-done))

	snap := state.Snapshot()
	require.NotNil(t, snap.CurrentUser)
	assert.Equal(t, "b", snap.CurrentUser.ID)
	assert.Equal(t, domainauth.PhaseAuthenticated, snap.Phase)
	assert.Empty(t, snap.Error)
	assert.Equal(t, "tok-b", store.Token(ctx))
}

func TestAuthState_Logout(t *testing.T) {
	ctx := context.Background()
	store := authmocks.NewMemorySessionStoreWith(domainauth.Session{Token: "abc", User: volunteer("1", "X")})
	client := authmocks.NewMockAuthClient()
	state := newState(store, client)
	state.Init(ctx)

	require.NoError(t, state.Logout(ctx))
	require.NoError(t, state.Logout(ctx), "logout is idempotent")

	snap := state.Snapshot()
	assert.Equal(t, domainauth.PhaseAnonymous, snap.Phase)
	assertSettled(t, snap)
	_, ok := store.Read(ctx)
	assert.False(t, ok)
	assert.Zero(t, client.Calls("Login"), "logout makes no backend call")
}

func TestAuthState_ChangePassword(t *testing.T) {
	ctx := context.Background()
	user := volunteer("1", "X")

	t.Run("wrong current password", func(t *testing.T) {
		store := authmocks.NewMemorySessionStoreWith(domainauth.Session{Token: "abc", User: user})
		client := &authmocks.MockAuthClient{
			ChangePasswordFunc: func(context.Context, string, string) error {
				return apperrors.InvalidCredentials("current password is incorrect")
			},
		}
		state := newState(store, client)
		before := state.Init(ctx)

		err := state.ChangePassword(ctx, "wrong", "new123456")
		require.Error(t, err)
		assert.True(t, apperrors.IsInvalidCredentials(err))

		after := state.Snapshot()
		assert.Empty(t, cmp.Diff(before.CurrentUser, after.CurrentUser))
		assert.NotEmpty(t, after.Error)
		assert.Zero(t, store.Writes())
		assert.Equal(t, "abc", store.Token(ctx))
	})

	t.Run("success touches nothing", func(t *testing.T) {
		store := authmocks.NewMemorySessionStoreWith(domainauth.Session{Token: "abc", User: user})
		state := newState(store, authmocks.NewMockAuthClient())
		before := state.Init(ctx)

		require.NoError(t, state.ChangePassword(ctx, "old-pass", "new123456"))
		assert.Empty(t, cmp.Diff(before, state.Snapshot()))
		assert.Zero(t, store.Writes())
	})

	t.Run("anonymous", func(t *testing.T) {
		client := authmocks.NewMockAuthClient()
		state := newState(authmocks.NewMemorySessionStore(), client)
		state.Init(ctx)

		err := state.ChangePassword(ctx, "old-pass", "new123456")
		assert.True(t, apperrors.IsNotAuthenticated(err))
		assert.Zero(t, client.Calls("ChangePassword"))
	})
}

func TestAuthState_UpdateProfile(t *testing.T) {
	ctx := context.Background()

	t.Run("stores canonical user with current token", func(t *testing.T) {
		store := authmocks.NewMemorySessionStoreWith(domainauth.Session{Token: "abc", User: volunteer("1", "Old")})
		state := newState(store, authmocks.NewMockAuthClient())
		state.Init(ctx)

		u, err := state.UpdateProfile(ctx, domainauth.FieldsUpdate(domainauth.ProfileFields{Name: "New"}))
		require.NoError(t, err)
		assert.Equal(t, "New", u.Name)
		assert.Equal(t, "New", state.Snapshot().CurrentUser.Name)

		sess, ok := store.Read(ctx)
		require.True(t, ok)
		assert.Equal(t, "abc", sess.Token)
		assert.Equal(t, "New", sess.User.Name)
	})

	t.Run("anonymous makes no request", func(t *testing.T) {
		client := authmocks.NewMockAuthClient()
		state := newState(authmocks.NewMemorySessionStore(), client)
		state.Init(ctx)

		_, err := state.UpdateProfile(ctx, domainauth.FieldsUpdate(domainauth.ProfileFields{Name: "New"}))
		assert.True(t, apperrors.IsNotAuthenticated(err))
		assert.Zero(t, client.Calls("UpdateProfile"))
		assert.NotEmpty(t, state.Snapshot().Error)
	})

	t.Run("401 invalidates the session", func(t *testing.T) {
		store := authmocks.NewMemorySessionStoreWith(domainauth.Session{Token: "abc", User: volunteer("1", "Old")})
		client := &authmocks.MockAuthClient{}
		state := newState(store, client)
		client.UpdateProfileFunc = func(ctx context.Context, _ string, _ domainauth.ProfileUpdate) (domainauth.User, error) {
			// What the HTTP client's unauthorized hook does.
			_ = state.Invalidate(ctx, "abc")
			return domainauth.User{}, apperrors.NotAuthenticated("token expired")
		}
		state.Init(ctx)

		_, err := state.UpdateProfile(ctx, domainauth.FieldsUpdate(domainauth.ProfileFields{Name: "New"}))
		assert.True(t, apperrors.IsNotAuthenticated(err))

		snap := state.Snapshot()
		assert.Equal(t, domainauth.PhaseAnonymous, snap.Phase)
		assert.Empty(t, snap.Error)
		assert.Empty(t, store.Token(ctx))
	})

	t.Run("result discarded after logout", func(t *testing.T) {
		defer goleak.VerifyNone(t)
		store := authmocks.NewMemorySessionStoreWith(domainauth.Session{Token: "abc", User: volunteer("1", "Old")})
		started := make(chan struct{})
		release := make(chan struct{})
		client := &authmocks.MockAuthClient{
			UpdateProfileFunc: func(_ context.Context, id string, _ domainauth.ProfileUpdate) (domainauth.User, error) {
				close(started)
				<-release
				return volunteer(id, "New"), nil
			},
		}
		state := newState(store, client)
		state.Init(ctx)

		done := make(chan error, 1)
		go func() {
			_, err := state.UpdateProfile(ctx, domainauth.FieldsUpdate(domainauth.ProfileFields{Name: "New"}))
			done <- err
		}()
		<-started
		require.NoError(t, state.Logout(ctx))
		close(release)

		assert.True(t, apperrors.IsCanceled(<-done))
		assert.Nil(t, state.Snapshot().CurrentUser)
		_, ok := store.Read(ctx)
		assert.False(t, ok)
	})
}

func TestAuthState_UpdateCurrentUser(t *testing.T) {
	ctx := context.Background()

	t.Run("anonymous is rejected", func(t *testing.T) {
		store := authmocks.NewMemorySessionStore()
		state := newState(store, authmocks.NewMockAuthClient())
		state.Init(ctx)

		_, err := state.UpdateCurrentUser(ctx, volunteer("1", "X"))
		assert.True(t, apperrors.IsNotAuthenticated(err))
		assert.False(t, state.Snapshot().IsAuthenticated, "never authenticates")
		assert.Zero(t, store.Writes())
	})

	t.Run("keeps session id and token", func(t *testing.T) {
		store := authmocks.NewMemorySessionStoreWith(domainauth.Session{Token: "abc", User: volunteer("1", "X")})
		client := authmocks.NewMockAuthClient()
		state := newState(store, client)
		state.Init(ctx)

		refreshed := volunteer("other-id", "X")
		refreshed.DonationStats = &domainauth.DonationStats{TotalDonated: 150, DonationCount: 3}
		u, err := state.UpdateCurrentUser(ctx, refreshed)
		require.NoError(t, err)
		assert.Equal(t, "1", u.ID)

		snap := state.Snapshot()
		assert.True(t, snap.IsAuthenticated)
		require.NotNil(t, snap.CurrentUser.DonationStats)
		assert.Equal(t, 3, snap.CurrentUser.DonationStats.DonationCount)

		sess, ok := store.Read(ctx)
		require.True(t, ok)
		assert.Equal(t, "abc", sess.Token)
		assert.Equal(t, 150.0, sess.User.DonationStats.TotalDonated)
		assert.Zero(t, client.Calls("UpdateProfile"), "local only")
	})
}

func TestAuthState_SnapshotIsACopy(t *testing.T) {
	ctx := context.Background()
	store := authmocks.NewMemorySessionStoreWith(domainauth.Session{Token: "abc", User: volunteer("1", "X")})
	state := newState(store, authmocks.NewMockAuthClient())
	state.Init(ctx)

	snap := state.Snapshot()
	snap.CurrentUser.Name = "mutated"
	assert.Equal(t, "X", state.Snapshot().CurrentUser.Name)
}

func TestAuthState_Subscribe(t *testing.T) {
	ctx := context.Background()
	state := newState(authmocks.NewMemorySessionStore(), authmocks.NewMockAuthClient())
	ch, unsubscribe := state.Subscribe()

	first := <-ch
	assert.Equal(t, domainauth.PhaseUninitialized, first.Phase)

	state.Init(ctx)
	_, err := state.Login(ctx, "a@b.com", "secret")
	require.NoError(t, err)

	latest := <-ch
	assert.Equal(t, domainauth.PhaseAuthenticated, latest.Phase, "slow readers see only the latest value")
	assertSettled(t, latest)

	unsubscribe()
	unsubscribe()
	_, open := <-ch
	assert.False(t, open)
	require.NoError(t, state.Logout(ctx), "publishing after unsubscribe must not panic")
}

func TestAuthState_InvariantHoldsThroughSequence(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := context.Background()
	store := authmocks.NewMemorySessionStore()
	client := authmocks.NewMockAuthClient()
	client.ChangePasswordFunc = func(context.Context, string, string) error {
		return errors.New("backend down")
	}
	state := newState(store, client)
	ch, unsubscribe := state.Subscribe()

	var seen []domainauth.Snapshot
	collected := make(chan struct{})
	go func() {
		defer close(collected)
		for snap := range ch {
			seen = append(seen, snap)
		}
	}()

	state.Init(ctx)
	_, _ = state.Login(ctx, "a@b.com", "secret")
	_, _ = state.UpdateProfile(ctx, domainauth.FieldsUpdate(domainauth.ProfileFields{Name: "Y"}))
	_ = state.ChangePassword(ctx, "old-pass", "new123456")
	_ = state.Logout(ctx)
	_, _ = state.Register(ctx, domainauth.Registration{Name: "Z", Email: "z@example.com", Password: "secret1"})
	_ = state.Invalidate(ctx, store.Token(ctx))

	unsubscribe()
	<-collected

	require.NotEmpty(t, seen)
	for _, snap := range seen {
		assertSettled(t, snap)
	}
	final := state.Snapshot()
	assert.Equal(t, domainauth.PhaseAnonymous, final.Phase)
	_, ok := store.Read(ctx)
	assert.False(t, ok)
}
