package auth

// Package auth contains simple hand-written test doubles for auth ports.
// These are lightweight and suitable for unit tests without codegen.

import (
	"context"
	"sync"

	domainauth "github.com/dark4shadow/soft-animal-platform/internal/domain/auth"
	apperrors "github.com/dark4shadow/soft-animal-platform/internal/errors"
	"github.com/dark4shadow/soft-animal-platform/internal/ports"
)

// Ensure compile-time conformance to ports.
var (
	_ ports.AuthClient   = (*MockAuthClient)(nil)
	_ ports.SessionStore  = (*MemorySessionStore)(nil)
	_ ports.SessionLoader = (*MemorySessionStore)(nil)
)

// DefaultUser is the account MockAuthClient signs in as unless told otherwise.
func DefaultUser() domainauth.User {
	return domainauth.User{
		ID:       "mock-user-1",
		Name:     "Mock User",
		Email:    "mock.user@example.com",
		UserType: domainauth.RoleVolunteer,
	}
}

// MockAuthClient scripts backend responses. Nil funcs fall back to a
// deterministic success for DefaultUser.
type MockAuthClient struct {
	LoginFunc          func(ctx context.Context, email, password string) (ports.AuthResult, error)
	RegisterFunc       func(ctx context.Context, reg domainauth.Registration) (ports.AuthResult, error)
	ChangePasswordFunc func(ctx context.Context, current, next string) error
	UpdateProfileFunc  func(ctx context.Context, userID string, upd domainauth.ProfileUpdate) (domainauth.User, error)
	ForgotPasswordFunc func(ctx context.Context, email string) error
	ResetPasswordFunc  func(ctx context.Context, token, password string) error

	Token string
	User  domainauth.User

	mu    sync.Mutex
	calls map[string]int
}

// NewMockAuthClient creates a MockAuthClient with sensible defaults.
func NewMockAuthClient() *MockAuthClient {
	return &MockAuthClient{Token: "mock-token", User: DefaultUser()}
}

// Calls returns how many times the named method ran.
func (m *MockAuthClient) Calls(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[method]
}

func (m *MockAuthClient) record(method string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	m.calls[method]++
}

func (m *MockAuthClient) result() ports.AuthResult {
	user := m.User
	if user.ID == "" {
		user = DefaultUser()
	}
	token := m.Token
	if token == "" {
		token = "mock-token"
	}
	return ports.AuthResult{Token: token, User: user}
}

func (m *MockAuthClient) Login(ctx context.Context, email, password string) (ports.AuthResult, error) {
	m.record("Login")
	if m.LoginFunc != nil {
		return m.LoginFunc(ctx, email, password)
	}
	return m.result(), nil
}

func (m *MockAuthClient) Register(ctx context.Context, reg domainauth.Registration) (ports.AuthResult, error) {
	m.record("Register")
	if m.RegisterFunc != nil {
		return m.RegisterFunc(ctx, reg)
	}
	res := m.result()
	res.User.Name = reg.Name
	res.User.Email = reg.Email
	if reg.UserType != "" {
		res.User.UserType = reg.UserType
	}
	return res, nil
}

func (m *MockAuthClient) ChangePassword(ctx context.Context, current, next string) error {
	m.record("ChangePassword")
	if m.ChangePasswordFunc != nil {
		return m.ChangePasswordFunc(ctx, current, next)
	}
	return nil
}

func (m *MockAuthClient) UpdateProfile(ctx context.Context, userID string, upd domainauth.ProfileUpdate) (domainauth.User, error) {
	m.record("UpdateProfile")
	if m.UpdateProfileFunc != nil {
		return m.UpdateProfileFunc(ctx, userID, upd)
	}
	u := m.result().User
	u.ID = userID
	if upd.Fields.Name != "" {
		u.Name = upd.Fields.Name
	}
	if upd.Fields.Email != "" {
		u.Email = upd.Fields.Email
	}
	if upd.Fields.Phone != "" {
		u.Phone = upd.Fields.Phone
	}
	if upd.Fields.Address != "" {
		u.Address = upd.Fields.Address
	}
	if _, ok := upd.Attachment(); ok {
		u.Avatar = "/uploads/" + userID
	}
	return u, nil
}

func (m *MockAuthClient) ForgotPassword(ctx context.Context, email string) error {
	m.record("ForgotPassword")
	if m.ForgotPasswordFunc != nil {
		return m.ForgotPasswordFunc(ctx, email)
	}
	return nil
}

func (m *MockAuthClient) ResetPassword(ctx context.Context, token, password string) error {
	m.record("ResetPassword")
	if m.ResetPasswordFunc != nil {
		return m.ResetPasswordFunc(ctx, token, password)
	}
	return nil
}

// MemorySessionStore is an in-memory session store for unit tests.
type MemorySessionStore struct {
	mu     sync.Mutex
	sess   *domainauth.Session
	writes int
	clears int

	readErr error

	// WriteErr, when set, fails every Write.
	WriteErr error
}

// SetReadErr makes Load fail with err until it is reset with nil.
func (m *MemorySessionStore) SetReadErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readErr = err
}

// NewMemorySessionStore creates an empty store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{}
}

// NewMemorySessionStoreWith creates a store that already holds sess.
func NewMemorySessionStoreWith(sess domainauth.Session) *MemorySessionStore {
	s := &MemorySessionStore{}
	cp := sess
	cp.User = sess.User.Clone()
	s.sess = &cp
	return s
}

func (m *MemorySessionStore) Read(_ context.Context) (*domainauth.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess == nil || !m.sess.Valid() {
		return nil, false
	}
	cp := *m.sess
	cp.User = m.sess.User.Clone()
	return &cp, true
}

func (m *MemorySessionStore) Load(ctx context.Context) (*domainauth.Session, error) {
	m.mu.Lock()
	err := m.readErr
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	sess, _ := m.Read(ctx)
	return sess, nil
}

func (m *MemorySessionStore) Write(_ context.Context, sess domainauth.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.WriteErr != nil {
		return m.WriteErr
	}
	if !sess.Valid() {
		return apperrors.Validation("session requires a token and a valid user")
	}
	cp := sess
	cp.User = sess.User.Clone()
	m.sess = &cp
	m.writes++
	return nil
}

func (m *MemorySessionStore) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sess = nil
	m.clears++
	return nil
}

func (m *MemorySessionStore) Token(_ context.Context) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess == nil {
		return ""
	}
	return m.sess.Token
}

// Writes returns the number of successful writes.
func (m *MemorySessionStore) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// Clears returns the number of Clear calls.
func (m *MemorySessionStore) Clears() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clears
}
