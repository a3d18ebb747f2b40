package ports

// Package ports defines interfaces (hexagonal ports) for session and auth behavior.
// Implementations live in internal/adapters; orchestration in internal/service.

import (
	"context"

	domainauth "github.com/dark4shadow/soft-animal-platform/internal/domain/auth"
)

// KeyValueStore is the durable key/value backend under the session store.
// Keys are scoped by the implementation (origin scope / key prefix).
type KeyValueStore interface {
	// Get returns the value for key; ok is false when the key is absent.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	// SetAll writes every entry or none of them.
	SetAll(ctx context.Context, entries map[string][]byte) error
	// DeleteAll removes the given keys. Missing keys are not an error.
	DeleteAll(ctx context.Context, keys ...string) error
}

// SessionStore persists the token/user pair across restarts.
type SessionStore interface {
	// Read returns the stored session, or (nil, false) when there is none or it is unusable.
	Read(ctx context.Context) (*domainauth.Session, bool)
	Write(ctx context.Context, sess domainauth.Session) error
	Clear(ctx context.Context) error
	// Token returns the stored bearer token or "".
	Token(ctx context.Context) string
}

// SessionLoader is implemented by stores that can tell "no session" apart
// from "storage unavailable".
type SessionLoader interface {
	// Load returns (nil, nil) when there is no usable session.
	Load(ctx context.Context) (*domainauth.Session, error)
}

// AuthResult is a successful login or registration response.
type AuthResult struct {
	Token string
	User  domainauth.User
}

// AuthClient is the typed boundary to the backend auth endpoints.
type AuthClient interface {
	Login(ctx context.Context, email, password string) (AuthResult, error)
	Register(ctx context.Context, reg domainauth.Registration) (AuthResult, error)
	ChangePassword(ctx context.Context, currentPassword, newPassword string) error
	UpdateProfile(ctx context.Context, userID string, upd domainauth.ProfileUpdate) (domainauth.User, error)
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, resetToken, password string) error
}
