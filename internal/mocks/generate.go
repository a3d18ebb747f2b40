// Package mocks provides gomock implementations of the session and auth ports.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	kv := mocks.NewMockKeyValueStore(ctrl)
//	kv.EXPECT().Get(gomock.Any(), "token").Return(nil, false, nil)
package mocks

// MockKeyValueStore: Get, SetAll, DeleteAll
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=kv_store_mock.go github.com/dark4shadow/soft-animal-platform/internal/ports KeyValueStore

// MockAuthClient: Login, Register, ChangePassword, UpdateProfile, ForgotPassword, ResetPassword
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=auth_client_mock.go github.com/dark4shadow/soft-animal-platform/internal/ports AuthClient

// MockSessionStore: Read, Write, Clear, Token
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=session_store_mock.go github.com/dark4shadow/soft-animal-platform/internal/ports SessionStore
