package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/dark4shadow/soft-animal-platform/config"
	"github.com/dark4shadow/soft-animal-platform/internal/adapters/authapi"
	"github.com/dark4shadow/soft-animal-platform/internal/ports"
	"github.com/dark4shadow/soft-animal-platform/internal/service"
)

// AuthConfig contains dependencies for building the auth state.
type AuthConfig struct {
	API    config.APIConfig
	Store  ports.SessionStore
	Logger *slog.Logger
	// HTTPClient overrides the backend client's transport (tests).
	HTTPClient *http.Client
}

// AuthComponents bundles the backend client and the state built on top of it.
type AuthComponents struct {
	Client *authapi.Client
	State  *service.AuthState
}

// EnvelopeFromConfig maps the configured JMESPath expressions onto an authapi.Envelope.
func EnvelopeFromConfig(cfg config.APIConfig) authapi.Envelope {
	return authapi.Envelope{
		LoginUser:     cfg.LoginUserPath,
		LoginToken:    cfg.LoginTokenPath,
		RegisterUser:  cfg.RegisterUserPath,
		RegisterToken: cfg.RegisterTokenPath,
		ProfileUser:   cfg.ProfileUserPath,
		ErrorMessage:  cfg.ErrorMessagePath,
	}
}

// BuildAuthState wires the backend client to the session store and the auth state.
// A 401 on an authenticated call invalidates the state.
func BuildAuthState(cfg AuthConfig) (*AuthComponents, error) {
	if cfg.Store == nil {
		return nil, errors.New("session store is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	client, err := authapi.New(authapi.Options{
		BaseURL:     cfg.API.BaseURL,
		Timeout:     cfg.API.Timeout,
		UserAgent:   cfg.API.UserAgent,
		Envelope:    EnvelopeFromConfig(cfg.API),
		PhoneRegion: cfg.API.PhoneRegion,
		Tokens:      cfg.Store,
		HTTPClient:  cfg.HTTPClient,
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build auth client: %w", err)
	}

	state := service.NewAuthState(service.AuthStateOptions{
		Store:  cfg.Store,
		Client: client,
		Logger: logger,
	})
	client.SetOnUnauthorized(func(ctx context.Context, token string) {
		if invErr := state.Invalidate(ctx, token); invErr != nil {
			logger.WarnContext(ctx, "invalidate after 401 failed", "error", invErr)
		}
	})

	return &AuthComponents{Client: client, State: state}, nil
}
