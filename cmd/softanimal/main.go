package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/dark4shadow/soft-animal-platform/config"
	"github.com/dark4shadow/soft-animal-platform/internal/bootstrap"
	"github.com/dark4shadow/soft-animal-platform/internal/service"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		slog.ErrorContext(ctx, "load config", "error", err)
		os.Exit(1) //nolint:forbidigo // Main entrypoint should exit with non-zero status on fatal errors.
	}
	logger := bootstrap.InitLogger(&cfg)

	if err := run(ctx, &cfg, logger); err != nil {
		logger.ErrorContext(ctx, "fatal error", "error", err)
		stop()
		os.Exit(1) //nolint:forbidigo // Main entrypoint should exit with non-zero status on fatal errors.
	}
}

func run(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) error {
	logger.InfoContext(ctx, "starting soft animal client",
		"api_base_url", cfg.API.BaseURL,
		"session_backend", cfg.Session.Backend,
		"http_addr", cfg.HTTP.Addr,
	)

	backend, err := bootstrap.OpenSessionStore(ctx, bootstrap.SessionBackendConfig{Config: cfg, Logger: logger})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := backend.Close(); cerr != nil {
			logger.ErrorContext(ctx, "close session backend failed", "error", cerr)
		}
	}()

	auth, err := bootstrap.BuildAuthState(bootstrap.AuthConfig{
		API:    cfg.API,
		Store:  backend.Store,
		Logger: logger,
	})
	if err != nil {
		return err
	}

	snap := auth.State.Init(ctx)
	logger.InfoContext(ctx, "session restored",
		"authenticated", snap.IsAuthenticated,
		"phase", snap.Phase,
	)

	server, err := bootstrap.NewHTTPServer(bootstrap.HTTPServerConfig{
		Config:   &cfg.HTTP,
		State:    auth.State,
		Recovery: auth.Client,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return bootstrap.ServeHTTP(gctx, server, cfg.HTTP.ShutdownTimeout, logger)
	})
	g.Go(func() error {
		watchAuthState(gctx, auth.State, logger)
		return nil
	})
	return g.Wait()
}

// watchAuthState logs phase transitions until ctx is done.
func watchAuthState(ctx context.Context, state *service.AuthState, logger *slog.Logger) {
	updates, unsubscribe := state.Subscribe()
	defer unsubscribe()

	var last string
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-updates:
			if !ok {
				return
			}
			if phase := string(snap.Phase); phase != last {
				last = phase
				attrs := []any{"phase", phase}
				if snap.CurrentUser != nil {
					attrs = append(attrs, "user_id", snap.CurrentUser.ID, "role", snap.CurrentUser.UserType)
				}
				logger.InfoContext(ctx, "auth state changed", attrs...)
			}
		}
	}
}
