package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/dark4shadow/soft-animal-platform/config"
	"github.com/dark4shadow/soft-animal-platform/internal/bootstrap"
)

type commandFn func(ctx *commandContext, args []string) error

type command struct {
	name        string
	description string
	run         commandFn
}

type commandContext struct {
	Ctx    context.Context
	Logger *slog.Logger
	Config config.AppConfig
	In     *bufio.Reader
	Out    io.Writer
}

func main() {
	if len(os.Args) < 2 {
		if err := printUsage(os.Stdout); err != nil {
			fmt.Fprintln(os.Stderr, "print usage failed:", err)
		}
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when no command is provided
	}

	cmdName := os.Args[1]
	cmd, ok := commands()[cmdName]
	if !ok {
		_ = writef(os.Stderr, "unknown command %q\n\n", cmdName)
		_ = printUsage(os.Stderr)
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when command is unknown
	}

	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1) //nolint:forbidigo // CLI must signal configuration load failure to shell scripts
	}
	logger := bootstrap.InitLogger(&cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	cmdCtx := &commandContext{
		Ctx:    ctx,
		Logger: logger,
		Config: cfg,
		In:     bufio.NewReader(os.Stdin),
		Out:    os.Stdout,
	}
	runErr := cmd.run(cmdCtx, os.Args[2:])
	stop()
	if runErr != nil {
		logger.ErrorContext(cmdCtx.Ctx, "command failed", "command", cmdName, "error", runErr)
		_ = writef(os.Stderr, "%s: %s\n", cmdName, userMessage(runErr))
		os.Exit(1) //nolint:forbidigo // CLI must propagate command execution failure to callers
	}
}

func commands() map[string]command {
	return map[string]command{
		"login": {
			name:        "login",
			description: "Sign in and store the session",
			run:         runLogin,
		},
		"register": {
			name:        "register",
			description: "Create an account (optionally with an avatar) and sign in",
			run:         runRegister,
		},
		"logout": {
			name:        "logout",
			description: "Sign out and clear the stored session",
			run:         runLogout,
		},
		"whoami": {
			name:        "whoami",
			description: "Show the signed-in user restored from the session store",
			run:         runWhoAmI,
		},
		"profile": {
			name:        "profile",
			description: "Update profile fields and avatar of the signed-in user",
			run:         runProfile,
		},
		"passwd": {
			name:        "passwd",
			description: "Change the signed-in user's password",
			run:         runPasswd,
		},
		"forgot-password": {
			name:        "forgot-password",
			description: "Request a password reset link by email",
			run:         runForgotPassword,
		},
		"reset-password": {
			name:        "reset-password",
			description: "Set a new password with a reset token",
			run:         runResetPassword,
		},
		"session-clear": {
			name:        "session-clear",
			description: "Delete the stored session without contacting the backend",
			run:         runSessionClear,
		},
	}
}

func printUsage(w io.Writer) error {
	if err := writef(w, "Usage: softanimal-cli <command> [flags]\n\n"); err != nil {
		return err
	}
	if err := writef(w, "Available commands:\n"); err != nil {
		return err
	}
	names := make([]string, 0, len(commands()))
	for name := range commands() {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		c := commands()[name]
		if err := writef(w, "  %-18s %s\n", c.name, c.description); err != nil {
			return err
		}
	}
	return nil
}

func writef(w io.Writer, format string, args ...any) error {
	_, err := fmt.Fprintf(w, format, args...)
	return err
}

func writeln(w io.Writer, args ...any) error {
	_, err := fmt.Fprintln(w, args...)
	return err
}
