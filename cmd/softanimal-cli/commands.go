package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/dark4shadow/soft-animal-platform/internal/bootstrap"
	domainauth "github.com/dark4shadow/soft-animal-platform/internal/domain/auth"
	apperrors "github.com/dark4shadow/soft-animal-platform/internal/errors"
)

const maxAvatarBytes = 5 << 20

func userMessage(err error) string {
	if apperrors.GetCode(err) == "" {
		return err.Error()
	}
	msg := apperrors.UserMessage(err)
	if field := apperrors.GetField(err); field != "" {
		msg += " (" + field + ")"
	}
	return msg
}

// session holds the opened backend and the restored auth state for one command.
type session struct {
	backend *bootstrap.SessionBackend
	auth    *bootstrap.AuthComponents
}

func openSession(cmdCtx *commandContext) (*session, error) {
	backend, err := bootstrap.OpenSessionStore(cmdCtx.Ctx, bootstrap.SessionBackendConfig{
		Config: &cmdCtx.Config,
		Logger: cmdCtx.Logger,
	})
	if err != nil {
		return nil, err
	}
	auth, err := bootstrap.BuildAuthState(bootstrap.AuthConfig{
		API:    cmdCtx.Config.API,
		Store:  backend.Store,
		Logger: cmdCtx.Logger,
	})
	if err != nil {
		return nil, errors.Join(err, backend.Close())
	}
	auth.State.Init(cmdCtx.Ctx)
	return &session{backend: backend, auth: auth}, nil
}

func withSession(cmdCtx *commandContext, fn func(s *session) error) (err error) {
	s, err := openSession(cmdCtx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.backend.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("close session backend: %w", cerr))
		}
	}()
	return fn(s)
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	return fs
}

func printUser(w io.Writer, u domainauth.User) error {
	if err := writef(w, "Signed in as %s <%s> (%s)\n", u.Name, u.Email, u.UserType); err != nil {
		return err
	}
	if u.ShelterID != "" {
		return writef(w, "Shelter: %s\n", u.ShelterID)
	}
	return nil
}

type loginOptions struct {
	Email string
}

func parseLoginFlags(args []string) (loginOptions, error) {
	fs := newFlagSet("login")
	var opts loginOptions
	fs.StringVar(&opts.Email, "email", "", "Account email (prompted when empty)")
	if err := fs.Parse(args); err != nil {
		return loginOptions{}, err
	}
	return opts, nil
}

func runLogin(cmdCtx *commandContext, args []string) error {
	opts, err := parseLoginFlags(args)
	if err != nil {
		return err
	}
	if opts.Email == "" {
		if opts.Email, err = promptLine(cmdCtx.In, cmdCtx.Out, "Email"); err != nil {
			return err
		}
	}
	password, err := promptPassword(cmdCtx.In, cmdCtx.Out, "Password")
	if err != nil {
		return err
	}

	return withSession(cmdCtx, func(s *session) error {
		u, err := s.auth.State.Login(cmdCtx.Ctx, opts.Email, password)
		if err != nil {
			return err
		}
		return printUser(cmdCtx.Out, u)
	})
}

type registerOptions struct {
	Name      string
	Email     string
	Phone     string
	Address   string
	UserType  string
	ShelterID string
	Avatar    string
}

func parseRegisterFlags(args []string) (registerOptions, error) {
	fs := newFlagSet("register")
	var opts registerOptions
	fs.StringVar(&opts.Name, "name", "", "Display name (required)")
	fs.StringVar(&opts.Email, "email", "", "Account email (required)")
	fs.StringVar(&opts.Phone, "phone", "", "Phone number")
	fs.StringVar(&opts.Address, "address", "", "Postal address")
	fs.StringVar(&opts.UserType, "type", string(domainauth.RoleVolunteer), "Account type: volunteer, shelter or admin")
	fs.StringVar(&opts.ShelterID, "shelter", "", "Shelter id for shelter accounts")
	fs.StringVar(&opts.Avatar, "avatar", "", "Path to an avatar image")
	if err := fs.Parse(args); err != nil {
		return registerOptions{}, err
	}
	if strings.TrimSpace(opts.Name) == "" || strings.TrimSpace(opts.Email) == "" {
		return registerOptions{}, errors.New("--name and --email are required")
	}
	if _, ok := domainauth.ParseRole(opts.UserType); !ok {
		return registerOptions{}, fmt.Errorf("--type must be volunteer, shelter or admin, got %q", opts.UserType)
	}
	return opts, nil
}

func runRegister(cmdCtx *commandContext, args []string) error {
	opts, err := parseRegisterFlags(args)
	if err != nil {
		return err
	}
	role, _ := domainauth.ParseRole(opts.UserType)
	reg := domainauth.Registration{
		Name:      opts.Name,
		Email:     opts.Email,
		Phone:     opts.Phone,
		Address:   opts.Address,
		UserType:  role,
		ShelterID: opts.ShelterID,
	}
	if opts.Avatar != "" {
		att, err := readAttachment(opts.Avatar)
		if err != nil {
			return err
		}
		reg.Avatar = &att
	}
	if reg.Password, err = promptPassword(cmdCtx.In, cmdCtx.Out, "Password"); err != nil {
		return err
	}

	return withSession(cmdCtx, func(s *session) error {
		u, err := s.auth.State.Register(cmdCtx.Ctx, reg)
		if err != nil {
			return err
		}
		return printUser(cmdCtx.Out, u)
	})
}

// readAttachment loads an avatar file, sniffing the content type when the
// extension is unknown.
func readAttachment(path string) (domainauth.Attachment, error) {
	f, err := os.Open(path)
	if err != nil {
		return domainauth.Attachment{}, fmt.Errorf("open avatar: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxAvatarBytes+1))
	if err != nil {
		return domainauth.Attachment{}, fmt.Errorf("read avatar: %w", err)
	}
	if len(data) > maxAvatarBytes {
		return domainauth.Attachment{}, fmt.Errorf("avatar is larger than %d bytes", maxAvatarBytes)
	}

	contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	return domainauth.Attachment{
		FieldName:   "avatar",
		FileName:    filepath.Base(path),
		ContentType: contentType,
		Data:        data,
	}, nil
}

func runLogout(cmdCtx *commandContext, _ []string) error {
	return withSession(cmdCtx, func(s *session) error {
		if !s.auth.State.Snapshot().IsAuthenticated {
			return writeln(cmdCtx.Out, "Not signed in.")
		}
		if err := s.auth.State.Logout(cmdCtx.Ctx); err != nil {
			return err
		}
		return writeln(cmdCtx.Out, "Signed out.")
	})
}

type whoamiOptions struct {
	JSON bool
}

func parseWhoAmIFlags(args []string) (whoamiOptions, error) {
	fs := newFlagSet("whoami")
	var opts whoamiOptions
	fs.BoolVar(&opts.JSON, "json", false, "Print the full snapshot as JSON")
	if err := fs.Parse(args); err != nil {
		return whoamiOptions{}, err
	}
	return opts, nil
}

func runWhoAmI(cmdCtx *commandContext, args []string) error {
	opts, err := parseWhoAmIFlags(args)
	if err != nil {
		return err
	}
	return withSession(cmdCtx, func(s *session) error {
		snap := s.auth.State.Snapshot()
		if opts.JSON {
			enc := json.NewEncoder(cmdCtx.Out)
			enc.SetIndent("", "  ")
			return enc.Encode(snap)
		}
		if snap.CurrentUser == nil {
			return writeln(cmdCtx.Out, "Not signed in.")
		}
		return printUser(cmdCtx.Out, *snap.CurrentUser)
	})
}

type profileOptions struct {
	Fields domainauth.ProfileFields
	Avatar string
}

func parseProfileFlags(args []string) (profileOptions, error) {
	fs := newFlagSet("profile")
	var opts profileOptions
	fs.StringVar(&opts.Fields.Name, "name", "", "New display name")
	fs.StringVar(&opts.Fields.Email, "email", "", "New email")
	fs.StringVar(&opts.Fields.Phone, "phone", "", "New phone number")
	fs.StringVar(&opts.Fields.Address, "address", "", "New postal address")
	fs.StringVar(&opts.Avatar, "avatar", "", "Path to a new avatar image")
	if err := fs.Parse(args); err != nil {
		return profileOptions{}, err
	}
	if opts.Fields == (domainauth.ProfileFields{}) && opts.Avatar == "" {
		return profileOptions{}, errors.New("nothing to update")
	}
	return opts, nil
}

func runProfile(cmdCtx *commandContext, args []string) error {
	opts, err := parseProfileFlags(args)
	if err != nil {
		return err
	}
	upd := domainauth.FieldsUpdate(opts.Fields)
	if opts.Avatar != "" {
		att, err := readAttachment(opts.Avatar)
		if err != nil {
			return err
		}
		upd = domainauth.FieldsWithAttachmentUpdate(opts.Fields, att)
	}

	return withSession(cmdCtx, func(s *session) error {
		u, err := s.auth.State.UpdateProfile(cmdCtx.Ctx, upd)
		if err != nil {
			return err
		}
		return printUser(cmdCtx.Out, u)
	})
}

func runPasswd(cmdCtx *commandContext, _ []string) error {
	return withSession(cmdCtx, func(s *session) error {
		if !s.auth.State.Snapshot().IsAuthenticated {
			return apperrors.NotAuthenticated("sign in to change your password")
		}
		current, err := promptPassword(cmdCtx.In, cmdCtx.Out, "Current password")
		if err != nil {
			return err
		}
		next, err := promptPassword(cmdCtx.In, cmdCtx.Out, "New password")
		if err != nil {
			return err
		}
		again, err := promptPassword(cmdCtx.In, cmdCtx.Out, "Repeat new password")
		if err != nil {
			return err
		}
		if next != again {
			return apperrors.ValidationField("newPassword", "passwords do not match")
		}
		if err := s.auth.State.ChangePassword(cmdCtx.Ctx, current, next); err != nil {
			return err
		}
		return writeln(cmdCtx.Out, "Password changed.")
	})
}

func runForgotPassword(cmdCtx *commandContext, args []string) error {
	fs := newFlagSet("forgot-password")
	email := fs.String("email", "", "Account email (prompted when empty)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	addr := *email
	if addr == "" {
		var err error
		if addr, err = promptLine(cmdCtx.In, cmdCtx.Out, "Email"); err != nil {
			return err
		}
	}
	return withSession(cmdCtx, func(s *session) error {
		if err := s.auth.Client.ForgotPassword(cmdCtx.Ctx, addr); err != nil {
			return err
		}
		return writeln(cmdCtx.Out, "If the address is registered, a reset link is on its way.")
	})
}

func runResetPassword(cmdCtx *commandContext, args []string) error {
	fs := newFlagSet("reset-password")
	token := fs.String("token", "", "Reset token from the email (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*token) == "" {
		return errors.New("--token is required")
	}
	password, err := promptPassword(cmdCtx.In, cmdCtx.Out, "New password")
	if err != nil {
		return err
	}
	return withSession(cmdCtx, func(s *session) error {
		if err := s.auth.Client.ResetPassword(cmdCtx.Ctx, *token, password); err != nil {
			return err
		}
		return writeln(cmdCtx.Out, "Password reset. You can sign in now.")
	})
}

func runSessionClear(cmdCtx *commandContext, args []string) error {
	fs := newFlagSet("session-clear")
	yes := fs.Bool("yes", false, "Skip the confirmation prompt")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if !*yes {
		if err := confirm(cmdCtx.In, cmdCtx.Out, "Delete the stored session"); err != nil {
			return err
		}
	}

	backend, err := bootstrap.OpenSessionStore(cmdCtx.Ctx, bootstrap.SessionBackendConfig{
		Config: &cmdCtx.Config,
		Logger: cmdCtx.Logger,
	})
	if err != nil {
		return err
	}
	defer backend.Close()

	if err := backend.Store.Clear(cmdCtx.Ctx); err != nil {
		return err
	}
	return writeln(cmdCtx.Out, "Session cleared.")
}
