package httpx

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	domainauth "github.com/dark4shadow/soft-animal-platform/internal/domain/auth"
	apperrors "github.com/dark4shadow/soft-animal-platform/internal/errors"
)

const maxUploadBytes = 6 << 20

// AuthStateInterface is the slice of service.AuthState the handlers use.
type AuthStateInterface interface {
	SnapshotSource
	Login(ctx context.Context, email, password string) (domainauth.User, error)
	Register(ctx context.Context, reg domainauth.Registration) (domainauth.User, error)
	Logout(ctx context.Context) error
	UpdateProfile(ctx context.Context, upd domainauth.ProfileUpdate) (domainauth.User, error)
	ChangePassword(ctx context.Context, currentPassword, newPassword string) error
}

// PasswordRecovery sends reset links and applies resets. It needs no session.
type PasswordRecovery interface {
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, resetToken, password string) error
}

// AuthHandlers provides HTTP handlers for authentication operations.
type AuthHandlers struct {
	State    AuthStateInterface
	Recovery PasswordRecovery
	Logger   *slog.Logger
}

func (h *AuthHandlers) logger() *slog.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

type userResponse struct {
	User domainauth.User `json:"user"`
}

// Status returns the current snapshot.
// GET /auth/status.
func (h *AuthHandlers) Status(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	WriteJSON(w, http.StatusOK, h.State.Snapshot())
}

type loginBody struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login signs in with email and password.
// POST /auth/login.
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	var body loginBody
	if !DecodeJSON(w, r, &body) {
		return
	}
	u, err := h.State.Login(r.Context(), body.Email, body.Password)
	if err != nil {
		h.fail(w, r, "login", err)
		return
	}
	WriteJSON(w, http.StatusOK, userResponse{User: u})
}

type registerBody struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	Phone     string `json:"phone"`
	Address   string `json:"address"`
	UserType  string `json:"userType"`
	ShelterID string `json:"shelterId"`
}

func (b registerBody) registration() domainauth.Registration {
	return domainauth.Registration{
		Name:      b.Name,
		Email:     b.Email,
		Password:  b.Password,
		Phone:     b.Phone,
		Address:   b.Address,
		UserType:  domainauth.Role(strings.ToLower(strings.TrimSpace(b.UserType))),
		ShelterID: b.ShelterID,
	}
}

// Register creates an account from JSON or a multipart form with an optional avatar.
// POST /auth/register.
func (h *AuthHandlers) Register(w http.ResponseWriter, r *http.Request) {
	var reg domainauth.Registration
	if isMultipart(r) {
		form, att, ok := h.readForm(w, r)
		if !ok {
			return
		}
		reg = registerBody{
			Name:      form("name"),
			Email:     form("email"),
			Password:  form("password"),
			Phone:     form("phone"),
			Address:   form("address"),
			UserType:  form("userType"),
			ShelterID: form("shelterId"),
		}.registration()
		reg.Avatar = att
	} else {
		var body registerBody
		if !DecodeJSON(w, r, &body) {
			return
		}
		reg = body.registration()
	}

	u, err := h.State.Register(r.Context(), reg)
	if err != nil {
		h.fail(w, r, "register", err)
		return
	}
	WriteJSON(w, http.StatusCreated, userResponse{User: u})
}

// Logout clears the session.
// POST /auth/logout.
func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.State.Logout(r.Context()); err != nil {
		// The in-memory state is already anonymous; storage cleanup failures are only logged.
		h.logger().WarnContext(r.Context(), "logout storage cleanup failed", "error", err)
	}
	w.WriteHeader(http.StatusNoContent)
}

// UpdateProfile updates profile fields, with an avatar when sent as multipart.
// PUT /auth/profile.
func (h *AuthHandlers) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var upd domainauth.ProfileUpdate
	if isMultipart(r) {
		form, att, ok := h.readForm(w, r)
		if !ok {
			return
		}
		fields := domainauth.ProfileFields{
			Name:    form("name"),
			Email:   form("email"),
			Phone:   form("phone"),
			Address: form("address"),
		}
		if att != nil {
			upd = domainauth.FieldsWithAttachmentUpdate(fields, *att)
		} else {
			upd = domainauth.FieldsUpdate(fields)
		}
	} else {
		var fields domainauth.ProfileFields
		if !DecodeJSON(w, r, &fields) {
			return
		}
		upd = domainauth.FieldsUpdate(fields)
	}

	u, err := h.State.UpdateProfile(r.Context(), upd)
	if err != nil {
		h.fail(w, r, "update_profile", err)
		return
	}
	WriteJSON(w, http.StatusOK, userResponse{User: u})
}

type passwordBody struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// ChangePassword changes the signed-in user's password.
// PUT /auth/password.
func (h *AuthHandlers) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var body passwordBody
	if !DecodeJSON(w, r, &body) {
		return
	}
	if err := h.State.ChangePassword(r.Context(), body.CurrentPassword, body.NewPassword); err != nil {
		h.fail(w, r, "change_password", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type forgotBody struct {
	Email string `json:"email"`
}

// ForgotPassword asks the backend to send a reset link.
// POST /auth/forgot-password.
func (h *AuthHandlers) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var body forgotBody
	if !DecodeJSON(w, r, &body) {
		return
	}
	if err := h.Recovery.ForgotPassword(r.Context(), body.Email); err != nil {
		h.fail(w, r, "forgot_password", err)
		return
	}
	WriteJSON(w, http.StatusAccepted, map[string]string{
		"message": "If the address is registered, a reset link is on its way.",
	})
}

type resetBody struct {
	Password string `json:"password"`
}

// ResetPassword sets a new password using the emailed token.
// PUT /auth/reset-password/{token}.
func (h *AuthHandlers) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var body resetBody
	if !DecodeJSON(w, r, &body) {
		return
	}
	if err := h.Recovery.ResetPassword(r.Context(), r.PathValue("token"), body.Password); err != nil {
		h.fail(w, r, "reset_password", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandlers) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	level := slog.LevelInfo
	if apperrors.IsInternal(err) || apperrors.GetCode(err) == "" {
		level = slog.LevelError
	}
	h.logger().Log(r.Context(), level, "auth operation failed",
		"op", op, "code", apperrors.GetCode(err), "error", err)
	WriteAppError(w, err)
}

func isMultipart(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mt == "multipart/form-data"
}

// readForm parses a multipart body and returns a field getter plus the optional avatar.
func (h *AuthHandlers) readForm(w http.ResponseWriter, r *http.Request) (func(string) string, *domainauth.Attachment, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_form", Err: err})
		return nil, nil, false
	}
	form := func(key string) string { return r.FormValue(key) }

	file, hdr, err := r.FormFile("avatar")
	if errors.Is(err, http.ErrMissingFile) {
		return form, nil, true
	}
	if err != nil {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_form", Err: err})
		return nil, nil, false
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_form", Err: err})
		return nil, nil, false
	}
	return form, &domainauth.Attachment{
		FieldName:   "avatar",
		FileName:    hdr.Filename,
		ContentType: hdr.Header.Get("Content-Type"),
		Data:        data,
	}, true
}
