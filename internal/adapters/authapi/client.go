// Package authapi implements ports.AuthClient against the platform's REST backend.
package authapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/oauth2"

	domainauth "github.com/dark4shadow/soft-animal-platform/internal/domain/auth"
	apperrors "github.com/dark4shadow/soft-animal-platform/internal/errors"
	"github.com/dark4shadow/soft-animal-platform/internal/ports"
)

const (
	defaultTimeout   = 15 * time.Second
	maxResponseBytes = 1 << 20
	defaultRegion    = "UA"
)

var _ ports.AuthClient = (*Client)(nil)

// TokenSource yields the bearer token for authenticated calls.
type TokenSource interface {
	Token(ctx context.Context) string
}

// Options configures a Client.
type Options struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
	Envelope  Envelope
	// PhoneRegion is the default region for numbers without a country code.
	PhoneRegion string
	Tokens      TokenSource
	// OnUnauthorized runs when an authenticated call (other than a credential check) gets 401.
	// It receives the bearer token the rejected request carried.
	OnUnauthorized func(ctx context.Context, token string)
	HTTPClient     *http.Client
	Logger         *slog.Logger
}

// Client is a stateless HTTP client for the /auth endpoints. It never retries.
type Client struct {
	baseURL        string
	userAgent      string
	env            Envelope
	region         string
	tokens         TokenSource
	onUnauthorized func(ctx context.Context, token string)
	http           *http.Client
	logger         *slog.Logger
}

// New creates a Client.
func New(opts Options) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if u, err := url.Parse(base); err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("authapi: invalid base URL %q", opts.BaseURL)
	}

	env := opts.Envelope.withDefaults()
	if err := env.Validate(); err != nil {
		return nil, fmt.Errorf("authapi: %w", err)
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		jar, jarErr := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		if jarErr != nil {
			return nil, fmt.Errorf("authapi: cookie jar: %w", jarErr)
		}
		httpClient = &http.Client{Timeout: timeout, Jar: jar}
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	region := strings.ToUpper(strings.TrimSpace(opts.PhoneRegion))
	if region == "" {
		region = defaultRegion
	}
	ua := strings.TrimSpace(opts.UserAgent)
	if ua == "" {
		ua = "soft-animal-client/1.0"
	}

	return &Client{
		baseURL:        base,
		userAgent:      ua,
		env:            env,
		region:         region,
		tokens:         opts.Tokens,
		onUnauthorized: opts.OnUnauthorized,
		http:           httpClient,
		logger:         logger.With("component", "authapi"),
	}, nil
}

// SetOnUnauthorized replaces the 401 hook. Used to break the construction cycle
// between the client and the state that owns the session.
func (c *Client) SetOnUnauthorized(fn func(ctx context.Context, token string)) {
	c.onUnauthorized = fn
}

// call describes one backend exchange.
type call struct {
	method      string
	path        string
	body        []byte
	contentType string
	// authed attaches the stored bearer token.
	authed bool
	// credentialCheck maps 401/403 to InvalidCredentials instead of NotAuthenticated.
	credentialCheck bool
	// sentToken is the bearer token attached to the request, if any.
	sentToken string
}

// Login exchanges credentials for a token and user. A 401 or 403 is InvalidCredentials.
func (c *Client) Login(ctx context.Context, email, password string) (ports.AuthResult, error) {
	req := loginRequest{Email: strings.TrimSpace(email), Password: password}
	if err := validate(req); err != nil {
		return ports.AuthResult{}, err
	}
	body, contentType, err := encodeJSON(req)
	if err != nil {
		return ports.AuthResult{}, err
	}

	data, err := c.do(ctx, call{
		method:          http.MethodPost,
		path:            "/auth/login",
		body:            body,
		contentType:     contentType,
		credentialCheck: true,
	})
	if err != nil {
		return ports.AuthResult{}, err
	}
	return c.authResult(data, c.env.LoginToken, c.env.LoginUser)
}

// Register creates an account and returns its token and user. The phone number is normalized to E.164 first.
func (c *Client) Register(ctx context.Context, reg domainauth.Registration) (ports.AuthResult, error) {
	phone, err := normalizePhone(reg.Phone, c.region)
	if err != nil {
		return ports.AuthResult{}, err
	}
	req := registerRequest{
		Name:      strings.TrimSpace(reg.Name),
		Email:     strings.TrimSpace(reg.Email),
		Password:  reg.Password,
		Phone:     phone,
		Address:   strings.TrimSpace(reg.Address),
		UserType:  string(reg.UserType),
		ShelterID: strings.TrimSpace(reg.ShelterID),
	}
	if req.UserType == "" {
		req.UserType = string(domainauth.RoleVolunteer)
	}
	if err := validate(req); err != nil {
		return ports.AuthResult{}, err
	}

	var body []byte
	var contentType string
	if reg.Avatar != nil {
		body, contentType, err = encodeMultipart(req, *reg.Avatar)
	} else {
		body, contentType, err = encodeJSON(req)
	}
	if err != nil {
		return ports.AuthResult{}, err
	}

	data, err := c.do(ctx, call{
		method:      http.MethodPost,
		path:        "/auth/register",
		body:        body,
		contentType: contentType,
	})
	if err != nil {
		return ports.AuthResult{}, err
	}
	return c.authResult(data, c.env.RegisterToken, c.env.RegisterUser)
}

// ChangePassword updates the signed-in user's password. A wrong current password is InvalidCredentials.
func (c *Client) ChangePassword(ctx context.Context, currentPassword, newPassword string) error {
	req := passwordChangeRequest{CurrentPassword: currentPassword, NewPassword: newPassword}
	if err := validate(req); err != nil {
		return err
	}
	body, contentType, err := encodeJSON(req)
	if err != nil {
		return err
	}
	_, err = c.do(ctx, call{
		method:          http.MethodPut,
		path:            "/auth/password",
		body:            body,
		contentType:     contentType,
		authed:          true,
		credentialCheck: true,
	})
	return err
}

// UpdateProfile sends fields as JSON, or as multipart when the update carries an attachment.
// The returned record is the backend's canonical user; it must belong to userID.
func (c *Client) UpdateProfile(ctx context.Context, userID string, upd domainauth.ProfileUpdate) (domainauth.User, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domainauth.User{}, apperrors.NotAuthenticated("profile update requires a signed-in user")
	}
	phone, err := normalizePhone(upd.Fields.Phone, c.region)
	if err != nil {
		return domainauth.User{}, err
	}
	req := profileRequest{
		Name:    strings.TrimSpace(upd.Fields.Name),
		Email:   strings.TrimSpace(upd.Fields.Email),
		Phone:   phone,
		Address: strings.TrimSpace(upd.Fields.Address),
	}
	if err := validate(req); err != nil {
		return domainauth.User{}, err
	}

	var body []byte
	var contentType string
	if att, ok := upd.Attachment(); ok {
		body, contentType, err = encodeMultipart(req, att)
	} else {
		body, contentType, err = encodeJSON(req)
	}
	if err != nil {
		return domainauth.User{}, err
	}

	data, err := c.do(ctx, call{
		method:      http.MethodPut,
		path:        "/auth/profile",
		body:        body,
		contentType: contentType,
		authed:      true,
	})
	if err != nil {
		return domainauth.User{}, err
	}

	user, ok := searchUser(c.env.ProfileUser, data)
	if !ok {
		return domainauth.User{}, apperrors.Network(nil, "profile response did not contain a user")
	}
	if user.ID != userID {
		return domainauth.User{}, apperrors.Network(nil, "profile response belongs to a different user")
	}
	return user, nil
}

// ForgotPassword asks the backend to send a reset link to email.
func (c *Client) ForgotPassword(ctx context.Context, email string) error {
	req := forgotPasswordRequest{Email: strings.TrimSpace(email)}
	if err := validate(req); err != nil {
		return err
	}
	body, contentType, err := encodeJSON(req)
	if err != nil {
		return err
	}
	_, err = c.do(ctx, call{
		method:      http.MethodPost,
		path:        "/auth/forgot-password",
		body:        body,
		contentType: contentType,
	})
	return err
}

// ResetPassword sets a new password using the token from the reset link.
func (c *Client) ResetPassword(ctx context.Context, resetToken, password string) error {
	req := resetPasswordRequest{Token: strings.TrimSpace(resetToken), Password: password}
	if err := validate(req); err != nil {
		return err
	}
	body, contentType, err := encodeJSON(req)
	if err != nil {
		return err
	}
	_, err = c.do(ctx, call{
		method:      http.MethodPut,
		path:        "/auth/reset-password/" + url.PathEscape(req.Token),
		body:        body,
		contentType: contentType,
	})
	return err
}

func (c *Client) authResult(data any, tokenExpr, userExpr string) (ports.AuthResult, error) {
	token := searchString(tokenExpr, data)
	user, ok := searchUser(userExpr, data)
	if token == "" || !ok {
		return ports.AuthResult{}, apperrors.Network(nil, "auth response did not contain a token and user")
	}
	return ports.AuthResult{Token: token, User: user}, nil
}

// do performs the exchange and returns the decoded JSON body (nil when empty).
func (c *Client) do(ctx context.Context, cl call) (any, error) {
	req, err := http.NewRequestWithContext(ctx, cl.method, c.baseURL+cl.path, bytes.NewReader(cl.body))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "build request")
	}
	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Request-ID", requestID)
	if cl.contentType != "" {
		req.Header.Set("Content-Type", cl.contentType)
	}
	if cl.authed && c.tokens != nil {
		if tok := c.tokens.Token(ctx); tok != "" {
			(&oauth2.Token{AccessToken: tok, TokenType: "Bearer"}).SetAuthHeader(req)
			cl.sentToken = tok
		}
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.WarnContext(ctx, "auth request failed",
			"method", cl.method, "path", cl.path, "request_id", requestID, "error", err)
		return nil, transportError(ctx, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, transportError(ctx, err)
	}

	c.logger.DebugContext(ctx, "auth request",
		"method", cl.method,
		"path", cl.path,
		"status", resp.StatusCode,
		"request_id", requestID,
		"duration", time.Since(start),
	)

	var data any
	if len(bytes.TrimSpace(raw)) > 0 {
		if jsonErr := json.Unmarshal(raw, &data); jsonErr != nil {
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				return nil, apperrors.Network(jsonErr, "backend returned an unreadable response")
			}
			data = nil
		}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if explicitFailure(data) {
			return nil, c.statusError(ctx, cl, http.StatusBadRequest, data)
		}
		return data, nil
	}
	return nil, c.statusError(ctx, cl, resp.StatusCode, data)
}

func (c *Client) statusError(ctx context.Context, cl call, status int, data any) error {
	msg := searchString(c.env.ErrorMessage, data)

	switch {
	case (status == http.StatusUnauthorized || status == http.StatusForbidden) && cl.credentialCheck:
		if msg == "" {
			msg = "invalid credentials"
		}
		return apperrors.InvalidCredentials(msg)
	case status == http.StatusUnauthorized:
		if cl.authed && cl.sentToken != "" && c.onUnauthorized != nil {
			c.onUnauthorized(ctx, cl.sentToken)
		}
		if msg == "" {
			msg = "session is no longer valid"
		}
		return apperrors.NotAuthenticated(msg)
	case status == http.StatusForbidden:
		if msg == "" {
			msg = "not allowed"
		}
		return apperrors.NotAuthenticated(msg)
	case status >= 400 && status < 500:
		if msg == "" {
			msg = fmt.Sprintf("request rejected (%d)", status)
		}
		return apperrors.Validation(msg)
	default:
		if msg == "" {
			msg = fmt.Sprintf("backend error (%d)", status)
		}
		return apperrors.Network(nil, msg)
	}
}

func transportError(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return apperrors.Wrap(err, apperrors.ErrCodeTimeout, "request timed out")
	case errors.Is(err, context.Canceled):
		return apperrors.Wrap(err, apperrors.ErrCodeCanceled, "request canceled")
	default:
		var netErr interface{ Timeout() bool }
		if errors.As(err, &netErr) && netErr.Timeout() {
			return apperrors.Wrap(err, apperrors.ErrCodeTimeout, "request timed out")
		}
		return apperrors.Network(err, "cannot reach the server")
	}
}
