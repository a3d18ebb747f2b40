package httpx

import (
	"log/slog"
	"net/http"

	domainauth "github.com/dark4shadow/soft-animal-platform/internal/domain/auth"
	"github.com/dark4shadow/soft-animal-platform/internal/guard"
)

// RouterServices holds everything the HTTP router needs.
type RouterServices struct {
	State    AuthStateInterface
	Recovery PasswordRecovery
	// Pages is optional; the embedded templates are used when nil.
	Pages  *TemplateRenderer
	Logger *slog.Logger
}

// NewRouter creates the local web surface: JSON auth endpoints plus guarded pages.
func NewRouter(services RouterServices) (http.Handler, error) {
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}
	pages := services.Pages
	if pages == nil {
		var err error
		if pages, err = NewTemplateRenderer(nil, logger); err != nil {
			return nil, err
		}
	}

	mux := http.NewServeMux()
	mux.Handle("GET /healthz", http.HandlerFunc(healthHandler))
	mux.Handle("HEAD /healthz", http.HandlerFunc(healthHandler))

	registerAuthRoutes(mux, &AuthHandlers{State: services.State, Recovery: services.Recovery, Logger: logger})
	registerPageRoutes(mux, &PageHandlers{State: services.State, Pages: pages}, services.State)

	return Recover(logger)(Logging(logger)(mux)), nil
}

func registerAuthRoutes(mux *http.ServeMux, h *AuthHandlers) {
	mux.HandleFunc("GET /auth/status", h.Status)
	mux.HandleFunc("POST /auth/login", h.Login)
	mux.HandleFunc("POST /auth/register", h.Register)
	mux.HandleFunc("POST /auth/logout", h.Logout)
	mux.HandleFunc("PUT /auth/profile", h.UpdateProfile)
	mux.HandleFunc("PUT /auth/password", h.ChangePassword)
	mux.HandleFunc("POST /auth/forgot-password", h.ForgotPassword)
	mux.HandleFunc("PUT /auth/reset-password/{token}", h.ResetPassword)
}

func registerPageRoutes(mux *http.ServeMux, h *PageHandlers, state SnapshotSource) {
	protect := func(role *domainauth.Role, page string) http.Handler {
		return RequireRole(state, role, h.Pages)(h.Page(page))
	}

	mux.Handle("GET /{$}", h.Page(PageHome))
	mux.HandleFunc("GET /login", h.Login)
	mux.Handle("GET /account", protect(nil, PageAccount))
	mux.Handle("GET /shelter/dashboard", protect(guard.Role(domainauth.RoleShelter), PageShelter))
	mux.Handle("GET /admin", protect(guard.Role(domainauth.RoleAdmin), PageAdmin))
	mux.HandleFunc("GET /", h.NotFound)
}
