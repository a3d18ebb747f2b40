package httpx

import (
	"bytes"
	"embed"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"

	domainauth "github.com/dark4shadow/soft-animal-platform/internal/domain/auth"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// Page identifiers used by templates.
const (
	PageHome     = "home"
	PageLogin    = "login"
	PageAccount  = "account"
	PageShelter  = "shelter"
	PageAdmin    = "admin"
	PageLoading  = "loading"
	PageNotFound = "not-found"
)

type pageData struct {
	Page        string
	Snapshot    domainauth.Snapshot
	RedirectURI string
	// Refresh is the URL the loading page reloads.
	Refresh string
}

func (p pageData) User() *domainauth.User { return p.Snapshot.CurrentUser }

// TemplateRenderer renders the HTML pages.
type TemplateRenderer struct {
	t      *template.Template
	logger *slog.Logger
}

// NewTemplateRenderer parses the embedded templates, or the ones in fsys when given.
func NewTemplateRenderer(fsys fs.FS, logger *slog.Logger) (*TemplateRenderer, error) {
	if fsys == nil {
		sub, err := fs.Sub(templateFS, "templates")
		if err != nil {
			return nil, err
		}
		fsys = sub
	}
	if logger == nil {
		logger = slog.Default()
	}

	t, err := template.New("root").Funcs(template.FuncMap{
		"roleLabel": roleLabel,
	}).ParseFS(fsys, "*.tmpl")
	if err != nil {
		logger.Error("template parsing failed", slog.Any("error", err))
		return nil, err
	}
	return &TemplateRenderer{t: t, logger: logger}, nil
}

// Render executes the layout for data and writes it with status.
func (r *TemplateRenderer) Render(w http.ResponseWriter, _ *http.Request, status int, data pageData) {
	var buf bytes.Buffer
	if err := r.t.ExecuteTemplate(&buf, "layout", data); err != nil {
		r.logger.Error("template execution failed",
			slog.String("page", data.Page),
			slog.Any("error", err),
		)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if _, err := buf.WriteTo(w); err != nil {
		r.logger.Debug("failed to write rendered page", slog.String("page", data.Page), slog.Any("error", err))
	}
}

func roleLabel(r domainauth.Role) string {
	switch r {
	case domainauth.RoleShelter:
		return "Shelter"
	case domainauth.RoleAdmin:
		return "Administrator"
	default:
		return "Volunteer"
	}
}
