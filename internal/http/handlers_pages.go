package httpx

import "net/http"

// PageHandlers renders the HTML views.
type PageHandlers struct {
	State SnapshotSource
	Pages *TemplateRenderer
}

// Page renders a page with the current snapshot.
func (h *PageHandlers) Page(page string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.Pages.Render(w, r, http.StatusOK, pageData{Page: page, Snapshot: h.State.Snapshot()})
	})
}

// Login renders the sign-in form, or sends signed-in users on to redirect_uri.
// GET /login?redirect_uri=<optional_redirect>.
func (h *PageHandlers) Login(w http.ResponseWriter, r *http.Request) {
	redirectURI := safeRedirectPath(r.URL.Query().Get("redirect_uri"))
	snap := h.State.Snapshot()
	if !snap.Loading && snap.IsAuthenticated {
		http.Redirect(w, r, redirectURI, http.StatusSeeOther)
		return
	}
	h.Pages.Render(w, r, http.StatusOK, pageData{Page: PageLogin, Snapshot: snap, RedirectURI: redirectURI})
}

// NotFound renders the 404 page.
func (h *PageHandlers) NotFound(w http.ResponseWriter, r *http.Request) {
	h.Pages.Render(w, r, http.StatusNotFound, pageData{Page: PageNotFound, Snapshot: h.State.Snapshot()})
}
