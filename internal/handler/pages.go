// Package handler turns HTTP requests into service calls.
//
// HANDLER RESPONSIBILITIES:
//  1. parse the request (URL params, query, JSON or multipart body)
//  2. read the session the auth middleware attached, and pass it on
//  3. call one service or workflow method
//  4. write JSON (API) or render a template (pages)
//
// Handlers hold no business rules; an error from below is mapped to a
// status in one place (response.go) and never crashes a page.
package handler

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/planet-hub/internal/apperror"
	"github.com/sakif/planet-hub/internal/auth"
	"github.com/sakif/planet-hub/internal/model"
	"github.com/sakif/planet-hub/internal/service"
)

// pageNames are the page templates; each is parsed together with base.html,
// which calls {{template "content" .}}.
var pageNames = []string{
	"home", "categories", "category", "issue", "research",
	"launchpad", "launchpad_new", "launchpad_newissue", "login", "myspace",
	"starboard", "notfound", "error",
}

// PageServices are the services the pages read from.
type PageServices struct {
	Catalog   *service.CatalogService
	Issues    *service.IssueService
	Research  *service.ResearchService
	Dashboard *service.DashboardService
}

// PageHandler renders the server-side pages.
//
// Templates are parsed once at startup (expensive) and executed per request
// (cheap). A template that fails to parse stops the server from starting.
type PageHandler struct {
	pages         map[string]*template.Template
	svc           PageServices
	googleEnabled bool
	logger        *slog.Logger
}

// view is what every page template receives.
type view struct {
	Title         string
	Session       *model.Session
	GoogleEnabled bool
	Content       any
}

var templateFuncs = template.FuncMap{
	"score": func(s *float64) string {
		if s == nil {
			return "not scored"
		}
		return fmt.Sprintf("%.0f", *s)
	},
	"rating": func(r *float64) string {
		if r == nil {
			return "–"
		}
		return fmt.Sprintf("%.1f", *r)
	},
	"date": func(t time.Time) string {
		return t.Format("2 Jan 2006")
	},
	"join": func(tags model.Tags) string {
		return strings.Join(tags, ", ")
	},
}

// NewPageHandler parses every page from files (base.html plus <page>.html).
func NewPageHandler(files fs.FS, svc PageServices, googleEnabled bool, logger *slog.Logger) (*PageHandler, error) {
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		tmpl, err := template.New(name).Funcs(templateFuncs).ParseFS(files, "base.html", name+".html")
		if err != nil {
			return nil, fmt.Errorf("handler: parsing page %s: %w", name, err)
		}
		pages[name] = tmpl
	}
	return &PageHandler{pages: pages, svc: svc, googleEnabled: googleEnabled, logger: logger}, nil
}

// render executes the page into a buffer first, so a template error can
// still become a clean 500 instead of half a page.
func (h *PageHandler) render(w http.ResponseWriter, r *http.Request, status int, name, title string, content any) {
	v := view{Title: title, GoogleEnabled: h.googleEnabled, Content: content}
	if s, ok := auth.SessionFromContext(r.Context()); ok {
		v.Session = &s
	}

	var buf bytes.Buffer
	if err := h.pages[name].ExecuteTemplate(&buf, "base", v); err != nil {
		h.logger.Error("failed to render template",
			slog.String("page", name),
			slog.String("error", err.Error()),
		)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

// renderError shows the not-found page for ErrNotFound and the generic error
// page for everything else.
func (h *PageHandler) renderError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, apperror.ErrNotFound) {
		h.render(w, r, http.StatusNotFound, "notfound", "Not found", nil)
		return
	}
	h.logger.Error("page failed", slog.String("path", r.URL.Path), slog.String("error", err.Error()))
	h.render(w, r, http.StatusInternalServerError, "error", "Something went wrong", nil)
}

// requireSession redirects anonymous visitors to /login.
func requireSession(w http.ResponseWriter, r *http.Request) (model.Session, bool) {
	s, ok := auth.SessionFromContext(r.Context())
	if !ok {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
	}
	return s, ok
}

// HandleHome
//
// HTTP: GET /
func (h *PageHandler) HandleHome(w http.ResponseWriter, r *http.Request) {
	cats, err := h.svc.Catalog.ListCategories(r.Context())
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	recent, err := h.svc.Research.List(r.Context(), service.ResearchQuery{Limit: 6})
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, "home", "The Planet Hub", map[string]any{
		"Categories": cats,
		"Recent":     recent,
	})
}

// HandleCategories
//
// HTTP: GET /planetary-issues
func (h *PageHandler) HandleCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := h.svc.Catalog.ListCategories(r.Context())
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, "categories", "Planetary issues", cats)
}

// HandleCategory
//
// HTTP: GET /planetary-issues/{code}
func (h *PageHandler) HandleCategory(w http.ResponseWriter, r *http.Request) {
	v, err := h.svc.Catalog.Category(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, "category", v.Category.Name, v)
}

// HandleIssue
//
// HTTP: GET /issues/{id}
func (h *PageHandler) HandleIssue(w http.ResponseWriter, r *http.Request) {
	d, err := h.svc.Issues.Detail(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, "issue", d.Issue.UniqueCode+" · "+d.Issue.Title, d)
}

// HandleResearch shows one submission. An unknown id renders the research
// page's own not-found state with a 404, not the generic error page.
//
// HTTP: GET /research/{id}
func (h *PageHandler) HandleResearch(w http.ResponseWriter, r *http.Request) {
	d, err := h.svc.Research.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, apperror.ErrNotFound) {
		h.render(w, r, http.StatusNotFound, "research", "Research not found", nil)
		return
	}
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, "research", d.Submission.Title, d)
}

// HandleLaunchpad is the signed-in hub linking to the issue and research
// forms.
//
// HTTP: GET /launchpad   (redirects to /login without a session)
func (h *PageHandler) HandleLaunchpad(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireSession(w, r); !ok {
		return
	}
	h.render(w, r, http.StatusOK, "launchpad", "Launch Pad", nil)
}

// HandleNewResearch renders the submission form.
//
// HTTP: GET /launchpad/new[?issue=<id>]
func (h *PageHandler) HandleNewResearch(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireSession(w, r); !ok {
		return
	}
	picker, err := h.svc.Catalog.Picker(r.Context())
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, "launchpad_new", "Submit research", map[string]any{
		"Picker":   picker,
		"Selected": r.URL.Query().Get("issue"),
	})
}

// HandleNewIssue renders the issue form, which posts to /api/issues.
//
// HTTP: GET /launchpad/newissue
func (h *PageHandler) HandleNewIssue(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireSession(w, r); !ok {
		return
	}
	cats, err := h.svc.Catalog.ListCategories(r.Context())
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, "launchpad_newissue", "New planetary issue", cats)
}

// HandleLogin serves both /login and /signup; signing up is signing in
// for the first time.
func (h *PageHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	signup := strings.HasPrefix(r.URL.Path, "/signup")
	title := "Sign in"
	if signup {
		title = "Create your account"
	}
	h.render(w, r, http.StatusOK, "login", title, map[string]any{
		"Signup": signup,
		"Error":  r.URL.Query().Get("error"),
	})
}

// HandleMySpace
//
// HTTP: GET /myspace   (redirects to /login without a session)
func (h *PageHandler) HandleMySpace(w http.ResponseWriter, r *http.Request) {
	session, ok := requireSession(w, r)
	if !ok {
		return
	}
	d, err := h.svc.Dashboard.Dashboard(r.Context(), session)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, "myspace", "My Space", d)
}

// HandleStarboard
//
// HTTP: GET /starboard[?window=week|month|all]
func (h *PageHandler) HandleStarboard(w http.ResponseWriter, r *http.Request) {
	window := strings.ToLower(r.URL.Query().Get("window"))
	if window != service.WindowWeek && window != service.WindowMonth {
		window = service.WindowAll
	}
	entries, err := h.svc.Dashboard.Leaderboard(r.Context(), window, 0)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, "starboard", "Starboard", map[string]any{
		"Window":  window,
		"Entries": entries,
	})
}

// HandleNotFound is the router's fallback for unknown pages.
func (h *PageHandler) HandleNotFound(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusNotFound, "notfound", "Not found", nil)
}
