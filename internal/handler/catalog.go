package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/planet-hub/internal/auth"
	"github.com/sakif/planet-hub/internal/service"
)

// CatalogHandler serves categories and planetary issues.
type CatalogHandler struct {
	catalog    *service.CatalogService
	issues     *service.IssueService
	engagement *service.EngagementService
	logger     *slog.Logger
}

func NewCatalogHandler(
	catalog *service.CatalogService,
	issues *service.IssueService,
	engagement *service.EngagementService,
	logger *slog.Logger,
) *CatalogHandler {
	return &CatalogHandler{catalog: catalog, issues: issues, engagement: engagement, logger: logger}
}

// HandleListCategories
//
// HTTP: GET /api/categories
func (h *CatalogHandler) HandleListCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := h.catalog.ListCategories(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cats)
}

// HandleCategory returns a category and its issues.
//
// HTTP: GET /api/categories/{code}   e.g. /api/categories/wtr
func (h *CatalogHandler) HandleCategory(w http.ResponseWriter, r *http.Request) {
	view, err := h.catalog.Category(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// HandleListIssues
//
// HTTP: GET /api/issues?category=<id>&sort=newest|stars&limit=20&offset=0
func (h *CatalogHandler) HandleListIssues(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := page(r)
	if err != nil {
		writeError(w, err)
		return
	}
	q := r.URL.Query()
	issues, err := h.issues.List(r.Context(), service.IssueQuery{
		CategoryID: q.Get("category"),
		Sort:       q.Get("sort"),
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, issues)
}

// HandleCreateIssue files a new issue for the signed-in user.
//
// HTTP: POST /api/issues   {"categoryId": "...", "title": "...", "description": "..."}
// Response: 201 with the issue, including its code (e.g. "WTR001")
func (h *CatalogHandler) HandleCreateIssue(w http.ResponseWriter, r *http.Request) {
	var in service.CreateIssueInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}
	session, _ := auth.SessionFromContext(r.Context())
	issue, err := h.issues.Create(r.Context(), session, in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, issue)
}

// HandleIssue returns the issue with its category and research.
//
// HTTP: GET /api/issues/{id}
func (h *CatalogHandler) HandleIssue(w http.ResponseWriter, r *http.Request) {
	detail, err := h.issues.Detail(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// HandleStarIssue
//
// HTTP: POST /api/issues/{id}/star   → {"stars": 4}
func (h *CatalogHandler) HandleStarIssue(w http.ResponseWriter, r *http.Request) {
	session, _ := auth.SessionFromContext(r.Context())
	n, err := h.engagement.StarIssue(r.Context(), session, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"stars": n})
}

// HandlePledge
//
// HTTP: POST /api/issues/{id}/pledge   → {"pledges": 2}
func (h *CatalogHandler) HandlePledge(w http.ResponseWriter, r *http.Request) {
	session, _ := auth.SessionFromContext(r.Context())
	n, err := h.engagement.Pledge(r.Context(), session, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"pledges": n})
}
