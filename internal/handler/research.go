package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/planet-hub/internal/auth"
	"github.com/sakif/planet-hub/internal/service"
)

// ResearchHandler serves stored research submissions.
type ResearchHandler struct {
	research   *service.ResearchService
	engagement *service.EngagementService
	logger     *slog.Logger
}

func NewResearchHandler(research *service.ResearchService, engagement *service.EngagementService, logger *slog.Logger) *ResearchHandler {
	return &ResearchHandler{research: research, engagement: engagement, logger: logger}
}

// HandleList
//
// HTTP: GET /api/research?issue=<id>&category=<id>&user=<id>&sort=newest|stars
func (h *ResearchHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := page(r)
	if err != nil {
		writeError(w, err)
		return
	}
	q := r.URL.Query()
	subs, err := h.research.List(r.Context(), service.ResearchQuery{
		IssueID:    q.Get("issue"),
		CategoryID: q.Get("category"),
		UserID:     q.Get("user"),
		Sort:       q.Get("sort"),
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, subs)
}

// HandleGet
//
// HTTP: GET /api/research/{id}
func (h *ResearchHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	detail, err := h.research.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// HandleStar
//
// HTTP: POST /api/research/{id}/star   → {"stars": 7}
func (h *ResearchHandler) HandleStar(w http.ResponseWriter, r *http.Request) {
	session, _ := auth.SessionFromContext(r.Context())
	n, err := h.engagement.StarSubmission(r.Context(), session, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"stars": n})
}

type ratingRequest struct {
	Value int `json:"value"`
}

// HandleRate stores the caller's rating, replacing an earlier one.
//
// HTTP: POST /api/research/{id}/rating   {"value": 4}
func (h *ResearchHandler) HandleRate(w http.ResponseWriter, r *http.Request) {
	var req ratingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	session, _ := auth.SessionFromContext(r.Context())
	rating, err := h.engagement.Rate(r.Context(), session, chi.URLParam(r, "id"), req.Value)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rating)
}
