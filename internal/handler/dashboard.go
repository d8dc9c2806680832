package handler

import (
	"net/http"

	"github.com/sakif/planet-hub/internal/auth"
	"github.com/sakif/planet-hub/internal/service"
)

type DashboardHandler struct {
	dashboard *service.DashboardService
}

func NewDashboardHandler(dashboard *service.DashboardService) *DashboardHandler {
	return &DashboardHandler{dashboard: dashboard}
}

// HandleDashboard
//
// HTTP: GET /api/dashboard   (RequireAuth)
func (h *DashboardHandler) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	session, _ := auth.SessionFromContext(r.Context())
	d, err := h.dashboard.Dashboard(r.Context(), session)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// HandleSavedTheories
//
// HTTP: GET /api/saved-theories?limit=20&offset=0   (RequireAuth)
func (h *DashboardHandler) HandleSavedTheories(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := page(r)
	if err != nil {
		writeError(w, err)
		return
	}
	session, _ := auth.SessionFromContext(r.Context())
	theories, err := h.dashboard.SavedTheories(r.Context(), session, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, theories)
}

// HandleLeaderboard
//
// HTTP: GET /api/leaderboard?window=week|month|all&limit=10
func (h *DashboardHandler) HandleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, err)
		return
	}
	entries, err := h.dashboard.Leaderboard(r.Context(), r.URL.Query().Get("window"), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
