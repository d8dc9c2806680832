package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/planet-hub/internal/apperror"
	"github.com/sakif/planet-hub/internal/auth"
	"github.com/sakif/planet-hub/internal/workflow"
)

// multipartOverhead is allowed on top of the document size for the
// multipart framing and any small form fields.
const multipartOverhead = 1 << 20

// DraftHandler drives the submission workflow from the research form.
//
// A draft is created when the form opens, receives the document (and is
// scored right away unless ?score=false), and is submitted with the typed
// metadata. Every response carries the draft snapshot so the page can show
// the current state, score or failure reason.
type DraftHandler struct {
	engine   *workflow.Engine
	maxBytes int64
	logger   *slog.Logger
}

func NewDraftHandler(engine *workflow.Engine, maxDocumentBytes int64, logger *slog.Logger) *DraftHandler {
	return &DraftHandler{engine: engine, maxBytes: maxDocumentBytes, logger: logger}
}

// HandleCreate
//
// HTTP: POST /api/drafts   → 201 snapshot in state "idle"
func (h *DraftHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	session, _ := auth.SessionFromContext(r.Context())
	snap, err := h.engine.Start(session)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

// HandleGet
//
// HTTP: GET /api/drafts/{id}
func (h *DraftHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	session, _ := auth.SessionFromContext(r.Context())
	snap, err := h.engine.Get(session, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// HandleUpload stores the document and, by default, scores it.
//
// HTTP: POST /api/drafts/{id}/document[?score=false]
// Body: multipart/form-data with the PDF in field "file"
//
// A scoring failure still answers 200: the snapshot is in "scoring_failed"
// with the reason, and the page offers to submit without a score.
func (h *DraftHandler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	session, _ := auth.SessionFromContext(r.Context())
	id := chi.URLParam(r, "id")

	score := true
	if raw := r.URL.Query().Get("score"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, apperror.ValidationFailed("score", "score must be true or false"))
			return
		}
		score = v
	}

	doc, cleanup, err := h.readDocument(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	defer cleanup()

	var snap workflow.Snapshot
	if score {
		snap, err = h.engine.UploadAndScore(r.Context(), session, id, doc)
	} else {
		snap, err = h.engine.Upload(r.Context(), session, id, doc)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// readDocument pulls the "file" part out of the multipart body. A request
// without the part yields an empty Document, which the engine rejects as
// "no file selected".
func (h *DraftHandler) readDocument(w http.ResponseWriter, r *http.Request) (workflow.Document, func(), error) {
	noop := func() {}
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+multipartOverhead)

	file, header, err := r.FormFile("file")
	var tooLarge *http.MaxBytesError
	switch {
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
		return workflow.Document{}, noop, nil
	case errors.As(err, &tooLarge):
		return workflow.Document{}, noop, apperror.ValidationFailed("file",
			fmt.Sprintf("file is larger than %d bytes", h.maxBytes))
	case err != nil:
		return workflow.Document{}, noop, apperror.ValidationFailed("file", "could not read uploaded file")
	}

	cleanup := func() {
		file.Close()
		if r.MultipartForm != nil {
			r.MultipartForm.RemoveAll()
		}
	}
	return workflow.Document{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Body:        file,
	}, cleanup, nil
}

// HandleScore (re)scores the uploaded document.
//
// HTTP: POST /api/drafts/{id}/score
func (h *DraftHandler) HandleScore(w http.ResponseWriter, r *http.Request) {
	session, _ := auth.SessionFromContext(r.Context())
	snap, err := h.engine.Score(r.Context(), session, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

type submitRequest struct {
	workflow.Form
	workflow.SubmitOptions
}

// HandleSubmit stores the research.
//
// HTTP: POST /api/drafts/{id}/submit
// Body: {"title","summary","tags","categoryId","issueId","allowUnscored"}
//
// Without a score and without allowUnscored the answer is 422
// "confirmation_required"; the page asks the user and resends with
// allowUnscored=true.
func (h *DraftHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	session, _ := auth.SessionFromContext(r.Context())
	snap, err := h.engine.Submit(r.Context(), session, chi.URLParam(r, "id"), req.Form, req.SubmitOptions)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

// HandleDiscard
//
// HTTP: DELETE /api/drafts/{id}   → 204
func (h *DraftHandler) HandleDiscard(w http.ResponseWriter, r *http.Request) {
	session, _ := auth.SessionFromContext(r.Context())
	if err := h.engine.Discard(session, chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
