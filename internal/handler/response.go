package handler

// RESPONSE HELPERS:
// Every JSON endpoint answers through writeJSON / writeError, so the shapes
// are the same everywhere:
//
//	success: the resource itself, or {"message": "..."}
//	failure: {"error": "not_found", "message": "planetary issue not found with id x", "field": "..."}
//
// ERROR MAPPING:
// Services return apperror kinds, never status codes. This file is the only
// place that turns a kind into a status.
//
//	ErrValidation, ErrNoFileSelected → 400
//	ErrUnauthorized                  → 401
//	ErrForbidden                     → 403
//	ErrNotFound                      → 404
//	ErrConflict, ErrConstraint       → 409
//	ErrConfirmationRequired          → 422
//	ErrSubmit                        → 500 with the store message as is
//	ErrAuthRequest, ErrUpload        → 502
//	anything else                    → 500 with a generic message

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/sakif/planet-hub/internal/apperror"
)

// maxJSONBody caps request bodies decoded by decodeJSON.
const maxJSONBody = 1 << 20

// ErrorResponse is the error body of every API endpoint.
type ErrorResponse struct {
	Error   string `json:"error"`           // Machine-readable kind, e.g. "not_found"
	Message string `json:"message"`         // Human-readable description
	Field   string `json:"field,omitempty"` // Offending input, for validation errors
}

// writeJSON sends data with the given status. Headers must be set before
// WriteHeader; anything set afterwards is silently dropped.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are gone already; all we can do is log.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

type errorKind struct {
	sentinel error
	status   int
	name     string
}

// errorKinds is checked in order; the first match wins. Kinds that wrap a
// collaborator's error come first, as that cause may carry a kind of its own.
var errorKinds = []errorKind{
	{apperror.ErrSubmit, http.StatusInternalServerError, "submit_failed"},
	{apperror.ErrAuthRequest, http.StatusBadGateway, "auth_request_failed"},
	{apperror.ErrUpload, http.StatusBadGateway, "upload_failed"},
	{apperror.ErrScoring, http.StatusBadGateway, "scoring_failed"},
	{apperror.ErrValidation, http.StatusBadRequest, "validation_error"},
	{apperror.ErrNoFileSelected, http.StatusBadRequest, "no_file_selected"},
	{apperror.ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
	{apperror.ErrForbidden, http.StatusForbidden, "forbidden"},
	{apperror.ErrNotFound, http.StatusNotFound, "not_found"},
	{apperror.ErrConstraint, http.StatusConflict, "constraint_violation"},
	{apperror.ErrConflict, http.StatusConflict, "conflict"},
	{apperror.ErrConfirmationRequired, http.StatusUnprocessableEntity, "confirmation_required"},
}

// statusOf returns the HTTP status and kind name for err.
func statusOf(err error) (int, string) {
	for _, k := range errorKinds {
		if errors.Is(err, k.sentinel) {
			return k.status, k.name
		}
	}
	return http.StatusInternalServerError, "internal_error"
}

// writeError maps a domain error to its status and writes the standard body.
// Unknown errors are logged and answered with a generic message; their text
// may carry SQL or file paths.
func writeError(w http.ResponseWriter, err error) {
	status, kind := statusOf(err)

	var appErr *apperror.AppError
	if kind == "internal_error" || !errors.As(err, &appErr) {
		slog.Error("unhandled error", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "An internal error occurred",
		})
		return
	}

	writeJSON(w, status, ErrorResponse{
		Error:   kind,
		Message: appErr.Message,
		Field:   appErr.Field,
	})
}

// decodeJSON reads a JSON body into dst. A malformed body is a validation
// error on the field "body".
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperror.ValidationFailed("body", fmt.Sprintf("invalid JSON body: %v", err))
	}
	return nil
}

// queryInt parses an optional integer query parameter.
func queryInt(r *http.Request, key string) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperror.ValidationFailed(key, fmt.Sprintf("%s must be a number", key))
	}
	return n, nil
}

// page reads the limit and offset query parameters.
func page(r *http.Request) (limit, offset int, err error) {
	if limit, err = queryInt(r, "limit"); err != nil {
		return 0, 0, err
	}
	if offset, err = queryInt(r, "offset"); err != nil {
		return 0, 0, err
	}
	return limit, offset, nil
}
