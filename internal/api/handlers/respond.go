package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/isdelr/inkwell-be/internal/auth"
	"github.com/isdelr/inkwell-be/internal/services"
	"github.com/rs/zerolog/log"
)

// maxBodyBytes bounds JSON request bodies. Base64 inflates images by a third,
// so this leaves room for the largest accepted upload.
const maxBodyBytes = 16 << 20

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
	Field string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func writeMessage(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorBody{Error: msg, Code: code})
}

// writeError maps service errors onto HTTP statuses. Anything unrecognised
// is logged and reported as a generic 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *services.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: verr.Message, Code: verr.Code, Field: verr.Field})
	case errors.Is(err, services.ErrInvalidCredentials):
		writeMessage(w, http.StatusUnauthorized, "invalid_credentials", "No active account found with the given credentials.")
	case errors.Is(err, services.ErrPermissionDenied):
		writeMessage(w, http.StatusForbidden, "permission_denied", "You do not have permission to perform this action.")
	case errors.Is(err, services.ErrNotFound):
		writeMessage(w, http.StatusNotFound, "not_found", "Not found.")
	default:
		log.Error().Err(err).
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("Request failed")
		writeMessage(w, http.StatusInternalServerError, "server_error", "An unexpected error occurred.")
	}
}

// decodeJSON reads the request body into dst, answering 400 itself when the
// body is not valid JSON.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooBig *http.MaxBytesError
		switch {
		case errors.As(err, &tooBig):
			writeMessage(w, http.StatusRequestEntityTooLarge, "too_large", "Request body too large.")
		case errors.Is(err, io.EOF):
			writeMessage(w, http.StatusBadRequest, "parse_error", "Request body is empty.")
		default:
			writeMessage(w, http.StatusBadRequest, "parse_error", "Invalid request body.")
		}
		return false
	}
	return true
}

// idParam parses the {id} route parameter. Malformed ids answer 404, the
// same as ids that do not exist.
func idParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeMessage(w, http.StatusNotFound, "not_found", "Not found.")
		return 0, false
	}
	return id, true
}

// currentUser returns the claims the auth middleware put in the context.
func currentUser(w http.ResponseWriter, r *http.Request) (*auth.Claims, bool) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		log.Error().Str("path", r.URL.Path).Msg("Could not retrieve user claims from context")
		writeMessage(w, http.StatusUnauthorized, "not_authenticated", "Authentication credentials were not provided.")
		return nil, false
	}
	return claims, true
}
