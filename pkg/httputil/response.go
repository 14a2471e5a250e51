package httputil

import (
	"encoding/json"
	"net/http"

	"github.com/platinummonkey/potkeeper/pkg/apperr"
	"github.com/platinummonkey/potkeeper/pkg/observability"
)

// Body is a JSON object response.
type Body map[string]interface{}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// WriteOK writes a 200 response with "success": true merged into body.
func WriteOK(w http.ResponseWriter, body Body) error {
	return WriteOKStatus(w, http.StatusOK, body)
}

// WriteCreated writes a 201 response with "success": true merged into body.
func WriteCreated(w http.ResponseWriter, body Body) error {
	return WriteOKStatus(w, http.StatusCreated, body)
}

// WriteOKStatus writes a success envelope with an explicit status.
func WriteOKStatus(w http.ResponseWriter, status int, body Body) error {
	if body == nil {
		body = Body{}
	}
	body["success"] = true
	return WriteJSON(w, status, body)
}

// WriteErrorMessage writes a JSON error response with a custom message
func WriteErrorMessage(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

// WriteAppError maps err to a status code by its kind. Internal errors are
// logged with their cause and reported with a generic message.
func WriteAppError(w http.ResponseWriter, r *http.Request, logger *observability.Logger, err error) {
	kind := apperr.KindOf(err)
	if kind == apperr.Internal {
		observability.FromContextOr(r.Context(), logger).
			WithError(err).
			WithField("method", r.Method).
			WithField("path", r.URL.Path).
			Error("request failed")
	}
	WriteErrorMessage(w, kind.HTTPStatus(), apperr.Message(err))
}

// WriteBadRequest writes a bad request error (400)
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusBadRequest, message)
}

// WriteUnauthorized writes an unauthorized error (401)
func WriteUnauthorized(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusUnauthorized, message)
}

// WriteForbidden writes a forbidden error (403)
func WriteForbidden(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusForbidden, message)
}

// WriteNotFoundError writes a not found error response (404 Not Found)
func WriteNotFoundError(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusNotFound, message)
}

// WriteTooManyRequests writes a rate limit error (429)
func WriteTooManyRequests(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusTooManyRequests, message)
}

// WriteInternalError writes a 500 without exposing the cause.
func WriteInternalError(w http.ResponseWriter) {
	WriteErrorMessage(w, http.StatusInternalServerError, "internal error")
}

// WriteHTML writes an HTML page.
func WriteHTML(w http.ResponseWriter, status int, page []byte) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	w.Write(page)
}
