package httputil

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/ignite/kpi-rollup/internal/pkg/logger"
)

// ErrorResponse is the error envelope for every API error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// JSON writes data with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("httputil: JSON encode failed", "error", err)
	}
}

// OK writes a 200 response with the given data.
func OK(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, data)
}

// Accepted writes a 202 response, used for work that continues after the
// request returns.
func Accepted(w http.ResponseWriter, data any) {
	JSON(w, http.StatusAccepted, data)
}

// Error writes an error envelope with a machine readable code.
func Error(w http.ResponseWriter, status int, code, message string) {
	JSON(w, status, ErrorResponse{Error: message, Code: code})
}

// BadRequest writes a 400 error.
func BadRequest(w http.ResponseWriter, message string) {
	Error(w, http.StatusBadRequest, "bad_request", message)
}

// InternalError logs err and writes a generic 500 so internals never leak.
func InternalError(w http.ResponseWriter, err error) {
	logger.Error("httputil: internal error", "error", err)
	Error(w, http.StatusInternalServerError, "internal", "internal server error")
}

// Decode reads a JSON body into dst. It writes a 400 and returns false on
// malformed input. An empty body leaves dst untouched.
func Decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		BadRequest(w, "invalid JSON: "+err.Error())
		return false
	}
	return true
}
