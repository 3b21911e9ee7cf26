package apiserver

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/moolen/ferry/internal/logging"
)

// Error codes used in JSON error bodies.
const (
	CodeNotFound         = "NOT_FOUND"
	CodeMethodNotAllowed = "METHOD_NOT_ALLOWED"
	CodeInternal         = "INTERNAL_ERROR"
)

// ErrorResponse is the body of every error answer.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// WriteJSON writes v as the JSON body with the given status.
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.GetLogger("apiserver").Debug("Failed to encode response: %v", err)
	}
}

// WriteError writes an ErrorResponse.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	WriteJSON(w, status, ErrorResponse{Error: code, Message: message})
}

// InternalError logs err and answers 500 without exposing it to the client.
func InternalError(w http.ResponseWriter, r *http.Request, err error) {
	logging.GetLogger("apiserver").WithContext(r.Context()).ErrorWithFields("request failed",
		logging.Field("method", r.Method),
		logging.Field("path", r.URL.Path),
		logging.Field("error", err.Error()),
	)
	WriteError(w, http.StatusInternalServerError, CodeInternal, "Internal server error")
}

// handleNotFound handles 404 responses
func handleNotFound(w http.ResponseWriter, r *http.Request) {
	WriteError(w, http.StatusNotFound, CodeNotFound, fmt.Sprintf("Endpoint not found: %s", r.URL.Path))
}

// handleMethodNotAllowed handles 405 responses
func handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	WriteError(w, http.StatusMethodNotAllowed, CodeMethodNotAllowed,
		fmt.Sprintf("Method %s not allowed for %s", r.Method, r.URL.Path))
}
