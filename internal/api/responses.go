// Package api provides the HTTP handlers and routing of the work plan service.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// ErrorResponse is the body of every error response.
type ErrorResponse struct {
	Code        string `json:"code"`
	Description string `json:"description"`
	RequestID   string `json:"request_id,omitempty"`
	Tile        string `json:"tile,omitempty"`
}

// Error codes.
const (
	ErrCodeBadRequest    = "BadRequest"
	ErrCodeNotFound      = "NotFound"
	ErrCodeUnprocessable = "UnprocessableTile"
	ErrCodeServerError   = "ServerError"
	ErrCodeUpstreamError = "UpstreamServiceError"
	ErrCodeUnavailable   = "ServiceUnavailable"
)

// WriteJSON writes a JSON response with the given status code and value.
func WriteJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode JSON response",
			slog.String("error", err.Error()),
		)
		return err
	}

	return nil
}

// WriteRawJSON writes an already encoded JSON document.
func WriteRawJSON(w http.ResponseWriter, status int, data []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		slog.Error("failed to write JSON response",
			slog.String("error", err.Error()),
		)
	}
}

// WriteErrorResponse writes an error body.
func WriteErrorResponse(w http.ResponseWriter, status int, resp ErrorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response",
			slog.String("error", err.Error()),
		)
	}
}

// WriteError writes an error response.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	WriteErrorResponse(w, status, ErrorResponse{Code: code, Description: message})
}

// WriteBadRequest writes a 400 Bad Request error response.
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// WriteNotFound writes a 404 Not Found error response.
func WriteNotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// WriteInternalError writes a 500 Internal Server Error response.
func WriteInternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, ErrCodeServerError, message)
}

// WriteInternalErrorWithRequestID writes a 500 response carrying the request id.
func WriteInternalErrorWithRequestID(w http.ResponseWriter, message, requestID string) {
	WriteErrorResponse(w, http.StatusInternalServerError, ErrorResponse{
		Code:        ErrCodeServerError,
		Description: message,
		RequestID:   requestID,
	})
}

// WriteUpstreamError writes a 502 Bad Gateway error for catalog failures.
func WriteUpstreamError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadGateway, ErrCodeUpstreamError, message)
}
