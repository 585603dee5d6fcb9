package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/defi-portfolio-tracker/internal/types"
)

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error types.ServiceError `json:"error"`
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, statusCode int, code, message string, details map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := ErrorResponse{
		Error: types.ServiceError{
			Code:    code,
			Message: message,
			Details: details,
		},
	}

	json.NewEncoder(w).Encode(response)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// parseJSONBody parses JSON request body.
func parseJSONBody(r *http.Request, v interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}

// Common error codes
const (
	ErrCodeInvalidInput       = "INVALID_INPUT"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeInternalError      = "INTERNAL_ERROR"
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
)

// mapServiceError maps service errors to HTTP status codes.
func mapServiceError(err error) (int, string, string) {
	var serviceErr *types.ServiceError
	if errors.As(err, &serviceErr) {
		switch serviceErr.Code {
		case "INVALID_ADDRESS_FORMAT", "INVALID_PERIOD", "INVALID_DATE_RANGE", "INVALID_FEE_SETTINGS":
			return http.StatusBadRequest, ErrCodeInvalidInput, serviceErr.Message
		case "SNAPSHOT_NOT_FOUND", "NAV_NOT_FOUND":
			return http.StatusNotFound, ErrCodeNotFound, serviceErr.Message
		case "REFRESH_FAILED", "UPSTREAM_ERROR":
			return http.StatusServiceUnavailable, ErrCodeServiceUnavailable, serviceErr.Message
		case "UNAUTHORIZED":
			return http.StatusUnauthorized, ErrCodeUnauthorized, serviceErr.Message
		default:
			return http.StatusInternalServerError, ErrCodeInternalError, "An internal error occurred"
		}
	}

	return http.StatusInternalServerError, ErrCodeInternalError, "An internal error occurred"
}

// respondServiceError maps and sends a service error
func respondServiceError(w http.ResponseWriter, err error) {
	status, code, message := mapServiceError(err)
	respondError(w, status, code, message, nil)
}
