package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	apperrors "github.com/uptime-rewards/internal/errors"
	"github.com/uptime-rewards/internal/logging"
	"github.com/uptime-rewards/internal/types"
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

// respondServiceError maps any error to its categorized status and body.
// System errors are logged and their cause is not echoed to the client.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	catErr := apperrors.Categorize(err)
	if apperrors.IsSystemError(catErr) {
		logging.FromContext(r.Context()).WithError(err).Error("Request failed")
	}
	if catErr.Category == apperrors.CategoryRateLimit {
		if after, ok := catErr.Details["retryAfter"].(int); ok {
			w.Header().Set("Retry-After", strconv.Itoa(after))
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(catErr.StatusCode)
	json.NewEncoder(w).Encode(ErrorResponse{Error: *catErr.ToServiceError()})
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// parseJSONBody parses JSON request body. An empty body leaves v untouched.
func parseJSONBody(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return nil
	}
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil && err != io.EOF {
		return apperrors.NewInvalidParameterError("body", err.Error())
	}
	return nil
}
