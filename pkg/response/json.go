package response

import (
	"encoding/json"
	"errors"
	"net/http"

	"campus-issue-reporting/pkg/report"
)

type APIResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func JSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func Success(w http.ResponseWriter, statusCode int, message string, data interface{}) {
	resp := APIResponse{
		Status:  "success",
		Message: message,
		Data:    data,
	}
	JSON(w, statusCode, resp)
}

func Error(w http.ResponseWriter, statusCode int, message string, errDetail string) {
	resp := APIResponse{
		Status:  "error",
		Message: message,
		Error:   errDetail,
	}
	JSON(w, statusCode, resp)
}

// FromError maps a domain error to an HTTP status and a message safe to show a client.
// Anything unrecognised is a 500 with a generic message.
func FromError(err error) (int, string) {
	switch {
	case errors.Is(err, report.ErrValidation):
		return http.StatusBadRequest, "Invalid report"
	case errors.Is(err, report.ErrForbidden):
		return http.StatusForbidden, "Forbidden"
	case errors.Is(err, report.ErrNotFound):
		return http.StatusNotFound, "Report not found"
	case errors.Is(err, report.ErrInvalidTransition):
		return http.StatusConflict, "Invalid status transition"
	case errors.Is(err, report.ErrStaleWrite):
		return http.StatusConflict, "Report was modified concurrently, please retry"
	case errors.Is(err, report.ErrDuplicateTrackingCode):
		return http.StatusConflict, "Tracking code already in use"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

// Fail writes err through FromError. Internal errors never leak their detail.
func Fail(w http.ResponseWriter, err error) {
	code, message := FromError(err)
	detail := ""
	if code != http.StatusInternalServerError {
		detail = err.Error()
	}
	Error(w, code, message, detail)
}
