package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/dysonlink/internal/device"
)

// Error codes carried in the "code" field of error responses.
const (
	ErrCodeBadRequest  = "bad_request"
	ErrCodeNotFound    = "not_found"
	ErrCodeConflict    = "conflict"
	ErrCodeInternal    = "internal_error"
	ErrCodeValidation  = "validation_error"
	ErrCodeDeviceError = "device_error"
)

// Error is both the JSON error body and an error value handlers can return
// through writeError.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string { return e.Code + ": " + e.Message }

func badRequest(msg string) *Error {
	return &Error{Status: http.StatusBadRequest, Code: ErrCodeBadRequest, Message: msg}
}

func notFound(msg string) *Error {
	return &Error{Status: http.StatusNotFound, Code: ErrCodeNotFound, Message: msg}
}

func internalError(msg string) *Error {
	return &Error{Status: http.StatusInternalServerError, Code: ErrCodeInternal, Message: msg}
}

// asAPIError maps err onto a response. Device package sentinels get their
// own statuses; anything unrecognised is treated as an appliance transport
// failure.
func asAPIError(err error) *Error {
	var apiErr *Error
	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.Is(err, device.ErrDeviceNotFound):
		return notFound("device not found")
	case errors.Is(err, device.ErrNotConnected):
		return &Error{Status: http.StatusConflict, Code: ErrCodeConflict, Message: "device not connected"}
	case errors.Is(err, device.ErrInvalidMode),
		errors.Is(err, device.ErrInvalidFanSpeed),
		errors.Is(err, device.ErrInvalidControl):
		return &Error{Status: http.StatusBadRequest, Code: ErrCodeValidation, Message: err.Error()}
	default:
		return &Error{Status: http.StatusBadGateway, Code: ErrCodeDeviceError, Message: "device command failed"}
	}
}

// writeJSON encodes v with status. A nil v writes headers only.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	//nolint:errcheck // client may already be gone
	json.NewEncoder(w).Encode(v)
}

// writeError sends the response asAPIError picks for err.
func writeError(w http.ResponseWriter, err error) {
	e := asAPIError(err)
	writeJSON(w, e.Status, e)
}
