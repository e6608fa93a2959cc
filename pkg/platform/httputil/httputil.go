// Package httputil writes JSON responses and translates errors into the
// {"error","error_description"} envelope.
package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	"relay/pkg/platform/sentinel"
)

// Error is an error with an explicit HTTP status and client-facing code.
type Error struct {
	Status      int
	Code        string
	Description string
}

func (e *Error) Error() string { return e.Code + ": " + e.Description }

func BadRequest(description string) *Error {
	return &Error{Status: http.StatusBadRequest, Code: "bad_request", Description: description}
}

func Unauthorized(description string) *Error {
	return &Error{Status: http.StatusUnauthorized, Code: "unauthorized", Description: description}
}

func Forbidden(description string) *Error {
	return &Error{Status: http.StatusForbidden, Code: "forbidden", Description: description}
}

// WriteJSON encodes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError maps err to a status and writes the error envelope. Internal
// errors never expose their description.
func WriteError(w http.ResponseWriter, err error) {
	e := classify(err)
	body := map[string]string{"error": e.Code}
	if e.Status < http.StatusInternalServerError && e.Description != "" {
		body["error_description"] = e.Description
	}
	WriteJSON(w, e.Status, body)
}

func classify(err error) *Error {
	var httpErr *Error
	if errors.As(err, &httpErr) {
		return httpErr
	}
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return &Error{Status: http.StatusNotFound, Code: "not_found", Description: err.Error()}
	case errors.Is(err, sentinel.ErrConflict):
		return &Error{Status: http.StatusConflict, Code: "conflict", Description: err.Error()}
	case errors.Is(err, sentinel.ErrInvalidState):
		return &Error{Status: http.StatusBadRequest, Code: "bad_request", Description: err.Error()}
	case errors.Is(err, sentinel.ErrUnavailable):
		return &Error{Status: http.StatusServiceUnavailable, Code: "unavailable"}
	}
	return &Error{Status: http.StatusInternalServerError, Code: "internal_error", Description: err.Error()}
}
