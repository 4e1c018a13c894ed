package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

type Op string

const (
	OpLogin        Op = "login"
	OpRegister     Op = "register"
	OpMe           Op = "me"
	OpMyFiles      Op = "myfiles"
	OpUpload       Op = "upload"
	OpEdit         Op = "edit"
	OpDelete       Op = "delete"
	OpShare        Op = "share"
	OpSharedWithMe Op = "shared-with-me"
	OpSharedByMe   Op = "shared-by-me"
	OpRevoke       Op = "revoke"
	OpAdmin        Op = "admin"
)

var fallbacks = map[Op]string{
	OpLogin:        "Login failed",
	OpRegister:     "Signup failed. Email might exist.",
	OpMe:           "Session check failed",
	OpMyFiles:      "Failed to load files",
	OpUpload:       "Upload failed",
	OpEdit:         "Edit failed",
	OpDelete:       "Delete failed",
	OpShare:        "Sharing failed",
	OpSharedWithMe: "Error loading shared files",
	OpSharedByMe:   "Failed to load shared files",
	OpRevoke:       "Failed to revoke access",
	OpAdmin:        "Failed to load dashboard data",
}

// Fallback is the message shown for op when the server did not provide one.
func Fallback(op Op) string {
	if msg, ok := fallbacks[op]; ok {
		return msg
	}
	return "Request failed"
}

// Error is a failed backend call. Status is 0 when the request never got a
// response.
type Error struct {
	Op      Op
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return Fallback(e.Op)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Message returns the text to show a user for err: the server's message when
// there is one, otherwise the fallback for op.
func Message(err error, op Op) string {
	var apiErr *Error
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return Fallback(op)
}

// MessageOr is Message with a caller-chosen fallback, for actions that share
// an endpoint but not a notification text.
func MessageOr(err error, fallback string) string {
	var apiErr *Error
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return fallback
}

func IsUnauthorized(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized
}

// serverMessage pulls a human message out of an error body. The backend
// uses "error" on most routes and "message" on a few.
func serverMessage(body []byte) string {
	var payload struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	if len(payload.Error) > 0 {
		var s string
		if err := json.Unmarshal(payload.Error, &s); err == nil && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return strings.TrimSpace(payload.Message)
}
