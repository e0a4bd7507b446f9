package client

import (
	"encoding/json"
	"net/http"
)

const (
	msgNetwork    = "Network error. Please check your connection."
	msgUnexpected = "An unexpected error occurred."
)

var statusMessages = map[int]string{
	http.StatusBadRequest:          "Bad request. Please check your input.",
	http.StatusUnauthorized:        "Session expired. Please log in again.",
	http.StatusForbidden:           "You do not have permission to perform this action.",
	http.StatusNotFound:            "The requested resource was not found.",
	http.StatusConflict:            "Conflict: This resource already exists.",
	http.StatusUnprocessableEntity: "Validation error. Please check your input.",
	http.StatusTooManyRequests:     "Too many requests. Please slow down.",
	http.StatusInternalServerError: "Server error. Please try again later.",
	http.StatusBadGateway:          "Server is temporarily unavailable.",
	http.StatusServiceUnavailable:  "Service unavailable. Please try again later.",
}

// APIError is a failed call. Status is 0 when the server was never
// reached.
type APIError struct {
	Status  int
	Message string
	Err     error
}

func (e *APIError) Error() string {
	return e.Message
}

func (e *APIError) Unwrap() error {
	return e.Err
}

func networkError(err error) *APIError {
	return &APIError{Message: msgNetwork, Err: err}
}

// errorFromBody picks the first non-empty of message, detail and error
// from a JSON body, then falls back to the status table.
func errorFromBody(status int, body []byte) *APIError {
	var b struct {
		Message string          `json:"message"`
		Detail  json.RawMessage `json:"detail"`
		Error   string          `json:"error"`
	}
	if json.Unmarshal(body, &b) == nil {
		if b.Message != "" {
			return &APIError{Status: status, Message: b.Message}
		}
		if d := detailText(b.Detail); d != "" {
			return &APIError{Status: status, Message: d}
		}
		if b.Error != "" {
			return &APIError{Status: status, Message: b.Error}
		}
	}
	if msg, ok := statusMessages[status]; ok {
		return &APIError{Status: status, Message: msg}
	}
	return &APIError{Status: status, Message: msgUnexpected}
}

// detail is a string or, for validation errors, a list of {msg}.
func detailText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var list []struct {
		Msg string `json:"msg"`
	}
	if json.Unmarshal(raw, &list) == nil && len(list) > 0 {
		return list[0].Msg
	}
	return ""
}
