package apiclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrTransport indicates the request never produced a response
	// (connection refused, DNS, timeout)
	ErrTransport = errors.New("backend unreachable")

	// ErrUnauthorized indicates the backend answered 401
	ErrUnauthorized = errors.New("unauthorized")

	// ErrStatus indicates any other non-2xx answer
	ErrStatus = errors.New("backend returned an error status")

	// ErrMalformedResponse indicates a 2xx answer whose body could not be decoded
	ErrMalformedResponse = errors.New("malformed backend response")
)

// Error describes a failed backend call. Message carries the server-provided
// message when there was one; it is empty for transport failures.
type Error struct {
	Method  string
	Path    string
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("%s %s: %v", e.Method, e.Path, e.Err)
	}
	if e.Message != "" {
		return fmt.Sprintf("%s %s: %d %s: %v", e.Method, e.Path, e.Status, e.Message, e.Err)
	}
	return fmt.Sprintf("%s %s: %d: %v", e.Method, e.Path, e.Status, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ServerMessage returns the backend's own message for err, or "" when the
// error did not come from a backend response carrying one.
func ServerMessage(err error) string {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return ""
}

// StatusCode returns the HTTP status behind err, or 0
func StatusCode(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

func statusError(method, path string, status int, body []byte) *Error {
	kind := ErrStatus
	if status == http.StatusUnauthorized {
		kind = ErrUnauthorized
	}
	return &Error{
		Method:  method,
		Path:    path,
		Status:  status,
		Message: extractMessage(body),
		Err:     kind,
	}
}

// extractMessage reads {"message": "..."} and falls back to {"error": "..."}
func extractMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if len(body) == 0 || json.Unmarshal(body, &payload) != nil {
		return ""
	}
	if payload.Message != "" {
		return payload.Message
	}
	return payload.Error
}
