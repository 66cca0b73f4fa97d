package services

import (
	"errors"
	"fmt"

	"github.com/khabaroff/shop-admin-console/src/apiclient"
)

// Sentinel errors for explicit error handling
// These errors allow callers to distinguish between different failure modes
// using errors.Is() instead of string matching

var (
	// ErrInvalidLoginResponse indicates a 2xx login answer without admin or token
	ErrInvalidLoginResponse = errors.New("invalid login response")

	// ErrNotAuthenticated indicates an operation that needs a session ran without one
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrNotificationNotFound indicates the id is not in the local cache
	ErrNotificationNotFound = errors.New("notification not found")

	// ErrConfirmFailed indicates the backend did not confirm a read-state change
	ErrConfirmFailed = errors.New("read state not confirmed by backend")
)

// Fallback messages shown when the backend did not provide one
const (
	msgLoginFailed          = "Failed to login"
	msgProfileFailed        = "Failed to fetch profile"
	msgChangePasswordFailed = "Failed to change password"
	msgForgotPasswordFailed = "Failed to send reset link"
	msgResetPasswordFailed  = "Failed to reset password"
)

// OpError is what session operations return. Message is safe to show to the
// operator as is; Err keeps the underlying cause for logs and errors.Is.
type OpError struct {
	Op      string
	Message string
	Err     error
}

func (e *OpError) Error() string {
	return e.Message
}

func (e *OpError) Unwrap() error {
	return e.Err
}

// newOpError resolves the display message: server-provided first, then the
// per-operation fallback
func newOpError(op, fallback string, err error) *OpError {
	msg := apiclient.ServerMessage(err)
	if msg == "" {
		msg = fallback
	}
	return &OpError{Op: op, Message: msg, Err: err}
}

// DisplayMessage returns the operator-facing message for any error
func DisplayMessage(err error, fallback string) string {
	var opErr *OpError
	if errors.As(err, &opErr) {
		return opErr.Message
	}
	if msg := apiclient.ServerMessage(err); msg != "" {
		return msg
	}
	return fallback
}

func wrapConfirm(err error) error {
	return fmt.Errorf("%w: %w", ErrConfirmFailed, err)
}
