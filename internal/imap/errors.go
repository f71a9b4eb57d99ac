package imap

import (
	"errors"
	"fmt"
)

// ErrNotConnected is returned by folder-scoped operations after the
// underlying transport has been lost or the connection logged out.
var ErrNotConnected = errors.New("imap: not connected")

// ErrIdleUnsupported is returned by Watch when the server did not
// advertise the IDLE capability.
var ErrIdleUnsupported = errors.New("imap: server does not support IDLE")

// AuthError indicates the server rejected the credentials at login.
// No session is created; the error is surfaced to the caller as-is.
type AuthError struct {
	Email string
	Err   error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("imap: authentication failed for %s: %v", e.Email, e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// IsAuthError reports whether err is an authentication failure.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}
