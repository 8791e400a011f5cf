package browser

import (
	"errors"
	"fmt"
)

var (
	errNotStarted = errors.New("browser session not started")
	errClosed     = errors.New("browser session closed")
	errNoBinary   = errors.New("no browser binary found")
)

// LaunchError means the browser process could not be started or attached to.
type LaunchError struct {
	Err error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("failed to initialize browser driver: %v", e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

type AuthReason string

const (
	AuthTimeout    AuthReason = "timeout waiting for logged-in page"
	AuthNavigation AuthReason = "login page unavailable"
	AuthThrottled  AuthReason = "request budget exhausted"
)

type AuthError struct {
	Reason AuthReason
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err == nil {
		return string(e.Reason)
	}
	return fmt.Sprintf("%s: %v", e.Reason, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

type SearchError struct {
	Err error
}

func (e *SearchError) Error() string {
	return e.Err.Error()
}

func (e *SearchError) Unwrap() error { return e.Err }
