package services

import "errors"

// Sentinel errors the handlers translate into HTTP statuses. Limit
// violations (resume, warnings) are deliberately not here: they surface as a
// successful auto-submit with a termination reason, never as a hard error.
var (
	ErrTestNotFound    = errors.New("test not found")
	ErrAttemptNotFound = errors.New("attempt not found")
	ErrAccessDenied    = errors.New("access denied")
	ErrNotYetOpen      = errors.New("test has not opened yet")
	ErrInvalidState    = errors.New("attempt already completed")
	ErrWindowOpen      = errors.New("deployment window still open")
	ErrValidation      = errors.New("invalid payload")
)
