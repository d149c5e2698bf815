package relay

import "errors"

// Verification failures are distinct so handlers can report retryable
// conditions precisely.
var (
	ErrUserNotFound = errors.New("user not found")
	ErrNoCodeFound  = errors.New("no verification code found")
	ErrInvalidCode  = errors.New("invalid verification code")
	ErrCodeExpired  = errors.New("verification code has expired")
)
