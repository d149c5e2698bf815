package whatsapp

import (
	"errors"
	"strings"
)

// Token value shipped in example .env files; treated as absent.
const placeholderToken = "your_access_token_here"

// UseMock decides whether a send attempt should bypass the live API. The
// substring checks are a heuristic pre-check, not token validation.
func UseMock(accessToken string, force bool) bool {
	return force ||
		accessToken == "" ||
		accessToken == placeholderToken ||
		strings.Contains(accessToken, "expired") ||
		strings.Contains(accessToken, "invalid")
}

// IsExpiredToken reports whether a live-call failure is an expired-session
// rejection, which callers may downgrade to a mock send.
func IsExpiredToken(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.StatusCode == 401 &&
		apiErr.Code == codeExpiredToken &&
		strings.Contains(strings.ToLower(apiErr.Message), "expired")
}
