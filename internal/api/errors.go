package api

import (
	"errors"
	"fmt"
	"strings"
)

// ErrBadSecret indicates the claim/login call rejected the password.
// Uploaded objects remain on the server in an unclaimed state; the caller
// must re-submit explicitly.
var ErrBadSecret = errors.New("secret rejected by server")

// APIError carries the HTTP status and response body of a failed API call.
type APIError struct {
	StatusCode int
	Method     string
	Path       string
	Body       string
}

func (e *APIError) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	return fmt.Sprintf("%s %s returned %d: %s", e.Method, e.Path, e.StatusCode, body)
}

// IsAuthError checks whether an error indicates a rejected secret or token.
func IsAuthError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrBadSecret) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 401 || apiErr.StatusCode == 403
	}
	return strings.Contains(strings.ToLower(err.Error()), "unauthorized")
}
