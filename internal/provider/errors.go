package provider

import (
	"fmt"
	"net/http"
)

// APIError is a non-200 response from an inference endpoint.
type APIError struct {
	API        string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s api error (status %d): %s", e.API, e.StatusCode, e.Body)
}

// Temporary reports whether the same request may succeed later or against
// another provider: rate limits, server errors and rejected credentials.
func (e *APIError) Temporary() bool {
	switch e.StatusCode {
	case http.StatusTooManyRequests, http.StatusUnauthorized, http.StatusForbidden,
		http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}
