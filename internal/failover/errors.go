package failover

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/athenahq/athena/internal/provider"
)

// IsRetryable reports whether err should move the request on to the next
// model: temporary API errors and network failures. Cancellation is never
// retryable.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *provider.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// ExhaustedError is returned when every model in the chain failed.
type ExhaustedError struct {
	Attempted []string
	Last      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("all models exhausted (attempted: %s): %v", strings.Join(e.Attempted, ", "), e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }
