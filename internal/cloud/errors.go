// Package cloud is an HTTP client for the device-data cloud service, with
// automatic retry, rate limiting, and error classification into the
// internal/sync taxonomy.
package cloud

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/greengrass-edge/shadow-sync/internal/sync"
)

// Sentinel errors for HTTP status code classification. Use errors.Is(err,
// cloud.ErrNotFound) to check.
var (
	ErrBadRequest  = errors.New("cloud: bad request")
	ErrUnauth      = errors.New("cloud: unauthorized")
	ErrForbidden   = errors.New("cloud: forbidden")
	ErrNotFound    = errors.New("cloud: not found")
	ErrConflict    = errors.New("cloud: conflict")
	ErrThrottled   = errors.New("cloud: throttled")
	ErrServerError = errors.New("cloud: server error")
)

// CloudError wraps a sentinel error with HTTP status code, request ID, and
// the service error message body for debugging.
type CloudError struct {
	StatusCode int
	RequestID  string
	Message    string
	Err        error // sentinel, for errors.Is()
}

func (e *CloudError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("cloud: HTTP %d (request-id: %s): %s", e.StatusCode, e.RequestID, e.Message)
	}

	return fmt.Sprintf("cloud: HTTP %d: %s", e.StatusCode, e.Message)
}

func (e *CloudError) Unwrap() error {
	return e.Err
}

// classifyStatus maps an HTTP status code to a sentinel error. Returns nil
// for 2xx success codes.
func classifyStatus(code int) error {
	switch code {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized:
		return ErrUnauth
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	case http.StatusTooManyRequests:
		return ErrThrottled
	default:
		if code >= http.StatusInternalServerError {
			return ErrServerError
		}

		return nil
	}
}

// isRetryable reports whether the given HTTP status code should be retried.
func isRetryable(code int) bool {
	switch code {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// ClassifySync maps a *CloudError (or any error wrapping one of this
// package's sentinels) onto the internal/sync error taxonomy, so the
// executor can drive the same Retryer/Classify machinery it uses for local
// errors.
func ClassifySync(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound):
		return sync.NotFound(err.Error())
	case errors.Is(err, ErrConflict):
		return sync.Conflict(err.Error(), err)
	case errors.Is(err, ErrUnauth), errors.Is(err, ErrForbidden):
		return sync.Unauthorized(err.Error(), err)
	case errors.Is(err, ErrThrottled), errors.Is(err, ErrServerError):
		return sync.Retryable(err.Error(), err)
	case errors.Is(err, ErrBadRequest):
		return sync.InvalidArguments(err.Error())
	default:
		return sync.Retryable(err.Error(), err)
	}
}
