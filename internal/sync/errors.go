package sync

import (
	"errors"
	"fmt"
)

// Sentinel errors for the error taxonomy. Use errors.Is to
// classify an error returned from any sync operation.
var (
	// ErrInvalidArguments covers bad thing/shadow names, malformed JSON, and
	// size/depth overruns. Surfaced to the caller; never retried.
	ErrInvalidArguments = errors.New("sync: invalid arguments")

	// ErrVersionConflict means the update's expected version did not match
	// the stored version. Surfaced locally; the cloud-side variant triggers
	// a FullShadowSync.
	ErrVersionConflict = errors.New("sync: version conflict")

	// ErrConflict means the cloud reported the version as stale. Handled the
	// same way as ErrVersionConflict on the cloud side.
	ErrConflict = errors.New("sync: cloud conflict")

	// ErrResourceNotFound means the requested shadow does not exist. Delete
	// operations treat this as success.
	ErrResourceNotFound = errors.New("sync: resource not found")

	// ErrUnauthorized means the caller lacks permission for the requested
	// operation. Never retried.
	ErrUnauthorized = errors.New("sync: unauthorized")

	// ErrRetryable covers transient network/transport/throttling failures.
	// The Retryer handles these with exponential backoff.
	ErrRetryable = errors.New("sync: retryable error")

	// ErrFatal covers store failures, migration failures, and configuration
	// corruption. Surfaced; may terminate the component.
	ErrFatal = errors.New("sync: fatal error")

	// ErrInterrupted signals cancellation; it propagates to the caller
	// without retry.
	ErrInterrupted = errors.New("sync: interrupted")

	// ErrUnknownShadow means the sync record for an identity is stale or
	// missing where one was expected. Handled like ErrConflict.
	ErrUnknownShadow = errors.New("sync: unknown shadow")

	// ErrServiceError means the capacity gate reported "exceeded" and the
	// write was rejected before it reached the store. Recovery is
	// automatic once the gate clears.
	ErrServiceError = errors.New("sync: service error")

	// ErrPayloadTooLarge means a document exceeded the configured
	// per-shadow size ceiling.
	ErrPayloadTooLarge = errors.New("sync: payload too large")
)

// TaggedError wraps a sentinel from the taxonomy above with a human-readable
// message and optional underlying cause, the way graph.GraphError wraps HTTP
// status sentinels for the cloud client.
type TaggedError struct {
	Sentinel error
	Message  string
	Cause    error
}

func (e *TaggedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Sentinel, e.Message, e.Cause)
	}

	return fmt.Sprintf("%s: %s", e.Sentinel, e.Message)
}

func (e *TaggedError) Unwrap() error {
	return e.Sentinel
}

// newTagged constructs a TaggedError for the given sentinel.
func newTagged(sentinel error, message string, cause error) *TaggedError {
	return &TaggedError{Sentinel: sentinel, Message: message, Cause: cause}
}

// InvalidArguments builds an ErrInvalidArguments-tagged error.
func InvalidArguments(message string) error {
	return newTagged(ErrInvalidArguments, message, nil)
}

// VersionConflict builds an ErrVersionConflict-tagged error.
func VersionConflict(message string) error {
	return newTagged(ErrVersionConflict, message, nil)
}

// NotFound builds an ErrResourceNotFound-tagged error.
func NotFound(message string) error {
	return newTagged(ErrResourceNotFound, message, nil)
}

// Fatal wraps cause as an ErrFatal-tagged error.
func Fatal(message string, cause error) error {
	return newTagged(ErrFatal, message, cause)
}

// Conflict builds an ErrConflict-tagged error, wrapping cause.
func Conflict(message string, cause error) error {
	return newTagged(ErrConflict, message, cause)
}

// Retryable builds an ErrRetryable-tagged error, wrapping cause.
func Retryable(message string, cause error) error {
	return newTagged(ErrRetryable, message, cause)
}

// Unauthorized builds an ErrUnauthorized-tagged error, wrapping cause.
func Unauthorized(message string, cause error) error {
	return newTagged(ErrUnauthorized, message, cause)
}

// Interrupted builds an ErrInterrupted-tagged error, wrapping cause.
func Interrupted(message string, cause error) error {
	return newTagged(ErrInterrupted, message, cause)
}

// UnknownShadow builds an ErrUnknownShadow-tagged error, wrapping cause.
func UnknownShadow(message string, cause error) error {
	return newTagged(ErrUnknownShadow, message, cause)
}

// ServiceError builds an ErrServiceError-tagged error.
func ServiceError(message string) error {
	return newTagged(ErrServiceError, message, nil)
}

// PayloadTooLarge builds an ErrPayloadTooLarge-tagged error.
func PayloadTooLarge(message string) error {
	return newTagged(ErrPayloadTooLarge, message, nil)
}

// Classify reports which taxonomy sentinel err belongs to, defaulting to
// ErrFatal for unrecognized errors so callers never silently drop a failure.
func Classify(err error) error {
	for _, sentinel := range []error{
		ErrInvalidArguments, ErrVersionConflict, ErrConflict, ErrResourceNotFound,
		ErrUnauthorized, ErrRetryable, ErrFatal, ErrInterrupted, ErrUnknownShadow,
		ErrServiceError, ErrPayloadTooLarge,
	} {
		if errors.Is(err, sentinel) {
			return sentinel
		}
	}

	return ErrFatal
}
