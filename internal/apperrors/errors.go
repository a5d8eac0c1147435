package apperrors

import (
	"errors"
	"fmt"
)

// RetryableError marks a failure that may succeed on a later attempt
// (the routing consumer NAKs the event with backoff).
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("retryable: %v", e.Err)
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryable wraps err with a formatted message and marks it retryable.
func NewRetryable(err error, message string, args ...interface{}) error {
	allArgs := append(args, err)
	return &RetryableError{Err: fmt.Errorf(message+": %w", allArgs...)}
}

// FatalError marks a failure that will not go away on retry; the event is
// routed to the dead-letter subject.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal: %v", e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// NewFatal wraps err with a formatted message and marks it fatal.
func NewFatal(err error, message string, args ...interface{}) error {
	allArgs := append(args, err)
	return &FatalError{Err: fmt.Errorf(message+": %w", allArgs...)}
}

// Integration hub taxonomy.
var (
	// ErrIntegrationUnavailable: integration absent or inactive (configuration error).
	ErrIntegrationUnavailable = errors.New("integration not found or inactive")
	// ErrUnsupportedChannel: channel tag outside the closed channel set.
	ErrUnsupportedChannel = errors.New("unsupported channel")
	// ErrInvalidContact: contact has no name or no reachable identity.
	ErrInvalidContact = errors.New("invalid contact")
)

// General conditions, checked with errors.Is.
var (
	ErrNotFound     = errors.New("resource not found")
	ErrValidation   = errors.New("validation failed")
	ErrDatabase     = errors.New("database error")
	ErrNATS         = errors.New("nats communication error")
	ErrUnauthorized = errors.New("unauthorized access")
	ErrDuplicate    = errors.New("duplicate resource")
	ErrConflict     = errors.New("resource conflict")
	ErrBadRequest   = errors.New("bad request")
	ErrTimeout      = errors.New("operation timeout")
)

func IsRetryable(err error) bool {
	var target *RetryableError
	return errors.As(err, &target)
}

func IsFatal(err error) bool {
	var target *FatalError
	return errors.As(err, &target)
}

func IsNotFoundError(err error) bool { return errors.Is(err, ErrNotFound) }

func IsValidationError(err error) bool { return errors.Is(err, ErrValidation) }

func IsDatabaseError(err error) bool { return errors.Is(err, ErrDatabase) }

func IsNATSError(err error) bool { return errors.Is(err, ErrNATS) }

func IsUnauthorizedError(err error) bool { return errors.Is(err, ErrUnauthorized) }

func IsDuplicateError(err error) bool { return errors.Is(err, ErrDuplicate) }

func IsConflictError(err error) bool { return errors.Is(err, ErrConflict) }

func IsBadRequestError(err error) bool { return errors.Is(err, ErrBadRequest) }

func IsTimeoutError(err error) bool { return errors.Is(err, ErrTimeout) }

// IsConfigurationError reports whether err means the integration cannot
// accept messages at all.
func IsConfigurationError(err error) bool { return errors.Is(err, ErrIntegrationUnavailable) }

func IsUnsupportedChannelError(err error) bool { return errors.Is(err, ErrUnsupportedChannel) }

func IsInvalidContactError(err error) bool { return errors.Is(err, ErrInvalidContact) }
