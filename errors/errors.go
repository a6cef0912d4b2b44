// Package errors classifies failures as transient, invalid or fatal and wraps
// them with "component.method: action failed" context. Retry loops, the gateway
// status mapping and health checks all branch on the class.
package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorClass decides how a caller reacts to an error.
type ErrorClass int

const (
	// ErrorTransient may succeed on retry.
	ErrorTransient ErrorClass = iota
	// ErrorInvalid is bad input or configuration; retrying will not help.
	ErrorInvalid
	// ErrorFatal stops the operation for good.
	ErrorFatal
)

func (ec ErrorClass) String() string {
	switch ec {
	case ErrorTransient:
		return "transient"
	case ErrorInvalid:
		return "invalid"
	case ErrorFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Sentinels, matched with errors.Is.
var (
	// Lifecycle errors
	ErrAlreadyStarted = errors.New("already started")
	ErrNotStarted     = errors.New("not started")
	ErrShuttingDown   = errors.New("shutting down")

	// Network
	ErrNoConnection      = errors.New("no connection available")
	ErrConnectionLost    = errors.New("connection lost")
	ErrConnectionTimeout = errors.New("connection timeout")

	// Data errors
	ErrInvalidData   = errors.New("invalid data format")
	ErrParsingFailed = errors.New("parsing failed")
	ErrDataCorrupted = errors.New("data corrupted")

	// Record errors
	ErrInvalidRecordID  = errors.New("invalid record id")
	ErrInvalidFieldName = errors.New("invalid qualified field name")
	ErrRecordNotFound   = errors.New("record not found")

	// Storage errors
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrKeyNotFound        = errors.New("key not found")

	// Upstream errors
	ErrUpstreamStatus = errors.New("unexpected upstream status")
	ErrRateLimited    = errors.New("rate limited")
	ErrCircuitOpen    = errors.New("circuit breaker open")

	// Configuration errors
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrMissingConfig = errors.New("missing required configuration")
)

// ClassifiedError attaches a class and its origin to an error.
type ClassifiedError struct {
	Class     ErrorClass
	Err       error
	Message   string
	Component string
	Operation string
}

func (ce *ClassifiedError) Error() string {
	if ce.Message != "" {
		return ce.Message
	}
	if ce.Err == nil {
		return ce.Class.String() + " error"
	}
	return ce.Err.Error()
}

func (ce *ClassifiedError) Unwrap() error {
	return ce.Err
}

// Sentinels that classify an unwrapped error when no ClassifiedError is in its chain.
var (
	transientSentinels = []error{
		ErrConnectionTimeout, ErrConnectionLost, ErrNoConnection, ErrStorageUnavailable,
		ErrRateLimited, ErrCircuitOpen, context.DeadlineExceeded, context.Canceled,
	}
	fatalSentinels = []error{
		ErrInvalidConfig, ErrMissingConfig, ErrDataCorrupted,
	}
	invalidSentinels = []error{
		ErrInvalidData, ErrParsingFailed, ErrInvalidRecordID, ErrInvalidFieldName,
		ErrRecordNotFound, ErrKeyNotFound,
	}
)

// transientPatterns catch driver and network errors that carry no sentinel.
var transientPatterns = []string{"timeout", "connection", "network", "temporary", "unavailable", "busy"}

func matchesAny(err error, sentinels []error) bool {
	for _, target := range sentinels {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// classOf returns the class carried by a ClassifiedError in err's chain.
func classOf(err error) (ErrorClass, bool) {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class, true
	}
	return 0, false
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if class, ok := classOf(err); ok {
		return class == ErrorTransient
	}
	if matchesAny(err, transientSentinels) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, pattern := range transientPatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// IsFatal reports whether err must end the operation.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if class, ok := classOf(err); ok {
		return class == ErrorFatal
	}
	return matchesAny(err, fatalSentinels)
}

// IsInvalid reports whether err comes from bad input.
func IsInvalid(err error) bool {
	if err == nil {
		return false
	}
	if class, ok := classOf(err); ok {
		return class == ErrorInvalid
	}
	return matchesAny(err, invalidSentinels)
}

// Classify returns the error class for an error. Unclassified errors default
// to transient so callers retry them.
func Classify(err error) ErrorClass {
	if err == nil {
		return ErrorTransient
	}
	if class, ok := classOf(err); ok {
		return class
	}
	switch {
	case matchesAny(err, fatalSentinels):
		return ErrorFatal
	case matchesAny(err, invalidSentinels):
		return ErrorInvalid
	default:
		return ErrorTransient
	}
}

func newClassified(class ErrorClass, err error, component, operation, message string) *ClassifiedError {
	return &ClassifiedError{
		Class:     class,
		Err:       err,
		Message:   message,
		Component: component,
		Operation: operation,
	}
}

// Wrap prefixes err with "component.method: action failed" and keeps it
// unwrappable.
func Wrap(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s.%s: %s failed: %w", component, method, action, err)
}

// WrapTransient is Wrap plus the transient class.
func WrapTransient(err error, component, method, action string) error {
	return wrapClassified(ErrorTransient, err, component, method, action)
}

// WrapFatal is Wrap plus the fatal class.
func WrapFatal(err error, component, method, action string) error {
	return wrapClassified(ErrorFatal, err, component, method, action)
}

// WrapInvalid wraps an error as invalid with context.
// A nil err still produces an error: callers use it to report validation failures
// that have no underlying cause.
func WrapInvalid(err error, component, method, action string) error {
	return wrapClassified(ErrorInvalid, err, component, method, action)
}

func wrapClassified(class ErrorClass, err error, component, method, action string) error {
	if err == nil {
		if class != ErrorInvalid {
			return nil
		}
		msg := fmt.Sprintf("%s.%s: %s", component, method, action)
		return newClassified(class, errors.New(msg), component, method, msg)
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(class, wrappedErr, component, method, wrappedErr.Error())
}
