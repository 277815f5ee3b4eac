// internal/core/errors.go
package core

import "fmt"

// Error represents a structured error with code and optional cause.
type Error struct {
	Code    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches by code, so a wrapped error still matches its base.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// WrapError creates a new error with the same code but with a cause.
func WrapError(base *Error, cause error) *Error {
	return &Error{
		Code:    base.Code,
		Message: base.Message,
		Cause:   cause,
	}
}

// Predefined errors
var (
	// Data errors
	ErrNoData           = &Error{Code: "NO_DATA", Message: "no data available"}
	ErrInsufficientData = &Error{Code: "INSUFFICIENT_DATA", Message: "insufficient data for analysis"}

	// Market data errors
	ErrCollectorFailed = &Error{Code: "COLLECTOR_FAILED", Message: "market data source failed"}

	// Store errors
	ErrStoreFailed = &Error{Code: "STORE_FAILED", Message: "store operation failed"}

	// Fetch errors
	ErrFetchFailed   = &Error{Code: "FETCH_FAILED", Message: "all fingerprints failed"}
	ErrFetchNotFound = &Error{Code: "FETCH_NOT_FOUND", Message: "resource not found"}

	// Content errors are skipped, never retried
	ErrContentRejected = &Error{Code: "CONTENT_REJECTED", Message: "content rejected"}

	// Notifier errors
	ErrNotifierFailed   = &Error{Code: "NOTIFIER_FAILED", Message: "notifier failed"}
	ErrNotifierDisabled = &Error{Code: "NOTIFIER_DISABLED", Message: "notifier disabled"}

	// Broker errors
	ErrBrokerUnavailable = &Error{Code: "BROKER_UNAVAILABLE", Message: "broker bridge unreachable"}
	ErrBrokerRejected    = &Error{Code: "BROKER_REJECTED", Message: "broker rejected request"}
	ErrBrokerProtocol    = &Error{Code: "BROKER_PROTOCOL", Message: "unexpected broker response"}

	// Config errors
	ErrConfigInvalid = &Error{Code: "CONFIG_INVALID", Message: "configuration invalid"}
	ErrConfigMissing = &Error{Code: "CONFIG_MISSING", Message: "required configuration missing"}

	// LLM errors
	ErrLLMFailed   = &Error{Code: "LLM_FAILED", Message: "LLM request failed"}
	ErrLLMQuota    = &Error{Code: "LLM_QUOTA", Message: "LLM quota exhausted"}
	ErrLLMDisabled = &Error{Code: "LLM_DISABLED", Message: "no LLM provider configured"}
)
