// internal/core/errors_test.go
package core

import (
	"errors"
	"fmt"
	"testing"
)

func TestError_Error(t *testing.T) {
	err := &Error{Code: "TEST_ERROR", Message: "test message"}
	if err.Error() != "[TEST_ERROR] test message" {
		t.Errorf("unexpected error string: %s", err.Error())
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := &Error{Code: "WRAP", Message: "wrapped", Cause: cause}
	if !errors.Is(err, cause) {
		t.Error("Unwrap should return cause")
	}
}

func TestError_Is(t *testing.T) {
	if !errors.Is(ErrBrokerRejected, ErrBrokerRejected) {
		t.Error("same error should match")
	}
	if errors.Is(ErrBrokerRejected, ErrBrokerProtocol) {
		t.Error("different codes should not match")
	}
}

func TestWrapError(t *testing.T) {
	cause := errors.New("original")
	wrapped := WrapError(ErrFetchFailed, cause)
	if wrapped.Cause != cause {
		t.Error("cause not set")
	}
	if wrapped.Code != ErrFetchFailed.Code {
		t.Error("code not preserved")
	}

	// still matches after an extra fmt wrap
	outer := fmt.Errorf("calendar: %w", wrapped)
	if !errors.Is(outer, ErrFetchFailed) {
		t.Error("wrapped error should match its base through fmt wrapping")
	}
}
