package logger

import (
	"fmt"
)

type ErrType string

const (
	ErrTypeInvalidConfig      ErrType = "INVALID_CONFIG"
	ErrTypeNetworkError       ErrType = "NETWORK_ERROR"
	ErrTypeEncodeError        ErrType = "ENCODE_ERROR"
	ErrTypeServerError        ErrType = "SERVER_ERROR"
	ErrTypeCircuitBreakerOpen ErrType = "CIRCUIT_BREAKER_OPEN"
	ErrTypeStorageError       ErrType = "STORAGE_ERROR"
)

type Error struct {
	Type    ErrType `json:"type"`
	Message string  `json:"message"`
	Err     error   `json:"error,omitempty"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s - %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same Type, so callers can test categories with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Type == e.Type
}

func ErrInvalidConfig(message string) *Error {
	return &Error{
		Type:    ErrTypeInvalidConfig,
		Message: message,
	}
}

func ErrNetworkError(message string, err error) *Error {
	return &Error{
		Type:    ErrTypeNetworkError,
		Message: message,
		Err:     err,
	}
}

func ErrEncode(message string, err error) *Error {
	return &Error{
		Type:    ErrTypeEncodeError,
		Message: message,
		Err:     err,
	}
}

func ErrServerError(message string, err error) *Error {
	return &Error{
		Type:    ErrTypeServerError,
		Message: message,
		Err:     err,
	}
}

func ErrCircuitBreakerOpen() *Error {
	return &Error{
		Type:    ErrTypeCircuitBreakerOpen,
		Message: "circuit breaker is open",
	}
}

func ErrStorage(message string, err error) *Error {
	return &Error{
		Type:    ErrTypeStorageError,
		Message: message,
		Err:     err,
	}
}
