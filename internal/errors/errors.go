package errors

import (
	"errors"
	"fmt"
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	ErrTypeSchemaLoad        ErrorType = "schema_load"
	ErrTypeAuthMissing       ErrorType = "auth_missing"
	ErrTypeNetwork           ErrorType = "network"
	ErrTypeRemote            ErrorType = "remote"
	ErrTypeMalformedResponse ErrorType = "malformed_response"
	ErrTypeDatabase          ErrorType = "database"
	ErrTypeValidation        ErrorType = "validation"
	ErrTypeConfig            ErrorType = "config"
	ErrTypeInternal          ErrorType = "internal"
)

// maxBodyInMessage bounds how much of a remote body is echoed in Error()
const maxBodyInMessage = 512

// Error represents a structured error with type and optional suggestions
type Error struct {
	Type        ErrorType
	Message     string
	Cause       error
	Suggestions []string

	// StatusCode and Body are set for remote errors.
	StatusCode int
	Body       string

	// Timeout is set for network errors caused by a deadline.
	Timeout bool
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Type, e.Message)

	if e.StatusCode != 0 {
		body := e.Body
		if len(body) > maxBodyInMessage {
			body = body[:maxBodyInMessage] + "..."
		}

		msg = fmt.Sprintf("%s (status %d: %s)", msg, e.StatusCode, body)
	}

	if e.Cause != nil {
		return fmt.Sprintf("%s (caused by: %v)", msg, e.Cause)
	}

	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// WithSuggestion adds a suggestion for resolving the error
func (e *Error) WithSuggestion(suggestion string) *Error {
	e.Suggestions = append(e.Suggestions, suggestion)
	return e
}

// New creates a new structured error
func New(errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
	}
}

// Newf creates a new structured error with formatted message
func Newf(errType ErrorType, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(err error, errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an existing error with formatted message
func Wrapf(err error, errType ErrorType, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
		Cause:   err,
	}
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// IsType checks if an error is of a specific type
func IsType(err error, errType ErrorType) bool {
	var structErr *Error
	if errors.As(err, &structErr) {
		return structErr.Type == errType
	}

	return false
}

// GetType returns the error type if it's a structured error
func GetType(err error) ErrorType {
	var structErr *Error
	if errors.As(err, &structErr) {
		return structErr.Type
	}

	return ErrTypeInternal
}

// IsTimeout reports whether err is a network error caused by a deadline
func IsTimeout(err error) bool {
	var structErr *Error
	if errors.As(err, &structErr) {
		return structErr.Type == ErrTypeNetwork && structErr.Timeout
	}

	return false
}

// NewConfigError creates a configuration error with suggestions
func NewConfigError(message, field string) *Error {
	err := New(ErrTypeConfig, message)
	if field != "" {
		err.Message = fmt.Sprintf("%s (field: %s)", message, field)
	}

	return err.
		WithSuggestion("Check your configuration file syntax").
		WithSuggestion("Run with --help to see valid configuration options")
}

// NewSchemaLoadError creates a schema loading error for the given source
func NewSchemaLoadError(source string, cause error) *Error {
	err := Wrapf(cause, ErrTypeSchemaLoad, "failed to load schema from %s", source)

	return err.
		WithSuggestion("The schema must map each table name to a list of column names").
		WithSuggestion("Set CURRENT_SCHEMA_PATH to point at a .json, .yaml or .toml file")
}

// NewAuthMissingError reports that no API credential is configured
func NewAuthMissingError() *Error {
	return New(ErrTypeAuthMissing, "no API key configured").
		WithSuggestion("Set GEMINI_API_KEY in the environment")
}

// NewNetworkError wraps a transport failure
func NewNetworkError(cause error, timeout bool) *Error {
	message := "request failed"
	if timeout {
		message = "request timed out"
	}

	err := Wrap(cause, ErrTypeNetwork, message)
	err.Timeout = timeout

	return err
}

// NewRemoteError records a non-success response from the endpoint
func NewRemoteError(statusCode int, body string) *Error {
	return &Error{
		Type:       ErrTypeRemote,
		Message:    "endpoint returned a non-success status",
		StatusCode: statusCode,
		Body:       body,
	}
}

// NewMalformedResponseError reports a payload that could not be decoded
func NewMalformedResponseError(cause error) *Error {
	return Wrap(cause, ErrTypeMalformedResponse, "failed to decode response payload")
}
