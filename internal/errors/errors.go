package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// ErrorCode represents a unique error identifier
type ErrorCode string

// Error categories
const (
	// Auth errors (AUTH-001 to AUTH-099)
	ErrCodeUnauthorized ErrorCode = "AUTH-001"
	ErrCodeLoginFailed  ErrorCode = "AUTH-002"
	ErrCodeForbidden    ErrorCode = "AUTH-003"
	ErrCodeSessionState ErrorCode = "AUTH-004"

	// API errors (HTTP-001 to HTTP-099)
	ErrCodeHTTPStatus    ErrorCode = "HTTP-001"
	ErrCodeHTTPTransport ErrorCode = "HTTP-002"
	ErrCodeHTTPSchema    ErrorCode = "HTTP-003"
	ErrCodeHTTPEncode    ErrorCode = "HTTP-004"

	// Input errors (INPUT-001 to INPUT-099)
	ErrCodeInputRequired ErrorCode = "INPUT-001"
	ErrCodeInputInvalid  ErrorCode = "INPUT-002"

	// Config errors (CONFIG-001 to CONFIG-099)
	ErrCodeConfigNotFound ErrorCode = "CONFIG-001"
	ErrCodeConfigInvalid  ErrorCode = "CONFIG-002"

	// File I/O errors (IO-001 to IO-099)
	ErrCodeFileNotFound    ErrorCode = "IO-001"
	ErrCodeFileReadFailed  ErrorCode = "IO-002"
	ErrCodeFileWriteFailed ErrorCode = "IO-003"
	ErrCodeDirectoryFailed ErrorCode = "IO-004"
	ErrCodeFileUnmarshal   ErrorCode = "IO-005"
)

// Sentinels for errors.Is. Matching is by code, so any TaspaError carrying the
// same code matches regardless of message or cause.
var (
	ErrUnauthorized = New(ErrCodeUnauthorized, "Unauthorized")
	ErrForbidden    = New(ErrCodeForbidden, "forbidden")
	ErrTransport    = New(ErrCodeHTTPTransport, "request failed: network error")
)

// TaspaError represents an enhanced error with code, suggestions, and documentation
type TaspaError struct {
	Code        ErrorCode
	Message     string
	Suggestions []string
	DocsURL     string
	Cause       error

	// Status is the HTTP status behind an HTTP-001 error. Logging detail only.
	Status int
}

// Error implements the error interface
func (e *TaspaError) Error() string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Message))

	if e.Cause != nil {
		b.WriteString(fmt.Sprintf(": %v", e.Cause))
	}

	if len(e.Suggestions) > 0 {
		b.WriteString("\n\nSuggestions:")
		for _, suggestion := range e.Suggestions {
			b.WriteString(fmt.Sprintf("\n  • %s", suggestion))
		}
	}

	if e.DocsURL != "" {
		b.WriteString(fmt.Sprintf("\n\nDocumentation: %s", e.DocsURL))
	}

	return b.String()
}

// Unwrap implements error unwrapping for errors.Is and errors.As
func (e *TaspaError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a TaspaError with the same code.
func (e *TaspaError) Is(target error) bool {
	t, ok := target.(*TaspaError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New creates a new TaspaError
func New(code ErrorCode, message string) *TaspaError {
	return &TaspaError{
		Code:    code,
		Message: message,
	}
}

// Wrap creates a new TaspaError wrapping an existing error
func Wrap(code ErrorCode, message string, cause error) *TaspaError {
	return &TaspaError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// WithSuggestion adds a suggestion to the error
func (e *TaspaError) WithSuggestion(suggestion string) *TaspaError {
	e.Suggestions = append(e.Suggestions, suggestion)
	return e
}

// WithSuggestions adds multiple suggestions to the error
func (e *TaspaError) WithSuggestions(suggestions ...string) *TaspaError {
	e.Suggestions = append(e.Suggestions, suggestions...)
	return e
}

// WithDocs adds a documentation URL to the error
func (e *TaspaError) WithDocs(url string) *TaspaError {
	e.DocsURL = url
	return e
}

// CodeOf returns the code of the first TaspaError in err's chain, or "" if none.
func CodeOf(err error) ErrorCode {
	var te *TaspaError
	if stderrors.As(err, &te) {
		return te.Code
	}
	return ""
}

// Message returns the human-readable message of err without code, cause or
// suggestions. Screens display this text inline.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var te *TaspaError
	if stderrors.As(err, &te) {
		return te.Message
	}
	return err.Error()
}

// Common error constructors for frequently used errors

// NewUnauthorizedError creates the error returned when a session cannot be
// recovered by refreshing.
func NewUnauthorizedError() *TaspaError {
	return New(ErrCodeUnauthorized, "Unauthorized").
		WithSuggestion("Run 'taspa auth login' to sign in again")
}

// NewStatusError creates an error for a non-success API response. body is the
// raw response text and becomes the message as-is.
func NewStatusError(status int, body string) *TaspaError {
	msg := strings.TrimSpace(body)
	if msg == "" {
		msg = fmt.Sprintf("HTTP %d", status)
	}
	return &TaspaError{Code: ErrCodeHTTPStatus, Message: msg, Status: status}
}

// NewTransportError wraps a failure to reach the API.
func NewTransportError(cause error) *TaspaError {
	return Wrap(ErrCodeHTTPTransport, "request failed: network error", cause).
		WithSuggestion("Check that the TASPA API is reachable (taspa doctor)").
		WithSuggestion("Verify api_base in your configuration")
}

// NewSchemaError creates an error for a response that does not match the
// expected shape.
func NewSchemaError(what string, cause error) *TaspaError {
	return Wrap(ErrCodeHTTPSchema, fmt.Sprintf("malformed %s response", what), cause)
}

// NewForbiddenError creates an error for an action the current roles do not permit.
func NewForbiddenError(action string) *TaspaError {
	return New(ErrCodeForbidden, fmt.Sprintf("not permitted: %s", action)).
		WithSuggestion("Run 'taspa auth status' to see your roles")
}

// NewRequiredError creates a missing input error
func NewRequiredError(field string) *TaspaError {
	return New(ErrCodeInputRequired, fmt.Sprintf("%s is required", field))
}

// NewFileNotFoundError creates a file not found error
func NewFileNotFoundError(path string) *TaspaError {
	return New(ErrCodeFileNotFound, fmt.Sprintf("file not found: %s", path)).
		WithSuggestion("Check if the file path is correct").
		WithSuggestion("Verify the file exists and you have read permissions")
}

// NewFileUnmarshalError creates an unmarshal error
func NewFileUnmarshalError(path string, format string, cause error) *TaspaError {
	return Wrap(ErrCodeFileUnmarshal, fmt.Sprintf("failed to parse %s file: %s", format, path), cause).
		WithSuggestion("Check the file syntax and format").
		WithSuggestion(fmt.Sprintf("Ensure the file is valid %s", format))
}
