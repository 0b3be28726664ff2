// Package errors provides the structured error type shared by the preview
// server's components.
//
// Errors carry a category (configuration, I/O, network, ...) and a stable
// code so that HTTP handlers can map them onto responses without string
// matching. Render failures are not represented here: they are expected
// outcomes of the render boundary and live in the render package.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeIO         ErrorType = "io"
	ErrorTypeNetwork    ErrorType = "network"
	ErrorTypeConfig     ErrorType = "config"
	ErrorTypeInternal   ErrorType = "internal"
)

// Error codes used across the server.
const (
	ErrCodeInvalidConfig     = "ERR_INVALID_CONFIG"
	ErrCodeInvalidProxyRule  = "ERR_INVALID_PROXY_RULE"
	ErrCodeDataLayerNotReady = "ERR_DATA_LAYER_NOT_READY"
	ErrCodeProxyTransport    = "ERR_PROXY_TRANSPORT"
	ErrCodeManifestRead      = "ERR_MANIFEST_READ"
	ErrCodeEditorLaunch      = "ERR_EDITOR_LAUNCH"
	ErrCodeInvalidPath       = "ERR_INVALID_PATH"
	ErrCodeServerStart       = "ERR_SERVER_START"
)

// PreviewError is a structured error type with context.
type PreviewError struct {
	Type     ErrorType
	Code     string
	Message  string
	Cause    error
	Context  map[string]interface{}
	FilePath string
	Line     int
	Column   int
}

// Error implements the error interface.
func (e *PreviewError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}

	if e.FilePath != "" {
		location := e.FilePath
		if e.Line > 0 {
			location += fmt.Sprintf(":%d", e.Line)
			if e.Column > 0 {
				location += fmt.Sprintf(":%d", e.Column)
			}
		}
		parts = append(parts, location)
	}

	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")
	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *PreviewError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a PreviewError with the same type and code.
func (e *PreviewError) Is(target error) bool {
	var t *PreviewError
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithContext adds context information to the error.
func (e *PreviewError) WithContext(key string, value interface{}) *PreviewError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value

	return e
}

// WithLocation adds file location information.
func (e *PreviewError) WithLocation(filePath string, line, column int) *PreviewError {
	e.FilePath = filePath
	e.Line = line
	e.Column = column

	return e
}

// NewValidationError creates a validation error.
func NewValidationError(code, message string) *PreviewError {
	return &PreviewError{Type: ErrorTypeValidation, Code: code, Message: message}
}

// NewConfigError creates a configuration error.
func NewConfigError(code, message string) *PreviewError {
	return &PreviewError{Type: ErrorTypeConfig, Code: code, Message: message}
}

// NewIOError creates an I/O error.
func NewIOError(code, message string, cause error) *PreviewError {
	return &PreviewError{Type: ErrorTypeIO, Code: code, Message: message, Cause: cause}
}

// NewNetworkError creates a network error.
func NewNetworkError(code, message string, cause error) *PreviewError {
	return &PreviewError{Type: ErrorTypeNetwork, Code: code, Message: message, Cause: cause}
}

// NewInternalError creates an internal error.
func NewInternalError(code, message string, cause error) *PreviewError {
	return &PreviewError{Type: ErrorTypeInternal, Code: code, Message: message, Cause: cause}
}

// IsConfigError checks if an error is configuration-related.
func IsConfigError(err error) bool {
	return hasType(err, ErrorTypeConfig)
}

// IsNetworkError checks if an error is network-related.
func IsNetworkError(err error) bool {
	return hasType(err, ErrorTypeNetwork)
}

// IsValidationError checks if an error is a validation error.
func IsValidationError(err error) bool {
	return hasType(err, ErrorTypeValidation)
}

func hasType(err error, t ErrorType) bool {
	var pe *PreviewError
	if errors.As(err, &pe) {
		return pe.Type == t
	}

	return false
}

// HasCode reports whether err wraps a PreviewError with the given code.
func HasCode(err error, code string) bool {
	var pe *PreviewError
	if errors.As(err, &pe) {
		return pe.Code == code
	}

	return false
}
