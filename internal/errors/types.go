package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	ErrorTypeNotFound    ErrorType = "not_found"
	ErrorTypeParse       ErrorType = "parse"
	ErrorTypeSourceImage ErrorType = "source_image"
	ErrorTypeConfig      ErrorType = "config"
	ErrorTypeValidation  ErrorType = "validation"
	ErrorTypeIO          ErrorType = "io"
	ErrorTypeInternal    ErrorType = "internal"
)

// CharosterError is a structured error type with context.
type CharosterError struct {
	Type        ErrorType
	Code        string
	Message     string
	Cause       error
	Context     map[string]interface{}
	Entity      string
	Path        string
	Recoverable bool
}

// Error implements the error interface.
func (e *CharosterError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}

	if e.Entity != "" {
		parts = append(parts, "entity:"+e.Entity)
	}

	if e.Path != "" {
		parts = append(parts, e.Path)
	}

	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")

	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *CharosterError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison.
func (e *CharosterError) Is(target error) bool {
	var t *CharosterError
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithContext adds context information to the error.
func (e *CharosterError) WithContext(key string, value interface{}) *CharosterError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value

	return e
}

// WithPath adds file location information.
func (e *CharosterError) WithPath(path string) *CharosterError {
	e.Path = path

	return e
}

// WithEntity adds entity context.
func (e *CharosterError) WithEntity(entity string) *CharosterError {
	e.Entity = entity

	return e
}

// Common error codes.
const (
	ErrCodeFileNotFound     = "ERR_FILE_NOT_FOUND"
	ErrCodeEntityNotFound   = "ERR_ENTITY_NOT_FOUND"
	ErrCodeInvalidJSON      = "ERR_INVALID_JSON"
	ErrCodeInvalidSVG       = "ERR_INVALID_SVG"
	ErrCodeDecodeFailed     = "ERR_DECODE_FAILED"
	ErrCodeEncodeFailed     = "ERR_ENCODE_FAILED"
	ErrCodeMissingWorkDir   = "ERR_MISSING_WORK_FOLDER"
	ErrCodeConfigInvalid    = "ERR_CONFIG_INVALID"
	ErrCodeValidationFailed = "ERR_VALIDATION_FAILED"
	ErrCodeReadFailed       = "ERR_READ_FAILED"
	ErrCodeWriteFailed      = "ERR_WRITE_FAILED"
	ErrCodeParentRejected   = "ERR_PARENT_REJECTED"
	ErrCodeInternalError    = "ERR_INTERNAL"
)

// Error creation functions

// NewNotFoundError creates a not-found error. Not-found is silent upstream.
func NewNotFoundError(code, message string, cause error) *CharosterError {
	return &CharosterError{
		Type:        ErrorTypeNotFound,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: true,
	}
}

// NewParseError creates a user-visible parse error.
func NewParseError(code, message string, cause error) *CharosterError {
	return &CharosterError{
		Type:        ErrorTypeParse,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: true,
	}
}

// NewSourceImageError creates a codec failure error for one derivation.
func NewSourceImageError(code, message string, cause error) *CharosterError {
	return &CharosterError{
		Type:        ErrorTypeSourceImage,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: true,
	}
}

// NewConfigError creates a configuration error.
func NewConfigError(code, message string) *CharosterError {
	return &CharosterError{
		Type:        ErrorTypeConfig,
		Code:        code,
		Message:     message,
		Recoverable: false,
	}
}

// NewValidationError creates a validation error.
func NewValidationError(code, message string) *CharosterError {
	return &CharosterError{
		Type:        ErrorTypeValidation,
		Code:        code,
		Message:     message,
		Recoverable: true,
	}
}

// NewIOError creates an I/O error.
func NewIOError(code, message string, cause error) *CharosterError {
	return &CharosterError{
		Type:        ErrorTypeIO,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: false,
	}
}

// NewInternalError creates an internal error.
func NewInternalError(code, message string, cause error) *CharosterError {
	return &CharosterError{
		Type:        ErrorTypeInternal,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: false,
	}
}

func isType(err error, errType ErrorType) bool {
	var ce *CharosterError
	if errors.As(err, &ce) {
		return ce.Type == errType
	}

	return false
}

// IsNotFound checks if an error is a missing file or entity.
func IsNotFound(err error) bool { return isType(err, ErrorTypeNotFound) }

// IsParseError checks if an error is a malformed document.
func IsParseError(err error) bool { return isType(err, ErrorTypeParse) }

// IsSourceImageError checks if an error came from the image codec.
func IsSourceImageError(err error) bool { return isType(err, ErrorTypeSourceImage) }

// IsConfigError checks if an error is a configuration problem.
func IsConfigError(err error) bool { return isType(err, ErrorTypeConfig) }

// IsRecoverable checks if an error is recoverable.
func IsRecoverable(err error) bool {
	var ce *CharosterError
	if errors.As(err, &ce) {
		return ce.Recoverable
	}

	return false
}

// IsUserVisible reports whether the error should reach the user through the
// error notification rather than only the log.
func IsUserVisible(err error) bool {
	return IsParseError(err) || IsConfigError(err)
}

// ErrorHandler provides centralized error handling.
type ErrorHandler struct {
	logger   Logger
	notifier Notifier
}

// Logger interface for error logging.
type Logger interface {
	Debug(ctx context.Context, msg string, fields ...interface{})
	Error(ctx context.Context, err error, msg string, fields ...interface{})
	Warn(ctx context.Context, err error, msg string, fields ...interface{})
}

// Notifier interface for error notifications.
type Notifier interface {
	NotifyError(ctx context.Context, err *CharosterError)
}

// NewErrorHandler creates a new error handler.
func NewErrorHandler(logger Logger, notifier Notifier) *ErrorHandler {
	return &ErrorHandler{
		logger:   logger,
		notifier: notifier,
	}
}

// Handle processes an error with appropriate logging and notifications.
func (h *ErrorHandler) Handle(ctx context.Context, err error) {
	if err == nil || h == nil {
		return
	}

	var ce *CharosterError
	if errors.As(err, &ce) {
		h.handleCharosterError(ctx, ce)
	} else if h.logger != nil {
		h.logger.Error(ctx, err, "Unhandled error occurred")
	}
}

func (h *ErrorHandler) handleCharosterError(ctx context.Context, err *CharosterError) {
	switch err.Type {
	case ErrorTypeNotFound:
		if h.logger != nil {
			h.logger.Debug(ctx, "File not found",
				"code", err.Code,
				"entity", err.Entity,
				"path", err.Path)
		}
	case ErrorTypeParse, ErrorTypeConfig:
		if h.logger != nil {
			h.logger.Error(ctx, err, "Load error occurred",
				"type", err.Type,
				"code", err.Code,
				"entity", err.Entity,
				"path", err.Path)
		}
		if h.notifier != nil {
			h.notifier.NotifyError(ctx, err)
		}
	case ErrorTypeSourceImage, ErrorTypeValidation:
		if h.logger != nil {
			h.logger.Warn(ctx, err, "Recoverable error occurred",
				"type", err.Type,
				"code", err.Code,
				"entity", err.Entity)
		}
	default:
		if h.logger != nil {
			h.logger.Error(ctx, err, "Error occurred",
				"type", err.Type,
				"code", err.Code,
				"entity", err.Entity)
		}
	}
}

// Helper functions for common errors

// ErrFileNotFound creates a missing-file error.
func ErrFileNotFound(path string, cause error) *CharosterError {
	return NewNotFoundError(ErrCodeFileNotFound, "file not found", cause).WithPath(path)
}

// ErrEntityNotFound creates a missing-entity error.
func ErrEntityNotFound(id string) *CharosterError {
	return NewNotFoundError(ErrCodeEntityNotFound, "entity not found", nil).WithEntity(id)
}

// ErrInvalidJSON creates a JSON parse error.
func ErrInvalidJSON(path string, cause error) *CharosterError {
	return NewParseError(ErrCodeInvalidJSON, "invalid JSON", cause).WithPath(path)
}

// ErrMissingWorkFolder creates the configuration error raised when discovery
// runs without a work folder.
func ErrMissingWorkFolder() *CharosterError {
	return NewConfigError(ErrCodeMissingWorkDir, "work folder is not configured")
}
