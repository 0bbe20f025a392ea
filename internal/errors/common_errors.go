package errors

import (
	"errors"
	"fmt"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// Pipeline failure kinds. Each one aborts a run.
	ErrTypeKey        ErrorType = "KEY_ERROR"
	ErrTypeDecryption ErrorType = "DECRYPTION_ERROR"
	ErrTypeParse      ErrorType = "PARSE_ERROR"
	ErrTypeSchema     ErrorType = "SCHEMA_ERROR"
	ErrTypeEmptyRange ErrorType = "EMPTY_RANGE_ERROR"

	ErrTypeStorage    ErrorType = "STORAGE"
	ErrTypeValidation ErrorType = "VALIDATION"
	ErrTypeNotFound   ErrorType = "NOT_FOUND"
	ErrTypeConfig     ErrorType = "CONFIG"
	ErrTypeInternal   ErrorType = "INTERNAL"
)

// AppError represents an application-specific error
type AppError struct {
	Type    ErrorType
	Message string
	Cause   error
	Context map[string]interface{}
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap allows errors.Is and errors.As to work with AppError
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is matches another AppError of the same type, so sentinel kinds work with errors.Is
func (e *AppError) Is(target error) bool {
	var other *AppError
	if !errors.As(target, &other) {
		return false
	}
	return other.Message == "" && other.Type == e.Type
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// NewAppError creates a new application error
func NewAppError(errType ErrorType, message string, cause error) *AppError {
	return &AppError{
		Type:    errType,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

// Sentinels for errors.Is checks against a kind, e.g. errors.Is(err, ErrDecryption).
var (
	ErrKey        = &AppError{Type: ErrTypeKey}
	ErrDecryption = &AppError{Type: ErrTypeDecryption}
	ErrParse      = &AppError{Type: ErrTypeParse}
	ErrSchema     = &AppError{Type: ErrTypeSchema}
	ErrEmptyRange = &AppError{Type: ErrTypeEmptyRange}
)

// Kind returns the ErrorType of the outermost AppError in err's chain, or "" if there is none
func Kind(err error) ErrorType {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type
	}
	return ""
}

// NewKeyError creates an error for a missing, unreadable or malformed key file
func NewKeyError(message string, cause error) *AppError {
	return NewAppError(ErrTypeKey, message, cause)
}

// NewDecryptionError creates an error for a failed authentication or integrity check
func NewDecryptionError(message string, cause error) *AppError {
	return NewAppError(ErrTypeDecryption, message, cause)
}

// NewParseError creates an error for plaintext that is not valid in its detected format
func NewParseError(message string, cause error) *AppError {
	return NewAppError(ErrTypeParse, message, cause)
}

// NewSchemaError creates an error for a canonical field absent from every record
func NewSchemaError(message string) *AppError {
	return NewAppError(ErrTypeSchema, message, nil)
}

// NewEmptyRangeError creates an error for series aggregation over zero rows
func NewEmptyRangeError(message string) *AppError {
	return NewAppError(ErrTypeEmptyRange, message, nil)
}

// NewStorageError creates a storage-related error
func NewStorageError(message string, cause error) *AppError {
	return NewAppError(ErrTypeStorage, message, cause)
}

// NewAppValidationError creates a validation error for AppError type
func NewAppValidationError(message string) *AppError {
	return NewAppError(ErrTypeValidation, message, nil)
}

// NewNotFoundError creates a not found error
func NewNotFoundError(resource string) *AppError {
	return NewAppError(ErrTypeNotFound, fmt.Sprintf("%s not found", resource), nil)
}

// NewConfigError creates a configuration error
func NewConfigError(message string, cause error) *AppError {
	return NewAppError(ErrTypeConfig, message, cause)
}
