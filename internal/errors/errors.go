package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a Kayko error code.
type ErrorCode string

const (
	ErrInvalidRequest     ErrorCode = "INVALID_REQUEST"     // 400
	ErrNotFound           ErrorCode = "NOT_FOUND"           // 404
	ErrFileNotFound       ErrorCode = "FILE_NOT_FOUND"      // 404
	ErrConflict           ErrorCode = "CONFLICT"            // 409
	ErrFileTooLarge       ErrorCode = "FILE_TOO_LARGE"      // 413
	ErrMalformedImport    ErrorCode = "MALFORMED_IMPORT"    // 422
	ErrCancelled          ErrorCode = "CANCELLED"           // 499
	ErrInternal           ErrorCode = "INTERNAL"            // 500
	ErrEnhancementFailed  ErrorCode = "ENHANCEMENT_FAILED"  // 502
	ErrStorageUnavailable ErrorCode = "STORAGE_UNAVAILABLE" // 503
)

// KaykoError represents a structured error with code, status, and details.
type KaykoError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any

	cause error
}

// Error implements the error interface.
func (e *KaykoError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *KaykoError) Unwrap() error {
	return e.cause
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *KaykoError {
	return &KaykoError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewNotFound creates a 404 error for when a prompt cannot be found.
func NewNotFound(identifier string) *KaykoError {
	return &KaykoError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("not found: %s", identifier),
		Details: map[string]any{"identifier": identifier},
	}
}

// NewFileNotFound creates a 404 error for a missing import file.
func NewFileNotFound(path string) *KaykoError {
	return &KaykoError{
		Code:    ErrFileNotFound,
		Status:  404,
		Message: fmt.Sprintf("file not found: %s", path),
		Details: map[string]any{"path": path},
	}
}

// NewConflict creates a 409 error for version conflicts that survived all retries.
func NewConflict(msg string) *KaykoError {
	return &KaykoError{
		Code:    ErrConflict,
		Status:  409,
		Message: msg,
	}
}

// NewFileTooLarge creates a 413 error when an import file exceeds the size limit.
func NewFileTooLarge(maxBytes, actualBytes int64) *KaykoError {
	return &KaykoError{
		Code:    ErrFileTooLarge,
		Status:  413,
		Message: fmt.Sprintf("file exceeds maximum size: %d bytes (max %d)", actualBytes, maxBytes),
		Details: map[string]any{"max_bytes": maxBytes, "actual_bytes": actualBytes},
	}
}

// NewMalformedImport creates a 422 error for import payloads that are not an array of
// valid prompt records.
func NewMalformedImport(msg string, details map[string]any) *KaykoError {
	return &KaykoError{
		Code:    ErrMalformedImport,
		Status:  422,
		Message: msg,
		Details: details,
	}
}

// NewCancelled creates a 499 error for operations aborted by their context.
func NewCancelled(op string) *KaykoError {
	return &KaykoError{
		Code:    ErrCancelled,
		Status:  499,
		Message: fmt.Sprintf("%s cancelled", op),
		Details: map[string]any{"operation": op},
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *KaykoError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &KaykoError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
		cause:   err,
	}
}

// NewEnhancementFailed creates a 502 error for failures of the external enhancement API.
func NewEnhancementFailed(provider string, err error) *KaykoError {
	msg := "enhancement failed"
	if err != nil {
		msg = fmt.Sprintf("enhancement failed: %v", err)
	}
	return &KaykoError{
		Code:    ErrEnhancementFailed,
		Status:  502,
		Message: msg,
		Details: map[string]any{"provider": provider},
		cause:   err,
	}
}

// NewStorageUnavailable creates a 503 error when the key-value store cannot be reached.
func NewStorageUnavailable(err error) *KaykoError {
	msg := "storage unavailable"
	if err != nil {
		msg = fmt.Sprintf("storage unavailable: %v", err)
	}
	return &KaykoError{
		Code:    ErrStorageUnavailable,
		Status:  503,
		Message: msg,
		cause:   err,
	}
}

// Is checks if an error is (or wraps) a KaykoError with the given code.
func Is(err error, code ErrorCode) bool {
	var kErr *KaykoError
	if stderrors.As(err, &kErr) {
		return kErr.Code == code
	}
	return false
}

// As finds the first KaykoError in err's chain.
func As(err error) (*KaykoError, bool) {
	var kErr *KaykoError
	if stderrors.As(err, &kErr) {
		return kErr, true
	}
	return nil, false
}
