package domain

import (
	"errors"
	"fmt"
)

// Error codes shared by every layer. The HTTP layer maps them to
// status codes; callers can switch on them for retry decisions.
const (
	ErrCodeValidation = "VALIDATION_ERROR"
	ErrCodeNotFound   = "NOT_FOUND"
	ErrCodeEmbedding  = "EMBEDDING_ERROR"
	ErrCodeStore      = "STORE_ERROR"
)

// Error is a coded error carrying enough context (operation, id,
// triggering input) for the caller to log or act on.
type Error struct {
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a coded error without an underlying cause.
func NewError(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WrapError creates a coded error around an underlying cause.
func WrapError(code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf extracts the error code, walking wrapped errors.
// Unknown errors report ErrCodeStore's severity to callers as internal.
func CodeOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

var (
	ErrRecordNotFound    = NewError(ErrCodeNotFound, "record not found")
	ErrDirectoryNotFound = NewError(ErrCodeNotFound, "directory not found")
)
