package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a domain-specific error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is matches domain errors by code and message so sentinel values survive wrapping
// with a cause.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code && e.Message == t.Message
}

// NewDomainError creates a new DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     nil,
	}
}

// NewDomainErrorWithCause creates a new DomainError with an underlying cause
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Upstream wraps a failure of an external collaborator (object store, vector
// database, embedding or chat model, cache).
func Upstream(op string, err error) error {
	if err == nil {
		return nil
	}
	var de *DomainError
	if errors.As(err, &de) && de.Code == ErrCodeUpstream {
		return err
	}
	return NewDomainErrorWithCause(ErrCodeUpstream, op+" failed", err)
}

// Common domain error codes
const (
	ErrCodeValidation       = "VALIDATION_ERROR"
	ErrCodeUnauthorized     = "UNAUTHORIZED"
	ErrCodeUnsupportedMedia = "UNSUPPORTED_MEDIA"
	ErrCodePayloadTooLarge  = "PAYLOAD_TOO_LARGE"
	ErrCodeUpstream         = "UPSTREAM_FAILURE"
	ErrCodeInternalError    = "INTERNAL_ERROR"
)

// Validation errors
var (
	ErrMissingTenantHeaders = NewDomainError(ErrCodeValidation, "customer_id and project_id required")
	ErrEmptyQuestion        = NewDomainError(ErrCodeValidation, "question is required")
	ErrInvalidTopK          = NewDomainError(ErrCodeValidation, "top_k must be a positive integer")
	ErrMissingFile          = NewDomainError(ErrCodeValidation, "file is required")
	ErrInvalidFilename      = NewDomainError(ErrCodeValidation, "invalid filename")
)

// Authorization errors
var (
	ErrInvalidAPIKey = NewDomainError(ErrCodeUnauthorized, "invalid api key")
)

// Content errors
var (
	ErrUnsupportedContent = NewDomainError(ErrCodeUnsupportedMedia, "upload is not a text document")
	ErrUploadTooLarge     = NewDomainError(ErrCodePayloadTooLarge, "upload exceeds size limit")
)
