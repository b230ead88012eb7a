package common

import (
	"errors"
	"fmt"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Sentinel errors for the pipeline failure taxonomy.
var (
	ErrValidation  = errors.New("validation failed")
	ErrExtraction  = errors.New("extraction failed")
	ErrTemplate    = errors.New("template error")
	ErrAIService   = errors.New("ai service error")
	ErrPersistence = errors.New("persistence error")
	ErrNotFound    = errors.New("resource not found")
	ErrInternal    = errors.New("internal error")
)

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// ValidationError marks a structurally invalid request (bad size/type).
// It aborts the enclosing request rather than degrading per item.
func ValidationError(message string) error {
	return NewAppError("VALIDATION_ERROR", message, ErrValidation)
}

func ValidationErrorf(format string, args ...any) error {
	return ValidationError(fmt.Sprintf(format, args...))
}

// ExtractionError marks a per-file parse failure (including OCR engine
// errors). Callers record it inline instead of aborting siblings.
func ExtractionError(message string, cause error) error {
	if cause == nil {
		cause = ErrExtraction
	} else {
		cause = fmt.Errorf("%w: %w", ErrExtraction, cause)
	}
	return NewAppError("EXTRACTION_ERROR", message, cause)
}

// TemplateError marks a missing or unreadable template.
func TemplateError(message string, cause error) error {
	if cause == nil {
		cause = ErrTemplate
	} else {
		cause = fmt.Errorf("%w: %w", ErrTemplate, cause)
	}
	return NewAppError("TEMPLATE_ERROR", message, cause)
}

// AIServiceError marks an opaque downstream provider failure, isolated
// per batch item.
func AIServiceError(message string, cause error) error {
	if cause == nil {
		cause = ErrAIService
	} else {
		cause = fmt.Errorf("%w: %w", ErrAIService, cause)
	}
	return NewAppError("AI_SERVICE_ERROR", message, cause)
}

// PersistenceError marks a failed output write; it is raised to the caller
// since it is not attributable to a single item.
func PersistenceError(message string, cause error) error {
	if cause == nil {
		cause = ErrPersistence
	} else {
		cause = fmt.Errorf("%w: %w", ErrPersistence, cause)
	}
	return NewAppError("PERSISTENCE_ERROR", message, cause)
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
