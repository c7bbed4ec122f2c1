package errors

import (
	"fmt"
)

// KnowError is the structured error type for know.
// It provides context for error handling, logging, and user presentation.
type KnowError struct {
	// Code is the unique error code (e.g., "ERR_203_INDEX_CORRUPT").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, IO, Network, Internal).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable suggestion for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *KnowError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *KnowError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with KnowError.
func (e *KnowError) Is(target error) bool {
	if t, ok := target.(*KnowError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *KnowError) WithDetail(key, value string) *KnowError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
func (e *KnowError) WithSuggestion(suggestion string) *KnowError {
	e.Suggestion = suggestion
	return e
}

// New creates a new KnowError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *KnowError {
	return &KnowError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a KnowError from an existing error.
// The error's message becomes the KnowError message.
func Wrap(code string, err error) *KnowError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// InvalidConfig creates a configuration/validation error. These fail fast,
// before any I/O.
func InvalidConfig(message string) *KnowError {
	return New(ErrCodeInvalidConfig, message, nil)
}

// ExtractionError creates a per-document extraction error.
func ExtractionError(path string, cause error) *KnowError {
	return New(ErrCodeExtraction, fmt.Sprintf("failed to extract %s", path), cause).
		WithDetail("path", path)
}

// EmbeddingError creates a per-chunk embedding error.
func EmbeddingError(message string, cause error) *KnowError {
	return New(ErrCodeEmbedding, message, cause)
}

// IndexCorrupt creates a corrupt-cache error. Callers recover by rebuilding.
func IndexCorrupt(message string, cause error) *KnowError {
	return New(ErrCodeIndexCorrupt, message, cause)
}

// StoreUnavailable creates a fatal dense-store error.
func StoreUnavailable(message string, cause error) *KnowError {
	return New(ErrCodeStoreUnavailable, message, cause)
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if ke, ok := err.(*KnowError); ok {
		return ke.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
// Fatal errors abort the current operation.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if ke, ok := err.(*KnowError); ok {
		return ke.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from a KnowError.
// Returns empty string if not a KnowError.
func GetCode(err error) string {
	if ke, ok := err.(*KnowError); ok {
		return ke.Code
	}
	return ""
}
