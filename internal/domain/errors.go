package domain

import "fmt"

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

// Common domain error codes
const (
	ErrCodeValidation    = "VALIDATION_ERROR"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeConfiguration = "CONFIGURATION_ERROR"
	ErrCodeEmptyInput    = "EMPTY_INPUT"
	ErrCodeRetrieval     = "RETRIEVAL_ERROR"
	ErrCodeInternalError = "INTERNAL_ERROR"
)

// Validation errors
var (
	ErrMissingRequiredField = NewDomainError(ErrCodeValidation, "missing required field")
	ErrInvalidDocumentID    = NewDomainError(ErrCodeValidation, "invalid document id")
	ErrInvalidDocumentState = NewDomainError(ErrCodeValidation, "invalid document state")
	ErrEmptyQuery           = NewDomainError(ErrCodeValidation, "query must not be empty")
)

// Not found errors
var (
	ErrDocumentNotFound = NewDomainError(ErrCodeNotFound, "document not found")
	ErrChunkNotFound    = NewDomainError(ErrCodeNotFound, "chunk not found")
	ErrQueryLogNotFound = NewDomainError(ErrCodeNotFound, "query log entry not found")
)

// Input errors
var (
	ErrEmptyDocument = NewDomainError(ErrCodeEmptyInput, "document text is empty")
	ErrNoChunks      = NewDomainError(ErrCodeValidation, "no chunks produced")
)

// Infrastructure errors
var (
	ErrStorageOperationFail = NewDomainError(ErrCodeInternalError, "storage operation failed")
	ErrEmbeddingFailed      = NewDomainError(ErrCodeInternalError, "embedding generation failed")
)

// ConfigurationError reports an invalid pipeline configuration. It is
// raised at construction time so a misconfigured component never runs.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", ErrCodeConfiguration, e.Field, e.Reason)
}

// NewConfigurationError creates a ConfigurationError for a field
func NewConfigurationError(field, reason string) *ConfigurationError {
	return &ConfigurationError{Field: field, Reason: reason}
}

// RetrievalError wraps a vector store failure together with the query
// that triggered it. The caller decides whether to retry.
type RetrievalError struct {
	Query string
	Err   error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("[%s] search failed for query %q: %v", ErrCodeRetrieval, e.Query, e.Err)
}

// Unwrap returns the underlying error
func (e *RetrievalError) Unwrap() error {
	return e.Err
}

// NewRetrievalError creates a RetrievalError for a query
func NewRetrievalError(query string, err error) *RetrievalError {
	return &RetrievalError{Query: query, Err: err}
}
