package errors

import (
	"fmt"
	"time"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeVocabulary represents vocabulary store errors (duplicates, missing rows)
	ErrorTypeVocabulary ErrorType = "vocabulary"
	// ErrorTypeMerge represents merge coordination errors
	ErrorTypeMerge ErrorType = "merge"
	// ErrorTypeSuggestion represents classifier/suggestion reconciliation errors
	ErrorTypeSuggestion ErrorType = "suggestion"
	// ErrorTypeGraph represents graph database errors
	ErrorTypeGraph ErrorType = "graph"
	// ErrorTypeConfig represents configuration errors
	ErrorTypeConfig ErrorType = "config"
)

// BaseError is the base error type with common fields
type BaseError struct {
	Type      ErrorType
	Message   string
	Timestamp time.Time
	Err       error // Wrapped error
}

// Error implements the error interface
func (e *BaseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the wrapped error for error unwrapping
func (e *BaseError) Unwrap() error {
	return e.Err
}

// NewBaseError creates a new base error
func NewBaseError(errType ErrorType, message string, err error) *BaseError {
	return &BaseError{
		Type:      errType,
		Message:   message,
		Timestamp: time.Now(),
		Err:       err,
	}
}

// Vocabulary Errors

// ErrDuplicateTerm is returned when a term name collides, under normalization,
// with an existing term in the same (project, attribute) scope
type ErrDuplicateTerm struct {
	*BaseError
	ProjectID     string
	AttributeSlug string
	Name          string
}

func NewDuplicateTerm(projectID, attributeSlug, name string) *ErrDuplicateTerm {
	return &ErrDuplicateTerm{
		BaseError:     NewBaseError(ErrorTypeVocabulary, fmt.Sprintf("term already exists: %s", name), nil),
		ProjectID:     projectID,
		AttributeSlug: attributeSlug,
		Name:          name,
	}
}

// ErrDuplicateMapping is returned when a raw value is already mapped to a
// different term in the same scope
type ErrDuplicateMapping struct {
	*BaseError
	RawValue       string
	ExistingTermID string
}

func NewDuplicateMapping(rawValue, existingTermID string) *ErrDuplicateMapping {
	return &ErrDuplicateMapping{
		BaseError:      NewBaseError(ErrorTypeVocabulary, fmt.Sprintf("raw value already mapped: %s", rawValue), nil),
		RawValue:       rawValue,
		ExistingTermID: existingTermID,
	}
}

// ErrTermNotFound is returned when a term id matches no row
type ErrTermNotFound struct {
	*BaseError
	TermID string
}

func NewTermNotFound(termID string) *ErrTermNotFound {
	return &ErrTermNotFound{
		BaseError: NewBaseError(ErrorTypeVocabulary, fmt.Sprintf("term not found: %s", termID), nil),
		TermID:    termID,
	}
}

// ErrMappingNotFound is returned when a mapping id matches no row
type ErrMappingNotFound struct {
	*BaseError
	MappingID string
}

func NewMappingNotFound(mappingID string) *ErrMappingNotFound {
	return &ErrMappingNotFound{
		BaseError: NewBaseError(ErrorTypeVocabulary, fmt.Sprintf("mapping not found: %s", mappingID), nil),
		MappingID: mappingID,
	}
}

// Merge Errors

// ErrInvalidMergeRequest is returned when a merge request can never succeed:
// the target is among the sources, a source id repeats, or the ids span
// more than one (project, attribute) scope
type ErrInvalidMergeRequest struct {
	*BaseError
	Reason string
}

func NewInvalidMergeRequest(reason string) *ErrInvalidMergeRequest {
	return &ErrInvalidMergeRequest{
		BaseError: NewBaseError(ErrorTypeMerge, fmt.Sprintf("invalid merge request: %s", reason), nil),
		Reason:    reason,
	}
}

// Suggestion Errors

// ErrSuggestionServiceUnavailable is returned when the classifier itself
// fails; there is nothing to reconcile, so the suggest call aborts entirely
type ErrSuggestionServiceUnavailable struct {
	*BaseError
}

func NewSuggestionServiceUnavailable(err error) *ErrSuggestionServiceUnavailable {
	return &ErrSuggestionServiceUnavailable{
		BaseError: NewBaseError(ErrorTypeSuggestion, "suggestion service unavailable", err),
	}
}

// ErrSuggestionUnresolved is returned per item when an is_new:false suggestion
// names a canonical term that does not exist; the engine never fabricates a
// term in that branch
type ErrSuggestionUnresolved struct {
	*BaseError
	CanonicalName string
}

func NewSuggestionUnresolved(canonicalName string) *ErrSuggestionUnresolved {
	return &ErrSuggestionUnresolved{
		BaseError:     NewBaseError(ErrorTypeSuggestion, fmt.Sprintf("suggestion matches no existing term: %s", canonicalName), nil),
		CanonicalName: canonicalName,
	}
}

// ErrBatchTooLarge is returned when a suggest call exceeds the per-call cap
type ErrBatchTooLarge struct {
	*BaseError
	Size  int
	Limit int
}

func NewBatchTooLarge(size, limit int) *ErrBatchTooLarge {
	return &ErrBatchTooLarge{
		BaseError: NewBaseError(ErrorTypeSuggestion, fmt.Sprintf("batch of %d raw values exceeds limit of %d", size, limit), nil),
		Size:      size,
		Limit:     limit,
	}
}

// Graph Errors

// ErrGraphConnectionFailed is returned when the Neo4j connection fails
type ErrGraphConnectionFailed struct {
	*BaseError
	URI string
}

func NewGraphConnectionFailed(uri string, err error) *ErrGraphConnectionFailed {
	return &ErrGraphConnectionFailed{
		BaseError: NewBaseError(ErrorTypeGraph, fmt.Sprintf("failed to connect to Neo4j: %s", uri), err),
		URI:       uri,
	}
}

// Helper functions

// IsErrorType checks if an error is of a specific type
func IsErrorType(err error, errType ErrorType) bool {
	if baseErr, ok := err.(*BaseError); ok {
		return baseErr.Type == errType
	}
	if wrapped, ok := err.(interface{ Unwrap() error }); ok {
		if inner := wrapped.Unwrap(); inner != nil {
			return IsErrorType(inner, errType)
		}
	}
	return false
}
