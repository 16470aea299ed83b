// Package errors provides centralized error handling for the document engine
package errors

import (
	stderrors "errors"
	"fmt"
	"maps"
	"time"
)

// ErrorCategory represents the type of error for better categorization
type ErrorCategory string

const (
	CategoryValidation    ErrorCategory = "validation"
	CategoryNotFound      ErrorCategory = "not-found"
	CategoryProtected     ErrorCategory = "legal-hold-protected"
	CategoryAlreadyExists ErrorCategory = "already-exists"
	CategoryExternalIO    ErrorCategory = "external-io"
	CategoryConsistency   ErrorCategory = "consistency"
	CategoryState         ErrorCategory = "state"
	CategoryDatabase      ErrorCategory = "database"
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryFileIO        ErrorCategory = "file-io"
	CategoryMatching      ErrorCategory = "matching"
	CategoryRouting       ErrorCategory = "routing"
	CategoryRetention     ErrorCategory = "retention"
	CategoryArchive       ErrorCategory = "archive"
	CategoryGeneric       ErrorCategory = "generic"
)

// ComponentUnknown is used when the component cannot be determined.
const ComponentUnknown = "unknown"

// EnhancedError wraps an error with category, component and context metadata
type EnhancedError struct {
	Err       error
	Component string
	Category  ErrorCategory
	Context   map[string]any
	Timestamp time.Time
}

// Error implements the error interface
func (ee *EnhancedError) Error() string {
	return ee.Err.Error()
}

// Unwrap implements the error unwrapping interface
func (ee *EnhancedError) Unwrap() error {
	return ee.Err
}

// Is matches on category when the target is another EnhancedError
func (ee *EnhancedError) Is(target error) bool {
	var other *EnhancedError
	if stderrors.As(target, &other) {
		return ee.Category == other.Category
	}
	return stderrors.Is(ee.Err, target)
}

// GetContext returns a copy of the context map
func (ee *EnhancedError) GetContext() map[string]any {
	if ee.Context == nil {
		return nil
	}
	out := make(map[string]any, len(ee.Context))
	maps.Copy(out, ee.Context)
	return out
}

// ErrorBuilder provides a fluent interface for creating enhanced errors
type ErrorBuilder struct {
	err       error
	component string
	category  ErrorCategory
	context   map[string]any
}

// New creates a new error builder wrapping err
func New(err error) *ErrorBuilder {
	return &ErrorBuilder{err: err}
}

// Newf creates a new formatted error builder
func Newf(format string, args ...any) *ErrorBuilder {
	return New(fmt.Errorf(format, args...))
}

// Component sets the component name
func (eb *ErrorBuilder) Component(component string) *ErrorBuilder {
	eb.component = component
	return eb
}

// Category sets the error category for better grouping
func (eb *ErrorBuilder) Category(category ErrorCategory) *ErrorBuilder {
	eb.category = category
	return eb
}

// Context adds context data to the error
func (eb *ErrorBuilder) Context(key string, value any) *ErrorBuilder {
	if eb.context == nil {
		eb.context = make(map[string]any)
	}
	eb.context[key] = value
	return eb
}

// DocumentContext adds the entity id and attempted operation, the minimum
// context destructive-path callers need to act on a failure
func (eb *ErrorBuilder) DocumentContext(documentID, operation string) *ErrorBuilder {
	return eb.Context("document_id", documentID).Context("operation", operation)
}

// Build creates the final EnhancedError
func (eb *ErrorBuilder) Build() *EnhancedError {
	component := eb.component
	if component == "" {
		component = ComponentUnknown
	}
	category := eb.category
	if category == "" {
		category = CategoryGeneric
	}
	return &EnhancedError{
		Err:       eb.err,
		Component: component,
		Category:  category,
		Context:   eb.context,
		Timestamp: time.Now(),
	}
}

// Standard library passthroughs so callers only import this package.

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target any) bool {
	return stderrors.As(err, target)
}

// NewStd creates a plain sentinel error without enhancement
func NewStd(text string) error {
	return stderrors.New(text)
}

// Join wraps errors.Join from the standard library
func Join(errs ...error) error {
	return stderrors.Join(errs...)
}

// categoryOf extracts the category from an error chain, or empty
func categoryOf(err error) ErrorCategory {
	var ee *EnhancedError
	if stderrors.As(err, &ee) {
		return ee.Category
	}
	return ""
}

// IsValidation reports whether err is categorized as a validation failure
func IsValidation(err error) bool { return categoryOf(err) == CategoryValidation }

// IsNotFound reports whether err is categorized as a missing entity
func IsNotFound(err error) bool { return categoryOf(err) == CategoryNotFound }

// IsProtected reports whether err is categorized as blocked by a legal hold
func IsProtected(err error) bool { return categoryOf(err) == CategoryProtected }

// IsAlreadyExists reports whether err is categorized as a duplicate
func IsAlreadyExists(err error) bool { return categoryOf(err) == CategoryAlreadyExists }

// IsExternalIO reports whether err is a transient backing-store failure,
// retryable by the caller
func IsExternalIO(err error) bool { return categoryOf(err) == CategoryExternalIO }

// IsConsistency reports whether err is a checksum or integrity mismatch;
// these are surfaced, never silently retried
func IsConsistency(err error) bool { return categoryOf(err) == CategoryConsistency }
