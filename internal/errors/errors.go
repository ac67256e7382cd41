// Package errors provides enhanced error types with helpful context and suggestions
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// ErrorCode represents a unique error identifier
type ErrorCode string

const (
	// Dataset errors
	ErrCodeDatasetNotFound ErrorCode = "DATASET_NOT_FOUND"
	ErrCodeSchemaMismatch  ErrorCode = "SCHEMA_MISMATCH"
	ErrCodeDatasetLoad     ErrorCode = "DATASET_LOAD_FAILED"

	// Query processing errors
	ErrCodeQueryRender ErrorCode = "QUERY_RENDER_FAILED"
	ErrCodeUnsafeQuery ErrorCode = "UNSAFE_QUERY"
	ErrCodeExecution   ErrorCode = "EXECUTION_ERROR"

	// Authentication errors
	ErrCodeInvalidCredentials ErrorCode = "INVALID_CREDENTIALS"
	ErrCodeTokenCreation      ErrorCode = "TOKEN_CREATION_FAILED"
	ErrCodeSessionCreation    ErrorCode = "SESSION_CREATION_FAILED"
	ErrCodeNotAuthenticated   ErrorCode = "NOT_AUTHENTICATED"
	ErrCodeRateLimited        ErrorCode = "RATE_LIMITED"
	ErrCodeInsufficientPerms  ErrorCode = "INSUFFICIENT_PERMISSIONS"
	ErrCodeNotFound           ErrorCode = "NOT_FOUND"

	// Input validation errors
	ErrCodeInvalidInput    ErrorCode = "INVALID_INPUT"
	ErrCodeMissingRequired ErrorCode = "MISSING_REQUIRED_FIELD"

	// Storage errors
	ErrCodeDatabaseConnection ErrorCode = "DATABASE_CONNECTION_FAILED"
	ErrCodeHistoryRead        ErrorCode = "HISTORY_READ_FAILED"
	ErrCodeHistoryWrite       ErrorCode = "HISTORY_WRITE_FAILED"
	ErrCodeCacheRead          ErrorCode = "CACHE_READ_FAILED"
	ErrCodeCacheWrite         ErrorCode = "CACHE_WRITE_FAILED"
)

// EnhancedError represents an error with additional context and helpful information
type EnhancedError struct {
	Code          ErrorCode              `json:"code"`
	Message       string                 `json:"message"`
	Details       string                 `json:"details,omitempty"`
	Suggestion    string                 `json:"suggestion,omitempty"`
	Documentation string                 `json:"documentation,omitempty"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
	Cause         error                  `json:"-"`
}

// Error implements the error interface
func (e *EnhancedError) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Message))
	if e.Details != "" {
		sb.WriteString(fmt.Sprintf(": %s", e.Details))
	}
	if e.Cause != nil {
		sb.WriteString(fmt.Sprintf(" (cause: %v)", e.Cause))
	}
	return sb.String()
}

// Unwrap returns the underlying error for error chain unwrapping
func (e *EnhancedError) Unwrap() error {
	return e.Cause
}

// UserMessage returns a user-friendly error message with suggestions
func (e *EnhancedError) UserMessage() string {
	var sb strings.Builder
	sb.WriteString(e.Message)

	if e.Details != "" {
		sb.WriteString(fmt.Sprintf("\n\nDetails: %s", e.Details))
	}

	if e.Suggestion != "" {
		sb.WriteString(fmt.Sprintf("\n\nSuggestion: %s", e.Suggestion))
	}

	if e.Documentation != "" {
		sb.WriteString(fmt.Sprintf("\n\nLearn more: %s", e.Documentation))
	}

	return sb.String()
}

// New creates a new EnhancedError
func New(code ErrorCode, message string) *EnhancedError {
	return &EnhancedError{
		Code:     code,
		Message:  message,
		Metadata: make(map[string]interface{}),
	}
}

// Wrap wraps an existing error with enhanced context
func Wrap(err error, code ErrorCode, message string) *EnhancedError {
	return &EnhancedError{
		Code:     code,
		Message:  message,
		Cause:    err,
		Metadata: make(map[string]interface{}),
	}
}

// WithDetails adds detailed information about the error
func (e *EnhancedError) WithDetails(details string) *EnhancedError {
	e.Details = details
	return e
}

// WithSuggestion adds a suggestion on how to fix the error
func (e *EnhancedError) WithSuggestion(suggestion string) *EnhancedError {
	e.Suggestion = suggestion
	return e
}

// WithMetadata adds additional metadata to the error
func (e *EnhancedError) WithMetadata(key string, value interface{}) *EnhancedError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// CodeOf returns the code of the first EnhancedError in err's chain, or ""
func CodeOf(err error) ErrorCode {
	var enhanced *EnhancedError
	if stderrors.As(err, &enhanced) {
		return enhanced.Code
	}
	return ""
}

// HasCode reports whether err carries the given code
func HasCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}

// Common error constructors with pre-configured messages

// NewDatasetNotFoundError creates an error for a dataset handle that does not resolve to a readable file
func NewDatasetNotFoundError(handle string) *EnhancedError {
	return New(ErrCodeDatasetNotFound, "Dataset file not found").
		WithDetails(fmt.Sprintf("No readable CSV file for dataset '%s'", handle)).
		WithSuggestion("Upload the CSV file first or pick one of the datasets listed at /api/v1/datasets.").
		WithMetadata("dataset", handle)
}

// NewSchemaMismatchError creates an error for a dataset missing required columns
func NewSchemaMismatchError(handle string, missing []string) *EnhancedError {
	return New(ErrCodeSchemaMismatch, "Dataset does not match the expected schema").
		WithDetails(fmt.Sprintf("Dataset '%s' is missing required columns: %s", handle, strings.Join(missing, ", "))).
		WithSuggestion("The CSV header must contain the columns department, age, service, hire_date and termination_date.").
		WithMetadata("dataset", handle).
		WithMetadata("missing_columns", missing)
}

// NewDatasetLoadError creates an error for a CSV that could not be ingested
func NewDatasetLoadError(err error, handle string) *EnhancedError {
	return Wrap(err, ErrCodeDatasetLoad, "Failed to load dataset").
		WithDetails(fmt.Sprintf("The file for dataset '%s' could not be read as CSV", handle)).
		WithSuggestion("Check that the file is a comma-separated CSV with a header row.").
		WithMetadata("dataset", handle)
}

// NewQueryRenderError creates an error for a template that could not be rendered
func NewQueryRenderError(err error, intent string) *EnhancedError {
	return Wrap(err, ErrCodeQueryRender, "Failed to render analytical query").
		WithDetails(fmt.Sprintf("The query template for intent '%s' could not be rendered", intent)).
		WithSuggestion("This is an internal error. Please rephrase the question or try again.").
		WithMetadata("intent", intent)
}

// NewUnsafeQueryError creates an error for a rendered query rejected by the safety gate
func NewUnsafeQueryError(keyword string) *EnhancedError {
	return New(ErrCodeUnsafeQuery, "Forbidden SQL operation").
		WithDetails(fmt.Sprintf("The generated query contains the forbidden keyword '%s'", keyword)).
		WithSuggestion("Questions can only read data. Remove words that look like data modification commands and try again.").
		WithMetadata("keyword", keyword)
}

// NewInjectionDetectedError creates an error for an entity value that looks like SQL injection
func NewInjectionDetectedError(slot, fingerprint string) *EnhancedError {
	return New(ErrCodeUnsafeQuery, "Suspicious value in question").
		WithDetails(fmt.Sprintf("The value extracted for '%s' matches an SQL injection pattern", slot)).
		WithSuggestion("Use a plain department name, for example 'HR' or 'Sales'.").
		WithMetadata("slot", slot).
		WithMetadata("fingerprint", fingerprint)
}

// NewExecutionError creates an error for a query that failed in the executor
func NewExecutionError(err error) *EnhancedError {
	return Wrap(err, ErrCodeExecution, "SQL Error").
		WithDetails(err.Error()).
		WithSuggestion("Check that the dataset columns hold the expected types (age and service numeric, dates as YYYY-MM-DD).")
}

// NewInvalidCredentialsError creates an error for authentication failures
func NewInvalidCredentialsError() *EnhancedError {
	return New(ErrCodeInvalidCredentials, "Invalid username or password").
		WithDetails("Authentication failed with the provided credentials").
		WithSuggestion("Please check your username and password and try again. If you've forgotten your password, contact your administrator.")
}

// NewTokenCreationError creates an error for token creation failures
func NewTokenCreationError(err error) *EnhancedError {
	return Wrap(err, ErrCodeTokenCreation, "Failed to create authentication token").
		WithDetails("The system was unable to generate an authentication token").
		WithSuggestion("This is an internal server error. Please try logging in again. If the problem persists, contact support.").
		WithMetadata("retryable", true)
}

// NewSessionCreationError creates an error for session creation failures
func NewSessionCreationError(err error) *EnhancedError {
	return Wrap(err, ErrCodeSessionCreation, "Failed to create session").
		WithDetails("The system was unable to create a session").
		WithSuggestion("This is an internal server error. Please try logging in again. If the problem persists, contact support.").
		WithMetadata("retryable", true)
}

// NewNotAuthenticatedError creates an error for unauthenticated requests
func NewNotAuthenticatedError() *EnhancedError {
	return New(ErrCodeNotAuthenticated, "Authentication required").
		WithDetails("This endpoint requires authentication").
		WithSuggestion("Please log in using the /api/v1/auth/login endpoint and send the token in the 'Authorization: Bearer' header.")
}

// NewRateLimitedError creates an error for clients over their request budget
func NewRateLimitedError(limit int) *EnhancedError {
	return New(ErrCodeRateLimited, "Rate limit exceeded").
		WithDetails(fmt.Sprintf("No more than %d requests per minute are allowed", limit)).
		WithSuggestion("Wait a minute before sending more questions.").
		WithMetadata("limit_per_minute", limit)
}

// NewInsufficientPermissionsError creates an error for a user lacking a required role
func NewInsufficientPermissionsError(required []string) *EnhancedError {
	return New(ErrCodeInsufficientPerms, "Insufficient permissions").
		WithDetails(fmt.Sprintf("This endpoint requires one of the roles: %s", strings.Join(required, ", "))).
		WithSuggestion("Ask an administrator to grant the required role.").
		WithMetadata("required_roles", required)
}

// NewNotFoundError creates an error for a missing resource
func NewNotFoundError(resource, id string) *EnhancedError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", resource)).
		WithDetails(fmt.Sprintf("No %s with id '%s'", strings.ToLower(resource), id)).
		WithMetadata("id", id)
}

// NewMissingRequiredError creates an error for an absent request field
func NewMissingRequiredError(field string) *EnhancedError {
	return New(ErrCodeMissingRequired, fmt.Sprintf("Missing required field: %s", field)).
		WithMetadata("field", field)
}

// NewInvalidInputError creates an error for invalid input
func NewInvalidInputError(field string, reason string) *EnhancedError {
	return New(ErrCodeInvalidInput, "Invalid input").
		WithDetails(fmt.Sprintf("Field '%s' is invalid: %s", field, reason)).
		WithSuggestion("Please check the API documentation for the expected format and try again.")
}

// NewDatabaseConnectionError creates an error for database connection failures
func NewDatabaseConnectionError(err error) *EnhancedError {
	return Wrap(err, ErrCodeDatabaseConnection, "Database connection failed").
		WithDetails("Unable to connect to the history database").
		WithSuggestion("This is an internal server error. The service may be experiencing issues. Please try again in a moment.").
		WithMetadata("retryable", true)
}

// NewHistoryReadError creates an error for query history lookups
func NewHistoryReadError(err error) *EnhancedError {
	return Wrap(err, ErrCodeHistoryRead, "Failed to read query history").
		WithDetails("The query history store did not answer").
		WithSuggestion("Query history is optional. Questions still work while the history store is unavailable.").
		WithMetadata("retryable", true)
}
