package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnhancedError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *EnhancedError
		expected string
	}{
		{
			name:     "message only",
			err:      New(ErrCodeInvalidInput, "Invalid input"),
			expected: "[INVALID_INPUT] Invalid input",
		},
		{
			name:     "with details",
			err:      New(ErrCodeUnsafeQuery, "Forbidden SQL operation").WithDetails("keyword drop"),
			expected: "[UNSAFE_QUERY] Forbidden SQL operation: keyword drop",
		},
		{
			name:     "with cause",
			err:      Wrap(fmt.Errorf("boom"), ErrCodeExecution, "SQL Error"),
			expected: "[EXECUTION_ERROR] SQL Error (cause: boom)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestEnhancedError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("no such column: foo")
	err := NewExecutionError(cause)

	assert.True(t, stderrors.Is(err, cause))
	assert.Equal(t, cause.Error(), err.Details)
}

func TestCodeOf(t *testing.T) {
	err := NewSchemaMismatchError("hr.csv", []string{"age", "service"})
	wrapped := fmt.Errorf("loading dataset: %w", err)

	assert.Equal(t, ErrCodeSchemaMismatch, CodeOf(wrapped))
	assert.True(t, HasCode(wrapped, ErrCodeSchemaMismatch))
	assert.False(t, HasCode(wrapped, ErrCodeDatasetNotFound))
	assert.Equal(t, ErrorCode(""), CodeOf(fmt.Errorf("plain")))
	assert.Equal(t, ErrorCode(""), CodeOf(nil))
}

func TestConstructors(t *testing.T) {
	t.Run("dataset not found", func(t *testing.T) {
		err := NewDatasetNotFoundError("missing.csv")
		assert.Equal(t, ErrCodeDatasetNotFound, err.Code)
		assert.Equal(t, "Dataset file not found", err.Message)
		assert.Equal(t, "missing.csv", err.Metadata["dataset"])
	})

	t.Run("schema mismatch lists columns", func(t *testing.T) {
		err := NewSchemaMismatchError("bad.csv", []string{"hire_date"})
		assert.Contains(t, err.Details, "hire_date")
		assert.Equal(t, []string{"hire_date"}, err.Metadata["missing_columns"])
	})

	t.Run("unsafe query", func(t *testing.T) {
		err := NewUnsafeQueryError("drop")
		assert.Equal(t, ErrCodeUnsafeQuery, err.Code)
		assert.Equal(t, "Forbidden SQL operation", err.Message)
		assert.Equal(t, "drop", err.Metadata["keyword"])
	})

	t.Run("injection shares the unsafe code", func(t *testing.T) {
		err := NewInjectionDetectedError("department", "s&1c")
		assert.Equal(t, ErrCodeUnsafeQuery, err.Code)
		assert.Equal(t, "s&1c", err.Metadata["fingerprint"])
	})

	t.Run("rate limited", func(t *testing.T) {
		err := NewRateLimitedError(60)
		assert.Equal(t, 60, err.Metadata["limit_per_minute"])
	})
}

func TestUserMessage(t *testing.T) {
	err := NewInvalidInputError("text", "must not be empty")
	msg := err.UserMessage()

	require.NotEmpty(t, msg)
	assert.Contains(t, msg, "Invalid input")
	assert.Contains(t, msg, "Details: Field 'text' is invalid: must not be empty")
	assert.Contains(t, msg, "Suggestion:")
}

func TestWithMetadata_NilMap(t *testing.T) {
	err := &EnhancedError{Code: ErrCodeCacheRead}
	err.WithMetadata("key", "query:abc")
	assert.Equal(t, "query:abc", err.Metadata["key"])
}
