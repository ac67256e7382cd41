package errors

import (
	stderrors "errors"
	"net/http"
)

// Response formats err as the JSON error body returned by the API
func Response(err error) map[string]interface{} {
	var enhanced *EnhancedError
	if !stderrors.As(err, &enhanced) {
		return map[string]interface{}{
			"error": map[string]interface{}{
				"code":    "INTERNAL_ERROR",
				"message": err.Error(),
			},
		}
	}

	body := map[string]interface{}{
		"code":    enhanced.Code,
		"message": enhanced.Message,
	}
	if enhanced.Details != "" {
		body["details"] = enhanced.Details
	}
	if enhanced.Suggestion != "" {
		body["suggestion"] = enhanced.Suggestion
	}
	if enhanced.Documentation != "" {
		body["documentation"] = enhanced.Documentation
	}
	if len(enhanced.Metadata) > 0 {
		body["metadata"] = enhanced.Metadata
	}

	return map[string]interface{}{"error": body}
}

// HTTPStatus returns the status code matching err's code
func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case ErrCodeInvalidInput, ErrCodeMissingRequired,
		ErrCodeDatasetNotFound, ErrCodeSchemaMismatch,
		ErrCodeUnsafeQuery, ErrCodeExecution:
		return http.StatusBadRequest
	case ErrCodeInvalidCredentials, ErrCodeNotAuthenticated:
		return http.StatusUnauthorized
	case ErrCodeInsufficientPerms:
		return http.StatusForbidden
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case ErrCodeDatabaseConnection, ErrCodeHistoryRead:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
