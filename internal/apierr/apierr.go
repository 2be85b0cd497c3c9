// Package apierr defines the closed error-code taxonomy surfaced through the
// API response envelope and its mapping to HTTP status codes.
package apierr

import "net/http"

type Code string

const (
	// Authentication
	CodeUnauthorized Code = "UNAUTHORIZED"
	CodeForbidden    Code = "FORBIDDEN"
	CodeTokenExpired Code = "TOKEN_EXPIRED"
	CodeInvalidToken Code = "INVALID_TOKEN"

	// Validation
	CodeValidation           Code = "VALIDATION_ERROR"
	CodeInvalidInput         Code = "INVALID_INPUT"
	CodeMissingRequiredField Code = "MISSING_REQUIRED_FIELD"

	// Resource
	CodeNotFound      Code = "NOT_FOUND"
	CodeAlreadyExists Code = "ALREADY_EXISTS"
	CodeConflict      Code = "CONFLICT"

	// Rate
	CodeRateLimited   Code = "RATE_LIMITED"
	CodeQuotaExceeded Code = "QUOTA_EXCEEDED"

	// Credit
	CodeInsufficientCredits Code = "INSUFFICIENT_CREDITS"
	CodeCreditChargeFailed  Code = "CREDIT_CHARGE_FAILED"

	// Job
	CodeJobNotFound         Code = "JOB_NOT_FOUND"
	CodeJobAlreadyCompleted Code = "JOB_ALREADY_COMPLETED"
	CodeJobCancelled        Code = "JOB_CANCELLED"
	CodeMaxConcurrentJobs   Code = "MAX_CONCURRENT_JOBS"

	// Subscription
	CodeSubscriptionRequired Code = "SUBSCRIPTION_REQUIRED"
	CodeSubscriptionInactive Code = "SUBSCRIPTION_INACTIVE"

	// External
	CodeExternalServiceError Code = "EXTERNAL_SERVICE_ERROR"
	CodeAIProviderError      Code = "AI_PROVIDER_ERROR"

	// Internal
	CodeInternalError      Code = "INTERNAL_ERROR"
	CodeServiceUnavailable Code = "SERVICE_UNAVAILABLE"
)

// Error is an API-surfaced error with a taxonomy code and a human-readable
// message.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return string(e.Code) + ": " + e.Message
}

// New builds an Error for the given code.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

var httpStatus = map[Code]int{
	CodeUnauthorized:         http.StatusUnauthorized,
	CodeForbidden:            http.StatusForbidden,
	CodeTokenExpired:         http.StatusUnauthorized,
	CodeInvalidToken:         http.StatusUnauthorized,
	CodeValidation:           http.StatusBadRequest,
	CodeInvalidInput:         http.StatusBadRequest,
	CodeMissingRequiredField: http.StatusBadRequest,
	CodeNotFound:             http.StatusNotFound,
	CodeAlreadyExists:        http.StatusConflict,
	CodeConflict:             http.StatusConflict,
	CodeRateLimited:          http.StatusTooManyRequests,
	CodeQuotaExceeded:        http.StatusTooManyRequests,
	CodeInsufficientCredits:  http.StatusPaymentRequired,
	CodeCreditChargeFailed:   http.StatusPaymentRequired,
	CodeJobNotFound:          http.StatusNotFound,
	CodeJobAlreadyCompleted:  http.StatusConflict,
	CodeJobCancelled:         http.StatusConflict,
	CodeMaxConcurrentJobs:    http.StatusTooManyRequests,
	CodeSubscriptionRequired: http.StatusForbidden,
	CodeSubscriptionInactive: http.StatusForbidden,
	CodeExternalServiceError: http.StatusBadGateway,
	CodeAIProviderError:      http.StatusBadGateway,
	CodeInternalError:        http.StatusInternalServerError,
	CodeServiceUnavailable:   http.StatusServiceUnavailable,
}

// HTTPStatus maps a code to its HTTP status; unknown codes map to 500.
func HTTPStatus(code Code) int {
	if s, ok := httpStatus[code]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// Retryable reports whether a client may retry the request with backoff.
// Only rate-limit and 5xx-class codes qualify.
func Retryable(code Code) bool {
	switch code {
	case CodeRateLimited, CodeQuotaExceeded, CodeExternalServiceError,
		CodeAIProviderError, CodeInternalError, CodeServiceUnavailable:
		return true
	}
	return false
}
