package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/uptime-rewards/internal/types"
)

// ErrorCategory represents the category of an error
type ErrorCategory string

const (
	// CategoryValidation represents malformed or out-of-range input (4xx)
	CategoryValidation ErrorCategory = "validation"
	// CategorySystem represents system errors (5xx)
	CategorySystem ErrorCategory = "system"
	// CategoryDatabase represents account store errors
	CategoryDatabase ErrorCategory = "database"
	// CategoryCache represents tick cache and nonce store errors
	CategoryCache ErrorCategory = "cache"
	// CategoryAuthorization represents missing or invalid credentials
	CategoryAuthorization ErrorCategory = "authorization"
	// CategoryForbidden represents an authenticated caller without the right to act
	CategoryForbidden ErrorCategory = "forbidden"
	// CategoryNotFound represents not found errors
	CategoryNotFound ErrorCategory = "not_found"
	// CategoryConflict represents conflict errors
	CategoryConflict ErrorCategory = "conflict"
	// CategoryRateLimit represents rate limit errors
	CategoryRateLimit ErrorCategory = "rate_limit"
)

// CategorizedError represents an error with category and HTTP status code
type CategorizedError struct {
	Category   ErrorCategory
	StatusCode int
	Code       string
	Message    string
	Details    map[string]interface{}
	Cause      error
}

// Error implements the error interface
func (e *CategorizedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *CategorizedError) Unwrap() error {
	return e.Cause
}

// ToServiceError converts to the JSON error body
func (e *CategorizedError) ToServiceError() *types.ServiceError {
	return &types.ServiceError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	}
}

// Validation errors

// NewInvalidWalletError reports an address that is not a 20-byte hex address.
func NewInvalidWalletError(wallet string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryValidation,
		StatusCode: http.StatusBadRequest,
		Code:       types.ErrCodeInvalidWallet,
		Message:    fmt.Sprintf("invalid wallet address: %s", wallet),
		Details: map[string]interface{}{
			"wallet": wallet,
		},
	}
}

// NewInvalidParameterError creates an invalid parameter error
func NewInvalidParameterError(param string, reason string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryValidation,
		StatusCode: http.StatusBadRequest,
		Code:       types.ErrCodeInvalidParameter,
		Message:    fmt.Sprintf("invalid parameter '%s': %s", param, reason),
		Details: map[string]interface{}{
			"parameter": param,
			"reason":    reason,
		},
	}
}

// Authorization errors

// NewUnauthorizedError creates an unauthorized error
func NewUnauthorizedError(message string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryAuthorization,
		StatusCode: http.StatusUnauthorized,
		Code:       types.ErrCodeUnauthorized,
		Message:    message,
	}
}

// NewForbiddenError creates a forbidden error
func NewForbiddenError(message string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryForbidden,
		StatusCode: http.StatusForbidden,
		Code:       types.ErrCodeForbidden,
		Message:    message,
	}
}

// NewBannedError reports an account an admin has banned.
func NewBannedError(wallet string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryForbidden,
		StatusCode: http.StatusForbidden,
		Code:       types.ErrCodeBanned,
		Message:    "account is banned",
		Details: map[string]interface{}{
			"wallet": wallet,
		},
	}
}

// NewNotFoundError creates a not found error
func NewNotFoundError(resource string, id string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryNotFound,
		StatusCode: http.StatusNotFound,
		Code:       types.ErrCodeNotFound,
		Message:    fmt.Sprintf("%s not found: %s", resource, id),
		Details: map[string]interface{}{
			"resource": resource,
			"id":       id,
		},
	}
}

// NewConflictError creates a conflict error
func NewConflictError(message string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryConflict,
		StatusCode: http.StatusConflict,
		Code:       types.ErrCodeConflict,
		Message:    message,
	}
}

// NewTakenError reports a unique profile value another account holds.
func NewTakenError(field string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryConflict,
		StatusCode: http.StatusConflict,
		Code:       types.ErrCodeTaken,
		Message:    fmt.Sprintf("%s is already in use", field),
		Details: map[string]interface{}{
			"field": field,
		},
	}
}

// NewAlreadySetError reports a set-once profile value that was already set.
func NewAlreadySetError(field string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryConflict,
		StatusCode: http.StatusConflict,
		Code:       types.ErrCodeAlreadySet,
		Message:    fmt.Sprintf("%s can only be changed once", field),
		Details: map[string]interface{}{
			"field": field,
		},
	}
}

// NewRateLimitError creates a rate limit error
func NewRateLimitError(retryAfter int) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryRateLimit,
		StatusCode: http.StatusTooManyRequests,
		Code:       types.ErrCodeRateLimited,
		Message:    "rate limit exceeded",
		Details: map[string]interface{}{
			"retryAfter": retryAfter,
		},
	}
}

// System errors

// NewInternalError creates an internal server error
func NewInternalError(message string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategorySystem,
		StatusCode: http.StatusInternalServerError,
		Code:       types.ErrCodeInternal,
		Message:    message,
		Cause:      cause,
	}
}

// NewDatabaseError creates a database error
func NewDatabaseError(operation string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryDatabase,
		StatusCode: http.StatusInternalServerError,
		Code:       types.ErrCodeDatabase,
		Message:    fmt.Sprintf("database error during %s", operation),
		Cause:      cause,
		Details: map[string]interface{}{
			"operation": operation,
		},
	}
}

// NewCacheError creates a cache error
func NewCacheError(operation string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryCache,
		StatusCode: http.StatusInternalServerError,
		Code:       types.ErrCodeCache,
		Message:    fmt.Sprintf("cache error during %s", operation),
		Cause:      cause,
		Details: map[string]interface{}{
			"operation": operation,
		},
	}
}

// NewServiceUnavailableError creates a service unavailable error
func NewServiceUnavailableError(service string) *CategorizedError {
	return &CategorizedError{
		Category:   CategorySystem,
		StatusCode: http.StatusServiceUnavailable,
		Code:       types.ErrCodeUnavailable,
		Message:    fmt.Sprintf("service unavailable: %s", service),
		Details: map[string]interface{}{
			"service": service,
		},
	}
}

// Categorize categorizes an existing error. Wrapped categorized errors are
// found through the chain.
func Categorize(err error) *CategorizedError {
	if err == nil {
		return nil
	}

	var catErr *CategorizedError
	if stderrors.As(err, &catErr) {
		return catErr
	}

	var svcErr *types.ServiceError
	if stderrors.As(err, &svcErr) {
		return categorizeServiceError(svcErr)
	}

	return NewInternalError("unexpected error", err)
}

var serviceErrorStatus = map[string]struct {
	category ErrorCategory
	status   int
}{
	types.ErrCodeInvalidWallet:    {CategoryValidation, http.StatusBadRequest},
	types.ErrCodeInvalidParameter: {CategoryValidation, http.StatusBadRequest},
	types.ErrCodeUnauthorized:     {CategoryAuthorization, http.StatusUnauthorized},
	types.ErrCodeForbidden:        {CategoryForbidden, http.StatusForbidden},
	types.ErrCodeBanned:           {CategoryForbidden, http.StatusForbidden},
	types.ErrCodeNotFound:         {CategoryNotFound, http.StatusNotFound},
	types.ErrCodeConflict:         {CategoryConflict, http.StatusConflict},
	types.ErrCodeTaken:            {CategoryConflict, http.StatusConflict},
	types.ErrCodeAlreadySet:       {CategoryConflict, http.StatusConflict},
	types.ErrCodeRateLimited:      {CategoryRateLimit, http.StatusTooManyRequests},
}

func categorizeServiceError(err *types.ServiceError) *CategorizedError {
	mapping, ok := serviceErrorStatus[err.Code]
	if !ok {
		mapping.category = CategorySystem
		mapping.status = http.StatusInternalServerError
	}
	return &CategorizedError{
		Category:   mapping.category,
		StatusCode: mapping.status,
		Code:       err.Code,
		Message:    err.Message,
		Details:    err.Details,
	}
}

// IsRetryable determines if an error is worth retrying
func IsRetryable(err error) bool {
	catErr := Categorize(err)
	if catErr == nil {
		return false
	}

	switch catErr.Category {
	case CategoryDatabase, CategoryCache:
		return true
	case CategorySystem:
		return catErr.StatusCode == http.StatusServiceUnavailable ||
			catErr.StatusCode == http.StatusGatewayTimeout
	default:
		return false
	}
}

// IsSystemError determines if an error is a system error (5xx)
func IsSystemError(err error) bool {
	catErr := Categorize(err)
	if catErr == nil {
		return false
	}
	return catErr.StatusCode >= 500
}

// HasCode reports whether err categorizes to the given code.
func HasCode(err error, code string) bool {
	catErr := Categorize(err)
	return catErr != nil && catErr.Code == code
}
