package apierror

import (
	"errors"
	"fmt"
	"time"
)

// Kind identifies a class of failure. Kinds are assigned where the failure
// happens and are matched once, in Classify.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindInvalidConfirmation
	KindInvalidParameter
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindQuotaExceeded
	KindRateLimited
	KindStorage
)

// Machine-readable error codes returned to API clients
const (
	CodeValidation          = "VALIDATION_ERROR"
	CodeInvalidConfirmation = "INVALID_CONFIRMATION"
	CodeInvalidParameter    = "INVALID_PARAMETER"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeForbidden           = "FORBIDDEN"
	CodeNotFound            = "NOT_FOUND"
	CodeAILimitExceeded     = "AI_LIMIT_EXCEEDED"
	CodeRateLimited         = "RATE_LIMITED"
	CodeDatabase            = "DATABASE_ERROR"
	CodeInternal            = "INTERNAL_ERROR"
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindInvalidConfirmation:
		return "invalid_confirmation"
	case KindInvalidParameter:
		return "invalid_parameter"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindQuotaExceeded:
		return "quota_exceeded"
	case KindRateLimited:
		return "rate_limited"
	case KindStorage:
		return "storage"
	default:
		return "internal"
	}
}

// QuotaInfo describes an exhausted monthly AI generation quota
type QuotaInfo struct {
	CurrentUsage int
	MonthlyLimit int
	ResetDate    time.Time
}

// Error is the typed failure carried from services to the HTTP layer
type Error struct {
	Kind    Kind
	Message string
	Field   string
	Details map[string]interface{}
	Quota   *QuotaInfo

	// Err is the underlying cause. It is logged, never sent to clients.
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Validation reports malformed or out-of-range input
func Validation(message, field string) *Error {
	return &Error{Kind: KindValidation, Message: message, Field: field}
}

// InvalidParameter reports a path or query parameter with a bad format
func InvalidParameter(message, field string) *Error {
	return &Error{Kind: KindInvalidParameter, Message: message, Field: field}
}

// InvalidConfirmation reports a destructive request without the expected confirmation token
func InvalidConfirmation(message string) *Error {
	return &Error{Kind: KindInvalidConfirmation, Message: message, Field: "confirmation"}
}

func Unauthorized(message string) *Error {
	if message == "" {
		message = "Authentication required"
	}
	return &Error{Kind: KindUnauthorized, Message: message}
}

func Forbidden(message string) *Error {
	if message == "" {
		message = "Permission denied"
	}
	return &Error{Kind: KindForbidden, Message: message}
}

func NotFound(message string) *Error {
	if message == "" {
		message = "Resource not found"
	}
	return &Error{Kind: KindNotFound, Message: message}
}

// QuotaExceeded reports that the monthly AI generation limit has been reached
func QuotaExceeded(currentUsage, monthlyLimit int, resetDate time.Time) *Error {
	resetDate = resetDate.UTC()
	return &Error{
		Kind:    KindQuotaExceeded,
		Message: "Monthly AI generation limit exceeded",
		Details: map[string]interface{}{
			"current_usage": currentUsage,
			"monthly_limit": monthlyLimit,
			"reset_date":    resetDate.Format(time.RFC3339),
		},
		Quota: &QuotaInfo{
			CurrentUsage: currentUsage,
			MonthlyLimit: monthlyLimit,
			ResetDate:    resetDate,
		},
	}
}

// RateLimited reports a short-window request throttle
func RateLimited(message string, retryAfter time.Duration) *Error {
	if message == "" {
		message = "Too many requests. Please slow down."
	}
	seconds := int(retryAfter.Round(time.Second).Seconds())
	if seconds < 1 {
		seconds = 1
	}
	return &Error{
		Kind:    KindRateLimited,
		Message: message,
		Details: map[string]interface{}{"retry_after": seconds},
	}
}

// Storage wraps a backend failure. The cause stays internal.
func Storage(op string, err error) *Error {
	return &Error{
		Kind:    KindStorage,
		Message: "A database error occurred",
		Err:     fmt.Errorf("%s: %w", op, err),
	}
}

// Internal wraps an unexpected failure
func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Message: "An unexpected error occurred", Err: err}
}

// KindOf returns the Kind of err, or KindInternal if err carries none
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given Kind
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
