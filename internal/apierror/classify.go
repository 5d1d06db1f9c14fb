package apierror

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Payload is the body of every error response
type Payload struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Field   string                 `json:"field,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// Body wraps Payload as {"error": {...}}
type Body struct {
	Error Payload `json:"error"`
}

// Response is the classified form of an error: HTTP status plus JSON body
type Response struct {
	Status int
	Kind   Kind
	Body   Body
}

// Classify maps any error to the fixed API error taxonomy. Typed errors are
// matched first; validator and JSON decoding failures count as validation
// errors; everything else is an internal error.
func Classify(err error) Response {
	var (
		apiErr    *Error
		valErrs   validator.ValidationErrors
		syntaxErr *json.SyntaxError
		typeErr   *json.UnmarshalTypeError
	)

	switch {
	case errors.As(err, &apiErr):
		return fromError(apiErr)
	case errors.As(err, &valErrs):
		return fromError(FromValidation(valErrs))
	case errors.As(err, &syntaxErr):
		return fromError(Validation("Request body is not valid JSON", ""))
	case errors.As(err, &typeErr):
		return fromError(Validation(fmt.Sprintf("Invalid type for field %s", typeErr.Field), typeErr.Field))
	default:
		return fromError(Internal(err))
	}
}

// Status returns the HTTP status code for a Kind
func (k Kind) Status() int {
	switch k {
	case KindValidation, KindInvalidConfirmation, KindInvalidParameter:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindQuotaExceeded, KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Code returns the machine-readable error code for a Kind
func (k Kind) Code() string {
	switch k {
	case KindValidation:
		return CodeValidation
	case KindInvalidConfirmation:
		return CodeInvalidConfirmation
	case KindInvalidParameter:
		return CodeInvalidParameter
	case KindUnauthorized:
		return CodeUnauthorized
	case KindForbidden:
		return CodeForbidden
	case KindNotFound:
		return CodeNotFound
	case KindQuotaExceeded:
		return CodeAILimitExceeded
	case KindRateLimited:
		return CodeRateLimited
	case KindStorage:
		return CodeDatabase
	default:
		return CodeInternal
	}
}

func fromError(e *Error) Response {
	payload := Payload{
		Code:    e.Kind.Code(),
		Message: e.Message,
		Field:   e.Field,
		Details: e.Details,
	}

	// Backend text never leaves the process
	switch e.Kind {
	case KindStorage:
		payload.Message = "A database error occurred"
		payload.Details = nil
	case KindInternal:
		payload.Message = "An unexpected error occurred"
		payload.Details = nil
	}

	return Response{Status: e.Kind.Status(), Kind: e.Kind, Body: Body{Error: payload}}
}

// FromValidation converts validator errors into a single validation error.
// The first failing field becomes Field; all failures are listed in details.
func FromValidation(errs validator.ValidationErrors) *Error {
	if len(errs) == 0 {
		return Validation("Validation failed", "")
	}

	fieldErrors := make(map[string][]string, len(errs))
	for _, fe := range errs {
		name := fieldPath(fe)
		fieldErrors[name] = append(fieldErrors[name], describe(fe))
	}

	first := errs[0]
	return &Error{
		Kind:    KindValidation,
		Message: describe(first),
		Field:   fieldPath(first),
		Details: map[string]interface{}{"field_errors": fieldErrors},
	}
}

// fieldPath drops the root struct name from the validator namespace
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func describe(fe validator.FieldError) string {
	name := fieldPath(fe)
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", name)
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", name, fe.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", name, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", name, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", name, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", name, fe.Param())
	case "notblank":
		return fmt.Sprintf("%s cannot be empty", name)
	default:
		return fmt.Sprintf("%s is invalid", name)
	}
}
