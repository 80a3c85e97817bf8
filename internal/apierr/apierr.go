// Package apierr defines the error taxonomy shared by the REST and gateway surfaces: a stable machine-readable Code,
// the Kind it maps to, and the HTTP status that Kind carries.
package apierr

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v3"
)

// Kind buckets a Code into one of the handful of response shapes the API distinguishes between.
type Kind string

const (
	KindUnauthenticated   Kind = "unauthenticated"
	KindForbidden         Kind = "forbidden"
	KindBadRequest        Kind = "bad_request"
	KindNotFound          Kind = "not_found"
	KindConflict          Kind = "conflict"
	KindDependencyFailure Kind = "dependency_failure"
)

// Code is a stable, machine-readable error identifier returned in API responses.
type Code string

const (
	CodeUnauthenticated   Code = "unauthenticated"
	CodeInvalidToken      Code = "invalid_token"
	CodeTokenExpired      Code = "token_expired"
	CodeForbidden         Code = "forbidden"
	CodeNotMember         Code = "not_member"
	CodeBadRequest        Code = "bad_request"
	CodeValidation        Code = "validation_failed"
	CodeNotFound          Code = "not_found"
	CodeConflict          Code = "conflict"
	CodeDependencyFailure Code = "dependency_failure"
)

// Error is the error type carried through service and repository layers. It pairs a Code/Kind with a
// caller-presentable message and an optional wrapped cause for logging.
type Error struct {
	Code    Code
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func newErr(code Code, kind Kind, message string) *Error {
	return &Error{Code: code, Kind: kind, Message: message}
}

func Unauthenticated(message string) *Error { return newErr(CodeUnauthenticated, KindUnauthenticated, message) }
func InvalidToken(message string) *Error    { return newErr(CodeInvalidToken, KindUnauthenticated, message) }
func TokenExpired(message string) *Error    { return newErr(CodeTokenExpired, KindUnauthenticated, message) }
func Forbidden(message string) *Error       { return newErr(CodeForbidden, KindForbidden, message) }
func NotMember(message string) *Error       { return newErr(CodeNotMember, KindForbidden, message) }
func BadRequest(message string) *Error      { return newErr(CodeBadRequest, KindBadRequest, message) }
func Validation(message string) *Error      { return newErr(CodeValidation, KindBadRequest, message) }
func NotFound(message string) *Error        { return newErr(CodeNotFound, KindNotFound, message) }
func Conflict(message string) *Error        { return newErr(CodeConflict, KindConflict, message) }

// Dependency wraps a failure from an external dependency (database, cache, blob store) with a caller-presentable
// message while preserving the underlying cause for logging.
func Dependency(message string, cause error) *Error {
	return &Error{Code: CodeDependencyFailure, Kind: KindDependencyFailure, Message: message, Cause: cause}
}

// As extracts an *Error from err, if any wraps one.
func As(err error) (*Error, bool) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// HTTPStatus returns the HTTP status code associated with a Kind.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindUnauthenticated:
		return fiber.StatusUnauthorized
	case KindForbidden:
		return fiber.StatusForbidden
	case KindBadRequest:
		return fiber.StatusBadRequest
	case KindNotFound:
		return fiber.StatusNotFound
	case KindConflict:
		return fiber.StatusConflict
	case KindDependencyFailure:
		return fiber.StatusInternalServerError
	default:
		return fiber.StatusInternalServerError
	}
}
