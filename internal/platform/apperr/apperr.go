package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// ===== Error model (catalog/membership/lending 共通) =====
type Code string

const (
	CodeInvalidArgument Code = "INVALID_ARGUMENT"
	CodeNotFound        Code = "NOT_FOUND"
	CodeViolation       Code = "BUSINESS_RULE_VIOLATION" // 在庫なし・二重貸出・未貸出の返却など
	CodeUnauthenticated Code = "UNAUTHENTICATED"
	CodeForbidden       Code = "FORBIDDEN"
	CodeInternal        Code = "INTERNAL"
)

type APIError struct {
	Code    Code
	Reason  string
	Message string
}

func (e *APIError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s(%s): %s", e.Code, e.Reason, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func Invalid(msg string) *APIError  { return &APIError{Code: CodeInvalidArgument, Message: msg} }
func NotFound(msg string) *APIError { return &APIError{Code: CodeNotFound, Message: msg} }
func Unauthenticated(msg string) *APIError {
	return &APIError{Code: CodeUnauthenticated, Message: msg}
}
func Forbidden(msg string) *APIError { return &APIError{Code: CodeForbidden, Message: msg} }

// Violation is a rejected business operation; reason is a stable machine-readable tag.
func Violation(reason, msg string) *APIError {
	return &APIError{Code: CodeViolation, Reason: reason, Message: msg}
}

// As unwraps err to an *APIError if it is (or wraps) one.
func As(err error) (*APIError, bool) {
	var api *APIError
	if errors.As(err, &api) {
		return api, true
	}
	return nil, false
}

// HasReason reports whether err is a violation with the given reason.
func HasReason(err error, reason string) bool {
	api, ok := As(err)
	return ok && api.Reason == reason
}

func ToHTTPStatus(err error) int {
	if api, ok := As(err); ok {
		switch api.Code {
		case CodeInvalidArgument, CodeViolation:
			return http.StatusBadRequest
		case CodeNotFound:
			return http.StatusNotFound
		case CodeUnauthenticated:
			return http.StatusUnauthorized
		case CodeForbidden:
			return http.StatusForbidden
		default:
			return http.StatusInternalServerError
		}
	}
	return http.StatusInternalServerError
}

// ===== Response body =====

type ErrorDTO struct {
	Error struct {
		Code    Code   `json:"code"`
		Reason  string `json:"reason,omitempty"`
		Message string `json:"message"`
	} `json:"error"`
}

func NewBody(code Code, msg string) ErrorDTO {
	var e ErrorDTO
	e.Error.Code = code
	e.Error.Message = msg
	return e
}

// Body renders err for the client. Errors that are not *APIError are
// datastore or programming failures; their text is not exposed.
func Body(err error) ErrorDTO {
	if api, ok := As(err); ok {
		e := NewBody(api.Code, api.Message)
		e.Error.Reason = api.Reason
		return e
	}
	return NewBody(CodeInternal, "internal server error")
}
