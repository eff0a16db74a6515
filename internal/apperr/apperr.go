// Package apperr implements the error taxonomy from the platform spec:
// transport, validation, authorization, policy, capacity, consistency and
// fatal errors, each mapped to a stable machine-readable code.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind categorizes an error per the taxonomy.
type Kind string

const (
	KindTransport     Kind = "transport"
	KindValidation    Kind = "validation"
	KindAuthorization Kind = "authorization"
	KindPolicy        Kind = "policy"
	KindCapacity      Kind = "capacity"
	KindConsistency   Kind = "consistency"
	KindFatal         Kind = "fatal"
	KindNotFound      Kind = "not_found"
)

// Sentinel errors for comparison with errors.Is.
var (
	ErrNotFound       = errors.New("not found")
	ErrAlreadyTerminal = errors.New("request already in a terminal state")
	ErrUnauthorized   = errors.New("actor not authorized for this request")
	ErrQuotaExceeded  = errors.New("quota exceeded")
	ErrRateLimited    = errors.New("rate limited")
	ErrBlocked        = errors.New("blocked by policy")
)

// CodedError carries the operation, kind, HTTP status, a stable machine
// token, and the wrapped cause. It renders as the {success:false, error,
// code} shape every HTTP surface in this repo returns on failure.
type CodedError struct {
	Op      string
	Kind    Kind
	Code    string
	Status  int
	Message string
	Err     error
}

func (e *CodedError) Error() string {
	if e.Op != "" && e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Kind)
}

func (e *CodedError) Unwrap() error { return e.Err }

// New builds a CodedError. status defaults based on kind when zero.
func New(op string, kind Kind, code, message string, err error) *CodedError {
	return &CodedError{
		Op:      op,
		Kind:    kind,
		Code:    code,
		Status:  statusForKind(kind),
		Message: message,
		Err:     err,
	}
}

// NewWithStatus is like New but with an explicit HTTP status.
func NewWithStatus(op string, kind Kind, code string, status int, message string, err error) *CodedError {
	e := New(op, kind, code, message, err)
	e.Status = status
	return e
}

func statusForKind(kind Kind) int {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuthorization:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindPolicy:
		return http.StatusForbidden
	case KindCapacity:
		return http.StatusTooManyRequests
	case KindConsistency:
		return http.StatusConflict
	case KindTransport:
		return http.StatusBadGateway
	case KindFatal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// As extracts a *CodedError from err, if present.
func As(err error) (*CodedError, bool) {
	var ce *CodedError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// StatusAndCode returns the HTTP status and machine code to surface for
// any error, falling back to a generic internal error for unmapped types.
func StatusAndCode(err error) (int, string) {
	if ce, ok := As(err); ok {
		return ce.Status, ce.Code
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, ErrAlreadyTerminal):
		return http.StatusBadRequest, "ALREADY_TERMINAL"
	case errors.Is(err, ErrUnauthorized):
		return http.StatusForbidden, "FORBIDDEN"
	case errors.Is(err, ErrQuotaExceeded):
		return http.StatusTooManyRequests, "QUOTA_ERROR"
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, "RATE_LIMITED"
	case errors.Is(err, ErrBlocked):
		return http.StatusForbidden, "POLICY_DENIED"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}
