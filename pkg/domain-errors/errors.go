// Package dErrors provides coded domain errors shared across services.
//
// Services translate infrastructure sentinels (pkg/platform/sentinel) and
// validation failures into coded errors here; the HTTP layer maps codes to
// status lines in pkg/platform/httputil. Codes are part of the API contract:
// clients branch on them to distinguish policy refusals from system faults.
package dErrors

import (
	"errors"
	"fmt"
)

// Code classifies a domain error for transport mapping and client branching.
type Code string

const (
	// Generic codes.
	CodeInvalidInput Code = "invalid_input"
	CodeValidation   Code = "validation_error"
	CodeBadRequest   Code = "bad_request"
	CodeUnauthorized Code = "unauthorized"
	CodeForbidden    Code = "forbidden"
	CodeNotFound     Code = "not_found"
	CodeConflict     Code = "conflict"
	CodeInternal     Code = "internal_error"
	CodeTimeout      Code = "timeout"
	CodeUnavailable  Code = "unavailable"

	// Ledger and reward policy codes. These are expected business outcomes,
	// not faults: the mutation was refused and no state changed.
	CodeInvalidAmount       Code = "invalid_amount"
	CodeInsufficientBalance Code = "insufficient_balance"
	CodeDailyLimitReached   Code = "daily_limit_reached"
	CodeWeeklyLimitReached  Code = "weekly_limit_reached"
	CodeSelfReferral        Code = "self_referral"
	CodeInvalidReferralCode Code = "invalid_referral_code"
	CodeAlreadyProcessed    Code = "already_processed"
	CodeMissingPlatform     Code = "missing_platform"
	CodeIdentityUnresolved  Code = "identity_unresolved"
)

// Error is a domain error carrying a code, a human-readable message and an
// optional wrapped cause.
type Error struct {
	Code    Code
	Message string
	cause   error
}

// New constructs a coded domain error.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf constructs a coded domain error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying cause. The cause remains
// reachable through errors.Is/As chains.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, cause: err}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the wrapped cause for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.cause
}

// HasCode reports whether err (or anything it wraps) is a domain error with
// the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// CodeOf extracts the code from err, or CodeInternal when err carries none.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}
