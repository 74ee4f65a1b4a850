// Package domainerrors defines the coded error type that crosses service
// boundaries. Stores return sentinel errors; services translate them into
// coded errors here so handlers and callers see a stable taxonomy.
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies a stable, caller-visible error kind.
type Code string

const (
	CodeBadRequest   Code = "bad_request"
	CodeUnauthorized Code = "unauthorized"
	CodeNotFound     Code = "not_found"
	CodeConflict     Code = "conflict"
	CodeInternal     Code = "internal_error"

	// Stage 1 taxonomy.
	CodeValidationFailure Code = "validation_failure"
	CodeIssuanceError     Code = "issuance_error"

	// Stage 2 taxonomy.
	CodeTokenInvalid      Code = "token_invalid"
	CodeTokenReplay       Code = "token_replay"
	CodeConsensusAbort    Code = "consensus_abort"
	CodeEquivocation      Code = "equivocation"
	CodeCapacityExhausted Code = "capacity_exhausted"
)

// DomainError carries a code, a human-readable message, and an optional cause.
type DomainError struct {
	Code    Code
	Message string
	cause   error
}

func (e *DomainError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.cause
}

// New constructs a coded error without a cause.
func New(code Code, message string) error {
	return &DomainError{Code: code, Message: message}
}

// Newf constructs a coded error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &DomainError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error. The cause stays
// reachable through errors.Is / errors.As.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &DomainError{Code: code, Message: message, cause: err}
}

// HasCode reports whether err (or anything it wraps) carries the given code.
func HasCode(err error, code Code) bool {
	var de *DomainError
	for errors.As(err, &de) {
		if de.Code == code {
			return true
		}
		err = de.cause
	}
	return false
}

// CodeOf extracts the outermost code, defaulting to CodeInternal for
// unclassified errors so nothing crosses a stage boundary without a kind.
func CodeOf(err error) Code {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// Retryable reports whether the caller may retry the same logical operation.
// Per the propagation policy: issuance failures and consensus aborts are
// retryable; validation and token errors demand a new request or token.
func Retryable(err error) bool {
	switch CodeOf(err) {
	case CodeIssuanceError, CodeConsensusAbort:
		return true
	default:
		return false
	}
}

// ToHTTPStatus maps a code onto an HTTP status for the transport layer.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeBadRequest, CodeValidationFailure:
		return http.StatusBadRequest
	case CodeUnauthorized, CodeTokenInvalid:
		return http.StatusUnauthorized
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict, CodeTokenReplay, CodeEquivocation:
		return http.StatusConflict
	case CodeConsensusAbort, CodeIssuanceError:
		return http.StatusServiceUnavailable
	case CodeCapacityExhausted:
		return http.StatusInsufficientStorage
	default:
		return http.StatusInternalServerError
	}
}
