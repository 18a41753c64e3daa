// Package gwerr defines the gateway's closed error taxonomy.
package gwerr

import (
	"errors"
	"fmt"
)

// Kind enumerates the gateway's error categories. Control API and CLI
// surfaces translate a Kind to a status code via a single mapping table
// (see Kind.HTTPStatus).
type Kind int

const (
	KindUnknown Kind = iota
	KindUnknownSession
	KindUnknownProvider
	KindTurnInProgress
	KindToolNotFound
	KindValidationError
	KindPolicyDenied
	KindPathOutsideRoots
	KindProviderTransport
	KindProviderAuth
	KindProviderTimeout
	KindCancelled
	KindBudgetExceeded
	KindLockConflict
	KindCorrupt
	KindConflict
	KindGatewayStopping
)

func (k Kind) String() string {
	switch k {
	case KindUnknownSession:
		return "UnknownSession"
	case KindUnknownProvider:
		return "UnknownProvider"
	case KindTurnInProgress:
		return "TurnInProgress"
	case KindToolNotFound:
		return "ToolNotFound"
	case KindValidationError:
		return "ValidationError"
	case KindPolicyDenied:
		return "PolicyDenied"
	case KindPathOutsideRoots:
		return "PathOutsideRoots"
	case KindProviderTransport:
		return "ProviderTransport"
	case KindProviderAuth:
		return "ProviderAuth"
	case KindProviderTimeout:
		return "ProviderTimeout"
	case KindCancelled:
		return "Cancelled"
	case KindBudgetExceeded:
		return "BudgetExceeded"
	case KindLockConflict:
		return "LockConflict"
	case KindCorrupt:
		return "Corrupt"
	case KindConflict:
		return "Conflict"
	case KindGatewayStopping:
		return "GatewayStopping"
	default:
		return "Unknown"
	}
}

// Retryable reports whether operations of this kind may succeed if retried,
// possibly against a different provider (see internal/failover).
func (k Kind) Retryable() bool {
	switch k {
	case KindProviderTransport, KindProviderTimeout, KindLockConflict:
		return true
	default:
		return false
	}
}

// HTTPStatus maps a Kind to the Control API's status code (spec.md §6:
// "401 unauthorized, 429 mutation_rate_limited, 400 invalid_request,
// 404 not_found, 500 internal_error"). Kinds with no closer fit fall
// through to 500.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindUnknownSession, KindUnknownProvider, KindToolNotFound:
		return 404
	case KindValidationError, KindPolicyDenied, KindPathOutsideRoots, KindBudgetExceeded:
		return 400
	case KindTurnInProgress, KindConflict, KindLockConflict:
		return 409
	case KindProviderAuth:
		return 401
	case KindGatewayStopping:
		return 503
	default:
		return 500
	}
}

// Code returns the Control API's machine-readable error code string for
// this kind, used in the `{ok:false, code, message, issues?}` envelope.
func (k Kind) Code() string {
	switch k {
	case KindUnknownSession, KindUnknownProvider, KindToolNotFound:
		return "not_found"
	case KindValidationError, KindPolicyDenied, KindPathOutsideRoots, KindBudgetExceeded:
		return "invalid_request"
	case KindProviderAuth:
		return "unauthorized"
	case KindGatewayStopping:
		return "gateway_stopping"
	default:
		return "internal_error"
	}
}

// Issue describes a single validation failure, e.g. a JSON-schema violation
// on a tool call argument.
type Issue struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error is the gateway's wrapped error type. Use errors.As to recover a
// *Error and inspect Kind/Issues; use %w wrapping to preserve Cause.
type Error struct {
	Kind    Kind
	Message string
	Issues  []Issue
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds a bare gwerr.Error with no cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds a gwerr.Error carrying cause as its Unwrap target.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Validation builds a KindValidationError with the given issues.
func Validation(message string, issues ...Issue) *Error {
	return &Error{Kind: KindValidationError, Message: message, Issues: issues}
}

// As recovers a *Error from err, returning (nil, false) if err does not
// wrap one.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the Kind of err if it wraps a *Error, else KindUnknown.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err wraps a *Error of the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
