package chain

import "errors"

// Kind is a stable category for programmatic error handling.
//
// These categories are intended to remain stable across versions.
// Callers should branch on Kind/RuleID rather than matching error strings.
//
// NOTE: Error() strings are intentionally kept human-readable and may evolve.
// Use errors.As to extract *Error for structured handling.
type Kind string

const (
	KindChainIntegrity         Kind = "ChainIntegrity"
	KindValidation             Kind = "Validation"
	KindUnknownReference       Kind = "UnknownReference"
	KindConcurrentModification Kind = "ConcurrentModification"
	KindSerialization          Kind = "Serialization"
	KindCrypto                 Kind = "Crypto"
	KindInternal               Kind = "Internal"
)

// Error is the module's structured error type.
//
// RuleID is a stable identifier (e.g., CHAIN-INT-001, CHAIN-REF-002,
// CHAIN-SER-101) that names the violated invariant.
//
// Message is intended for humans; do not match on it.
type Error struct {
	Kind    Kind
	RuleID  string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// NewError constructs a structured error with no cause.
func NewError(kind Kind, ruleID, msg string) error {
	return &Error{Kind: kind, RuleID: ruleID, Message: msg}
}

// WrapError constructs a structured error wrapping cause.
func WrapError(kind Kind, ruleID, msg string, cause error) error {
	if cause == nil {
		return NewError(kind, ruleID, msg)
	}
	return &Error{Kind: kind, RuleID: ruleID, Message: msg, Cause: cause}
}

// IsKind reports whether err is (or wraps) a *Error with the given Kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

// RuleID returns the stable RuleID for a structured error, or "" if unknown.
func RuleID(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	return e.RuleID
}

// IsRetryable reports whether a failed mutation may be re-attempted as-is.
// Only concurrent tip movement is retryable; every other failure is final
// for that attempt.
func IsRetryable(err error) bool {
	return IsKind(err, KindConcurrentModification)
}
