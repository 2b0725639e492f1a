package types

import (
	"errors"
	"fmt"
)

// ErrorKind classifies domain failures so transports can map them.
type ErrorKind string

const (
	KindNotFound        ErrorKind = "NOT_FOUND"
	KindAccessDenied    ErrorKind = "ACCESS_DENIED"
	KindValidation      ErrorKind = "VALIDATION_ERROR"
	KindConflict        ErrorKind = "CONFLICT"
	KindCrypto          ErrorKind = "CRYPTO_ERROR"
	KindKeyUnavailable  ErrorKind = "KEY_UNAVAILABLE"
	KindUnauthenticated ErrorKind = "UNAUTHENTICATED"
	KindInternal        ErrorKind = "INTERNAL"
)

// Error is the single error type used for domain failures.
type Error struct {
	Kind    ErrorKind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds an *Error of the given kind.
func NewError(kind ErrorKind, op, message string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Err: cause}
}

// NotFound reports a missing conversation, message or key.
func NotFound(op, message string) *Error { return NewError(KindNotFound, op, message, nil) }

// AccessDenied reports a failed membership or role check.
func AccessDenied(op, message string) *Error { return NewError(KindAccessDenied, op, message, nil) }

// Validation reports malformed input or a recipient-set mismatch.
func Validation(op, message string) *Error { return NewError(KindValidation, op, message, nil) }

// Conflict reports a uniqueness violation in storage.
func Conflict(op, message string) *Error { return NewError(KindConflict, op, message, nil) }

// CryptoFailure reports a missing key, a missing envelope or an AEAD failure.
func CryptoFailure(op, message string, cause error) *Error {
	return NewError(KindCrypto, op, message, cause)
}

// KeyUnavailable reports that the local keypair has not been loaded yet.
func KeyUnavailable(op string) *Error {
	return NewError(KindKeyUnavailable, op, "local keypair not ready", nil)
}

// Unauthenticated reports missing or invalid credentials.
func Unauthenticated(op, message string) *Error {
	return NewError(KindUnauthenticated, op, message, nil)
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	if err == nil {
		return false
	}
	return KindOf(err) == kind
}

// PublicMessage returns a message safe to show to remote callers.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != KindInternal {
		if e.Message != "" {
			return e.Message
		}
		return string(e.Kind)
	}
	return "internal error"
}
