package apperr

import (
	"errors"
	"net/http"
)

// Kind is the stable, caller-facing name of an error condition.
type Kind string

const (
	KindMalformedToken          Kind = "MalformedToken"
	KindInvalidToken            Kind = "InvalidToken"
	KindInactiveAccount         Kind = "InactiveAccount"
	KindRateLimited             Kind = "RateLimited"
	KindDecryptionFailed        Kind = "DecryptionFailed"
	KindCodeNotFound            Kind = "CodeNotFound"
	KindCodeExpired             Kind = "CodeExpired"
	KindCodeAlreadyClaimed      Kind = "CodeAlreadyClaimed"
	KindCodeGenerationExhausted Kind = "CodeGenerationExhausted"
	KindNotPending              Kind = "NotPending"
	KindUnauthorized            Kind = "Unauthorized"
	KindProfileChangeConflict   Kind = "ProfileChangeConflict"
	KindNotFound                Kind = "NotFound"
	KindInvalidInput            Kind = "InvalidInput"
	KindForbidden               Kind = "Forbidden"
	KindInternal                Kind = "InternalError"
)

// Error is a domain error carrying its Kind and a safe message.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Message
}

// Is matches any *Error of the same Kind, so errors.Is(err, ErrNotPending)
// works regardless of the message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrMalformedToken          = &Error{Kind: KindMalformedToken, Message: "bearer token must have three segments"}
	ErrInvalidToken            = &Error{Kind: KindInvalidToken, Message: "token is not valid"}
	ErrInactiveAccount         = &Error{Kind: KindInactiveAccount, Message: "account is inactive"}
	ErrRateLimited             = &Error{Kind: KindRateLimited, Message: "too many requests, please try again later"}
	ErrDecryptionFailed        = &Error{Kind: KindDecryptionFailed, Message: "failed to decrypt request data"}
	ErrCodeNotFound            = &Error{Kind: KindCodeNotFound, Message: "code not found"}
	ErrCodeExpired             = &Error{Kind: KindCodeExpired, Message: "code has expired"}
	ErrCodeAlreadyClaimed      = &Error{Kind: KindCodeAlreadyClaimed, Message: "code has already been used"}
	ErrCodeGenerationExhausted = &Error{Kind: KindCodeGenerationExhausted, Message: "could not generate a unique code"}
	ErrNotPending              = &Error{Kind: KindNotPending, Message: "item is not pending review"}
	ErrUnauthorized            = &Error{Kind: KindUnauthorized, Message: "not authorized for this item"}
	ErrProfileChangeConflict   = &Error{Kind: KindProfileChangeConflict, Message: "profile change was already processed"}
	ErrNotFound                = &Error{Kind: KindNotFound, Message: "not found"}
	ErrInvalidInput            = &Error{Kind: KindInvalidInput, Message: "invalid input"}
	ErrForbidden               = &Error{Kind: KindForbidden, Message: "insufficient permissions"}
	ErrInternal                = &Error{Kind: KindInternal, Message: "internal server error"}
)

// Invalid returns an InvalidInput error with a caller-facing message.
func Invalid(message string) error {
	return &Error{Kind: KindInvalidInput, Message: message}
}

// Forbidden returns a Forbidden error with a caller-facing message.
func Forbidden(message string) error {
	return &Error{Kind: KindForbidden, Message: message}
}

// NotFound returns a NotFound error naming what was missing.
func NotFound(what string) error {
	return &Error{Kind: KindNotFound, Message: what + " not found"}
}

// From extracts the domain error from err. Anything that is not a domain
// error collapses to ErrInternal and ok is false.
func From(err error) (e *Error, ok bool) {
	if errors.As(err, &e) {
		return e, true
	}
	return ErrInternal, false
}

// Status maps a Kind to its HTTP status code.
func Status(kind Kind) int {
	switch kind {
	case KindMalformedToken, KindInvalidToken:
		return http.StatusUnauthorized
	case KindInactiveAccount, KindUnauthorized, KindForbidden:
		return http.StatusForbidden
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindDecryptionFailed, KindInvalidInput:
		return http.StatusBadRequest
	case KindCodeNotFound, KindNotFound:
		return http.StatusNotFound
	case KindCodeExpired:
		return http.StatusGone
	case KindCodeAlreadyClaimed, KindNotPending, KindProfileChangeConflict:
		return http.StatusConflict
	case KindCodeGenerationExhausted:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
