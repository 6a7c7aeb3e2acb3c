package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a domain failure so the HTTP layer can map it
// to a status code without inspecting message strings.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindOutOfStock
	KindForbidden
	KindSignatureInvalid
	KindDuplicate // idempotent replay, treated as success by callers
	KindGateway   // payment provider timeout/5xx, retryable
)

type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

func Is(err error, kind Kind) bool { return KindOf(err) == kind }

// Message returns the user-facing message; internals stay in logs.
func Message(err error) string {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Msg
	}
	return "internal server error"
}

func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation, KindOutOfStock, KindSignatureInvalid:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindForbidden:
		return http.StatusForbidden
	case KindGateway:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
