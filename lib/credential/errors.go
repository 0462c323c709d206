package credential

import (
	"errors"
	"fmt"

	"github.com/TecharoHQ/botcha"
)

var (
	ErrMalformed       = errors.New("credential: malformed or badly signed token")
	ErrExpired         = errors.New("credential: token expired")
	ErrTypeMismatch    = errors.New("credential: wrong token type")
	ErrRevoked         = errors.New("credential: token revoked")
	ErrRevocationCheck = errors.New("credential: revocation check failed")
	ErrAudience        = errors.New("credential: audience mismatch")
	ErrClientIP        = errors.New("credential: client IP mismatch")
	ErrNoKey           = errors.New("credential: no signing key configured")
)

// Error ties a failure to its kind.
type Error struct {
	Kind botcha.Kind
	Err  error
}

func newError(kind botcha.Kind, sentinel error, format string, args ...any) *Error {
	if format == "" {
		return &Error{Kind: kind, Err: sentinel}
	}

	return &Error{Kind: kind, Err: fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...))}
}

func (e *Error) Error() string {
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf reports the failure kind carried by err, or botcha.KindNone.
func KindOf(err error) botcha.Kind {
	var cerr *Error
	if errors.As(err, &cerr) {
		return cerr.Kind
	}

	return botcha.KindNone
}
