package webbotauth

import (
	"errors"
	"fmt"

	"github.com/TecharoHQ/botcha"
)

var (
	ErrMissingAgent         = errors.New("webbotauth: missing Signature-Agent")
	ErrMissingSignature     = errors.New("webbotauth: missing Signature or Signature-Input")
	ErrUntrustedProvider    = errors.New("webbotauth: untrusted provider")
	ErrDirectory            = errors.New("webbotauth: can't fetch agent directory")
	ErrKeyNotFound          = errors.New("webbotauth: signing key not found in directory")
	ErrSignatureMismatch    = errors.New("webbotauth: signature mismatch")
	ErrMalformedHeader      = errors.New("webbotauth: malformed structured header")
	ErrUnsupportedAlg       = errors.New("webbotauth: unsupported signature algorithm")
	ErrUnsupportedComponent = errors.New("webbotauth: unsupported covered component")
	ErrInvalidHost          = errors.New("webbotauth: invalid host")
)

// Error ties a failure to its kind.
type Error struct {
	Kind botcha.Kind
	Err  error
}

func newError(kind botcha.Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

func wrapf(kind botcha.Kind, sentinel error, format string, args ...any) *Error {
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
	var werr *Error
	if errors.As(err, &werr) {
		return werr.Kind
	}

	return botcha.KindNone
}
