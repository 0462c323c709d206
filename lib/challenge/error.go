package challenge

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/TecharoHQ/botcha"
)

var (
	ErrFailed         = errors.New("challenge: user failed challenge")
	ErrMissingField   = errors.New("challenge: missing field")
	ErrInvalidFormat  = errors.New("challenge: field has invalid format")
	ErrUnknownKind    = errors.New("challenge: unknown challenge kind")
	ErrNotFound       = errors.New("challenge: not found or expired")
	ErrAnswerCount    = errors.New("challenge: wrong number of answers")
	ErrAnswerMismatch = errors.New("challenge: answer mismatch")
	ErrTooSlow        = errors.New("challenge: answered after the time limit")
)

var publicReasons = map[botcha.Kind]string{
	botcha.KindChallengeNotFoundOrExpired: "challenge not found or expired",
	botcha.KindAnswerCountMismatch:        "wrong number of answers",
	botcha.KindAnswerMismatch:             "incorrect answer",
	botcha.KindTooSlow:                    "too slow",
}

// NewError wraps privateReason into an *Error carrying kind. Index is set to
// -1; use WithIndex for answer mismatches.
func NewError(verb string, kind botcha.Kind, privateReason error) *Error {
	publicReason, ok := publicReasons[kind]
	if !ok {
		publicReason = "invalid response"
	}

	statusCode := http.StatusForbidden
	if kind == botcha.KindNone {
		statusCode = http.StatusBadRequest
	}

	return &Error{
		Verb:          verb,
		Kind:          kind,
		Index:         -1,
		PublicReason:  publicReason,
		PrivateReason: privateReason,
		StatusCode:    statusCode,
	}
}

type Error struct {
	PrivateReason error
	Verb          string
	PublicReason  string
	StatusCode    int
	Kind          botcha.Kind

	// Index is the position of the first wrong answer, or -1.
	Index int
}

// WithIndex records which answer was wrong.
func (e *Error) WithIndex(i int) *Error {
	e.Index = i
	return e
}

func (e *Error) Error() string {
	return fmt.Sprintf("challenge: error when processing challenge: %s: %v", e.Verb, e.PrivateReason)
}

func (e *Error) Unwrap() error {
	return e.PrivateReason
}

// KindOf reports the failure kind carried by err, or botcha.KindNone when err
// is not a challenge error.
func KindOf(err error) botcha.Kind {
	var cerr *Error
	if errors.As(err, &cerr) {
		return cerr.Kind
	}

	return botcha.KindNone
}
